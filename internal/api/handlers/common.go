package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/simulation"
	"github.com/amc-simulator/amc_simulator/internal/workers/maintenance"
	pkgerrors "github.com/amc-simulator/amc_simulator/pkg/errors"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
)

// Response is the envelope of every API reply
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorBody  `json:"error,omitempty"`
}

// ErrorBody describes a failed request
type ErrorBody struct {
	Code      string            `json:"code"`
	Message   string            `json:"message"`
	Details   map[string]string `json:"details,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
}

// countRequest is the body of the bulk-create endpoints
type countRequest struct {
	Count int `json:"count" binding:"required,min=1,max=1000"`
}

// getRequestID extracts request ID from context
func getRequestID(c *gin.Context) string {
	if reqID, exists := c.Get("request_id"); exists {
		if id, ok := reqID.(string); ok {
			return id
		}
	}
	return ""
}

func respondOK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

// respondError maps err onto a status and writes the error envelope. In
// production internal errors carry a generic message only.
func respondError(c *gin.Context, log *logger.Logger, production bool, err error) {
	appErr := toAppError(err)
	status := pkgerrors.GetStatusCode(appErr)

	message := appErr.Message
	if status >= http.StatusInternalServerError {
		log.WithContext(c.Request.Context()).Errorw("Request failed",
			"request_id", getRequestID(c),
			"path", c.FullPath(),
			"error", err,
		)
		if !production {
			message = err.Error()
		}
	}

	c.JSON(status, Response{
		Success: false,
		Error: &ErrorBody{
			Code:      appErr.Code,
			Message:   message,
			Details:   appErr.Details,
			RequestID: getRequestID(c),
		},
	})
}

func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error: &ErrorBody{
			Code:      "INVALID_REQUEST",
			Message:   message,
			RequestID: getRequestID(c),
		},
	})
}

// toAppError translates domain errors into typed application errors
func toAppError(err error) *pkgerrors.AppError {
	var appErr *pkgerrors.AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	switch {
	case errors.Is(err, simulation.ErrNotRunning):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "SIMULATION_NOT_RUNNING", "Simulation is not running")
	case errors.Is(err, simulation.ErrNotPaused):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "SIMULATION_NOT_PAUSED", "Simulation is not paused")
	case errors.Is(err, simulation.ErrShutdown):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "SIMULATION_SHUTTING_DOWN", "Simulation is shutting down")
	case errors.Is(err, simulation.ErrNoCustomers):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeNotFound, "NO_CUSTOMERS", "No customers available")
	case errors.Is(err, simulation.ErrNoSchemes):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeNotFound, "NO_SCHEMES", "No active schemes available")
	case errors.Is(err, simulation.ErrNoFolios):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeNotFound, "NO_FOLIOS", "No tradable folios available")
	case errors.Is(err, entities.ErrSIPNotActive):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "SIP_NOT_ACTIVE", "SIP is not active")
	case errors.Is(err, entities.ErrSIPTerminal):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "SIP_TERMINAL", "SIP is completed or cancelled")
	case errors.Is(err, entities.ErrInvalidTransition):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "INVALID_TRANSITION", "Transaction can no longer be changed")
	case errors.Is(err, maintenance.ErrUnknownJob):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeNotFound, "JOB_NOT_FOUND", "Maintenance job not found")
	case errors.Is(err, repositories.ErrNotFound):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeNotFound, "NOT_FOUND", "Resource not found")
	case errors.Is(err, repositories.ErrDuplicate):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "DUPLICATE", "Resource already exists")
	case errors.Is(err, repositories.ErrFolioLimitReached):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "FOLIO_LIMIT_REACHED", "Customer has reached the maximum number of folios")
	case errors.Is(err, repositories.ErrConcurrentUpdate):
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeConflict, "CONCURRENT_UPDATE", "Resource was modified concurrently")
	}

	switch pkgerrors.ClassifyError(err) {
	case pkgerrors.ErrorTypeTimeout:
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeTimeout, "TIMEOUT", "The request timed out")
	case pkgerrors.ErrorTypeTransient:
		return pkgerrors.Wrap(err, pkgerrors.ErrorTypeTransient, "UNAVAILABLE", "A dependency is temporarily unavailable")
	}
	return pkgerrors.NewInternalError(err)
}
