package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/lifecycle"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
)

// LifecycleService changes the state of individual SIPs, folios and
// transactions
type LifecycleService interface {
	PauseSIP(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error)
	ResumeSIP(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error)
	CancelSIP(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error)
	CloseFolio(ctx context.Context, id uuid.UUID) (lifecycle.FolioClosure, error)
	CancelTransaction(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
}

// LifecycleHandler exposes investor-initiated state changes
type LifecycleHandler struct {
	service    LifecycleService
	logger     *logger.Logger
	production bool
}

// NewLifecycleHandler creates a new lifecycle handler
func NewLifecycleHandler(service LifecycleService, logger *logger.Logger, production bool) *LifecycleHandler {
	return &LifecycleHandler{
		service:    service,
		logger:     logger,
		production: production,
	}
}

// PauseSIP handles POST /api/v1/sips/:id/pause
func (h *LifecycleHandler) PauseSIP(c *gin.Context) {
	h.sipAction(c, h.service.PauseSIP)
}

// ResumeSIP handles POST /api/v1/sips/:id/resume
func (h *LifecycleHandler) ResumeSIP(c *gin.Context) {
	h.sipAction(c, h.service.ResumeSIP)
}

// CancelSIP handles POST /api/v1/sips/:id/cancel
func (h *LifecycleHandler) CancelSIP(c *gin.Context) {
	h.sipAction(c, h.service.CancelSIP)
}

func (h *LifecycleHandler) sipAction(c *gin.Context, action func(context.Context, uuid.UUID) (*entities.SIPRegistration, error)) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	reg, err := action(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, reg)
}

// CloseFolio handles POST /api/v1/folios/:id/close
func (h *LifecycleHandler) CloseFolio(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	closure, err := h.service.CloseFolio(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, closure)
}

// CancelTransaction handles POST /api/v1/transactions/:id/cancel
func (h *LifecycleHandler) CancelTransaction(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	txn, err := h.service.CancelTransaction(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, txn)
}

// pathID parses the :id parameter, answering 400 when it is not a UUID
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		respondBadRequest(c, "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}
