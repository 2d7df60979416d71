package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/amc-simulator/amc_simulator/internal/workers/maintenance"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
)

// MaintenanceService lists and triggers calendar jobs
type MaintenanceService interface {
	Jobs() []maintenance.JobInfo
	RunJob(ctx context.Context, name string) (maintenance.RunResult, error)
}

// MaintenanceHandler exposes the maintenance job registry
type MaintenanceHandler struct {
	scheduler  MaintenanceService
	logger     *logger.Logger
	production bool
}

// NewMaintenanceHandler creates a new maintenance handler
func NewMaintenanceHandler(scheduler MaintenanceService, logger *logger.Logger, production bool) *MaintenanceHandler {
	return &MaintenanceHandler{
		scheduler:  scheduler,
		logger:     logger,
		production: production,
	}
}

// ListJobs handles GET /api/v1/maintenance/jobs
func (h *MaintenanceHandler) ListJobs(c *gin.Context) {
	respondOK(c, h.scheduler.Jobs())
}

// RunJob handles POST /api/v1/maintenance/jobs/:name/run. A job that ran
// and failed is still a 200; the outcome is in the result.
func (h *MaintenanceHandler) RunJob(c *gin.Context) {
	name := c.Param("name")

	result, err := h.scheduler.RunJob(c.Request.Context(), name)
	if err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}

	h.logger.Infow("Maintenance job triggered",
		"job", name,
		"status", result.Status,
		"request_id", getRequestID(c),
	)
	respondOK(c, result)
}
