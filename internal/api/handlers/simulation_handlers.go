package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
)

// SimulationService is the orchestrator surface the controllers call
type SimulationService interface {
	Start(ctx context.Context) error
	Stop()
	Pause() error
	Resume() error
	Reset()
	GetStatus() entities.SimulationStatus
	GetMetrics(ctx context.Context) (entities.SimulationMetrics, error)
	CreateCustomers(ctx context.Context, n int) (entities.BulkResult, error)
	CreateFolios(ctx context.Context, n int) (entities.BulkResult, error)
	CreateTransactions(ctx context.Context, n int) (entities.BulkResult, error)
}

// SimulationHandler exposes the orchestrator. Each action maps to exactly
// one orchestrator call.
type SimulationHandler struct {
	simulator  SimulationService
	logger     *logger.Logger
	production bool
}

// NewSimulationHandler creates a new simulation handler
func NewSimulationHandler(simulator SimulationService, logger *logger.Logger, production bool) *SimulationHandler {
	return &SimulationHandler{
		simulator:  simulator,
		logger:     logger,
		production: production,
	}
}

// Start handles POST /api/v1/simulation/start
func (h *SimulationHandler) Start(c *gin.Context) {
	if err := h.simulator.Start(c.Request.Context()); err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, h.simulator.GetStatus())
}

// Stop handles POST /api/v1/simulation/stop
func (h *SimulationHandler) Stop(c *gin.Context) {
	h.simulator.Stop()
	respondOK(c, h.simulator.GetStatus())
}

// Pause handles POST /api/v1/simulation/pause
func (h *SimulationHandler) Pause(c *gin.Context) {
	if err := h.simulator.Pause(); err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, h.simulator.GetStatus())
}

// Resume handles POST /api/v1/simulation/resume
func (h *SimulationHandler) Resume(c *gin.Context) {
	if err := h.simulator.Resume(); err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, h.simulator.GetStatus())
}

// Reset handles POST /api/v1/simulation/reset
func (h *SimulationHandler) Reset(c *gin.Context) {
	h.simulator.Reset()
	respondOK(c, h.simulator.GetStatus())
}

// Status handles GET /api/v1/simulation/status
func (h *SimulationHandler) Status(c *gin.Context) {
	respondOK(c, h.simulator.GetStatus())
}

// Metrics handles GET /api/v1/simulation/metrics
func (h *SimulationHandler) Metrics(c *gin.Context) {
	metrics, err := h.simulator.GetMetrics(c.Request.Context())
	if err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, metrics)
}

// CreateCustomers handles POST /api/v1/simulation/customers
func (h *SimulationHandler) CreateCustomers(c *gin.Context) {
	h.bulk(c, h.simulator.CreateCustomers)
}

// CreateFolios handles POST /api/v1/simulation/folios
func (h *SimulationHandler) CreateFolios(c *gin.Context) {
	h.bulk(c, h.simulator.CreateFolios)
}

// CreateTransactions handles POST /api/v1/simulation/transactions
func (h *SimulationHandler) CreateTransactions(c *gin.Context) {
	h.bulk(c, h.simulator.CreateTransactions)
}

func (h *SimulationHandler) bulk(c *gin.Context, create func(context.Context, int) (entities.BulkResult, error)) {
	var req countRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "count must be an integer between 1 and 1000")
		return
	}

	result, err := create(c.Request.Context(), req.Count)
	if err != nil {
		respondError(c, h.logger, h.production, err)
		return
	}
	respondOK(c, result)
}
