package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/amc-simulator/amc_simulator/pkg/health"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
	"github.com/amc-simulator/amc_simulator/pkg/version"
)

// HealthChecker runs the registered dependency checks
type HealthChecker interface {
	Check(ctx context.Context) (health.Status, map[string]health.CheckResult)
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	checker HealthChecker
	logger  *logger.Logger
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(checker HealthChecker, logger *logger.Logger) *HealthHandler {
	return &HealthHandler{
		checker: checker,
		logger:  logger,
	}
}

var startTime = time.Now()

// Health reports every dependency check. Degraded dependencies keep a 200;
// an unhealthy one returns 503.
func (h *HealthHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 10*time.Second)
	defer cancel()

	status, checks := h.checker.Check(ctx)
	response := health.HealthResponse{
		Status:    status,
		Timestamp: time.Now(),
		Version:   version.Version,
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == health.StatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
		h.logger.Warnw("Health check failed", "checks", checks)
	}

	c.JSON(statusCode, response)
}

// Ready checks if the application is ready to serve traffic
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	status, checks := h.checker.Check(ctx)
	ready := status != health.StatusUnhealthy

	state := "ready"
	statusCode := http.StatusOK
	if !ready {
		state = "not_ready"
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, gin.H{
		"status":    state,
		"timestamp": time.Now(),
		"checks":    checks,
	})
}

// Live checks if the application is alive
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "alive",
		"timestamp": time.Now(),
		"uptime":    time.Since(startTime).String(),
	})
}

// Version reports build information
func (h *HealthHandler) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get())
}
