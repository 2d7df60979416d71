package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/amc-simulator/amc_simulator/internal/api/handlers"
	"github.com/amc-simulator/amc_simulator/internal/api/middleware"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/config"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/di"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
	"github.com/amc-simulator/amc_simulator/pkg/tracing"
)

// SetupRoutes configures all application routes
func SetupRoutes(container *di.Container) *gin.Engine {
	return newRouter(
		container.Config,
		container.Logger,
		container.GetSimulator(),
		container.GetLifecycle(),
		container.GetMaintenance(),
		container.Health,
	)
}

func newRouter(
	cfg *config.Config,
	log *logger.Logger,
	simulator handlers.SimulationService,
	lifecycle handlers.LifecycleService,
	maintenance handlers.MaintenanceService,
	checker handlers.HealthChecker,
) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	// Global middleware
	router.Use(middleware.RequestID())
	router.Use(tracing.HTTPMiddleware())
	router.Use(middleware.Logger(log))
	router.Use(middleware.Recovery(log))
	router.Use(middleware.Metrics())
	router.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	router.Use(middleware.RateLimit(cfg.Server.RateLimitPerMin))
	router.Use(middleware.SecurityHeaders())

	production := cfg.Environment == "production"
	healthHandler := handlers.NewHealthHandler(checker, log.Named("health"))
	simulationHandler := handlers.NewSimulationHandler(simulator, log.Named("simulation"), production)
	lifecycleHandler := handlers.NewLifecycleHandler(lifecycle, log.Named("lifecycle"), production)
	maintenanceHandler := handlers.NewMaintenanceHandler(maintenance, log.Named("maintenance"), production)

	// Health and observability
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)
	router.GET("/live", healthHandler.Live)
	router.GET("/version", healthHandler.Version)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/api/v1")
	{
		simulation := v1.Group("/simulation")
		{
			simulation.POST("/start", simulationHandler.Start)
			simulation.POST("/stop", simulationHandler.Stop)
			simulation.POST("/pause", simulationHandler.Pause)
			simulation.POST("/resume", simulationHandler.Resume)
			simulation.POST("/reset", simulationHandler.Reset)
			simulation.GET("/status", simulationHandler.Status)
			simulation.GET("/metrics", simulationHandler.Metrics)

			simulation.POST("/customers", simulationHandler.CreateCustomers)
			simulation.POST("/folios", simulationHandler.CreateFolios)
			simulation.POST("/transactions", simulationHandler.CreateTransactions)
		}

		v1.POST("/sips/:id/pause", lifecycleHandler.PauseSIP)
		v1.POST("/sips/:id/resume", lifecycleHandler.ResumeSIP)
		v1.POST("/sips/:id/cancel", lifecycleHandler.CancelSIP)
		v1.POST("/folios/:id/close", lifecycleHandler.CloseFolio)
		v1.POST("/transactions/:id/cancel", lifecycleHandler.CancelTransaction)

		maintenanceGroup := v1.Group("/maintenance")
		{
			maintenanceGroup.GET("/jobs", maintenanceHandler.ListJobs)
			maintenanceGroup.POST("/jobs/:name/run", maintenanceHandler.RunJob)
		}
	}

	return router
}
