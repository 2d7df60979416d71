package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/amc-simulator/amc_simulator/internal/api/routes"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/config"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/di"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
	"github.com/amc-simulator/amc_simulator/pkg/tracing"
	"github.com/amc-simulator/amc_simulator/pkg/version"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Initialize logger
	log := logger.New(cfg.LogLevel, cfg.Environment)
	defer func() { _ = log.Sync() }()

	if cfg.Version != "" {
		version.Version = cfg.Version
	}
	log.Infow("Starting AMC simulator", "version", version.Get().String())

	// Initialize tracing
	shutdownTracing, err := tracing.InitProvider(context.Background(), tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName,
		Environment: cfg.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
		Insecure:    cfg.Tracing.Insecure,
	})
	if err != nil {
		log.Fatal("Failed to initialize tracing", "error", err)
	}

	// Initialize database
	db, err := database.NewConnection(cfg.Database)
	if err != nil {
		log.Fatal("Failed to connect to database", "error", err)
	}
	defer db.Close()

	// Run migrations
	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(db.DB, cfg.Database.MigrationsPath); err != nil {
			log.Fatal("Failed to run migrations", "error", err)
		}
		log.Infow("Database migrations applied", "path", cfg.Database.MigrationsPath)
	}

	// Redis is optional; without it maintenance jobs lock in-process only
	redisClient := connectRedis(cfg.Redis, log)
	if redisClient != nil {
		defer redisClient.Close()
	}

	// Build dependency injection container
	var universal redis.UniversalClient
	if redisClient != nil {
		universal = redisClient
	}
	container, err := di.NewContainer(cfg, db, universal, log)
	if err != nil {
		log.Fatal("Failed to create DI container", "error", err)
	}

	// Initialize router with DI container
	router := routes.SetupRoutes(container)

	if cfg.Simulation.AutoStart {
		if err := container.Simulator.Start(context.Background()); err != nil {
			log.Fatal("Failed to auto-start simulation", "error", err)
		}
		log.Infow("Simulation auto-started")
	}

	if cfg.Maintenance.Enabled {
		if err := container.Maintenance.Start(); err != nil {
			log.Fatal("Failed to start maintenance scheduler", "error", err)
		}
		log.Infow("Maintenance scheduler started", "timezone", cfg.Maintenance.Timezone)
	}

	// Create server
	server := &http.Server{
		Addr:           fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:        router,
		ReadTimeout:    seconds(cfg.Server.ReadTimeout, 30),
		WriteTimeout:   seconds(cfg.Server.WriteTimeout, 30),
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	// Start server in goroutine
	go func() {
		log.Infow("Starting server", "port", cfg.Server.Port, "environment", cfg.Environment)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", "error", err)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), seconds(cfg.Server.ShutdownTimeout, 30))
	defer cancel()

	// Stop accepting requests before the background work winds down
	if err := server.Shutdown(ctx); err != nil {
		log.Warnw("Server forced to shutdown", "error", err)
	}

	log.Infow("Stopping simulation...")
	if err := container.Simulator.Shutdown(ctx); err != nil {
		log.Warnw("Simulation did not drain in time", "error", err)
	}

	log.Infow("Stopping maintenance scheduler...")
	if err := container.Maintenance.Stop(ctx); err != nil {
		log.Warnw("Maintenance jobs did not drain in time", "error", err)
	}

	if err := shutdownTracing(ctx); err != nil {
		log.Warnw("Failed to flush traces", "error", err)
	}

	log.Infow("Server exited")
}

// connectRedis returns nil when Redis is not configured or unreachable
func connectRedis(cfg config.RedisConfig, log *logger.Logger) *redis.Client {
	if !cfg.Enabled() {
		return nil
	}

	var opts *redis.Options
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			log.Warnw("Invalid Redis URL, continuing without Redis", "error", err)
			return nil
		}
		opts = parsed
	} else {
		opts = &redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Password: cfg.Password,
			DB:       cfg.DB,
		}
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Warnw("Redis unreachable, continuing without distributed locks", "error", err)
		_ = client.Close()
		return nil
	}

	log.Infow("Connected to Redis", "addr", opts.Addr)
	return client
}

func seconds(v, fallback int) time.Duration {
	if v <= 0 {
		v = fallback
	}
	return time.Duration(v) * time.Second
}
