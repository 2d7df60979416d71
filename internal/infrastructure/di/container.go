package di

import (
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/generator"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/holdings"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/lifecycle"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/nav"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/settlement"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/simulation"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/sip"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/config"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
	pgrepos "github.com/amc-simulator/amc_simulator/internal/infrastructure/repositories"
	"github.com/amc-simulator/amc_simulator/internal/workers/maintenance"
	"github.com/amc-simulator/amc_simulator/pkg/circuitbreaker"
	"github.com/amc-simulator/amc_simulator/pkg/health"
	"github.com/amc-simulator/amc_simulator/pkg/logger"
	"github.com/amc-simulator/amc_simulator/pkg/retry"
)

const healthCheckTimeout = 5 * time.Second

// Container holds all application dependencies
type Container struct {
	Config *config.Config
	DB     *database.DB
	Redis  redis.UniversalClient // nil when Redis is not configured
	Logger *logger.Logger
	ZapLog *zap.Logger

	// Storage
	Store *repositories.Store

	// Domain services
	Generator            *generator.Generator
	Aggregator           *holdings.Aggregator
	TransactionProcessor *transaction.Processor
	Registrar            *settlement.BreakerClient
	SettlementProcessor  *settlement.Processor
	SIPExecutor          *sip.Executor
	NAVUpdater           *nav.Updater
	Simulator            *simulation.Simulator
	Lifecycle            *lifecycle.Manager

	// Workers
	Maintenance *maintenance.Scheduler

	Health *health.HealthChecker
}

// NewContainer creates a new dependency injection container. redisClient
// may be nil.
func NewContainer(cfg *config.Config, db *sqlx.DB, redisClient redis.UniversalClient, log *logger.Logger) (*Container, error) {
	zapLog := log.Zap()
	wrapped := database.New(db)

	container := &Container{
		Config: cfg,
		DB:     wrapped,
		Redis:  redisClient,
		Logger: log,
		ZapLog: zapLog,
		Store:  pgrepos.NewStore(wrapped, zapLog),
	}

	container.initializeDomainServices()

	if err := container.initializeMaintenance(); err != nil {
		return nil, fmt.Errorf("failed to initialize maintenance scheduler: %w", err)
	}

	container.initializeHealthChecks()

	return container, nil
}

// initializeDomainServices wires the simulation services bottom-up
func (c *Container) initializeDomainServices() {
	sim := c.Config.Simulation

	if sim.Seed != 0 {
		c.Generator = generator.New(sim.Seed)
	} else {
		c.Generator = generator.NewRandom()
	}

	c.Aggregator = holdings.NewAggregator(c.Store.Holdings, c.ZapLog.Named("holdings"))
	c.TransactionProcessor = transaction.NewProcessor(c.Store.Tx, c.Store.Transactions, c.Aggregator, c.ZapLog.Named("transaction"))

	c.Registrar = settlement.NewBreakerClient(settlement.NewSimulatedClient(c.Generator), circuitbreaker.DefaultConfig())

	policy := retry.SettlementPolicy()
	if sim.MaxSettlementAttempts > 0 {
		policy.MaxAttempts = sim.MaxSettlementAttempts
	}
	c.SettlementProcessor = settlement.NewProcessor(c.Store, c.TransactionProcessor, c.Registrar, settlement.Config{
		ProcessingDelay: sim.SettlementDelay,
		BatchSize:       sim.SettlementBatchSize,
		Retry:           policy,
	}, c.ZapLog.Named("settlement"))

	c.SIPExecutor = sip.NewExecutor(c.Store, c.TransactionProcessor, c.ZapLog.Named("sip"))
	c.NAVUpdater = nav.NewUpdater(c.Store, c.Generator, c.ZapLog.Named("nav"))
	c.Lifecycle = lifecycle.NewManager(c.Store, c.ZapLog.Named("lifecycle"))

	c.Simulator = simulation.NewSimulator(
		c.Store,
		c.Generator,
		c.SettlementProcessor,
		c.SIPExecutor,
		c.NAVUpdater,
		simulation.Config{
			CustomerInterval:     sim.CustomerInterval,
			FolioInterval:        sim.FolioInterval,
			TransactionInterval:  sim.TransactionInterval,
			SettlementInterval:   sim.SettlementInterval,
			SIPInterval:          sim.SIPInterval,
			NAVInterval:          sim.NAVInterval,
			MaxFoliosPerCustomer: sim.MaxFoliosPerCustomer,
			SkipOverlappingTicks: sim.SkipOverlappingTicks,
			BulkWorkers:          sim.BulkWorkers,
		},
		c.ZapLog.Named("simulation"),
	)
}

// initializeMaintenance builds the calendar job scheduler. Jobs are always
// registered so they can be triggered manually; Start is left to main.
func (c *Container) initializeMaintenance() error {
	mc := c.Config.Maintenance

	var locker maintenance.Locker = maintenance.NoopLocker{}
	if c.Redis != nil {
		locker = maintenance.NewRedisLocker(c.Redis)
	}

	scheduler, err := maintenance.NewScheduler(maintenance.Config{
		Timezone:   mc.Timezone,
		JobTimeout: mc.JobTimeout,
	}, locker, c.ZapLog.Named("maintenance"))
	if err != nil {
		return err
	}

	jobsConfig := maintenance.DefaultJobsConfig()
	if mc.PruneSchedule != "" {
		jobsConfig.PruneSchedule = mc.PruneSchedule
	}
	if mc.AuditSchedule != "" {
		jobsConfig.AuditSchedule = mc.AuditSchedule
	}
	if mc.ReconciliationSchedule != "" {
		jobsConfig.ReconciliationSchedule = mc.ReconciliationSchedule
	}
	if mc.StatisticsSchedule != "" {
		jobsConfig.StatisticsSchedule = mc.StatisticsSchedule
	}
	if mc.NAVRetentionDays > 0 {
		jobsConfig.NAVRetention = time.Duration(mc.NAVRetentionDays) * 24 * time.Hour
	}

	for _, job := range maintenance.Jobs(c.Store, jobsConfig, c.ZapLog.Named("maintenance")) {
		if err := scheduler.Register(job); err != nil {
			return fmt.Errorf("register %s: %w", job.Name(), err)
		}
	}

	c.Maintenance = scheduler
	return nil
}

func (c *Container) initializeHealthChecks() {
	c.Health = health.NewHealthChecker(healthCheckTimeout)
	c.Health.Register(health.NewDatabaseChecker(c.DB.DB.DB, healthCheckTimeout))
	if c.Redis != nil {
		c.Health.Register(health.NewRedisChecker(c.Redis, healthCheckTimeout))
	}
	c.Health.Register(health.NewBreakerChecker("cams", c.Registrar.Breaker()))
}

// GetSimulator returns the simulation orchestrator
func (c *Container) GetSimulator() *simulation.Simulator {
	return c.Simulator
}

// GetLifecycle returns the SIP, folio and transaction state manager
func (c *Container) GetLifecycle() *lifecycle.Manager {
	return c.Lifecycle
}

// GetMaintenance returns the maintenance scheduler
func (c *Container) GetMaintenance() *maintenance.Scheduler {
	return c.Maintenance
}
