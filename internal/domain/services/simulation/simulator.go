package simulation

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/generator"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/nav"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/settlement"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/sip"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
	"github.com/amc-simulator/amc_simulator/pkg/retry"
)

var (
	ErrNotRunning = errors.New("simulation is not running")
	ErrNotPaused  = errors.New("simulation is not paused")
	ErrShutdown   = errors.New("simulation is shutting down")
)

// Config holds task cadences and generation limits
type Config struct {
	CustomerInterval     time.Duration
	FolioInterval        time.Duration
	TransactionInterval  time.Duration
	SettlementInterval   time.Duration
	SIPInterval          time.Duration
	NAVInterval          time.Duration
	MaxFoliosPerCustomer int
	SkipOverlappingTicks bool
	BulkWorkers          int
}

// DefaultConfig returns the default cadences
func DefaultConfig() Config {
	return Config{
		CustomerInterval:     10 * time.Second,
		FolioInterval:        30 * time.Second,
		TransactionInterval:  15 * time.Second,
		SettlementInterval:   time.Minute,
		SIPInterval:          5 * time.Minute,
		NAVInterval:          time.Hour,
		MaxFoliosPerCustomer: entities.DefaultMaxFoliosPerCustomer,
		SkipOverlappingTicks: true,
		BulkWorkers:          4,
	}
}

// Simulator owns the recurring generation tasks and the session statistics.
// It does not own entity state; every write goes through the store.
type Simulator struct {
	store      *repositories.Store
	rng        *generator.Generator
	settlement *settlement.Processor
	sips       *sip.Executor
	nav        *nav.Updater
	config     Config
	logger     *zap.Logger
	now        func() time.Time

	mu           sync.Mutex
	isRunning    bool
	isPaused     bool
	starting     bool // seeding in progress, s.mu released
	shuttingDown bool
	startedAt    *time.Time
	tasks        []*task
	handles      map[string]*taskHandle

	inflight sync.WaitGroup
	counters counters
}

// NewSimulator creates a stopped simulator
func NewSimulator(
	store *repositories.Store,
	rng *generator.Generator,
	settlementProcessor *settlement.Processor,
	sipExecutor *sip.Executor,
	navUpdater *nav.Updater,
	config Config,
	logger *zap.Logger,
) *Simulator {
	if config.BulkWorkers <= 0 {
		config.BulkWorkers = 1
	}
	if config.MaxFoliosPerCustomer <= 0 {
		config.MaxFoliosPerCustomer = entities.DefaultMaxFoliosPerCustomer
	}

	s := &Simulator{
		store:      store,
		rng:        rng,
		settlement: settlementProcessor,
		sips:       sipExecutor,
		nav:        navUpdater,
		config:     config,
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
		handles:    make(map[string]*taskHandle),
	}
	s.tasks = s.buildTasks()
	return s
}

// Start seeds the default schemes and activates every recurring task.
// Starting a running (or already starting) simulation is a no-op. A seeding
// failure aborts the start and is returned. Seeding runs without s.mu so
// status reads and other state calls are not held up by its retries.
func (s *Simulator) Start(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.shuttingDown:
		s.mu.Unlock()
		return ErrShutdown
	case s.isRunning:
		s.mu.Unlock()
		s.logger.Warn("Simulation is already running")
		return nil
	case s.starting:
		s.mu.Unlock()
		s.logger.Warn("Simulation is already starting")
		return nil
	}
	s.starting = true
	s.mu.Unlock()

	seedErr := s.seedSchemes(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.starting = false

	if seedErr != nil {
		return fmt.Errorf("failed to seed default schemes: %w", seedErr)
	}
	if s.shuttingDown {
		return ErrShutdown
	}

	now := s.now()
	s.startedAt = &now
	s.isRunning = true
	s.isPaused = false
	s.activateTasks()
	s.publishState()

	s.logger.Info("Simulation started",
		zap.Duration("customer_interval", s.config.CustomerInterval),
		zap.Duration("folio_interval", s.config.FolioInterval),
		zap.Duration("transaction_interval", s.config.TransactionInterval),
		zap.Duration("settlement_interval", s.config.SettlementInterval),
		zap.Duration("sip_interval", s.config.SIPInterval),
		zap.Duration("nav_interval", s.config.NAVInterval))
	return nil
}

// Stop cancels every recurring task. Firings already in flight complete.
func (s *Simulator) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		s.logger.Warn("Simulation is not running")
		return
	}
	s.stopLocked()
	s.logger.Info("Simulation stopped")
}

func (s *Simulator) stopLocked() {
	s.deactivateTasks()
	s.isRunning = false
	s.isPaused = false
	s.publishState()
}

// Pause cancels every recurring task while the simulation stays logically
// running.
func (s *Simulator) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrNotRunning
	}
	if s.isPaused {
		s.logger.Warn("Simulation is already paused")
		return nil
	}

	s.deactivateTasks()
	s.isPaused = true
	s.publishState()
	s.logger.Info("Simulation paused")
	return nil
}

// Resume re-activates every recurring task of a paused simulation
func (s *Simulator) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return ErrNotPaused
	}
	if !s.isPaused {
		s.logger.Warn("Simulation is not paused")
		return nil
	}

	s.isPaused = false
	s.activateTasks()
	s.publishState()
	s.logger.Info("Simulation resumed")
	return nil
}

// Reset stops the simulation if needed and clears session bookkeeping.
// Persisted rows are left untouched.
func (s *Simulator) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		s.stopLocked()
	}
	s.counters.reset()
	for _, t := range s.tasks {
		t.resetStats()
	}
	s.startedAt = nil
	s.logger.Info("Simulation reset")
}

// Shutdown stops the simulation, refuses further starts and waits for
// in-flight firings until ctx is done.
func (s *Simulator) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.shuttingDown = true
	if s.isRunning {
		s.stopLocked()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		s.logger.Warn("Shutdown timeout reached, some simulation ticks may not have completed")
		return ctx.Err()
	}
}

// State returns the displayed state
func (s *Simulator) State() entities.SimulationState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

func (s *Simulator) stateLocked() entities.SimulationState {
	switch {
	case s.isRunning && s.isPaused:
		return entities.SimulationStatePaused
	case s.isRunning:
		return entities.SimulationStateRunning
	default:
		return entities.SimulationStateStopped
	}
}

func (s *Simulator) publishState() {
	switch s.stateLocked() {
	case entities.SimulationStateRunning:
		metrics.SetSimulationState(1)
	case entities.SimulationStatePaused:
		metrics.SetSimulationState(2)
	default:
		metrics.SetSimulationState(0)
	}
}

// GetStatus reports state, session counters and per-task statistics
func (s *Simulator) GetStatus() entities.SimulationStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := entities.SimulationStatus{
		State:     s.stateLocked(),
		IsRunning: s.isRunning,
		IsPaused:  s.isPaused,
		Session:   s.counters.snapshot(),
		Tasks:     s.taskStatuses(),
		Uptime:    "0s",
	}
	if s.startedAt != nil {
		started := *s.startedAt
		status.StartedAt = &started
		status.Uptime = s.now().Sub(started).Truncate(time.Second).String()
	}
	return status
}

// GetMetrics combines session counters with persisted totals and per-hour
// rates over the wall-clock time since start.
func (s *Simulator) GetMetrics(ctx context.Context) (entities.SimulationMetrics, error) {
	s.mu.Lock()
	state := s.stateLocked()
	var startedAt *time.Time
	if s.startedAt != nil {
		t := *s.startedAt
		startedAt = &t
	}
	s.mu.Unlock()

	totals, err := s.store.Reports.Totals(ctx)
	if err != nil {
		return entities.SimulationMetrics{}, fmt.Errorf("failed to load totals: %w", err)
	}

	session := s.counters.snapshot()
	m := entities.SimulationMetrics{
		State:   state,
		Session: session,
		Totals:  totals,
	}

	if startedAt != nil {
		elapsed := s.now().Sub(*startedAt)
		m.ElapsedSeconds = elapsed.Seconds()
		if hours := elapsed.Hours(); hours > 0 {
			m.Rates = entities.Rates{
				CustomersPerHour:    float64(session.CustomersCreated) / hours,
				FoliosPerHour:       float64(session.FoliosCreated) / hours,
				TransactionsPerHour: float64(session.TransactionsCreated) / hours,
			}
		}
	}
	return m, nil
}

// seedSchemes inserts the default scheme set in one storage transaction.
// Serialization and connection failures are retried; anything else fails
// the start immediately.
func (s *Simulator) seedSchemes(ctx context.Context) error {
	cfg := retry.DefaultConfig()
	cfg.OnRetry = func(attempt int, err error, delay time.Duration) {
		s.logger.Warn("Retrying scheme seeding",
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err))
	}

	return retry.WithExponentialBackoff(ctx, cfg, func(ctx context.Context) error {
		return s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
			inserted, err := s.store.Schemes.EnsureDefaults(ctx, generator.DefaultSchemes(s.now()))
			if err != nil {
				return err
			}
			if inserted > 0 {
				s.logger.Info("Seeded default schemes", zap.Int("inserted", inserted))
			}
			return nil
		})
	}, nil)
}
