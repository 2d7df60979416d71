package simulation

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
	"github.com/amc-simulator/amc_simulator/pkg/tracing"
)

// Recurring task names
const (
	TaskCustomerCreation      = "customer_creation"
	TaskFolioCreation         = "folio_creation"
	TaskTransactionSimulation = "transaction_simulation"
	TaskSettlementProcessing  = "settlement_processing"
	TaskSIPExecution          = "sip_execution"
	TaskNAVUpdate             = "nav_update"
)

// task is one independently scheduled recurring job. Firings of different
// tasks never exclude each other; firings of the same task overlap unless
// overlapping ticks are skipped.
type task struct {
	name     string
	interval time.Duration
	run      func(ctx context.Context) error

	inFlight atomic.Int32
	fired    atomic.Int64
	skipped  atomic.Int64
	failed   atomic.Int64
}

func (t *task) resetStats() {
	t.fired.Store(0)
	t.skipped.Store(0)
	t.failed.Store(0)
}

func (s *Simulator) buildTasks() []*task {
	return []*task{
		{name: TaskCustomerCreation, interval: s.config.CustomerInterval, run: s.customerTick},
		{name: TaskFolioCreation, interval: s.config.FolioInterval, run: s.folioTick},
		{name: TaskTransactionSimulation, interval: s.config.TransactionInterval, run: s.transactionTick},
		{name: TaskSettlementProcessing, interval: s.config.SettlementInterval, run: s.settlementTick},
		{name: TaskSIPExecution, interval: s.config.SIPInterval, run: s.sipTick},
		{name: TaskNAVUpdate, interval: s.config.NAVInterval, run: s.navTick},
	}
}

// taskHandle cancels one ticker loop; done closes once the loop has exited
type taskHandle struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// activateTasks starts one ticker goroutine per task. Caller holds s.mu.
func (s *Simulator) activateTasks() {
	for _, t := range s.tasks {
		ctx, cancel := context.WithCancel(context.Background())
		h := &taskHandle{cancel: cancel, done: make(chan struct{})}
		s.handles[t.name] = h
		go s.loop(ctx, t, h.done)
	}
}

// deactivateTasks cancels every task handle, waits for the ticker loops to
// exit and clears the registry. Once it returns no new firing can start;
// in-flight firings are not interrupted. Caller holds s.mu, which the loops
// never take.
func (s *Simulator) deactivateTasks() {
	for _, h := range s.handles {
		h.cancel()
	}
	for name, h := range s.handles {
		<-h.done
		delete(s.handles, name)
	}
}

func (s *Simulator) loop(ctx context.Context, t *task, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// select picks randomly when both are ready
			if ctx.Err() != nil {
				return
			}
			s.fire(ctx, t)
		}
	}
}

// fire launches one firing of t. The body runs detached from the task
// handle's cancellation so stop and pause let it finish.
func (s *Simulator) fire(ctx context.Context, t *task) {
	if s.config.SkipOverlappingTicks {
		if !t.inFlight.CompareAndSwap(0, 1) {
			t.skipped.Add(1)
			metrics.RecordTick(t.name, "skipped", 0)
			s.logger.Debug("Previous firing still running, skipping tick", zap.String("task", t.name))
			return
		}
	} else {
		t.inFlight.Add(1)
	}

	s.inflight.Add(1)
	go func() {
		defer s.inflight.Done()
		defer t.inFlight.Add(-1)
		s.runTick(context.WithoutCancel(ctx), t)
	}()
}

// runTick is the error boundary of a firing: errors and panics are logged
// and counted, never propagated.
func (s *Simulator) runTick(ctx context.Context, t *task) {
	t.fired.Add(1)
	start := time.Now()

	ctx, span := tracing.StartTaskSpan(ctx, t.name)
	var err error
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
			s.logger.Error("Recovered from panic in simulation task",
				zap.String("task", t.name),
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())))
		}

		result := "ok"
		if err != nil {
			result = "error"
			t.failed.Add(1)
			s.counters.tickErrors.Add(1)
			s.logger.Error("Simulation task failed",
				zap.String("task", t.name),
				zap.Error(err))
		}
		metrics.RecordTick(t.name, result, time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}()

	err = t.run(ctx)
}

func (s *Simulator) taskStatuses() []entities.TaskStatus {
	out := make([]entities.TaskStatus, 0, len(s.tasks))
	for _, t := range s.tasks {
		_, active := s.handles[t.name]
		out = append(out, entities.TaskStatus{
			Name:     t.name,
			Interval: t.interval,
			Active:   active,
			Running:  t.inFlight.Load() > 0,
			Fired:    t.fired.Load(),
			Skipped:  t.skipped.Load(),
			Failed:   t.failed.Load(),
		})
	}
	return out
}

func (s *Simulator) customerTick(ctx context.Context) error {
	_, err := s.createCustomer(ctx)
	return err
}

// folioTick opens a first folio for a customer without one (70% of ticks)
// and an additional folio for a customer below the cap (30% of ticks).
func (s *Simulator) folioTick(ctx context.Context) error {
	if s.rng.Chance(0.7) {
		customers, err := s.store.Customers.FindRandomWithoutFolio(ctx, 1)
		if err != nil {
			return fmt.Errorf("failed to find customer without folio: %w", err)
		}
		if len(customers) > 0 {
			if _, err := s.createFolio(ctx, customers[0].ID, newCustomerSIPChance); err != nil {
				return err
			}
		}
	}

	if s.rng.Chance(0.3) {
		candidates, err := s.store.Customers.FindRandomBelowFolioCap(ctx, s.config.MaxFoliosPerCustomer, 1)
		if err != nil {
			return fmt.Errorf("failed to find customer below folio cap: %w", err)
		}
		if len(candidates) > 0 {
			if _, err := s.createFolio(ctx, candidates[0].CustomerID, additionalFolioSIPChance); err != nil {
				return err
			}
		}
	}
	return nil
}

// transactionTick submits a transaction on up to five tradable folios, each
// with 70% probability. A failed folio does not stop the others; the tick
// reports every failure.
func (s *Simulator) transactionTick(ctx context.Context) error {
	folios, err := s.store.Folios.FindRandomTradable(ctx, transactionFoliosPerTick)
	if err != nil {
		return fmt.Errorf("failed to find tradable folios: %w", err)
	}

	var errs []error
	for _, folio := range folios {
		if !s.rng.Chance(0.7) {
			continue
		}
		if _, err := s.createTransaction(ctx, folio); err != nil {
			s.logger.Warn("Failed to simulate transaction",
				zap.String("folio_id", folio.ID.String()),
				zap.Error(err))
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Simulator) settlementTick(ctx context.Context) error {
	result, err := s.settlement.ProcessPending(ctx)
	s.counters.transactionsSettled.Add(int64(result.Settled))
	s.counters.transactionsRejected.Add(int64(result.Rejected + result.RetriesExhausted))
	s.counters.settlementRetries.Add(int64(result.RetriesScheduled))
	return err
}

func (s *Simulator) sipTick(ctx context.Context) error {
	result, err := s.sips.ExecuteDue(ctx)
	s.counters.sipsExecuted.Add(int64(result.Executed))
	s.counters.transactionsCreated.Add(int64(result.Executed))
	return err
}

func (s *Simulator) navTick(ctx context.Context) error {
	changes, err := s.nav.UpdateAll(ctx)
	s.counters.navUpdates.Add(int64(len(changes)))
	return err
}
