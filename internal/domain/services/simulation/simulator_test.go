package simulation

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/generator"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/holdings"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/nav"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/settlement"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/sip"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/internal/testutil/memstore"
	pkgerrors "github.com/amc-simulator/amc_simulator/pkg/errors"
	"github.com/amc-simulator/amc_simulator/pkg/retry"
)

func newTestSimulator(t *testing.T, mem *memstore.Memory, mutate func(*Config)) *Simulator {
	t.Helper()
	store := mem.Store()
	logger := zap.NewNop()
	gen := generator.New(42)

	agg := holdings.NewAggregator(store.Holdings, logger)
	txp := transaction.NewProcessor(store.Tx, store.Transactions, agg, logger)
	settler := settlement.NewProcessor(store, txp, settlement.NewSimulatedClient(gen), settlement.Config{Retry: retry.SettlementPolicy()}, logger)
	executor := sip.NewExecutor(store, txp, logger)
	updater := nav.NewUpdater(store, gen, logger)

	cfg := DefaultConfig()
	// long enough that no ticker fires during a test
	cfg.CustomerInterval = time.Hour
	cfg.FolioInterval = time.Hour
	cfg.TransactionInterval = time.Hour
	cfg.SettlementInterval = time.Hour
	cfg.SIPInterval = time.Hour
	if mutate != nil {
		mutate(&cfg)
	}

	s := NewSimulator(store, gen, settler, executor, updater, cfg, logger)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(ctx)
	})
	return s
}

func activeTasks(status entities.SimulationStatus) int {
	n := 0
	for _, task := range status.Tasks {
		if task.Active {
			n++
		}
	}
	return n
}

func TestSimulator_StateMachine(t *testing.T) {
	mem := memstore.New()
	s := newTestSimulator(t, mem, nil)
	ctx := context.Background()

	assert.Equal(t, entities.SimulationStateStopped, s.State())
	assert.ErrorIs(t, s.Pause(), ErrNotRunning)
	assert.ErrorIs(t, s.Resume(), ErrNotPaused)

	require.NoError(t, s.Start(ctx))
	assert.Equal(t, entities.SimulationStateRunning, s.State())
	assert.Equal(t, 6, activeTasks(s.GetStatus()))
	assert.Len(t, mem.Schemes, len(generator.DefaultSchemes(time.Now())))

	// starting twice is a no-op
	require.NoError(t, s.Start(ctx))
	assert.Equal(t, 6, activeTasks(s.GetStatus()))

	require.NoError(t, s.Resume(), "resuming a running simulation only warns")
	assert.Equal(t, entities.SimulationStateRunning, s.State())

	require.NoError(t, s.Pause())
	status := s.GetStatus()
	assert.Equal(t, entities.SimulationStatePaused, status.State)
	assert.True(t, status.IsRunning)
	assert.True(t, status.IsPaused)
	assert.Zero(t, activeTasks(status))

	require.NoError(t, s.Pause())
	require.NoError(t, s.Resume())
	assert.Equal(t, entities.SimulationStateRunning, s.State())
	assert.Equal(t, 6, activeTasks(s.GetStatus()))

	s.Stop()
	status = s.GetStatus()
	assert.Equal(t, entities.SimulationStateStopped, status.State)
	assert.Zero(t, activeTasks(status))

	s.Stop()
	assert.ErrorIs(t, s.Resume(), ErrNotPaused)
}

func TestSimulator_StartFailsWhenSeedingFails(t *testing.T) {
	mem := memstore.New()
	mem.FailNext("schemes.ensure_defaults", errors.New("relation \"schemes\" does not exist"))
	s := newTestSimulator(t, mem, nil)

	err := s.Start(context.Background())
	require.Error(t, err)
	assert.Equal(t, entities.SimulationStateStopped, s.State())
	assert.Zero(t, activeTasks(s.GetStatus()))
	assert.Nil(t, s.GetStatus().StartedAt)
}

func TestSimulator_StartRetriesTransientSeedingFailure(t *testing.T) {
	mem := memstore.New()
	mem.FailNext("schemes.ensure_defaults", &pq.Error{Code: "40001", Message: "could not serialize access"})
	s := newTestSimulator(t, mem, nil)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Equal(t, entities.SimulationStateRunning, s.State())
	assert.Len(t, mem.Schemes, 10)
}

func TestSimulator_SeedingIsIdempotent(t *testing.T) {
	mem := memstore.New()
	s := newTestSimulator(t, mem, nil)

	require.NoError(t, s.Start(context.Background()))
	s.Stop()
	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, mem.Schemes, 10)
}

func TestSimulator_ManualTriggersUpdateCounters(t *testing.T) {
	mem := memstore.New()
	mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "50")
	s := newTestSimulator(t, mem, nil)
	ctx := context.Background()

	res, err := s.CreateCustomers(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Created)
	assert.Zero(t, res.Failed)

	res, err = s.CreateFolios(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Created)

	session := s.GetStatus().Session
	assert.Equal(t, int64(5), session.CustomersCreated)
	assert.Equal(t, int64(4), session.FoliosCreated)
	assert.Equal(t, int64(len(mem.SIPs)), session.SIPsRegistered)

	customers, folios, _, _ := mem.Count()
	assert.Equal(t, 5, customers)
	assert.Equal(t, 4, folios)
}

func TestSimulator_CreateTransactionsNeverOverRedeems(t *testing.T) {
	mem := memstore.New()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "50")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	mem.AddFolio(customer.ID, scheme.ID)
	s := newTestSimulator(t, mem, nil)

	res, err := s.CreateTransactions(context.Background(), 200)
	require.NoError(t, err)
	assert.Equal(t, 200, res.Created)
	assert.Equal(t, int64(200), s.GetStatus().Session.TransactionsCreated)

	modes := map[entities.TransactionMode]int{}
	for _, txn := range mem.Transactions {
		modes[txn.Mode]++
		assert.Equal(t, entities.TransactionStatusSubmitted, txn.Status)
		assert.Equal(t, entities.SettlementStatusPending, txn.CAMSStatus)
	}
	assert.Zero(t, modes[entities.TransactionModeRedemption], "no holding means no redemption")
	assert.NotZero(t, modes[entities.TransactionModeSIP])
	assert.NotZero(t, modes[entities.TransactionModeLumpsum])
}

func TestSimulator_CreateTransactionsRequiresTradableFolio(t *testing.T) {
	mem := memstore.New()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "50")
	pending := mem.AddCustomer(entities.KYCStatusPending)
	mem.AddFolio(pending.ID, scheme.ID)
	s := newTestSimulator(t, mem, nil)

	_, err := s.CreateTransactions(context.Background(), 1)
	assert.ErrorIs(t, err, ErrNoFolios)
}

func TestSimulator_FolioCap(t *testing.T) {
	mem := memstore.New()
	mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "50")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	s := newTestSimulator(t, mem, func(c *Config) { c.MaxFoliosPerCustomer = 2 })
	ctx := context.Background()

	res, err := s.CreateFolios(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Created)
	assert.Equal(t, 3, res.Failed)
	assert.Equal(t, []string{repositories.ErrFolioLimitReached.Error()}, res.Errors)

	count, err := mem.Store().Folios.CountActiveByCustomer(ctx, customer.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	candidates, err := mem.Store().Customers.FindRandomBelowFolioCap(ctx, 2, 10)
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestSimulator_BulkCountValidation(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), nil)
	ctx := context.Background()

	for _, n := range []int{0, -1, MaxBulkCount + 1} {
		_, err := s.CreateCustomers(ctx, n)
		require.Error(t, err)
		assert.Equal(t, pkgerrors.ErrorTypeValidation, pkgerrors.ClassifyError(err), "count %d", n)
	}

	_, err := s.CreateFolios(ctx, 1)
	assert.ErrorIs(t, err, ErrNoCustomers)
}

func TestSimulator_GetMetricsRates(t *testing.T) {
	mem := memstore.New()
	s := newTestSimulator(t, mem, nil)
	t0 := time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return t0 }

	require.NoError(t, s.Start(context.Background()))
	_, err := s.CreateCustomers(context.Background(), 3)
	require.NoError(t, err)

	s.now = func() time.Time { return t0.Add(30 * time.Minute) }
	m, err := s.GetMetrics(context.Background())
	require.NoError(t, err)

	assert.Equal(t, entities.SimulationStateRunning, m.State)
	assert.InDelta(t, 1800, m.ElapsedSeconds, 0.001)
	assert.InDelta(t, 6, m.Rates.CustomersPerHour, 0.001)
	assert.Equal(t, int64(3), m.Totals.Customers)
	assert.Equal(t, int64(10), m.Totals.Schemes)

	mem.FailNext("reports.totals", errors.New("timeout"))
	_, err = s.GetMetrics(context.Background())
	assert.Error(t, err)
}

func TestSimulator_ResetClearsSession(t *testing.T) {
	mem := memstore.New()
	s := newTestSimulator(t, mem, nil)
	require.NoError(t, s.Start(context.Background()))
	_, err := s.CreateCustomers(context.Background(), 2)
	require.NoError(t, err)

	s.Reset()

	status := s.GetStatus()
	assert.Equal(t, entities.SimulationStateStopped, status.State)
	assert.Zero(t, status.Session.CustomersCreated)
	assert.Nil(t, status.StartedAt)
	assert.Equal(t, "0s", status.Uptime)

	customers, _, _, _ := mem.Count()
	assert.Equal(t, 2, customers, "persisted rows survive a reset")
}

func TestRunTick_RecoversPanicAndCountsErrors(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), nil)

	boom := &task{name: "boom", interval: time.Hour, run: func(context.Context) error { panic("nil map") }}
	s.runTick(context.Background(), boom)

	failing := &task{name: "failing", interval: time.Hour, run: func(context.Context) error { return errors.New("db down") }}
	s.runTick(context.Background(), failing)

	assert.Equal(t, int64(1), boom.fired.Load())
	assert.Equal(t, int64(1), boom.failed.Load())
	assert.Equal(t, int64(1), failing.failed.Load())
	assert.Equal(t, int64(2), s.GetStatus().Session.TickErrors)
}

func TestFire_SkipsOverlappingTicks(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), nil)

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := &task{name: "slow", interval: time.Hour, run: func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}}

	s.fire(context.Background(), slow)
	<-started
	s.fire(context.Background(), slow)

	assert.Equal(t, int64(1), slow.skipped.Load())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Equal(t, int64(1), slow.fired.Load())
	assert.Zero(t, slow.inFlight.Load())
}

func TestFire_OverlapsWhenAllowed(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), func(c *Config) { c.SkipOverlappingTicks = false })

	release := make(chan struct{})
	started := make(chan struct{}, 2)
	slow := &task{name: "slow", interval: time.Hour, run: func(context.Context) error {
		started <- struct{}{}
		<-release
		return nil
	}}

	s.fire(context.Background(), slow)
	s.fire(context.Background(), slow)
	<-started
	<-started
	assert.Equal(t, int32(2), slow.inFlight.Load())
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))
	assert.Zero(t, slow.skipped.Load())
	assert.Equal(t, int64(2), slow.fired.Load())
}

func TestTicks_SettlementAndNAVCounters(t *testing.T) {
	mem := memstore.New()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "50")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	folio := mem.AddFolio(customer.ID, scheme.ID)
	for i := 0; i < 10; i++ {
		mem.AddTransaction(memstore.Submitted(folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "1000", time.Now().Add(-time.Hour)))
	}
	s := newTestSimulator(t, mem, nil)
	ctx := context.Background()

	require.NoError(t, s.settlementTick(ctx))
	require.NoError(t, s.navTick(ctx))

	session := s.GetStatus().Session
	assert.Equal(t, int64(1), session.NAVUpdates)
	assert.Equal(t, int64(10), session.TransactionsSettled+session.TransactionsRejected+session.SettlementRetries)
}

func firedTotal(s *Simulator) int64 {
	var n int64
	for _, t := range s.tasks {
		n += t.fired.Load()
	}
	return n
}

func TestStopAndPause_NoFiringAfterReturn(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), func(c *Config) {
		c.CustomerInterval = 50 * time.Microsecond
		c.FolioInterval = 50 * time.Microsecond
		c.TransactionInterval = 50 * time.Microsecond
		c.SettlementInterval = 50 * time.Microsecond
		c.SIPInterval = 50 * time.Microsecond
		c.NAVInterval = 50 * time.Microsecond
	})
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		require.NoError(t, s.Start(ctx))
		time.Sleep(2 * time.Millisecond)

		if i%2 == 0 {
			s.Stop()
		} else {
			require.NoError(t, s.Pause())
		}
		s.inflight.Wait()
		before := firedTotal(s)

		time.Sleep(3 * time.Millisecond)
		s.inflight.Wait()
		require.Equal(t, before, firedTotal(s), "cycle %d: a tick fired after the tasks were deactivated", i)

		if i%2 == 1 {
			s.Stop()
		}
	}
	assert.Positive(t, firedTotal(s))
}

// blockingSchemes holds EnsureDefaults until release is closed
type blockingSchemes struct {
	repositories.SchemeRepository
	entered chan struct{}
	release chan struct{}
}

func (b *blockingSchemes) EnsureDefaults(ctx context.Context, schemes []*entities.Scheme) (int, error) {
	close(b.entered)
	<-b.release
	return b.SchemeRepository.EnsureDefaults(ctx, schemes)
}

func TestSimulator_SeedingDoesNotHoldStateLock(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), nil)
	blocked := &blockingSchemes{
		SchemeRepository: s.store.Schemes,
		entered:          make(chan struct{}),
		release:          make(chan struct{}),
	}
	s.store.Schemes = blocked

	started := make(chan error, 1)
	go func() { started <- s.Start(context.Background()) }()
	<-blocked.entered

	status := make(chan entities.SimulationStatus, 1)
	go func() { status <- s.GetStatus() }()
	select {
	case st := <-status:
		assert.Equal(t, entities.SimulationStateStopped, st.State)
	case <-time.After(time.Second):
		t.Fatal("GetStatus blocked while schemes were being seeded")
	}

	require.NoError(t, s.Start(context.Background()), "a concurrent start is a no-op")
	assert.ErrorIs(t, s.Pause(), ErrNotRunning)

	close(blocked.release)
	require.NoError(t, <-started)
	assert.Equal(t, entities.SimulationStateRunning, s.State())
}

func TestSimulator_StartAfterShutdownIsRefused(t *testing.T) {
	s := newTestSimulator(t, memstore.New(), nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, s.Shutdown(ctx))

	assert.ErrorIs(t, s.Start(context.Background()), ErrShutdown)
	assert.Equal(t, entities.SimulationStateStopped, s.State())
}

// countingTransactions records how many creates the simulator attempted
type countingTransactions struct {
	repositories.TransactionRepository
	calls atomic.Int32
}

func (c *countingTransactions) Create(ctx context.Context, txn *entities.Transaction) error {
	c.calls.Add(1)
	return c.TransactionRepository.Create(ctx, txn)
}

func TestTransactionTick_ContinuesPastFailedFolio(t *testing.T) {
	mem := memstore.New()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "50")
	for i := 0; i < 5; i++ {
		customer := mem.AddCustomer(entities.KYCStatusCompleted)
		mem.AddFolio(customer.ID, scheme.ID)
	}
	s := newTestSimulator(t, mem, nil)
	counting := &countingTransactions{TransactionRepository: s.store.Transactions}
	s.store.Transactions = counting
	ctx := context.Background()

	// with five folios at 70% each, a tick attempting two or more is near certain
	for i := 0; i < 20; i++ {
		callsBefore := counting.calls.Load()
		createdBefore := s.GetStatus().Session.TransactionsCreated

		mem.FailNext("transactions.create", errors.New("connection reset by peer"))
		err := s.transactionTick(ctx)

		attempted := counting.calls.Load() - callsBefore
		created := s.GetStatus().Session.TransactionsCreated - createdBefore
		if attempted < 2 {
			continue
		}

		require.Error(t, err)
		assert.Equal(t, int64(attempted-1), created, "the remaining folios still get a transaction")
		return
	}
	t.Fatal("no tick attempted more than one folio")
}
