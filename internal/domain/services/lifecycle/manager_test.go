package lifecycle_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/lifecycle"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/settlement"
	"github.com/amc-simulator/amc_simulator/internal/testutil/memstore"
)

type fixture struct {
	mem      *memstore.Memory
	manager  *lifecycle.Manager
	customer *entities.Customer
	folio    *entities.Folio
}

func setup(t *testing.T) fixture {
	t.Helper()
	mem := memstore.New()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "10.0000")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	folio := mem.AddFolio(customer.ID, scheme.ID)
	return fixture{
		mem:      mem,
		manager:  lifecycle.NewManager(mem.Store(), zap.NewNop()),
		customer: customer,
		folio:    folio,
	}
}

func (f fixture) addSIP(t *testing.T, status entities.SIPStatus, next time.Time) *entities.SIPRegistration {
	t.Helper()
	reg := &entities.SIPRegistration{
		ID:                uuid.New(),
		FolioID:           f.folio.ID,
		SchemeID:          f.folio.SchemeID,
		Amount:            decimal.NewFromInt(1000),
		Frequency:         entities.SIPFrequencyMonthly,
		StartDate:         next,
		NextExecutionDate: &next,
		Status:            status,
	}
	require.NoError(t, f.mem.Store().SIPs.Create(context.Background(), reg))
	return reg
}

func TestSIPLifecycle_PauseResumeCancel(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	reg := f.addSIP(t, entities.SIPStatusActive, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))

	paused, err := f.manager.PauseSIP(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SIPStatusPaused, paused.Status)
	assert.Equal(t, entities.SIPStatusPaused, f.mem.SIP(reg.ID).Status)

	_, err = f.manager.PauseSIP(ctx, reg.ID)
	assert.ErrorIs(t, err, entities.ErrSIPNotActive)

	resumed, err := f.manager.ResumeSIP(ctx, reg.ID)
	require.NoError(t, err)
	stored := f.mem.SIP(reg.ID)
	assert.Equal(t, entities.SIPStatusActive, stored.Status)
	require.NotNil(t, stored.NextExecutionDate)
	assert.False(t, stored.NextExecutionDate.Before(time.Now().UTC().Add(-time.Minute)), "missed instalments are skipped")
	assert.Equal(t, resumed.NextExecutionDate, stored.NextExecutionDate)

	cancelled, err := f.manager.CancelSIP(ctx, reg.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.SIPStatusCancelled, cancelled.Status)
	stored = f.mem.SIP(reg.ID)
	assert.Equal(t, entities.SIPStatusCancelled, stored.Status)
	assert.Nil(t, stored.NextExecutionDate)

	_, err = f.manager.ResumeSIP(ctx, reg.ID)
	assert.ErrorIs(t, err, entities.ErrSIPTerminal)
	_, err = f.manager.CancelSIP(ctx, reg.ID)
	assert.ErrorIs(t, err, entities.ErrSIPTerminal)
}

func TestResumeSIP_ActiveIsNoop(t *testing.T) {
	f := setup(t)
	next := time.Now().UTC().Add(24 * time.Hour).Truncate(time.Second)
	reg := f.addSIP(t, entities.SIPStatusActive, next)
	f.mem.FailNext("sips.update_status", assert.AnError)

	got, err := f.manager.ResumeSIP(context.Background(), reg.ID)
	require.NoError(t, err, "no write is attempted")
	assert.Equal(t, entities.SIPStatusActive, got.Status)
	assert.True(t, f.mem.SIP(reg.ID).NextExecutionDate.Equal(next))
}

// completingSIPs completes the registration between the read and the write,
// the way a concurrent SIP run finishing its last instalment would
type completingSIPs struct {
	repositories.SIPRepository
	mem *memstore.Memory
}

func (s completingSIPs) UpdateStatus(ctx context.Context, reg *entities.SIPRegistration, prev entities.SIPStatus) error {
	done := *s.mem.SIP(reg.ID)
	done.Status = entities.SIPStatusCompleted
	done.NextExecutionDate = nil
	done.ExecutionCount++
	if err := s.SIPRepository.UpdateExecution(ctx, &done, done.ExecutionCount-1); err != nil {
		return err
	}
	return s.SIPRepository.UpdateStatus(ctx, reg, prev)
}

func TestPauseSIP_LosesToConcurrentCompletion(t *testing.T) {
	f := setup(t)
	reg := f.addSIP(t, entities.SIPStatusActive, time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC))

	store := f.mem.Store()
	store.SIPs = completingSIPs{SIPRepository: store.SIPs, mem: f.mem}
	manager := lifecycle.NewManager(store, zap.NewNop())

	_, err := manager.PauseSIP(context.Background(), reg.ID)
	assert.ErrorIs(t, err, repositories.ErrConcurrentUpdate)
	assert.Equal(t, entities.SIPStatusCompleted, f.mem.SIP(reg.ID).Status, "terminal state is not overwritten")
}

func TestPauseSIP_NotFound(t *testing.T) {
	f := setup(t)
	_, err := f.manager.PauseSIP(context.Background(), uuid.New())
	assert.ErrorIs(t, err, repositories.ErrNotFound)
}

func TestCloseFolio(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := f.mem.AddFolio(f.customer.ID, f.folio.SchemeID)

	closure, err := f.manager.CloseFolio(ctx, f.folio.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.FolioStatusClosed, closure.Folio.Status)
	require.NotNil(t, closure.Folio.ClosedAt)
	assert.Equal(t, 1, closure.RemainingActive)

	closedAt := *closure.Folio.ClosedAt
	again, err := f.manager.CloseFolio(ctx, f.folio.ID)
	require.NoError(t, err)
	assert.True(t, again.Folio.ClosedAt.Equal(closedAt), "close date is kept")
	assert.Equal(t, 1, again.RemainingActive)

	tradable, err := f.mem.Store().Folios.FindRandomTradable(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tradable, 1)
	assert.Equal(t, other.ID, tradable[0].ID)
}

func TestCancelTransaction(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "5000", time.Now().UTC().Add(-time.Hour))
	f.mem.AddTransaction(txn)

	got, err := f.manager.CancelTransaction(ctx, txn.ID)
	require.NoError(t, err)
	assert.Equal(t, entities.TransactionStatusCancelled, got.Status)
	assert.Equal(t, entities.TransactionStatusCancelled, f.mem.Transaction(txn.ID).Status)

	_, err = f.manager.CancelTransaction(ctx, txn.ID)
	assert.ErrorIs(t, err, entities.ErrInvalidTransition)

	// cancelled transactions never reach the registrar
	claimed, err := f.mem.Store().Transactions.ClaimPendingSettlement(ctx, time.Now().UTC(), time.Now().UTC(), time.Now().UTC().Add(settlement.DefaultClaimLease), 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)
}
