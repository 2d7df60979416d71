package transaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/holdings"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/internal/testutil/memstore"
)

var now = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

type fixture struct {
	mem       *memstore.Memory
	processor *transaction.Processor
	folio     *entities.Folio
	scheme    *entities.Scheme
}

func setup(t *testing.T) fixture {
	t.Helper()
	mem := memstore.New()
	store := mem.Store()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "10")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	folio := mem.AddFolio(customer.ID, scheme.ID)

	agg := holdings.NewAggregator(store.Holdings, zap.NewNop())
	return fixture{
		mem:       mem,
		processor: transaction.NewProcessor(store.Tx, store.Transactions, agg, zap.NewNop()),
		folio:     folio,
		scheme:    scheme,
	}
}

func TestProcessor_ProcessIsIdempotent(t *testing.T) {
	f := setup(t)
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "5000", now)
	f.mem.AddTransaction(txn)

	require.NoError(t, f.processor.Process(context.Background(), txn, decimal.NewFromInt(10)))
	once := f.mem.Holding(f.folio.ID, f.scheme.ID)

	err := f.processor.Process(context.Background(), txn, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, entities.ErrAlreadyProcessed)
	assert.Equal(t, once, f.mem.Holding(f.folio.ID, f.scheme.ID))
}

func TestProcessor_StaleCopyIsCaughtByStorage(t *testing.T) {
	f := setup(t)
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "5000", now)
	f.mem.AddTransaction(txn)

	stale := *txn
	require.NoError(t, f.processor.Process(context.Background(), txn, decimal.NewFromInt(10)))

	err := f.processor.Process(context.Background(), &stale, decimal.NewFromInt(10))
	assert.ErrorIs(t, err, repositories.ErrConcurrentUpdate)
	assert.False(t, stale.IsProcessed(), "in-memory copy is restored on failure")

	h := f.mem.Holding(f.folio.ID, f.scheme.ID)
	assert.True(t, h.TotalUnits.Equal(decimal.NewFromInt(500)))
}

func TestProcessor_HoldingFailureRollsBackStatus(t *testing.T) {
	f := setup(t)
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "5000", now)
	f.mem.AddTransaction(txn)
	f.mem.FailNext("holdings.upsert", errors.New("deadlock detected"))

	err := f.processor.Process(context.Background(), txn, decimal.NewFromInt(10))
	require.Error(t, err)

	stored := f.mem.Transaction(txn.ID)
	assert.Equal(t, entities.TransactionStatusSubmitted, stored.Status)
	assert.Nil(t, f.mem.Holding(f.folio.ID, f.scheme.ID))

	require.NoError(t, f.processor.Process(context.Background(), txn, decimal.NewFromInt(10)))
	assert.Equal(t, entities.TransactionStatusProcessed, f.mem.Transaction(txn.ID).Status)
}

func TestProcessor_RecordProcessed(t *testing.T) {
	f := setup(t)
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeSIP, "1000", now)

	err := f.processor.RecordProcessed(context.Background(), txn)
	assert.ErrorIs(t, err, holdings.ErrNotProcessed)

	require.NoError(t, txn.Process(decimal.NewFromInt(10), now))
	require.NoError(t, f.processor.RecordProcessed(context.Background(), txn))

	stored := f.mem.Transaction(txn.ID)
	require.NotNil(t, stored)
	assert.Equal(t, entities.SettlementStatusPending, stored.CAMSStatus)
	assert.True(t, f.mem.Holding(f.folio.ID, f.scheme.ID).TotalUnits.Equal(decimal.NewFromInt(100)))
}
