package sip_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/holdings"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/sip"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/internal/testutil/memstore"
)

func newExecutor(mem *memstore.Memory) *sip.Executor {
	store := mem.Store()
	agg := holdings.NewAggregator(store.Holdings, zap.NewNop())
	txp := transaction.NewProcessor(store.Tx, store.Transactions, agg, zap.NewNop())
	return sip.NewExecutor(store, txp, zap.NewNop())
}

func seedSIP(t *testing.T, mem *memstore.Memory, maxExecutions int) (*entities.SIPRegistration, *entities.Folio) {
	t.Helper()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "20")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	folio := mem.AddFolio(customer.ID, scheme.ID)

	start := time.Date(2020, 1, 15, 0, 0, 0, 0, time.UTC)
	reg := &entities.SIPRegistration{
		ID:                uuid.New(),
		FolioID:           folio.ID,
		SchemeID:          scheme.ID,
		Amount:            decimal.NewFromInt(1000),
		Frequency:         entities.SIPFrequencyMonthly,
		StartDate:         start,
		MaxExecutions:     &maxExecutions,
		NextExecutionDate: &start,
		Status:            entities.SIPStatusActive,
	}
	require.NoError(t, mem.Store().SIPs.Create(context.Background(), reg))
	return reg, folio
}

func TestExecuteDue_CompletesAfterMaxExecutions(t *testing.T) {
	mem := memstore.New()
	reg, folio := seedSIP(t, mem, 2)
	executor := newExecutor(mem)

	result, err := executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Executed)
	assert.Equal(t, 0, result.Completed)

	stored := mem.SIP(reg.ID)
	assert.Equal(t, 1, stored.ExecutionCount)
	assert.Equal(t, entities.SIPStatusActive, stored.Status)
	assert.Equal(t, time.Date(2020, 2, 15, 0, 0, 0, 0, time.UTC), *stored.NextExecutionDate)

	result, err = executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Completed)

	stored = mem.SIP(reg.ID)
	assert.Equal(t, 2, stored.ExecutionCount)
	assert.Equal(t, entities.SIPStatusCompleted, stored.Status)
	assert.Nil(t, stored.NextExecutionDate)

	result, err = executor.ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)

	h := mem.Holding(folio.ID, reg.SchemeID)
	require.NotNil(t, h)
	assert.True(t, h.TotalUnits.Equal(decimal.NewFromInt(100)))
	assert.True(t, h.InvestedAmount.Equal(decimal.NewFromInt(2000)))

	sipTxns := 0
	for _, txn := range mem.Transactions {
		if txn.SIPID != nil && *txn.SIPID == reg.ID {
			sipTxns++
			assert.Equal(t, entities.TransactionModeSIP, txn.Mode)
			assert.True(t, txn.IsProcessed())
			assert.Equal(t, entities.SettlementStatusPending, txn.CAMSStatus)
		}
	}
	assert.Equal(t, 2, sipTxns)
}

func TestExecuteDue_FailureRollsBackInstalment(t *testing.T) {
	mem := memstore.New()
	reg, folio := seedSIP(t, mem, 12)
	mem.FailNext("sips.update_execution", errors.New("connection lost"))

	result, err := newExecutor(mem).ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)

	stored := mem.SIP(reg.ID)
	assert.Equal(t, 0, stored.ExecutionCount)
	assert.Nil(t, mem.Holding(folio.ID, reg.SchemeID))
	_, _, txns, _ := mem.Count()
	assert.Zero(t, txns)
}

func TestExecuteDue_SkipsPausedRegistration(t *testing.T) {
	mem := memstore.New()
	reg, _ := seedSIP(t, mem, 12)
	mem.SIPs[reg.ID].Status = entities.SIPStatusPaused

	result, err := newExecutor(mem).ExecuteDue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Due)
}
