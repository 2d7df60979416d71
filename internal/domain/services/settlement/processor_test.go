package settlement_test

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
	"github.com/amc-simulator/amc_simulator/internal/domain/services/holdings"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/settlement"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/internal/testutil/memstore"
	"github.com/amc-simulator/amc_simulator/pkg/retry"
)

var submittedAt = time.Date(2024, 3, 6, 10, 0, 0, 0, time.UTC)

// scriptedClient returns the queued outcomes in order
type scriptedClient struct {
	outcomes []settlement.Outcome
	errs     []error
	calls    int
}

func (c *scriptedClient) Submit(_ context.Context, _ *entities.Transaction) (settlement.Outcome, error) {
	i := c.calls
	c.calls++
	if i < len(c.errs) && c.errs[i] != nil {
		return settlement.Outcome{}, c.errs[i]
	}
	return c.outcomes[i], nil
}

type fixture struct {
	mem    *memstore.Memory
	folio  *entities.Folio
	scheme *entities.Scheme
}

func setup(t *testing.T) fixture {
	t.Helper()
	mem := memstore.New()
	scheme := mem.AddScheme("EQ1", entities.SchemeCategoryEquity, "10.0000")
	customer := mem.AddCustomer(entities.KYCStatusCompleted)
	folio := mem.AddFolio(customer.ID, scheme.ID)
	return fixture{mem: mem, folio: folio, scheme: scheme}
}

func (f fixture) processor(client settlement.Client) *settlement.Processor {
	store := f.mem.Store()
	agg := holdings.NewAggregator(store.Holdings, zap.NewNop())
	txp := transaction.NewProcessor(store.Tx, store.Transactions, agg, zap.NewNop())
	return settlement.NewProcessor(store, txp, client, settlement.Config{
		BatchSize: 20,
		Retry:     retry.SettlementPolicy(),
	}, zap.NewNop())
}

func (f fixture) submit(mode entities.TransactionMode, amount string) *entities.Transaction {
	txType := entities.TransactionTypePurchase
	if mode == entities.TransactionModeRedemption {
		txType = entities.TransactionTypeRedemption
	}
	txn := memstore.Submitted(f.folio, txType, mode, amount, submittedAt)
	f.mem.AddTransaction(txn)
	return txn
}

func TestProcessPending_SuccessProcessesAndSettles(t *testing.T) {
	f := setup(t)
	txn := f.submit(entities.TransactionModeLumpsum, "5000")
	client := &scriptedClient{outcomes: []settlement.Outcome{{Result: settlement.ResultSuccess, Reference: "CAMS20240306000001"}}}

	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Fetched)
	assert.Equal(t, 1, result.Settled)

	stored := f.mem.Transaction(txn.ID)
	assert.Equal(t, entities.TransactionStatusProcessed, stored.Status)
	assert.Equal(t, entities.SettlementStatusProcessed, stored.CAMSStatus)
	require.NotNil(t, stored.CAMSReference)
	assert.Equal(t, "CAMS20240306000001", *stored.CAMSReference)
	assert.True(t, stored.Units.Decimal.Equal(decimal.NewFromInt(500)))

	h := f.mem.Holding(f.folio.ID, f.scheme.ID)
	require.NotNil(t, h)
	assert.True(t, h.TotalUnits.Equal(decimal.NewFromInt(500)))
	assert.True(t, h.CurrentValue.Equal(decimal.NewFromInt(5000)))
}

func TestProcessPending_AlreadyProcessedOnlySettles(t *testing.T) {
	f := setup(t)
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeSIP, "1000", submittedAt)
	require.NoError(t, txn.Process(decimal.NewFromInt(10), submittedAt))
	f.mem.AddTransaction(txn)
	f.mem.SetHolding(entities.Holding{
		FolioID: f.folio.ID, SchemeID: f.scheme.ID,
		TotalUnits: decimal.NewFromInt(100), InvestedAmount: decimal.NewFromInt(1000), CurrentValue: decimal.NewFromInt(1000),
	})
	client := &scriptedClient{outcomes: []settlement.Outcome{{Result: settlement.ResultSuccess, Reference: "CAMS1"}}}

	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Settled)

	assert.True(t, f.mem.Transaction(txn.ID).IsSettled())
	assert.True(t, f.mem.Holding(f.folio.ID, f.scheme.ID).TotalUnits.Equal(decimal.NewFromInt(100)), "holding is not applied twice")
}

func TestProcessPending_BusinessRejection(t *testing.T) {
	f := setup(t)
	submitted := f.submit(entities.TransactionModeLumpsum, "5000")

	processed := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeSIP, "1000", submittedAt.Add(time.Minute))
	require.NoError(t, processed.Process(decimal.NewFromInt(10), submittedAt))
	f.mem.AddTransaction(processed)

	client := &scriptedClient{outcomes: []settlement.Outcome{
		{Result: settlement.ResultRejected, Reason: "PAN validation failed"},
		{Result: settlement.ResultRejected, Reason: "Cut-off time exceeded"},
	}}

	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rejected)

	stored := f.mem.Transaction(submitted.ID)
	assert.Equal(t, entities.TransactionStatusRejected, stored.Status)
	assert.Equal(t, entities.SettlementStatusRejected, stored.CAMSStatus)
	assert.Equal(t, "PAN validation failed", *stored.RejectionReason)

	stored = f.mem.Transaction(processed.ID)
	assert.Equal(t, entities.TransactionStatusProcessed, stored.Status, "allotted units stay allotted")
	assert.Equal(t, entities.SettlementStatusRejected, stored.CAMSStatus)
}

func TestProcessPending_TechnicalFailureSchedulesRetry(t *testing.T) {
	f := setup(t)
	txn := f.submit(entities.TransactionModeLumpsum, "5000")
	client := &scriptedClient{outcomes: []settlement.Outcome{
		{Result: settlement.ResultTechnicalFailure, Reason: settlement.TechnicalFailureReason},
	}}
	p := f.processor(client)

	before := time.Now().UTC()
	result, err := p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RetriesScheduled)

	stored := f.mem.Transaction(txn.ID)
	assert.Equal(t, entities.TransactionStatusSubmitted, stored.Status)
	assert.Equal(t, entities.SettlementStatusPending, stored.CAMSStatus)
	assert.Equal(t, 1, stored.SettlementAttempts)
	require.NotNil(t, stored.NextSettlementAt)
	assert.WithinDuration(t, before.Add(time.Minute), *stored.NextSettlementAt, 5*time.Second)

	// not eligible again until the backoff elapses
	result, err = p.ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, 1, client.calls)
}

func TestProcessPending_RetriesExhausted(t *testing.T) {
	f := setup(t)
	txn := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "5000", submittedAt)
	txn.SettlementAttempts = 2
	f.mem.AddTransaction(txn)
	client := &scriptedClient{outcomes: []settlement.Outcome{
		{Result: settlement.ResultTechnicalFailure, Reason: settlement.TechnicalFailureReason},
	}}

	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.RetriesExhausted)

	stored := f.mem.Transaction(txn.ID)
	assert.Equal(t, entities.TransactionStatusRejected, stored.Status)
	assert.Equal(t, entities.SettlementStatusFailed, stored.CAMSStatus)
	assert.Equal(t, settlement.ExhaustedReason, *stored.RejectionReason)
}

func TestProcessPending_RegistrarUnavailableEndsBatch(t *testing.T) {
	f := setup(t)
	first := f.submit(entities.TransactionModeLumpsum, "5000")
	second := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "1000", submittedAt.Add(time.Minute))
	f.mem.AddTransaction(second)

	client := &scriptedClient{
		outcomes: []settlement.Outcome{{}, {Result: settlement.ResultSuccess, Reference: "CAMS2"}},
		errs:     []error{settlement.ErrRegistrarUnavailable},
	}

	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.True(t, result.Interrupted)
	assert.Equal(t, 1, client.calls)
	assert.Equal(t, entities.SettlementStatusPending, f.mem.Transaction(first.ID).CAMSStatus)
	assert.Equal(t, entities.SettlementStatusPending, f.mem.Transaction(second.ID).CAMSStatus)
}

func TestProcessPending_SubmissionErrorContinues(t *testing.T) {
	f := setup(t)
	first := f.submit(entities.TransactionModeLumpsum, "5000")
	second := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "1000", submittedAt.Add(time.Minute))
	f.mem.AddTransaction(second)

	client := &scriptedClient{
		outcomes: []settlement.Outcome{{}, {Result: settlement.ResultSuccess, Reference: "CAMS2"}},
		errs:     []error{errors.New("connection reset")},
	}

	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Settled)
	assert.Equal(t, entities.SettlementStatusPending, f.mem.Transaction(first.ID).CAMSStatus)
	assert.True(t, f.mem.Transaction(second.ID).IsSettled())
}

func TestProcessPending_ClaimedBatchIsHiddenFromOverlappingRun(t *testing.T) {
	f := setup(t)
	first := f.submit(entities.TransactionModeLumpsum, "5000")
	second := memstore.Submitted(f.folio, entities.TransactionTypePurchase, entities.TransactionModeLumpsum, "1000", submittedAt.Add(time.Minute))
	f.mem.AddTransaction(second)

	client := &scriptedClient{errs: []error{settlement.ErrRegistrarUnavailable}}
	before := time.Now().UTC()
	result, err := f.processor(client).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Fetched)
	assert.True(t, result.Interrupted)

	for _, txn := range []*entities.Transaction{first, second} {
		stored := f.mem.Transaction(txn.ID)
		require.NotNil(t, stored.NextSettlementAt)
		assert.WithinDuration(t, before.Add(settlement.DefaultClaimLease), *stored.NextSettlementAt, 5*time.Second)
	}

	// a second worker running inside the lease sees nothing to do
	other := &scriptedClient{}
	result, err = f.processor(other).ProcessPending(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Zero(t, other.calls)
}
