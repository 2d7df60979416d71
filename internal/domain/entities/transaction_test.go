package entities

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

// Wednesday
var wed = time.Date(2024, 1, 3, 10, 0, 0, 0, time.UTC)

func TestTransaction_Process(t *testing.T) {
	txn := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeLumpsum, d("5000"), wed)

	require.NoError(t, txn.Process(d("10.0000"), wed))

	assert.True(t, txn.IsProcessed())
	assert.True(t, txn.Units.Valid)
	assert.True(t, txn.Units.Decimal.Equal(d("500.000000")))
	assert.True(t, txn.NAV.Decimal.Equal(d("10")))
	assert.Equal(t, SettlementStatusPending, txn.CAMSStatus)
	require.NotNil(t, txn.SettlementDate)
	assert.Equal(t, time.Thursday, txn.SettlementDate.Weekday())
}

func TestTransaction_ProcessRoundsUnitsToSixPlaces(t *testing.T) {
	txn := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeSIP, d("1000"), wed)
	require.NoError(t, txn.Process(d("33.3333"), wed))
	assert.Equal(t, "30.000030", txn.Units.Decimal.StringFixed(UnitsPrecision))
}

func TestTransaction_ProcessTwiceIsRejected(t *testing.T) {
	txn := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeLumpsum, d("5000"), wed)
	require.NoError(t, txn.Process(d("10"), wed))
	units := txn.Units.Decimal

	err := txn.Process(d("20"), wed)
	assert.ErrorIs(t, err, ErrAlreadyProcessed)
	assert.True(t, txn.Units.Decimal.Equal(units))
}

func TestTransaction_ProcessGuards(t *testing.T) {
	txn := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeLumpsum, d("5000"), wed)
	assert.ErrorIs(t, txn.Process(decimal.Zero, wed), ErrInvalidNAV)

	require.NoError(t, txn.Reject(SettlementStatusRejected, "Invalid bank details", wed))
	assert.ErrorIs(t, txn.Process(d("10"), wed), ErrInvalidTransition)
	assert.ErrorIs(t, txn.Cancel(wed), ErrInvalidTransition)
}

func TestTransaction_SettlementDateSkipsWeekends(t *testing.T) {
	friday := time.Date(2024, 1, 5, 10, 0, 0, 0, time.UTC)

	purchase := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeLumpsum, d("100"), friday)
	require.NoError(t, purchase.Process(d("10"), friday))
	assert.Equal(t, time.Date(2024, 1, 8, 10, 0, 0, 0, time.UTC), *purchase.SettlementDate)

	redemption := NewTransaction(uuid.New(), uuid.New(), TransactionTypeRedemption, TransactionModeRedemption, d("100"), friday)
	require.NoError(t, redemption.Process(d("10"), friday))
	assert.Equal(t, time.Date(2024, 1, 10, 10, 0, 0, 0, time.UTC), *redemption.SettlementDate)
}

func TestTransaction_SignedContribution(t *testing.T) {
	purchase := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeLumpsum, d("1000"), wed)
	units, amount := purchase.SignedContribution()
	assert.True(t, units.IsZero(), "unprocessed transactions contribute nothing")
	assert.True(t, amount.IsZero())

	require.NoError(t, purchase.Process(d("10"), wed))
	units, amount = purchase.SignedContribution()
	assert.True(t, units.Equal(d("100")))
	assert.True(t, amount.Equal(d("1000")))

	redemption := NewTransaction(uuid.New(), uuid.New(), TransactionTypeRedemption, TransactionModeRedemption, d("400"), wed)
	require.NoError(t, redemption.Process(d("10"), wed))
	units, amount = redemption.SignedContribution()
	assert.True(t, units.Equal(d("-40")))
	assert.True(t, amount.Equal(d("-400")))
}

func TestTransaction_IsSettled(t *testing.T) {
	txn := NewTransaction(uuid.New(), uuid.New(), TransactionTypePurchase, TransactionModeLumpsum, d("1000"), wed)
	require.NoError(t, txn.Process(d("10"), wed))
	assert.False(t, txn.IsSettled())

	txn.CAMSStatus = SettlementStatusProcessed
	assert.True(t, txn.IsSettled())
}

func TestTransactionNumber(t *testing.T) {
	id := uuid.MustParse("1a2b3c4d-0000-0000-0000-000000000000")
	assert.Equal(t, "TXN20240103-1A2B3C4D", TransactionNumber(id, wed))
}
