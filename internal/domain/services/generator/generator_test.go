package generator

import (
	"regexp"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
)

var (
	panPattern   = regexp.MustCompile(`^[A-Z]{3}P[A-Z][0-9]{4}[A-Z]$`)
	phonePattern = regexp.MustCompile(`^[6-9][0-9]{9}$`)
	now          = time.Date(2024, 6, 15, 12, 0, 0, 0, time.UTC)
)

func TestGenerator_Customer(t *testing.T) {
	g := New(42)
	for i := 0; i < 200; i++ {
		c := g.Customer(now)
		assert.Regexp(t, panPattern, c.PAN)
		assert.Regexp(t, phonePattern, c.Phone)
		assert.Len(t, c.Pincode, 6)
		assert.Contains(t, c.Email, "@")
		assert.NotEqual(t, uuid.Nil, c.ID)
		assert.Contains(t, []entities.KYCStatus{
			entities.KYCStatusCompleted, entities.KYCStatusPending, entities.KYCStatusRejected,
		}, c.KYCStatus)
		age := now.Year() - c.DateOfBirth.Year()
		assert.GreaterOrEqual(t, age, 21)
	}
}

func TestGenerator_Deterministic(t *testing.T) {
	a, b := New(7), New(7)
	for i := 0; i < 20; i++ {
		assert.Equal(t, a.PAN(), b.PAN())
	}
}

func TestGenerator_TransactionKindDistribution(t *testing.T) {
	g := New(1)
	const n = 20000
	counts := map[Kind]int{}
	for i := 0; i < n; i++ {
		counts[g.TransactionKind()]++
	}

	expect := map[Kind]float64{KindSIP: 0.40, KindLumpsum: 0.30, KindSTP: 0.20, KindRedemption: 0.10}
	for kind, p := range expect {
		assert.InDelta(t, p, float64(counts[kind])/n, 0.02, "kind %s", kind)
	}
}

func TestGenerator_TransactionAmounts(t *testing.T) {
	g := New(3)
	folio := g.Folio(uuid.New(), uuid.New(), now)

	for _, kind := range []Kind{KindSIP, KindLumpsum, KindSTP, KindRedemption} {
		r := kindAmounts[kind]
		for i := 0; i < 100; i++ {
			txn := g.Transaction(folio, kind, now)
			assert.True(t, txn.Amount.GreaterThanOrEqual(decimal.NewFromInt(r.min)))
			assert.True(t, txn.Amount.LessThanOrEqual(decimal.NewFromInt(r.max)))
			assert.True(t, txn.Amount.Mod(decimal.NewFromInt(r.step)).IsZero())
			assert.Equal(t, entities.TransactionStatusSubmitted, txn.Status)
			assert.Equal(t, folio.SchemeID, txn.SchemeID)
		}
	}
}

func TestKind_TypeAndMode(t *testing.T) {
	tests := []struct {
		kind Kind
		typ  entities.TransactionType
		mode entities.TransactionMode
	}{
		{KindSIP, entities.TransactionTypePurchase, entities.TransactionModeSIP},
		{KindLumpsum, entities.TransactionTypePurchase, entities.TransactionModeLumpsum},
		{KindSTP, entities.TransactionTypeSwitchIn, entities.TransactionModeSTP},
		{KindRedemption, entities.TransactionTypeRedemption, entities.TransactionModeRedemption},
	}
	for _, tt := range tests {
		typ, mode := tt.kind.TypeAndMode()
		assert.Equal(t, tt.typ, typ)
		assert.Equal(t, tt.mode, mode)
	}
}

func TestGenerator_SIP(t *testing.T) {
	g := New(9)
	folio := g.Folio(uuid.New(), uuid.New(), now)

	for i := 0; i < 100; i++ {
		sip := g.SIP(folio, now)
		require.NotNil(t, sip.NextExecutionDate)
		assert.Equal(t, sip.StartDate, *sip.NextExecutionDate)
		assert.False(t, sip.StartDate.Before(now.Truncate(24*time.Hour)))
		assert.True(t, (sip.MaxExecutions == nil) != (sip.EndDate == nil), "exactly one end condition")
		assert.Equal(t, entities.SIPStatusActive, sip.Status)
	}
}

func TestDefaultSchemes(t *testing.T) {
	schemes := DefaultSchemes(now)
	require.NotEmpty(t, schemes)

	codes := map[string]bool{}
	for _, s := range schemes {
		assert.False(t, codes[s.SchemeCode], "duplicate code %s", s.SchemeCode)
		codes[s.SchemeCode] = true
		assert.True(t, s.NAV.GreaterThanOrEqual(entities.MinimumNAV))
		assert.True(t, s.IsActive)
	}
}
