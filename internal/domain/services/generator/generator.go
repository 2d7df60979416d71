package generator

import (
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
)

// Kind is the weighted transaction category picked by the transaction task
type Kind string

const (
	KindSIP        Kind = "SIP"
	KindLumpsum    Kind = "LUMPSUM"
	KindSTP        Kind = "STP"
	KindRedemption Kind = "REDEMPTION"
)

type weighted[T any] struct {
	value  T
	weight int
}

var kindWeights = []weighted[Kind]{
	{KindSIP, 40},
	{KindLumpsum, 30},
	{KindSTP, 20},
	{KindRedemption, 10},
}

var kycWeights = []weighted[entities.KYCStatus]{
	{entities.KYCStatusCompleted, 80},
	{entities.KYCStatusPending, 15},
	{entities.KYCStatusRejected, 5},
}

var frequencyWeights = []weighted[entities.SIPFrequency]{
	{entities.SIPFrequencyMonthly, 80},
	{entities.SIPFrequencyQuarterly, 15},
	{entities.SIPFrequencyYearly, 5},
}

var riskProfiles = []entities.RiskProfile{
	entities.RiskProfileConservative,
	entities.RiskProfileModerate,
	entities.RiskProfileAggressive,
}

// amountRange is an inclusive INR range drawn in multiples of step
type amountRange struct {
	min, max, step int64
}

var kindAmounts = map[Kind]amountRange{
	KindSIP:        {500, 25000, 100},
	KindLumpsum:    {5000, 500000, 1000},
	KindSTP:        {1000, 50000, 500},
	KindRedemption: {1000, 100000, 500},
}

var sipAmounts = amountRange{500, 25000, 500}

// Generator produces plausible synthetic records. It is safe for
// concurrent use.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a generator with a fixed seed, for reproducible runs and tests
func New(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// NewRandom returns a generator seeded from the runtime source
func NewRandom() *Generator {
	return New(rand.Uint64())
}

// Float64 returns a uniform draw in [0, 1)
func (g *Generator) Float64() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.Float64()
}

// IntN returns a uniform int in [0, n)
func (g *Generator) IntN(n int) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.rng.IntN(n)
}

// Chance reports true with probability p
func (g *Generator) Chance(p float64) bool {
	return g.Float64() < p
}

func pick[T any](g *Generator, items []T) T {
	return items[g.IntN(len(items))]
}

func pickWeighted[T any](g *Generator, items []weighted[T]) T {
	total := 0
	for _, it := range items {
		total += it.weight
	}
	n := g.IntN(total)
	for _, it := range items {
		if n < it.weight {
			return it.value
		}
		n -= it.weight
	}
	return items[len(items)-1].value
}

func (g *Generator) amount(r amountRange) decimal.Decimal {
	steps := (r.max - r.min) / r.step
	n := r.min + int64(g.IntN(int(steps)+1))*r.step
	return decimal.NewFromInt(n)
}

func (g *Generator) digits(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('0' + g.IntN(10)))
	}
	return b.String()
}

func (g *Generator) letters(n int) string {
	var b strings.Builder
	for i := 0; i < n; i++ {
		b.WriteByte(byte('A' + g.IntN(26)))
	}
	return b.String()
}

// PAN returns an individual permanent account number: five letters with
// 'P' in fourth position, four digits, one letter.
func (g *Generator) PAN() string {
	prefix := []byte(g.letters(5))
	prefix[3] = 'P'
	return string(prefix) + g.digits(4) + g.letters(1)
}

// Phone returns a ten digit Indian mobile number starting 6-9
func (g *Generator) Phone() string {
	return fmt.Sprintf("%d%s", 6+g.IntN(4), g.digits(9))
}

// Customer returns a new synthetic customer
func (g *Generator) Customer(now time.Time) *entities.Customer {
	first := pick(g, firstNames)
	last := pick(g, lastNames)
	loc := pick(g, locations)

	age := 21 + g.IntN(50)
	dob := time.Date(now.Year()-age, time.Month(1+g.IntN(12)), 1+g.IntN(28), 0, 0, 0, 0, time.UTC)

	return &entities.Customer{
		ID:          uuid.New(),
		PAN:         g.PAN(),
		FirstName:   first,
		LastName:    last,
		Email:       fmt.Sprintf("%s.%s%s@%s", strings.ToLower(first), strings.ToLower(last), g.digits(3), pick(g, emailDomains)),
		Phone:       g.Phone(),
		DateOfBirth: dob,
		Address:     fmt.Sprintf("%d, %s", 1+g.IntN(999), pick(g, streets)),
		City:        loc.city,
		State:       loc.state,
		Pincode:     loc.pinPrefix + g.digits(3),
		KYCStatus:   pickWeighted(g, kycWeights),
		RiskProfile: pick(g, riskProfiles),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Folio returns a new ACTIVE folio for the customer in the scheme
func (g *Generator) Folio(customerID, schemeID uuid.UUID, now time.Time) *entities.Folio {
	folio := &entities.Folio{
		ID:           uuid.New(),
		FolioNumber:  fmt.Sprintf("%s/%s", g.digits(8), g.digits(2)),
		CustomerID:   customerID,
		SchemeID:     schemeID,
		Status:       entities.FolioStatusActive,
		JointHolders: []string{},
		OpenedAt:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if g.Chance(0.1) {
		folio.JointHolders = append(folio.JointHolders, pick(g, firstNames)+" "+pick(g, lastNames))
	}
	return folio
}

// TransactionKind draws a weighted transaction kind
func (g *Generator) TransactionKind() Kind {
	return pickWeighted(g, kindWeights)
}

// Transaction returns a SUBMITTED transaction of the given kind for the folio
func (g *Generator) Transaction(folio *entities.Folio, kind Kind, now time.Time) *entities.Transaction {
	txType, mode := kind.TypeAndMode()
	return entities.NewTransaction(folio.ID, folio.SchemeID, txType, mode, g.amount(kindAmounts[kind]), now)
}

// TypeAndMode maps a kind to the persisted transaction type and mode
func (k Kind) TypeAndMode() (entities.TransactionType, entities.TransactionMode) {
	switch k {
	case KindSIP:
		return entities.TransactionTypePurchase, entities.TransactionModeSIP
	case KindSTP:
		return entities.TransactionTypeSwitchIn, entities.TransactionModeSTP
	case KindRedemption:
		return entities.TransactionTypeRedemption, entities.TransactionModeRedemption
	default:
		return entities.TransactionTypePurchase, entities.TransactionModeLumpsum
	}
}

// SIP returns an ACTIVE registration for the folio. The first instalment
// falls within the next 30 days. Half the registrations are bounded by an
// instalment count, the rest by an end date.
func (g *Generator) SIP(folio *entities.Folio, now time.Time) *entities.SIPRegistration {
	y, m, d := now.Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, g.IntN(31))
	next := start

	sip := &entities.SIPRegistration{
		ID:                uuid.New(),
		FolioID:           folio.ID,
		SchemeID:          folio.SchemeID,
		Amount:            g.amount(sipAmounts),
		Frequency:         pickWeighted(g, frequencyWeights),
		StartDate:         start,
		NextExecutionDate: &next,
		Status:            entities.SIPStatusActive,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if g.Chance(0.5) {
		max := 12 + g.IntN(109)
		sip.MaxExecutions = &max
	} else {
		end := start.AddDate(1+g.IntN(10), 0, 0)
		sip.EndDate = &end
	}
	return sip
}
