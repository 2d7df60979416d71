package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SchemeCategory is the asset class of a fund scheme
type SchemeCategory string

const (
	SchemeCategoryEquity SchemeCategory = "EQUITY"
	SchemeCategoryDebt   SchemeCategory = "DEBT"
	SchemeCategoryHybrid SchemeCategory = "HYBRID"
)

// NAVPrecision is the number of decimal places a NAV is stored with
const NAVPrecision = 4

// MinimumNAV is the floor below which a simulated NAV never falls
var MinimumNAV = decimal.RequireFromString("1.0000")

// Volatility returns the maximum fractional daily NAV move for the category
func (c SchemeCategory) Volatility() decimal.Decimal {
	switch c {
	case SchemeCategoryEquity:
		return decimal.RequireFromString("0.02")
	case SchemeCategoryDebt:
		return decimal.RequireFromString("0.002")
	case SchemeCategoryHybrid:
		return decimal.RequireFromString("0.01")
	default:
		return decimal.RequireFromString("0.01")
	}
}

// Scheme is a fund definition with its current NAV
type Scheme struct {
	ID            uuid.UUID       `json:"id" db:"id"`
	SchemeCode    string          `json:"scheme_code" db:"scheme_code"`
	SchemeName    string          `json:"scheme_name" db:"scheme_name"`
	Category      SchemeCategory  `json:"category" db:"category"`
	SubCategory   string          `json:"sub_category" db:"sub_category"`
	NAV           decimal.Decimal `json:"nav" db:"nav"`
	NAVDate       time.Time       `json:"nav_date" db:"nav_date"`
	MinInvestment decimal.Decimal `json:"min_investment" db:"min_investment"`
	MinSIPAmount  decimal.Decimal `json:"min_sip_amount" db:"min_sip_amount"`
	ExitLoad      decimal.Decimal `json:"exit_load" db:"exit_load"`
	ExpenseRatio  decimal.Decimal `json:"expense_ratio" db:"expense_ratio"`
	IsActive      bool            `json:"is_active" db:"is_active"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at" db:"updated_at"`
}

// NAVHistory is an immutable (scheme, date, nav) record, unique per scheme and date
type NAVHistory struct {
	SchemeID  uuid.UUID       `json:"scheme_id" db:"scheme_id"`
	NAVDate   time.Time       `json:"nav_date" db:"nav_date"`
	NAV       decimal.Decimal `json:"nav" db:"nav"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
}

// NAVChange records a single NAV mutation produced by the NAV update task
type NAVChange struct {
	SchemeID   uuid.UUID       `json:"scheme_id"`
	SchemeCode string          `json:"scheme_code"`
	Previous   decimal.Decimal `json:"previous"`
	Current    decimal.Decimal `json:"current"`
}
