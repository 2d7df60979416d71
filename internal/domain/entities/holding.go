package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Holding is the running position of one folio in one scheme. It is derived
// from PROCESSED transactions and is not independently authoritative.
type Holding struct {
	FolioID        uuid.UUID       `json:"folio_id" db:"folio_id"`
	SchemeID       uuid.UUID       `json:"scheme_id" db:"scheme_id"`
	TotalUnits     decimal.Decimal `json:"total_units" db:"total_units"`
	InvestedAmount decimal.Decimal `json:"invested_amount" db:"invested_amount"`
	CurrentValue   decimal.Decimal `json:"current_value" db:"current_value"`
	LastUpdated    time.Time       `json:"last_updated" db:"last_updated"`
}

// HoldingKey identifies a holding
type HoldingKey struct {
	FolioID  uuid.UUID
	SchemeID uuid.UUID
}

// Key returns the holding's aggregate key
func (h *Holding) Key() HoldingKey {
	return HoldingKey{FolioID: h.FolioID, SchemeID: h.SchemeID}
}
