package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// FolioStatus represents the state of a folio
type FolioStatus string

const (
	FolioStatusActive FolioStatus = "ACTIVE"
	FolioStatusClosed FolioStatus = "CLOSED"
)

// DefaultMaxFoliosPerCustomer caps ACTIVE folios held by one customer
const DefaultMaxFoliosPerCustomer = 100

// Folio links one customer to one scheme. Folios are closed, never deleted.
type Folio struct {
	ID           uuid.UUID      `json:"id" db:"id"`
	FolioNumber  string         `json:"folio_number" db:"folio_number"`
	CustomerID   uuid.UUID      `json:"customer_id" db:"customer_id"`
	SchemeID     uuid.UUID      `json:"scheme_id" db:"scheme_id"`
	Status       FolioStatus    `json:"status" db:"status"`
	JointHolders pq.StringArray `json:"joint_holders" db:"joint_holders"`
	OpenedAt     time.Time      `json:"opened_at" db:"opened_at"`
	ClosedAt     *time.Time     `json:"closed_at,omitempty" db:"closed_at"`
	CreatedAt    time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at" db:"updated_at"`
}

// Close marks the folio CLOSED
func (f *Folio) Close(now time.Time) {
	if f.Status == FolioStatusClosed {
		return
	}
	f.Status = FolioStatusClosed
	f.ClosedAt = &now
	f.UpdatedAt = now
}

// FolioCandidate is a customer eligible for another folio
type FolioCandidate struct {
	CustomerID uuid.UUID `db:"customer_id"`
	FolioCount int       `db:"folio_count"`
}
