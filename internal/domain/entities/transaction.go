package entities

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionType represents the economic direction of a transaction
type TransactionType string

const (
	TransactionTypePurchase   TransactionType = "PURCHASE"
	TransactionTypeRedemption TransactionType = "REDEMPTION"
	TransactionTypeSwitchIn   TransactionType = "SWITCH_IN"
	TransactionTypeSwitchOut  TransactionType = "SWITCH_OUT"
	TransactionTypeDividend   TransactionType = "DIVIDEND"
)

// TransactionMode represents how the transaction was initiated
type TransactionMode string

const (
	TransactionModeSIP        TransactionMode = "SIP"
	TransactionModeLumpsum    TransactionMode = "LUMPSUM"
	TransactionModeSTP        TransactionMode = "STP"
	TransactionModeSWP        TransactionMode = "SWP"
	TransactionModeRedemption TransactionMode = "REDEMPTION"
	TransactionModeDividend   TransactionMode = "DIVIDEND"
)

// TransactionStatus is the lifecycle state of a transaction
type TransactionStatus string

const (
	TransactionStatusSubmitted TransactionStatus = "SUBMITTED"
	TransactionStatusProcessed TransactionStatus = "PROCESSED"
	TransactionStatusRejected  TransactionStatus = "REJECTED"
	TransactionStatusCancelled TransactionStatus = "CANCELLED"
)

// SettlementStatus is the registrar clearing state, independent of lifecycle
type SettlementStatus string

const (
	SettlementStatusPending   SettlementStatus = "PENDING"
	SettlementStatusProcessed SettlementStatus = "PROCESSED"
	SettlementStatusRejected  SettlementStatus = "REJECTED"
	SettlementStatusFailed    SettlementStatus = "FAILED"
)

// UnitsPrecision is the number of decimal places allotted units are stored with
const UnitsPrecision = 6

var (
	ErrAlreadyProcessed  = errors.New("transaction already processed")
	ErrInvalidTransition = errors.New("invalid transaction status transition")
	ErrInvalidNAV        = errors.New("nav must be positive")
)

// Transaction is an append-only intent record. Only the lifecycle and
// settlement status fields and settlement metadata change after insert.
type Transaction struct {
	ID                 uuid.UUID           `json:"id" db:"id"`
	TransactionNumber  string              `json:"transaction_number" db:"transaction_number"`
	FolioID            uuid.UUID           `json:"folio_id" db:"folio_id"`
	SchemeID           uuid.UUID           `json:"scheme_id" db:"scheme_id"`
	SIPID              *uuid.UUID          `json:"sip_id,omitempty" db:"sip_id"`
	Type               TransactionType     `json:"transaction_type" db:"transaction_type"`
	Mode               TransactionMode     `json:"transaction_mode" db:"transaction_mode"`
	Amount             decimal.Decimal     `json:"amount" db:"amount"`
	Units              decimal.NullDecimal `json:"units" db:"units"`
	NAV                decimal.NullDecimal `json:"nav" db:"nav"`
	Status             TransactionStatus   `json:"status" db:"status"`
	CAMSStatus         SettlementStatus    `json:"cams_status" db:"cams_status"`
	CAMSReference      *string             `json:"cams_reference,omitempty" db:"cams_reference"`
	RejectionReason    *string             `json:"rejection_reason,omitempty" db:"rejection_reason"`
	SettlementAttempts int                 `json:"settlement_attempts" db:"settlement_attempts"`
	NextSettlementAt   *time.Time          `json:"next_settlement_at,omitempty" db:"next_settlement_at"`
	TransactionDate    time.Time           `json:"transaction_date" db:"transaction_date"`
	ProcessedAt        *time.Time          `json:"processed_at,omitempty" db:"processed_at"`
	SettlementDate     *time.Time          `json:"settlement_date,omitempty" db:"settlement_date"`
	CreatedAt          time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt          time.Time           `json:"updated_at" db:"updated_at"`
}

// NewTransaction builds a SUBMITTED transaction with settlement PENDING
func NewTransaction(folioID, schemeID uuid.UUID, txType TransactionType, mode TransactionMode, amount decimal.Decimal, now time.Time) *Transaction {
	id := uuid.New()
	return &Transaction{
		ID:                id,
		TransactionNumber: TransactionNumber(id, now),
		FolioID:           folioID,
		SchemeID:          schemeID,
		Type:              txType,
		Mode:              mode,
		Amount:            amount,
		Status:            TransactionStatusSubmitted,
		CAMSStatus:        SettlementStatusPending,
		TransactionDate:   now,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
}

// TransactionNumber derives a human readable reference such as TXN20240101-1A2B3C4D
func TransactionNumber(id uuid.UUID, at time.Time) string {
	return "TXN" + at.Format("20060102") + "-" + shortID(id)
}

func shortID(id uuid.UUID) string {
	return strings.ToUpper(hex.EncodeToString(id[:4]))
}

// IsProcessed reports whether units have already been allotted
func (t *Transaction) IsProcessed() bool {
	return t.Status == TransactionStatusProcessed
}

// IsSettled reports whether both lifecycle and settlement reached PROCESSED
func (t *Transaction) IsSettled() bool {
	return t.Status == TransactionStatusProcessed && t.CAMSStatus == SettlementStatusProcessed
}

// IsOutflow reports whether the transaction reduces the holding
func (t *Transaction) IsOutflow() bool {
	switch {
	case t.Mode == TransactionModeRedemption, t.Mode == TransactionModeSWP:
		return true
	case t.Type == TransactionTypeRedemption, t.Type == TransactionTypeSwitchOut:
		return true
	}
	return false
}

// Process allots units at nav and moves the transaction to PROCESSED.
// Units are amount/nav rounded to six places. Settlement is due one
// business day later, three for outflows.
func (t *Transaction) Process(nav decimal.Decimal, now time.Time) error {
	if t.IsProcessed() {
		return ErrAlreadyProcessed
	}
	if t.Status != TransactionStatusSubmitted {
		return ErrInvalidTransition
	}
	if !nav.IsPositive() {
		return ErrInvalidNAV
	}

	settleIn := 1
	if t.IsOutflow() {
		settleIn = 3
	}
	settlementDate := AddBusinessDays(now, settleIn)

	t.Units = decimal.NewNullDecimal(t.Amount.DivRound(nav, UnitsPrecision))
	t.NAV = decimal.NewNullDecimal(nav.Round(NAVPrecision))
	t.Status = TransactionStatusProcessed
	t.ProcessedAt = &now
	t.SettlementDate = &settlementDate
	t.UpdatedAt = now
	return nil
}

// Reject moves a SUBMITTED transaction to REJECTED with the given settlement status
func (t *Transaction) Reject(settlement SettlementStatus, reason string, now time.Time) error {
	if t.Status != TransactionStatusSubmitted {
		return ErrInvalidTransition
	}
	t.Status = TransactionStatusRejected
	t.CAMSStatus = settlement
	t.RejectionReason = &reason
	t.UpdatedAt = now
	return nil
}

// Cancel moves a SUBMITTED transaction to CANCELLED
func (t *Transaction) Cancel(now time.Time) error {
	if t.Status != TransactionStatusSubmitted {
		return ErrInvalidTransition
	}
	t.Status = TransactionStatusCancelled
	t.UpdatedAt = now
	return nil
}

// SignedContribution returns the units and amount this transaction adds to
// its holding. Outflows contribute negatively. Unprocessed transactions
// contribute nothing.
func (t *Transaction) SignedContribution() (units, amount decimal.Decimal) {
	if !t.IsProcessed() || !t.Units.Valid {
		return decimal.Zero, decimal.Zero
	}
	if t.IsOutflow() {
		return t.Units.Decimal.Neg(), t.Amount.Neg()
	}
	return t.Units.Decimal, t.Amount
}

// AddBusinessDays advances from by n weekdays, skipping Saturdays and Sundays
func AddBusinessDays(from time.Time, n int) time.Time {
	d := from
	for added := 0; added < n; {
		d = d.AddDate(0, 0, 1)
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			added++
		}
	}
	return d
}
