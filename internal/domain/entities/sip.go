package entities

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SIPFrequency is the instalment cadence
type SIPFrequency string

const (
	SIPFrequencyMonthly   SIPFrequency = "MONTHLY"
	SIPFrequencyQuarterly SIPFrequency = "QUARTERLY"
	SIPFrequencyYearly    SIPFrequency = "YEARLY"
)

// SIPStatus is the registration state. COMPLETED and CANCELLED are terminal.
type SIPStatus string

const (
	SIPStatusActive    SIPStatus = "ACTIVE"
	SIPStatusPaused    SIPStatus = "PAUSED"
	SIPStatusCancelled SIPStatus = "CANCELLED"
	SIPStatusCompleted SIPStatus = "COMPLETED"
)

var (
	ErrSIPNotActive = errors.New("sip is not active")
	ErrSIPTerminal  = errors.New("sip is in a terminal state")
)

// SIPRegistration is a recurring purchase instruction for one folio
type SIPRegistration struct {
	ID                uuid.UUID       `json:"id" db:"id"`
	FolioID           uuid.UUID       `json:"folio_id" db:"folio_id"`
	SchemeID          uuid.UUID       `json:"scheme_id" db:"scheme_id"`
	Amount            decimal.Decimal `json:"amount" db:"amount"`
	Frequency         SIPFrequency    `json:"frequency" db:"frequency"`
	StartDate         time.Time       `json:"start_date" db:"start_date"`
	EndDate           *time.Time      `json:"end_date,omitempty" db:"end_date"`
	MaxExecutions     *int            `json:"max_executions,omitempty" db:"max_executions"`
	NextExecutionDate *time.Time      `json:"next_execution_date,omitempty" db:"next_execution_date"`
	ExecutionCount    int             `json:"execution_count" db:"execution_count"`
	Status            SIPStatus       `json:"status" db:"status"`
	LastExecutedAt    *time.Time      `json:"last_executed_at,omitempty" db:"last_executed_at"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the registration can no longer change
func (s *SIPRegistration) IsTerminal() bool {
	return s.Status == SIPStatusCompleted || s.Status == SIPStatusCancelled
}

// IsDue reports whether an instalment should run at now
func (s *SIPRegistration) IsDue(now time.Time) bool {
	if s.Status != SIPStatusActive || s.NextExecutionDate == nil {
		return false
	}
	if s.NextExecutionDate.After(now) {
		return false
	}
	if s.MaxExecutions != nil && s.ExecutionCount >= *s.MaxExecutions {
		return false
	}
	if s.EndDate != nil && s.NextExecutionDate.After(*s.EndDate) {
		return false
	}
	return true
}

// Execute creates and processes the PURCHASE/SIP transaction for the
// current instalment at nav, then advances the schedule.
func (s *SIPRegistration) Execute(nav decimal.Decimal, now time.Time) (*Transaction, error) {
	if s.Status != SIPStatusActive || s.NextExecutionDate == nil {
		return nil, ErrSIPNotActive
	}

	txn := NewTransaction(s.FolioID, s.SchemeID, TransactionTypePurchase, TransactionModeSIP, s.Amount, now)
	sipID := s.ID
	txn.SIPID = &sipID
	if err := txn.Process(nav, now); err != nil {
		return nil, err
	}

	s.Advance(now)
	return txn, nil
}

// Advance records one execution and moves the next execution date forward.
// Max executions is checked before the end date. On completion the next
// execution date is cleared so the registration is never due again.
func (s *SIPRegistration) Advance(now time.Time) {
	base := s.StartDate
	if s.NextExecutionDate != nil {
		base = *s.NextExecutionDate
	}
	next := s.Frequency.Next(base)

	s.ExecutionCount++
	s.LastExecutedAt = &now
	s.UpdatedAt = now

	switch {
	case s.MaxExecutions != nil && s.ExecutionCount >= *s.MaxExecutions:
		s.complete()
	case s.EndDate != nil && next.After(*s.EndDate):
		s.complete()
	default:
		s.NextExecutionDate = &next
	}
}

func (s *SIPRegistration) complete() {
	s.Status = SIPStatusCompleted
	s.NextExecutionDate = nil
}

// Pause suspends an ACTIVE registration
func (s *SIPRegistration) Pause(now time.Time) error {
	if s.Status != SIPStatusActive {
		return ErrSIPNotActive
	}
	s.Status = SIPStatusPaused
	s.UpdatedAt = now
	return nil
}

// Resume reactivates a PAUSED registration. Missed instalments are skipped:
// the next execution date is rolled forward past now.
func (s *SIPRegistration) Resume(now time.Time) error {
	if s.IsTerminal() {
		return ErrSIPTerminal
	}
	if s.Status != SIPStatusPaused {
		return nil
	}
	if s.NextExecutionDate != nil {
		next := *s.NextExecutionDate
		for next.Before(now) {
			next = s.Frequency.Next(next)
		}
		s.NextExecutionDate = &next
	}
	s.Status = SIPStatusActive
	s.UpdatedAt = now
	return nil
}

// Cancel terminates the registration
func (s *SIPRegistration) Cancel(now time.Time) error {
	if s.IsTerminal() {
		return ErrSIPTerminal
	}
	s.Status = SIPStatusCancelled
	s.NextExecutionDate = nil
	s.UpdatedAt = now
	return nil
}

// Next returns the instalment date following from
func (f SIPFrequency) Next(from time.Time) time.Time {
	switch f {
	case SIPFrequencyQuarterly:
		return addMonths(from, 3)
	case SIPFrequencyYearly:
		return addMonths(from, 12)
	default:
		return addMonths(from, 1)
	}
}

// addMonths adds n calendar months, clamping to the last day of the target
// month so Jan 31 + 1 month is Feb 28/29 rather than early March.
func addMonths(t time.Time, n int) time.Time {
	y, m, d := t.Date()
	firstOfTarget := time.Date(y, m+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	lastDay := firstOfTarget.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(firstOfTarget.Year(), firstOfTarget.Month(), d, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}
