package repositories

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
)

var (
	// ErrNotFound is returned when a row does not exist
	ErrNotFound = errors.New("record not found")
	// ErrFolioLimitReached is returned when a customer already holds the
	// maximum number of ACTIVE folios
	ErrFolioLimitReached = errors.New("customer has reached the maximum number of active folios")
	// ErrConcurrentUpdate is returned when a conditional update matched no
	// row because another writer changed it first
	ErrConcurrentUpdate = errors.New("row was modified concurrently")
	// ErrDuplicate is returned on unique key violations
	ErrDuplicate = errors.New("duplicate record")
)

// Transactor runs fn inside a storage transaction carried by the context.
// Nested calls join the outer transaction.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// CustomerRepository defines persistence for customers
type CustomerRepository interface {
	Create(ctx context.Context, customer *entities.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Customer, error)
	// FindRandomWithoutFolio returns customers that hold no folio yet
	FindRandomWithoutFolio(ctx context.Context, limit int) ([]*entities.Customer, error)
	// FindRandomBelowFolioCap returns customers holding at least one but
	// fewer than maxFolios ACTIVE folios
	FindRandomBelowFolioCap(ctx context.Context, maxFolios, limit int) ([]entities.FolioCandidate, error)
	FindRandom(ctx context.Context, limit int) ([]*entities.Customer, error)
}

// SchemeRepository defines persistence for fund schemes
type SchemeRepository interface {
	// EnsureDefaults inserts schemes whose code does not exist yet and
	// returns how many were inserted
	EnsureDefaults(ctx context.Context, schemes []*entities.Scheme) (int, error)
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Scheme, error)
	ListActive(ctx context.Context) ([]*entities.Scheme, error)
	FindRandomActive(ctx context.Context) (*entities.Scheme, error)
	UpdateNAV(ctx context.Context, id uuid.UUID, nav decimal.Decimal, navDate time.Time) error
}

// NAVHistoryRepository defines persistence for the NAV time series
type NAVHistoryRepository interface {
	// Upsert writes the NAV for (scheme, date), replacing an existing value
	Upsert(ctx context.Context, entry *entities.NAVHistory) error
	PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	TopMovers(ctx context.Context, day time.Time, limit int) ([]entities.NAVMover, error)
}

// FolioRepository defines persistence for folios
type FolioRepository interface {
	// CreateWithinLimit inserts the folio only while the customer holds fewer
	// than maxFolios ACTIVE folios, as a single conditional statement
	CreateWithinLimit(ctx context.Context, folio *entities.Folio, maxFolios int) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Folio, error)
	// FindRandomTradable returns ACTIVE folios whose customer completed KYC
	FindRandomTradable(ctx context.Context, limit int) ([]*entities.Folio, error)
	CountActiveByCustomer(ctx context.Context, customerID uuid.UUID) (int, error)
	// Close marks the folio CLOSED, keeping the first close date
	Close(ctx context.Context, id uuid.UUID, at time.Time) error
}

// TransactionRepository defines persistence for transactions
type TransactionRepository interface {
	Create(ctx context.Context, txn *entities.Transaction) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error)
	// ClaimPendingSettlement leases up to limit transactions with settlement
	// PENDING, submitted before submittedBefore, whose retry time has passed,
	// by setting next_settlement_at to leaseUntil. Returned oldest first. A
	// claimed row is not returned to another caller until the lease expires.
	ClaimPendingSettlement(ctx context.Context, submittedBefore, now, leaseUntil time.Time, limit int) ([]*entities.Transaction, error)
	// MarkProcessed persists units, nav and dates only if the row is still
	// SUBMITTED; otherwise ErrConcurrentUpdate
	MarkProcessed(ctx context.Context, txn *entities.Transaction) error
	// MarkSettled sets settlement PROCESSED with a registrar reference
	MarkSettled(ctx context.Context, id uuid.UUID, reference string, at time.Time) error
	// Reject sets the settlement status and reason. The lifecycle moves to
	// REJECTED only if it is still SUBMITTED.
	Reject(ctx context.Context, id uuid.UUID, settlement entities.SettlementStatus, reason string, at time.Time) error
	ScheduleSettlementRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error
	// Cancel moves a SUBMITTED transaction to CANCELLED; otherwise
	// ErrConcurrentUpdate
	Cancel(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SIPRepository defines persistence for SIP registrations
type SIPRepository interface {
	Create(ctx context.Context, sip *entities.SIPRegistration) error
	GetByID(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error)
	FindDue(ctx context.Context, now time.Time) ([]*entities.SIPRegistration, error)
	// UpdateExecution persists the advanced schedule if the stored execution
	// count still equals prevCount and the row is ACTIVE
	UpdateExecution(ctx context.Context, sip *entities.SIPRegistration, prevCount int) error
	// UpdateStatus persists a pause, resume or cancellation if the stored
	// status is still prev
	UpdateStatus(ctx context.Context, sip *entities.SIPRegistration, prev entities.SIPStatus) error
}

// HoldingRepository is written only by the holdings aggregator
type HoldingRepository interface {
	// UpsertContribution adds the signed units and amount to the holding in
	// one atomic statement, inserting it when absent
	UpsertContribution(ctx context.Context, folioID, schemeID uuid.UUID, units, amount decimal.Decimal, at time.Time) error
	// Revalue sets current_value from the scheme's latest NAV
	Revalue(ctx context.Context, folioID, schemeID uuid.UUID) error
	Get(ctx context.Context, folioID, schemeID uuid.UUID) (*entities.Holding, error)
	RevalueAll(ctx context.Context) (int64, error)
	// Rebuild re-derives every holding from PROCESSED transactions
	Rebuild(ctx context.Context) (int64, error)
}

// ReportRepository serves read-only aggregates for metrics and maintenance
type ReportRepository interface {
	Totals(ctx context.Context) (entities.PersistedTotals, error)
	Audit(ctx context.Context, staleBefore time.Time, epsilon decimal.Decimal) (entities.AuditReport, error)
	PortfolioSummary(ctx context.Context) (entities.ReconciliationReport, error)
	ModeStatistics(ctx context.Context, from, to time.Time) ([]entities.ModeStatistics, error)
	NewEntityCounts(ctx context.Context, from, to time.Time) (customers, folios int64, err error)
}

// Store bundles every repository the simulation needs
type Store struct {
	Tx           Transactor
	Customers    CustomerRepository
	Schemes      SchemeRepository
	NAVHistory   NAVHistoryRepository
	Folios       FolioRepository
	Transactions TransactionRepository
	SIPs         SIPRepository
	Holdings     HoldingRepository
	Reports      ReportRepository
}
