package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

// SimulationState is the displayed orchestrator state
type SimulationState string

const (
	SimulationStateStopped SimulationState = "STOPPED"
	SimulationStateRunning SimulationState = "RUNNING"
	SimulationStatePaused  SimulationState = "PAUSED"
)

// SessionCounters are the in-process statistics of the current session.
// They are maintained for ticks and manual triggers alike.
type SessionCounters struct {
	CustomersCreated     int64 `json:"customers_created"`
	FoliosCreated        int64 `json:"folios_created"`
	SIPsRegistered       int64 `json:"sips_registered"`
	TransactionsCreated  int64 `json:"transactions_created"`
	TransactionsSettled  int64 `json:"transactions_settled"`
	TransactionsRejected int64 `json:"transactions_rejected"`
	SettlementRetries    int64 `json:"settlement_retries"`
	SIPsExecuted         int64 `json:"sips_executed"`
	NAVUpdates           int64 `json:"nav_updates"`
	TickErrors           int64 `json:"tick_errors"`
}

// TaskStatus describes one recurring task
type TaskStatus struct {
	Name     string        `json:"name"`
	Interval time.Duration `json:"interval"`
	Active   bool          `json:"active"`
	Running  bool          `json:"running"`
	Fired    int64         `json:"fired"`
	Skipped  int64         `json:"skipped"`
	Failed   int64         `json:"failed"`
}

// SimulationStatus is returned by the status operation
type SimulationStatus struct {
	State     SimulationState `json:"state"`
	IsRunning bool            `json:"is_running"`
	IsPaused  bool            `json:"is_paused"`
	StartedAt *time.Time      `json:"started_at,omitempty"`
	Uptime    string          `json:"uptime"`
	Session   SessionCounters `json:"session"`
	Tasks     []TaskStatus    `json:"tasks"`
}

// PersistedTotals are row counts read from storage
type PersistedTotals struct {
	Customers         int64 `json:"customers" db:"customers"`
	Folios            int64 `json:"folios" db:"folios"`
	Transactions      int64 `json:"transactions" db:"transactions"`
	ActiveSIPs        int64 `json:"active_sips" db:"active_sips"`
	Schemes           int64 `json:"schemes" db:"schemes"`
	PendingSettlement int64 `json:"pending_settlement" db:"pending_settlement"`
}

// Rates are per-hour creation rates over the session wall-clock time
type Rates struct {
	CustomersPerHour    float64 `json:"customers_per_hour"`
	FoliosPerHour       float64 `json:"folios_per_hour"`
	TransactionsPerHour float64 `json:"transactions_per_hour"`
}

// SimulationMetrics is returned by the metrics operation
type SimulationMetrics struct {
	State          SimulationState `json:"state"`
	ElapsedSeconds float64         `json:"elapsed_seconds"`
	Session        SessionCounters `json:"session"`
	Totals         PersistedTotals `json:"totals"`
	Rates          Rates           `json:"rates"`
}

// BulkResult reports a manual bulk-create trigger
type BulkResult struct {
	Requested int      `json:"requested"`
	Created   int      `json:"created"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors,omitempty"`
}

// AuditReport holds the findings of the transaction audit
type AuditReport struct {
	OrphanedTransactions int64 `json:"orphaned_transactions" db:"orphaned"`
	StaleSubmitted       int64 `json:"stale_submitted" db:"stale_submitted"`
	HoldingsDrift        int64 `json:"holdings_drift" db:"holdings_drift"`
}

// HasFindings reports whether any check found a problem
func (r AuditReport) HasFindings() bool {
	return r.OrphanedTransactions > 0 || r.StaleSubmitted > 0 || r.HoldingsDrift > 0
}

// ReconciliationReport summarizes a portfolio reconciliation
type ReconciliationReport struct {
	HoldingsRevalued int64           `json:"holdings_revalued"`
	AUM              decimal.Decimal `json:"aum" db:"aum"`
	Customers        int64           `json:"customers" db:"customers"`
	Folios           int64           `json:"folios" db:"folios"`
}

// ModeStatistics is one row of the per-mode daily breakdown
type ModeStatistics struct {
	Mode  TransactionMode `json:"mode" db:"transaction_mode"`
	Count int64           `json:"count" db:"count"`
	Total decimal.Decimal `json:"total" db:"total"`
}

// NAVMover is a scheme whose NAV moved notably over the day
type NAVMover struct {
	SchemeCode    string          `json:"scheme_code" db:"scheme_code"`
	PreviousNAV   decimal.Decimal `json:"previous_nav" db:"previous_nav"`
	CurrentNAV    decimal.Decimal `json:"current_nav" db:"current_nav"`
	ChangePercent decimal.Decimal `json:"change_percent" db:"change_percent"`
}

// DailyStatistics is the nightly snapshot for one calendar day
type DailyStatistics struct {
	Date         time.Time        `json:"date"`
	ByMode       []ModeStatistics `json:"by_mode"`
	NewCustomers int64            `json:"new_customers"`
	NewFolios    int64            `json:"new_folios"`
	TopMovers    []NAVMover       `json:"top_movers"`
}
