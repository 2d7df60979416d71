package maintenance

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
)

// Job names
const (
	JobNAVHistoryPrune         = "nav_history_prune"
	JobTransactionAudit        = "transaction_audit"
	JobPortfolioReconciliation = "portfolio_reconciliation"
	JobDailyStatistics         = "daily_statistics"
	JobHoldingsRebuild         = "holdings_rebuild"
)

// JobsConfig holds schedules and thresholds of the built-in jobs
type JobsConfig struct {
	PruneSchedule          string
	AuditSchedule          string
	ReconciliationSchedule string
	StatisticsSchedule     string

	NAVRetention   time.Duration
	StaleSubmitted time.Duration
	DriftEpsilon   decimal.Decimal
	TopMoversLimit int
}

// DefaultJobsConfig returns nightly pruning at 02:00, a weekly audit on
// Sunday 03:00, monthly reconciliation on the 1st at 04:00 and the daily
// statistics snapshot at 00:05.
func DefaultJobsConfig() JobsConfig {
	return JobsConfig{
		PruneSchedule:          "0 0 2 * * *",
		AuditSchedule:          "0 0 3 * * 0",
		ReconciliationSchedule: "0 0 4 1 * *",
		StatisticsSchedule:     "0 5 0 * * *",
		NAVRetention:           5 * 365 * 24 * time.Hour,
		StaleSubmitted:         24 * time.Hour,
		DriftEpsilon:           decimal.New(1, -6),
		TopMoversLimit:         5,
	}
}

// Jobs builds every maintenance job against store
func Jobs(store *repositories.Store, config JobsConfig, logger *zap.Logger) []Job {
	now := func() time.Time { return time.Now().UTC() }
	return []Job{
		&NAVHistoryPrune{store: store, schedule: config.PruneSchedule, retention: config.NAVRetention, logger: logger, now: now},
		&TransactionAudit{store: store, schedule: config.AuditSchedule, staleAfter: config.StaleSubmitted, epsilon: config.DriftEpsilon, logger: logger, now: now},
		&PortfolioReconciliation{store: store, schedule: config.ReconciliationSchedule, logger: logger},
		&DailyStatisticsJob{store: store, schedule: config.StatisticsSchedule, moversLimit: config.TopMoversLimit, logger: logger, now: now},
		&HoldingsRebuild{store: store, logger: logger},
	}
}

// PruneReport is the outcome of a NAV history prune
type PruneReport struct {
	Cutoff  time.Time `json:"cutoff"`
	Deleted int64     `json:"deleted"`
}

// RebuildReport is the outcome of a holdings rebuild
type RebuildReport struct {
	Holdings int64 `json:"holdings"`
}

// NAVHistoryPrune deletes NAV history older than the retention window
type NAVHistoryPrune struct {
	store     *repositories.Store
	schedule  string
	retention time.Duration
	logger    *zap.Logger
	now       func() time.Time
}

func (j *NAVHistoryPrune) Name() string     { return JobNAVHistoryPrune }
func (j *NAVHistoryPrune) Schedule() string { return j.schedule }

func (j *NAVHistoryPrune) Run(ctx context.Context) (interface{}, error) {
	cutoff := j.now().Add(-j.retention)
	deleted, err := j.store.NAVHistory.PruneOlderThan(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("failed to prune nav history: %w", err)
	}
	j.logger.Info("NAV history pruned",
		zap.Time("cutoff", cutoff),
		zap.Int64("deleted", deleted))
	return PruneReport{Cutoff: cutoff, Deleted: deleted}, nil
}

// TransactionAudit counts integrity problems. Findings are logged and
// published as gauges; nothing is corrected.
type TransactionAudit struct {
	store      *repositories.Store
	schedule   string
	staleAfter time.Duration
	epsilon    decimal.Decimal
	logger     *zap.Logger
	now        func() time.Time
}

func (j *TransactionAudit) Name() string     { return JobTransactionAudit }
func (j *TransactionAudit) Schedule() string { return j.schedule }

func (j *TransactionAudit) Run(ctx context.Context) (interface{}, error) {
	report, err := j.store.Reports.Audit(ctx, j.now().Add(-j.staleAfter), j.epsilon)
	if err != nil {
		return nil, fmt.Errorf("failed to run transaction audit: %w", err)
	}

	metrics.SetAuditFinding("orphaned", report.OrphanedTransactions)
	metrics.SetAuditFinding("stale_submitted", report.StaleSubmitted)
	metrics.SetAuditFinding("holdings_drift", report.HoldingsDrift)

	fields := []zap.Field{
		zap.Int64("orphaned_transactions", report.OrphanedTransactions),
		zap.Int64("stale_submitted", report.StaleSubmitted),
		zap.Int64("holdings_drift", report.HoldingsDrift),
	}
	if report.HasFindings() {
		j.logger.Warn("Transaction audit found issues", fields...)
	} else {
		j.logger.Info("Transaction audit clean", fields...)
	}
	return report, nil
}

// PortfolioReconciliation marks every holding to the latest NAV and
// publishes assets under management.
type PortfolioReconciliation struct {
	store    *repositories.Store
	schedule string
	logger   *zap.Logger
}

func (j *PortfolioReconciliation) Name() string     { return JobPortfolioReconciliation }
func (j *PortfolioReconciliation) Schedule() string { return j.schedule }

func (j *PortfolioReconciliation) Run(ctx context.Context) (interface{}, error) {
	revalued, err := j.store.Holdings.RevalueAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to revalue holdings: %w", err)
	}

	report, err := j.store.Reports.PortfolioSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to summarize portfolio: %w", err)
	}
	report.HoldingsRevalued = revalued

	aum, _ := report.AUM.Float64()
	metrics.SetAUM(aum)

	j.logger.Info("Portfolio reconciled",
		zap.Int64("holdings_revalued", report.HoldingsRevalued),
		zap.String("aum", report.AUM.StringFixed(2)),
		zap.Int64("customers", report.Customers),
		zap.Int64("active_folios", report.Folios))
	return report, nil
}

// DailyStatisticsJob snapshots the previous calendar day
type DailyStatisticsJob struct {
	store       *repositories.Store
	schedule    string
	moversLimit int
	logger      *zap.Logger
	now         func() time.Time
}

func (j *DailyStatisticsJob) Name() string     { return JobDailyStatistics }
func (j *DailyStatisticsJob) Schedule() string { return j.schedule }

func (j *DailyStatisticsJob) Run(ctx context.Context) (interface{}, error) {
	now := j.now()
	to := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	from := to.AddDate(0, 0, -1)

	byMode, err := j.store.Reports.ModeStatistics(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to load mode statistics: %w", err)
	}
	customers, folios, err := j.store.Reports.NewEntityCounts(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to count new entities: %w", err)
	}
	movers, err := j.store.NAVHistory.TopMovers(ctx, from, j.moversLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to load nav movers: %w", err)
	}

	stats := &entities.DailyStatistics{
		Date:         from,
		ByMode:       byMode,
		NewCustomers: customers,
		NewFolios:    folios,
		TopMovers:    movers,
	}
	modeFields := make([]zap.Field, 0, len(byMode)+4)
	modeFields = append(modeFields,
		zap.String("date", from.Format("2006-01-02")),
		zap.Int64("new_customers", customers),
		zap.Int64("new_folios", folios),
		zap.Int("top_movers", len(movers)))
	for _, m := range byMode {
		modeFields = append(modeFields, zap.String(string(m.Mode), fmt.Sprintf("%d/%s", m.Count, m.Total.StringFixed(2))))
	}
	j.logger.Info("Daily statistics", modeFields...)
	return stats, nil
}

// HoldingsRebuild re-derives every holding from processed transactions.
// It has no schedule and only runs when triggered by name.
type HoldingsRebuild struct {
	store  *repositories.Store
	logger *zap.Logger
}

func (j *HoldingsRebuild) Name() string     { return JobHoldingsRebuild }
func (j *HoldingsRebuild) Schedule() string { return "" }

func (j *HoldingsRebuild) Run(ctx context.Context) (interface{}, error) {
	rebuilt, err := j.store.Holdings.Rebuild(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to rebuild holdings: %w", err)
	}
	j.logger.Info("Holdings rebuilt from transactions", zap.Int64("holdings", rebuilt))
	return RebuildReport{Holdings: rebuilt}, nil
}
