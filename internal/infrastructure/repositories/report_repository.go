package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
)

// ReportRepository serves read-only aggregates
type ReportRepository struct {
	base
}

// NewReportRepository creates a new report repository
func NewReportRepository(db *database.DB, logger *zap.Logger) *ReportRepository {
	return &ReportRepository{base: newBase(db, logger, "reports")}
}

// Totals counts the persisted entities
func (r *ReportRepository) Totals(ctx context.Context) (entities.PersistedTotals, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM customers) AS customers,
			(SELECT COUNT(*) FROM folios) AS folios,
			(SELECT COUNT(*) FROM transactions) AS transactions,
			(SELECT COUNT(*) FROM sip_registrations WHERE status = 'ACTIVE') AS active_sips,
			(SELECT COUNT(*) FROM schemes) AS schemes,
			(SELECT COUNT(*) FROM transactions WHERE cams_status = 'PENDING') AS pending_settlement`

	var totals entities.PersistedTotals
	if err := r.get(ctx, &totals, query); err != nil {
		return entities.PersistedTotals{}, r.fail("read totals", err)
	}
	return totals, nil
}

// Audit counts orphaned transactions, stale SUBMITTED transactions and
// holdings whose units drift from their transactions by more than epsilon
func (r *ReportRepository) Audit(ctx context.Context, staleBefore time.Time, epsilon decimal.Decimal) (entities.AuditReport, error) {
	query := `
		WITH ` + derivedHoldingsCTE + `
		SELECT
			(SELECT COUNT(*) FROM transactions t
			 WHERE NOT EXISTS (SELECT 1 FROM folios f WHERE f.id = t.folio_id)) AS orphaned,
			(SELECT COUNT(*) FROM transactions
			 WHERE status = 'SUBMITTED' AND transaction_date < $1) AS stale_submitted,
			(SELECT COUNT(*) FROM holdings h
			 LEFT JOIN derived d ON d.folio_id = h.folio_id AND d.scheme_id = h.scheme_id
			 WHERE ABS(h.total_units - COALESCE(d.units, 0)) > $2) AS holdings_drift`

	var report entities.AuditReport
	if err := r.get(ctx, &report, query, staleBefore, epsilon); err != nil {
		return entities.AuditReport{}, r.fail("audit transactions", err)
	}
	return report, nil
}

// PortfolioSummary totals AUM over all holdings with customer and active
// folio counts
func (r *ReportRepository) PortfolioSummary(ctx context.Context) (entities.ReconciliationReport, error) {
	query := `
		SELECT
			COALESCE((SELECT SUM(current_value) FROM holdings), 0) AS aum,
			(SELECT COUNT(*) FROM customers) AS customers,
			(SELECT COUNT(*) FROM folios WHERE status = 'ACTIVE') AS folios`

	var report entities.ReconciliationReport
	if err := r.get(ctx, &report, query); err != nil {
		return entities.ReconciliationReport{}, r.fail("summarize portfolio", err)
	}
	return report, nil
}

// ModeStatistics breaks down transactions dated in [from, to) by mode
func (r *ReportRepository) ModeStatistics(ctx context.Context, from, to time.Time) ([]entities.ModeStatistics, error) {
	query := `
		SELECT transaction_mode, COUNT(*) AS count, COALESCE(SUM(amount), 0) AS total
		FROM transactions
		WHERE transaction_date >= $1 AND transaction_date < $2
		GROUP BY transaction_mode
		ORDER BY transaction_mode`

	var stats []entities.ModeStatistics
	if err := r.selectRows(ctx, &stats, query, from, to); err != nil {
		return nil, r.fail("read mode statistics", err, zap.Time("from", from))
	}
	return stats, nil
}

// NewEntityCounts counts customers and folios created in [from, to)
func (r *ReportRepository) NewEntityCounts(ctx context.Context, from, to time.Time) (int64, int64, error) {
	query := `
		SELECT
			(SELECT COUNT(*) FROM customers WHERE created_at >= $1 AND created_at < $2) AS customers,
			(SELECT COUNT(*) FROM folios WHERE created_at >= $1 AND created_at < $2) AS folios`

	var counts struct {
		Customers int64 `db:"customers"`
		Folios    int64 `db:"folios"`
	}
	if err := r.get(ctx, &counts, query, from, to); err != nil {
		return 0, 0, r.fail("count new entities", err, zap.Time("from", from))
	}
	return counts.Customers, counts.Folios, nil
}
