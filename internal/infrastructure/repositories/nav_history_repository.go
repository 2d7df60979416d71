package repositories

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
)

// NAVHistoryRepository implements the NAV time series using PostgreSQL.
// The table is a TimescaleDB hypertable when the extension is installed.
type NAVHistoryRepository struct {
	base
}

// NewNAVHistoryRepository creates a new NAV history repository
func NewNAVHistoryRepository(db *database.DB, logger *zap.Logger) *NAVHistoryRepository {
	return &NAVHistoryRepository{base: newBase(db, logger, "nav_history")}
}

// Upsert writes the NAV for a scheme and day
func (r *NAVHistoryRepository) Upsert(ctx context.Context, entry *entities.NAVHistory) error {
	query := `
		INSERT INTO nav_history (scheme_id, nav_date, nav, created_at)
		VALUES (:scheme_id, :nav_date, :nav, :created_at)
		ON CONFLICT (scheme_id, nav_date) DO UPDATE SET nav = EXCLUDED.nav`

	if _, err := r.namedExec(ctx, "UPSERT", query, entry); err != nil {
		return r.fail("upsert nav history", err, zap.String("scheme_id", entry.SchemeID.String()))
	}
	return nil
}

// PruneOlderThan deletes entries dated before cutoff
func (r *NAVHistoryRepository) PruneOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := r.exec(ctx, "DELETE", `DELETE FROM nav_history WHERE nav_date < $1`, cutoff)
	if err != nil {
		return 0, r.fail("prune nav history", err)
	}
	return rowsAffected(res), nil
}

// TopMovers compares day against the previous calendar day and returns the
// largest absolute percentage moves
func (r *NAVHistoryRepository) TopMovers(ctx context.Context, day time.Time, limit int) ([]entities.NAVMover, error) {
	query := `
		SELECT s.scheme_code,
		       p.nav AS previous_nav,
		       c.nav AS current_nav,
		       ROUND((c.nav - p.nav) / p.nav * 100, 4) AS change_percent
		FROM nav_history c
		JOIN nav_history p ON p.scheme_id = c.scheme_id AND p.nav_date = c.nav_date - 1
		JOIN schemes s ON s.id = c.scheme_id
		WHERE c.nav_date = $1::date AND p.nav > 0
		ORDER BY ABS(c.nav - p.nav) / p.nav DESC
		LIMIT $2`

	var movers []entities.NAVMover
	if err := r.selectRows(ctx, &movers, query, day, limit); err != nil {
		return nil, r.fail("find top nav movers", err)
	}
	return movers, nil
}
