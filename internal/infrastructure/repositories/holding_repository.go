package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	domain "github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
)

// HoldingRepository implements holding storage using PostgreSQL
type HoldingRepository struct {
	base
}

// NewHoldingRepository creates a new holding repository
func NewHoldingRepository(db *database.DB, logger *zap.Logger) *HoldingRepository {
	return &HoldingRepository{base: newBase(db, logger, "holdings")}
}

// UpsertContribution adds units and amount to the holding in one statement
func (r *HoldingRepository) UpsertContribution(ctx context.Context, folioID, schemeID uuid.UUID, units, amount decimal.Decimal, at time.Time) error {
	query := `
		INSERT INTO holdings (folio_id, scheme_id, total_units, invested_amount, current_value, last_updated)
		VALUES ($1, $2, $3, $4, 0, $5)
		ON CONFLICT (folio_id, scheme_id) DO UPDATE
		SET total_units = holdings.total_units + EXCLUDED.total_units,
		    invested_amount = holdings.invested_amount + EXCLUDED.invested_amount,
		    last_updated = EXCLUDED.last_updated`

	if _, err := r.exec(ctx, "UPSERT", query, folioID, schemeID, units, amount, at); err != nil {
		return r.fail("upsert holding", err,
			zap.String("folio_id", folioID.String()),
			zap.String("scheme_id", schemeID.String()),
		)
	}
	return nil
}

// Revalue prices one holding at its scheme's current NAV
func (r *HoldingRepository) Revalue(ctx context.Context, folioID, schemeID uuid.UUID) error {
	query := `
		UPDATE holdings h
		SET current_value = ROUND(h.total_units * s.nav, 2)
		FROM schemes s
		WHERE s.id = h.scheme_id AND h.folio_id = $1 AND h.scheme_id = $2`

	res, err := r.exec(ctx, "UPDATE", query, folioID, schemeID)
	if err != nil {
		return r.fail("revalue holding", err, zap.String("folio_id", folioID.String()))
	}
	return affected(res, domain.ErrNotFound)
}

// Get retrieves one holding
func (r *HoldingRepository) Get(ctx context.Context, folioID, schemeID uuid.UUID) (*entities.Holding, error) {
	query := `
		SELECT folio_id, scheme_id, total_units, invested_amount, current_value, last_updated
		FROM holdings
		WHERE folio_id = $1 AND scheme_id = $2`

	holding := &entities.Holding{}
	if err := r.get(ctx, holding, query, folioID, schemeID); err != nil {
		return nil, r.fail("get holding", err, zap.String("folio_id", folioID.String()))
	}
	return holding, nil
}

// RevalueAll prices every holding at current NAVs
func (r *HoldingRepository) RevalueAll(ctx context.Context) (int64, error) {
	query := `
		UPDATE holdings h
		SET current_value = ROUND(h.total_units * s.nav, 2)
		FROM schemes s
		WHERE s.id = h.scheme_id`

	res, err := r.exec(ctx, "UPDATE", query)
	if err != nil {
		return 0, r.fail("revalue holdings", err)
	}
	return rowsAffected(res), nil
}

// Rebuild replaces every holding with the aggregate of PROCESSED
// transactions, in one transaction
func (r *HoldingRepository) Rebuild(ctx context.Context) (int64, error) {
	insert := `
		WITH ` + derivedHoldingsCTE + `
		INSERT INTO holdings (folio_id, scheme_id, total_units, invested_amount, current_value, last_updated)
		SELECT d.folio_id, d.scheme_id, d.units, d.amount, ROUND(d.units * s.nav, 2), NOW()
		FROM derived d
		JOIN schemes s ON s.id = d.scheme_id`

	var rebuilt int64
	err := r.db.WithinTx(ctx, func(ctx context.Context) error {
		if _, err := r.exec(ctx, "DELETE", `DELETE FROM holdings`); err != nil {
			return r.fail("clear holdings", err)
		}
		res, err := r.exec(ctx, "INSERT", insert)
		if err != nil {
			return r.fail("rebuild holdings", err)
		}
		rebuilt = rowsAffected(res)
		return nil
	})
	if err != nil {
		return 0, err
	}

	r.logger.Info("Holdings rebuilt from processed transactions", zap.Int64("holdings", rebuilt))
	return rebuilt, nil
}
