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

const schemeColumns = `
	id, scheme_code, scheme_name, category, sub_category, nav, nav_date,
	min_investment, min_sip_amount, exit_load, expense_ratio, is_active,
	created_at, updated_at`

// SchemeRepository implements the scheme repository using PostgreSQL
type SchemeRepository struct {
	base
}

// NewSchemeRepository creates a new scheme repository
func NewSchemeRepository(db *database.DB, logger *zap.Logger) *SchemeRepository {
	return &SchemeRepository{base: newBase(db, logger, "schemes")}
}

// EnsureDefaults inserts the schemes whose code is not taken yet
func (r *SchemeRepository) EnsureDefaults(ctx context.Context, schemes []*entities.Scheme) (int, error) {
	query := `
		INSERT INTO schemes (` + schemeColumns + `)
		VALUES (
			:id, :scheme_code, :scheme_name, :category, :sub_category, :nav, :nav_date,
			:min_investment, :min_sip_amount, :exit_load, :expense_ratio, :is_active,
			:created_at, :updated_at
		)
		ON CONFLICT (scheme_code) DO NOTHING`

	inserted := 0
	for _, scheme := range schemes {
		res, err := r.namedExec(ctx, "INSERT", query, scheme)
		if err != nil {
			return inserted, r.fail("insert default scheme", err, zap.String("scheme_code", scheme.SchemeCode))
		}
		inserted += int(rowsAffected(res))
	}

	r.logger.Debug("Default schemes ensured", zap.Int("inserted", inserted))
	return inserted, nil
}

// GetByID retrieves a scheme by ID
func (r *SchemeRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Scheme, error) {
	scheme := &entities.Scheme{}
	if err := r.get(ctx, scheme, `SELECT `+schemeColumns+` FROM schemes WHERE id = $1`, id); err != nil {
		return nil, r.fail("get scheme", err, zap.String("scheme_id", id.String()))
	}
	return scheme, nil
}

// ListActive returns active schemes ordered by code
func (r *SchemeRepository) ListActive(ctx context.Context) ([]*entities.Scheme, error) {
	var schemes []*entities.Scheme
	if err := r.selectRows(ctx, &schemes, `SELECT `+schemeColumns+` FROM schemes WHERE is_active ORDER BY scheme_code`); err != nil {
		return nil, r.fail("list active schemes", err)
	}
	return schemes, nil
}

// FindRandomActive picks one active scheme
func (r *SchemeRepository) FindRandomActive(ctx context.Context) (*entities.Scheme, error) {
	scheme := &entities.Scheme{}
	if err := r.get(ctx, scheme, `SELECT `+schemeColumns+` FROM schemes WHERE is_active ORDER BY random() LIMIT 1`); err != nil {
		return nil, r.fail("find random scheme", err)
	}
	return scheme, nil
}

// UpdateNAV sets the current NAV and its date
func (r *SchemeRepository) UpdateNAV(ctx context.Context, id uuid.UUID, nav decimal.Decimal, navDate time.Time) error {
	query := `
		UPDATE schemes
		SET nav = $2, nav_date = $3, updated_at = NOW()
		WHERE id = $1`

	res, err := r.exec(ctx, "UPDATE", query, id, nav, navDate)
	if err != nil {
		return r.fail("update scheme nav", err, zap.String("scheme_id", id.String()))
	}
	return affected(res, domain.ErrNotFound)
}
