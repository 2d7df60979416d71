package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	domain "github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
)

const folioColumns = `
	f.id, f.folio_number, f.customer_id, f.scheme_id, f.status, f.joint_holders,
	f.opened_at, f.closed_at, f.created_at, f.updated_at`

// FolioRepository implements the folio repository using PostgreSQL
type FolioRepository struct {
	base
}

// NewFolioRepository creates a new folio repository
func NewFolioRepository(db *database.DB, logger *zap.Logger) *FolioRepository {
	return &FolioRepository{base: newBase(db, logger, "folios")}
}

// CreateWithinLimit inserts the folio unless the customer already holds
// maxFolios ACTIVE folios. The customer row is locked first so concurrent
// creators for the same customer queue behind each other, and the insert
// itself is conditional on the count.
func (r *FolioRepository) CreateWithinLimit(ctx context.Context, folio *entities.Folio, maxFolios int) error {
	lock := `SELECT id FROM customers WHERE id = $1 FOR UPDATE`

	insert := `
		INSERT INTO folios (
			id, folio_number, customer_id, scheme_id, status, joint_holders,
			opened_at, closed_at, created_at, updated_at
		)
		SELECT $1::uuid, $2::text, $3::uuid, $4::uuid, $5::text, $6::text[],
		       $7::timestamptz, $8::timestamptz, $9::timestamptz, $10::timestamptz
		WHERE (
			SELECT COUNT(*) FROM folios
			WHERE customer_id = $3::uuid AND status = 'ACTIVE'
		) < $11::int`

	return r.db.WithinTx(ctx, func(ctx context.Context) error {
		var locked uuid.UUID
		if err := r.get(ctx, &locked, lock, folio.CustomerID); err != nil {
			return r.fail("lock folio owner", err, zap.String("customer_id", folio.CustomerID.String()))
		}

		res, err := r.exec(ctx, "INSERT", insert,
			folio.ID,
			folio.FolioNumber,
			folio.CustomerID,
			folio.SchemeID,
			string(folio.Status),
			folio.JointHolders,
			folio.OpenedAt,
			folio.ClosedAt,
			folio.CreatedAt,
			folio.UpdatedAt,
			maxFolios,
		)
		if err != nil {
			return r.fail("create folio", err, zap.String("customer_id", folio.CustomerID.String()))
		}
		return affected(res, domain.ErrFolioLimitReached)
	})
}

// GetByID retrieves a folio by ID
func (r *FolioRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Folio, error) {
	folio := &entities.Folio{}
	if err := r.get(ctx, folio, `SELECT `+folioColumns+` FROM folios f WHERE f.id = $1`, id); err != nil {
		return nil, r.fail("get folio", err, zap.String("folio_id", id.String()))
	}
	return folio, nil
}

// FindRandomTradable returns ACTIVE folios owned by KYC-complete customers
func (r *FolioRepository) FindRandomTradable(ctx context.Context, limit int) ([]*entities.Folio, error) {
	query := `
		SELECT ` + folioColumns + `
		FROM folios f
		JOIN customers c ON c.id = f.customer_id
		WHERE f.status = 'ACTIVE' AND c.kyc_status = 'COMPLETED'
		ORDER BY random()
		LIMIT $1`

	var folios []*entities.Folio
	if err := r.selectRows(ctx, &folios, query, limit); err != nil {
		return nil, r.fail("find tradable folios", err)
	}
	return folios, nil
}

// CountActiveByCustomer counts a customer's ACTIVE folios
func (r *FolioRepository) CountActiveByCustomer(ctx context.Context, customerID uuid.UUID) (int, error) {
	var n int
	query := `SELECT COUNT(*) FROM folios WHERE customer_id = $1 AND status = 'ACTIVE'`
	if err := r.get(ctx, &n, query, customerID); err != nil {
		return 0, r.fail("count active folios", err, zap.String("customer_id", customerID.String()))
	}
	return n, nil
}

// Close marks the folio CLOSED. Closing a closed folio keeps its close date.
func (r *FolioRepository) Close(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE folios
		SET status = 'CLOSED',
		    closed_at = COALESCE(closed_at, $2),
		    updated_at = $2
		WHERE id = $1`

	res, err := r.exec(ctx, "UPDATE", query, id, at)
	if err != nil {
		return r.fail("close folio", err, zap.String("folio_id", id.String()))
	}
	return affected(res, domain.ErrNotFound)
}
