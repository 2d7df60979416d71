package repositories

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
)

const customerColumns = `
	c.id, c.pan, c.first_name, c.last_name, c.email, c.phone, c.date_of_birth,
	c.address, c.city, c.state, c.pincode, c.kyc_status, c.risk_profile,
	c.created_at, c.updated_at`

// CustomerRepository implements the customer repository using PostgreSQL
type CustomerRepository struct {
	base
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *database.DB, logger *zap.Logger) *CustomerRepository {
	return &CustomerRepository{base: newBase(db, logger, "customers")}
}

// Create inserts a customer. A PAN collision returns ErrDuplicate.
func (r *CustomerRepository) Create(ctx context.Context, customer *entities.Customer) error {
	query := `
		INSERT INTO customers (
			id, pan, first_name, last_name, email, phone, date_of_birth,
			address, city, state, pincode, kyc_status, risk_profile,
			created_at, updated_at
		) VALUES (
			:id, :pan, :first_name, :last_name, :email, :phone, :date_of_birth,
			:address, :city, :state, :pincode, :kyc_status, :risk_profile,
			:created_at, :updated_at
		)`

	if _, err := r.namedExec(ctx, "INSERT", query, customer); err != nil {
		return r.fail("create customer", err, zap.String("customer_id", customer.ID.String()))
	}
	return nil
}

// GetByID retrieves a customer by ID
func (r *CustomerRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers c WHERE c.id = $1`

	customer := &entities.Customer{}
	if err := r.get(ctx, customer, query, id); err != nil {
		return nil, r.fail("get customer", err, zap.String("customer_id", id.String()))
	}
	return customer, nil
}

// FindRandomWithoutFolio returns up to limit customers that hold no folio
func (r *CustomerRepository) FindRandomWithoutFolio(ctx context.Context, limit int) ([]*entities.Customer, error) {
	query := `
		SELECT ` + customerColumns + `
		FROM customers c
		WHERE NOT EXISTS (SELECT 1 FROM folios f WHERE f.customer_id = c.id)
		ORDER BY random()
		LIMIT $1`

	var customers []*entities.Customer
	if err := r.selectRows(ctx, &customers, query, limit); err != nil {
		return nil, r.fail("find customers without folio", err)
	}
	return customers, nil
}

// FindRandomBelowFolioCap returns customers with between one and
// maxFolios-1 ACTIVE folios
func (r *CustomerRepository) FindRandomBelowFolioCap(ctx context.Context, maxFolios, limit int) ([]entities.FolioCandidate, error) {
	query := `
		SELECT f.customer_id, COUNT(*) AS folio_count
		FROM folios f
		WHERE f.status = 'ACTIVE'
		GROUP BY f.customer_id
		HAVING COUNT(*) < $1
		ORDER BY random()
		LIMIT $2`

	var candidates []entities.FolioCandidate
	if err := r.selectRows(ctx, &candidates, query, maxFolios, limit); err != nil {
		return nil, r.fail("find customers below folio cap", err)
	}
	return candidates, nil
}

// FindRandom returns up to limit customers in random order
func (r *CustomerRepository) FindRandom(ctx context.Context, limit int) ([]*entities.Customer, error) {
	query := `SELECT ` + customerColumns + ` FROM customers c ORDER BY random() LIMIT $1`

	var customers []*entities.Customer
	if err := r.selectRows(ctx, &customers, query, limit); err != nil {
		return nil, r.fail("find random customers", err)
	}
	return customers, nil
}
