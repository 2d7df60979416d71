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

const sipColumns = `
	id, folio_id, scheme_id, amount, frequency, start_date, end_date,
	max_executions, next_execution_date, execution_count, status,
	last_executed_at, created_at, updated_at`

// SIPRepository implements SIP registration storage using PostgreSQL
type SIPRepository struct {
	base
}

// NewSIPRepository creates a new SIP repository
func NewSIPRepository(db *database.DB, logger *zap.Logger) *SIPRepository {
	return &SIPRepository{base: newBase(db, logger, "sip_registrations")}
}

// Create inserts a registration
func (r *SIPRepository) Create(ctx context.Context, sip *entities.SIPRegistration) error {
	query := `
		INSERT INTO sip_registrations (` + sipColumns + `)
		VALUES (
			:id, :folio_id, :scheme_id, :amount, :frequency, :start_date, :end_date,
			:max_executions, :next_execution_date, :execution_count, :status,
			:last_executed_at, :created_at, :updated_at
		)`

	if _, err := r.namedExec(ctx, "INSERT", query, sip); err != nil {
		return r.fail("create sip", err, zap.String("folio_id", sip.FolioID.String()))
	}
	return nil
}

// GetByID retrieves a registration by ID
func (r *SIPRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	sip := &entities.SIPRegistration{}
	if err := r.get(ctx, sip, `SELECT `+sipColumns+` FROM sip_registrations WHERE id = $1`, id); err != nil {
		return nil, r.fail("get sip", err, zap.String("sip_id", id.String()))
	}
	return sip, nil
}

// FindDue returns ACTIVE registrations whose next instalment is at or
// before now, earliest first
func (r *SIPRepository) FindDue(ctx context.Context, now time.Time) ([]*entities.SIPRegistration, error) {
	query := `
		SELECT ` + sipColumns + `
		FROM sip_registrations
		WHERE status = 'ACTIVE'
		  AND next_execution_date IS NOT NULL
		  AND next_execution_date <= $1
		  AND (max_executions IS NULL OR execution_count < max_executions)
		  AND (end_date IS NULL OR next_execution_date <= end_date)
		ORDER BY next_execution_date`

	var sips []*entities.SIPRegistration
	if err := r.selectRows(ctx, &sips, query, now); err != nil {
		return nil, r.fail("find due sips", err)
	}
	return sips, nil
}

// UpdateExecution stores the advanced schedule if no other executor moved
// the registration since prevCount was read
func (r *SIPRepository) UpdateExecution(ctx context.Context, sip *entities.SIPRegistration, prevCount int) error {
	query := `
		UPDATE sip_registrations
		SET execution_count = $2, next_execution_date = $3, status = $4,
		    last_executed_at = $5, updated_at = $6
		WHERE id = $1 AND execution_count = $7 AND status = 'ACTIVE'`

	res, err := r.exec(ctx, "UPDATE", query,
		sip.ID,
		sip.ExecutionCount,
		sip.NextExecutionDate,
		string(sip.Status),
		sip.LastExecutedAt,
		sip.UpdatedAt,
		prevCount,
	)
	if err != nil {
		return r.fail("update sip execution", err, zap.String("sip_id", sip.ID.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}

// UpdateStatus stores a pause, resume or cancellation if the stored status
// is still prev
func (r *SIPRepository) UpdateStatus(ctx context.Context, sip *entities.SIPRegistration, prev entities.SIPStatus) error {
	query := `
		UPDATE sip_registrations
		SET status = $2, next_execution_date = $3, updated_at = $4
		WHERE id = $1 AND status = $5`

	res, err := r.exec(ctx, "UPDATE", query, sip.ID, string(sip.Status), sip.NextExecutionDate, sip.UpdatedAt, string(prev))
	if err != nil {
		return r.fail("update sip status", err, zap.String("sip_id", sip.ID.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}
