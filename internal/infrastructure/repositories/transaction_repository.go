package repositories

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	domain "github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
)

const transactionColumns = `
	id, transaction_number, folio_id, scheme_id, sip_id, transaction_type,
	transaction_mode, amount, units, nav, status, cams_status, cams_reference,
	rejection_reason, settlement_attempts, next_settlement_at, transaction_date,
	processed_at, settlement_date, created_at, updated_at`

// returningTransactionColumns is transactionColumns qualified for UPDATE ... FROM
const returningTransactionColumns = `
	t.id, t.transaction_number, t.folio_id, t.scheme_id, t.sip_id, t.transaction_type,
	t.transaction_mode, t.amount, t.units, t.nav, t.status, t.cams_status, t.cams_reference,
	t.rejection_reason, t.settlement_attempts, t.next_settlement_at, t.transaction_date,
	t.processed_at, t.settlement_date, t.created_at, t.updated_at`

// TransactionRepository implements the transaction repository using PostgreSQL
type TransactionRepository struct {
	base
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *database.DB, logger *zap.Logger) *TransactionRepository {
	return &TransactionRepository{base: newBase(db, logger, "transactions")}
}

// Create inserts a transaction
func (r *TransactionRepository) Create(ctx context.Context, txn *entities.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES (
			:id, :transaction_number, :folio_id, :scheme_id, :sip_id, :transaction_type,
			:transaction_mode, :amount, :units, :nav, :status, :cams_status, :cams_reference,
			:rejection_reason, :settlement_attempts, :next_settlement_at, :transaction_date,
			:processed_at, :settlement_date, :created_at, :updated_at
		)`

	if _, err := r.namedExec(ctx, "INSERT", query, txn); err != nil {
		return r.fail("create transaction", err,
			zap.String("transaction_id", txn.ID.String()),
			zap.String("folio_id", txn.FolioID.String()),
		)
	}
	return nil
}

// GetByID retrieves a transaction by ID
func (r *TransactionRepository) GetByID(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	txn := &entities.Transaction{}
	if err := r.get(ctx, txn, `SELECT `+transactionColumns+` FROM transactions WHERE id = $1`, id); err != nil {
		return nil, r.fail("get transaction", err, zap.String("transaction_id", id.String()))
	}
	return txn, nil
}

// ClaimPendingSettlement leases the oldest transactions awaiting the
// registrar by moving their next_settlement_at to leaseUntil. Selection and
// lease happen in one statement, and rows locked by a concurrent claim are
// skipped, so overlapping batches never receive the same row while its
// lease is live.
func (r *TransactionRepository) ClaimPendingSettlement(ctx context.Context, submittedBefore, now, leaseUntil time.Time, limit int) ([]*entities.Transaction, error) {
	query := `
		WITH claimable AS (
			SELECT id, transaction_date
			FROM transactions
			WHERE cams_status = 'PENDING'
			  AND status IN ('SUBMITTED', 'PROCESSED')
			  AND transaction_date < $1
			  AND (next_settlement_at IS NULL OR next_settlement_at <= $2)
			ORDER BY transaction_date
			LIMIT $4
			FOR UPDATE SKIP LOCKED
		)
		UPDATE transactions t
		SET next_settlement_at = $3
		FROM claimable c
		WHERE t.id = c.id AND t.transaction_date = c.transaction_date
		RETURNING ` + returningTransactionColumns

	var txns []*entities.Transaction
	if err := r.returning(ctx, "UPDATE", &txns, query, submittedBefore, now, leaseUntil, limit); err != nil {
		return nil, r.fail("claim pending settlement", err)
	}

	// RETURNING order is unspecified
	sort.SliceStable(txns, func(i, j int) bool {
		return txns[i].TransactionDate.Before(txns[j].TransactionDate)
	})
	return txns, nil
}

// MarkProcessed stores the allotment if the row is still SUBMITTED
func (r *TransactionRepository) MarkProcessed(ctx context.Context, txn *entities.Transaction) error {
	query := `
		UPDATE transactions
		SET status = $2, units = $3, nav = $4, processed_at = $5,
		    settlement_date = $6, updated_at = $7
		WHERE id = $1 AND status = 'SUBMITTED'`

	res, err := r.exec(ctx, "UPDATE", query,
		txn.ID,
		string(txn.Status),
		txn.Units,
		txn.NAV,
		txn.ProcessedAt,
		txn.SettlementDate,
		txn.UpdatedAt,
	)
	if err != nil {
		return r.fail("mark transaction processed", err, zap.String("transaction_id", txn.ID.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}

// MarkSettled records the registrar confirmation
func (r *TransactionRepository) MarkSettled(ctx context.Context, id uuid.UUID, reference string, at time.Time) error {
	query := `
		UPDATE transactions
		SET cams_status = 'PROCESSED', cams_reference = $2,
		    next_settlement_at = NULL, updated_at = $3
		WHERE id = $1 AND cams_status = 'PENDING'`

	res, err := r.exec(ctx, "UPDATE", query, id, reference, at)
	if err != nil {
		return r.fail("mark transaction settled", err, zap.String("transaction_id", id.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}

// Reject records a settlement rejection or failure. A transaction that was
// already allotted stays PROCESSED.
func (r *TransactionRepository) Reject(ctx context.Context, id uuid.UUID, settlement entities.SettlementStatus, reason string, at time.Time) error {
	query := `
		UPDATE transactions
		SET status = CASE WHEN status = 'SUBMITTED' THEN 'REJECTED' ELSE status END,
		    cams_status = $2, rejection_reason = $3,
		    next_settlement_at = NULL, updated_at = $4
		WHERE id = $1 AND cams_status = 'PENDING'`

	res, err := r.exec(ctx, "UPDATE", query, id, string(settlement), reason, at)
	if err != nil {
		return r.fail("reject transaction", err, zap.String("transaction_id", id.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}

// Cancel withdraws a transaction that has not been allotted yet
func (r *TransactionRepository) Cancel(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `
		UPDATE transactions
		SET status = 'CANCELLED', next_settlement_at = NULL, updated_at = $2
		WHERE id = $1 AND status = 'SUBMITTED'`

	res, err := r.exec(ctx, "UPDATE", query, id, at)
	if err != nil {
		return r.fail("cancel transaction", err, zap.String("transaction_id", id.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}

// ScheduleSettlementRetry records a failed attempt and the next try
func (r *TransactionRepository) ScheduleSettlementRetry(ctx context.Context, id uuid.UUID, attempts int, next time.Time) error {
	query := `
		UPDATE transactions
		SET settlement_attempts = $2, next_settlement_at = $3
		WHERE id = $1 AND cams_status = 'PENDING'`

	res, err := r.exec(ctx, "UPDATE", query, id, attempts, next)
	if err != nil {
		return r.fail("schedule settlement retry", err, zap.String("transaction_id", id.String()))
	}
	return affected(res, domain.ErrConcurrentUpdate)
}
