// Package repositories implements the domain repository interfaces on
// PostgreSQL through sqlx. Every call runs on the transaction carried by the
// context when there is one.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.uber.org/zap"

	domain "github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/infrastructure/database"
	"github.com/amc-simulator/amc_simulator/pkg/tracing"
)

const uniqueViolation = "23505"

// outflowPredicate selects transactions that reduce a holding
const outflowPredicate = `(t.transaction_mode IN ('REDEMPTION', 'SWP') OR t.transaction_type IN ('REDEMPTION', 'SWITCH_OUT'))`

// derivedHoldingsCTE re-derives holdings from PROCESSED transactions
const derivedHoldingsCTE = `
	derived AS (
		SELECT t.folio_id, t.scheme_id,
		       SUM(CASE WHEN ` + outflowPredicate + ` THEN -t.units ELSE t.units END) AS units,
		       SUM(CASE WHEN ` + outflowPredicate + ` THEN -t.amount ELSE t.amount END) AS amount
		FROM transactions t
		WHERE t.status = 'PROCESSED' AND t.units IS NOT NULL
		GROUP BY t.folio_id, t.scheme_id
	)`

// NewStore wires every Postgres repository into a domain store
func NewStore(db *database.DB, logger *zap.Logger) *domain.Store {
	return &domain.Store{
		Tx:           db,
		Customers:    NewCustomerRepository(db, logger),
		Schemes:      NewSchemeRepository(db, logger),
		NAVHistory:   NewNAVHistoryRepository(db, logger),
		Folios:       NewFolioRepository(db, logger),
		Transactions: NewTransactionRepository(db, logger),
		SIPs:         NewSIPRepository(db, logger),
		Holdings:     NewHoldingRepository(db, logger),
		Reports:      NewReportRepository(db, logger),
	}
}

// base carries the shared plumbing of every repository
type base struct {
	db     *database.DB
	logger *zap.Logger
	table  string
}

func newBase(db *database.DB, logger *zap.Logger, table string) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{db: db, logger: logger.Named("repo." + table), table: table}
}

func (b base) get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return tracing.TraceQuery(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: b.table}, func(ctx context.Context) error {
		return b.db.Querier(ctx).GetContext(ctx, dest, query, args...)
	})
}

func (b base) selectRows(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	return tracing.TraceQuery(ctx, tracing.DBSpanConfig{Operation: "SELECT", Table: b.table}, func(ctx context.Context) error {
		return b.db.Querier(ctx).SelectContext(ctx, dest, query, args...)
	})
}

// returning runs a data-modifying statement with a RETURNING clause
func (b base) returning(ctx context.Context, op string, dest interface{}, query string, args ...interface{}) error {
	return tracing.TraceQuery(ctx, tracing.DBSpanConfig{Operation: op, Table: b.table}, func(ctx context.Context) error {
		return b.db.Querier(ctx).SelectContext(ctx, dest, query, args...)
	})
}

func (b base) exec(ctx context.Context, op, query string, args ...interface{}) (sql.Result, error) {
	return tracing.TraceExec(ctx, tracing.DBSpanConfig{Operation: op, Table: b.table}, func(ctx context.Context) (sql.Result, error) {
		return b.db.Querier(ctx).ExecContext(ctx, query, args...)
	})
}

func (b base) namedExec(ctx context.Context, op, query string, arg interface{}) (sql.Result, error) {
	return tracing.TraceExec(ctx, tracing.DBSpanConfig{Operation: op, Table: b.table}, func(ctx context.Context) (sql.Result, error) {
		return sqlx.NamedExecContext(ctx, b.db.Querier(ctx), query, arg)
	})
}

// fail logs unexpected storage errors and maps driver errors onto the
// domain sentinels
func (b base) fail(action string, err error, fields ...zap.Field) error {
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return domain.ErrNotFound
	case isUniqueViolation(err):
		return fmt.Errorf("%s: %w", action, domain.ErrDuplicate)
	}
	b.logger.Error("Failed to "+action, append(fields, zap.Error(err))...)
	return fmt.Errorf("failed to %s: %w", action, err)
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

// affected turns a zero-row conditional update into miss
func affected(res sql.Result, miss error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if n == 0 {
		return miss
	}
	return nil
}

func rowsAffected(res sql.Result) int64 {
	n, err := res.RowsAffected()
	if err != nil {
		return 0
	}
	return n
}
