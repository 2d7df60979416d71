package transaction

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/holdings"
)

// Processor allots units to transactions and feeds the holdings aggregate
type Processor struct {
	tx           repositories.Transactor
	transactions repositories.TransactionRepository
	aggregator   *holdings.Aggregator
	logger       *zap.Logger
	now          func() time.Time
}

// NewProcessor creates a transaction processor
func NewProcessor(tx repositories.Transactor, transactions repositories.TransactionRepository, aggregator *holdings.Aggregator, logger *zap.Logger) *Processor {
	return &Processor{
		tx:           tx,
		transactions: transactions,
		aggregator:   aggregator,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Process processes a SUBMITTED transaction at nav. A transaction that is
// already processed is refused with entities.ErrAlreadyProcessed before any
// write happens; the conditional status update in storage catches a
// concurrent processor that got there first, and its holdings change is
// rolled back with it.
func (p *Processor) Process(ctx context.Context, txn *entities.Transaction, nav decimal.Decimal) error {
	if txn.IsProcessed() {
		p.logger.Debug("Transaction already processed, skipping",
			zap.String("transaction_id", txn.ID.String()))
		return entities.ErrAlreadyProcessed
	}

	original := *txn
	now := p.now()
	if err := txn.Process(nav, now); err != nil {
		return err
	}

	err := p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.transactions.MarkProcessed(ctx, txn); err != nil {
			return fmt.Errorf("failed to mark transaction processed: %w", err)
		}
		return p.aggregator.Apply(ctx, txn, now)
	})
	if err != nil {
		*txn = original
		return err
	}

	p.logger.Info("Transaction processed",
		zap.String("transaction_id", txn.ID.String()),
		zap.String("mode", string(txn.Mode)),
		zap.String("amount", txn.Amount.String()),
		zap.String("units", txn.Units.Decimal.String()),
		zap.String("nav", nav.String()))

	return nil
}

// RecordProcessed inserts a transaction that was processed in memory (a SIP
// instalment) and applies it to holdings in the same storage transaction.
func (p *Processor) RecordProcessed(ctx context.Context, txn *entities.Transaction) error {
	if !txn.IsProcessed() {
		return holdings.ErrNotProcessed
	}

	return p.tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := p.transactions.Create(ctx, txn); err != nil {
			return fmt.Errorf("failed to create transaction: %w", err)
		}
		return p.aggregator.Apply(ctx, txn, txn.UpdatedAt)
	})
}
