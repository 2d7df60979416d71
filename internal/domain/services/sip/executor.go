package sip

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
)

// ExecutionResult summarizes one SIP run
type ExecutionResult struct {
	Due       int
	Executed  int
	Completed int
	Failed    int
}

// Executor runs due SIP instalments
type Executor struct {
	store     *repositories.Store
	processor *transaction.Processor
	logger    *zap.Logger
	now       func() time.Time
}

// NewExecutor creates a SIP executor
func NewExecutor(store *repositories.Store, processor *transaction.Processor, logger *zap.Logger) *Executor {
	return &Executor{
		store:     store,
		processor: processor,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ExecuteDue executes every ACTIVE registration whose next execution date
// has arrived. Each instalment is one storage transaction: create and
// process the purchase, apply it to holdings, then advance the registration
// conditionally on its previous execution count so an overlapping run cannot
// execute the same instalment twice.
func (e *Executor) ExecuteDue(ctx context.Context) (ExecutionResult, error) {
	var result ExecutionResult
	now := e.now()

	due, err := e.store.SIPs.FindDue(ctx, now)
	if err != nil {
		return result, fmt.Errorf("failed to find due sips: %w", err)
	}
	result.Due = len(due)

	for _, reg := range due {
		if ctx.Err() != nil {
			break
		}
		if !reg.IsDue(now) {
			continue
		}

		if err := e.execute(ctx, reg, now); err != nil {
			result.Failed++
			metrics.RecordSIPExecution("failed")
			e.logger.Error("SIP execution failed",
				zap.String("sip_id", reg.ID.String()),
				zap.Error(err))
			continue
		}

		result.Executed++
		metrics.RecordSIPExecution("executed")
		if reg.Status == entities.SIPStatusCompleted {
			result.Completed++
			metrics.RecordSIPExecution("completed")
		}
	}

	if result.Due > 0 {
		e.logger.Info("SIP execution run completed",
			zap.Int("due", result.Due),
			zap.Int("executed", result.Executed),
			zap.Int("completed", result.Completed),
			zap.Int("failed", result.Failed))
	}
	return result, nil
}

func (e *Executor) execute(ctx context.Context, reg *entities.SIPRegistration, now time.Time) error {
	return e.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		scheme, err := e.store.Schemes.GetByID(ctx, reg.SchemeID)
		if err != nil {
			return fmt.Errorf("failed to load scheme: %w", err)
		}

		prevCount := reg.ExecutionCount
		txn, err := reg.Execute(scheme.NAV, now)
		if err != nil {
			return err
		}

		if err := e.processor.RecordProcessed(ctx, txn); err != nil {
			return err
		}

		if err := e.store.SIPs.UpdateExecution(ctx, reg, prevCount); err != nil {
			return fmt.Errorf("failed to advance sip: %w", err)
		}

		e.logger.Debug("SIP instalment executed",
			zap.String("sip_id", reg.ID.String()),
			zap.String("transaction_id", txn.ID.String()),
			zap.Int("execution_count", reg.ExecutionCount),
			zap.String("status", string(reg.Status)))
		return nil
	})
}
