package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/transaction"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
	"github.com/amc-simulator/amc_simulator/pkg/retry"
)

const (
	// DefaultBatchSize is the number of transactions settled per run
	DefaultBatchSize = 20
	// DefaultClaimLease is how long a claimed transaction is hidden from
	// other batches; an unfinished claim becomes eligible again after it
	DefaultClaimLease = time.Minute
)

// Config controls the settlement batch
type Config struct {
	ProcessingDelay time.Duration // minimum age of a transaction before settlement
	BatchSize       int
	ClaimLease      time.Duration
	Retry           retry.Policy
}

// BatchResult summarizes one settlement run
type BatchResult struct {
	Fetched          int
	Settled          int
	Rejected         int
	RetriesScheduled int
	RetriesExhausted int
	Failed           int
	Interrupted      bool
}

// Processor settles pending transactions against the registrar
type Processor struct {
	store     *repositories.Store
	processor *transaction.Processor
	client    Client
	config    Config
	logger    *zap.Logger
	now       func() time.Time
}

// NewProcessor creates a settlement processor
func NewProcessor(store *repositories.Store, processor *transaction.Processor, client Client, config Config, logger *zap.Logger) *Processor {
	if config.BatchSize <= 0 {
		config.BatchSize = DefaultBatchSize
	}
	if config.ClaimLease <= 0 {
		config.ClaimLease = DefaultClaimLease
	}
	return &Processor{
		store:     store,
		processor: processor,
		client:    client,
		config:    config,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// ProcessPending claims and settles up to one batch of transactions older
// than the processing delay, oldest first. A failure on one transaction is
// logged and the batch continues; an open registrar breaker ends the batch
// and the unsettled claims become eligible again once their lease expires.
func (p *Processor) ProcessPending(ctx context.Context) (BatchResult, error) {
	var result BatchResult
	now := p.now()

	pending, err := p.store.Transactions.ClaimPendingSettlement(ctx,
		now.Add(-p.config.ProcessingDelay), now, now.Add(p.config.ClaimLease), p.config.BatchSize)
	if err != nil {
		return result, fmt.Errorf("failed to claim pending settlements: %w", err)
	}
	result.Fetched = len(pending)

	for _, txn := range pending {
		if ctx.Err() != nil {
			result.Interrupted = true
			break
		}

		outcome, err := p.client.Submit(ctx, txn)
		if err != nil {
			if errors.Is(err, ErrRegistrarUnavailable) {
				p.logger.Warn("Registrar unavailable, ending settlement batch early",
					zap.Int("remaining", len(pending)-result.total()))
				result.Interrupted = true
				break
			}
			result.Failed++
			p.logger.Error("Registrar submission failed",
				zap.String("transaction_id", txn.ID.String()), zap.Error(err))
			continue
		}

		if err := p.apply(ctx, txn, outcome, &result); err != nil {
			result.Failed++
			p.logger.Error("Failed to apply settlement outcome",
				zap.String("transaction_id", txn.ID.String()),
				zap.String("outcome", string(outcome.Result)),
				zap.Error(err))
		}
	}

	if result.Fetched > 0 {
		p.logger.Info("Settlement batch completed",
			zap.Int("fetched", result.Fetched),
			zap.Int("settled", result.Settled),
			zap.Int("rejected", result.Rejected),
			zap.Int("retries_scheduled", result.RetriesScheduled),
			zap.Int("retries_exhausted", result.RetriesExhausted),
			zap.Int("failed", result.Failed))
	}

	return result, nil
}

func (r BatchResult) total() int {
	return r.Settled + r.Rejected + r.RetriesScheduled + r.RetriesExhausted + r.Failed
}

func (p *Processor) apply(ctx context.Context, txn *entities.Transaction, outcome Outcome, result *BatchResult) error {
	now := p.now()

	switch outcome.Result {
	case ResultSuccess:
		if err := p.settle(ctx, txn, outcome.Reference, now); err != nil {
			return err
		}
		result.Settled++
		metrics.RecordSettlementOutcome(string(ResultSuccess))

	case ResultRejected:
		if err := p.store.Transactions.Reject(ctx, txn.ID, entities.SettlementStatusRejected, outcome.Reason, now); err != nil {
			return err
		}
		result.Rejected++
		metrics.RecordSettlementOutcome(string(ResultRejected))
		p.logger.Info("Transaction rejected by registrar",
			zap.String("transaction_id", txn.ID.String()),
			zap.String("reason", outcome.Reason))

	case ResultTechnicalFailure:
		attempts := txn.SettlementAttempts + 1
		if p.config.Retry.Exhausted(attempts) {
			if err := p.store.Transactions.Reject(ctx, txn.ID, entities.SettlementStatusFailed, ExhaustedReason, now); err != nil {
				return err
			}
			result.RetriesExhausted++
			metrics.RecordSettlementOutcome("retries_exhausted")
			p.logger.Warn("Settlement retries exhausted",
				zap.String("transaction_id", txn.ID.String()),
				zap.Int("attempts", attempts))
			return nil
		}

		next := now.Add(p.config.Retry.Delay(attempts))
		if err := p.store.Transactions.ScheduleSettlementRetry(ctx, txn.ID, attempts, next); err != nil {
			return err
		}
		result.RetriesScheduled++
		metrics.RecordSettlementOutcome(string(ResultTechnicalFailure))
		p.logger.Warn("Registrar technical failure, settlement retry scheduled",
			zap.String("transaction_id", txn.ID.String()),
			zap.Int("attempt", attempts),
			zap.Time("next_attempt", next))
	}

	return nil
}

// settle processes the transaction if it has not been processed locally yet
// and records the registrar reference, in one storage transaction.
func (p *Processor) settle(ctx context.Context, txn *entities.Transaction, reference string, now time.Time) error {
	return p.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if !txn.IsProcessed() {
			scheme, err := p.store.Schemes.GetByID(ctx, txn.SchemeID)
			if err != nil {
				return fmt.Errorf("failed to load scheme: %w", err)
			}
			if err := p.processor.Process(ctx, txn, scheme.NAV); err != nil {
				return err
			}
		}
		return p.store.Transactions.MarkSettled(ctx, txn.ID, reference, now)
	})
}
