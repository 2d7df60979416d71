package holdings

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
)

var ErrNotProcessed = errors.New("holdings can only absorb processed transactions")

// Aggregator is the only writer of the holdings aggregate. Totals are cost
// basis and unit counts; current value is always marked to the scheme's
// latest NAV, never the NAV the transaction was processed at.
type Aggregator struct {
	holdings repositories.HoldingRepository
	logger   *zap.Logger
}

// NewAggregator creates a holdings aggregator
func NewAggregator(holdings repositories.HoldingRepository, logger *zap.Logger) *Aggregator {
	return &Aggregator{holdings: holdings, logger: logger}
}

// Apply adds a processed transaction's signed contribution to its holding
// and reprices it. The totals update is a single upsert statement, so
// concurrent transactions on the same folio and scheme cannot lose updates.
func (a *Aggregator) Apply(ctx context.Context, txn *entities.Transaction, at time.Time) error {
	if !txn.IsProcessed() {
		return ErrNotProcessed
	}

	units, amount := txn.SignedContribution()
	if err := a.holdings.UpsertContribution(ctx, txn.FolioID, txn.SchemeID, units, amount, at); err != nil {
		return fmt.Errorf("failed to upsert holding: %w", err)
	}

	if err := a.holdings.Revalue(ctx, txn.FolioID, txn.SchemeID); err != nil {
		return fmt.Errorf("failed to revalue holding: %w", err)
	}

	a.logger.Debug("Holding updated",
		zap.String("folio_id", txn.FolioID.String()),
		zap.String("scheme_id", txn.SchemeID.String()),
		zap.String("units", units.String()),
		zap.String("amount", amount.String()))

	return nil
}
