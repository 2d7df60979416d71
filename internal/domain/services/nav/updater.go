package nav

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
)

// Rand is a uniform [0,1) source
type Rand interface {
	Float64() float64
}

// SimulateMovement applies a bounded random walk step to current. draw is
// uniform in [0,1) and maps linearly to a move of -vol..+vol for the
// category. The result has four decimal places and never falls below
// entities.MinimumNAV.
func SimulateMovement(current decimal.Decimal, category entities.SchemeCategory, draw float64) decimal.Decimal {
	if draw < 0 {
		draw = 0
	}
	if draw > 1 {
		draw = 1
	}

	change := decimal.NewFromFloat(2*draw - 1).Mul(category.Volatility())
	next := current.Mul(decimal.NewFromInt(1).Add(change)).Round(entities.NAVPrecision)
	if next.LessThan(entities.MinimumNAV) {
		return entities.MinimumNAV
	}
	return next
}

// Updater mutates scheme NAVs and appends NAV history
type Updater struct {
	store  *repositories.Store
	rng    Rand
	logger *zap.Logger
	now    func() time.Time
}

// NewUpdater creates a NAV updater
func NewUpdater(store *repositories.Store, rng Rand, logger *zap.Logger) *Updater {
	return &Updater{
		store:  store,
		rng:    rng,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// UpdateAll moves the NAV of every active scheme and records the day's
// history row. Each scheme is updated in its own storage transaction; a
// failure on one scheme does not stop the others.
func (u *Updater) UpdateAll(ctx context.Context) ([]entities.NAVChange, error) {
	schemes, err := u.store.Schemes.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active schemes: %w", err)
	}

	now := u.now()
	navDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

	changes := make([]entities.NAVChange, 0, len(schemes))
	var errs []error
	for _, scheme := range schemes {
		next := SimulateMovement(scheme.NAV, scheme.Category, u.rng.Float64())

		err := u.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
			if err := u.store.Schemes.UpdateNAV(ctx, scheme.ID, next, navDate); err != nil {
				return err
			}
			return u.store.NAVHistory.Upsert(ctx, &entities.NAVHistory{
				SchemeID:  scheme.ID,
				NAVDate:   navDate,
				NAV:       next,
				CreatedAt: now,
			})
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("scheme %s: %w", scheme.SchemeCode, err))
			continue
		}

		metrics.RecordNAVUpdate(string(scheme.Category))
		changes = append(changes, entities.NAVChange{
			SchemeID:   scheme.ID,
			SchemeCode: scheme.SchemeCode,
			Previous:   scheme.NAV,
			Current:    next,
		})
	}

	u.logger.Info("NAV update completed",
		zap.Int("schemes", len(schemes)),
		zap.Int("updated", len(changes)),
		zap.Int("failed", len(errs)))

	return changes, errors.Join(errs...)
}
