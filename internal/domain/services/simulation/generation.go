package simulation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
	"github.com/amc-simulator/amc_simulator/internal/domain/services/generator"
	"github.com/amc-simulator/amc_simulator/pkg/bulk"
	pkgerrors "github.com/amc-simulator/amc_simulator/pkg/errors"
	"github.com/amc-simulator/amc_simulator/pkg/metrics"
)

const (
	// MaxBulkCount bounds a single manual trigger
	MaxBulkCount = 1000

	newCustomerSIPChance     = 0.6
	additionalFolioSIPChance = 0.5
	manualFolioSIPChance     = 0.5
	transactionFoliosPerTick = 5
)

var (
	ErrNoCustomers = errors.New("no customers available")
	ErrNoSchemes   = errors.New("no active schemes available")
	ErrNoFolios    = errors.New("no tradable folios available")
)

func validateCount(n int) error {
	if n < 1 || n > MaxBulkCount {
		return pkgerrors.NewValidationError(fmt.Sprintf("count must be between 1 and %d", MaxBulkCount)).
			WithDetail("count", fmt.Sprint(n))
	}
	return nil
}

// CreateCustomers creates n customers outside the timer loop
func (s *Simulator) CreateCustomers(ctx context.Context, n int) (entities.BulkResult, error) {
	if err := validateCount(n); err != nil {
		return entities.BulkResult{}, err
	}

	results := bulk.Repeat(ctx, n, s.config.BulkWorkers, func(ctx context.Context, _ int) error {
		_, err := s.createCustomer(ctx)
		return err
	})
	return s.summarize("customers", n, results), nil
}

// CreateFolios creates n folios for random existing customers. Customers at
// the folio cap are refused by storage and reported as failures.
func (s *Simulator) CreateFolios(ctx context.Context, n int) (entities.BulkResult, error) {
	if err := validateCount(n); err != nil {
		return entities.BulkResult{}, err
	}

	customers, err := s.store.Customers.FindRandom(ctx, n)
	if err != nil {
		return entities.BulkResult{}, fmt.Errorf("failed to find customers: %w", err)
	}
	if len(customers) == 0 {
		return entities.BulkResult{}, ErrNoCustomers
	}

	results := bulk.Repeat(ctx, n, s.config.BulkWorkers, func(ctx context.Context, i int) error {
		_, err := s.createFolio(ctx, customers[i%len(customers)].ID, manualFolioSIPChance)
		return err
	})
	return s.summarize("folios", n, results), nil
}

// CreateTransactions submits n transactions across random tradable folios
func (s *Simulator) CreateTransactions(ctx context.Context, n int) (entities.BulkResult, error) {
	if err := validateCount(n); err != nil {
		return entities.BulkResult{}, err
	}

	folios, err := s.store.Folios.FindRandomTradable(ctx, n)
	if err != nil {
		return entities.BulkResult{}, fmt.Errorf("failed to find tradable folios: %w", err)
	}
	if len(folios) == 0 {
		return entities.BulkResult{}, ErrNoFolios
	}

	results := bulk.Repeat(ctx, n, s.config.BulkWorkers, func(ctx context.Context, i int) error {
		_, err := s.createTransaction(ctx, folios[i%len(folios)])
		return err
	})
	return s.summarize("transactions", n, results), nil
}

func (s *Simulator) summarize(entity string, requested int, results []bulk.Result[int]) entities.BulkResult {
	created, errs := bulk.Summary(results)
	out := entities.BulkResult{Requested: requested, Created: created, Failed: len(errs)}

	seen := make(map[string]bool)
	for _, err := range errs {
		if msg := err.Error(); !seen[msg] {
			seen[msg] = true
			out.Errors = append(out.Errors, msg)
		}
	}

	s.logger.Info("Bulk creation completed",
		zap.String("entity", entity),
		zap.Int("requested", requested),
		zap.Int("created", created),
		zap.Int("failed", len(errs)))
	return out
}

func (s *Simulator) createCustomer(ctx context.Context) (*entities.Customer, error) {
	customer := s.rng.Customer(s.now())
	if err := s.store.Customers.Create(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}

	s.counters.customersCreated.Add(1)
	metrics.RecordEntityCreated("customer")
	s.logger.Debug("Customer created",
		zap.String("customer_id", customer.ID.String()),
		zap.String("kyc_status", string(customer.KYCStatus)))
	return customer, nil
}

// createFolio opens a folio in a random active scheme and, with sipChance,
// registers a SIP on it in the same storage transaction.
func (s *Simulator) createFolio(ctx context.Context, customerID uuid.UUID, sipChance float64) (*entities.Folio, error) {
	scheme, err := s.store.Schemes.FindRandomActive(ctx)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return nil, ErrNoSchemes
		}
		return nil, fmt.Errorf("failed to pick scheme: %w", err)
	}

	now := s.now()
	folio := s.rng.Folio(customerID, scheme.ID, now)
	var registration *entities.SIPRegistration
	if s.rng.Chance(sipChance) {
		registration = s.rng.SIP(folio, now)
	}

	err = s.store.Tx.WithinTx(ctx, func(ctx context.Context) error {
		if err := s.store.Folios.CreateWithinLimit(ctx, folio, s.config.MaxFoliosPerCustomer); err != nil {
			return err
		}
		if registration != nil {
			return s.store.SIPs.Create(ctx, registration)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrFolioLimitReached) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create folio: %w", err)
	}

	s.counters.foliosCreated.Add(1)
	metrics.RecordEntityCreated("folio")
	if registration != nil {
		s.counters.sipsRegistered.Add(1)
		metrics.RecordEntityCreated("sip")
	}
	return folio, nil
}

// createTransaction submits a transaction of a weighted random kind. A
// redemption larger than the folio's current holding value becomes a
// lumpsum purchase instead.
func (s *Simulator) createTransaction(ctx context.Context, folio *entities.Folio) (*entities.Transaction, error) {
	now := s.now()
	kind := s.rng.TransactionKind()
	txn := s.rng.Transaction(folio, kind, now)

	if kind == generator.KindRedemption {
		holding, err := s.store.Holdings.Get(ctx, folio.ID, folio.SchemeID)
		if err != nil && !errors.Is(err, repositories.ErrNotFound) {
			return nil, fmt.Errorf("failed to load holding: %w", err)
		}
		if holding == nil || txn.Amount.GreaterThan(holding.CurrentValue) {
			txn = s.rng.Transaction(folio, generator.KindLumpsum, now)
		}
	}

	if err := s.store.Transactions.Create(ctx, txn); err != nil {
		return nil, fmt.Errorf("failed to create transaction: %w", err)
	}

	s.counters.transactionsCreated.Add(1)
	amount, _ := txn.Amount.Float64()
	metrics.RecordTransactionSubmitted(string(txn.Mode), amount)
	return txn, nil
}
