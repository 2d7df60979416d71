package lifecycle

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
)

// FolioClosure is the result of closing a folio
type FolioClosure struct {
	Folio *entities.Folio `json:"folio"`
	// RemainingActive is the customer's ACTIVE folio count after the close
	RemainingActive int `json:"remaining_active_folios"`
}

// Manager applies investor-initiated state changes to SIPs, folios and
// transactions. Every write is conditional on the state that was read, so a
// concurrent SIP run or settlement batch wins and the caller sees
// ErrConcurrentUpdate.
type Manager struct {
	store  *repositories.Store
	logger *zap.Logger
	now    func() time.Time
}

// NewManager creates a lifecycle manager
func NewManager(store *repositories.Store, logger *zap.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PauseSIP suspends an ACTIVE registration
func (m *Manager) PauseSIP(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	return m.changeSIP(ctx, id, "pause", (*entities.SIPRegistration).Pause)
}

// ResumeSIP reactivates a PAUSED registration, skipping missed instalments.
// Resuming an ACTIVE registration changes nothing.
func (m *Manager) ResumeSIP(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	return m.changeSIP(ctx, id, "resume", (*entities.SIPRegistration).Resume)
}

// CancelSIP terminates a registration that is not already terminal
func (m *Manager) CancelSIP(ctx context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	return m.changeSIP(ctx, id, "cancel", (*entities.SIPRegistration).Cancel)
}

func (m *Manager) changeSIP(ctx context.Context, id uuid.UUID, action string, apply func(*entities.SIPRegistration, time.Time) error) (*entities.SIPRegistration, error) {
	reg, err := m.store.SIPs.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load sip: %w", err)
	}

	prev := reg.Status
	if err := apply(reg, m.now()); err != nil {
		return nil, err
	}
	if reg.Status == prev {
		return reg, nil
	}

	if err := m.store.SIPs.UpdateStatus(ctx, reg, prev); err != nil {
		return nil, fmt.Errorf("failed to %s sip: %w", action, err)
	}

	m.logger.Info("SIP status changed",
		zap.String("sip_id", id.String()),
		zap.String("from", string(prev)),
		zap.String("to", string(reg.Status)))
	return reg, nil
}

// CloseFolio soft-closes a folio. Closing a CLOSED folio keeps its close date.
func (m *Manager) CloseFolio(ctx context.Context, id uuid.UUID) (FolioClosure, error) {
	var closure FolioClosure

	folio, err := m.store.Folios.GetByID(ctx, id)
	if err != nil {
		return closure, fmt.Errorf("failed to load folio: %w", err)
	}

	if folio.Status != entities.FolioStatusClosed {
		now := m.now()
		if err := m.store.Folios.Close(ctx, id, now); err != nil {
			return closure, fmt.Errorf("failed to close folio: %w", err)
		}
		folio.Close(now)
		m.logger.Info("Folio closed",
			zap.String("folio_id", id.String()),
			zap.String("customer_id", folio.CustomerID.String()))
	}

	remaining, err := m.store.Folios.CountActiveByCustomer(ctx, folio.CustomerID)
	if err != nil {
		return closure, fmt.Errorf("failed to count active folios: %w", err)
	}

	closure.Folio = folio
	closure.RemainingActive = remaining
	return closure, nil
}

// CancelTransaction withdraws a SUBMITTED transaction before it is allotted
func (m *Manager) CancelTransaction(ctx context.Context, id uuid.UUID) (*entities.Transaction, error) {
	txn, err := m.store.Transactions.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load transaction: %w", err)
	}

	now := m.now()
	if err := txn.Cancel(now); err != nil {
		return nil, err
	}
	if err := m.store.Transactions.Cancel(ctx, id, now); err != nil {
		return nil, fmt.Errorf("failed to cancel transaction: %w", err)
	}
	txn.NextSettlementAt = nil

	m.logger.Info("Transaction cancelled",
		zap.String("transaction_id", id.String()),
		zap.String("transaction_number", txn.TransactionNumber))
	return txn, nil
}
