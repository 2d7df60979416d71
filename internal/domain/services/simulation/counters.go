package simulation

import (
	"sync/atomic"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
)

// counters are shared by every tick goroutine and manual trigger
type counters struct {
	customersCreated     atomic.Int64
	foliosCreated        atomic.Int64
	sipsRegistered       atomic.Int64
	transactionsCreated  atomic.Int64
	transactionsSettled  atomic.Int64
	transactionsRejected atomic.Int64
	settlementRetries    atomic.Int64
	sipsExecuted         atomic.Int64
	navUpdates           atomic.Int64
	tickErrors           atomic.Int64
}

func (c *counters) snapshot() entities.SessionCounters {
	return entities.SessionCounters{
		CustomersCreated:     c.customersCreated.Load(),
		FoliosCreated:        c.foliosCreated.Load(),
		SIPsRegistered:       c.sipsRegistered.Load(),
		TransactionsCreated:  c.transactionsCreated.Load(),
		TransactionsSettled:  c.transactionsSettled.Load(),
		TransactionsRejected: c.transactionsRejected.Load(),
		SettlementRetries:    c.settlementRetries.Load(),
		SIPsExecuted:         c.sipsExecuted.Load(),
		NAVUpdates:           c.navUpdates.Load(),
		TickErrors:           c.tickErrors.Load(),
	}
}

func (c *counters) reset() {
	for _, v := range []*atomic.Int64{
		&c.customersCreated, &c.foliosCreated, &c.sipsRegistered,
		&c.transactionsCreated, &c.transactionsSettled, &c.transactionsRejected,
		&c.settlementRetries, &c.sipsExecuted, &c.navUpdates, &c.tickErrors,
	} {
		v.Store(0)
	}
}
