// Package memstore is an in-memory implementation of the repository
// interfaces for service tests. Every operation holds a single mutex, which
// gives each call the same atomicity the SQL statements provide.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
	"github.com/amc-simulator/amc_simulator/internal/domain/repositories"
)

type navKey struct {
	schemeID uuid.UUID
	date     string
}

// Memory holds all rows. Tests may inspect or seed the maps directly while
// no operation is running.
type Memory struct {
	mu sync.Mutex

	Customers    map[uuid.UUID]*entities.Customer
	Schemes      map[uuid.UUID]*entities.Scheme
	NAVHistory   map[navKey]*entities.NAVHistory
	Folios       map[uuid.UUID]*entities.Folio
	Transactions map[uuid.UUID]*entities.Transaction
	SIPs         map[uuid.UUID]*entities.SIPRegistration
	Holdings     map[entities.HoldingKey]*entities.Holding

	// FailOn makes the named operation return the error once
	FailOn map[string]error

	// random picks follow insertion order so tests are deterministic
	customerOrder []uuid.UUID
	folioOrder    []uuid.UUID
	schemeOrder   []uuid.UUID

	txMu sync.Mutex
}

var (
	_ repositories.Transactor            = (*txRepo)(nil)
	_ repositories.CustomerRepository    = (*customerRepo)(nil)
	_ repositories.SchemeRepository      = (*schemeRepo)(nil)
	_ repositories.NAVHistoryRepository  = (*navRepo)(nil)
	_ repositories.FolioRepository       = (*folioRepo)(nil)
	_ repositories.TransactionRepository = (*transactionRepo)(nil)
	_ repositories.SIPRepository         = (*sipRepo)(nil)
	_ repositories.HoldingRepository     = (*holdingRepo)(nil)
	_ repositories.ReportRepository      = (*reportRepo)(nil)
)

// New returns an empty store
func New() *Memory {
	return &Memory{
		Customers:    make(map[uuid.UUID]*entities.Customer),
		Schemes:      make(map[uuid.UUID]*entities.Scheme),
		NAVHistory:   make(map[navKey]*entities.NAVHistory),
		Folios:       make(map[uuid.UUID]*entities.Folio),
		Transactions: make(map[uuid.UUID]*entities.Transaction),
		SIPs:         make(map[uuid.UUID]*entities.SIPRegistration),
		Holdings:     make(map[entities.HoldingKey]*entities.Holding),
		FailOn:       make(map[string]error),
	}
}

// Store returns a repositories.Store backed by m
func (m *Memory) Store() *repositories.Store {
	return &repositories.Store{
		Tx:           (*txRepo)(m),
		Customers:    (*customerRepo)(m),
		Schemes:      (*schemeRepo)(m),
		NAVHistory:   (*navRepo)(m),
		Folios:       (*folioRepo)(m),
		Transactions: (*transactionRepo)(m),
		SIPs:         (*sipRepo)(m),
		Holdings:     (*holdingRepo)(m),
		Reports:      (*reportRepo)(m),
	}
}

// FailNext makes the next call of op return err
func (m *Memory) FailNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.FailOn[op] = err
}

func (m *Memory) fail(op string) error {
	if err, ok := m.FailOn[op]; ok {
		delete(m.FailOn, op)
		return err
	}
	return nil
}

// snapshot copies every map so a failed WithinTx can be rolled back
type snapshot struct {
	customers    map[uuid.UUID]entities.Customer
	schemes      map[uuid.UUID]entities.Scheme
	navHistory   map[navKey]entities.NAVHistory
	folios       map[uuid.UUID]entities.Folio
	transactions map[uuid.UUID]entities.Transaction
	sips         map[uuid.UUID]entities.SIPRegistration
	holdings     map[entities.HoldingKey]entities.Holding
	orders       [3][]uuid.UUID
}

func copyMap[K comparable, V any](in map[K]*V) map[K]V {
	out := make(map[K]V, len(in))
	for k, v := range in {
		out[k] = *v
	}
	return out
}

func restoreMap[K comparable, V any](in map[K]V) map[K]*V {
	out := make(map[K]*V, len(in))
	for k, v := range in {
		v := v
		out[k] = &v
	}
	return out
}

func (m *Memory) takeSnapshot() snapshot {
	return snapshot{
		customers:    copyMap(m.Customers),
		schemes:      copyMap(m.Schemes),
		navHistory:   copyMap(m.NAVHistory),
		folios:       copyMap(m.Folios),
		transactions: copyMap(m.Transactions),
		sips:         copyMap(m.SIPs),
		holdings:     copyMap(m.Holdings),
		orders: [3][]uuid.UUID{
			append([]uuid.UUID(nil), m.customerOrder...),
			append([]uuid.UUID(nil), m.folioOrder...),
			append([]uuid.UUID(nil), m.schemeOrder...),
		},
	}
}

func (m *Memory) restore(s snapshot) {
	m.Customers = restoreMap(s.customers)
	m.Schemes = restoreMap(s.schemes)
	m.NAVHistory = restoreMap(s.navHistory)
	m.Folios = restoreMap(s.folios)
	m.Transactions = restoreMap(s.transactions)
	m.SIPs = restoreMap(s.sips)
	m.Holdings = restoreMap(s.holdings)
	m.customerOrder, m.folioOrder, m.schemeOrder = s.orders[0], s.orders[1], s.orders[2]
}

type txKey struct{}

type txRepo Memory

// WithinTx serializes transactions behind a dedicated lock and rolls every
// map back when fn fails. Nested calls join the outer transaction.
func (r *txRepo) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m := (*Memory)(r)
	if ctx.Value(txKey{}) != nil {
		return fn(ctx)
	}

	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	snap := m.takeSnapshot()
	m.mu.Unlock()

	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		m.mu.Lock()
		m.restore(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

// ---- customers ----

type customerRepo Memory

func (r *customerRepo) Create(_ context.Context, c *entities.Customer) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("customers.create"); err != nil {
		return err
	}
	for _, existing := range m.Customers {
		if existing.PAN == c.PAN {
			return repositories.ErrDuplicate
		}
	}
	cp := *c
	m.Customers[c.ID] = &cp
	m.customerOrder = append(m.customerOrder, c.ID)
	return nil
}

func (r *customerRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Customer, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.Customers[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (m *Memory) activeFolioCount(customerID uuid.UUID) (total, active int) {
	for _, f := range m.Folios {
		if f.CustomerID == customerID {
			total++
			if f.Status == entities.FolioStatusActive {
				active++
			}
		}
	}
	return total, active
}

func (r *customerRepo) FindRandomWithoutFolio(_ context.Context, limit int) ([]*entities.Customer, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Customer
	for _, id := range m.customerOrder {
		if total, _ := m.activeFolioCount(id); total == 0 {
			cp := *m.Customers[id]
			out = append(out, &cp)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *customerRepo) FindRandomBelowFolioCap(_ context.Context, maxFolios, limit int) ([]entities.FolioCandidate, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []entities.FolioCandidate
	for _, id := range m.customerOrder {
		_, active := m.activeFolioCount(id)
		if active > 0 && active < maxFolios {
			out = append(out, entities.FolioCandidate{CustomerID: id, FolioCount: active})
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (r *customerRepo) FindRandom(_ context.Context, limit int) ([]*entities.Customer, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Customer
	for _, id := range m.customerOrder {
		cp := *m.Customers[id]
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// ---- schemes ----

type schemeRepo Memory

func (r *schemeRepo) EnsureDefaults(_ context.Context, schemes []*entities.Scheme) (int, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("schemes.ensure_defaults"); err != nil {
		return 0, err
	}
	existing := make(map[string]bool)
	for _, s := range m.Schemes {
		existing[s.SchemeCode] = true
	}
	inserted := 0
	for _, s := range schemes {
		if existing[s.SchemeCode] {
			continue
		}
		cp := *s
		m.Schemes[s.ID] = &cp
		m.schemeOrder = append(m.schemeOrder, s.ID)
		existing[s.SchemeCode] = true
		inserted++
	}
	return inserted, nil
}

func (r *schemeRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Scheme, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.Schemes[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *schemeRepo) ListActive(_ context.Context) ([]*entities.Scheme, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Scheme
	for _, id := range m.schemeOrder {
		if s := m.Schemes[id]; s.IsActive {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *schemeRepo) FindRandomActive(ctx context.Context) (*entities.Scheme, error) {
	active, _ := r.ListActive(ctx)
	if len(active) == 0 {
		return nil, repositories.ErrNotFound
	}
	return active[0], nil
}

func (r *schemeRepo) UpdateNAV(_ context.Context, id uuid.UUID, nav decimal.Decimal, navDate time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("schemes.update_nav"); err != nil {
		return err
	}
	s, ok := m.Schemes[id]
	if !ok {
		return repositories.ErrNotFound
	}
	s.NAV = nav
	s.NAVDate = navDate
	return nil
}

// ---- nav history ----

type navRepo Memory

func (r *navRepo) Upsert(_ context.Context, e *entities.NAVHistory) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("nav_history.upsert"); err != nil {
		return err
	}
	cp := *e
	m.NAVHistory[navKey{e.SchemeID, e.NAVDate.Format("2006-01-02")}] = &cp
	return nil
}

func (r *navRepo) PruneOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.NAVHistory {
		if e.NAVDate.Before(cutoff) {
			delete(m.NAVHistory, k)
			n++
		}
	}
	return n, nil
}

func (r *navRepo) TopMovers(_ context.Context, day time.Time, limit int) ([]entities.NAVMover, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	today, yesterday := day.Format("2006-01-02"), day.AddDate(0, 0, -1).Format("2006-01-02")
	var out []entities.NAVMover
	for _, s := range m.Schemes {
		cur, ok1 := m.NAVHistory[navKey{s.ID, today}]
		prev, ok2 := m.NAVHistory[navKey{s.ID, yesterday}]
		if !ok1 || !ok2 || prev.NAV.IsZero() {
			continue
		}
		change := cur.NAV.Sub(prev.NAV).Div(prev.NAV).Mul(decimal.NewFromInt(100)).Round(4)
		out = append(out, entities.NAVMover{SchemeCode: s.SchemeCode, PreviousNAV: prev.NAV, CurrentNAV: cur.NAV, ChangePercent: change})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChangePercent.Abs().GreaterThan(out[j].ChangePercent.Abs()) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- folios ----

type folioRepo Memory

func (r *folioRepo) CreateWithinLimit(_ context.Context, f *entities.Folio, maxFolios int) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("folios.create"); err != nil {
		return err
	}
	if _, active := m.activeFolioCount(f.CustomerID); active >= maxFolios {
		return repositories.ErrFolioLimitReached
	}
	cp := *f
	m.Folios[f.ID] = &cp
	m.folioOrder = append(m.folioOrder, f.ID)
	return nil
}

func (r *folioRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Folio, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.Folios[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *f
	return &cp, nil
}

func (r *folioRepo) FindRandomTradable(_ context.Context, limit int) ([]*entities.Folio, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.Folio
	for _, id := range m.folioOrder {
		f := m.Folios[id]
		c, ok := m.Customers[f.CustomerID]
		if f.Status != entities.FolioStatusActive || !ok || !c.CanTransact() {
			continue
		}
		cp := *f
		out = append(out, &cp)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *folioRepo) CountActiveByCustomer(_ context.Context, customerID uuid.UUID) (int, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	_, active := m.activeFolioCount(customerID)
	return active, nil
}

func (r *folioRepo) Close(_ context.Context, id uuid.UUID, at time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.Folios[id]
	if !ok {
		return repositories.ErrNotFound
	}
	f.Close(at)
	return nil
}

// ---- transactions ----

type transactionRepo Memory

func (r *transactionRepo) Create(_ context.Context, t *entities.Transaction) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("transactions.create"); err != nil {
		return err
	}
	cp := *t
	m.Transactions[t.ID] = &cp
	return nil
}

func (r *transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.Transaction, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *transactionRepo) ClaimPendingSettlement(_ context.Context, submittedBefore, now, leaseUntil time.Time, limit int) ([]*entities.Transaction, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var candidates []*entities.Transaction
	for _, t := range m.Transactions {
		if t.CAMSStatus != entities.SettlementStatusPending {
			continue
		}
		if t.Status != entities.TransactionStatusSubmitted && t.Status != entities.TransactionStatusProcessed {
			continue
		}
		if !t.TransactionDate.Before(submittedBefore) {
			continue
		}
		if t.NextSettlementAt != nil && t.NextSettlementAt.After(now) {
			continue
		}
		candidates = append(candidates, t)
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].TransactionDate.Before(candidates[j].TransactionDate) })
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	out := make([]*entities.Transaction, 0, len(candidates))
	for _, t := range candidates {
		lease := leaseUntil
		t.NextSettlementAt = &lease
		cp := *t
		out = append(out, &cp)
	}
	return out, nil
}

func (r *transactionRepo) MarkProcessed(_ context.Context, t *entities.Transaction) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("transactions.mark_processed"); err != nil {
		return err
	}
	stored, ok := m.Transactions[t.ID]
	if !ok || stored.Status != entities.TransactionStatusSubmitted {
		return repositories.ErrConcurrentUpdate
	}
	stored.Status = t.Status
	stored.Units = t.Units
	stored.NAV = t.NAV
	stored.ProcessedAt = t.ProcessedAt
	stored.SettlementDate = t.SettlementDate
	stored.UpdatedAt = t.UpdatedAt
	return nil
}

func (r *transactionRepo) MarkSettled(_ context.Context, id uuid.UUID, reference string, at time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Transactions[id]
	if !ok || stored.CAMSStatus != entities.SettlementStatusPending {
		return repositories.ErrConcurrentUpdate
	}
	stored.CAMSStatus = entities.SettlementStatusProcessed
	stored.CAMSReference = &reference
	stored.NextSettlementAt = nil
	stored.UpdatedAt = at
	return nil
}

func (r *transactionRepo) Reject(_ context.Context, id uuid.UUID, settlement entities.SettlementStatus, reason string, at time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Transactions[id]
	if !ok || stored.CAMSStatus != entities.SettlementStatusPending {
		return repositories.ErrConcurrentUpdate
	}
	if stored.Status == entities.TransactionStatusSubmitted {
		stored.Status = entities.TransactionStatusRejected
	}
	stored.CAMSStatus = settlement
	stored.RejectionReason = &reason
	stored.NextSettlementAt = nil
	stored.UpdatedAt = at
	return nil
}

func (r *transactionRepo) Cancel(_ context.Context, id uuid.UUID, at time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Transactions[id]
	if !ok || stored.Status != entities.TransactionStatusSubmitted {
		return repositories.ErrConcurrentUpdate
	}
	stored.Status = entities.TransactionStatusCancelled
	stored.NextSettlementAt = nil
	stored.UpdatedAt = at
	return nil
}

func (r *transactionRepo) ScheduleSettlementRetry(_ context.Context, id uuid.UUID, attempts int, next time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.Transactions[id]
	if !ok || stored.CAMSStatus != entities.SettlementStatusPending {
		return repositories.ErrConcurrentUpdate
	}
	stored.SettlementAttempts = attempts
	stored.NextSettlementAt = &next
	return nil
}

// ---- sips ----

type sipRepo Memory

func (r *sipRepo) Create(_ context.Context, s *entities.SIPRegistration) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("sips.create"); err != nil {
		return err
	}
	cp := *s
	m.SIPs[s.ID] = &cp
	return nil
}

func (r *sipRepo) GetByID(_ context.Context, id uuid.UUID) (*entities.SIPRegistration, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.SIPs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *sipRepo) FindDue(_ context.Context, now time.Time) ([]*entities.SIPRegistration, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*entities.SIPRegistration
	for _, s := range m.SIPs {
		if s.IsDue(now) {
			cp := *s
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextExecutionDate.Before(*out[j].NextExecutionDate) })
	return out, nil
}

func (r *sipRepo) UpdateExecution(_ context.Context, s *entities.SIPRegistration, prevCount int) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("sips.update_execution"); err != nil {
		return err
	}
	stored, ok := m.SIPs[s.ID]
	if !ok || stored.ExecutionCount != prevCount || stored.Status != entities.SIPStatusActive {
		return repositories.ErrConcurrentUpdate
	}
	cp := *s
	m.SIPs[s.ID] = &cp
	return nil
}

func (r *sipRepo) UpdateStatus(_ context.Context, s *entities.SIPRegistration, prev entities.SIPStatus) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("sips.update_status"); err != nil {
		return err
	}
	stored, ok := m.SIPs[s.ID]
	if !ok || stored.Status != prev {
		return repositories.ErrConcurrentUpdate
	}
	stored.Status = s.Status
	stored.NextExecutionDate = s.NextExecutionDate
	stored.UpdatedAt = s.UpdatedAt
	return nil
}

// ---- holdings ----

type holdingRepo Memory

func (r *holdingRepo) UpsertContribution(_ context.Context, folioID, schemeID uuid.UUID, units, amount decimal.Decimal, at time.Time) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("holdings.upsert"); err != nil {
		return err
	}
	key := entities.HoldingKey{FolioID: folioID, SchemeID: schemeID}
	h, ok := m.Holdings[key]
	if !ok {
		m.Holdings[key] = &entities.Holding{
			FolioID: folioID, SchemeID: schemeID,
			TotalUnits: units, InvestedAmount: amount, CurrentValue: decimal.Zero, LastUpdated: at,
		}
		return nil
	}
	h.TotalUnits = h.TotalUnits.Add(units)
	h.InvestedAmount = h.InvestedAmount.Add(amount)
	h.LastUpdated = at
	return nil
}

func (r *holdingRepo) Revalue(_ context.Context, folioID, schemeID uuid.UUID) error {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.Holdings[entities.HoldingKey{FolioID: folioID, SchemeID: schemeID}]
	if !ok {
		return repositories.ErrNotFound
	}
	s, ok := m.Schemes[schemeID]
	if !ok {
		return repositories.ErrNotFound
	}
	h.CurrentValue = h.TotalUnits.Mul(s.NAV).Round(2)
	return nil
}

func (r *holdingRepo) Get(_ context.Context, folioID, schemeID uuid.UUID) (*entities.Holding, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.Holdings[entities.HoldingKey{FolioID: folioID, SchemeID: schemeID}]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	cp := *h
	return &cp, nil
}

func (r *holdingRepo) RevalueAll(_ context.Context) (int64, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, h := range m.Holdings {
		if s, ok := m.Schemes[h.SchemeID]; ok {
			h.CurrentValue = h.TotalUnits.Mul(s.NAV).Round(2)
			n++
		}
	}
	return n, nil
}

func (m *Memory) derivedHoldings() map[entities.HoldingKey]*entities.Holding {
	out := make(map[entities.HoldingKey]*entities.Holding)
	for _, t := range m.Transactions {
		if !t.IsProcessed() {
			continue
		}
		units, amount := t.SignedContribution()
		key := entities.HoldingKey{FolioID: t.FolioID, SchemeID: t.SchemeID}
		h, ok := out[key]
		if !ok {
			h = &entities.Holding{FolioID: t.FolioID, SchemeID: t.SchemeID}
			out[key] = h
		}
		h.TotalUnits = h.TotalUnits.Add(units)
		h.InvestedAmount = h.InvestedAmount.Add(amount)
	}
	return out
}

func (r *holdingRepo) Rebuild(_ context.Context) (int64, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	derived := m.derivedHoldings()
	for key, h := range derived {
		if s, ok := m.Schemes[key.SchemeID]; ok {
			h.CurrentValue = h.TotalUnits.Mul(s.NAV).Round(2)
		}
		h.LastUpdated = time.Now().UTC()
	}
	m.Holdings = derived
	return int64(len(derived)), nil
}

// ---- reports ----

type reportRepo Memory

func (r *reportRepo) Totals(_ context.Context) (entities.PersistedTotals, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail("reports.totals"); err != nil {
		return entities.PersistedTotals{}, err
	}
	t := entities.PersistedTotals{
		Customers:    int64(len(m.Customers)),
		Folios:       int64(len(m.Folios)),
		Transactions: int64(len(m.Transactions)),
		Schemes:      int64(len(m.Schemes)),
	}
	for _, s := range m.SIPs {
		if s.Status == entities.SIPStatusActive {
			t.ActiveSIPs++
		}
	}
	for _, txn := range m.Transactions {
		if txn.CAMSStatus == entities.SettlementStatusPending {
			t.PendingSettlement++
		}
	}
	return t, nil
}

func (r *reportRepo) Audit(_ context.Context, staleBefore time.Time, epsilon decimal.Decimal) (entities.AuditReport, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var report entities.AuditReport
	for _, t := range m.Transactions {
		if _, ok := m.Folios[t.FolioID]; !ok {
			report.OrphanedTransactions++
		}
		if t.Status == entities.TransactionStatusSubmitted && t.TransactionDate.Before(staleBefore) {
			report.StaleSubmitted++
		}
	}
	derived := m.derivedHoldings()
	for key, h := range m.Holdings {
		expected := decimal.Zero
		if d, ok := derived[key]; ok {
			expected = d.TotalUnits
		}
		if h.TotalUnits.Sub(expected).Abs().GreaterThan(epsilon) {
			report.HoldingsDrift++
		}
	}
	return report, nil
}

func (r *reportRepo) PortfolioSummary(_ context.Context) (entities.ReconciliationReport, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	report := entities.ReconciliationReport{
		Customers: int64(len(m.Customers)),
		AUM:       decimal.Zero,
	}
	for _, f := range m.Folios {
		if f.Status == entities.FolioStatusActive {
			report.Folios++
		}
	}
	for _, h := range m.Holdings {
		report.AUM = report.AUM.Add(h.CurrentValue)
	}
	return report, nil
}

func (r *reportRepo) ModeStatistics(_ context.Context, from, to time.Time) ([]entities.ModeStatistics, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	byMode := make(map[entities.TransactionMode]*entities.ModeStatistics)
	for _, t := range m.Transactions {
		if t.TransactionDate.Before(from) || !t.TransactionDate.Before(to) {
			continue
		}
		s, ok := byMode[t.Mode]
		if !ok {
			s = &entities.ModeStatistics{Mode: t.Mode, Total: decimal.Zero}
			byMode[t.Mode] = s
		}
		s.Count++
		s.Total = s.Total.Add(t.Amount)
	}
	out := make([]entities.ModeStatistics, 0, len(byMode))
	for _, s := range byMode {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Mode < out[j].Mode })
	return out, nil
}

func (r *reportRepo) NewEntityCounts(_ context.Context, from, to time.Time) (int64, int64, error) {
	m := (*Memory)(r)
	m.mu.Lock()
	defer m.mu.Unlock()
	var customers, folios int64
	for _, c := range m.Customers {
		if !c.CreatedAt.Before(from) && c.CreatedAt.Before(to) {
			customers++
		}
	}
	for _, f := range m.Folios {
		if !f.CreatedAt.Before(from) && f.CreatedAt.Before(to) {
			folios++
		}
	}
	return customers, folios, nil
}
