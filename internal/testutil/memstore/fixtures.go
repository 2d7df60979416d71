package memstore

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
)

// AddScheme seeds an active scheme with the given NAV
func (m *Memory) AddScheme(code string, category entities.SchemeCategory, nav string) *entities.Scheme {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &entities.Scheme{
		ID:         uuid.New(),
		SchemeCode: code,
		SchemeName: code,
		Category:   category,
		NAV:        decimal.RequireFromString(nav),
		IsActive:   true,
	}
	m.Schemes[s.ID] = s
	m.schemeOrder = append(m.schemeOrder, s.ID)
	cp := *s
	return &cp
}

// AddCustomer seeds a customer with the given KYC status
func (m *Memory) AddCustomer(kyc entities.KYCStatus) *entities.Customer {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := &entities.Customer{
		ID:        uuid.New(),
		PAN:       uuid.NewString()[:10],
		FirstName: "Test",
		LastName:  "Investor",
		KYCStatus: kyc,
	}
	m.Customers[c.ID] = c
	m.customerOrder = append(m.customerOrder, c.ID)
	cp := *c
	return &cp
}

// AddFolio seeds an ACTIVE folio
func (m *Memory) AddFolio(customerID, schemeID uuid.UUID) *entities.Folio {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := &entities.Folio{
		ID:          uuid.New(),
		FolioNumber: uuid.NewString()[:8],
		CustomerID:  customerID,
		SchemeID:    schemeID,
		Status:      entities.FolioStatusActive,
	}
	m.Folios[f.ID] = f
	m.folioOrder = append(m.folioOrder, f.ID)
	cp := *f
	return &cp
}

// AddTransaction stores a copy of txn as is
func (m *Memory) AddTransaction(txn *entities.Transaction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *txn
	m.Transactions[txn.ID] = &cp
}

// Transaction returns a copy of the stored transaction
func (m *Memory) Transaction(id uuid.UUID) *entities.Transaction {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.Transactions[id]
	if !ok {
		return nil
	}
	cp := *t
	return &cp
}

// Holding returns a copy of the stored holding
func (m *Memory) Holding(folioID, schemeID uuid.UUID) *entities.Holding {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.Holdings[entities.HoldingKey{FolioID: folioID, SchemeID: schemeID}]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// SIP returns a copy of the stored registration
func (m *Memory) SIP(id uuid.UUID) *entities.SIPRegistration {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.SIPs[id]
	if !ok {
		return nil
	}
	cp := *s
	return &cp
}

// Count returns the number of rows in each table
func (m *Memory) Count() (customers, folios, transactions, sips int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Customers), len(m.Folios), len(m.Transactions), len(m.SIPs)
}

// SetHolding seeds a holding directly
func (m *Memory) SetHolding(h entities.Holding) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Holdings[h.Key()] = &h
}

// Submitted returns a SUBMITTED transaction dated at
func Submitted(folio *entities.Folio, txType entities.TransactionType, mode entities.TransactionMode, amount string, at time.Time) *entities.Transaction {
	return entities.NewTransaction(folio.ID, folio.SchemeID, txType, mode, decimal.RequireFromString(amount), at)
}
