package entities

import (
	"time"

	"github.com/google/uuid"
)

// KYCStatus represents the know-your-customer verification state
type KYCStatus string

const (
	KYCStatusPending   KYCStatus = "PENDING"
	KYCStatusCompleted KYCStatus = "COMPLETED"
	KYCStatusRejected  KYCStatus = "REJECTED"
)

// RiskProfile is the investor's declared risk appetite
type RiskProfile string

const (
	RiskProfileConservative RiskProfile = "CONSERVATIVE"
	RiskProfileModerate     RiskProfile = "MODERATE"
	RiskProfileAggressive   RiskProfile = "AGGRESSIVE"
)

// Customer is an individual investor. Identity fields are immutable after creation.
type Customer struct {
	ID          uuid.UUID   `json:"id" db:"id"`
	PAN         string      `json:"pan" db:"pan"`
	FirstName   string      `json:"first_name" db:"first_name"`
	LastName    string      `json:"last_name" db:"last_name"`
	Email       string      `json:"email" db:"email"`
	Phone       string      `json:"phone" db:"phone"`
	DateOfBirth time.Time   `json:"date_of_birth" db:"date_of_birth"`
	Address     string      `json:"address" db:"address"`
	City        string      `json:"city" db:"city"`
	State       string      `json:"state" db:"state"`
	Pincode     string      `json:"pincode" db:"pincode"`
	KYCStatus   KYCStatus   `json:"kyc_status" db:"kyc_status"`
	RiskProfile RiskProfile `json:"risk_profile" db:"risk_profile"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at" db:"updated_at"`
}

// FullName returns first and last name joined by a space
func (c *Customer) FullName() string {
	return c.FirstName + " " + c.LastName
}

// CanTransact reports whether the customer may place transactions
func (c *Customer) CanTransact() bool {
	return c.KYCStatus == KYCStatusCompleted
}
