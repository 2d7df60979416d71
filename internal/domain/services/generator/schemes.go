package generator

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/amc-simulator/amc_simulator/internal/domain/entities"
)

type schemeSeed struct {
	code, name, subCategory string
	category                entities.SchemeCategory
	nav, minInvestment      string
	minSIP, exitLoad        string
	expenseRatio            string
}

var defaultSchemes = []schemeSeed{
	{"EQ-LC-001", "Bluechip Large Cap Fund - Direct Growth", "Large Cap", entities.SchemeCategoryEquity, "45.6789", "5000", "500", "1.00", "0.85"},
	{"EQ-MC-002", "Emerging Mid Cap Fund - Direct Growth", "Mid Cap", entities.SchemeCategoryEquity, "78.2345", "5000", "500", "1.00", "0.95"},
	{"EQ-SC-003", "Small Cap Opportunities Fund - Direct Growth", "Small Cap", entities.SchemeCategoryEquity, "112.5000", "5000", "1000", "1.00", "1.05"},
	{"EQ-FC-004", "Flexi Cap Fund - Direct Growth", "Flexi Cap", entities.SchemeCategoryEquity, "56.1200", "1000", "500", "1.00", "0.75"},
	{"EQ-TS-005", "Tax Saver ELSS Fund - Direct Growth", "ELSS", entities.SchemeCategoryEquity, "89.4400", "500", "500", "0.00", "0.80"},
	{"DT-LQ-006", "Liquid Fund - Direct Growth", "Liquid", entities.SchemeCategoryDebt, "2345.6789", "1000", "1000", "0.00", "0.20"},
	{"DT-ST-007", "Short Term Debt Fund - Direct Growth", "Short Duration", entities.SchemeCategoryDebt, "28.9012", "5000", "1000", "0.25", "0.35"},
	{"DT-GL-008", "Gilt Fund - Direct Growth", "Gilt", entities.SchemeCategoryDebt, "62.3400", "5000", "1000", "0.00", "0.45"},
	{"HY-BA-009", "Balanced Advantage Fund - Direct Growth", "Balanced Advantage", entities.SchemeCategoryHybrid, "34.5600", "5000", "500", "1.00", "0.70"},
	{"HY-AH-010", "Aggressive Hybrid Fund - Direct Growth", "Aggressive Hybrid", entities.SchemeCategoryHybrid, "41.2300", "5000", "500", "1.00", "0.90"},
}

// DefaultSchemes returns the baseline scheme set seeded on simulation start
func DefaultSchemes(now time.Time) []*entities.Scheme {
	navDate := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	out := make([]*entities.Scheme, 0, len(defaultSchemes))
	for _, s := range defaultSchemes {
		out = append(out, &entities.Scheme{
			ID:            uuid.New(),
			SchemeCode:    s.code,
			SchemeName:    s.name,
			Category:      s.category,
			SubCategory:   s.subCategory,
			NAV:           decimal.RequireFromString(s.nav),
			NAVDate:       navDate,
			MinInvestment: decimal.RequireFromString(s.minInvestment),
			MinSIPAmount:  decimal.RequireFromString(s.minSIP),
			ExitLoad:      decimal.RequireFromString(s.exitLoad),
			ExpenseRatio:  decimal.RequireFromString(s.expenseRatio),
			IsActive:      true,
			CreatedAt:     now,
			UpdatedAt:     now,
		})
	}
	return out
}
