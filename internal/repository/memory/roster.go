package memory

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/formula"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// StaticRoster serves a fixed employee list.
type StaticRoster struct {
	mu      sync.RWMutex
	entries []payroll.RosterEntry
}

func NewStaticRoster(entries []payroll.RosterEntry) *StaticRoster {
	return &StaticRoster{entries: entries}
}

func (r *StaticRoster) SetEntries(entries []payroll.RosterEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = entries
}

func (r *StaticRoster) Roster(ctx context.Context, query payroll.RosterQuery) ([]payroll.RosterEntry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []payroll.RosterEntry{}
	for _, e := range r.entries {
		if e.Status != "" && e.Status != "active" {
			continue
		}
		if !inScope(query.Scope, e) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func inScope(scope payroll.ScopeFilter, e payroll.RosterEntry) bool {
	if len(scope.DepartmentIDs) > 0 && !validator.IsInSlice(e.DepartmentID, scope.DepartmentIDs) {
		return false
	}
	if len(scope.EmployeeIDs) > 0 && !validator.IsInSlice(e.EmployeeID, scope.EmployeeIDs) {
		return false
	}
	return true
}

// StaticCatalog serves a fixed concept catalog.
type StaticCatalog struct {
	catalog payroll.Catalog
}

func NewStaticCatalog(catalog payroll.Catalog) *StaticCatalog {
	return &StaticCatalog{catalog: catalog}
}

func (c *StaticCatalog) Catalog(ctx context.Context) (payroll.Catalog, error) {
	if err := ctx.Err(); err != nil {
		return payroll.Catalog{}, err
	}
	return c.catalog, nil
}

// DefaultCatalog is the concept set seeded by the schema migrations, for runs without a database.
func DefaultCatalog() payroll.Catalog {
	ceiling := decimal.NewFromInt(12000)
	socialSecurity := formula.FlatRate{Rate: decimal.RequireFromString("0.04"), Ceiling: &ceiling}

	incomeTax, err := formula.Build(payroll.FormulaSpec{
		Type:   formula.TypeProgressive,
		Params: json.RawMessage(`{"allowance":"1000","brackets":[{"up_to":"2500","rate":"0.05"},{"up_to":"6000","rate":"0.15"},{"rate":"0.25"}]}`),
	})
	if err != nil {
		panic(err)
	}

	return payroll.Catalog{Concepts: []payroll.Concept{
		{ID: payroll.ConceptBaseSalary, Name: "Base Salary", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeComputed, SortOrder: 1},
		{ID: payroll.ConceptOvertime50, Name: "Overtime 50%", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeComputed, SortOrder: 2},
		{ID: payroll.ConceptOvertime100, Name: "Overtime 100%", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeComputed, SortOrder: 3},
		{ID: payroll.ConceptBonus13, Name: "13th Month Bonus", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeComputed, SortOrder: 4},
		{ID: payroll.ConceptBonus14, Name: "14th Month Bonus", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeComputed, SortOrder: 5},
		{ID: "commission", Name: "Commission", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeFixed, SortOrder: 10,
			AppliesTo: []payroll.PeriodKind{payroll.PeriodKindOrdinary, payroll.PeriodKindExtraordinary}},
		{ID: "loan_repayment", Name: "Loan Repayment", Kind: payroll.ConceptKindDeduction, CalcType: payroll.CalcTypeFixed, SortOrder: 40,
			AppliesTo: []payroll.PeriodKind{payroll.PeriodKindOrdinary}},
		{ID: "salary_advance", Name: "Salary Advance", Kind: payroll.ConceptKindDeduction, CalcType: payroll.CalcTypeFixed, SortOrder: 41,
			AppliesTo: []payroll.PeriodKind{payroll.PeriodKindOrdinary}},
		{ID: "social_security", Name: "Social Security", Kind: payroll.ConceptKindDeduction, CalcType: payroll.CalcTypeFormula, Formula: socialSecurity, SortOrder: 20},
		{ID: "income_tax", Name: "Income Tax", Kind: payroll.ConceptKindDeduction, CalcType: payroll.CalcTypeFormula, Formula: incomeTax, SortOrder: 30},
		{ID: "other_earning", Name: "Other Earning", Kind: payroll.ConceptKindEarning, CalcType: payroll.CalcTypeManual, SortOrder: 90},
		{ID: "other_deduction", Name: "Other Deduction", Kind: payroll.ConceptKindDeduction, CalcType: payroll.CalcTypeManual, SortOrder: 91},
	}}
}
