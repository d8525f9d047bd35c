package payroll

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// ========== ROSTER ==========

// FixedItem is a recurring per-employee earning or deduction such as a commission or a loan repayment.
type FixedItem struct {
	ConceptID string
	Amount    decimal.Decimal
}

// RosterEntry - Point-in-time employee data supplied to a calculation
type RosterEntry struct {
	EmployeeID       string
	EmployeeCode     string
	Name             string
	DepartmentID     string
	Department       string
	Position         string
	HireDate         *time.Time
	Status           string
	BaseSalary       *decimal.Decimal
	DaysWorked       decimal.Decimal
	RegularHours     decimal.Decimal
	OvertimeHours50  decimal.Decimal
	OvertimeHours100 decimal.Decimal
	FixedItems       []FixedItem
}

type RosterQuery struct {
	PeriodLabel string
	Kind        PeriodKind
	Scope       ScopeFilter
}

// RosterProvider supplies the eligible employees of a period.
type RosterProvider interface {
	Roster(ctx context.Context, query RosterQuery) ([]RosterEntry, error)
}

// ========== CONCEPT CATALOG ==========

// FormulaInput is what a deduction formula is parameterized by.
type FormulaInput struct {
	GrossPay   decimal.Decimal
	BaseSalary decimal.Decimal
	Kind       PeriodKind
}

// DeductionFormula computes a formula-based deduction such as social security or income tax.
type DeductionFormula interface {
	Compute(input FormulaInput) (decimal.Decimal, error)
}

// FormulaSpec is the stored description of a formula. Type selects the strategy; Params is strategy specific.
type FormulaSpec struct {
	Type   string          `json:"type"`
	Params json.RawMessage `json:"params"`
}

// Concept - Catalog entry describing one earning or deduction
type Concept struct {
	ID        string
	Name      string
	Kind      ConceptKind
	CalcType  CalcType
	Formula   DeductionFormula
	AppliesTo []PeriodKind
	SortOrder int
}

// Applies reports whether the concept takes part in a period of the given kind.
func (c Concept) Applies(kind PeriodKind) bool {
	if len(c.AppliesTo) == 0 {
		return true
	}
	for _, k := range c.AppliesTo {
		if k == kind {
			return true
		}
	}
	return false
}

// Catalog is one consistent read of the concept catalog.
type Catalog struct {
	Concepts []Concept
}

func (c Catalog) Lookup(id string) (Concept, bool) {
	for _, concept := range c.Concepts {
		if concept.ID == id {
			return concept, true
		}
	}
	return Concept{}, false
}

// Formulas returns the formula deductions that apply to kind, in catalog order.
func (c Catalog) Formulas(kind PeriodKind) []Concept {
	var out []Concept
	for _, concept := range c.Concepts {
		if concept.CalcType == CalcTypeFormula && concept.Formula != nil && concept.Applies(kind) {
			out = append(out, concept)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SortOrder != out[j].SortOrder {
			return out[i].SortOrder < out[j].SortOrder
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// ConceptCatalog supplies concept definitions and formulas.
type ConceptCatalog interface {
	Catalog(ctx context.Context) (Catalog, error)
}
