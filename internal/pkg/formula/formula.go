// Package formula holds the deduction strategies that concept catalogs can reference.
package formula

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

const (
	TypeFlatRate    = "flat_rate"
	TypeProgressive = "progressive"
)

const (
	BaseGross      = "gross"
	BaseBaseSalary = "base_salary"
)

var (
	ErrUnknownFormula = errors.New("unknown formula type")
	ErrInvalidParams  = errors.New("invalid formula parameters")
)

// FlatRate deducts Rate of the selected base, optionally capped at Ceiling.
type FlatRate struct {
	Rate    decimal.Decimal  `json:"rate"`
	Base    string           `json:"base,omitempty"`
	Ceiling *decimal.Decimal `json:"ceiling,omitempty"`
}

func (f FlatRate) Compute(input payroll.FormulaInput) (decimal.Decimal, error) {
	base := input.GrossPay
	if f.Base == BaseBaseSalary {
		base = input.BaseSalary
	}
	if f.Ceiling != nil && base.GreaterThan(*f.Ceiling) {
		base = *f.Ceiling
	}
	if base.IsNegative() {
		return decimal.Zero, nil
	}
	return base.Mul(f.Rate), nil
}

func (f FlatRate) validate() error {
	if f.Rate.IsNegative() || f.Rate.GreaterThan(decimal.NewFromInt(1)) {
		return fmt.Errorf("%w: rate must be between 0 and 1", ErrInvalidParams)
	}
	if f.Base != "" && f.Base != BaseGross && f.Base != BaseBaseSalary {
		return fmt.Errorf("%w: base must be %q or %q", ErrInvalidParams, BaseGross, BaseBaseSalary)
	}
	if f.Ceiling != nil && f.Ceiling.IsNegative() {
		return fmt.Errorf("%w: ceiling must be non-negative", ErrInvalidParams)
	}
	return nil
}

// Bracket taxes the slice of income between the previous bracket's UpTo and its own UpTo.
// A nil UpTo is open-ended and must be last.
type Bracket struct {
	UpTo *decimal.Decimal `json:"up_to,omitempty"`
	Rate decimal.Decimal  `json:"rate"`
}

// Progressive applies marginal rates to gross pay above a tax-free Allowance.
type Progressive struct {
	Allowance decimal.Decimal `json:"allowance"`
	Brackets  []Bracket       `json:"brackets"`
}

func (p Progressive) Compute(input payroll.FormulaInput) (decimal.Decimal, error) {
	taxable := input.GrossPay.Sub(p.Allowance)
	if !taxable.IsPositive() {
		return decimal.Zero, nil
	}

	total := decimal.Zero
	lower := decimal.Zero
	for _, b := range p.Brackets {
		upper := taxable
		if b.UpTo != nil && b.UpTo.LessThan(taxable) {
			upper = *b.UpTo
		}
		if upper.GreaterThan(lower) {
			total = total.Add(upper.Sub(lower).Mul(b.Rate))
		}
		if b.UpTo == nil || !b.UpTo.LessThan(taxable) {
			break
		}
		lower = *b.UpTo
	}
	return total, nil
}

func (p Progressive) validate() error {
	if len(p.Brackets) == 0 {
		return fmt.Errorf("%w: at least one bracket is required", ErrInvalidParams)
	}
	if p.Allowance.IsNegative() {
		return fmt.Errorf("%w: allowance must be non-negative", ErrInvalidParams)
	}
	prev := decimal.Zero
	for i, b := range p.Brackets {
		if b.Rate.IsNegative() || b.Rate.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("%w: bracket %d rate must be between 0 and 1", ErrInvalidParams, i)
		}
		if b.UpTo == nil {
			if i != len(p.Brackets)-1 {
				return fmt.Errorf("%w: only the last bracket may be open-ended", ErrInvalidParams)
			}
			continue
		}
		if !b.UpTo.GreaterThan(prev) {
			return fmt.Errorf("%w: bracket limits must be ascending", ErrInvalidParams)
		}
		prev = *b.UpTo
	}
	return nil
}

// Build resolves a stored formula spec into a strategy.
func Build(spec payroll.FormulaSpec) (payroll.DeductionFormula, error) {
	switch spec.Type {
	case TypeFlatRate:
		var f FlatRate
		if err := json.Unmarshal(spec.Params, &f); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := f.validate(); err != nil {
			return nil, err
		}
		return f, nil
	case TypeProgressive:
		var p Progressive
		if err := json.Unmarshal(spec.Params, &p); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidParams, err)
		}
		if err := p.validate(); err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownFormula, spec.Type)
}
