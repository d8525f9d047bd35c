package payroll

import (
	"errors"
	"testing"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validationFields(t *testing.T, err error) map[string]string {
	t.Helper()
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs), "expected validation errors, got %v", err)
	return verrs.ToMap()
}

func TestCreatePeriodRequest_Validate(t *testing.T) {
	req := CreatePeriodRequest{Label: "  2025-01 ", Kind: "ordinary"}
	require.NoError(t, req.Validate())
	assert.Equal(t, "2025-01", req.Label)

	req = CreatePeriodRequest{Label: "", Kind: "weekly", EmployeeIDs: []string{""}}
	fields := validationFields(t, req.Validate())
	assert.Contains(t, fields, "label")
	assert.Contains(t, fields, "kind")
	assert.Contains(t, fields, "employee_ids")
}

func TestAddAdjustmentRequest_Validate(t *testing.T) {
	valid := AddAdjustmentRequest{
		LineID:    "line-1",
		ConceptID: "commission",
		Kind:      "earning",
		Amount:    decimal.NewFromInt(100),
		Reason:    "missed commission",
	}
	require.NoError(t, valid.Validate())

	zero := valid
	zero.Amount = decimal.Zero
	assert.Equal(t, "must be non-zero", validationFields(t, zero.Validate())["amount"])

	negative := valid
	negative.Amount = decimal.NewFromInt(-5)
	assert.Contains(t, validationFields(t, negative.Validate()), "amount")

	fraction := valid
	fraction.Amount = decimal.RequireFromString("0.001")
	assert.Equal(t, "must have at most 2 decimal places", validationFields(t, fraction.Validate())["amount"])

	cents := valid
	cents.Amount = decimal.RequireFromString("10.25")
	require.NoError(t, cents.Validate())

	noReason := valid
	noReason.Reason = "   "
	assert.Equal(t, "reason is required", validationFields(t, noReason.Validate())["reason"])

	badKind := valid
	badKind.Kind = "bonus"
	assert.Contains(t, validationFields(t, badKind.Validate()), "kind")
}

func TestMarkPaidRequest_PaidTime(t *testing.T) {
	fallback := time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC)

	var empty MarkPaidRequest
	require.NoError(t, empty.Validate())
	assert.Equal(t, fallback, empty.PaidTime(fallback))

	at := "2025-02-03T10:00:00Z"
	req := MarkPaidRequest{PaidAt: &at}
	require.NoError(t, req.Validate())
	assert.Equal(t, time.Date(2025, 2, 3, 10, 0, 0, 0, time.UTC), req.PaidTime(fallback))

	bad := "yesterday"
	req = MarkPaidRequest{PaidAt: &bad}
	assert.Contains(t, validationFields(t, req.Validate()), "paid_at")
}

func TestPeriodFilter_Defaults(t *testing.T) {
	f := PeriodFilter{}
	require.NoError(t, f.Validate())
	assert.Equal(t, 1, f.Page)
	assert.Equal(t, 20, f.Limit)

	state := "archived"
	f = PeriodFilter{State: &state, Limit: 500}
	fields := validationFields(t, f.Validate())
	assert.Contains(t, fields, "state")
	assert.Contains(t, fields, "limit")
}

func TestCatalog_Formulas(t *testing.T) {
	f := stubFormula{}
	catalog := Catalog{Concepts: []Concept{
		{ID: "income_tax", CalcType: CalcTypeFormula, Formula: f, SortOrder: 20},
		{ID: "social_security", CalcType: CalcTypeFormula, Formula: f, SortOrder: 10},
		{ID: "bonus_tax", CalcType: CalcTypeFormula, Formula: f, SortOrder: 5, AppliesTo: []PeriodKind{PeriodKindBonus13}},
		{ID: "commission", CalcType: CalcTypeFixed},
	}}

	ordinary := catalog.Formulas(PeriodKindOrdinary)
	require.Len(t, ordinary, 2)
	assert.Equal(t, "social_security", ordinary[0].ID)
	assert.Equal(t, "income_tax", ordinary[1].ID)

	bonus := catalog.Formulas(PeriodKindBonus13)
	require.Len(t, bonus, 3)
	assert.Equal(t, "bonus_tax", bonus[0].ID)

	_, ok := catalog.Lookup("commission")
	assert.True(t, ok)
	_, ok = catalog.Lookup("missing")
	assert.False(t, ok)
}

type stubFormula struct{}

func (stubFormula) Compute(FormulaInput) (decimal.Decimal, error) { return decimal.Zero, nil }
