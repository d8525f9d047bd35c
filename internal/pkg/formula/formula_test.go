package formula

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestFlatRate_Compute(t *testing.T) {
	f := FlatRate{Rate: d("0.10")}
	got, err := f.Compute(payroll.FormulaInput{GrossPay: d("5000")})
	require.NoError(t, err)
	assert.True(t, got.Equal(d("500")), got.String())

	ceiling := d("3000")
	capped := FlatRate{Rate: d("0.04"), Ceiling: &ceiling}
	got, err = capped.Compute(payroll.FormulaInput{GrossPay: d("5000")})
	require.NoError(t, err)
	assert.True(t, got.Equal(d("120")), got.String())

	onBase := FlatRate{Rate: d("0.02"), Base: BaseBaseSalary}
	got, err = onBase.Compute(payroll.FormulaInput{GrossPay: d("6000"), BaseSalary: d("5000")})
	require.NoError(t, err)
	assert.True(t, got.Equal(d("100")), got.String())
}

func TestProgressive_Compute(t *testing.T) {
	b1, b2 := d("1000"), d("3000")
	p := Progressive{
		Allowance: d("500"),
		Brackets: []Bracket{
			{UpTo: &b1, Rate: d("0.05")},
			{UpTo: &b2, Rate: d("0.10")},
			{Rate: d("0.20")},
		},
	}

	cases := []struct {
		gross string
		want  string
	}{
		{"400", "0"},    // below allowance
		{"1500", "50"},  // 1000 taxable, all in first bracket
		{"2500", "150"}, // 50 + 1000*0.10
		{"5500", "650"}, // 50 + 200 + 2000*0.20
		{"3500", "250"}, // exactly at the second limit
	}
	for _, c := range cases {
		got, err := p.Compute(payroll.FormulaInput{GrossPay: d(c.gross)})
		require.NoError(t, err)
		assert.True(t, got.Equal(d(c.want)), "gross %s: got %s want %s", c.gross, got, c.want)
	}
}

func TestBuild(t *testing.T) {
	f, err := Build(payroll.FormulaSpec{Type: TypeFlatRate, Params: json.RawMessage(`{"rate":"0.10"}`)})
	require.NoError(t, err)
	got, err := f.Compute(payroll.FormulaInput{GrossPay: d("5000")})
	require.NoError(t, err)
	assert.True(t, got.Equal(d("500")))

	_, err = Build(payroll.FormulaSpec{Type: TypeProgressive, Params: json.RawMessage(`{"brackets":[{"rate":0.1},{"up_to":"100","rate":0.2}]}`)})
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = Build(payroll.FormulaSpec{Type: TypeFlatRate, Params: json.RawMessage(`{"rate":"1.5"}`)})
	assert.True(t, errors.Is(err, ErrInvalidParams))

	_, err = Build(payroll.FormulaSpec{Type: "lookup_table"})
	assert.True(t, errors.Is(err, ErrUnknownFormula))
}
