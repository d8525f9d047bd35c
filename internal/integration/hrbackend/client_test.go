package hrbackend

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(Config{BaseURL: srv.URL, Token: "secret", Timeout: time.Second})
	require.NoError(t, err)
	return c
}

func TestNewClient_RequiresURL(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err)
}

func TestClient_Roster_PascalCaseEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, rosterPath, r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "2025-01", r.URL.Query().Get("period"))
		assert.Equal(t, []string{"dept-eng"}, r.URL.Query()["department_id"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"message":"ok","data":[
			{"EmployeeID":"emp-1","FullName":"Ada","DepartmentID":"dept-eng","DepartmentName":"Engineering",
			 "HireDate":"2022-03-01","EmploymentStatus":"Active","BaseSalary":"5000.00","DaysWorked":22,
			 "OvertimeHours50":4,"FixedItems":[{"ConceptID":"commission","Amount":150.5}]},
			{"EmployeeID":"emp-2","FullName":"Grace","EmploymentStatus":"terminated","BaseSalary":4000}
		]}`))
	})

	entries, err := c.Roster(context.Background(), payroll.RosterQuery{
		PeriodLabel: "2025-01",
		Kind:        payroll.PeriodKindOrdinary,
		Scope:       payroll.ScopeFilter{DepartmentIDs: []string{"dept-eng"}},
	})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	e := entries[0]
	assert.Equal(t, "emp-1", e.EmployeeID)
	assert.Equal(t, "Ada", e.Name)
	assert.Equal(t, "Engineering", e.Department)
	require.NotNil(t, e.HireDate)
	assert.Equal(t, 2022, e.HireDate.Year())
	require.NotNil(t, e.BaseSalary)
	assert.True(t, e.BaseSalary.Equal(decimal.NewFromInt(5000)))
	assert.True(t, e.OvertimeHours50.Equal(decimal.NewFromInt(4)))
	require.Len(t, e.FixedItems, 1)
	assert.Equal(t, "150.5", e.FixedItems[0].Amount.String())
}

func TestClient_Roster_CamelCaseBareArray(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"employeeId":"emp-9","name":"Linus","baseSalary":null,"regularHours":160}]`))
	})

	entries, err := c.Roster(context.Background(), payroll.RosterQuery{PeriodLabel: "2025-01"})

	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Nil(t, entries[0].BaseSalary)
	assert.Equal(t, "active", entries[0].Status)
}

func TestClient_Roster_MissingEmployeeID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[{"name":"nobody"}]`))
	})

	_, err := c.Roster(context.Background(), payroll.RosterQuery{})

	assert.ErrorIs(t, err, ErrIncompleteData)
}

func TestClient_Roster_ServerError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "maintenance", http.StatusServiceUnavailable)
	})

	_, err := c.Roster(context.Background(), payroll.RosterQuery{})

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusServiceUnavailable, apiErr.StatusCode)
	assert.Equal(t, "maintenance", apiErr.Body)
}

func TestClient_Roster_Timeout(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := c.Roster(ctx, payroll.RosterQuery{})

	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_Catalog(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, conceptsPath, r.URL.Path)
		_, _ = w.Write([]byte(`{"data":[
			{"Code":"base_salary","Name":"Base Salary","Type":"earning","CalcType":"computed","SortOrder":1},
			{"id":"income_tax","name":"Income Tax","kind":"deduction","calcType":"formula","sortOrder":30,
			 "formula":{"type":"flat_rate","params":{"rate":0.1,"Ceiling":"10000"}}},
			{"id":"legacy","name":"Legacy","kind":"earning","calc_type":"fixed","is_active":false},
			{"id":"commission","name":"Commission","kind":"earning","calc_type":"fixed","appliesTo":["ORDINARY"]}
		]}`))
	})

	catalog, err := c.Catalog(context.Background())

	require.NoError(t, err)
	assert.Len(t, catalog.Concepts, 3)
	_, ok := catalog.Lookup("legacy")
	assert.False(t, ok)

	tax, ok := catalog.Lookup("income_tax")
	require.True(t, ok)
	require.NotNil(t, tax.Formula)
	amount, err := tax.Formula.Compute(payroll.FormulaInput{GrossPay: decimal.NewFromInt(12000)})
	require.NoError(t, err)
	assert.True(t, amount.Equal(decimal.NewFromInt(1000)))

	commission, ok := catalog.Lookup("commission")
	require.True(t, ok)
	assert.Equal(t, []payroll.PeriodKind{payroll.PeriodKindOrdinary}, commission.AppliesTo)
}

func TestClient_Catalog_RejectsInvalidConcepts(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"unknown kind", `[{"id":"x","kind":"bonus","calc_type":"fixed"}]`},
		{"formula without spec", `[{"id":"x","kind":"deduction","calc_type":"formula"}]`},
		{"missing id", `[{"kind":"earning","calc_type":"fixed"}]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(tt.body))
			})

			_, err := c.Catalog(context.Background())

			assert.ErrorIs(t, err, ErrIncompleteData)
		})
	}
}
