package hrbackend

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

type fixedItemDTO struct {
	ConceptID string          `json:"concept_id"`
	Amount    decimal.Decimal `json:"amount"`
}

// employeeDTO accepts the field aliases seen across HR backend versions.
type employeeDTO struct {
	ID               string           `json:"id"`
	EmployeeID       string           `json:"employee_id"`
	EmployeeCode     string           `json:"employee_code"`
	Name             string           `json:"name"`
	FullName         string           `json:"full_name"`
	DepartmentID     string           `json:"department_id"`
	Department       string           `json:"department"`
	DepartmentName   string           `json:"department_name"`
	Position         string           `json:"position"`
	PositionName     string           `json:"position_name"`
	HireDate         *string          `json:"hire_date"`
	Status           string           `json:"status"`
	EmploymentStatus string           `json:"employment_status"`
	BaseSalary       *decimal.Decimal `json:"base_salary"`
	DaysWorked       decimal.Decimal  `json:"days_worked"`
	RegularHours     decimal.Decimal  `json:"regular_hours"`
	OvertimeHours50  decimal.Decimal  `json:"overtime_hours_50"`
	OvertimeHours100 decimal.Decimal  `json:"overtime_hours_100"`
	FixedItems       []fixedItemDTO   `json:"fixed_items"`
}

func (c *Client) Roster(ctx context.Context, query payroll.RosterQuery) ([]payroll.RosterEntry, error) {
	params := url.Values{}
	params.Set("period", query.PeriodLabel)
	params.Set("kind", string(query.Kind))
	for _, id := range query.Scope.DepartmentIDs {
		params.Add("department_id", id)
	}
	for _, id := range query.Scope.EmployeeIDs {
		params.Add("employee_id", id)
	}

	var dtos []employeeDTO
	if err := c.get(ctx, rosterPath, params, &dtos); err != nil {
		return nil, err
	}

	entries := make([]payroll.RosterEntry, 0, len(dtos))
	for i, d := range dtos {
		entry, err := d.toEntry()
		if err != nil {
			return nil, fmt.Errorf("roster entry %d: %w", i, err)
		}
		if entry.Status != "active" {
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func (d employeeDTO) toEntry() (payroll.RosterEntry, error) {
	entry := payroll.RosterEntry{
		EmployeeID:       firstNonEmpty(d.EmployeeID, d.ID),
		EmployeeCode:     d.EmployeeCode,
		Name:             firstNonEmpty(d.FullName, d.Name),
		DepartmentID:     d.DepartmentID,
		Department:       firstNonEmpty(d.DepartmentName, d.Department),
		Position:         firstNonEmpty(d.PositionName, d.Position),
		Status:           strings.ToLower(firstNonEmpty(d.EmploymentStatus, d.Status, "active")),
		BaseSalary:       d.BaseSalary,
		DaysWorked:       d.DaysWorked,
		RegularHours:     d.RegularHours,
		OvertimeHours50:  d.OvertimeHours50,
		OvertimeHours100: d.OvertimeHours100,
	}
	if validator.IsEmpty(entry.EmployeeID) {
		return payroll.RosterEntry{}, fmt.Errorf("%w: employee id missing", ErrIncompleteData)
	}
	if d.HireDate != nil && *d.HireDate != "" {
		t, ok := validator.IsValidDate(*d.HireDate)
		if !ok {
			t, ok = validator.IsValidDateTime(*d.HireDate)
		}
		if !ok {
			return payroll.RosterEntry{}, fmt.Errorf("%w: employee %s has unreadable hire date %q", ErrIncompleteData, entry.EmployeeID, *d.HireDate)
		}
		entry.HireDate = &t
	}
	for _, item := range d.FixedItems {
		if validator.IsEmpty(item.ConceptID) {
			return payroll.RosterEntry{}, fmt.Errorf("%w: employee %s has a fixed item without concept", ErrIncompleteData, entry.EmployeeID)
		}
		entry.FixedItems = append(entry.FixedItems, payroll.FixedItem{ConceptID: item.ConceptID, Amount: item.Amount})
	}
	return entry, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if s := strings.TrimSpace(v); s != "" {
			return s
		}
	}
	return ""
}
