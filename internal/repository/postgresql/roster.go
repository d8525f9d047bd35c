package postgresql

import (
	"context"
	"fmt"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// rosterRepository reads the roster from the employee, attendance and payroll item tables
// kept in the same database by the HR modules.
type rosterRepository struct {
	db *database.DB
}

func NewRosterRepository(db *database.DB) payroll.RosterProvider {
	return &rosterRepository{db: db}
}

func (r *rosterRepository) Roster(ctx context.Context, query payroll.RosterQuery) ([]payroll.RosterEntry, error) {
	var entries []payroll.RosterEntry

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := WithTransaction(ctx, r.db, opts, func(tx pgx.Tx) error {
		var err error
		entries, err = r.employees(ctx, tx, query)
		if err != nil {
			return err
		}
		return r.attachFixedItems(ctx, tx, query.PeriodLabel, entries)
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func (r *rosterRepository) employees(ctx context.Context, q database.Querier, query payroll.RosterQuery) ([]payroll.RosterEntry, error) {
	sql := `
		SELECT e.id, e.employee_code, e.full_name,
			   COALESCE(e.department_id, ''), COALESCE(d.name, ''), COALESCE(p.name, ''),
			   e.hire_date, e.employment_status, e.base_salary,
			   COALESCE(a.days_worked, 0), COALESCE(a.regular_hours, 0),
			   COALESCE(a.overtime_hours_50, 0), COALESCE(a.overtime_hours_100, 0)
		FROM employees e
		LEFT JOIN departments d ON d.id = e.department_id
		LEFT JOIN positions p ON p.id = e.position_id
		LEFT JOIN payroll_attendance a ON a.employee_id = e.id AND a.period_label = $1
		WHERE e.employment_status = 'active'
		  AND ($2::text[] IS NULL OR e.department_id = ANY($2))
		  AND ($3::text[] IS NULL OR e.id = ANY($3))
		ORDER BY e.id
	`

	rows, err := q.Query(ctx, sql, query.PeriodLabel, nilIfEmpty(query.Scope.DepartmentIDs), nilIfEmpty(query.Scope.EmployeeIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}
	defer rows.Close()

	entries := []payroll.RosterEntry{}
	for rows.Next() {
		var e payroll.RosterEntry
		var salary decimal.NullDecimal
		if err := rows.Scan(
			&e.EmployeeID, &e.EmployeeCode, &e.Name,
			&e.DepartmentID, &e.Department, &e.Position,
			&e.HireDate, &e.Status, &salary,
			&e.DaysWorked, &e.RegularHours,
			&e.OvertimeHours50, &e.OvertimeHours100,
		); err != nil {
			return nil, fmt.Errorf("failed to scan roster entry: %w", err)
		}
		if salary.Valid {
			s := salary.Decimal
			e.BaseSalary = &s
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to query roster: %w", err)
	}

	return entries, nil
}

// attachFixedItems loads recurring items plus the items recorded for this period label only.
func (r *rosterRepository) attachFixedItems(ctx context.Context, q database.Querier, label string, entries []payroll.RosterEntry) error {
	if len(entries) == 0 {
		return nil
	}

	index := make(map[string]int, len(entries))
	ids := make([]string, 0, len(entries))
	for i, e := range entries {
		index[e.EmployeeID] = i
		ids = append(ids, e.EmployeeID)
	}

	sql := `
		SELECT employee_id, concept_id, amount
		FROM employee_payroll_items
		WHERE employee_id = ANY($1) AND (period_label IS NULL OR period_label = $2)
		ORDER BY employee_id, concept_id, id
	`
	rows, err := q.Query(ctx, sql, ids, label)
	if err != nil {
		return fmt.Errorf("failed to query payroll items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var employeeID string
		var item payroll.FixedItem
		if err := rows.Scan(&employeeID, &item.ConceptID, &item.Amount); err != nil {
			return fmt.Errorf("failed to scan payroll item: %w", err)
		}
		i := index[employeeID]
		entries[i].FixedItems = append(entries[i].FixedItems, item)
	}
	return rows.Err()
}

func nilIfEmpty(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	return values
}
