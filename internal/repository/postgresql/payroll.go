package postgresql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/database"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const uniqueViolation = "23505"

type payrollRepository struct {
	db *database.DB
}

func NewPayrollRepository(db *database.DB) payroll.PayrollRepository {
	return &payrollRepository{db: db}
}

// ========== PERIODS ==========

const periodColumns = `
	id, label, kind, state, scope, created_at, created_by,
	calculated_at, last_calculated_at, approved_at, approved_by, paid_at,
	voided_at, voided_by, void_reason, recalculation_pending, revision
`

func scanPeriod(row pgx.Row) (payroll.Period, error) {
	var p payroll.Period
	var scope []byte
	err := row.Scan(
		&p.ID, &p.Label, &p.Kind, &p.State, &scope, &p.CreatedAt, &p.CreatedBy,
		&p.CalculatedAt, &p.LastCalculatedAt, &p.ApprovedAt, &p.ApprovedBy, &p.PaidAt,
		&p.VoidedAt, &p.VoidedBy, &p.VoidReason, &p.RecalculationPending, &p.Revision,
	)
	if err != nil {
		return payroll.Period{}, err
	}
	if len(scope) > 0 {
		if err := json.Unmarshal(scope, &p.Scope); err != nil {
			return payroll.Period{}, fmt.Errorf("failed to decode period scope: %w", err)
		}
	}
	return p, nil
}

func (r *payrollRepository) CreatePeriod(ctx context.Context, period payroll.Period) error {
	q := GetQuerier(ctx, r.db)

	scope, err := json.Marshal(period.Scope)
	if err != nil {
		return fmt.Errorf("failed to encode period scope: %w", err)
	}

	query := `
		INSERT INTO payroll_periods (id, label, kind, state, scope, created_at, created_by, revision)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err = q.Exec(ctx, query,
		period.ID, period.Label, period.Kind, period.State, scope, period.CreatedAt, period.CreatedBy, period.Revision,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == "uk_payroll_period_label" {
			return payroll.ErrPeriodLabelExists
		}
		return fmt.Errorf("failed to create payroll period: %w", err)
	}

	return nil
}

func (r *payrollRepository) GetPeriod(ctx context.Context, id string) (payroll.Period, error) {
	return r.getPeriod(ctx, id, false)
}

func (r *payrollRepository) GetPeriodForUpdate(ctx context.Context, id string) (payroll.Period, error) {
	return r.getPeriod(ctx, id, true)
}

func (r *payrollRepository) getPeriod(ctx context.Context, id string, forUpdate bool) (payroll.Period, error) {
	q := GetQuerier(ctx, r.db)

	query := "SELECT" + periodColumns + "FROM payroll_periods WHERE id = $1"
	if forUpdate {
		query += " FOR UPDATE"
	}

	p, err := scanPeriod(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Period{}, payroll.ErrPeriodNotFound
		}
		return payroll.Period{}, fmt.Errorf("failed to get payroll period: %w", err)
	}

	return p, nil
}

func (r *payrollRepository) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.Period, int64, error) {
	q := GetQuerier(ctx, r.db)

	var where []string
	var args []any
	argIdx := 1

	if filter.State != nil {
		where = append(where, fmt.Sprintf("state = $%d", argIdx))
		args = append(args, *filter.State)
		argIdx++
	}
	if filter.Kind != nil {
		where = append(where, fmt.Sprintf("kind = $%d", argIdx))
		args = append(args, *filter.Kind)
		argIdx++
	}

	whereClause := ""
	if len(where) > 0 {
		whereClause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int64
	if err := q.QueryRow(ctx, "SELECT COUNT(*) FROM payroll_periods"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count payroll periods: %w", err)
	}

	query := "SELECT" + periodColumns + "FROM payroll_periods" + whereClause +
		fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list payroll periods: %w", err)
	}
	defer rows.Close()

	periods := []payroll.Period{}
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan payroll period: %w", err)
		}
		periods = append(periods, p)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list payroll periods: %w", err)
	}

	return periods, total, nil
}

func (r *payrollRepository) ExistsActiveLabel(ctx context.Context, label string, kind payroll.PeriodKind) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT EXISTS (SELECT 1 FROM payroll_periods WHERE label = $1 AND kind = $2 AND state <> 'voided')`

	var exists bool
	if err := q.QueryRow(ctx, query, label, kind).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check payroll period label: %w", err)
	}
	return exists, nil
}

func (r *payrollRepository) UpdatePeriod(ctx context.Context, period payroll.Period) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE payroll_periods SET
			state = $2,
			calculated_at = $3,
			last_calculated_at = $4,
			approved_at = $5,
			approved_by = $6,
			paid_at = $7,
			voided_at = $8,
			voided_by = $9,
			void_reason = $10,
			recalculation_pending = $11,
			revision = $12
		WHERE id = $1
	`
	tag, err := q.Exec(ctx, query,
		period.ID, period.State, period.CalculatedAt, period.LastCalculatedAt,
		period.ApprovedAt, period.ApprovedBy, period.PaidAt,
		period.VoidedAt, period.VoidedBy, period.VoidReason,
		period.RecalculationPending, period.Revision,
	)
	if err != nil {
		return fmt.Errorf("failed to update payroll period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payroll.ErrPeriodNotFound
	}

	return nil
}

func (r *payrollRepository) DeletePeriod(ctx context.Context, id string) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx, `DELETE FROM payroll_periods WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete payroll period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return payroll.ErrPeriodNotFound
	}

	return nil
}

// ========== LINES ==========

const lineColumns = `
	id, period_id, employee_id, employee_code, employee_name, department_id, department, position,
	days_worked, regular_hours, overtime_hours_50, overtime_hours_100, concepts,
	gross_pay, total_deductions, net_pay
`

func scanLine(row pgx.Row) (payroll.Line, error) {
	var l payroll.Line
	var concepts []byte
	err := row.Scan(
		&l.ID, &l.PeriodID, &l.EmployeeID, &l.EmployeeCode, &l.EmployeeName, &l.DepartmentID, &l.Department, &l.Position,
		&l.DaysWorked, &l.RegularHours, &l.OvertimeHours50, &l.OvertimeHours100, &concepts,
		&l.GrossPay, &l.TotalDeductions, &l.NetPay,
	)
	if err != nil {
		return payroll.Line{}, err
	}
	if err := json.Unmarshal(concepts, &l.Concepts); err != nil {
		return payroll.Line{}, fmt.Errorf("failed to decode line concepts: %w", err)
	}
	return l, nil
}

func (r *payrollRepository) ReplaceLines(ctx context.Context, periodID string, lines []payroll.Line) error {
	return NewTxManager(r.db).WithinTransaction(ctx, func(ctx context.Context) error {
		q := GetQuerier(ctx, r.db)

		if _, err := q.Exec(ctx, `DELETE FROM payroll_lines WHERE period_id = $1`, periodID); err != nil {
			return fmt.Errorf("failed to clear payroll lines: %w", err)
		}
		if len(lines) == 0 {
			return nil
		}

		query := `
			INSERT INTO payroll_lines (` + lineColumns + `)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		`
		batch := &pgx.Batch{}
		for _, l := range lines {
			concepts, err := json.Marshal(l.Concepts)
			if err != nil {
				return fmt.Errorf("failed to encode line concepts: %w", err)
			}
			batch.Queue(query,
				l.ID, periodID, l.EmployeeID, l.EmployeeCode, l.EmployeeName, l.DepartmentID, l.Department, l.Position,
				l.DaysWorked, l.RegularHours, l.OvertimeHours50, l.OvertimeHours100, concepts,
				l.GrossPay, l.TotalDeductions, l.NetPay,
			)
		}

		br := q.SendBatch(ctx, batch)
		for range lines {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return fmt.Errorf("failed to insert payroll line: %w", err)
			}
		}
		return br.Close()
	})
}

func (r *payrollRepository) ListLines(ctx context.Context, periodID string) ([]payroll.Line, error) {
	if _, err := r.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	return r.listLines(ctx, GetQuerier(ctx, r.db), periodID)
}

func (r *payrollRepository) listLines(ctx context.Context, q database.Querier, periodID string) ([]payroll.Line, error) {
	query := "SELECT" + lineColumns + "FROM payroll_lines WHERE period_id = $1 ORDER BY employee_id"

	rows, err := q.Query(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll lines: %w", err)
	}
	defer rows.Close()

	lines := []payroll.Line{}
	for rows.Next() {
		l, err := scanLine(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll line: %w", err)
		}
		lines = append(lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll lines: %w", err)
	}

	return lines, nil
}

func (r *payrollRepository) GetLine(ctx context.Context, id string) (payroll.Line, error) {
	q := GetQuerier(ctx, r.db)

	l, err := scanLine(q.QueryRow(ctx, "SELECT"+lineColumns+"FROM payroll_lines WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Line{}, payroll.ErrLineNotFound
		}
		return payroll.Line{}, fmt.Errorf("failed to get payroll line: %w", err)
	}

	return l, nil
}

// GetRun reads inside a repeatable read transaction so the period and its lines come from one snapshot.
func (r *payrollRepository) GetRun(ctx context.Context, periodID string) (payroll.Period, []payroll.Line, error) {
	var period payroll.Period
	var lines []payroll.Line

	read := func(q database.Querier) error {
		p, err := scanPeriod(q.QueryRow(ctx, "SELECT"+periodColumns+"FROM payroll_periods WHERE id = $1", periodID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return payroll.ErrPeriodNotFound
			}
			return fmt.Errorf("failed to get payroll period: %w", err)
		}
		period = p
		lines, err = r.listLines(ctx, q, periodID)
		return err
	}

	if tx, ok := ctx.Value(txKey{}).(pgx.Tx); ok {
		if err := read(tx); err != nil {
			return payroll.Period{}, nil, err
		}
		return period, lines, nil
	}

	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	err := WithTransaction(ctx, r.db, opts, func(tx pgx.Tx) error {
		return read(tx)
	})
	if err != nil {
		return payroll.Period{}, nil, err
	}
	return period, lines, nil
}

// ========== ADJUSTMENTS ==========

const adjustmentColumns = `
	id, period_id, line_id, employee_id, concept_id, kind, amount, reason,
	created_by, created_at, removed_at, removed_by
`

func scanAdjustment(row pgx.Row) (payroll.Adjustment, error) {
	var a payroll.Adjustment
	err := row.Scan(
		&a.ID, &a.PeriodID, &a.LineID, &a.EmployeeID, &a.ConceptID, &a.Kind, &a.Amount, &a.Reason,
		&a.CreatedBy, &a.CreatedAt, &a.RemovedAt, &a.RemovedBy,
	)
	return a, err
}

func (r *payrollRepository) CreateAdjustment(ctx context.Context, adjustment payroll.Adjustment) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_adjustments (id, period_id, line_id, employee_id, concept_id, kind, amount, reason, created_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := q.Exec(ctx, query,
		adjustment.ID, adjustment.PeriodID, adjustment.LineID, adjustment.EmployeeID, adjustment.ConceptID,
		adjustment.Kind, adjustment.Amount, adjustment.Reason, adjustment.CreatedBy, adjustment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create payroll adjustment: %w", err)
	}

	return nil
}

func (r *payrollRepository) GetAdjustment(ctx context.Context, id string) (payroll.Adjustment, error) {
	q := GetQuerier(ctx, r.db)

	a, err := scanAdjustment(q.QueryRow(ctx, "SELECT"+adjustmentColumns+"FROM payroll_adjustments WHERE id = $1", id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return payroll.Adjustment{}, payroll.ErrAdjustmentNotFound
		}
		return payroll.Adjustment{}, fmt.Errorf("failed to get payroll adjustment: %w", err)
	}

	return a, nil
}

func (r *payrollRepository) ListAdjustments(ctx context.Context, filter payroll.AdjustmentFilter) ([]payroll.Adjustment, error) {
	q := GetQuerier(ctx, r.db)

	var where []string
	var args []any
	argIdx := 1

	if filter.PeriodID != "" {
		where = append(where, fmt.Sprintf("period_id = $%d", argIdx))
		args = append(args, filter.PeriodID)
		argIdx++
	}
	if filter.LineID != "" {
		where = append(where, fmt.Sprintf("line_id = $%d", argIdx))
		args = append(args, filter.LineID)
		argIdx++
	}
	if !filter.IncludeRemoved {
		where = append(where, "removed_at IS NULL")
	}

	query := "SELECT" + adjustmentColumns + "FROM payroll_adjustments"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at, id"

	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll adjustments: %w", err)
	}
	defer rows.Close()

	adjustments := []payroll.Adjustment{}
	for rows.Next() {
		a, err := scanAdjustment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payroll adjustment: %w", err)
		}
		adjustments = append(adjustments, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll adjustments: %w", err)
	}

	return adjustments, nil
}

func (r *payrollRepository) MarkAdjustmentRemoved(ctx context.Context, id string, removedBy string, removedAt time.Time) error {
	q := GetQuerier(ctx, r.db)

	tag, err := q.Exec(ctx,
		`UPDATE payroll_adjustments SET removed_at = $2, removed_by = $3 WHERE id = $1 AND removed_at IS NULL`,
		id, removedAt, removedBy,
	)
	if err != nil {
		return fmt.Errorf("failed to remove payroll adjustment: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	if _, err := r.GetAdjustment(ctx, id); err != nil {
		return err
	}
	return payroll.ErrAdjustmentAlreadyRemoved
}

func (r *payrollRepository) CountAdjustments(ctx context.Context, periodID string) (int, error) {
	q := GetQuerier(ctx, r.db)

	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM payroll_adjustments WHERE period_id = $1`, periodID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count payroll adjustments: %w", err)
	}
	return n, nil
}

// ========== HISTORY ==========

func (r *payrollRepository) AppendEvent(ctx context.Context, event payroll.PeriodEvent) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO payroll_period_events (id, period_id, transition, from_state, to_state, actor, reason, revision, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := q.Exec(ctx, query,
		event.ID, event.PeriodID, event.Transition, event.FromState, event.ToState,
		event.Actor, event.Reason, event.Revision, event.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("failed to append payroll period event: %w", err)
	}

	return nil
}

func (r *payrollRepository) ListEvents(ctx context.Context, periodID string) ([]payroll.PeriodEvent, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, period_id, transition, from_state, to_state, actor, reason, revision, occurred_at
		FROM payroll_period_events
		WHERE period_id = $1
		ORDER BY revision, occurred_at
	`
	rows, err := q.Query(ctx, query, periodID)
	if err != nil {
		return nil, fmt.Errorf("failed to list payroll period events: %w", err)
	}
	defer rows.Close()

	events := []payroll.PeriodEvent{}
	for rows.Next() {
		var e payroll.PeriodEvent
		if err := rows.Scan(
			&e.ID, &e.PeriodID, &e.Transition, &e.FromState, &e.ToState, &e.Actor, &e.Reason, &e.Revision, &e.OccurredAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan payroll period event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list payroll period events: %w", err)
	}

	return events, nil
}
