package payroll

import (
	"fmt"
	"strings"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"github.com/shopspring/decimal"
)

// ========== PERIOD DTOs ==========

type CreatePeriodRequest struct {
	Label         string   `json:"label"`
	Kind          string   `json:"kind"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
	EmployeeIDs   []string `json:"employee_ids,omitempty"`
}

func (r *CreatePeriodRequest) Validate() error {
	var errs validator.ValidationErrors

	r.Label = strings.TrimSpace(r.Label)
	if validator.IsEmpty(r.Label) {
		errs = append(errs, validator.ValidationError{Field: "label", Message: "label is required"})
	} else if len(r.Label) > 64 {
		errs = append(errs, validator.ValidationError{Field: "label", Message: "must be at most 64 characters"})
	}

	if validator.IsEmpty(r.Kind) {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "kind is required"})
	} else if !PeriodKind(r.Kind).IsValid() {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "must be one of: ordinary, extraordinary, bonus_13, bonus_14"})
	}

	errs = append(errs, validateIDs("department_ids", r.DepartmentIDs)...)
	errs = append(errs, validateIDs("employee_ids", r.EmployeeIDs)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func (r *CreatePeriodRequest) Scope() ScopeFilter {
	return ScopeFilter{DepartmentIDs: r.DepartmentIDs, EmployeeIDs: r.EmployeeIDs}
}

func validateIDs(field string, ids []string) validator.ValidationErrors {
	var errs validator.ValidationErrors
	for _, id := range ids {
		if validator.IsEmpty(id) {
			errs = append(errs, validator.ValidationError{Field: field, Message: "must not contain empty ids"})
			break
		}
	}
	return errs
}

type PeriodFilter struct {
	State *string
	Kind  *string
	Page  int
	Limit int
}

func (f *PeriodFilter) Validate() error {
	var errs validator.ValidationErrors

	if f.State != nil && !PeriodState(*f.State).IsValid() {
		errs = append(errs, validator.ValidationError{Field: "state", Message: "must be one of: draft, calculated, approved, paid, voided"})
	}
	if f.Kind != nil && !PeriodKind(*f.Kind).IsValid() {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "must be one of: ordinary, extraordinary, bonus_13, bonus_14"})
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = 20
	}
	if f.Limit > 100 {
		errs = append(errs, validator.ValidationError{Field: "limit", Message: "must be at most 100"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type MarkPaidRequest struct {
	PaidAt *string `json:"paid_at,omitempty"` // RFC3339, defaults to now
}

func (r *MarkPaidRequest) Validate() error {
	var errs validator.ValidationErrors

	if r.PaidAt != nil {
		if _, ok := validator.IsValidDateTime(*r.PaidAt); !ok {
			errs = append(errs, validator.ValidationError{Field: "paid_at", Message: "must be an RFC3339 timestamp"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// PaidTime returns the requested payment time, or fallback when none was given.
func (r *MarkPaidRequest) PaidTime(fallback time.Time) time.Time {
	if r.PaidAt == nil {
		return fallback
	}
	t, _ := validator.IsValidDateTime(*r.PaidAt)
	return t
}

type VoidRequest struct {
	Reason string `json:"reason"`
}

func (r *VoidRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Reason) {
		errs = append(errs, validator.ValidationError{Field: "reason", Message: "reason is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type PreviewRequest struct {
	Label         string   `json:"label,omitempty"`
	Kind          string   `json:"kind"`
	DepartmentIDs []string `json:"department_ids,omitempty"`
	EmployeeIDs   []string `json:"employee_ids,omitempty"`
}

func (r *PreviewRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.Kind) {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "kind is required"})
	} else if !PeriodKind(r.Kind).IsValid() {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "must be one of: ordinary, extraordinary, bonus_13, bonus_14"})
	}
	errs = append(errs, validateIDs("department_ids", r.DepartmentIDs)...)
	errs = append(errs, validateIDs("employee_ids", r.EmployeeIDs)...)

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type PeriodResponse struct {
	ID                   string      `json:"id"`
	Label                string      `json:"label"`
	Kind                 PeriodKind  `json:"kind"`
	State                PeriodState `json:"state"`
	Scope                ScopeFilter `json:"scope"`
	CreatedAt            time.Time   `json:"created_at"`
	CreatedBy            string      `json:"created_by"`
	CalculatedAt         *time.Time  `json:"calculated_at,omitempty"`
	LastCalculatedAt     *time.Time  `json:"last_calculated_at,omitempty"`
	ApprovedAt           *time.Time  `json:"approved_at,omitempty"`
	ApprovedBy           *string     `json:"approved_by,omitempty"`
	PaidAt               *time.Time  `json:"paid_at,omitempty"`
	VoidedAt             *time.Time  `json:"voided_at,omitempty"`
	VoidedBy             *string     `json:"voided_by,omitempty"`
	VoidReason           *string     `json:"void_reason,omitempty"`
	RecalculationPending bool        `json:"recalculation_pending"`
	Revision             int         `json:"revision"`
}

type ListPeriodResponse struct {
	Periods    []PeriodResponse `json:"periods"`
	TotalCount int64            `json:"total_count"`
	Page       int              `json:"page"`
	Limit      int              `json:"limit"`
	TotalPages int              `json:"total_pages"`
}

// ========== LINE DTOs ==========

type LineResponse struct {
	ID               string          `json:"id"`
	PeriodID         string          `json:"period_id"`
	EmployeeID       string          `json:"employee_id"`
	EmployeeCode     string          `json:"employee_code,omitempty"`
	EmployeeName     string          `json:"employee_name"`
	DepartmentID     string          `json:"department_id"`
	Department       string          `json:"department"`
	Position         string          `json:"position"`
	DaysWorked       decimal.Decimal `json:"days_worked"`
	RegularHours     decimal.Decimal `json:"regular_hours"`
	OvertimeHours50  decimal.Decimal `json:"overtime_hours_50"`
	OvertimeHours100 decimal.Decimal `json:"overtime_hours_100"`
	Concepts         []ConceptAmount `json:"concepts"`
	GrossPay         decimal.Decimal `json:"gross_pay"`
	TotalDeductions  decimal.Decimal `json:"total_deductions"`
	NetPay           decimal.Decimal `json:"net_pay"`
}

type TotalsResponse struct {
	EmployeeCount   int             `json:"employee_count"`
	GrossPay        decimal.Decimal `json:"gross_pay"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	NetPay          decimal.Decimal `json:"net_pay"`
}

type DepartmentAggregateResponse struct {
	DepartmentID    string          `json:"department_id"`
	Department      string          `json:"department"`
	EmployeeCount   int             `json:"employee_count"`
	GrossPay        decimal.Decimal `json:"gross_pay"`
	TotalDeductions decimal.Decimal `json:"total_deductions"`
	NetPay          decimal.Decimal `json:"net_pay"`
}

type AggregateResponse struct {
	PeriodID    string                        `json:"period_id"`
	State       PeriodState                   `json:"state"`
	Revision    int                           `json:"revision"`
	Departments []DepartmentAggregateResponse `json:"departments"`
	Totals      TotalsResponse                `json:"totals"`
}

type CalculationResponse struct {
	Period            PeriodResponse `json:"period"`
	Lines             []LineResponse `json:"lines"`
	Errors            []LineError    `json:"errors"`
	FailedEmployeeIDs []string       `json:"failed_employee_ids"`
	Totals            TotalsResponse `json:"totals"`
}

type PreviewResponse struct {
	Label             string                        `json:"label"`
	Kind              PeriodKind                    `json:"kind"`
	Lines             []LineResponse                `json:"lines"`
	Departments       []DepartmentAggregateResponse `json:"departments"`
	Totals            TotalsResponse                `json:"totals"`
	Errors            []LineError                   `json:"errors"`
	FailedEmployeeIDs []string                      `json:"failed_employee_ids"`
}

// ========== ADJUSTMENT DTOs ==========

// MaxAmountScale is the number of decimal places money columns store.
const MaxAmountScale int32 = 2

type AddAdjustmentRequest struct {
	LineID    string          `json:"-"` // from URL
	ConceptID string          `json:"concept_id"`
	Kind      string          `json:"kind"`
	Amount    decimal.Decimal `json:"amount"`
	Reason    string          `json:"reason"`
}

func (r *AddAdjustmentRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.LineID) {
		errs = append(errs, validator.ValidationError{Field: "line_id", Message: "line_id is required"})
	}
	if validator.IsEmpty(r.ConceptID) {
		errs = append(errs, validator.ValidationError{Field: "concept_id", Message: "concept_id is required"})
	}
	if validator.IsEmpty(r.Kind) {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "kind is required"})
	} else if !ConceptKind(r.Kind).IsValid() {
		errs = append(errs, validator.ValidationError{Field: "kind", Message: "must be 'earning' or 'deduction'"})
	}
	if r.Amount.IsZero() {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: "must be non-zero"})
	} else if r.Amount.IsNegative() {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: "must be positive, use kind to set the direction"})
	} else if !r.Amount.Equal(r.Amount.Round(MaxAmountScale)) {
		errs = append(errs, validator.ValidationError{Field: "amount", Message: fmt.Sprintf("must have at most %d decimal places", MaxAmountScale)})
	}
	if validator.IsEmpty(r.Reason) {
		errs = append(errs, validator.ValidationError{Field: "reason", Message: "reason is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

type AdjustmentFilter struct {
	PeriodID       string
	LineID         string
	IncludeRemoved bool
}

type AdjustmentResponse struct {
	ID         string          `json:"id"`
	PeriodID   string          `json:"period_id"`
	LineID     string          `json:"line_id"`
	EmployeeID string          `json:"employee_id"`
	ConceptID  string          `json:"concept_id"`
	Kind       ConceptKind     `json:"kind"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	CreatedBy  string          `json:"created_by"`
	CreatedAt  time.Time       `json:"created_at"`
	RemovedAt  *time.Time      `json:"removed_at,omitempty"`
	RemovedBy  *string         `json:"removed_by,omitempty"`
}

// ========== HISTORY & SNAPSHOT DTOs ==========

type PeriodEventResponse struct {
	ID         string      `json:"id"`
	Transition Transition  `json:"transition"`
	FromState  PeriodState `json:"from_state"`
	ToState    PeriodState `json:"to_state"`
	Actor      string      `json:"actor"`
	Reason     *string     `json:"reason,omitempty"`
	Revision   int         `json:"revision"`
	OccurredAt time.Time   `json:"occurred_at"`
}

const SnapshotSchemaVersion = "payroll-run/v1"

// RunSnapshot is the stable export contract of a period.
type RunSnapshot struct {
	SchemaVersion string                        `json:"schema_version"`
	Revision      int                           `json:"revision"`
	GeneratedAt   time.Time                     `json:"generated_at"`
	Period        PeriodResponse                `json:"period"`
	Lines         []LineResponse                `json:"lines"`
	Departments   []DepartmentAggregateResponse `json:"departments"`
	Totals        TotalsResponse                `json:"totals"`
}

// FindLine returns the snapshot line with the given id.
func (s RunSnapshot) FindLine(lineID string) (LineResponse, bool) {
	for _, l := range s.Lines {
		if l.ID == lineID {
			return l, true
		}
	}
	return LineResponse{}, false
}
