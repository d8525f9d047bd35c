package payroll

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PeriodKind enum
type PeriodKind string

const (
	PeriodKindOrdinary      PeriodKind = "ordinary"
	PeriodKindExtraordinary PeriodKind = "extraordinary"
	PeriodKindBonus13       PeriodKind = "bonus_13"
	PeriodKindBonus14       PeriodKind = "bonus_14"
)

func (k PeriodKind) IsValid() bool {
	switch k {
	case PeriodKindOrdinary, PeriodKindExtraordinary, PeriodKindBonus13, PeriodKindBonus14:
		return true
	}
	return false
}

// PeriodState enum
type PeriodState string

const (
	PeriodStateDraft      PeriodState = "draft"
	PeriodStateCalculated PeriodState = "calculated"
	PeriodStateApproved   PeriodState = "approved"
	PeriodStatePaid       PeriodState = "paid"
	PeriodStateVoided     PeriodState = "voided"
)

func (s PeriodState) IsValid() bool {
	switch s {
	case PeriodStateDraft, PeriodStateCalculated, PeriodStateApproved, PeriodStatePaid, PeriodStateVoided:
		return true
	}
	return false
}

// ConceptKind enum
type ConceptKind string

const (
	ConceptKindEarning   ConceptKind = "earning"
	ConceptKindDeduction ConceptKind = "deduction"
)

func (k ConceptKind) IsValid() bool {
	return k == ConceptKindEarning || k == ConceptKindDeduction
}

// CalcType describes where a concept amount comes from.
type CalcType string

const (
	CalcTypeComputed CalcType = "computed" // base salary, overtime, bonuses
	CalcTypeFormula  CalcType = "formula"  // social security, income tax
	CalcTypeFixed    CalcType = "fixed"    // per-employee recurring items from the roster
	CalcTypeManual   CalcType = "manual"   // only reachable through adjustments
)

func (c CalcType) IsValid() bool {
	switch c {
	case CalcTypeComputed, CalcTypeFormula, CalcTypeFixed, CalcTypeManual:
		return true
	}
	return false
}

// Well-known computed concept ids.
const (
	ConceptBaseSalary  = "base_salary"
	ConceptOvertime50  = "overtime_50"
	ConceptOvertime100 = "overtime_100"
	ConceptBonus13     = "bonus_13"
	ConceptBonus14     = "bonus_14"
)

// ScopeFilter narrows a period to departments and/or employees. An empty filter selects everyone.
type ScopeFilter struct {
	DepartmentIDs []string `json:"department_ids,omitempty"`
	EmployeeIDs   []string `json:"employee_ids,omitempty"`
}

func (f ScopeFilter) IsEmpty() bool {
	return len(f.DepartmentIDs) == 0 && len(f.EmployeeIDs) == 0
}

// Period - One payroll run
type Period struct {
	ID                   string
	Label                string
	Kind                 PeriodKind
	State                PeriodState
	Scope                ScopeFilter
	CreatedAt            time.Time
	CreatedBy            string
	CalculatedAt         *time.Time
	LastCalculatedAt     *time.Time
	ApprovedAt           *time.Time
	ApprovedBy           *string
	PaidAt               *time.Time
	VoidedAt             *time.Time
	VoidedBy             *string
	VoidReason           *string
	RecalculationPending bool
	Revision             int
}

// ConceptAmount - One earning or deduction entry on a line
type ConceptAmount struct {
	ConceptID    string          `json:"concept_id"`
	Name         string          `json:"name"`
	Kind         ConceptKind     `json:"kind"`
	Amount       decimal.Decimal `json:"amount"`
	AdjustmentID *string         `json:"adjustment_id,omitempty"`
}

// Line - Computed result for one employee in one period
type Line struct {
	ID               string
	PeriodID         string
	EmployeeID       string
	EmployeeCode     string
	EmployeeName     string
	DepartmentID     string
	Department       string
	Position         string
	DaysWorked       decimal.Decimal
	RegularHours     decimal.Decimal
	OvertimeHours50  decimal.Decimal
	OvertimeHours100 decimal.Decimal
	Concepts         []ConceptAmount
	GrossPay         decimal.Decimal
	TotalDeductions  decimal.Decimal
	NetPay           decimal.Decimal
}

var lineNamespace = uuid.MustParse("6f1c3a8e-2d4b-5e7f-9a0b-1c2d3e4f5a6b")

// LineID returns the stable id of the line for an employee in a period.
func LineID(periodID, employeeID string) string {
	return uuid.NewSHA1(lineNamespace, []byte(periodID+"/"+employeeID)).String()
}

// Adjustment - Manual correction recorded against one line
type Adjustment struct {
	ID         string
	PeriodID   string
	LineID     string
	EmployeeID string
	ConceptID  string
	Kind       ConceptKind
	Amount     decimal.Decimal
	Reason     string
	CreatedBy  string
	CreatedAt  time.Time
	RemovedAt  *time.Time
	RemovedBy  *string
}

func (a Adjustment) IsActive() bool {
	return a.RemovedAt == nil
}

// PeriodEvent - Audit trail entry for one committed operation
type PeriodEvent struct {
	ID         string
	PeriodID   string
	Transition Transition
	FromState  PeriodState
	ToState    PeriodState
	Actor      string
	Reason     *string
	Revision   int
	OccurredAt time.Time
}

// Actor identifies the caller of a mutating operation.
type Actor struct {
	UserID string
	Role   string
}

// PeriodTotals - Sums over all lines of a period
type PeriodTotals struct {
	EmployeeCount   int
	GrossPay        decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal
}

// DepartmentAggregate - Sums over the lines of one department
type DepartmentAggregate struct {
	DepartmentID    string
	Department      string
	EmployeeCount   int
	GrossPay        decimal.Decimal
	TotalDeductions decimal.Decimal
	NetPay          decimal.Decimal
}

// Aggregate - Department breakdown plus period totals
type Aggregate struct {
	Departments []DepartmentAggregate
	Totals      PeriodTotals
}

// LineError - Non-fatal per-employee calculation failure
type LineError struct {
	EmployeeID string `json:"employee_id"`
	Code       string `json:"code"`
	Message    string `json:"message"`
}

const (
	LineErrorMissingBaseSalary = "missing_base_salary"
	LineErrorInvalidAttendance = "invalid_attendance"
	LineErrorInvalidFixedItem  = "invalid_fixed_item"
)

// CalculationResult - Output of one engine run
type CalculationResult struct {
	Lines  []Line
	Errors []LineError
	Totals PeriodTotals
}
