package payroll

import (
	"errors"
	"fmt"
)

var (
	ErrPeriodNotFound           = errors.New("payroll period not found")
	ErrLineNotFound             = errors.New("payroll line not found")
	ErrAdjustmentNotFound       = errors.New("payroll adjustment not found")
	ErrAdjustmentAlreadyRemoved = errors.New("payroll adjustment already removed")
	ErrPeriodLabelExists        = errors.New("a payroll period with this label and kind already exists")
	ErrPeriodHasAdjustments     = errors.New("payroll period has adjustments and cannot be deleted")
	ErrStateConflict            = errors.New("payroll period state conflict")
	ErrTransitionAlreadyApplied = errors.New("transition already applied")
	ErrRecalculationPending     = errors.New("adjustments changed since the last calculation, recalculate before approving")
	ErrNoPayableLines           = errors.New("payroll period has no line with positive net pay")
	ErrPaidBeforeApproved       = errors.New("paid_at cannot be earlier than approved_at")
	ErrConcurrentModification   = errors.New("payroll period changed during the operation")
	ErrUnknownConcept           = errors.New("unknown payroll concept")
	ErrConceptKindMismatch      = errors.New("adjustment kind does not match concept kind")
	ErrDependencyUnavailable    = errors.New("payroll dependency unavailable")
	ErrInvariantViolation       = errors.New("payroll invariant violated")
)

// TransitionError reports an operation that the current period state does not permit.
type TransitionError struct {
	Transition     Transition
	Current        PeriodState
	AlreadyApplied bool
}

func (e *TransitionError) Error() string {
	if e.AlreadyApplied {
		return fmt.Sprintf("period is already %s", e.Current)
	}
	switch {
	case e.Transition == TransitionVoid && e.Current == PeriodStatePaid:
		return "cannot void a paid period"
	case e.Current == PeriodStateApproved:
		return "cannot modify an approved period"
	case e.Current == PeriodStatePaid:
		return "cannot modify a paid period"
	case e.Current == PeriodStateVoided:
		return "cannot modify a voided period"
	}
	return fmt.Sprintf("cannot %s a %s period", e.Transition, e.Current)
}

func (e *TransitionError) Is(target error) bool {
	if target == ErrStateConflict {
		return true
	}
	return e.AlreadyApplied && target == ErrTransitionAlreadyApplied
}

// DependencyError wraps a failure of the roster provider or concept catalog. It is retryable.
type DependencyError struct {
	Dependency string
	PeriodID   string
	Err        error
}

func (e *DependencyError) Error() string {
	if e.PeriodID == "" {
		return fmt.Sprintf("%s unavailable: %v", e.Dependency, e.Err)
	}
	return fmt.Sprintf("%s unavailable for period %s: %v", e.Dependency, e.PeriodID, e.Err)
}

func (e *DependencyError) Unwrap() error { return e.Err }

func (e *DependencyError) Is(target error) bool { return target == ErrDependencyUnavailable }

// InvariantError aborts a whole calculation. Nothing is persisted when it is returned.
type InvariantError struct {
	EmployeeID string
	Reason     string
}

func (e *InvariantError) Error() string {
	if e.EmployeeID == "" {
		return "invariant violated: " + e.Reason
	}
	return fmt.Sprintf("invariant violated for employee %s: %s", e.EmployeeID, e.Reason)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariantViolation }
