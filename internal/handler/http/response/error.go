package response

import (
	"errors"
	"net/http"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
)

var (
	ErrInvalidToken     = errors.New("invalid or missing access token")
	ErrInvalidRequestID = errors.New("invalid id in request path")
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	// Check if it's a validation error
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var transitionErr *payroll.TransitionError
	if errors.As(err, &transitionErr) {
		code := "STATE_CONFLICT"
		if transitionErr.AlreadyApplied {
			code = "ALREADY_APPLIED"
		}
		ConflictWithDetails(w, code, transitionErr.Error(), map[string]any{
			"current_state": transitionErr.Current,
			"transition":    transitionErr.Transition,
		})
		return
	}

	var dependencyErr *payroll.DependencyError
	if errors.As(err, &dependencyErr) {
		details := map[string]any{
			"dependency": dependencyErr.Dependency,
			"retryable":  true,
		}
		if dependencyErr.PeriodID != "" {
			details["period_id"] = dependencyErr.PeriodID
		}
		ServiceUnavailable(w, dependencyErr.Error(), details)
		return
	}

	var invariantErr *payroll.InvariantError
	if errors.As(err, &invariantErr) {
		UnprocessableEntity(w, "INVARIANT_VIOLATION", invariantErr.Error(), map[string]any{
			"employee_id": invariantErr.EmployeeID,
		})
		return
	}

	switch {
	// Auth
	case errors.Is(err, ErrInvalidToken):
		Unauthorized(w, err.Error())
	case errors.Is(err, ErrInvalidRequestID):
		BadRequest(w, err.Error(), nil)

	// Payroll domain errors
	case errors.Is(err, payroll.ErrPeriodNotFound):
		NotFound(w, "Payroll period not found")
	case errors.Is(err, payroll.ErrLineNotFound):
		NotFound(w, "Payroll line not found")
	case errors.Is(err, payroll.ErrAdjustmentNotFound):
		NotFound(w, "Payroll adjustment not found")
	case errors.Is(err, payroll.ErrPeriodLabelExists):
		ConflictWithDetails(w, "LABEL_EXISTS", err.Error(), nil)
	case errors.Is(err, payroll.ErrAdjustmentAlreadyRemoved):
		ConflictWithDetails(w, "ALREADY_APPLIED", err.Error(), nil)
	case errors.Is(err, payroll.ErrPeriodHasAdjustments):
		ConflictWithDetails(w, "HAS_ADJUSTMENTS", err.Error(), nil)
	case errors.Is(err, payroll.ErrRecalculationPending):
		ConflictWithDetails(w, "RECALCULATION_PENDING", err.Error(), nil)
	case errors.Is(err, payroll.ErrNoPayableLines):
		ConflictWithDetails(w, "NO_PAYABLE_LINES", err.Error(), nil)
	case errors.Is(err, payroll.ErrConcurrentModification):
		ConflictWithDetails(w, "CONCURRENT_MODIFICATION", err.Error(), map[string]any{"retryable": true})
	case errors.Is(err, lock.ErrNotObtained):
		ConflictWithDetails(w, "PERIOD_BUSY", "Another operation is running on this period",
			map[string]any{"retryable": true})
	case errors.Is(err, payroll.ErrPaidBeforeApproved):
		UnprocessableEntity(w, "VALIDATION_ERROR", err.Error(), map[string]any{"paid_at": err.Error()})
	case errors.Is(err, payroll.ErrUnknownConcept), errors.Is(err, payroll.ErrConceptKindMismatch):
		UnprocessableEntity(w, "VALIDATION_ERROR", err.Error(), map[string]any{"concept_id": err.Error()})

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
