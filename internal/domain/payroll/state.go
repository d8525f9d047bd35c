package payroll

// Transition names an operation that is gated by the period state.
type Transition string

const (
	TransitionCreate           Transition = "create"
	TransitionCalculate        Transition = "calculate"
	TransitionApprove          Transition = "approve"
	TransitionPay              Transition = "pay"
	TransitionVoid             Transition = "void"
	TransitionDelete           Transition = "delete"
	TransitionAddAdjustment    Transition = "add_adjustment"
	TransitionRemoveAdjustment Transition = "remove_adjustment"
)

type transitionRule struct {
	from []PeriodState
	// to is empty for operations that leave the state unchanged.
	to PeriodState
}

var transitionTable = map[Transition]transitionRule{
	TransitionCalculate:        {from: []PeriodState{PeriodStateDraft, PeriodStateCalculated}, to: PeriodStateCalculated},
	TransitionApprove:          {from: []PeriodState{PeriodStateCalculated}, to: PeriodStateApproved},
	TransitionPay:              {from: []PeriodState{PeriodStateApproved}, to: PeriodStatePaid},
	TransitionVoid:             {from: []PeriodState{PeriodStateDraft, PeriodStateCalculated, PeriodStateApproved}, to: PeriodStateVoided},
	TransitionDelete:           {from: []PeriodState{PeriodStateDraft}},
	TransitionAddAdjustment:    {from: []PeriodState{PeriodStateDraft, PeriodStateCalculated}},
	TransitionRemoveAdjustment: {from: []PeriodState{PeriodStateDraft, PeriodStateCalculated}},
}

// NextState returns the state a period in current moves to when t is applied,
// or a *TransitionError when t is not permitted from current.
func NextState(current PeriodState, t Transition) (PeriodState, error) {
	rule, ok := transitionTable[t]
	if !ok {
		return current, &TransitionError{Transition: t, Current: current}
	}
	for _, s := range rule.from {
		if s == current {
			if rule.to == "" {
				return current, nil
			}
			return rule.to, nil
		}
	}
	return current, &TransitionError{
		Transition:     t,
		Current:        current,
		AlreadyApplied: rule.to != "" && rule.to == current,
	}
}

// CanApply reports whether t is permitted from current.
func CanApply(current PeriodState, t Transition) bool {
	_, err := NextState(current, t)
	return err == nil
}

// IsTerminal reports whether no further transition can leave s.
func (s PeriodState) IsTerminal() bool {
	return s == PeriodStatePaid || s == PeriodStateVoided
}

// IsFrozen reports whether lines and adjustments of a period in s are immutable.
func (s PeriodState) IsFrozen() bool {
	return s == PeriodStateApproved || s.IsTerminal()
}
