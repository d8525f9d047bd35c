package payroll

import (
	"context"
	"log/slog"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
)

// ========== CALCULATION ==========

// compute gathers roster, catalog and active adjustments and runs the engine. Nothing is written.
func (s *PayrollServiceImpl) compute(ctx context.Context, period payroll.Period) (payroll.CalculationResult, error) {
	roster, err := s.roster.Roster(ctx, payroll.RosterQuery{PeriodLabel: period.Label, Kind: period.Kind, Scope: period.Scope})
	if err != nil {
		return payroll.CalculationResult{}, dependencyError("roster", period.ID, err)
	}
	for _, entry := range roster {
		if validator.IsEmpty(entry.EmployeeID) {
			return payroll.CalculationResult{}, dependencyError("roster", period.ID, incomplete("roster entry without employee id"))
		}
	}

	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return payroll.CalculationResult{}, dependencyError("concept catalog", period.ID, err)
	}
	if len(catalog.Concepts) == 0 {
		return payroll.CalculationResult{}, dependencyError("concept catalog", period.ID, incomplete("catalog has no concepts"))
	}

	var adjustments []payroll.Adjustment
	if period.ID != "" {
		adjustments, err = s.repo.ListAdjustments(ctx, payroll.AdjustmentFilter{PeriodID: period.ID})
		if err != nil {
			return payroll.CalculationResult{}, err
		}
	}

	return s.engine.Calculate(CalculationInput{
		PeriodID:    period.ID,
		Kind:        period.Kind,
		Roster:      roster,
		Catalog:     catalog,
		Adjustments: adjustments,
	})
}

// Calculate computes every line of the period into a staging result and swaps it in atomically.
// On any fatal error the previously stored lines are left untouched.
func (s *PayrollServiceImpl) Calculate(ctx context.Context, actor payroll.Actor, periodID string) (payroll.CalculationResponse, error) {
	var resp payroll.CalculationResponse

	err := s.withPeriodLock(ctx, periodID, func(ctx context.Context) error {
		period, err := s.repo.GetPeriod(ctx, periodID)
		if err != nil {
			return err
		}
		if _, err := payroll.NextState(period.State, payroll.TransitionCalculate); err != nil {
			return err
		}

		result, err := s.compute(ctx, period)
		if err != nil {
			s.logFailure(ctx, periodID, err)
			return err
		}

		updated, err := s.transition(ctx, actor, periodID, payroll.TransitionCalculate, nil, func(ctx context.Context, p *payroll.Period) error {
			if p.Revision != period.Revision {
				return payroll.ErrConcurrentModification
			}
			if err := s.repo.ReplaceLines(ctx, p.ID, result.Lines); err != nil {
				return err
			}
			now := s.now()
			if p.CalculatedAt == nil {
				p.CalculatedAt = &now
			}
			p.LastCalculatedAt = &now
			p.RecalculationPending = false
			return nil
		})
		if err != nil {
			return err
		}

		if len(result.Errors) > 0 {
			s.logger.WarnContext(ctx, "payroll calculation finished with line errors",
				slog.String("period_id", periodID),
				slog.Int("failed", len(result.Errors)),
				slog.Any("failed_employee_ids", failedEmployeeIDs(result.Errors)),
			)
		}

		resp = payroll.CalculationResponse{
			Period:            mapToPeriodResponse(updated),
			Lines:             mapToLineResponses(result.Lines),
			Errors:            result.Errors,
			FailedEmployeeIDs: failedEmployeeIDs(result.Errors),
			Totals:            mapToTotalsResponse(result.Totals),
		}
		return nil
	})
	if err != nil {
		return payroll.CalculationResponse{}, err
	}
	return resp, nil
}

// Preview runs the engine for a kind and scope without creating or touching any period.
func (s *PayrollServiceImpl) Preview(ctx context.Context, req payroll.PreviewRequest) (payroll.PreviewResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PreviewResponse{}, err
	}

	label := req.Label
	if validator.IsEmpty(label) {
		label = s.now().Format("2006-01")
	}
	period := payroll.Period{
		Label: label,
		Kind:  payroll.PeriodKind(req.Kind),
		Scope: payroll.ScopeFilter{DepartmentIDs: req.DepartmentIDs, EmployeeIDs: req.EmployeeIDs},
	}

	result, err := s.compute(ctx, period)
	if err != nil {
		s.logFailure(ctx, "", err)
		return payroll.PreviewResponse{}, err
	}

	agg := Summarize(result.Lines)
	return payroll.PreviewResponse{
		Label:             label,
		Kind:              period.Kind,
		Lines:             mapToLineResponses(result.Lines),
		Departments:       mapToDepartmentResponses(agg.Departments),
		Totals:            mapToTotalsResponse(agg.Totals),
		Errors:            result.Errors,
		FailedEmployeeIDs: failedEmployeeIDs(result.Errors),
	}, nil
}

func (s *PayrollServiceImpl) ListLines(ctx context.Context, periodID string) ([]payroll.LineResponse, error) {
	lines, err := s.repo.ListLines(ctx, periodID)
	if err != nil {
		return nil, err
	}
	return mapToLineResponses(lines), nil
}

// ========== LIFECYCLE ==========

func (s *PayrollServiceImpl) Approve(ctx context.Context, actor payroll.Actor, periodID string) (payroll.PeriodResponse, error) {
	var out payroll.Period
	err := s.withPeriodLock(ctx, periodID, func(ctx context.Context) error {
		var err error
		out, err = s.transition(ctx, actor, periodID, payroll.TransitionApprove, nil, func(ctx context.Context, p *payroll.Period) error {
			if p.RecalculationPending {
				return payroll.ErrRecalculationPending
			}
			lines, err := s.repo.ListLines(ctx, p.ID)
			if err != nil {
				return err
			}
			payable := false
			for _, l := range lines {
				if l.NetPay.IsPositive() {
					payable = true
					break
				}
			}
			if !payable {
				return payroll.ErrNoPayableLines
			}
			now := s.now()
			approver := actor.UserID
			p.ApprovedAt = &now
			p.ApprovedBy = &approver
			return nil
		})
		return err
	})
	if err != nil {
		return payroll.PeriodResponse{}, err
	}
	return mapToPeriodResponse(out), nil
}

func (s *PayrollServiceImpl) MarkPaid(ctx context.Context, actor payroll.Actor, periodID string, req payroll.MarkPaidRequest) (payroll.PeriodResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PeriodResponse{}, err
	}

	var out payroll.Period
	err := s.withPeriodLock(ctx, periodID, func(ctx context.Context) error {
		var err error
		out, err = s.transition(ctx, actor, periodID, payroll.TransitionPay, nil, func(ctx context.Context, p *payroll.Period) error {
			paidAt := req.PaidTime(s.now()).UTC()
			if p.ApprovedAt != nil && paidAt.Before(*p.ApprovedAt) {
				return payroll.ErrPaidBeforeApproved
			}
			p.PaidAt = &paidAt
			return nil
		})
		return err
	})
	if err != nil {
		return payroll.PeriodResponse{}, err
	}
	return mapToPeriodResponse(out), nil
}

func (s *PayrollServiceImpl) Void(ctx context.Context, actor payroll.Actor, periodID string, req payroll.VoidRequest) (payroll.PeriodResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PeriodResponse{}, err
	}

	reason := req.Reason
	var out payroll.Period
	err := s.withPeriodLock(ctx, periodID, func(ctx context.Context) error {
		var err error
		out, err = s.transition(ctx, actor, periodID, payroll.TransitionVoid, &reason, func(ctx context.Context, p *payroll.Period) error {
			now := s.now()
			voider := actor.UserID
			p.VoidedAt = &now
			p.VoidedBy = &voider
			p.VoidReason = &reason
			return nil
		})
		return err
	})
	if err != nil {
		return payroll.PeriodResponse{}, err
	}
	return mapToPeriodResponse(out), nil
}

func (s *PayrollServiceImpl) GetHistory(ctx context.Context, periodID string) ([]payroll.PeriodEventResponse, error) {
	if _, err := s.repo.GetPeriod(ctx, periodID); err != nil {
		return nil, err
	}
	events, err := s.repo.ListEvents(ctx, periodID)
	if err != nil {
		return nil, err
	}

	out := make([]payroll.PeriodEventResponse, 0, len(events))
	for _, e := range events {
		out = append(out, payroll.PeriodEventResponse{
			ID:         e.ID,
			Transition: e.Transition,
			FromState:  e.FromState,
			ToState:    e.ToState,
			Actor:      e.Actor,
			Reason:     e.Reason,
			Revision:   e.Revision,
			OccurredAt: e.OccurredAt,
		})
	}
	return out, nil
}
