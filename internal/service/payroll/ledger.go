package payroll

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
)

// ========== ADJUSTMENTS ==========

// AddAdjustment records a correction against a line. It takes effect on the next calculation,
// which the period is flagged as needing.
func (s *PayrollServiceImpl) AddAdjustment(ctx context.Context, actor payroll.Actor, req payroll.AddAdjustmentRequest) (payroll.AdjustmentResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.AdjustmentResponse{}, err
	}
	if scale := s.engine.Scale(); !req.Amount.Equal(req.Amount.Round(scale)) {
		return payroll.AdjustmentResponse{}, validator.ValidationErrors{
			{Field: "amount", Message: fmt.Sprintf("must have at most %d decimal places", scale)},
		}
	}

	line, err := s.repo.GetLine(ctx, req.LineID)
	if err != nil {
		return payroll.AdjustmentResponse{}, err
	}

	catalog, err := s.catalog.Catalog(ctx)
	if err != nil {
		return payroll.AdjustmentResponse{}, dependencyError("concept catalog", line.PeriodID, err)
	}
	concept, ok := catalog.Lookup(req.ConceptID)
	if !ok {
		return payroll.AdjustmentResponse{}, fmt.Errorf("%w: %s", payroll.ErrUnknownConcept, req.ConceptID)
	}
	kind := payroll.ConceptKind(req.Kind)
	if concept.Kind != kind {
		return payroll.AdjustmentResponse{}, fmt.Errorf("%w: %s is a %s", payroll.ErrConceptKindMismatch, concept.ID, concept.Kind)
	}

	adjustment := payroll.Adjustment{
		ID:         s.newID(),
		PeriodID:   line.PeriodID,
		LineID:     line.ID,
		EmployeeID: line.EmployeeID,
		ConceptID:  concept.ID,
		Kind:       kind,
		Amount:     req.Amount,
		Reason:     req.Reason,
		CreatedBy:  actor.UserID,
	}

	reason := req.Reason
	err = s.withPeriodLock(ctx, line.PeriodID, func(ctx context.Context) error {
		_, err := s.transition(ctx, actor, line.PeriodID, payroll.TransitionAddAdjustment, &reason, func(ctx context.Context, p *payroll.Period) error {
			if _, err := s.repo.GetLine(ctx, line.ID); err != nil {
				return err
			}
			adjustment.CreatedAt = s.now()
			if err := s.repo.CreateAdjustment(ctx, adjustment); err != nil {
				return err
			}
			p.RecalculationPending = true
			return nil
		})
		return err
	})
	if err != nil {
		return payroll.AdjustmentResponse{}, err
	}

	s.logger.InfoContext(ctx, "payroll adjustment recorded",
		slog.String("adjustment_id", adjustment.ID),
		slog.String("period_id", adjustment.PeriodID),
		slog.String("employee_id", adjustment.EmployeeID),
		slog.String("concept_id", adjustment.ConceptID),
	)
	return mapToAdjustmentResponse(adjustment), nil
}

// RemoveAdjustment retires an adjustment. The record is kept for audit and no longer applied.
func (s *PayrollServiceImpl) RemoveAdjustment(ctx context.Context, actor payroll.Actor, adjustmentID string) error {
	adjustment, err := s.repo.GetAdjustment(ctx, adjustmentID)
	if err != nil {
		return err
	}

	return s.withPeriodLock(ctx, adjustment.PeriodID, func(ctx context.Context) error {
		_, err := s.transition(ctx, actor, adjustment.PeriodID, payroll.TransitionRemoveAdjustment, nil, func(ctx context.Context, p *payroll.Period) error {
			if err := s.repo.MarkAdjustmentRemoved(ctx, adjustment.ID, actor.UserID, s.now()); err != nil {
				return err
			}
			p.RecalculationPending = true
			return nil
		})
		return err
	})
}

func (s *PayrollServiceImpl) ListAdjustments(ctx context.Context, filter payroll.AdjustmentFilter) ([]payroll.AdjustmentResponse, error) {
	switch {
	case filter.LineID != "":
		if _, err := s.repo.GetLine(ctx, filter.LineID); err != nil {
			return nil, err
		}
	case filter.PeriodID != "":
		if _, err := s.repo.GetPeriod(ctx, filter.PeriodID); err != nil {
			return nil, err
		}
	}

	adjustments, err := s.repo.ListAdjustments(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]payroll.AdjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, mapToAdjustmentResponse(a))
	}
	return out, nil
}
