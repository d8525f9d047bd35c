package payroll

import (
	"context"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
)

// ========== REPORTING ==========

// GetAggregate reads period and lines from one snapshot, so the breakdown never mixes two revisions.
func (s *PayrollServiceImpl) GetAggregate(ctx context.Context, periodID string) (payroll.AggregateResponse, error) {
	period, lines, err := s.repo.GetRun(ctx, periodID)
	if err != nil {
		return payroll.AggregateResponse{}, err
	}

	agg := Summarize(lines)
	return payroll.AggregateResponse{
		PeriodID:    period.ID,
		State:       period.State,
		Revision:    period.Revision,
		Departments: mapToDepartmentResponses(agg.Departments),
		Totals:      mapToTotalsResponse(agg.Totals),
	}, nil
}

// GetSnapshot returns the versioned export of a period. Exports render it and never recompute.
func (s *PayrollServiceImpl) GetSnapshot(ctx context.Context, periodID string) (payroll.RunSnapshot, error) {
	period, lines, err := s.repo.GetRun(ctx, periodID)
	if err != nil {
		return payroll.RunSnapshot{}, err
	}

	agg := Summarize(lines)
	return payroll.RunSnapshot{
		SchemaVersion: payroll.SnapshotSchemaVersion,
		Revision:      period.Revision,
		GeneratedAt:   s.now(),
		Period:        mapToPeriodResponse(period),
		Lines:         mapToLineResponses(lines),
		Departments:   mapToDepartmentResponses(agg.Departments),
		Totals:        mapToTotalsResponse(agg.Totals),
	}, nil
}

// GetLineSnapshot returns the snapshot of the period a line belongs to.
func (s *PayrollServiceImpl) GetLineSnapshot(ctx context.Context, lineID string) (payroll.RunSnapshot, error) {
	line, err := s.repo.GetLine(ctx, lineID)
	if err != nil {
		return payroll.RunSnapshot{}, err
	}
	return s.GetSnapshot(ctx, line.PeriodID)
}
