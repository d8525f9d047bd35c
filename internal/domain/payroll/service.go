package payroll

import "context"

type PayrollService interface {
	// Periods
	CreatePeriod(ctx context.Context, actor Actor, req CreatePeriodRequest) (PeriodResponse, error)
	GetPeriod(ctx context.Context, id string) (PeriodResponse, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) (ListPeriodResponse, error)
	DeletePeriod(ctx context.Context, actor Actor, id string) error

	// Calculation
	Calculate(ctx context.Context, actor Actor, periodID string) (CalculationResponse, error)
	Preview(ctx context.Context, req PreviewRequest) (PreviewResponse, error)
	ListLines(ctx context.Context, periodID string) ([]LineResponse, error)

	// Lifecycle
	Approve(ctx context.Context, actor Actor, periodID string) (PeriodResponse, error)
	MarkPaid(ctx context.Context, actor Actor, periodID string, req MarkPaidRequest) (PeriodResponse, error)
	Void(ctx context.Context, actor Actor, periodID string, req VoidRequest) (PeriodResponse, error)
	GetHistory(ctx context.Context, periodID string) ([]PeriodEventResponse, error)

	// Adjustments
	AddAdjustment(ctx context.Context, actor Actor, req AddAdjustmentRequest) (AdjustmentResponse, error)
	RemoveAdjustment(ctx context.Context, actor Actor, adjustmentID string) error
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]AdjustmentResponse, error)

	// Reporting
	GetAggregate(ctx context.Context, periodID string) (AggregateResponse, error)
	GetSnapshot(ctx context.Context, periodID string) (RunSnapshot, error)
	GetLineSnapshot(ctx context.Context, lineID string) (RunSnapshot, error)
}
