package payroll

import (
	"context"
	"time"
)

// Transactor runs fn atomically. Repository calls made with the ctx passed to fn join the transaction.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type PayrollRepository interface {
	// Periods
	CreatePeriod(ctx context.Context, period Period) error
	GetPeriod(ctx context.Context, id string) (Period, error)
	// GetPeriodForUpdate locks the period row for the rest of the surrounding transaction.
	GetPeriodForUpdate(ctx context.Context, id string) (Period, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]Period, int64, error)
	// ExistsActiveLabel reports whether a period that is not voided already uses label and kind.
	ExistsActiveLabel(ctx context.Context, label string, kind PeriodKind) (bool, error)
	UpdatePeriod(ctx context.Context, period Period) error
	DeletePeriod(ctx context.Context, id string) error

	// Lines
	// ReplaceLines swaps the full line set of a period for lines.
	ReplaceLines(ctx context.Context, periodID string, lines []Line) error
	ListLines(ctx context.Context, periodID string) ([]Line, error)
	GetLine(ctx context.Context, id string) (Line, error)
	// GetRun reads a period and its lines from one consistent snapshot.
	GetRun(ctx context.Context, periodID string) (Period, []Line, error)

	// Adjustments
	CreateAdjustment(ctx context.Context, adjustment Adjustment) error
	GetAdjustment(ctx context.Context, id string) (Adjustment, error)
	ListAdjustments(ctx context.Context, filter AdjustmentFilter) ([]Adjustment, error)
	MarkAdjustmentRemoved(ctx context.Context, id string, removedBy string, removedAt time.Time) error
	// CountAdjustments counts every adjustment ever recorded for the period, removed ones included.
	CountAdjustments(ctx context.Context, periodID string) (int, error)

	// History
	AppendEvent(ctx context.Context, event PeriodEvent) error
	ListEvents(ctx context.Context, periodID string) ([]PeriodEvent, error)
}
