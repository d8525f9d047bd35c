package payroll

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/lock"
	"github.com/google/uuid"
)

type PayrollServiceImpl struct {
	repo    payroll.PayrollRepository
	tx      payroll.Transactor
	roster  payroll.RosterProvider
	catalog payroll.ConceptCatalog
	locker  lock.Locker
	engine  *Engine
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

func NewPayrollService(
	repo payroll.PayrollRepository,
	tx payroll.Transactor,
	roster payroll.RosterProvider,
	catalog payroll.ConceptCatalog,
	locker lock.Locker,
	engine *Engine,
	logger *slog.Logger,
) *PayrollServiceImpl {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &PayrollServiceImpl{
		repo:    repo,
		tx:      tx,
		roster:  roster,
		catalog: catalog,
		locker:  locker,
		engine:  engine,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
		newID:   func() string { return uuid.Must(uuid.NewV7()).String() },
	}
}

var _ payroll.PayrollService = (*PayrollServiceImpl)(nil)

// withPeriodLock runs fn while holding the exclusive lock of one period.
func (s *PayrollServiceImpl) withPeriodLock(ctx context.Context, periodID string, fn func(ctx context.Context) error) error {
	unlock, err := s.locker.Acquire(ctx, periodID)
	if err != nil {
		return err
	}
	defer func() {
		if err := unlock(context.WithoutCancel(ctx)); err != nil {
			s.logger.WarnContext(ctx, "failed to release period lock", slog.String("period_id", periodID), slog.Any("error", err))
		}
	}()
	return fn(ctx)
}

// transition re-reads the period inside one transaction, checks that t is permitted, lets mutate
// stage its writes, then persists the period with a bumped revision and an audit event.
func (s *PayrollServiceImpl) transition(
	ctx context.Context,
	actor payroll.Actor,
	periodID string,
	t payroll.Transition,
	reason *string,
	mutate func(ctx context.Context, p *payroll.Period) error,
) (payroll.Period, error) {
	var out payroll.Period
	var from payroll.PeriodState

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		p, err := s.repo.GetPeriodForUpdate(ctx, periodID)
		if err != nil {
			return err
		}
		from = p.State

		next, err := payroll.NextState(p.State, t)
		if err != nil {
			return err
		}
		if mutate != nil {
			if err := mutate(ctx, &p); err != nil {
				return err
			}
		}
		p.State = next
		p.Revision++

		if err := s.repo.UpdatePeriod(ctx, p); err != nil {
			return err
		}
		if err := s.repo.AppendEvent(ctx, payroll.PeriodEvent{
			ID:         s.newID(),
			PeriodID:   p.ID,
			Transition: t,
			FromState:  from,
			ToState:    next,
			Actor:      actor.UserID,
			Reason:     reason,
			Revision:   p.Revision,
			OccurredAt: s.now(),
		}); err != nil {
			return err
		}
		out = p
		return nil
	})
	if err != nil {
		return payroll.Period{}, err
	}

	s.logger.InfoContext(ctx, "payroll period transition committed",
		slog.String("period_id", periodID),
		slog.String("transition", string(t)),
		slog.String("from", string(from)),
		slog.String("to", string(out.State)),
		slog.String("actor", actor.UserID),
		slog.Int("revision", out.Revision),
	)
	return out, nil
}

// ========== PERIODS ==========

func (s *PayrollServiceImpl) CreatePeriod(ctx context.Context, actor payroll.Actor, req payroll.CreatePeriodRequest) (payroll.PeriodResponse, error) {
	if err := req.Validate(); err != nil {
		return payroll.PeriodResponse{}, err
	}

	kind := payroll.PeriodKind(req.Kind)
	now := s.now()
	period := payroll.Period{
		ID:        s.newID(),
		Label:     req.Label,
		Kind:      kind,
		State:     payroll.PeriodStateDraft,
		Scope:     req.Scope(),
		CreatedAt: now,
		CreatedBy: actor.UserID,
		Revision:  1,
	}

	err := s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsActiveLabel(ctx, period.Label, period.Kind)
		if err != nil {
			return err
		}
		if exists {
			return payroll.ErrPeriodLabelExists
		}
		if err := s.repo.CreatePeriod(ctx, period); err != nil {
			return err
		}
		return s.repo.AppendEvent(ctx, payroll.PeriodEvent{
			ID:         s.newID(),
			PeriodID:   period.ID,
			Transition: payroll.TransitionCreate,
			ToState:    payroll.PeriodStateDraft,
			Actor:      actor.UserID,
			Revision:   period.Revision,
			OccurredAt: now,
		})
	})
	if err != nil {
		return payroll.PeriodResponse{}, err
	}

	s.logger.InfoContext(ctx, "payroll period created",
		slog.String("period_id", period.ID),
		slog.String("label", period.Label),
		slog.String("kind", string(period.Kind)),
		slog.String("actor", actor.UserID),
	)
	return mapToPeriodResponse(period), nil
}

func (s *PayrollServiceImpl) GetPeriod(ctx context.Context, id string) (payroll.PeriodResponse, error) {
	period, err := s.repo.GetPeriod(ctx, id)
	if err != nil {
		return payroll.PeriodResponse{}, err
	}
	return mapToPeriodResponse(period), nil
}

func (s *PayrollServiceImpl) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) (payroll.ListPeriodResponse, error) {
	if err := filter.Validate(); err != nil {
		return payroll.ListPeriodResponse{}, err
	}

	periods, total, err := s.repo.ListPeriods(ctx, filter)
	if err != nil {
		return payroll.ListPeriodResponse{}, err
	}

	responses := make([]payroll.PeriodResponse, 0, len(periods))
	for _, p := range periods {
		responses = append(responses, mapToPeriodResponse(p))
	}

	totalPages := int(total) / filter.Limit
	if int(total)%filter.Limit > 0 {
		totalPages++
	}

	return payroll.ListPeriodResponse{
		Periods:    responses,
		TotalCount: total,
		Page:       filter.Page,
		Limit:      filter.Limit,
		TotalPages: totalPages,
	}, nil
}

// DeletePeriod removes a draft period that never had adjustments, together with its lines.
func (s *PayrollServiceImpl) DeletePeriod(ctx context.Context, actor payroll.Actor, id string) error {
	err := s.withPeriodLock(ctx, id, func(ctx context.Context) error {
		return s.tx.WithinTransaction(ctx, func(ctx context.Context) error {
			p, err := s.repo.GetPeriodForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if _, err := payroll.NextState(p.State, payroll.TransitionDelete); err != nil {
				return err
			}
			n, err := s.repo.CountAdjustments(ctx, id)
			if err != nil {
				return err
			}
			if n > 0 {
				return payroll.ErrPeriodHasAdjustments
			}
			return s.repo.DeletePeriod(ctx, id)
		})
	})
	if err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "payroll period deleted", slog.String("period_id", id), slog.String("actor", actor.UserID))
	return nil
}

// logFailure records calculation failures at a level matching their kind.
func (s *PayrollServiceImpl) logFailure(ctx context.Context, periodID string, err error) {
	var ie *payroll.InvariantError
	switch {
	case errors.As(err, &ie):
		s.logger.ErrorContext(ctx, "payroll calculation aborted", slog.String("period_id", periodID), slog.String("employee_id", ie.EmployeeID), slog.String("reason", ie.Reason))
	case errors.Is(err, payroll.ErrDependencyUnavailable):
		s.logger.WarnContext(ctx, "payroll dependency unavailable", slog.String("period_id", periodID), slog.Any("error", err))
	}
}

// ========== MAPPERS ==========

func mapToPeriodResponse(p payroll.Period) payroll.PeriodResponse {
	return payroll.PeriodResponse{
		ID:                   p.ID,
		Label:                p.Label,
		Kind:                 p.Kind,
		State:                p.State,
		Scope:                p.Scope,
		CreatedAt:            p.CreatedAt,
		CreatedBy:            p.CreatedBy,
		CalculatedAt:         p.CalculatedAt,
		LastCalculatedAt:     p.LastCalculatedAt,
		ApprovedAt:           p.ApprovedAt,
		ApprovedBy:           p.ApprovedBy,
		PaidAt:               p.PaidAt,
		VoidedAt:             p.VoidedAt,
		VoidedBy:             p.VoidedBy,
		VoidReason:           p.VoidReason,
		RecalculationPending: p.RecalculationPending,
		Revision:             p.Revision,
	}
}

func mapToLineResponse(l payroll.Line) payroll.LineResponse {
	return payroll.LineResponse{
		ID:               l.ID,
		PeriodID:         l.PeriodID,
		EmployeeID:       l.EmployeeID,
		EmployeeCode:     l.EmployeeCode,
		EmployeeName:     l.EmployeeName,
		DepartmentID:     l.DepartmentID,
		Department:       l.Department,
		Position:         l.Position,
		DaysWorked:       l.DaysWorked,
		RegularHours:     l.RegularHours,
		OvertimeHours50:  l.OvertimeHours50,
		OvertimeHours100: l.OvertimeHours100,
		Concepts:         l.Concepts,
		GrossPay:         l.GrossPay,
		TotalDeductions:  l.TotalDeductions,
		NetPay:           l.NetPay,
	}
}

func mapToLineResponses(lines []payroll.Line) []payroll.LineResponse {
	out := make([]payroll.LineResponse, 0, len(lines))
	for _, l := range lines {
		out = append(out, mapToLineResponse(l))
	}
	return out
}

func mapToTotalsResponse(t payroll.PeriodTotals) payroll.TotalsResponse {
	return payroll.TotalsResponse{
		EmployeeCount:   t.EmployeeCount,
		GrossPay:        t.GrossPay,
		TotalDeductions: t.TotalDeductions,
		NetPay:          t.NetPay,
	}
}

func mapToDepartmentResponses(departments []payroll.DepartmentAggregate) []payroll.DepartmentAggregateResponse {
	out := make([]payroll.DepartmentAggregateResponse, 0, len(departments))
	for _, d := range departments {
		out = append(out, payroll.DepartmentAggregateResponse{
			DepartmentID:    d.DepartmentID,
			Department:      d.Department,
			EmployeeCount:   d.EmployeeCount,
			GrossPay:        d.GrossPay,
			TotalDeductions: d.TotalDeductions,
			NetPay:          d.NetPay,
		})
	}
	return out
}

func mapToAdjustmentResponse(a payroll.Adjustment) payroll.AdjustmentResponse {
	return payroll.AdjustmentResponse{
		ID:         a.ID,
		PeriodID:   a.PeriodID,
		LineID:     a.LineID,
		EmployeeID: a.EmployeeID,
		ConceptID:  a.ConceptID,
		Kind:       a.Kind,
		Amount:     a.Amount,
		Reason:     a.Reason,
		CreatedBy:  a.CreatedBy,
		CreatedAt:  a.CreatedAt,
		RemovedAt:  a.RemovedAt,
		RemovedBy:  a.RemovedBy,
	}
}

func failedEmployeeIDs(errs []payroll.LineError) []string {
	ids := make([]string, 0, len(errs))
	for _, e := range errs {
		ids = append(ids, e.EmployeeID)
	}
	return ids
}

func dependencyError(name, periodID string, err error) error {
	return &payroll.DependencyError{Dependency: name, PeriodID: periodID, Err: err}
}

func incomplete(what string) error {
	return fmt.Errorf("incomplete data: %s", what)
}
