// Package memory keeps payroll state in process memory. It backs local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
)

type state struct {
	periods     map[string]payroll.Period
	lines       map[string]map[string]payroll.Line // period id -> line id -> line
	adjustments map[string]payroll.Adjustment
	events      map[string][]payroll.PeriodEvent
}

func newState() *state {
	return &state{
		periods:     make(map[string]payroll.Period),
		lines:       make(map[string]map[string]payroll.Line),
		adjustments: make(map[string]payroll.Adjustment),
		events:      make(map[string][]payroll.PeriodEvent),
	}
}

func (s *state) clone() *state {
	c := newState()
	for id, p := range s.periods {
		c.periods[id] = copyPeriod(p)
	}
	for periodID, lines := range s.lines {
		m := make(map[string]payroll.Line, len(lines))
		for id, l := range lines {
			m[id] = copyLine(l)
		}
		c.lines[periodID] = m
	}
	for id, a := range s.adjustments {
		c.adjustments[id] = a
	}
	for periodID, events := range s.events {
		c.events[periodID] = append([]payroll.PeriodEvent(nil), events...)
	}
	return c
}

type txKey struct{}

// Store is an in-memory payroll repository. A transaction works on a private copy of the
// whole state which replaces the committed state only when the transaction function succeeds,
// so readers never observe a partially applied operation.
type Store struct {
	mu sync.RWMutex
	st *state
}

func NewStore() *Store {
	return &Store{st: newState()}
}

func (s *Store) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	staged := s.st.clone()
	if err := fn(context.WithValue(ctx, txKey{}, staged)); err != nil {
		return err
	}
	s.st = staged
	return nil
}

func (s *Store) read(ctx context.Context, fn func(st *state) error) error {
	if st, ok := ctx.Value(txKey{}).(*state); ok {
		return fn(st)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(s.st)
}

func (s *Store) write(ctx context.Context, fn func(st *state) error) error {
	return s.WithinTransaction(ctx, func(ctx context.Context) error {
		return fn(ctx.Value(txKey{}).(*state))
	})
}

// ========== PERIODS ==========

// CreatePeriod enforces one non-voided period per label and kind.
func (s *Store) CreatePeriod(ctx context.Context, period payroll.Period) error {
	return s.write(ctx, func(st *state) error {
		for _, p := range st.periods {
			if period.State != payroll.PeriodStateVoided && p.State != payroll.PeriodStateVoided &&
				p.Label == period.Label && p.Kind == period.Kind {
				return payroll.ErrPeriodLabelExists
			}
		}
		st.periods[period.ID] = copyPeriod(period)
		return nil
	})
}

func (s *Store) GetPeriod(ctx context.Context, id string) (payroll.Period, error) {
	var out payroll.Period
	err := s.read(ctx, func(st *state) error {
		p, ok := st.periods[id]
		if !ok {
			return payroll.ErrPeriodNotFound
		}
		out = copyPeriod(p)
		return nil
	})
	return out, err
}

// GetPeriodForUpdate needs no row lock: a transaction already holds the store's write lock.
func (s *Store) GetPeriodForUpdate(ctx context.Context, id string) (payroll.Period, error) {
	return s.GetPeriod(ctx, id)
}

func (s *Store) ListPeriods(ctx context.Context, filter payroll.PeriodFilter) ([]payroll.Period, int64, error) {
	var matched []payroll.Period
	err := s.read(ctx, func(st *state) error {
		for _, p := range st.periods {
			if filter.State != nil && string(p.State) != *filter.State {
				continue
			}
			if filter.Kind != nil && string(p.Kind) != *filter.Kind {
				continue
			}
			matched = append(matched, copyPeriod(p))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID > matched[j].ID
	})

	total := int64(len(matched))
	page, limit := filter.Page, filter.Limit
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	start := (page - 1) * limit
	if start >= len(matched) {
		return []payroll.Period{}, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (s *Store) ExistsActiveLabel(ctx context.Context, label string, kind payroll.PeriodKind) (bool, error) {
	var exists bool
	err := s.read(ctx, func(st *state) error {
		for _, p := range st.periods {
			if p.Label == label && p.Kind == kind && p.State != payroll.PeriodStateVoided {
				exists = true
				return nil
			}
		}
		return nil
	})
	return exists, err
}

func (s *Store) UpdatePeriod(ctx context.Context, period payroll.Period) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.periods[period.ID]; !ok {
			return payroll.ErrPeriodNotFound
		}
		st.periods[period.ID] = copyPeriod(period)
		return nil
	})
}

func (s *Store) DeletePeriod(ctx context.Context, id string) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.periods[id]; !ok {
			return payroll.ErrPeriodNotFound
		}
		delete(st.periods, id)
		delete(st.lines, id)
		delete(st.events, id)
		return nil
	})
}

// ========== LINES ==========

func (s *Store) ReplaceLines(ctx context.Context, periodID string, lines []payroll.Line) error {
	return s.write(ctx, func(st *state) error {
		if _, ok := st.periods[periodID]; !ok {
			return payroll.ErrPeriodNotFound
		}
		m := make(map[string]payroll.Line, len(lines))
		for _, l := range lines {
			m[l.ID] = copyLine(l)
		}
		st.lines[periodID] = m
		return nil
	})
}

func (s *Store) ListLines(ctx context.Context, periodID string) ([]payroll.Line, error) {
	var out []payroll.Line
	err := s.read(ctx, func(st *state) error {
		if _, ok := st.periods[periodID]; !ok {
			return payroll.ErrPeriodNotFound
		}
		out = sortedLines(st.lines[periodID])
		return nil
	})
	return out, err
}

func (s *Store) GetLine(ctx context.Context, id string) (payroll.Line, error) {
	var out payroll.Line
	err := s.read(ctx, func(st *state) error {
		for _, lines := range st.lines {
			if l, ok := lines[id]; ok {
				out = copyLine(l)
				return nil
			}
		}
		return payroll.ErrLineNotFound
	})
	return out, err
}

func (s *Store) GetRun(ctx context.Context, periodID string) (payroll.Period, []payroll.Line, error) {
	var period payroll.Period
	var lines []payroll.Line
	err := s.read(ctx, func(st *state) error {
		p, ok := st.periods[periodID]
		if !ok {
			return payroll.ErrPeriodNotFound
		}
		period = copyPeriod(p)
		lines = sortedLines(st.lines[periodID])
		return nil
	})
	return period, lines, err
}

// ========== ADJUSTMENTS ==========

func (s *Store) CreateAdjustment(ctx context.Context, adjustment payroll.Adjustment) error {
	return s.write(ctx, func(st *state) error {
		st.adjustments[adjustment.ID] = adjustment
		return nil
	})
}

func (s *Store) GetAdjustment(ctx context.Context, id string) (payroll.Adjustment, error) {
	var out payroll.Adjustment
	err := s.read(ctx, func(st *state) error {
		a, ok := st.adjustments[id]
		if !ok {
			return payroll.ErrAdjustmentNotFound
		}
		out = a
		return nil
	})
	return out, err
}

func (s *Store) ListAdjustments(ctx context.Context, filter payroll.AdjustmentFilter) ([]payroll.Adjustment, error) {
	out := []payroll.Adjustment{}
	err := s.read(ctx, func(st *state) error {
		for _, a := range st.adjustments {
			if filter.PeriodID != "" && a.PeriodID != filter.PeriodID {
				continue
			}
			if filter.LineID != "" && a.LineID != filter.LineID {
				continue
			}
			if !filter.IncludeRemoved && !a.IsActive() {
				continue
			}
			out = append(out, a)
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, err
}

func (s *Store) MarkAdjustmentRemoved(ctx context.Context, id string, removedBy string, removedAt time.Time) error {
	return s.write(ctx, func(st *state) error {
		a, ok := st.adjustments[id]
		if !ok {
			return payroll.ErrAdjustmentNotFound
		}
		if !a.IsActive() {
			return payroll.ErrAdjustmentAlreadyRemoved
		}
		a.RemovedAt = &removedAt
		a.RemovedBy = &removedBy
		st.adjustments[id] = a
		return nil
	})
}

func (s *Store) CountAdjustments(ctx context.Context, periodID string) (int, error) {
	var n int
	err := s.read(ctx, func(st *state) error {
		for _, a := range st.adjustments {
			if a.PeriodID == periodID {
				n++
			}
		}
		return nil
	})
	return n, err
}

// ========== HISTORY ==========

func (s *Store) AppendEvent(ctx context.Context, event payroll.PeriodEvent) error {
	return s.write(ctx, func(st *state) error {
		st.events[event.PeriodID] = append(st.events[event.PeriodID], event)
		return nil
	})
}

func (s *Store) ListEvents(ctx context.Context, periodID string) ([]payroll.PeriodEvent, error) {
	var out []payroll.PeriodEvent
	err := s.read(ctx, func(st *state) error {
		out = append([]payroll.PeriodEvent{}, st.events[periodID]...)
		return nil
	})
	return out, err
}

func sortedLines(m map[string]payroll.Line) []payroll.Line {
	out := make([]payroll.Line, 0, len(m))
	for _, l := range m {
		out = append(out, copyLine(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EmployeeID < out[j].EmployeeID })
	return out
}

func copyPeriod(p payroll.Period) payroll.Period {
	p.Scope = payroll.ScopeFilter{
		DepartmentIDs: append([]string(nil), p.Scope.DepartmentIDs...),
		EmployeeIDs:   append([]string(nil), p.Scope.EmployeeIDs...),
	}
	return p
}

func copyLine(l payroll.Line) payroll.Line {
	l.Concepts = append([]payroll.ConceptAmount{}, l.Concepts...)
	return l
}
