package payroll

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/lock"
	"github.com/cmlabs-hris/payroll-engine/internal/pkg/validator"
	"github.com/cmlabs-hris/payroll-engine/internal/repository/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var (
	owner   = payroll.Actor{UserID: "user-owner", Role: "owner"}
	manager = payroll.Actor{UserID: "user-manager", Role: "manager"}
)

type mockRoster struct{ mock.Mock }

func (m *mockRoster) Roster(ctx context.Context, query payroll.RosterQuery) ([]payroll.RosterEntry, error) {
	args := m.Called(ctx, query)
	entries, _ := args.Get(0).([]payroll.RosterEntry)
	return entries, args.Error(1)
}

type mockCatalog struct{ mock.Mock }

func (m *mockCatalog) Catalog(ctx context.Context) (payroll.Catalog, error) {
	args := m.Called(ctx)
	catalog, _ := args.Get(0).(payroll.Catalog)
	return catalog, args.Error(1)
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type serviceFixture struct {
	svc   *PayrollServiceImpl
	store *memory.Store
}

func newServiceFixture(t *testing.T, roster payroll.RosterProvider, catalog payroll.ConceptCatalog) serviceFixture {
	t.Helper()
	store := memory.NewStore()
	svc := NewPayrollService(store, store, roster, catalog, lock.NewMemoryLocker(5*time.Second), testEngine(), nil)
	clock := &fakeClock{t: time.Date(2025, 1, 31, 8, 0, 0, 0, time.UTC)}
	svc.now = clock.now
	return serviceFixture{svc: svc, store: store}
}

func defaultFixture(t *testing.T, entries ...payroll.RosterEntry) serviceFixture {
	if len(entries) == 0 {
		entries = []payroll.RosterEntry{fullMonth("emp-1", "5000")}
	}
	return newServiceFixture(t, memory.NewStaticRoster(entries), memory.NewStaticCatalog(testCatalog()))
}

func (f serviceFixture) createPeriod(t *testing.T) payroll.PeriodResponse {
	t.Helper()
	p, err := f.svc.CreatePeriod(context.Background(), owner, payroll.CreatePeriodRequest{Label: "2025-01", Kind: "ordinary"})
	require.NoError(t, err)
	return p
}

func linesJSON(t *testing.T, f serviceFixture, periodID string) string {
	t.Helper()
	lines, err := f.svc.ListLines(context.Background(), periodID)
	require.NoError(t, err)
	b, err := json.Marshal(lines)
	require.NoError(t, err)
	return string(b)
}

func TestPayrollService_CreatePeriod_Success(t *testing.T) {
	f := defaultFixture(t)

	p := f.createPeriod(t)

	assert.Equal(t, payroll.PeriodStateDraft, p.State)
	assert.Equal(t, 1, p.Revision)
	assert.True(t, validator.IsValidUUID(p.ID))
	assert.Equal(t, owner.UserID, p.CreatedBy)
	assert.Nil(t, p.CalculatedAt)
}

func TestPayrollService_CreatePeriod_Validation(t *testing.T) {
	f := defaultFixture(t)

	_, err := f.svc.CreatePeriod(context.Background(), owner, payroll.CreatePeriodRequest{Kind: "monthly"})

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Len(t, verrs, 2)
}

func TestPayrollService_CreatePeriod_DuplicateLabel(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)

	_, err := f.svc.CreatePeriod(ctx, owner, payroll.CreatePeriodRequest{Label: "2025-01", Kind: "ordinary"})
	assert.ErrorIs(t, err, payroll.ErrPeriodLabelExists)

	// a different kind with the same label is a separate run
	_, err = f.svc.CreatePeriod(ctx, owner, payroll.CreatePeriodRequest{Label: "2025-01", Kind: "bonus_13"})
	require.NoError(t, err)

	// a voided run frees its label
	_, err = f.svc.Void(ctx, owner, p.ID, payroll.VoidRequest{Reason: "wrong scope"})
	require.NoError(t, err)
	_, err = f.svc.CreatePeriod(ctx, owner, payroll.CreatePeriodRequest{Label: "2025-01", Kind: "ordinary"})
	require.NoError(t, err)
}

func TestPayrollService_CreatePeriod_ConcurrentDuplicates(t *testing.T) {
	f := defaultFixture(t)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreatePeriod(context.Background(), owner, payroll.CreatePeriodRequest{Label: "2025-01", Kind: "ordinary"})
			if err == nil {
				mu.Lock()
				created++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, payroll.ErrPeriodLabelExists)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, created)
	list, err := f.svc.ListPeriods(context.Background(), payroll.PeriodFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(1), list.TotalCount)
}

func TestPayrollService_Calculate_FullMonth(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)

	// Act
	resp, err := f.svc.Calculate(ctx, manager, p.ID)

	// Assert
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStateCalculated, resp.Period.State)
	require.NotNil(t, resp.Period.CalculatedAt)
	require.Len(t, resp.Lines, 1)
	assert.Equal(t, "5000.00", resp.Lines[0].GrossPay.StringFixed(2))
	assert.Equal(t, "500.00", resp.Lines[0].TotalDeductions.StringFixed(2))
	assert.Equal(t, "4500.00", resp.Lines[0].NetPay.StringFixed(2))
	assert.Empty(t, resp.FailedEmployeeIDs)
	assert.Equal(t, 2, resp.Period.Revision)
}

func TestPayrollService_Calculate_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t, fullMonth("emp-1", "5000"), fullMonth("emp-2", "3200"))
	p := f.createPeriod(t)

	first, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	before := linesJSON(t, f, p.ID)

	second, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)

	assert.Equal(t, before, linesJSON(t, f, p.ID))
	assert.Equal(t, first.Period.CalculatedAt, second.Period.CalculatedAt)
	assert.True(t, second.Period.LastCalculatedAt.After(*first.Period.LastCalculatedAt))
}

func TestPayrollService_Calculate_PartialFailure(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t, fullMonth("emp-1", "5000"), fullMonth("emp-2", ""))
	p := f.createPeriod(t)

	resp, err := f.svc.Calculate(ctx, manager, p.ID)

	require.NoError(t, err)
	assert.Len(t, resp.Lines, 1)
	assert.Equal(t, []string{"emp-2"}, resp.FailedEmployeeIDs)
	assert.Equal(t, payroll.PeriodStateCalculated, resp.Period.State)
}

func TestPayrollService_AdjustmentThenRecalculate(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	lineID := calc.Lines[0].ID

	adj, err := f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{
		LineID:    lineID,
		ConceptID: "other_earning",
		Kind:      "earning",
		Amount:    decimal.NewFromInt(100),
		Reason:    "missed allowance",
	})
	require.NoError(t, err)
	assert.Equal(t, "emp-1", adj.EmployeeID)
	assert.Equal(t, p.ID, adj.PeriodID)

	// staged, not yet applied
	period, err := f.svc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, period.RecalculationPending)
	lines, err := f.svc.ListLines(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "4500.00", lines[0].NetPay.StringFixed(2))

	_, err = f.svc.Approve(ctx, manager, p.ID)
	assert.ErrorIs(t, err, payroll.ErrRecalculationPending)

	recalc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	assert.Equal(t, lineID, recalc.Lines[0].ID)
	assert.Equal(t, "5100.00", recalc.Lines[0].GrossPay.StringFixed(2))
	assert.Equal(t, "4600.00", recalc.Lines[0].NetPay.StringFixed(2))
	assert.False(t, recalc.Period.RecalculationPending)

	approved, err := f.svc.Approve(ctx, owner, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStateApproved, approved.State)
	require.NotNil(t, approved.ApprovedBy)
	assert.Equal(t, owner.UserID, *approved.ApprovedBy)
}

func TestPayrollService_AddAdjustment_Validation(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	lineID := calc.Lines[0].ID

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{LineID: lineID, ConceptID: "other_earning", Kind: "earning", Amount: decimal.Zero, Reason: "x"})
	var verrs validator.ValidationErrors
	assert.True(t, errors.As(err, &verrs))

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{LineID: lineID, ConceptID: "other_earning", Kind: "deduction", Amount: decimal.NewFromInt(1), Reason: "x"})
	assert.ErrorIs(t, err, payroll.ErrConceptKindMismatch)

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{LineID: lineID, ConceptID: "parking", Kind: "deduction", Amount: decimal.NewFromInt(1), Reason: "x"})
	assert.ErrorIs(t, err, payroll.ErrUnknownConcept)

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{LineID: "missing", ConceptID: "other_earning", Kind: "earning", Amount: decimal.NewFromInt(1), Reason: "x"})
	assert.ErrorIs(t, err, payroll.ErrLineNotFound)

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{LineID: lineID, ConceptID: "other_earning", Kind: "earning", Amount: dec("0.001"), Reason: "x"})
	assert.True(t, errors.As(err, &verrs))

	// nothing was persisted and the period is not flagged
	adjustments, err := f.svc.ListAdjustments(ctx, payroll.AdjustmentFilter{PeriodID: p.ID, IncludeRemoved: true})
	require.NoError(t, err)
	assert.Empty(t, adjustments)
	period, err := f.svc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, period.RecalculationPending)
}

func TestPayrollService_AddAdjustment_RespectsEngineScale(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	f.svc.engine = NewEngine(EngineConfig{
		StandardDaysInPeriod:  decimal.NewFromInt(22),
		StandardHoursPerMonth: decimal.NewFromInt(160),
		AmountScale:           0,
	})
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{LineID: calc.Lines[0].ID, ConceptID: "other_earning", Kind: "earning", Amount: dec("0.40"), Reason: "x"})

	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))
	assert.Equal(t, "must have at most 0 decimal places", verrs.ToMap()["amount"])
}

func TestPayrollService_ApprovedPeriodIsFrozen(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, owner, p.ID)
	require.NoError(t, err)
	before := linesJSON(t, f, p.ID)

	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{
		LineID: calc.Lines[0].ID, ConceptID: "other_earning", Kind: "earning", Amount: decimal.NewFromInt(100), Reason: "late",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrStateConflict)
	assert.Equal(t, "cannot modify an approved period", err.Error())

	_, err = f.svc.Calculate(ctx, manager, p.ID)
	var te *payroll.TransitionError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, payroll.PeriodStateApproved, te.Current)

	assert.Equal(t, before, linesJSON(t, f, p.ID))
}

func TestPayrollService_TransitionRejections(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)

	_, err := f.svc.Approve(ctx, owner, p.ID)
	assert.ErrorIs(t, err, payroll.ErrStateConflict)

	_, err = f.svc.MarkPaid(ctx, owner, p.ID, payroll.MarkPaidRequest{})
	assert.ErrorIs(t, err, payroll.ErrStateConflict)

	_, err = f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, owner, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, owner, p.ID)
	assert.ErrorIs(t, err, payroll.ErrTransitionAlreadyApplied)

	paid, err := f.svc.MarkPaid(ctx, owner, p.ID, payroll.MarkPaidRequest{})
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStatePaid, paid.State)
	require.NotNil(t, paid.PaidAt)

	_, err = f.svc.MarkPaid(ctx, owner, p.ID, payroll.MarkPaidRequest{})
	assert.ErrorIs(t, err, payroll.ErrTransitionAlreadyApplied)

	_, err = f.svc.Void(ctx, owner, p.ID, payroll.VoidRequest{Reason: "duplicate"})
	require.Error(t, err)
	assert.Equal(t, "cannot void a paid period", err.Error())

	// approval timestamp survived every rejected attempt
	period, err := f.svc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.NotNil(t, period.ApprovedAt)
	assert.Equal(t, payroll.PeriodStatePaid, period.State)
}

func TestPayrollService_MarkPaid_BeforeApproval(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	_, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, owner, p.ID)
	require.NoError(t, err)

	early := "2024-12-31T00:00:00Z"
	_, err = f.svc.MarkPaid(ctx, owner, p.ID, payroll.MarkPaidRequest{PaidAt: &early})
	assert.ErrorIs(t, err, payroll.ErrPaidBeforeApproved)
}

func TestPayrollService_Approve_NoPayableLines(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t, fullMonth("emp-1", ""))
	p := f.createPeriod(t)
	_, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)

	_, err = f.svc.Approve(ctx, owner, p.ID)
	assert.ErrorIs(t, err, payroll.ErrNoPayableLines)
}

func TestPayrollService_Void(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	_, err = f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{
		LineID: calc.Lines[0].ID, ConceptID: "other_deduction", Kind: "deduction", Amount: decimal.NewFromInt(10), Reason: "fine",
	})
	require.NoError(t, err)

	_, err = f.svc.Void(ctx, owner, p.ID, payroll.VoidRequest{})
	var verrs validator.ValidationErrors
	require.True(t, errors.As(err, &verrs))

	voided, err := f.svc.Void(ctx, owner, p.ID, payroll.VoidRequest{Reason: "rerun with new scope"})
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStateVoided, voided.State)
	require.NotNil(t, voided.VoidReason)
	assert.Equal(t, "rerun with new scope", *voided.VoidReason)

	// adjustments are retained
	adjustments, err := f.svc.ListAdjustments(ctx, payroll.AdjustmentFilter{PeriodID: p.ID})
	require.NoError(t, err)
	assert.Len(t, adjustments, 1)

	_, err = f.svc.Void(ctx, owner, p.ID, payroll.VoidRequest{Reason: "again"})
	assert.ErrorIs(t, err, payroll.ErrTransitionAlreadyApplied)
}

func TestPayrollService_DeletePeriod(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)

	draft := f.createPeriod(t)
	require.NoError(t, f.svc.DeletePeriod(ctx, owner, draft.ID))
	_, err := f.svc.GetPeriod(ctx, draft.ID)
	assert.ErrorIs(t, err, payroll.ErrPeriodNotFound)

	calculated := f.createPeriod(t)
	_, err = f.svc.Calculate(ctx, manager, calculated.ID)
	require.NoError(t, err)
	err = f.svc.DeletePeriod(ctx, owner, calculated.ID)
	assert.ErrorIs(t, err, payroll.ErrStateConflict)

	// a draft that carries adjustment history cannot be deleted
	other, err := f.svc.CreatePeriod(ctx, owner, payroll.CreatePeriodRequest{Label: "2025-02", Kind: "ordinary"})
	require.NoError(t, err)
	require.NoError(t, f.store.CreateAdjustment(ctx, payroll.Adjustment{ID: "adj-legacy", PeriodID: other.ID, CreatedAt: time.Now()}))
	err = f.svc.DeletePeriod(ctx, owner, other.ID)
	assert.ErrorIs(t, err, payroll.ErrPeriodHasAdjustments)
}

func TestPayrollService_RemoveAdjustment(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	adj, err := f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{
		LineID: calc.Lines[0].ID, ConceptID: "other_earning", Kind: "earning", Amount: decimal.NewFromInt(250), Reason: "bonus",
	})
	require.NoError(t, err)
	_, err = f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)

	require.NoError(t, f.svc.RemoveAdjustment(ctx, manager, adj.ID))
	assert.ErrorIs(t, f.svc.RemoveAdjustment(ctx, manager, adj.ID), payroll.ErrAdjustmentAlreadyRemoved)

	resp, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "4500.00", resp.Lines[0].NetPay.StringFixed(2))

	all, err := f.svc.ListAdjustments(ctx, payroll.AdjustmentFilter{LineID: calc.Lines[0].ID, IncludeRemoved: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.NotNil(t, all[0].RemovedAt)
}

func TestPayrollService_Calculate_DependencyFailureKeepsLines(t *testing.T) {
	ctx := context.Background()
	roster := &mockRoster{}
	roster.On("Roster", mock.Anything, mock.Anything).Return([]payroll.RosterEntry{fullMonth("emp-1", "5000")}, nil).Once()
	roster.On("Roster", mock.Anything, mock.Anything).Return(nil, errors.New("hr backend timeout")).Once()
	f := newServiceFixture(t, roster, memory.NewStaticCatalog(testCatalog()))
	p := f.createPeriod(t)

	first, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	before := linesJSON(t, f, p.ID)

	_, err = f.svc.Calculate(ctx, manager, p.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrDependencyUnavailable)
	var de *payroll.DependencyError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "roster", de.Dependency)
	assert.Equal(t, p.ID, de.PeriodID)

	assert.Equal(t, before, linesJSON(t, f, p.ID))
	period, err := f.svc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, first.Period.Revision, period.Revision)
	roster.AssertExpectations(t)
}

func TestPayrollService_Calculate_CatalogFailure(t *testing.T) {
	ctx := context.Background()
	catalog := &mockCatalog{}
	catalog.On("Catalog", mock.Anything).Return(payroll.Catalog{}, errors.New("connection reset"))
	f := newServiceFixture(t, memory.NewStaticRoster([]payroll.RosterEntry{fullMonth("emp-1", "5000")}), catalog)
	p := f.createPeriod(t)

	_, err := f.svc.Calculate(ctx, manager, p.ID)

	var de *payroll.DependencyError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "concept catalog", de.Dependency)
	period, err := f.svc.GetPeriod(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.PeriodStateDraft, period.State)
}

func TestPayrollService_Calculate_InvariantFailureKeepsLines(t *testing.T) {
	ctx := context.Background()
	roster := &mockRoster{}
	indebted := fullMonth("emp-1", "5000")
	indebted.FixedItems = []payroll.FixedItem{{ConceptID: "loan_repayment", Amount: dec("9000")}}
	roster.On("Roster", mock.Anything, mock.Anything).Return([]payroll.RosterEntry{fullMonth("emp-1", "5000")}, nil).Once()
	roster.On("Roster", mock.Anything, mock.Anything).Return([]payroll.RosterEntry{indebted}, nil).Once()
	f := newServiceFixture(t, roster, memory.NewStaticCatalog(testCatalog()))
	p := f.createPeriod(t)

	_, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	before := linesJSON(t, f, p.ID)

	_, err = f.svc.Calculate(ctx, manager, p.ID)
	var ie *payroll.InvariantError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, "emp-1", ie.EmployeeID)
	assert.Equal(t, before, linesJSON(t, f, p.ID))
}

func TestPayrollService_Calculate_IncompleteRoster(t *testing.T) {
	roster := &mockRoster{}
	roster.On("Roster", mock.Anything, mock.Anything).Return([]payroll.RosterEntry{{Name: "no id"}}, nil)
	f := newServiceFixture(t, roster, memory.NewStaticCatalog(testCatalog()))
	p := f.createPeriod(t)

	_, err := f.svc.Calculate(context.Background(), manager, p.ID)
	assert.ErrorIs(t, err, payroll.ErrDependencyUnavailable)
}

func TestPayrollService_Calculate_PassesScopeToRoster(t *testing.T) {
	ctx := context.Background()
	roster := &mockRoster{}
	roster.On("Roster", mock.Anything, payroll.RosterQuery{
		PeriodLabel: "2025-03",
		Kind:        payroll.PeriodKindOrdinary,
		Scope:       payroll.ScopeFilter{DepartmentIDs: []string{"dept-eng"}},
	}).Return([]payroll.RosterEntry{fullMonth("emp-1", "5000")}, nil)
	f := newServiceFixture(t, roster, memory.NewStaticCatalog(testCatalog()))

	p, err := f.svc.CreatePeriod(ctx, owner, payroll.CreatePeriodRequest{Label: "2025-03", Kind: "ordinary", DepartmentIDs: []string{"dept-eng"}})
	require.NoError(t, err)
	_, err = f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	roster.AssertExpectations(t)
}

func TestPayrollService_Preview_DoesNotPersist(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t, fullMonth("emp-1", "5000"), fullMonth("emp-2", ""))

	resp, err := f.svc.Preview(ctx, payroll.PreviewRequest{Kind: "ordinary"})

	require.NoError(t, err)
	assert.Equal(t, "2025-01", resp.Label)
	assert.Equal(t, 1, resp.Totals.EmployeeCount)
	assert.Equal(t, "4500.00", resp.Totals.NetPay.StringFixed(2))
	require.Len(t, resp.Departments, 1)
	assert.Equal(t, []string{"emp-2"}, resp.FailedEmployeeIDs)

	list, err := f.svc.ListPeriods(ctx, payroll.PeriodFilter{})
	require.NoError(t, err)
	assert.Zero(t, list.TotalCount)
}

func TestPayrollService_AggregateAndSnapshot(t *testing.T) {
	ctx := context.Background()
	sales := fullMonth("emp-3", "3000")
	sales.DepartmentID, sales.Department = "dept-sales", "Sales"
	f := defaultFixture(t, fullMonth("emp-1", "5000"), fullMonth("emp-2", "4000"), sales)
	p := f.createPeriod(t)
	_, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)

	agg, err := f.svc.GetAggregate(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, agg.Departments, 2)
	assert.Equal(t, "Engineering", agg.Departments[0].Department)
	assert.Equal(t, 2, agg.Departments[0].EmployeeCount)
	assert.Equal(t, "8100.00", agg.Departments[0].NetPay.StringFixed(2))
	assert.Equal(t, "10800.00", agg.Totals.NetPay.StringFixed(2))

	sum := decimal.Zero
	for _, d := range agg.Departments {
		sum = sum.Add(d.NetPay)
	}
	assert.True(t, sum.Equal(agg.Totals.NetPay))

	snap, err := f.svc.GetSnapshot(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, payroll.SnapshotSchemaVersion, snap.SchemaVersion)
	assert.Equal(t, agg.Revision, snap.Revision)
	assert.Len(t, snap.Lines, 3)
	assert.Equal(t, agg.Totals, snap.Totals)

	lineSnap, err := f.svc.GetLineSnapshot(ctx, payroll.LineID(p.ID, "emp-3"))
	require.NoError(t, err)
	assert.Equal(t, snap.Period.ID, lineSnap.Period.ID)

	_, err = f.svc.GetLineSnapshot(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, payroll.ErrLineNotFound)
}

func TestPayrollService_History(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t)
	p := f.createPeriod(t)
	_, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	_, err = f.svc.Approve(ctx, owner, p.ID)
	require.NoError(t, err)

	events, err := f.svc.GetHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, payroll.TransitionCreate, events[0].Transition)
	assert.Equal(t, payroll.TransitionCalculate, events[1].Transition)
	assert.Equal(t, payroll.PeriodStateDraft, events[1].FromState)
	assert.Equal(t, payroll.PeriodStateApproved, events[2].ToState)
	assert.Equal(t, owner.UserID, events[2].Actor)
	assert.Equal(t, 3, events[2].Revision)

	_, err = f.svc.GetHistory(ctx, "missing")
	assert.ErrorIs(t, err, payroll.ErrPeriodNotFound)
}

func TestPayrollService_ConcurrentOperationsSerialize(t *testing.T) {
	ctx := context.Background()
	f := defaultFixture(t, fullMonth("emp-1", "5000"), fullMonth("emp-2", "4000"))
	p := f.createPeriod(t)
	calc, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	lineID := calc.Lines[0].ID

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := f.svc.Calculate(ctx, manager, p.ID)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := f.svc.AddAdjustment(ctx, manager, payroll.AddAdjustmentRequest{
				LineID: lineID, ConceptID: "other_earning", Kind: "earning", Amount: decimal.NewFromInt(10), Reason: "tip",
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	final, err := f.svc.Calculate(ctx, manager, p.ID)
	require.NoError(t, err)
	var line payroll.LineResponse
	for _, l := range final.Lines {
		if l.ID == lineID {
			line = l
		}
	}
	assert.Equal(t, "5100.00", line.GrossPay.StringFixed(2))

	events, err := f.svc.GetHistory(ctx, p.ID)
	require.NoError(t, err)
	// create + first calculation + 20 concurrent operations + final calculation
	assert.Len(t, events, 23)
	assert.Equal(t, len(events), final.Period.Revision)
}
