package payroll

import (
	"fmt"
	"sort"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

var (
	overtime50Multiplier  = decimal.RequireFromString("1.5")
	overtime100Multiplier = decimal.NewFromInt(2)
)

// EngineConfig holds the constants the engine prorates and rates with.
type EngineConfig struct {
	StandardDaysInPeriod  decimal.Decimal
	StandardHoursPerMonth decimal.Decimal
	AmountScale           int32
}

// Engine computes payroll lines. It performs no I/O and keeps no state between calls,
// so identical inputs always produce identical output.
type Engine struct {
	cfg EngineConfig
}

func NewEngine(cfg EngineConfig) *Engine {
	return &Engine{cfg: cfg}
}

// Scale is the number of decimal places every amount is rounded to.
func (e *Engine) Scale() int32 {
	return e.cfg.AmountScale
}

// CalculationInput is everything one calculation reads.
type CalculationInput struct {
	PeriodID    string
	Kind        payroll.PeriodKind
	Roster      []payroll.RosterEntry
	Catalog     payroll.Catalog
	Adjustments []payroll.Adjustment
}

// Calculate computes one line per eligible roster entry. Entries with unusable data are reported in
// the result errors and produce no line. A returned error aborts the whole calculation.
func (e *Engine) Calculate(in CalculationInput) (payroll.CalculationResult, error) {
	roster := make([]payroll.RosterEntry, len(in.Roster))
	copy(roster, in.Roster)
	sort.SliceStable(roster, func(i, j int) bool { return roster[i].EmployeeID < roster[j].EmployeeID })

	byLine := make(map[string][]payroll.Adjustment)
	for _, adj := range in.Adjustments {
		if adj.IsActive() {
			byLine[adj.LineID] = append(byLine[adj.LineID], adj)
		}
	}

	result := payroll.CalculationResult{Lines: []payroll.Line{}, Errors: []payroll.LineError{}}
	for i, entry := range roster {
		if i > 0 && roster[i-1].EmployeeID == entry.EmployeeID {
			return payroll.CalculationResult{}, &payroll.InvariantError{EmployeeID: entry.EmployeeID, Reason: "employee appears twice in the roster"}
		}

		lineID := payroll.LineID(in.PeriodID, entry.EmployeeID)
		line, lineErr, err := e.calculateLine(in, lineID, entry, byLine[lineID])
		if err != nil {
			return payroll.CalculationResult{}, err
		}
		if lineErr != nil {
			result.Errors = append(result.Errors, *lineErr)
			continue
		}
		result.Lines = append(result.Lines, line)
	}

	result.Totals = totalsOf(result.Lines)
	if err := reconcile(result.Lines, result.Totals); err != nil {
		return payroll.CalculationResult{}, err
	}
	return result, nil
}

func (e *Engine) calculateLine(in CalculationInput, lineID string, entry payroll.RosterEntry, adjustments []payroll.Adjustment) (payroll.Line, *payroll.LineError, error) {
	if entry.BaseSalary == nil {
		return payroll.Line{}, lineError(entry, payroll.LineErrorMissingBaseSalary, "employee has no base salary configured"), nil
	}
	baseSalary := *entry.BaseSalary
	if baseSalary.IsNegative() {
		return payroll.Line{}, lineError(entry, payroll.LineErrorMissingBaseSalary, "base salary must be non-negative"), nil
	}
	if entry.DaysWorked.IsNegative() || entry.RegularHours.IsNegative() || entry.OvertimeHours50.IsNegative() || entry.OvertimeHours100.IsNegative() {
		return payroll.Line{}, lineError(entry, payroll.LineErrorInvalidAttendance, "days and hours must be non-negative"), nil
	}

	var concepts []payroll.ConceptAmount
	add := func(concept payroll.Concept, amount decimal.Decimal) {
		amount = amount.Round(e.cfg.AmountScale)
		if amount.IsZero() {
			return
		}
		concepts = append(concepts, payroll.ConceptAmount{ConceptID: concept.ID, Name: concept.Name, Kind: concept.Kind, Amount: amount})
	}

	// 1. computed earnings
	switch in.Kind {
	case payroll.PeriodKindOrdinary:
		hourlyRate := baseSalary.Div(e.cfg.StandardHoursPerMonth)
		base := baseSalary.Mul(entry.DaysWorked).Div(e.cfg.StandardDaysInPeriod)
		items := []struct {
			conceptID string
			amount    decimal.Decimal
		}{
			{payroll.ConceptBaseSalary, base},
			{payroll.ConceptOvertime50, hourlyRate.Mul(overtime50Multiplier).Mul(entry.OvertimeHours50)},
			{payroll.ConceptOvertime100, hourlyRate.Mul(overtime100Multiplier).Mul(entry.OvertimeHours100)},
		}
		for _, item := range items {
			if item.amount.IsZero() {
				continue
			}
			concept, err := e.requireConcept(in, item.conceptID)
			if err != nil {
				return payroll.Line{}, nil, err
			}
			add(concept, item.amount)
		}
	case payroll.PeriodKindBonus13, payroll.PeriodKindBonus14:
		conceptID := payroll.ConceptBonus13
		if in.Kind == payroll.PeriodKindBonus14 {
			conceptID = payroll.ConceptBonus14
		}
		concept, err := e.requireConcept(in, conceptID)
		if err != nil {
			return payroll.Line{}, nil, err
		}
		add(concept, baseSalary)
	}

	// 2. fixed roster items
	fixed := make([]payroll.FixedItem, len(entry.FixedItems))
	copy(fixed, entry.FixedItems)
	sort.SliceStable(fixed, func(i, j int) bool { return fixed[i].ConceptID < fixed[j].ConceptID })
	for _, item := range fixed {
		if item.Amount.IsNegative() {
			return payroll.Line{}, lineError(entry, payroll.LineErrorInvalidFixedItem, fmt.Sprintf("amount of %s must be non-negative", item.ConceptID)), nil
		}
		concept, err := e.requireConcept(in, item.ConceptID)
		if err != nil {
			return payroll.Line{}, nil, err
		}
		if !concept.Applies(in.Kind) {
			continue
		}
		add(concept, item.Amount)
	}

	// 3. formula deductions on the gross of everything earned so far
	gross := sumKind(concepts, payroll.ConceptKindEarning)
	for _, concept := range in.Catalog.Formulas(in.Kind) {
		amount, err := concept.Formula.Compute(payroll.FormulaInput{GrossPay: gross, BaseSalary: baseSalary, Kind: in.Kind})
		if err != nil {
			return payroll.Line{}, nil, &payroll.DependencyError{Dependency: "concept catalog", PeriodID: in.PeriodID, Err: fmt.Errorf("formula %s: %w", concept.ID, err)}
		}
		if amount.IsNegative() {
			return payroll.Line{}, nil, &payroll.InvariantError{EmployeeID: entry.EmployeeID, Reason: fmt.Sprintf("formula %s produced a negative amount", concept.ID)}
		}
		add(concept, amount)
	}

	// 4. ledger adjustments
	sorted := make([]payroll.Adjustment, len(adjustments))
	copy(sorted, adjustments)
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})
	for _, adj := range sorted {
		name := adj.ConceptID
		if concept, ok := in.Catalog.Lookup(adj.ConceptID); ok {
			name = concept.Name
		}
		amount := adj.Amount.Round(e.cfg.AmountScale)
		if amount.IsZero() {
			continue
		}
		adjID := adj.ID
		concepts = append(concepts, payroll.ConceptAmount{
			ConceptID:    adj.ConceptID,
			Name:         name,
			Kind:         adj.Kind,
			Amount:       amount,
			AdjustmentID: &adjID,
		})
	}

	// 5. totals
	grossPay := sumKind(concepts, payroll.ConceptKindEarning)
	totalDeductions := sumKind(concepts, payroll.ConceptKindDeduction)
	netPay := grossPay.Sub(totalDeductions)
	if netPay.IsNegative() {
		return payroll.Line{}, nil, &payroll.InvariantError{EmployeeID: entry.EmployeeID, Reason: fmt.Sprintf("net pay is negative (%s)", netPay.StringFixed(e.cfg.AmountScale))}
	}

	if concepts == nil {
		concepts = []payroll.ConceptAmount{}
	}
	return payroll.Line{
		ID:               lineID,
		PeriodID:         in.PeriodID,
		EmployeeID:       entry.EmployeeID,
		EmployeeCode:     entry.EmployeeCode,
		EmployeeName:     entry.Name,
		DepartmentID:     entry.DepartmentID,
		Department:       entry.Department,
		Position:         entry.Position,
		DaysWorked:       entry.DaysWorked,
		RegularHours:     entry.RegularHours,
		OvertimeHours50:  entry.OvertimeHours50,
		OvertimeHours100: entry.OvertimeHours100,
		Concepts:         concepts,
		GrossPay:         grossPay,
		TotalDeductions:  totalDeductions,
		NetPay:           netPay,
	}, nil, nil
}

func (e *Engine) requireConcept(in CalculationInput, id string) (payroll.Concept, error) {
	concept, ok := in.Catalog.Lookup(id)
	if !ok {
		return payroll.Concept{}, &payroll.DependencyError{
			Dependency: "concept catalog",
			PeriodID:   in.PeriodID,
			Err:        fmt.Errorf("%w: %s", payroll.ErrUnknownConcept, id),
		}
	}
	return concept, nil
}

func lineError(entry payroll.RosterEntry, code, message string) *payroll.LineError {
	return &payroll.LineError{EmployeeID: entry.EmployeeID, Code: code, Message: message}
}

func sumKind(concepts []payroll.ConceptAmount, kind payroll.ConceptKind) decimal.Decimal {
	total := decimal.Zero
	for _, c := range concepts {
		if c.Kind == kind {
			total = total.Add(c.Amount)
		}
	}
	return total
}

// reconcile re-derives every line and the period totals from the concept amounts.
func reconcile(lines []payroll.Line, totals payroll.PeriodTotals) error {
	gross, deductions, net := decimal.Zero, decimal.Zero, decimal.Zero
	for _, l := range lines {
		for _, c := range l.Concepts {
			if c.Amount.IsNegative() {
				return &payroll.InvariantError{EmployeeID: l.EmployeeID, Reason: fmt.Sprintf("concept %s has a negative amount", c.ConceptID)}
			}
		}
		if !l.GrossPay.Equal(sumKind(l.Concepts, payroll.ConceptKindEarning)) ||
			!l.TotalDeductions.Equal(sumKind(l.Concepts, payroll.ConceptKindDeduction)) ||
			!l.NetPay.Equal(l.GrossPay.Sub(l.TotalDeductions)) {
			return &payroll.InvariantError{EmployeeID: l.EmployeeID, Reason: "line totals do not match its concepts"}
		}
		gross = gross.Add(l.GrossPay)
		deductions = deductions.Add(l.TotalDeductions)
		net = net.Add(l.NetPay)
	}
	if !gross.Equal(totals.GrossPay) || !deductions.Equal(totals.TotalDeductions) || !net.Equal(totals.NetPay) {
		return &payroll.InvariantError{Reason: "period totals do not reconcile with lines"}
	}
	return nil
}
