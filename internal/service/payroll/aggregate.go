package payroll

import (
	"sort"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
)

// Summarize groups lines by department. Department order is by name, then id, so repeated
// reads of the same lines produce the same breakdown.
func Summarize(lines []payroll.Line) payroll.Aggregate {
	index := make(map[string]int)
	departments := []payroll.DepartmentAggregate{}
	for _, l := range lines {
		key := l.DepartmentID
		if key == "" {
			key = l.Department
		}
		i, ok := index[key]
		if !ok {
			i = len(departments)
			index[key] = i
			departments = append(departments, payroll.DepartmentAggregate{
				DepartmentID:    l.DepartmentID,
				Department:      l.Department,
				GrossPay:        decimal.Zero,
				TotalDeductions: decimal.Zero,
				NetPay:          decimal.Zero,
			})
		}
		d := &departments[i]
		d.EmployeeCount++
		d.GrossPay = d.GrossPay.Add(l.GrossPay)
		d.TotalDeductions = d.TotalDeductions.Add(l.TotalDeductions)
		d.NetPay = d.NetPay.Add(l.NetPay)
	}

	sort.SliceStable(departments, func(i, j int) bool {
		if departments[i].Department != departments[j].Department {
			return departments[i].Department < departments[j].Department
		}
		return departments[i].DepartmentID < departments[j].DepartmentID
	})

	return payroll.Aggregate{Departments: departments, Totals: totalsOf(lines)}
}

func totalsOf(lines []payroll.Line) payroll.PeriodTotals {
	t := payroll.PeriodTotals{GrossPay: decimal.Zero, TotalDeductions: decimal.Zero, NetPay: decimal.Zero}
	for _, l := range lines {
		t.EmployeeCount++
		t.GrossPay = t.GrossPay.Add(l.GrossPay)
		t.TotalDeductions = t.TotalDeductions.Add(l.TotalDeductions)
		t.NetPay = t.NetPay.Add(l.NetPay)
	}
	return t
}
