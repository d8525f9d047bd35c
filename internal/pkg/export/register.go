// Package export renders run snapshots as documents. It never recomputes amounts.
package export

import (
	"fmt"
	"io"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const (
	RegisterContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	registerSheet    = "Register"
	departmentsSheet = "Departments"
)

type conceptColumn struct {
	id   string
	name string
}

// RegisterFilename names the register of a snapshot; the revision keeps exports of different revisions apart.
func RegisterFilename(snap payroll.RunSnapshot) string {
	return fmt.Sprintf("payroll-register-%s-%s-r%d.xlsx", snap.Period.Label, snap.Period.Kind, snap.Revision)
}

// WriteRegister writes an XLSX workbook with one row per line and a department subtotal sheet.
func WriteRegister(w io.Writer, snap payroll.RunSnapshot) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(departmentsSheet); err != nil {
		return err
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := writeLines(f, snap, money, bold); err != nil {
		return err
	}
	if err := writeDepartments(f, snap, money, bold); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	return f.Write(w)
}

func writeLines(f *excelize.File, snap payroll.RunSnapshot, money, bold int) error {
	sheet := registerSheet
	earnings, deductions := conceptColumns(snap.Lines)

	meta := [][]any{
		{"Period", snap.Period.Label},
		{"Kind", string(snap.Period.Kind)},
		{"State", string(snap.Period.State)},
		{"Revision", snap.Revision},
	}
	for i, row := range meta {
		if err := setRow(f, sheet, i+1, row); err != nil {
			return err
		}
	}

	headerRow := len(meta) + 2
	header := []any{"Employee ID", "Code", "Name", "Department", "Position", "Days Worked", "Overtime 50% (h)", "Overtime 100% (h)"}
	for _, c := range earnings {
		header = append(header, c.name)
	}
	header = append(header, "Gross Pay")
	for _, c := range deductions {
		header = append(header, c.name)
	}
	header = append(header, "Total Deductions", "Net Pay")
	if err := setRow(f, sheet, headerRow, header); err != nil {
		return err
	}
	if err := styleRow(f, sheet, headerRow, len(header), bold); err != nil {
		return err
	}

	for i, l := range snap.Lines {
		sums := conceptSums(l)
		row := []any{l.EmployeeID, l.EmployeeCode, l.EmployeeName, l.Department, l.Position,
			number(l.DaysWorked), number(l.OvertimeHours50), number(l.OvertimeHours100)}
		for _, c := range earnings {
			row = append(row, number(sums[c.id]))
		}
		row = append(row, number(l.GrossPay))
		for _, c := range deductions {
			row = append(row, number(sums[c.id]))
		}
		row = append(row, number(l.TotalDeductions), number(l.NetPay))

		r := headerRow + 1 + i
		if err := setRow(f, sheet, r, row); err != nil {
			return err
		}
		if err := styleRange(f, sheet, 9, r, len(row), r, money); err != nil {
			return err
		}
	}

	totalRow := headerRow + len(snap.Lines) + 1
	total := make([]any, len(header))
	total[0] = "Total"
	total[len(header)-3-len(deductions)] = number(snap.Totals.GrossPay)
	total[len(header)-2] = number(snap.Totals.TotalDeductions)
	total[len(header)-1] = number(snap.Totals.NetPay)
	if err := setRow(f, sheet, totalRow, total); err != nil {
		return err
	}
	if err := styleRow(f, sheet, totalRow, len(header), bold); err != nil {
		return err
	}

	return f.SetColWidth(sheet, "A", "E", 18)
}

func writeDepartments(f *excelize.File, snap payroll.RunSnapshot, money, bold int) error {
	sheet := departmentsSheet
	header := []any{"Department ID", "Department", "Employees", "Gross Pay", "Total Deductions", "Net Pay"}
	if err := setRow(f, sheet, 1, header); err != nil {
		return err
	}
	if err := styleRow(f, sheet, 1, len(header), bold); err != nil {
		return err
	}

	for i, d := range snap.Departments {
		row := []any{d.DepartmentID, d.Department, d.EmployeeCount, number(d.GrossPay), number(d.TotalDeductions), number(d.NetPay)}
		if err := setRow(f, sheet, i+2, row); err != nil {
			return err
		}
	}

	totalRow := len(snap.Departments) + 2
	t := snap.Totals
	if err := setRow(f, sheet, totalRow, []any{"Total", "", t.EmployeeCount, number(t.GrossPay), number(t.TotalDeductions), number(t.NetPay)}); err != nil {
		return err
	}
	if err := styleRow(f, sheet, totalRow, len(header), bold); err != nil {
		return err
	}
	if err := styleRange(f, sheet, 4, 2, 6, totalRow, money); err != nil {
		return err
	}
	return f.SetColWidth(sheet, "A", "F", 18)
}

// conceptColumns lists the concepts present on any line, earnings and deductions apart, in first-seen order.
func conceptColumns(lines []payroll.LineResponse) (earnings, deductions []conceptColumn) {
	seen := make(map[string]bool)
	for _, l := range lines {
		for _, c := range l.Concepts {
			if seen[c.ConceptID] {
				continue
			}
			seen[c.ConceptID] = true
			col := conceptColumn{id: c.ConceptID, name: c.Name}
			if col.name == "" {
				col.name = c.ConceptID
			}
			if c.Kind == payroll.ConceptKindDeduction {
				deductions = append(deductions, col)
			} else {
				earnings = append(earnings, col)
			}
		}
	}
	return earnings, deductions
}

func conceptSums(l payroll.LineResponse) map[string]decimal.Decimal {
	sums := make(map[string]decimal.Decimal, len(l.Concepts))
	for _, c := range l.Concepts {
		sums[c.ConceptID] = sums[c.ConceptID].Add(c.Amount)
	}
	return sums
}

func number(d decimal.Decimal) float64 {
	return d.InexactFloat64()
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

func styleRow(f *excelize.File, sheet string, row, cols, style int) error {
	return styleRange(f, sheet, 1, row, cols, row, style)
}

func styleRange(f *excelize.File, sheet string, fromCol, fromRow, toCol, toRow, style int) error {
	from, err := excelize.CoordinatesToCellName(fromCol, fromRow)
	if err != nil {
		return err
	}
	to, err := excelize.CoordinatesToCellName(toCol, toRow)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, from, to, style)
}
