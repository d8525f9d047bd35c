package export

import (
	"fmt"
	"io"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/jung-kurt/gofpdf"
	"github.com/shopspring/decimal"
)

const PayslipContentType = "application/pdf"

func PayslipFilename(snap payroll.RunSnapshot, line payroll.LineResponse) string {
	return fmt.Sprintf("payslip-%s-%s-%s.pdf", snap.Period.Label, snap.Period.Kind, line.EmployeeID)
}

// WritePayslip renders the payslip of one line of the snapshot as PDF.
func WritePayslip(w io.Writer, snap payroll.RunSnapshot, lineID string) error {
	line, ok := snap.FindLine(lineID)
	if !ok {
		return payroll.ErrLineNotFound
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr(PayslipFilename(snap, line)), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 11)
	details := [][2]string{
		{"Employee", fmt.Sprintf("%s (%s)", line.EmployeeName, firstSet(line.EmployeeCode, line.EmployeeID))},
		{"Department", line.Department},
		{"Position", line.Position},
		{"Period", fmt.Sprintf("%s, %s", snap.Period.Label, snap.Period.Kind)},
		{"Status", string(snap.Period.State)},
		{"Days worked", line.DaysWorked.String()},
	}
	for _, d := range details {
		pdf.CellFormat(40, 7, tr(d[0]), "", 0, "L", false, 0, "")
		pdf.CellFormat(0, 7, tr(d[1]), "", 1, "L", false, 0, "")
	}
	pdf.Ln(5)

	conceptTable(pdf, tr, "Earnings", line.Concepts, payroll.ConceptKindEarning, "Gross pay", line.GrossPay)
	pdf.Ln(4)
	conceptTable(pdf, tr, "Deductions", line.Concepts, payroll.ConceptKindDeduction, "Total deductions", line.TotalDeductions)
	pdf.Ln(6)

	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(130, 9, "Net pay", "T", 0, "L", false, 0, "")
	pdf.CellFormat(50, 9, amountText(line.NetPay), "T", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "I", 8)
	pdf.Ln(8)
	pdf.CellFormat(0, 5, fmt.Sprintf("Revision %d, generated %s", snap.Revision, snap.GeneratedAt.Format("2006-01-02 15:04 MST")), "", 1, "L", false, 0, "")

	return pdf.Output(w)
}

func conceptTable(pdf *gofpdf.Fpdf, tr func(string) string, title string, concepts []payroll.ConceptAmount, kind payroll.ConceptKind, totalLabel string, total decimal.Decimal) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.SetFont("Helvetica", "", 11)

	for _, c := range concepts {
		if c.Kind != kind {
			continue
		}
		name := firstSet(c.Name, c.ConceptID)
		if c.AdjustmentID != nil {
			name += " (adjustment)"
		}
		pdf.CellFormat(130, 7, tr(name), "", 0, "L", false, 0, "")
		pdf.CellFormat(50, 7, amountText(c.Amount), "", 1, "R", false, 0, "")
	}

	pdf.SetFont("Helvetica", "B", 11)
	pdf.CellFormat(130, 7, totalLabel, "T", 0, "L", false, 0, "")
	pdf.CellFormat(50, 7, amountText(total), "T", 1, "R", false, 0, "")
}

func amountText(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func firstSet(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
