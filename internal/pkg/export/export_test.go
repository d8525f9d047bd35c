package export

import (
	"bytes"
	"testing"
	"time"

	"github.com/cmlabs-hris/payroll-engine/internal/domain/payroll"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testSnapshot() payroll.RunSnapshot {
	adjID := "adj-1"
	return payroll.RunSnapshot{
		SchemaVersion: payroll.SnapshotSchemaVersion,
		Revision:      4,
		GeneratedAt:   time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC),
		Period: payroll.PeriodResponse{
			ID: "period-1", Label: "2025-01", Kind: payroll.PeriodKindOrdinary, State: payroll.PeriodStateApproved, Revision: 4,
		},
		Lines: []payroll.LineResponse{
			{
				ID: "line-1", EmployeeID: "emp-1", EmployeeName: "Ada", DepartmentID: "dept-eng", Department: "Engineering",
				DaysWorked: dec("22"),
				Concepts: []payroll.ConceptAmount{
					{ConceptID: "base_salary", Name: "Base Salary", Kind: payroll.ConceptKindEarning, Amount: dec("5000")},
					{ConceptID: "income_tax", Name: "Income Tax", Kind: payroll.ConceptKindDeduction, Amount: dec("500")},
					{ConceptID: "other_earning", Name: "Other Earning", Kind: payroll.ConceptKindEarning, Amount: dec("100"), AdjustmentID: &adjID},
				},
				GrossPay: dec("5100"), TotalDeductions: dec("500"), NetPay: dec("4600"),
			},
			{
				ID: "line-2", EmployeeID: "emp-2", EmployeeName: "Grace", DepartmentID: "dept-ops", Department: "Operations",
				DaysWorked: dec("22"),
				Concepts: []payroll.ConceptAmount{
					{ConceptID: "base_salary", Name: "Base Salary", Kind: payroll.ConceptKindEarning, Amount: dec("3000")},
					{ConceptID: "income_tax", Name: "Income Tax", Kind: payroll.ConceptKindDeduction, Amount: dec("300")},
				},
				GrossPay: dec("3000"), TotalDeductions: dec("300"), NetPay: dec("2700"),
			},
		},
		Departments: []payroll.DepartmentAggregateResponse{
			{DepartmentID: "dept-eng", Department: "Engineering", EmployeeCount: 1, GrossPay: dec("5100"), TotalDeductions: dec("500"), NetPay: dec("4600")},
			{DepartmentID: "dept-ops", Department: "Operations", EmployeeCount: 1, GrossPay: dec("3000"), TotalDeductions: dec("300"), NetPay: dec("2700")},
		},
		Totals: payroll.TotalsResponse{EmployeeCount: 2, GrossPay: dec("8100"), TotalDeductions: dec("800"), NetPay: dec("7300")},
	}
}

func TestWriteRegister(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteRegister(&buf, testSnapshot()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{registerSheet, departmentsSheet}, f.GetSheetList())

	rows, err := f.GetRows(registerSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, rows, 9)

	// header: 8 fixed columns, 2 earnings, gross, 1 deduction, total deductions, net
	header := rows[5]
	assert.Equal(t, "Employee ID", header[0])
	assert.Equal(t, []string{"Base Salary", "Other Earning", "Gross Pay", "Income Tax", "Total Deductions", "Net Pay"}, header[8:])

	ada := rows[6]
	assert.Equal(t, "emp-1", ada[0])
	assert.Equal(t, "100", ada[9])
	assert.Equal(t, "4600", ada[13])

	grace := rows[7]
	assert.Equal(t, "0", grace[9])

	total := rows[8]
	assert.Equal(t, "Total", total[0])
	assert.Equal(t, "8100", total[10])
	assert.Equal(t, "7300", total[13])

	deps, err := f.GetRows(departmentsSheet, excelize.Options{RawCellValue: true})
	require.NoError(t, err)
	require.Len(t, deps, 4)
	assert.Equal(t, "Engineering", deps[1][1])
	assert.Equal(t, "7300", deps[3][5])
}

func TestRegisterFilename(t *testing.T) {
	assert.Equal(t, "payroll-register-2025-01-ordinary-r4.xlsx", RegisterFilename(testSnapshot()))
}

func TestWritePayslip(t *testing.T) {
	var buf bytes.Buffer

	require.NoError(t, WritePayslip(&buf, testSnapshot(), "line-1"))

	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF-")))
}

func TestWritePayslip_UnknownLine(t *testing.T) {
	var buf bytes.Buffer

	err := WritePayslip(&buf, testSnapshot(), "line-9")

	assert.ErrorIs(t, err, payroll.ErrLineNotFound)
	assert.Zero(t, buf.Len())
}
