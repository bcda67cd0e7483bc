// Package export renders payroll projections as downloadable documents:
// the monthly salary report as XLSX and a single employee's payslip as PDF.
// Amounts are rounded to two decimals here and nowhere else.
package export

import (
	"fmt"
	"io"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/warp/payroll-engine/payroll"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	PDFContentType  = "application/pdf"
)

var reportHeadings = []string{"Employee ID", "Name", "Base Salary", "Approved Leaves", "Total Deduction", "Final Salary"}

// ReportFilename is the attachment name for the monthly report of key.
func ReportFilename(key payroll.MonthKey) string {
	return fmt.Sprintf("salary-report-%s.xlsx", key)
}

// MonthlyReportXLSX writes one sheet named after the month, a header row and
// one row per report line.
func MonthlyReportXLSX(w io.Writer, key payroll.MonthKey, lines []payroll.ReportLine) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := key.String()
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return err
	}

	for i, h := range reportHeadings {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	last, _ := excelize.CoordinatesToCellName(len(reportHeadings), 1)
	if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
		return err
	}

	for i, l := range lines {
		row := i + 2
		values := []interface{}{
			l.EmployeeID,
			l.Name,
			money(l.BaseSalary),
			l.Leaves,
			money(l.TotalDeduction),
			money(l.FinalSalary),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}
	if len(lines) > 0 {
		from, _ := excelize.CoordinatesToCellName(3, 2)
		to, _ := excelize.CoordinatesToCellName(len(reportHeadings), len(lines)+1)
		if err := f.SetCellStyle(sheet, from, to, amount); err != nil {
			return err
		}
	}
	if err := f.SetColWidth(sheet, "A", "B", 38); err != nil {
		return err
	}
	if err := f.SetColWidth(sheet, "C", "F", 16); err != nil {
		return err
	}

	return f.Write(w)
}

func money(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
