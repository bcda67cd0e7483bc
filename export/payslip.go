package export

import (
	"fmt"
	"io"

	"github.com/jung-kurt/gofpdf"

	"github.com/warp/payroll-engine/payroll"
)

// PayslipFilename is the attachment name for one employee's payslip.
func PayslipFilename(p *payroll.Payslip) string {
	return fmt.Sprintf("payslip-%s-%s.pdf", p.Employee.ID, p.Month)
}

// PayslipPDF renders a one-page A4 payslip: employee header, salary summary
// and the month's leave records with their status.
func PayslipPDF(w io.Writer, p *payroll.Payslip) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetTitle(tr("Payslip "+p.Month.String()), false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 16)
	pdf.Cell(40, 10, "Payslip")
	pdf.Ln(12)

	pdf.SetFont("Helvetica", "", 12)
	pdf.Cell(0, 8, tr(fmt.Sprintf("Employee: %s", p.Employee.Name)))
	pdf.Ln(7)
	if p.Employee.Email != "" {
		pdf.Cell(0, 8, tr(fmt.Sprintf("Email: %s", p.Employee.Email)))
		pdf.Ln(7)
	}
	pdf.Cell(0, 8, fmt.Sprintf("Period: %s to %s",
		p.Month.Start().Format("2006-01-02"), p.Month.End().Format("2006-01-02")))
	pdf.Ln(10)

	pdf.Cell(0, 8, fmt.Sprintf("Base salary: %s", p.Summary.BaseSalary.StringFixed(2)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Daily rate (1/%d): %s", payroll.WorkingDaysPerMonth, p.DailyRate.StringFixed(2)))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Approved leaves: %d", p.Summary.Leaves))
	pdf.Ln(7)
	pdf.Cell(0, 8, fmt.Sprintf("Deductions: %s", p.Summary.TotalDeduction.StringFixed(2)))
	pdf.Ln(7)
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, fmt.Sprintf("Net: %s", p.Summary.FinalSalary.StringFixed(2)))
	pdf.Ln(12)

	if len(p.Leaves) > 0 {
		pdf.SetFont("Helvetica", "B", 11)
		pdf.CellFormat(35, 7, "Date", "1", 0, "", false, 0, "")
		pdf.CellFormat(25, 7, "Type", "1", 0, "", false, 0, "")
		pdf.CellFormat(30, 7, "Status", "1", 0, "", false, 0, "")
		pdf.CellFormat(0, 7, "Reason", "1", 1, "", false, 0, "")

		pdf.SetFont("Helvetica", "", 11)
		for _, l := range p.Leaves {
			pdf.CellFormat(35, 7, l.Date.Format("2006-01-02"), "1", 0, "", false, 0, "")
			pdf.CellFormat(25, 7, string(l.Type), "1", 0, "", false, 0, "")
			pdf.CellFormat(30, 7, string(l.Status), "1", 0, "", false, 0, "")
			pdf.CellFormat(0, 7, tr(l.Reason), "1", 1, "", false, 0, "")
		}
	}

	return pdf.Output(w)
}
