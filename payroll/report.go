package payroll

import (
	"context"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ReportLine is one employee's salary summary for a month. Values come from
// the stored aggregate only; nothing is recomputed on read.
type ReportLine struct {
	EmployeeID     string
	Name           string
	BaseSalary     decimal.Decimal
	FinalSalary    decimal.Decimal
	TotalDeduction decimal.Decimal
	Leaves         int
	Month          MonthKey
}

func reportLine(emp *Employee, key MonthKey) ReportLine {
	agg := ReportFor(emp, key)
	return ReportLine{
		EmployeeID:     emp.ID,
		Name:           emp.Name,
		BaseSalary:     emp.BaseSalary,
		FinalSalary:    agg.FinalMonthlySalary,
		TotalDeduction: agg.CalculatedDeduction,
		Leaves:         agg.TotalApprovedLeaves,
		Month:          key,
	}
}

// MonthlyReport summarizes every employee for key, or just employeeID when it
// is non-empty. An unknown employeeID yields an empty report.
func (s *Service) MonthlyReport(ctx context.Context, key MonthKey, employeeID string) ([]ReportLine, error) {
	ctx, span := tracer.Start(ctx, "payroll.MonthlyReport", trace.WithAttributes(
		attribute.String("month", key.String()),
		attribute.String("employee.id", employeeID),
	))
	defer span.End()

	if employeeID != "" {
		emp, err := s.Store.Get(ctx, employeeID)
		if err != nil {
			return nil, fail(span, internal("load employee", err))
		}
		if emp == nil {
			return []ReportLine{}, nil
		}
		return []ReportLine{reportLine(emp, key)}, nil
	}

	emps, err := s.ListEmployees(ctx)
	if err != nil {
		return nil, fail(span, err)
	}
	lines := make([]ReportLine, 0, len(emps))
	for i := range emps {
		lines = append(lines, reportLine(&emps[i], key))
	}
	return lines, nil
}

// Payslip is the per-employee monthly statement rendered by export.PayslipPDF.
type Payslip struct {
	Employee  Employee
	Month     MonthKey
	Summary   ReportLine
	DailyRate decimal.Decimal
	Leaves    []LeaveRecord // all leaves dated in the month, any status
}

func (s *Service) Payslip(ctx context.Context, employeeID string, key MonthKey) (*Payslip, error) {
	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	return &Payslip{
		Employee:  *emp,
		Month:     key,
		Summary:   reportLine(emp, key),
		DailyRate: DailyRate(emp.BaseSalary),
		Leaves:    emp.LeavesIn(key),
	}, nil
}
