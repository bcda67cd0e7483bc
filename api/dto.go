/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the payroll domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TYPES:
  Employee:
    EmployeeDTO, CreateEmployeeRequest

  Leave:
    LeaveDTO, ApplyLeaveRequest, ChangeLeaveStatusRequest, StatusChangeResponse

  Salary:
    MonthlyAggregateDTO, ReportLineDTO

  Scenarios:
    ScenarioDTO, LoadScenarioRequest

MONEY:
  Amounts are decimal.Decimal and serialize as JSON strings ("1153.8461538"),
  unrounded. Clients round for display.

VALIDATION:
  Request types carry `validate` tags checked by validation.go before any
  service call. Domain rules (positive salary, leave exists) stay in payroll.

SEE ALSO:
  - handlers.go: Uses these types
  - validation.go: Tag validation
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateEmployeeRequest is the request to create an employee.
type CreateEmployeeRequest struct {
	Name       string          `json:"name" validate:"required,max=200"`
	Email      string          `json:"email" validate:"omitempty,email"`
	BaseSalary decimal.Decimal `json:"base_salary"`
}

// ApplyLeaveRequest is an employee's leave application.
type ApplyLeaveRequest struct {
	Date   string `json:"date" validate:"required,datetime=2006-01-02"`
	Type   string `json:"type" validate:"required,leavetype"`
	Reason string `json:"reason" validate:"max=500"`
}

// ChangeLeaveStatusRequest is an admin approval or rejection.
type ChangeLeaveStatusRequest struct {
	EmployeeID string `json:"employee_id" validate:"required"`
	LeaveID    string `json:"leave_id" validate:"required"`
	Status     string `json:"status" validate:"required,targetstatus"`
}

// LoadScenarioRequest selects a demo scenario.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID                   string                `json:"id"`
	Name                 string                `json:"name"`
	Email                string                `json:"email,omitempty"`
	BaseSalary           decimal.Decimal       `json:"base_salary"`
	Revision             int64                 `json:"revision"`
	Leaves               []LeaveDTO            `json:"leaves,omitempty"`
	MonthlySalaryDetails []MonthlyAggregateDTO `json:"monthly_salary_details,omitempty"`
	CreatedAt            string                `json:"created_at,omitempty"`
	UpdatedAt            string                `json:"updated_at,omitempty"`
}

// LeaveDTO represents one leave record.
type LeaveDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"` // YYYY-MM-DD
	Type      string `json:"type"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	UpdatedAt string `json:"updated_at,omitempty"`
}

// MonthlyAggregateDTO represents the stored salary details of one month.
type MonthlyAggregateDTO struct {
	Month               int             `json:"month"`
	Year                int             `json:"year"`
	TotalApprovedLeaves int             `json:"total_approved_leaves"`
	CalculatedDeduction decimal.Decimal `json:"calculated_deduction"`
	FinalMonthlySalary  decimal.Decimal `json:"final_monthly_salary"`
}

// StatusChangeResponse is returned by PUT /api/leave/status.
type StatusChangeResponse struct {
	Success    bool                 `json:"success"`
	Message    string               `json:"message"`
	Status     string               `json:"status"`
	OldStatus  string               `json:"old_status"`
	Recomputed bool                 `json:"recomputed"`
	Aggregate  *MonthlyAggregateDTO `json:"monthly_salary_details,omitempty"`
}

// ReportLineDTO is one row of the monthly salary report.
type ReportLineDTO struct {
	EmployeeID     string          `json:"employee_id"`
	Name           string          `json:"name"`
	BaseSalary     decimal.Decimal `json:"base_salary"`
	FinalSalary    decimal.Decimal `json:"final_salary"`
	TotalDeduction decimal.Decimal `json:"total_deduction"`
	Leaves         int             `json:"leaves"`
	Month          int             `json:"month"`
	Year           int             `json:"year"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toEmployeeDTO(e payroll.Employee, detailed bool) EmployeeDTO {
	dto := EmployeeDTO{
		ID:         e.ID,
		Name:       e.Name,
		Email:      e.Email,
		BaseSalary: e.BaseSalary,
		Revision:   e.Revision,
		CreatedAt:  formatTime(e.CreatedAt),
		UpdatedAt:  formatTime(e.UpdatedAt),
	}
	if detailed {
		dto.Leaves = toLeaveDTOs(e.Leaves)
		dto.MonthlySalaryDetails = make([]MonthlyAggregateDTO, len(e.MonthlySalaryDetails))
		for i, a := range e.MonthlySalaryDetails {
			dto.MonthlySalaryDetails[i] = toAggregateDTO(a)
		}
	}
	return dto
}

func toLeaveDTO(l payroll.LeaveRecord) LeaveDTO {
	return LeaveDTO{
		ID:        l.ID,
		Date:      l.Date.Format("2006-01-02"),
		Type:      string(l.Type),
		Status:    string(l.Status),
		Reason:    l.Reason,
		CreatedAt: formatTime(l.CreatedAt),
		UpdatedAt: formatTime(l.UpdatedAt),
	}
}

func toLeaveDTOs(leaves []payroll.LeaveRecord) []LeaveDTO {
	dtos := make([]LeaveDTO, len(leaves))
	for i, l := range leaves {
		dtos[i] = toLeaveDTO(l)
	}
	return dtos
}

func toAggregateDTO(a payroll.MonthlyAggregate) MonthlyAggregateDTO {
	return MonthlyAggregateDTO{
		Month:               int(a.Month),
		Year:                a.Year,
		TotalApprovedLeaves: a.TotalApprovedLeaves,
		CalculatedDeduction: a.CalculatedDeduction,
		FinalMonthlySalary:  a.FinalMonthlySalary,
	}
}

func toReportLineDTO(l payroll.ReportLine) ReportLineDTO {
	return ReportLineDTO{
		EmployeeID:     l.EmployeeID,
		Name:           l.Name,
		BaseSalary:     l.BaseSalary,
		FinalSalary:    l.FinalSalary,
		TotalDeduction: l.TotalDeduction,
		Leaves:         l.Leaves,
		Month:          int(l.Month.Month),
		Year:           l.Month.Year,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
