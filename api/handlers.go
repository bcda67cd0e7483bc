/*
handlers.go - HTTP API handlers for leave reconciliation and salary reports

PURPOSE:
  Exposes the payroll service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to payroll.Service.

ENDPOINTS:
  Employees:
    GET    /api/employees                 List all employees
    POST   /api/employees                 Create employee
    GET    /api/employees/{id}            Employee with leaves and salary details
    GET    /api/employees/{id}/leaves     Leave records, insertion order
    POST   /api/employees/{id}/leaves     Apply for leave (pending)
    GET    /api/employees/{id}/payslip    PDF payslip (?month=&year=)

  Leave approval:
    PUT    /api/leave/status              Approve or reject a leave

  Salary:
    GET    /api/salary/monthly            Monthly report (?month=&year=&employee_id=)
    GET    /api/salary/monthly/export     Monthly report as XLSX

  Scenarios:
    GET    /api/scenarios                 List demo scenarios
    POST   /api/scenarios/load            Load a demo scenario
    POST   /api/scenarios/reset           Drop all data

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input (validation.go); nothing is loaded on bad input
  3. Call payroll.Service
  4. Serialize response
  5. Map errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Employee or leave not found
  - 500: Internal errors (stored state is unchanged)

SECURITY NOTE:
  No authentication or authorization here. Callers are expected to sit behind
  an authenticating gateway.

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/warp/payroll-engine/config"
	"github.com/warp/payroll-engine/export"
	"github.com/warp/payroll-engine/payroll"
)

const maxBodyBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service *payroll.Service
	Logger  logrus.FieldLogger

	// Track currently loaded scenario
	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a new handler on top of the payroll service.
func NewHandler(svc *payroll.Service, logger logrus.FieldLogger) *Handler {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Handler{Service: svc, Logger: logger}
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// ListEmployees returns all employees without their child collections.
func (h *Handler) ListEmployees(w http.ResponseWriter, r *http.Request) {
	employees, err := h.Service.ListEmployees(r.Context())
	if err != nil {
		h.serviceError(w, r, "ListEmployees", "Failed to list employees", err)
		return
	}

	dtos := make([]EmployeeDTO, len(employees))
	for i, e := range employees {
		dtos[i] = toEmployeeDTO(e, false)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEmployee creates a new employee.
func (h *Handler) CreateEmployee(w http.ResponseWriter, r *http.Request) {
	var req CreateEmployeeRequest
	if !h.decode(w, r, &req) {
		return
	}

	emp, err := h.Service.CreateEmployee(r.Context(), payroll.NewEmployee{
		Name:       req.Name,
		Email:      req.Email,
		BaseSalary: req.BaseSalary,
	})
	if err != nil {
		h.serviceError(w, r, "CreateEmployee", "Failed to create employee", err)
		return
	}
	writeJSON(w, http.StatusCreated, toEmployeeDTO(*emp, true))
}

// GetEmployee returns one employee with leaves and monthly salary details.
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Service.GetEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, "GetEmployee", "Failed to get employee", err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(*emp, true))
}

// =============================================================================
// LEAVE HANDLERS
// =============================================================================

// ListLeaves returns the employee's leave records in insertion order.
func (h *Handler) ListLeaves(w http.ResponseWriter, r *http.Request) {
	leaves, err := h.Service.ListLeaves(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.serviceError(w, r, "ListLeaves", "Failed to list leaves", err)
		return
	}
	writeJSON(w, http.StatusOK, toLeaveDTOs(leaves))
}

// ApplyLeave records a pending leave request.
func (h *Handler) ApplyLeave(w http.ResponseWriter, r *http.Request) {
	var req ApplyLeaveRequest
	if !h.decode(w, r, &req) {
		return
	}
	day, err := payroll.ParseDate(req.Date)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid date", err)
		return
	}

	rec, err := h.Service.ApplyLeave(r.Context(), chi.URLParam(r, "id"), payroll.NewLeave{
		Date:   day,
		Type:   payroll.LeaveType(req.Type),
		Reason: req.Reason,
	})
	if err != nil {
		h.serviceError(w, r, "ApplyLeave", "Failed to apply for leave", err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(*rec))
}

// ChangeLeaveStatus approves or rejects a leave and reconciles its month.
func (h *Handler) ChangeLeaveStatus(w http.ResponseWriter, r *http.Request) {
	var req ChangeLeaveStatusRequest
	if !h.decode(w, r, &req) {
		return
	}

	change, err := h.Service.ChangeLeaveStatus(r.Context(), req.EmployeeID, req.LeaveID, payroll.LeaveStatus(req.Status))
	if err != nil {
		h.serviceError(w, r, "ChangeLeaveStatus", "Failed to update leave status", err)
		return
	}

	resp := StatusChangeResponse{
		Success:    true,
		Message:    fmt.Sprintf("Leave %s successfully", change.NewStatus),
		Status:     string(change.NewStatus),
		OldStatus:  string(change.OldStatus),
		Recomputed: change.Recomputed,
	}
	if change.Aggregate != nil {
		agg := toAggregateDTO(*change.Aggregate)
		resp.Aggregate = &agg
	}
	writeJSON(w, http.StatusOK, resp)
}

// =============================================================================
// SALARY HANDLERS
// =============================================================================

// MonthlyReport returns per-employee salary summaries for a month.
func (h *Handler) MonthlyReport(w http.ResponseWriter, r *http.Request) {
	key, ok := monthFromQuery(w, r)
	if !ok {
		return
	}

	lines, err := h.Service.MonthlyReport(r.Context(), key, r.URL.Query().Get("employee_id"))
	if err != nil {
		h.serviceError(w, r, "MonthlyReport", "Failed to build salary report", err)
		return
	}

	dtos := make([]ReportLineDTO, len(lines))
	for i, l := range lines {
		dtos[i] = toReportLineDTO(l)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ExportMonthlyReport streams the monthly report as an XLSX workbook.
func (h *Handler) ExportMonthlyReport(w http.ResponseWriter, r *http.Request) {
	key, ok := monthFromQuery(w, r)
	if !ok {
		return
	}

	lines, err := h.Service.MonthlyReport(r.Context(), key, r.URL.Query().Get("employee_id"))
	if err != nil {
		h.serviceError(w, r, "ExportMonthlyReport", "Failed to build salary report", err)
		return
	}

	var buf bytes.Buffer
	if err := export.MonthlyReportXLSX(&buf, key, lines); err != nil {
		h.serviceError(w, r, "ExportMonthlyReport", "Failed to render workbook", err)
		return
	}
	writeAttachment(w, export.XLSXContentType, export.ReportFilename(key), buf.Bytes())
}

// Payslip streams one employee's monthly payslip as PDF.
func (h *Handler) Payslip(w http.ResponseWriter, r *http.Request) {
	key, ok := monthFromQuery(w, r)
	if !ok {
		return
	}

	slip, err := h.Service.Payslip(r.Context(), chi.URLParam(r, "id"), key)
	if err != nil {
		h.serviceError(w, r, "Payslip", "Failed to build payslip", err)
		return
	}

	var buf bytes.Buffer
	if err := export.PayslipPDF(&buf, slip); err != nil {
		h.serviceError(w, r, "Payslip", "Failed to render payslip", err)
		return
	}
	writeAttachment(w, export.PDFContentType, export.PayslipFilename(slip), buf.Bytes())
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// decode reads a JSON body into dst and runs tag validation. It writes the
// 400 response itself and reports whether the handler may continue.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if errs := validateStruct(dst); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{
			Error:   "Validation failed",
			Code:    "invalid_argument",
			Details: errs,
		})
		return false
	}
	return true
}

// serviceError maps payroll errors to HTTP status codes.
func (h *Handler) serviceError(w http.ResponseWriter, r *http.Request, funcName, message string, err error) {
	switch {
	case payroll.IsClientError(err):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: message, Code: "invalid_argument", Details: err.Error()})
	case payroll.IsNotFound(err):
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: notFoundMessage(err), Code: "not_found", Details: err.Error()})
	default:
		config.LogError(h.Logger, "api", funcName, middleware.GetReqID(r.Context()), nil, err)
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: message, Code: "internal"})
	}
}

func notFoundMessage(err error) string {
	var nf *payroll.NotFoundError
	if errors.As(err, &nf) {
		switch nf.Kind {
		case "employee":
			return "Employee not found"
		case "leave":
			return "Leave record not found"
		}
	}
	return "Not found"
}

// monthFromQuery parses the required month and year query parameters.
func monthFromQuery(w http.ResponseWriter, r *http.Request) (payroll.MonthKey, bool) {
	q := r.URL.Query()
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "month must be an integer between 1 and 12", nil)
		return payroll.MonthKey{}, false
	}
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "year must be an integer", nil)
		return payroll.MonthKey{}, false
	}
	key, err := payroll.NewMonthKey(month, year)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid month or year", err)
		return payroll.MonthKey{}, false
	}
	return key, true
}
