/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with employees and
	leave activity. Every leave goes through ApplyLeave and ChangeLeaveStatus,
	so the stored salary details are exactly what reconciliation produces.

AVAILABLE SCENARIOS:

	payroll-basics: one employee, approved full + half day and a pending day in March
	mixed-month:    two employees, leaves across February-April, one reversal

HOW SCENARIOS WORK:
 1. Reset the store (clear all data)
 2. Create employees
 3. Apply for leaves (pending)
 4. Approve / reject through the service

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "mixed-month"}

ADDING NEW SCENARIOS:
 1. Add to 'scenarios' slice with ID, name, description
 2. Create loader function: loadXxxScenario(ctx)
 3. Add case to LoadScenarioByID

NOTE:

	Scenarios reset the store. Only use in development/demo environments.
*/
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// ErrUnknownScenario is returned for an unsupported scenario id.
var ErrUnknownScenario = errors.New("unknown scenario")

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "payroll-basics",
		Name:        "Payroll Basics",
		Description: "One employee: approved full and half day, one pending day in March 2025",
	},
	{
		ID:          "mixed-month",
		Name:        "Mixed Month",
		Description: "Two employees with approved, rejected and pending leaves across Feb-Apr 2025",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}

	if err := h.LoadScenarioByID(r.Context(), req.ScenarioID); err != nil {
		if errors.Is(err, ErrUnknownScenario) || errors.Is(err, errNoReset) {
			writeError(w, http.StatusBadRequest, "Cannot load scenario", err)
			return
		}
		h.serviceError(w, r, "LoadScenario", fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// ResetDatabase clears all data.
func (h *Handler) ResetDatabase(w http.ResponseWriter, r *http.Request) {
	if err := h.reset(r.Context()); err != nil {
		if errors.Is(err, errNoReset) {
			writeError(w, http.StatusBadRequest, "Reset not supported by this store", err)
			return
		}
		h.serviceError(w, r, "ResetDatabase", "Failed to reset database", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LoadScenarioByID resets the store and loads the named scenario.
func (h *Handler) LoadScenarioByID(ctx context.Context, id string) error {
	var load func(context.Context) error
	switch id {
	case "payroll-basics":
		load = h.loadPayrollBasicsScenario
	case "mixed-month":
		load = h.loadMixedMonthScenario
	default:
		return fmt.Errorf("%w: %q", ErrUnknownScenario, id)
	}

	if err := h.reset(ctx); err != nil {
		return err
	}
	if err := load(ctx); err != nil {
		return err
	}

	h.mu.Lock()
	h.currentScenario = id
	h.mu.Unlock()
	h.Logger.WithField("scenario", id).Info("scenario loaded")
	return nil
}

var errNoReset = errors.New("store does not support reset")

func (h *Handler) reset(ctx context.Context) error {
	resetter, ok := h.Service.Store.(payroll.Resetter)
	if !ok {
		return errNoReset
	}
	if err := resetter.Reset(ctx); err != nil {
		return fmt.Errorf("%w: reset: %w", payroll.ErrInternal, err)
	}
	h.mu.Lock()
	h.currentScenario = ""
	h.mu.Unlock()
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// scenarioLeave is a leave to apply and, optionally, move to a final status.
type scenarioLeave struct {
	date   time.Time
	typ    payroll.LeaveType
	reason string
	final  []payroll.LeaveStatus // applied in order; empty keeps it pending
}

func (h *Handler) seedEmployee(ctx context.Context, name, email, salary string, leaves []scenarioLeave) error {
	emp, err := h.Service.CreateEmployee(ctx, payroll.NewEmployee{
		Name:       name,
		Email:      email,
		BaseSalary: decimal.RequireFromString(salary),
	})
	if err != nil {
		return err
	}
	for _, l := range leaves {
		rec, err := h.Service.ApplyLeave(ctx, emp.ID, payroll.NewLeave{Date: l.date, Type: l.typ, Reason: l.reason})
		if err != nil {
			return err
		}
		for _, st := range l.final {
			if _, err := h.Service.ChangeLeaveStatus(ctx, emp.ID, rec.ID, st); err != nil {
				return err
			}
		}
	}
	return nil
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (h *Handler) loadPayrollBasicsScenario(ctx context.Context) error {
	// 26000 / 26 = 1000 per day, so March deducts 1500.
	return h.seedEmployee(ctx, "Asha Rao", "asha.rao@example.com", "26000", []scenarioLeave{
		{date: day(2025, 3, 3), typ: payroll.LeaveFull, reason: "Family event", final: []payroll.LeaveStatus{payroll.StatusApproved}},
		{date: day(2025, 3, 14), typ: payroll.LeaveHalf, reason: "Doctor appointment", final: []payroll.LeaveStatus{payroll.StatusApproved}},
		{date: day(2025, 3, 24), typ: payroll.LeaveFull, reason: "Personal"},
	})
}

func (h *Handler) loadMixedMonthScenario(ctx context.Context) error {
	err := h.seedEmployee(ctx, "Bilal Khan", "bilal.khan@example.com", "31200", []scenarioLeave{
		{date: day(2025, 2, 27), typ: payroll.LeaveFull, reason: "Travel", final: []payroll.LeaveStatus{payroll.StatusApproved}},
		{date: day(2025, 3, 5), typ: payroll.LeaveHalf, reason: "Bank visit", final: []payroll.LeaveStatus{payroll.StatusApproved}},
		{date: day(2025, 3, 6), typ: payroll.LeaveFull, reason: "Overlaps release", final: []payroll.LeaveStatus{payroll.StatusRejected}},
		{date: day(2025, 4, 2), typ: payroll.LeaveFull, reason: "Holiday trip"},
	})
	if err != nil {
		return err
	}

	// Approved, then reversed: March ends at full pay.
	return h.seedEmployee(ctx, "Chen Wei", "chen.wei@example.com", "18200", []scenarioLeave{
		{date: day(2025, 3, 10), typ: payroll.LeaveFull, reason: "Moving house", final: []payroll.LeaveStatus{payroll.StatusApproved, payroll.StatusRejected}},
		{date: day(2025, 3, 31), typ: payroll.LeaveHalf, reason: "School event"},
	})
}
