/*
reconcile.go - Leave-to-salary reconciliation

PURPOSE:
  Keeps a MonthlyAggregate equal to what the leave records say it should be.
  After a status change the whole month is rescanned, never patched by delta,
  so a recompute also repairs any earlier drift.

RECOMPUTE TRIGGER:
  old != approved && new == approved   (leave starts costing salary)
  old == approved && new != approved   (leave stops costing salary)
  old == pending  && new == rejected   (audit parity, deduction unchanged)

  Everything else (approved->approved, rejected->rejected, rejected->pending ...)
  is a pure status edit and leaves the aggregate untouched.

DEDUCTION:
  full day: baseSalary / 26
  half day: baseSalary / 26 / 2
*/
package payroll

import (
	"github.com/shopspring/decimal"
)

var workingDays = decimal.NewFromInt(WorkingDaysPerMonth)

// RequiresRecompute reports whether moving a leave from old to next must
// refresh the aggregate for its month.
func RequiresRecompute(old, next LeaveStatus) bool {
	switch {
	case old != StatusApproved && next == StatusApproved:
		return true
	case old == StatusApproved && next != StatusApproved:
		return true
	case old == StatusPending && next == StatusRejected:
		return true
	}
	return false
}

// DailyRate is the salary cost of one full day of leave.
func DailyRate(baseSalary decimal.Decimal) decimal.Decimal {
	return baseSalary.Div(workingDays)
}

// LeaveDeduction returns the amount one approved leave of type t deducts.
func LeaveDeduction(baseSalary decimal.Decimal, t LeaveType) decimal.Decimal {
	rate := DailyRate(baseSalary)
	if t == LeaveHalf {
		return rate.Div(decimal.NewFromInt(2))
	}
	return rate
}

// ComputeMonth derives the aggregate for key from the employee's leave records.
// It does not modify the employee.
func ComputeMonth(emp *Employee, key MonthKey) MonthlyAggregate {
	agg := MonthlyAggregate{
		Month:               key.Month,
		Year:                key.Year,
		CalculatedDeduction: decimal.Zero,
	}
	for _, l := range emp.Leaves {
		if l.Status != StatusApproved || l.Month() != key {
			continue
		}
		agg.TotalApprovedLeaves++
		agg.CalculatedDeduction = agg.CalculatedDeduction.Add(LeaveDeduction(emp.BaseSalary, l.Type))
	}
	agg.FinalMonthlySalary = emp.BaseSalary.Sub(agg.CalculatedDeduction)
	return agg
}

// RecomputeMonth rescans every leave in key and overwrites the stored
// aggregate, creating it when the month has none yet.
func RecomputeMonth(emp *Employee, key MonthKey) MonthlyAggregate {
	fresh := ComputeMonth(emp, key)
	stored := emp.ensureAggregate(key)
	stored.TotalApprovedLeaves = fresh.TotalApprovedLeaves
	stored.CalculatedDeduction = fresh.CalculatedDeduction
	stored.FinalMonthlySalary = fresh.FinalMonthlySalary
	return *stored
}

// ReportFor returns the stored aggregate for key, or full pay when the month
// was never reconciled. It never recomputes.
func ReportFor(emp *Employee, key MonthKey) MonthlyAggregate {
	if agg, ok := emp.Aggregate(key); ok {
		return agg
	}
	return MonthlyAggregate{
		Month:               key.Month,
		Year:                key.Year,
		CalculatedDeduction: decimal.Zero,
		FinalMonthlySalary:  emp.BaseSalary,
	}
}
