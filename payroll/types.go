/*
Package payroll owns employee leave records and the monthly salary aggregates
derived from them.

PURPOSE:
  An Employee document carries two child collections: the leave records the
  employee applied for, and one MonthlyAggregate per calendar month that has
  been touched by a leave status change. Aggregates are a materialized view:
  every field can be recomputed from the leave records alone.

KEY CONCEPTS IN THIS FILE (types.go):
  - LeaveType:        closed enum {full, half}
  - LeaveStatus:      closed enum {pending, approved, rejected}
  - LeaveRecord:      one requested day (or half day) of absence
  - MonthlyAggregate: approved-leave count, deduction and final salary for a month
  - Employee:         the aggregate root persisted as a single document

MONEY:
  Salaries and deductions are decimal.Decimal. A working month is 26 days, so a
  full day costs baseSalary/26 and a half day baseSalary/26/2. Nothing is rounded
  here; rounding to currency units belongs to presentation (see export/).

SEE ALSO:
  - reconcile.go: recompute trigger and month rescan
  - service.go:   status changes with optimistic retry
  - store.go:     persistence contract
*/
package payroll

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// WorkingDaysPerMonth is the fixed divisor applied to the monthly base salary.
const WorkingDaysPerMonth = 26

// =============================================================================
// LEAVE TYPE
// =============================================================================

type LeaveType string

const (
	LeaveFull LeaveType = "full"
	LeaveHalf LeaveType = "half"
)

// ParseLeaveType validates a wire value against the closed set of leave types.
func ParseLeaveType(s string) (LeaveType, error) {
	switch t := LeaveType(s); t {
	case LeaveFull, LeaveHalf:
		return t, nil
	}
	return "", fmt.Errorf("%w: unsupported leave type %q", ErrInvalidArgument, s)
}

// =============================================================================
// LEAVE STATUS
// =============================================================================

type LeaveStatus string

const (
	StatusPending  LeaveStatus = "pending"
	StatusApproved LeaveStatus = "approved"
	StatusRejected LeaveStatus = "rejected"
)

// ParseLeaveStatus accepts any of the three lifecycle states.
func ParseLeaveStatus(s string) (LeaveStatus, error) {
	switch st := LeaveStatus(s); st {
	case StatusPending, StatusApproved, StatusRejected:
		return st, nil
	}
	return "", fmt.Errorf("%w: unsupported leave status %q", ErrInvalidArgument, s)
}

// ParseTargetStatus accepts only the states an admin may move a leave into.
func ParseTargetStatus(s string) (LeaveStatus, error) {
	st := LeaveStatus(s)
	if !st.IsTarget() {
		return "", fmt.Errorf("%w: status must be %q or %q, got %q",
			ErrInvalidArgument, StatusApproved, StatusRejected, s)
	}
	return st, nil
}

// IsTarget reports whether s is a valid destination of a status change.
func (s LeaveStatus) IsTarget() bool {
	return s == StatusApproved || s == StatusRejected
}

// =============================================================================
// LEAVE RECORD
// =============================================================================

type LeaveRecord struct {
	ID        string
	Date      time.Time // calendar day, UTC midnight
	Type      LeaveType
	Status    LeaveStatus
	Reason    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Month returns the calendar month the leave counts against.
func (l LeaveRecord) Month() MonthKey { return MonthOf(l.Date) }

// =============================================================================
// MONTHLY AGGREGATE
// =============================================================================

type MonthlyAggregate struct {
	Month               time.Month
	Year                int
	TotalApprovedLeaves int
	CalculatedDeduction decimal.Decimal
	FinalMonthlySalary  decimal.Decimal
}

func (a MonthlyAggregate) Key() MonthKey { return MonthKey{Year: a.Year, Month: a.Month} }

// =============================================================================
// EMPLOYEE
// =============================================================================

type Employee struct {
	ID                   string
	Name                 string
	Email                string
	BaseSalary           decimal.Decimal
	Leaves               []LeaveRecord      // insertion order
	MonthlySalaryDetails []MonthlyAggregate // unique per (month, year)
	Revision             int64
	CreatedAt            time.Time
	UpdatedAt            time.Time

	index map[MonthKey]int
}

// Validate checks the invariants a stored employee document must hold.
func (e *Employee) Validate() error {
	if e.ID == "" {
		return fmt.Errorf("%w: employee id is required", ErrInvalidArgument)
	}
	if !e.BaseSalary.IsPositive() {
		return fmt.Errorf("%w: base salary must be positive, got %s", ErrInvalidArgument, e.BaseSalary)
	}
	seen := make(map[MonthKey]bool, len(e.MonthlySalaryDetails))
	for _, a := range e.MonthlySalaryDetails {
		if seen[a.Key()] {
			return fmt.Errorf("%w: duplicate salary details for %s", ErrInvalidArgument, a.Key())
		}
		seen[a.Key()] = true
	}
	return nil
}

// Leave finds a leave record by id.
func (e *Employee) Leave(id string) (*LeaveRecord, bool) {
	for i := range e.Leaves {
		if e.Leaves[i].ID == id {
			return &e.Leaves[i], true
		}
	}
	return nil, false
}

// LeavesIn returns the leave records dated in the given month, in insertion order.
func (e *Employee) LeavesIn(key MonthKey) []LeaveRecord {
	var out []LeaveRecord
	for _, l := range e.Leaves {
		if l.Month() == key {
			out = append(out, l)
		}
	}
	return out
}

// Aggregate returns the stored aggregate for a month, if any.
func (e *Employee) Aggregate(key MonthKey) (MonthlyAggregate, bool) {
	i, ok := e.lookup(key)
	if !ok {
		return MonthlyAggregate{}, false
	}
	return e.MonthlySalaryDetails[i], true
}

// ensureAggregate returns the aggregate for key, appending a full-pay default
// when the month has never been reconciled.
func (e *Employee) ensureAggregate(key MonthKey) *MonthlyAggregate {
	if i, ok := e.lookup(key); ok {
		return &e.MonthlySalaryDetails[i]
	}
	e.MonthlySalaryDetails = append(e.MonthlySalaryDetails, MonthlyAggregate{
		Month:               key.Month,
		Year:                key.Year,
		CalculatedDeduction: decimal.Zero,
		FinalMonthlySalary:  e.BaseSalary,
	})
	i := len(e.MonthlySalaryDetails) - 1
	e.index[key] = i
	return &e.MonthlySalaryDetails[i]
}

func (e *Employee) lookup(key MonthKey) (int, bool) {
	if e.index == nil || len(e.index) != len(e.MonthlySalaryDetails) {
		e.index = make(map[MonthKey]int, len(e.MonthlySalaryDetails))
		for i, a := range e.MonthlySalaryDetails {
			e.index[a.Key()] = i
		}
	}
	i, ok := e.index[key]
	return i, ok
}

// Clone returns a deep copy that shares no slices with e.
func (e Employee) Clone() Employee {
	out := e
	out.index = nil
	if e.Leaves != nil {
		out.Leaves = append([]LeaveRecord(nil), e.Leaves...)
	}
	if e.MonthlySalaryDetails != nil {
		out.MonthlySalaryDetails = append([]MonthlyAggregate(nil), e.MonthlySalaryDetails...)
	}
	return out
}

// SortEmployees orders employees by name, then id, for stable listings.
func SortEmployees(emps []Employee) {
	sort.Slice(emps, func(i, j int) bool {
		if emps[i].Name != emps[j].Name {
			return emps[i].Name < emps[j].Name
		}
		return emps[i].ID < emps[j].ID
	})
}
