/*
service.go - Employee, leave and status-change operations

PURPOSE:
  Every write follows the same cycle: load the employee document, mutate it in
  memory, save it with the revision it was loaded at. A stale save is retried
  from a fresh load, so two requests touching the same employee never overwrite
  each other's leave records or aggregates.

FLOW (ChangeLeaveStatus):
  1. Validate ids and target status (nothing is loaded on bad input)
  2. Load employee, locate leave                 -> NotFound
  3. Set the new status unconditionally
  4. RequiresRecompute(old, new)?  -> RecomputeMonth(leave month, UTC)
  5. Save(emp, loadedRevision)                   -> conflict: back to 2
  6. Return the new status and the refreshed aggregate

A Locker, when configured, is held across the whole cycle for one employee.
It only cuts down on conflicts; correctness comes from the revision check.
*/
package payroll

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// DefaultMaxAttempts bounds the optimistic retry loop.
const DefaultMaxAttempts = 10

var tracer = otel.Tracer("github.com/warp/payroll-engine/payroll")

// Service implements the payroll operations on top of an EmployeeStore.
type Service struct {
	Store       EmployeeStore
	Locker      Locker // optional
	Logger      logrus.FieldLogger
	MaxAttempts int
	Now         func() time.Time
	NewID       func() string
}

// NewService returns a Service with default clock, id generator and retry bound.
// A nil logger discards output.
func NewService(store EmployeeStore, logger logrus.FieldLogger) *Service {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Service{
		Store:       store,
		Logger:      logger,
		MaxAttempts: DefaultMaxAttempts,
		Now:         SystemClock,
		NewID:       uuid.NewString,
	}
}

// =============================================================================
// INPUT / OUTPUT TYPES
// =============================================================================

type NewEmployee struct {
	Name       string
	Email      string
	BaseSalary decimal.Decimal
}

type NewLeave struct {
	Date   time.Time
	Type   LeaveType
	Reason string
}

// StatusChange is the outcome of ChangeLeaveStatus.
type StatusChange struct {
	EmployeeID string
	LeaveID    string
	OldStatus  LeaveStatus
	NewStatus  LeaveStatus
	Recomputed bool
	Aggregate  *MonthlyAggregate // set only when Recomputed
}

// =============================================================================
// EMPLOYEES
// =============================================================================

func (s *Service) CreateEmployee(ctx context.Context, in NewEmployee) (*Employee, error) {
	ctx, span := tracer.Start(ctx, "payroll.CreateEmployee")
	defer span.End()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fail(span, fmt.Errorf("%w: name is required", ErrInvalidArgument))
	}
	now := s.Now()
	emp := Employee{
		ID:         s.NewID(),
		Name:       name,
		Email:      strings.TrimSpace(in.Email),
		BaseSalary: in.BaseSalary,
		Leaves:     []LeaveRecord{},
		Revision:   1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := emp.Validate(); err != nil {
		return nil, fail(span, err)
	}
	if err := s.Store.Create(ctx, emp); err != nil {
		if IsClientError(err) {
			return nil, fail(span, err)
		}
		return nil, fail(span, internal("create employee", err))
	}
	span.SetAttributes(attribute.String("employee.id", emp.ID))
	s.Logger.WithField("employee_id", emp.ID).Info("employee created")
	return &emp, nil
}

func (s *Service) GetEmployee(ctx context.Context, id string) (*Employee, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: employee id is required", ErrInvalidArgument)
	}
	emp, err := s.Store.Get(ctx, id)
	if err != nil {
		return nil, internal("load employee", err)
	}
	if emp == nil {
		return nil, &NotFoundError{Kind: "employee", ID: id}
	}
	return emp, nil
}

func (s *Service) ListEmployees(ctx context.Context) ([]Employee, error) {
	emps, err := s.Store.List(ctx)
	if err != nil {
		return nil, internal("list employees", err)
	}
	SortEmployees(emps)
	return emps, nil
}

// =============================================================================
// LEAVES
// =============================================================================

// ApplyLeave records a pending leave request for the employee.
func (s *Service) ApplyLeave(ctx context.Context, employeeID string, in NewLeave) (*LeaveRecord, error) {
	ctx, span := tracer.Start(ctx, "payroll.ApplyLeave",
		trace.WithAttributes(attribute.String("employee.id", employeeID)))
	defer span.End()

	if employeeID == "" {
		return nil, fail(span, fmt.Errorf("%w: employee id is required", ErrInvalidArgument))
	}
	if _, err := ParseLeaveType(string(in.Type)); err != nil {
		return nil, fail(span, err)
	}
	if in.Date.IsZero() {
		return nil, fail(span, fmt.Errorf("%w: leave date is required", ErrInvalidArgument))
	}

	var created LeaveRecord
	_, err := s.mutate(ctx, employeeID, func(emp *Employee) error {
		now := s.Now()
		created = LeaveRecord{
			ID:        s.NewID(),
			Date:      Day(in.Date),
			Type:      in.Type,
			Status:    StatusPending,
			Reason:    in.Reason,
			CreatedAt: now,
			UpdatedAt: now,
		}
		emp.Leaves = append(emp.Leaves, created)
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}
	s.Logger.WithFields(logrus.Fields{
		"employee_id": employeeID,
		"leave_id":    created.ID,
		"date":        created.Date.Format("2006-01-02"),
		"type":        created.Type,
	}).Info("leave applied")
	return &created, nil
}

func (s *Service) ListLeaves(ctx context.Context, employeeID string) ([]LeaveRecord, error) {
	emp, err := s.GetEmployee(ctx, employeeID)
	if err != nil {
		return nil, err
	}
	if emp.Leaves == nil {
		return []LeaveRecord{}, nil
	}
	return emp.Leaves, nil
}

// =============================================================================
// STATUS CHANGE
// =============================================================================

// ChangeLeaveStatus moves a leave to approved or rejected and, when the move
// affects salary, rebuilds the aggregate of the leave's month. The leave and
// the aggregate are persisted together or not at all.
func (s *Service) ChangeLeaveStatus(ctx context.Context, employeeID, leaveID string, status LeaveStatus) (*StatusChange, error) {
	ctx, span := tracer.Start(ctx, "payroll.ChangeLeaveStatus", trace.WithAttributes(
		attribute.String("employee.id", employeeID),
		attribute.String("leave.id", leaveID),
		attribute.String("leave.status", string(status)),
	))
	defer span.End()

	switch {
	case employeeID == "":
		return nil, fail(span, fmt.Errorf("%w: employee id is required", ErrInvalidArgument))
	case leaveID == "":
		return nil, fail(span, fmt.Errorf("%w: leave id is required", ErrInvalidArgument))
	case !status.IsTarget():
		return nil, fail(span, fmt.Errorf("%w: status must be %q or %q, got %q",
			ErrInvalidArgument, StatusApproved, StatusRejected, status))
	}

	var change StatusChange
	_, err := s.mutate(ctx, employeeID, func(emp *Employee) error {
		leave, ok := emp.Leave(leaveID)
		if !ok {
			return &NotFoundError{Kind: "leave", ID: leaveID}
		}
		change = StatusChange{
			EmployeeID: employeeID,
			LeaveID:    leaveID,
			OldStatus:  leave.Status,
			NewStatus:  status,
		}
		leave.Status = status
		leave.UpdatedAt = s.Now()

		if RequiresRecompute(change.OldStatus, status) {
			agg := RecomputeMonth(emp, leave.Month())
			change.Recomputed = true
			change.Aggregate = &agg
		}
		return nil
	})
	if err != nil {
		return nil, fail(span, err)
	}

	fields := logrus.Fields{
		"employee_id": employeeID,
		"leave_id":    leaveID,
		"old_status":  change.OldStatus,
		"new_status":  change.NewStatus,
		"recomputed":  change.Recomputed,
	}
	if change.Aggregate != nil {
		fields["month"] = change.Aggregate.Key().String()
		fields["deduction"] = change.Aggregate.CalculatedDeduction.String()
	}
	s.Logger.WithFields(fields).Info("leave status changed")
	return &change, nil
}

// =============================================================================
// OPTIMISTIC RETRY LOOP
// =============================================================================

// mutate runs fn against a freshly loaded employee and saves the result with
// a revision check, retrying from a new load on conflict. Errors returned by
// fn abort the cycle without a write and are passed through unchanged.
func (s *Service) mutate(ctx context.Context, employeeID string, fn func(emp *Employee) error) (*Employee, error) {
	if s.Locker != nil {
		unlock, err := s.Locker.Lock(ctx, "employee:"+employeeID)
		if err != nil {
			return nil, internal("lock employee", err)
		}
		defer unlock()
	}

	attempts := s.MaxAttempts
	if attempts <= 0 {
		attempts = DefaultMaxAttempts
	}
	log := s.Logger.WithField("employee_id", employeeID)

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, internal("mutate employee", err)
		}

		emp, err := s.Store.Get(ctx, employeeID)
		if err != nil {
			return nil, internal("load employee", err)
		}
		if emp == nil {
			return nil, &NotFoundError{Kind: "employee", ID: employeeID}
		}

		loaded := emp.Revision
		if err := fn(emp); err != nil {
			return nil, err
		}
		emp.UpdatedAt = s.Now()

		err = s.Store.Save(ctx, *emp, loaded)
		if err == nil {
			emp.Revision = loaded + 1
			return emp, nil
		}
		if !IsRetryable(err) {
			return nil, internal("save employee", err)
		}
		log.WithFields(logrus.Fields{
			"attempt":  attempt,
			"revision": loaded,
		}).Debug("revision conflict, retrying")
	}

	log.WithField("attempts", attempts).Warn("giving up after repeated revision conflicts")
	return nil, fmt.Errorf("%w: employee %s: gave up after %d attempts: %w",
		ErrInternal, employeeID, attempts, ErrConcurrentModification)
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
