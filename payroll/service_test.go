package payroll_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
	"github.com/warp/payroll-engine/payroll/lock"
	"github.com/warp/payroll-engine/payroll/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func newTestService(st payroll.EmployeeStore) *payroll.Service {
	svc := payroll.NewService(st, nil)
	var n atomic.Int64
	svc.NewID = func() string { return fmt.Sprintf("id-%d", n.Add(1)) }
	svc.Now = func() time.Time { return date(2025, 3, 1) }
	return svc
}

// seedEmployee creates an employee with the given leaves applied (all pending).
func seedEmployee(t *testing.T, svc *payroll.Service, salary string, leaves ...payroll.NewLeave) (*payroll.Employee, []string) {
	t.Helper()
	ctx := context.Background()
	emp, err := svc.CreateEmployee(ctx, payroll.NewEmployee{Name: "Ada", Email: "ada@example.com", BaseSalary: money(salary)})
	require.NoError(t, err)

	ids := make([]string, 0, len(leaves))
	for _, l := range leaves {
		rec, err := svc.ApplyLeave(ctx, emp.ID, l)
		require.NoError(t, err)
		ids = append(ids, rec.ID)
	}
	return emp, ids
}

func full(d time.Time) payroll.NewLeave { return payroll.NewLeave{Date: d, Type: payroll.LeaveFull} }
func half(d time.Time) payroll.NewLeave { return payroll.NewLeave{Date: d, Type: payroll.LeaveHalf} }

func aggregateOf(t *testing.T, svc *payroll.Service, empID string, key payroll.MonthKey) payroll.MonthlyAggregate {
	t.Helper()
	emp, err := svc.GetEmployee(context.Background(), empID)
	require.NoError(t, err)
	agg, ok := emp.Aggregate(key)
	require.True(t, ok, "aggregate for %s exists", key)
	return agg
}

// =============================================================================
// EMPLOYEES AND LEAVES
// =============================================================================

func TestCreateEmployee(t *testing.T) {
	svc := newTestService(store.NewMemory())

	emp, err := svc.CreateEmployee(context.Background(), payroll.NewEmployee{Name: "  Ada ", BaseSalary: money("5000")})
	require.NoError(t, err)
	assert.Equal(t, "Ada", emp.Name)
	assert.Equal(t, int64(1), emp.Revision)

	_, err = svc.CreateEmployee(context.Background(), payroll.NewEmployee{Name: "Bob", BaseSalary: money("0")})
	assert.ErrorIs(t, err, payroll.ErrInvalidArgument)

	_, err = svc.CreateEmployee(context.Background(), payroll.NewEmployee{BaseSalary: money("10")})
	assert.ErrorIs(t, err, payroll.ErrInvalidArgument)
}

func TestApplyLeave(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000", full(date(2025, 3, 3)), half(date(2025, 3, 4)))

	leaves, err := svc.ListLeaves(ctx, emp.ID)
	require.NoError(t, err)
	require.Len(t, leaves, 2)
	assert.Equal(t, ids[0], leaves[0].ID, "insertion order")
	assert.Equal(t, payroll.StatusPending, leaves[0].Status)
	assert.Equal(t, payroll.LeaveHalf, leaves[1].Type)

	// Applying never touches aggregates.
	got, err := svc.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Empty(t, got.MonthlySalaryDetails)
	assert.Equal(t, int64(3), got.Revision)
}

func TestApplyLeave_Errors(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, _ := seedEmployee(t, svc, "26000")

	_, err := svc.ApplyLeave(ctx, emp.ID, payroll.NewLeave{Date: date(2025, 3, 3), Type: "quarter"})
	assert.ErrorIs(t, err, payroll.ErrInvalidArgument)

	_, err = svc.ApplyLeave(ctx, emp.ID, payroll.NewLeave{Type: payroll.LeaveFull})
	assert.ErrorIs(t, err, payroll.ErrInvalidArgument)

	_, err = svc.ApplyLeave(ctx, "ghost", full(date(2025, 3, 3)))
	assert.True(t, payroll.IsNotFound(err))
}

// =============================================================================
// CHANGE LEAVE STATUS
// =============================================================================

func TestChangeLeaveStatus_FullAndHalfDeduction(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	// GIVEN: base salary 26000, one full-day leave in March
	emp, ids := seedEmployee(t, svc, "26000", full(date(2025, 3, 10)))

	// WHEN: approved
	change, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)

	// THEN
	assert.Equal(t, payroll.StatusPending, change.OldStatus)
	assert.Equal(t, payroll.StatusApproved, change.NewStatus)
	require.True(t, change.Recomputed)
	assertMoney(t, "1000", change.Aggregate.CalculatedDeduction)
	assertMoney(t, "25000", change.Aggregate.FinalMonthlySalary)

	// A half day in a fresh employee deducts 500.
	emp2, ids2 := seedEmployee(t, svc, "26000", half(date(2025, 3, 10)))
	_, err = svc.ChangeLeaveStatus(ctx, emp2.ID, ids2[0], payroll.StatusApproved)
	require.NoError(t, err)
	agg := aggregateOf(t, svc, emp2.ID, mar2025())
	assertMoney(t, "500", agg.CalculatedDeduction)
	assertMoney(t, "25500", agg.FinalMonthlySalary)
	assert.Equal(t, 1, agg.TotalApprovedLeaves)
}

func TestChangeLeaveStatus_SameStatusTwiceIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000", full(date(2025, 3, 10)), half(date(2025, 3, 11)))

	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)
	once := aggregateOf(t, svc, emp.ID, mar2025())

	change, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)
	assert.False(t, change.Recomputed, "approved -> approved is a pure status edit")
	twice := aggregateOf(t, svc, emp.ID, mar2025())

	assert.Equal(t, once.TotalApprovedLeaves, twice.TotalApprovedLeaves)
	assert.True(t, once.CalculatedDeduction.Equal(twice.CalculatedDeduction))
	assert.True(t, once.FinalMonthlySalary.Equal(twice.FinalMonthlySalary))

	// Rejected twice is equally stable.
	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusRejected)
	require.NoError(t, err)
	change, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusRejected)
	require.NoError(t, err)
	assert.False(t, change.Recomputed)
	assertMoney(t, "1000", aggregateOf(t, svc, emp.ID, mar2025()).CalculatedDeduction)
}

func TestChangeLeaveStatus_RescansWholeMonth(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())

	// GIVEN: approved full, approved half, and a pending full day in March
	emp, ids := seedEmployee(t, svc, "26000",
		full(date(2025, 3, 3)), half(date(2025, 3, 4)), full(date(2025, 3, 5)))
	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)
	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusApproved)
	require.NoError(t, err)

	// WHEN: the third is approved
	change, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[2], payroll.StatusApproved)
	require.NoError(t, err)

	// THEN: the aggregate reflects all three records
	assert.Equal(t, 3, change.Aggregate.TotalApprovedLeaves)
	assertMoney(t, "2500", change.Aggregate.CalculatedDeduction)
	assertMoney(t, "23500", change.Aggregate.FinalMonthlySalary)
}

func TestChangeLeaveStatus_ReversalRestoresPriorValues(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "30000", full(date(2025, 3, 3)), half(date(2025, 3, 4)))

	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)
	before := aggregateOf(t, svc, emp.ID, mar2025())

	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusApproved)
	require.NoError(t, err)
	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusRejected)
	require.NoError(t, err)
	after := aggregateOf(t, svc, emp.ID, mar2025())

	assert.Equal(t, before.TotalApprovedLeaves, after.TotalApprovedLeaves)
	assert.True(t, before.CalculatedDeduction.Equal(after.CalculatedDeduction))
	assert.True(t, before.FinalMonthlySalary.Equal(after.FinalMonthlySalary))
}

func TestChangeLeaveStatus_CrossMonthIsolation(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000",
		full(date(2025, 2, 28)), full(date(2025, 3, 1)), full(date(2025, 4, 1)))

	// GIVEN: February and April already reconciled
	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)
	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[2], payroll.StatusRejected)
	require.NoError(t, err)
	feb := aggregateOf(t, svc, emp.ID, mar2025().Prev())
	apr := aggregateOf(t, svc, emp.ID, mar2025().Next())

	// WHEN: a March leave is approved
	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusApproved)
	require.NoError(t, err)

	// THEN: neighbours are unchanged
	assert.Equal(t, feb, aggregateOf(t, svc, emp.ID, mar2025().Prev()))
	assert.Equal(t, apr, aggregateOf(t, svc, emp.ID, mar2025().Next()))
	assertMoney(t, "1000", aggregateOf(t, svc, emp.ID, mar2025()).CalculatedDeduction)
}

func TestChangeLeaveStatus_NotFoundLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000", full(date(2025, 3, 3)))
	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)

	before, err := svc.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)

	_, err = svc.ChangeLeaveStatus(ctx, emp.ID, "no-such-leave", payroll.StatusApproved)
	require.Error(t, err)
	assert.True(t, payroll.IsNotFound(err))
	var nf *payroll.NotFoundError
	require.True(t, errors.As(err, &nf))
	assert.Equal(t, "leave", nf.Kind)

	after, err := svc.GetEmployee(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Revision, after.Revision)
	assert.Equal(t, before.MonthlySalaryDetails, after.MonthlySalaryDetails)
	assert.Equal(t, before.Leaves, after.Leaves)

	_, err = svc.ChangeLeaveStatus(ctx, "ghost", ids[0], payroll.StatusApproved)
	assert.True(t, payroll.IsNotFound(err))
}

func TestChangeLeaveStatus_InvalidArguments(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000", full(date(2025, 3, 3)))

	tests := []struct {
		name       string
		emp, leave string
		status     payroll.LeaveStatus
	}{
		{"missing employee id", "", ids[0], payroll.StatusApproved},
		{"missing leave id", emp.ID, "", payroll.StatusApproved},
		{"pending target", emp.ID, ids[0], payroll.StatusPending},
		{"unknown status", emp.ID, ids[0], "cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.ChangeLeaveStatus(ctx, tt.emp, tt.leave, tt.status)
			assert.ErrorIs(t, err, payroll.ErrInvalidArgument)
		})
	}
}

// =============================================================================
// CONCURRENCY
// =============================================================================

// racingStore performs a competing write right before the first Save that
// passes through it, forcing the caller onto the conflict path.
type racingStore struct {
	payroll.EmployeeStore
	once  sync.Once
	race  func()
	saves atomic.Int32
}

func (r *racingStore) Save(ctx context.Context, emp payroll.Employee, expected int64) error {
	r.saves.Add(1)
	r.once.Do(r.race)
	return r.EmployeeStore.Save(ctx, emp, expected)
}

func TestChangeLeaveStatus_ConflictIsRetried(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	direct := newTestService(mem)
	emp, ids := seedEmployee(t, direct, "26000", full(date(2025, 3, 3)), full(date(2025, 3, 4)))

	// GIVEN: another writer approves the second leave between our load and save
	racing := &racingStore{EmployeeStore: mem}
	racing.race = func() {
		_, err := direct.ChangeLeaveStatus(ctx, emp.ID, ids[1], payroll.StatusApproved)
		require.NoError(t, err)
	}
	svc := newTestService(racing)

	// WHEN
	change, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)

	// THEN: retried once, and neither approval is lost
	assert.Equal(t, int32(2), racing.saves.Load())
	assert.Equal(t, 2, change.Aggregate.TotalApprovedLeaves)
	agg := aggregateOf(t, svc, emp.ID, mar2025())
	assert.Equal(t, 2, agg.TotalApprovedLeaves)
	assertMoney(t, "2000", agg.CalculatedDeduction)
}

// conflictStore rejects every save.
type conflictStore struct{ payroll.EmployeeStore }

func (conflictStore) Save(context.Context, payroll.Employee, int64) error {
	return payroll.ErrConcurrentModification
}

func TestChangeLeaveStatus_GivesUpAfterMaxAttempts(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	emp, ids := seedEmployee(t, newTestService(mem), "26000", full(date(2025, 3, 3)))

	svc := newTestService(conflictStore{mem})
	svc.MaxAttempts = 3

	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.Error(t, err)
	assert.ErrorIs(t, err, payroll.ErrInternal)
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)
	assert.False(t, payroll.IsClientError(err))
}

// failingStore fails every save with a storage error.
type failingStore struct{ payroll.EmployeeStore }

func (failingStore) Save(context.Context, payroll.Employee, int64) error {
	return errors.New("disk full")
}

func TestChangeLeaveStatus_StoreFailureIsInternal(t *testing.T) {
	ctx := context.Background()
	mem := store.NewMemory()
	emp, ids := seedEmployee(t, newTestService(mem), "26000", full(date(2025, 3, 3)))
	before, _ := mem.Get(ctx, emp.ID)

	svc := newTestService(failingStore{mem})
	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	assert.ErrorIs(t, err, payroll.ErrInternal)

	after, _ := mem.Get(ctx, emp.ID)
	assert.Equal(t, before, after)
}

func TestChangeLeaveStatus_ConcurrentApprovals(t *testing.T) {
	for _, tc := range []struct {
		name   string
		locker payroll.Locker
		n      int
	}{
		{"optimistic only", nil, payroll.DefaultMaxAttempts},
		{"local lock", lock.NewLocal(), 40},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			svc := newTestService(store.NewMemory())
			svc.Locker = tc.locker

			// GIVEN: n pending full-day leaves in the same month
			leaves := make([]payroll.NewLeave, tc.n)
			for i := range leaves {
				leaves[i] = full(date(2025, 3, 1+i%28))
			}
			emp, ids := seedEmployee(t, svc, "26000", leaves...)

			// WHEN: all are approved at once
			var wg sync.WaitGroup
			errs := make(chan error, tc.n)
			for _, id := range ids {
				wg.Add(1)
				go func(id string) {
					defer wg.Done()
					_, err := svc.ChangeLeaveStatus(ctx, emp.ID, id, payroll.StatusApproved)
					errs <- err
				}(id)
			}
			wg.Wait()
			close(errs)
			for err := range errs {
				require.NoError(t, err)
			}

			// THEN: every approval is reflected
			agg := aggregateOf(t, svc, emp.ID, mar2025())
			assert.Equal(t, tc.n, agg.TotalApprovedLeaves)
			assertMoney(t, fmt.Sprintf("%d", 1000*tc.n), agg.CalculatedDeduction)
		})
	}
}

// =============================================================================
// REPORTS
// =============================================================================

func TestMonthlyReport_ReadsStoredAggregates(t *testing.T) {
	// GIVEN: One employee with an approved and a pending March leave, another with none
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000", full(date(2025, 3, 3)), full(date(2025, 3, 4)))
	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)
	other, err := svc.CreateEmployee(ctx, payroll.NewEmployee{Name: "Zed", BaseSalary: money("18200")})
	require.NoError(t, err)

	// WHEN: Reporting March
	lines, err := svc.MonthlyReport(ctx, mar2025(), "")
	require.NoError(t, err)

	// THEN: Lines are ordered by name; the pending day costs nothing
	require.Len(t, lines, 2)
	assert.Equal(t, emp.ID, lines[0].EmployeeID)
	assert.Equal(t, 1, lines[0].Leaves)
	assertMoney(t, "1000", lines[0].TotalDeduction)
	assertMoney(t, "25000", lines[0].FinalSalary)

	assert.Equal(t, other.ID, lines[1].EmployeeID)
	assert.Equal(t, 0, lines[1].Leaves)
	assertMoney(t, "0", lines[1].TotalDeduction)
	assertMoney(t, "18200", lines[1].FinalSalary)
}

func TestMonthlyReport_Filter(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, _ := seedEmployee(t, svc, "26000")

	lines, err := svc.MonthlyReport(ctx, mar2025(), emp.ID)
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, mar2025(), lines[0].Month)

	lines, err = svc.MonthlyReport(ctx, mar2025(), "ghost")
	require.NoError(t, err)
	assert.NotNil(t, lines)
	assert.Empty(t, lines)
}

func TestPayslip(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(store.NewMemory())
	emp, ids := seedEmployee(t, svc, "26000", half(date(2025, 3, 3)), full(date(2025, 4, 1)))
	_, err := svc.ChangeLeaveStatus(ctx, emp.ID, ids[0], payroll.StatusApproved)
	require.NoError(t, err)

	slip, err := svc.Payslip(ctx, emp.ID, mar2025())
	require.NoError(t, err)
	assertMoney(t, "1000", slip.DailyRate)
	assertMoney(t, "500", slip.Summary.TotalDeduction)
	require.Len(t, slip.Leaves, 1, "only leaves dated in the month")
	assert.Equal(t, ids[0], slip.Leaves[0].ID)

	_, err = svc.Payslip(ctx, "ghost", mar2025())
	assert.True(t, payroll.IsNotFound(err))
}
