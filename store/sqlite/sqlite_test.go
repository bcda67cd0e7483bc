package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payroll-engine/payroll"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testEmployee() payroll.Employee {
	created := time.Date(2025, 3, 1, 9, 30, 0, 0, time.UTC)
	return payroll.Employee{
		ID:         "emp-1",
		Name:       "Ada Lovelace",
		Email:      "ada@example.com",
		BaseSalary: decimal.RequireFromString("26000.50"),
		Leaves: []payroll.LeaveRecord{
			{ID: "l2", Date: time.Date(2025, 3, 12, 0, 0, 0, 0, time.UTC), Type: payroll.LeaveHalf, Status: payroll.StatusPending, Reason: "dentist", CreatedAt: created, UpdatedAt: created},
			{ID: "l1", Date: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC), Type: payroll.LeaveFull, Status: payroll.StatusApproved, CreatedAt: created, UpdatedAt: created},
		},
		Revision:  1,
		CreatedAt: created,
		UpdatedAt: created,
	}
}

func TestStore_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	emp := testEmployee()

	require.NoError(t, s.Create(ctx, emp))

	got, err := s.Get(ctx, emp.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, emp.Name, got.Name)
	assert.True(t, emp.BaseSalary.Equal(got.BaseSalary))
	assert.Equal(t, int64(1), got.Revision)
	require.Len(t, got.Leaves, 2)
	assert.Equal(t, "l2", got.Leaves[0].ID, "insertion order, not date order")
	assert.Equal(t, "dentist", got.Leaves[0].Reason)
	assert.True(t, emp.Leaves[1].Date.Equal(got.Leaves[1].Date))
	assert.True(t, emp.CreatedAt.Equal(got.CreatedAt))

	missing, err := s.Get(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStore_CreateDuplicate(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Create(ctx, testEmployee()))

	err := s.Create(ctx, testEmployee())
	assert.ErrorIs(t, err, payroll.ErrDuplicateEmployee)
}

func TestStore_SaveChecksRevision(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	emp := testEmployee()
	require.NoError(t, s.Create(ctx, emp))

	// GIVEN: a reconciled March aggregate
	emp.Leaves[0].Status = payroll.StatusApproved
	payroll.RecomputeMonth(&emp, payroll.MonthKey{Year: 2025, Month: time.March})

	// WHEN: saved at the loaded revision
	require.NoError(t, s.Save(ctx, emp, 1))

	// THEN: revision advanced and children replaced
	got, err := s.Get(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.Revision)
	assert.Equal(t, payroll.StatusApproved, got.Leaves[0].Status)
	require.Len(t, got.MonthlySalaryDetails, 1)
	agg := got.MonthlySalaryDetails[0]
	assert.Equal(t, 2, agg.TotalApprovedLeaves)
	assert.True(t, emp.MonthlySalaryDetails[0].CalculatedDeduction.Equal(agg.CalculatedDeduction))

	// A second writer still holding revision 1 loses.
	err = s.Save(ctx, emp, 1)
	assert.ErrorIs(t, err, payroll.ErrConcurrentModification)

	after, err := s.Get(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), after.Revision, "failed save leaves state untouched")
}

func TestStore_SaveUnknownEmployee(t *testing.T) {
	s := newTestStore(t)
	err := s.Save(context.Background(), testEmployee(), 1)
	assert.True(t, payroll.IsNotFound(err))
}

func TestStore_SaveRollsBackOnChildFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	emp := testEmployee()
	require.NoError(t, s.Create(ctx, emp))

	// Duplicate leave ids violate the primary key mid-transaction.
	bad := emp.Clone()
	bad.Leaves = append(bad.Leaves, bad.Leaves[0])
	require.Error(t, s.Save(ctx, bad, 1))

	got, err := s.Get(ctx, emp.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.Revision)
	assert.Len(t, got.Leaves, 2)
}

func TestStore_ListAndReset(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	b := testEmployee()
	b.ID, b.Name = "emp-2", "Boole"
	b.Leaves = nil
	require.NoError(t, s.Create(ctx, b))
	require.NoError(t, s.Create(ctx, testEmployee()))

	list, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "Ada Lovelace", list[0].Name)
	assert.Len(t, list[0].Leaves, 2)
	assert.Empty(t, list[1].Leaves)

	require.NoError(t, s.Reset(ctx))
	list, err = s.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}
