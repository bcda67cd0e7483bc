// Package store provides an in-memory payroll.EmployeeStore.
package store

import (
	"context"
	"sync"

	"github.com/warp/payroll-engine/payroll"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps employee documents in a map. Callers always receive deep
// copies, so mutating a returned Employee never changes stored state.
type Memory struct {
	mu        sync.RWMutex
	employees map[string]payroll.Employee
}

func NewMemory() *Memory {
	return &Memory{employees: make(map[string]payroll.Employee)}
}

func (m *Memory) Create(_ context.Context, emp payroll.Employee) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.employees[emp.ID]; exists {
		return payroll.ErrDuplicateEmployee
	}
	if emp.Revision == 0 {
		emp.Revision = 1
	}
	m.employees[emp.ID] = emp.Clone()
	return nil
}

func (m *Memory) Get(_ context.Context, id string) (*payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	emp, ok := m.employees[id]
	if !ok {
		return nil, nil
	}
	out := emp.Clone()
	return &out, nil
}

func (m *Memory) List(_ context.Context) ([]payroll.Employee, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]payroll.Employee, 0, len(m.employees))
	for _, emp := range m.employees {
		out = append(out, emp.Clone())
	}
	payroll.SortEmployees(out)
	return out, nil
}

// Save replaces the document when the stored revision matches (compare-and-swap).
func (m *Memory) Save(_ context.Context, emp payroll.Employee, expectedRevision int64) error {
	if err := emp.Validate(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.employees[emp.ID]
	if !ok {
		return &payroll.NotFoundError{Kind: "employee", ID: emp.ID}
	}
	if current.Revision != expectedRevision {
		return payroll.ErrConcurrentModification
	}
	emp.Revision = expectedRevision + 1
	m.employees[emp.ID] = emp.Clone()
	return nil
}

// Reset drops every employee.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.employees = make(map[string]payroll.Employee)
	return nil
}

var (
	_ payroll.EmployeeStore = (*Memory)(nil)
	_ payroll.Resetter      = (*Memory)(nil)
)
