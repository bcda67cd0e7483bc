/*
store.go - Persistence contract for employee documents

PURPOSE:
  An Employee, its leave records and its monthly aggregates are stored and
  replaced as one document. The store never merges partial updates: Save writes
  the whole document or nothing.

OPTIMISTIC CONCURRENCY:
  Every document carries a revision counter. Save(emp, expected) succeeds only
  if the stored revision still equals expected, and stores expected+1. A stale
  writer gets ErrConcurrentModification and must reload and redo its change.

IMPLEMENTATIONS:
  - payroll/store/memory.go: in-memory, for tests and dev
  - store/sqlite/sqlite.go:  SQLite, one row per employee/leave/month + revision column
  - store/mongo/mongo.go:    MongoDB, embedded arrays + revision-filtered replace
*/
package payroll

import (
	"context"
	"time"
)

// EmployeeStore persists employee documents.
type EmployeeStore interface {
	// Create inserts a new employee. Returns ErrDuplicateEmployee if the id exists.
	Create(ctx context.Context, emp Employee) error

	// Get returns a copy of the employee, or (nil, nil) if it does not exist.
	Get(ctx context.Context, id string) (*Employee, error)

	// List returns all employees ordered by name.
	List(ctx context.Context) ([]Employee, error)

	// Save replaces the document if the stored revision equals expectedRevision.
	// The stored revision becomes expectedRevision+1.
	Save(ctx context.Context, emp Employee, expectedRevision int64) error
}

// Resetter is implemented by stores that can drop all data (demo scenarios).
type Resetter interface {
	Reset(ctx context.Context) error
}

// Locker serializes read-modify-write cycles on one employee. The revision
// check in Save stays authoritative; a Locker only reduces wasted retries.
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func
	// releases the lock and must be called exactly once.
	Lock(ctx context.Context, key string) (func(), error)
}

// SystemClock returns the current UTC time.
func SystemClock() time.Time { return time.Now().UTC() }
