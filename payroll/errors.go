/*
errors.go - Error taxonomy for leave reconciliation

ERROR CATEGORIES:
  1. InvalidArgument - malformed ids, unsupported status/type, bad month. Not retried.
  2. NotFound        - employee or leave record absent. Not retried.
  3. Internal        - persistence failure or exhausted retries. Safe to retry by the
                       caller: a failed attempt never leaves a partial write behind.

ErrConcurrentModification is the store-level signal of a stale revision. The
service retries on it internally; it only reaches callers wrapped in ErrInternal.

USAGE:
  if payroll.IsNotFound(err) { ... 404 ... }
  if payroll.IsClientError(err) { ... 400 ... }
*/
package payroll

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is returned for missing or malformed input.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotFound is returned when an employee or leave record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInternal wraps persistence failures and unexpected conditions.
	ErrInternal = errors.New("internal error")

	// ErrConcurrentModification is returned by a store when the expected
	// revision no longer matches the stored one.
	ErrConcurrentModification = errors.New("concurrent modification detected")

	// ErrDuplicateEmployee is returned when creating an employee whose id exists.
	ErrDuplicateEmployee = errors.New("employee already exists")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// NotFoundError names the missing record.
type NotFoundError struct {
	Kind string // "employee" or "leave"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) || errors.Is(err, ErrDuplicateEmployee)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func internal(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrInternal, op, err)
}
