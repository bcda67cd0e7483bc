/*
Package sqlite provides a SQLite-backed payroll.EmployeeStore.

PURPOSE:
  Persists the employee document (employee row + leave records + monthly
  salary details) across three tables. A document is always written inside one
  SQL transaction, so a reader never observes a leave status without the
  aggregate that was computed for it.

OPTIMISTIC CONCURRENCY:
  employees.revision is the document version. Save runs

    UPDATE employees SET ..., revision = revision + 1
    WHERE id = ? AND revision = ?

  and treats zero affected rows as a conflict (or not-found when the id is
  gone). Child rows are replaced only after the revision check succeeded.

KEY TABLES:
  employees:              one row per employee, base salary as decimal TEXT
  leave_records:          child rows, seq keeps insertion order
  monthly_salary_details: child rows, UNIQUE(employee_id, year, month)

CONCURRENCY:
  Uses sync.RWMutex for thread-safety and a single open connection, so
  ":memory:" databases behave like one shared database.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  - Multiple readers don't block
  - Single writer at a time
  - Better crash recovery

USAGE:
  store, err := sqlite.New("./data/payroll.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := payroll.NewService(store, logger)

SEE ALSO:
  - payroll/store.go: Interface definitions
  - payroll/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payroll-engine/payroll"
)

// Store implements payroll.EmployeeStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT,
		base_salary TEXT NOT NULL,
		revision INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_employees_name ON employees(name);

	-- Leave records, in the order they were applied for
	CREATE TABLE IF NOT EXISTS leave_records (
		id TEXT NOT NULL,
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		leave_date TEXT NOT NULL,
		leave_type TEXT NOT NULL CHECK (leave_type IN ('full', 'half')),
		status TEXT NOT NULL CHECK (status IN ('pending', 'approved', 'rejected')),
		reason TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_leave_records_employee_seq
		ON leave_records(employee_id, seq);

	-- One aggregate per employee per calendar month
	CREATE TABLE IF NOT EXISTS monthly_salary_details (
		employee_id TEXT NOT NULL REFERENCES employees(id) ON DELETE CASCADE,
		seq INTEGER NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL CHECK (month BETWEEN 1 AND 12),
		total_approved_leaves INTEGER NOT NULL,
		calculated_deduction TEXT NOT NULL,
		final_monthly_salary TEXT NOT NULL,
		UNIQUE (employee_id, year, month)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// EMPLOYEE STORE (payroll.EmployeeStore interface)
// =============================================================================

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Create inserts a new employee document.
func (s *Store) Create(ctx context.Context, emp payroll.Employee) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if emp.Revision == 0 {
		emp.Revision = 1
	}

	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO employees (id, name, email, base_salary, revision, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			emp.ID, emp.Name, emp.Email, emp.BaseSalary.String(), emp.Revision,
			formatTime(emp.CreatedAt), formatTime(emp.UpdatedAt),
		)
		if err != nil {
			if isUniqueViolation(err) {
				return payroll.ErrDuplicateEmployee
			}
			return fmt.Errorf("insert employee: %w", err)
		}
		return writeChildren(ctx, tx, emp)
	})
}

// Get retrieves an employee document by ID. Returns (nil, nil) if absent.
func (s *Store) Get(ctx context.Context, id string) (*payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	emp, err := s.loadEmployee(ctx, s.db, id)
	if err != nil || emp == nil {
		return nil, err
	}
	if err := loadChildren(ctx, s.db, emp); err != nil {
		return nil, err
	}
	return emp, nil
}

// List returns all employee documents ordered by name.
func (s *Store) List(ctx context.Context) ([]payroll.Employee, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, email, base_salary, revision, created_at, updated_at
		FROM employees ORDER BY name, id`)
	if err != nil {
		return nil, err
	}

	employees := []payroll.Employee{}
	for rows.Next() {
		emp, err := scanEmployee(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		employees = append(employees, *emp)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	// Children are loaded after the cursor is closed: the pool has one connection.
	for i := range employees {
		if err := loadChildren(ctx, s.db, &employees[i]); err != nil {
			return nil, err
		}
	}
	return employees, nil
}

// Save replaces the employee document if the stored revision matches.
func (s *Store) Save(ctx context.Context, emp payroll.Employee, expectedRevision int64) error {
	if err := emp.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE employees
			SET name = ?, email = ?, base_salary = ?, updated_at = ?, revision = revision + 1
			WHERE id = ? AND revision = ?`,
			emp.Name, emp.Email, emp.BaseSalary.String(), formatTime(emp.UpdatedAt),
			emp.ID, expectedRevision,
		)
		if err != nil {
			return fmt.Errorf("update employee: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			var exists int
			err := tx.QueryRowContext(ctx, "SELECT 1 FROM employees WHERE id = ?", emp.ID).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return &payroll.NotFoundError{Kind: "employee", ID: emp.ID}
			}
			if err != nil {
				return err
			}
			return payroll.ErrConcurrentModification
		}

		for _, table := range []string{"leave_records", "monthly_salary_details"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE employee_id = ?", emp.ID); err != nil {
				return fmt.Errorf("clear %s: %w", table, err)
			}
		}
		return writeChildren(ctx, tx, emp)
	})
}

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"monthly_salary_details", "leave_records", "employees"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// withTx executes fn within a database transaction.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	if err := fn(sqlTx); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// ROW MAPPING
// =============================================================================

type scanner interface {
	Scan(dest ...any) error
}

func scanEmployee(row scanner) (*payroll.Employee, error) {
	var (
		emp                  payroll.Employee
		email                sql.NullString
		salary               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&emp.ID, &emp.Name, &email, &salary, &emp.Revision, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	base, err := decimal.NewFromString(salary)
	if err != nil {
		return nil, fmt.Errorf("employee %s: bad base_salary %q: %w", emp.ID, salary, err)
	}
	emp.Email = email.String
	emp.BaseSalary = base
	emp.CreatedAt = parseTime(createdAt)
	emp.UpdatedAt = parseTime(updatedAt)
	emp.Leaves = []payroll.LeaveRecord{}
	return &emp, nil
}

func (s *Store) loadEmployee(ctx context.Context, q querier, id string) (*payroll.Employee, error) {
	row := q.QueryRowContext(ctx, `
		SELECT id, name, email, base_salary, revision, created_at, updated_at
		FROM employees WHERE id = ?`, id)
	emp, err := scanEmployee(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return emp, err
}

func loadChildren(ctx context.Context, q querier, emp *payroll.Employee) error {
	rows, err := q.QueryContext(ctx, `
		SELECT id, leave_date, leave_type, status, reason, created_at, updated_at
		FROM leave_records WHERE employee_id = ? ORDER BY seq`, emp.ID)
	if err != nil {
		return err
	}
	for rows.Next() {
		var (
			l                    payroll.LeaveRecord
			day, lt, st          string
			reason               sql.NullString
			createdAt, updatedAt string
		)
		if err := rows.Scan(&l.ID, &day, &lt, &st, &reason, &createdAt, &updatedAt); err != nil {
			rows.Close()
			return err
		}
		l.Date, _ = time.Parse("2006-01-02", day)
		l.Type = payroll.LeaveType(lt)
		l.Status = payroll.LeaveStatus(st)
		l.Reason = reason.String
		l.CreatedAt = parseTime(createdAt)
		l.UpdatedAt = parseTime(updatedAt)
		emp.Leaves = append(emp.Leaves, l)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return err
	}
	rows.Close()

	rows, err = q.QueryContext(ctx, `
		SELECT year, month, total_approved_leaves, calculated_deduction, final_monthly_salary
		FROM monthly_salary_details WHERE employee_id = ? ORDER BY seq`, emp.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a                 payroll.MonthlyAggregate
			month             int
			deduction, salary string
		)
		if err := rows.Scan(&a.Year, &month, &a.TotalApprovedLeaves, &deduction, &salary); err != nil {
			return err
		}
		a.Month = time.Month(month)
		if a.CalculatedDeduction, err = decimal.NewFromString(deduction); err != nil {
			return fmt.Errorf("employee %s: bad deduction %q: %w", emp.ID, deduction, err)
		}
		if a.FinalMonthlySalary, err = decimal.NewFromString(salary); err != nil {
			return fmt.Errorf("employee %s: bad final salary %q: %w", emp.ID, salary, err)
		}
		emp.MonthlySalaryDetails = append(emp.MonthlySalaryDetails, a)
	}
	return rows.Err()
}

func writeChildren(ctx context.Context, tx *sql.Tx, emp payroll.Employee) error {
	for i, l := range emp.Leaves {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO leave_records
				(id, employee_id, seq, leave_date, leave_type, status, reason, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			l.ID, emp.ID, i, l.Date.UTC().Format("2006-01-02"), string(l.Type), string(l.Status),
			l.Reason, formatTime(l.CreatedAt), formatTime(l.UpdatedAt),
		)
		if err != nil {
			return fmt.Errorf("insert leave %s: %w", l.ID, err)
		}
	}
	for i, a := range emp.MonthlySalaryDetails {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO monthly_salary_details
				(employee_id, seq, year, month, total_approved_leaves, calculated_deduction, final_monthly_salary)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			emp.ID, i, a.Year, int(a.Month), a.TotalApprovedLeaves,
			a.CalculatedDeduction.String(), a.FinalMonthlySalary.String(),
		)
		if err != nil {
			return fmt.Errorf("insert salary details %s: %w", a.Key(), err)
		}
	}
	return nil
}

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return false
	}
	return se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey || se.ExtendedCode == sqlite3.ErrConstraintUnique
}

var (
	_ payroll.EmployeeStore = (*Store)(nil)
	_ payroll.Resetter      = (*Store)(nil)
)
