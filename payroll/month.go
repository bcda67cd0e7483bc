package payroll

import (
	"fmt"
	"time"
)

// =============================================================================
// MONTH KEY - (month, year) identity of a monthly aggregate
// =============================================================================

// MonthKey identifies one calendar month. Months are always derived in UTC so
// the month a leave counts against never depends on the caller's time zone.
type MonthKey struct {
	Year  int
	Month time.Month
}

// NewMonthKey validates a month in [1..12] and a four-digit-or-less year.
func NewMonthKey(month, year int) (MonthKey, error) {
	if month < 1 || month > 12 {
		return MonthKey{}, fmt.Errorf("%w: month must be between 1 and 12, got %d", ErrInvalidArgument, month)
	}
	if year < 1 || year > 9999 {
		return MonthKey{}, fmt.Errorf("%w: year out of range: %d", ErrInvalidArgument, year)
	}
	return MonthKey{Year: year, Month: time.Month(month)}, nil
}

// MonthOf returns the UTC calendar month containing t.
func MonthOf(t time.Time) MonthKey {
	u := t.UTC()
	return MonthKey{Year: u.Year(), Month: u.Month()}
}

func (k MonthKey) Start() time.Time {
	return time.Date(k.Year, k.Month, 1, 0, 0, 0, 0, time.UTC)
}

// End returns the last calendar day of the month.
func (k MonthKey) End() time.Time {
	return k.Start().AddDate(0, 1, -1)
}

func (k MonthKey) Next() MonthKey { return MonthOf(k.Start().AddDate(0, 1, 0)) }
func (k MonthKey) Prev() MonthKey { return MonthOf(k.Start().AddDate(0, -1, 0)) }

func (k MonthKey) String() string { return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month)) }

// ParseDate parses a YYYY-MM-DD calendar day as UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q (use YYYY-MM-DD)", ErrInvalidArgument, s)
	}
	return d, nil
}

// Day truncates t to its UTC calendar day.
func Day(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}
