package points

import (
	"time"
)

// =============================================================================
// DATE - Calendar day (the unit snapshots are bucketed by)
// =============================================================================

const (
	DateLayout      = "2006-01-02"
	TimestampLayout = "2006-01-02 15:04:05"
)

// Date is a calendar day, held as midnight UTC so day arithmetic is exact.
type Date struct {
	Time time.Time
}

// Constructors
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return DateOf(t), nil
}

// Comparison
func (d Date) Before(other Date) bool { return d.Time.Before(other.Time) }
func (d Date) After(other Date) bool { return d.Time.After(other.Time) }
func (d Date) Equal(other Date) bool { return d.Time.Equal(other.Time) }
func (d Date) AfterOrEqual(other Date) bool { return !d.Before(other) }
func (d Date) SameMonth(other Date) bool {
	return d.Time.Year() == other.Time.Year() && d.Time.Month() == other.Time.Month()
}

// Arithmetic
func (d Date) AddDays(n int) Date { return Date{Time: d.Time.AddDate(0, 0, n)} }

// Properties
func (d Date) IsZero() bool { return d.Time.IsZero() }
func (d Date) String() string { return d.Time.Format(DateLayout) }

// DaysBetween returns the whole calendar days from `from` to `to`.
func DaysBetween(from, to Date) int { return int(to.Time.Sub(from.Time).Hours() / 24) }
