package ledger

import (
	"fmt"
	"time"
)

// =============================================================================
// DATE - Calendar-day granularity (all ledger movements are day-keyed)
// =============================================================================

// Date is a calendar day, normalized to midnight UTC. The ledger never
// tracks time-of-day: two movements on the same day are indistinguishable
// by time, only by record identity.
type Date struct {
	t time.Time
}

// Constructors

func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

func Today() Date {
	return DateOf(time.Now().UTC())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q (use YYYY-MM-DD): %w", s, err)
	}
	return DateOf(t), nil
}

// Comparison

func (d Date) Before(other Date) bool        { return d.t.Before(other.t) }
func (d Date) After(other Date) bool         { return d.t.After(other.t) }
func (d Date) Equal(other Date) bool         { return d.t.Equal(other.t) }
func (d Date) BeforeOrEqual(other Date) bool { return !d.After(other) }
func (d Date) AfterOrEqual(other Date) bool  { return !d.Before(other) }

// Arithmetic

func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) Prev() Date         { return d.AddDays(-1) }
func (d Date) Next() Date         { return d.AddDays(1) }

// Properties

func (d Date) IsZero() bool    { return d.t.IsZero() }
func (d Date) Time() time.Time { return d.t }
func (d Date) String() string  { return d.t.Format("2006-01-02") }

// DaysBetween returns the number of whole days from one date to another.
func DaysBetween(from, to Date) int {
	return int(to.t.Sub(from.t).Hours() / 24)
}

// Clock yields the current calendar day. Engine components take a Clock so
// tests can pin "today"; the zero value falls back to the wall clock.
type Clock func() Date

func (c Clock) today() Date {
	if c == nil {
		return Today()
	}
	return c()
}

// FixedClock returns a Clock frozen at the given day.
func FixedClock(d Date) Clock {
	return func() Date { return d }
}
