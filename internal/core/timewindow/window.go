package timewindow

import (
	"fmt"
	"time"
	_ "time/tzdata" // fixed-zone windows must not depend on host zoneinfo
)

// Period types a task or snapshot can be bound to.
const (
	Daily   = "daily"
	Weekly  = "weekly"
	Monthly = "monthly"
)

// DayLayout is the canonical day key format ("2006-01-02").
const DayLayout = "2006-01-02"

// Window computes calendar boundaries in one fixed zone. Every "today",
// "this week" and "this month" in the engine goes through a Window, never
// through wall-clock UTC.
type Window struct {
	loc *time.Location
}

// New returns a Window for the given zone. A nil zone means UTC.
func New(loc *time.Location) Window {
	if loc == nil {
		loc = time.UTC
	}
	return Window{loc: loc}
}

// Load resolves an IANA zone name (e.g. "Europe/Istanbul") into a Window.
func Load(zone string) (Window, error) {
	if zone == "" {
		return New(time.UTC), nil
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return Window{}, fmt.Errorf("invalid timezone %q: %w", zone, err)
	}
	return New(loc), nil
}

// Location returns the zone the window calculates in.
func (w Window) Location() *time.Location {
	if w.loc == nil {
		return time.UTC
	}
	return w.loc
}

// DayStart returns local midnight of the day containing t.
func (w Window) DayStart(t time.Time) time.Time {
	lt := t.In(w.Location())
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, w.Location())
}

// DayKey returns the local calendar day of t as "2006-01-02".
func (w Window) DayKey(t time.Time) string {
	return t.In(w.Location()).Format(DayLayout)
}

// WeekStart returns local Monday midnight of the week containing t.
func (w Window) WeekStart(t time.Time) time.Time {
	day := w.DayStart(t)
	offset := (int(day.Weekday()) + 6) % 7 // Monday = 0
	return day.AddDate(0, 0, -offset)
}

// MonthStart returns local midnight of the first day of t's month.
func (w Window) MonthStart(t time.Time) time.Time {
	lt := t.In(w.Location())
	return time.Date(lt.Year(), lt.Month(), 1, 0, 0, 0, 0, w.Location())
}

// Period returns the [start, end) bounds of the period of the given type
// containing t.
func (w Window) Period(periodType string, t time.Time) (time.Time, time.Time, error) {
	switch periodType {
	case Daily:
		start := w.DayStart(t)
		return start, start.AddDate(0, 0, 1), nil
	case Weekly:
		start := w.WeekStart(t)
		return start, start.AddDate(0, 0, 7), nil
	case Monthly:
		start := w.MonthStart(t)
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, fmt.Errorf("unsupported period type %q", periodType)
	}
}

// PreviousPeriodStart returns the start of the period before the one containing t.
func (w Window) PreviousPeriodStart(periodType string, t time.Time) (time.Time, error) {
	start, _, err := w.Period(periodType, t)
	if err != nil {
		return time.Time{}, err
	}
	prev, _, err := w.Period(periodType, start.Add(-time.Nanosecond))
	return prev, err
}

// DaysBetween returns the number of local calendar days from a to b.
// Same day is 0, yesterday→today is 1. DST-safe because it compares dates.
func (w Window) DaysBetween(a, b time.Time) int {
	da := w.DayStart(a)
	db := w.DayStart(b)
	ya, ma, dda := da.Date()
	yb, mb, ddb := db.Date()
	ua := time.Date(ya, ma, dda, 0, 0, 0, 0, time.UTC)
	ub := time.Date(yb, mb, ddb, 0, 0, 0, 0, time.UTC)
	return int(ub.Sub(ua).Hours() / 24)
}

// ParseDay parses a "2006-01-02" day key as local midnight.
func (w Window) ParseDay(key string) (time.Time, error) {
	t, err := time.ParseInLocation(DayLayout, key, w.Location())
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid day %q: %w", key, err)
	}
	return t, nil
}
