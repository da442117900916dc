package capacity

import (
	"fmt"
	"math"
	"time"
)

// =============================================================================
// DATES - day-granular time handling
// =============================================================================

// DateLayout is the wire format for planned dates.
const DateLayout = "2006-01-02"

// Day truncates t to midnight UTC of its calendar date.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Date builds a day-granular time.
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses YYYY-MM-DD. Empty input yields nil without error.
func ParseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, &InvalidValueError{Kind: "date", Value: s, Err: ErrInvalidValue}
	}
	return &t, nil
}

// FormatDate renders an optional date, empty when nil.
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}

// DaysBetween counts whole days from one date to another.
func DaysBetween(from, to time.Time) int {
	return int(Day(to).Sub(Day(from)).Hours() / 24)
}

// =============================================================================
// WINDOW - inclusive date interval
// =============================================================================

// Window is an inclusive [Start, End] interval of calendar days. A
// point-in-time snapshot is a window where Start equals End.
type Window struct {
	Start time.Time
	End   time.Time
}

// NewWindow normalizes both ends to days and rejects End before Start.
func NewWindow(start, end time.Time) (Window, error) {
	s, e := Day(start), Day(end)
	if e.Before(s) {
		return Window{}, &WindowError{Start: s, End: e}
	}
	return Window{Start: s, End: e}, nil
}

// InstantWindow is the degenerate window for a single day.
func InstantWindow(t time.Time) Window {
	d := Day(t)
	return Window{Start: d, End: d}
}

// WindowFromWeeks spans whole weeks starting on start. Weeks below one are
// treated as one.
func WindowFromWeeks(start time.Time, weeks int) Window {
	if weeks < 1 {
		weeks = 1
	}
	s := Day(start)
	return Window{Start: s, End: s.AddDate(0, 0, weeks*7-1)}
}

// Contains reports whether t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	d := Day(t)
	return !d.Before(w.Start) && !d.After(w.End)
}

// Overlaps reports whether two windows share at least one day.
func (w Window) Overlaps(o Window) bool {
	return !w.End.Before(o.Start) && !o.End.Before(w.Start)
}

// Intersect returns the shared days, if any.
func (w Window) Intersect(o Window) (Window, bool) {
	if !w.Overlaps(o) {
		return Window{}, false
	}
	start, end := w.Start, w.End
	if o.Start.After(start) {
		start = o.Start
	}
	if o.End.Before(end) {
		end = o.End
	}
	return Window{Start: start, End: end}, true
}

// Days counts the days in the window, both ends included.
func (w Window) Days() int {
	return DaysBetween(w.Start, w.End) + 1
}

// Weeks is the window length rounded up to whole weeks.
func (w Window) Weeks() int {
	return int(math.Ceil(float64(w.Days()) / 7))
}

func (w Window) String() string {
	return "[" + w.Start.Format(DateLayout) + ", " + w.End.Format(DateLayout) + "]"
}

// =============================================================================
// ISO WEEKS - used by the governance alert
// =============================================================================

// WeekKey renders the ISO week of t as "2025-W07".
func WeekKey(t time.Time) string {
	year, week := t.ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// WeekKeys lists every ISO week touched by the window, in order.
func (w Window) WeekKeys() []string {
	cursor := mondayOf(w.Start)
	last := mondayOf(w.End)
	var keys []string
	for !cursor.After(last) {
		keys = append(keys, WeekKey(cursor))
		cursor = cursor.AddDate(0, 0, 7)
	}
	return keys
}

func mondayOf(t time.Time) time.Time {
	offset := (int(t.Weekday()) + 6) % 7
	return Day(t).AddDate(0, 0, -offset)
}
