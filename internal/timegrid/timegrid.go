// Package timegrid provides the calendar arithmetic the cache keys on:
// mapping instants to their containing Monday-to-Sunday week window and
// converting between wire dates and times.
package timegrid

import (
	"fmt"
	"time"
)

// DateLayout is the calendar-date wire format.
const DateLayout = "2006-01-02"

// Window is an inclusive date range, midnight UTC on both ends.
type Window struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether the calendar date of t falls inside the window.
func (w Window) Contains(t time.Time) bool {
	day := Midnight(t)
	return !day.Before(w.Start) && !day.After(w.End)
}

// StartDate returns the window start formatted as a wire date.
func (w Window) StartDate() string { return w.Start.Format(DateLayout) }

// EndDate returns the window end formatted as a wire date.
func (w Window) EndDate() string { return w.End.Format(DateLayout) }

// Midnight truncates t to midnight UTC of its calendar date.
func Midnight(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// WeekOf returns the Monday-to-Sunday window containing t.
func WeekOf(t time.Time) Window {
	day := Midnight(t)
	offset := int(day.Weekday()) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	start := day.AddDate(0, 0, -offset)
	return Window{Start: start, End: start.AddDate(0, 0, 6)}
}

// WeekOfDate returns the week window containing the given wire date.
func WeekOfDate(date string) (Window, error) {
	day, err := ParseDate(date)
	if err != nil {
		return Window{}, err
	}
	return WeekOf(day), nil
}

// ParseDate parses a wire date into midnight UTC of that day.
func ParseDate(date string) (time.Time, error) {
	t, err := time.Parse(DateLayout, date)
	if err != nil {
		return time.Time{}, fmt.Errorf("timegrid: invalid date %q: %w", date, err)
	}
	return t.UTC(), nil
}

// FormatDate renders the calendar date of t in the wire format.
func FormatDate(t time.Time) string {
	return Midnight(t).Format(DateLayout)
}
