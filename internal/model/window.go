package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Window is a half-open [Start, End) interval within a single day,
// expressed in minutes from midnight (local wall clock, HH:MM granularity).
// A window never spans midnight.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

const minutesPerDay = 24 * 60

// NewWindow builds a window from "HH:MM" boundaries.
func NewWindow(start, end string) (Window, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, err
	}
	w := Window{Start: s, End: e}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

// ParseClock parses "HH:MM" into minutes from midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, &ValidationError{Field: "time", Reason: fmt.Sprintf("invalid time format: %q", s)}
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, &ValidationError{Field: "time", Reason: fmt.Sprintf("invalid hour in %q", s)}
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, &ValidationError{Field: "time", Reason: fmt.Sprintf("invalid minute in %q", s)}
	}
	return hour*60 + minute, nil
}

// Validate checks structural invariants: end after start, both within the day.
func (w Window) Validate() error {
	if w.Start < 0 || w.End > minutesPerDay {
		return &ValidationError{Field: "window", Reason: fmt.Sprintf("window %s outside of day", w)}
	}
	if w.End <= w.Start {
		return &ValidationError{Field: "window", Reason: fmt.Sprintf("window end %s not after start %s", clockString(w.End), clockString(w.Start))}
	}
	return nil
}

// Duration returns the window length.
func (w Window) Duration() time.Duration {
	return time.Duration(w.End-w.Start) * time.Minute
}

// Contains reports whether the minute-of-day m falls inside [Start, End).
func (w Window) Contains(m int) bool {
	return m >= w.Start && m < w.End
}

// Overlaps reports whether two half-open windows intersect.
func (w Window) Overlaps(o Window) bool {
	return w.Start < o.End && o.Start < w.End
}

// Touches reports whether the windows overlap or share a boundary.
func (w Window) Touches(o Window) bool {
	return w.Start <= o.End && o.Start <= w.End
}

// On anchors the window to a calendar date in the given location,
// producing an absolute [start, end) interval.
func (w Window) On(date time.Time) Interval {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	return Interval{
		Start: day.Add(time.Duration(w.Start) * time.Minute),
		End:   day.Add(time.Duration(w.End) * time.Minute),
	}
}

func (w Window) String() string {
	return clockString(w.Start) + "-" + clockString(w.End)
}

func clockString(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}

// ValidateWindows checks that a window list is individually valid,
// sorted and pairwise disjoint.
func ValidateWindows(windows []Window) error {
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return err
		}
		if i > 0 && windows[i-1].End > w.Start {
			return &ValidationError{Field: "windows", Reason: fmt.Sprintf("windows %s and %s overlap or are unsorted", windows[i-1], w)}
		}
	}
	return nil
}
