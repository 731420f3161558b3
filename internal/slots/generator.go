// Package slots computes bookable start times from a master's effective
// availability and existing active bookings.
package slots

import (
	"context"
	"fmt"
	"time"

	"zapisnik/internal/model"
)

// AvailabilitySource resolves a master's effective windows for a date.
type AvailabilitySource interface {
	EffectiveWindows(ctx context.Context, masterID int64, date time.Time) ([]model.Window, error)
}

// BusyLister lists intervals held by active bookings.
type BusyLister interface {
	ActiveIntervals(ctx context.Context, masterID int64, from, to time.Time) ([]model.Interval, error)
}

// Config holds generation parameters.
type Config struct {
	// Step is the spacing between candidate start times.
	Step time.Duration
	// SameDayLead excludes candidates starting sooner than now+lead today.
	SameDayLead time.Duration
	// MaxDaysAhead bounds how far into the future slots are generated.
	MaxDaysAhead int
}

// DefaultConfig mirrors the configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		Step:         15 * time.Minute,
		SameDayLead:  0,
		MaxDaysAhead: 365,
	}
}

// Generator produces candidate start times. Generation is a pure function of
// current schedule and booking state: the sequence is finite, chronological
// and restartable.
type Generator struct {
	avail AvailabilitySource
	busy  BusyLister
	cfg   Config
	now   func() time.Time
}

// NewGenerator creates a slot generator.
func NewGenerator(avail AvailabilitySource, busy BusyLister, cfg Config) *Generator {
	if cfg.Step <= 0 {
		cfg.Step = 15 * time.Minute
	}
	if cfg.MaxDaysAhead <= 0 {
		cfg.MaxDaysAhead = 365
	}
	return &Generator{avail: avail, busy: busy, cfg: cfg, now: time.Now}
}

// Generate returns candidate start times for a booking of the given total
// duration, scanning horizonDays calendar days from `from`. The horizon is
// clamped to MaxDaysAhead counted from today.
func (g *Generator) Generate(ctx context.Context, masterID int64, duration time.Duration, from time.Time, horizonDays int) ([]time.Time, error) {
	if duration <= 0 {
		return nil, &model.ValidationError{Field: "duration", Reason: "must be positive"}
	}
	if horizonDays <= 0 {
		horizonDays = g.cfg.MaxDaysAhead
	}

	now := g.now()
	latest := dateOnly(now).AddDate(0, 0, g.cfg.MaxDaysAhead)

	var out []time.Time
	day := dateOnly(from)
	for i := 0; i < horizonDays; i++ {
		date := day.AddDate(0, 0, i)
		if date.After(latest) {
			break
		}
		daySlots, err := g.GenerateDay(ctx, masterID, duration, date)
		if err != nil {
			return nil, err
		}
		out = append(out, daySlots...)
	}
	return out, nil
}

// GenerateDay returns candidate start times for one calendar date. A day
// whose windows are all shorter than the duration yields zero slots, not an
// error; a window exactly equal to the duration yields one slot at its start.
func (g *Generator) GenerateDay(ctx context.Context, masterID int64, duration time.Duration, date time.Time) ([]time.Time, error) {
	windows, err := g.avail.EffectiveWindows(ctx, masterID, date)
	if err != nil {
		return nil, fmt.Errorf("effective windows: %w", err)
	}
	if len(windows) == 0 {
		return nil, nil
	}

	day := dateOnly(date)
	busy, err := g.busy.ActiveIntervals(ctx, masterID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, fmt.Errorf("active intervals: %w", err)
	}

	now := g.now()
	var earliest time.Time
	if day.Equal(dateOnly(now)) {
		earliest = now.Add(g.cfg.SameDayLead)
	}

	var out []time.Time
	for _, w := range windows {
		iv := w.On(day)
		for start := iv.Start; !start.Add(duration).After(iv.End); start = start.Add(g.cfg.Step) {
			if !earliest.IsZero() && start.Before(earliest) {
				continue
			}
			candidate := model.Interval{Start: start, End: start.Add(duration)}
			if overlapsAny(candidate, busy) {
				continue
			}
			out = append(out, start)
		}
	}
	return out, nil
}

func overlapsAny(iv model.Interval, busy []model.Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
