package booking

import (
	"context"
	"fmt"
	"time"

	"zapisnik/internal/model"
)

// OverlapStore answers range-overlap queries over active bookings.
type OverlapStore interface {
	ListOverlapping(ctx context.Context, q model.OverlapQuery) ([]model.Booking, error)
	ListActiveInRange(ctx context.Context, masterID int64, from, to time.Time) ([]model.Booking, error)
}

// ExceptionChecker reports whether a date has a schedule exception. Weekly
// pattern edits do not touch dates an exception already overrides.
type ExceptionChecker interface {
	HasException(ctx context.Context, masterID int64, date time.Time) (bool, error)
}

// Guard performs the application-level overlap check. It is the first of two
// enforcement layers; the storage constraint remains authoritative under
// concurrent writes.
type Guard struct {
	store      OverlapStore
	exceptions ExceptionChecker
}

// NewGuard creates a conflict guard.
func NewGuard(store OverlapStore, exceptions ExceptionChecker) *Guard {
	return &Guard{store: store, exceptions: exceptions}
}

// Check returns a ConflictError when committing a booking with the given
// interval would overlap an active booking of the same master or the same
// client. excludeID removes the booking being rescheduled from the scan.
func (g *Guard) Check(ctx context.Context, masterID, clientID int64, iv model.Interval, excludeID int64) error {
	if !iv.IsValid() {
		return &model.ValidationError{Field: "interval", Reason: "end must be after start"}
	}

	blocking, err := g.store.ListOverlapping(ctx, model.OverlapQuery{
		MasterID:         masterID,
		Interval:         iv,
		ExcludeBookingID: excludeID,
	})
	if err != nil {
		return fmt.Errorf("master overlap query: %w", err)
	}
	if clientID != 0 {
		byClient, err := g.store.ListOverlapping(ctx, model.OverlapQuery{
			ClientID:         clientID,
			Interval:         iv,
			ExcludeBookingID: excludeID,
		})
		if err != nil {
			return fmt.Errorf("client overlap query: %w", err)
		}
		blocking = append(blocking, byClient...)
	}
	if len(blocking) == 0 {
		return nil
	}

	conflicts := make([]model.Conflict, 0, len(blocking))
	seen := make(map[int64]bool, len(blocking))
	for i := range blocking {
		if seen[blocking[i].ID] {
			continue
		}
		seen[blocking[i].ID] = true
		conflicts = append(conflicts, blocking[i].Conflict())
	}
	return &model.ConflictError{Conflicts: conflicts}
}

// DayConflicts lists active bookings on a date that would fall outside the
// proposed windows for that date. An empty window list (day off) conflicts
// with every active booking that day.
func (g *Guard) DayConflicts(ctx context.Context, masterID int64, date time.Time, windows []model.Window) ([]model.Conflict, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location())
	bookings, err := g.store.ListActiveInRange(ctx, masterID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return nil, err
	}

	var conflicts []model.Conflict
	for i := range bookings {
		if !coveredByWindows(bookings[i].Interval(), windows, day) {
			conflicts = append(conflicts, bookings[i].Conflict())
		}
	}
	return conflicts, nil
}

// WindowConflicts scans active bookings within the horizon on dates matching
// the weekday and reports those the proposed windows would orphan. Dates with
// a schedule exception are skipped: the exception, not the weekly pattern,
// governs them.
func (g *Guard) WindowConflicts(ctx context.Context, masterID int64, day time.Weekday, windows []model.Window, from time.Time, horizonDays int) ([]model.Conflict, error) {
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, from.Location())

	var conflicts []model.Conflict
	for i := 0; i < horizonDays; i++ {
		date := start.AddDate(0, 0, i)
		if date.Weekday() != day {
			continue
		}
		overridden, err := g.exceptions.HasException(ctx, masterID, date)
		if err != nil {
			return nil, err
		}
		if overridden {
			continue
		}
		dayConflicts, err := g.DayConflicts(ctx, masterID, date, windows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, dayConflicts...)
	}
	return conflicts, nil
}

func coveredByWindows(iv model.Interval, windows []model.Window, day time.Time) bool {
	for _, w := range windows {
		anchored := w.On(day)
		if !iv.Start.Before(anchored.Start) && !iv.End.After(anchored.End) {
			return true
		}
	}
	return false
}
