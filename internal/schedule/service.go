// Package schedule resolves and edits a master's availability: the recurring
// weekly pattern plus date exceptions that override it for a single day.
package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"zapisnik/internal/model"
	"zapisnik/internal/notify"
)

// Store persists weekly windows and date exceptions.
type Store interface {
	WeekdayWindows(ctx context.Context, masterID int64, day time.Weekday) ([]model.Window, error)
	ReplaceWeekdayWindows(ctx context.Context, masterID int64, day time.Weekday, windows []model.Window) error
	Exception(ctx context.Context, masterID int64, date time.Time) (*model.ScheduleException, error)
	SetException(ctx context.Context, masterID int64, date time.Time, windows []model.Window) error
	ClearException(ctx context.Context, masterID int64, date time.Time) error
}

// ConflictFinder locates active bookings that a schedule edit would orphan.
type ConflictFinder interface {
	WindowConflicts(ctx context.Context, masterID int64, day time.Weekday, windows []model.Window, from time.Time, horizonDays int) ([]model.Conflict, error)
	DayConflicts(ctx context.Context, masterID int64, date time.Time, windows []model.Window) ([]model.Conflict, error)
}

// EventPublisher hands events to the notification layer.
type EventPublisher interface {
	Publish(ev notify.Event)
}

// Service owns availability resolution and guarded mutations.
type Service struct {
	store       Store
	guard       ConflictFinder
	bus         EventPublisher
	horizonDays int
	now         func() time.Time
	logger      zerolog.Logger
}

// NewService creates an availability service. horizonDays bounds conflict
// scans for recurring-pattern edits.
func NewService(store Store, guard ConflictFinder, horizonDays int, logger zerolog.Logger) *Service {
	if horizonDays <= 0 {
		horizonDays = 365
	}
	return &Service{
		store:       store,
		guard:       guard,
		horizonDays: horizonDays,
		now:         time.Now,
		logger:      logger.With().Str("component", "schedule").Logger(),
	}
}

// AttachBus enables notifications for rejected schedule edits.
func (s *Service) AttachBus(bus EventPublisher) {
	s.bus = bus
}

// EffectiveWindows returns the bookable windows for a date. A date exception
// is authoritative when present (including an empty list meaning day off);
// otherwise the weekly pattern for the weekday applies.
func (s *Service) EffectiveWindows(ctx context.Context, masterID int64, date time.Time) ([]model.Window, error) {
	exc, err := s.store.Exception(ctx, masterID, date)
	if err != nil {
		return nil, fmt.Errorf("load exception: %w", err)
	}
	if exc != nil {
		return exc.Windows, nil
	}
	windows, err := s.store.WeekdayWindows(ctx, masterID, date.Weekday())
	if err != nil {
		return nil, fmt.Errorf("load weekly windows: %w", err)
	}
	return windows, nil
}

// SetWeekdayWindows replaces the full window list for a weekday. The write is
// rejected with a ConflictError when an existing active booking within the
// horizon would fall outside the new windows.
func (s *Service) SetWeekdayWindows(ctx context.Context, masterID int64, day time.Weekday, windows []model.Window) error {
	if err := model.ValidateWindows(windows); err != nil {
		return err
	}
	conflicts, err := s.guard.WindowConflicts(ctx, masterID, day, windows, s.now(), s.horizonDays)
	if err != nil {
		return fmt.Errorf("scan conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		return &model.ConflictError{Conflicts: conflicts}
	}
	if err := s.store.ReplaceWeekdayWindows(ctx, masterID, day, windows); err != nil {
		return err
	}
	s.logger.Info().Int64("master_id", masterID).Stringer("weekday", day).Int("windows", len(windows)).Msg("weekly windows replaced")
	return nil
}

// InsertWeekdayWindow adds a window to a weekday, coalescing overlapping or
// touching windows. Widening availability cannot orphan bookings, so no
// conflict scan is needed.
func (s *Service) InsertWeekdayWindow(ctx context.Context, masterID int64, day time.Weekday, w model.Window) ([]model.Window, error) {
	existing, err := s.store.WeekdayWindows(ctx, masterID, day)
	if err != nil {
		return nil, err
	}
	updated, err := InsertWindow(existing, w)
	if err != nil {
		return nil, err
	}
	if err := s.store.ReplaceWeekdayWindows(ctx, masterID, day, updated); err != nil {
		return nil, err
	}
	return updated, nil
}

// RemoveWeekdayWindow removes the window at index. Rejected with a
// ConflictError when an active booking's start time falls inside that window
// on any matching day within the horizon.
func (s *Service) RemoveWeekdayWindow(ctx context.Context, masterID int64, day time.Weekday, index int) ([]model.Window, error) {
	existing, err := s.store.WeekdayWindows(ctx, masterID, day)
	if err != nil {
		return nil, err
	}
	updated, err := RemoveWindowAt(existing, index)
	if err != nil {
		return nil, err
	}
	conflicts, err := s.guard.WindowConflicts(ctx, masterID, day, updated, s.now(), s.horizonDays)
	if err != nil {
		return nil, fmt.Errorf("scan conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		return nil, &model.ConflictError{Conflicts: conflicts}
	}
	if err := s.store.ReplaceWeekdayWindows(ctx, masterID, day, updated); err != nil {
		return nil, err
	}
	s.logger.Info().Int64("master_id", masterID).Stringer("weekday", day).Stringer("window", existing[index]).Msg("window removed")
	return updated, nil
}

// SetException replaces the weekly pattern for one date. An empty window list
// marks the date as a day off. Rejected with a ConflictError listing the
// blocking bookings when active bookings on that date would fall outside the
// new windows; the caller must cancel them explicitly first — the edit never
// cancels bookings itself.
func (s *Service) SetException(ctx context.Context, masterID int64, date time.Time, windows []model.Window) error {
	if err := model.ValidateWindows(windows); err != nil {
		return err
	}
	conflicts, err := s.guard.DayConflicts(ctx, masterID, date, windows)
	if err != nil {
		return fmt.Errorf("scan conflicts: %w", err)
	}
	if len(conflicts) > 0 {
		if s.bus != nil {
			s.bus.Publish(notify.Event{Kind: notify.KindDayClearBlocked, BookingID: conflicts[0].BookingID, Recipient: notify.RoleMaster})
		}
		return &model.ConflictError{Conflicts: conflicts}
	}
	if err := s.store.SetException(ctx, masterID, date, windows); err != nil {
		return err
	}
	s.logger.Info().
		Int64("master_id", masterID).
		Str("date", date.Format("2006-01-02")).
		Int("windows", len(windows)).
		Msg("schedule exception set")
	return nil
}

// SetDayOff marks a date as closed. Same conflict rules as SetException.
func (s *Service) SetDayOff(ctx context.Context, masterID int64, date time.Time) error {
	return s.SetException(ctx, masterID, date, []model.Window{})
}

// ClearException removes a date override; the weekly pattern applies again.
// Restoring availability cannot orphan bookings.
func (s *Service) ClearException(ctx context.Context, masterID int64, date time.Time) error {
	return s.store.ClearException(ctx, masterID, date)
}
