package model

import "time"

// Master is a service provider whose calendar is being scheduled.
type Master struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Service is a bookable offering with base duration and price.
type Service struct {
	ID                  int64  `json:"id"`
	Name                string `json:"name"`
	Category            string `json:"category"`
	BasePrice           int64  `json:"base_price"` // minor currency units
	BaseDurationMinutes int    `json:"base_duration_minutes"`
	IsActive            bool   `json:"is_active"`
}

// MasterService links a master to a service they offer, with optional
// per-master duration/price overrides (zero means "use the base value").
type MasterService struct {
	MasterID        int64 `json:"master_id"`
	ServiceID       int64 `json:"service_id"`
	DurationMinutes int   `json:"duration_minutes"`
	Price           int64 `json:"price"`
}

// EffectiveDuration resolves the per-master override against the base service.
func (ms MasterService) EffectiveDuration(svc Service) int {
	if ms.DurationMinutes > 0 {
		return ms.DurationMinutes
	}
	return svc.BaseDurationMinutes
}

// EffectivePrice resolves the per-master override against the base service.
func (ms MasterService) EffectivePrice(svc Service) int64 {
	if ms.Price > 0 {
		return ms.Price
	}
	return svc.BasePrice
}

// WeeklyAvailability maps weekday (0=Sunday .. 6=Saturday, time.Weekday order)
// to the master's sorted, disjoint windows. A present weekday with an empty
// list is a day off.
type WeeklyAvailability struct {
	MasterID int64
	Days     map[time.Weekday][]Window
}

// WindowsFor returns the recurring windows for a weekday.
func (w WeeklyAvailability) WindowsFor(day time.Weekday) []Window {
	return w.Days[day]
}

// ScheduleException replaces the weekly pattern for one calendar date.
// An empty Windows list is an explicit day off.
type ScheduleException struct {
	MasterID int64
	Date     time.Time // date component only, local midnight
	Windows  []Window
}
