package model

import "time"

// Booking is the central mutable entity: a client's claim on a master's time.
// A row in status Reserved doubles as the checkout hold; the overlap invariant
// keeps a second client from reserving the same slot while the hold lives.
type Booking struct {
	ID           int64     `json:"id"`
	Ref          string    `json:"ref"` // opaque public reference (uuid)
	MasterID     int64     `json:"master_id"`
	ClientID     int64     `json:"client_id"`
	ClientName   string    `json:"client_name"`
	Items        []LineItem `json:"items"`
	StartsAt     time.Time `json:"starts_at"`
	EndsAt       time.Time `json:"ends_at"`
	Status       Status    `json:"status"`
	MasterNote   string    `json:"master_note,omitempty"`
	ReminderSent bool      `json:"reminder_sent"`
	FeedbackSent bool      `json:"feedback_sent"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
	Version      int64     `json:"version"`
}

// LineItem is one ordered service entry on a booking. Duration and price are
// snapshotted at reservation time from the master's per-service overrides.
type LineItem struct {
	ServiceID       int64  `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"` // minor currency units
}

// Interval returns the booking's half-open [StartsAt, EndsAt) range.
func (b *Booking) Interval() Interval {
	return Interval{Start: b.StartsAt, End: b.EndsAt}
}

// OverlapsWith reports whether two bookings intersect in time.
func (b *Booking) OverlapsWith(other *Booking) bool {
	return b.Interval().Overlaps(other.Interval())
}

// Duration returns the booked length.
func (b *Booking) Duration() time.Duration {
	return b.EndsAt.Sub(b.StartsAt)
}

// TotalDuration sums the line item durations.
func (b *Booking) TotalDuration() time.Duration {
	var total time.Duration
	for _, it := range b.Items {
		total += time.Duration(it.DurationMinutes) * time.Minute
	}
	return total
}

// TotalPrice sums the line item prices.
func (b *Booking) TotalPrice() int64 {
	var total int64
	for _, it := range b.Items {
		total += it.Price
	}
	return total
}

// Conflict converts the booking into a conflict-list entry.
func (b *Booking) Conflict() Conflict {
	return Conflict{
		BookingID:  b.ID,
		Ref:        b.Ref,
		MasterID:   b.MasterID,
		ClientName: b.ClientName,
		StartsAt:   b.StartsAt,
		EndsAt:     b.EndsAt,
	}
}
