package model

import "time"

// Interval is a half-open [Start, End) time range.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (i Interval) Overlaps(o Interval) bool {
	return i.Start.Before(o.End) && o.Start.Before(i.End)
}

// Contains reports whether t falls inside [Start, End).
func (i Interval) Contains(t time.Time) bool {
	return !t.Before(i.Start) && t.Before(i.End)
}

// Duration returns End - Start.
func (i Interval) Duration() time.Duration {
	return i.End.Sub(i.Start)
}

// IsValid reports whether the interval is non-empty.
func (i Interval) IsValid() bool {
	return i.End.After(i.Start)
}

// OverlapQuery selects active bookings intersecting a candidate interval.
// Zero MasterID/ClientID fields are ignored; ExcludeBookingID removes the
// booking being edited from its own conflict set.
type OverlapQuery struct {
	MasterID         int64
	ClientID         int64
	Interval         Interval
	ExcludeBookingID int64
}
