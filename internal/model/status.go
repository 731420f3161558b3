package model

import "fmt"

// Status is the booking lifecycle status. The set is closed: every status
// is either active (participates in the overlap invariant) or terminal.
type Status string

const (
	StatusReserved       Status = "reserved"
	StatusPendingPayment Status = "pending_payment"
	StatusAwaitingCash   Status = "awaiting_cash"
	StatusConfirmed      Status = "confirmed"
	StatusPaid           Status = "paid"
	StatusActive         Status = "active"
	StatusCancelled      Status = "cancelled"
	StatusDone           Status = "done"
	StatusNoShow         Status = "no_show"
	StatusExpired        Status = "expired"
)

// IsActive reports whether the status participates in the no-overlap invariant.
func (s Status) IsActive() bool {
	switch s {
	case StatusReserved, StatusPendingPayment, StatusAwaitingCash, StatusConfirmed, StatusPaid, StatusActive:
		return true
	case StatusCancelled, StatusDone, StatusNoShow, StatusExpired:
		return false
	}
	return false
}

// IsTerminal reports whether the status accepts no further transitions.
func (s Status) IsTerminal() bool {
	switch s {
	case StatusCancelled, StatusDone, StatusNoShow, StatusExpired:
		return true
	}
	return false
}

// ActiveStatuses returns the statuses counted by overlap queries,
// in a stable order suitable for SQL IN lists.
func ActiveStatuses() []Status {
	return []Status{
		StatusReserved,
		StatusPendingPayment,
		StatusAwaitingCash,
		StatusConfirmed,
		StatusPaid,
		StatusActive,
	}
}

// ParseStatus validates a stored status label.
func ParseStatus(s string) (Status, error) {
	st := Status(s)
	switch st {
	case StatusReserved, StatusPendingPayment, StatusAwaitingCash, StatusConfirmed,
		StatusPaid, StatusActive, StatusCancelled, StatusDone, StatusNoShow, StatusExpired:
		return st, nil
	}
	return "", &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", s)}
}
