// Package booking implements the booking lifecycle: the state machine, the
// conflict guard enforcing the no-overlap invariant, and the service layer
// invoked by presentation code.
package booking

import "zapisnik/internal/model"

// transitions is the closed state graph. Terminal statuses have no entries:
// nothing leaves cancelled, done, no_show or expired.
var transitions = map[model.Status][]model.Status{
	model.StatusReserved: {
		model.StatusPendingPayment,
		model.StatusAwaitingCash,
		model.StatusConfirmed,
		model.StatusCancelled,
		model.StatusExpired,
	},
	model.StatusPendingPayment: {
		model.StatusPaid,
		model.StatusActive,
		model.StatusCancelled,
	},
	model.StatusAwaitingCash: {
		model.StatusPaid,
		model.StatusActive,
		model.StatusCancelled,
	},
	model.StatusConfirmed: {
		model.StatusPaid,
		model.StatusActive,
		model.StatusCancelled,
	},
	model.StatusPaid: {
		model.StatusActive,
		model.StatusDone,
		model.StatusNoShow,
		model.StatusCancelled,
	},
	model.StatusActive: {
		model.StatusDone,
		model.StatusNoShow,
		model.StatusCancelled,
	},
}

// CanTransition checks if the transition is allowed.
func CanTransition(from, to model.Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// CheckTransition returns an InvalidTransitionError when the move is not in
// the state graph.
func CheckTransition(bookingID int64, from, to model.Status) error {
	if !CanTransition(from, to) {
		return &model.InvalidTransitionError{BookingID: bookingID, From: from, To: to}
	}
	return nil
}
