package booking

import (
	"testing"

	"zapisnik/internal/model"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name        string
		from        model.Status
		to          model.Status
		shouldAllow bool
	}{
		{"reserve to confirm", model.StatusReserved, model.StatusConfirmed, true},
		{"reserve to pending payment", model.StatusReserved, model.StatusPendingPayment, true},
		{"reserve to awaiting cash", model.StatusReserved, model.StatusAwaitingCash, true},
		{"reserve to cancel", model.StatusReserved, model.StatusCancelled, true},
		{"reserve expires", model.StatusReserved, model.StatusExpired, true},
		{"pending payment paid", model.StatusPendingPayment, model.StatusPaid, true},
		{"confirmed starts", model.StatusConfirmed, model.StatusActive, true},
		{"paid starts", model.StatusPaid, model.StatusActive, true},
		{"paid straight to done", model.StatusPaid, model.StatusDone, true},
		{"active done", model.StatusActive, model.StatusDone, true},
		{"active no-show", model.StatusActive, model.StatusNoShow, true},
		// Not in the graph.
		{"reserve straight to done", model.StatusReserved, model.StatusDone, false},
		{"reserve straight to active", model.StatusReserved, model.StatusActive, false},
		{"confirmed straight to done", model.StatusConfirmed, model.StatusDone, false},
		{"only reserved expires", model.StatusConfirmed, model.StatusExpired, false},
		{"no self transition", model.StatusReserved, model.StatusReserved, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			allowed := CanTransition(tt.from, tt.to)
			if allowed != tt.shouldAllow {
				t.Errorf("transition %s -> %s: expected allowed=%v, got %v",
					tt.from, tt.to, tt.shouldAllow, allowed)
			}
		})
	}
}

func TestTerminalStatesAreFinal(t *testing.T) {
	terminals := []model.Status{model.StatusCancelled, model.StatusDone, model.StatusNoShow, model.StatusExpired}
	targets := []model.Status{
		model.StatusReserved, model.StatusPendingPayment, model.StatusAwaitingCash, model.StatusConfirmed,
		model.StatusPaid, model.StatusActive, model.StatusCancelled, model.StatusDone, model.StatusNoShow, model.StatusExpired,
	}

	for _, from := range terminals {
		for _, to := range targets {
			if CanTransition(from, to) {
				t.Errorf("terminal status %s must not transition to %s", from, to)
			}
		}
	}
}

func TestCheckTransition(t *testing.T) {
	if err := CheckTransition(1, model.StatusReserved, model.StatusConfirmed); err != nil {
		t.Errorf("allowed transition returned error: %v", err)
	}

	err := CheckTransition(7, model.StatusDone, model.StatusActive)
	if err == nil {
		t.Fatal("expected InvalidTransitionError")
	}
	te, ok := err.(*model.InvalidTransitionError)
	if !ok {
		t.Fatalf("expected *model.InvalidTransitionError, got %T", err)
	}
	if te.BookingID != 7 || te.From != model.StatusDone || te.To != model.StatusActive {
		t.Errorf("unexpected error payload: %+v", te)
	}
}
