package model

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ValidationError reports malformed input. Recoverable by the caller
// correcting the input; never retried automatically.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Conflict describes one booking blocking an operation.
type Conflict struct {
	BookingID  int64
	Ref        string
	MasterID   int64
	ClientName string
	StartsAt   time.Time
	EndsAt     time.Time
}

func (c Conflict) String() string {
	return fmt.Sprintf("booking #%d at %s (%s)", c.BookingID, c.StartsAt.Format("2006-01-02 15:04"), c.ClientName)
}

// ConflictError reports that an operation would violate the no-overlap
// invariant, or that a schedule edit would orphan existing bookings.
// The caller must re-query and retry with a different interval, never
// retry the same one.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	if len(e.Conflicts) == 0 {
		return "slot taken"
	}
	parts := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		parts[i] = c.String()
	}
	return "conflicts with " + strings.Join(parts, ", ")
}

// AsConflict unwraps a ConflictError if err carries one.
func AsConflict(err error) (*ConflictError, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// LockWindowError reports a transition rejected by a time-proximity rule:
// the booking starts too soon for the client to cancel or reschedule it.
type LockWindowError struct {
	Action   string
	StartsAt time.Time
	Lock     time.Duration
}

func (e *LockWindowError) Error() string {
	return fmt.Sprintf("%s locked within %s of start (starts at %s)", e.Action, e.Lock, e.StartsAt.Format("2006-01-02 15:04"))
}

// Deadline returns the last moment the action was still permitted.
func (e *LockWindowError) Deadline() time.Time {
	return e.StartsAt.Add(-e.Lock)
}

// InvalidTransitionError reports a state-machine transition attempted from a
// terminal or incompatible state. Caller bug or stale state; logged, not retried.
type InvalidTransitionError struct {
	BookingID int64
	From      Status
	To        Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("booking %d: invalid transition %s -> %s", e.BookingID, e.From, e.To)
}

// ErrNotFound is returned when a referenced entity does not exist.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the actor is not allowed to perform the
// operation (e.g. marking done on another master's booking).
var ErrForbidden = errors.New("forbidden")
