// Package notify decouples booking state transitions from delivery. The core
// decides that a notification is warranted; delivery and localization belong
// to the adapters.
package notify

import (
	"sync"
	"time"
)

// Kind identifies the notification-worthy event.
type Kind string

const (
	KindBookingReserved      Kind = "booking_reserved"
	KindBookingConfirmed     Kind = "booking_confirmed"
	KindPaymentRequested     Kind = "payment_requested"
	KindAwaitingCash         Kind = "awaiting_cash"
	KindBookingPaid          Kind = "booking_paid"
	KindBookingStarted       Kind = "booking_started"
	KindBookingDone          Kind = "booking_done"
	KindBookingNoShow        Kind = "booking_no_show"
	KindCancelledByClient    Kind = "booking_cancelled_by_client"
	KindCancelledByMaster    Kind = "booking_cancelled_by_master"
	KindBookingExpired       Kind = "booking_expired"
	KindBookingRescheduled   Kind = "booking_rescheduled"
	KindBookingReminder      Kind = "booking_reminder"
	KindDayClearBlocked      Kind = "day_clear_blocked"
)

// Role names the recipient side of an event.
type Role string

const (
	RoleClient Role = "client"
	RoleMaster Role = "master"
)

// Event is the (kind, booking, recipient) tuple handed to delivery.
type Event struct {
	Kind      Kind
	BookingID int64
	Recipient Role
	At        time.Time
}

// Handler reacts to an event.
type Handler func(ev Event)

// Bus provides in-process pub/sub for events.
type Bus struct {
	subscribers map[Kind][]Handler
	all         []Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[Kind][]Handler)}
}

// Subscribe registers a handler for a given kind.
func (b *Bus) Subscribe(kind Kind, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[kind] = append(b.subscribers[kind], h)
}

// SubscribeAll registers a handler for every kind.
func (b *Bus) SubscribeAll(h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, h)
}

// Publish notifies subscribers of the event kind. Handlers run synchronously;
// the caller decides the concurrency model.
func (b *Bus) Publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[ev.Kind]...)
	handlers = append(handlers, b.all...)
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}
