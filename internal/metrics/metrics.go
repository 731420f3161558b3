package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	bookingCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "booking_created_total",
			Help:      "Count of bookings created by status.",
		},
		[]string{"status"},
	)

	bookingCancelled = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "booking_cancelled_total",
			Help:      "Count of bookings cancelled by initiator.",
		},
		[]string{"by"},
	)

	transitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "booking_transitions_total",
			Help:      "Count of booking state transitions by target status.",
		},
		[]string{"to"},
	)

	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "booking_conflicts_total",
			Help:      "Count of rejected writes by enforcement layer.",
		},
		[]string{"layer"},
	)

	holdsExpired = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "holds_expired_total",
			Help:      "Count of reserved holds swept to expired.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "zapisnik",
			Name:      "hold_sweep_duration_seconds",
			Help:      "Time to run one hold expiry sweep.",
			Buckets:   []float64{.005, .01, .05, .1, .5, 1, 5},
		},
	)

	notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "notifications_total",
			Help:      "Count of notification deliveries by outcome.",
		},
		[]string{"outcome"},
	)

	remindersSent = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "zapisnik",
			Name:      "reminders_sent_total",
			Help:      "Count of booking reminders published.",
		},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			bookingCreated,
			bookingCancelled,
			transitions,
			conflicts,
			holdsExpired,
			sweepDuration,
			notifications,
			remindersSent,
		)
	})
}

func IncBookingCreated(status string) {
	bookingCreated.WithLabelValues(status).Inc()
}

func IncBookingCancelled(by string) {
	bookingCancelled.WithLabelValues(by).Inc()
}

func IncTransition(to string) {
	transitions.WithLabelValues(to).Inc()
}

func IncConflict(layer string) {
	conflicts.WithLabelValues(layer).Inc()
}

func AddHoldsExpired(n int) {
	holdsExpired.Add(float64(n))
}

func ObserveSweep(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func IncNotification(outcome string) {
	notifications.WithLabelValues(outcome).Inc()
}

func IncReminderSent() {
	remindersSent.Inc()
}
