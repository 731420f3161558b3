package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"zapisnik/internal/metrics"
)

// Message is a rendered notification bound to a chat.
type Message struct {
	ChatID int64
	Text   string
}

// Sender delivers one rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Formatter renders an event into a message. ok=false skips delivery, e.g.
// when the recipient has no chat bound.
type Formatter interface {
	Format(ctx context.Context, ev Event) (msg Message, ok bool, err error)
}

// Delivery retry schedule. Telegram hiccups are short; anything still failing
// after the last attempt is dropped and counted.
var retryDelays = []time.Duration{time.Second, 5 * time.Second, 15 * time.Second}

// Dispatcher consumes events from the bus and delivers them through a single
// worker, rate-limited to stay under the messaging API's per-bot ceiling.
type Dispatcher struct {
	sender    Sender
	formatter Formatter
	limiter   *rate.Limiter
	queue     chan Event
	logger    zerolog.Logger
}

// NewDispatcher creates a dispatcher sending at most msgsPerSecond.
func NewDispatcher(sender Sender, formatter Formatter, msgsPerSecond float64, queueSize int, logger zerolog.Logger) *Dispatcher {
	if msgsPerSecond <= 0 {
		msgsPerSecond = 25
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	return &Dispatcher{
		sender:    sender,
		formatter: formatter,
		limiter:   rate.NewLimiter(rate.Limit(msgsPerSecond), 1),
		queue:     make(chan Event, queueSize),
		logger:    logger.With().Str("component", "notify").Logger(),
	}
}

// Attach subscribes the dispatcher to every event on the bus.
func (d *Dispatcher) Attach(bus *Bus) {
	bus.SubscribeAll(d.Enqueue)
}

// Enqueue accepts an event for delivery. Never blocks the publisher: when the
// queue is full the event is dropped and counted.
func (d *Dispatcher) Enqueue(ev Event) {
	select {
	case d.queue <- ev:
	default:
		metrics.IncNotification("dropped")
		d.logger.Warn().Str("kind", string(ev.Kind)).Int64("booking_id", ev.BookingID).Msg("notify queue full, event dropped")
	}
}

// Run delivers queued events until the context is cancelled.
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info().Msg("notify dispatcher started")
	for {
		select {
		case <-ctx.Done():
			d.logger.Info().Msg("notify dispatcher stopped")
			return
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev Event) {
	msg, ok, err := d.formatter.Format(ctx, ev)
	if err != nil {
		metrics.IncNotification("format_error")
		d.logger.Error().Err(err).Str("kind", string(ev.Kind)).Int64("booking_id", ev.BookingID).Msg("format failed")
		return
	}
	if !ok {
		metrics.IncNotification("skipped")
		return
	}

	if err := d.limiter.Wait(ctx); err != nil {
		return
	}

	var lastErr error
	for attempt := 0; ; attempt++ {
		lastErr = d.sender.Send(ctx, msg)
		if lastErr == nil {
			metrics.IncNotification("sent")
			return
		}
		if attempt >= len(retryDelays) {
			break
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(retryDelays[attempt]):
		}
	}

	metrics.IncNotification("failed")
	d.logger.Error().Err(lastErr).
		Str("kind", string(ev.Kind)).
		Int64("booking_id", ev.BookingID).
		Int64("chat_id", msg.ChatID).
		Msg("delivery failed after retries")
}
