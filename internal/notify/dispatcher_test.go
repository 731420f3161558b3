package notify

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeSender struct {
	mu        sync.Mutex
	sent      []Message
	failures  int
	delivered chan Message
}

func newFakeSender() *fakeSender {
	return &fakeSender{delivered: make(chan Message, 16)}
}

func (s *fakeSender) Send(ctx context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures > 0 {
		s.failures--
		return errors.New("telegram: 502")
	}
	s.sent = append(s.sent, msg)
	s.delivered <- msg
	return nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type staticFormatter struct {
	chatID int64
	skip   bool
	err    error
}

func (f *staticFormatter) Format(ctx context.Context, ev Event) (Message, bool, error) {
	if f.err != nil {
		return Message{}, false, f.err
	}
	if f.skip {
		return Message{}, false, nil
	}
	return Message{ChatID: f.chatID, Text: string(ev.Kind)}, true, nil
}

func TestDeliver(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, &staticFormatter{chatID: 777}, 1000, 16, zerolog.New(io.Discard))

	d.deliver(context.Background(), Event{Kind: KindBookingConfirmed, BookingID: 7, Recipient: RoleClient})

	assert.Equal(t, 1, sender.count())
	assert.Equal(t, int64(777), sender.sent[0].ChatID)
	assert.Equal(t, string(KindBookingConfirmed), sender.sent[0].Text)
}

func TestDeliverSkipsUnboundRecipient(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, &staticFormatter{skip: true}, 1000, 16, zerolog.New(io.Discard))

	d.deliver(context.Background(), Event{Kind: KindBookingConfirmed, BookingID: 7})
	assert.Equal(t, 0, sender.count())
}

func TestDeliverFormatError(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, &staticFormatter{err: errors.New("booking vanished")}, 1000, 16, zerolog.New(io.Discard))

	d.deliver(context.Background(), Event{Kind: KindBookingConfirmed, BookingID: 7})
	assert.Equal(t, 0, sender.count())
}

func TestDeliverRetriesTransientFailure(t *testing.T) {
	orig := retryDelays
	retryDelays = []time.Duration{time.Millisecond, time.Millisecond, time.Millisecond}
	defer func() { retryDelays = orig }()

	sender := newFakeSender()
	sender.failures = 2
	d := NewDispatcher(sender, &staticFormatter{chatID: 777}, 1000, 16, zerolog.New(io.Discard))

	d.deliver(context.Background(), Event{Kind: KindBookingReminder, BookingID: 7})
	assert.Equal(t, 1, sender.count())
}

func TestDeliverGivesUpAfterRetries(t *testing.T) {
	orig := retryDelays
	retryDelays = []time.Duration{time.Millisecond}
	defer func() { retryDelays = orig }()

	sender := newFakeSender()
	sender.failures = 10
	d := NewDispatcher(sender, &staticFormatter{chatID: 777}, 1000, 16, zerolog.New(io.Discard))

	d.deliver(context.Background(), Event{Kind: KindBookingReminder, BookingID: 7})
	assert.Equal(t, 0, sender.count())
}

func TestEnqueueDropsWhenFull(t *testing.T) {
	d := NewDispatcher(newFakeSender(), &staticFormatter{chatID: 1}, 1000, 1, zerolog.New(io.Discard))

	d.Enqueue(Event{Kind: KindBookingReserved, BookingID: 1})
	// Queue capacity is 1 and nothing consumes it; this one is dropped, not
	// blocked on.
	d.Enqueue(Event{Kind: KindBookingReserved, BookingID: 2})

	assert.Equal(t, 1, len(d.queue))
}

func TestRunConsumesBusEvents(t *testing.T) {
	sender := newFakeSender()
	d := NewDispatcher(sender, &staticFormatter{chatID: 777}, 1000, 16, zerolog.New(io.Discard))

	bus := NewBus()
	d.Attach(bus)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Run(ctx)

	bus.Publish(Event{Kind: KindBookingPaid, BookingID: 7, Recipient: RoleMaster})

	select {
	case msg := <-sender.delivered:
		assert.Equal(t, string(KindBookingPaid), msg.Text)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}
