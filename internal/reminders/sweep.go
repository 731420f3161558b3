// Package reminders sends pre-visit reminders for upcoming active bookings.
package reminders

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"zapisnik/internal/metrics"
	"zapisnik/internal/model"
	"zapisnik/internal/notify"
)

// Store provides the reminder queries.
type Store interface {
	// ListUpcomingUnreminded returns active bookings starting within the window
	// whose reminder flag is still unset.
	ListUpcomingUnreminded(ctx context.Context, now time.Time, within time.Duration) ([]model.Booking, error)
	// MarkReminderSent flips the flag exactly once; false means another sweep
	// already claimed this booking.
	MarkReminderSent(ctx context.Context, id int64) (bool, error)
}

// Config holds reminder parameters.
type Config struct {
	// LeadTime is how far before the visit the reminder goes out.
	LeadTime time.Duration
	// Interval is how often the sweep runs.
	Interval time.Duration
}

// DefaultConfig mirrors the configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		LeadTime: 24 * time.Hour,
		Interval: 10 * time.Minute,
	}
}

// Sweeper periodically publishes reminder events. The reminder flag is claimed
// with a conditional update, so overlapping sweeps never double-send.
type Sweeper struct {
	store  Store
	bus    *notify.Bus
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewSweeper creates a reminder sweeper.
func NewSweeper(store Store, bus *notify.Bus, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.LeadTime <= 0 {
		cfg.LeadTime = 24 * time.Hour
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 10 * time.Minute
	}
	return &Sweeper{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "reminders").Logger(),
	}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("lead_time", s.cfg.LeadTime).Dur("interval", s.cfg.Interval).Msg("reminder sweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("reminder sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("reminder sweep failed")
			}
		}
	}
}

// Sweep publishes a reminder for every due booking and returns how many this
// run claimed.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	due, err := s.store.ListUpcomingUnreminded(ctx, s.now(), s.cfg.LeadTime)
	if err != nil {
		return 0, err
	}

	sent := 0
	for i := range due {
		select {
		case <-ctx.Done():
			return sent, ctx.Err()
		default:
		}

		ok, err := s.store.MarkReminderSent(ctx, due[i].ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", due[i].ID).Msg("mark reminder failed")
			continue
		}
		if !ok {
			continue
		}
		sent++
		metrics.IncReminderSent()
		if s.bus != nil {
			s.bus.Publish(notify.Event{Kind: notify.KindBookingReminder, BookingID: due[i].ID, Recipient: notify.RoleClient})
		}
	}

	if sent > 0 {
		s.logger.Info().Int("sent", sent).Msg("reminders published")
	}
	return sent, nil
}
