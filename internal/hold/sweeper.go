// Package hold reclaims abandoned checkout holds. A hold is a booking row in
// status reserved; the sweep moves stale ones to expired so their slots
// become bookable again.
package hold

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"zapisnik/internal/metrics"
	"zapisnik/internal/notify"
)

// Store provides the conditional updates the sweep relies on.
type Store interface {
	// ListStaleReserved returns ids of reserved bookings created at or before
	// the cutoff.
	ListStaleReserved(ctx context.Context, cutoff time.Time) ([]int64, error)
	// ExpireReserved transitions one booking to expired only if it is still
	// reserved and past the cutoff. Returns false when another sweeper or a
	// finalizing client got there first.
	ExpireReserved(ctx context.Context, id int64, cutoff time.Time) (bool, error)
}

// Config holds sweep parameters.
type Config struct {
	// HoldTTL is how long a reserved booking holds its slot.
	HoldTTL time.Duration
	// Interval is how often the sweep runs.
	Interval time.Duration
}

// DefaultConfig mirrors the configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		HoldTTL:  5 * time.Minute,
		Interval: 30 * time.Second,
	}
}

// Sweeper periodically expires stale holds. Sweeps are idempotent and safe to
// run concurrently: each expiry is a single conditional update.
type Sweeper struct {
	store  Store
	bus    *notify.Bus
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewSweeper creates a hold sweeper.
func NewSweeper(store Store, bus *notify.Bus, cfg Config, logger zerolog.Logger) *Sweeper {
	if cfg.HoldTTL <= 0 {
		cfg.HoldTTL = 5 * time.Minute
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &Sweeper{
		store:  store,
		bus:    bus,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "hold_sweeper").Logger(),
	}
}

// Run loops until the context is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	s.logger.Info().Dur("interval", s.cfg.Interval).Dur("hold_ttl", s.cfg.HoldTTL).Msg("hold sweeper started")

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("hold sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.logger.Error().Err(err).Msg("hold sweep failed")
			}
		}
	}
}

// Sweep expires every reserved booking past its hold deadline and returns how
// many rows this run transitioned. Running it again immediately is a no-op.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	start := s.now()
	cutoff := start.Add(-s.cfg.HoldTTL)

	ids, err := s.store.ListStaleReserved(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	expired := 0
	for _, id := range ids {
		select {
		case <-ctx.Done():
			return expired, ctx.Err()
		default:
		}

		ok, err := s.store.ExpireReserved(ctx, id, cutoff)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", id).Msg("expire failed")
			continue
		}
		if !ok {
			// Finalized or already expired between the scan and the update.
			continue
		}
		expired++
		if s.bus != nil {
			s.bus.Publish(notify.Event{Kind: notify.KindBookingExpired, BookingID: id, Recipient: notify.RoleClient})
		}
	}

	if expired > 0 {
		metrics.AddHoldsExpired(expired)
		s.logger.Info().Int("expired", expired).Msg("stale holds expired")
	}
	metrics.ObserveSweep(time.Since(start))
	return expired, nil
}
