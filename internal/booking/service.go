package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"zapisnik/internal/metrics"
	"zapisnik/internal/model"
	"zapisnik/internal/notify"
)

// Store persists bookings. CreateBooking and Reschedule run under the
// storage-level exclusion constraint and return a ConflictError when a
// concurrent writer won the slot.
type Store interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
	CreateBooking(ctx context.Context, b *model.Booking) error
	// UpdateBookingStatus performs a single conditional update: the row moves
	// to `to` only if it is still in `from`. Returns false when the row was
	// not in `from` anymore.
	UpdateBookingStatus(ctx context.Context, id int64, from, to model.Status) (bool, error)
	Reschedule(ctx context.Context, id, version int64, startsAt, endsAt time.Time) error
}

// Catalog resolves service line items with per-master overrides applied.
type Catalog interface {
	MasterLineItems(ctx context.Context, masterID int64, serviceIDs []int64) ([]model.LineItem, error)
}

// EventPublisher hands events to the notification layer.
type EventPublisher interface {
	Publish(ev notify.Event)
}

// Config holds the lifecycle rule parameters.
type Config struct {
	ClientCancelLock     time.Duration
	ClientRescheduleLock time.Duration
	MaxDaysAhead         int
}

// DefaultConfig mirrors the configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		ClientCancelLock:     3 * time.Hour,
		ClientRescheduleLock: 3 * time.Hour,
		MaxDaysAhead:         365,
	}
}

// Service orchestrates the booking lifecycle.
type Service struct {
	store   Store
	catalog Catalog
	guard   *Guard
	bus     EventPublisher
	cfg     Config
	now     func() time.Time
	logger  zerolog.Logger
}

// NewService creates a booking service.
func NewService(store Store, catalog Catalog, guard *Guard, bus EventPublisher, cfg Config, logger zerolog.Logger) *Service {
	if cfg.MaxDaysAhead <= 0 {
		cfg.MaxDaysAhead = 365
	}
	return &Service{
		store:   store,
		catalog: catalog,
		guard:   guard,
		bus:     bus,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With().Str("component", "booking").Logger(),
	}
}

// Get loads one booking.
func (s *Service) Get(ctx context.Context, bookingID int64) (*model.Booking, error) {
	return s.store.GetBooking(ctx, bookingID)
}

// Reserve creates a booking in status reserved. The reserved row is itself
// the checkout hold: the overlap invariant keeps competing clients out until
// the hold is finalized or swept to expired.
func (s *Service) Reserve(ctx context.Context, masterID, clientID int64, serviceIDs []int64, startsAt time.Time) (*model.Booking, error) {
	if len(serviceIDs) == 0 {
		return nil, &model.ValidationError{Field: "services", Reason: "at least one service required"}
	}

	items, err := s.catalog.MasterLineItems(ctx, masterID, serviceIDs)
	if err != nil {
		return nil, fmt.Errorf("resolve services: %w", err)
	}
	if len(items) != len(serviceIDs) {
		return nil, &model.ValidationError{Field: "services", Reason: "master does not offer all requested services"}
	}

	now := s.now()
	if startsAt.Before(now) {
		return nil, &model.ValidationError{Field: "starts_at", Reason: "start time is in the past"}
	}
	if startsAt.After(now.AddDate(0, 0, s.cfg.MaxDaysAhead)) {
		return nil, &model.ValidationError{Field: "starts_at", Reason: fmt.Sprintf("start time beyond %d-day horizon", s.cfg.MaxDaysAhead)}
	}

	var total time.Duration
	for _, it := range items {
		total += time.Duration(it.DurationMinutes) * time.Minute
	}
	if total <= 0 {
		return nil, &model.ValidationError{Field: "services", Reason: "total duration must be positive"}
	}

	b := &model.Booking{
		Ref:      uuid.NewString(),
		MasterID: masterID,
		ClientID: clientID,
		Items:    items,
		StartsAt: startsAt,
		EndsAt:   startsAt.Add(total),
		Status:   model.StatusReserved,
	}

	// Application-level check first; the storage constraint still decides
	// races between this check and the insert.
	if err := s.guard.Check(ctx, masterID, clientID, b.Interval(), 0); err != nil {
		return nil, err
	}
	if err := s.store.CreateBooking(ctx, b); err != nil {
		if _, ok := model.AsConflict(err); ok {
			metrics.IncConflict("storage")
			return nil, err
		}
		return nil, fmt.Errorf("create booking: %w", err)
	}

	metrics.IncBookingCreated(string(model.StatusReserved))
	s.publish(notify.KindBookingReserved, b.ID, notify.RoleClient, notify.RoleMaster)
	s.logger.Info().
		Int64("booking_id", b.ID).
		Int64("master_id", masterID).
		Int64("client_id", clientID).
		Time("starts_at", startsAt).
		Msg("booking reserved")
	return b, nil
}

// Confirm moves a reserved booking to confirmed (no prepayment flow).
func (s *Service) Confirm(ctx context.Context, bookingID, masterID int64) error {
	return s.masterTransition(ctx, bookingID, masterID, model.StatusConfirmed, notify.KindBookingConfirmed, notify.RoleClient)
}

// RequestPayment moves a reserved booking to pending_payment.
func (s *Service) RequestPayment(ctx context.Context, bookingID int64) (*model.Booking, error) {
	b, err := s.transitionByID(ctx, bookingID, model.StatusPendingPayment, notify.KindPaymentRequested, notify.RoleClient)
	return b, err
}

// AwaitCash moves a reserved booking to awaiting_cash (pay at the salon).
func (s *Service) AwaitCash(ctx context.Context, bookingID int64) error {
	_, err := s.transitionByID(ctx, bookingID, model.StatusAwaitingCash, notify.KindAwaitingCash, notify.RoleClient)
	return err
}

// MarkPaid records a successful payment.
func (s *Service) MarkPaid(ctx context.Context, bookingID int64) error {
	_, err := s.transitionByID(ctx, bookingID, model.StatusPaid, notify.KindBookingPaid, notify.RoleMaster)
	return err
}

// Begin marks the appointment as in progress.
func (s *Service) Begin(ctx context.Context, bookingID, masterID int64) error {
	return s.masterTransition(ctx, bookingID, masterID, model.StatusActive, notify.KindBookingStarted, notify.RoleClient)
}

// Complete marks the booking done. Only the assigned master may complete it.
func (s *Service) Complete(ctx context.Context, bookingID, masterID int64) error {
	return s.masterTransition(ctx, bookingID, masterID, model.StatusDone, notify.KindBookingDone, notify.RoleClient)
}

// MarkNoShow records that the client did not appear. Only the assigned master.
func (s *Service) MarkNoShow(ctx context.Context, bookingID, masterID int64) error {
	return s.masterTransition(ctx, bookingID, masterID, model.StatusNoShow, notify.KindBookingNoShow, notify.RoleClient)
}

// CancelByClient cancels the client's own booking, rejected with a
// LockWindowError inside the cancel lock window.
func (s *Service) CancelByClient(ctx context.Context, bookingID, clientID int64) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.ClientID != clientID {
		return model.ErrForbidden
	}
	if err := s.checkLock("cancel", b, s.cfg.ClientCancelLock); err != nil {
		return err
	}
	if err := s.transition(ctx, b, model.StatusCancelled); err != nil {
		return err
	}
	metrics.IncBookingCancelled("client")
	s.publish(notify.KindCancelledByClient, b.ID, notify.RoleMaster)
	return nil
}

// CancelByMaster cancels a booking on behalf of the master.
func (s *Service) CancelByMaster(ctx context.Context, bookingID, masterID int64) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.MasterID != masterID {
		return model.ErrForbidden
	}
	if err := s.transition(ctx, b, model.StatusCancelled); err != nil {
		return err
	}
	metrics.IncBookingCancelled("master")
	s.publish(notify.KindCancelledByMaster, b.ID, notify.RoleClient)
	return nil
}

// Reschedule moves the client's booking to a new start time, keeping its
// duration. Rejected with a LockWindowError inside the reschedule lock
// window; the new interval passes the same two-layer conflict enforcement as
// a fresh reservation.
func (s *Service) Reschedule(ctx context.Context, bookingID, clientID int64, newStart time.Time) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if b.ClientID != clientID {
		return nil, model.ErrForbidden
	}
	if b.Status.IsTerminal() {
		return nil, &model.InvalidTransitionError{BookingID: b.ID, From: b.Status, To: b.Status}
	}
	if err := s.checkLock("reschedule", b, s.cfg.ClientRescheduleLock); err != nil {
		return nil, err
	}

	now := s.now()
	if newStart.Before(now) {
		return nil, &model.ValidationError{Field: "starts_at", Reason: "start time is in the past"}
	}

	newEnd := newStart.Add(b.Duration())
	iv := model.Interval{Start: newStart, End: newEnd}
	if err := s.guard.Check(ctx, b.MasterID, b.ClientID, iv, b.ID); err != nil {
		return nil, err
	}
	if err := s.store.Reschedule(ctx, b.ID, b.Version, newStart, newEnd); err != nil {
		if _, ok := model.AsConflict(err); ok {
			metrics.IncConflict("storage")
		}
		return nil, err
	}

	b.StartsAt, b.EndsAt = newStart, newEnd
	s.publish(notify.KindBookingRescheduled, b.ID, notify.RoleMaster)
	s.logger.Info().Int64("booking_id", b.ID).Time("starts_at", newStart).Msg("booking rescheduled")
	return b, nil
}

func (s *Service) checkLock(action string, b *model.Booking, lock time.Duration) error {
	if lock <= 0 {
		return nil
	}
	if !s.now().Before(b.StartsAt.Add(-lock)) {
		return &model.LockWindowError{Action: action, StartsAt: b.StartsAt, Lock: lock}
	}
	return nil
}

func (s *Service) masterTransition(ctx context.Context, bookingID, masterID int64, to model.Status, kind notify.Kind, roles ...notify.Role) error {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.MasterID != masterID {
		return model.ErrForbidden
	}
	if err := s.transition(ctx, b, to); err != nil {
		return err
	}
	s.publish(kind, b.ID, roles...)
	return nil
}

func (s *Service) transitionByID(ctx context.Context, bookingID int64, to model.Status, kind notify.Kind, roles ...notify.Role) (*model.Booking, error) {
	b, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, b, to); err != nil {
		return nil, err
	}
	s.publish(kind, b.ID, roles...)
	return b, nil
}

// transition applies one state-machine step through a conditional update, so
// a stale in-memory status never clobbers a concurrent transition.
func (s *Service) transition(ctx context.Context, b *model.Booking, to model.Status) error {
	if err := CheckTransition(b.ID, b.Status, to); err != nil {
		s.logger.Warn().Err(err).Msg("transition rejected")
		return err
	}
	ok, err := s.store.UpdateBookingStatus(ctx, b.ID, b.Status, to)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if !ok {
		current, err := s.store.GetBooking(ctx, b.ID)
		if err != nil {
			return err
		}
		return &model.InvalidTransitionError{BookingID: b.ID, From: current.Status, To: to}
	}
	metrics.IncTransition(string(to))
	b.Status = to
	return nil
}

func (s *Service) publish(kind notify.Kind, bookingID int64, roles ...notify.Role) {
	if s.bus == nil {
		return
	}
	for _, role := range roles {
		s.bus.Publish(notify.Event{Kind: kind, BookingID: bookingID, Recipient: role})
	}
}
