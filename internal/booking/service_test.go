package booking

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"zapisnik/internal/model"
	"zapisnik/internal/notify"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Booking), args.Error(1)
}

func (m *mockStore) CreateBooking(ctx context.Context, b *model.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockStore) UpdateBookingStatus(ctx context.Context, id int64, from, to model.Status) (bool, error) {
	args := m.Called(ctx, id, from, to)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) Reschedule(ctx context.Context, id, version int64, startsAt, endsAt time.Time) error {
	return m.Called(ctx, id, version, startsAt, endsAt).Error(0)
}

type mockCatalog struct {
	mock.Mock
}

func (m *mockCatalog) MasterLineItems(ctx context.Context, masterID int64, serviceIDs []int64) ([]model.LineItem, error) {
	args := m.Called(ctx, masterID, serviceIDs)
	return args.Get(0).([]model.LineItem), args.Error(1)
}

type recordingBus struct {
	events []notify.Event
}

func (b *recordingBus) Publish(ev notify.Event) {
	b.events = append(b.events, ev)
}

func newTestService(store *mockStore, catalog *mockCatalog, bus *recordingBus, now time.Time) (*Service, *Guard) {
	overlaps := new(mockOverlapStore)
	overlaps.On("ListOverlapping", mock.Anything, mock.Anything).Return([]model.Booking{}, nil).Maybe()
	guard := NewGuard(overlaps, new(mockExceptions))

	s := NewService(store, catalog, guard, bus, DefaultConfig(), zerolog.New(io.Discard))
	s.now = func() time.Time { return now }
	return s, guard
}

func TestReserve(t *testing.T) {
	store := new(mockStore)
	catalog := new(mockCatalog)
	bus := &recordingBus{}
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, catalog, bus, now)
	ctx := context.Background()

	items := []model.LineItem{
		{ServiceID: 1, Name: "Стрижка", DurationMinutes: 45, Price: 150000},
		{ServiceID: 2, Name: "Укладка", DurationMinutes: 30, Price: 100000},
	}
	catalog.On("MasterLineItems", ctx, int64(1), []int64{1, 2}).Return(items, nil).Once()
	store.On("CreateBooking", ctx, mock.Anything).Run(func(args mock.Arguments) {
		args.Get(1).(*model.Booking).ID = 42
	}).Return(nil).Once()

	start := ts(t, "2026-04-02 10:00")
	b, err := svc.Reserve(ctx, 1, 2, []int64{1, 2}, start)
	assert.NoError(t, err)
	assert.Equal(t, int64(42), b.ID)
	assert.Equal(t, model.StatusReserved, b.Status)
	assert.NotEmpty(t, b.Ref)
	// End time is start plus the combined duration.
	assert.Equal(t, start.Add(75*time.Minute), b.EndsAt)
	// Both sides get notified.
	assert.Len(t, bus.events, 2)
	assert.Equal(t, notify.KindBookingReserved, bus.events[0].Kind)
}

func TestReserveValidation(t *testing.T) {
	store := new(mockStore)
	catalog := new(mockCatalog)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, catalog, &recordingBus{}, now)
	ctx := context.Background()
	items := []model.LineItem{{ServiceID: 1, Name: "Стрижка", DurationMinutes: 45}}

	var ve *model.ValidationError

	_, err := svc.Reserve(ctx, 1, 2, nil, now.Add(time.Hour))
	assert.ErrorAs(t, err, &ve)

	// Master does not offer one of the requested services.
	catalog.On("MasterLineItems", ctx, int64(1), []int64{1, 99}).Return(items, nil).Once()
	_, err = svc.Reserve(ctx, 1, 2, []int64{1, 99}, now.Add(time.Hour))
	assert.ErrorAs(t, err, &ve)

	// Start in the past.
	catalog.On("MasterLineItems", ctx, int64(1), []int64{1}).Return(items, nil)
	_, err = svc.Reserve(ctx, 1, 2, []int64{1}, now.Add(-time.Minute))
	assert.ErrorAs(t, err, &ve)

	// Beyond the horizon.
	_, err = svc.Reserve(ctx, 1, 2, []int64{1}, now.AddDate(0, 0, 366))
	assert.ErrorAs(t, err, &ve)

	store.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestCancelByClientLockWindow(t *testing.T) {
	store := new(mockStore)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), &recordingBus{}, now)
	ctx := context.Background()

	// Starts in 2 hours; the 3-hour lock already applies.
	b := &model.Booking{ID: 7, ClientID: 2, Status: model.StatusConfirmed,
		StartsAt: now.Add(2 * time.Hour), EndsAt: now.Add(3 * time.Hour)}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()

	err := svc.CancelByClient(ctx, 7, 2)
	var le *model.LockWindowError
	assert.ErrorAs(t, err, &le)
	assert.Equal(t, "cancel", le.Action)
	assert.Equal(t, b.StartsAt.Add(-3*time.Hour), le.Deadline())
	store.AssertNotCalled(t, "UpdateBookingStatus", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelByClientOutsideLock(t *testing.T) {
	store := new(mockStore)
	bus := &recordingBus{}
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), bus, now)
	ctx := context.Background()

	b := &model.Booking{ID: 7, ClientID: 2, Status: model.StatusConfirmed,
		StartsAt: now.Add(4 * time.Hour), EndsAt: now.Add(5 * time.Hour)}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()
	store.On("UpdateBookingStatus", ctx, int64(7), model.StatusConfirmed, model.StatusCancelled).
		Return(true, nil).Once()

	err := svc.CancelByClient(ctx, 7, 2)
	assert.NoError(t, err)
	assert.Len(t, bus.events, 1)
	assert.Equal(t, notify.KindCancelledByClient, bus.events[0].Kind)
	assert.Equal(t, notify.RoleMaster, bus.events[0].Recipient)
}

func TestCancelByClientWrongClient(t *testing.T) {
	store := new(mockStore)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), &recordingBus{}, now)
	ctx := context.Background()

	b := &model.Booking{ID: 7, ClientID: 2, Status: model.StatusConfirmed,
		StartsAt: now.Add(24 * time.Hour)}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()

	err := svc.CancelByClient(ctx, 7, 999)
	assert.ErrorIs(t, err, model.ErrForbidden)
}

func TestMasterCancelIgnoresLockWindow(t *testing.T) {
	store := new(mockStore)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), &recordingBus{}, now)
	ctx := context.Background()

	// Starts in 30 minutes; masters are not bound by the client lock.
	b := &model.Booking{ID: 7, MasterID: 1, ClientID: 2, Status: model.StatusConfirmed,
		StartsAt: now.Add(30 * time.Minute)}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()
	store.On("UpdateBookingStatus", ctx, int64(7), model.StatusConfirmed, model.StatusCancelled).
		Return(true, nil).Once()

	assert.NoError(t, svc.CancelByMaster(ctx, 7, 1))
}

func TestTransitionConcurrentLoser(t *testing.T) {
	store := new(mockStore)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), &recordingBus{}, now)
	ctx := context.Background()

	b := &model.Booking{ID: 7, MasterID: 1, Status: model.StatusReserved,
		StartsAt: now.Add(24 * time.Hour)}
	cancelled := &model.Booking{ID: 7, MasterID: 1, Status: model.StatusCancelled,
		StartsAt: b.StartsAt}

	// The conditional update loses to a concurrent cancel; the reload shows
	// the real current status in the error.
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()
	store.On("UpdateBookingStatus", ctx, int64(7), model.StatusReserved, model.StatusConfirmed).
		Return(false, nil).Once()
	store.On("GetBooking", ctx, int64(7)).Return(cancelled, nil).Once()

	err := svc.Confirm(ctx, 7, 1)
	var te *model.InvalidTransitionError
	assert.ErrorAs(t, err, &te)
	assert.Equal(t, model.StatusCancelled, te.From)
	assert.Equal(t, model.StatusConfirmed, te.To)
}

func TestRescheduleKeepsDuration(t *testing.T) {
	store := new(mockStore)
	bus := &recordingBus{}
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), bus, now)
	ctx := context.Background()

	b := &model.Booking{ID: 7, MasterID: 1, ClientID: 2, Status: model.StatusConfirmed, Version: 3,
		StartsAt: ts(t, "2026-04-02 10:00"), EndsAt: ts(t, "2026-04-02 11:30")}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()

	newStart := ts(t, "2026-04-03 14:00")
	store.On("Reschedule", ctx, int64(7), int64(3), newStart, newStart.Add(90*time.Minute)).
		Return(nil).Once()

	got, err := svc.Reschedule(ctx, 7, 2, newStart)
	assert.NoError(t, err)
	assert.Equal(t, newStart, got.StartsAt)
	assert.Equal(t, newStart.Add(90*time.Minute), got.EndsAt)
	assert.Len(t, bus.events, 1)
	assert.Equal(t, notify.KindBookingRescheduled, bus.events[0].Kind)
}

func TestRescheduleLockWindow(t *testing.T) {
	store := new(mockStore)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), &recordingBus{}, now)
	ctx := context.Background()

	b := &model.Booking{ID: 7, ClientID: 2, Status: model.StatusConfirmed,
		StartsAt: now.Add(time.Hour), EndsAt: now.Add(2 * time.Hour)}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()

	_, err := svc.Reschedule(ctx, 7, 2, now.Add(48*time.Hour))
	var le *model.LockWindowError
	assert.ErrorAs(t, err, &le)
	assert.Equal(t, "reschedule", le.Action)
}

func TestRescheduleTerminalBooking(t *testing.T) {
	store := new(mockStore)
	now := ts(t, "2026-04-01 09:00")
	svc, _ := newTestService(store, new(mockCatalog), &recordingBus{}, now)
	ctx := context.Background()

	b := &model.Booking{ID: 7, ClientID: 2, Status: model.StatusCancelled,
		StartsAt: now.Add(48 * time.Hour)}
	store.On("GetBooking", ctx, int64(7)).Return(b, nil).Once()

	_, err := svc.Reschedule(ctx, 7, 2, now.Add(72*time.Hour))
	var te *model.InvalidTransitionError
	assert.ErrorAs(t, err, &te)
}
