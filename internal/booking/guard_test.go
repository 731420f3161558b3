package booking

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"zapisnik/internal/model"
)

type mockOverlapStore struct {
	mock.Mock
}

func (m *mockOverlapStore) ListOverlapping(ctx context.Context, q model.OverlapQuery) ([]model.Booking, error) {
	args := m.Called(ctx, q)
	return args.Get(0).([]model.Booking), args.Error(1)
}

func (m *mockOverlapStore) ListActiveInRange(ctx context.Context, masterID int64, from, to time.Time) ([]model.Booking, error) {
	args := m.Called(ctx, masterID, from, to)
	return args.Get(0).([]model.Booking), args.Error(1)
}

type mockExceptions struct {
	mock.Mock
}

func (m *mockExceptions) HasException(ctx context.Context, masterID int64, date time.Time) (bool, error) {
	args := m.Called(ctx, masterID, date)
	return args.Bool(0), args.Error(1)
}

func ts(t *testing.T, s string) time.Time {
	t.Helper()
	v, err := time.ParseInLocation("2006-01-02 15:04", s, time.UTC)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func TestGuardCheckClear(t *testing.T) {
	store := new(mockOverlapStore)
	g := NewGuard(store, new(mockExceptions))
	ctx := context.Background()
	iv := model.Interval{Start: ts(t, "2026-04-01 10:00"), End: ts(t, "2026-04-01 11:00")}

	store.On("ListOverlapping", ctx, mock.MatchedBy(func(q model.OverlapQuery) bool { return q.MasterID == 1 })).
		Return([]model.Booking{}, nil).Once()
	store.On("ListOverlapping", ctx, mock.MatchedBy(func(q model.OverlapQuery) bool { return q.ClientID == 2 })).
		Return([]model.Booking{}, nil).Once()

	err := g.Check(ctx, 1, 2, iv, 0)
	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestGuardCheckReportsBothSides(t *testing.T) {
	store := new(mockOverlapStore)
	g := NewGuard(store, new(mockExceptions))
	ctx := context.Background()
	iv := model.Interval{Start: ts(t, "2026-04-01 10:00"), End: ts(t, "2026-04-01 11:00")}

	masterBlock := model.Booking{ID: 10, Ref: "a", MasterID: 1, ClientName: "Anna",
		StartsAt: ts(t, "2026-04-01 10:30"), EndsAt: ts(t, "2026-04-01 11:30")}
	clientBlock := model.Booking{ID: 11, Ref: "b", MasterID: 9, ClientName: "Boris",
		StartsAt: ts(t, "2026-04-01 09:30"), EndsAt: ts(t, "2026-04-01 10:30")}

	store.On("ListOverlapping", ctx, mock.MatchedBy(func(q model.OverlapQuery) bool { return q.MasterID == 1 })).
		Return([]model.Booking{masterBlock}, nil).Once()
	store.On("ListOverlapping", ctx, mock.MatchedBy(func(q model.OverlapQuery) bool { return q.ClientID == 2 })).
		Return([]model.Booking{clientBlock}, nil).Once()

	err := g.Check(ctx, 1, 2, iv, 0)
	ce, ok := model.AsConflict(err)
	assert.True(t, ok)
	assert.Len(t, ce.Conflicts, 2)
	// The error names the blocking bookings and their times.
	assert.Contains(t, err.Error(), "#10")
	assert.Contains(t, err.Error(), "Anna")
	assert.Contains(t, err.Error(), "2026-04-01 10:30")
}

func TestGuardCheckDeduplicates(t *testing.T) {
	store := new(mockOverlapStore)
	g := NewGuard(store, new(mockExceptions))
	ctx := context.Background()
	iv := model.Interval{Start: ts(t, "2026-04-01 10:00"), End: ts(t, "2026-04-01 11:00")}

	// Same booking blocks on both the master and the client axis.
	blocker := model.Booking{ID: 10, MasterID: 1, ClientID: 2,
		StartsAt: ts(t, "2026-04-01 10:30"), EndsAt: ts(t, "2026-04-01 11:30")}

	store.On("ListOverlapping", ctx, mock.Anything).Return([]model.Booking{blocker}, nil).Twice()

	err := g.Check(ctx, 1, 2, iv, 0)
	ce, ok := model.AsConflict(err)
	assert.True(t, ok)
	assert.Len(t, ce.Conflicts, 1)
}

func TestGuardCheckInvalidInterval(t *testing.T) {
	g := NewGuard(new(mockOverlapStore), new(mockExceptions))
	iv := model.Interval{Start: ts(t, "2026-04-01 11:00"), End: ts(t, "2026-04-01 10:00")}
	err := g.Check(context.Background(), 1, 2, iv, 0)
	var ve *model.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestDayConflictsDayOff(t *testing.T) {
	store := new(mockOverlapStore)
	g := NewGuard(store, new(mockExceptions))
	ctx := context.Background()
	date := ts(t, "2026-04-01 00:00")

	existing := model.Booking{ID: 5, Ref: "c", ClientName: "Vera",
		StartsAt: ts(t, "2026-04-01 10:00"), EndsAt: ts(t, "2026-04-01 11:00")}
	store.On("ListActiveInRange", ctx, int64(1), date, date.AddDate(0, 0, 1)).
		Return([]model.Booking{existing}, nil).Once()

	// Closing the whole day: every active booking that day conflicts.
	conflicts, err := g.DayConflicts(ctx, 1, date, nil)
	assert.NoError(t, err)
	assert.Len(t, conflicts, 1)
	assert.Equal(t, int64(5), conflicts[0].BookingID)
}

func TestDayConflictsCoveredBooking(t *testing.T) {
	store := new(mockOverlapStore)
	g := NewGuard(store, new(mockExceptions))
	ctx := context.Background()
	date := ts(t, "2026-04-01 00:00")

	existing := model.Booking{ID: 5,
		StartsAt: ts(t, "2026-04-01 10:00"), EndsAt: ts(t, "2026-04-01 11:00")}
	store.On("ListActiveInRange", ctx, int64(1), date, date.AddDate(0, 0, 1)).
		Return([]model.Booking{existing}, nil)

	// New windows still cover 10:00-11:00: no conflict.
	conflicts, err := g.DayConflicts(ctx, 1, date, []model.Window{{Start: 600, End: 720}})
	assert.NoError(t, err)
	assert.Empty(t, conflicts)

	// Shrunk to 10:30-12:00: the booking sticks out on the left.
	conflicts, err = g.DayConflicts(ctx, 1, date, []model.Window{{Start: 630, End: 720}})
	assert.NoError(t, err)
	assert.Len(t, conflicts, 1)
}

func TestWindowConflictsSkipsExceptionDates(t *testing.T) {
	store := new(mockOverlapStore)
	exceptions := new(mockExceptions)
	g := NewGuard(store, exceptions)
	ctx := context.Background()

	from := ts(t, "2026-04-01 00:00") // Wednesday
	booked := model.Booking{ID: 5,
		StartsAt: ts(t, "2026-04-08 10:00"), EndsAt: ts(t, "2026-04-08 11:00")}

	// First Wednesday is overridden by an exception; the weekly edit does not
	// govern it, so only the second Wednesday is scanned.
	exceptions.On("HasException", ctx, int64(1), from).Return(true, nil).Once()
	exceptions.On("HasException", ctx, int64(1), from.AddDate(0, 0, 7)).Return(false, nil).Once()
	store.On("ListActiveInRange", ctx, int64(1), from.AddDate(0, 0, 7), from.AddDate(0, 0, 8)).
		Return([]model.Booking{booked}, nil).Once()

	conflicts, err := g.WindowConflicts(ctx, 1, time.Wednesday, nil, from, 14)
	assert.NoError(t, err)
	assert.Len(t, conflicts, 1)
	assert.Equal(t, int64(5), conflicts[0].BookingID)
	store.AssertExpectations(t)
	exceptions.AssertExpectations(t)
}
