package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapisnik/internal/booking"
	"zapisnik/internal/db"
	"zapisnik/internal/model"
	"zapisnik/internal/notify"
	"zapisnik/internal/schedule"
	"zapisnik/internal/slots"
)

const testAPIKey = "secret"

type testEnv struct {
	ts       *httptest.Server
	db       *db.DB
	masterID int64
	clientID int64
	client2  int64
	service  int64
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	logger := zerolog.New(io.Discard)

	database, err := db.New(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })

	env := &testEnv{db: database}
	env.masterID, err = database.CreateMaster(ctx, "Ирина")
	require.NoError(t, err)
	env.clientID, err = database.CreateClient(ctx, "Анна", "+79990000001")
	require.NoError(t, err)
	env.client2, err = database.CreateClient(ctx, "Борис", "+79990000002")
	require.NoError(t, err)
	env.service, err = database.CreateService(ctx, model.Service{
		Name: "Стрижка", Category: "hair", BasePrice: 150000, BaseDurationMinutes: 60,
	})
	require.NoError(t, err)
	require.NoError(t, database.AssignService(ctx, model.MasterService{MasterID: env.masterID, ServiceID: env.service}))

	guard := booking.NewGuard(database, database)
	bookings := booking.NewService(database, database, guard, notify.NewBus(), booking.DefaultConfig(), logger)
	schedules := schedule.NewService(database, guard, 365, logger)
	generator := slots.NewGenerator(schedules, database, slots.Config{Step: 15 * time.Minute, MaxDaysAhead: 365})

	s := NewHTTPServer(0, testAPIKey, bookings, schedules, generator, database, logger)
	env.ts = httptest.NewServer(s.server.Handler)
	t.Cleanup(env.ts.Close)
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("X-API-Key", testAPIKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

// bookingDate is far enough out that lock windows never apply in tests.
func bookingDate() time.Time {
	return time.Now().UTC().AddDate(0, 0, 2).Truncate(24 * time.Hour)
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.ts.URL + fmt.Sprintf("/api/v1/bookings/%d", 1))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestBookingLifecycle(t *testing.T) {
	env := newTestEnv(t)
	startsAt := bookingDate().Add(12 * time.Hour)

	status, body := env.do(t, http.MethodPost, "/api/v1/bookings", ReserveRequest{
		MasterID:   env.masterID,
		ClientID:   env.clientID,
		ServiceIDs: []int64{env.service},
		StartsAt:   startsAt.Format(time.RFC3339),
	})
	require.Equal(t, http.StatusCreated, status, "body: %v", body)
	id := int64(body["id"].(float64))
	assert.Equal(t, "reserved", body["status"])
	assert.NotEmpty(t, body["ref"])
	assert.Equal(t, float64(150000), body["total_price"])

	// Another client cannot take an overlapping slot.
	status, body = env.do(t, http.MethodPost, "/api/v1/bookings", ReserveRequest{
		MasterID:   env.masterID,
		ClientID:   env.client2,
		ServiceIDs: []int64{env.service},
		StartsAt:   startsAt.Add(30 * time.Minute).Format(time.RFC3339),
	})
	assert.Equal(t, http.StatusConflict, status)
	conflicts, ok := body["conflicts"].([]interface{})
	require.True(t, ok, "conflict response carries the blocking list: %v", body)
	require.Len(t, conflicts, 1)
	first := conflicts[0].(map[string]interface{})
	assert.Equal(t, float64(id), first["booking_id"])

	// Master confirms.
	status, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/confirm", id),
		actorRequest{MasterID: env.masterID})
	assert.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", id), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "confirmed", body["status"])

	// A stranger cannot confirm someone else's booking.
	status, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/complete", id),
		actorRequest{MasterID: env.masterID + 1})
	assert.Equal(t, http.StatusForbidden, status)

	// Closing the day while the booking is active is rejected with the
	// blocking booking listed; nothing is cancelled implicitly.
	dateStr := bookingDate().Format("2006-01-02")
	status, body = env.do(t, http.MethodPut,
		fmt.Sprintf("/api/v1/masters/%d/exceptions/%s", env.masterID, dateStr),
		ExceptionRequest{})
	assert.Equal(t, http.StatusConflict, status)
	_, ok = body["conflicts"]
	assert.True(t, ok, "day-off rejection lists conflicts: %v", body)

	// Client cancels well before the lock window.
	status, _ = env.do(t, http.MethodPost, fmt.Sprintf("/api/v1/bookings/%d/cancel", id),
		actorRequest{ClientID: env.clientID})
	assert.Equal(t, http.StatusOK, status)

	status, body = env.do(t, http.MethodGet, fmt.Sprintf("/api/v1/bookings/%d", id), nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cancelled", body["status"])

	// With the slot free the day can be closed now.
	status, _ = env.do(t, http.MethodPut,
		fmt.Sprintf("/api/v1/masters/%d/exceptions/%s", env.masterID, dateStr),
		ExceptionRequest{})
	assert.Equal(t, http.StatusOK, status)
}

func TestSlotsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	date := bookingDate()
	// 10:00-18:00 on that weekday.
	require.NoError(t, env.db.ReplaceWeekdayWindows(ctx, env.masterID, date.Weekday(),
		[]model.Window{{Start: 600, End: 1080}}))

	status, body := env.do(t, http.MethodPost, "/api/v1/slots", SlotsRequest{
		MasterID:   env.masterID,
		ServiceIDs: []int64{env.service},
		FromDate:   date.Format("2006-01-02"),
		Days:       1,
	})
	require.Equal(t, http.StatusOK, status, "body: %v", body)
	assert.Equal(t, float64(60), body["duration_minutes"])
	starts, ok := body["slots"].([]interface{})
	require.True(t, ok)
	assert.NotEmpty(t, starts)
}

func TestSlotsUnknownService(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/api/v1/slots", SlotsRequest{
		MasterID:   env.masterID,
		ServiceIDs: []int64{9999},
	})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	date := bookingDate()
	require.NoError(t, env.db.ReplaceWeekdayWindows(ctx, env.masterID, date.Weekday(),
		[]model.Window{{Start: 540, End: 780}}))

	status, body := env.do(t, http.MethodGet,
		fmt.Sprintf("/api/v1/masters/%d/availability?date=%s", env.masterID, date.Format("2006-01-02")), nil)
	require.Equal(t, http.StatusOK, status)
	windows := body["windows"].([]interface{})
	require.Len(t, windows, 1)
	w := windows[0].(map[string]interface{})
	assert.Equal(t, "09:00", w["start"])
	assert.Equal(t, "13:00", w["end"])
}

func TestSetWeeklyRejectsBadWindows(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPut,
		fmt.Sprintf("/api/v1/masters/%d/weekly/1", env.masterID),
		WeeklyRequest{Windows: []windowJSON{{Start: "18:00", End: "10:00"}}})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodPut,
		fmt.Sprintf("/api/v1/masters/%d/weekly/9", env.masterID),
		WeeklyRequest{})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestGetBookingNotFound(t *testing.T) {
	env := newTestEnv(t)
	status, _ := env.do(t, http.MethodGet, "/api/v1/bookings/9999", nil)
	assert.Equal(t, http.StatusNotFound, status)
}
