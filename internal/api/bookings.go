package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"zapisnik/internal/model"
)

// bookingJSON is the wire shape of a booking.
type bookingJSON struct {
	ID         int64          `json:"id"`
	Ref        string         `json:"ref"`
	MasterID   int64          `json:"master_id"`
	ClientID   int64          `json:"client_id"`
	ClientName string         `json:"client_name,omitempty"`
	Items      []lineItemJSON `json:"items"`
	StartsAt   string         `json:"starts_at"`
	EndsAt     string         `json:"ends_at"`
	Status     string         `json:"status"`
	TotalPrice int64          `json:"total_price"`
}

type lineItemJSON struct {
	ServiceID       int64  `json:"service_id"`
	Name            string `json:"name"`
	DurationMinutes int    `json:"duration_minutes"`
	Price           int64  `json:"price"`
}

func toBookingJSON(b *model.Booking) bookingJSON {
	items := make([]lineItemJSON, len(b.Items))
	for i, it := range b.Items {
		items[i] = lineItemJSON{
			ServiceID:       it.ServiceID,
			Name:            it.Name,
			DurationMinutes: it.DurationMinutes,
			Price:           it.Price,
		}
	}
	return bookingJSON{
		ID:         b.ID,
		Ref:        b.Ref,
		MasterID:   b.MasterID,
		ClientID:   b.ClientID,
		ClientName: b.ClientName,
		Items:      items,
		StartsAt:   b.StartsAt.Format(time.RFC3339),
		EndsAt:     b.EndsAt.Format(time.RFC3339),
		Status:     string(b.Status),
		TotalPrice: b.TotalPrice(),
	}
}

func pathID(r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	return id, err == nil && id > 0
}

func decodeBody(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return false
	}
	return true
}

// ReserveRequest is the body for POST /api/v1/bookings.
type ReserveRequest struct {
	MasterID   int64   `json:"master_id"`
	ClientID   int64   `json:"client_id"`
	ServiceIDs []int64 `json:"service_ids"`
	StartsAt   string  `json:"starts_at"` // RFC 3339
}

func (s *HTTPServer) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if !decodeBody(w, r, &req) {
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid starts_at; expected RFC 3339")
		return
	}

	b, err := s.bookings.Reserve(r.Context(), req.MasterID, req.ClientID, req.ServiceIDs, startsAt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookingJSON(b))
}

func (s *HTTPServer) handleGetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	b, err := s.bookings.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingJSON(b))
}

// actorRequest carries the id of whoever performs a lifecycle action.
type actorRequest struct {
	MasterID int64 `json:"master_id,omitempty"`
	ClientID int64 `json:"client_id,omitempty"`
}

func (s *HTTPServer) handleConfirm(w http.ResponseWriter, r *http.Request) {
	s.masterAction(w, r, s.bookings.Confirm)
}

func (s *HTTPServer) handleBegin(w http.ResponseWriter, r *http.Request) {
	s.masterAction(w, r, s.bookings.Begin)
}

func (s *HTTPServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	s.masterAction(w, r, s.bookings.Complete)
}

func (s *HTTPServer) handleNoShow(w http.ResponseWriter, r *http.Request) {
	s.masterAction(w, r, s.bookings.MarkNoShow)
}

func (s *HTTPServer) masterAction(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, bookingID, masterID int64) error) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req actorRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MasterID == 0 {
		writeError(w, http.StatusBadRequest, "master_id is required")
		return
	}
	if err := action(r.Context(), id, req.MasterID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *HTTPServer) handleRequestPayment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	b, err := s.bookings.RequestPayment(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingJSON(b))
}

func (s *HTTPServer) handleAwaitCash(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.bookings.AwaitCash)
}

func (s *HTTPServer) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	s.simpleTransition(w, r, s.bookings.MarkPaid)
}

func (s *HTTPServer) simpleTransition(w http.ResponseWriter, r *http.Request, action func(ctx context.Context, bookingID int64) error) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	if err := action(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *HTTPServer) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req actorRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var err error
	switch {
	case req.ClientID != 0:
		err = s.bookings.CancelByClient(r.Context(), id, req.ClientID)
	case req.MasterID != 0:
		err = s.bookings.CancelByMaster(r.Context(), id, req.MasterID)
	default:
		writeError(w, http.StatusBadRequest, "client_id or master_id is required")
		return
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// RescheduleRequest is the body for POST /api/v1/bookings/{id}/reschedule.
type RescheduleRequest struct {
	ClientID int64  `json:"client_id"`
	StartsAt string `json:"starts_at"` // RFC 3339
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid booking id")
		return
	}
	var req RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}
	startsAt, err := time.Parse(time.RFC3339, req.StartsAt)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid starts_at; expected RFC 3339")
		return
	}

	b, err := s.bookings.Reschedule(r.Context(), id, req.ClientID, startsAt)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBookingJSON(b))
}
