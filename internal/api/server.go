// Package api exposes the booking core over JSON HTTP for the surrounding
// bot and admin frontends.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"zapisnik/internal/booking"
	"zapisnik/internal/model"
	"zapisnik/internal/schedule"
	"zapisnik/internal/slots"
)

// HTTPServer serves the booking API.
type HTTPServer struct {
	server    *http.Server
	bookings  *booking.Service
	schedules *schedule.Service
	generator *slots.Generator
	catalog   booking.Catalog
	apiKey    string
	logger    zerolog.Logger
}

// NewHTTPServer wires the API routes. An empty apiKey disables authentication.
func NewHTTPServer(port int, apiKey string, bookings *booking.Service, schedules *schedule.Service, generator *slots.Generator, catalog booking.Catalog, logger zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		bookings:  bookings,
		schedules: schedules,
		generator: generator,
		catalog:   catalog,
		apiKey:    apiKey,
		logger:    logger.With().Str("component", "api").Logger(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/slots", s.handleSlots)
	mux.HandleFunc("POST /api/v1/bookings", s.handleReserve)
	mux.HandleFunc("GET /api/v1/bookings/{id}", s.handleGetBooking)
	mux.HandleFunc("POST /api/v1/bookings/{id}/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/v1/bookings/{id}/payment", s.handleRequestPayment)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cash", s.handleAwaitCash)
	mux.HandleFunc("POST /api/v1/bookings/{id}/paid", s.handleMarkPaid)
	mux.HandleFunc("POST /api/v1/bookings/{id}/begin", s.handleBegin)
	mux.HandleFunc("POST /api/v1/bookings/{id}/complete", s.handleComplete)
	mux.HandleFunc("POST /api/v1/bookings/{id}/no-show", s.handleNoShow)
	mux.HandleFunc("POST /api/v1/bookings/{id}/cancel", s.handleCancel)
	mux.HandleFunc("POST /api/v1/bookings/{id}/reschedule", s.handleReschedule)
	mux.HandleFunc("GET /api/v1/masters/{id}/availability", s.handleAvailability)
	mux.HandleFunc("PUT /api/v1/masters/{id}/weekly/{weekday}", s.handleSetWeekly)
	mux.HandleFunc("PUT /api/v1/masters/{id}/exceptions/{date}", s.handleSetException)
	mux.HandleFunc("DELETE /api/v1/masters/{id}/exceptions/{date}", s.handleClearException)

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           s.auth(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled.
func (s *HTTPServer) Run(ctx context.Context) {
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.server.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Str("addr", s.server.Addr).Msg("api server started")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("api server error")
	}
}

func (s *HTTPServer) auth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey != "" && r.Header.Get("X-API-Key") != s.apiKey {
			writeError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// conflictJSON is the wire shape of one blocking booking.
type conflictJSON struct {
	BookingID  int64  `json:"booking_id"`
	Ref        string `json:"ref"`
	MasterID   int64  `json:"master_id"`
	ClientName string `json:"client_name,omitempty"`
	StartsAt   string `json:"starts_at"`
	EndsAt     string `json:"ends_at"`
}

// writeDomainError maps core errors onto HTTP statuses. Conflicts carry the
// full blocking list so the caller can show what is in the way.
func (s *HTTPServer) writeDomainError(w http.ResponseWriter, err error) {
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		writeError(w, http.StatusBadRequest, ve.Error())
		return
	}
	if ce, ok := model.AsConflict(err); ok {
		conflicts := make([]conflictJSON, len(ce.Conflicts))
		for i, c := range ce.Conflicts {
			conflicts[i] = conflictJSON{
				BookingID:  c.BookingID,
				Ref:        c.Ref,
				MasterID:   c.MasterID,
				ClientName: c.ClientName,
				StartsAt:   c.StartsAt.Format(time.RFC3339),
				EndsAt:     c.EndsAt.Format(time.RFC3339),
			}
		}
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":     ce.Error(),
			"conflicts": conflicts,
		})
		return
	}
	var le *model.LockWindowError
	if errors.As(err, &le) {
		writeJSON(w, http.StatusConflict, map[string]interface{}{
			"error":    le.Error(),
			"deadline": le.Deadline().Format(time.RFC3339),
		})
		return
	}
	var te *model.InvalidTransitionError
	if errors.As(err, &te) {
		writeError(w, http.StatusConflict, te.Error())
		return
	}
	if errors.Is(err, model.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	if errors.Is(err, model.ErrForbidden) {
		writeError(w, http.StatusForbidden, "forbidden")
		return
	}
	s.logger.Error().Err(err).Msg("internal error")
	writeError(w, http.StatusInternalServerError, "internal error")
}
