package api

import (
	"net/http"
	"time"

	"zapisnik/internal/model"
)

// SlotsRequest is the body for POST /api/v1/slots.
type SlotsRequest struct {
	MasterID   int64   `json:"master_id"`
	ServiceIDs []int64 `json:"service_ids"`
	FromDate   string  `json:"from_date"` // YYYY-MM-DD, defaults to today
	Days       int     `json:"days"`      // defaults to 14
}

// SlotsResponse lists bookable start times in chronological order.
type SlotsResponse struct {
	Slots           []string `json:"slots"` // RFC 3339
	DurationMinutes int      `json:"duration_minutes"`
}

func (s *HTTPServer) handleSlots(w http.ResponseWriter, r *http.Request) {
	var req SlotsRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.MasterID == 0 || len(req.ServiceIDs) == 0 {
		writeError(w, http.StatusBadRequest, "master_id and service_ids are required")
		return
	}

	items, err := s.catalog.MasterLineItems(r.Context(), req.MasterID, req.ServiceIDs)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if len(items) != len(req.ServiceIDs) {
		writeError(w, http.StatusBadRequest, "master does not offer all requested services")
		return
	}

	var duration time.Duration
	for _, it := range items {
		duration += time.Duration(it.DurationMinutes) * time.Minute
	}

	from := time.Now()
	if req.FromDate != "" {
		from, err = time.ParseInLocation("2006-01-02", req.FromDate, time.Local)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid from_date; expected YYYY-MM-DD")
			return
		}
	}
	days := req.Days
	if days <= 0 {
		days = 14
	}

	starts, err := s.generator.Generate(r.Context(), req.MasterID, duration, from, days)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	out := make([]string, len(starts))
	for i, t := range starts {
		out[i] = t.Format(time.RFC3339)
	}
	writeJSON(w, http.StatusOK, SlotsResponse{
		Slots:           out,
		DurationMinutes: int(duration / time.Minute),
	})
}

// windowJSON is the wire shape of one availability window.
type windowJSON struct {
	Start string `json:"start"` // HH:MM
	End   string `json:"end"`   // HH:MM
}

func parseWindows(in []windowJSON) ([]model.Window, error) {
	out := make([]model.Window, 0, len(in))
	for _, wj := range in {
		w, err := model.NewWindow(wj.Start, wj.End)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

func windowsJSON(in []model.Window) []windowJSON {
	out := make([]windowJSON, len(in))
	for i, w := range in {
		parts := w.String()
		out[i] = windowJSON{Start: parts[:5], End: parts[6:]}
	}
	return out
}

func (s *HTTPServer) handleAvailability(w http.ResponseWriter, r *http.Request) {
	masterID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid master id")
		return
	}
	dateStr := r.URL.Query().Get("date")
	date, err := time.ParseInLocation("2006-01-02", dateStr, time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	windows, err := s.schedules.EffectiveWindows(r.Context(), masterID, date)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"date":    dateStr,
		"windows": windowsJSON(windows),
	})
}

// WeeklyRequest is the body for PUT /api/v1/masters/{id}/weekly/{weekday}.
type WeeklyRequest struct {
	Windows []windowJSON `json:"windows"`
}

func (s *HTTPServer) handleSetWeekly(w http.ResponseWriter, r *http.Request) {
	masterID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid master id")
		return
	}
	weekday, ok := pathWeekday(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid weekday; expected 0 (Sunday) through 6")
		return
	}
	var req WeeklyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	windows, err := parseWindows(req.Windows)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.schedules.SetWeekdayWindows(r.Context(), masterID, weekday, windows); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

// ExceptionRequest is the body for PUT /api/v1/masters/{id}/exceptions/{date}.
// An empty window list closes the whole day.
type ExceptionRequest struct {
	Windows []windowJSON `json:"windows"`
}

func (s *HTTPServer) handleSetException(w http.ResponseWriter, r *http.Request) {
	masterID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid master id")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", r.PathValue("date"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}
	var req ExceptionRequest
	if !decodeBody(w, r, &req) {
		return
	}
	windows, err := parseWindows(req.Windows)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if err := s.schedules.SetException(r.Context(), masterID, date, windows); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *HTTPServer) handleClearException(w http.ResponseWriter, r *http.Request) {
	masterID, ok := pathID(r, "id")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid master id")
		return
	}
	date, err := time.ParseInLocation("2006-01-02", r.PathValue("date"), time.Local)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date; expected YYYY-MM-DD")
		return
	}

	if err := s.schedules.ClearException(r.Context(), masterID, date); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func pathWeekday(r *http.Request) (time.Weekday, bool) {
	switch r.PathValue("weekday") {
	case "0":
		return time.Sunday, true
	case "1":
		return time.Monday, true
	case "2":
		return time.Tuesday, true
	case "3":
		return time.Wednesday, true
	case "4":
		return time.Thursday, true
	case "5":
		return time.Friday, true
	case "6":
		return time.Saturday, true
	}
	return 0, false
}
