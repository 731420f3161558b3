// Package google mirrors the booking ledger into a Google Sheets spreadsheet
// so the salon owner can see current state without touching the database.
package google

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"zapisnik/internal/model"
	"zapisnik/internal/notify"
)

const sheetName = "bookings"

var headerRow = []interface{}{
	"ID", "Ref", "Master", "Client", "Services", "Start", "End", "Status", "Total",
}

// BookingLoader fetches the booking an event refers to.
type BookingLoader interface {
	GetBooking(ctx context.Context, id int64) (*model.Booking, error)
}

// NameResolver returns display names for spreadsheet rows.
type NameResolver interface {
	MasterName(ctx context.Context, id int64) (string, error)
}

// SheetsService keeps one spreadsheet row per booking, updated on every
// lifecycle event. Row positions are cached per booking id to avoid
// rescanning the sheet on each update.
type SheetsService struct {
	srv           *sheets.Service
	spreadsheetID string
	bookings      BookingLoader
	names         NameResolver
	logger        zerolog.Logger

	queue chan int64

	cacheMu  sync.RWMutex
	rowCache map[int64]int
}

// NewSheetsService authorizes against the Sheets API with a service-account
// key and returns a mirror bound to one spreadsheet.
func NewSheetsService(ctx context.Context, credentialsJSON []byte, spreadsheetID string, bookings BookingLoader, names NameResolver, logger zerolog.Logger) (*SheetsService, error) {
	conf, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}
	srv, err := sheets.NewService(ctx, option.WithHTTPClient(conf.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}
	return &SheetsService{
		srv:           srv,
		spreadsheetID: spreadsheetID,
		bookings:      bookings,
		names:         names,
		logger:        logger.With().Str("component", "sheets").Logger(),
		queue:         make(chan int64, 256),
		rowCache:      make(map[int64]int),
	}, nil
}

// Attach subscribes the mirror to every event on the bus. Only the booking id
// crosses the channel; the worker reloads current state before writing.
func (s *SheetsService) Attach(bus *notify.Bus) {
	bus.SubscribeAll(func(ev notify.Event) {
		// One row per booking, so client/master duplicates collapse anyway;
		// only mirror the client-side copy of each event.
		if ev.Recipient != notify.RoleClient {
			return
		}
		select {
		case s.queue <- ev.BookingID:
		default:
			s.logger.Warn().Int64("booking_id", ev.BookingID).Msg("sheets queue full, update dropped")
		}
	})
}

// Run processes queued mirror updates until the context is cancelled.
func (s *SheetsService) Run(ctx context.Context) {
	s.logger.Info().Str("spreadsheet_id", s.spreadsheetID).Msg("sheets mirror started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sheets mirror stopped")
			return
		case id := <-s.queue:
			if err := s.Mirror(ctx, id); err != nil {
				s.logger.Error().Err(err).Int64("booking_id", id).Msg("sheets update failed")
			}
		}
	}
}

// Mirror writes the booking's current state into its spreadsheet row,
// appending a new row on first sight.
func (s *SheetsService) Mirror(ctx context.Context, bookingID int64) error {
	b, err := s.bookings.GetBooking(ctx, bookingID)
	if err != nil {
		return fmt.Errorf("load booking: %w", err)
	}

	masterName, err := s.names.MasterName(ctx, b.MasterID)
	if err != nil {
		masterName = fmt.Sprintf("master %d", b.MasterID)
	}
	values := bookingRowValues(b, masterName)

	if row, ok := s.getCachedRow(b.ID); ok {
		return s.updateRow(ctx, row, values)
	}

	row, err := s.findRow(ctx, b.ID)
	if err != nil {
		return err
	}
	if row > 0 {
		s.setCachedRow(b.ID, row)
		return s.updateRow(ctx, row, values)
	}
	return s.appendRow(ctx, b.ID, values)
}

func bookingRowValues(b *model.Booking, masterName string) []interface{} {
	services := ""
	for i, it := range b.Items {
		if i > 0 {
			services += ", "
		}
		services += it.Name
	}
	return []interface{}{
		b.ID,
		b.Ref,
		masterName,
		b.ClientName,
		services,
		b.StartsAt.Format("2006-01-02 15:04"),
		b.EndsAt.Format("2006-01-02 15:04"),
		string(b.Status),
		float64(b.TotalPrice()) / 100,
	}
}

// EnsureHeader writes the header row once; safe to call on every start.
func (s *SheetsService) EnsureHeader(ctx context.Context) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{headerRow}}
	_, err := s.srv.Spreadsheets.Values.
		Update(s.spreadsheetID, sheetName+"!A1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// findRow scans the id column for the booking; 0 means not present yet.
func (s *SheetsService) findRow(ctx context.Context, bookingID int64) (int, error) {
	resp, err := s.srv.Spreadsheets.Values.
		Get(s.spreadsheetID, sheetName+"!A:A").
		Context(ctx).
		Do()
	if err != nil {
		return 0, fmt.Errorf("scan id column: %w", err)
	}
	want := fmt.Sprintf("%d", bookingID)
	for i, row := range resp.Values {
		if len(row) > 0 && fmt.Sprintf("%v", row[0]) == want {
			return i + 1, nil
		}
	}
	return 0, nil
}

func (s *SheetsService) updateRow(ctx context.Context, row int, values []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	_, err := s.srv.Spreadsheets.Values.
		Update(s.spreadsheetID, fmt.Sprintf("%s!A%d", sheetName, row), vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("update row %d: %w", row, err)
	}
	return nil
}

func (s *SheetsService) appendRow(ctx context.Context, bookingID int64, values []interface{}) error {
	vr := &sheets.ValueRange{Values: [][]interface{}{values}}
	resp, err := s.srv.Spreadsheets.Values.
		Append(s.spreadsheetID, sheetName+"!A:A", vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append row: %w", err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		var row int
		if _, err := fmt.Sscanf(trimRangePrefix(resp.Updates.UpdatedRange), "A%d", &row); err == nil {
			s.setCachedRow(bookingID, row)
		}
	}
	return nil
}

// trimRangePrefix strips the "sheet!" part of an A1 range.
func trimRangePrefix(r string) string {
	for i := len(r) - 1; i >= 0; i-- {
		if r[i] == '!' {
			return r[i+1:]
		}
	}
	return r
}

func (s *SheetsService) getCachedRow(bookingID int64) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[bookingID]
	return row, ok
}

func (s *SheetsService) setCachedRow(bookingID int64, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[bookingID] = row
}

func (s *SheetsService) deleteCachedRow(bookingID int64) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, bookingID)
}

// ClearCache drops all cached row positions, forcing rescans.
func (s *SheetsService) ClearCache() {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[int64]int)
}
