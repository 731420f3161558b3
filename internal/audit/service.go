// Package audit exports finished bookings to monthly Excel reports and prunes
// terminal rows past the retention window.
package audit

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"zapisnik/internal/model"
)

// Store provides the export and cleanup queries.
type Store interface {
	ListTerminalBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error)
	DeleteTerminalOlderThan(ctx context.Context, olderThan time.Duration) (int64, error)
}

// NameResolver maps master ids to display names for the report.
type NameResolver interface {
	MasterName(ctx context.Context, id int64) (string, error)
}

// Config holds audit parameters.
type Config struct {
	// Dir is where report files are written.
	Dir string
	// RetentionDays is how long terminal bookings stay queryable.
	RetentionDays int
	// ExportOnStart runs an export for the previous month immediately.
	ExportOnStart bool
}

// DefaultConfig mirrors the configuration surface defaults.
func DefaultConfig() Config {
	return Config{
		Dir:           "reports",
		RetentionDays: 93,
	}
}

// Service runs the monthly export-then-cleanup cycle.
type Service struct {
	store  Store
	names  NameResolver
	cfg    Config
	now    func() time.Time
	logger zerolog.Logger
}

// NewService creates an audit service.
func NewService(store Store, names NameResolver, cfg Config, logger zerolog.Logger) *Service {
	if cfg.RetentionDays <= 0 {
		cfg.RetentionDays = 93
	}
	if cfg.Dir == "" {
		cfg.Dir = "reports"
	}
	return &Service{
		store:  store,
		names:  names,
		cfg:    cfg,
		now:    time.Now,
		logger: logger.With().Str("component", "audit").Logger(),
	}
}

// Run fires on the first of every month shortly after midnight, exporting the
// month that just ended and then pruning rows past retention.
func (s *Service) Run(ctx context.Context) {
	if s.cfg.ExportOnStart {
		s.runCycle(ctx)
	}

	for {
		next := s.nextFirstOfMonth()
		s.logger.Info().Time("next_run", next).Msg("audit scheduled")

		timer := time.NewTimer(time.Until(next))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info().Msg("audit service stopped")
			return
		case <-timer.C:
			s.runCycle(ctx)
		}
	}
}

func (s *Service) runCycle(ctx context.Context) {
	path, err := s.ExportPreviousMonth(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit export failed")
	} else if path != "" {
		s.logger.Info().Str("path", path).Msg("audit report written")
	}
	deleted, err := s.Cleanup(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("audit cleanup failed")
	} else if deleted > 0 {
		s.logger.Info().Int64("deleted", deleted).Msg("old terminal bookings pruned")
	}
}

// ExportPreviousMonth writes the report for the calendar month before the
// current one. Returns "" when the month had no finished bookings.
func (s *Service) ExportPreviousMonth(ctx context.Context) (string, error) {
	now := s.now()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return s.Export(ctx, monthStart.AddDate(0, -1, 0))
}

// Export writes one month's finished bookings to an xlsx file, one sheet per
// master.
func (s *Service) Export(ctx context.Context, month time.Time) (string, error) {
	from := time.Date(month.Year(), month.Month(), 1, 0, 0, 0, 0, month.Location())
	to := from.AddDate(0, 1, 0)

	bookings, err := s.store.ListTerminalBetween(ctx, from, to)
	if err != nil {
		return "", fmt.Errorf("load bookings: %w", err)
	}
	if len(bookings) == 0 {
		return "", nil
	}

	wb := newWorkbook()
	defer wb.close()

	var currentMaster int64 = -1
	for i := range bookings {
		b := &bookings[i]
		if b.MasterID != currentMaster {
			currentMaster = b.MasterID
			name, err := s.names.MasterName(ctx, b.MasterID)
			if err != nil {
				name = fmt.Sprintf("master %d", b.MasterID)
			}
			if err := wb.addSheet(name); err != nil {
				return "", err
			}
			if err := wb.writeHeader([]string{"Ref", "Client", "Services", "Start", "End", "Status", "Total"}); err != nil {
				return "", err
			}
		}

		services := make([]string, len(b.Items))
		for j, it := range b.Items {
			services[j] = it.Name
		}
		row := []interface{}{
			b.Ref,
			b.ClientName,
			strings.Join(services, ", "),
			b.StartsAt.Format("2006-01-02 15:04"),
			b.EndsAt.Format("2006-01-02 15:04"),
			string(b.Status),
			float64(b.TotalPrice()) / 100,
		}
		if err := wb.writeRow(row); err != nil {
			return "", err
		}
	}

	path := filepath.Join(s.cfg.Dir, fmt.Sprintf("bookings_%s.xlsx", from.Format("2006_01")))
	if err := wb.saveTo(path); err != nil {
		return "", fmt.Errorf("save report: %w", err)
	}
	return path, nil
}

// Cleanup deletes terminal bookings older than the retention window.
func (s *Service) Cleanup(ctx context.Context) (int64, error) {
	return s.store.DeleteTerminalOlderThan(ctx, time.Duration(s.cfg.RetentionDays)*24*time.Hour)
}
