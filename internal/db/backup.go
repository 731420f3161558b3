package db

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// BackupConfig holds backup parameters.
type BackupConfig struct {
	Enabled       bool
	Dir           string
	Interval      time.Duration
	RetentionDays int
}

// Backupper periodically snapshots the database file. Snapshots are taken
// through the open connection with VACUUM INTO, so they are consistent even
// under concurrent writes.
type Backupper struct {
	db     *DB
	cfg    BackupConfig
	logger zerolog.Logger
}

// NewBackupper creates a backup service.
func NewBackupper(db *DB, cfg BackupConfig, logger zerolog.Logger) *Backupper {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	if cfg.Dir == "" {
		cfg.Dir = "backups"
	}
	return &Backupper{
		db:     db,
		cfg:    cfg,
		logger: logger.With().Str("component", "backup").Logger(),
	}
}

// Run takes a snapshot immediately and then on every interval, pruning
// snapshots past retention after each run.
func (b *Backupper) Run(ctx context.Context) {
	if !b.cfg.Enabled {
		return
	}
	b.logger.Info().Dur("interval", b.cfg.Interval).Msg("backup service started")

	if err := b.Backup(ctx); err != nil {
		b.logger.Error().Err(err).Msg("initial backup failed")
	}

	ticker := time.NewTicker(b.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			b.logger.Info().Msg("backup service stopped")
			return
		case <-ticker.C:
			if err := b.Backup(ctx); err != nil {
				b.logger.Error().Err(err).Msg("backup failed")
			}
			b.prune()
		}
	}
}

// Backup writes one timestamped snapshot.
func (b *Backupper) Backup(ctx context.Context) error {
	if err := os.MkdirAll(b.cfg.Dir, 0o755); err != nil {
		return fmt.Errorf("create backup dir: %w", err)
	}

	path := filepath.Join(b.cfg.Dir, fmt.Sprintf("zapisnik_%s.db", time.Now().Format("20060102_150405")))
	// VACUUM INTO rejects quotes in the target path.
	if strings.ContainsAny(path, `'"`) {
		return fmt.Errorf("invalid backup path %q", path)
	}
	if _, err := b.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", path)); err != nil {
		return fmt.Errorf("vacuum into: %w", err)
	}

	b.logger.Info().Str("path", path).Msg("backup written")
	return nil
}

func (b *Backupper) prune() {
	if b.cfg.RetentionDays <= 0 {
		return
	}

	entries, err := os.ReadDir(b.cfg.Dir)
	if err != nil {
		b.logger.Error().Err(err).Msg("read backup dir failed")
		return
	}

	cutoff := time.Now().AddDate(0, 0, -b.cfg.RetentionDays)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			b.logger.Info().Str("file", entry.Name()).Msg("old backup removed")
			_ = os.Remove(filepath.Join(b.cfg.Dir, entry.Name()))
		}
	}
}
