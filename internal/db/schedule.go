package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"zapisnik/internal/model"
)

const dateFormat = "2006-01-02"

// WeekdayWindows returns the recurring windows for one weekday, sorted.
func (db *DB) WeekdayWindows(ctx context.Context, masterID int64, day time.Weekday) ([]model.Window, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT start_minute, end_minute FROM weekly_windows
		WHERE master_id = ? AND weekday = ?
		ORDER BY start_minute`,
		masterID, int(day))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanWindows(rows)
}

// WeeklyAvailability loads the full recurring pattern for a master.
func (db *DB) WeeklyAvailability(ctx context.Context, masterID int64) (*model.WeeklyAvailability, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT weekday, start_minute, end_minute FROM weekly_windows
		WHERE master_id = ?
		ORDER BY weekday, start_minute`,
		masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	wa := &model.WeeklyAvailability{MasterID: masterID, Days: make(map[time.Weekday][]model.Window)}
	for rows.Next() {
		var weekday int
		var w model.Window
		if err := rows.Scan(&weekday, &w.Start, &w.End); err != nil {
			return nil, err
		}
		day := time.Weekday(weekday)
		wa.Days[day] = append(wa.Days[day], w)
	}
	return wa, rows.Err()
}

// ReplaceWeekdayWindows rewrites the window list for one weekday atomically.
func (db *DB) ReplaceWeekdayWindows(ctx context.Context, masterID int64, day time.Weekday, windows []model.Window) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM weekly_windows WHERE master_id = ? AND weekday = ?`,
		masterID, int(day),
	); err != nil {
		return fmt.Errorf("clear weekday: %w", err)
	}
	for _, w := range windows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO weekly_windows (master_id, weekday, start_minute, end_minute)
			VALUES (?, ?, ?, ?)`,
			masterID, int(day), w.Start, w.End,
		); err != nil {
			return fmt.Errorf("insert window: %w", err)
		}
	}
	return tx.Commit()
}

// Exception returns the override for a date, or nil when the weekly pattern
// applies. A day-off marker row yields a non-nil exception with no windows.
func (db *DB) Exception(ctx context.Context, masterID int64, date time.Time) (*model.ScheduleException, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT start_minute, end_minute FROM schedule_exceptions
		WHERE master_id = ? AND date = ?
		ORDER BY start_minute`,
		masterID, date.Format(dateFormat))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var exc *model.ScheduleException
	for rows.Next() {
		if exc == nil {
			exc = &model.ScheduleException{
				MasterID: masterID,
				Date:     time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()),
			}
		}
		var start, end sql.NullInt64
		if err := rows.Scan(&start, &end); err != nil {
			return nil, err
		}
		if !start.Valid || !end.Valid {
			// Day-off marker.
			continue
		}
		exc.Windows = append(exc.Windows, model.Window{Start: int(start.Int64), End: int(end.Int64)})
	}
	return exc, rows.Err()
}

// HasException reports whether a date has any override row.
func (db *DB) HasException(ctx context.Context, masterID int64, date time.Time) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `
		SELECT 1 FROM schedule_exceptions
		WHERE master_id = ? AND date = ? LIMIT 1`,
		masterID, date.Format(dateFormat)).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetException replaces the override rows for a date. An empty window list is
// stored as a single NULL-minute marker row so the day reads back as closed
// rather than as "no exception".
func (db *DB) SetException(ctx context.Context, masterID int64, date time.Time, windows []model.Window) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	day := date.Format(dateFormat)
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM schedule_exceptions WHERE master_id = ? AND date = ?`,
		masterID, day,
	); err != nil {
		return fmt.Errorf("clear exception: %w", err)
	}

	if len(windows) == 0 {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_exceptions (master_id, date, start_minute, end_minute)
			VALUES (?, ?, NULL, NULL)`,
			masterID, day,
		); err != nil {
			return fmt.Errorf("insert day-off marker: %w", err)
		}
		return tx.Commit()
	}

	for _, w := range windows {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO schedule_exceptions (master_id, date, start_minute, end_minute)
			VALUES (?, ?, ?, ?)`,
			masterID, day, w.Start, w.End,
		); err != nil {
			return fmt.Errorf("insert exception window: %w", err)
		}
	}
	return tx.Commit()
}

// ClearException removes a date override.
func (db *DB) ClearException(ctx context.Context, masterID int64, date time.Time) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM schedule_exceptions WHERE master_id = ? AND date = ?`,
		masterID, date.Format(dateFormat))
	return err
}

func scanWindows(rows *sql.Rows) ([]model.Window, error) {
	var out []model.Window
	for rows.Next() {
		var w model.Window
		if err := rows.Scan(&w.Start, &w.End); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}
