package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"zapisnik/internal/model"
)

// ErrStale is returned when a versioned update lost to a concurrent writer.
var ErrStale = errors.New("booking modified concurrently")

const bookingColumns = `b.id, b.ref, b.master_id, b.client_id, COALESCE(c.name, ''),
	b.starts_at, b.ends_at, b.status, b.master_note, b.reminder_sent, b.feedback_sent,
	b.created_at, b.updated_at, b.version`

// CreateBooking inserts a booking with its line items. When the overlap
// trigger rejects the insert, the loser of the race receives a ConflictError
// carrying the blocking bookings.
func (db *DB) CreateBooking(ctx context.Context, b *model.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	now := toDB(time.Now())
	res, err := tx.ExecContext(ctx, `
		INSERT INTO bookings (ref, master_id, client_id, starts_at, ends_at, status,
			master_note, reminder_sent, feedback_sent, created_at, updated_at, version)
		VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, ?, ?, 1)`,
		b.Ref, b.MasterID, b.ClientID, toDB(b.StartsAt), toDB(b.EndsAt),
		string(b.Status), b.MasterNote, now, now,
	)
	if err != nil {
		return db.asConflict(ctx, err, b)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("last insert id: %w", err)
	}
	for i, it := range b.Items {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO booking_items (booking_id, position, service_id, name, duration_minutes, price)
			VALUES (?, ?, ?, ?, ?, ?)`,
			id, i, it.ServiceID, it.Name, it.DurationMinutes, it.Price,
		); err != nil {
			return fmt.Errorf("insert item: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}

	b.ID = id
	b.CreatedAt, b.UpdatedAt, b.Version = now, now, 1
	return nil
}

// asConflict converts an overlap-trigger abort into a ConflictError listing
// the blocking bookings; other errors pass through wrapped.
func (db *DB) asConflict(ctx context.Context, err error, b *model.Booking) error {
	var serr sqlite3.Error
	isOverlap := errors.As(err, &serr) &&
		serr.Code == sqlite3.ErrConstraint &&
		strings.Contains(serr.Error(), "booking overlap")
	if !isOverlap {
		return fmt.Errorf("insert booking: %w", err)
	}

	conflicts, qerr := db.conflictList(ctx, b)
	if qerr != nil {
		// The write already failed correctly; conflict details are best effort.
		return &model.ConflictError{}
	}
	return &model.ConflictError{Conflicts: conflicts}
}

func (db *DB) conflictList(ctx context.Context, b *model.Booking) ([]model.Conflict, error) {
	blocking, err := db.ListOverlapping(ctx, model.OverlapQuery{
		MasterID:         b.MasterID,
		Interval:         b.Interval(),
		ExcludeBookingID: b.ID,
	})
	if err != nil {
		return nil, err
	}
	byClient, err := db.ListOverlapping(ctx, model.OverlapQuery{
		ClientID:         b.ClientID,
		Interval:         b.Interval(),
		ExcludeBookingID: b.ID,
	})
	if err != nil {
		return nil, err
	}
	blocking = append(blocking, byClient...)

	var conflicts []model.Conflict
	seen := make(map[int64]bool)
	for i := range blocking {
		if !seen[blocking[i].ID] {
			seen[blocking[i].ID] = true
			conflicts = append(conflicts, blocking[i].Conflict())
		}
	}
	return conflicts, nil
}

// GetBooking loads one booking with its line items.
func (db *DB) GetBooking(ctx context.Context, id int64) (*model.Booking, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b LEFT JOIN clients c ON c.id = b.client_id
		WHERE b.id = ?`, id)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// GetBookingByRef loads one booking by its public reference.
func (db *DB) GetBookingByRef(ctx context.Context, ref string) (*model.Booking, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b LEFT JOIN clients c ON c.id = b.client_id
		WHERE b.ref = ?`, ref)

	b, err := scanBooking(row)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := db.loadItems(ctx, b); err != nil {
		return nil, err
	}
	return b, nil
}

// UpdateBookingStatus moves a booking to `to` only if it is still in `from`.
func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, from, to model.Status) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status = ?`,
		string(to), toDB(time.Now()), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("update status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Reschedule moves a booking's interval under optimistic locking. The update
// triggers re-check the overlap invariant against the new interval.
func (db *DB) Reschedule(ctx context.Context, id, version int64, startsAt, endsAt time.Time) error {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET starts_at = ?, ends_at = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		toDB(startsAt), toDB(endsAt), toDB(time.Now()), id, version,
	)
	if err != nil {
		probe := &model.Booking{ID: id, StartsAt: startsAt, EndsAt: endsAt}
		if b, gerr := db.GetBooking(ctx, id); gerr == nil {
			probe.MasterID, probe.ClientID = b.MasterID, b.ClientID
		}
		return db.asConflict(ctx, err, probe)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStale
	}
	return nil
}

// ListOverlapping returns active bookings intersecting the query interval.
func (db *DB) ListOverlapping(ctx context.Context, q model.OverlapQuery) ([]model.Booking, error) {
	where := []string{
		"b.status IN (" + activeStatusSQL + ")",
		"b.starts_at < ?",
		"b.ends_at > ?",
	}
	args := []interface{}{toDB(q.Interval.End), toDB(q.Interval.Start)}

	if q.MasterID != 0 {
		where = append(where, "b.master_id = ?")
		args = append(args, q.MasterID)
	}
	if q.ClientID != 0 {
		where = append(where, "b.client_id = ?")
		args = append(args, q.ClientID)
	}
	if q.ExcludeBookingID != 0 {
		where = append(where, "b.id != ?")
		args = append(args, q.ExcludeBookingID)
	}

	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b LEFT JOIN clients c ON c.id = b.client_id
		WHERE `+strings.Join(where, " AND ")+`
		ORDER BY b.starts_at`, args...)
}

// ListActiveInRange returns a master's active bookings starting inside [from, to).
func (db *DB) ListActiveInRange(ctx context.Context, masterID int64, from, to time.Time) ([]model.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b LEFT JOIN clients c ON c.id = b.client_id
		WHERE b.master_id = ?
		AND b.status IN (`+activeStatusSQL+`)
		AND b.starts_at >= ? AND b.starts_at < ?
		ORDER BY b.starts_at`,
		masterID, toDB(from), toDB(to))
}

// ActiveIntervals returns the busy intervals for slot generation.
func (db *DB) ActiveIntervals(ctx context.Context, masterID int64, from, to time.Time) ([]model.Interval, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT starts_at, ends_at FROM bookings
		WHERE master_id = ?
		AND status IN (`+activeStatusSQL+`)
		AND starts_at < ? AND ends_at > ?
		ORDER BY starts_at`,
		masterID, toDB(to), toDB(from))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Interval
	for rows.Next() {
		var iv model.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		out = append(out, iv)
	}
	return out, rows.Err()
}

// ListStaleReserved returns ids of reserved bookings created at or before cutoff.
func (db *DB) ListStaleReserved(ctx context.Context, cutoff time.Time) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id FROM bookings
		WHERE status = ? AND created_at <= ?
		ORDER BY id`,
		string(model.StatusReserved), toDB(cutoff))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ExpireReserved transitions one stale hold to expired; a no-op when the
// booking was finalized or already expired.
func (db *DB) ExpireReserved(ctx context.Context, id int64, cutoff time.Time) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings
		SET status = ?, updated_at = ?, version = version + 1
		WHERE id = ? AND status = ? AND created_at <= ?`,
		string(model.StatusExpired), toDB(time.Now()), id, string(model.StatusReserved), toDB(cutoff),
	)
	if err != nil {
		return false, fmt.Errorf("expire hold: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListUpcomingUnreminded returns active bookings starting inside
// [now, now+within) whose reminder flag is unset.
func (db *DB) ListUpcomingUnreminded(ctx context.Context, now time.Time, within time.Duration) ([]model.Booking, error) {
	return db.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b LEFT JOIN clients c ON c.id = b.client_id
		WHERE b.status IN (`+activeStatusSQL+`)
		AND b.reminder_sent = 0
		AND b.starts_at >= ? AND b.starts_at < ?
		ORDER BY b.starts_at`,
		toDB(now), toDB(now.Add(within)))
}

// MarkReminderSent sets the reminder flag exactly once.
func (db *DB) MarkReminderSent(ctx context.Context, id int64) (bool, error) {
	res, err := db.ExecContext(ctx, `
		UPDATE bookings SET reminder_sent = 1, updated_at = ?
		WHERE id = ? AND reminder_sent = 0`,
		toDB(time.Now()), id,
	)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ListTerminalBetween returns terminal bookings that ended inside [from, to),
// for audit export.
func (db *DB) ListTerminalBetween(ctx context.Context, from, to time.Time) ([]model.Booking, error) {
	bookings, err := db.queryBookings(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings b LEFT JOIN clients c ON c.id = b.client_id
		WHERE b.status NOT IN (`+activeStatusSQL+`)
		AND b.ends_at >= ? AND b.ends_at < ?
		ORDER BY b.master_id, b.starts_at`,
		toDB(from), toDB(to))
	if err != nil {
		return nil, err
	}
	for i := range bookings {
		if err := db.loadItems(ctx, &bookings[i]); err != nil {
			return nil, err
		}
	}
	return bookings, nil
}

// DeleteTerminalOlderThan hard-deletes terminal bookings past retention.
func (db *DB) DeleteTerminalOlderThan(ctx context.Context, olderThan time.Duration) (int64, error) {
	res, err := db.ExecContext(ctx, `
		DELETE FROM bookings
		WHERE status NOT IN (`+activeStatusSQL+`)
		AND ends_at < ?`,
		toDB(time.Now().Add(-olderThan)),
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...interface{}) ([]model.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *b)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(s scanner) (*model.Booking, error) {
	var b model.Booking
	var status string
	if err := s.Scan(
		&b.ID, &b.Ref, &b.MasterID, &b.ClientID, &b.ClientName,
		&b.StartsAt, &b.EndsAt, &status, &b.MasterNote, &b.ReminderSent, &b.FeedbackSent,
		&b.CreatedAt, &b.UpdatedAt, &b.Version,
	); err != nil {
		return nil, err
	}
	parsed, err := model.ParseStatus(status)
	if err != nil {
		return nil, err
	}
	b.Status = parsed
	return &b, nil
}

func (db *DB) loadItems(ctx context.Context, b *model.Booking) error {
	rows, err := db.QueryContext(ctx, `
		SELECT service_id, name, duration_minutes, price
		FROM booking_items WHERE booking_id = ?
		ORDER BY position`, b.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ServiceID, &it.Name, &it.DurationMinutes, &it.Price); err != nil {
			return err
		}
		b.Items = append(b.Items, it)
	}
	return rows.Err()
}
