// Package db is the sqlite persistence layer. It owns the schema, the
// range-overlap queries and — through triggers — the storage-level exclusion
// constraint that keeps two active bookings from sharing a master's or a
// client's time regardless of which concurrent writer commits first.
package db

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"zapisnik/internal/model"
)

// DB wraps sql.DB for the booking core.
type DB struct {
	*sql.DB
}

// activeStatusSQL is the IN-list of statuses that participate in the overlap
// invariant. Must stay in sync with model.ActiveStatuses.
var activeStatusSQL = func() string {
	statuses := model.ActiveStatuses()
	quoted := make([]string, len(statuses))
	for i, s := range statuses {
		quoted[i] = "'" + string(s) + "'"
	}
	return strings.Join(quoted, ",")
}()

// New opens the database at path and runs migrations.
func New(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := conn.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := conn.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if err := createTables(conn); err != nil {
		return nil, err
	}
	return &DB{conn}, nil
}

func createTables(conn *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS masters (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS clients (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			phone TEXT,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS services (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			category TEXT,
			base_price INTEGER NOT NULL DEFAULT 0,
			base_duration_minutes INTEGER NOT NULL,
			is_active BOOLEAN NOT NULL DEFAULT 1
		)`,

		`CREATE TABLE IF NOT EXISTS master_services (
			master_id INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			duration_minutes INTEGER NOT NULL DEFAULT 0,
			price INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (master_id, service_id),
			FOREIGN KEY (master_id) REFERENCES masters(id),
			FOREIGN KEY (service_id) REFERENCES services(id)
		)`,

		// Normalized weekly pattern: one row per window.
		`CREATE TABLE IF NOT EXISTS weekly_windows (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			master_id INTEGER NOT NULL,
			weekday INTEGER NOT NULL CHECK (weekday BETWEEN 0 AND 6),
			start_minute INTEGER NOT NULL,
			end_minute INTEGER NOT NULL,
			FOREIGN KEY (master_id) REFERENCES masters(id)
		)`,

		// Date overrides. Any row for (master_id, date) makes the exception
		// authoritative for that date; a row with NULL minutes is the
		// explicit day-off marker.
		`CREATE TABLE IF NOT EXISTS schedule_exceptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			master_id INTEGER NOT NULL,
			date TEXT NOT NULL,
			start_minute INTEGER,
			end_minute INTEGER,
			FOREIGN KEY (master_id) REFERENCES masters(id)
		)`,

		`CREATE TABLE IF NOT EXISTS bookings (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ref TEXT UNIQUE NOT NULL,
			master_id INTEGER NOT NULL,
			client_id INTEGER NOT NULL,
			starts_at DATETIME NOT NULL,
			ends_at DATETIME NOT NULL,
			status TEXT NOT NULL DEFAULT 'reserved',
			master_note TEXT NOT NULL DEFAULT '',
			reminder_sent BOOLEAN NOT NULL DEFAULT 0,
			feedback_sent BOOLEAN NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL,
			version INTEGER NOT NULL DEFAULT 1,
			FOREIGN KEY (master_id) REFERENCES masters(id),
			FOREIGN KEY (client_id) REFERENCES clients(id)
		)`,

		`CREATE TABLE IF NOT EXISTS booking_items (
			booking_id INTEGER NOT NULL,
			position INTEGER NOT NULL,
			service_id INTEGER NOT NULL,
			name TEXT NOT NULL,
			duration_minutes INTEGER NOT NULL,
			price INTEGER NOT NULL,
			PRIMARY KEY (booking_id, position),
			FOREIGN KEY (booking_id) REFERENCES bookings(id) ON DELETE CASCADE
		)`,

		// Messaging chat ids for notification delivery. role is 'master' or
		// 'client'; entity_id references the corresponding table.
		`CREATE TABLE IF NOT EXISTS chat_bindings (
			role TEXT NOT NULL,
			entity_id INTEGER NOT NULL,
			chat_id INTEGER NOT NULL,
			PRIMARY KEY (role, entity_id)
		)`,

		`CREATE INDEX IF NOT EXISTS idx_weekly_windows_master ON weekly_windows(master_id, weekday)`,
		`CREATE INDEX IF NOT EXISTS idx_exceptions_master_date ON schedule_exceptions(master_id, date)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_master_times ON bookings(master_id, starts_at, ends_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_client_times ON bookings(client_id, starts_at, ends_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status ON bookings(status)`,
	}
	queries = append(queries, overlapTriggers()...)

	for _, q := range queries {
		if _, err := conn.Exec(q); err != nil {
			return fmt.Errorf("exec migration %s: %w", trimSQL(q), err)
		}
	}
	return nil
}

// overlapTriggers builds the exclusion constraint: an insert or update that
// would leave two active bookings overlapping for the same master or the
// same client aborts atomically, independent of any application-level check.
func overlapTriggers() []string {
	tmpl := `CREATE TRIGGER IF NOT EXISTS %s
		BEFORE %s ON bookings
		WHEN NEW.status IN (%s)
		BEGIN
			SELECT RAISE(ABORT, '%s')
			WHERE EXISTS (
				SELECT 1 FROM bookings
				WHERE %s = NEW.%s
				AND id != COALESCE(%s, -1)
				AND status IN (%s)
				AND starts_at < NEW.ends_at
				AND ends_at > NEW.starts_at
			);
		END`

	var out []string
	for _, spec := range []struct {
		name, op, column, msg, selfID string
	}{
		{"trg_no_master_overlap_insert", "INSERT", "master_id", masterOverlapMsg, "NULL"},
		{"trg_no_client_overlap_insert", "INSERT", "client_id", clientOverlapMsg, "NULL"},
		{"trg_no_master_overlap_update", "UPDATE OF starts_at, ends_at, status", "master_id", masterOverlapMsg, "NEW.id"},
		{"trg_no_client_overlap_update", "UPDATE OF starts_at, ends_at, status", "client_id", clientOverlapMsg, "NEW.id"},
	} {
		out = append(out, fmt.Sprintf(tmpl,
			spec.name, spec.op, activeStatusSQL, spec.msg,
			spec.column, spec.column, spec.selfID, activeStatusSQL,
		))
	}
	return out
}

const (
	masterOverlapMsg = "booking overlap: master"
	clientOverlapMsg = "booking overlap: client"
)

func trimSQL(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > 60 {
		return s[:60] + "..."
	}
	return s
}

// toDB normalizes times for storage: UTC, second precision, so SQL range
// comparisons between stored columns and bound parameters are consistent.
func toDB(t time.Time) time.Time {
	return t.UTC().Truncate(time.Second)
}
