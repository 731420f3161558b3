package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"zapisnik/internal/model"
)

// CreateMaster inserts a master and returns the assigned id.
func (db *DB) CreateMaster(ctx context.Context, name string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO masters (name) VALUES (?)`, name)
	if err != nil {
		return 0, fmt.Errorf("insert master: %w", err)
	}
	return res.LastInsertId()
}

// GetMaster loads one master.
func (db *DB) GetMaster(ctx context.Context, id int64) (*model.Master, error) {
	var m model.Master
	err := db.QueryRowContext(ctx, `
		SELECT id, name, is_active, created_at, updated_at
		FROM masters WHERE id = ?`, id).
		Scan(&m.ID, &m.Name, &m.IsActive, &m.CreatedAt, &m.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, model.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// MasterName returns the display name for a master id. Backs the name cache.
func (db *DB) MasterName(ctx context.Context, id int64) (string, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM masters WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", model.ErrNotFound
	}
	return name, err
}

// ListActiveMasters returns masters available for booking.
func (db *DB) ListActiveMasters(ctx context.Context) ([]model.Master, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, is_active, created_at, updated_at
		FROM masters WHERE is_active = 1 ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Master
	for rows.Next() {
		var m model.Master
		if err := rows.Scan(&m.ID, &m.Name, &m.IsActive, &m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// SetMasterActive toggles whether a master accepts new bookings.
func (db *DB) SetMasterActive(ctx context.Context, id int64, active bool) error {
	_, err := db.ExecContext(ctx,
		`UPDATE masters SET is_active = ?, updated_at = ? WHERE id = ?`,
		active, toDB(time.Now()), id)
	return err
}

// CreateClient inserts a client and returns the assigned id.
func (db *DB) CreateClient(ctx context.Context, name, phone string) (int64, error) {
	res, err := db.ExecContext(ctx,
		`INSERT INTO clients (name, phone) VALUES (?, ?)`, name, phone)
	if err != nil {
		return 0, fmt.Errorf("insert client: %w", err)
	}
	return res.LastInsertId()
}

// ClientName returns the display name for a client id. Backs the name cache.
func (db *DB) ClientName(ctx context.Context, id int64) (string, error) {
	var name string
	err := db.QueryRowContext(ctx,
		`SELECT name FROM clients WHERE id = ?`, id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", model.ErrNotFound
	}
	return name, err
}

// CreateService inserts a catalog service and returns the assigned id.
func (db *DB) CreateService(ctx context.Context, svc model.Service) (int64, error) {
	res, err := db.ExecContext(ctx, `
		INSERT INTO services (name, category, base_price, base_duration_minutes, is_active)
		VALUES (?, ?, ?, ?, 1)`,
		svc.Name, svc.Category, svc.BasePrice, svc.BaseDurationMinutes)
	if err != nil {
		return 0, fmt.Errorf("insert service: %w", err)
	}
	return res.LastInsertId()
}

// ListActiveServices returns the bookable catalog.
func (db *DB) ListActiveServices(ctx context.Context) ([]model.Service, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, name, category, base_price, base_duration_minutes, is_active
		FROM services WHERE is_active = 1 ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Service
	for rows.Next() {
		var s model.Service
		if err := rows.Scan(&s.ID, &s.Name, &s.Category, &s.BasePrice, &s.BaseDurationMinutes, &s.IsActive); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// AssignService links a master to a service, with optional duration/price
// overrides (zero keeps the base value).
func (db *DB) AssignService(ctx context.Context, ms model.MasterService) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO master_services (master_id, service_id, duration_minutes, price)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (master_id, service_id)
		DO UPDATE SET duration_minutes = excluded.duration_minutes, price = excluded.price`,
		ms.MasterID, ms.ServiceID, ms.DurationMinutes, ms.Price)
	return err
}

// UnassignService removes a master's service offering.
func (db *DB) UnassignService(ctx context.Context, masterID, serviceID int64) error {
	_, err := db.ExecContext(ctx,
		`DELETE FROM master_services WHERE master_id = ? AND service_id = ?`,
		masterID, serviceID)
	return err
}

// MasterLineItems resolves the requested services into priced line items with
// per-master overrides applied. Services the master does not offer are simply
// absent from the result; the caller compares lengths.
func (db *DB) MasterLineItems(ctx context.Context, masterID int64, serviceIDs []int64) ([]model.LineItem, error) {
	if len(serviceIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(serviceIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, 0, len(serviceIDs)+1)
	args = append(args, masterID)
	for _, id := range serviceIDs {
		args = append(args, id)
	}

	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.name,
			COALESCE(NULLIF(ms.duration_minutes, 0), s.base_duration_minutes),
			COALESCE(NULLIF(ms.price, 0), s.base_price)
		FROM master_services ms
		JOIN services s ON s.id = ms.service_id
		WHERE ms.master_id = ? AND s.is_active = 1 AND s.id IN (`+placeholders+`)`,
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	byID := make(map[int64]model.LineItem, len(serviceIDs))
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ServiceID, &it.Name, &it.DurationMinutes, &it.Price); err != nil {
			return nil, err
		}
		byID[it.ServiceID] = it
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Preserve the requested order; duplicates collapse to one item each.
	out := make([]model.LineItem, 0, len(serviceIDs))
	seen := make(map[int64]bool, len(serviceIDs))
	for _, id := range serviceIDs {
		it, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, it)
	}
	return out, nil
}

// MasterServices lists a master's offerings with resolved duration and price.
func (db *DB) MasterServices(ctx context.Context, masterID int64) ([]model.LineItem, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT s.id, s.name,
			COALESCE(NULLIF(ms.duration_minutes, 0), s.base_duration_minutes),
			COALESCE(NULLIF(ms.price, 0), s.base_price)
		FROM master_services ms
		JOIN services s ON s.id = ms.service_id
		WHERE ms.master_id = ? AND s.is_active = 1
		ORDER BY s.name`, masterID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.LineItem
	for rows.Next() {
		var it model.LineItem
		if err := rows.Scan(&it.ServiceID, &it.Name, &it.DurationMinutes, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}
