package db

import (
	"context"
	"database/sql"

	"zapisnik/internal/model"
	"zapisnik/internal/notify"
)

// BindChat associates a messaging chat with a master or client.
func (db *DB) BindChat(ctx context.Context, role notify.Role, entityID, chatID int64) error {
	_, err := db.ExecContext(ctx, `
		INSERT INTO chat_bindings (role, entity_id, chat_id)
		VALUES (?, ?, ?)
		ON CONFLICT (role, entity_id) DO UPDATE SET chat_id = excluded.chat_id`,
		string(role), entityID, chatID)
	return err
}

// ChatFor implements notify.ChatResolver. Returns 0 when the recipient has no
// chat bound.
func (db *DB) ChatFor(ctx context.Context, role notify.Role, b *model.Booking) (int64, error) {
	entityID := b.ClientID
	if role == notify.RoleMaster {
		entityID = b.MasterID
	}

	var chatID int64
	err := db.QueryRowContext(ctx,
		`SELECT chat_id FROM chat_bindings WHERE role = ? AND entity_id = ?`,
		string(role), entityID).Scan(&chatID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return chatID, nil
}
