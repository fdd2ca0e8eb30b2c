package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

// AddMessage inserts the message and bumps the conversation's message_count in
// one transaction. The counter update serializes concurrent writers on the
// conversation row, so a second turn always observes the first turn's insert.
func (d *DB) AddMessage(ctx context.Context, create *store.Message) (*store.Message, error) {
	err := d.inTx(ctx, func(tx *sql.Tx) error {
		stmt := `
			INSERT INTO message (id, conversation_id, role, content, created_ts)
			VALUES (?, ?, ?, ?, ?)
		`
		if _, err := tx.ExecContext(ctx, stmt,
			create.ID, create.ConversationID, create.Role, create.Content, create.CreatedTs); err != nil {
			return errors.Wrap(err, "failed to insert message")
		}

		result, err := tx.ExecContext(ctx,
			`UPDATE conversation SET message_count = message_count + 1 WHERE id = ?`,
			create.ConversationID)
		if err != nil {
			return errors.Wrap(err, "failed to bump message count")
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errors.Wrapf(store.ErrNotFound, "conversation %s", create.ConversationID)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return create, nil
}

func (d *DB) ListMessages(ctx context.Context, conversationID string) ([]*store.Message, error) {
	query := `
		SELECT id, conversation_id, role, content, created_ts
		FROM message
		WHERE conversation_id = ?
		ORDER BY created_ts ASC, id ASC
	`
	rows, err := d.db.QueryContext(ctx, query, conversationID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list messages")
	}
	defer rows.Close()

	list := []*store.Message{}
	for rows.Next() {
		m := &store.Message{}
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan message")
		}
		list = append(list, m)
	}
	return list, rows.Err()
}
