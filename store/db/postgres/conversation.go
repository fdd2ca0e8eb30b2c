package postgres

import (
	"context"
	"database/sql"
	"strings"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

const conversationFields = `id, user_id, summary, message_count, created_ts, updated_ts,
	processed, is_useful, usefulness_reason, global_sharing_blocked, deleted, deleted_ts`

func scanConversation(row interface{ Scan(...any) error }) (*store.Conversation, error) {
	c := &store.Conversation{}
	var summary, reason sql.NullString
	var isUseful sql.NullBool
	var deletedTs sql.NullInt64
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&summary,
		&c.MessageCount,
		&c.CreatedTs,
		&c.UpdatedTs,
		&c.Processed,
		&isUseful,
		&reason,
		&c.GlobalSharingBlocked,
		&c.Deleted,
		&deletedTs,
	)
	if err != nil {
		return nil, err
	}
	if summary.Valid {
		c.Summary = &summary.String
	}
	if isUseful.Valid {
		c.IsUseful = &isUseful.Bool
	}
	if reason.Valid {
		c.UsefulnessReason = &reason.String
	}
	if deletedTs.Valid {
		c.DeletedTs = &deletedTs.Int64
	}
	return c, nil
}

func (d *DB) CreateConversation(ctx context.Context, create *store.Conversation) (*store.Conversation, error) {
	stmt := `
		INSERT INTO conversation (id, user_id, created_ts, updated_ts)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := d.db.ExecContext(ctx, stmt, create.ID, create.UserID, create.CreatedTs, create.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+conversationFields+` FROM conversation WHERE id = $1`, id)
	c, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "conversation %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get conversation %s", id)
	}
	return c, nil
}

func (d *DB) ListUserConversations(ctx context.Context, userID string, limit int) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationFields + `
		FROM conversation
		WHERE user_id = $1 AND NOT deleted
		ORDER BY updated_ts DESC
		LIMIT $2
	`
	return d.queryConversations(ctx, query, userID, limit)
}

func (d *DB) ListIdleConversations(ctx context.Context, before int64, limit int) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationFields + `
		FROM conversation
		WHERE NOT processed AND message_count > 0 AND NOT deleted AND updated_ts < $1
		ORDER BY updated_ts ASC
		LIMIT $2
	`
	return d.queryConversations(ctx, query, before, limit)
}

func (d *DB) queryConversations(ctx context.Context, query string, args ...any) ([]*store.Conversation, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list conversations")
	}
	defer rows.Close()

	list := []*store.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan conversation")
		}
		list = append(list, c)
	}
	return list, rows.Err()
}

func (d *DB) UpdateConversationVerdict(ctx context.Context, update *store.ConversationVerdict) error {
	set, args := []string{"processed = " + placeholder(1)}, []any{update.Processed}
	if update.IsUseful != nil {
		set, args = append(set, "is_useful = "+placeholder(len(args)+1)), append(args, *update.IsUseful)
	}
	if update.UsefulnessReason != nil {
		set, args = append(set, "usefulness_reason = "+placeholder(len(args)+1)), append(args, *update.UsefulnessReason)
	}
	if update.Summary != nil {
		set, args = append(set, "summary = "+placeholder(len(args)+1)), append(args, *update.Summary)
	}
	args = append(args, update.ConversationID)

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ` + placeholder(len(args))
	result, err := d.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return errors.Wrap(err, "failed to update conversation verdict")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "conversation %s", update.ConversationID)
	}
	return nil
}

func (d *DB) UpdateConversationActivity(ctx context.Context, id string, ts int64) error {
	_, err := d.db.ExecContext(ctx,
		`UPDATE conversation SET updated_ts = $1 WHERE id = $2`, ts, id)
	return errors.Wrap(err, "failed to update conversation activity")
}

func (d *DB) SetConversationGlobalSharingBlocked(ctx context.Context, id string, blocked bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE conversation SET global_sharing_blocked = $1 WHERE id = $2`, blocked, id)
	if err != nil {
		return errors.Wrap(err, "failed to update global sharing flag")
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return errors.Wrapf(store.ErrNotFound, "conversation %s", id)
	}
	return nil
}

func (d *DB) ListGlobalConversationSummaries(ctx context.Context, find *store.FindGlobal) ([]*store.ConversationSummary, error) {
	query := `
		SELECT c.id, c.user_id, c.summary, c.updated_ts
		FROM conversation c
		JOIN "user" u ON u.id = c.user_id
		WHERE c.summary IS NOT NULL AND c.summary != ''
			AND NOT c.global_sharing_blocked
			AND NOT c.deleted
			AND u.consent_global
			AND c.user_id != $1
		ORDER BY c.updated_ts DESC
		LIMIT $2
	`
	rows, err := d.db.QueryContext(ctx, query, find.ExcludeUserID, find.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list global summaries")
	}
	defer rows.Close()

	list := []*store.ConversationSummary{}
	for rows.Next() {
		s := &store.ConversationSummary{}
		if err := rows.Scan(&s.ConversationID, &s.UserID, &s.Summary, &s.UpdatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan summary")
		}
		list = append(list, s)
	}
	return list, rows.Err()
}
