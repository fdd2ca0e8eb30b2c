package sqlite

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
		VALUES (?, ?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, stmt, create.ID, create.UserID, create.CreatedTs, create.UpdatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create conversation")
	}
	return create, nil
}

func (d *DB) GetConversation(ctx context.Context, id string) (*store.Conversation, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+conversationFields+` FROM conversation WHERE id = ?`, id)
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
		WHERE user_id = ? AND deleted = 0
		ORDER BY updated_ts DESC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, userID, limit)
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

// ListIdleConversations returns unprocessed, non-empty, non-deleted
// conversations whose last activity is before the given cutoff, oldest first.
func (d *DB) ListIdleConversations(ctx context.Context, before int64, limit int) ([]*store.Conversation, error) {
	query := `
		SELECT ` + conversationFields + `
		FROM conversation
		WHERE processed = 0 AND message_count > 0 AND deleted = 0 AND updated_ts < ?
		ORDER BY updated_ts ASC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, before, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list idle conversations")
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
	set, args := []string{"processed = ?"}, []any{update.Processed}
	if update.IsUseful != nil {
		set, args = append(set, "is_useful = ?"), append(args, *update.IsUseful)
	}
	if update.UsefulnessReason != nil {
		set, args = append(set, "usefulness_reason = ?"), append(args, *update.UsefulnessReason)
	}
	if update.Summary != nil {
		set, args = append(set, "summary = ?"), append(args, *update.Summary)
	}
	args = append(args, update.ConversationID)

	stmt := `UPDATE conversation SET ` + strings.Join(set, ", ") + ` WHERE id = ?`
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
		`UPDATE conversation SET updated_ts = ? WHERE id = ?`, ts, id)
	return errors.Wrap(err, "failed to update conversation activity")
}

func (d *DB) SetConversationGlobalSharingBlocked(ctx context.Context, id string, blocked bool) error {
	result, err := d.db.ExecContext(ctx,
		`UPDATE conversation SET global_sharing_blocked = ? WHERE id = ?`, blocked, id)
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
			AND c.global_sharing_blocked = 0
			AND c.deleted = 0
			AND u.consent_global = 1
			AND c.user_id != ?
		ORDER BY c.updated_ts DESC
		LIMIT ?
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
