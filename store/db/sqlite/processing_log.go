package sqlite

import (
	"context"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

func (d *DB) CreateProcessingLog(ctx context.Context, create *store.ProcessingLog) (*store.ProcessingLog, error) {
	stmt := `
		INSERT INTO processing_log (conversation_id, user_id, created_ts, is_useful, reason, topics_extracted, insights_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		RETURNING id
	`
	err := d.db.QueryRowContext(ctx, stmt,
		create.ConversationID, create.UserID, create.CreatedTs,
		create.IsUseful, create.Reason, create.TopicsExtracted, create.InsightsCount,
	).Scan(&create.ID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create processing log")
	}
	return create, nil
}

func (d *DB) ListProcessingLogs(ctx context.Context, find *store.FindProcessingLogs) ([]*store.ProcessingLog, error) {
	where, args := []string{"1 = 1"}, []any{}
	if find.ConversationID != nil {
		where, args = append(where, "conversation_id = ?"), append(args, *find.ConversationID)
	}
	limit := find.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit)

	query := `
		SELECT id, conversation_id, user_id, created_ts, is_useful, reason, topics_extracted, insights_count
		FROM processing_log
		WHERE ` + where[0]
	for _, w := range where[1:] {
		query += " AND " + w
	}
	query += `
		ORDER BY created_ts DESC, id DESC
		LIMIT ?`

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list processing logs")
	}
	defer rows.Close()

	list := []*store.ProcessingLog{}
	for rows.Next() {
		l := &store.ProcessingLog{}
		if err := rows.Scan(&l.ID, &l.ConversationID, &l.UserID, &l.CreatedTs,
			&l.IsUseful, &l.Reason, &l.TopicsExtracted, &l.InsightsCount); err != nil {
			return nil, errors.Wrap(err, "failed to scan processing log")
		}
		list = append(list, l)
	}
	return list, rows.Err()
}

func (d *DB) ProcessorStats(ctx context.Context) (*store.ProcessorStats, error) {
	stats := &store.ProcessorStats{}
	err := d.db.QueryRowContext(ctx, `
		SELECT
			COALESCE(SUM(CASE WHEN processed = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 1 AND is_useful = 1 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 1 AND is_useful = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN processed = 0 AND message_count > 0 AND deleted = 0 THEN 1 ELSE 0 END), 0)
		FROM conversation
	`).Scan(
		&stats.ProcessedConversations,
		&stats.UsefulConversations,
		&stats.NotUsefulConversations,
		&stats.PendingConversations,
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to aggregate conversation stats")
	}
	if err := d.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM processing_log`).Scan(&stats.LogCount); err != nil {
		return nil, errors.Wrap(err, "failed to count processing logs")
	}
	return stats, nil
}
