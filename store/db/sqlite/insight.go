package sqlite

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

const insightSelect = `
	SELECT i.id, i.conversation_id, i.user_id, i.content, i.importance_score, i.vector_id, i.created_ts,
		COALESCE(GROUP_CONCAT(t.name, ','), '') AS topics
	FROM insight i
	LEFT JOIN insight_topic it ON it.insight_id = i.id
	LEFT JOIN topic t ON t.id = it.topic_id
`

const insightGroupBy = ` GROUP BY i.id, i.conversation_id, i.user_id, i.content, i.importance_score, i.vector_id, i.created_ts`

func scanInsight(row interface{ Scan(...any) error }) (*store.Insight, error) {
	i := &store.Insight{}
	var vectorID sql.NullString
	var topics string
	err := row.Scan(&i.ID, &i.ConversationID, &i.UserID, &i.Content, &i.ImportanceScore, &vectorID, &i.CreatedTs, &topics)
	if err != nil {
		return nil, err
	}
	if vectorID.Valid {
		i.VectorID = &vectorID.String
	}
	i.Topics = store.SplitJoined(topics)
	return i, nil
}

func (d *DB) CreateInsight(ctx context.Context, create *store.Insight) (*store.Insight, error) {
	var vectorID any
	if create.VectorID != nil {
		vectorID = *create.VectorID
	}
	stmt := `
		INSERT INTO insight (id, conversation_id, user_id, content, importance_score, vector_id, created_ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := d.db.ExecContext(ctx, stmt,
		create.ID, create.ConversationID, create.UserID, create.Content,
		create.ImportanceScore, vectorID, create.CreatedTs); err != nil {
		return nil, errors.Wrap(err, "failed to create insight")
	}
	return create, nil
}

func (d *DB) GetInsight(ctx context.Context, id string) (*store.Insight, error) {
	row := d.db.QueryRowContext(ctx, insightSelect+` WHERE i.id = ?`+insightGroupBy, id)
	insight, err := scanInsight(row)
	if err == sql.ErrNoRows {
		return nil, errors.Wrapf(store.ErrNotFound, "insight %s", id)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get insight %s", id)
	}
	return insight, nil
}

func (d *DB) DeleteInsight(ctx context.Context, id string) error {
	return d.inTx(ctx, func(tx *sql.Tx) error {
		result, err := tx.ExecContext(ctx, `DELETE FROM insight WHERE id = ?`, id)
		if err != nil {
			return errors.Wrap(err, "failed to delete insight")
		}
		if rows, _ := result.RowsAffected(); rows == 0 {
			return errors.Wrapf(store.ErrNotFound, "insight %s", id)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM insight_topic WHERE insight_id = ?`, id); err != nil {
			return errors.Wrap(err, "failed to delete insight topic links")
		}
		return nil
	})
}

func (d *DB) ListRecentUserInsights(ctx context.Context, userID string, limit int) ([]*store.Insight, error) {
	query := insightSelect + ` WHERE i.user_id = ?` + insightGroupBy + `
		ORDER BY i.created_ts DESC
		LIMIT ?`
	return d.queryInsights(ctx, query, userID, limit)
}

// ListRelatedInsights returns insights linked to any of the given topics.
// Rows derived from globalSharingBlocked conversations are never returned.
func (d *DB) ListRelatedInsights(ctx context.Context, userID string, topicIDs []string, limit int) ([]*store.Insight, error) {
	if len(topicIDs) == 0 {
		return []*store.Insight{}, nil
	}
	marks, args := inArgs(topicIDs)
	query := insightSelect + `
		JOIN conversation c ON c.id = i.conversation_id
		WHERE c.global_sharing_blocked = 0
			AND i.id IN (SELECT insight_id FROM insight_topic WHERE topic_id IN (` + marks + `))
	` + insightGroupBy + `
		ORDER BY i.importance_score DESC, i.created_ts DESC
		LIMIT ?`
	return d.queryInsights(ctx, query, append(args, limit)...)
}

func (d *DB) queryInsights(ctx context.Context, query string, args ...any) ([]*store.Insight, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list insights")
	}
	defer rows.Close()

	list := []*store.Insight{}
	for rows.Next() {
		insight, err := scanInsight(rows)
		if err != nil {
			return nil, errors.Wrap(err, "failed to scan insight")
		}
		list = append(list, insight)
	}
	return list, rows.Err()
}

func (d *DB) CountUserInsights(ctx context.Context, userID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM insight WHERE user_id = ?`, userID).Scan(&count)
	return count, errors.Wrap(err, "failed to count insights")
}

func (d *DB) UpsertGlobalInsight(ctx context.Context, upsert *store.GlobalInsight) (*store.GlobalInsight, error) {
	stmt := `
		INSERT INTO global_insight (id, content, topic_ids, use_count, created_ts)
		VALUES (?, ?, ?, 0, ?)
		ON CONFLICT (id) DO UPDATE SET
			content = excluded.content,
			topic_ids = excluded.topic_ids
		RETURNING id, content, topic_ids, use_count, created_ts
	`
	result := &store.GlobalInsight{}
	err := d.db.QueryRowContext(ctx, stmt, upsert.ID, upsert.Content, upsert.TopicIDs, upsert.CreatedTs).
		Scan(&result.ID, &result.Content, &result.TopicIDs, &result.UseCount, &result.CreatedTs)
	if err != nil {
		return nil, errors.Wrap(err, "failed to upsert global insight")
	}
	return result, nil
}

// ListGlobalInsights returns the consented global pool, newest first,
// excluding the given user's rows and anything from blocked conversations.
func (d *DB) ListGlobalInsights(ctx context.Context, find *store.FindGlobal) ([]*store.GlobalInsight, error) {
	query := `
		SELECT g.id, g.content, g.topic_ids, g.use_count, g.created_ts
		FROM global_insight g
		JOIN conversation c ON g.id = 'global_' || c.id
		WHERE c.global_sharing_blocked = 0 AND c.user_id != ?
		ORDER BY g.created_ts DESC
		LIMIT ?
	`
	rows, err := d.db.QueryContext(ctx, query, find.ExcludeUserID, find.Limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list global insights")
	}
	defer rows.Close()

	list := []*store.GlobalInsight{}
	for rows.Next() {
		g := &store.GlobalInsight{}
		if err := rows.Scan(&g.ID, &g.Content, &g.TopicIDs, &g.UseCount, &g.CreatedTs); err != nil {
			return nil, errors.Wrap(err, "failed to scan global insight")
		}
		list = append(list, g)
	}
	return list, rows.Err()
}
