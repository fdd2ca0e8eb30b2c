package postgres

import (
	"context"

	"github.com/pgvector/pgvector-go"
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

func (d *DB) UpsertInsightEmbedding(ctx context.Context, upsert *store.InsightEmbedding) error {
	stmt := `
		INSERT INTO insight_embedding (insight_id, user_id, content, topics, embedding, created_ts)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (insight_id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			content = EXCLUDED.content,
			topics = EXCLUDED.topics,
			embedding = EXCLUDED.embedding
	`
	_, err := d.db.ExecContext(ctx, stmt,
		upsert.InsightID, upsert.UserID, upsert.Content, upsert.Topics,
		pgvector.NewVector(upsert.Embedding), upsert.CreatedTs)
	return errors.Wrap(err, "failed to upsert insight embedding")
}

// SearchInsightEmbeddings ranks by pgvector cosine distance; score is
// 1 - distance so it matches the SQLite driver's cosine similarity.
func (d *DB) SearchInsightEmbeddings(ctx context.Context, search *store.EmbeddingSearch) ([]*store.EmbeddingMatch, error) {
	vector := pgvector.NewVector(search.Vector)
	args := []any{vector}
	query := `
		SELECT insight_id, content, topics, 1 - (embedding <=> $1) AS score
		FROM insight_embedding
	`
	if search.UserID != nil {
		query += ` WHERE user_id = $2`
		args = append(args, *search.UserID)
	}
	query += `
		ORDER BY embedding <=> $1
		LIMIT ` + placeholder(len(args)+1)
	args = append(args, search.TopK)

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to search insight embeddings")
	}
	defer rows.Close()

	matches := []*store.EmbeddingMatch{}
	for rows.Next() {
		m := &store.EmbeddingMatch{}
		var topics string
		if err := rows.Scan(&m.InsightID, &m.Content, &topics, &m.Score); err != nil {
			return nil, errors.Wrap(err, "failed to scan embedding match")
		}
		m.Topics = store.SplitJoined(topics)
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

func (d *DB) DeleteInsightEmbedding(ctx context.Context, insightID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM insight_embedding WHERE insight_id = $1`, insightID)
	return errors.Wrap(err, "failed to delete insight embedding")
}

func (d *DB) CountInsightEmbeddings(ctx context.Context, userID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM insight_embedding WHERE user_id = $1`, userID).Scan(&count)
	return count, errors.Wrap(err, "failed to count insight embeddings")
}
