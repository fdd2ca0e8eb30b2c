package sqlite

import (
	"context"
	"encoding/binary"
	"math"
	"sort"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/store"
)

// ============================================================================
// SQLite vector support: embeddings are stored as little-endian float32 BLOBs
// and cosine similarity is computed in the application layer. Good enough for
// single-user development instances; Postgres uses pgvector.
// ============================================================================

func float32ArrayToBLOB(vec []float32) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:i*4+4], math.Float32bits(v))
	}
	return buf
}

func blobToFloat32Array(blob []byte) ([]float32, error) {
	if len(blob)%4 != 0 {
		return nil, errors.Errorf("invalid BLOB length %d", len(blob))
	}
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		bits := binary.LittleEndian.Uint32(blob[i*4 : i*4+4])
		vec[i] = math.Float32frombits(bits)
	}
	return vec, nil
}

// cosineSimilarity returns the cosine of the angle between a and b, or 0 when
// either vector is degenerate.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func (d *DB) UpsertInsightEmbedding(ctx context.Context, upsert *store.InsightEmbedding) error {
	stmt := `
		INSERT INTO insight_embedding (insight_id, user_id, content, topics, embedding, created_ts)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (insight_id) DO UPDATE SET
			user_id = excluded.user_id,
			content = excluded.content,
			topics = excluded.topics,
			embedding = excluded.embedding
	`
	_, err := d.db.ExecContext(ctx, stmt,
		upsert.InsightID, upsert.UserID, upsert.Content, upsert.Topics,
		float32ArrayToBLOB(upsert.Embedding), upsert.CreatedTs)
	return errors.Wrap(err, "failed to upsert insight embedding")
}

// SearchInsightEmbeddings scans candidate rows and ranks them by cosine
// similarity in Go. Linear scan: fine for the personal-scale row counts this
// driver targets.
func (d *DB) SearchInsightEmbeddings(ctx context.Context, search *store.EmbeddingSearch) ([]*store.EmbeddingMatch, error) {
	where, args := []string{"1 = 1"}, []any{}
	if search.UserID != nil {
		where, args = append(where, "user_id = ?"), append(args, *search.UserID)
	}
	query := `SELECT insight_id, content, topics, embedding FROM insight_embedding WHERE ` + where[0]
	for _, w := range where[1:] {
		query += " AND " + w
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to query insight embeddings")
	}
	defer rows.Close()

	matches := []*store.EmbeddingMatch{}
	for rows.Next() {
		var insightID, content, topics string
		var blob []byte
		if err := rows.Scan(&insightID, &content, &topics, &blob); err != nil {
			return nil, errors.Wrap(err, "failed to scan insight embedding")
		}
		vec, err := blobToFloat32Array(blob)
		if err != nil {
			return nil, errors.Wrapf(err, "corrupt embedding for insight %s", insightID)
		}
		matches = append(matches, &store.EmbeddingMatch{
			InsightID: insightID,
			Content:   content,
			Topics:    store.SplitJoined(topics),
			Score:     cosineSimilarity(search.Vector, vec),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if search.TopK > 0 && len(matches) > search.TopK {
		matches = matches[:search.TopK]
	}
	return matches, nil
}

func (d *DB) DeleteInsightEmbedding(ctx context.Context, insightID string) error {
	_, err := d.db.ExecContext(ctx,
		`DELETE FROM insight_embedding WHERE insight_id = ?`, insightID)
	return errors.Wrap(err, "failed to delete insight embedding")
}

func (d *DB) CountInsightEmbeddings(ctx context.Context, userID string) (int, error) {
	var count int
	err := d.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM insight_embedding WHERE user_id = ?`, userID).Scan(&count)
	return count, errors.Wrap(err, "failed to count insight embeddings")
}
