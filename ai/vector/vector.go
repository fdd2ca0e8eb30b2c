// Package vector provides semantic search over stored insights. It composes
// the embedding service with the store-backed index: Postgres ranks with
// pgvector, SQLite scans cosine similarity in the driver. Callers treat the
// index as best-effort and degrade to keyword context when it is unavailable.
package vector

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/ai/embedding"
	"github.com/hrygo/mindmesh/ai/metrics"
	"github.com/hrygo/mindmesh/store"
)

// Match is a scored search hit.
type Match struct {
	InsightID string   `json:"insightId"`
	Content   string   `json:"content"`
	Topics    []string `json:"topics"`
	Score     float64  `json:"score"`
}

// Index is the insight vector index.
type Index interface {
	// Store embeds content and upserts it under the insight id.
	Store(ctx context.Context, insightID, content, userID string, topics []string) error

	// Search embeds the query and returns the topK nearest insights by cosine
	// similarity, scoped to userID when non-nil.
	Search(ctx context.Context, query string, userID *string, topK int) ([]*Match, error)

	// Delete removes an insight from the index.
	Delete(ctx context.Context, insightID string) error

	// Count reports how many vectors a user owns.
	Count(ctx context.Context, userID string) (int, error)
}

type index struct {
	embedder embedding.Service
	store    *store.Store
	metrics  *metrics.Exporter
}

// NewIndex creates an Index over the given embedder and store. The exporter
// is optional; when present every search is counted by outcome.
func NewIndex(embedder embedding.Service, st *store.Store, exporter *metrics.Exporter) Index {
	return &index{embedder: embedder, store: st, metrics: exporter}
}

func (x *index) Store(ctx context.Context, insightID, content, userID string, topics []string) error {
	if content == "" {
		return errors.New("empty content")
	}
	vec, err := x.embedder.Embed(ctx, content)
	if err != nil {
		return errors.Wrap(err, "failed to embed insight")
	}
	return x.store.UpsertInsightEmbedding(ctx, &store.InsightEmbedding{
		InsightID: insightID,
		UserID:    userID,
		Content:   content,
		Topics:    store.JoinList(topics),
		Embedding: vec,
		CreatedTs: time.Now().Unix(),
	})
}

func (x *index) Search(ctx context.Context, query string, userID *string, topK int) ([]*Match, error) {
	matches, err := x.search(ctx, query, userID, topK)
	if x.metrics != nil {
		x.metrics.RecordVectorSearch(err == nil)
	}
	return matches, err
}

func (x *index) search(ctx context.Context, query string, userID *string, topK int) ([]*Match, error) {
	if topK <= 0 {
		topK = 3
	}
	vec, err := x.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to embed query")
	}
	hits, err := x.store.SearchInsightEmbeddings(ctx, &store.EmbeddingSearch{
		Vector: vec,
		UserID: userID,
		TopK:   topK,
	})
	if err != nil {
		return nil, err
	}
	matches := make([]*Match, 0, len(hits))
	for _, h := range hits {
		matches = append(matches, &Match{
			InsightID: h.InsightID,
			Content:   h.Content,
			Topics:    h.Topics,
			Score:     h.Score,
		})
	}
	return matches, nil
}

func (x *index) Delete(ctx context.Context, insightID string) error {
	return x.store.DeleteInsightEmbedding(ctx, insightID)
}

func (x *index) Count(ctx context.Context, userID string) (int, error) {
	return x.store.CountInsightEmbeddings(ctx, userID)
}
