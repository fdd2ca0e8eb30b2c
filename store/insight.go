package store

// Importance defaults per insight origin: promoted rows come out of the
// conversation processor, ingested rows arrive through the knowledge API.
const (
	ImportancePromoted = 0.7
	ImportanceIngested = 0.7
)

type Insight struct {
	ID              string   `json:"id"`
	ConversationID  string   `json:"conversationId"`
	UserID          string   `json:"userId"`
	Content         string   `json:"content"`
	ImportanceScore float64  `json:"importanceScore"`
	VectorID        *string  `json:"vectorId,omitempty"`
	CreatedTs       int64    `json:"createdTs"`
	Topics          []string `json:"topics,omitempty"` // topic names, populated on reads
}

// InsightEmbedding is a row of the secondary vector index. On Postgres the
// embedding is a pgvector column; on SQLite it is a BLOB searched in the
// application layer.
type InsightEmbedding struct {
	InsightID string
	UserID    string
	Content   string
	Topics    string // comma-joined topic names, metadata only
	Embedding []float32
	CreatedTs int64
}

// EmbeddingSearch queries the vector index by cosine similarity.
type EmbeddingSearch struct {
	Vector []float32
	UserID *string // optional owner filter
	TopK   int
}

// EmbeddingMatch is a similarity hit, score in [0,1] descending.
type EmbeddingMatch struct {
	InsightID string   `json:"id"`
	Content   string   `json:"content"`
	Topics    []string `json:"topics"`
	Score     float64  `json:"score"`
}
