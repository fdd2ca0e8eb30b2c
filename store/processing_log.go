package store

// ProcessingLog is an append-only audit row of processor verdicts.
type ProcessingLog struct {
	ID              int64  `json:"id"`
	ConversationID  string `json:"conversationId"`
	UserID          string `json:"userId"`
	CreatedTs       int64  `json:"createdTs"`
	IsUseful        bool   `json:"isUseful"`
	Reason          string `json:"reason"`
	TopicsExtracted string `json:"topicsExtracted"` // JSON-serialized topic name list
	InsightsCount   int    `json:"insightsCount"`
}

type FindProcessingLogs struct {
	ConversationID *string
	Limit          int
}

// ProcessorStats aggregates processor history for the stats endpoint.
type ProcessorStats struct {
	ProcessedConversations int `json:"processedConversations"`
	UsefulConversations    int `json:"usefulConversations"`
	NotUsefulConversations int `json:"notUsefulConversations"`
	PendingConversations   int `json:"pendingConversations"`
	LogCount               int `json:"logCount"`
}

// PromotedInsight is an extracted insight headed into the graph; the ID is
// generated by the caller so the vector index can reference it after commit.
type PromotedInsight struct {
	ID      string
	Content string
}

// ConversationPromotion is the single-transaction payload of the processor's
// useful branch: topic upserts, links, co-occurrence edges, insights, the
// optional global insight, the verdict stamp, and the audit row.
type ConversationPromotion struct {
	ConversationID string
	UserID         string
	Summary        string
	Reason         string
	TopicNames     []string // already normalized, deduplicated
	Insights       []*PromotedInsight
	ShareGlobal    bool // owner consented and conversation is not blocked
	Now            int64
}
