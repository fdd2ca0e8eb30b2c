package store

// GlobalInsightIDPrefix keys a global insight to its source conversation so
// promotion retries upsert instead of duplicating.
const GlobalInsightIDPrefix = "global_"

type GlobalInsight struct {
	ID        string `json:"id"`
	Content   string `json:"content"`
	TopicIDs  string `json:"topicIds"` // comma-joined topic identifiers
	UseCount  int    `json:"useCount"`
	CreatedTs int64  `json:"createdTs"`
}

// FindGlobal filters the global pool reads. Rows authored by ExcludeUserID and
// rows derived from globalSharingBlocked conversations are never returned.
type FindGlobal struct {
	ExcludeUserID string
	Limit         int
}
