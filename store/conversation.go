package store

type Conversation struct {
	ID                   string  `json:"id"`
	UserID               string  `json:"userId"`
	Summary              *string `json:"summary,omitempty"`
	MessageCount         int     `json:"messageCount"`
	CreatedTs            int64   `json:"createdTs"`
	UpdatedTs            int64   `json:"updatedTs"`
	Processed            bool    `json:"processed"`
	IsUseful             *bool   `json:"isUseful,omitempty"`
	UsefulnessReason     *string `json:"usefulnessReason,omitempty"`
	GlobalSharingBlocked bool    `json:"globalSharingBlocked"`
	Deleted              bool    `json:"deleted"`
	DeletedTs            *int64  `json:"deletedTs,omitempty"`
}

// ConversationVerdict carries the processor's classification result.
// Activity (updated_ts) is deliberately not touched here: only user-turn
// writes bump it, so processor writes cannot mask true inactivity.
type ConversationVerdict struct {
	ConversationID   string
	Processed        bool
	IsUseful         *bool
	UsefulnessReason *string
	Summary          *string
}

// ConversationSummary is a row of the global summary pool.
type ConversationSummary struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	Summary        string `json:"summary"`
	UpdatedTs      int64  `json:"updatedTs"`
}
