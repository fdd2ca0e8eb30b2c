package store

// Message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is an immutable conversation turn. AddMessage increments the owning
// conversation's message_count in the same transaction, which also serializes
// concurrent writers on the conversation row.
type Message struct {
	ID             string `json:"id"`
	ConversationID string `json:"conversationId"`
	Role           string `json:"role"`
	Content        string `json:"content"`
	CreatedTs      int64  `json:"createdTs"`
}
