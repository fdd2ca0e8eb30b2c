// Package chat implements the conversational turn pipeline: context assembly,
// completion, message persistence, activity tracking and the PII gate.
// Knowledge extraction never happens here; that is the processor's job.
package chat

import (
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/ai/llm"
)

// Request is one chat turn. Messages carries the full client-side history;
// only the final user turn is authoritative for classification and the PII
// probe.
type Request struct {
	UserID               string        `json:"userId"`
	ConversationID       string        `json:"conversationId,omitempty"`
	Messages             []llm.Message `json:"messages"`
	GlobalSharingConsent *bool         `json:"globalSharingConsent,omitempty"`
}

// Validate checks the request shape before any store write.
func (r *Request) Validate() error {
	if r.UserID == "" {
		return errors.New("userId required")
	}
	if len(r.Messages) == 0 {
		return errors.New("messages required")
	}
	last := r.Messages[len(r.Messages)-1]
	if last.Role != "user" || last.Content == "" {
		return errors.New("last message must be a non-empty user turn")
	}
	return nil
}

// lastUserTurn returns the authoritative user message of the request.
func (r *Request) lastUserTurn() string {
	return r.Messages[len(r.Messages)-1].Content
}

// Evidence is one piece of grounding context echoed back to the client.
type Evidence struct {
	Content string   `json:"content"`
	Topics  []string `json:"topics,omitempty"`
	Score   float64  `json:"score,omitempty"`
	Source  string   `json:"source"` // personal, global, related, vector
}

// Response is the blocking-mode result of one turn.
type Response struct {
	Response             string            `json:"response"`
	ConversationID       string            `json:"conversationId"`
	RelatedContext       []*Evidence       `json:"relatedContext"`
	SuggestedTopics      []string          `json:"suggestedTopics"`
	PIIDetection         *llm.PIIDetection `json:"piiDetection,omitempty"`
	GlobalSharingBlocked bool              `json:"globalSharingBlocked"`
}

// StreamEvent is one server-sent-events record of a streaming turn. Exactly
// one of Text, Done or Error is meaningful per record.
type StreamEvent struct {
	Text           string `json:"text,omitempty"`
	Done           bool   `json:"done,omitempty"`
	Error          string `json:"error,omitempty"`
	ConversationID string `json:"conversationId,omitempty"`
}
