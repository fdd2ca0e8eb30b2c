package chat

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lithammer/shortuuid/v4"
	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/ai/llm"
	"github.com/hrygo/mindmesh/ai/metrics"
	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/store"
)

const maxSuggestedTopics = 5

// Pipeline handles one conversational turn end to end.
type Pipeline struct {
	store   *store.Store
	llm     llm.Service
	builder *contextBuilder
	metrics *metrics.Exporter
}

// NewPipeline creates a Pipeline. index may be nil when embeddings are
// disabled; exporter may be nil to disable metrics.
func NewPipeline(st *store.Store, llmService llm.Service, index vector.Index, exporter *metrics.Exporter) *Pipeline {
	return &Pipeline{
		store:   st,
		llm:     llmService,
		builder: &contextBuilder{store: st, index: index},
		metrics: exporter,
	}
}

// turnState carries everything the shared preamble resolves before the
// completion call.
type turnState struct {
	conversation   *store.Conversation
	classification *llm.QueryClassification
	built          *builtContext
	query          string
}

// prepare runs the shared front half of a turn: validation, user and
// conversation resolution, context assembly, classification, and the user
// message write (which is the only write that bumps conversation activity).
func (p *Pipeline) prepare(ctx context.Context, req *Request) (*turnState, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := p.store.GetOrCreateUser(ctx, req.UserID); err != nil {
		return nil, errors.Wrap(err, "failed to resolve user")
	}

	conversation, err := p.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	query := req.lastUserTurn()
	built := p.builder.Build(ctx, req.UserID, query)
	classification := p.llm.ClassifyQuery(ctx, query)

	now := time.Now().Unix()
	if _, err := p.store.AddMessage(ctx, &store.Message{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		Role:           store.RoleUser,
		Content:        query,
		CreatedTs:      now,
	}); err != nil {
		return nil, errors.Wrap(err, "failed to persist user message")
	}
	if err := p.store.UpdateConversationActivity(ctx, conversation.ID, now); err != nil {
		return nil, errors.Wrap(err, "failed to update conversation activity")
	}

	return &turnState{
		conversation:   conversation,
		classification: classification,
		built:          built,
		query:          query,
	}, nil
}

func (p *Pipeline) resolveConversation(ctx context.Context, req *Request) (*store.Conversation, error) {
	if req.ConversationID == "" {
		now := time.Now().Unix()
		return p.store.CreateConversation(ctx, &store.Conversation{
			ID:        shortuuid.New(),
			UserID:    req.UserID,
			CreatedTs: now,
			UpdatedTs: now,
		})
	}
	conversation, err := p.store.GetConversation(ctx, req.ConversationID)
	if err != nil {
		return nil, err
	}
	if conversation.UserID != req.UserID || conversation.Deleted {
		return nil, errors.Wrapf(store.ErrNotFound, "conversation %s", req.ConversationID)
	}
	return conversation, nil
}

// Send handles a blocking turn.
func (p *Pipeline) Send(ctx context.Context, req *Request) (*Response, error) {
	start := time.Now()
	if p.metrics != nil {
		defer p.metrics.ChatStarted()()
	}

	state, err := p.prepare(ctx, req)
	if err != nil {
		p.recordTurn("blocking", start, false)
		return nil, err
	}

	answer, err := p.llm.Chat(ctx, req.Messages, state.built.Block, state.classification.SuggestedResponseLength)
	if err != nil {
		p.recordTurn("blocking", start, false)
		return nil, err
	}

	if _, err := p.store.AddMessage(ctx, &store.Message{
		ID:             uuid.NewString(),
		ConversationID: state.conversation.ID,
		Role:           store.RoleAssistant,
		Content:        answer,
		CreatedTs:      time.Now().Unix(),
	}); err != nil {
		p.recordTurn("blocking", start, false)
		return nil, errors.Wrap(err, "failed to persist assistant message")
	}

	detection, blocked := p.piiGate(ctx, req, state, answer)

	p.recordTurn("blocking", start, true)
	return &Response{
		Response:             answer,
		ConversationID:       state.conversation.ID,
		RelatedContext:       state.built.Evidence,
		SuggestedTopics:      p.suggestTopics(ctx, req.UserID),
		PIIDetection:         detection,
		GlobalSharingBlocked: blocked,
	}, nil
}

// Stream handles a streaming turn, delivering each event through emit. A
// preamble failure is returned as an error so the handler can answer with an
// HTTP status; once streaming starts, failures surface as an error event and
// Stream returns nil.
func (p *Pipeline) Stream(ctx context.Context, req *Request, emit func(*StreamEvent) error) error {
	start := time.Now()
	if p.metrics != nil {
		defer p.metrics.ChatStarted()()
	}

	state, err := p.prepare(ctx, req)
	if err != nil {
		p.recordTurn("stream", start, false)
		return err
	}

	contentCh, errCh := p.llm.ChatStream(ctx, req.Messages, state.built.Block, state.classification.SuggestedResponseLength)

	var assembled strings.Builder
	for chunk := range contentCh {
		assembled.WriteString(chunk)
		if err := emit(&StreamEvent{Text: chunk, ConversationID: state.conversation.ID}); err != nil {
			p.recordTurn("stream", start, false)
			return nil // client went away
		}
	}
	if streamErr := <-errCh; streamErr != nil {
		slog.Error("chat stream failed", "conversation", state.conversation.ID, "error", streamErr)
		_ = emit(&StreamEvent{Error: "stream failed", ConversationID: state.conversation.ID})
		p.recordTurn("stream", start, false)
		return nil
	}

	answer := assembled.String()
	if _, err := p.store.AddMessage(ctx, &store.Message{
		ID:             uuid.NewString(),
		ConversationID: state.conversation.ID,
		Role:           store.RoleAssistant,
		Content:        answer,
		CreatedTs:      time.Now().Unix(),
	}); err != nil {
		slog.Error("failed to persist streamed assistant message",
			"conversation", state.conversation.ID, "error", err)
		_ = emit(&StreamEvent{Error: "persist failed", ConversationID: state.conversation.ID})
		p.recordTurn("stream", start, false)
		return nil
	}

	p.piiGate(ctx, req, state, answer)

	p.recordTurn("stream", start, true)
	return emit(&StreamEvent{Done: true, ConversationID: state.conversation.ID})
}

// piiGate runs the post-completion PII probe. Skipped when the conversation is
// already blocked or the turn was trivial. The flag is set only on a detected
// hit combined with an explicit consent refusal; positive or absent consent
// leaves it untouched.
func (p *Pipeline) piiGate(ctx context.Context, req *Request, state *turnState, answer string) (*llm.PIIDetection, bool) {
	blocked := state.conversation.GlobalSharingBlocked
	if blocked || state.classification.IsTrivial {
		return nil, blocked
	}

	detection := p.llm.DetectPII(ctx, state.query, answer)
	if !detection.ContainsPII {
		return nil, blocked
	}

	if req.GlobalSharingConsent != nil && !*req.GlobalSharingConsent {
		if err := p.store.SetConversationGlobalSharingBlocked(ctx, state.conversation.ID, true); err != nil {
			slog.Error("failed to set global sharing block",
				"conversation", state.conversation.ID, "error", err)
		} else {
			blocked = true
		}
	}
	return detection, blocked
}

// suggestTopics is best-effort: failures degrade to an empty list.
func (p *Pipeline) suggestTopics(ctx context.Context, userID string) []string {
	topics, err := p.store.GetAllUserTopics(ctx, userID)
	if err != nil || len(topics) == 0 {
		return []string{}
	}
	topicIDs := make([]string, 0, len(topics))
	for _, t := range topics {
		topicIDs = append(topicIDs, t.ID)
	}
	suggested, err := p.store.GetSuggestedTopics(ctx, topicIDs, maxSuggestedTopics)
	if err != nil {
		slog.Warn("topic suggestion failed", "user", userID, "error", err)
		return []string{}
	}
	names := make([]string, 0, len(suggested))
	for _, t := range suggested {
		names = append(names, t.Name)
	}
	return names
}

func (p *Pipeline) recordTurn(mode string, start time.Time, success bool) {
	if p.metrics != nil {
		p.metrics.RecordChatRequest(mode, time.Since(start), success)
	}
}
