// Package processor promotes idle conversations into the knowledge graph. It
// runs out-of-band from the chat pipeline: an HTTP trigger, a cron tick and a
// client inactivity timer all converge on the same single-flight routine.
package processor

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"golang.org/x/sync/semaphore"

	"github.com/hrygo/mindmesh/ai/llm"
	"github.com/hrygo/mindmesh/ai/metrics"
	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/store"
)

// ErrRunInFlight is returned when a run is already executing; callers should
// answer with a 202-equivalent instead of spawning a parallel run.
var ErrRunInFlight = errors.New("processor run already in flight")

const processingErrorReason = "Processing error"

// ConversationResult is the per-conversation outcome of one run.
type ConversationResult struct {
	ConversationID string   `json:"conversationId"`
	IsUseful       bool     `json:"isUseful"`
	Reason         string   `json:"reason"`
	Topics         []string `json:"topics"`
	InsightsCount  int      `json:"insightsCount"`
}

// RunResult is the aggregate outcome of one run.
type RunResult struct {
	Processed int                   `json:"processed"`
	Useful    int                   `json:"useful"`
	NotUseful int                   `json:"notUseful"`
	Results   []*ConversationResult `json:"results"`
}

// Config bounds a run.
type Config struct {
	IdleSeconds int // conversation idle threshold (default 120)
	BatchSize   int // max conversations per run (default 10)
}

// Processor is the deferred conversation processor. Runs are single-flight:
// topic upserts and edge reinforcement are conflict-tolerant, but serializing
// runs keeps the strength updates race-free without row locks.
type Processor struct {
	store   *store.Store
	llm     llm.Service
	index   vector.Index // nil when embeddings are disabled
	metrics *metrics.Exporter
	cfg     Config

	inflight *semaphore.Weighted
}

// New creates a Processor. index and exporter may be nil.
func New(st *store.Store, llmService llm.Service, index vector.Index, exporter *metrics.Exporter, cfg Config) *Processor {
	if cfg.IdleSeconds <= 0 {
		cfg.IdleSeconds = 120
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 10
	}
	return &Processor{
		store:    st,
		llm:      llmService,
		index:    index,
		metrics:  exporter,
		cfg:      cfg,
		inflight: semaphore.NewWeighted(1),
	}
}

// ListPending returns the conversations the next run would pick up.
func (p *Processor) ListPending(ctx context.Context) ([]*store.Conversation, error) {
	before := time.Now().Unix() - int64(p.cfg.IdleSeconds)
	return p.store.ListIdleConversations(ctx, before, p.cfg.BatchSize)
}

// Run executes one processing pass. Returns ErrRunInFlight when another run
// holds the slot. Each conversation is a cancellation boundary: a canceled
// context finishes the current row and returns what was done so far.
func (p *Processor) Run(ctx context.Context) (*RunResult, error) {
	if !p.inflight.TryAcquire(1) {
		return nil, ErrRunInFlight
	}
	defer p.inflight.Release(1)

	start := time.Now()
	result := &RunResult{Results: []*ConversationResult{}}

	pending, err := p.ListPending(ctx)
	if err != nil {
		p.recordRun(0, start, false)
		return nil, errors.Wrap(err, "failed to list idle conversations")
	}

	for _, conversation := range pending {
		if ctx.Err() != nil {
			break
		}
		one := p.processOne(ctx, conversation)
		result.Results = append(result.Results, one)
		result.Processed++
		if one.IsUseful {
			result.Useful++
		} else {
			result.NotUseful++
		}
	}

	p.recordRun(result.Processed, start, true)
	slog.Info("processor run complete",
		"processed", result.Processed, "useful", result.Useful, "notUseful", result.NotUseful)
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, conversation *store.Conversation) *ConversationResult {
	result := &ConversationResult{ConversationID: conversation.ID, Topics: []string{}}

	messages, err := p.store.ListMessages(ctx, conversation.ID)
	if err != nil {
		slog.Error("processor: failed to load messages", "conversation", conversation.ID, "error", err)
		result.Reason = processingErrorReason
		p.stampError(ctx, conversation)
		return result
	}
	if len(messages) == 0 {
		result.Reason = "No messages"
		p.stampVerdict(ctx, conversation.ID, false, result.Reason, nil)
		return result
	}

	turns := make([]llm.Message, 0, len(messages))
	for _, m := range messages {
		turns = append(turns, llm.Message{Role: m.Role, Content: m.Content})
	}
	analysis := p.llm.AnalyzeConversation(ctx, turns)

	if !analysis.IsUseful {
		result.Reason = analysis.Reason
		p.stampVerdict(ctx, conversation.ID, false, analysis.Reason, nil)
		p.logVerdict(ctx, conversation, false, analysis.Reason, "[]", 0)
		return result
	}

	if err := p.promote(ctx, conversation, analysis); err != nil {
		slog.Error("processor: promotion failed", "conversation", conversation.ID, "error", err)
		result.Reason = processingErrorReason
		p.stampError(ctx, conversation)
		return result
	}

	result.IsUseful = true
	result.Reason = analysis.Reason
	result.Topics = normalizeTopics(analysis.Topics)
	result.InsightsCount = len(analysis.Insights)
	return result
}

// promote runs the useful branch: one store transaction for the graph
// mutations, then best-effort vector indexing of the new insights.
func (p *Processor) promote(ctx context.Context, conversation *store.Conversation, analysis *llm.ConversationAnalysis) error {
	user, err := p.store.GetUser(ctx, conversation.UserID)
	if err != nil {
		return errors.Wrap(err, "failed to load owner")
	}

	insights := make([]*store.PromotedInsight, 0, len(analysis.Insights))
	for _, content := range analysis.Insights {
		insights = append(insights, &store.PromotedInsight{
			ID:      uuid.NewString(),
			Content: content,
		})
	}

	topicNames := normalizeTopics(analysis.Topics)
	promo := &store.ConversationPromotion{
		ConversationID: conversation.ID,
		UserID:         conversation.UserID,
		Summary:        analysis.Summary,
		Reason:         analysis.Reason,
		TopicNames:     topicNames,
		Insights:       insights,
		ShareGlobal:    user.ConsentGlobal && !conversation.GlobalSharingBlocked,
		Now:            time.Now().Unix(),
	}
	if err := p.store.PromoteConversation(ctx, promo); err != nil {
		return err
	}

	if p.index != nil {
		for _, insight := range insights {
			if err := p.index.Store(ctx, insight.ID, insight.Content, conversation.UserID, topicNames); err != nil {
				slog.Warn("processor: vector indexing failed",
					"insight", insight.ID, "conversation", conversation.ID, "error", err)
			}
		}
	}
	return nil
}

// stampError marks a failed row processed so it is not retried.
func (p *Processor) stampError(ctx context.Context, conversation *store.Conversation) {
	p.stampVerdict(ctx, conversation.ID, false, processingErrorReason, nil)
	p.logVerdict(ctx, conversation, false, processingErrorReason, "[]", 0)
}

func (p *Processor) stampVerdict(ctx context.Context, conversationID string, useful bool, reason string, summary *string) {
	err := p.store.UpdateConversationVerdict(ctx, &store.ConversationVerdict{
		ConversationID:   conversationID,
		Processed:        true,
		IsUseful:         &useful,
		UsefulnessReason: &reason,
		Summary:          summary,
	})
	if err != nil {
		slog.Error("processor: failed to stamp verdict", "conversation", conversationID, "error", err)
	}
}

func (p *Processor) logVerdict(ctx context.Context, conversation *store.Conversation, useful bool, reason, topicsJSON string, insightsCount int) {
	_, err := p.store.CreateProcessingLog(ctx, &store.ProcessingLog{
		ConversationID:  conversation.ID,
		UserID:          conversation.UserID,
		CreatedTs:       time.Now().Unix(),
		IsUseful:        useful,
		Reason:          reason,
		TopicsExtracted: topicsJSON,
		InsightsCount:   insightsCount,
	})
	if err != nil {
		slog.Error("processor: failed to append log", "conversation", conversation.ID, "error", err)
	}
}

func (p *Processor) recordRun(processed int, start time.Time, success bool) {
	if p.metrics != nil {
		p.metrics.RecordProcessorRun(processed, time.Since(start), success)
	}
}

// normalizeTopics canonicalizes and deduplicates extracted topic names,
// preserving order.
func normalizeTopics(names []string) []string {
	out := make([]string, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		normalized := store.NormalizeTopicName(name)
		if normalized == "" || seen[normalized] {
			continue
		}
		seen[normalized] = true
		out = append(out, normalized)
	}
	return out
}
