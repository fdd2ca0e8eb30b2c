package chat

import (
	"context"
	"log/slog"
	"strings"

	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/store"
)

// Context assembly limits.
const (
	maxPersonalInsights = 15
	maxGlobalSummaries  = 15
	maxGlobalInsights   = 15
	maxRelatedInsights  = 3
	maxVectorHits       = 3
	minVectorScore      = 0.5
)

// contextBuilder assembles the prompt preamble for one turn. Every section is
// optional; the vector section is best-effort and falls through on failure.
type contextBuilder struct {
	store *store.Store
	index vector.Index // nil when embeddings are disabled
}

// builtContext is the assembled preamble plus the evidence echoed to the client.
type builtContext struct {
	Block    string
	Evidence []*Evidence
}

// Build assembles the context sections in their fixed order: personal
// insights, global pool, topic-related fallback, vector hits.
func (b *contextBuilder) Build(ctx context.Context, userID, query string) *builtContext {
	var sections []string
	var evidence []*Evidence

	personal, err := b.store.GetRecentUserInsights(ctx, userID, maxPersonalInsights)
	if err != nil {
		slog.Warn("context: personal insights unavailable", "user", userID, "error", err)
	}
	if len(personal) > 0 {
		var lines []string
		for _, in := range personal {
			lines = append(lines, renderInsight(in))
			evidence = append(evidence, &Evidence{
				Content: in.Content,
				Topics:  in.Topics,
				Source:  "personal",
			})
		}
		sections = append(sections, "Your previous insights:\n"+strings.Join(lines, "\n"))
	}

	find := &store.FindGlobal{ExcludeUserID: userID, Limit: maxGlobalSummaries}
	summaries, err := b.store.GetGlobalConversationSummaries(ctx, find)
	if err != nil {
		slog.Warn("context: global summaries unavailable", "error", err)
	}
	if len(summaries) > 0 {
		var lines []string
		for _, s := range summaries {
			lines = append(lines, "- "+s.Summary)
		}
		sections = append(sections, "Shared conversation summaries:\n"+strings.Join(lines, "\n"))
	}

	globals, err := b.store.GetGlobalInsights(ctx, &store.FindGlobal{ExcludeUserID: userID, Limit: maxGlobalInsights})
	if err != nil {
		slog.Warn("context: global insights unavailable", "error", err)
	}
	if len(globals) > 0 {
		var lines []string
		for _, g := range globals {
			lines = append(lines, "- "+g.Content)
			evidence = append(evidence, &Evidence{Content: g.Content, Source: "global"})
		}
		sections = append(sections, "Shared insights:\n"+strings.Join(lines, "\n"))
	}

	// Topic-related fallback fires only when the personal pool is empty.
	if len(personal) == 0 {
		if related := b.relatedByTopic(ctx, userID); len(related) > 0 {
			var lines []string
			for _, in := range related {
				lines = append(lines, renderInsight(in))
				evidence = append(evidence, &Evidence{
					Content: in.Content,
					Topics:  in.Topics,
					Source:  "related",
				})
			}
			sections = append(sections, "Insights on topics you have explored:\n"+strings.Join(lines, "\n"))
		}
	}

	if hits := b.vectorHits(ctx, userID, query); len(hits) > 0 {
		var lines []string
		for _, h := range hits {
			lines = append(lines, "- "+h.Content)
			evidence = append(evidence, &Evidence{
				Content: h.Content,
				Topics:  h.Topics,
				Score:   h.Score,
				Source:  "vector",
			})
		}
		sections = append(sections, "Semantically similar knowledge:\n"+strings.Join(lines, "\n"))
	}

	return &builtContext{
		Block:    strings.Join(sections, "\n\n"),
		Evidence: evidence,
	}
}

func (b *contextBuilder) relatedByTopic(ctx context.Context, userID string) []*store.Insight {
	topics, err := b.store.GetAllUserTopics(ctx, userID)
	if err != nil || len(topics) == 0 {
		if err != nil {
			slog.Warn("context: user topics unavailable", "user", userID, "error", err)
		}
		return nil
	}
	topicIDs := make([]string, 0, len(topics))
	for _, t := range topics {
		topicIDs = append(topicIDs, t.ID)
	}
	related, err := b.store.GetRelatedInsights(ctx, userID, topicIDs, maxRelatedInsights)
	if err != nil {
		slog.Warn("context: related insights unavailable", "user", userID, "error", err)
		return nil
	}
	return related
}

// vectorHits is best-effort: failures are logged and the section is skipped.
func (b *contextBuilder) vectorHits(ctx context.Context, userID, query string) []*vector.Match {
	if b.index == nil || query == "" {
		return nil
	}
	matches, err := b.index.Search(ctx, query, &userID, maxVectorHits)
	if err != nil {
		slog.Warn("context: vector search failed", "user", userID, "error", err)
		return nil
	}
	kept := matches[:0]
	for _, m := range matches {
		if m.Score >= minVectorScore {
			kept = append(kept, m)
		}
	}
	return kept
}

func renderInsight(in *store.Insight) string {
	if len(in.Topics) > 0 {
		return "- " + in.Content + " [" + strings.Join(in.Topics, ", ") + "]"
	}
	return "- " + in.Content
}
