package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mindmesh/store"
)

const (
	defaultSuggestionLimit = 5
	mapConversationLimit   = 50
	mapInsightLimit        = 50
)

// graphScope is the node/edge aggregate for one scope plus the raw rows it
// was built from.
type graphScope struct {
	graph     *store.Graph
	topics    []*store.TopicFrequency
	relations []*store.TopicRelation
}

// buildGraphScope assembles the scope aggregate (global when userID is nil).
func (s *Service) buildGraphScope(ctx context.Context, userID *string) (*graphScope, error) {
	frequencies, err := s.Store.ListTopicFrequencies(ctx, userID)
	if err != nil {
		return nil, err
	}
	topicIDs := make([]string, 0, len(frequencies))
	for _, f := range frequencies {
		topicIDs = append(topicIDs, f.ID)
	}
	relations, err := s.Store.ListTopicRelationsAmong(ctx, topicIDs)
	if err != nil {
		return nil, err
	}
	return &graphScope{
		graph:     store.BuildGraph(frequencies, relations),
		topics:    frequencies,
		relations: relations,
	}, nil
}

// userGraphPayload assembles the full graph response for one user: stats, the
// weighted graph, and the raw entities behind it.
func (s *Service) userGraphPayload(ctx context.Context, userID string) (map[string]any, error) {
	scope, err := s.buildGraphScope(ctx, &userID)
	if err != nil {
		return nil, err
	}
	topics, err := s.Store.GetAllUserTopics(ctx, userID)
	if err != nil {
		return nil, err
	}
	insights, err := s.Store.GetRecentUserInsights(ctx, userID, mapInsightLimit)
	if err != nil {
		return nil, err
	}
	conversations, err := s.Store.ListUserConversations(ctx, userID, mapConversationLimit)
	if err != nil {
		return nil, err
	}
	insightCount, err := s.Store.CountUserInsights(ctx, userID)
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"stats": &store.GraphStats{
			TopicCount:        len(scope.graph.Nodes),
			RelationCount:     len(scope.graph.Edges),
			InsightCount:      insightCount,
			ConversationCount: len(conversations),
		},
		"graph":         scope.graph,
		"topics":        topics,
		"relations":     scope.relations,
		"insights":      insights,
		"conversations": conversations,
	}, nil
}

// UserGraphMap returns the user's topic graph with node weights plus the raw
// entities behind it.
func (s *Service) UserGraphMap(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return badRequest(c, "userId required")
	}
	payload, err := s.userGraphPayload(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, payload)
}

// UserTopics lists every topic the user has engaged with.
func (s *Service) UserTopics(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return badRequest(c, "userId required")
	}
	topics, err := s.Store.GetAllUserTopics(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"topics": topics})
}

// UserGraphFull returns the same payload as UserGraphMap; the route is kept
// for clients that address the full dump explicitly.
func (s *Service) UserGraphFull(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return badRequest(c, "userId required")
	}
	payload, err := s.userGraphPayload(c.Request().Context(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, payload)
}

// GlobalGraph returns the cross-user topic graph. Derivatives of blocked or
// deleted conversations never appear; the store-level filters guarantee it.
func (s *Service) GlobalGraph(c echo.Context) error {
	ctx := c.Request().Context()

	scope, err := s.buildGraphScope(ctx, nil)
	if err != nil {
		return respondError(c, err)
	}
	insights, err := s.Store.GetGlobalInsights(ctx, &store.FindGlobal{Limit: mapInsightLimit})
	if err != nil {
		return respondError(c, err)
	}
	summaries, err := s.Store.GetGlobalConversationSummaries(ctx, &store.FindGlobal{Limit: mapConversationLimit})
	if err != nil {
		return respondError(c, err)
	}

	return c.JSON(http.StatusOK, map[string]any{
		"stats": &store.GraphStats{
			TopicCount:        len(scope.graph.Nodes),
			RelationCount:     len(scope.graph.Edges),
			InsightCount:      len(insights),
			ConversationCount: len(summaries),
		},
		"graph":         scope.graph,
		"topics":        scope.topics,
		"relations":     scope.relations,
		"insights":      insights,
		"conversations": summaries,
	})
}

// TopicSuggestions returns topics adjacent to the given ones via relation
// edges. Topics are passed by name and resolved to identifiers.
func (s *Service) TopicSuggestions(c echo.Context) error {
	raw := c.QueryParam("topics")
	if raw == "" {
		return badRequest(c, "topics required")
	}
	limit := queryLimit(c, defaultSuggestionLimit)
	ctx := c.Request().Context()

	wanted := make(map[string]bool)
	for _, name := range strings.Split(raw, ",") {
		if normalized := store.NormalizeTopicName(name); normalized != "" {
			wanted[normalized] = true
		}
	}
	if len(wanted) == 0 {
		return badRequest(c, "topics required")
	}

	frequencies, err := s.Store.ListTopicFrequencies(ctx, nil)
	if err != nil {
		return respondError(c, err)
	}
	topicIDs := make([]string, 0, len(wanted))
	for _, f := range frequencies {
		if wanted[f.Name] {
			topicIDs = append(topicIDs, f.ID)
		}
	}
	if len(topicIDs) == 0 {
		return c.JSON(http.StatusOK, map[string]any{"suggestions": []*store.Topic{}})
	}

	suggestions, err := s.Store.GetSuggestedTopics(ctx, topicIDs, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"suggestions": suggestions})
}

// LinkTopics manually upserts a reinforcing relation between two topics.
func (s *Service) LinkTopics(c echo.Context) error {
	var body struct {
		Topic1   string   `json:"topic1"`
		Topic2   string   `json:"topic2"`
		Strength *float64 `json:"strength"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "malformed request body")
	}
	name1 := store.NormalizeTopicName(body.Topic1)
	name2 := store.NormalizeTopicName(body.Topic2)
	if name1 == "" || name2 == "" {
		return badRequest(c, "topic1 and topic2 required")
	}
	if name1 == name2 {
		return badRequest(c, "topics must differ")
	}
	strength := store.DefaultRelationStrength
	if body.Strength != nil {
		strength = store.ClampStrength(*body.Strength)
	}

	ctx := c.Request().Context()
	topic1, err := s.Store.GetOrCreateTopic(ctx, name1, "")
	if err != nil {
		return respondError(c, err)
	}
	topic2, err := s.Store.GetOrCreateTopic(ctx, name2, "")
	if err != nil {
		return respondError(c, err)
	}
	relation, err := s.Store.LinkTopics(ctx, topic1.ID, topic2.ID, strength, store.DefaultRelationType)
	if err != nil {
		return respondError(c, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, map[string]any{"relation": relation})
}
