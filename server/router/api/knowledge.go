package api

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/store"
)

const defaultSearchTopK = 5

// KnowledgeSearch runs a semantic query against the insight vector index.
func (s *Service) KnowledgeSearch(c echo.Context) error {
	if s.Index == nil {
		return badRequest(c, "semantic search is not enabled")
	}
	var body struct {
		Query  string  `json:"query"`
		UserID *string `json:"userId"`
		TopK   int     `json:"topK"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "malformed request body")
	}
	if body.Query == "" {
		return badRequest(c, "query required")
	}
	if body.TopK <= 0 {
		body.TopK = defaultSearchTopK
	}

	matches, err := s.Index.Search(c.Request().Context(), body.Query, body.UserID, body.TopK)
	if err != nil {
		return respondError(c, err)
	}
	if matches == nil {
		matches = []*vector.Match{}
	}
	return c.JSON(http.StatusOK, map[string]any{"results": matches})
}

// KnowledgeAdd ingests an external insight: graph row plus vector index entry.
func (s *Service) KnowledgeAdd(c echo.Context) error {
	var body struct {
		UserID         string   `json:"userId"`
		ConversationID string   `json:"conversationId"`
		Content        string   `json:"content"`
		Topics         []string `json:"topics"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "malformed request body")
	}
	if body.UserID == "" {
		return badRequest(c, "userId required")
	}
	if body.Content == "" {
		return badRequest(c, "content required")
	}
	ctx := c.Request().Context()

	if _, err := s.Store.GetOrCreateUser(ctx, body.UserID); err != nil {
		return respondError(c, err)
	}

	insight := &store.Insight{
		ID:              uuid.NewString(),
		ConversationID:  body.ConversationID,
		UserID:          body.UserID,
		Content:         body.Content,
		ImportanceScore: store.ImportanceIngested,
		CreatedTs:       time.Now().Unix(),
	}
	created, err := s.Store.SaveInsight(ctx, insight)
	if err != nil {
		return respondError(c, err)
	}

	topicNames := make([]string, 0, len(body.Topics))
	for _, name := range body.Topics {
		normalized := store.NormalizeTopicName(name)
		if normalized == "" {
			continue
		}
		topic, err := s.Store.GetOrCreateTopic(ctx, normalized, "")
		if err != nil {
			return respondError(c, err)
		}
		if err := s.Store.LinkInsightToTopic(ctx, created.ID, topic.ID); err != nil {
			return respondError(c, err)
		}
		topicNames = append(topicNames, normalized)
	}

	if s.Index != nil {
		if err := s.Index.Store(ctx, created.ID, created.Content, body.UserID, topicNames); err != nil {
			// Indexing is best-effort; the graph row is the ground truth.
			c.Logger().Warnf("vector indexing failed for insight %s: %v", created.ID, err)
		}
	}

	noStore(c)
	return c.JSON(http.StatusOK, map[string]any{"insight": created})
}

// KnowledgeDelete removes an insight from the graph and the vector index.
func (s *Service) KnowledgeDelete(c echo.Context) error {
	insightID := c.Param("insightId")
	if insightID == "" {
		return badRequest(c, "insightId required")
	}
	ctx := c.Request().Context()

	if _, err := s.Store.GetInsight(ctx, insightID); err != nil {
		return respondError(c, err)
	}
	if err := s.Store.DeleteInsight(ctx, insightID); err != nil {
		return respondError(c, err)
	}
	if s.Index != nil {
		if err := s.Index.Delete(ctx, insightID); err != nil {
			c.Logger().Warnf("vector delete failed for insight %s: %v", insightID, err)
		}
	}
	noStore(c)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

// KnowledgeStats reports the user's knowledge footprint.
func (s *Service) KnowledgeStats(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return badRequest(c, "userId required")
	}
	ctx := c.Request().Context()

	insightCount, err := s.Store.CountUserInsights(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	topics, err := s.Store.GetAllUserTopics(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}

	payload := map[string]any{
		"userId":       userID,
		"insightCount": insightCount,
		"topicCount":   len(topics),
	}
	if s.Index != nil {
		if vectors, err := s.Index.Count(ctx, userID); err == nil {
			payload["vectorCount"] = vectors
		}
	}
	return c.JSON(http.StatusOK, payload)
}
