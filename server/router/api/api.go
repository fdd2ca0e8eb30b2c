// Package api implements the REST surface over the chat pipeline, graph
// store, vector index and processor.
package api

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"
	"golang.org/x/time/rate"

	"github.com/hrygo/mindmesh/ai/chat"
	"github.com/hrygo/mindmesh/ai/processor"
	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/internal/profile"
	"github.com/hrygo/mindmesh/store"
)

// Service wires the domain components into echo handlers.
type Service struct {
	Profile   *profile.Profile
	Store     *store.Store
	Pipeline  *chat.Pipeline
	Processor *processor.Processor
	Index     vector.Index // nil when embeddings are disabled

	limiters sync.Map // userID -> *rate.Limiter
}

// NewService creates the API service.
func NewService(p *profile.Profile, st *store.Store, pipeline *chat.Pipeline, proc *processor.Processor, index vector.Index) *Service {
	return &Service{
		Profile:   p,
		Store:     st,
		Pipeline:  pipeline,
		Processor: proc,
		Index:     index,
	}
}

// RegisterRoutes mounts every endpoint under /api.
func (s *Service) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")

	g.GET("/ping", s.Ping)
	g.GET("/health", s.Health)

	g.POST("/chat/send", s.ChatSend, s.rateLimit)
	g.POST("/chat/stream", s.ChatStream, s.rateLimit)
	g.POST("/chat/pii-consent", s.PIIConsent)
	g.GET("/chat/history/:userId", s.ChatHistory)
	g.GET("/chat/context/:userId", s.ChatContext)
	g.GET("/chat/status/:conversationId", s.ChatStatus)
	g.DELETE("/chat/:conversationId", s.DeleteConversation)

	g.GET("/graph/user/:userId/map", s.UserGraphMap)
	g.GET("/graph/user/:userId/topics", s.UserTopics)
	g.GET("/graph/user/:userId/full", s.UserGraphFull)
	g.GET("/graph/global", s.GlobalGraph)
	g.GET("/graph/suggestions", s.TopicSuggestions)
	g.POST("/graph/link-topics", s.LinkTopics)

	g.POST("/knowledge/search", s.KnowledgeSearch)
	g.POST("/knowledge/add", s.KnowledgeAdd)
	g.DELETE("/knowledge/:insightId", s.KnowledgeDelete)
	g.GET("/knowledge/stats/:userId", s.KnowledgeStats)

	g.POST("/processor/run", s.ProcessorRun)
	g.GET("/processor/pending", s.ProcessorPending)
	g.GET("/processor/logs", s.ProcessorLogs)
	g.GET("/processor/stats", s.ProcessorStats)
}

// errorPayload is the uniform error shape.
type errorPayload struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func badRequest(c echo.Context, reason string) error {
	return c.JSON(http.StatusBadRequest, &errorPayload{Error: reason})
}

func notFound(c echo.Context, reason string) error {
	return c.JSON(http.StatusNotFound, &errorPayload{Error: reason})
}

func internalError(c echo.Context, err error) error {
	return c.JSON(http.StatusInternalServerError, &errorPayload{
		Error:   "internal server error",
		Details: err.Error(),
	})
}

// respondError maps a domain error to its HTTP status.
func respondError(c echo.Context, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return notFound(c, "not found")
	}
	return internalError(c, err)
}

// noStore marks a mutation response uncacheable so downstream visualizations
// refetch.
func noStore(c echo.Context) {
	c.Response().Header().Set("Cache-Control", "no-store")
}

// Chat turns per user per second, with a small burst.
const (
	chatRatePerSecond = 2
	chatRateBurst     = 5
)

// rateLimit throttles chat turns per user. The user id comes from the request
// body, so the middleware peeks at a bound copy handlers re-bind later.
func (s *Service) rateLimit(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		var peek struct {
			UserID string `json:"userId"`
		}
		if err := bindReusable(c, &peek); err != nil || peek.UserID == "" {
			// Let the handler produce the validation error.
			return next(c)
		}
		limiter := s.limiterFor(peek.UserID)
		if !limiter.Allow() {
			return c.JSON(http.StatusTooManyRequests, &errorPayload{Error: "rate limit exceeded"})
		}
		return next(c)
	}
}

// bindReusable decodes the JSON body and restores it so the handler can bind
// the same request again.
func bindReusable(c echo.Context, v any) error {
	body, err := io.ReadAll(c.Request().Body)
	if err != nil {
		return err
	}
	c.Request().Body = io.NopCloser(bytes.NewReader(body))
	return json.Unmarshal(body, v)
}

func (s *Service) limiterFor(userID string) *rate.Limiter {
	if v, ok := s.limiters.Load(userID); ok {
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(rate.Limit(chatRatePerSecond), chatRateBurst)
	actual, _ := s.limiters.LoadOrStore(userID, limiter)
	return actual.(*rate.Limiter)
}

func (s *Service) Ping(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"message": "pong"})
}

func (s *Service) Health(c echo.Context) error {
	if err := s.Store.GetDriver().GetDB().PingContext(c.Request().Context()); err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]any{
			"status": "unhealthy",
			"error":  err.Error(),
		})
	}
	return c.JSON(http.StatusOK, map[string]any{
		"status":  "healthy",
		"version": s.Profile.Version,
	})
}
