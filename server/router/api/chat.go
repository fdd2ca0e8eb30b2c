package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/mindmesh/ai/chat"
	"github.com/hrygo/mindmesh/store"
)

const defaultHistoryLimit = 20

// ChatSend handles a blocking chat turn.
func (s *Service) ChatSend(c echo.Context) error {
	request := &chat.Request{}
	if err := c.Bind(request); err != nil {
		return badRequest(c, "malformed request body")
	}
	if err := request.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	response, err := s.Pipeline.Send(c.Request().Context(), request)
	if err != nil {
		return respondError(c, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, response)
}

// ChatStream handles a streaming chat turn over server-sent events. Each
// record is framed as "data: <json>\n\n".
func (s *Service) ChatStream(c echo.Context) error {
	request := &chat.Request{}
	if err := c.Bind(request); err != nil {
		return badRequest(c, "malformed request body")
	}
	if err := request.Validate(); err != nil {
		return badRequest(c, err.Error())
	}

	response := c.Response()
	response.Header().Set(echo.HeaderContentType, "text/event-stream")
	response.Header().Set("Cache-Control", "no-store")
	response.Header().Set("Connection", "keep-alive")
	response.WriteHeader(http.StatusOK)

	flusher, canFlush := response.Writer.(http.Flusher)

	emit := func(event *chat.StreamEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return err
		}
		if _, err := response.Write([]byte("data: ")); err != nil {
			return err
		}
		if _, err := response.Write(payload); err != nil {
			return err
		}
		if _, err := response.Write([]byte("\n\n")); err != nil {
			return err
		}
		if canFlush {
			flusher.Flush()
		}
		return nil
	}

	if err := s.Pipeline.Stream(c.Request().Context(), request, emit); err != nil {
		// The preamble failed before any frame was written; the status line is
		// already out, so deliver the failure as an error frame.
		_ = emit(&chat.StreamEvent{Error: err.Error()})
	}
	return nil
}

// PIIConsent records the user's sharing decision for a conversation. Refusal
// sets the block flag; consent is a no-op on an unblocked conversation.
func (s *Service) PIIConsent(c echo.Context) error {
	var body struct {
		ConversationID string `json:"conversationId"`
		Consent        *bool  `json:"consent"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "malformed request body")
	}
	if body.ConversationID == "" {
		return badRequest(c, "conversationId required")
	}
	if body.Consent == nil {
		return badRequest(c, "consent required")
	}

	ctx := c.Request().Context()
	if !*body.Consent {
		if err := s.Store.SetConversationGlobalSharingBlocked(ctx, body.ConversationID, true); err != nil {
			return respondError(c, err)
		}
	}
	blocked, err := s.Store.IsConversationGlobalSharingBlocked(ctx, body.ConversationID)
	if err != nil {
		return respondError(c, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, map[string]any{
		"success":              true,
		"globalSharingBlocked": blocked,
	})
}

// ChatHistory lists the user's conversations, most recent first.
func (s *Service) ChatHistory(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return badRequest(c, "userId required")
	}
	limit := queryLimit(c, defaultHistoryLimit)

	conversations, err := s.Store.ListUserConversations(c.Request().Context(), userID, limit)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{"conversations": conversations})
}

// ChatContext exposes the assembled grounding context for debugging.
func (s *Service) ChatContext(c echo.Context) error {
	userID := c.Param("userId")
	if userID == "" {
		return badRequest(c, "userId required")
	}
	ctx := c.Request().Context()

	insights, err := s.Store.GetRecentUserInsights(ctx, userID, 15)
	if err != nil {
		return respondError(c, err)
	}
	find := &store.FindGlobal{ExcludeUserID: userID, Limit: 15}
	summaries, err := s.Store.GetGlobalConversationSummaries(ctx, find)
	if err != nil {
		return respondError(c, err)
	}
	globals, err := s.Store.GetGlobalInsights(ctx, find)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]any{
		"personalInsights": insights,
		"globalSummaries":  summaries,
		"globalInsights":   globals,
	})
}

// ChatStatus reports the processor verdict for a conversation.
func (s *Service) ChatStatus(c echo.Context) error {
	conversationID := c.Param("conversationId")
	if conversationID == "" {
		return badRequest(c, "conversationId required")
	}
	ctx := c.Request().Context()

	conversation, err := s.Store.GetConversation(ctx, conversationID)
	if err != nil {
		return respondError(c, err)
	}

	payload := map[string]any{
		"processed":        conversation.Processed,
		"isUseful":         conversation.IsUseful,
		"usefulnessReason": conversation.UsefulnessReason,
	}
	if conversation.Processed {
		logs, err := s.Store.ListProcessingLogs(ctx, &store.FindProcessingLogs{
			ConversationID: &conversationID,
			Limit:          1,
		})
		if err == nil && len(logs) > 0 {
			payload["processingLog"] = logs[0]
		}
	}
	return c.JSON(http.StatusOK, payload)
}

// DeleteConversation removes a conversation from the user's graph. Messages
// and global derivatives survive; owned insights are anonymized.
func (s *Service) DeleteConversation(c echo.Context) error {
	conversationID := c.Param("conversationId")
	if conversationID == "" {
		return badRequest(c, "conversationId required")
	}
	var body struct {
		UserID string `json:"userId"`
	}
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "malformed request body")
	}
	if body.UserID == "" {
		return badRequest(c, "userId required")
	}

	if err := s.Store.DeleteConversationFromUserGraph(c.Request().Context(), conversationID, body.UserID); err != nil {
		return respondError(c, err)
	}
	noStore(c)
	return c.JSON(http.StatusOK, map[string]any{"success": true})
}

func queryLimit(c echo.Context, fallback int) int {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
