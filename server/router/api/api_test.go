package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func request(t *testing.T, handler echo.HandlerFunc, method, target, body string, params ...string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	var names, values []string
	for i := 0; i+1 < len(params); i += 2 {
		names = append(names, params[i])
		values = append(values, params[i+1])
	}
	if len(names) > 0 {
		c.SetParamNames(names...)
		c.SetParamValues(values...)
	}
	require.NoError(t, handler(c))
	return rec
}

func TestPing(t *testing.T) {
	s := &Service{}
	rec := request(t, s.Ping, http.MethodGet, "/api/ping", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "pong")
}

func TestChatSendValidation(t *testing.T) {
	s := &Service{}

	rec := request(t, s.ChatSend, http.MethodPost, "/api/chat/send", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "userId")

	rec = request(t, s.ChatSend, http.MethodPost, "/api/chat/send", `{"userId":"u1","messages":[]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, s.ChatSend, http.MethodPost, "/api/chat/send", `{"userId":"u1","messages":[{"role":"assistant","content":"x"}]}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPIIConsentValidation(t *testing.T) {
	s := &Service{}

	rec := request(t, s.PIIConsent, http.MethodPost, "/api/chat/pii-consent", `{"consent":false}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, s.PIIConsent, http.MethodPost, "/api/chat/pii-consent", `{"conversationId":"c1"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "consent")
}

func TestDeleteConversationValidation(t *testing.T) {
	s := &Service{}
	rec := request(t, s.DeleteConversation, http.MethodDelete, "/api/chat/c1", `{}`, "conversationId", "c1")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "userId")
}

func TestKnowledgeSearchWithoutIndex(t *testing.T) {
	s := &Service{}
	rec := request(t, s.KnowledgeSearch, http.MethodPost, "/api/knowledge/search", `{"query":"tls"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "not enabled")
}

func TestLinkTopicsValidation(t *testing.T) {
	s := &Service{}

	rec := request(t, s.LinkTopics, http.MethodPost, "/api/graph/link-topics", `{"topic1":"tls"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = request(t, s.LinkTopics, http.MethodPost, "/api/graph/link-topics", `{"topic1":"TLS","topic2":"tls"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "differ")
}

func TestTopicSuggestionsRequiresTopics(t *testing.T) {
	s := &Service{}
	rec := request(t, s.TopicSuggestions, http.MethodGet, "/api/graph/suggestions", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestQueryLimit(t *testing.T) {
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=7", nil), httptest.NewRecorder())
	assert.Equal(t, 7, queryLimit(c, 20))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	assert.Equal(t, 20, queryLimit(c, 20))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=-3", nil), httptest.NewRecorder())
	assert.Equal(t, 20, queryLimit(c, 20))

	c = e.NewContext(httptest.NewRequest(http.MethodGet, "/?limit=abc", nil), httptest.NewRecorder())
	assert.Equal(t, 20, queryLimit(c, 20))
}

func TestLimiterIsPerUser(t *testing.T) {
	s := &Service{}
	a := s.limiterFor("u1")
	b := s.limiterFor("u2")
	assert.NotSame(t, a, b)
	assert.Same(t, a, s.limiterFor("u1"))
}
