package chat

import (
	"context"
	"database/sql"
	"strings"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mindmesh/ai/llm"
	"github.com/hrygo/mindmesh/store"
)

// mockDriver is an in-memory store.Driver covering the slice of the interface
// the pipeline touches; everything else returns zero values.
type mockDriver struct {
	mu            sync.Mutex
	users         map[string]*store.User
	conversations map[string]*store.Conversation
	messages      map[string][]*store.Message
	recent        []*store.Insight
	related       []*store.Insight
	userTopics    []*store.Topic
	suggested     []*store.Topic
	globals       []*store.GlobalInsight
	summaries     []*store.ConversationSummary
	matches       []*store.EmbeddingMatch

	addMessageErr error
}

func newMockDriver() *mockDriver {
	return &mockDriver{
		users:         map[string]*store.User{},
		conversations: map[string]*store.Conversation{},
		messages:      map[string][]*store.Message{},
	}
}

func (m *mockDriver) GetDB() *sql.DB                { return nil }
func (m *mockDriver) Close() error                  { return nil }
func (m *mockDriver) Migrate(context.Context) error { return nil }

func (m *mockDriver) GetOrCreateUser(_ context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	u := &store.User{ID: id, ConsentGlobal: true}
	m.users[id] = u
	return u, nil
}

func (m *mockDriver) GetUser(_ context.Context, id string) (*store.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if u, ok := m.users[id]; ok {
		return u, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockDriver) SetUserConsentGlobal(context.Context, string, bool) error { return nil }

func (m *mockDriver) CreateConversation(_ context.Context, create *store.Conversation) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.conversations[create.ID] = create
	return create, nil
}

func (m *mockDriver) GetConversation(_ context.Context, id string) (*store.Conversation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.conversations[id]; ok {
		return c, nil
	}
	return nil, store.ErrNotFound
}

func (m *mockDriver) ListUserConversations(context.Context, string, int) ([]*store.Conversation, error) {
	return nil, nil
}

func (m *mockDriver) ListIdleConversations(context.Context, int64, int) ([]*store.Conversation, error) {
	return nil, nil
}

func (m *mockDriver) UpdateConversationVerdict(context.Context, *store.ConversationVerdict) error {
	return nil
}

func (m *mockDriver) UpdateConversationActivity(_ context.Context, id string, ts int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.UpdatedTs = ts
	return nil
}

func (m *mockDriver) SetConversationGlobalSharingBlocked(_ context.Context, id string, blocked bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.conversations[id]
	if !ok {
		return store.ErrNotFound
	}
	c.GlobalSharingBlocked = blocked
	return nil
}

func (m *mockDriver) AddMessage(_ context.Context, create *store.Message) (*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.addMessageErr != nil {
		return nil, m.addMessageErr
	}
	c, ok := m.conversations[create.ConversationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	m.messages[create.ConversationID] = append(m.messages[create.ConversationID], create)
	c.MessageCount++
	return create, nil
}

func (m *mockDriver) ListMessages(_ context.Context, conversationID string) ([]*store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.messages[conversationID], nil
}

func (m *mockDriver) GetOrCreateTopic(context.Context, string, string) (*store.Topic, error) {
	return nil, nil
}
func (m *mockDriver) ListTopics(context.Context, []string) ([]*store.Topic, error) { return nil, nil }
func (m *mockDriver) ListUserTopics(context.Context, string) ([]*store.Topic, error) {
	return m.userTopics, nil
}
func (m *mockDriver) UpsertTopicRelation(context.Context, string, string, float64, string) (*store.TopicRelation, error) {
	return nil, nil
}
func (m *mockDriver) ListTopicRelationsAmong(context.Context, []string) ([]*store.TopicRelation, error) {
	return nil, nil
}
func (m *mockDriver) ListSuggestedTopics(context.Context, []string, int) ([]*store.Topic, error) {
	return m.suggested, nil
}
func (m *mockDriver) ListTopicFrequencies(context.Context, *string) ([]*store.TopicFrequency, error) {
	return nil, nil
}
func (m *mockDriver) LinkConversationToTopic(context.Context, string, string) error { return nil }
func (m *mockDriver) LinkInsightToTopic(context.Context, string, string) error      { return nil }

func (m *mockDriver) CreateInsight(context.Context, *store.Insight) (*store.Insight, error) {
	return nil, nil
}
func (m *mockDriver) GetInsight(context.Context, string) (*store.Insight, error) { return nil, nil }
func (m *mockDriver) DeleteInsight(context.Context, string) error                { return nil }
func (m *mockDriver) ListRecentUserInsights(context.Context, string, int) ([]*store.Insight, error) {
	return m.recent, nil
}
func (m *mockDriver) ListRelatedInsights(context.Context, string, []string, int) ([]*store.Insight, error) {
	return m.related, nil
}
func (m *mockDriver) CountUserInsights(context.Context, string) (int, error) { return 0, nil }

func (m *mockDriver) UpsertGlobalInsight(context.Context, *store.GlobalInsight) (*store.GlobalInsight, error) {
	return nil, nil
}
func (m *mockDriver) ListGlobalInsights(context.Context, *store.FindGlobal) ([]*store.GlobalInsight, error) {
	return m.globals, nil
}
func (m *mockDriver) ListGlobalConversationSummaries(context.Context, *store.FindGlobal) ([]*store.ConversationSummary, error) {
	return m.summaries, nil
}

func (m *mockDriver) CreateProcessingLog(context.Context, *store.ProcessingLog) (*store.ProcessingLog, error) {
	return nil, nil
}
func (m *mockDriver) ListProcessingLogs(context.Context, *store.FindProcessingLogs) ([]*store.ProcessingLog, error) {
	return nil, nil
}
func (m *mockDriver) ProcessorStats(context.Context) (*store.ProcessorStats, error) {
	return nil, nil
}

func (m *mockDriver) PromoteConversation(context.Context, *store.ConversationPromotion) error {
	return nil
}
func (m *mockDriver) DeleteConversationFromUserGraph(context.Context, string, string) error {
	return nil
}

func (m *mockDriver) UpsertInsightEmbedding(context.Context, *store.InsightEmbedding) error {
	return nil
}
func (m *mockDriver) SearchInsightEmbeddings(context.Context, *store.EmbeddingSearch) ([]*store.EmbeddingMatch, error) {
	return m.matches, nil
}
func (m *mockDriver) DeleteInsightEmbedding(context.Context, string) error { return nil }
func (m *mockDriver) CountInsightEmbeddings(context.Context, string) (int, error) {
	return 0, nil
}

// mockLLM returns canned results.
type mockLLM struct {
	classification *llm.QueryClassification
	chatResponse   string
	chatErr        error
	streamChunks   []string
	streamErr      error
	pii            *llm.PIIDetection
	piiCalls       int
}

func (m *mockLLM) ClassifyQuery(context.Context, string) *llm.QueryClassification {
	if m.classification != nil {
		return m.classification
	}
	return llm.DefaultClassification()
}

func (m *mockLLM) Chat(context.Context, []llm.Message, string, llm.ResponseLength) (string, error) {
	return m.chatResponse, m.chatErr
}

func (m *mockLLM) ChatStream(context.Context, []llm.Message, string, llm.ResponseLength) (<-chan string, <-chan error) {
	contentCh := make(chan string, len(m.streamChunks)+1)
	errCh := make(chan error, 1)
	for _, chunk := range m.streamChunks {
		contentCh <- chunk
	}
	if m.streamErr != nil {
		errCh <- m.streamErr
	}
	close(contentCh)
	close(errCh)
	return contentCh, errCh
}

func (m *mockLLM) DetectPII(context.Context, string, string) *llm.PIIDetection {
	m.piiCalls++
	if m.pii != nil {
		return m.pii
	}
	return llm.DefaultPIIDetection()
}

func (m *mockLLM) AnalyzeConversation(context.Context, []llm.Message) *llm.ConversationAnalysis {
	return llm.DefaultAnalysis()
}

func newTestPipeline(driver *mockDriver, service *mockLLM) *Pipeline {
	return NewPipeline(store.New(driver, nil), service, nil, nil)
}

func userTurn(content string) []llm.Message {
	return []llm.Message{{Role: "user", Content: content}}
}

func TestSendCreatesConversationAndPersistsBothMessages(t *testing.T) {
	driver := newMockDriver()
	service := &mockLLM{chatResponse: "TLS 1.3 removes the extra round trip."}
	pipeline := newTestPipeline(driver, service)

	response, err := pipeline.Send(context.Background(), &Request{
		UserID:   "u1",
		Messages: userTurn("Explain TLS 1.3"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, response.ConversationID)
	assert.Equal(t, "TLS 1.3 removes the extra round trip.", response.Response)

	messages := driver.messages[response.ConversationID]
	require.Len(t, messages, 2)
	assert.Equal(t, store.RoleUser, messages[0].Role)
	assert.Equal(t, "Explain TLS 1.3", messages[0].Content)
	assert.Equal(t, store.RoleAssistant, messages[1].Role)

	conversation := driver.conversations[response.ConversationID]
	assert.Equal(t, 2, conversation.MessageCount)
	assert.NotZero(t, conversation.UpdatedTs)
}

func TestSendRejectsForeignOrDeletedConversation(t *testing.T) {
	driver := newMockDriver()
	driver.conversations["c1"] = &store.Conversation{ID: "c1", UserID: "owner"}
	driver.conversations["c2"] = &store.Conversation{ID: "c2", UserID: "u1", Deleted: true}
	pipeline := newTestPipeline(driver, &mockLLM{chatResponse: "hi"})

	_, err := pipeline.Send(context.Background(), &Request{
		UserID: "u1", ConversationID: "c1", Messages: userTurn("hello"),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = pipeline.Send(context.Background(), &Request{
		UserID: "u1", ConversationID: "c2", Messages: userTurn("hello"),
	})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendValidation(t *testing.T) {
	pipeline := newTestPipeline(newMockDriver(), &mockLLM{})
	ctx := context.Background()

	_, err := pipeline.Send(ctx, &Request{Messages: userTurn("hi")})
	assert.Error(t, err)

	_, err = pipeline.Send(ctx, &Request{UserID: "u1"})
	assert.Error(t, err)

	_, err = pipeline.Send(ctx, &Request{
		UserID:   "u1",
		Messages: []llm.Message{{Role: "assistant", Content: "hello"}},
	})
	assert.Error(t, err)
}

func TestStreamMatchesBlockingResponse(t *testing.T) {
	chunks := []string{"TLS 1.3 ", "removes the ", "extra round trip."}
	full := strings.Join(chunks, "")

	driver := newMockDriver()
	service := &mockLLM{chatResponse: full, streamChunks: chunks}
	pipeline := newTestPipeline(driver, service)

	var streamed strings.Builder
	var done bool
	var conversationID string
	err := pipeline.Stream(context.Background(), &Request{
		UserID: "u1", Messages: userTurn("Explain TLS 1.3"),
	}, func(event *StreamEvent) error {
		streamed.WriteString(event.Text)
		if event.Done {
			done = true
			conversationID = event.ConversationID
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, full, streamed.String())

	messages := driver.messages[conversationID]
	require.Len(t, messages, 2)
	assert.Equal(t, full, messages[1].Content)
}

func TestStreamErrorEmitsErrorFrameWithoutPersistingAssistant(t *testing.T) {
	driver := newMockDriver()
	service := &mockLLM{
		streamChunks: []string{"partial "},
		streamErr:    errors.New("upstream reset"),
	}
	pipeline := newTestPipeline(driver, service)

	var sawError bool
	var conversationID string
	err := pipeline.Stream(context.Background(), &Request{
		UserID: "u1", Messages: userTurn("hello"),
	}, func(event *StreamEvent) error {
		if event.Error != "" {
			sawError = true
		}
		if event.ConversationID != "" {
			conversationID = event.ConversationID
		}
		return nil
	})
	require.NoError(t, err)
	assert.True(t, sawError)

	// Only the user message is persisted.
	messages := driver.messages[conversationID]
	require.Len(t, messages, 1)
	assert.Equal(t, store.RoleUser, messages[0].Role)
}

func TestPIIGateSkippedForTrivialTurns(t *testing.T) {
	driver := newMockDriver()
	service := &mockLLM{
		chatResponse:   "Hello!",
		classification: &llm.QueryClassification{IsTrivial: true, SuggestedResponseLength: llm.LengthShort},
		pii:            &llm.PIIDetection{ContainsPII: true, PIITypes: []string{"email"}},
	}
	pipeline := newTestPipeline(driver, service)

	response, err := pipeline.Send(context.Background(), &Request{
		UserID: "u1", Messages: userTurn("hi"),
	})
	require.NoError(t, err)
	assert.Zero(t, service.piiCalls)
	assert.Nil(t, response.PIIDetection)
	assert.False(t, response.GlobalSharingBlocked)
}

func TestPIIGateBlocksOnExplicitRefusal(t *testing.T) {
	driver := newMockDriver()
	service := &mockLLM{
		chatResponse: "Noted.",
		pii:          &llm.PIIDetection{ContainsPII: true, PIITypes: []string{"email"}},
	}
	pipeline := newTestPipeline(driver, service)

	refuse := false
	response, err := pipeline.Send(context.Background(), &Request{
		UserID:               "u1",
		Messages:             userTurn("my email is me@example.com"),
		GlobalSharingConsent: &refuse,
	})
	require.NoError(t, err)
	require.NotNil(t, response.PIIDetection)
	assert.True(t, response.GlobalSharingBlocked)
	assert.True(t, driver.conversations[response.ConversationID].GlobalSharingBlocked)
}

func TestPIIGateConsentOmittedReturnsDetectionWithoutBlocking(t *testing.T) {
	driver := newMockDriver()
	service := &mockLLM{
		chatResponse: "Noted.",
		pii:          &llm.PIIDetection{ContainsPII: true, PIITypes: []string{"email"}},
	}
	pipeline := newTestPipeline(driver, service)

	response, err := pipeline.Send(context.Background(), &Request{
		UserID:   "u1",
		Messages: userTurn("my email is me@example.com"),
	})
	require.NoError(t, err)
	require.NotNil(t, response.PIIDetection)
	assert.True(t, response.PIIDetection.ContainsPII)
	assert.False(t, response.GlobalSharingBlocked)
	assert.False(t, driver.conversations[response.ConversationID].GlobalSharingBlocked)
}

func TestPIIGateSkippedWhenAlreadyBlocked(t *testing.T) {
	driver := newMockDriver()
	driver.conversations["c1"] = &store.Conversation{ID: "c1", UserID: "u1", GlobalSharingBlocked: true}
	service := &mockLLM{chatResponse: "ok", pii: &llm.PIIDetection{ContainsPII: true}}
	pipeline := newTestPipeline(driver, service)

	response, err := pipeline.Send(context.Background(), &Request{
		UserID: "u1", ConversationID: "c1", Messages: userTurn("more details"),
	})
	require.NoError(t, err)
	assert.Zero(t, service.piiCalls)
	assert.True(t, response.GlobalSharingBlocked)
}
