// Package store is the ground truth for all knowledge-graph entities.
// It exposes a command surface over a dialect Driver rather than an ORM.
package store

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"

	"github.com/hrygo/mindmesh/internal/profile"
)

// ErrNotFound is returned when a referenced row does not exist or is not
// visible to the caller (e.g. non-owner delete).
var ErrNotFound = errors.New("not found")

// Driver is the dialect-specific database access interface.
type Driver interface {
	GetDB() *sql.DB
	Close() error
	Migrate(ctx context.Context) error

	// Users
	GetOrCreateUser(ctx context.Context, id string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	SetUserConsentGlobal(ctx context.Context, id string, consent bool) error

	// Conversations
	CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error)
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListUserConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error)
	ListIdleConversations(ctx context.Context, before int64, limit int) ([]*Conversation, error)
	UpdateConversationVerdict(ctx context.Context, update *ConversationVerdict) error
	UpdateConversationActivity(ctx context.Context, id string, ts int64) error
	SetConversationGlobalSharingBlocked(ctx context.Context, id string, blocked bool) error

	// Messages
	AddMessage(ctx context.Context, create *Message) (*Message, error)
	ListMessages(ctx context.Context, conversationID string) ([]*Message, error)

	// Topics and relations
	GetOrCreateTopic(ctx context.Context, name, description string) (*Topic, error)
	ListTopics(ctx context.Context, ids []string) ([]*Topic, error)
	ListUserTopics(ctx context.Context, userID string) ([]*Topic, error)
	UpsertTopicRelation(ctx context.Context, sourceID, targetID string, strength float64, relationType string) (*TopicRelation, error)
	ListTopicRelationsAmong(ctx context.Context, topicIDs []string) ([]*TopicRelation, error)
	ListSuggestedTopics(ctx context.Context, topicIDs []string, limit int) ([]*Topic, error)
	ListTopicFrequencies(ctx context.Context, userID *string) ([]*TopicFrequency, error)

	// Link tables
	LinkConversationToTopic(ctx context.Context, conversationID, topicID string) error
	LinkInsightToTopic(ctx context.Context, insightID, topicID string) error

	// Insights
	CreateInsight(ctx context.Context, create *Insight) (*Insight, error)
	GetInsight(ctx context.Context, id string) (*Insight, error)
	DeleteInsight(ctx context.Context, id string) error
	ListRecentUserInsights(ctx context.Context, userID string, limit int) ([]*Insight, error)
	ListRelatedInsights(ctx context.Context, userID string, topicIDs []string, limit int) ([]*Insight, error)
	CountUserInsights(ctx context.Context, userID string) (int, error)

	// Global pool (filtered per the PII-gate contract)
	UpsertGlobalInsight(ctx context.Context, upsert *GlobalInsight) (*GlobalInsight, error)
	ListGlobalInsights(ctx context.Context, find *FindGlobal) ([]*GlobalInsight, error)
	ListGlobalConversationSummaries(ctx context.Context, find *FindGlobal) ([]*ConversationSummary, error)

	// Processing log
	CreateProcessingLog(ctx context.Context, create *ProcessingLog) (*ProcessingLog, error)
	ListProcessingLogs(ctx context.Context, find *FindProcessingLogs) ([]*ProcessingLog, error)
	ProcessorStats(ctx context.Context) (*ProcessorStats, error)

	// Transactional multi-entity operations
	PromoteConversation(ctx context.Context, promo *ConversationPromotion) error
	DeleteConversationFromUserGraph(ctx context.Context, conversationID, userID string) error

	// Insight embedding index
	UpsertInsightEmbedding(ctx context.Context, upsert *InsightEmbedding) error
	SearchInsightEmbeddings(ctx context.Context, search *EmbeddingSearch) ([]*EmbeddingMatch, error)
	DeleteInsightEmbedding(ctx context.Context, insightID string) error
	CountInsightEmbeddings(ctx context.Context, userID string) (int, error)
}

// Store provides database access to all raw objects.
type Store struct {
	profile *profile.Profile
	driver  Driver
}

// New creates a new instance of Store.
func New(driver Driver, profile *profile.Profile) *Store {
	return &Store{
		driver:  driver,
		profile: profile,
	}
}

func (s *Store) GetDriver() Driver {
	return s.driver
}

func (s *Store) Migrate(ctx context.Context) error {
	return s.driver.Migrate(ctx)
}

func (s *Store) Close() error {
	return s.driver.Close()
}

func (s *Store) GetOrCreateUser(ctx context.Context, id string) (*User, error) {
	return s.driver.GetOrCreateUser(ctx, id)
}

func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	return s.driver.GetUser(ctx, id)
}

func (s *Store) SetUserConsentGlobal(ctx context.Context, id string, consent bool) error {
	return s.driver.SetUserConsentGlobal(ctx, id, consent)
}

func (s *Store) CreateConversation(ctx context.Context, create *Conversation) (*Conversation, error) {
	return s.driver.CreateConversation(ctx, create)
}

func (s *Store) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	return s.driver.GetConversation(ctx, id)
}

func (s *Store) ListUserConversations(ctx context.Context, userID string, limit int) ([]*Conversation, error) {
	return s.driver.ListUserConversations(ctx, userID, limit)
}

func (s *Store) ListIdleConversations(ctx context.Context, before int64, limit int) ([]*Conversation, error) {
	return s.driver.ListIdleConversations(ctx, before, limit)
}

func (s *Store) UpdateConversationVerdict(ctx context.Context, update *ConversationVerdict) error {
	return s.driver.UpdateConversationVerdict(ctx, update)
}

func (s *Store) UpdateConversationActivity(ctx context.Context, id string, ts int64) error {
	return s.driver.UpdateConversationActivity(ctx, id, ts)
}

func (s *Store) SetConversationGlobalSharingBlocked(ctx context.Context, id string, blocked bool) error {
	return s.driver.SetConversationGlobalSharingBlocked(ctx, id, blocked)
}

// IsConversationGlobalSharingBlocked reports the PII-gate flag for a conversation.
func (s *Store) IsConversationGlobalSharingBlocked(ctx context.Context, id string) (bool, error) {
	conversation, err := s.driver.GetConversation(ctx, id)
	if err != nil {
		return false, err
	}
	return conversation.GlobalSharingBlocked, nil
}

func (s *Store) AddMessage(ctx context.Context, create *Message) (*Message, error) {
	return s.driver.AddMessage(ctx, create)
}

func (s *Store) ListMessages(ctx context.Context, conversationID string) ([]*Message, error) {
	return s.driver.ListMessages(ctx, conversationID)
}

func (s *Store) GetOrCreateTopic(ctx context.Context, name, description string) (*Topic, error) {
	return s.driver.GetOrCreateTopic(ctx, name, description)
}

func (s *Store) ListTopics(ctx context.Context, ids []string) ([]*Topic, error) {
	return s.driver.ListTopics(ctx, ids)
}

// GetAllUserTopics returns every topic the user has engaged with.
func (s *Store) GetAllUserTopics(ctx context.Context, userID string) ([]*Topic, error) {
	return s.driver.ListUserTopics(ctx, userID)
}

// LinkTopics upserts the relation for the unordered topic pair with
// co-occurrence reinforcement; the driver canonicalizes the pair order.
func (s *Store) LinkTopics(ctx context.Context, sourceID, targetID string, strength float64, relationType string) (*TopicRelation, error) {
	return s.driver.UpsertTopicRelation(ctx, sourceID, targetID, strength, relationType)
}

func (s *Store) ListTopicRelationsAmong(ctx context.Context, topicIDs []string) ([]*TopicRelation, error) {
	return s.driver.ListTopicRelationsAmong(ctx, topicIDs)
}

// GetSuggestedTopics returns topics related to the given ones via relation edges.
func (s *Store) GetSuggestedTopics(ctx context.Context, topicIDs []string, limit int) ([]*Topic, error) {
	return s.driver.ListSuggestedTopics(ctx, topicIDs, limit)
}

func (s *Store) ListTopicFrequencies(ctx context.Context, userID *string) ([]*TopicFrequency, error) {
	return s.driver.ListTopicFrequencies(ctx, userID)
}

func (s *Store) LinkConversationToTopic(ctx context.Context, conversationID, topicID string) error {
	return s.driver.LinkConversationToTopic(ctx, conversationID, topicID)
}

func (s *Store) LinkInsightToTopic(ctx context.Context, insightID, topicID string) error {
	return s.driver.LinkInsightToTopic(ctx, insightID, topicID)
}

// SaveInsight persists a single insight row. Extraction-path insights go through
// PromoteConversation instead; this is the externally-ingested path.
func (s *Store) SaveInsight(ctx context.Context, create *Insight) (*Insight, error) {
	return s.driver.CreateInsight(ctx, create)
}

func (s *Store) GetInsight(ctx context.Context, id string) (*Insight, error) {
	return s.driver.GetInsight(ctx, id)
}

func (s *Store) DeleteInsight(ctx context.Context, id string) error {
	return s.driver.DeleteInsight(ctx, id)
}

func (s *Store) GetRecentUserInsights(ctx context.Context, userID string, limit int) ([]*Insight, error) {
	return s.driver.ListRecentUserInsights(ctx, userID, limit)
}

func (s *Store) GetRelatedInsights(ctx context.Context, userID string, topicIDs []string, limit int) ([]*Insight, error) {
	return s.driver.ListRelatedInsights(ctx, userID, topicIDs, limit)
}

func (s *Store) CountUserInsights(ctx context.Context, userID string) (int, error) {
	return s.driver.CountUserInsights(ctx, userID)
}

func (s *Store) UpsertGlobalInsight(ctx context.Context, upsert *GlobalInsight) (*GlobalInsight, error) {
	return s.driver.UpsertGlobalInsight(ctx, upsert)
}

func (s *Store) GetGlobalInsights(ctx context.Context, find *FindGlobal) ([]*GlobalInsight, error) {
	return s.driver.ListGlobalInsights(ctx, find)
}

func (s *Store) GetGlobalConversationSummaries(ctx context.Context, find *FindGlobal) ([]*ConversationSummary, error) {
	return s.driver.ListGlobalConversationSummaries(ctx, find)
}

func (s *Store) CreateProcessingLog(ctx context.Context, create *ProcessingLog) (*ProcessingLog, error) {
	return s.driver.CreateProcessingLog(ctx, create)
}

func (s *Store) ListProcessingLogs(ctx context.Context, find *FindProcessingLogs) ([]*ProcessingLog, error) {
	return s.driver.ListProcessingLogs(ctx, find)
}

func (s *Store) ProcessorStats(ctx context.Context) (*ProcessorStats, error) {
	return s.driver.ProcessorStats(ctx)
}

func (s *Store) PromoteConversation(ctx context.Context, promo *ConversationPromotion) error {
	return s.driver.PromoteConversation(ctx, promo)
}

func (s *Store) DeleteConversationFromUserGraph(ctx context.Context, conversationID, userID string) error {
	return s.driver.DeleteConversationFromUserGraph(ctx, conversationID, userID)
}

func (s *Store) UpsertInsightEmbedding(ctx context.Context, upsert *InsightEmbedding) error {
	return s.driver.UpsertInsightEmbedding(ctx, upsert)
}

func (s *Store) SearchInsightEmbeddings(ctx context.Context, search *EmbeddingSearch) ([]*EmbeddingMatch, error) {
	return s.driver.SearchInsightEmbeddings(ctx, search)
}

func (s *Store) DeleteInsightEmbedding(ctx context.Context, insightID string) error {
	return s.driver.DeleteInsightEmbedding(ctx, insightID)
}

func (s *Store) CountInsightEmbeddings(ctx context.Context, userID string) (int, error) {
	return s.driver.CountInsightEmbeddings(ctx, userID)
}
