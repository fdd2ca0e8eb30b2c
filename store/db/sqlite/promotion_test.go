package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mindmesh/internal/profile"
	"github.com/hrygo/mindmesh/store"
)

func openTestDB(t *testing.T) store.Driver {
	t.Helper()
	d, err := NewDB(&profile.Profile{DSN: filepath.Join(t.TempDir(), "mindmesh_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return d
}

func promotion(conversationID string, topics []string) *store.ConversationPromotion {
	return &store.ConversationPromotion{
		ConversationID: conversationID,
		UserID:         "u1",
		Summary:        "summary",
		Reason:         "useful",
		TopicNames:     topics,
		Insights:       []*store.PromotedInsight{{ID: conversationID + "-i1", Content: "insight"}},
		Now:            time.Now().Unix(),
	}
}

// The same unordered topic pair extracted in either order must reinforce a
// single edge: 0.5 on creation, 0.6 after the second co-occurrence.
func TestPromoteConversationReinforcesReversedPair(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.PromoteConversation(ctx, promotion("c1", []string{"tls", "cryptography"})))
	require.NoError(t, d.PromoteConversation(ctx, promotion("c2", []string{"cryptography", "tls"})))

	tls, err := d.GetOrCreateTopic(ctx, "tls", "")
	require.NoError(t, err)
	crypto, err := d.GetOrCreateTopic(ctx, "cryptography", "")
	require.NoError(t, err)

	relations, err := d.ListTopicRelationsAmong(ctx, []string{tls.ID, crypto.ID})
	require.NoError(t, err)
	require.Len(t, relations, 1)
	assert.InDelta(t, 0.6, relations[0].Strength, 1e-9)

	src, dst := store.OrderedPair(tls.ID, crypto.ID)
	assert.Equal(t, src, relations[0].SourceTopicID)
	assert.Equal(t, dst, relations[0].TargetTopicID)
}

func TestPromoteConversationStoresInsightImportance(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	require.NoError(t, d.PromoteConversation(ctx, promotion("c1", []string{"tls"})))

	insight, err := d.GetInsight(ctx, "c1-i1")
	require.NoError(t, err)
	assert.InDelta(t, store.ImportancePromoted, insight.ImportanceScore, 1e-9)
}

func TestUpsertTopicRelationCanonicalizesPair(t *testing.T) {
	ctx := context.Background()
	d := openTestDB(t)

	a, err := d.GetOrCreateTopic(ctx, "alpha", "")
	require.NoError(t, err)
	b, err := d.GetOrCreateTopic(ctx, "beta", "")
	require.NoError(t, err)

	first, err := d.UpsertTopicRelation(ctx, b.ID, a.ID, store.DefaultRelationStrength, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.5, first.Strength, 1e-9)

	second, err := d.UpsertTopicRelation(ctx, a.ID, b.ID, store.DefaultRelationStrength, "")
	require.NoError(t, err)
	assert.InDelta(t, 0.6, second.Strength, 1e-9)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, first.SourceTopicID, second.SourceTopicID)
	assert.Equal(t, first.TargetTopicID, second.TargetTopicID)
}
