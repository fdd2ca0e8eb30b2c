package chat

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mindmesh/ai/vector"
	"github.com/hrygo/mindmesh/store"
)

type mockIndex struct {
	matches   []*vector.Match
	searchErr error
}

func (m *mockIndex) Store(context.Context, string, string, string, []string) error { return nil }
func (m *mockIndex) Search(context.Context, string, *string, int) ([]*vector.Match, error) {
	return m.matches, m.searchErr
}
func (m *mockIndex) Delete(context.Context, string) error       { return nil }
func (m *mockIndex) Count(context.Context, string) (int, error) { return 0, nil }

func sourcesOf(evidence []*Evidence) []string {
	out := make([]string, 0, len(evidence))
	for _, e := range evidence {
		out = append(out, e.Source)
	}
	return out
}

func TestBuildSkipsRelatedWhenPersonalPresent(t *testing.T) {
	driver := newMockDriver()
	driver.recent = []*store.Insight{{ID: "i1", Content: "TLS 1.3 uses one round trip", Topics: []string{"tls"}}}
	driver.related = []*store.Insight{{ID: "i2", Content: "should not appear"}}
	builder := &contextBuilder{store: store.New(driver, nil)}

	built := builder.Build(context.Background(), "u1", "tell me about tls")

	require.NotEmpty(t, built.Block)
	assert.Contains(t, built.Block, "TLS 1.3 uses one round trip")
	assert.NotContains(t, built.Block, "should not appear")
	assert.Equal(t, []string{"personal"}, sourcesOf(built.Evidence))
}

func TestBuildFallsBackToRelatedWhenPersonalEmpty(t *testing.T) {
	driver := newMockDriver()
	driver.userTopics = []*store.Topic{{ID: "t1", Name: "tls"}}
	driver.related = []*store.Insight{{ID: "i2", Content: "handshake basics", Topics: []string{"tls"}}}
	builder := &contextBuilder{store: store.New(driver, nil)}

	built := builder.Build(context.Background(), "u1", "tls?")

	assert.Contains(t, built.Block, "handshake basics")
	assert.Equal(t, []string{"related"}, sourcesOf(built.Evidence))
}

func TestBuildIncludesGlobalPool(t *testing.T) {
	driver := newMockDriver()
	driver.summaries = []*store.ConversationSummary{{ConversationID: "c9", Summary: "a chat about quantum computing"}}
	driver.globals = []*store.GlobalInsight{{ID: "global_c9", Content: "qubits decohere fast"}}
	builder := &contextBuilder{store: store.New(driver, nil)}

	built := builder.Build(context.Background(), "u1", "quantum?")

	assert.Contains(t, built.Block, "a chat about quantum computing")
	assert.Contains(t, built.Block, "qubits decohere fast")
}

func TestBuildFiltersVectorHitsByScore(t *testing.T) {
	driver := newMockDriver()
	index := &mockIndex{matches: []*vector.Match{
		{InsightID: "v1", Content: "strong match", Score: 0.9},
		{InsightID: "v2", Content: "weak match", Score: 0.3},
	}}
	builder := &contextBuilder{store: store.New(driver, nil), index: index}

	built := builder.Build(context.Background(), "u1", "query")

	assert.Contains(t, built.Block, "strong match")
	assert.NotContains(t, built.Block, "weak match")
	require.Len(t, built.Evidence, 1)
	assert.Equal(t, "vector", built.Evidence[0].Source)
	assert.Equal(t, 0.9, built.Evidence[0].Score)
}

func TestBuildSurvivesVectorFailure(t *testing.T) {
	driver := newMockDriver()
	driver.recent = []*store.Insight{{ID: "i1", Content: "kept"}}
	index := &mockIndex{searchErr: errors.New("index offline")}
	builder := &contextBuilder{store: store.New(driver, nil), index: index}

	built := builder.Build(context.Background(), "u1", "query")

	assert.Contains(t, built.Block, "kept")
	assert.Equal(t, []string{"personal"}, sourcesOf(built.Evidence))
}

func TestBuildEmptyEverything(t *testing.T) {
	builder := &contextBuilder{store: store.New(newMockDriver(), nil)}
	built := builder.Build(context.Background(), "u1", "query")
	assert.Empty(t, built.Block)
	assert.Empty(t, built.Evidence)
}
