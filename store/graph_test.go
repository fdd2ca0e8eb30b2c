package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freq(id, name string, n int) *TopicFrequency {
	return &TopicFrequency{Topic: Topic{ID: id, Name: name}, Frequency: n}
}

func TestBuildGraphNormalizedFrequency(t *testing.T) {
	graph := BuildGraph([]*TopicFrequency{
		freq("t1", "tls", 4),
		freq("t2", "cryptography", 2),
		freq("t3", "handshake", 0),
	}, nil)

	require.Len(t, graph.Nodes, 3)
	assert.Equal(t, 1.0, graph.Nodes[0].NormalizedFrequency)
	assert.Equal(t, 0.5, graph.Nodes[1].NormalizedFrequency)
	assert.Equal(t, 0.0, graph.Nodes[2].NormalizedFrequency)

	// At least one node normalizes to exactly 1.
	max := 0.0
	for _, n := range graph.Nodes {
		assert.GreaterOrEqual(t, n.NormalizedFrequency, 0.0)
		assert.LessOrEqual(t, n.NormalizedFrequency, 1.0)
		if n.NormalizedFrequency > max {
			max = n.NormalizedFrequency
		}
	}
	assert.Equal(t, 1.0, max)
}

func TestBuildGraphZeroFrequencies(t *testing.T) {
	graph := BuildGraph([]*TopicFrequency{freq("t1", "tls", 0)}, nil)
	require.Len(t, graph.Nodes, 1)
	assert.Equal(t, 0.0, graph.Nodes[0].NormalizedFrequency)
}

func TestBuildGraphDropsDanglingEdges(t *testing.T) {
	graph := BuildGraph(
		[]*TopicFrequency{freq("t1", "tls", 1), freq("t2", "cryptography", 1)},
		[]*TopicRelation{
			{ID: "r1", SourceTopicID: "t1", TargetTopicID: "t2", Strength: 0.5, RelationType: "related"},
			{ID: "r2", SourceTopicID: "t1", TargetTopicID: "t-missing", Strength: 0.9, RelationType: "related"},
		},
	)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, "t1", graph.Edges[0].Source)
	assert.Equal(t, "t2", graph.Edges[0].Target)
}

func TestBuildGraphUndirectedDedupe(t *testing.T) {
	graph := BuildGraph(
		[]*TopicFrequency{freq("t1", "a", 1), freq("t2", "b", 1)},
		[]*TopicRelation{
			{ID: "r1", SourceTopicID: "t1", TargetTopicID: "t2", Strength: 0.5, RelationType: "related"},
			{ID: "r2", SourceTopicID: "t2", TargetTopicID: "t1", Strength: 0.8, RelationType: "related"},
		},
	)
	// Both directions collapse to one edge carrying the strongest row.
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, 0.8, graph.Edges[0].Strength)
}

func TestBuildGraphClampsStrength(t *testing.T) {
	graph := BuildGraph(
		[]*TopicFrequency{freq("t1", "a", 1), freq("t2", "b", 1)},
		[]*TopicRelation{
			{ID: "r1", SourceTopicID: "t1", TargetTopicID: "t2", Strength: 1.3, RelationType: "related"},
		},
	)
	require.Len(t, graph.Edges, 1)
	assert.Equal(t, 1.0, graph.Edges[0].Strength)
}
