package store

// GraphNode is a topic node of a visualization aggregate. Frequency is the
// COUNT(DISTINCT conversation_id) of the topic's conversations in scope;
// NormalizedFrequency is frequency / max(frequency) over the returned set.
type GraphNode struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Description         string  `json:"description,omitempty"`
	Frequency           int     `json:"frequency"`
	NormalizedFrequency float64 `json:"normalizedFrequency"`
}

// GraphEdge is an undirected relation between two nodes of the same aggregate.
type GraphEdge struct {
	Source   string  `json:"source"`
	Target   string  `json:"target"`
	Strength float64 `json:"strength"`
	Type     string  `json:"type"`
}

type Graph struct {
	Nodes []*GraphNode `json:"nodes"`
	Edges []*GraphEdge `json:"edges"`
}

// GraphStats summarizes an aggregate for the map endpoints.
type GraphStats struct {
	TopicCount        int `json:"topicCount"`
	RelationCount     int `json:"relationCount"`
	InsightCount      int `json:"insightCount"`
	ConversationCount int `json:"conversationCount"`
}

// BuildGraph assembles the node/edge aggregate from topic frequencies and the
// directed relation rows among them. Relations are deduplicated as undirected
// pairs (strongest row wins) and an edge is kept only when both endpoints are
// in the node set.
func BuildGraph(frequencies []*TopicFrequency, relations []*TopicRelation) *Graph {
	nodes := make([]*GraphNode, 0, len(frequencies))
	inSet := make(map[string]bool, len(frequencies))

	maxFrequency := 0
	for _, f := range frequencies {
		if f.Frequency > maxFrequency {
			maxFrequency = f.Frequency
		}
	}
	for _, f := range frequencies {
		node := &GraphNode{
			ID:        f.ID,
			Name:      f.Name,
			Frequency: f.Frequency,
		}
		if f.Description != nil {
			node.Description = *f.Description
		}
		if maxFrequency > 0 {
			node.NormalizedFrequency = float64(f.Frequency) / float64(maxFrequency)
		}
		nodes = append(nodes, node)
		inSet[f.ID] = true
	}

	edges := make([]*GraphEdge, 0, len(relations))
	seen := make(map[[2]string]int, len(relations)) // unordered pair -> edge index
	for _, r := range relations {
		if !inSet[r.SourceTopicID] || !inSet[r.TargetTopicID] {
			continue
		}
		key := [2]string{r.SourceTopicID, r.TargetTopicID}
		if key[0] > key[1] {
			key[0], key[1] = key[1], key[0]
		}
		if i, ok := seen[key]; ok {
			if r.Strength > edges[i].Strength {
				edges[i].Strength = ClampStrength(r.Strength)
			}
			continue
		}
		seen[key] = len(edges)
		edges = append(edges, &GraphEdge{
			Source:   r.SourceTopicID,
			Target:   r.TargetTopicID,
			Strength: ClampStrength(r.Strength),
			Type:     r.RelationType,
		})
	}

	return &Graph{Nodes: nodes, Edges: edges}
}
