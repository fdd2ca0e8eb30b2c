package store

import "strings"

// Topic relation defaults; reinforcement adds 0.1 per co-occurrence, clamped to 1.
const (
	DefaultRelationStrength = 0.5
	RelationReinforcement   = 0.1
	DefaultRelationType     = "related"
	MaxRelationStrength     = 1.0
)

type Topic struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	CreatedTs   int64   `json:"createdTs"`
}

// TopicRelation is a row of the undirected topic graph. Rows are stored with
// the pair in canonical order (see OrderedPair) so reinforcement of (a,b) and
// (b,a) lands on the same edge; the topic ID is the stable key, names are
// presentation-layer.
type TopicRelation struct {
	ID            string  `json:"id"`
	SourceTopicID string  `json:"source"`
	TargetTopicID string  `json:"target"`
	Strength      float64 `json:"strength"`
	RelationType  string  `json:"type"`
}

// TopicFrequency is a topic with its distinct-conversation count, globally or
// scoped to one user.
type TopicFrequency struct {
	Topic
	Frequency int `json:"frequency"`
}

// NormalizeTopicName canonicalizes a topic name: lowercase, hyphen-separated,
// restricted to [a-z0-9-]. Repeated creation requests for any spelling of the
// same name resolve to the same topic row.
func NormalizeTopicName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))

	var b strings.Builder
	b.Grow(len(name))
	lastHyphen := false
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			lastHyphen = false
		case r == ' ' || r == '-' || r == '_' || r == '\t':
			if !lastHyphen && b.Len() > 0 {
				b.WriteByte('-')
				lastHyphen = true
			}
		default:
			// Drop punctuation and other symbols.
		}
	}
	return strings.Trim(b.String(), "-")
}

// SplitJoined splits a comma-joined list, returning nil for the empty string.
func SplitJoined(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, ",")
}

// JoinList renders a list the way link columns store it: comma-joined.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// OrderedPair canonicalizes an unordered topic pair into a stable
// (source, target) order. Every relation write goes through this so the
// reinforcement schedule counts co-occurrences regardless of extraction order.
func OrderedPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

// ClampStrength clamps a relation strength into [0,1].
func ClampStrength(s float64) float64 {
	if s < 0 {
		return 0
	}
	if s > MaxRelationStrength {
		return MaxRelationStrength
	}
	return s
}
