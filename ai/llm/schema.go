// Package llm wraps a remote OpenAI-compatible chat-completions endpoint with
// the typed operations the chat pipeline and processor need. Structured
// responses are duck-typed JSON: every parse tolerates code-fence wrapping and
// narrows to explicit defaults instead of surfacing failures.
package llm

import (
	"encoding/json"
	"strings"
)

// ResponseLength is the classifier's length hint for a completion.
type ResponseLength string

const (
	LengthShort  ResponseLength = "short"
	LengthMedium ResponseLength = "medium"
	LengthLong   ResponseLength = "long"
)

// TokenCap maps the length hint to the completion token ceiling.
func (l ResponseLength) TokenCap() int {
	switch l {
	case LengthShort:
		return 100
	case LengthLong:
		return 1024
	default:
		return 512
	}
}

func normalizeLength(s string) ResponseLength {
	switch ResponseLength(strings.ToLower(strings.TrimSpace(s))) {
	case LengthShort:
		return LengthShort
	case LengthLong:
		return LengthLong
	default:
		return LengthMedium
	}
}

// Message is a chat turn.
type Message struct {
	Role    string // system, user, assistant
	Content string
}

// QueryClassification is the pre-completion verdict on a user turn.
type QueryClassification struct {
	IsTrivial               bool           `json:"isTrivial"`
	SuggestedResponseLength ResponseLength `json:"suggestedResponseLength"`
}

// DefaultClassification is the neutral fallback on any classifier failure.
func DefaultClassification() *QueryClassification {
	return &QueryClassification{IsTrivial: false, SuggestedResponseLength: LengthMedium}
}

// PIIDetection is the verdict of the PII probe over a (query, response) pair.
type PIIDetection struct {
	ContainsPII bool     `json:"containsPII"`
	PIITypes    []string `json:"piiTypes"`
	Explanation string   `json:"explanation"`
}

// DefaultPIIDetection is the neutral fallback: no PII seen.
func DefaultPIIDetection() *PIIDetection {
	return &PIIDetection{ContainsPII: false, PIITypes: []string{}}
}

// Analysis limits; extracted lists are truncated, never rejected.
const (
	MaxAnalysisTopics   = 6
	MaxAnalysisInsights = 4
)

// ConversationAnalysis is the processor's extraction result.
type ConversationAnalysis struct {
	IsUseful      bool     `json:"isUseful"`
	Reason        string   `json:"reason"`
	Topics        []string `json:"topics"`
	Insights      []string `json:"insights"`
	Summary       string   `json:"summary"`
	RelatedTopics []string `json:"relatedTopics"`
	IsComplete    bool     `json:"isComplete"`
}

// DefaultAnalysis is the neutral fallback: not useful, nothing extracted.
func DefaultAnalysis() *ConversationAnalysis {
	return &ConversationAnalysis{
		Reason:        "Analysis unavailable",
		Topics:        []string{},
		Insights:      []string{},
		RelatedTopics: []string{},
		IsComplete:    true,
	}
}

// stripCodeFences removes a wrapping markdown code fence, if any. Models
// routinely wrap JSON in ```json ... ``` despite instructions.
func stripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.Index(s, "\n"); i >= 0 {
		s = s[i+1:] // drop the language tag line
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func parseClassification(raw string) (*QueryClassification, bool) {
	var wire struct {
		IsTrivial               *bool  `json:"isTrivial"`
		SuggestedResponseLength string `json:"suggestedResponseLength"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &wire); err != nil {
		return nil, false
	}
	result := DefaultClassification()
	if wire.IsTrivial != nil {
		result.IsTrivial = *wire.IsTrivial
	}
	result.SuggestedResponseLength = normalizeLength(wire.SuggestedResponseLength)
	return result, true
}

func parsePIIDetection(raw string) (*PIIDetection, bool) {
	var wire struct {
		ContainsPII *bool    `json:"containsPII"`
		PIITypes    []string `json:"piiTypes"`
		Explanation string   `json:"explanation"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &wire); err != nil {
		return nil, false
	}
	result := DefaultPIIDetection()
	if wire.ContainsPII != nil {
		result.ContainsPII = *wire.ContainsPII
	}
	if wire.PIITypes != nil {
		result.PIITypes = wire.PIITypes
	}
	result.Explanation = wire.Explanation
	return result, true
}

func parseAnalysis(raw string) (*ConversationAnalysis, bool) {
	var wire struct {
		IsUseful      *bool    `json:"isUseful"`
		Reason        string   `json:"reason"`
		Topics        []string `json:"topics"`
		Insights      []string `json:"insights"`
		Summary       string   `json:"summary"`
		RelatedTopics []string `json:"relatedTopics"`
		IsComplete    *bool    `json:"isComplete"`
	}
	if err := json.Unmarshal([]byte(stripCodeFences(raw)), &wire); err != nil {
		return nil, false
	}

	result := &ConversationAnalysis{
		Reason:        wire.Reason,
		Topics:        wire.Topics,
		Insights:      wire.Insights,
		Summary:       wire.Summary,
		RelatedTopics: wire.RelatedTopics,
		IsComplete:    true,
	}
	if wire.IsUseful != nil {
		result.IsUseful = *wire.IsUseful
	}
	if wire.IsComplete != nil {
		result.IsComplete = *wire.IsComplete
	}
	if result.Topics == nil {
		result.Topics = []string{}
	}
	if len(result.Topics) > MaxAnalysisTopics {
		result.Topics = result.Topics[:MaxAnalysisTopics]
	}
	if result.Insights == nil {
		result.Insights = []string{}
	}
	if len(result.Insights) > MaxAnalysisInsights {
		result.Insights = result.Insights[:MaxAnalysisInsights]
	}
	if result.RelatedTopics == nil {
		result.RelatedTopics = []string{}
	}
	return result, true
}
