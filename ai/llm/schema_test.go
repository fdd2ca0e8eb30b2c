package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCap(t *testing.T) {
	assert.Equal(t, 100, LengthShort.TokenCap())
	assert.Equal(t, 512, LengthMedium.TokenCap())
	assert.Equal(t, 1024, LengthLong.TokenCap())
	assert.Equal(t, 512, ResponseLength("nonsense").TokenCap())
}

func TestNormalizeLength(t *testing.T) {
	assert.Equal(t, LengthShort, normalizeLength("short"))
	assert.Equal(t, LengthShort, normalizeLength("  Short "))
	assert.Equal(t, LengthLong, normalizeLength("LONG"))
	assert.Equal(t, LengthMedium, normalizeLength("medium"))
	assert.Equal(t, LengthMedium, normalizeLength(""))
	assert.Equal(t, LengthMedium, normalizeLength("verbose"))
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFences("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFences(`{"a":1}`))
	assert.Equal(t, `{"a":1}`, stripCodeFences("  {\"a\":1}  "))
}

func TestParseClassification(t *testing.T) {
	result, ok := parseClassification(`{"isTrivial": true, "suggestedResponseLength": "short"}`)
	require.True(t, ok)
	assert.True(t, result.IsTrivial)
	assert.Equal(t, LengthShort, result.SuggestedResponseLength)

	result, ok = parseClassification("```json\n{\"isTrivial\": false, \"suggestedResponseLength\": \"long\"}\n```")
	require.True(t, ok)
	assert.False(t, result.IsTrivial)
	assert.Equal(t, LengthLong, result.SuggestedResponseLength)

	// Missing fields narrow to the defaults.
	result, ok = parseClassification(`{}`)
	require.True(t, ok)
	assert.False(t, result.IsTrivial)
	assert.Equal(t, LengthMedium, result.SuggestedResponseLength)

	_, ok = parseClassification("not json at all")
	assert.False(t, ok)
}

func TestParsePIIDetection(t *testing.T) {
	result, ok := parsePIIDetection(`{"containsPII": true, "piiTypes": ["email"], "explanation": "contains an email address"}`)
	require.True(t, ok)
	assert.True(t, result.ContainsPII)
	assert.Equal(t, []string{"email"}, result.PIITypes)
	assert.Equal(t, "contains an email address", result.Explanation)

	result, ok = parsePIIDetection(`{}`)
	require.True(t, ok)
	assert.False(t, result.ContainsPII)
	assert.Empty(t, result.PIITypes)

	_, ok = parsePIIDetection("```\ngarbage\n```")
	assert.False(t, ok)
}

func TestParseAnalysis(t *testing.T) {
	raw := `{
		"isUseful": true,
		"reason": "technical discussion",
		"topics": ["tls", "cryptography", "handshake"],
		"insights": ["TLS 1.3 uses a one-RTT handshake"],
		"summary": "A discussion of the TLS 1.3 handshake.",
		"relatedTopics": ["pki"],
		"isComplete": false
	}`
	result, ok := parseAnalysis(raw)
	require.True(t, ok)
	assert.True(t, result.IsUseful)
	assert.Equal(t, []string{"tls", "cryptography", "handshake"}, result.Topics)
	assert.Len(t, result.Insights, 1)
	assert.False(t, result.IsComplete)
}

func TestParseAnalysisTruncatesAndDefaults(t *testing.T) {
	raw := `{
		"isUseful": true,
		"topics": ["a","b","c","d","e","f","g","h"],
		"insights": ["1","2","3","4","5","6"]
	}`
	result, ok := parseAnalysis(raw)
	require.True(t, ok)
	assert.Len(t, result.Topics, MaxAnalysisTopics)
	assert.Len(t, result.Insights, MaxAnalysisInsights)
	// isComplete defaults to true when absent.
	assert.True(t, result.IsComplete)
	assert.NotNil(t, result.RelatedTopics)
}

func TestDefaultAnalysis(t *testing.T) {
	d := DefaultAnalysis()
	assert.False(t, d.IsUseful)
	assert.True(t, d.IsComplete)
	assert.Empty(t, d.Topics)
	assert.Empty(t, d.Insights)
}
