package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLLMCall(t *testing.T) {
	e := NewExporter(Config{})
	e.RecordLLMCall("classify", 50*time.Millisecond, true)
	e.RecordLLMCall("classify", 80*time.Millisecond, false)
	e.RecordLLMCall("chat", 200*time.Millisecond, true)

	assert.InDelta(t, 1, testutil.ToFloat64(e.llmCalls.WithLabelValues("classify", "success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(e.llmCalls.WithLabelValues("classify", "error")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(e.llmCalls.WithLabelValues("chat", "success")), 1e-9)

	n, err := testutil.GatherAndCount(e.Registry(), "mindmesh_llm_latency_seconds")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRecordVectorSearch(t *testing.T) {
	e := NewExporter(Config{})
	e.RecordVectorSearch(true)
	e.RecordVectorSearch(true)
	e.RecordVectorSearch(false)

	assert.InDelta(t, 2, testutil.ToFloat64(e.vectorSearches.WithLabelValues("success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(e.vectorSearches.WithLabelValues("error")), 1e-9)
}

func TestRecordChatRequest(t *testing.T) {
	e := NewExporter(Config{})
	e.RecordChatRequest("blocking", 100*time.Millisecond, true)
	e.RecordChatRequest("stream", 300*time.Millisecond, false)

	assert.InDelta(t, 1, testutil.ToFloat64(e.chatRequests.WithLabelValues("blocking", "success")), 1e-9)
	assert.InDelta(t, 1, testutil.ToFloat64(e.chatRequests.WithLabelValues("stream", "error")), 1e-9)

	done := e.ChatStarted()
	assert.InDelta(t, 1, testutil.ToFloat64(e.chatActive), 1e-9)
	done()
	assert.InDelta(t, 0, testutil.ToFloat64(e.chatActive), 1e-9)
}
