package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mindmesh/ai/metrics"
)

func completionServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	payload := map[string]any{
		"choices": []map[string]any{
			{"message": map[string]any{"role": "assistant", "content": content}},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		require.NoError(t, json.NewEncoder(w).Encode(payload))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestNewServiceRequiresModel(t *testing.T) {
	_, err := NewService(&Config{}, nil)
	assert.Error(t, err)
}

func TestClassifyQueryRecordsMetrics(t *testing.T) {
	srv := completionServer(t, `{"isTrivial":true,"suggestedResponseLength":"short"}`)

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	svc, err := NewService(&Config{Model: "test-model", APIKey: "k", BaseURL: srv.URL}, exporter)
	require.NoError(t, err)

	result := svc.ClassifyQuery(context.Background(), "hi")
	assert.True(t, result.IsTrivial)
	assert.Equal(t, LengthShort, result.SuggestedResponseLength)

	n, err := testutil.GatherAndCount(exporter.Registry(), "mindmesh_llm_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestChatRecordsFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "upstream unavailable", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	exporter := metrics.NewExporter(metrics.DefaultConfig())
	svc, err := NewService(&Config{Model: "test-model", APIKey: "k", BaseURL: srv.URL}, exporter)
	require.NoError(t, err)

	_, err = svc.Chat(context.Background(), []Message{{Role: "user", Content: "hi"}}, "", LengthMedium)
	assert.Error(t, err)

	n, err := testutil.GatherAndCount(exporter.Registry(), "mindmesh_llm_calls_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}
