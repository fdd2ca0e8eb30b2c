package api

import (
	"context"
	"encoding/json"
	"net/http"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hrygo/mindmesh/internal/profile"
	"github.com/hrygo/mindmesh/store"
	"github.com/hrygo/mindmesh/store/db/sqlite"
)

func newStoreBackedService(t *testing.T) *Service {
	t.Helper()
	d, err := sqlite.NewDB(&profile.Profile{DSN: filepath.Join(t.TempDir(), "api_test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })
	require.NoError(t, d.Migrate(context.Background()))
	return &Service{Store: store.New(d, nil)}
}

func graphKeys(t *testing.T, body []byte) map[string]json.RawMessage {
	t.Helper()
	var payload map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(body, &payload))
	return payload
}

func TestUserGraphMapReturnsFullShape(t *testing.T) {
	s := newStoreBackedService(t)
	rec := request(t, s.UserGraphMap, http.MethodGet, "/api/graph/user/u1/map", "", "userId", "u1")
	require.Equal(t, http.StatusOK, rec.Code)

	payload := graphKeys(t, rec.Body.Bytes())
	for _, key := range []string{"stats", "graph", "topics", "relations", "insights", "conversations"} {
		assert.Contains(t, payload, key)
	}
}

func TestGlobalGraphReturnsFullShape(t *testing.T) {
	s := newStoreBackedService(t)
	rec := request(t, s.GlobalGraph, http.MethodGet, "/api/graph/global", "")
	require.Equal(t, http.StatusOK, rec.Code)

	payload := graphKeys(t, rec.Body.Bytes())
	for _, key := range []string{"stats", "graph", "topics", "relations", "insights", "conversations"} {
		assert.Contains(t, payload, key)
	}
}
