package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/types"
)

func seededSessions(t *testing.T) *persistence.Manager {
	t.Helper()
	m := persistence.NewManager(persistence.NewMemorySessionStore(), zap.NewNop())
	s, err := m.CreateSession(context.Background(), "s-1")
	require.NoError(t, err)
	s.SetResearchTopic("sleep and memory")
	s.SetCurrentStage(types.StageLiteratureSearch)
	require.NoError(t, m.Persist(context.Background(), "s-1"))
	return m
}

func TestSessionHandler_List(t *testing.T) {
	h := NewSessionHandler(seededSessions(t), zap.NewNop())
	w := httptest.NewRecorder()
	h.HandleList(w, httptest.NewRequest(http.MethodGet, "/api/v1/sessions", nil))

	var ids []string
	decodeResponse(t, w, &ids)
	assert.Equal(t, []string{"s-1"}, ids)
}

func TestSessionHandler_Get(t *testing.T) {
	h := NewSessionHandler(seededSessions(t), zap.NewNop())

	w := serve("GET /api/v1/sessions/{id}", h.HandleGet, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/s-1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var snap persistence.Snapshot
	decodeResponse(t, w, &snap)
	assert.Equal(t, "sleep and memory", snap.ResearchTopic)
	assert.Equal(t, types.StageLiteratureSearch, snap.CurrentStage)

	w = serve("GET /api/v1/sessions/{id}", h.HandleGet, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/missing", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionHandler_Delete(t *testing.T) {
	m := seededSessions(t)
	h := NewSessionHandler(m, zap.NewNop())

	w := serve("DELETE /api/v1/sessions/{id}", h.HandleDelete, httptest.NewRequest(http.MethodDelete, "/api/v1/sessions/s-1", nil))
	assert.Equal(t, http.StatusNoContent, w.Code)

	ids, err := m.ListSessions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
