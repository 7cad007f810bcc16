package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/declarative"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/testutil/fixtures"
	"github.com/BaSui01/stageflow/workflow"
)

// decodeResponse 解码统一响应，Data 再解码到 data（可为 nil）
func decodeResponse(t *testing.T, w *httptest.ResponseRecorder, data any) Response {
	t.Helper()
	var raw struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	if data != nil && len(raw.Data) > 0 {
		require.NoError(t, json.Unmarshal(raw.Data, data))
	}
	return raw.Response
}

func jsonRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	r := httptest.NewRequest(method, target, &buf)
	r.Header.Set("Content-Type", "application/json")
	return r
}

type agentFunc = fixtures.StepFunc

func testAgent(id string, fn agentFunc) agent.Agent {
	return fixtures.NewAgent(id, fn)
}

// fakeDefinitions 是内存中的 DefinitionSource
type fakeDefinitions map[string]workflow.Definition

func (f fakeDefinitions) LoadWorkflow(id string) (workflow.Definition, error) {
	def, ok := f[id]
	if !ok {
		return workflow.Definition{}, declarative.ErrDefinitionNotFound
	}
	return def, nil
}

func (f fakeDefinitions) WorkflowIDs() ([]string, error) {
	ids := make([]string, 0, len(f))
	for id := range f {
		ids = append(ids, id)
	}
	return ids, nil
}

func newTestEngine(t *testing.T, agents ...agent.Agent) (*workflow.Engine, *persistence.Manager) {
	t.Helper()
	sessions := persistence.NewManager(persistence.NewMemorySessionStore(), zap.NewNop())
	reg := agent.NewRegistry(zap.NewNop())
	for _, a := range agents {
		reg.Register(a)
	}
	return workflow.NewEngine(sessions, reg, nil, zap.NewNop()), sessions
}

// serve 通过 ServeMux 分发请求，使 PathValue 生效
func serve(pattern string, h http.HandlerFunc, r *http.Request) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}
