package workflow

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/internal/ctxkeys"
	"github.com/BaSui01/stageflow/testutil/mocks"
	"github.com/BaSui01/stageflow/types"
)

type fakeRecorder struct {
	mu        sync.Mutex
	workflows []bool
	agents    map[string]int
	active    []int
}

func (r *fakeRecorder) RecordWorkflow(_ string, success bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.workflows = append(r.workflows, success)
}

func (r *fakeRecorder) RecordAgent(agentID string, _ bool, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.agents == nil {
		r.agents = map[string]int{}
	}
	r.agents[agentID]++
}

func (r *fakeRecorder) SetActiveWorkflows(n int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.active = append(r.active, n)
}

func researchRegistry() *agent.Registry {
	reg := agent.NewRegistry(zap.NewNop())
	for _, id := range fullPipeline {
		reg.Register(newAgent(id, nil))
	}
	return reg
}

func newTestEngine(t *testing.T, h types.HITL, opts ...EngineOption) (*Engine, persistence.SessionStore) {
	t.Helper()
	store := persistence.NewMemorySessionStore()
	sessions := persistence.NewManager(store, zap.NewNop())
	return NewEngine(sessions, researchRegistry(), h, zap.NewNop(), opts...), store
}

func TestEngine_DefaultResearchWorkflow(t *testing.T) {
	h := mocks.NewMockHITL()
	rec := &fakeRecorder{}
	e, store := newTestEngine(t, h, WithRecorder(rec))

	def := e.DefaultResearchWorkflow()
	assert.Equal(t, "default-research", def.ID)
	assert.Len(t, def.Agents, 6)

	res, err := e.ExecuteWorkflow(context.Background(), def, "sleep research", &ExecutionOptions{
		SessionID:     "session-1",
		ResearchTopic: "sleep and memory",
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, fullPipeline, res.ExecutionPath)
	assert.Equal(t, 3, res.Metrics.HumanInterventions)
	assert.Len(t, h.Requests(), 3)

	snap, err := store.Load(context.Background(), "session-1")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "sleep and memory", snap.ResearchTopic)

	assert.Empty(t, e.GetActiveWorkflows())
	assert.Equal(t, []bool{true}, rec.workflows)
	assert.Equal(t, 1, rec.agents[AgentPaperWriting])
	assert.Equal(t, []int{1, 0}, rec.active)

	runs := e.History().ListByWorkflow("default-research")
	require.Len(t, runs, 1)
	assert.Equal(t, ExecutionStatusCompleted, runs[0].GetStatus())
	assert.Len(t, runs[0].GetSteps(), 6)
	assert.Equal(t, "session-1", runs[0].SessionID)
}

func TestEngine_UnknownAgentFailsFast(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	def := Definition{ID: "wf", Name: "WF", Type: TypeSequential, Agents: []Member{Ref("idea-building"), Ref("ghost")}}

	_, err := e.ExecuteWorkflow(context.Background(), def, nil, nil)
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)

	def = Definition{ID: "wf", Name: "WF", Type: TypeParallel, Agents: []Member{Ref("idea-building")}, MergerAgentID: "ghost"}
	_, err = e.BuildWorkflow(def)
	assert.ErrorIs(t, err, agent.ErrAgentNotFound)
}

func TestEngine_StructuralErrorsBlockExecution(t *testing.T) {
	e, store := newTestEngine(t, nil)

	def := Definition{ID: "wf", Name: "WF", Type: TypeSequential, Agents: []Member{Ref("idea-building"), Ref("idea-building")}}
	_, err := e.ExecuteWorkflow(context.Background(), def, nil, &ExecutionOptions{SessionID: "never"})
	require.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Contains(t, err.Error(), "Duplicate agent ID: idea-building")

	nested := Definition{ID: "inner", Name: "Inner", Type: TypeParallel, Agents: []Member{}}
	def = Definition{ID: "wf", Name: "WF", Type: TypeHybrid, Agents: []Member{Ref("idea-building"), Nested(nested)}}
	_, err = e.ExecuteWorkflow(context.Background(), def, nil, nil)
	require.ErrorIs(t, err, ErrInvalidWorkflow)
	assert.Contains(t, err.Error(), "inner: Workflow must have at least one agent")

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = e.BuildWorkflow(Definition{ID: "wf", Type: "graph"})
	assert.ErrorIs(t, err, ErrInvalidWorkflow)
}

func TestEngine_GateWarningIsNotFatal(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	def := Definition{
		ID: "wf", Name: "WF", Type: TypeSequential,
		Agents: []Member{Ref("idea-building")},
		Config: &Config{ApprovalGates: []string{"ghost"}},
	}
	res, err := e.ExecuteWorkflow(context.Background(), def, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
}

func TestEngine_NestedWorkflows(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	def := Definition{
		ID: "mixed", Name: "Mixed", Type: TypeHybrid,
		Agents: []Member{
			Ref(AgentIdeaBuilding),
			Nested(Definition{
				ID: "analysis", Name: "Analysis", Type: TypeParallel,
				Agents: []Member{Ref(AgentLiteratureSearch), Ref(AgentDataAnalysis)},
			}),
			Ref(AgentPaperWriting),
		},
	}

	res, err := e.ExecuteWorkflow(context.Background(), def, nil, nil)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []string{AgentIdeaBuilding, "analysis", AgentPaperWriting}, res.ExecutionPath)

	nested, ok := res.AgentResults.Get("analysis")
	require.True(t, ok)
	assert.Equal(t, "Workflow Analysis completed", nested.Summary)
	assert.Equal(t, map[string]any{
		AgentLiteratureSearch: AgentLiteratureSearch + "-out",
		AgentDataAnalysis:     AgentDataAnalysis + "-out",
	}, nested.Output)
}

func TestEngine_PersistsAfterFailure(t *testing.T) {
	e, store := newTestEngine(t, nil)
	e.Registry().Register(newAgent("broken", func(_ context.Context, actx *agent.Context) (any, error) {
		actx.State.Set(types.KeyResearchGaps, "partial")
		return nil, errors.New("model unavailable")
	}))
	def := Definition{ID: "wf", Name: "WF", Type: TypeSequential, Agents: []Member{Ref("broken")}}

	res, err := e.ExecuteWorkflow(context.Background(), def, nil, &ExecutionOptions{SessionID: "s-fail"})
	require.NoError(t, err)
	assert.False(t, res.Success)

	snap, err := store.Load(context.Background(), "s-fail")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "partial", snap.Data[types.KeyResearchGaps])

	runs := e.History().ListByStatus(ExecutionStatusFailed)
	require.Len(t, runs, 1)
	assert.Equal(t, "model unavailable", runs[0].Error)
}

func TestEngine_ResumesSession(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Registry().Register(newAgent("counter", func(_ context.Context, actx *agent.Context) (any, error) {
		n, _ := actx.State.Get("count")
		f, _ := n.(float64)
		actx.State.Set("count", f+1)
		return f + 1, nil
	}))
	def := Definition{ID: "wf", Name: "WF", Type: TypeSequential, Agents: []Member{Ref("counter")}}

	_, err := e.ExecuteWorkflow(context.Background(), def, nil, &ExecutionOptions{SessionID: "resume"})
	require.NoError(t, err)

	// a fresh engine over the same store sees the persisted counter
	e2 := NewEngine(persistence.NewManager(e.Sessions().Store(), zap.NewNop()), e.Registry(), nil, nil)
	res, err := e2.ExecuteWorkflow(context.Background(), def, nil, &ExecutionOptions{SessionID: "resume"})
	require.NoError(t, err)
	assert.Equal(t, float64(2), res.Output)
}

func TestEngine_ConcurrentRunsShareSession(t *testing.T) {
	e, store := newTestEngine(t, nil)
	inA := make(chan struct{})
	releaseA := make(chan struct{})
	e.Registry().Register(newAgent("writer-a", func(_ context.Context, actx *agent.Context) (any, error) {
		actx.State.Set("from_a", "v")
		close(inA)
		<-releaseA
		return "a", nil
	}))
	e.Registry().Register(newAgent("writer-b", func(_ context.Context, actx *agent.Context) (any, error) {
		actx.State.Set("from_b", "v")
		return "b", nil
	}))
	defA := Definition{ID: "a", Name: "A", Type: TypeSequential, Agents: []Member{Ref("writer-a")}}
	defB := Definition{ID: "b", Name: "B", Type: TypeSequential, Agents: []Member{Ref("writer-b")}}
	opts := func() *ExecutionOptions { return &ExecutionOptions{SessionID: "shared"} }

	var wg sync.WaitGroup
	errs := make([]error, 2)
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, errs[0] = e.ExecuteWorkflow(context.Background(), defA, nil, opts())
	}()
	<-inA
	go func() {
		defer wg.Done()
		_, errs[1] = e.ExecuteWorkflow(context.Background(), defB, nil, opts())
	}()
	time.Sleep(20 * time.Millisecond)
	close(releaseA)
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	snap, err := store.Load(context.Background(), "shared")
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Equal(t, "v", snap.Data["from_a"])
	assert.Equal(t, "v", snap.Data["from_b"])

	_, live := e.Sessions().GetSession("shared")
	assert.False(t, live)
}

func TestEngine_CancelWorkflow(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	started := make(chan struct{})
	e.Registry().Register(newAgent("wait", func(ctx context.Context, _ *agent.Context) (any, error) {
		close(started)
		<-ctx.Done()
		return "stopped", nil
	}))
	def := Definition{ID: "long", Name: "Long", Type: TypeSequential, Agents: []Member{Ref("wait"), Ref(AgentPaperWriting)}}

	type outcome struct {
		res *Result
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := e.ExecuteWorkflow(context.Background(), def, nil, &ExecutionOptions{ExecutionID: "run-1"})
		done <- outcome{res, err}
	}()

	<-started
	active := e.GetActiveWorkflows()
	require.Len(t, active, 1)
	assert.Equal(t, "run-1", active[0].ExecutionID)
	assert.Equal(t, "long", active[0].WorkflowID)

	assert.False(t, e.CancelWorkflow("missing"))
	assert.True(t, e.CancelWorkflow("long"))

	out := <-done
	require.NoError(t, out.err)
	assert.True(t, out.res.Success)
	assert.Equal(t, []string{"wait"}, out.res.ExecutionPath)
	assert.Empty(t, e.GetActiveWorkflows())
}

func TestEngine_Timeout(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	e.Registry().Register(newAgent("wait", func(ctx context.Context, _ *agent.Context) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	def := Definition{ID: "slow", Name: "Slow", Type: TypeSequential, Agents: []Member{Ref("wait")}, Config: &Config{TimeoutMs: 20}}

	res, err := e.ExecuteWorkflow(context.Background(), def, nil, nil)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, res.Reason, "deadline exceeded")
}

func TestEngine_LoopCondition(t *testing.T) {
	e, _ := newTestEngine(t, nil, WithLoopCondition("refine", func(_ *agent.Context, i int) bool { return i == 2 }))
	def := Definition{ID: "refine", Name: "Refine", Type: TypeLoop, Agents: []Member{Ref(AgentPaperWriting)}, Config: &Config{MaxIterations: 5}}

	res, err := e.ExecuteWorkflow(context.Background(), def, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metrics.TotalIterations)
}

func TestShorter(t *testing.T) {
	assert.Equal(t, time.Second, shorter(0, time.Second))
	assert.Equal(t, time.Second, shorter(time.Second, 0))
	assert.Equal(t, time.Second, shorter(time.Minute, time.Second))
	assert.Equal(t, time.Duration(0), shorter(0, 0))
}

func TestEngine_ContextCarriesRunIdentity(t *testing.T) {
	e, _ := newTestEngine(t, nil)
	var runID, sessionID string
	e.Registry().Register(newAgent("probe", func(ctx context.Context, _ *agent.Context) (any, error) {
		runID, _ = ctxkeys.RunID(ctx)
		sessionID, _ = ctxkeys.SessionID(ctx)
		return nil, nil
	}))
	def := Definition{ID: "probe", Name: "Probe", Type: TypeSequential, Agents: []Member{Ref("probe")}}

	ctx := ctxkeys.WithRequestID(context.Background(), "req-9")
	_, err := e.ExecuteWorkflow(ctx, def, nil, &ExecutionOptions{ExecutionID: "run-7", SessionID: "s-7"})
	require.NoError(t, err)
	assert.Equal(t, "run-7", runID)
	assert.Equal(t, "s-7", sessionID)
}
