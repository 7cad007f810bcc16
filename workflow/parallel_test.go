package workflow

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stageflow/agent"
)

func TestParallel_GatherWithoutMerger(t *testing.T) {
	ids := []string{"a", "b", "c"}
	wf := NewParallel("par", "Par", echoAgents(ids...), Config{ContinueOnError: true}, nil)

	res, err := wf.Execute(context.Background(), newContext(nil, "input"))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, map[string]any{"a": "a-out", "b": "b-out", "c": "c-out"}, res.Output)
	assert.Equal(t, ids, resultKeys(res))
	assert.Equal(t, []string{MarkerParallelStart, "branch:a", "branch:b", "branch:c", MarkerParallelComplete}, res.ExecutionPath)
}

func TestParallel_AllBranchesRecordedDespiteFailure(t *testing.T) {
	wf := NewParallel("par", "Par", []agent.Agent{
		newAgent("a", nil),
		newAgent("b", func(context.Context, *agent.Context) (any, error) { return nil, errors.New("branch b broke") }),
		newAgent("c", nil),
	}, Config{}, newAgent("merge", nil))

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "branch b broke", res.Reason)
	assert.Equal(t, []string{"a", "b", "c"}, resultKeys(res))
	assert.NotContains(t, res.ExecutionPath, "merge:merge")
	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Len(t, out, 3)
}

func TestParallel_ReportsEveryFailedBranch(t *testing.T) {
	wf := NewParallel("par", "Par", []agent.Agent{
		newAgent("a", func(context.Context, *agent.Context) (any, error) { return nil, errors.New("branch a broke") }),
		newAgent("b", nil),
		newAgent("c", func(context.Context, *agent.Context) (any, error) { return nil, errors.New("branch c broke") }),
	}, Config{}, nil)

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "branch a broke; branch c broke", res.Reason)
	assert.Equal(t, 2, res.Metrics.FailedAgents)
}

func TestParallel_Merger(t *testing.T) {
	var mergerInput any
	merger := newAgent("synth", func(_ context.Context, actx *agent.Context) (any, error) {
		mergerInput = actx.Input()
		return "merged", nil
	})
	wf := NewParallel("par", "Par", echoAgents("a", "b"), Config{}, merger)

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, "merged", res.Output)
	assert.Equal(t, map[string]any{"a": "a-out", "b": "b-out"}, mergerInput)
	assert.Equal(t, "merge:synth", res.ExecutionPath[len(res.ExecutionPath)-1])
	assert.Equal(t, []string{"a", "b", "synth"}, resultKeys(res))
}

func TestParallel_BranchIDs(t *testing.T) {
	var mu sync.Mutex
	branches := map[string]string{}
	record := func(id string) *agent.BaseAgent {
		return newAgent(id, func(_ context.Context, actx *agent.Context) (any, error) {
			mu.Lock()
			branches[id] = actx.Invocation.Branch
			mu.Unlock()
			return nil, nil
		})
	}
	wf := NewParallel("par", "Par", []agent.Agent{record("a"), record("b")}, Config{}, nil)

	actx := newContext(nil, nil)
	_, err := wf.Execute(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "main.a", "b": "main.b"}, branches)

	actx.Invocation.Branch = "outer"
	_, err = wf.Execute(context.Background(), actx)
	require.NoError(t, err)
	assert.Equal(t, "outer.a", branches["a"])
}

func TestParallel_RunsConcurrently(t *testing.T) {
	var running, peak int32
	slow := func(id string) *agent.BaseAgent {
		return newAgent(id, func(context.Context, *agent.Context) (any, error) {
			n := atomic.AddInt32(&running, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
					break
				}
			}
			time.Sleep(20 * time.Millisecond)
			atomic.AddInt32(&running, -1)
			return id, nil
		})
	}
	members := []agent.Agent{slow("a"), slow("b"), slow("c"), slow("d")}

	_, err := NewParallel("par", "Par", members, Config{MaxConcurrency: 2}, nil).Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.LessOrEqual(t, atomic.LoadInt32(&peak), int32(2))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&peak), int32(1))
}

func TestParallel_SharedStateLastWriteWins(t *testing.T) {
	writer := func(id string) *agent.BaseAgent {
		return newAgent(id, func(_ context.Context, actx *agent.Context) (any, error) {
			actx.State.Set("shared", id)
			return nil, nil
		})
	}
	actx := newContext(nil, nil)
	_, err := NewParallel("par", "Par", []agent.Agent{writer("a"), writer("b")}, Config{}, nil).Execute(context.Background(), actx)
	require.NoError(t, err)

	v, ok := actx.State.Get("shared")
	require.True(t, ok)
	assert.Contains(t, []any{"a", "b"}, v)
}
