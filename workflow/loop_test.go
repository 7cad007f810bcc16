package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/testutil/mocks"
	"github.com/BaSui01/stageflow/types"
)

func TestLoop_MaxIterations(t *testing.T) {
	calls := 0
	counting := func(id string) *agent.BaseAgent {
		return newAgent(id, func(context.Context, *agent.Context) (any, error) {
			calls++
			return id, nil
		})
	}
	wf := NewLoop("loop", "Loop", []agent.Agent{counting("draft"), counting("critique")}, Config{MaxIterations: 3}, nil)

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 6, calls)
	assert.Equal(t, 3, res.Metrics.TotalIterations)
	assert.Equal(t, []string{"iteration_0", "iteration_1", "iteration_2", MarkerMaxIterations}, res.ExecutionPath)
	assert.Equal(t, []string{
		"draft_iter1", "critique_iter1",
		"draft_iter2", "critique_iter2",
		"draft_iter3", "critique_iter3",
	}, resultKeys(res))
	assert.Equal(t, "critique", res.Output)
}

func TestLoop_IterationsProperty(t *testing.T) {
	properties := gopter.NewProperties(nil)
	properties.Property("runs members x iterations without a condition", prop.ForAll(
		func(maxIter, members int) bool {
			wf := NewLoop("loop", "Loop", echoAgents(memberIDs(members)...), Config{MaxIterations: maxIter}, nil)
			res, err := wf.Execute(context.Background(), newContext(nil, nil))
			if err != nil {
				return false
			}
			last := res.ExecutionPath[len(res.ExecutionPath)-1]
			return res.Metrics.TotalIterations == maxIter &&
				res.AgentResults.Len() == maxIter*members &&
				last == MarkerMaxIterations
		},
		gen.IntRange(1, 6),
		gen.IntRange(1, 4),
	))
	properties.TestingRun(t)
}

func TestLoop_DefaultMaxIterations(t *testing.T) {
	res, err := NewLoop("loop", "Loop", echoAgents("a"), Config{}, nil).Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxIterations, res.Metrics.TotalIterations)
}

func TestLoop_ConditionExit(t *testing.T) {
	var seen []int
	cond := func(_ *agent.Context, iteration int) bool {
		seen = append(seen, iteration)
		return iteration >= 1
	}
	wf := NewLoop("loop", "Loop", echoAgents("a", "b"), Config{MaxIterations: 3}, cond)

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Metrics.TotalIterations)
	assert.Equal(t, []string{"iteration_0", MarkerConditionExit}, res.ExecutionPath)
	assert.NotContains(t, res.ExecutionPath, MarkerMaxIterations)
	assert.Equal(t, []int{1}, seen)
}

func TestLoop_ConditionOnLastIterationIsNotMaxExit(t *testing.T) {
	wf := NewLoop("loop", "Loop", echoAgents("a"), Config{MaxIterations: 2}, func(_ *agent.Context, i int) bool { return i == 2 })
	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, []string{"iteration_0", "iteration_1", MarkerConditionExit}, res.ExecutionPath)
}

func TestLoop_UntilStateKey(t *testing.T) {
	iteration := 0
	refine := newAgent("refine", func(_ context.Context, actx *agent.Context) (any, error) {
		iteration = actx.Invocation.Iteration
		if iteration == 2 {
			actx.State.Set(types.KeyFinalDocument, "final")
		}
		return iteration, nil
	})
	wf := NewLoop("loop", "Loop", []agent.Agent{refine}, Config{MaxIterations: 5, UntilStateKey: types.KeyFinalDocument}, nil)

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.Equal(t, 2, res.Metrics.TotalIterations)
	assert.Equal(t, 2, res.Output)
}

func TestLoop_EscalateExit(t *testing.T) {
	wf := NewLoop("loop", "Loop", []agent.Agent{
		newAgent("a", func(_ context.Context, actx *agent.Context) (any, error) {
			if actx.Invocation.Iteration == 2 {
				actx.Escalate()
			}
			return "a", nil
		}),
		newAgent("b", nil),
	}, Config{MaxIterations: 5}, nil)

	res, err := wf.Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Metrics.TotalIterations)
	assert.Equal(t, []string{"iteration_0", "iteration_1", MarkerEscalateExit}, res.ExecutionPath)
	assert.Equal(t, []string{"a_iter1", "b_iter1", "a_iter2"}, resultKeys(res))
}

func TestLoop_ReviewRejected(t *testing.T) {
	reviewer := newAgent("review", nil, agent.WithReview(func(any, *agent.Context) bool { return true }))
	h := mocks.NewMockHITL().WithResponses(types.HumanResponse{Approved: true}, types.HumanResponse{Approved: false})
	wf := NewLoop("loop", "Loop", []agent.Agent{reviewer}, Config{MaxIterations: 5}, nil)

	res, err := wf.Execute(context.Background(), newContext(h, nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonHumanRejected, res.Reason)
	assert.Equal(t, 2, res.Metrics.TotalIterations)
	assert.Len(t, res.Interventions, 2)
	assert.Len(t, h.Requests(), 2)
}

func TestLoop_FailurePolicy(t *testing.T) {
	failing := newAgent("flaky", func(context.Context, *agent.Context) (any, error) { return nil, errors.New("timeout") })

	res, err := NewLoop("loop", "Loop", []agent.Agent{failing}, Config{MaxIterations: 3}, nil).Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.Metrics.TotalIterations)

	res, err = NewLoop("loop", "Loop", []agent.Agent{failing}, Config{MaxIterations: 3, ContinueOnError: true}, nil).Execute(context.Background(), newContext(nil, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 3, res.Metrics.FailedAgents)
}

func TestLoop_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	wf := NewLoop("loop", "Loop", []agent.Agent{newAgent("a", func(context.Context, *agent.Context) (any, error) {
		cancel()
		return "a", nil
	})}, Config{MaxIterations: 5}, nil)

	res, err := wf.Execute(ctx, newContext(nil, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Metrics.TotalIterations)
	assert.NotContains(t, res.ExecutionPath, MarkerMaxIterations)
}
