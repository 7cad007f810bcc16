package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/hitl"
	"github.com/BaSui01/stageflow/testutil/fixtures"
	"github.com/BaSui01/stageflow/testutil/mocks"
	"github.com/BaSui01/stageflow/types"
)

func TestSequential_AfterGateReviewsOwnOutput(t *testing.T) {
	var designRan bool
	h := mocks.NewMockHITL().WithResponses(types.HumanResponse{Approved: false})
	wf := NewSequential("wf", "Test", []agent.Agent{
		newAgent(AgentLiteratureSearch, nil),
		newAgent(AgentExperimentDesign, func(context.Context, *agent.Context) (any, error) {
			designRan = true
			return "design-v1", nil
		}),
		newAgent(AgentDataAnalysis, nil),
	}, Config{}, WithGates(hitl.NewDefaultGateRegistry()))

	res, err := wf.Execute(context.Background(), newContext(h, nil))
	require.NoError(t, err)
	assert.True(t, designRan)
	assert.False(t, res.Success)
	assert.Equal(t, ReasonHumanRejected, res.Reason)
	assert.Equal(t, []string{AgentLiteratureSearch, AgentExperimentDesign}, res.ExecutionPath)

	require.Len(t, h.Requests(), 1)
	req := h.Requests()[0]
	assert.Equal(t, AgentExperimentDesign, req.AgentID)
	assert.Equal(t, "design-v1", req.Content)
	assert.Equal(t, "Please review the proposed experiment design before proceeding to data analysis.", req.Summary)
	require.Len(t, res.Interventions, 1)
}

func TestSequential_AfterGateMergesModifications(t *testing.T) {
	h := mocks.NewMockHITL().WithResponses(types.HumanResponse{
		Approved:      true,
		Modifications: map[string]any{"title": "edited"},
	})
	var got any
	actx := newContext(h, nil)
	wf := NewSequential("wf", "Test", []agent.Agent{
		paperWriter(),
		newAgent("next", func(_ context.Context, mctx *agent.Context) (any, error) {
			got = mctx.Input()
			return "done", nil
		}),
	}, Config{}, WithGates(hitl.NewDefaultGateRegistry()))

	res, err := wf.Execute(context.Background(), actx)
	require.NoError(t, err)
	assert.True(t, res.Success)

	want := map[string]any{"title": "edited", "body": "text"}
	assert.Equal(t, want, got)
	stored, ok := actx.State.Get(types.KeyPaperDraft)
	require.True(t, ok)
	assert.Equal(t, want, stored)
	paper, _ := res.AgentResults.Get(AgentPaperWriting)
	assert.Equal(t, want, paper.Output)
	require.Len(t, h.Requests(), 1)
	assert.Equal(t, types.ApprovalModification, h.Requests()[0].Type)
}

func paperWriter() agent.Agent {
	cfg := fixtures.AgentConfig(AgentPaperWriting)
	cfg.OutputKey = types.KeyPaperDraft
	return agent.NewBaseAgent(cfg, func(context.Context, *agent.Context, string) (any, error) {
		return map[string]any{"title": "draft", "body": "text"}, nil
	})
}

func TestSequential_BeforeGateReviewsIncomingOutput(t *testing.T) {
	gates := hitl.NewGateRegistry([]hitl.GateConfig{
		{ID: "b", Trigger: hitl.TriggerBefore, Required: true, ApprovalType: hitl.GateProceed, Prompt: "go ahead?"},
	})
	var bRan bool
	h := mocks.NewMockHITL().WithResponses(types.HumanResponse{Approved: false})
	wf := NewSequential("wf", "Test", []agent.Agent{
		newAgent("a", nil),
		newAgent("b", func(context.Context, *agent.Context) (any, error) {
			bRan = true
			return "b-out", nil
		}),
	}, Config{}, WithGates(gates))

	res, err := wf.Execute(context.Background(), newContext(h, nil))
	require.NoError(t, err)
	assert.False(t, bRan)
	assert.False(t, res.Success)
	assert.Equal(t, []string{"a"}, res.ExecutionPath)

	require.Len(t, h.Requests(), 1)
	assert.Equal(t, "a-out", h.Requests()[0].Content)
	assert.Equal(t, "go ahead?", h.Requests()[0].Summary)
	assert.Equal(t, types.ApprovalProceed, h.Requests()[0].Type)
}

func TestSequential_DefinitionGateTakesRegistryTiming(t *testing.T) {
	h := mocks.NewMockHITL()
	wf := NewSequential("wf", "Test", echoAgents("a", AgentFormattingReview),
		Config{ApprovalGates: []string{AgentFormattingReview}},
		WithGates(hitl.NewGateRegistry(nil)))

	res, err := wf.Execute(context.Background(), newContext(h, nil))
	require.NoError(t, err)
	assert.True(t, res.Success)
	require.Len(t, h.Requests(), 1)
	// 注册表中没有该闸门时按执行前审批
	assert.Equal(t, "a-out", h.Requests()[0].Content)

	h = mocks.NewMockHITL()
	wf = NewSequential("wf", "Test", echoAgents("a", AgentFormattingReview),
		Config{ApprovalGates: []string{AgentFormattingReview}},
		WithGates(hitl.NewDefaultGateRegistry()))
	_, err = wf.Execute(context.Background(), newContext(h, nil))
	require.NoError(t, err)
	require.Len(t, h.Requests(), 1)
	assert.Equal(t, AgentFormattingReview+"-out", h.Requests()[0].Content)
}

func TestSequential_AfterGateSkippedOnFailure(t *testing.T) {
	h := mocks.NewMockHITL()
	wf := NewSequential("wf", "Test", []agent.Agent{
		newAgent(AgentExperimentDesign, func(context.Context, *agent.Context) (any, error) {
			return nil, assert.AnError
		}),
	}, Config{}, WithGates(hitl.NewDefaultGateRegistry()))

	res, err := wf.Execute(context.Background(), newContext(h, nil))
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Empty(t, h.Requests())
}
