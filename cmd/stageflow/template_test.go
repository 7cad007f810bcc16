package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/types"
	"github.com/BaSui01/stageflow/workflow"
)

func TestTemplateFactory_InterpolatesAndAdvancesStage(t *testing.T) {
	var cfg agent.Config
	for _, c := range researchAgentConfigs() {
		if c.ID == workflow.AgentExperimentDesign {
			cfg = c
		}
	}
	a, err := templateFactory(nil)(cfg)
	require.NoError(t, err)

	session := persistence.NewSession("s1")
	session.SetResearchTopic("sleep")
	session.Set(types.KeyResearchIdea, "sleep and memory")
	session.Set(types.KeyLiteratureResults, "12 papers")

	res := a.Execute(context.Background(), &agent.Context{
		State:      session,
		Invocation: agent.Invocation{Input: "go"},
	})
	require.True(t, res.Success, res.ErrorMessage())

	out, ok := res.Output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Design a study for sleep and memory grounded in 12 papers", out["instruction"])
	assert.Equal(t, "go", out["input"])
	assert.Equal(t, "sleep", out["topic"])
	assert.Equal(t, string(types.StageExperimentDesign), out["stage"])

	assert.Equal(t, types.StageExperimentDesign, session.CurrentStage())
	stored, ok := session.Get(types.KeyExperimentDesign)
	require.True(t, ok)
	assert.Equal(t, res.Output, stored)
}

func TestTemplateFactory_UnknownStageKeepsSession(t *testing.T) {
	a, err := templateFactory(nil)(agent.Config{ID: "reviewer", Name: "Reviewer", Instruction: "check"})
	require.NoError(t, err)

	session := persistence.NewSession("s1")
	session.SetCurrentStage(types.StageDataAnalysis)

	res := a.Execute(context.Background(), &agent.Context{State: session})
	require.True(t, res.Success)
	assert.Equal(t, types.StageDataAnalysis, session.CurrentStage())
	assert.Equal(t, "Reviewer drafted its output", res.Summary)
}

func TestTemplateFactory_RejectsInvalidID(t *testing.T) {
	_, err := templateFactory(nil)(agent.Config{ID: "Not Valid"})
	assert.Error(t, err)
}

func TestTemplate_CancelledContext(t *testing.T) {
	a, err := templateFactory(nil)(agent.Config{ID: "idle", Name: "Idle"})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := a.Execute(ctx, &agent.Context{State: persistence.NewSession("s")})
	assert.False(t, res.Success)
}

func TestResearchAgentConfigs_CoverBuiltinWorkflow(t *testing.T) {
	ids := make(map[string]bool)
	for _, c := range researchAgentConfigs() {
		assert.True(t, agent.ValidID(c.ID), c.ID)
		assert.NotEmpty(t, c.OutputKey, c.ID)
		ids[c.ID] = true
	}
	for _, m := range workflow.DefaultResearchWorkflow().Agents {
		assert.True(t, ids[m.ID], "missing agent %s", m.ID)
	}
}
