package workflow

import (
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/testutil/fixtures"
	"github.com/BaSui01/stageflow/types"
)

type stepFunc = fixtures.StepFunc

var (
	newAgent   = fixtures.NewAgent
	echoAgents = fixtures.EchoAgents
	memberIDs  = fixtures.MemberIDs
)

func newContext(h types.HITL, input any) *agent.Context {
	return &agent.Context{
		State:      persistence.NewSession("s1"),
		Invocation: agent.Invocation{InvocationID: "inv-1", Input: input},
		Logger:     zap.NewNop(),
		HITL:       h,
	}
}

func resultKeys(r *Result) []string { return r.AgentResults.Keys() }
