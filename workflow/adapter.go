package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/stageflow/agent"
)

// WorkflowAgent exposes a Workflow through the Agent contract so it can be
// nested as a member of another workflow.
type WorkflowAgent struct {
	wf Workflow
}

var (
	_ agent.Agent     = (*WorkflowAgent)(nil)
	_ agent.Localized = (*WorkflowAgent)(nil)
)

// NewWorkflowAgent wraps wf.
func NewWorkflowAgent(wf Workflow) *WorkflowAgent {
	return &WorkflowAgent{wf: wf}
}

// Workflow returns the wrapped workflow.
func (a *WorkflowAgent) Workflow() Workflow { return a.wf }

func (a *WorkflowAgent) ID() string                 { return a.wf.ID() }
func (a *WorkflowAgent) Name() string               { return a.wf.Name() }
func (a *WorkflowAgent) DisplayName(string) string  { return a.wf.Name() }
func (a *WorkflowAgent) Description() string        { return "Nested workflow: " + a.wf.Name() }
func (a *WorkflowAgent) Instruction() string        { return "" }
func (a *WorkflowAgent) OutputKey() string          { return "" }
func (a *WorkflowAgent) CanHandle(task string) bool { return true }

// Execute runs the nested workflow with the caller's input and repackages
// its result.
func (a *WorkflowAgent) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	start := time.Now()
	res, err := a.wf.Execute(ctx, actx)
	if err != nil {
		failed := agent.FailedResult(fmt.Sprintf("Workflow %s failed: %v", a.wf.Name(), err), err, time.Since(start))
		if res != nil {
			failed.Interventions = res.Interventions
		}
		return failed
	}

	out := &agent.Result{
		Success: res.Success,
		Output:  res.Output,
		Summary: fmt.Sprintf("Workflow %s completed", a.wf.Name()),
		Metrics: agent.ExecutionMetrics{
			Duration:   res.Metrics.TotalDuration,
			Iterations: res.Metrics.TotalIterations,
		},
		Interventions: res.Interventions,
	}
	if !res.Success {
		out.Error = &agent.ResultError{Name: "WorkflowError", Message: res.Reason}
	}
	return out
}
