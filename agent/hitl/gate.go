package hitl

import (
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/types"
)

// Trigger 审批闸门触发时机
type Trigger string

const (
	TriggerBefore Trigger = "before"
	TriggerAfter  Trigger = "after"
)

// GateType 闸门审批类型
type GateType string

const (
	GateProceed      GateType = "proceed"
	GateReviewOutput GateType = "review_output"
	GateEditOutput   GateType = "edit_output"
)

// GateConfig configures the checkpoint for one agent.
type GateConfig struct {
	// ID is usually the gated agent's id.
	ID       string  `json:"id" yaml:"id"`
	Name     string  `json:"name" yaml:"name"`
	Trigger  Trigger `json:"trigger" yaml:"trigger"`
	Required bool    `json:"required" yaml:"required"`
	// Condition, when set, replaces Required.
	Condition    func(actx *agent.Context) bool `json:"-" yaml:"-"`
	ApprovalType GateType                       `json:"approvalType" yaml:"approvalType"`
	Prompt       string                         `json:"prompt,omitempty" yaml:"prompt,omitempty"`
	// WorkflowIDs scopes the gate; empty means every workflow.
	WorkflowIDs      []string              `json:"workflowIds,omitempty" yaml:"workflowIds,omitempty"`
	AutoApproveAfter time.Duration         `json:"autoApproveAfter,omitempty" yaml:"autoApproveAfter,omitempty"`
	TimeoutBehavior  types.TimeoutBehavior `json:"timeoutBehavior,omitempty" yaml:"timeoutBehavior,omitempty"`
}

// DefaultResearchGates returns the checkpoints of the default research workflow.
func DefaultResearchGates() []GateConfig {
	return []GateConfig{
		{
			ID:           "experiment-design",
			Name:         "Experiment Design Review",
			Trigger:      TriggerAfter,
			Required:     true,
			ApprovalType: GateReviewOutput,
			Prompt:       "Please review the proposed experiment design before proceeding to data analysis.",
		},
		{
			ID:           "paper-writing",
			Name:         "Paper Draft Review",
			Trigger:      TriggerAfter,
			Required:     true,
			ApprovalType: GateEditOutput,
			Prompt:       "Please review and optionally edit the paper draft before final formatting.",
		},
		{
			ID:           "formatting-review",
			Name:         "Final Submission Review",
			Trigger:      TriggerAfter,
			Required:     true,
			ApprovalType: GateReviewOutput,
			Prompt:       "Please review the final formatted document before completion.",
		},
	}
}

// GateRegistry is a lookup from agent id to gate configuration.
type GateRegistry struct {
	mu    sync.RWMutex
	gates map[string]GateConfig
	order []string
}

// NewGateRegistry creates a registry holding gates.
func NewGateRegistry(gates []GateConfig) *GateRegistry {
	r := &GateRegistry{gates: make(map[string]GateConfig)}
	for _, g := range gates {
		r.Register(g)
	}
	return r
}

// NewDefaultGateRegistry creates a registry seeded with DefaultResearchGates.
func NewDefaultGateRegistry() *GateRegistry {
	return NewGateRegistry(DefaultResearchGates())
}

// Register adds or replaces a gate.
func (r *GateRegistry) Register(g GateConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gates[g.ID]; !ok {
		r.order = append(r.order, g.ID)
	}
	r.gates[g.ID] = g
}

// Unregister removes a gate and reports whether it existed.
func (r *GateRegistry) Unregister(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.gates[id]; !ok {
		return false
	}
	delete(r.gates, id)
	for i, gid := range r.order {
		if gid == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	return true
}

// IsApprovalRequired evaluates the gate for agentID. Unknown agents are not gated.
func (r *GateRegistry) IsApprovalRequired(agentID string, actx *agent.Context) bool {
	g, ok := r.Get(agentID)
	if !ok {
		return false
	}
	if g.Condition != nil {
		return g.Condition(actx)
	}
	return g.Required
}

func (r *GateRegistry) Get(id string) (GateConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	g, ok := r.gates[id]
	return g, ok
}

// All returns every gate in registration order.
func (r *GateRegistry) All() []GateConfig {
	return r.filter(func(GateConfig) bool { return true })
}

// IsApprovalRequiredIn is IsApprovalRequired limited to gates scoped to workflowID.
func (r *GateRegistry) IsApprovalRequiredIn(workflowID, agentID string, actx *agent.Context) bool {
	g, ok := r.Get(agentID)
	if !ok || !g.appliesTo(workflowID) {
		return false
	}
	return r.IsApprovalRequired(agentID, actx)
}

// ReviewsAfter reports whether the gate for agentID fires after the agent
// has produced its output.
func (r *GateRegistry) ReviewsAfter(agentID string) bool {
	g, ok := r.Get(agentID)
	return ok && g.Trigger == TriggerAfter
}

func (g GateConfig) appliesTo(workflowID string) bool {
	if len(g.WorkflowIDs) == 0 {
		return true
	}
	for _, id := range g.WorkflowIDs {
		if id == workflowID {
			return true
		}
	}
	return false
}

// ForWorkflow returns the gates that apply to workflowID.
func (r *GateRegistry) ForWorkflow(workflowID string) []GateConfig {
	return r.filter(func(g GateConfig) bool { return g.appliesTo(workflowID) })
}

// ByTrigger returns the gates firing at t.
func (r *GateRegistry) ByTrigger(t Trigger) []GateConfig {
	return r.filter(func(g GateConfig) bool { return g.Trigger == t })
}

func (r *GateRegistry) filter(keep func(GateConfig) bool) []GateConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]GateConfig, 0, len(r.order))
	for _, id := range r.order {
		if g := r.gates[id]; keep(g) {
			out = append(out, g)
		}
	}
	return out
}

// Update applies fn to the stored gate. The gate id cannot change.
func (r *GateRegistry) Update(id string, fn func(g *GateConfig)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[id]
	if !ok {
		return false
	}
	fn(&g)
	g.ID = id
	r.gates[id] = g
	return true
}

// Prompt returns the text shown to the reviewer for gate at stage.
func Prompt(g GateConfig, stage types.Stage) string {
	if g.Prompt != "" {
		return g.Prompt
	}
	switch g.ApprovalType {
	case GateProceed:
		return fmt.Sprintf("Ready to proceed to the next stage after %s?", stage)
	case GateReviewOutput:
		return fmt.Sprintf("Please review the output from %s.", stage)
	case GateEditOutput:
		return fmt.Sprintf("Please review and edit the output from %s if needed.", stage)
	default:
		return fmt.Sprintf("Approval required for %s.", stage)
	}
}

// Decorate fills req from the gate registered for req.AgentID: the gate
// prompt becomes the summary, the approval type follows the gate flavor and
// AutoApproveAfter becomes the request timeout. Requests for ungated agents
// are returned unchanged.
func (r *GateRegistry) Decorate(req types.ApprovalRequest) types.ApprovalRequest {
	g, ok := r.Get(req.AgentID)
	if !ok {
		return req
	}
	req.Summary = Prompt(g, req.Stage)
	switch g.ApprovalType {
	case GateProceed:
		req.Type = types.ApprovalProceed
	case GateEditOutput:
		req.Type = types.ApprovalModification
	case GateReviewOutput:
		req.Type = types.ApprovalOutput
	}
	if g.AutoApproveAfter > 0 {
		req.Timeout = g.AutoApproveAfter
		req.TimeoutBehavior = g.TimeoutBehavior
		if req.TimeoutBehavior == "" {
			req.TimeoutBehavior = types.TimeoutApprove
		}
	}
	return req
}
