package workflow

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/types"
)

var (
	// ErrInvalidWorkflow 工作流结构校验失败
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrNoHITL is returned when a run reaches an approval without a HITL.
	ErrNoHITL = errors.New("approval required but no HITL configured")
)

// Workflow is an executable composition of agents.
type Workflow interface {
	ID() string
	Name() string
	Type() Type
	Members() []agent.Agent
	Validate() ValidationResult
	// Execute runs the workflow with actx.Invocation.Input as input. A
	// non-nil error means the run was aborted by a raised failure; controlled
	// failures are reported through Result.Success.
	Execute(ctx context.Context, actx *agent.Context) (*Result, error)
}

// Gates decides on approvals beyond the definition's ApprovalGates and
// shapes the requests sent to the human.
type Gates interface {
	IsApprovalRequiredIn(workflowID, agentID string, actx *agent.Context) bool
	// ReviewsAfter reports whether the gate for agentID reviews the agent's
	// own output instead of the output it is about to receive.
	ReviewsAfter(agentID string) bool
	Decorate(req types.ApprovalRequest) types.ApprovalRequest
}

// Option configures a strategy.
type Option func(*base)

// WithGates adds a gate registry to the strategy.
func WithGates(g Gates) Option {
	return func(b *base) { b.gates = g }
}

// WithLogger sets the strategy logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *base) {
		if l != nil {
			b.logger = l
		}
	}
}

// base holds what every strategy shares.
type base struct {
	id      string
	name    string
	typ     Type
	members []agent.Agent
	config  Config
	gates   Gates
	logger  *zap.Logger
}

func newBase(id, name string, typ Type, members []agent.Agent, cfg Config, opts []Option) base {
	b := base{
		id:      id,
		name:    name,
		typ:     typ,
		members: members,
		config:  cfg,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(&b)
	}
	b.logger = b.logger.With(zap.String("workflow_id", id), zap.String("workflow_type", string(typ)))
	return b
}

func (b *base) ID() string             { return b.id }
func (b *base) Name() string           { return b.name }
func (b *base) Type() Type             { return b.typ }
func (b *base) Members() []agent.Agent { return append([]agent.Agent(nil), b.members...) }

// Validate checks the member list. Unknown gate ids are warnings only.
func (b *base) Validate() ValidationResult {
	v := ValidationResult{Errors: []string{}, Warnings: []string{}}
	if len(b.members) == 0 {
		v.Errors = append(v.Errors, "Workflow must have at least one agent")
	}
	seen := make(map[string]bool, len(b.members))
	for _, m := range b.members {
		if seen[m.ID()] {
			v.Errors = append(v.Errors, "Duplicate agent ID: "+m.ID())
		}
		seen[m.ID()] = true
	}
	for _, g := range b.config.ApprovalGates {
		if !seen[g] {
			v.Warnings = append(v.Warnings, "Approval gate references unknown agent: "+g)
		}
	}
	v.Valid = len(v.Errors) == 0
	return v
}

func (b *base) findMember(id string) agent.Agent {
	for _, m := range b.members {
		if m.ID() == id {
			return m
		}
	}
	return nil
}

// gateTiming 判断成员是否需要审批以及审批时机。注册表中的闸门决定时机，
// 仅出现在定义 ApprovalGates 中的成员在执行前审批
func (b *base) gateTiming(agentID string, actx *agent.Context) (before, after bool) {
	required := b.config.HasGate(agentID) ||
		(b.gates != nil && b.gates.IsApprovalRequiredIn(b.id, agentID, actx))
	if !required {
		return false, false
	}
	if b.gates != nil && b.gates.ReviewsAfter(agentID) {
		return false, true
	}
	return true, false
}

func (b *base) memberContext(actx *agent.Context, input any) *agent.Context {
	return actx.Fork(b.id, input)
}

// run is the per-execution accumulator. Strategies are reusable; every
// Execute call owns a fresh run.
type run struct {
	*base
	results       *AgentResults
	path          []string
	interventions []InterventionRecord
}

func (b *base) newRun() *run {
	return &run{base: b, results: NewAgentResults(), path: []string{}, interventions: []InterventionRecord{}}
}

// invoke executes a member, turning panics and nil results into failures.
// The returned error is non-nil only for a panic.
func (r *run) invoke(ctx context.Context, m agent.Agent, mctx *agent.Context) (res *agent.Result, err error) {
	start := time.Now()
	defer func() {
		if p := recover(); p != nil {
			if e, ok := p.(error); ok {
				err = fmt.Errorf("agent %s panicked: %w", m.ID(), e)
			} else {
				err = fmt.Errorf("agent %s panicked: %v", m.ID(), p)
			}
			res = agent.FailedResult("Execution failed: "+err.Error(), err, time.Since(start))
			res.Error.Stack = string(debug.Stack())
			r.logger.Error("agent panicked", zap.String("agent_id", m.ID()), zap.Error(err))
		}
	}()

	r.logger.Info("executing agent", zap.String("agent_id", m.ID()))
	res = m.Execute(ctx, mctx)
	if res == nil {
		e := fmt.Errorf("agent %s returned no result", m.ID())
		res = agent.FailedResult("Execution failed: "+e.Error(), e, time.Since(start))
	}
	return res, nil
}

// absorb records the human decisions a member took internally.
func (r *run) absorb(res *agent.Result) {
	if res != nil {
		r.interventions = append(r.interventions, res.Interventions...)
	}
}

// publish writes the member's output into session state when it declares
// an output key.
func (r *run) publish(actx *agent.Context, m agent.Agent, res *agent.Result) {
	if key := m.OutputKey(); key != "" && actx.State != nil {
		actx.State.Set(key, res.Output)
	}
}

func (r *run) requestApproval(ctx context.Context, actx *agent.Context, m agent.Agent, output any) (types.HumanResponse, error) {
	if actx.HITL == nil {
		return types.HumanResponse{}, fmt.Errorf("%w: %s", ErrNoHITL, m.ID())
	}
	var stage types.Stage
	if actx.State != nil {
		stage = actx.State.CurrentStage()
	}
	req := types.ApprovalRequest{
		AgentID: m.ID(),
		Stage:   stage,
		Type:    types.ApprovalOutput,
		Summary: "Review output from " + agent.DisplayName(m, "en"),
		Content: output,
	}
	if r.gates != nil {
		req = r.gates.Decorate(req)
	}

	resp, err := actx.HITL.RequestApproval(ctx, req)
	if err != nil {
		return types.HumanResponse{}, fmt.Errorf("approval for %s: %w", m.ID(), err)
	}
	r.interventions = append(r.interventions, InterventionRecord{
		AgentID:   m.ID(),
		Timestamp: time.Now(),
		Reason:    "Approval gate at " + m.ID(),
		Response:  resp,
	})
	r.logger.Info("approval resolved", zap.String("agent_id", m.ID()), zap.Bool("approved", resp.Approved))
	return resp, nil
}

// result assembles the workflow result. Without an explicit output the
// last successful member's output is used.
func (r *run) result(success bool, reason string, output any, explicit bool, iterations int) *Result {
	metrics := Metrics{
		AgentCount:         r.results.Len(),
		HumanInterventions: len(r.interventions),
		TotalIterations:    iterations,
	}
	var lastOK any
	r.results.Each(func(_ string, res *agent.Result) {
		metrics.TotalDuration += res.Metrics.Duration
		if res.Success {
			metrics.SuccessfulAgents++
			lastOK = res.Output
		} else {
			metrics.FailedAgents++
		}
	})
	if !explicit {
		output = lastOK
	}
	return &Result{
		Success:       success,
		Output:        output,
		Reason:        reason,
		AgentResults:  r.results,
		ExecutionPath: r.path,
		Metrics:       metrics,
		Interventions: r.interventions,
	}
}

// mergeModifications overlays mods on output. Non-map outputs are replaced.
func mergeModifications(output any, mods map[string]any) any {
	merged := make(map[string]any, len(mods))
	if m, ok := output.(map[string]any); ok {
		maps.Copy(merged, m)
	}
	maps.Copy(merged, mods)
	return merged
}
