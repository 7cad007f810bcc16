package agent

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/types"
)

var (
	// ErrAgentNotFound 注册表中找不到 Agent
	ErrAgentNotFound = errors.New("agent not found")

	// ErrNoFactory 没有为该 ID 注册工厂
	ErrNoFactory = errors.New("no agent factory registered")
)

// Agent is a unit of pipeline work.
type Agent interface {
	ID() string
	Name() string
	Description() string
	Instruction() string
	// OutputKey is the session key the agent's output is published under,
	// or "" when the output is not published.
	OutputKey() string
	// Execute never panics and never returns nil; failures are reported
	// through Result.Success and Result.Error.
	Execute(ctx context.Context, actx *Context) *Result
	CanHandle(task string) bool
}

// Localized is implemented by agents with per-language display names.
type Localized interface {
	DisplayName(lang string) string
}

// DisplayName returns a's display name in lang, falling back to Name.
func DisplayName(a Agent, lang string) string {
	if l, ok := a.(Localized); ok {
		if name := l.DisplayName(lang); name != "" {
			return name
		}
	}
	return a.Name()
}

// Actions are control signals an agent raises for the enclosing workflow.
type Actions struct {
	Escalate            bool   `json:"escalate"`
	TransferTo          string `json:"transferTo,omitempty"`
	RequestIntervention bool   `json:"requestIntervention"`
	InterventionReason  string `json:"interventionReason,omitempty"`
}

// Invocation is the per-call record of one agent execution.
type Invocation struct {
	InvocationID  string        `json:"invocationId"`
	ParentAgentID string        `json:"parentAgentId,omitempty"`
	Branch        string        `json:"branch,omitempty"`
	Input         any           `json:"input,omitempty"`
	Timeout       time.Duration `json:"timeout,omitempty"`
	Iteration     int           `json:"iteration,omitempty"`
	Actions       Actions       `json:"actions"`
}

// Context carries everything an agent may touch during Execute. State,
// Logger and HITL are shared by every agent of a run; Invocation is owned
// by the callee.
type Context struct {
	State      *persistence.Session
	Invocation Invocation
	Logger     *zap.Logger
	HITL       types.HITL
}

// Fork returns a context sharing state, logger and HITL with c, carrying a
// copy of c's invocation with the given parent and input and cleared actions.
func (c *Context) Fork(parentID string, input any) *Context {
	inv := c.Invocation
	inv.ParentAgentID = parentID
	inv.Input = input
	inv.Actions = Actions{}
	return &Context{
		State:      c.State,
		Invocation: inv,
		Logger:     c.Logger,
		HITL:       c.HITL,
	}
}

// Input returns the invocation input.
func (c *Context) Input() any { return c.Invocation.Input }

// Escalate asks the enclosing workflow to stop early.
func (c *Context) Escalate() { c.Invocation.Actions.Escalate = true }

// TransferTo asks the enclosing workflow to run agentID next.
func (c *Context) TransferTo(agentID string) { c.Invocation.Actions.TransferTo = agentID }

// RequestIntervention flags that a human should look at this step.
func (c *Context) RequestIntervention(reason string) {
	c.Invocation.Actions.RequestIntervention = true
	c.Invocation.Actions.InterventionReason = reason
}

// Log returns the context logger, never nil.
func (c *Context) Log() *zap.Logger {
	if c == nil || c.Logger == nil {
		return zap.NewNop()
	}
	return c.Logger
}

// TokenUsage counts model tokens consumed by an execution.
type TokenUsage struct {
	Input  int `json:"input"`
	Output int `json:"output"`
}

// ExecutionMetrics 执行指标
type ExecutionMetrics struct {
	Duration   time.Duration `json:"duration"`
	TokensUsed *TokenUsage   `json:"tokensUsed,omitempty"`
	ToolCalls  int           `json:"toolCalls"`
	Iterations int           `json:"iterations,omitempty"`
}

// ResultError is the structured form of a failure.
type ResultError struct {
	Name    string `json:"name"`
	Message string `json:"message"`
	Stack   string `json:"stack,omitempty"`
	Code    string `json:"code,omitempty"`
}

// NewResultError describes err. Name is the dynamic type of the outermost
// error; Code is filled from a *types.Error in the chain.
func NewResultError(err error) *ResultError {
	if err == nil {
		return nil
	}
	re := &ResultError{
		Name:    errorName(err),
		Message: err.Error(),
	}
	if code := types.GetErrorCode(err); code != "" {
		re.Code = string(code)
	}
	return re
}

func errorName(err error) string {
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return "Error"
	}
	return t.Name()
}

// Result is the outcome of Agent.Execute.
type Result struct {
	Success        bool             `json:"success"`
	Output         any              `json:"output"`
	Summary        string           `json:"summary"`
	Error          *ResultError     `json:"error,omitempty"`
	Metrics        ExecutionMetrics `json:"metrics"`
	NextAgent      string           `json:"nextAgent,omitempty"`
	RequiresReview bool             `json:"requiresReview"`
	// Interventions carries human decisions taken inside the agent, e.g. by
	// the gates of a nested workflow.
	Interventions []types.InterventionRecord `json:"interventions,omitempty"`
}

// ErrorMessage returns the failure message, or "" on success.
func (r *Result) ErrorMessage() string {
	if r == nil || r.Error == nil {
		return ""
	}
	return r.Error.Message
}

// FailedResult builds a failed result for err with the given elapsed time.
func FailedResult(summary string, err error, elapsed time.Duration) *Result {
	return &Result{
		Success: false,
		Summary: summary,
		Error:   NewResultError(err),
		Metrics: ExecutionMetrics{Duration: elapsed},
	}
}

// canHandle is the shared keyword heuristic behind CanHandle: any
// whitespace-separated token of task found inside description.
func canHandle(description, task string) bool {
	desc := strings.ToLower(description)
	for _, kw := range strings.Fields(strings.ToLower(task)) {
		if strings.Contains(desc, kw) {
			return true
		}
	}
	return false
}

// CanHandle applies the keyword heuristic to any agent.
func CanHandle(a Agent, task string) bool {
	return canHandle(a.Description(), task)
}

func panicError(id string, r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("agent %s panicked: %w", id, err)
	}
	return fmt.Errorf("agent %s panicked: %v", id, r)
}
