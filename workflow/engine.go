package workflow

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/internal/ctxkeys"
	"github.com/BaSui01/stageflow/types"
)

// ExecutionOptions tune one ExecuteWorkflow call.
type ExecutionOptions struct {
	// SessionID resumes the persisted session with this id; empty starts a
	// new session.
	SessionID string
	// ExecutionID names the run; empty generates one.
	ExecutionID string
	// Timeout bounds the run together with the definition's timeout; the
	// shorter one wins.
	Timeout time.Duration
	// ResearchTopic, when set, is stored on the session before the run.
	ResearchTopic string
}

// RunInfo describes an active run.
type RunInfo struct {
	ExecutionID  string    `json:"executionId"`
	WorkflowID   string    `json:"workflowId"`
	WorkflowName string    `json:"workflowName"`
	WorkflowType Type      `json:"workflowType"`
	SessionID    string    `json:"sessionId"`
	StartedAt    time.Time `json:"startedAt"`
}

type activeRun struct {
	info   RunInfo
	cancel context.CancelFunc
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithGateRegistry consults gates on every sequential member and decorates
// approval requests.
func WithGateRegistry(g Gates) EngineOption {
	return func(e *Engine) { e.gates = g }
}

// WithRecorder reports run metrics to rec.
func WithRecorder(rec Recorder) EngineOption {
	return func(e *Engine) { e.recorder = rec }
}

// WithHistory records every run in store.
func WithHistory(store *ExecutionHistoryStore) EngineOption {
	return func(e *Engine) { e.history = store }
}

// WithLoopCondition installs cond on loop workflows with id workflowID.
func WithLoopCondition(workflowID string, cond Condition) EngineOption {
	return func(e *Engine) { e.conditions[workflowID] = cond }
}

// Engine builds workflows from definitions and runs them against sessions.
type Engine struct {
	sessions   *persistence.Manager
	registry   *agent.Registry
	hitl       types.HITL
	gates      Gates
	recorder   Recorder
	history    *ExecutionHistoryStore
	conditions map[string]Condition
	inst       *instruments
	logger     *zap.Logger

	mu     sync.RWMutex
	active map[string]*activeRun
}

// NewEngine creates an engine. hitl may be nil when no definition uses
// approvals.
func NewEngine(sessions *persistence.Manager, registry *agent.Registry, hitl types.HITL, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sessions == nil {
		sessions = persistence.NewManager(nil, logger)
	}
	if registry == nil {
		registry = agent.NewRegistry(logger)
	}
	e := &Engine{
		sessions:   sessions,
		registry:   registry,
		hitl:       hitl,
		history:    NewExecutionHistoryStore(100),
		conditions: make(map[string]Condition),
		inst:       newInstruments(),
		logger:     logger.With(zap.String("component", "workflow_engine")),
		active:     make(map[string]*activeRun),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Sessions returns the engine's session manager.
func (e *Engine) Sessions() *persistence.Manager { return e.sessions }

// Registry returns the agent registry definitions are resolved against.
func (e *Engine) Registry() *agent.Registry { return e.registry }

// History returns the run history store.
func (e *Engine) History() *ExecutionHistoryStore { return e.history }

// BuildWorkflow resolves def into a runnable workflow. Unknown agent ids,
// including the merger, fail with agent.ErrAgentNotFound.
func (e *Engine) BuildWorkflow(def Definition) (Workflow, error) {
	members, err := e.resolveMembers(def)
	if err != nil {
		return nil, err
	}

	cfg := def.EffectiveConfig()
	opts := []Option{WithLogger(e.logger)}
	if e.gates != nil {
		opts = append(opts, WithGates(e.gates))
	}

	switch def.Type {
	case TypeSequential:
		return NewSequential(def.ID, def.Name, members, cfg, opts...), nil
	case TypeHybrid:
		return NewHybrid(def.ID, def.Name, members, cfg, opts...), nil
	case TypeLoop:
		return NewLoop(def.ID, def.Name, members, cfg, e.conditions[def.ID], opts...), nil
	case TypeParallel:
		var merger agent.Agent
		if def.MergerAgentID != "" {
			merger, err = e.registry.Lookup(def.MergerAgentID)
			if err != nil {
				return nil, fmt.Errorf("workflow %s merger: %w", def.ID, err)
			}
		}
		return NewParallel(def.ID, def.Name, members, cfg, merger, opts...), nil
	default:
		return nil, fmt.Errorf("%w: unknown workflow type %q", ErrInvalidWorkflow, def.Type)
	}
}

func (e *Engine) resolveMembers(def Definition) ([]agent.Agent, error) {
	members := make([]agent.Agent, 0, len(def.Agents))
	for i, m := range def.Agents {
		switch {
		case m.Workflow != nil:
			nested, err := e.BuildWorkflow(*m.Workflow)
			if err != nil {
				return nil, err
			}
			members = append(members, NewWorkflowAgent(nested))
		case m.ID != "":
			a, err := e.registry.Lookup(m.ID)
			if err != nil {
				return nil, fmt.Errorf("workflow %s: %w", def.ID, err)
			}
			members = append(members, a)
		default:
			return nil, fmt.Errorf("%w: workflow %s member %d has neither id nor workflow", ErrInvalidWorkflow, def.ID, i)
		}
	}
	return members, nil
}

// validateTree validates wf and every nested workflow member.
func validateTree(wf Workflow) ValidationResult {
	v := wf.Validate()
	for _, m := range wf.Members() {
		wa, ok := m.(*WorkflowAgent)
		if !ok {
			continue
		}
		nv := validateTree(wa.Workflow())
		for _, msg := range nv.Errors {
			v.Errors = append(v.Errors, wa.ID()+": "+msg)
		}
		for _, msg := range nv.Warnings {
			v.Warnings = append(v.Warnings, wa.ID()+": "+msg)
		}
	}
	v.Valid = len(v.Errors) == 0
	return v
}

// ExecuteWorkflow builds, validates and runs def with input. Structural
// errors fail before any agent runs. The session is persisted after every
// run, including failed ones. A non-nil error may come with the partial
// result accumulated before the failure was raised.
func (e *Engine) ExecuteWorkflow(ctx context.Context, def Definition, input any, opts *ExecutionOptions) (res *Result, err error) {
	wf, err := e.BuildWorkflow(def)
	if err != nil {
		return nil, err
	}
	v := validateTree(wf)
	if !v.Valid {
		return nil, fmt.Errorf("%w: %s", ErrInvalidWorkflow, strings.Join(v.Errors, ", "))
	}
	for _, w := range v.Warnings {
		e.logger.Warn("workflow warning", zap.String("workflow_id", def.ID), zap.String("warning", w))
	}

	if opts == nil {
		opts = &ExecutionOptions{}
	}
	// 同一会话的运行串行执行，后到者从前一次持久化的快照继续
	session, release, err := e.sessions.Acquire(ctx, opts.SessionID)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	defer release()
	if opts.ResearchTopic != "" {
		session.SetResearchTopic(opts.ResearchTopic)
	}

	executionID := opts.ExecutionID
	if executionID == "" {
		executionID = uuid.New().String()
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if timeout := shorter(def.EffectiveConfig().Timeout(), opts.Timeout); timeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeout(runCtx, timeout)
		defer cancelTimeout()
	}
	runCtx = ctxkeys.WithSessionID(ctxkeys.WithRunID(runCtx, executionID), session.SessionID())
	runCtx, span := e.inst.start(runCtx, def, executionID, session.SessionID())
	defer span.End()

	logger := e.logger.With(
		zap.String("execution_id", executionID),
		zap.String("workflow_id", def.ID),
		zap.String("session_id", session.SessionID()),
	)
	if reqID, ok := ctxkeys.RequestID(ctx); ok {
		logger = logger.With(zap.String("request_id", reqID))
	}
	actx := &agent.Context{
		State: session,
		Invocation: agent.Invocation{
			InvocationID: uuid.New().String(),
			Input:        input,
			Timeout:      opts.Timeout,
		},
		Logger: logger,
		HITL:   e.hitl,
	}

	e.track(RunInfo{
		ExecutionID:  executionID,
		WorkflowID:   def.ID,
		WorkflowName: def.Name,
		WorkflowType: def.Type,
		SessionID:    session.SessionID(),
		StartedAt:    time.Now(),
	}, cancel)
	history := NewExecutionHistory(executionID, def.ID, def.Type, session.SessionID())
	if e.history != nil {
		e.history.Save(history)
	}
	start := time.Now()
	logger.Info("starting workflow", zap.String("workflow_name", def.Name))

	defer func() {
		e.untrack(executionID)
		if perr := e.sessions.Persist(context.WithoutCancel(ctx), session.SessionID()); perr != nil {
			logger.Error("failed to persist session", zap.Error(perr))
			err = errors.Join(err, fmt.Errorf("persist session %s: %w", session.SessionID(), perr))
		}
		elapsed := time.Since(start)
		history.Complete(res, err)

		success := err == nil && res != nil && res.Success
		e.inst.finish(ctx, def, success, elapsed)
		if e.recorder != nil {
			e.recorder.RecordWorkflow(string(def.Type), success, elapsed)
			if res != nil {
				recordAgents(e.recorder, res)
			}
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		} else if res != nil && !res.Success {
			span.SetStatus(codes.Error, res.Reason)
		}
	}()

	res, err = wf.Execute(runCtx, actx)
	if err != nil {
		logger.Error("workflow failed", zap.Error(err))
		return res, fmt.Errorf("workflow %s: %w", def.ID, err)
	}
	logger.Info("workflow completed",
		zap.Bool("success", res.Success),
		zap.Strings("execution_path", res.ExecutionPath),
		zap.Duration("duration", time.Since(start)),
	)
	return res, nil
}

func shorter(a, b time.Duration) time.Duration {
	switch {
	case a <= 0:
		return b
	case b <= 0:
		return a
	case a < b:
		return a
	default:
		return b
	}
}

func (e *Engine) track(info RunInfo, cancel context.CancelFunc) {
	e.mu.Lock()
	e.active[info.ExecutionID] = &activeRun{info: info, cancel: cancel}
	n := len(e.active)
	e.mu.Unlock()
	if e.recorder != nil {
		e.recorder.SetActiveWorkflows(n)
	}
}

func (e *Engine) untrack(executionID string) {
	e.mu.Lock()
	delete(e.active, executionID)
	n := len(e.active)
	e.mu.Unlock()
	if e.recorder != nil {
		e.recorder.SetActiveWorkflows(n)
	}
}

// GetActiveWorkflows returns the runs in progress, oldest first.
func (e *Engine) GetActiveWorkflows() []RunInfo {
	e.mu.RLock()
	out := make([]RunInfo, 0, len(e.active))
	for _, r := range e.active {
		out = append(out, r.info)
	}
	e.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

// CancelWorkflow cancels every active run whose execution id or workflow
// id equals id. Strategies observe the cancellation between steps and
// return their partial results.
func (e *Engine) CancelWorkflow(id string) bool {
	e.mu.RLock()
	var matched []*activeRun
	for _, r := range e.active {
		if r.info.ExecutionID == id || r.info.WorkflowID == id {
			matched = append(matched, r)
		}
	}
	e.mu.RUnlock()

	for _, r := range matched {
		e.logger.Info("cancelling workflow",
			zap.String("execution_id", r.info.ExecutionID),
			zap.String("workflow_id", r.info.WorkflowID),
		)
		r.cancel()
	}
	return len(matched) > 0
}
