package agent

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"
)

// RunFunc is the agent-specific work. instruction is the interpolated
// instruction template.
type RunFunc func(ctx context.Context, actx *Context, instruction string) (any, error)

// Hooks are optional lifecycle callbacks. An error from BeforeExecute or
// AfterExecute fails the execution like an error from the work function.
type Hooks struct {
	BeforeExecute func(ctx context.Context, actx *Context) error
	AfterExecute  func(ctx context.Context, actx *Context, result *Result) error
	OnError       func(ctx context.Context, actx *Context, err error)
}

// BaseAgent implements Agent around a RunFunc.
type BaseAgent struct {
	config    Config
	run       RunFunc
	hooks     Hooks
	summarize func(output any) string
	review    func(output any, actx *Context) bool
	logger    *zap.Logger
}

// Option configures a BaseAgent.
type Option func(*BaseAgent)

// WithHooks sets lifecycle hooks.
func WithHooks(h Hooks) Option {
	return func(a *BaseAgent) { a.hooks = h }
}

// WithSummary overrides how the result summary is produced.
func WithSummary(fn func(output any) string) Option {
	return func(a *BaseAgent) { a.summarize = fn }
}

// WithReview overrides the review decision, which otherwise mirrors
// Config.RequiresApproval.
func WithReview(fn func(output any, actx *Context) bool) Option {
	return func(a *BaseAgent) { a.review = fn }
}

// WithLogger sets the fallback logger used when the context carries none.
func WithLogger(l *zap.Logger) Option {
	return func(a *BaseAgent) { a.logger = l }
}

// NewBaseAgent creates an agent from cfg. Unset config fields get defaults.
func NewBaseAgent(cfg Config, run RunFunc, opts ...Option) *BaseAgent {
	a := &BaseAgent{
		config: cfg.Clone().WithDefaults(),
		run:    run,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

func (a *BaseAgent) ID() string          { return a.config.ID }
func (a *BaseAgent) Name() string        { return a.config.Name }
func (a *BaseAgent) Description() string { return a.config.Description }
func (a *BaseAgent) Instruction() string { return a.config.Instruction }
func (a *BaseAgent) OutputKey() string   { return a.config.OutputKey }
func (a *BaseAgent) Tags() []string      { return append([]string(nil), a.config.Tags...) }

// Config returns a copy of the agent configuration.
func (a *BaseAgent) Config() Config { return a.config.Clone() }

// DisplayName returns the localized name, falling back to English.
func (a *BaseAgent) DisplayName(lang string) string {
	if name, ok := a.config.DisplayName[lang]; ok && name != "" {
		return name
	}
	return a.config.DisplayName["en"]
}

// CanHandle reports whether any word of task appears in the description.
func (a *BaseAgent) CanHandle(task string) bool {
	return canHandle(a.config.Description, task)
}

// Execute runs the agent lifecycle. It never panics.
func (a *BaseAgent) Execute(ctx context.Context, actx *Context) (result *Result) {
	start := time.Now()
	if actx == nil {
		actx = &Context{}
	}
	logger := actx.Logger
	if logger == nil {
		logger = a.logger
	}
	logger = logger.With(zap.String("agent_id", a.config.ID))

	defer func() {
		if r := recover(); r != nil {
			result = a.fail(ctx, actx, logger, panicError(a.config.ID, r), start)
			result.Error.Stack = string(debug.Stack())
		}
	}()

	if a.hooks.BeforeExecute != nil {
		if err := a.hooks.BeforeExecute(ctx, actx); err != nil {
			return a.fail(ctx, actx, logger, err, start)
		}
	}

	instruction := a.config.Instruction
	if actx.State != nil {
		instruction = Interpolate(instruction, actx.State)
	}

	logger.Info("agent starting execution")

	runCtx := ctx
	if a.config.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, a.config.Timeout)
		defer cancel()
	}

	if a.run == nil {
		return a.fail(ctx, actx, logger, fmt.Errorf("agent %s has no work function", a.config.ID), start)
	}
	output, err := a.run(runCtx, actx, instruction)
	if err != nil {
		return a.fail(ctx, actx, logger, err, start)
	}

	if a.config.OutputKey != "" && actx.State != nil {
		actx.State.Set(a.config.OutputKey, output)
	}

	result = &Result{
		Success:        true,
		Output:         output,
		Summary:        a.summary(output),
		Metrics:        ExecutionMetrics{Duration: time.Since(start)},
		RequiresReview: a.shouldReview(output, actx),
	}

	if a.hooks.AfterExecute != nil {
		if err := a.hooks.AfterExecute(ctx, actx, result); err != nil {
			return a.fail(ctx, actx, logger, err, start)
		}
	}

	logger.Info("agent completed successfully", zap.Duration("duration", result.Metrics.Duration))
	return result
}

func (a *BaseAgent) fail(ctx context.Context, actx *Context, logger *zap.Logger, err error, start time.Time) *Result {
	if a.hooks.OnError != nil {
		func() {
			// a panicking error hook must not escape the contract boundary
			defer func() { _ = recover() }()
			a.hooks.OnError(ctx, actx, err)
		}()
	}
	logger.Error("agent failed", zap.Error(err))
	return FailedResult(fmt.Sprintf("Agent %s failed: %s", a.config.ID, err.Error()), err, time.Since(start))
}

func (a *BaseAgent) summary(output any) string {
	if a.summarize != nil {
		return a.summarize(output)
	}
	return fmt.Sprintf("Agent %s completed", a.config.ID)
}

func (a *BaseAgent) shouldReview(output any, actx *Context) bool {
	if a.review != nil {
		return a.review(output, actx)
	}
	return a.config.RequiresApproval
}
