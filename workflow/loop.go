package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
)

// Condition ends a loop when it returns true after an iteration. iteration
// is 1-based.
type Condition func(actx *agent.Context, iteration int) bool

// StateKeySet is a Condition satisfied once key is present in session state.
func StateKeySet(key string) Condition {
	return func(actx *agent.Context, _ int) bool {
		return actx.State != nil && actx.State.Has(key)
	}
}

// Loop repeats its whole member list until the condition holds, a member
// escalates or MaxIterations is reached.
type Loop struct {
	base
	condition Condition
}

var _ Workflow = (*Loop)(nil)

// NewLoop creates a loop workflow. cond may be nil; cfg.UntilStateKey
// installs a StateKeySet condition when cond is nil.
func NewLoop(id, name string, members []agent.Agent, cfg Config, cond Condition, opts ...Option) *Loop {
	if cond == nil && cfg.UntilStateKey != "" {
		cond = StateKeySet(cfg.UntilStateKey)
	}
	return &Loop{base: newBase(id, name, TypeLoop, members, cfg, opts), condition: cond}
}

// SetTerminationCondition replaces the loop condition.
func (w *Loop) SetTerminationCondition(cond Condition) { w.condition = cond }

func (w *Loop) maxIterations() int {
	if w.config.MaxIterations > 0 {
		return w.config.MaxIterations
	}
	return DefaultMaxIterations
}

// Execute runs the iterations. Iteration markers in the path are 0-based
// while result keys use the 1-based iteration number.
func (w *Loop) Execute(ctx context.Context, actx *agent.Context) (*Result, error) {
	r := w.newRun()
	maxIter := w.maxIterations()
	current := actx.Input()
	iteration := 0
	exited := false

	r.logger.Info("starting loop workflow", zap.Int("max_iterations", maxIter))

	for iteration < maxIter {
		if ctx.Err() != nil {
			r.logger.Info("loop workflow aborted", zap.Error(ctx.Err()))
			exited = true
			break
		}

		r.path = append(r.path, fmt.Sprintf("iteration_%d", iteration))
		iteration++

		for _, m := range w.members {
			key := fmt.Sprintf("%s_iter%d", m.ID(), iteration)
			mctx := w.memberContext(actx, current)
			mctx.Invocation.Iteration = iteration

			res, err := r.invoke(ctx, m, mctx)
			r.results.Set(key, res)
			r.absorb(res)
			if err != nil {
				if !w.config.ContinueOnError {
					return r.result(false, err.Error(), nil, false, iteration), err
				}
				continue
			}

			r.publish(actx, m, res)
			current = res.Output

			if mctx.Invocation.Actions.Escalate {
				r.path = append(r.path, MarkerEscalateExit)
				r.logger.Info("escalate signal received, exiting loop", zap.String("agent_id", m.ID()))
				return r.result(true, "", current, true, iteration), nil
			}

			if !res.Success && !w.config.ContinueOnError {
				return r.result(false, res.ErrorMessage(), nil, false, iteration), nil
			}

			if res.RequiresReview {
				resp, err := r.requestApproval(ctx, actx, m, res.Output)
				if err != nil {
					return r.result(false, err.Error(), nil, false, iteration), err
				}
				if !resp.Approved {
					return r.result(false, ReasonHumanRejected, nil, false, iteration), nil
				}
			}
		}

		if w.condition != nil && w.condition(actx, iteration) {
			r.path = append(r.path, MarkerConditionExit)
			r.logger.Info("termination condition met, exiting loop", zap.Int("iteration", iteration))
			exited = true
			break
		}
	}

	if !exited {
		r.path = append(r.path, MarkerMaxIterations)
		r.logger.Warn("max iterations reached", zap.Int("max_iterations", maxIter))
	}

	return r.result(true, "", current, true, iteration), nil
}
