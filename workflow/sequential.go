package workflow

import (
	"context"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
)

// Sequential runs its members one after another, feeding each member the
// previous member's output.
type Sequential struct {
	base
}

var _ Workflow = (*Sequential)(nil)

// NewSequential creates a sequential workflow.
func NewSequential(id, name string, members []agent.Agent, cfg Config, opts ...Option) *Sequential {
	return &Sequential{base: newBase(id, name, TypeSequential, members, cfg, opts)}
}

// NewHybrid creates a hybrid workflow: sequential over members that may
// themselves be nested workflows.
func NewHybrid(id, name string, members []agent.Agent, cfg Config, opts ...Option) *Sequential {
	return &Sequential{base: newBase(id, name, TypeHybrid, members, cfg, opts)}
}

// Execute runs the members in order. Cancellation of ctx stops the run
// between members and returns the partial result as successful.
func (w *Sequential) Execute(ctx context.Context, actx *agent.Context) (*Result, error) {
	r := w.newRun()
	current := actx.Input()

	for _, m := range w.members {
		if ctx.Err() != nil {
			r.logger.Info("workflow aborted", zap.Error(ctx.Err()))
			break
		}

		gateBefore, gateAfter := w.gateTiming(m.ID(), actx)
		if gateBefore {
			resp, err := r.requestApproval(ctx, actx, m, current)
			if err != nil {
				return r.result(false, err.Error(), nil, false, 0), err
			}
			if !resp.Approved {
				return r.result(false, ReasonHumanRejected, nil, false, 0), nil
			}
			if len(resp.Modifications) > 0 {
				current = mergeModifications(current, resp.Modifications)
			}
		}

		r.path = append(r.path, m.ID())
		mctx := w.memberContext(actx, current)
		res, err := r.invoke(ctx, m, mctx)
		r.results.Set(m.ID(), res)
		r.absorb(res)
		if err != nil {
			if !w.config.ContinueOnError {
				return r.result(false, err.Error(), nil, false, 0), err
			}
			continue
		}

		if gateAfter && res.Success {
			resp, err := r.requestApproval(ctx, actx, m, res.Output)
			if err != nil {
				return r.result(false, err.Error(), nil, false, 0), err
			}
			if !resp.Approved {
				return r.result(false, ReasonHumanRejected, nil, false, 0), nil
			}
			if len(resp.Modifications) > 0 {
				res.Output = mergeModifications(res.Output, resp.Modifications)
			}
		}

		r.publish(actx, m, res)
		current = res.Output

		if mctx.Invocation.Actions.Escalate {
			r.logger.Info("escalate signal received, terminating workflow", zap.String("agent_id", m.ID()))
			break
		}

		if target := mctx.Invocation.Actions.TransferTo; target != "" {
			if t := w.findMember(target); t != nil {
				r.path = append(r.path, "transfer:"+t.ID())
				tres, terr := r.invoke(ctx, t, w.memberContext(actx, current))
				r.results.Set(t.ID(), tres)
				r.absorb(tres)
				if terr != nil && !w.config.ContinueOnError {
					return r.result(false, terr.Error(), nil, false, 0), terr
				}
				if terr == nil {
					r.publish(actx, t, tres)
					current = tres.Output
				}
			} else {
				r.logger.Warn("transfer target not found", zap.String("agent_id", m.ID()), zap.String("target", target))
			}
		}

		if !res.Success && !w.config.ContinueOnError {
			return r.result(false, res.ErrorMessage(), nil, false, 0), nil
		}
	}

	return r.result(true, "", nil, false, 0), nil
}
