package workflow

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/stageflow/agent"
)

// Parallel fans its members out concurrently and optionally reduces their
// outputs with a merger agent. Branches share session state; concurrent
// writes to the same key are last-write-wins.
type Parallel struct {
	base
	merger agent.Agent
}

var _ Workflow = (*Parallel)(nil)

// NewParallel creates a parallel workflow. merger may be nil.
func NewParallel(id, name string, members []agent.Agent, cfg Config, merger agent.Agent, opts ...Option) *Parallel {
	return &Parallel{base: newBase(id, name, TypeParallel, members, cfg, opts), merger: merger}
}

// Merger returns the merger agent, nil when outputs are only gathered.
func (w *Parallel) Merger() agent.Agent { return w.merger }

type branchOutcome struct {
	res *agent.Result
	err error
}

// Execute runs every member and waits for all of them. A branch failure
// never cancels its siblings.
func (w *Parallel) Execute(ctx context.Context, actx *agent.Context) (*Result, error) {
	r := w.newRun()
	input := actx.Input()

	parentBranch := actx.Invocation.Branch
	if parentBranch == "" {
		parentBranch = "main"
	}

	r.path = append(r.path, MarkerParallelStart)
	outcomes := make([]branchOutcome, len(w.members))

	var g errgroup.Group
	if w.config.MaxConcurrency > 0 {
		g.SetLimit(w.config.MaxConcurrency)
	}
	for i, m := range w.members {
		bctx := w.memberContext(actx, input)
		bctx.Invocation.Branch = parentBranch + "." + m.ID()
		g.Go(func() error {
			res, err := r.invoke(ctx, m, bctx)
			if err == nil {
				r.publish(actx, m, res)
			}
			outcomes[i] = branchOutcome{res: res, err: err}
			return nil
		})
	}
	_ = g.Wait()

	gathered := make(map[string]any, len(w.members))
	var (
		failures []string
		errs     []error
	)
	for i, m := range w.members {
		out := outcomes[i]
		r.path = append(r.path, "branch:"+m.ID())
		r.results.Set(m.ID(), out.res)
		r.absorb(out.res)
		gathered[m.ID()] = out.res.Output
		if !out.res.Success {
			failures = append(failures, out.res.ErrorMessage())
			errs = append(errs, out.err)
		}
	}
	r.path = append(r.path, MarkerParallelComplete)

	// 所有失败分支都计入原因，按成员顺序
	if len(failures) > 0 && !w.config.ContinueOnError {
		reason := strings.Join(failures, "; ")
		r.logger.Warn("parallel branches failed", zap.Int("failed", len(failures)), zap.String("error", reason))
		return r.result(false, reason, gathered, true, 0), errors.Join(errs...)
	}

	if w.merger == nil {
		return r.result(true, "", gathered, true, 0), nil
	}

	r.path = append(r.path, "merge:"+w.merger.ID())
	mres, err := r.invoke(ctx, w.merger, w.memberContext(actx, gathered))
	r.results.Set(w.merger.ID(), mres)
	r.absorb(mres)
	if err == nil {
		r.publish(actx, w.merger, mres)
	}
	return r.result(mres.Success, mres.ErrorMessage(), mres.Output, true, 0), err
}
