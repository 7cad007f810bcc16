package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/BaSui01/stageflow/agent/declarative"
	"github.com/BaSui01/stageflow/types"
	"github.com/BaSui01/stageflow/workflow"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefinitionSource 提供声明式工作流定义，declarative.Loader 实现了该接口
type DefinitionSource interface {
	LoadWorkflow(id string) (workflow.Definition, error)
	WorkflowIDs() ([]string, error)
}

// RunRequest POST /api/v1/runs 的请求体。
// WorkflowID 与 Methodology 二选一，均为空时运行默认研究流程。
type RunRequest struct {
	WorkflowID    string `json:"workflowId,omitempty"`
	Methodology   string `json:"methodology,omitempty"`
	Input         any    `json:"input,omitempty"`
	SessionID     string `json:"sessionId,omitempty"`
	ResearchTopic string `json:"researchTopic,omitempty"`
	TimeoutMs     int64  `json:"timeoutMs,omitempty"`
	// Wait 为 true 时同步等待结果，否则立即返回 202
	Wait bool `json:"wait,omitempty"`
}

// RunAccepted 异步运行的响应
type RunAccepted struct {
	ExecutionID string `json:"executionId"`
	WorkflowID  string `json:"workflowId"`
	SessionID   string `json:"sessionId,omitempty"`
}

// WorkflowList GET /api/v1/workflows 的响应
type WorkflowList struct {
	Definitions   []string `json:"definitions"`
	Methodologies []string `json:"methodologies"`
}

// =============================================================================
// 🔀 工作流 Handler
// =============================================================================

// WorkflowHandler 启动、查询与取消工作流运行
type WorkflowHandler struct {
	engine *workflow.Engine
	defs   DefinitionSource
	logger *zap.Logger

	// 异步运行挂在 baseCtx 上，服务关闭时统一取消
	baseCtx context.Context
}

// NewWorkflowHandler 创建工作流处理器。defs 可以为 nil，此时只能运行内置流程。
func NewWorkflowHandler(ctx context.Context, engine *workflow.Engine, defs DefinitionSource, logger *zap.Logger) *WorkflowHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WorkflowHandler{
		engine:  engine,
		defs:    defs,
		logger:  logger.With(zap.String("handler", "workflows")),
		baseCtx: ctx,
	}
}

// HandleListWorkflows GET /api/v1/workflows
func (h *WorkflowHandler) HandleListWorkflows(w http.ResponseWriter, r *http.Request) {
	list := WorkflowList{Definitions: []string{}, Methodologies: workflow.Methodologies()}
	if h.defs != nil {
		ids, err := h.defs.WorkflowIDs()
		if err != nil {
			WriteError(w, r, toAPIError(err), h.logger)
			return
		}
		sort.Strings(ids)
		list.Definitions = append(list.Definitions, ids...)
	}
	WriteSuccess(w, r, list)
}

func (h *WorkflowHandler) resolve(req RunRequest) (workflow.Definition, error) {
	switch {
	case req.WorkflowID != "":
		// 磁盘上的定义优先，其次是同 ID 的内置流程
		if h.defs != nil {
			def, err := h.defs.LoadWorkflow(req.WorkflowID)
			if !errors.Is(err, declarative.ErrDefinitionNotFound) {
				return def, err
			}
		}
		if def, ok := workflow.Builtin(req.WorkflowID); ok {
			return def, nil
		}
		return workflow.Definition{}, fmt.Errorf("%w: workflow %s", declarative.ErrDefinitionNotFound, req.WorkflowID)
	case req.Methodology != "":
		return h.engine.WorkflowForMethodology(req.Methodology), nil
	default:
		return h.engine.DefaultResearchWorkflow(), nil
	}
}

// HandleRun POST /api/v1/runs
func (h *WorkflowHandler) HandleRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.TimeoutMs < 0 {
		WriteErrorMessage(w, r, http.StatusBadRequest, types.ErrInvalidRequest, "timeoutMs must not be negative", h.logger)
		return
	}
	def, err := h.resolve(req)
	if err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	// 结构校验在接受请求前完成，异步运行不会因定义错误而静默失败
	if _, err := h.engine.BuildWorkflow(def); err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}

	opts := &workflow.ExecutionOptions{
		SessionID:     req.SessionID,
		ExecutionID:   uuid.New().String(),
		Timeout:       time.Duration(req.TimeoutMs) * time.Millisecond,
		ResearchTopic: req.ResearchTopic,
	}

	if req.Wait {
		res, err := h.engine.ExecuteWorkflow(r.Context(), def, req.Input, opts)
		if err != nil && res == nil {
			WriteError(w, r, toAPIError(err), h.logger)
			return
		}
		// 失败的运行仍返回部分结果
		WriteSuccess(w, r, res)
		return
	}

	// 请求上下文在响应后结束，异步运行只继承其中的值（请求 ID）
	ctx := context.WithoutCancel(r.Context())
	go func() {
		runCtx, cancel := mergeDone(ctx, h.baseCtx)
		defer cancel()
		if _, err := h.engine.ExecuteWorkflow(runCtx, def, req.Input, opts); err != nil {
			h.logger.Warn("async run failed",
				zap.String("execution_id", opts.ExecutionID),
				zap.Error(err),
			)
		}
	}()

	WriteData(w, r, http.StatusAccepted, RunAccepted{
		ExecutionID: opts.ExecutionID,
		WorkflowID:  def.ID,
		SessionID:   req.SessionID,
	})
}

// mergeDone returns ctx's values cancelled when stop is done.
func mergeDone(ctx, stop context.Context) (context.Context, context.CancelFunc) {
	out, cancel := context.WithCancel(ctx)
	if stop == nil {
		return out, cancel
	}
	unregister := context.AfterFunc(stop, cancel)
	return out, func() {
		unregister()
		cancel()
	}
}

// HandleActive GET /api/v1/runs/active
func (h *WorkflowHandler) HandleActive(w http.ResponseWriter, r *http.Request) {
	active := h.engine.GetActiveWorkflows()
	if active == nil {
		active = []workflow.RunInfo{}
	}
	WriteSuccess(w, r, active)
}

// HandleCancel POST /api/v1/runs/{id}/cancel
func (h *WorkflowHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !h.engine.CancelWorkflow(id) {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrInvalidRequest, "no active run: "+id, h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"id": id, "cancelled": true})
}

// HandleListRuns GET /api/v1/runs?workflowId=&sessionId=&status=
func (h *WorkflowHandler) HandleListRuns(w http.ResponseWriter, r *http.Request) {
	store := h.engine.History()
	if store == nil {
		WriteSuccess(w, r, []*workflow.ExecutionHistory{})
		return
	}

	q := r.URL.Query()
	var runs []*workflow.ExecutionHistory
	switch {
	case q.Get("workflowId") != "":
		runs = store.ListByWorkflow(q.Get("workflowId"))
	case q.Get("sessionId") != "":
		runs = store.ListBySession(q.Get("sessionId"))
	case q.Get("status") != "":
		runs = store.ListByStatus(workflow.ExecutionStatus(q.Get("status")))
	default:
		runs = store.List()
	}
	if runs == nil {
		runs = []*workflow.ExecutionHistory{}
	}
	WriteSuccess(w, r, runs)
}

// HandleGetRun GET /api/v1/runs/{id}
func (h *WorkflowHandler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var (
		run *workflow.ExecutionHistory
		ok  bool
	)
	if store := h.engine.History(); store != nil {
		run, ok = store.Get(id)
	}
	if !ok {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrInvalidRequest, "run not found: "+id, h.logger)
		return
	}
	WriteSuccess(w, r, run)
}
