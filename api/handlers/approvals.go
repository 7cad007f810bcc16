package handlers

import (
	"net/http"

	"github.com/BaSui01/stageflow/agent/hitl"
	"github.com/BaSui01/stageflow/types"

	"go.uber.org/zap"
)

// =============================================================================
// ✋ 审批 Handler
// =============================================================================

// ApprovalHandler 通过 HTTP 暴露 hitl.QueueHandler 中待处理的审批与反馈请求
type ApprovalHandler struct {
	queue  *hitl.QueueHandler
	logger *zap.Logger
}

// NewApprovalHandler 创建审批处理器
func NewApprovalHandler(queue *hitl.QueueHandler, logger *zap.Logger) *ApprovalHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ApprovalHandler{queue: queue, logger: logger.With(zap.String("handler", "approvals"))}
}

// HandleList GET /api/v1/approvals
func (h *ApprovalHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.queue.List())
}

// HandleGet GET /api/v1/approvals/{id}
func (h *ApprovalHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	req, ok := h.queue.Get(id)
	if !ok {
		WriteErrorMessage(w, r, http.StatusNotFound, types.ErrApprovalNotFound, "approval not found: "+id, h.logger)
		return
	}
	WriteSuccess(w, r, req)
}

// HandleResolve POST /api/v1/approvals/{id}
//
// 请求体为 types.HumanResponse。feedback 类请求只读取 feedback 字段。
func (h *ApprovalHandler) HandleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	var resp types.HumanResponse
	if err := DecodeJSONBody(w, r, &resp, h.logger); err != nil {
		return
	}
	if err := h.queue.Resolve(id, resp); err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	WriteSuccess(w, r, map[string]any{"id": id, "approved": resp.Approved})
}

// HandleNotifications GET /api/v1/notifications
func (h *ApprovalHandler) HandleNotifications(w http.ResponseWriter, r *http.Request) {
	WriteSuccess(w, r, h.queue.Notifications())
}
