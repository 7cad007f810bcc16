package handlers

import (
	"net/http"

	"github.com/BaSui01/stageflow/agent/persistence"

	"go.uber.org/zap"
)

// SessionHandler 会话查询与删除
type SessionHandler struct {
	sessions *persistence.Manager
	logger   *zap.Logger
}

// NewSessionHandler 创建会话处理器
func NewSessionHandler(sessions *persistence.Manager, logger *zap.Logger) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionHandler{sessions: sessions, logger: logger.With(zap.String("handler", "sessions"))}
}

// HandleList GET /api/v1/sessions
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	ids, err := h.sessions.ListSessions(r.Context())
	if err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	if ids == nil {
		ids = []string{}
	}
	WriteSuccess(w, r, ids)
}

// HandleGet GET /api/v1/sessions/{id}，返回持久化的快照
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := persistence.SanitizeSessionID(id); err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	snap, err := h.sessions.Store().Load(r.Context(), id)
	if err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	if snap == nil {
		WriteError(w, r, toAPIError(persistence.ErrNotFound), h.logger)
		return
	}
	WriteSuccess(w, r, snap)
}

// HandleDelete DELETE /api/v1/sessions/{id}
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, err := persistence.SanitizeSessionID(id); err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	if err := h.sessions.DeleteSession(r.Context(), id); err != nil {
		WriteError(w, r, toAPIError(err), h.logger)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
