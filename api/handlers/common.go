package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/declarative"
	"github.com/BaSui01/stageflow/agent/hitl"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/internal/ctxkeys"
	"github.com/BaSui01/stageflow/types"
	"github.com/BaSui01/stageflow/workflow"

	"go.uber.org/zap"
)

// maxBodyBytes 限制请求体大小，运行输入通常只是研究主题与少量参数
const maxBodyBytes = 1 << 20

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// Response 统一 API 响应结构
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 错误信息结构
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Retryable bool   `json:"retryable,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 写入成功响应
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	WriteData(w, r, http.StatusOK, data)
}

// WriteData 以指定状态码写入成功响应
func WriteData(w http.ResponseWriter, r *http.Request, status int, data any) {
	WriteJSON(w, status, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteError 写入错误响应
func WriteError(w http.ResponseWriter, r *http.Request, err *types.Error, logger *zap.Logger) {
	status := err.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}

	if logger != nil {
		level := logger.Warn
		if status >= http.StatusInternalServerError {
			level = logger.Error
		}
		level("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status),
			zap.Error(err.Cause),
		)
	}

	WriteJSON(w, status, Response{
		Success: false,
		Error: &ErrorInfo{
			Code:      string(err.Code),
			Message:   err.Message,
			Retryable: err.Retryable,
		},
		Timestamp: time.Now(),
		RequestID: requestID(r),
	})
}

// WriteErrorMessage 写入简单错误消息
func WriteErrorMessage(w http.ResponseWriter, r *http.Request, status int, code types.ErrorCode, message string, logger *zap.Logger) {
	WriteError(w, r, types.NewError(code, message).WithHTTPStatus(status), logger)
}

// toAPIError 把领域错误映射为带状态码的 types.Error
func toAPIError(err error) *types.Error {
	if e, ok := types.AsError(err); ok {
		return e
	}
	var verr *declarative.ValidationError
	switch {
	case errors.Is(err, declarative.ErrDefinitionNotFound):
		return types.NewError(types.ErrInvalidWorkflow, err.Error()).WithHTTPStatus(http.StatusNotFound).WithCause(err)
	case errors.As(err, &verr), errors.Is(err, workflow.ErrInvalidWorkflow):
		return types.NewError(types.ErrInvalidWorkflow, err.Error()).WithCause(err)
	case errors.Is(err, agent.ErrAgentNotFound):
		return types.NewError(types.ErrAgentNotFound, err.Error()).WithCause(err)
	case errors.Is(err, hitl.ErrRequestNotFound):
		return types.NewError(types.ErrApprovalNotFound, err.Error()).WithCause(err)
	case errors.Is(err, persistence.ErrNotFound):
		return types.NewError(types.ErrSessionNotFound, err.Error()).WithCause(err)
	case errors.Is(err, persistence.ErrInvalidSessionID):
		return types.NewError(types.ErrInvalidRequest, err.Error()).WithCause(err)
	default:
		return types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
}

func requestID(r *http.Request) string {
	if r == nil {
		return ""
	}
	id, _ := ctxkeys.RequestID(r.Context())
	return id
}

// =============================================================================
// 🛡️ 请求验证辅助函数
// =============================================================================

// DecodeJSONBody 解码 JSON 请求体，失败时已写出 400 响应
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		WriteError(w, r, apiErr, logger)
		return apiErr
	}
	return nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与写入字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
	Written    bool
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{ResponseWriter: w, StatusCode: http.StatusOK}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += n
	return n, err
}

// Flush 透传给底层 writer
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
