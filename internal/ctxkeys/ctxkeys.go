// Package ctxkeys 集中定义跨包传递的 context 键。
package ctxkeys

import "context"

type contextKey string

const (
	requestIDKey contextKey = "request_id"
	runIDKey     contextKey = "run_id"
	sessionIDKey contextKey = "session_id"
)

func withString(ctx context.Context, key contextKey, v string) context.Context {
	return context.WithValue(ctx, key, v)
}

func getString(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, id string) context.Context {
	return withString(ctx, requestIDKey, id)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) { return getString(ctx, requestIDKey) }

// WithRunID 设置工作流执行 ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return withString(ctx, runIDKey, runID)
}

// RunID 获取工作流执行 ID
func RunID(ctx context.Context) (string, bool) { return getString(ctx, runIDKey) }

// WithSessionID 设置会话 ID
func WithSessionID(ctx context.Context, id string) context.Context {
	return withString(ctx, sessionIDKey, id)
}

// SessionID 获取会话 ID
func SessionID(ctx context.Context) (string, bool) { return getString(ctx, sessionIDKey) }
