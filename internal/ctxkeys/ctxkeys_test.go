package ctxkeys

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextKeys(t *testing.T) {
	ctx := context.Background()

	_, ok := RunID(ctx)
	assert.False(t, ok)

	ctx = WithRequestID(ctx, "req-1")
	ctx = WithRunID(ctx, "run-1")
	ctx = WithSessionID(ctx, "s-1")

	v, ok := RequestID(ctx)
	assert.True(t, ok)
	assert.Equal(t, "req-1", v)
	v, _ = RunID(ctx)
	assert.Equal(t, "run-1", v)
	v, _ = SessionID(ctx)
	assert.Equal(t, "s-1", v)

	// 空字符串视为未设置
	_, ok = RunID(WithRunID(ctx, ""))
	assert.False(t, ok)
}
