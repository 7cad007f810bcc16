package mocks

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stageflow/types"
)

func TestMockHITL_ScriptThenApprove(t *testing.T) {
	h := NewMockHITL().WithResponses(types.HumanResponse{Approved: false, Feedback: "no"})
	ctx := context.Background()

	first, err := h.RequestApproval(ctx, types.ApprovalRequest{AgentID: "a"})
	require.NoError(t, err)
	assert.False(t, first.Approved)

	second, err := h.RequestApproval(ctx, types.ApprovalRequest{AgentID: "b"})
	require.NoError(t, err)
	assert.True(t, second.Approved)

	reqs := h.Requests()
	require.Len(t, reqs, 2)
	assert.Equal(t, "b", reqs[1].AgentID)
}

func TestMockHITL_Errors(t *testing.T) {
	boom := errors.New("boom")
	h := NewMockHITL().WithError(boom).WithNotifyError(boom)

	_, err := h.RequestApproval(context.Background(), types.ApprovalRequest{})
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, h.Notify(context.Background(), types.Notification{Title: "t"}), boom)
	assert.Len(t, h.Notifications(), 1)
}

func TestMockHITL_Feedback(t *testing.T) {
	h := NewMockHITL().WithFeedback("looks good")
	got, err := h.CollectFeedback(context.Background(), "thoughts?", types.FeedbackContext{})
	require.NoError(t, err)
	assert.Equal(t, "looks good", got)
	assert.Equal(t, []string{"thoughts?"}, h.Prompts())
}
