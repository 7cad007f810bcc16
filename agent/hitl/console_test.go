package hitl

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/stageflow/types"
)

func TestConsoleHandler_HandleApproval(t *testing.T) {
	req := types.ApprovalRequest{
		AgentID: "paper-writing",
		Stage:   types.StagePaperWriting,
		Type:    types.ApprovalOutput,
		Summary: "Review output from Paper Writer",
		Content: map[string]any{"title": "Draft"},
		Options: []types.ApprovalOption{{Label: "Approve", Description: "continue", Value: "yes"}},
	}

	tests := []struct {
		name  string
		input string
		want  types.HumanResponse
	}{
		{"yes", "yes\n", types.HumanResponse{Approved: true}},
		{"short yes", "Y\n", types.HumanResponse{Approved: true}},
		{"edit json", "edit\n{\"title\":\"Final\"}\n", types.HumanResponse{
			Approved:      true,
			Feedback:      `{"title":"Final"}`,
			Modifications: map[string]any{"title": "Final"},
		}},
		{"edit text", "e\nshorten the abstract\n", types.HumanResponse{Approved: true, Feedback: "shorten the abstract"}},
		{"reject", "no\nmissing citations\n", types.HumanResponse{Approved: false, Feedback: "missing citations"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			h := NewConsoleHandler(strings.NewReader(tt.input), &out)

			resp, err := h.HandleApproval(context.Background(), "req-1", req)
			require.NoError(t, err)
			assert.Equal(t, tt.want, resp)
			assert.Contains(t, out.String(), "APPROVAL REQUIRED: Review output from Paper Writer")
			assert.Contains(t, out.String(), `"title": "Draft"`)
			assert.Contains(t, out.String(), "1. Approve: continue")
		})
	}
}

func TestConsoleHandler_EOF(t *testing.T) {
	h := NewConsoleHandler(strings.NewReader(""), &bytes.Buffer{})
	_, err := h.HandleApproval(context.Background(), "req-1", types.ApprovalRequest{})
	assert.Error(t, err)
}

func TestConsoleHandler_FeedbackAndNotify(t *testing.T) {
	var out bytes.Buffer
	h := NewConsoleHandler(strings.NewReader("add a control group"), &out)

	fb, err := h.CollectFeedback(context.Background(), "Suggestions", types.FeedbackContext{AgentID: "experiment-design"})
	require.NoError(t, err)
	assert.Equal(t, "add a control group", fb)
	assert.Contains(t, out.String(), "Feedback requested from experiment-design")

	require.NoError(t, h.Notify(context.Background(), types.Notification{Type: types.NotifyWarning, Title: "Stage", Message: "slow"}))
	assert.Contains(t, out.String(), "[!] Stage: slow")
}
