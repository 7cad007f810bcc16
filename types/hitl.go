package types

import (
	"context"
	"time"
)

// ApprovalType 审批请求的类型
type ApprovalType string

const (
	ApprovalProceed          ApprovalType = "proceed"
	ApprovalOutput           ApprovalType = "output"
	ApprovalModification     ApprovalType = "modification"
	ApprovalCriticalDecision ApprovalType = "critical_decision"
)

// TimeoutBehavior 审批超时后的处理方式
type TimeoutBehavior string

const (
	TimeoutApprove TimeoutBehavior = "approve"
	TimeoutReject  TimeoutBehavior = "reject"
	// TimeoutPause keeps waiting for a human answer after the deadline.
	TimeoutPause TimeoutBehavior = "pause"
)

// ApprovalOption is a selectable answer offered to the reviewer.
type ApprovalOption struct {
	Label       string `json:"label"`
	Description string `json:"description"`
	Value       string `json:"value"`
}

// ApprovalRequest 人工审批请求
type ApprovalRequest struct {
	AgentID         string           `json:"agentId"`
	Stage           Stage            `json:"stage"`
	Type            ApprovalType     `json:"type"`
	Summary         string           `json:"summary"`
	Content         any              `json:"content,omitempty"`
	Options         []ApprovalOption `json:"options,omitempty"`
	Timeout         time.Duration    `json:"timeout,omitempty"`
	TimeoutBehavior TimeoutBehavior  `json:"timeoutBehavior,omitempty"`
}

// HumanResponse 人工回复
type HumanResponse struct {
	Approved      bool           `json:"approved"`
	Feedback      string         `json:"feedback,omitempty"`
	Modifications map[string]any `json:"modifications,omitempty"`
}

// InterventionRecord 运行中的一次人工决策
type InterventionRecord struct {
	AgentID   string        `json:"agentId"`
	Timestamp time.Time     `json:"timestamp"`
	Reason    string        `json:"reason"`
	Response  HumanResponse `json:"response"`
}

// FeedbackContext describes what the reviewer is being asked about.
type FeedbackContext struct {
	AgentID       string `json:"agentId"`
	Stage         Stage  `json:"stage"`
	CurrentOutput any    `json:"currentOutput,omitempty"`
}

// NotificationType 通知级别
type NotificationType string

const (
	NotifyInfo    NotificationType = "info"
	NotifyWarning NotificationType = "warning"
	NotifyError   NotificationType = "error"
	NotifySuccess NotificationType = "success"
)

// Notification is a fire-and-forget event for the human operator.
type Notification struct {
	Type    NotificationType `json:"type"`
	Title   string           `json:"title"`
	Message string           `json:"message"`
	AgentID string           `json:"agentId,omitempty"`
}

// HITL is the boundary between the pipeline and a human operator.
// RequestApproval may block until the operator answers or ctx is done.
type HITL interface {
	RequestApproval(ctx context.Context, req ApprovalRequest) (HumanResponse, error)
	CollectFeedback(ctx context.Context, prompt string, fc FeedbackContext) (string, error)
	Notify(ctx context.Context, n Notification) error
}
