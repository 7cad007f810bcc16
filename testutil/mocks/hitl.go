// =============================================================================
// 🙋 MockHITL - 人工介入模拟实现
// =============================================================================
// 按脚本依次回答审批请求，脚本用完后默认批准。
//
// 使用方法:
//
//	h := mocks.NewMockHITL().WithResponses(types.HumanResponse{Approved: false})
//	res, _ := wf.Execute(ctx, actx)
//	reqs := h.Requests()
// =============================================================================
package mocks

import (
	"context"
	"sync"

	"github.com/BaSui01/stageflow/types"
)

// MockHITL 实现 types.HITL
type MockHITL struct {
	mu sync.Mutex

	responses []types.HumanResponse
	feedback  string

	// 错误注入
	approvalErr error
	notifyErr   error

	// 调用记录
	requests      []types.ApprovalRequest
	prompts       []string
	notifications []types.Notification
}

// NewMockHITL 创建默认全部批准的 MockHITL
func NewMockHITL() *MockHITL {
	return &MockHITL{}
}

// WithResponses 追加按顺序返回的审批答复
func (m *MockHITL) WithResponses(resps ...types.HumanResponse) *MockHITL {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses = append(m.responses, resps...)
	return m
}

// WithFeedback 设置 CollectFeedback 的返回值
func (m *MockHITL) WithFeedback(feedback string) *MockHITL {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedback = feedback
	return m
}

// WithError 让 RequestApproval 返回 err
func (m *MockHITL) WithError(err error) *MockHITL {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.approvalErr = err
	return m
}

// WithNotifyError 让 Notify 返回 err
func (m *MockHITL) WithNotifyError(err error) *MockHITL {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifyErr = err
	return m
}

func (m *MockHITL) RequestApproval(ctx context.Context, req types.ApprovalRequest) (types.HumanResponse, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.approvalErr != nil {
		return types.HumanResponse{}, m.approvalErr
	}
	if len(m.responses) == 0 {
		return types.HumanResponse{Approved: true}, nil
	}
	resp := m.responses[0]
	m.responses = m.responses[1:]
	return resp, nil
}

func (m *MockHITL) CollectFeedback(ctx context.Context, prompt string, _ types.FeedbackContext) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prompts = append(m.prompts, prompt)
	return m.feedback, nil
}

func (m *MockHITL) Notify(ctx context.Context, n types.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notifications = append(m.notifications, n)
	return m.notifyErr
}

// Requests 返回收到的审批请求副本
func (m *MockHITL) Requests() []types.ApprovalRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.ApprovalRequest(nil), m.requests...)
}

// Prompts 返回 CollectFeedback 收到的提示
func (m *MockHITL) Prompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.prompts...)
}

// Notifications 返回收到的通知
func (m *MockHITL) Notifications() []types.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]types.Notification(nil), m.notifications...)
}

var _ types.HITL = (*MockHITL)(nil)
