package hitl

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/types"
)

// ErrRequestNotFound is returned by Resolve for unknown or settled requests.
var ErrRequestNotFound = errors.New("request not found or already resolved")

// RequestKind distinguishes queued approvals from feedback prompts.
type RequestKind string

const (
	KindApproval RequestKind = "approval"
	KindFeedback RequestKind = "feedback"
)

// QueuedRequest is a request waiting in a QueueHandler.
type QueuedRequest struct {
	ID        string                 `json:"id"`
	Kind      RequestKind            `json:"kind"`
	Approval  *types.ApprovalRequest `json:"approval,omitempty"`
	Prompt    string                 `json:"prompt,omitempty"`
	Feedback  *types.FeedbackContext `json:"feedback,omitempty"`
	CreatedAt time.Time              `json:"createdAt"`
}

type queuedEntry struct {
	request    QueuedRequest
	responseCh chan types.HumanResponse
}

// QueueHandler parks requests until someone calls Resolve, typically the
// approvals HTTP API. Waiting callers give up when their context ends.
type QueueHandler struct {
	mu            sync.RWMutex
	pending       map[string]*queuedEntry
	notifications []types.Notification
	maxNotes      int
	logger        *zap.Logger
}

var (
	_ Handler  = (*QueueHandler)(nil)
	_ Notifier = (*QueueHandler)(nil)
)

// NewQueueHandler creates an empty queue.
func NewQueueHandler(logger *zap.Logger) *QueueHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &QueueHandler{
		pending:  make(map[string]*queuedEntry),
		maxNotes: 100,
		logger:   logger.With(zap.String("component", "approval_queue")),
	}
}

// HandleApproval queues req under id and waits for Resolve.
func (q *QueueHandler) HandleApproval(ctx context.Context, id string, req types.ApprovalRequest) (types.HumanResponse, error) {
	return q.wait(ctx, QueuedRequest{ID: id, Kind: KindApproval, Approval: &req})
}

// CollectFeedback queues a feedback prompt and returns the resolver's Feedback text.
func (q *QueueHandler) CollectFeedback(ctx context.Context, prompt string, fc types.FeedbackContext) (string, error) {
	resp, err := q.wait(ctx, QueuedRequest{
		ID:       uuid.New().String(),
		Kind:     KindFeedback,
		Prompt:   prompt,
		Feedback: &fc,
	})
	if err != nil {
		return "", err
	}
	return resp.Feedback, nil
}

func (q *QueueHandler) wait(ctx context.Context, req QueuedRequest) (types.HumanResponse, error) {
	req.CreatedAt = time.Now()
	entry := &queuedEntry{
		request:    req,
		responseCh: make(chan types.HumanResponse, 1),
	}

	q.mu.Lock()
	q.pending[req.ID] = entry
	q.mu.Unlock()

	q.logger.Info("request queued", zap.String("id", req.ID), zap.String("kind", string(req.Kind)))

	select {
	case resp := <-entry.responseCh:
		return resp, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.pending, req.ID)
		q.mu.Unlock()
		return types.HumanResponse{}, fmt.Errorf("request %s abandoned: %w", req.ID, ctx.Err())
	}
}

// Resolve answers a queued request.
func (q *QueueHandler) Resolve(id string, resp types.HumanResponse) error {
	q.mu.Lock()
	entry, ok := q.pending[id]
	if !ok {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrRequestNotFound, id)
	}
	delete(q.pending, id)
	q.mu.Unlock()

	q.logger.Info("request resolved", zap.String("id", id), zap.Bool("approved", resp.Approved))

	// 缓冲为 1，发送不会阻塞
	entry.responseCh <- resp
	return nil
}

// Get returns the queued request with id.
func (q *QueueHandler) Get(id string) (QueuedRequest, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	entry, ok := q.pending[id]
	if !ok {
		return QueuedRequest{}, false
	}
	return entry.request, true
}

// List returns the queued requests, oldest first.
func (q *QueueHandler) List() []QueuedRequest {
	q.mu.RLock()
	out := make([]QueuedRequest, 0, len(q.pending))
	for _, e := range q.pending {
		out = append(out, e.request)
	}
	q.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

// Notify keeps the most recent notifications for polling clients.
func (q *QueueHandler) Notify(ctx context.Context, n types.Notification) error {
	q.mu.Lock()
	q.notifications = append(q.notifications, n)
	if over := len(q.notifications) - q.maxNotes; over > 0 {
		q.notifications = q.notifications[over:]
	}
	q.mu.Unlock()
	q.logger.Info("notification", zap.String("type", string(n.Type)), zap.String("title", n.Title))
	return nil
}

// Notifications returns the retained notifications, oldest first.
func (q *QueueHandler) Notifications() []types.Notification {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]types.Notification(nil), q.notifications...)
}
