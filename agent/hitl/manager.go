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

// ErrNoHandler is returned when a request needs a human but no handler is set.
var ErrNoHandler = errors.New("no intervention handler configured")

// Handler connects the manager to a UI, CLI or API.
type Handler interface {
	HandleApproval(ctx context.Context, id string, req types.ApprovalRequest) (types.HumanResponse, error)
	CollectFeedback(ctx context.Context, prompt string, fc types.FeedbackContext) (string, error)
}

// Notifier is optionally implemented by handlers that surface notifications.
type Notifier interface {
	Notify(ctx context.Context, n types.Notification) error
}

// Status 审批记录状态
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
	StatusError    Status = "error"
	StatusTimeout  Status = "timeout"
)

// ApprovalRecord is the audit entry of one approval request.
type ApprovalRecord struct {
	ID         string                `json:"id"`
	Request    types.ApprovalRequest `json:"request"`
	Status     Status                `json:"status"`
	Response   *types.HumanResponse  `json:"response,omitempty"`
	Error      string                `json:"error,omitempty"`
	CreatedAt  time.Time             `json:"createdAt"`
	ResolvedAt *time.Time            `json:"resolvedAt,omitempty"`
}

// Recorder receives one observation per resolved approval.
type Recorder interface {
	RecordApproval(status string, wait time.Duration)
}

// InterventionManager implements types.HITL on top of a Handler and keeps
// an audit trail of every approval it brokered.
type InterventionManager struct {
	mu          sync.RWMutex
	handler     Handler
	autoApprove bool
	records     map[string]*ApprovalRecord
	recorder    Recorder
	logger      *zap.Logger

	defaultTimeout  time.Duration
	defaultBehavior types.TimeoutBehavior
}

var _ types.HITL = (*InterventionManager)(nil)

// NewInterventionManager creates a manager with no handler.
func NewInterventionManager(logger *zap.Logger) *InterventionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &InterventionManager{
		records: make(map[string]*ApprovalRecord),
		logger:  logger.With(zap.String("component", "intervention_manager")),
	}
}

// SetHandler connects the manager to a human-facing handler.
func (m *InterventionManager) SetHandler(h Handler) {
	m.mu.Lock()
	m.handler = h
	m.mu.Unlock()
}

// SetAutoApprove makes every approval succeed immediately. Intended for tests
// and unattended runs.
func (m *InterventionManager) SetAutoApprove(enabled bool) {
	m.mu.Lock()
	m.autoApprove = enabled
	m.mu.Unlock()
}

// SetRecorder attaches a metrics recorder.
func (m *InterventionManager) SetRecorder(r Recorder) {
	m.mu.Lock()
	m.recorder = r
	m.mu.Unlock()
}

// SetDefaultTimeout applies timeout and behavior to requests that carry no
// timeout of their own. A zero timeout disables the default.
func (m *InterventionManager) SetDefaultTimeout(timeout time.Duration, behavior types.TimeoutBehavior) {
	m.mu.Lock()
	m.defaultTimeout = timeout
	m.defaultBehavior = behavior
	m.mu.Unlock()
}

func (m *InterventionManager) withDefaults(req types.ApprovalRequest) types.ApprovalRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if req.Timeout <= 0 && m.defaultTimeout > 0 {
		req.Timeout = m.defaultTimeout
		if req.TimeoutBehavior == "" {
			req.TimeoutBehavior = m.defaultBehavior
		}
	}
	return req
}

func (m *InterventionManager) state() (Handler, bool, Recorder) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.handler, m.autoApprove, m.recorder
}

type approvalOutcome struct {
	resp types.HumanResponse
	err  error
}

// RequestApproval asks the handler for a decision and records the outcome.
// A positive req.Timeout resolves the request per req.TimeoutBehavior once
// it elapses; TimeoutPause keeps waiting. Handler errors are recorded on the
// request and returned.
func (m *InterventionManager) RequestApproval(ctx context.Context, req types.ApprovalRequest) (types.HumanResponse, error) {
	handler, auto, recorder := m.state()
	if auto {
		return types.HumanResponse{Approved: true}, nil
	}
	if handler == nil {
		return types.HumanResponse{}, ErrNoHandler
	}
	req = m.withDefaults(req)

	id := uuid.New().String()
	rec := &ApprovalRecord{
		ID:        id,
		Request:   req,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	m.mu.Lock()
	m.records[id] = rec
	m.mu.Unlock()

	m.logger.Info("approval requested",
		zap.String("id", id),
		zap.String("agent_id", req.AgentID),
		zap.String("stage", string(req.Stage)),
		zap.String("type", string(req.Type)),
	)

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan approvalOutcome, 1)
	go func() {
		resp, err := handler.HandleApproval(handlerCtx, id, req)
		done <- approvalOutcome{resp: resp, err: err}
	}()

	var timeout <-chan time.Time
	if req.Timeout > 0 && req.TimeoutBehavior != types.TimeoutPause {
		timer := time.NewTimer(req.Timeout)
		defer timer.Stop()
		timeout = timer.C
	}

	var (
		resp   types.HumanResponse
		err    error
		status Status
	)
	select {
	case out := <-done:
		resp, err = out.resp, out.err
		switch {
		case err != nil:
			status = StatusError
			err = fmt.Errorf("approval %s: %w", id, err)
		case resp.Approved:
			status = StatusApproved
		default:
			status = StatusRejected
		}
	case <-timeout:
		status = StatusTimeout
		resp = types.HumanResponse{
			Approved: req.TimeoutBehavior != types.TimeoutReject,
			Feedback: fmt.Sprintf("no response within %s", req.Timeout),
		}
	case <-ctx.Done():
		status = StatusError
		err = ctx.Err()
	}

	m.resolve(rec, status, resp, err)
	if recorder != nil {
		recorder.RecordApproval(string(status), time.Since(rec.CreatedAt))
	}
	if err != nil {
		m.logger.Error("approval failed", zap.String("id", id), zap.Error(err))
		return types.HumanResponse{}, err
	}
	m.logger.Info("approval resolved",
		zap.String("id", id),
		zap.String("status", string(status)),
		zap.Bool("approved", resp.Approved),
	)
	return resp, nil
}

func (m *InterventionManager) resolve(rec *ApprovalRecord, status Status, resp types.HumanResponse, err error) {
	now := time.Now()
	m.mu.Lock()
	defer m.mu.Unlock()
	rec.Status = status
	rec.ResolvedAt = &now
	if err != nil {
		rec.Error = err.Error()
		return
	}
	rec.Response = &resp
}

// CollectFeedback forwards to the handler.
func (m *InterventionManager) CollectFeedback(ctx context.Context, prompt string, fc types.FeedbackContext) (string, error) {
	handler, auto, _ := m.state()
	if auto {
		return "Auto-approved feedback", nil
	}
	if handler == nil {
		return "", ErrNoHandler
	}
	return handler.CollectFeedback(ctx, prompt, fc)
}

// Notify is best effort: without a notifying handler it is a no-op, and
// handler errors are logged rather than returned.
func (m *InterventionManager) Notify(ctx context.Context, n types.Notification) error {
	handler, _, _ := m.state()
	notifier, ok := handler.(Notifier)
	if !ok {
		return nil
	}
	if err := notifier.Notify(ctx, n); err != nil {
		m.logger.Warn("notification failed", zap.String("title", n.Title), zap.Error(err))
	}
	return nil
}

// Pending returns the requests still awaiting a decision, oldest first.
func (m *InterventionManager) Pending() []ApprovalRecord {
	return m.list(func(r *ApprovalRecord) bool { return r.Status == StatusPending })
}

// History returns every record, oldest first.
func (m *InterventionManager) History() []ApprovalRecord {
	return m.list(func(*ApprovalRecord) bool { return true })
}

// Get returns a copy of the record with id.
func (m *InterventionManager) Get(id string) (ApprovalRecord, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[id]
	if !ok {
		return ApprovalRecord{}, false
	}
	return *rec, true
}

// ClearHistory drops every record, pending ones included.
func (m *InterventionManager) ClearHistory() {
	m.mu.Lock()
	m.records = make(map[string]*ApprovalRecord)
	m.mu.Unlock()
}

func (m *InterventionManager) list(keep func(*ApprovalRecord) bool) []ApprovalRecord {
	m.mu.RLock()
	out := make([]ApprovalRecord, 0, len(m.records))
	for _, r := range m.records {
		if keep(r) {
			out = append(out, *r)
		}
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
