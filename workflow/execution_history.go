package workflow

import (
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/stageflow/agent"
)

// ExecutionStatus represents the status of an execution
type ExecutionStatus string

const (
	// ExecutionStatusRunning indicates the execution is in progress
	ExecutionStatusRunning ExecutionStatus = "running"
	// ExecutionStatusCompleted indicates the execution completed successfully
	ExecutionStatusCompleted ExecutionStatus = "completed"
	// ExecutionStatusFailed indicates the execution failed or was rejected
	ExecutionStatusFailed ExecutionStatus = "failed"
)

// StepExecution records one member result of a run
type StepExecution struct {
	Key      string          `json:"key"`
	Status   ExecutionStatus `json:"status"`
	Summary  string          `json:"summary,omitempty"`
	Duration time.Duration   `json:"duration"`
	Error    string          `json:"error,omitempty"`
}

// ExecutionHistory records a finished or running workflow run
type ExecutionHistory struct {
	ExecutionID   string           `json:"executionId"`
	WorkflowID    string           `json:"workflowId"`
	WorkflowType  Type             `json:"workflowType"`
	SessionID     string           `json:"sessionId"`
	StartTime     time.Time        `json:"startTime"`
	EndTime       time.Time        `json:"endTime,omitempty"`
	Duration      time.Duration    `json:"duration"`
	Status        ExecutionStatus  `json:"status"`
	ExecutionPath []string         `json:"executionPath,omitempty"`
	Steps         []*StepExecution `json:"steps"`
	Interventions int              `json:"interventions"`
	Error         string           `json:"error,omitempty"`
	mu            sync.RWMutex
}

// NewExecutionHistory creates a new execution history
func NewExecutionHistory(executionID, workflowID string, typ Type, sessionID string) *ExecutionHistory {
	return &ExecutionHistory{
		ExecutionID:  executionID,
		WorkflowID:   workflowID,
		WorkflowType: typ,
		SessionID:    sessionID,
		StartTime:    time.Now(),
		Status:       ExecutionStatusRunning,
		Steps:        make([]*StepExecution, 0),
	}
}

// Complete marks the execution as finished with res and err. A nil res is
// allowed for runs that failed before producing a result.
func (h *ExecutionHistory) Complete(res *Result, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.EndTime = time.Now()
	h.Duration = h.EndTime.Sub(h.StartTime)

	if res != nil {
		h.ExecutionPath = append([]string(nil), res.ExecutionPath...)
		h.Interventions = len(res.Interventions)
		res.AgentResults.Each(func(key string, r *agent.Result) {
			step := &StepExecution{
				Key:      key,
				Status:   ExecutionStatusCompleted,
				Summary:  r.Summary,
				Duration: r.Metrics.Duration,
			}
			if !r.Success {
				step.Status = ExecutionStatusFailed
				step.Error = r.ErrorMessage()
			}
			h.Steps = append(h.Steps, step)
		})
	}

	switch {
	case err != nil:
		h.Status = ExecutionStatusFailed
		h.Error = err.Error()
	case res != nil && !res.Success:
		h.Status = ExecutionStatusFailed
		h.Error = res.Reason
	default:
		h.Status = ExecutionStatusCompleted
	}
}

// GetSteps returns a copy of the step records
func (h *ExecutionHistory) GetSteps() []*StepExecution {
	h.mu.RLock()
	defer h.mu.RUnlock()

	steps := make([]*StepExecution, len(h.Steps))
	copy(steps, h.Steps)
	return steps
}

// GetStatus returns the current status
func (h *ExecutionHistory) GetStatus() ExecutionStatus {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.Status
}

// ExecutionHistoryStore keeps the most recent execution histories
type ExecutionHistoryStore struct {
	histories map[string]*ExecutionHistory
	order     []string
	limit     int
	mu        sync.RWMutex
}

// NewExecutionHistoryStore creates a store keeping at most limit histories;
// limit <= 0 keeps everything.
func NewExecutionHistoryStore(limit int) *ExecutionHistoryStore {
	return &ExecutionHistoryStore{
		histories: make(map[string]*ExecutionHistory),
		limit:     limit,
	}
}

// Save saves an execution history, evicting the oldest beyond the limit
func (s *ExecutionHistoryStore) Save(history *ExecutionHistory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.histories[history.ExecutionID]; !ok {
		s.order = append(s.order, history.ExecutionID)
	}
	s.histories[history.ExecutionID] = history
	for s.limit > 0 && len(s.order) > s.limit {
		delete(s.histories, s.order[0])
		s.order = s.order[1:]
	}
}

// Get retrieves an execution history by ID
func (s *ExecutionHistoryStore) Get(executionID string) (*ExecutionHistory, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	h, ok := s.histories[executionID]
	return h, ok
}

// List returns every history, newest first
func (s *ExecutionHistoryStore) List() []*ExecutionHistory {
	return s.filter(func(*ExecutionHistory) bool { return true })
}

// ListByWorkflow returns all executions for a workflow
func (s *ExecutionHistoryStore) ListByWorkflow(workflowID string) []*ExecutionHistory {
	return s.filter(func(h *ExecutionHistory) bool { return h.WorkflowID == workflowID })
}

// ListBySession returns all executions that used a session
func (s *ExecutionHistoryStore) ListBySession(sessionID string) []*ExecutionHistory {
	return s.filter(func(h *ExecutionHistory) bool { return h.SessionID == sessionID })
}

// ListByStatus returns executions with a specific status
func (s *ExecutionHistoryStore) ListByStatus(status ExecutionStatus) []*ExecutionHistory {
	return s.filter(func(h *ExecutionHistory) bool { return h.GetStatus() == status })
}

func (s *ExecutionHistoryStore) filter(keep func(*ExecutionHistory) bool) []*ExecutionHistory {
	s.mu.RLock()
	var result []*ExecutionHistory
	for _, h := range s.histories {
		if keep(h) {
			result = append(result, h)
		}
	}
	s.mu.RUnlock()
	sort.Slice(result, func(i, j int) bool { return result[i].StartTime.After(result[j].StartTime) })
	return result
}

// MarshalJSON encodes the history under its read lock so a running
// execution can be served while it is being completed.
func (h *ExecutionHistory) MarshalJSON() ([]byte, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	type view struct {
		ExecutionID   string           `json:"executionId"`
		WorkflowID    string           `json:"workflowId"`
		WorkflowType  Type             `json:"workflowType"`
		SessionID     string           `json:"sessionId"`
		StartTime     time.Time        `json:"startTime"`
		EndTime       time.Time        `json:"endTime,omitempty"`
		Duration      time.Duration    `json:"duration"`
		Status        ExecutionStatus  `json:"status"`
		ExecutionPath []string         `json:"executionPath,omitempty"`
		Steps         []*StepExecution `json:"steps"`
		Interventions int              `json:"interventions"`
		Error         string           `json:"error,omitempty"`
	}
	return json.Marshal(view{
		ExecutionID:   h.ExecutionID,
		WorkflowID:    h.WorkflowID,
		WorkflowType:  h.WorkflowType,
		SessionID:     h.SessionID,
		StartTime:     h.StartTime,
		EndTime:       h.EndTime,
		Duration:      h.Duration,
		Status:        h.Status,
		ExecutionPath: h.ExecutionPath,
		Steps:         h.Steps,
		Interventions: h.Interventions,
		Error:         h.Error,
	})
}
