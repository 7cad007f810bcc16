package workflow

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/types"
)

// Synthetic execution path markers.
const (
	MarkerParallelStart    = "parallel_start"
	MarkerParallelComplete = "parallel_complete"
	MarkerEscalateExit     = "escalate_exit"
	MarkerConditionExit    = "condition_exit"
	MarkerMaxIterations    = "max_iterations_reached"
)

// ReasonHumanRejected is the Result.Reason of a run stopped at an approval.
const ReasonHumanRejected = "Human rejected"

// AgentResults maps member keys to results, preserving first-insertion order.
// Re-setting a key replaces the value in place.
type AgentResults struct {
	keys []string
	m    map[string]*agent.Result
}

// NewAgentResults creates an empty result map.
func NewAgentResults() *AgentResults {
	return &AgentResults{m: make(map[string]*agent.Result)}
}

func (r *AgentResults) Set(key string, res *agent.Result) {
	if _, ok := r.m[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.m[key] = res
}

func (r *AgentResults) Get(key string) (*agent.Result, bool) {
	if r == nil {
		return nil, false
	}
	res, ok := r.m[key]
	return res, ok
}

func (r *AgentResults) Len() int {
	if r == nil {
		return 0
	}
	return len(r.keys)
}

// Keys returns the keys in insertion order.
func (r *AgentResults) Keys() []string {
	if r == nil {
		return nil
	}
	return append([]string(nil), r.keys...)
}

// Each calls fn for every entry in insertion order.
func (r *AgentResults) Each(fn func(key string, res *agent.Result)) {
	if r == nil {
		return
	}
	for _, k := range r.keys {
		fn(k, r.m[k])
	}
}

// MarshalJSON encodes the results as an object with keys in insertion order.
func (r *AgentResults) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range r.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(r.m[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Metrics 工作流聚合指标
type Metrics struct {
	TotalDuration      time.Duration `json:"totalDuration"`
	AgentCount         int           `json:"agentCount"`
	SuccessfulAgents   int           `json:"successfulAgents"`
	FailedAgents       int           `json:"failedAgents"`
	HumanInterventions int           `json:"humanInterventions"`
	TotalIterations    int           `json:"totalIterations,omitempty"`
}

// InterventionRecord is one human decision taken during a run.
type InterventionRecord = types.InterventionRecord

// Result is the outcome of a workflow run.
type Result struct {
	Success bool `json:"success"`
	Output  any  `json:"output"`
	// Reason explains a controlled failure such as a human rejection.
	Reason        string               `json:"reason,omitempty"`
	AgentResults  *AgentResults        `json:"agentResults"`
	ExecutionPath []string             `json:"executionPath"`
	Metrics       Metrics              `json:"metrics"`
	Interventions []InterventionRecord `json:"interventions"`
}

// ValidationResult is the structural check of a built workflow.
type ValidationResult struct {
	Valid    bool     `json:"valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
}
