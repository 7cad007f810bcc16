package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Type 工作流类型
type Type string

const (
	TypeSequential Type = "sequential"
	TypeParallel   Type = "parallel"
	TypeLoop       Type = "loop"
	TypeHybrid     Type = "hybrid"
)

// IsValid reports whether t is a known workflow type.
func (t Type) IsValid() bool {
	switch t {
	case TypeSequential, TypeParallel, TypeLoop, TypeHybrid:
		return true
	}
	return false
}

// DefaultMaxIterations bounds loop workflows without an explicit limit.
const DefaultMaxIterations = 10

// Member is one entry of a workflow's member list: either an agent
// reference or a nested workflow. Definition files may also write an
// agent reference as a plain string.
type Member struct {
	ID       string      `json:"id,omitempty" yaml:"id,omitempty"`
	Workflow *Definition `json:"workflow,omitempty" yaml:"workflow,omitempty"`
}

// Ref returns a member referencing agent id.
func Ref(id string) Member { return Member{ID: id} }

// Nested returns a member wrapping def.
func Nested(def Definition) Member { return Member{Workflow: &def} }

// Key is the member's id within its parent: the agent id or the nested
// workflow id.
func (m Member) Key() string {
	if m.Workflow != nil {
		return m.Workflow.ID
	}
	return m.ID
}

type memberFields Member

func (m *Member) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '"' {
		*m = Member{}
		return json.Unmarshal(data, &m.ID)
	}
	var f memberFields
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("workflow member: %w", err)
	}
	*m = Member(f)
	return nil
}

func (m *Member) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		*m = Member{}
		return node.Decode(&m.ID)
	}
	var f memberFields
	if err := node.Decode(&f); err != nil {
		return fmt.Errorf("workflow member: %w", err)
	}
	*m = Member(f)
	return nil
}

// Config tunes a workflow run. Timeout is expressed in milliseconds in
// definition files.
type Config struct {
	MaxIterations   int      `json:"maxIterations,omitempty" yaml:"maxIterations,omitempty"`
	TimeoutMs       int64    `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	ContinueOnError bool     `json:"continueOnError" yaml:"continueOnError"`
	ApprovalGates   []string `json:"approvalGates,omitempty" yaml:"approvalGates,omitempty"`
	// MaxConcurrency limits parallel branches; 0 means unbounded.
	MaxConcurrency int `json:"maxConcurrency,omitempty" yaml:"maxConcurrency,omitempty"`
	// UntilStateKey ends a loop after the first iteration that leaves the
	// key set in session state.
	UntilStateKey       string         `json:"untilStateKey,omitempty" yaml:"untilStateKey,omitempty"`
	MethodologySpecific map[string]any `json:"methodologySpecific,omitempty" yaml:"methodologySpecific,omitempty"`
}

// Timeout returns the configured run timeout, 0 when unset.
func (c Config) Timeout() time.Duration {
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// HasGate reports whether agentID is listed in ApprovalGates.
func (c Config) HasGate(agentID string) bool {
	for _, g := range c.ApprovalGates {
		if g == agentID {
			return true
		}
	}
	return false
}

// Definition is the declarative description of a workflow.
type Definition struct {
	ID            string   `json:"id" yaml:"id"`
	Name          string   `json:"name" yaml:"name"`
	Type          Type     `json:"type" yaml:"type"`
	Agents        []Member `json:"agents" yaml:"agents"`
	Config        *Config  `json:"config,omitempty" yaml:"config,omitempty"`
	MergerAgentID string   `json:"mergerAgentId,omitempty" yaml:"mergerAgentId,omitempty"`
}

// EffectiveConfig returns the definition's config, or the zero config.
func (d Definition) EffectiveConfig() Config {
	if d.Config == nil {
		return Config{}
	}
	return *d.Config
}

// Check returns the schema issues of d and every nested definition. Path
// prefixes locate nested problems, e.g. "agents[2].workflow.type".
func (d Definition) Check() []string {
	return d.check("")
}

func (d Definition) check(prefix string) []string {
	var issues []string
	add := func(field, format string, args ...any) {
		issues = append(issues, prefix+field+": "+fmt.Sprintf(format, args...))
	}

	if d.ID == "" {
		add("id", "is required")
	}
	if d.Name == "" {
		add("name", "is required")
	}
	if !d.Type.IsValid() {
		add("type", "must be one of sequential, parallel, loop, hybrid, got %q", d.Type)
	}
	if d.Agents == nil {
		add("agents", "is required")
	}
	for i, m := range d.Agents {
		field := fmt.Sprintf("agents[%d]", i)
		switch {
		case m.ID != "" && m.Workflow != nil:
			add(field, "must set exactly one of id or workflow")
		case m.ID == "" && m.Workflow == nil:
			add(field, "must set id or workflow")
		case m.Workflow != nil:
			issues = append(issues, m.Workflow.check(prefix+field+".workflow.")...)
		}
	}
	if d.Config != nil {
		if d.Config.MaxIterations < 0 {
			add("config.maxIterations", "must be positive, got %d", d.Config.MaxIterations)
		}
		if d.Config.TimeoutMs < 0 {
			add("config.timeout", "must be positive, got %d", d.Config.TimeoutMs)
		}
		if d.Config.MaxConcurrency < 0 {
			add("config.maxConcurrency", "must not be negative, got %d", d.Config.MaxConcurrency)
		}
	}
	return issues
}
