package declarative

import (
	"fmt"
	"time"

	"github.com/BaSui01/stageflow/agent"
)

// Default values for optional agent definition fields.
const (
	DefaultTimeoutMs  int64 = 300000
	DefaultMaxRetries       = agent.DefaultMaxRetries
	DefaultVersion          = agent.DefaultVersion
)

// AgentDefinition is the file form of an agent.Config.
// Timeout is expressed in milliseconds.
type AgentDefinition struct {
	// Identity
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	DisplayName map[string]string `yaml:"displayName" json:"displayName"`
	Description string            `yaml:"description" json:"description"`
	Version     string            `yaml:"version,omitempty" json:"version,omitempty"`
	Tags        []string          `yaml:"tags,omitempty" json:"tags,omitempty"`

	// Prompt
	Instruction string `yaml:"instruction" json:"instruction"`
	OutputKey   string `yaml:"outputKey,omitempty" json:"outputKey,omitempty"`
	Model       string `yaml:"model,omitempty" json:"model,omitempty"`

	// Capabilities
	Tools  []string          `yaml:"tools,omitempty" json:"tools,omitempty"`
	Skills []SkillDefinition `yaml:"skills,omitempty" json:"skills,omitempty"`

	// Execution
	Timeout             *int64   `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxRetries          *int     `yaml:"maxRetries,omitempty" json:"maxRetries,omitempty"`
	RequiresApproval    bool     `yaml:"requiresApproval" json:"requiresApproval"`
	ApprovalCheckpoints []string `yaml:"approvalCheckpoints,omitempty" json:"approvalCheckpoints,omitempty"`
	Dependencies        []string `yaml:"dependencies,omitempty" json:"dependencies,omitempty"`
}

// SkillDefinition describes a skill. A missing enabled flag means enabled.
type SkillDefinition struct {
	Name        string         `yaml:"name" json:"name"`
	Description string         `yaml:"description" json:"description"`
	Enabled     *bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Config      map[string]any `yaml:"config,omitempty" json:"config,omitempty"`
}

// Issues returns the schema violations of d, one per field.
func (d *AgentDefinition) Issues() []string {
	var issues []string
	add := func(field, msg string) {
		issues = append(issues, field+": "+msg)
	}

	switch {
	case d.ID == "":
		add("id", "is required")
	case !agent.ValidID(d.ID):
		add("id", "must be lowercase alphanumeric with hyphens")
	}
	if d.Name == "" {
		add("name", "is required")
	}
	for _, lang := range []string{"en", "ko"} {
		if d.DisplayName[lang] == "" {
			add("displayName."+lang, "is required")
		}
	}
	if d.Description == "" {
		add("description", "is required")
	}
	for i, s := range d.Skills {
		if s.Name == "" {
			add(fmt.Sprintf("skills[%d].name", i), "is required")
		}
	}
	if d.Timeout != nil && *d.Timeout <= 0 {
		add("timeout", fmt.Sprintf("must be positive, got %d", *d.Timeout))
	}
	if d.MaxRetries != nil && *d.MaxRetries < 0 {
		add("maxRetries", fmt.Sprintf("must not be negative, got %d", *d.MaxRetries))
	}
	return issues
}

// Config converts d into an agent.Config with defaults applied.
func (d *AgentDefinition) Config() agent.Config {
	timeout := DefaultTimeoutMs
	if d.Timeout != nil {
		timeout = *d.Timeout
	}
	retries := DefaultMaxRetries
	if d.MaxRetries != nil {
		retries = *d.MaxRetries
	}
	version := d.Version
	if version == "" {
		version = DefaultVersion
	}

	cfg := agent.Config{
		ID:                  d.ID,
		Name:                d.Name,
		DisplayName:         d.DisplayName,
		Description:         d.Description,
		Instruction:         d.Instruction,
		Tools:               d.Tools,
		OutputKey:           d.OutputKey,
		Model:               d.Model,
		Timeout:             time.Duration(timeout) * time.Millisecond,
		MaxRetries:          retries,
		RequiresApproval:    d.RequiresApproval,
		ApprovalCheckpoints: d.ApprovalCheckpoints,
		Dependencies:        d.Dependencies,
		Version:             version,
		Tags:                d.Tags,
	}
	for _, s := range d.Skills {
		enabled := s.Enabled == nil || *s.Enabled
		cfg.Skills = append(cfg.Skills, agent.Skill{
			Name:        s.Name,
			Description: s.Description,
			Enabled:     enabled,
			Config:      s.Config,
		})
	}
	return cfg.Clone()
}

// FromConfig is the inverse of Config.
func FromConfig(cfg agent.Config) AgentDefinition {
	cfg = cfg.WithDefaults().Clone()
	timeout := cfg.Timeout.Milliseconds()
	retries := cfg.MaxRetries

	def := AgentDefinition{
		ID:                  cfg.ID,
		Name:                cfg.Name,
		DisplayName:         cfg.DisplayName,
		Description:         cfg.Description,
		Version:             cfg.Version,
		Tags:                cfg.Tags,
		Instruction:         cfg.Instruction,
		OutputKey:           cfg.OutputKey,
		Model:               cfg.Model,
		Tools:               cfg.Tools,
		Timeout:             &timeout,
		MaxRetries:          &retries,
		RequiresApproval:    cfg.RequiresApproval,
		ApprovalCheckpoints: cfg.ApprovalCheckpoints,
		Dependencies:        cfg.Dependencies,
	}
	for _, s := range cfg.Skills {
		enabled := s.Enabled
		def.Skills = append(def.Skills, SkillDefinition{
			Name:        s.Name,
			Description: s.Description,
			Enabled:     &enabled,
			Config:      s.Config,
		})
	}
	return def
}
