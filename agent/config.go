package agent

import (
	"regexp"
	"time"
)

// Defaults applied to agent configurations that leave the field unset.
const (
	DefaultTimeout    = 5 * time.Minute
	DefaultMaxRetries = 3
	DefaultVersion    = "1.0.0"
)

var idPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// ValidID reports whether id is a lowercase alphanumeric identifier with hyphens.
func ValidID(id string) bool {
	return idPattern.MatchString(id)
}

// Skill is a named capability an agent advertises.
type Skill struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Enabled     bool           `json:"enabled"`
	Config      map[string]any `json:"config,omitempty"`
}

// Config is the static definition of an agent. Treat it as immutable once
// loaded; agents copy what they keep.
type Config struct {
	ID                  string            `json:"id"`
	Name                string            `json:"name"`
	DisplayName         map[string]string `json:"displayName"`
	Description         string            `json:"description"`
	Instruction         string            `json:"instruction"`
	Tools               []string          `json:"tools,omitempty"`
	Skills              []Skill           `json:"skills,omitempty"`
	OutputKey           string            `json:"outputKey,omitempty"`
	Model               string            `json:"model,omitempty"`
	Timeout             time.Duration     `json:"timeout"`
	MaxRetries          int               `json:"maxRetries"`
	RequiresApproval    bool              `json:"requiresApproval"`
	ApprovalCheckpoints []string          `json:"approvalCheckpoints,omitempty"`
	Dependencies        []string          `json:"dependencies,omitempty"`
	Version             string            `json:"version"`
	Tags                []string          `json:"tags,omitempty"`
}

// WithDefaults returns a copy with unset fields defaulted.
func (c Config) WithDefaults() Config {
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.Version == "" {
		c.Version = DefaultVersion
	}
	return c
}

// Clone returns a deep copy of the slices and maps in c.
func (c Config) Clone() Config {
	out := c
	out.DisplayName = cloneStrings(c.DisplayName)
	out.Tools = append([]string(nil), c.Tools...)
	out.ApprovalCheckpoints = append([]string(nil), c.ApprovalCheckpoints...)
	out.Dependencies = append([]string(nil), c.Dependencies...)
	out.Tags = append([]string(nil), c.Tags...)
	if c.Skills != nil {
		out.Skills = make([]Skill, len(c.Skills))
		for i, s := range c.Skills {
			s.Config = cloneAny(s.Config)
			out.Skills[i] = s
		}
	}
	return out
}

func cloneStrings(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAny(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
