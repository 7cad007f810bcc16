package declarative

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/workflow"
)

// Subdirectories of a definitions directory.
const (
	AgentsDir    = "agents"
	WorkflowsDir = "workflows"
)

var extensions = []string{".yaml", ".yml", ".json"}

// Loader reads agent and workflow definitions from a directory laid out as
//
//	<dir>/agents/<id>.yaml|yml|json
//	<dir>/workflows/<id>.yaml|yml|json
//
// and caches what it loads. It is safe for concurrent use.
type Loader struct {
	dir     string
	factory *AgentFactory
	logger  *zap.Logger

	mu        sync.RWMutex
	agents    map[string]agent.Config
	workflows map[string]workflow.Definition
}

// NewLoader creates a loader rooted at dir.
func NewLoader(dir string, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Loader{
		dir:       dir,
		factory:   NewAgentFactory(logger),
		logger:    logger.With(zap.String("component", "definition_loader"), zap.String("dir", dir)),
		agents:    make(map[string]agent.Config),
		workflows: make(map[string]workflow.Definition),
	}
}

// Dir returns the definitions directory.
func (l *Loader) Dir() string { return l.dir }

// Factory returns the factory used to validate agent definitions.
func (l *Loader) Factory() *AgentFactory { return l.factory }

// LoadAgentFile parses and validates one agent file. The result is not cached.
func (l *Loader) LoadAgentFile(path string) (agent.Config, error) {
	var def AgentDefinition
	if err := readFile(path, &def); err != nil {
		return agent.Config{}, err
	}
	if err := l.factory.Validate(path, &def); err != nil {
		return agent.Config{}, err
	}
	return l.factory.ToAgentConfig(&def), nil
}

// LoadAllAgents loads every agent file under <dir>/agents into the cache.
// Invalid files are skipped and reported together in the returned error;
// the returned map still holds every agent that loaded. A missing agents
// directory yields an empty map.
func (l *Loader) LoadAllAgents() (map[string]agent.Config, error) {
	agentsDir := filepath.Join(l.dir, AgentsDir)
	entries, err := os.ReadDir(agentsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			l.logger.Warn("agents directory not found", zap.String("path", agentsDir))
			return l.agentSnapshot(), nil
		}
		return nil, fmt.Errorf("read agents directory: %w", err)
	}

	var errs []error
	for _, e := range entries {
		if e.IsDir() || detectFormat(e.Name()) == "" {
			continue
		}
		path := filepath.Join(agentsDir, e.Name())
		cfg, err := l.LoadAgentFile(path)
		if err != nil {
			l.logger.Error("failed to load agent definition", zap.String("file", e.Name()), zap.Error(err))
			errs = append(errs, err)
			continue
		}

		l.mu.Lock()
		if _, dup := l.agents[cfg.ID]; dup {
			l.logger.Warn("agent definition overrides an earlier one", zap.String("id", cfg.ID), zap.String("file", e.Name()))
		}
		l.agents[cfg.ID] = cfg
		l.mu.Unlock()
	}

	return l.agentSnapshot(), errors.Join(errs...)
}

func (l *Loader) agentSnapshot() map[string]agent.Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]agent.Config, len(l.agents))
	for id, cfg := range l.agents {
		out[id] = cfg.Clone()
	}
	return out
}

// AgentConfig returns the cached config for id.
func (l *Loader) AgentConfig(id string) (agent.Config, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	cfg, ok := l.agents[id]
	if !ok {
		return agent.Config{}, false
	}
	return cfg.Clone(), true
}

// AgentConfigs returns every cached agent config ordered by id.
func (l *Loader) AgentConfigs() []agent.Config {
	l.mu.RLock()
	out := make([]agent.Config, 0, len(l.agents))
	for _, cfg := range l.agents {
		out = append(out, cfg.Clone())
	}
	l.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadWorkflow returns the workflow stored as <dir>/workflows/<id>.*,
// serving repeated calls from the cache.
func (l *Loader) LoadWorkflow(id string) (workflow.Definition, error) {
	l.mu.RLock()
	def, ok := l.workflows[id]
	l.mu.RUnlock()
	if ok {
		return def, nil
	}

	path, err := l.find(WorkflowsDir, id)
	if err != nil {
		return workflow.Definition{}, err
	}
	def, err = l.LoadWorkflowFile(path)
	if err != nil {
		return workflow.Definition{}, err
	}

	l.mu.Lock()
	l.workflows[id] = def
	l.mu.Unlock()
	return def, nil
}

// LoadWorkflowFile parses and validates one workflow file. The result is
// not cached.
func (l *Loader) LoadWorkflowFile(path string) (workflow.Definition, error) {
	var def workflow.Definition
	if err := readFile(path, &def); err != nil {
		return workflow.Definition{}, err
	}
	if issues := def.Check(); len(issues) > 0 {
		return workflow.Definition{}, &ValidationError{Path: path, Issues: issues}
	}
	return def, nil
}

// WorkflowIDs lists the ids of the workflow files under <dir>/workflows.
func (l *Loader) WorkflowIDs() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(l.dir, WorkflowsDir))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflows directory: %w", err)
	}
	seen := make(map[string]bool)
	var ids []string
	for _, e := range entries {
		if e.IsDir() || detectFormat(e.Name()) == "" {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (l *Loader) find(sub, id string) (string, error) {
	for _, ext := range extensions {
		path := filepath.Join(l.dir, sub, id+ext)
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: %s/%s in %s", ErrDefinitionNotFound, sub, id, l.dir)
}

// ClearCache drops every cached agent and workflow.
func (l *Loader) ClearCache() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.agents = make(map[string]agent.Config)
	l.workflows = make(map[string]workflow.Definition)
}

// Reload clears the cache and reloads every agent definition.
func (l *Loader) Reload() (map[string]agent.Config, error) {
	l.ClearCache()
	return l.LoadAllAgents()
}

// DirExists reports whether the definitions directory exists.
func (l *Loader) DirExists() bool {
	info, err := os.Stat(l.dir)
	return err == nil && info.IsDir()
}

// EnsureDirs creates the agents and workflows subdirectories.
func (l *Loader) EnsureDirs() error {
	for _, sub := range []string{AgentsDir, WorkflowsDir} {
		if err := os.MkdirAll(filepath.Join(l.dir, sub), 0o755); err != nil {
			return fmt.Errorf("create %s directory: %w", sub, err)
		}
	}
	return nil
}

// SaveAgentConfig writes cfg to <dir>/agents/<id>.yaml and caches it.
func (l *Loader) SaveAgentConfig(cfg agent.Config) error {
	def := FromConfig(cfg)
	path := filepath.Join(l.dir, AgentsDir, cfg.ID+".yaml")
	if err := l.factory.Validate(path, &def); err != nil {
		return err
	}
	if err := l.write(path, &def); err != nil {
		return err
	}

	l.mu.Lock()
	l.agents[cfg.ID] = def.Config()
	l.mu.Unlock()
	return nil
}

// SaveWorkflow writes def to <dir>/workflows/<id>.yaml and caches it.
func (l *Loader) SaveWorkflow(def workflow.Definition) error {
	path := filepath.Join(l.dir, WorkflowsDir, def.ID+".yaml")
	if issues := def.Check(); len(issues) > 0 {
		return &ValidationError{Path: path, Issues: issues}
	}
	if err := l.write(path, def); err != nil {
		return err
	}

	l.mu.Lock()
	l.workflows[def.ID] = def
	l.mu.Unlock()
	return nil
}

func (l *Loader) write(path string, v any) error {
	if err := l.EnsureDirs(); err != nil {
		return err
	}
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	l.logger.Info("definition saved", zap.String("path", path))
	return nil
}

// readFile decodes path into v based on its extension.
func readFile(path string, v any) error {
	format := detectFormat(path)
	if format == "" {
		return fmt.Errorf("unsupported file extension: %s", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read definition file: %w", err)
	}
	if err := decode(data, format, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

// decode parses data in the given format ("yaml" or "json").
func decode(data []byte, format string, v any) error {
	switch strings.ToLower(format) {
	case "yaml", "yml":
		if err := yaml.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse YAML: %w", err)
		}
	case "json":
		if err := json.Unmarshal(data, v); err != nil {
			return fmt.Errorf("parse JSON: %w", err)
		}
	default:
		return fmt.Errorf("unsupported format %q, use \"yaml\" or \"json\"", format)
	}
	return nil
}

// detectFormat returns "yaml" or "json" based on file extension, or "" if unknown.
func detectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "yaml"
	case ".json":
		return "json"
	default:
		return ""
	}
}
