package declarative

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/agent"
)

// AgentFactory validates agent definitions and turns them into runtime
// agents through an agent.Registry.
type AgentFactory struct {
	logger *zap.Logger
}

// NewAgentFactory creates a new AgentFactory.
func NewAgentFactory(logger *zap.Logger) *AgentFactory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AgentFactory{logger: logger.With(zap.String("component", "agent_factory"))}
}

// Validate checks def against the agent schema. path only labels the
// returned *ValidationError.
func (f *AgentFactory) Validate(path string, def *AgentDefinition) error {
	if def == nil {
		return &ValidationError{Path: path, Issues: []string{"definition is empty"}}
	}
	if issues := def.Issues(); len(issues) > 0 {
		return &ValidationError{Path: path, Issues: issues}
	}
	return nil
}

// ToAgentConfig converts a validated definition into an agent.Config.
func (f *AgentFactory) ToAgentConfig(def *AgentDefinition) agent.Config {
	cfg := def.Config()
	f.logger.Debug("converted agent definition",
		zap.String("id", cfg.ID),
		zap.Duration("timeout", cfg.Timeout),
		zap.Int("skills", len(cfg.Skills)),
	)
	return cfg
}

// Instantiate builds and registers an agent for every config. The registry's
// own factory for an id takes precedence; fallback builds the rest. Configs
// that neither can build are reported together.
func (f *AgentFactory) Instantiate(reg *agent.Registry, configs []agent.Config, fallback agent.Factory) error {
	var errs []error
	for _, cfg := range configs {
		_, err := reg.CreateFromConfig(cfg)
		if err == nil {
			continue
		}
		if !errors.Is(err, agent.ErrNoFactory) || fallback == nil {
			errs = append(errs, err)
			continue
		}
		a, ferr := fallback(cfg)
		if ferr != nil {
			errs = append(errs, fmt.Errorf("failed to create agent %q: %w", cfg.ID, ferr))
			continue
		}
		reg.Register(a)
	}
	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	f.logger.Info("agents instantiated", zap.Int("count", len(configs)))
	return nil
}
