// =============================================================================
// 📦 测试数据工厂 - Agent 与会话
// =============================================================================
// 提供回显、失败、阻塞等常用测试 Agent，以及预置研究会话
// =============================================================================
package fixtures

import (
	"context"
	"fmt"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/agent/persistence"
	"github.com/BaSui01/stageflow/types"
)

// StepFunc 是测试 Agent 的工作函数，nil 时输出 "<id>-out"
type StepFunc func(ctx context.Context, actx *agent.Context) (any, error)

// AgentConfig 返回满足校验规则的最小 Agent 配置
func AgentConfig(id string) agent.Config {
	return agent.Config{
		ID:          id,
		Name:        id,
		DisplayName: map[string]string{"en": "Agent " + id},
		Description: "test agent " + id,
	}
}

// NewAgent 用 fn 构建测试 Agent
func NewAgent(id string, fn StepFunc, opts ...agent.Option) *agent.BaseAgent {
	return agent.NewBaseAgent(AgentConfig(id), func(ctx context.Context, actx *agent.Context, _ string) (any, error) {
		if fn == nil {
			return id + "-out", nil
		}
		return fn(ctx, actx)
	}, opts...)
}

// EchoAgents 为每个 id 构建输出 "<id>-out" 的 Agent
func EchoAgents(ids ...string) []agent.Agent {
	out := make([]agent.Agent, len(ids))
	for i, id := range ids {
		out[i] = NewAgent(id, nil)
	}
	return out
}

// FailingAgent 总是返回 err
func FailingAgent(id string, err error) *agent.BaseAgent {
	return NewAgent(id, func(context.Context, *agent.Context) (any, error) {
		return nil, err
	})
}

// BlockingAgent 阻塞直到 ctx 结束或 release 关闭
func BlockingAgent(id string, release <-chan struct{}) *agent.BaseAgent {
	return NewAgent(id, func(ctx context.Context, _ *agent.Context) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-release:
			return id + "-out", nil
		}
	})
}

// MemberIDs 返回 agent-0 ... agent-(n-1)
func MemberIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("agent-%d", i)
	}
	return ids
}

// ResearchSession 返回已完成构思与文献检索阶段的会话
func ResearchSession(id string) *persistence.Session {
	s := persistence.NewSession(id)
	s.SetResearchTopic("sleep and memory consolidation")
	s.SetCurrentStage(types.StageLiteratureSearch)
	s.Set(types.KeyResearchIdea, "REM sleep improves recall")
	s.Set(types.KeyLiteratureResults, []any{"paper-1", "paper-2"})
	return s
}
