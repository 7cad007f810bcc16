package main

import (
	"context"
	"fmt"
	"time"

	"github.com/BaSui01/stageflow/agent"
	"github.com/BaSui01/stageflow/types"
	"github.com/BaSui01/stageflow/workflow"

	"go.uber.org/zap"
)

// =============================================================================
// 🧩 模板 Agent
// =============================================================================
// 声明式定义中没有注册专用工厂的 agent 都由模板工厂构建：执行时把插值后的
// 指令与输入整理成结构化草稿写回会话，供下游 {key} 占位符引用。

// researchAgentConfigs 是内置研究流程所需的六个阶段 agent，定义目录中同名
// 文件会覆盖这里的默认值。
func researchAgentConfigs() []agent.Config {
	return []agent.Config{
		{
			ID:          workflow.AgentIdeaBuilding,
			Name:        "Idea Building",
			Description: "Refines a research topic into a research idea and hypothesis",
			Instruction: "Develop a focused research idea and a testable hypothesis for the topic",
			OutputKey:   types.KeyResearchIdea,
			Tags:        []string{"research", "ideation"},
		},
		{
			ID:          workflow.AgentLiteratureSearch,
			Name:        "Literature Search",
			Description: "Searches and summarizes literature relevant to the research idea",
			Instruction: "Search the literature relevant to: {research_idea}",
			OutputKey:   types.KeyLiteratureResults,
			Tags:        []string{"research", "literature"},
		},
		{
			ID:          workflow.AgentExperimentDesign,
			Name:        "Experiment Design",
			Description: "Designs the study from the idea and the literature",
			Instruction: "Design a study for {research_idea} grounded in {literature_results}",
			OutputKey:   types.KeyExperimentDesign,
			Tags:        []string{"research", "design"},
		},
		{
			ID:          workflow.AgentDataAnalysis,
			Name:        "Data Analysis",
			Description: "Analyzes collected data according to the study design",
			Instruction: "Analyze the data following {experiment_design}",
			OutputKey:   types.KeyAnalysisResults,
			Tags:        []string{"research", "analysis"},
		},
		{
			ID:          workflow.AgentPaperWriting,
			Name:        "Paper Writing",
			Description: "Drafts the paper from the analysis results",
			Instruction: "Write a paper draft reporting {analysis_results}",
			OutputKey:   types.KeyPaperDraft,
			Tags:        []string{"research", "writing"},
		},
		{
			ID:          workflow.AgentFormattingReview,
			Name:        "Formatting Review",
			Description: "Reviews the draft for formatting and citation style",
			Instruction: "Review the formatting of {paper_draft}",
			OutputKey:   types.KeyFinalDocument,
			Tags:        []string{"research", "review"},
		},
	}
}

// templateFactory 返回 agent.Factory，构建的 agent 在执行前把会话阶段切到
// 该 agent 对应的研究阶段。
func templateFactory(logger *zap.Logger) agent.Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(cfg agent.Config) (agent.Agent, error) {
		if !agent.ValidID(cfg.ID) {
			return nil, fmt.Errorf("invalid agent id %q", cfg.ID)
		}
		id := cfg.ID
		hooks := agent.Hooks{
			BeforeExecute: func(ctx context.Context, actx *agent.Context) error {
				if actx.State == nil {
					return nil
				}
				if stage, ok := workflow.StageForAgent(id); ok {
					actx.State.SetCurrentStage(stage)
				}
				return nil
			},
		}
		return agent.NewBaseAgent(cfg, runTemplate(id),
			agent.WithHooks(hooks),
			agent.WithSummary(func(any) string { return fmt.Sprintf("%s drafted its output", cfg.Name) }),
			agent.WithLogger(logger),
		), nil
	}
}

func runTemplate(agentID string) agent.RunFunc {
	return func(ctx context.Context, actx *agent.Context, instruction string) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out := map[string]any{
			"agent":       agentID,
			"instruction": instruction,
			"createdAt":   time.Now().UTC().Format(time.RFC3339),
		}
		if in := actx.Input(); in != nil {
			out["input"] = in
		}
		if actx.State != nil {
			out["stage"] = string(actx.State.CurrentStage())
			if topic := actx.State.ResearchTopic(); topic != "" {
				out["topic"] = topic
			}
		}
		return out, nil
	}
}
