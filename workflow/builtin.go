package workflow

import (
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/BaSui01/stageflow/types"
)

// Agent ids of the research pipeline.
const (
	AgentIdeaBuilding     = "idea-building"
	AgentLiteratureSearch = "literature-search"
	AgentExperimentDesign = "experiment-design"
	AgentDataAnalysis     = "data-analysis"
	AgentPaperWriting     = "paper-writing"
	AgentFormattingReview = "formatting-review"
)

var researchAgentStages = map[string]types.Stage{
	AgentIdeaBuilding:     types.StageIdeaBuilding,
	AgentLiteratureSearch: types.StageLiteratureSearch,
	AgentExperimentDesign: types.StageExperimentDesign,
	AgentDataAnalysis:     types.StageDataAnalysis,
	AgentPaperWriting:     types.StagePaperWriting,
	AgentFormattingReview: types.StageFormattingReview,
}

// StageForAgent returns the research stage handled by agentID.
func StageForAgent(agentID string) (types.Stage, bool) {
	s, ok := researchAgentStages[agentID]
	return s, ok
}

func refs(ids ...string) []Member {
	out := make([]Member, len(ids))
	for i, id := range ids {
		out[i] = Ref(id)
	}
	return out
}

var fullPipeline = []string{
	AgentIdeaBuilding,
	AgentLiteratureSearch,
	AgentExperimentDesign,
	AgentDataAnalysis,
	AgentPaperWriting,
	AgentFormattingReview,
}

// DefaultResearchWorkflow is the six stage sequential pipeline with
// approvals before experiment design, paper writing and formatting review.
func DefaultResearchWorkflow() Definition {
	return Definition{
		ID:     "default-research",
		Name:   "Default Research Workflow",
		Type:   TypeSequential,
		Agents: refs(fullPipeline...),
		Config: &Config{
			ApprovalGates: []string{AgentExperimentDesign, AgentPaperWriting, AgentFormattingReview},
		},
	}
}

type literatureProfile struct {
	name              string
	prismaCompliance  bool
	qualityAssessment bool
	metaAnalysis      bool
}

var literatureProfiles = map[string]literatureProfile{
	"systematic-review":             {"체계적 문헌고찰", true, true, false},
	"meta-analysis":                 {"메타분석", true, true, true},
	"scoping-review":                {"주제범위 문헌고찰", true, false, false},
	"narrative-review":              {"서술적 문헌고찰", false, false, false},
	"integrative-review":            {"통합적 문헌고찰", false, true, false},
	"rapid-review":                  {"신속 문헌고찰", true, true, false},
	"umbrella-review":               {"우산 문헌고찰", true, true, true},
	"realist-review":                {"실재론적 문헌고찰", false, true, false},
	"critical-review":               {"비판적 문헌고찰", false, false, false},
	"qualitative-systematic-review": {"질적 체계적 문헌고찰", true, true, false},
}

// LiteratureReviewWorkflow skips experiment design and gates every
// remaining stage.
func LiteratureReviewWorkflow(methodology string) Definition {
	p, ok := literatureProfiles[methodology]
	if !ok {
		p = literatureProfile{name: "문헌고찰", qualityAssessment: true}
	}
	return Definition{
		ID:   "literature-review",
		Name: "Literature Review Workflow (" + p.name + ")",
		Type: TypeSequential,
		Agents: refs(
			AgentIdeaBuilding,
			AgentLiteratureSearch,
			AgentDataAnalysis,
			AgentPaperWriting,
			AgentFormattingReview,
		),
		Config: &Config{
			ApprovalGates: []string{
				AgentIdeaBuilding,
				AgentLiteratureSearch,
				AgentDataAnalysis,
				AgentPaperWriting,
				AgentFormattingReview,
			},
			MethodologySpecific: map[string]any{
				"type":                    "literature-review",
				"subtype":                 methodology,
				"name":                    p.name,
				"prismaCompliance":        p.prismaCompliance,
				"qualityAssessment":       p.qualityAssessment,
				"metaAnalysis":            p.metaAnalysis,
				"skippedAgents":           []string{AgentExperimentDesign},
				"focusOnLiteratureSearch": true,
			},
		},
	}
}

// QuantitativeWorkflow is the full pipeline with statistical analysis.
func QuantitativeWorkflow() Definition {
	return Definition{
		ID:     "quantitative-research",
		Name:   "Quantitative Research Workflow",
		Type:   TypeSequential,
		Agents: refs(fullPipeline...),
		Config: &Config{
			ApprovalGates: []string{AgentExperimentDesign, AgentPaperWriting, AgentFormattingReview},
			MethodologySpecific: map[string]any{
				"type":                "quantitative",
				"statisticalAnalysis": true,
			},
		},
	}
}

// QualitativeWorkflow is the full pipeline with iterative qualitative analysis.
func QualitativeWorkflow() Definition {
	return Definition{
		ID:     "qualitative-research",
		Name:   "Qualitative Research Workflow",
		Type:   TypeSequential,
		Agents: refs(fullPipeline...),
		Config: &Config{
			ApprovalGates: []string{AgentExperimentDesign, AgentPaperWriting, AgentFormattingReview},
			MethodologySpecific: map[string]any{
				"type":              "qualitative",
				"iterativeAnalysis": true,
				"trustworthiness":   []string{"credibility", "transferability", "dependability", "confirmability"},
			},
		},
	}
}

// MixedMethodsWorkflow is the hybrid pipeline that also gates data analysis.
func MixedMethodsWorkflow() Definition {
	return Definition{
		ID:     "mixed-methods-research",
		Name:   "Mixed Methods Research Workflow",
		Type:   TypeHybrid,
		Agents: refs(fullPipeline...),
		Config: &Config{
			ApprovalGates: []string{AgentExperimentDesign, AgentDataAnalysis, AgentPaperWriting, AgentFormattingReview},
			MethodologySpecific: map[string]any{
				"type":             "mixed-methods",
				"integrationPoint": AgentDataAnalysis,
			},
		},
	}
}

var methodologyWorkflows = map[string]func() Definition{
	// 量化研究
	"survey":                 QuantitativeWorkflow,
	"survey-research":        QuantitativeWorkflow,
	"experimental":           QuantitativeWorkflow,
	"experimental-research":  QuantitativeWorkflow,
	"correlational":          QuantitativeWorkflow,
	"correlational-research": QuantitativeWorkflow,
	"quasi-experimental":     QuantitativeWorkflow,
	"longitudinal":           QuantitativeWorkflow,
	"longitudinal-study":     QuantitativeWorkflow,

	// 质性研究
	"grounded-theory":    QualitativeWorkflow,
	"phenomenology":      QualitativeWorkflow,
	"case-study":         QualitativeWorkflow,
	"ethnography":        QualitativeWorkflow,
	"narrative":          QualitativeWorkflow,
	"narrative-research": QualitativeWorkflow,
	"action-research":    QualitativeWorkflow,
	"content-analysis":   QualitativeWorkflow,

	// 混合研究
	"convergent-mixed":       MixedMethodsWorkflow,
	"explanatory-sequential": MixedMethodsWorkflow,
	"exploratory-sequential": MixedMethodsWorkflow,
	"sequential-explanatory": MixedMethodsWorkflow,
	"sequential-exploratory": MixedMethodsWorkflow,
	"convergent-parallel":    MixedMethodsWorkflow,
	"embedded-design":        MixedMethodsWorkflow,
	"delphi-method":          MixedMethodsWorkflow,
}

// ForMethodology returns the workflow for methodology and whether a
// specific one exists. Unknown methodologies get the default workflow.
func ForMethodology(methodology string) (Definition, bool) {
	if _, ok := literatureProfiles[methodology]; ok {
		return LiteratureReviewWorkflow(methodology), true
	}
	if build, ok := methodologyWorkflows[methodology]; ok {
		return build(), true
	}
	return DefaultResearchWorkflow(), false
}

// Methodologies returns every methodology with a dedicated workflow, sorted.
func Methodologies() []string {
	out := make([]string, 0, len(literatureProfiles)+len(methodologyWorkflows))
	for k := range maps.Keys(literatureProfiles) {
		out = append(out, k)
	}
	for k := range maps.Keys(methodologyWorkflows) {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// Builtin returns the built-in definition whose ID is id.
func Builtin(id string) (Definition, bool) {
	for _, def := range []Definition{
		DefaultResearchWorkflow(),
		LiteratureReviewWorkflow(""),
		QuantitativeWorkflow(),
		QualitativeWorkflow(),
		MixedMethodsWorkflow(),
	} {
		if def.ID == id {
			return def, true
		}
	}
	return Definition{}, false
}

// DefaultResearchWorkflow returns the built-in research pipeline.
func (e *Engine) DefaultResearchWorkflow() Definition {
	return DefaultResearchWorkflow()
}

// WorkflowForMethodology selects the definition for methodology, falling
// back to the default research workflow.
func (e *Engine) WorkflowForMethodology(methodology string) Definition {
	def, ok := ForMethodology(methodology)
	if !ok {
		e.logger.Warn("no specific workflow for methodology, using default", zap.String("methodology", methodology))
		return def
	}
	e.logger.Info("selected workflow for methodology",
		zap.String("methodology", methodology),
		zap.String("workflow_id", def.ID),
	)
	return def
}
