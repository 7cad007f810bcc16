package types

import "strings"

// TempPrefix marks a session key as temporary. Temporary keys are dropped
// by ClearTemp and never reach the persisted snapshot.
const TempPrefix = "temp:"

// Session state keys shared between stage agents. An agent publishes its
// output under one of these and downstream agents read it back, usually via
// {key} placeholders in their instruction.
const (
	// idea building
	KeyResearchIdea = "research_idea"
	KeyHypothesis   = "hypothesis"
	KeyResearchGaps = "research_gaps"

	// literature search
	KeyLiteratureResults = "literature_results"
	KeyRelevantPapers    = "relevant_papers"
	KeyCitationMap       = "citation_map"

	// experiment design
	KeyExperimentDesign = "experiment_design"
	KeyMethodology      = "methodology"
	KeyVariables        = "variables"

	// data analysis
	KeyAnalysisResults     = "analysis_results"
	KeyStatisticalFindings = "statistical_findings"
	KeyVisualizations      = "visualizations"

	// paper writing
	KeyPaperDraft = "paper_draft"
	KeyAbstract   = "abstract"
	KeySections   = "sections"

	// formatting review
	KeyFormattedPaper   = "formatted_paper"
	KeyFormattingIssues = "formatting_issues"
	KeyFinalDocument    = "final_document"
)

// TempKey returns the temporary variant of key.
func TempKey(key string) string {
	return TempPrefix + key
}

// IsTempKey reports whether key addresses the temporary namespace.
func IsTempKey(key string) bool {
	return strings.HasPrefix(key, TempPrefix)
}
