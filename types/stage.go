package types

// Stage identifies a step in the research pipeline.
type Stage string

const (
	StageIdeaBuilding     Stage = "idea_building"
	StageLiteratureSearch Stage = "literature_search"
	StageExperimentDesign Stage = "experiment_design"
	StageDataAnalysis     Stage = "data_analysis"
	StagePaperWriting     Stage = "paper_writing"
	StageFormattingReview Stage = "formatting_review"
	StageCompleted        Stage = "completed"
)

type stageInfo struct {
	order int
	label map[string]string
}

var stages = map[Stage]stageInfo{
	StageIdeaBuilding:     {1, map[string]string{"en": "Idea Building", "ko": "아이디어 빌딩"}},
	StageLiteratureSearch: {2, map[string]string{"en": "Literature Search", "ko": "문헌검색"}},
	StageExperimentDesign: {3, map[string]string{"en": "Experiment Design", "ko": "실험설계"}},
	StageDataAnalysis:     {4, map[string]string{"en": "Data Analysis", "ko": "데이터분석"}},
	StagePaperWriting:     {5, map[string]string{"en": "Paper Writing", "ko": "논문쓰기"}},
	StageFormattingReview: {6, map[string]string{"en": "Formatting Review", "ko": "포맷팅 검토"}},
	StageCompleted:        {7, map[string]string{"en": "Completed", "ko": "완료"}},
}

// ResearchStages lists the pipeline stages in execution order.
var ResearchStages = []Stage{
	StageIdeaBuilding,
	StageLiteratureSearch,
	StageExperimentDesign,
	StageDataAnalysis,
	StagePaperWriting,
	StageFormattingReview,
	StageCompleted,
}

// Order returns the 1-based pipeline position, or 0 for an unknown stage.
func (s Stage) Order() int {
	return stages[s].order
}

// Label returns the localized label for the stage, falling back to English
// and then to the raw stage name.
func (s Stage) Label(lang string) string {
	info, ok := stages[s]
	if !ok {
		return string(s)
	}
	if l, ok := info.label[lang]; ok {
		return l
	}
	return info.label["en"]
}

// IsValid reports whether s is a known stage.
func (s Stage) IsValid() bool {
	_, ok := stages[s]
	return ok
}
