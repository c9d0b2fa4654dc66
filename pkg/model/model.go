// Package model holds the run's closed sum types: Plan, Todo, Verdict, and
// Manifest. These replace the heterogeneous dictionaries the source passes
// between planner, evaluator, and controller with structs that have a fixed
// shape the compiler can check.
package model

import "time"

// TodoType discriminates the three kinds of work item a Plan can contain.
type TodoType string

const (
	TodoSetup      TodoType = "setup"
	TodoModule     TodoType = "module"
	TodoValidation TodoType = "validation"
)

// Todo is one actionable unit in the planner's ordered list.
type Todo struct {
	ID           string            `json:"id"`
	Type         TodoType          `json:"type"`
	Title        string            `json:"title"`
	Description  string            `json:"description"`
	ModuleIndex  *int              `json:"module_index,omitempty"`
	ModuleID     string            `json:"module_id,omitempty"`
	Requirements map[string]string `json:"requirements,omitempty"`
	Priority     int               `json:"priority"`
}

// ModuleOverview names one module in the plan's overview.
type ModuleOverview struct {
	ModuleID    string `json:"module_id"`
	ModuleTitle string `json:"module_title"`
}

// Overview is the plan's title, outline, and module list.
type Overview struct {
	Title   string           `json:"title"`
	Outline string           `json:"outline"`
	Modules []ModuleOverview `json:"modules"`
}

// Plan is the planner's structured output: an overview, an abstract UI
// scaffold, the natural-language brief the code-generation agent consumes,
// an optional reasoning trace, and the ordered todo list derived from it.
type Plan struct {
	Overview    Overview       `json:"overview"`
	UISpec      map[string]any `json:"ui_spec"`
	BuildPrompt string         `json:"build_prompt"`
	Thinking    string         `json:"thinking,omitempty"`
	TodoList    []Todo         `json:"todo_list"`
	// Degraded is true when the planner could not parse a structured
	// response and fell back to treating the raw text as BuildPrompt.
	Degraded bool `json:"degraded"`
}

// IssueSeverity is the closed set of severities an Issue can carry.
type IssueSeverity string

const (
	SeverityCritical IssueSeverity = "critical"
	SeverityHigh     IssueSeverity = "high"
	SeverityMedium   IssueSeverity = "medium"
	SeverityLow      IssueSeverity = "low"
)

// Issue is one problem the evaluator found, with enough detail for the
// PatchPlanner to turn it into a concrete file change.
type Issue struct {
	Category     string        `json:"category"`
	Severity     IssueSeverity `json:"severity"`
	Description  string        `json:"description"`
	ReproSteps   string        `json:"repro_steps,omitempty"`
	ScreenshotRef string       `json:"screenshot_ref,omitempty"`
}

// Verdict is the evaluator's final structured output for one iteration.
type Verdict struct {
	Score          int            `json:"score"`
	Passed         bool           `json:"passed"`
	CategoryScores map[string]int `json:"category_scores"`
	Issues         []Issue        `json:"issues"`
	FixSuggestions []string       `json:"fix_suggestions,omitempty"`
	Feedback       string         `json:"feedback"`
	RubricID       string         `json:"rubric_id,omitempty"`
}

// PatchFileAction discriminates what a PatchPlan file entry asks for.
type PatchFileAction string

const (
	PatchModify PatchFileAction = "modify"
	PatchCreate PatchFileAction = "create"
	PatchDelete PatchFileAction = "delete"
)

// PatchFile is one file-level instruction inside a PatchPlan.
type PatchFile struct {
	Path        string          `json:"path"`
	Action      PatchFileAction `json:"action"`
	Description string          `json:"description"`
	Changes     []string        `json:"changes"`
}

// PatchPlan is the PatchPlanner's output: what to change and why.
type PatchPlan struct {
	Instructions string      `json:"instructions"`
	Files        []PatchFile `json:"files"`
	OriginalScore int        `json:"original_score"`
	IssuesCount  int         `json:"issues_count"`
}

// StopReason is the terminal tag recorded in the manifest.
type StopReason string

const (
	StopPassed        StopReason = "passed"
	StopMaxIterations StopReason = "max_iterations"
	StopError         StopReason = "error"
)

// Iteration is one pass through generate→evaluate→(patch), finalized once
// after evaluation and immutable thereafter.
type Iteration struct {
	Index                int               `json:"index"`
	FilesTouched         map[string]string `json:"files_touched"`
	GenerationDurationMs int64             `json:"generation_duration_ms"`
	EvaluationDurationMs int64             `json:"evaluation_duration_ms"`
	Score                int               `json:"score"`
	Passed               bool              `json:"passed"`
	Feedback             string            `json:"feedback"`
	ScreenshotPaths      []string          `json:"screenshot_paths"`
	Verdict              *Verdict          `json:"verdict,omitempty"`
}

// VersionControlInfo records the optional repository snapshot metadata.
type VersionControlInfo struct {
	BranchName string   `json:"branch_name"`
	Commits    []string `json:"commits"`
}

// Manifest is the single JSON document describing a complete run.
type Manifest struct {
	RunID            string               `json:"run_id"`
	Task             string               `json:"task"`
	StartedAt        time.Time            `json:"started_at"`
	EndedAt          time.Time            `json:"ended_at"`
	DurationSeconds  float64              `json:"duration_seconds"`
	PlannerModel     string               `json:"planner_model"`
	EvaluatorModel   string               `json:"evaluator_model"`
	RubricID         string               `json:"rubric_id"`
	IterationCount   int                  `json:"iteration_count"`
	FinalScore       int                  `json:"final_score"`
	FinalPassed      bool                 `json:"final_passed"`
	StopReason       StopReason           `json:"stop_reason"`
	VersionControl   *VersionControlInfo  `json:"version_control,omitempty"`
	WorkspaceDir     string               `json:"workspace_dir"`
	ArtifactsDir     string               `json:"artifacts_dir"`
	SiteDir          string               `json:"site_dir"`
	PreviewURL       string               `json:"preview_url"`
	ErrorMessage     string               `json:"error_message,omitempty"`
}
