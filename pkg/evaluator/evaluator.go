// Package evaluator drives a headless browser through a generated page and
// asks a vision-capable model to score it against a weighted rubric,
// producing the Verdict that decides whether a run stops or iterates again.
package evaluator

import (
	"context"
	"fmt"
	"strings"

	"loopctl/internal/errs"
	"loopctl/internal/llmtypes"
	"loopctl/pkg/jsonextract"
	"loopctl/pkg/logger"
	"loopctl/pkg/mcpclient"
	"loopctl/pkg/model"
)

// Evaluator scores one page load per call to Evaluate.
type Evaluator struct {
	llmModel llmtypes.Model
	modelID  string
	rubric   Rubric
	log      logger.Logger

	// Agentic selects the turn-based tool-use exploration loop (the default,
	// matching AGENTIC_EVAL=true). When false, Evaluate falls back to a
	// single scripted observation pass with no model-driven browsing.
	Agentic  bool
	MaxTurns int
}

// New creates an Evaluator bound to llmModel (a vision- and tool-use-capable
// model — the same genai adapter the planner uses) and rubric. Agentic mode
// is on by default; MaxTurns falls back to 30 when zero.
func New(llmModel llmtypes.Model, modelID string, rubric Rubric, log logger.Logger) *Evaluator {
	return &Evaluator{llmModel: llmModel, modelID: modelID, rubric: rubric, log: log, Agentic: true, MaxTurns: defaultMaxTurns}
}

// Evaluate navigates client to url and scores the result against the task
// and rubric. URLs must be http(s) — file:// URLs are accepted but logged as
// a warning since most MCP browser servers cannot load them in a sandboxed
// deployment. In agentic mode the evaluator LLM drives the browser itself,
// turn by turn, until it calls finish_exploration or MaxTurns is reached;
// otherwise a fixed scripted probe collects one observation pass.
func (e *Evaluator) Evaluate(ctx context.Context, client *mcpclient.Client, url, task, screenshotsDir string) (model.Verdict, Observation, error) {
	if strings.HasPrefix(url, "file://") {
		e.log.Warnf("evaluator: file:// URL given, may not load in a sandboxed browser server")
	} else if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		e.log.Errorf("evaluator: unexpected URL protocol in %q", url)
	}

	if e.Agentic {
		return e.evaluateAgentic(ctx, client, url, task, screenshotsDir)
	}
	return e.evaluateScripted(ctx, client, url, task, screenshotsDir)
}

func (e *Evaluator) evaluateScripted(ctx context.Context, client *mcpclient.Client, url, task, screenshotsDir string) (model.Verdict, Observation, error) {
	obs := CollectObservations(ctx, client, url, screenshotsDir, e.log)

	prompt := e.buildPrompt(task, obs)
	messages := []llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt)}
	resp, err := e.llmModel.GenerateContent(ctx, messages,
		llmtypes.WithModel(e.modelID),
		llmtypes.WithTemperature(0.2),
		llmtypes.WithMaxTokens(4096),
		llmtypes.WithJSONMode(),
	)
	if err != nil {
		e.log.Errorf("evaluator: model analysis failed: %v", err)
		return fallbackVerdict(fmt.Sprintf("evaluation error: %v", err)), obs, fmt.Errorf("%w: %v", errs.ErrEvaluationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return fallbackVerdict("evaluation returned no content"), obs, fmt.Errorf("%w: empty response", errs.ErrEvaluationFailed)
	}

	verdict, ok := parseVerdict(resp.Choices[0].Content, e.rubric)
	if !ok {
		e.log.Warnf("evaluator: response did not parse as a verdict, using degraded fallback")
		return fallbackVerdict("failed to parse evaluation response"), obs, nil
	}
	return verdict, obs, nil
}

func (e *Evaluator) evaluateAgentic(ctx context.Context, client *mcpclient.Client, url, task, screenshotsDir string) (model.Verdict, Observation, error) {
	exploration, err := runExploration(ctx, client, e.llmModel, e.modelID, url, task, e.MaxTurns, screenshotsDir, e.log)
	obs := Observation{ConsoleErrors: exploration.ConsoleErrors}
	if len(exploration.Screenshots) > 0 {
		obs.DesktopScreenshot = exploration.Screenshots[0]
		obs.MobileScreenshot = exploration.Screenshots[len(exploration.Screenshots)-1]
	}
	if err != nil {
		e.log.Errorf("evaluator: exploration failed: %v", err)
		return fallbackVerdict(fmt.Sprintf("evaluation failed: %v", err)), obs, fmt.Errorf("%w: %v", errs.ErrEvaluationFailed, err)
	}

	prompt := e.buildFinalScoringPrompt(task, exploration)
	messages := []llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt)}
	resp, err := e.llmModel.GenerateContent(ctx, messages,
		llmtypes.WithModel(e.modelID),
		llmtypes.WithTemperature(0.2),
		llmtypes.WithMaxTokens(4096),
		llmtypes.WithJSONMode(),
	)
	if err != nil {
		e.log.Errorf("evaluator: final scoring call failed: %v", err)
		return fallbackVerdict(fmt.Sprintf("evaluation error: %v", err)), obs, fmt.Errorf("%w: %v", errs.ErrEvaluationFailed, err)
	}
	if len(resp.Choices) == 0 {
		return fallbackVerdict("final scoring returned no content"), obs, fmt.Errorf("%w: empty response", errs.ErrEvaluationFailed)
	}

	verdict, ok := parseVerdict(resp.Choices[0].Content, e.rubric)
	if !ok {
		e.log.Warnf("evaluator: final scoring response did not parse, using degraded fallback")
		return fallbackVerdict("failed to parse final scoring response"), obs, nil
	}

	verdict = applyScoringEnforcement(verdict, exploration)
	return verdict, obs, nil
}

// applyScoringEnforcement bends a model's self-reported verdict toward rules
// the model isn't trusted to apply correctly on its own: a non-empty
// newConsoleErrors pool drives robustness to zero, and any step whose tool
// call errored (a broken interactive feature) caps the total at 40.
func applyScoringEnforcement(v model.Verdict, exploration ExplorationResult) model.Verdict {
	if len(exploration.ConsoleErrors) > 0 {
		if v.CategoryScores == nil {
			v.CategoryScores = map[string]int{}
		}
		v.CategoryScores["robustness"] = 0
		v.Score = sumCategoryScores(v)
	}
	if stepHadBrokenInteraction(exploration.Steps) && v.Score > 40 {
		v.Score = 40
	}
	v.Passed = v.Score >= PassThreshold
	return v
}

func sumCategoryScores(v model.Verdict) int {
	total := 0
	for _, s := range v.CategoryScores {
		total += s
	}
	return total
}

func stepHadBrokenInteraction(steps []StepRecord) bool {
	for _, s := range steps {
		if s.Error != "" {
			return true
		}
	}
	return false
}

func (e *Evaluator) buildFinalScoringPrompt(task string, exploration ExplorationResult) string {
	var log strings.Builder
	for _, s := range exploration.Steps {
		fmt.Fprintf(&log, "turn %d: %s(%s) -> dom_changed=%v url_changed=%v", s.Turn, s.Tool, s.Args, s.DOMChanged, s.URLChanged)
		if s.Error != "" {
			fmt.Fprintf(&log, " error=%q", s.Error)
		}
		log.WriteString("\n")
	}
	if exploration.FinishedByModel {
		fmt.Fprintf(&log, "exploration ended by model: %s\n", exploration.FinishSummary)
	}

	return fmt.Sprintf(`You are a senior QA engineer scoring a web page after exploring it.

ORIGINAL TASK:
%s

EXPLORATION LOG (%d turns):
%s

CONSOLE ERRORS: %d

%s

Provide your evaluation in this EXACT JSON format:

{
  "category_scores": {%s},
  "total_score": <0-100>,
  "passed": <true/false>,
  "detailed_issues": [
    {"category": "functionality", "severity": "high", "description": "...", "repro_steps": ["..."]}
  ],
  "fix_suggestions": ["..."],
  "feedback": "Overall assessment and key points..."
}

Functionality must weigh at least as much as any other category. A broken interactive
feature caps the total score at 40. Any new console error drives robustness to zero. A
blank or unreachable page is a critical issue. Return ONLY valid JSON, no markdown
formatting. Passing threshold: %d/100.`,
		task, len(exploration.Steps), log.String(), len(exploration.ConsoleErrors),
		e.rubricDescription(), categoryScoreSkeleton(e.rubric), PassThreshold)
}

func (e *Evaluator) rubricDescription() string {
	var b strings.Builder
	b.WriteString("EVALUATION RUBRIC:\n")
	for _, cat := range e.rubric.Categories {
		fmt.Fprintf(&b, "\n%s (%d points): %s\n", strings.ToUpper(cat.Name), cat.Weight, cat.Description)
	}
	return b.String()
}

func (e *Evaluator) buildPrompt(task string, obs Observation) string {
	var rubricDesc strings.Builder
	rubricDesc.WriteString("EVALUATION RUBRIC:\n")
	for _, cat := range e.rubric.Categories {
		fmt.Fprintf(&rubricDesc, "\n%s (%d points): %s\n", strings.ToUpper(cat.Name), cat.Weight, cat.Description)
		for _, c := range cat.Criteria {
			fmt.Fprintf(&rubricDesc, "  - %s\n", c)
		}
	}

	var obsSummary strings.Builder
	obsSummary.WriteString("\nBROWSER OBSERVATIONS:\n\n")
	fmt.Fprintf(&obsSummary, "Desktop Screenshot: %s\n", presence(obs.DesktopScreenshot))
	fmt.Fprintf(&obsSummary, "Mobile Screenshot (375px): %s\n", presence(obs.MobileScreenshot))
	obsSummary.WriteString("\nInteractions Performed:\n")
	for _, action := range obs.InteractionsPerformed {
		fmt.Fprintf(&obsSummary, "  - %s\n", action)
	}
	obsSummary.WriteString("\nInteraction Results:\n")
	for name, ok := range obs.InteractionResults {
		fmt.Fprintf(&obsSummary, "  - %s: %s\n", name, passFail(ok))
	}
	fmt.Fprintf(&obsSummary, "\nConsole Errors: %d\n", len(obs.ConsoleErrors))
	for i, errMsg := range obs.ConsoleErrors {
		if i >= 5 {
			break
		}
		fmt.Fprintf(&obsSummary, "  - %s\n", errMsg.Message)
	}
	if obs.Snapshot != nil {
		fmt.Fprintf(&obsSummary, "\nPage Title: %s\nButtons Found: %d\n", obs.Snapshot.Title, len(obs.Snapshot.Buttons))
	}

	return fmt.Sprintf(`You are a senior QA engineer performing comprehensive browser testing.

ORIGINAL TASK:
%s

%s

%s

YOUR EVALUATION TASK:

Analyze the screenshots and observations to evaluate the implementation against the rubric.

Provide your evaluation in this EXACT JSON format:

{
  "category_scores": {%s},
  "total_score": <0-100>,
  "passed": <true/false>,
  "detailed_issues": [
    {"category": "functionality", "severity": "high", "description": "...", "repro_steps": ["..."]}
  ],
  "fix_suggestions": ["..."],
  "feedback": "Overall assessment and key points..."
}

SCORING GUIDELINES:
- 90-100: Excellent, production ready
- 70-89: Good, minor improvements needed
- 50-69: Acceptable, significant work needed
- 0-49: Poor, major issues

Return ONLY valid JSON, no markdown formatting. Passing threshold: %d/100.`,
		task, rubricDesc.String(), obsSummary.String(), categoryScoreSkeleton(e.rubric), PassThreshold)
}

func categoryScoreSkeleton(rubric Rubric) string {
	var parts []string
	for _, cat := range rubric.Categories {
		parts = append(parts, fmt.Sprintf(`"%s": <0-%d>`, cat.Name, cat.Weight))
	}
	return strings.Join(parts, ", ")
}

func presence(path string) string {
	if path == "" {
		return "missing"
	}
	return "captured"
}

func passFail(ok bool) string {
	if ok {
		return "success"
	}
	return "failed"
}

// rawVerdict is the shape asked for in the prompt above.
type rawVerdict struct {
	CategoryScores map[string]int `json:"category_scores"`
	TotalScore     int            `json:"total_score"`
	Passed         bool           `json:"passed"`
	DetailedIssues []struct {
		Category    string   `json:"category"`
		Severity    string   `json:"severity"`
		Description string   `json:"description"`
		ReproSteps  []string `json:"repro_steps"`
	} `json:"detailed_issues"`
	FixSuggestions []string `json:"fix_suggestions"`
	Feedback       string   `json:"feedback"`
}

func parseVerdict(text string, rubric Rubric) (model.Verdict, bool) {
	var raw rawVerdict
	if !jsonextract.Unmarshal(text, &raw) {
		return model.Verdict{}, false
	}

	score := raw.TotalScore
	if score == 0 && len(raw.CategoryScores) > 0 {
		for _, s := range raw.CategoryScores {
			score += s
		}
	}

	var issues []model.Issue
	for _, iss := range raw.DetailedIssues {
		issues = append(issues, model.Issue{
			Category:    iss.Category,
			Severity:    severity(iss.Severity),
			Description: iss.Description,
			ReproSteps:  strings.Join(iss.ReproSteps, "; "),
		})
	}

	return model.Verdict{
		Score:          score,
		Passed:         score >= PassThreshold,
		CategoryScores: raw.CategoryScores,
		Issues:         issues,
		FixSuggestions: raw.FixSuggestions,
		Feedback:       raw.Feedback,
		RubricID:       rubric.ID,
	}, true
}

func severity(s string) model.IssueSeverity {
	switch model.IssueSeverity(s) {
	case model.SeverityCritical, model.SeverityHigh, model.SeverityMedium, model.SeverityLow:
		return model.IssueSeverity(s)
	default:
		return model.SeverityMedium
	}
}

// fallbackVerdict is the degraded result used when the model call itself
// fails or its response can't be parsed — a low score that forces another
// iteration rather than silently treating the run as passing.
func fallbackVerdict(feedback string) model.Verdict {
	return model.Verdict{
		Score:  50,
		Passed: false,
		Issues: []model.Issue{{
			Category:    "robustness",
			Severity:    model.SeverityHigh,
			Description: feedback,
		}},
		FixSuggestions: []string{"Review evaluation response format"},
		Feedback:       feedback,
	}
}
