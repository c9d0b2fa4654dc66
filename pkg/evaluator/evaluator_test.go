package evaluator

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"loopctl/internal/llmtypes"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

func TestParseVerdictFromFencedJSON(t *testing.T) {
	text := "```json\n" + `{
		"category_scores": {"functionality": 20, "visual_design": 20, "ux": 12, "accessibility": 10, "responsiveness": 10, "robustness": 4},
		"total_score": 76,
		"passed": true,
		"detailed_issues": [{"category": "ux", "severity": "low", "description": "minor spacing issue", "repro_steps": ["load page"]}],
		"fix_suggestions": ["tighten spacing"],
		"feedback": "Solid overall."
	}` + "\n```"

	v, ok := parseVerdict(text, DefaultRubric)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if v.Score != 76 || !v.Passed {
		t.Fatalf("got score=%d passed=%v", v.Score, v.Passed)
	}
	if len(v.Issues) != 1 || v.Issues[0].Severity != model.SeverityLow {
		t.Fatalf("got issues %+v", v.Issues)
	}
	if v.RubricID != DefaultRubric.ID {
		t.Fatalf("got rubric id %q", v.RubricID)
	}
}

func TestParseVerdictSumsCategoryScoresWhenTotalMissing(t *testing.T) {
	text := `{"category_scores": {"functionality": 10, "visual_design": 15}, "passed": false, "feedback": "meh"}`
	v, ok := parseVerdict(text, DefaultRubric)
	if !ok {
		t.Fatal("expected ok=true")
	}
	if v.Score != 25 {
		t.Fatalf("got score %d, want 25", v.Score)
	}
}

func TestParseVerdictUnparseableReturnsFalse(t *testing.T) {
	_, ok := parseVerdict("no json here at all", DefaultRubric)
	if ok {
		t.Fatal("expected ok=false")
	}
}

func TestFallbackVerdictIsNeverPassing(t *testing.T) {
	v := fallbackVerdict("boom")
	if v.Passed {
		t.Fatal("fallback verdict must never pass")
	}
	if v.Score >= PassThreshold {
		t.Fatalf("fallback score %d should be below pass threshold %d", v.Score, PassThreshold)
	}
}

type stubVisionModel struct {
	resp string
	err  error
}

func (s *stubVisionModel) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{{Content: s.resp}}}, nil
}

func TestBuildPromptForFailedNavigationAndStubModelError(t *testing.T) {
	m := &stubVisionModel{err: errBoom{}}
	e := New(m, "vision-model", DefaultRubric, testLogger(t))

	// A nil *mcpclient.Client would panic on use, so this test does not call
	// Evaluate: it checks that buildPrompt renders an observation whose
	// navigation failed, and that the stub model returns its configured
	// error. Evaluate's degraded-verdict branch is not exercised here.
	obs := Observation{InteractionResults: map[string]bool{"navigate": false}}
	prompt := e.buildPrompt("build a page", obs)
	if prompt == "" {
		t.Fatal("expected non-empty prompt")
	}

	_, err := m.GenerateContent(context.Background(), nil)
	if err == nil {
		t.Fatal("expected stub error")
	}
}

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func TestApplyScoringEnforcementZeroesRobustnessOnConsoleErrors(t *testing.T) {
	v := model.Verdict{Score: 80, CategoryScores: map[string]int{"functionality": 25, "visual_design": 25, "robustness": 5}}
	exploration := ExplorationResult{ConsoleErrors: []ConsoleMessage{{Type: "error", Message: "TypeError: x is not a function"}}}

	got := applyScoringEnforcement(v, exploration)
	if got.CategoryScores["robustness"] != 0 {
		t.Fatalf("expected robustness zeroed, got %d", got.CategoryScores["robustness"])
	}
	if got.Score != 50 {
		t.Fatalf("expected score recomputed to 50, got %d", got.Score)
	}
}

func TestApplyScoringEnforcementCapsScoreOnBrokenInteraction(t *testing.T) {
	v := model.Verdict{Score: 90, CategoryScores: map[string]int{"functionality": 90}}
	exploration := ExplorationResult{Steps: []StepRecord{{Turn: 0, Tool: "browser_click", Error: "element not found"}}}

	got := applyScoringEnforcement(v, exploration)
	if got.Score != 40 {
		t.Fatalf("expected score capped at 40, got %d", got.Score)
	}
	if got.Passed {
		t.Fatal("capped score below pass threshold must not pass")
	}
}

func TestApplyScoringEnforcementLeavesCleanRunUntouched(t *testing.T) {
	v := model.Verdict{Score: 85, CategoryScores: map[string]int{"functionality": 85}}
	exploration := ExplorationResult{Steps: []StepRecord{{Turn: 0, Tool: "browser_click"}}}

	got := applyScoringEnforcement(v, exploration)
	if got.Score != 85 || !got.Passed {
		t.Fatalf("expected untouched passing verdict, got score=%d passed=%v", got.Score, got.Passed)
	}
}

func TestBuildFinalScoringPromptIncludesExplorationLogAndRules(t *testing.T) {
	e := New(&stubVisionModel{}, "vision-model", DefaultRubric, testLogger(t))
	exploration := ExplorationResult{
		Steps: []StepRecord{
			{Turn: 0, Tool: "browser_click", Args: `{"selector":"button"}`, DOMChanged: true},
			{Turn: 1, Tool: "browser_type", Error: "timeout"},
		},
		ConsoleErrors:   []ConsoleMessage{{Type: "error", Message: "boom"}},
		FinishedByModel: true,
		FinishSummary:   "explored the main flow",
	}

	prompt := e.buildFinalScoringPrompt("build a todo app", exploration)

	for _, want := range []string{
		"build a todo app",
		"browser_click",
		"timeout",
		"explored the main flow",
		"CONSOLE ERRORS: 1",
		"caps the total score at 40",
		"drives robustness to zero",
		"blank or unreachable page is a critical issue",
	} {
		if !strings.Contains(prompt, want) {
			t.Fatalf("expected prompt to contain %q, got:\n%s", want, prompt)
		}
	}
}
