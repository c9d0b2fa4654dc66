package patchplanner

import (
	"strings"
	"testing"

	"loopctl/pkg/model"
)

func TestPlanInstructionsStartsWithTaskPrefix(t *testing.T) {
	verdict := model.Verdict{Score: 40, Feedback: "buttons are hard to click", Issues: []model.Issue{
		{Category: "usability", Description: "button is too small in index.html", Severity: model.SeverityHigh},
	}}
	plan := Plan(verdict, "build a calculator", map[string]string{"index.html": "/tmp/project/index.html"})

	if !strings.HasPrefix(plan.Instructions, "TASK:") {
		t.Fatalf("instructions should start with TASK:, got %q", plan.Instructions[:min(20, len(plan.Instructions))])
	}
	if plan.OriginalScore != 40 {
		t.Fatalf("got score %d", plan.OriginalScore)
	}
	if plan.IssuesCount != 1 {
		t.Fatalf("got issues count %d", plan.IssuesCount)
	}
}

func TestPlanMarksFileWithNamedIssue(t *testing.T) {
	verdict := model.Verdict{Score: 50, Feedback: "feedback", Issues: []model.Issue{
		{Category: "visual", Description: "color contrast fails in index.html"},
	}}
	plan := Plan(verdict, "task", map[string]string{"index.html": "/p/index.html", "script.js": "/p/script.js"})

	if len(plan.Files) != 2 {
		t.Fatalf("expected both files marked (score below threshold), got %d", len(plan.Files))
	}
}

func TestPlanFallsBackToAllFilesWhenBelowThresholdAndNoNamedIssue(t *testing.T) {
	verdict := model.Verdict{Score: 30, Feedback: "generally weak", Issues: nil}
	plan := Plan(verdict, "task", map[string]string{"index.html": "/p/index.html", "style.css": "/p/style.css"})

	if len(plan.Files) != 2 {
		t.Fatalf("expected all files marked as fallback, got %d", len(plan.Files))
	}
}

func TestPlanSkipsFilesWhenScorePassesAndNoIssues(t *testing.T) {
	verdict := model.Verdict{Score: 90, Feedback: "looks great", Issues: nil}
	plan := Plan(verdict, "task", map[string]string{"index.html": "/p/index.html"})

	if len(plan.Files) != 0 {
		t.Fatalf("expected no files marked, got %d", len(plan.Files))
	}
}

func TestChangesListMatchesKeywords(t *testing.T) {
	issues := []model.Issue{{Category: "visual", Description: "button color is inconsistent"}}
	got := changesList(issues, "")
	joined := strings.Join(got, "|")
	if !strings.Contains(joined, "button") {
		t.Fatalf("expected a button hint in %v", got)
	}
	if !strings.Contains(joined, "color scheme") {
		t.Fatalf("expected a color hint in %v", got)
	}
}

func TestChangesListFallsBackToFeedbackKeywords(t *testing.T) {
	got := changesList(nil, "the overall visual design needs work")
	if len(got) == 0 {
		t.Fatal("expected at least one hint")
	}
}

func TestChangesListCatchAll(t *testing.T) {
	got := changesList(nil, "")
	if len(got) != 1 || got[0] != "General improvements based on evaluation feedback" {
		t.Fatalf("got %v", got)
	}
}
