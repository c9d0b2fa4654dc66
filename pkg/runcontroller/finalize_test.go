package runcontroller

import (
	"strings"
	"testing"

	"loopctl/pkg/model"
)

func TestRenderViewHTMLIncludesScoreStatusAndIterations(t *testing.T) {
	m := model.Manifest{
		RunID: "run1", FinalScore: 82, FinalPassed: true,
		StopReason: model.StopPassed, PreviewURL: "http://127.0.0.1:8000",
	}
	iterations := []model.Iteration{
		{Index: 1, Score: 40, Passed: false, Feedback: "needs work"},
		{Index: 2, Score: 82, Passed: true, Feedback: "looks good"},
	}

	html := renderViewHTML(m, iterations)

	for _, want := range []string{"run1", "PASSED", "82/100", "needs work", "looks good", "http://127.0.0.1:8000"} {
		if !strings.Contains(html, want) {
			t.Fatalf("expected view.html to contain %q, got:\n%s", want, html)
		}
	}
}

func TestRenderViewHTMLShowsFailedStatusWhenNotPassed(t *testing.T) {
	m := model.Manifest{RunID: "run2", FinalPassed: false, StopReason: model.StopMaxIterations}
	html := renderViewHTML(m, nil)
	if !strings.Contains(html, "FAILED") {
		t.Fatalf("expected FAILED status in output:\n%s", html)
	}
}

func TestHTMLEscapeEscapesSpecialCharacters(t *testing.T) {
	got := htmlEscape(`<script>alert("x")</script> & friends`)
	if strings.Contains(got, "<script>") {
		t.Fatalf("expected tags to be escaped, got %q", got)
	}
	if !strings.Contains(got, "&lt;script&gt;") || !strings.Contains(got, "&amp; friends") {
		t.Fatalf("got %q", got)
	}
}

func TestLastIterationReturnsFalseWhenEmpty(t *testing.T) {
	if _, ok := lastIteration(nil); ok {
		t.Fatal("expected ok=false for empty slice")
	}
}

func TestLastIterationReturnsFinalElement(t *testing.T) {
	iterations := []model.Iteration{{Index: 1, Score: 10}, {Index: 2, Score: 99}}
	last, ok := lastIteration(iterations)
	if !ok || last.Score != 99 {
		t.Fatalf("got %+v, ok=%v", last, ok)
	}
}
