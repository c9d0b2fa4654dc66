package evaluator

import (
	"context"
	"testing"
)

func TestSignatureStringReflectsAllFields(t *testing.T) {
	s := signature{url: "http://x/page", title: "Home", nButton: 3}
	got := s.String()
	want := "http://x/page|Home|3"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestStepSummaryReportsErrorFirst(t *testing.T) {
	step := StepRecord{Error: "selector not found", DOMChanged: true}
	got := stepSummary(step)
	if got != "error: selector not found" {
		t.Fatalf("got %q", got)
	}
}

func TestStepSummaryDescribesCleanStep(t *testing.T) {
	step := StepRecord{DOMChanged: true, URLChanged: false}
	got := stepSummary(step)
	if got != "dom_changed=true url_changed=false" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractSummaryParsesArguments(t *testing.T) {
	got := extractSummary(`{"summary": "verified the checkout flow works"}`)
	if got != "verified the checkout flow works" {
		t.Fatalf("got %q", got)
	}
}

func TestExtractSummaryToleratesMalformedArguments(t *testing.T) {
	got := extractSummary("not json")
	if got != "" {
		t.Fatalf("expected empty summary for malformed args, got %q", got)
	}
}

func TestExecuteToolRejectsUnknownTool(t *testing.T) {
	err := executeTool(context.Background(), nil, "browser_teleport", "{}")
	if err == nil {
		t.Fatal("expected error for unknown tool")
	}
}

func TestToolsetIncludesFinishExploration(t *testing.T) {
	tools := toolset()
	found := false
	for _, tool := range tools {
		if tool.Function != nil && tool.Function.Name == finishToolName {
			found = true
			if len(tool.Function.Parameters.Required) != 1 || tool.Function.Parameters.Required[0] != "summary" {
				t.Fatalf("expected finish_exploration to require summary, got %+v", tool.Function.Parameters.Required)
			}
		}
	}
	if !found {
		t.Fatal("expected toolset to include finish_exploration")
	}
}

func TestToolsetCoversAllBrowserActions(t *testing.T) {
	tools := toolset()
	want := map[string]bool{
		"browser_click": false, "browser_type": false, "browser_scroll": false,
		"browser_hover": false, "browser_press_key": false, "browser_evaluate": false,
		"browser_wait_for": false, "browser_get_url": false, "browser_dom_snapshot": false,
		finishToolName: false,
	}
	for _, tool := range tools {
		if tool.Function != nil {
			want[tool.Function.Name] = true
		}
	}
	for name, seen := range want {
		if !seen {
			t.Fatalf("expected toolset to define %q", name)
		}
	}
}
