package planner

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"loopctl/internal/llmtypes"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

type stubModel struct {
	responses []string
	errs      []error
	calls     int
}

func (s *stubModel) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	i := s.calls
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{{Content: s.responses[i]}}}, nil
}

func TestPlanParsesStructuredResponse(t *testing.T) {
	resp := `{"overview": {"title": "T", "outline": "O", "modules": [{"module_id": "m1", "module_title": "Intro"}]}, "ui_spec": {"theme": "dark"}, "build_prompt": "**MODULE 1:** do intro stuff **MODULE 2:**"}`
	m := &stubModel{responses: []string{resp}}
	p := New(m, "test-model", "{user_requirements}", testLogger(t))

	plan, err := p.Plan(context.Background(), "build a thing", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if plan.Degraded {
		t.Fatal("expected non-degraded plan")
	}
	if plan.Overview.Title != "T" {
		t.Fatalf("got title %q", plan.Overview.Title)
	}
	if len(plan.TodoList) != 3 {
		t.Fatalf("got %d todos, want 3 (setup, module, validation)", len(plan.TodoList))
	}
	if plan.TodoList[0].Type != model.TodoSetup {
		t.Fatalf("first todo type = %s, want setup", plan.TodoList[0].Type)
	}
	if plan.TodoList[1].Type != model.TodoModule {
		t.Fatalf("second todo type = %s, want module", plan.TodoList[1].Type)
	}
	if plan.TodoList[2].Type != model.TodoValidation {
		t.Fatalf("last todo type = %s, want validation", plan.TodoList[2].Type)
	}
}

func TestPlanDegradesOnUnparseableResponse(t *testing.T) {
	m := &stubModel{responses: []string{"not json at all, just prose"}}
	p := New(m, "test-model", "{user_requirements}", testLogger(t))

	plan, err := p.Plan(context.Background(), "build a thing", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if !plan.Degraded {
		t.Fatal("expected degraded plan")
	}
	if plan.BuildPrompt != "not json at all, just prose" {
		t.Fatalf("got build prompt %q", plan.BuildPrompt)
	}
	if len(plan.TodoList) != 0 {
		t.Fatalf("expected empty todo list, got %d", len(plan.TodoList))
	}
}

func TestCallWithRetryHonorsServerAdvertisedDelay(t *testing.T) {
	m := &stubModel{
		responses: []string{"", `{"overview":{"title":"t","outline":"o"},"build_prompt":"b"}`},
		errs:      []error{errors.New("RESOURCE_EXHAUSTED: retry in 0.01s"), nil},
	}
	p := New(m, "test-model", "{user_requirements}", testLogger(t))

	start := time.Now()
	_, err := p.Plan(context.Background(), "task", "")
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 10*time.Millisecond {
		t.Fatalf("expected to honor advertised delay, elapsed only %s", elapsed)
	}
	if m.calls != 2 {
		t.Fatalf("expected 2 calls, got %d", m.calls)
	}
}

func TestCallWithRetryStopsOnNonRateLimitError(t *testing.T) {
	m := &stubModel{responses: []string{""}, errs: []error{errors.New("some other failure")}}
	p := New(m, "test-model", "{user_requirements}", testLogger(t))

	_, err := p.Plan(context.Background(), "task", "")
	if err == nil {
		t.Fatal("expected error")
	}
	if m.calls != 1 {
		t.Fatalf("expected exactly 1 call (no retry), got %d", m.calls)
	}
}

func TestSubstitutePlaceholders(t *testing.T) {
	got := substitutePlaceholders("Task: {user_requirements}\nNotes: {notes}", map[string]string{
		"user_requirements": "build a game",
		"notes":             "keep it simple",
	})
	want := "Task: build a game\nNotes: keep it simple"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
