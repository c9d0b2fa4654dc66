package agentclient

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

func newMockClient(t *testing.T) *Client {
	t.Helper()
	c, err := New("mock", filepath.Join(t.TempDir(), "diffs"), nil, "", testLogger(t))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestGenerateWritesFilesAndDiffs(t *testing.T) {
	workspace := t.TempDir()
	c := newMockClient(t)

	result, err := c.Generate(context.Background(), "Build a landing page", nil, workspace)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if _, ok := result.FilesTouched["index.html"]; !ok {
		t.Fatalf("expected index.html in FilesTouched, got %+v", result.FilesTouched)
	}
	if len(result.Diffs) != 1 || result.Diffs[0].Kind != FileCreated {
		t.Fatalf("expected one created diff, got %+v", result.Diffs)
	}
	if _, err := os.Stat(filepath.Join(workspace, "index.html")); err != nil {
		t.Fatalf("expected index.html on disk: %v", err)
	}
}

func TestExecuteTodoSucceedsWithMockBackend(t *testing.T) {
	workspace := t.TempDir()
	c := newMockClient(t)

	result := c.ExecuteTodo(context.Background(), model.Todo{ID: "t1", Title: "Add a button"}, workspace)
	if !result.Ok {
		t.Fatalf("expected mock backend todo to succeed, got %+v", result)
	}
}

func TestApplyPatchModifiesExistingFile(t *testing.T) {
	workspace := t.TempDir()
	original := "<html><style>color: #111;</style></html>"
	if err := os.WriteFile(filepath.Join(workspace, "index.html"), []byte(original), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	c := newMockClient(t)
	plan := model.PatchPlan{
		Instructions: "make the heading blue",
		Files: []model.PatchFile{
			{Path: "index.html", Action: model.PatchModify, Description: "make color blue", Changes: []string{"make the text color blue"}},
		},
	}

	result := c.ApplyPatch(context.Background(), plan, workspace)
	if !result.Ok {
		t.Fatalf("expected patch to apply, got %+v", result)
	}
	content, err := os.ReadFile(filepath.Join(workspace, "index.html"))
	if err != nil {
		t.Fatalf("read patched file: %v", err)
	}
	if !strings.Contains(string(content), "#667eea") {
		t.Fatalf("expected file to contain the blue color substitution, got: %s", content)
	}
}

func TestApplyPatchCreatesNewFile(t *testing.T) {
	workspace := t.TempDir()
	c := newMockClient(t)

	plan := model.PatchPlan{
		Files: []model.PatchFile{
			{Path: "about.html", Action: model.PatchCreate, Description: "about page"},
		},
	}

	result := c.ApplyPatch(context.Background(), plan, workspace)
	if !result.Ok || len(result.FilesModified) != 1 {
		t.Fatalf("expected one created file, got %+v", result)
	}
	if _, err := os.Stat(filepath.Join(workspace, "about.html")); err != nil {
		t.Fatalf("expected about.html on disk: %v", err)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New("bogus", t.TempDir(), nil, "", testLogger(t)); err == nil {
		t.Fatal("expected an error for an unknown agent mode")
	}
}

func TestNewRejectsAnthropicWithoutModel(t *testing.T) {
	if _, err := New("anthropic", t.TempDir(), nil, "claude-3", testLogger(t)); err == nil {
		t.Fatal("expected an error when anthropic mode has no model configured")
	}
}
