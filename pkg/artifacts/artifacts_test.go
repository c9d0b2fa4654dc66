package artifacts

import (
	"os"
	"path/filepath"
	"testing"
)

func TestSaveEvaluationUpdatesManifest(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	path, err := store.SaveEvaluation(map[string]any{"score": 82, "passed": true}, 1)
	if err != nil {
		t.Fatalf("SaveEvaluation: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("evaluation file missing: %v", err)
	}

	evals := store.Evaluations()
	if len(evals) != 1 || evals[0].Score != 82 || !evals[0].Passed {
		t.Fatalf("unexpected evaluations: %+v", evals)
	}

	if _, err := os.Stat(filepath.Join(dir, "manifest.json")); err != nil {
		t.Fatalf("manifest.json missing: %v", err)
	}
}

func TestSaveScreenshotHandlesMissingSource(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	path, err := store.SaveScreenshot("/nonexistent/shot.png", 3, nil)
	if err != nil {
		t.Fatalf("SaveScreenshot: %v", err)
	}
	shot, ok := store.LatestScreenshot()
	if !ok || shot.Iteration != 3 || shot.Path != path {
		t.Fatalf("unexpected latest screenshot: %+v", shot)
	}
}

func TestGetSummaryCountsAllKinds(t *testing.T) {
	store, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.SaveLog("hello", "build", "general"); err != nil {
		t.Fatalf("SaveLog: %v", err)
	}
	if _, err := store.SaveFile("<html></html>", "index.html", "code", nil); err != nil {
		t.Fatalf("SaveFile: %v", err)
	}
	if _, err := store.SaveReport(map[string]any{"ok": true}, ""); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	summary := store.GetSummary()
	if summary.Logs != 1 || summary.Files != 1 || summary.Reports != 1 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
	if summary.TotalArtifacts != 3 {
		t.Fatalf("got %d total artifacts, want 3", summary.TotalArtifacts)
	}
}

func TestLoadManifestRoundTrips(t *testing.T) {
	dir := t.TempDir()
	store, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := store.SaveReport(map[string]any{"a": 1}, "report"); err != nil {
		t.Fatalf("SaveReport: %v", err)
	}

	reloaded, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	manifest, err := reloaded.LoadManifest()
	if err != nil {
		t.Fatalf("LoadManifest: %v", err)
	}
	if len(manifest.Reports) != 1 {
		t.Fatalf("got %d reports after reload, want 1", len(manifest.Reports))
	}
}
