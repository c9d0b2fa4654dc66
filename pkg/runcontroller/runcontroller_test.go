package runcontroller

import (
	"path/filepath"
	"testing"

	"loopctl/internal/config"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
	"loopctl/pkg/pathconfig"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

func newTestRun(t *testing.T, maxIterations int) *run {
	t.Helper()
	base := t.TempDir()
	paths, err := pathconfig.New(base, "run1", "project", "127.0.0.1", 8000)
	if err != nil {
		t.Fatalf("pathconfig.New: %v", err)
	}
	if err := paths.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}

	log := testLogger(t)
	return &run{
		rc:             &RunController{log: log},
		runID:          "run1",
		task:           "build a page",
		cfg:            config.Config{MaxIterations: maxIterations},
		paths:          paths,
		log:            log,
		filesGenerated: map[string]string{},
	}
}

func TestDecideSetsStopReasonWhenPassed(t *testing.T) {
	r := newTestRun(t, 5)
	passed := r.decide(1, model.Verdict{Passed: true, Score: 90})
	if !passed {
		t.Fatal("expected decide to report passed=true")
	}
	if r.stopReason != model.StopPassed {
		t.Fatalf("got stop reason %q, want %q", r.stopReason, model.StopPassed)
	}
}

func TestDecideSetsMaxIterationsOnLastIterationWithoutPassing(t *testing.T) {
	r := newTestRun(t, 3)
	passed := r.decide(3, model.Verdict{Passed: false, Score: 40})
	if passed {
		t.Fatal("expected decide to report passed=false")
	}
	if r.stopReason != model.StopMaxIterations {
		t.Fatalf("got stop reason %q, want %q", r.stopReason, model.StopMaxIterations)
	}
}

func TestDecideLeavesStopReasonEmptyWhenIterationsRemain(t *testing.T) {
	r := newTestRun(t, 5)
	passed := r.decide(1, model.Verdict{Passed: false, Score: 40})
	if passed {
		t.Fatal("expected decide to report passed=false")
	}
	if r.stopReason != "" {
		t.Fatalf("expected empty stop reason while iterations remain, got %q", r.stopReason)
	}
}

func TestBuildManifestUsesLastIterationScore(t *testing.T) {
	r := newTestRun(t, 5)
	r.iterations = []model.Iteration{
		{Index: 1, Score: 40, Passed: false},
		{Index: 2, Score: 85, Passed: true},
	}
	r.stopReason = model.StopPassed

	m := r.buildManifest()
	if m.FinalScore != 85 || !m.FinalPassed {
		t.Fatalf("got final score=%d passed=%v, want 85/true", m.FinalScore, m.FinalPassed)
	}
	if m.IterationCount != 2 {
		t.Fatalf("got iteration count %d, want 2", m.IterationCount)
	}
	if m.RunID != "run1" || m.Task != "build a page" {
		t.Fatalf("unexpected run identity in manifest: %+v", m)
	}
}

func TestBuildManifestOmitsVersionControlWhenUnused(t *testing.T) {
	r := newTestRun(t, 5)
	m := r.buildManifest()
	if m.VersionControl != nil {
		t.Fatalf("expected nil VersionControl, got %+v", m.VersionControl)
	}
}

func TestBuildManifestIncludesVersionControlWhenPresent(t *testing.T) {
	r := newTestRun(t, 5)
	r.vc = &versionControl{branch: "run/run1", commits: []string{"iteration 1: abc123"}}

	m := r.buildManifest()
	if m.VersionControl == nil {
		t.Fatal("expected non-nil VersionControl")
	}
	if m.VersionControl.BranchName != "run/run1" || len(m.VersionControl.Commits) != 1 {
		t.Fatalf("got %+v", m.VersionControl)
	}
}
