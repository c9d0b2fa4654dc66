package runcontroller

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"loopctl/pkg/trace"
)

// newLocalGitProjectRoot makes r.paths.ProjectRoot an initialized git repo
// with one commit, so initVersionControl/snapshotPatch have something to
// branch from and commit into, without any network dependency.
func newLocalGitProjectRoot(t *testing.T, r *run) {
	t.Helper()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = r.paths.ProjectRoot
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	if err := os.WriteFile(filepath.Join(r.paths.ProjectRoot, "index.html"), []byte("<h1>v1</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	run("init", "-b", "main")
	run("add", "-A")
	run("commit", "-m", "initial")
}

func withTrace(t *testing.T, r *run) {
	t.Helper()
	tr, err := trace.Open(filepath.Join(r.paths.WorkspaceDir, "trace.jsonl"))
	if err != nil {
		t.Fatalf("trace.Open: %v", err)
	}
	t.Cleanup(func() { tr.Close() })
	r.trace = tr
}

func TestInitVersionControlNoopWithoutRepositoryCredentials(t *testing.T) {
	r := newTestRun(t, 5)
	withTrace(t, r)

	if err := r.initVersionControl(context.Background()); err != nil {
		t.Fatalf("expected no error when repository snapshot is disabled, got %v", err)
	}
	if r.vc != nil {
		t.Fatalf("expected r.vc to stay nil when RepositoryEnabled() is false, got %+v", r.vc)
	}
}

func TestInitVersionControlCreatesRunBranch(t *testing.T) {
	r := newTestRun(t, 5)
	withTrace(t, r)
	r.cfg.RepoRemoteURL = "https://example.invalid/repo.git"
	r.cfg.RepoAccessToken = "token"
	newLocalGitProjectRoot(t, r)

	if err := r.initVersionControl(context.Background()); err != nil {
		t.Fatalf("initVersionControl: %v", err)
	}
	if r.vc == nil || r.vc.branch != "run/"+r.runID {
		t.Fatalf("got vc=%+v, want branch run/%s", r.vc, r.runID)
	}

	out, err := exec.Command("git", "-C", r.paths.ProjectRoot, "branch", "--show-current").Output()
	if err != nil {
		t.Fatalf("git branch --show-current: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != r.vc.branch {
		t.Fatalf("checked-out branch is %q, want %q", got, r.vc.branch)
	}
}

func TestSnapshotPatchRecordsCommitShaDespitePushFailure(t *testing.T) {
	r := newTestRun(t, 5)
	withTrace(t, r)
	r.cfg.RepoRemoteURL = "https://example.invalid/repo.git"
	r.cfg.RepoAccessToken = "token"
	newLocalGitProjectRoot(t, r)
	if err := r.initVersionControl(context.Background()); err != nil {
		t.Fatalf("initVersionControl: %v", err)
	}

	if err := os.WriteFile(filepath.Join(r.paths.ProjectRoot, "index.html"), []byte("<h1>v2</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	// origin is unreachable, so the push inside snapshotPatch fails; the
	// commit itself must still be recorded since it happens first.
	r.snapshotPatch(context.Background(), 1, 85)

	if len(r.vc.commits) != 1 {
		t.Fatalf("got %d commits, want 1: %+v", len(r.vc.commits), r.vc.commits)
	}
	if !strings.Contains(r.vc.commits[0], "iteration 1:") {
		t.Fatalf("got commit record %q", r.vc.commits[0])
	}

	out, err := exec.Command("git", "-C", r.paths.ProjectRoot, "log", "-1", "--pretty=%s").Output()
	if err != nil {
		t.Fatalf("git log: %v", err)
	}
	if got := strings.TrimSpace(string(out)); got != "[Iteration 1] Apply patch (score: 85/100)" {
		t.Fatalf("got commit message %q", got)
	}
}
