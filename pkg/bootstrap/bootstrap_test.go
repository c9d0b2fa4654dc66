package bootstrap

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"loopctl/pkg/logger"
)

func testLogger(t *testing.T) logger.Logger {
	t.Helper()
	return logger.CreateTestLogger(filepath.Join(t.TempDir(), "test.log"), "info")
}

// newLocalTemplateRepo creates a tiny git repo on disk to act as a template
// source, avoiding any network dependency in tests.
func newLocalTemplateRepo(t *testing.T, withInitScript bool) string {
	t.Helper()
	dir := t.TempDir()
	run := func(args ...string) {
		cmd := exec.Command("git", args...)
		cmd.Dir = dir
		cmd.Env = append(os.Environ(),
			"GIT_AUTHOR_NAME=test", "GIT_AUTHOR_EMAIL=test@example.com",
			"GIT_COMMITTER_NAME=test", "GIT_COMMITTER_EMAIL=test@example.com")
		if out, err := cmd.CombinedOutput(); err != nil {
			t.Fatalf("git %v: %v: %s", args, err, out)
		}
	}
	run("init", "-b", "main")
	if err := os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>template</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if withInitScript {
		script := "#!/bin/sh\necho hello from init > init_marker.txt\n"
		if err := os.WriteFile(filepath.Join(dir, "init.sh"), []byte(script), 0o755); err != nil {
			t.Fatalf("WriteFile init.sh: %v", err)
		}
	}
	run("add", "-A")
	run("commit", "-m", "initial")
	return dir
}

func TestBootstrapDisabledWithoutRepoURL(t *testing.T) {
	ws := t.TempDir()
	result, err := Bootstrap(context.Background(), Config{}, ws, filepath.Join(ws, "project"), testLogger(t))
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if result.Enabled {
		t.Fatal("expected Enabled=false")
	}
}

func TestBootstrapClonesTemplate(t *testing.T) {
	repo := newLocalTemplateRepo(t, false)
	ws := t.TempDir()
	projectRoot := filepath.Join(ws, "project")

	result, err := Bootstrap(context.Background(), Config{RepoURL: repo, Ref: "main"}, ws, projectRoot, testLogger(t))
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !result.Enabled {
		t.Fatal("expected Enabled=true")
	}
	if result.CommitSHA == "" {
		t.Fatal("expected a commit sha")
	}
	if _, err := os.Stat(filepath.Join(projectRoot, "index.html")); err != nil {
		t.Fatalf("expected cloned file to exist: %v", err)
	}
}

func TestBootstrapRunsInitScriptWhenRequested(t *testing.T) {
	repo := newLocalTemplateRepo(t, true)
	ws := t.TempDir()
	projectRoot := filepath.Join(ws, "project")

	result, err := Bootstrap(context.Background(), Config{RepoURL: repo, Ref: "main", RunInit: true}, ws, projectRoot, testLogger(t))
	if err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if !result.InitRan {
		t.Fatal("expected init script to have run")
	}
	if _, err := os.Stat(filepath.Join(projectRoot, "init_marker.txt")); err != nil {
		t.Fatalf("expected init script side effect, got: %v", err)
	}
}

func TestBootstrapRefusesProjectRootOutsideWorkspace(t *testing.T) {
	repo := newLocalTemplateRepo(t, false)
	ws := t.TempDir()
	outside := t.TempDir()

	_, err := Bootstrap(context.Background(), Config{RepoURL: repo}, ws, filepath.Join(outside, "project"), testLogger(t))
	if err == nil {
		t.Fatal("expected an error for project root outside workspace")
	}
}

func TestPublishToSiteCopiesFilesExcludingGit(t *testing.T) {
	projectRoot := t.TempDir()
	if err := os.MkdirAll(filepath.Join(projectRoot, ".git"), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(filepath.Join(projectRoot, ".git", "HEAD"), []byte("ref: refs/heads/main"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := os.WriteFile(filepath.Join(projectRoot, "index.html"), []byte("hi"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	siteDir := filepath.Join(t.TempDir(), "site")
	copied, err := PublishToSite(projectRoot, siteDir, testLogger(t))
	if err != nil {
		t.Fatalf("PublishToSite: %v", err)
	}
	if copied != 1 {
		t.Fatalf("got %d files copied, want 1", copied)
	}
	if _, err := os.Stat(filepath.Join(siteDir, ".git")); err == nil {
		t.Fatal(".git should not have been published")
	}
	if _, err := os.Stat(filepath.Join(siteDir, "index.html")); err != nil {
		t.Fatalf("expected index.html in site dir: %v", err)
	}
}
