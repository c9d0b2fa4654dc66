package pathconfig

import (
	"path/filepath"
	"strings"
	"testing"
)

func newTestConfig(t *testing.T) *Config {
	t.Helper()
	base := t.TempDir()
	cfg, err := New(base, "run-1", "", "127.0.0.1", 8000)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories: %v", err)
	}
	return cfg
}

func TestPreviewURLIsHTTP(t *testing.T) {
	cfg := newTestConfig(t)
	url := cfg.PreviewURL()
	if !strings.HasPrefix(url, "http://") {
		t.Fatalf("preview URL %q is not http://", url)
	}
	if strings.HasPrefix(url, "file://") {
		t.Fatalf("preview URL must never be a file:// URL")
	}
}

func TestSafeJoinRejectsTraversal(t *testing.T) {
	cfg := newTestConfig(t)
	if _, err := cfg.SafeJoin("../../etc/passwd"); err == nil {
		t.Fatal("expected SafeJoin to reject a path escaping the project root")
	}
}

func TestSafeJoinAcceptsNested(t *testing.T) {
	cfg := newTestConfig(t)
	p, err := cfg.SafeJoin("src", "index.html")
	if err != nil {
		t.Fatalf("SafeJoin: %v", err)
	}
	want := filepath.Join(cfg.ProjectRoot, "src", "index.html")
	if p != want {
		t.Fatalf("got %q, want %q", p, want)
	}
}

func TestValidateInside(t *testing.T) {
	cfg := newTestConfig(t)
	if !ValidateInside(cfg.ProjectRoot, filepath.Join(cfg.ProjectRoot, "a", "b.txt")) {
		t.Fatal("expected nested path to validate inside project root")
	}
	if ValidateInside(cfg.ProjectRoot, filepath.Join(cfg.WorkspaceDir, "..", "outside.txt")) {
		t.Fatal("expected path outside workspace to fail validation")
	}
}

func TestProjectAndSiteAreInsideWorkspace(t *testing.T) {
	cfg := newTestConfig(t)
	if !ValidateInside(cfg.WorkspaceDir, cfg.ProjectRoot) {
		t.Fatal("projectRoot must be inside workspaceDir")
	}
	if !ValidateInside(cfg.WorkspaceDir, cfg.SiteDir) {
		t.Fatal("siteDir must be inside workspaceDir")
	}
}
