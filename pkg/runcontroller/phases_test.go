package runcontroller

import (
	"os"
	"path/filepath"
	"testing"

	"loopctl/pkg/model"
)

func TestCopyToSiteAndProjectMirrorsFileToBothRoots(t *testing.T) {
	r := newTestRun(t, 5)
	src := filepath.Join(r.paths.WorkspaceDir, "index.html")
	if err := os.WriteFile(src, []byte("<h1>hi</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := r.copyToSiteAndProject(map[string]string{"index.html": src}); err != nil {
		t.Fatalf("copyToSiteAndProject: %v", err)
	}

	for _, dir := range []string{r.paths.SiteDir, r.paths.ProjectRoot} {
		content, err := os.ReadFile(filepath.Join(dir, "index.html"))
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", dir, err)
		}
		if string(content) != "<h1>hi</h1>" {
			t.Fatalf("got %q in %s", content, dir)
		}
	}
}

func TestEnsureIndexHTMLNoopWhenAlreadyPresent(t *testing.T) {
	r := newTestRun(t, 5)
	projectIndex := filepath.Join(r.paths.ProjectRoot, "index.html")
	if err := os.WriteFile(projectIndex, []byte("<h1>project</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := r.ensureIndexHTML(); err != nil {
		t.Fatalf("ensureIndexHTML: %v", err)
	}
	content, err := os.ReadFile(projectIndex)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "<h1>project</h1>" {
		t.Fatalf("ensureIndexHTML overwrote an existing index.html: %q", content)
	}
}

func TestEnsureIndexHTMLRecoversFromWorkspaceRoot(t *testing.T) {
	r := newTestRun(t, 5)
	workspaceIndex := filepath.Join(r.paths.WorkspaceDir, "index.html")
	if err := os.WriteFile(workspaceIndex, []byte("<h1>recovered</h1>"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	if err := r.ensureIndexHTML(); err != nil {
		t.Fatalf("ensureIndexHTML: %v", err)
	}
	content, err := os.ReadFile(filepath.Join(r.paths.ProjectRoot, "index.html"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(content) != "<h1>recovered</h1>" {
		t.Fatalf("got %q, want recovered content", content)
	}
}

func TestEnsureIndexHTMLErrorsWhenNeitherRootHasOne(t *testing.T) {
	r := newTestRun(t, 5)
	if err := r.ensureIndexHTML(); err == nil {
		t.Fatal("expected an error when no index.html exists anywhere")
	}
}

func TestFilesKeysReturnsAllMapKeys(t *testing.T) {
	keys := filesKeys(map[string]string{"a.html": "/a", "b.css": "/b"})
	if len(keys) != 2 {
		t.Fatalf("got %d keys, want 2", len(keys))
	}
}

func TestCountConsoleErrorsCountsOnlyRobustnessIssues(t *testing.T) {
	v := model.Verdict{Issues: []model.Issue{
		{Category: "robustness"},
		{Category: "visual_design"},
		{Category: "robustness"},
	}}
	if got := countConsoleErrors(v); got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}
