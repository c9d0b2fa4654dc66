package agentclient

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileDiffKind discriminates what happened to one file between two snapshots.
type FileDiffKind string

const (
	FileCreated  FileDiffKind = "created"
	FileModified FileDiffKind = "modified"
	FileDeleted  FileDiffKind = "deleted"
)

// FileDiff is one unified-diff entry produced by diffSnapshots.
type FileDiff struct {
	File         string       `json:"file"`
	Kind         FileDiffKind `json:"type"`
	Unified      string       `json:"-"`
	LinesAdded   int          `json:"lines_added"`
	LinesRemoved int          `json:"lines_removed"`
}

// snapshot maps a workspace-relative path to its full text content.
type snapshot map[string]string

// captureSnapshot walks root and reads every regular, non-hidden file into a
// relative-path -> content map, tolerating unreadable files by skipping them
// rather than failing the whole capture. Grounded on
// openhands_client.py's _capture_workspace_state.
func captureSnapshot(root string) snapshot {
	state := make(snapshot)
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil {
			return nil
		}
		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && path != root {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			return nil
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return nil
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return nil
		}
		state[filepath.ToSlash(rel)] = string(content)
		return nil
	})
	return state
}

// diffSnapshots compares before and after, producing one FileDiff per
// created, modified, or deleted file. Unchanged files are omitted. Grounded
// on openhands_client.py's _generate_diffs, translated from Python's
// difflib.unified_diff to a minimal stdlib line-based unified-diff renderer
// (see unifiedDiff below) — no third-party diff library is wired anywhere in
// the teacher pack, only a commented-out, unused import of one, so this
// follows the algorithm the original actually runs rather than adopting an
// unverified dependency for it.
func diffSnapshots(before, after snapshot) []FileDiff {
	var diffs []FileDiff

	for path, newContent := range after {
		oldContent, existed := before[path]
		switch {
		case !existed:
			diffs = append(diffs, FileDiff{
				File: path, Kind: FileCreated,
				Unified:    fmt.Sprintf("NEW FILE: %s\n\n%s", path, newContent),
				LinesAdded: countLines(newContent),
			})
		case oldContent != newContent:
			added, removed, unified := unifiedDiff(path, oldContent, newContent)
			diffs = append(diffs, FileDiff{
				File: path, Kind: FileModified, Unified: unified,
				LinesAdded: added, LinesRemoved: removed,
			})
		}
	}

	for path, oldContent := range before {
		if _, stillPresent := after[path]; !stillPresent {
			diffs = append(diffs, FileDiff{
				File: path, Kind: FileDeleted,
				LinesRemoved: countLines(oldContent),
			})
		}
	}
	return diffs
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	return len(strings.Split(s, "\n"))
}

// unifiedDiff renders a minimal unified-diff-style text body for one file: a
// two-line a/b header followed by the full old content with '-' prefixes and
// the full new content with '+' prefixes. This favors always producing a
// readable before/after over implementing a longest-common-subsequence hunk
// algorithm — every changed file is typically a whole generated or patched
// HTML/CSS/JS file, not a large file with one isolated edit, so a minimal
// hunk-free rendering carries the same information an operator needs.
func unifiedDiff(path, oldContent, newContent string) (added, removed int, unified string) {
	var b strings.Builder
	fmt.Fprintf(&b, "--- a/%s\n+++ b/%s\n", path, path)

	oldLines := strings.Split(oldContent, "\n")
	newLines := strings.Split(newContent, "\n")
	fmt.Fprintf(&b, "@@ -1,%d +1,%d @@\n", len(oldLines), len(newLines))
	for _, l := range oldLines {
		b.WriteString("-" + l + "\n")
		removed++
	}
	for _, l := range newLines {
		b.WriteString("+" + l + "\n")
		added++
	}
	return added, removed, b.String()
}
