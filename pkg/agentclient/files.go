package agentclient

import (
	"os"
	"path/filepath"
	"regexp"
)

// writeFiles writes each relative-path -> content entry under workspace,
// creating parent directories as needed, and returns a map of relative path
// to the absolute path written — the FilesTouched shape every operation
// returns.
func writeFiles(workspace string, files map[string]string) (map[string]string, error) {
	touched := make(map[string]string, len(files))
	for rel, content := range files {
		abs := filepath.Join(workspace, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
			return touched, err
		}
		if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
			return touched, err
		}
		touched[rel] = abs
	}
	return touched, nil
}

func writeDiffFile(path, content string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// sanitizeFilename turns a workspace-relative path into a single safe path
// component for a diff artifact filename.
func sanitizeFilename(rel string) string {
	return unsafeFilenameChars.ReplaceAllString(rel, "_")
}
