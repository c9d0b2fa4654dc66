// Package pathconfig establishes the canonical directory layout for a single
// run and enforces path confinement: every write the controller initiates
// must resolve inside projectRoot (or, for artifacts and the site mirror,
// their own confined roots).
//
// This is intentionally a value carried by the RunController rather than a
// package-level singleton: a process hosting more than one run (tests, or a
// future multi-run supervisor) must be able to construct one PathConfig per
// run without the two trampling each other.
package pathconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"loopctl/internal/errs"
)

// Config is the canonical directory configuration for one run.
type Config struct {
	WorkspaceDir string
	ProjectRoot  string
	SiteDir      string
	ArtifactsDir string

	PreviewHost string
	PreviewPort int
}

const defaultProjectDirName = "project"

// New establishes the canonical directories for a run rooted at baseDir. A
// sortable run ID (timestamp + random suffix) names the workspace directory
// so runs sort chronologically on disk. projectDirName defaults to "project"
// when empty, matching the source's PROJECT_DIR_NAME default.
func New(baseDir, runID, projectDirName, previewHost string, previewPort int) (*Config, error) {
	if baseDir == "" {
		return nil, fmt.Errorf("%w: base directory is empty", errs.ErrConfig)
	}
	if runID == "" {
		return nil, fmt.Errorf("%w: run id is empty", errs.ErrConfig)
	}
	if projectDirName == "" {
		projectDirName = defaultProjectDirName
	}

	workspaceDir, err := filepath.Abs(filepath.Join(baseDir, runID))
	if err != nil {
		return nil, fmt.Errorf("%w: resolving workspace dir: %v", errs.ErrConfig, err)
	}

	cfg := &Config{
		WorkspaceDir: workspaceDir,
		ProjectRoot:  filepath.Join(workspaceDir, projectDirName),
		SiteDir:      filepath.Join(workspaceDir, "site"),
		ArtifactsDir: filepath.Join(workspaceDir, "artifacts"),
		PreviewHost:  previewHost,
		PreviewPort:  previewPort,
	}
	if cfg.PreviewHost == "" {
		cfg.PreviewHost = "127.0.0.1"
	}
	if cfg.PreviewPort == 0 {
		cfg.PreviewPort = 8000
	}
	return cfg, nil
}

// NewRunID produces a sortable run identifier: a lexicographically ordered
// timestamp followed by a short random suffix, unique within baseDir for any
// practical run rate.
func NewRunID(now func() string) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("%s-%s", now(), suffix)
}

// PreviewURL is always an http:// URL, never a file:// URL — §6 of the
// contract this package implements treats exposing a local-file URL as a
// hard failure of the preview contract.
func (c *Config) PreviewURL() string {
	return fmt.Sprintf("http://%s:%d/", c.PreviewHost, c.PreviewPort)
}

// EnsureDirectories creates the workspace, project, site, and artifacts
// directories if they do not already exist.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.WorkspaceDir, c.ProjectRoot, c.SiteDir, c.ArtifactsDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("%w: creating %s: %v", errs.ErrConfig, dir, err)
		}
	}
	return nil
}

// ValidateInside reports whether p resolves to a descendant of root (or root
// itself). Both paths are resolved to absolute form first; symlinks are not
// followed beyond what filepath.Abs does, matching the source's use of
// Path.resolve() rather than a realpath-with-symlink-expansion check.
func ValidateInside(root, p string) bool {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return false
	}
	absP, err := filepath.Abs(p)
	if err != nil {
		return false
	}
	rel, err := filepath.Rel(absRoot, absP)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return !strings.HasPrefix(rel, "..")
}

// SafeJoin joins parts relative to projectRoot and fails closed with
// ErrPathOutsideProject if the resolved result would escape projectRoot. This
// is a hard guard: the code-generation agent is trusted to stay inside the
// project, but every write the controller itself initiates passes through
// SafeJoin.
func (c *Config) SafeJoin(parts ...string) (string, error) {
	joined := append([]string{c.ProjectRoot}, parts...)
	result := filepath.Join(joined...)
	absResult, err := filepath.Abs(result)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrPathOutsideProject, err)
	}
	if !ValidateInside(c.ProjectRoot, absResult) {
		return "", fmt.Errorf("%w: %q escapes project root %q", errs.ErrPathOutsideProject, absResult, c.ProjectRoot)
	}
	return absResult, nil
}

// SafeJoinArtifacts is SafeJoin's counterpart for artifactsDir, used by the
// Artifacts component which writes screenshots, evaluations, logs, and
// reports outside projectRoot but must still stay within its own confined
// root.
func (c *Config) SafeJoinArtifacts(parts ...string) (string, error) {
	joined := append([]string{c.ArtifactsDir}, parts...)
	result := filepath.Join(joined...)
	absResult, err := filepath.Abs(result)
	if err != nil {
		return "", fmt.Errorf("%w: %v", errs.ErrPathOutsideProject, err)
	}
	if !ValidateInside(c.ArtifactsDir, absResult) {
		return "", fmt.Errorf("%w: %q escapes artifacts root %q", errs.ErrPathOutsideProject, absResult, c.ArtifactsDir)
	}
	return absResult, nil
}
