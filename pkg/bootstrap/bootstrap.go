// Package bootstrap clones a template repository into the project root at
// the start of a run so every run starts from a consistent file layout
// instead of an empty directory, then optionally runs the template's own
// init hook and mirrors the result into a site directory for the preview
// server.
package bootstrap

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"loopctl/internal/errs"
	"loopctl/pkg/logger"
	"loopctl/pkg/pathconfig"
)

const (
	cloneTimeout    = 5 * time.Minute
	checkoutTimeout = 60 * time.Second
	initTimeout     = 5 * time.Minute
)

var initScriptNames = []string{"init.sh", "bootstrap.sh", "setup.sh", ".init.sh"}

// Config controls whether and how the template is fetched.
type Config struct {
	RepoURL       string
	Ref           string // defaults to "main"
	RunInit       bool
	PublishToSite bool
}

// Enabled reports whether a template repository was configured.
func (c Config) Enabled() bool {
	return strings.TrimSpace(c.RepoURL) != ""
}

// Result summarizes what bootstrap did, for the run trace and manifest.
type Result struct {
	Enabled     bool
	ClonedFrom  string
	Ref         string
	CommitSHA   string
	InitRan     bool
	InitOutput  string
	FilesCount  int
	PublishedTo string
}

// Bootstrap clones cfg.RepoURL into projectRoot, checks out cfg.Ref, and
// optionally runs an init script found at the template root. It refuses to
// run if projectRoot does not resolve inside workspaceDir.
func Bootstrap(ctx context.Context, cfg Config, workspaceDir, projectRoot string, log logger.Logger) (Result, error) {
	if !cfg.Enabled() {
		log.Infof("bootstrap: disabled (no template repository configured)")
		return Result{Enabled: false}, nil
	}
	if !pathconfig.ValidateInside(workspaceDir, projectRoot) {
		return Result{}, fmt.Errorf("%w: project root %q is not within workspace %q, refusing to bootstrap",
			errs.ErrPathOutsideProject, projectRoot, workspaceDir)
	}

	ref := cfg.Ref
	if ref == "" {
		ref = "main"
	}

	log.Infof("bootstrap: cloning %s (ref %s) into %s", cfg.RepoURL, ref, projectRoot)

	if err := cleanProjectDir(workspaceDir, projectRoot, log); err != nil {
		return Result{}, err
	}

	if err := cloneTemplate(ctx, cfg.RepoURL, projectRoot, log); err != nil {
		return Result{}, err
	}

	commitSHA, err := checkoutRef(ctx, projectRoot, ref, log)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Enabled:    true,
		ClonedFrom: cfg.RepoURL,
		Ref:        ref,
		CommitSHA:  commitSHA,
	}

	if cfg.RunInit {
		output, ran, err := runInitScript(ctx, projectRoot, log)
		if err != nil {
			// An init script failure is recorded, not fatal: the template
			// clone itself succeeded and the run can still proceed.
			log.Warnf("bootstrap: init script failed: %v", err)
		}
		result.InitRan = ran
		result.InitOutput = output
	}

	result.FilesCount = countFiles(projectRoot)
	log.Infof("bootstrap: complete, %d files in project root", result.FilesCount)
	return result, nil
}

// PublishToSite mirrors projectRoot's files (excluding .git) into siteDir,
// used so the evaluator's browser can load the build from a stable path
// regardless of where the project root lives.
func PublishToSite(projectRoot, siteDir string, log logger.Logger) (int, error) {
	if err := os.MkdirAll(siteDir, 0o755); err != nil {
		return 0, fmt.Errorf("%w: creating site dir: %v", errs.ErrConfig, err)
	}

	copied := 0
	err := filepath.WalkDir(projectRoot, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(projectRoot, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(siteDir, rel)
		if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
			return err
		}
		if err := copyFile(path, dest); err != nil {
			return err
		}
		copied++
		return nil
	})
	if err != nil {
		return copied, fmt.Errorf("%w: publishing to site: %v", errs.ErrConfig, err)
	}
	log.Infof("bootstrap: published %d files to %s", copied, siteDir)
	return copied, nil
}

func cleanProjectDir(workspaceDir, projectRoot string, log logger.Logger) error {
	if _, err := os.Stat(projectRoot); os.IsNotExist(err) {
		return os.MkdirAll(filepath.Dir(projectRoot), 0o755)
	}

	if !pathconfig.ValidateInside(workspaceDir, projectRoot) {
		return fmt.Errorf("%w: refusing to delete %q, not inside %q", errs.ErrPathOutsideProject, projectRoot, workspaceDir)
	}
	log.Infof("bootstrap: cleaning existing project directory %s", projectRoot)
	if err := os.RemoveAll(projectRoot); err != nil {
		return fmt.Errorf("%w: cleaning project dir: %v", errs.ErrConfig, err)
	}
	return os.MkdirAll(filepath.Dir(projectRoot), 0o755)
}

func cloneTemplate(ctx context.Context, repoURL, projectRoot string, log logger.Logger) error {
	ctx, cancel := context.WithTimeout(ctx, cloneTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", "--single-branch", repoURL, projectRoot)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("%w: git clone: %v: %s", errs.ErrSubprocess, err, strings.TrimSpace(string(output)))
	}
	log.Infof("bootstrap: clone successful")
	return nil
}

func checkoutRef(ctx context.Context, projectRoot, ref string, log logger.Logger) (string, error) {
	if ref == "main" || ref == "master" {
		log.Infof("bootstrap: ref %s is the default branch, skipping checkout", ref)
	} else {
		cctx, cancel := context.WithTimeout(ctx, checkoutTimeout)
		defer cancel()
		cmd := exec.CommandContext(cctx, "git", "checkout", ref)
		cmd.Dir = projectRoot
		if output, err := cmd.CombinedOutput(); err != nil {
			return "", fmt.Errorf("%w: git checkout %s: %v: %s", errs.ErrSubprocess, ref, err, strings.TrimSpace(string(output)))
		}
		log.Infof("bootstrap: checked out %s", ref)
	}

	cmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	cmd.Dir = projectRoot
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("%w: git rev-parse HEAD: %v", errs.ErrSubprocess, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func runInitScript(ctx context.Context, projectRoot string, log logger.Logger) (output string, ran bool, err error) {
	var scriptPath string
	for _, name := range initScriptNames {
		candidate := filepath.Join(projectRoot, name)
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			scriptPath = candidate
			break
		}
	}
	if scriptPath == "" {
		log.Infof("bootstrap: no init script found")
		return "", false, nil
	}

	if err := os.Chmod(scriptPath, 0o755); err != nil {
		return "", false, fmt.Errorf("%w: making init script executable: %v", errs.ErrSubprocess, err)
	}

	cctx, cancel := context.WithTimeout(ctx, initTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, scriptPath)
	cmd.Dir = projectRoot
	out, runErr := cmd.CombinedOutput()
	if runErr != nil {
		return string(out), true, fmt.Errorf("%w: init script %s: %v", errs.ErrSubprocess, filepath.Base(scriptPath), runErr)
	}
	log.Infof("bootstrap: init script %s completed", filepath.Base(scriptPath))
	return string(out), true, nil
}

func countFiles(root string) int {
	count := 0
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			count++
		}
		return nil
	})
	return count
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return nil
}
