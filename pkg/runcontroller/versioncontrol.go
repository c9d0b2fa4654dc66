package runcontroller

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"loopctl/internal/errs"
)

const (
	vcBranchTimeout = 30 * time.Second
	vcPushTimeout   = 60 * time.Second
)

// versionControl is the optional repository snapshot feature: one branch
// per run, one commit-and-push per successful patch. Grounded on the
// teacher's own git-subprocess idiom in pkg/bootstrap (cloneTemplate,
// checkoutRef), reused here for commit/push instead of clone/checkout.
// Absence of RepoRemoteURL/RepoAccessToken disables it without affecting
// anything else, per config.Config.RepositoryEnabled.
type versionControl struct {
	branch  string
	commits []string
}

func (r *run) initVersionControl(ctx context.Context) error {
	if !r.cfg.RepositoryEnabled() {
		return nil
	}
	branch := fmt.Sprintf("run/%s", r.runID)
	cctx, cancel := context.WithTimeout(ctx, vcBranchTimeout)
	defer cancel()
	cmd := exec.CommandContext(cctx, "git", "checkout", "-b", branch)
	cmd.Dir = r.paths.ProjectRoot
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%w: creating run branch %s: %v: %s", errs.ErrSubprocess, branch, err, strings.TrimSpace(string(output)))
	}
	r.vc = &versionControl{branch: branch}
	return nil
}

// snapshotPatch commits and pushes the current project root state after a
// successful patch, using the exact commit message format the original
// repository-integration feature used: "[Iteration N] Apply patch (score:
// X/100)".
func (r *run) snapshotPatch(ctx context.Context, iteration, score int) {
	if r.vc == nil {
		return
	}
	message := fmt.Sprintf("[Iteration %d] Apply patch (score: %d/100)", iteration, score)

	addCtx, cancel := context.WithTimeout(ctx, vcBranchTimeout)
	defer cancel()
	addCmd := exec.CommandContext(addCtx, "git", "add", "-A")
	addCmd.Dir = r.paths.ProjectRoot
	if output, err := addCmd.CombinedOutput(); err != nil {
		r.trace.Warning("git add failed", map[string]any{"error": err.Error(), "output": string(output)})
		return
	}

	commitCtx, cancel2 := context.WithTimeout(ctx, vcBranchTimeout)
	defer cancel2()
	commitCmd := exec.CommandContext(commitCtx, "git", "commit", "-m", message, "--allow-empty")
	commitCmd.Dir = r.paths.ProjectRoot
	if output, err := commitCmd.CombinedOutput(); err != nil {
		r.trace.Warning("git commit failed", map[string]any{"error": err.Error(), "output": string(output)})
		return
	}

	shaCmd := exec.CommandContext(ctx, "git", "rev-parse", "HEAD")
	shaCmd.Dir = r.paths.ProjectRoot
	shaOut, err := shaCmd.Output()
	sha := strings.TrimSpace(string(shaOut))
	if err != nil || sha == "" {
		sha = "unknown"
	}

	pushCtx, cancel3 := context.WithTimeout(ctx, vcPushTimeout)
	defer cancel3()
	pushCmd := exec.CommandContext(pushCtx, "git", "push", "origin", r.vc.branch)
	pushCmd.Dir = r.paths.ProjectRoot
	if output, err := pushCmd.CombinedOutput(); err != nil {
		r.trace.Warning("git push failed", map[string]any{"error": err.Error(), "output": string(output)})
	}

	r.vc.commits = append(r.vc.commits, fmt.Sprintf("iteration %d: %s", iteration, sha))
	r.trace.Info("version control snapshot pushed", map[string]any{"branch": r.vc.branch, "sha": sha, "iteration": iteration})
}
