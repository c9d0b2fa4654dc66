package agentclient

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"time"

	"loopctl/internal/errs"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

const localBackendTimeout = 5 * time.Minute

// localBackend shells out to a locally installed code-generation CLI,
// pointed at workspace, and relies on the surrounding Client's
// snapshot/diff pass to discover what it changed — it reports no files
// itself, matching the fact that a real coding agent edits the workspace
// directly rather than returning file content. Grounded on
// original_source/orchestrator/openhands_client.py's
// LocalSubprocessOpenHandsClient, which also runs a coding agent in the same
// container against the live workspace and only recovers what changed by
// diffing before/after snapshots; translated here from an in-process SDK
// call to an exec.CommandContext subprocess, following
// pkg/mcpclient.Spawn's subprocess-management idiom.
type localBackend struct {
	command string
	args    []string
	log     logger.Logger
}

func newLocalBackend(log logger.Logger) *localBackend {
	return &localBackend{command: "openhands", log: log}
}

func (b *localBackend) name() string { return "local" }

func (b *localBackend) generateFiles(ctx context.Context, task string, requirements map[string]string, workspace string) (map[string]string, string, string, error) {
	prompt := generationPrompt(task, requirements)
	stdout, stderr, err := b.run(ctx, workspace, prompt)
	// The subprocess edits workspace in place; Client diffs before/after
	// itself, so an empty file map here is expected and correct.
	return nil, stdout, stderr, err
}

func (b *localBackend) patchFiles(ctx context.Context, plan model.PatchPlan, workspace string) (map[string]string, string, string, error) {
	prompt := patchPrompt(plan)
	stdout, stderr, err := b.run(ctx, workspace, prompt)
	return nil, stdout, stderr, err
}

func (b *localBackend) run(ctx context.Context, workspace, prompt string) (string, string, error) {
	ctx, cancel := context.WithTimeout(ctx, localBackendTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, b.command, append(b.args, "--workspace", workspace)...)
	cmd.Dir = workspace
	cmd.Stdin = bytes.NewBufferString(prompt)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		b.log.Warnf("agentclient: local backend %s failed: %v\nstderr: %s", b.command, err, stderr.String())
		return stdout.String(), stderr.String(), fmt.Errorf("%w: %s: %w", errs.ErrSubprocess, b.command, err)
	}
	return stdout.String(), stderr.String(), nil
}
