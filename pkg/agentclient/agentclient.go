// Package agentclient is the code-generation agent adapter: it turns a task
// or todo into files written under a workspace, and a PatchPlan into edits of
// existing files, always bracketing the operation with a before/after
// workspace snapshot so every change is captured as a diff artifact.
// Grounded on original_source/orchestrator/openhands_client.py's
// OpenHandsClient hierarchy (generate_code/apply_patch_plan, snapshot+diff
// discipline, and its Local/Mock backend split), generalized to a third
// backend (the teacher's own Anthropic adapter) per the expanded
// configuration surface's AGENT_MODE.
package agentclient

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"loopctl/internal/errs"
	"loopctl/internal/llmtypes"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

// GenerateResult is generate's return shape (spec §4.6).
type GenerateResult struct {
	FilesTouched map[string]string // relative path -> absolute path on disk
	Diffs        []FileDiff
	DurationMs   int64
}

// TodoResult is executeTodo's return shape. A failing todo sets Ok=false and
// carries Err, but never returns a Go error itself — callers log and move on,
// matching spec §4.6's "logged but does not propagate".
type TodoResult struct {
	FilesTouched map[string]string
	DurationMs   int64
	Ok           bool
	Err          string
}

// PatchResult is applyPatch's return shape.
type PatchResult struct {
	FilesModified []string
	Stdout        string
	Stderr        string
	DurationMs    int64
	Ok            bool
}

// backend is the swappable code-generation implementation. generateFiles
// returns the full content for each file it wants written (relative path ->
// content); applyPatchFiles does the same for files named in a PatchPlan. The
// snapshot/diff bookkeeping that wraps every backend call lives in Client,
// not here, so every backend gets it for free and identically.
type backend interface {
	name() string
	generateFiles(ctx context.Context, task string, requirements map[string]string, workspace string) (map[string]string, string, string, error)
	patchFiles(ctx context.Context, plan model.PatchPlan, workspace string) (map[string]string, string, string, error)
}

// Client is the AgentClient of spec §4.6: one configured backend plus the
// snapshot/diff discipline every operation shares.
type Client struct {
	backend  backend
	diffsDir string
	log      logger.Logger
}

// New selects a backend by mode ("mock", "anthropic", or "local") and
// returns a Client that writes diff artifacts under diffsDir.
func New(mode, diffsDir string, llmModel llmtypes.Model, modelID string, log logger.Logger) (*Client, error) {
	var b backend
	switch mode {
	case "", "mock":
		b = newMockBackend(log)
	case "anthropic":
		if llmModel == nil {
			return nil, fmt.Errorf("%w: agent_mode=anthropic requires a configured model", errs.ErrConfig)
		}
		b = newAnthropicBackend(llmModel, modelID, log)
	case "local":
		b = newLocalBackend(log)
	default:
		return nil, fmt.Errorf("%w: unknown agent backend %q", errs.ErrConfig, mode)
	}
	return &Client{backend: b, diffsDir: diffsDir, log: log}, nil
}

// Generate implements spec §4.6's generate: capture, delegate, capture,
// diff, write files to workspace.
func (c *Client) Generate(ctx context.Context, task string, requirements map[string]string, workspace string) (GenerateResult, error) {
	start := time.Now()
	before := captureSnapshot(workspace)

	files, _, _, err := c.backend.generateFiles(ctx, task, requirements, workspace)
	if err != nil {
		return GenerateResult{}, fmt.Errorf("agentclient: generate (%s): %w", c.backend.name(), err)
	}
	touched, writeErr := writeFiles(workspace, files)
	if writeErr != nil {
		return GenerateResult{}, fmt.Errorf("agentclient: writing generated files: %w", writeErr)
	}

	after := captureSnapshot(workspace)
	diffs := diffSnapshots(before, after)
	c.persistDiffs("generate", diffs)

	return GenerateResult{
		FilesTouched: touched,
		Diffs:        diffs,
		DurationMs:   time.Since(start).Milliseconds(),
	}, nil
}

// ExecuteTodo implements spec §4.6's executeTodo: same snapshot-diff
// discipline as Generate, narrowed to one todo's requirements. Failures are
// captured into the result rather than returned as an error.
func (c *Client) ExecuteTodo(ctx context.Context, todo model.Todo, workspace string) TodoResult {
	start := time.Now()
	before := captureSnapshot(workspace)

	requirements := map[string]string{
		"todo_id":          todo.ID,
		"todo_title":       todo.Title,
		"todo_description": todo.Description,
		"module_id":        todo.ModuleID,
	}

	files, _, _, err := c.backend.generateFiles(ctx, todo.Title, requirements, workspace)
	if err != nil {
		c.log.Warnf("agentclient: todo %s failed: %v", todo.ID, err)
		return TodoResult{Ok: false, Err: err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}
	touched, writeErr := writeFiles(workspace, files)
	if writeErr != nil {
		c.log.Warnf("agentclient: todo %s write failed: %v", todo.ID, writeErr)
		return TodoResult{Ok: false, Err: writeErr.Error(), DurationMs: time.Since(start).Milliseconds()}
	}

	after := captureSnapshot(workspace)
	c.persistDiffs("todo_"+todo.ID, diffSnapshots(before, after))

	return TodoResult{
		FilesTouched: touched,
		DurationMs:   time.Since(start).Milliseconds(),
		Ok:           true,
	}
}

// ApplyPatch implements spec §4.6's applyPatch: idempotent writes of
// patchPlan's file list under workspace, under the same snapshot/diff
// discipline.
func (c *Client) ApplyPatch(ctx context.Context, plan model.PatchPlan, workspace string) PatchResult {
	start := time.Now()
	before := captureSnapshot(workspace)

	files, stdout, stderr, err := c.backend.patchFiles(ctx, plan, workspace)
	if err != nil {
		c.log.Warnf("agentclient: apply patch failed: %v", err)
		return PatchResult{Stderr: err.Error(), DurationMs: time.Since(start).Milliseconds()}
	}
	touched, writeErr := writeFiles(workspace, files)
	if writeErr != nil {
		c.log.Warnf("agentclient: patch write failed: %v", writeErr)
		return PatchResult{Stderr: writeErr.Error(), DurationMs: time.Since(start).Milliseconds()}
	}

	after := captureSnapshot(workspace)
	c.persistDiffs("patch", diffSnapshots(before, after))

	modified := make([]string, 0, len(touched))
	for rel := range touched {
		modified = append(modified, rel)
	}
	return PatchResult{
		FilesModified: modified,
		Stdout:        stdout,
		Stderr:        stderr,
		DurationMs:    time.Since(start).Milliseconds(),
		Ok:            true,
	}
}

// persistDiffs writes one .diff file per changed file under c.diffsDir. A
// failure to write is logged, not propagated — losing a diff artifact must
// never fail the run.
func (c *Client) persistDiffs(operation string, diffs []FileDiff) {
	if c.diffsDir == "" {
		return
	}
	for _, d := range diffs {
		if d.Unified == "" {
			continue
		}
		name := fmt.Sprintf("%s_%s.diff", operation, sanitizeFilename(d.File))
		path := filepath.Join(c.diffsDir, name)
		if err := writeDiffFile(path, d.Unified); err != nil {
			c.log.Warnf("agentclient: writing diff artifact %s: %v", path, err)
		}
	}
}
