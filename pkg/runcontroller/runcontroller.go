// Package runcontroller sequences one run end to end: setup, bootstrap,
// plan, generate, evaluate, decide, patch, finalize. It is the one
// component that owns the run's PathConfig, Trace, Artifacts store, preview
// server, and (for the evaluate/patch phases) MCP client — every other
// package in this module is a pure or narrowly-scoped collaborator the
// controller calls into in a fixed order.
//
// Grounded on original_source/orchestrator/main.py's run_loop: the same
// setup → bootstrap → plan → generate → (evaluate → decide → patch)* →
// finalize sequence, translated from Python's try/except/finally structure
// to Go's explicit error returns plus a single deferred cleanup.
package runcontroller

import (
	"context"
	"fmt"
	"time"

	"loopctl/internal/config"
	"loopctl/internal/errs"
	"loopctl/pkg/agentclient"
	"loopctl/pkg/artifacts"
	"loopctl/pkg/eventbus"
	"loopctl/pkg/evaluator"
	"loopctl/pkg/logger"
	"loopctl/pkg/mcpclient"
	"loopctl/pkg/model"
	"loopctl/pkg/pathconfig"
	"loopctl/pkg/planner"
	"loopctl/pkg/previewhttp"
	"loopctl/pkg/trace"
)

const (
	// softIterationBudget is the non-fatal wall-clock budget per iteration;
	// a breach is only recorded, never aborts the run.
	softIterationBudget = 3 * time.Minute
	// hardAgentCallBudget bounds a single AgentClient sub-call.
	hardAgentCallBudget = 5 * time.Minute
)

// RunController owns one run's lifecycle.
type RunController struct {
	cfg         config.Config
	planner     *planner.Planner
	evaluator   *evaluator.Evaluator
	agentClient *agentclient.Client
	log         logger.Logger
	bus         *eventbus.Bus

	// baseDir is where each run's workspace directory is created; runID
	// generation is injectable so tests get deterministic directory names.
	baseDir string
	newRunID func() string
}

// New constructs a RunController. p, e, and a must already be wired to
// their backing models/backends by the caller (internal/cli); bus may be
// nil, in which case no live events are published.
func New(cfg config.Config, p *planner.Planner, e *evaluator.Evaluator, a *agentclient.Client, log logger.Logger, bus *eventbus.Bus) *RunController {
	return &RunController{
		cfg:         cfg,
		planner:     p,
		evaluator:   e,
		agentClient: a,
		log:         log,
		bus:         bus,
		baseDir:     cfg.WorkspaceRoot,
		newRunID: func() string {
			return pathconfig.NewRunID(func() string { return time.Now().UTC().Format("20060102T150405") })
		},
	}
}

// run carries all per-invocation state; a RunController can start many runs
// sequentially (never concurrently — §5's single-threaded-cooperative
// model) by constructing a fresh run each time.
type run struct {
	rc *RunController

	runID string
	task  string
	cfg   config.Config

	paths     *pathconfig.Config
	trace     *trace.Trace
	artifacts *artifacts.Store
	preview   *previewhttp.Server
	mcp       *mcpclient.Client

	plan           model.Plan
	filesGenerated map[string]string
	iterations     []model.Iteration
	bootstrap      bootstrapOutcome
	vc             *versionControl

	startedAt    time.Time
	stopReason   model.StopReason
	errorMessage string

	log logger.Logger
}

type bootstrapOutcome struct {
	enabled     bool
	clonedFrom  string
	ref         string
	commitSHA   string
	initRan     bool
	filesCount  int
	publishedTo string
}

// Run executes one complete run for task and returns the final manifest.
// Once setup has succeeded, a returned error means stopReason == error and
// every artifact that could be written was written before the error
// propagated. A setup failure returns an empty manifest and writes no run
// artifacts.
func (rc *RunController) Run(ctx context.Context, task string) (model.Manifest, error) {
	r := &run{
		rc:             rc,
		runID:          rc.newRunID(),
		task:           task,
		cfg:            rc.cfg,
		filesGenerated: make(map[string]string),
		startedAt:      time.Now(),
		log:            rc.log,
	}

	if err := r.setup(); err != nil {
		return model.Manifest{}, fmt.Errorf("runcontroller: setup: %w", err)
	}
	defer r.teardown()

	r.trace.RunStart(r.runID, task, map[string]any{
		"max_iterations": r.cfg.MaxIterations,
		"agent_mode":     string(r.cfg.AgentMode),
		"agentic_eval":   r.cfg.AgenticEval,
	})
	if rc.bus != nil {
		rc.bus.RunStart(r.runID, task)
	}
	r.writeState("setup")

	runErr := r.execute(ctx)

	manifest := r.buildManifest()
	if runErr != nil {
		r.stopReason = model.StopError
		r.errorMessage = runErr.Error()
		manifest = r.buildManifest()
		r.trace.Error(runErr.Error(), "RunFatal", "")
	}

	r.finalize(manifest)
	r.trace.RunEnd(r.runID, string(r.stopReason), map[string]any{
		"final_score":  manifest.FinalScore,
		"final_passed": manifest.FinalPassed,
		"iterations":   len(r.iterations),
	})
	if rc.bus != nil {
		rc.bus.RunComplete(r.runID, string(r.stopReason), manifest.FinalScore)
	}

	if runErr != nil {
		return manifest, fmt.Errorf("%w: %w", errs.ErrRunFatal, runErr)
	}
	return manifest, nil
}

// execute drives phases 1-6 (bootstrap through the generate/evaluate/patch
// loop). Phase 0 (setup) already ran by the time execute is called; phase 7
// (finalize) runs unconditionally in Run regardless of how execute returns.
func (r *run) execute(ctx context.Context) error {
	if err := r.bootstrapPhase(ctx); err != nil {
		return err
	}
	if err := r.planPhase(ctx); err != nil {
		return err
	}
	if err := r.generatePhase(ctx); err != nil {
		return err
	}

	for iteration := 1; iteration <= r.cfg.MaxIterations; iteration++ {
		iterStart := time.Now()
		r.trace.IterationStart(iteration, r.cfg.MaxIterations)
		if r.rc.bus != nil {
			r.rc.bus.IterationStart(iteration, r.cfg.MaxIterations)
		}
		r.writeState("evaluate")

		verdict, err := r.evaluatePhase(ctx, iteration)
		if err != nil {
			return err
		}

		passed := r.decide(iteration, verdict)
		r.trace.IterationEnd(iteration, verdict.Score, passed)
		if time.Since(iterStart) > softIterationBudget {
			r.trace.Warning("iteration exceeded its soft wall-clock budget", map[string]any{
				"iteration": iteration, "elapsed_seconds": time.Since(iterStart).Seconds(),
			})
		}
		if r.stopReason != "" {
			break
		}

		if err := r.patchPhase(ctx, iteration, verdict); err != nil {
			// SubprocessError/LlmResponseUnparseable from a patch attempt do
			// not abort the run — generation proceeds into the next
			// iteration from whatever state the workspace is already in.
			r.trace.Warning("patch phase failed, continuing", map[string]any{"iteration": iteration, "error": err.Error()})
		}
	}
	if r.stopReason == "" {
		r.stopReason = model.StopMaxIterations
	}
	return nil
}
