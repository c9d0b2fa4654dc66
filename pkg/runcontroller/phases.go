package runcontroller

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"loopctl/internal/errs"
	"loopctl/pkg/agentclient"
	"loopctl/pkg/artifacts"
	"loopctl/pkg/bootstrap"
	"loopctl/pkg/mcpclient"
	"loopctl/pkg/model"
	"loopctl/pkg/patchplanner"
	"loopctl/pkg/pathconfig"
	"loopctl/pkg/previewhttp"
	"loopctl/pkg/trace"
)

const mcpCallTimeout = 90 * time.Second

// setup is Phase 0: build the PathConfig, open the trace and artifacts
// store, and start the preview server.
func (r *run) setup() error {
	paths, err := pathconfig.New(r.rc.baseDir, r.runID, r.cfg.ProjectDirName, r.cfg.PreviewHost, r.cfg.PreviewPort)
	if err != nil {
		return err
	}
	if err := paths.EnsureDirectories(); err != nil {
		return err
	}
	r.paths = paths

	tr, err := trace.Open(filepath.Join(paths.WorkspaceDir, "trace.jsonl"))
	if err != nil {
		return err
	}
	r.trace = tr

	store, err := artifacts.New(paths.ArtifactsDir)
	if err != nil {
		return err
	}
	r.artifacts = store

	r.preview = previewhttp.New(paths.ProjectRoot, paths.PreviewHost, paths.PreviewPort)
	if err := r.preview.Start(); err != nil {
		return fmt.Errorf("%w: starting preview server: %v", errs.ErrConfig, err)
	}
	return nil
}

// teardown runs unconditionally after Run, regardless of how the run
// finished: stop the preview server, disconnect MCP (grace then kill is
// mcpclient.Client.Disconnect's own responsibility), and close the trace.
func (r *run) teardown() {
	if r.mcp != nil {
		if err := r.mcp.Disconnect(); err != nil {
			r.log.Warnf("runcontroller: mcp disconnect: %v", err)
		}
	}
	if r.preview != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := r.preview.Stop(ctx); err != nil {
			r.log.Warnf("runcontroller: stopping preview server: %v", err)
		}
	}
	if r.trace != nil {
		if err := r.trace.Close(); err != nil {
			r.log.Warnf("runcontroller: closing trace: %v", err)
		}
	}
}

// bootstrapPhase is Phase 1: clean projectRoot, clone the template if one is
// configured, and fall back to a placeholder index.html otherwise so the
// preview always has something to serve.
func (r *run) bootstrapPhase(ctx context.Context) error {
	r.writeState("bootstrap")
	result, err := bootstrap.Bootstrap(ctx, bootstrap.Config{
		RepoURL: r.cfg.TemplateRepoURL,
		Ref:     r.cfg.TemplateRef,
		RunInit: r.cfg.RunTemplateInit,
	}, r.paths.WorkspaceDir, r.paths.ProjectRoot, r.log)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}

	r.bootstrap = bootstrapOutcome{
		enabled: result.Enabled, clonedFrom: result.ClonedFrom, ref: result.Ref,
		commitSHA: result.CommitSHA, initRan: result.InitRan, filesCount: result.FilesCount,
	}

	if !result.Enabled {
		fallback := artifacts.FallbackIndexHTML(r.task)
		indexPath := filepath.Join(r.paths.ProjectRoot, "index.html")
		if err := os.WriteFile(indexPath, []byte(fallback), 0o644); err != nil {
			return fmt.Errorf("%w: writing fallback index.html: %v", errs.ErrConfig, err)
		}
	}

	if r.cfg.PublishToSite {
		published, err := bootstrap.PublishToSite(r.paths.ProjectRoot, r.paths.SiteDir, r.log)
		if err != nil {
			r.trace.Warning("publish to site failed", map[string]any{"error": err.Error()})
		} else {
			r.bootstrap.publishedTo = r.paths.SiteDir
			_ = published
		}
	}

	if err := r.initVersionControl(ctx); err != nil {
		r.trace.Warning("version control snapshot disabled", map[string]any{"error": err.Error()})
	}
	return nil
}

// planPhase is Phase 2: invoke the planner once and persist its output
// (overview, build prompt, thinking, todo list) under artifactsDir.
func (r *run) planPhase(ctx context.Context) error {
	r.writeState("plan")
	plan, err := r.rc.planner.Plan(ctx, r.task, "")
	if err != nil {
		return fmt.Errorf("plan: %w", err)
	}
	r.plan = plan

	if _, err := r.artifacts.SaveReport(map[string]any{
		"overview":     plan.Overview,
		"ui_spec":      plan.UISpec,
		"build_prompt": plan.BuildPrompt,
		"thinking":     plan.Thinking,
		"todo_list":    plan.TodoList,
		"degraded":     plan.Degraded,
	}, "plan"); err != nil {
		r.log.Warnf("runcontroller: saving plan artifact: %v", err)
	}
	if plan.Thinking != "" {
		if _, err := r.artifacts.SaveFile(plan.Thinking, "plan_thinking.txt", "text", nil); err != nil {
			r.log.Warnf("runcontroller: saving plan_thinking.txt: %v", err)
		}
	}
	return nil
}

// generatePhase is Phase 3, run only for iteration 1: execute every todo in
// priority order, copying each todo's output into both siteDir and
// projectRoot, then recover a missing index.html from workspaceDir if one
// exists there.
func (r *run) generatePhase(ctx context.Context) error {
	r.writeState("generate")
	r.trace.GenerationStart(r.task)
	start := time.Now()

	todos := append([]model.Todo(nil), r.plan.TodoList...)
	sort.SliceStable(todos, func(i, j int) bool { return todos[i].Priority < todos[j].Priority })

	if len(todos) == 0 {
		gen, err := r.runGenerate(ctx, r.plan.BuildPrompt, nil)
		if err != nil {
			return fmt.Errorf("generate: %w", err)
		}
		r.recordGenerated(gen.FilesTouched)
	}

	for _, todo := range todos {
		ctx, cancel := context.WithTimeout(ctx, hardAgentCallBudget)
		result := r.rc.agentClient.ExecuteTodo(ctx, todo, r.paths.WorkspaceDir)
		cancel()
		if !result.Ok {
			r.trace.Warning("todo execution failed", map[string]any{"todo_id": todo.ID, "error": result.Err})
			continue
		}
		r.recordGenerated(result.FilesTouched)
		if err := r.copyToSiteAndProject(result.FilesTouched); err != nil {
			r.trace.Warning("copying todo output failed", map[string]any{"todo_id": todo.ID, "error": err.Error()})
		}
		if r.rc.bus != nil {
			r.rc.bus.CodeGenerated(1, filesKeys(result.FilesTouched))
		}
	}

	if err := r.ensureIndexHTML(); err != nil {
		r.trace.Warning("no index.html after generation", map[string]any{"error": err.Error()})
	}

	names := make([]string, 0, len(r.filesGenerated))
	for name := range r.filesGenerated {
		names = append(names, name)
	}
	r.trace.GenerationEnd(names, time.Since(start).Seconds())
	return nil
}

func (r *run) runGenerate(ctx context.Context, task string, requirements map[string]string) (agentclient.GenerateResult, error) {
	ctx, cancel := context.WithTimeout(ctx, hardAgentCallBudget)
	defer cancel()
	result, err := r.rc.agentClient.Generate(ctx, task, requirements, r.paths.WorkspaceDir)
	if err != nil {
		return agentclient.GenerateResult{}, err
	}
	if err := r.copyToSiteAndProject(result.FilesTouched); err != nil {
		return result, err
	}
	return result, nil
}

func (r *run) recordGenerated(touched map[string]string) {
	for rel, abs := range touched {
		r.filesGenerated[rel] = abs
	}
}

func filesKeys(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

// copyToSiteAndProject mirrors each generated file (named relative to
// workspaceDir) into both siteDir and projectRoot, per spec's "both copies"
// requirement: siteDir preserves a historical contract, projectRoot is what
// the preview server actually serves.
func (r *run) copyToSiteAndProject(touched map[string]string) error {
	for rel := range touched {
		src := filepath.Join(r.paths.WorkspaceDir, filepath.FromSlash(rel))
		content, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		sitePath := filepath.Join(r.paths.SiteDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(sitePath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(sitePath, content, 0o644); err != nil {
			return err
		}

		projectPath, err := r.paths.SafeJoin(rel)
		if err != nil {
			return err
		}
		if err := os.MkdirAll(filepath.Dir(projectPath), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(projectPath, content, 0o644); err != nil {
			return err
		}
	}
	return nil
}

// ensureIndexHTML recovers projectRoot/index.html from workspaceDir/index.html
// when generation did not produce one directly in projectRoot.
func (r *run) ensureIndexHTML() error {
	indexPath := filepath.Join(r.paths.ProjectRoot, "index.html")
	if _, err := os.Stat(indexPath); err == nil {
		return nil
	}
	fallbackSrc := filepath.Join(r.paths.WorkspaceDir, "index.html")
	content, err := os.ReadFile(fallbackSrc)
	if err != nil {
		return fmt.Errorf("no index.html in project root or workspace root: %w", err)
	}
	return os.WriteFile(indexPath, content, 0o644)
}

// evaluatePhase is Phase 4: ensure the MCP client is connected (once per
// run), verify projectRoot/index.html exists, then score the preview.
func (r *run) evaluatePhase(ctx context.Context, iteration int) (model.Verdict, error) {
	if err := r.ensureMCP(ctx); err != nil {
		return model.Verdict{}, fmt.Errorf("%w: %v", errs.ErrMcpDisconnected, err)
	}
	if err := r.ensureIndexHTML(); err != nil {
		r.trace.Warning("evaluate: no index.html to serve", map[string]any{"error": err.Error()})
	}

	url := r.paths.PreviewURL()
	r.trace.TestingStart(url)
	r.trace.EvaluationStart("")
	start := time.Now()

	screenshotsDir := r.paths.ArtifactsDir
	verdict, _, err := r.rc.evaluator.Evaluate(ctx, r.mcp, url, r.task, screenshotsDir)
	elapsed := time.Since(start).Seconds()
	if err != nil {
		return model.Verdict{}, fmt.Errorf("%w: %v", errs.ErrEvaluationFailed, err)
	}

	r.trace.EvaluationEnd(verdict.Score, verdict.Passed, elapsed)
	r.trace.TestingEnd("", countConsoleErrors(verdict), elapsed)
	if r.rc.bus != nil {
		r.rc.bus.Evaluation(iteration, verdict.Score, verdict.Passed)
	}

	evalDoc := map[string]any{
		"iteration": iteration, "score": verdict.Score, "passed": verdict.Passed,
		"category_scores": verdict.CategoryScores, "issues": verdict.Issues, "feedback": verdict.Feedback,
		"rubric_id": verdict.RubricID,
	}
	if _, err := r.artifacts.SaveEvaluation(evalDoc, iteration); err != nil {
		r.log.Warnf("runcontroller: saving evaluation artifact: %v", err)
	}

	r.iterations = append(r.iterations, model.Iteration{
		Index: iteration, FilesTouched: r.filesGenerated,
		EvaluationDurationMs: int64(elapsed * 1000),
		Score:                verdict.Score, Passed: verdict.Passed,
		Feedback: verdict.Feedback, Verdict: &verdict,
	})
	return verdict, nil
}

func countConsoleErrors(v model.Verdict) int {
	n := 0
	for _, issue := range v.Issues {
		if issue.Category == "robustness" {
			n++
		}
	}
	return n
}

func (r *run) ensureMCP(ctx context.Context) error {
	if r.mcp != nil {
		return nil
	}
	command := r.cfg.MCPServerCommand
	if command == "" {
		return fmt.Errorf("%w: no MCP server command configured", errs.ErrConfig)
	}
	client, err := mcpclient.Spawn(ctx, r.log, command, r.cfg.MCPServerArgs...)
	if err != nil {
		return err
	}
	initCtx, cancel := context.WithTimeout(ctx, mcpCallTimeout)
	defer cancel()
	if _, err := client.Initialize(initCtx, "loopctl", "0.1.0"); err != nil {
		return err
	}
	r.mcp = client
	return nil
}

// decide is Phase 5: set stopReason to passed or max_iterations, or leave it
// empty to continue the loop.
func (r *run) decide(iteration int, verdict model.Verdict) bool {
	if verdict.Passed {
		r.stopReason = model.StopPassed
		return true
	}
	if iteration >= r.cfg.MaxIterations {
		r.stopReason = model.StopMaxIterations
	}
	return false
}

// patchPhase is Phase 6: derive a PatchPlan from the verdict, apply it, copy
// modified files into siteDir and projectRoot, and persist the plan as an
// artifact.
func (r *run) patchPhase(ctx context.Context, iteration int, verdict model.Verdict) error {
	r.writeState("patch")
	plan := patchplanner.Plan(verdict, r.task, r.filesGenerated)

	if _, err := r.artifacts.SaveReport(map[string]any{
		"instructions":   plan.Instructions,
		"files":          plan.Files,
		"original_score": plan.OriginalScore,
		"issues_count":   plan.IssuesCount,
	}, fmt.Sprintf("patch_plan_iter_%d", iteration)); err != nil {
		r.log.Warnf("runcontroller: saving patch plan artifact: %v", err)
	}

	ctx, cancel := context.WithTimeout(ctx, hardAgentCallBudget)
	defer cancel()
	result := r.rc.agentClient.ApplyPatch(ctx, plan, r.paths.WorkspaceDir)
	if !result.Ok {
		return fmt.Errorf("%w: %s", errs.ErrSubprocess, result.Stderr)
	}

	touched := make(map[string]string, len(result.FilesModified))
	for _, rel := range result.FilesModified {
		touched[rel] = filepath.Join(r.paths.WorkspaceDir, filepath.FromSlash(rel))
	}
	r.recordGenerated(touched)
	if err := r.copyToSiteAndProject(touched); err != nil {
		return fmt.Errorf("copying patched files: %w", err)
	}
	if r.rc.bus != nil {
		r.rc.bus.PatchApplied(iteration, result.FilesModified)
	}
	r.snapshotPatch(ctx, iteration, verdict.Score)
	return nil
}
