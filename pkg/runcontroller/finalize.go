package runcontroller

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"loopctl/pkg/model"
)

// buildManifest assembles the run's single manifest.json document. Run calls
// it once after execute returns and, on the error path, a second time after
// setting stopReason and errorMessage, so it reads run's current fields each
// time (EndedAt is taken from the clock at each call).
func (r *run) buildManifest() model.Manifest {
	ended := time.Now()
	m := model.Manifest{
		RunID:           r.runID,
		Task:            r.task,
		StartedAt:       r.startedAt,
		EndedAt:         ended,
		DurationSeconds: ended.Sub(r.startedAt).Seconds(),
		PlannerModel:    r.cfg.PlannerModel,
		EvaluatorModel:  r.cfg.EvaluatorModel,
		RubricID:        r.cfg.RubricID,
		IterationCount:  len(r.iterations),
		StopReason:      r.stopReason,
		WorkspaceDir:    r.paths.WorkspaceDir,
		ArtifactsDir:    r.paths.ArtifactsDir,
		SiteDir:         r.paths.SiteDir,
		PreviewURL:      r.paths.PreviewURL(),
		ErrorMessage:    r.errorMessage,
	}
	if last, ok := lastIteration(r.iterations); ok {
		m.FinalScore = last.Score
		m.FinalPassed = last.Passed
	}
	if r.vc != nil {
		m.VersionControl = &model.VersionControlInfo{BranchName: r.vc.branch, Commits: r.vc.commits}
	}
	return m
}

func lastIteration(iterations []model.Iteration) (model.Iteration, bool) {
	if len(iterations) == 0 {
		return model.Iteration{}, false
	}
	return iterations[len(iterations)-1], true
}

// finalize is Phase 7: write report.json, state.json, manifest.json, and a
// view.html summary, then log the artifact counts. Always called, even on a
// fatal error, so a partially completed run is still fully inspectable.
func (r *run) finalize(manifest model.Manifest) {
	report := map[string]any{
		"run_id":           r.runID,
		"task":             r.task,
		"stop_reason":      r.stopReason,
		"final_score":      manifest.FinalScore,
		"final_passed":     manifest.FinalPassed,
		"duration_seconds": manifest.DurationSeconds,
		"iterations":       r.iterations,
		"bootstrap":        r.bootstrap,
		"preview_url":      manifest.PreviewURL,
		"error_message":    r.errorMessage,
	}
	if err := writeJSONFile(filepath.Join(r.paths.WorkspaceDir, "report.json"), report); err != nil {
		r.log.Warnf("runcontroller: writing report.json: %v", err)
	}
	r.writeState("finalize")
	if err := writeJSONFile(filepath.Join(r.paths.WorkspaceDir, "manifest.json"), manifest); err != nil {
		r.log.Warnf("runcontroller: writing manifest.json: %v", err)
	}

	viewPath := filepath.Join(r.paths.ArtifactsDir, "view.html")
	if err := os.WriteFile(viewPath, []byte(renderViewHTML(manifest, r.iterations)), 0o644); err != nil {
		r.log.Warnf("runcontroller: writing view.html: %v", err)
	}

	summary := r.artifacts.GetSummary()
	r.log.Infof("runcontroller: run %s finished (%s), %d artifacts saved", r.runID, r.stopReason, summary.TotalArtifacts)
}

// renderViewHTML builds a minimal static results page, grounded on
// original_source/orchestrator/main.py's create_view_html: run identity,
// final score/status, and a table of iterations with the recorded score
// and pass/fail for each.
func renderViewHTML(m model.Manifest, iterations []model.Iteration) string {
	status := "FAILED"
	if m.FinalPassed {
		status = "PASSED"
	}

	rows := ""
	for _, it := range iterations {
		verdict := "fail"
		if it.Passed {
			verdict = "pass"
		}
		rows += fmt.Sprintf("<tr><td>%d</td><td>%d</td><td>%s</td><td>%s</td></tr>\n",
			it.Index, it.Score, verdict, htmlEscape(it.Feedback))
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <title>Run %s</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 40px; color: #1a202c; }
    .status { display: inline-block; padding: 4px 12px; border-radius: 4px; font-weight: bold; }
    .status.passed { background: #c6f6d5; color: #22543d; }
    .status.failed { background: #fed7d7; color: #822727; }
    table { border-collapse: collapse; margin-top: 24px; width: 100%%; }
    th, td { border: 1px solid #e2e8f0; padding: 8px 12px; text-align: left; }
    a.btn { display: inline-block; margin-top: 16px; padding: 8px 16px; background: #667eea; color: white; border-radius: 4px; text-decoration: none; }
  </style>
</head>
<body>
  <h1>Run %s</h1>
  <p><span class="status %s">%s</span> &middot; score %d/100 &middot; %s &middot; %.1fs</p>
  <p><a href="%s">Open preview</a></p>
  <table>
    <thead><tr><th>Iteration</th><th>Score</th><th>Verdict</th><th>Feedback</th></tr></thead>
    <tbody>
%s    </tbody>
  </table>
  <p><a class="btn" href="../report.json">View report JSON</a></p>
</body>
</html>
`, m.RunID, m.RunID, htmlStatusClass(m.FinalPassed), status, m.FinalScore, m.StopReason, m.DurationSeconds, m.PreviewURL, rows)
}

func htmlStatusClass(passed bool) string {
	if passed {
		return "passed"
	}
	return "failed"
}

func htmlEscape(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}
