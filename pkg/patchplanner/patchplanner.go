// Package patchplanner turns an evaluator Verdict into a PatchPlan: concrete
// per-file instructions the code-generation agent can act on without having
// to re-read the full evaluation itself.
package patchplanner

import (
	"fmt"
	"strings"

	"loopctl/pkg/model"
)

const passThreshold = 70

// Plan builds a PatchPlan from verdict for one iteration's generated files.
// filesGenerated maps filename to its path on disk. A file is marked for
// patching when an issue's description names it; when the overall score is
// below threshold every file is marked, whether or not an issue names it.
func Plan(verdict model.Verdict, task string, filesGenerated map[string]string) model.PatchPlan {
	fileIssues := issuesByFile(verdict.Issues, filesGenerated)

	var files []model.PatchFile
	for filename, path := range filesGenerated {
		issues := fileIssues[filename]
		if len(issues) == 0 && verdict.Score >= passThreshold {
			continue
		}
		files = append(files, model.PatchFile{
			Path:        path,
			Action:      model.PatchModify,
			Description: fileDescription(filename, issues, verdict.Feedback),
			Changes:     changesList(issues, verdict.Feedback),
		})
	}

	if len(files) == 0 && verdict.Score < passThreshold {
		for _, path := range filesGenerated {
			files = append(files, model.PatchFile{
				Path:        path,
				Action:      model.PatchModify,
				Description: fmt.Sprintf("Improve based on feedback: %s", truncate(verdict.Feedback, 80)),
				Changes:     []string{"General improvements based on evaluation feedback"},
			})
		}
	}

	return model.PatchPlan{
		Instructions:  buildInstructions(task, verdict.Feedback, verdict.Score, verdict.Issues),
		Files:         files,
		OriginalScore: verdict.Score,
		IssuesCount:   len(verdict.Issues),
	}
}

// issuesByFile groups issues against the filename whose name appears
// anywhere in the issue's description.
func issuesByFile(issues []model.Issue, filesGenerated map[string]string) map[string][]model.Issue {
	out := make(map[string][]model.Issue)
	for filename := range filesGenerated {
		for _, issue := range issues {
			if strings.Contains(issue.Description, filename) {
				out[filename] = append(out[filename], issue)
			}
		}
	}
	return out
}

// buildInstructions renders the literal agent-facing instructions block.
// The "TASK:" prefix on the first line is load-bearing: callers downstream
// key off it to confirm a patch round actually produced agent instructions.
func buildInstructions(task, feedback string, score int, issues []model.Issue) string {
	var b strings.Builder
	b.WriteString("TASK: Improve the generated code based on evaluation feedback.\n\n")
	b.WriteString("ORIGINAL TASK:\n")
	b.WriteString(task)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "CURRENT SCORE: %d/100\n\n", score)
	b.WriteString("EVALUATION FEEDBACK:\n")
	b.WriteString(feedback)
	b.WriteString("\n\n")
	b.WriteString("SPECIFIC ISSUES TO FIX:\n")
	if len(issues) == 0 {
		b.WriteString("1. Address the feedback above to improve overall quality.\n")
	} else {
		for i, issue := range issues {
			fmt.Fprintf(&b, "%d. [%s] %s\n", i+1, issue.Category, issue.Description)
		}
	}
	b.WriteString("\nREQUIREMENTS:\n")
	b.WriteString("- Preserve all working functionality; do not regress passing checks.\n")
	b.WriteString("- Address every issue listed above, prioritizing high severity first.\n")
	b.WriteString("- Keep changes scoped to the files that need them.\n")
	b.WriteString("Apply fixes to achieve a score of 70+ out of 100.")
	return b.String()
}

// fileDescription summarizes why filename needs another pass: the first few
// issue descriptions if any name this file, otherwise a generic pointer at
// the overall feedback.
func fileDescription(filename string, issues []model.Issue, feedback string) string {
	if len(issues) == 0 {
		return fmt.Sprintf("Improve based on feedback: %s", truncate(feedback, 80))
	}
	var parts []string
	for i, issue := range issues {
		if i >= 3 {
			break
		}
		parts = append(parts, truncate(issue.Description, 50))
	}
	return strings.Join(parts, "; ")
}

type keywordHint struct {
	keyword string
	hint    string
}

var issueKeywordHints = []keywordHint{
	{"button", "Improve button styling and interaction states"},
	{"color", "Adjust the color scheme for better contrast and consistency"},
	{"spacing", "Fix spacing and padding inconsistencies"},
	{"padding", "Fix spacing and padding inconsistencies"},
	{"font", "Correct typography (font sizes, weights, and families)"},
	{"error", "Fix console errors and runtime exceptions"},
	{"responsive", "Improve responsive design across viewport sizes"},
}

var feedbackKeywordHints = []keywordHint{
	{"visual", "Polish visual design and layout"},
	{"design", "Polish visual design and layout"},
	{"functionality", "Fix broken functionality so interactions work as expected"},
	{"work", "Fix broken functionality so interactions work as expected"},
}

// changesList derives canned change hints by keyword matching over the
// first few issues (category name takes precedence over free text), then
// falls back to matching the overall feedback, then a generic catch-all.
func changesList(issues []model.Issue, feedback string) []string {
	seen := make(map[string]bool)
	var out []string
	add := func(hint string) {
		if !seen[hint] {
			seen[hint] = true
			out = append(out, hint)
		}
	}

	for i, issue := range issues {
		if i >= 5 {
			break
		}
		lowered := strings.ToLower(issue.Description + " " + issue.Category)
		if issue.Category == "errors" {
			add("Fix console errors and runtime exceptions")
		}
		for _, kh := range issueKeywordHints {
			if strings.Contains(lowered, kh.keyword) {
				add(kh.hint)
			}
		}
	}

	if len(out) == 0 {
		lowered := strings.ToLower(feedback)
		for _, kh := range feedbackKeywordHints {
			if strings.Contains(lowered, kh.keyword) {
				add(kh.hint)
			}
		}
	}

	if len(out) == 0 {
		add("General improvements based on evaluation feedback")
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
