// Package planner turns a natural-language task into a structured Plan: an
// overview, a UI scaffold, a build prompt for the code-generation agent, and
// an ordered todo list the run controller steps through one item at a time.
package planner

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"loopctl/internal/errs"
	"loopctl/internal/llmtypes"
	"loopctl/pkg/jsonextract"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

const (
	maxRetries       = 5
	baseRetryDelay   = 15 * time.Second
	defaultModuleNum = 1
)

// rawPlan is the shape the planner model is asked to emit.
type rawPlan struct {
	Overview struct {
		Title   string `json:"title"`
		Outline string `json:"outline"`
		Modules []struct {
			ModuleID    string `json:"module_id"`
			ModuleTitle string `json:"module_title"`
		} `json:"modules"`
	} `json:"overview"`
	UISpec      map[string]any `json:"ui_spec"`
	BuildPrompt string         `json:"build_prompt"`
	Thinking    string         `json:"thinking"`
}

// Planner calls a model once per run to produce the Plan that seeds every
// iteration's generation step.
type Planner struct {
	model    llmtypes.Model
	modelID  string
	template string
	log      logger.Logger
}

// New creates a Planner bound to model, using promptTemplate (already loaded
// from disk by the caller) as the base prompt with placeholders substituted
// by Plan.
func New(llmModel llmtypes.Model, modelID, promptTemplate string, log logger.Logger) *Planner {
	return &Planner{model: llmModel, modelID: modelID, template: promptTemplate, log: log}
}

// Plan runs the planner model against task (and optional customNotes,
// falling back to task when empty) and returns the resulting model.Plan. A
// model response that cannot be parsed as the expected JSON shape produces a
// degraded Plan rather than an error: BuildPrompt is the raw response text,
// TodoList is empty, and Degraded is true.
func (p *Planner) Plan(ctx context.Context, task, customNotes string) (model.Plan, error) {
	notes := customNotes
	if notes == "" {
		notes = task
	}
	prompt := substitutePlaceholders(p.template, map[string]string{
		"user_requirements": task,
		"notes":             notes,
	})

	text, err := p.callWithRetry(ctx, prompt)
	if err != nil {
		return model.Plan{}, err
	}

	var raw rawPlan
	if !jsonextract.Unmarshal(text, &raw) {
		p.log.Warnf("planner: response did not contain a parseable plan, degrading to raw text")
		return model.Plan{
			BuildPrompt: text,
			Degraded:    true,
		}, nil
	}

	overview := model.Overview{Title: raw.Overview.Title, Outline: raw.Overview.Outline}
	for _, m := range raw.Overview.Modules {
		overview.Modules = append(overview.Modules, model.ModuleOverview{ModuleID: m.ModuleID, ModuleTitle: m.ModuleTitle})
	}

	plan := model.Plan{
		Overview:    overview,
		UISpec:      raw.UISpec,
		BuildPrompt: raw.BuildPrompt,
		Thinking:    raw.Thinking,
	}
	plan.TodoList = buildTodoList(overview, raw.BuildPrompt)
	return plan, nil
}

// callWithRetry calls the model, retrying on rate-limit errors with a delay
// honoring any server-advertised wait time, else exponential backoff
// starting at 15s and doubling each attempt, up to maxRetries attempts.
func (p *Planner) callWithRetry(ctx context.Context, prompt string) (string, error) {
	messages := []llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt)}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		resp, err := p.model.GenerateContent(ctx, messages,
			llmtypes.WithModel(p.modelID),
			llmtypes.WithTemperature(0.7),
			llmtypes.WithMaxTokens(8192),
			llmtypes.WithJSONMode(),
		)
		if err == nil {
			if len(resp.Choices) == 0 {
				return "", fmt.Errorf("%w: empty response", errs.ErrLlmUnparseable)
			}
			return resp.Choices[0].Content, nil
		}
		lastErr = err

		if !isRateLimitError(err) {
			return "", fmt.Errorf("planner call: %w", err)
		}

		delay := retryDelayFor(err, attempt)
		p.log.Warnf("planner: rate limited (attempt %d/%d), retrying in %s", attempt+1, maxRetries, delay)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(delay):
		}
	}
	return "", fmt.Errorf("%w: %v", errs.ErrLlmRateLimited, lastErr)
}

func isRateLimitError(err error) bool {
	s := err.Error()
	return strings.Contains(s, "RESOURCE_EXHAUSTED") || strings.Contains(strings.ToLower(s), "quota")
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry.*?(\d+\.?\d*)\s*s`)

// retryDelayFor prefers a server-advertised retry delay (plus a 2s buffer)
// when the error message names one; otherwise it falls back to
// 15 * 2^attempt seconds.
func retryDelayFor(err error, attempt int) time.Duration {
	if m := retryAfterPattern.FindStringSubmatch(err.Error()); m != nil {
		if secs, parseErr := strconv.ParseFloat(m[1], 64); parseErr == nil {
			return time.Duration(secs*float64(time.Second)) + 2*time.Second
		}
	}
	return baseRetryDelay * time.Duration(1<<attempt)
}

// substitutePlaceholders replaces each {name} placeholder in template with
// values[name], leaving unrecognized placeholders untouched.
func substitutePlaceholders(template string, values map[string]string) string {
	out := template
	for name, value := range values {
		out = strings.ReplaceAll(out, "{"+name+"}", value)
	}
	return out
}

// buildTodoList derives the fixed setup→module*→validation sequence from the
// plan's overview, matching the shape the run controller expects to step
// through one item at a time.
func buildTodoList(overview model.Overview, buildPrompt string) []model.Todo {
	todos := []model.Todo{{
		ID:       "setup",
		Type:     model.TodoSetup,
		Title:    "Initialize template and understand structure",
		Priority: 1,
	}}

	for idx, m := range overview.Modules {
		moduleIndex := idx
		todos = append(todos, model.Todo{
			ID:          fmt.Sprintf("module_%d", idx),
			Type:        model.TodoModule,
			Title:       fmt.Sprintf("Create Module %d: %s", idx+1, m.ModuleTitle),
			ModuleIndex: &moduleIndex,
			ModuleID:    m.ModuleID,
			Description: extractModuleSpec(buildPrompt, idx+1, m.ModuleTitle),
			Priority:    idx + 2,
		})
	}

	todos = append(todos, model.Todo{
		ID:       "validation",
		Type:     model.TodoValidation,
		Title:    "Validate the complete build against requirements",
		Priority: len(overview.Modules) + 2,
	})
	return todos
}

// extractModuleSpec pulls the text block for one module out of the build
// prompt, stopping at the next module header (or end of text).
func extractModuleSpec(buildPrompt string, moduleNum int, moduleTitle string) string {
	pattern := fmt.Sprintf(`(?is)\*\*MODULE\s+%d[:\*]?\*\*.*?(\*\*MODULE\s+\d+|\*\*AUDIO|\*\*FINAL|$)`, moduleNum)
	re, err := regexp.Compile(pattern)
	if err != nil {
		return moduleTitle
	}
	m := re.FindString(buildPrompt)
	if m == "" {
		return moduleTitle
	}
	return strings.TrimSpace(m)
}

// LoadTemplate reads a planner prompt template off disk. It exists so
// callers (and tests) can keep prompt text out of source.
func LoadTemplate(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("%w: reading planner prompt template: %v", errs.ErrConfig, err)
	}
	return string(b), nil
}
