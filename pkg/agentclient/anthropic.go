package agentclient

import (
	"context"
	"fmt"

	"loopctl/internal/errs"
	"loopctl/internal/llmtypes"
	"loopctl/pkg/jsonextract"
	"loopctl/pkg/logger"
	"loopctl/pkg/model"
)

// anthropicBackend asks an LLM to emit whole-file content as a JSON object,
// the same "regenerate the whole file" discipline openhands_client.py's
// LocalSubprocessOpenHandsClient uses when it hands its build prompt to a
// real coding agent, generalized here to any llmtypes.Model — in practice
// the teacher's internal/llm/anthropicadapter, which implements that
// interface over the Anthropic API.
type anthropicBackend struct {
	model   llmtypes.Model
	modelID string
	log     logger.Logger
}

func newAnthropicBackend(llmModel llmtypes.Model, modelID string, log logger.Logger) *anthropicBackend {
	return &anthropicBackend{model: llmModel, modelID: modelID, log: log}
}

func (b *anthropicBackend) name() string { return "anthropic" }

type filesResponse struct {
	Files map[string]string `json:"files"`
}

func (b *anthropicBackend) generateFiles(ctx context.Context, task string, requirements map[string]string, workspace string) (map[string]string, string, string, error) {
	prompt := generationPrompt(task, requirements)
	resp, err := b.model.GenerateContent(ctx,
		[]llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt)},
		llmtypes.WithModel(b.modelID), llmtypes.WithJSONMode(), llmtypes.WithMaxTokens(8192),
	)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: anthropic backend: %w", errs.ErrLlmRateLimited, err)
	}
	files, err := decodeFilesResponse(resp)
	if err != nil {
		return nil, "", "", err
	}
	return files, "", "", nil
}

func (b *anthropicBackend) patchFiles(ctx context.Context, plan model.PatchPlan, workspace string) (map[string]string, string, string, error) {
	prompt := patchPrompt(plan)
	resp, err := b.model.GenerateContent(ctx,
		[]llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt)},
		llmtypes.WithModel(b.modelID), llmtypes.WithJSONMode(), llmtypes.WithMaxTokens(8192),
	)
	if err != nil {
		return nil, "", "", fmt.Errorf("%w: anthropic backend patch: %w", errs.ErrLlmRateLimited, err)
	}
	files, err := decodeFilesResponse(resp)
	if err != nil {
		return nil, "", "", err
	}
	return files, "", "", nil
}

func decodeFilesResponse(resp *llmtypes.ContentResponse) (map[string]string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty model response", errs.ErrLlmUnparseable)
	}
	var parsed filesResponse
	if !jsonextract.Unmarshal(resp.Choices[0].Content, &parsed) || len(parsed.Files) == 0 {
		return nil, fmt.Errorf("%w: could not parse a files object from model response", errs.ErrLlmUnparseable)
	}
	return parsed.Files, nil
}

func generationPrompt(task string, requirements map[string]string) string {
	prompt := fmt.Sprintf(`You are a code-generation agent building a single-page web project.

Task: %s

Respond with a JSON object of the shape {"files": {"relative/path.ext": "full file content", ...}}.
Every value must be the complete contents of that file; do not emit partial edits or diffs.
Prefer a small, cohesive set of files (index.html, styles.css, script.js) unless the task calls for more.
`, task)
	for k, v := range requirements {
		if v != "" {
			prompt += fmt.Sprintf("\n%s: %s", k, v)
		}
	}
	return prompt
}

func patchPrompt(plan model.PatchPlan) string {
	prompt := fmt.Sprintf("Apply the following patch plan to the project. Instructions: %s\n\n", plan.Instructions)
	for _, f := range plan.Files {
		prompt += fmt.Sprintf("- [%s] %s: %s\n", f.Action, f.Path, f.Description)
		for _, change := range f.Changes {
			prompt += fmt.Sprintf("    * %s\n", change)
		}
	}
	prompt += "\nRespond with a JSON object of the shape {\"files\": {\"relative/path.ext\": \"full file content\", ...}} containing the complete new content of every file you touched."
	return prompt
}
