package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"loopctl/internal/errs"
	"loopctl/internal/llmtypes"
	"loopctl/pkg/logger"
	"loopctl/pkg/mcpclient"
)

const defaultMaxTurns = 30

// dialogInterceptionScript overrides the page's modal dialog primitives so a
// script-triggered confirm/alert/prompt returns a safe default instead of
// blocking the browser indefinitely, and records each call for later
// inspection by the verify step.
const dialogInterceptionScript = `(function(){
  if (window.__loopctlDialogs) return;
  window.__loopctlDialogs = [];
  var rec = function(kind){ return function(msg){ window.__loopctlDialogs.push({kind: kind, message: String(msg)}); return kind === 'prompt' ? '' : true; }; };
  window.confirm = rec('confirm');
  window.alert = rec('alert');
  window.prompt = rec('prompt');
})();`

// StepRecord is one turn of the exploration loop.
type StepRecord struct {
	Turn             int      `json:"turn"`
	Tool             string   `json:"tool"`
	Args             string   `json:"args,omitempty"`
	BeforeSignature  string   `json:"before_signature"`
	AfterSignature   string   `json:"after_signature"`
	DOMChanged       bool     `json:"dom_changed"`
	NewConsoleErrors []string `json:"new_console_errors,omitempty"`
	DialogsInvoked   []string `json:"dialogs_invoked,omitempty"`
	URLChanged       bool     `json:"url_changed"`
	Error            string   `json:"error,omitempty"`
	ScreenshotPath   string   `json:"screenshot_path,omitempty"`
}

// ExplorationResult is everything the turn loop produced, ready to feed the
// final-scoring prompt.
type ExplorationResult struct {
	Steps           []StepRecord
	Screenshots     []string // first, median, last — whichever were captured
	FinishedByModel bool
	FinishSummary   string
	ConsoleErrors   []ConsoleMessage
}

// signature is a coarse fingerprint of page state, cheap enough to compute
// every turn and stable enough that an unrelated re-render doesn't look like
// a change.
type signature struct {
	url     string
	title   string
	nButton int
}

func (s signature) String() string {
	return fmt.Sprintf("%s|%s|%d", s.url, s.title, s.nButton)
}

// runExploration drives the evaluator LLM through a sequence of tool calls
// against the live page, recording a step per turn, until the model calls
// finish_exploration, maxTurns is reached, or the browser subprocess itself
// becomes unusable.
func runExploration(ctx context.Context, client *mcpclient.Client, llmModel llmtypes.Model, modelID, url, task string, maxTurns int, screenshotsDir string, log logger.Logger) (ExplorationResult, error) {
	if maxTurns <= 0 {
		maxTurns = defaultMaxTurns
	}
	result := ExplorationResult{}

	if err := client.Navigate(ctx, url); err != nil {
		return result, err
	}
	_, _ = client.WaitFor(ctx, "timeout", 2000)

	if _, err := client.Evaluate(ctx, dialogInterceptionScript); err != nil {
		log.Warnf("evaluator: dialog interception script failed to install: %v", err)
	}

	before, beforeErrCount := observeSignature(ctx, client, log)

	tools := toolset()
	var history []llmtypes.MessageContent
	history = append(history, llmtypes.TextPart(llmtypes.ChatMessageTypeSystem, explorationSystemPrompt(task)))

	screenshotTurns := map[int]bool{0: true}

	for turn := 0; turn < maxTurns; turn++ {
		resp, err := llmModel.GenerateContent(ctx, history,
			llmtypes.WithModel(modelID),
			llmtypes.WithTemperature(0.3),
			llmtypes.WithTools(tools),
			llmtypes.WithToolChoiceString("auto"),
		)
		if err != nil {
			log.Errorf("evaluator: exploration turn %d model call failed: %v", turn, err)
			break
		}
		if len(resp.Choices) == 0 || len(resp.Choices[0].ToolCalls) == 0 {
			log.Warnf("evaluator: turn %d produced no tool call, ending exploration", turn)
			break
		}

		call := resp.Choices[0].ToolCalls[0]
		if call.FunctionCall == nil {
			break
		}
		history = append(history, llmtypes.MessageContent{
			Role:  llmtypes.ChatMessageTypeAI,
			Parts: []llmtypes.ContentPart{llmtypes.TextContent{Text: fmt.Sprintf("calling %s", call.FunctionCall.Name)}},
		})

		if call.FunctionCall.Name == finishToolName {
			result.FinishedByModel = true
			result.FinishSummary = extractSummary(call.FunctionCall.Arguments)
			log.Infof("evaluator: model finished exploration at turn %d: %s", turn, result.FinishSummary)
			break
		}

		step := StepRecord{Turn: turn, Tool: call.FunctionCall.Name, Args: call.FunctionCall.Arguments, BeforeSignature: before.String()}

		toolErr := executeTool(ctx, client, call.FunctionCall.Name, call.FunctionCall.Arguments)
		if toolErr != nil {
			step.Error = toolErr.Error()
			log.Infof("evaluator: turn %d tool %s failed: %v", turn, call.FunctionCall.Name, toolErr)
			if errors.Is(toolErr, errs.ErrMcpDisconnected) {
				result.Steps = append(result.Steps, step)
				return result, toolErr
			}
		}

		if turn == maxTurns/2 {
			screenshotTurns[turn] = true
		}

		after, afterErrCount := observeSignature(ctx, client, log)
		step.AfterSignature = after.String()
		step.DOMChanged = after != before
		step.URLChanged = after.url != before.url
		if afterErrCount > beforeErrCount {
			step.NewConsoleErrors = []string{fmt.Sprintf("%d new console error(s)", afterErrCount-beforeErrCount)}
		}
		step.DialogsInvoked = readDialogBuffer(ctx, client)

		if screenshotTurns[turn] {
			path := filepath.Join(screenshotsDir, fmt.Sprintf("turn_%d.png", turn))
			if _, err := client.Screenshot(ctx, path, false); err == nil {
				step.ScreenshotPath = path
				result.Screenshots = append(result.Screenshots, path)
			}
		}

		history = append(history, llmtypes.MessageContent{
			Role:  llmtypes.ChatMessageTypeTool,
			Parts: []llmtypes.ContentPart{llmtypes.ToolCallResponse{ToolCallID: call.ID, Name: call.FunctionCall.Name, Content: stepSummary(step)}},
		})

		result.Steps = append(result.Steps, step)
		before, beforeErrCount = after, afterErrCount
	}

	last := filepath.Join(screenshotsDir, "final.png")
	if _, err := client.Screenshot(ctx, last, true); err == nil {
		result.Screenshots = append(result.Screenshots, last)
	}

	if raw, err := client.ConsoleMessages(ctx); err == nil {
		if msgs, ok := parseConsoleMessages(raw); ok {
			for _, m := range msgs {
				if m.Type == "error" {
					result.ConsoleErrors = append(result.ConsoleErrors, m)
				}
			}
		}
	}

	return result, nil
}

func explorationSystemPrompt(task string) string {
	return fmt.Sprintf(`You are a QA engineer exploring a web page built for this task:

%s

Use the available browser tools to verify functionality, check for visual issues, and
exercise interactive elements. Call finish_exploration as soon as you have enough
evidence to score the page — do not explore longer than necessary.`, task)
}

func observeSignature(ctx context.Context, client *mcpclient.Client, log logger.Logger) (signature, int) {
	sig := signature{}
	if raw, err := client.Evaluate(ctx, "window.location.href"); err == nil {
		var url string
		if json.Unmarshal(raw, &url) == nil {
			sig.url = url
		}
	}
	if raw, err := client.Snapshot(ctx); err == nil {
		if snap, ok := parseSnapshot(raw); ok {
			sig.title = snap.Title
			sig.nButton = len(snap.Buttons)
		}
	}
	errCount := 0
	if raw, err := client.ConsoleMessages(ctx); err == nil {
		if msgs, ok := parseConsoleMessages(raw); ok {
			for _, m := range msgs {
				if m.Type == "error" {
					errCount++
				}
			}
		}
	}
	return sig, errCount
}

func readDialogBuffer(ctx context.Context, client *mcpclient.Client) []string {
	raw, err := client.Evaluate(ctx, "(function(){var d = window.__loopctlDialogs || []; window.__loopctlDialogs = []; return d.map(function(x){return x.kind + ': ' + x.message;});})()")
	if err != nil {
		return nil
	}
	var dialogs []string
	if json.Unmarshal(raw, &dialogs) != nil {
		return nil
	}
	return dialogs
}

// executeTool dispatches one evaluator-chosen tool call to the matching
// MCPClient method. Arguments arrive as a JSON string, matching the shape an
// LLM tool-use response actually produces.
func executeTool(ctx context.Context, client *mcpclient.Client, name, argsJSON string) error {
	var args map[string]any
	_ = json.Unmarshal([]byte(argsJSON), &args)

	str := func(key string) string {
		if v, ok := args[key].(string); ok {
			return v
		}
		return ""
	}
	num := func(key string) int {
		if v, ok := args[key].(float64); ok {
			return int(v)
		}
		return 0
	}

	var err error
	switch name {
	case "browser_click":
		_, err = client.Click(ctx, str("selector"))
	case "browser_type":
		_, err = client.Type(ctx, str("selector"), str("text"))
	case "browser_scroll":
		_, err = client.Scroll(ctx, str("direction"), num("amount"))
	case "browser_hover":
		_, err = client.Hover(ctx, str("selector"))
	case "browser_press_key":
		_, err = client.PressKey(ctx, str("key"))
	case "browser_evaluate":
		_, err = client.Evaluate(ctx, str("expression"))
	case "browser_wait_for":
		_, err = client.WaitFor(ctx, str("condition"), num("timeoutMs"))
	case "browser_get_url":
		_, err = client.Evaluate(ctx, "window.location.href")
	case "browser_dom_snapshot":
		_, err = client.Snapshot(ctx)
	default:
		return fmt.Errorf("unknown tool %q", name)
	}
	return err
}

func stepSummary(step StepRecord) string {
	if step.Error != "" {
		return fmt.Sprintf("error: %s", step.Error)
	}
	parts := []string{fmt.Sprintf("dom_changed=%v", step.DOMChanged), fmt.Sprintf("url_changed=%v", step.URLChanged)}
	if len(step.NewConsoleErrors) > 0 {
		parts = append(parts, strings.Join(step.NewConsoleErrors, ","))
	}
	return strings.Join(parts, " ")
}

func extractSummary(argsJSON string) string {
	var args struct {
		Summary string `json:"summary"`
	}
	_ = json.Unmarshal([]byte(argsJSON), &args)
	return args.Summary
}
