package evaluator

import "loopctl/internal/llmtypes"

// finishToolName is the sentinel the evaluator LLM calls to end exploration
// early rather than burning through maxTurns once its rubric is satisfied.
const finishToolName = "finish_exploration"

// toolset is the fixed set of browser actions, plus finish_exploration,
// exposed to the evaluator LLM during a turn. Each is a thin wrapper over
// MCPClient executed by executeTool.
func toolset() []llmtypes.Tool {
	str := func(desc string) map[string]any {
		return map[string]any{"type": "string", "description": desc}
	}
	num := func(desc string) map[string]any {
		return map[string]any{"type": "number", "description": desc}
	}

	defs := []struct {
		name, desc string
		props      map[string]any
		required   []string
	}{
		{"browser_click", "Click the element matching selector.",
			map[string]any{"selector": str("CSS selector of the element to click")}, []string{"selector"}},
		{"browser_type", "Type text into the element matching selector.",
			map[string]any{"selector": str("CSS selector"), "text": str("text to type")}, []string{"selector", "text"}},
		{"browser_scroll", "Scroll the page.",
			map[string]any{"direction": str("up, down, left, or right"), "amount": num("pixels to scroll, optional")}, []string{"direction"}},
		{"browser_hover", "Hover over the element matching selector.",
			map[string]any{"selector": str("CSS selector")}, []string{"selector"}},
		{"browser_press_key", "Press a keyboard key.",
			map[string]any{"key": str("key name, e.g. Enter, Tab, Escape")}, []string{"key"}},
		{"browser_evaluate", "Evaluate a JavaScript expression in the page.",
			map[string]any{"expression": str("JavaScript expression to evaluate")}, []string{"expression"}},
		{"browser_wait_for", "Wait for a condition or fixed duration.",
			map[string]any{"condition": str("condition to wait for"), "timeoutMs": num("timeout in milliseconds, optional")}, []string{"condition"}},
		{"browser_get_url", "Return the page's current URL.", map[string]any{}, nil},
		{"browser_dom_snapshot", "Return a snapshot of the page's DOM.", map[string]any{}, nil},
		{finishToolName, "End exploration; call this once you have enough information to score the page.",
			map[string]any{"summary": str("brief summary of what was explored and why exploration is complete")}, []string{"summary"}},
	}

	tools := make([]llmtypes.Tool, 0, len(defs))
	for _, d := range defs {
		tools = append(tools, llmtypes.Tool{
			Type: "function",
			Function: &llmtypes.FunctionDefinition{
				Name:        d.name,
				Description: d.desc,
				Parameters: &llmtypes.Parameters{
					Type:       "object",
					Properties: d.props,
					Required:   d.required,
				},
			},
		})
	}
	return tools
}
