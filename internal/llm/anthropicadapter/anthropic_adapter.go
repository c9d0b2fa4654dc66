// Package anthropicadapter adapts the Anthropic SDK to llmtypes.Model. It
// backs the AgentClient's "anthropic" code-generation backend — the planner
// and evaluator use the vertex adapter instead, since both are served more
// naturally by Gemini's structured-output mode.
package anthropicadapter

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"

	"loopctl/internal/llmtypes"
	"loopctl/pkg/logger"
)

// Adapter implements llmtypes.Model over an anthropic.Client.
type Adapter struct {
	client  anthropic.Client
	modelID string
	log     logger.Logger
}

// New creates an adapter bound to one model ID; callers may still override
// the model per call via llmtypes.WithModel.
func New(client anthropic.Client, modelID string, log logger.Logger) *Adapter {
	return &Adapter{client: client, modelID: modelID, log: log}
}

// GenerateContent implements llmtypes.Model.
func (a *Adapter) GenerateContent(ctx context.Context, messages []llmtypes.MessageContent, options ...llmtypes.CallOption) (*llmtypes.ContentResponse, error) {
	opts := &llmtypes.CallOptions{}
	for _, opt := range options {
		opt(opts)
	}

	modelID := a.modelID
	if opts.Model != "" {
		modelID = opts.Model
	}

	anthropicMessages, systemMessage := convertMessages(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(modelID),
		Messages:  anthropicMessages,
		MaxTokens: 4096,
	}

	const jsonInstruction = "You must respond with valid JSON only, no other text. Return a JSON object."
	if systemMessage != "" {
		if opts.JSONMode {
			systemMessage += "\n\n" + jsonInstruction
		}
		params.System = []anthropic.TextBlockParam{{Text: systemMessage}}
	} else if opts.JSONMode && len(anthropicMessages) > 0 && anthropicMessages[0].Role == anthropic.MessageParamRoleUser {
		block := anthropic.NewTextBlock(jsonInstruction)
		anthropicMessages[0].Content = append([]anthropic.ContentBlockParamUnion{block}, anthropicMessages[0].Content...)
	}

	if opts.Temperature > 0 {
		params.Temperature = anthropic.Float(opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		params.MaxTokens = int64(opts.MaxTokens)
	}
	if len(opts.Tools) > 0 {
		params.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			params.ToolChoice = convertToolChoice(opts.ToolChoice)
		}
	}

	// Anthropic requires streaming for requests that may run past its
	// synchronous timeout; streaming unconditionally sidesteps that check
	// regardless of the actual request size.
	stream := a.client.Messages.NewStreaming(ctx, params)

	message := anthropic.Message{}
	for stream.Next() {
		event := stream.Current()
		if err := message.Accumulate(event); err != nil {
			stream.Close()
			return nil, fmt.Errorf("anthropic streaming accumulate: %w", err)
		}
		if opts.StreamingFunc == nil {
			continue
		}
		if delta, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if text, ok := delta.Delta.AsAny().(anthropic.TextDelta); ok && text.Text != "" {
				opts.StreamingFunc(text.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		a.log.Errorf("anthropic stream error: model=%s: %v", modelID, err)
		return nil, fmt.Errorf("anthropic streaming: %w", err)
	}
	stream.Close()

	return convertResponse(&message), nil
}

// Call is a convenience wrapper for a single-turn text prompt.
func (a *Adapter) Call(ctx context.Context, prompt string, options ...llmtypes.CallOption) (string, error) {
	messages := []llmtypes.MessageContent{llmtypes.TextPart(llmtypes.ChatMessageTypeHuman, prompt)}
	resp, err := a.GenerateContent(ctx, messages, options...)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}
	return resp.Choices[0].Content, nil
}

// convertMessages splits messages into Anthropic's turn list plus a single
// system message, mirroring the vertex adapter's per-role switch.
func convertMessages(messages []llmtypes.MessageContent) ([]anthropic.MessageParam, string) {
	anthropicMessages := make([]anthropic.MessageParam, 0, len(messages))
	var systemMessage string

	for _, msg := range messages {
		var contentParts []string
		var toolCallID, toolResponseContent string
		var toolCalls []llmtypes.ToolCall

		for _, part := range msg.Parts {
			switch p := part.(type) {
			case llmtypes.TextContent:
				contentParts = append(contentParts, p.Text)
			case llmtypes.ToolCallResponse:
				toolCallID = p.ToolCallID
				toolResponseContent = p.Content
			case llmtypes.ToolCall:
				toolCalls = append(toolCalls, p)
			}
		}
		content := strings.Join(contentParts, "\n")

		switch msg.Role {
		case llmtypes.ChatMessageTypeSystem:
			if content != "" {
				systemMessage = content
			}
		case llmtypes.ChatMessageTypeAI:
			if len(toolCalls) == 0 {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleAssistant,
					Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content)},
				})
				continue
			}
			blocks := []anthropic.ContentBlockParamUnion{}
			if content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(content))
			}
			for _, tc := range toolCalls {
				args := make(map[string]interface{})
				if tc.FunctionCall.Arguments != "" {
					_ = json.Unmarshal([]byte(tc.FunctionCall.Arguments), &args)
				}
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, args, tc.FunctionCall.Name))
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: blocks,
			})
		case llmtypes.ChatMessageTypeTool:
			if toolCallID != "" {
				anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
					Role:    anthropic.MessageParamRoleUser,
					Content: []anthropic.ContentBlockParamUnion{anthropic.NewToolResultBlock(toolCallID, toolResponseContent, false)},
				})
			}
		default:
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(content)},
			})
		}
	}

	return anthropicMessages, systemMessage
}

func convertTools(tools []llmtypes.Tool) []anthropic.ToolUnionParam {
	anthropicTools := make([]anthropic.ToolUnionParam, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		parameters := make(map[string]interface{})
		if tool.Function.Parameters != nil {
			if raw, err := json.Marshal(tool.Function.Parameters); err == nil {
				_ = json.Unmarshal(raw, &parameters)
			}
		}

		var required []string
		if req, ok := parameters["required"].([]interface{}); ok {
			for _, r := range req {
				if s, ok := r.(string); ok {
					required = append(required, s)
				}
			}
		}
		properties, _ := parameters["properties"].(map[string]interface{})

		schema := anthropic.ToolInputSchemaParam{Properties: properties, Required: required}
		anthropicTools = append(anthropicTools, anthropic.ToolUnionParamOfTool(schema, tool.Function.Name))
	}
	return anthropicTools
}

func convertToolChoice(choice *llmtypes.ToolChoice) anthropic.ToolChoiceUnionParam {
	if choice == nil {
		return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
	}
	switch choice.Type {
	case "none":
		return anthropic.ToolChoiceUnionParam{OfNone: &anthropic.ToolChoiceNoneParam{}}
	case "required":
		return anthropic.ToolChoiceUnionParam{OfAny: &anthropic.ToolChoiceAnyParam{}}
	case "function":
		if choice.Function != nil {
			return anthropic.ToolChoiceParamOfTool(choice.Function.Name)
		}
	}
	return anthropic.ToolChoiceUnionParam{OfAuto: &anthropic.ToolChoiceAutoParam{}}
}

func convertResponse(result *anthropic.Message) *llmtypes.ContentResponse {
	if result == nil {
		return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{}}
	}

	choice := &llmtypes.ContentChoice{StopReason: string(result.StopReason)}

	var textParts []string
	var toolCalls []llmtypes.ToolCall
	for _, block := range result.Content {
		switch block.Type {
		case "text":
			if block.Text != "" {
				textParts = append(textParts, block.Text)
			}
		case "tool_use":
			argsJSON := block.Input
			if len(argsJSON) == 0 {
				argsJSON = []byte("{}")
			}
			toolCalls = append(toolCalls, llmtypes.ToolCall{
				ID:           block.ID,
				Type:         "function",
				FunctionCall: &llmtypes.FunctionCall{Name: block.Name, Arguments: string(argsJSON)},
			})
		}
	}
	if len(textParts) > 0 {
		choice.Content = strings.Join(textParts, "\n")
	}
	choice.ToolCalls = toolCalls

	inputTokens, outputTokens := int(result.Usage.InputTokens), int(result.Usage.OutputTokens)
	totalTokens := inputTokens + outputTokens
	genInfo := &llmtypes.GenerationInfo{
		InputTokens: &inputTokens, OutputTokens: &outputTokens, TotalTokens: &totalTokens,
	}
	if result.Usage.CacheReadInputTokens > 0 || result.Usage.CacheCreationInputTokens > 0 {
		genInfo.Additional = map[string]interface{}{
			"cache_read_input_tokens":     int(result.Usage.CacheReadInputTokens),
			"cache_creation_input_tokens": int(result.Usage.CacheCreationInputTokens),
		}
	}
	choice.GenerationInfo = genInfo

	return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{choice}}
}
