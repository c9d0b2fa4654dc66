// Package vertex adapts the Google GenAI SDK to llmtypes.Model. It backs both
// the Planner (plain JSON completions) and the agentic Evaluator (tool-use
// completions), since both model calls share the same request/response shape.
package vertex

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"loopctl/internal/llmtypes"
	"loopctl/pkg/logger"
)

// contextKey namespaces values stored on a context.Context by this package.
type contextKey string

// ResponseSchemaKey carries an optional *genai.Schema for structured output.
const ResponseSchemaKey contextKey = "vertex_response_schema"

// Adapter implements llmtypes.Model over a genai.Client.
type Adapter struct {
	client  *genai.Client
	modelID string
	log     logger.Logger
}

// New creates an adapter bound to one model ID; callers may still override
// the model per call via llmtypes.WithModel.
func New(client *genai.Client, modelID string, log logger.Logger) *Adapter {
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

	genaiContents := convertMessages(messages)
	config := buildConfig(ctx, opts)

	result, err := a.client.Models.GenerateContent(ctx, modelID, genaiContents, config)
	if err != nil {
		return nil, fmt.Errorf("genai generate content: %w", err)
	}
	return convertResponse(result), nil
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

// convertMessages splits any assistant message that mixes text and tool-call
// parts into two messages: Gemini's API rejects (or silently drops) content
// that interleaves the two within a single turn.
func convertMessages(messages []llmtypes.MessageContent) []*genai.Content {
	genaiContents := make([]*genai.Content, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == llmtypes.ChatMessageTypeAI && hasMixedParts(msg) {
			textMsg, toolMsg := splitMixedParts(msg)
			if textMsg != nil {
				genaiContents = append(genaiContents, textMsg)
			}
			if toolMsg != nil {
				genaiContents = append(genaiContents, toolMsg)
			}
			continue
		}
		if parts := convertParts(msg.Parts); len(parts) > 0 {
			genaiContents = append(genaiContents, &genai.Content{Role: convertRole(msg.Role), Parts: parts})
		}
	}
	return genaiContents
}

func hasMixedParts(msg llmtypes.MessageContent) bool {
	hasText, hasTool := false, false
	for _, part := range msg.Parts {
		switch part.(type) {
		case llmtypes.TextContent:
			hasText = true
		case llmtypes.ToolCall:
			hasTool = true
		}
	}
	return hasText && hasTool
}

func splitMixedParts(msg llmtypes.MessageContent) (textContent, toolContent *genai.Content) {
	var textParts, toolParts []llmtypes.ContentPart
	for _, part := range msg.Parts {
		switch part.(type) {
		case llmtypes.TextContent:
			textParts = append(textParts, part)
		case llmtypes.ToolCall:
			toolParts = append(toolParts, part)
		}
	}
	role := convertRole(msg.Role)
	if parts := convertParts(textParts); len(parts) > 0 {
		textContent = &genai.Content{Role: role, Parts: parts}
	}
	if parts := convertParts(toolParts); len(parts) > 0 {
		toolContent = &genai.Content{Role: role, Parts: parts}
	}
	return
}

func convertParts(parts []llmtypes.ContentPart) []*genai.Part {
	genaiParts := make([]*genai.Part, 0, len(parts))
	for _, part := range parts {
		switch p := part.(type) {
		case llmtypes.TextContent:
			genaiParts = append(genaiParts, genai.NewPartFromText(p.Text))
		case llmtypes.ToolCallResponse:
			genaiParts = append(genaiParts, genai.NewPartFromFunctionResponse(p.ToolCallID, responseMap(p.Content)))
		case llmtypes.ToolCall:
			if p.FunctionCall != nil {
				genaiParts = append(genaiParts, genai.NewPartFromFunctionCall(p.FunctionCall.Name, parseJSONObject(p.FunctionCall.Arguments)))
			}
		}
	}
	return genaiParts
}

func responseMap(content string) map[string]interface{} {
	m := parseJSONObject(content)
	if len(m) == 0 && content != "" && !strings.HasPrefix(strings.TrimSpace(content), "{") {
		return map[string]interface{}{"result": content}
	}
	return m
}

func convertRole(role llmtypes.ChatMessageType) string {
	switch role {
	case llmtypes.ChatMessageTypeAI:
		return "model"
	default:
		return "user"
	}
}

func buildConfig(ctx context.Context, opts *llmtypes.CallOptions) *genai.GenerateContentConfig {
	config := &genai.GenerateContentConfig{}
	if opts.Temperature > 0 {
		temp := float32(opts.Temperature)
		config.Temperature = &temp
	}
	if opts.MaxTokens > 0 {
		config.MaxOutputTokens = int32(opts.MaxTokens)
	}
	if opts.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if schema, ok := ctx.Value(ResponseSchemaKey).(*genai.Schema); ok && schema != nil {
		config.ResponseSchema = schema
		if config.ResponseMIMEType == "" {
			config.ResponseMIMEType = "application/json"
		}
	}
	if len(opts.Tools) > 0 {
		config.Tools = convertTools(opts.Tools)
		if opts.ToolChoice != nil {
			config.ToolConfig = convertToolChoice(opts.ToolChoice)
		}
	}
	return config
}

func convertTools(tools []llmtypes.Tool) []*genai.Tool {
	genaiTools := make([]*genai.Tool, 0, len(tools))
	for _, tool := range tools {
		if tool.Function == nil {
			continue
		}
		decl := &genai.FunctionDeclaration{Name: tool.Function.Name, Description: tool.Function.Description}
		if tool.Function.Parameters != nil {
			decl.Parameters = convertSchema(tool.Function.Parameters)
		}
		genaiTools = append(genaiTools, &genai.Tool{FunctionDeclarations: []*genai.FunctionDeclaration{decl}})
	}
	return genaiTools
}

// convertSchema round-trips through JSON: llmtypes.Parameters and genai.Schema
// both follow JSON Schema field names, so marshal/unmarshal is the simplest
// faithful conversion.
func convertSchema(params *llmtypes.Parameters) *genai.Schema {
	raw, err := json.Marshal(params)
	if err != nil {
		return nil
	}
	var schema genai.Schema
	if err := json.Unmarshal(raw, &schema); err != nil {
		return nil
	}
	return &schema
}

func convertToolChoice(choice *llmtypes.ToolChoice) *genai.ToolConfig {
	cfg := &genai.ToolConfig{FunctionCallingConfig: &genai.FunctionCallingConfig{}}
	switch choice.Type {
	case "none":
		cfg.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeNone
	case "required":
		cfg.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAny
		if choice.Function != nil {
			cfg.FunctionCallingConfig.AllowedFunctionNames = []string{choice.Function.Name}
		}
	default:
		cfg.FunctionCallingConfig.Mode = genai.FunctionCallingConfigModeAuto
	}
	return cfg
}

func convertResponse(result *genai.GenerateContentResponse) *llmtypes.ContentResponse {
	if result == nil {
		return &llmtypes.ContentResponse{Choices: []*llmtypes.ContentChoice{}}
	}
	choices := make([]*llmtypes.ContentChoice, 0, len(result.Candidates))
	for _, candidate := range result.Candidates {
		choice := &llmtypes.ContentChoice{StopReason: string(candidate.FinishReason)}

		var textParts []string
		var toolCalls []llmtypes.ToolCall
		if candidate.Content != nil {
			for _, part := range candidate.Content.Parts {
				if part.Text != "" {
					textParts = append(textParts, part.Text)
				}
				if part.FunctionCall != nil {
					toolCalls = append(toolCalls, llmtypes.ToolCall{
						ID:   nextToolCallID(),
						Type: "function",
						FunctionCall: &llmtypes.FunctionCall{
							Name:      part.FunctionCall.Name,
							Arguments: marshalArguments(part.FunctionCall.Args),
						},
					})
				}
			}
		}
		if len(textParts) > 0 {
			choice.Content = strings.Join(textParts, "\n")
		} else {
			choice.Content = result.Text()
		}
		choice.ToolCalls = toolCalls

		if u := result.UsageMetadata; u != nil {
			input, output, total := int(u.PromptTokenCount), int(u.CandidatesTokenCount), int(u.TotalTokenCount)
			choice.GenerationInfo = &llmtypes.GenerationInfo{InputTokens: &input, OutputTokens: &output, TotalTokens: &total}
		}
		choices = append(choices, choice)
	}
	return &llmtypes.ContentResponse{Choices: choices}
}

func parseJSONObject(s string) map[string]interface{} {
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return map[string]interface{}{}
	}
	return m
}

func marshalArguments(args map[string]interface{}) string {
	if args == nil {
		return "{}"
	}
	b, err := json.Marshal(args)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// WithResponseSchema attaches a structured-output schema to the context for
// the next GenerateContent call.
func WithResponseSchema(ctx context.Context, schema *genai.Schema) context.Context {
	return context.WithValue(ctx, ResponseSchemaKey, schema)
}

var toolCallSeq int64

func nextToolCallID() string {
	toolCallSeq++
	return fmt.Sprintf("call_%d", toolCallSeq)
}
