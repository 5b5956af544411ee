// Package anthropic implements provider.Client for the Anthropic Messages API.
package anthropic

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/provider"
)

// Options configure the Anthropic adapter.
type Options struct {
	APIKey string
}

// Client adapts the Anthropic Messages API to provider.Client.
type Client struct {
	apiKey string
	client anthropic.Client
}

// New creates a Client using the official Anthropic SDK.
func New(optFns ...func(o *Options)) *Client {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	var clientOpts []option.RequestOption
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}
	return &Client{apiKey: opts.APIKey, client: anthropic.NewClient(clientOpts...)}
}

// Name implements provider.Client.
func (c *Client) Name() string { return "anthropic" }

// Chat implements the buffered path.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResult, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}

	msg := provider.ChatMessage{Role: core.RoleAssistant}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			msg.Content += block.AsText().Text
		case "tool_use":
			toolBlock := block.AsToolUse()
			args := map[string]any{}
			if toolBlock.Input != nil {
				if raw, merr := json.Marshal(toolBlock.Input); merr == nil {
					_ = json.Unmarshal(raw, &args)
				}
			}
			msg.ToolCalls = append(msg.ToolCalls, core.ToolCall{
				ID:        toolBlock.ID,
				Name:      toolBlock.Name,
				Arguments: args,
			})
		}
	}

	finishReason := "stop"
	if resp.StopReason != "" {
		finishReason = string(resp.StopReason)
	}

	return &provider.ChatResult{
		Provider: "anthropic",
		Model:    req.Model,
		Choices:  []provider.ChatChoice{{Index: 0, Message: msg, FinishReason: finishReason}},
		Usage: &provider.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		Raw: resp,
	}, nil
}

// ChatStream implements the streaming path using the SDK's event stream.
// Only text deltas are forwarded incrementally; tool calls arrive complete
// with the final chunk.
func (c *Client) ChatStream(ctx context.Context, req provider.ChatRequest) (<-chan provider.StreamChunk, <-chan error) {
	out := make(chan provider.StreamChunk, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		params, err := c.buildParams(req)
		if err != nil {
			errCh <- err
			return
		}

		stream := c.client.Messages.NewStreaming(ctx, params)
		acc := anthropic.Message{}
		for stream.Next() {
			event := stream.Current()
			if aerr := acc.Accumulate(event); aerr != nil {
				errCh <- c.mapError(aerr)
				return
			}
			switch ev := event.AsAny().(type) {
			case anthropic.ContentBlockDeltaEvent:
				if text := ev.Delta.Text; text != "" {
					out <- provider.StreamChunk{
						Provider: "anthropic",
						Model:    req.Model,
						Choices: []provider.StreamChoice{{
							Delta: provider.ChatMessage{Role: core.RoleAssistant, Content: text},
						}},
					}
				}
			}
		}
		if serr := stream.Err(); serr != nil {
			errCh <- c.mapError(serr)
			return
		}

		final := provider.StreamChoice{
			Delta:        provider.ChatMessage{Role: core.RoleAssistant},
			FinishReason: "stop",
		}
		if acc.StopReason != "" {
			final.FinishReason = string(acc.StopReason)
		}
		for _, block := range acc.Content {
			if block.Type == "tool_use" {
				toolBlock := block.AsToolUse()
				args := map[string]any{}
				if raw, merr := json.Marshal(toolBlock.Input); merr == nil {
					_ = json.Unmarshal(raw, &args)
				}
				final.Delta.ToolCalls = append(final.Delta.ToolCalls, core.ToolCall{
					ID:        toolBlock.ID,
					Name:      toolBlock.Name,
					Arguments: args,
				})
			}
		}
		out <- provider.StreamChunk{
			Provider: "anthropic",
			Model:    req.Model,
			Choices:  []provider.StreamChoice{final},
		}
	}()

	return out, errCh
}

func (c *Client) buildParams(req provider.ChatRequest) (anthropic.MessageNewParams, error) {
	if c.apiKey == "" {
		return anthropic.MessageNewParams{}, &core.ValidationError{
			Code:    "MISSING_API_KEY",
			Message: "no API key configured for provider anthropic",
		}
	}

	modelCfg, err := provider.ResolveModel("anthropic", req.Model)
	if err != nil {
		modelCfg = provider.ModelConfig{LogicalName: req.Model, ProviderModel: req.Model}
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens == 0 {
		maxTokens = int64(modelCfg.MaxTokens)
	}
	if maxTokens == 0 {
		maxTokens = 4096
	}

	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(modelCfg.ProviderModel),
		Messages:    buildMessages(req.Messages),
		MaxTokens:   maxTokens,
		Temperature: anthropic.Float(req.Temperature),
	}
	if req.TopP > 0 {
		params.TopP = anthropic.Float(req.TopP)
	}
	if system := systemBlocks(req.Messages); len(system) > 0 {
		params.System = system
	}
	if len(req.Tools) > 0 {
		params.Tools = buildTools(req.Tools)
	}
	// Anthropic has no tool_choice "none"; the forced-final round simply
	// omits the tool definitions instead.
	if req.ToolChoice == provider.ToolChoiceNone {
		params.Tools = nil
	}
	return params, nil
}

// buildMessages converts normalized messages into Anthropic message params.
// System messages are handled separately; tool results are embedded after
// the assistant turn that requested them, as the Messages API requires.
func buildMessages(messages []provider.ChatMessage) []anthropic.MessageParam {
	toolResults := map[string]string{}
	for _, m := range messages {
		if (m.Role == core.RoleTool || m.Role == core.RoleToolResult) && m.ToolCallID != "" {
			toolResults[m.ToolCallID] = m.Content
		}
	}

	var out []anthropic.MessageParam
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem, core.RoleTool, core.RoleToolResult:
			continue
		case core.RoleAssistant:
			var content []anthropic.ContentBlockParamUnion
			if m.Content != "" {
				content = append(content, anthropic.NewTextBlock(m.Content))
			}
			var callIDs []string
			for _, tc := range m.ToolCalls {
				content = append(content, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
				callIDs = append(callIDs, tc.ID)
			}
			if len(content) > 0 {
				out = append(out, anthropic.NewAssistantMessage(content...))
			}
			var results []anthropic.ContentBlockParamUnion
			for _, id := range callIDs {
				if res, ok := toolResults[id]; ok {
					results = append(results, anthropic.NewToolResultBlock(id, res, false))
					delete(toolResults, id)
				}
			}
			if len(results) > 0 {
				out = append(out, anthropic.NewUserMessage(results...))
			}
		default:
			if m.Content != "" {
				out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
			}
		}
	}
	return out
}

func systemBlocks(messages []provider.ChatMessage) []anthropic.TextBlockParam {
	var blocks []anthropic.TextBlockParam
	for _, m := range messages {
		if m.Role == core.RoleSystem && m.Content != "" {
			blocks = append(blocks, anthropic.TextBlockParam{Text: m.Content})
		}
	}
	return blocks
}

func buildTools(defs []core.ToolDef) []anthropic.ToolUnionParam {
	tools := make([]anthropic.ToolUnionParam, len(defs))
	for i, def := range defs {
		inputSchema := anthropic.ToolInputSchemaParam{Type: constant.Object("object")}
		if def.Parameters != nil {
			if properties, ok := def.Parameters["properties"]; ok {
				inputSchema.Properties = properties
			}
			switch required := def.Parameters["required"].(type) {
			case []string:
				inputSchema.Required = required
			case []any:
				for _, r := range required {
					if s, ok := r.(string); ok {
						inputSchema.Required = append(inputSchema.Required, s)
					}
				}
			}
		}
		toolParam := anthropic.ToolParam{Name: def.Name, InputSchema: inputSchema}
		if def.Description != "" {
			toolParam.Description = anthropic.String(def.Description)
		}
		tools[i] = anthropic.ToolUnionParam{OfTool: &toolParam}
	}
	return tools
}

// mapError classifies SDK failures into the core taxonomy.
func (c *Client) mapError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return &core.RateLimitError{Provider: "anthropic", Message: err.Error()}
		}
		return &core.APIError{Provider: "anthropic", Status: apiErr.StatusCode, Body: err.Error()}
	}
	return &core.NetworkError{Provider: "anthropic", Err: err}
}
