// Package openaicompat implements provider.Client on top of the official
// OpenAI Go SDK. Because Moonshot/Kimi and GLM expose OpenAI-compatible chat
// endpoints, the same adapter serves all three: the provider name selects the
// registry entry (base URL + logical model table) while the SDK handles the
// wire format.
package openaicompat

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/provider"
)

// aggCall aggregates partial tool call streaming deltas (id, name, arguments)
// so complete calls can be reconstructed when the finish reason arrives.
type aggCall struct{ id, name, args string }

// Options configure the adapter. BaseURL defaults to the registry entry for
// the provider name; APIKey is mandatory before the first call.
type Options struct {
	APIKey      string
	BaseURL     string
	HTTPTimeout time.Duration
}

// Client adapts an OpenAI-compatible chat completions endpoint to provider.Client.
type Client struct {
	name   string
	apiKey string
	client openai.Client
}

// New creates a Client for the named provider ("openai", "kimi", "glm", or
// any OpenAI-compatible endpoint reachable through Options.BaseURL).
func New(providerName string, optFns ...func(o *Options)) *Client {
	opts := Options{HTTPTimeout: 30 * time.Second}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.BaseURL == "" {
		if cfg, err := provider.LookupConfig(providerName); err == nil {
			opts.BaseURL = cfg.BaseURL
		}
	}

	clientOpts := []option.RequestOption{option.WithRequestTimeout(opts.HTTPTimeout)}
	if opts.BaseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(opts.BaseURL))
	}
	if opts.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(opts.APIKey))
	}

	return &Client{
		name:   providerName,
		apiKey: opts.APIKey,
		client: openai.NewClient(clientOpts...),
	}
}

// Name implements provider.Client.
func (c *Client) Name() string { return c.name }

// Chat implements the buffered path.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResult, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, c.mapError(err)
	}
	if len(resp.Choices) == 0 {
		return nil, &core.APIError{Provider: c.name, Status: 200, Body: "no choices returned"}
	}

	result := &provider.ChatResult{
		Provider: c.name,
		Model:    req.Model,
		Raw:      resp,
	}
	for _, ch := range resp.Choices {
		result.Choices = append(result.Choices, provider.ChatChoice{
			Index:        int(ch.Index),
			Message:      parseAssistantMessage(ch.Message),
			FinishReason: string(ch.FinishReason),
		})
	}
	if resp.Usage.TotalTokens > 0 {
		result.Usage = &provider.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		}
	}
	return result, nil
}

// ChatStream implements the streaming path, emitting text deltas as they
// arrive and reconstructed tool calls with the final chunk.
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

		stream := c.client.Chat.Completions.NewStreaming(ctx, params)
		toolAgg := map[int64]*aggCall{}
		for stream.Next() {
			ck := stream.Current()
			for _, ch := range ck.Choices {
				if ch.Delta.Content != "" {
					out <- provider.StreamChunk{
						Provider: c.name,
						Model:    req.Model,
						Choices: []provider.StreamChoice{{
							Index: int(ch.Index),
							Delta: provider.ChatMessage{Role: core.RoleAssistant, Content: ch.Delta.Content},
						}},
					}
				}
				for _, tc := range ch.Delta.ToolCalls {
					ac, ok := toolAgg[tc.Index]
					if !ok {
						ac = &aggCall{}
						toolAgg[tc.Index] = ac
					}
					if tc.ID != "" {
						ac.id = tc.ID
					}
					if tc.Function.Name != "" {
						ac.name = tc.Function.Name
					}
					ac.args += tc.Function.Arguments
				}
				if ch.FinishReason != "" {
					out <- provider.StreamChunk{
						Provider: c.name,
						Model:    req.Model,
						Choices: []provider.StreamChoice{{
							Index:        int(ch.Index),
							Delta:        provider.ChatMessage{Role: core.RoleAssistant, ToolCalls: collectAggCalls(toolAgg)},
							FinishReason: ch.FinishReason,
						}},
					}
				}
			}
		}
		if err := stream.Err(); err != nil {
			errCh <- c.mapError(err)
		}
	}()

	return out, errCh
}

func (c *Client) buildParams(req provider.ChatRequest) (openai.ChatCompletionNewParams, error) {
	if c.apiKey == "" {
		return openai.ChatCompletionNewParams{}, &core.ValidationError{
			Code:    "MISSING_API_KEY",
			Message: "no API key configured for provider " + c.name,
		}
	}

	modelCfg, err := provider.ResolveModel(c.name, req.Model)
	if err != nil {
		// Providers outside the registry still work when constructed with an
		// explicit BaseURL; treat the model name as the vendor id.
		modelCfg = provider.ModelConfig{LogicalName: req.Model, ProviderModel: req.Model}
	}

	params := openai.ChatCompletionNewParams{
		Messages:    buildMessages(req.Messages),
		Model:       modelCfg.ProviderModel,
		Temperature: openai.Float(req.Temperature),
	}
	if req.TopP > 0 {
		params.TopP = openai.Float(req.TopP)
	}
	switch {
	case req.MaxTokens > 0:
		params.MaxCompletionTokens = openai.Int(int64(req.MaxTokens))
	case modelCfg.MaxTokens > 0:
		params.MaxCompletionTokens = openai.Int(int64(modelCfg.MaxTokens))
	}

	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, len(req.Tools))
		for i, tdef := range req.Tools {
			tools[i] = openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        tdef.Name,
					Description: openai.String(tdef.Description),
					Parameters:  tdef.Parameters,
				},
			}
		}
		params.Tools = tools
	}
	if req.ToolChoice != "" && req.ToolChoice != provider.ToolChoiceAuto {
		params.ToolChoice = openai.ChatCompletionToolChoiceOptionUnionParam{
			OfAuto: openai.String(string(req.ToolChoice)),
		}
	}
	return params, nil
}

// buildMessages converts normalized messages into SDK message unions,
// keeping assistant tool calls and their tool-role answers adjacent.
func buildMessages(messages []provider.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	var out []openai.ChatCompletionMessageParamUnion
	for _, m := range messages {
		switch m.Role {
		case core.RoleSystem:
			out = append(out, openai.SystemMessage(m.Content))
		case core.RoleUser:
			out = append(out, openai.UserMessage(m.Content))
		case core.RoleAssistant:
			if len(m.ToolCalls) == 0 {
				out = append(out, openai.AssistantMessage(m.Content))
				continue
			}
			toolCalls := make([]openai.ChatCompletionMessageToolCallParam, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				args, _ := json.Marshal(tc.Arguments)
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCallParam{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunctionParam{
						Name:      tc.Name,
						Arguments: string(args),
					},
				})
			}
			out = append(out, openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Role:      "assistant",
					ToolCalls: toolCalls,
				},
			})
		case core.RoleTool, core.RoleToolResult:
			out = append(out, openai.ToolMessage(m.Content, m.ToolCallID))
		default:
			if m.Content != "" {
				out = append(out, openai.UserMessage(m.Content))
			}
		}
	}
	return out
}

func parseAssistantMessage(msg openai.ChatCompletionMessage) provider.ChatMessage {
	out := provider.ChatMessage{Role: core.RoleAssistant, Content: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		// Malformed model-generated JSON is left as empty args; schema
		// validation at dispatch turns it into a model-visible tool error.
		_ = json.Unmarshal([]byte(tc.Function.Arguments), &args)
		out.ToolCalls = append(out.ToolCalls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: args,
		})
	}
	return out
}

// collectAggCalls returns the reconstructed calls in index order, preserving
// the order the model requested them.
func collectAggCalls(agg map[int64]*aggCall) []core.ToolCall {
	if len(agg) == 0 {
		return nil
	}
	indexes := make([]int64, 0, len(agg))
	for idx := range agg {
		indexes = append(indexes, idx)
	}
	sort.Slice(indexes, func(i, j int) bool { return indexes[i] < indexes[j] })

	calls := make([]core.ToolCall, 0, len(agg))
	for _, idx := range indexes {
		ac := agg[idx]
		args := map[string]any{}
		_ = json.Unmarshal([]byte(ac.args), &args)
		calls = append(calls, core.ToolCall{ID: ac.id, Name: ac.name, Arguments: args})
	}
	return calls
}

// mapError classifies SDK failures into the core taxonomy.
func (c *Client) mapError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 {
			return &core.RateLimitError{Provider: c.name, Message: apiErr.Message}
		}
		return &core.APIError{Provider: c.name, Status: apiErr.StatusCode, Body: apiErr.Message}
	}
	return &core.NetworkError{Provider: c.name, Err: err}
}
