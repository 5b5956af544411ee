package provider

import (
	"context"

	"github.com/codeloom-ai/codeloom/core"
)

// ToolChoice controls whether the model may, must not, or must use tools.
type ToolChoice string

const (
	// ToolChoiceAuto lets the model decide per response.
	ToolChoiceAuto ToolChoice = "auto"
	// ToolChoiceNone forbids tool use (used for the forced-final round).
	ToolChoiceNone ToolChoice = "none"
	// ToolChoiceRequired forces at least one tool call.
	ToolChoiceRequired ToolChoice = "required"
)

// ChatMessage is one message in a provider-facing request or response.
//
// ToolCalls is populated on assistant messages that request tool execution;
// ToolCallID links a tool-role message back to the call it answers. Meta is
// never sent to the provider, it only rides along for logging and UI.
type ChatMessage struct {
	Role       core.Role       `json:"role"`
	Content    string          `json:"content"`
	Meta       map[string]any  `json:"meta,omitempty"`
	ToolCalls  []core.ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string          `json:"tool_call_id,omitempty"`
}

// ChatRequest captures a complete normalized chat call. Model is a logical
// name ("ide-chat"); adapters resolve it to a vendor model id through the
// registry.
type ChatRequest struct {
	Provider    string         `json:"provider"`
	Model       string         `json:"model"`
	Messages    []ChatMessage  `json:"messages"`
	Temperature float64        `json:"temperature"`
	TopP        float64        `json:"top_p"`
	MaxTokens   int            `json:"max_tokens,omitempty"` // 0 means provider default
	Tools       []core.ToolDef `json:"tools,omitempty"`
	ToolChoice  ToolChoice     `json:"tool_choice,omitempty"`
}

// Usage captures token accounting reported by a provider.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// ChatChoice is a single candidate answer (index 0 is the one used today).
type ChatChoice struct {
	Index        int         `json:"index"`
	Message      ChatMessage `json:"message"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// ChatResult is the parsed outcome of one buffered chat call.
type ChatResult struct {
	Provider string       `json:"provider"`
	Model    string       `json:"model"`
	Choices  []ChatChoice `json:"choices"`
	Usage    *Usage       `json:"usage,omitempty"`
	Raw      any          `json:"raw,omitempty"`
}

// StreamChoice is one candidate increment within a streaming chunk.
type StreamChoice struct {
	Index        int         `json:"index"`
	Delta        ChatMessage `json:"delta"`
	FinishReason string      `json:"finish_reason,omitempty"`
}

// StreamChunk mirrors ChatResult but carries incremental deltas.
type StreamChunk struct {
	Provider string         `json:"provider"`
	Model    string         `json:"model"`
	Choices  []StreamChoice `json:"choices"`
	Usage    *Usage         `json:"usage,omitempty"`
}

// Client is the capability the agent engine consumes. Implementations
// translate between ChatRequest/ChatResult and their vendor wire format and
// surface failures using the core error taxonomy (NetworkError,
// RateLimitError, APIError, ValidationError).
type Client interface {
	// Name identifies the provider ("kimi", "glm", "openai", "anthropic", ...).
	Name() string

	// Chat performs one buffered completion call.
	Chat(ctx context.Context, req ChatRequest) (*ChatResult, error)

	// ChatStream performs one streaming completion call. The chunk channel is
	// closed when the stream ends; a terminal failure is delivered on the
	// error channel.
	ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error)
}

// LastUserContent returns the content of the last user message in a request,
// or "". Used by mocks and logging.
func LastUserContent(req ChatRequest) string {
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == core.RoleUser {
			return req.Messages[i].Content
		}
	}
	return ""
}
