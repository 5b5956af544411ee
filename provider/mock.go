package provider

import (
	"context"
	"fmt"

	"github.com/codeloom-ai/codeloom/core"
)

// MockClient is a lightweight in-memory Client useful for tests & examples.
// Responses are keyed by the last user message content; unknown prompts get
// a deterministic echo reply.
type MockClient struct {
	name      string
	responses map[string]string
}

// NewMockClient constructs a MockClient reporting the given provider name.
func NewMockClient(name string) *MockClient {
	return &MockClient{name: name, responses: make(map[string]string)}
}

// AddResponse registers a deterministic canned completion for an input prompt.
func (m *MockClient) AddResponse(prompt, response string) { m.responses[prompt] = response }

// Name implements Client.
func (m *MockClient) Name() string { return m.name }

func (m *MockClient) reply(req ChatRequest) string {
	input := LastUserContent(req)
	if full, ok := m.responses[input]; ok {
		return full
	}
	return fmt.Sprintf("Mock response to: %s", input)
}

// Chat implements Client with a single canned choice.
func (m *MockClient) Chat(_ context.Context, req ChatRequest) (*ChatResult, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("no messages provided")
	}
	return &ChatResult{
		Provider: m.name,
		Model:    req.Model,
		Choices: []ChatChoice{{
			Index:        0,
			Message:      ChatMessage{Role: core.RoleAssistant, Content: m.reply(req)},
			FinishReason: "stop",
		}},
	}, nil
}

// ChatStream implements Client; emits per-rune deltas then a final chunk.
func (m *MockClient) ChatStream(ctx context.Context, req ChatRequest) (<-chan StreamChunk, <-chan error) {
	out := make(chan StreamChunk, 16)
	errCh := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errCh)
		if len(req.Messages) == 0 {
			errCh <- fmt.Errorf("no messages provided")
			return
		}
		full := m.reply(req)
		for _, r := range full {
			select {
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			case out <- StreamChunk{
				Provider: m.name,
				Model:    req.Model,
				Choices: []StreamChoice{{
					Delta: ChatMessage{Role: core.RoleAssistant, Content: string(r)},
				}},
			}:
			}
		}
		out <- StreamChunk{
			Provider: m.name,
			Model:    req.Model,
			Choices:  []StreamChoice{{FinishReason: "stop"}},
		}
	}()
	return out, errCh
}
