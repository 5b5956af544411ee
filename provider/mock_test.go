package provider

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClientChat(t *testing.T) {
	m := NewMockClient("mock")
	m.AddResponse("ping", "pong")

	result, err := m.Chat(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Choices, 1)
	assert.Equal(t, "pong", result.Choices[0].Message.Content)

	result, err = m.Chat(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "unscripted"}},
	})
	require.NoError(t, err)
	assert.Contains(t, result.Choices[0].Message.Content, "unscripted")
}

func TestMockClientChatStream(t *testing.T) {
	m := NewMockClient("mock")
	m.AddResponse("ping", "pong")

	chunks, errs := m.ChatStream(context.Background(), ChatRequest{
		Messages: []ChatMessage{{Role: "user", Content: "ping"}},
	})

	var content strings.Builder
	var finish string
	for chunk := range chunks {
		for _, choice := range chunk.Choices {
			content.WriteString(choice.Delta.Content)
			if choice.FinishReason != "" {
				finish = choice.FinishReason
			}
		}
	}
	require.NoError(t, <-errs)
	assert.Equal(t, "pong", content.String())
	assert.Equal(t, "stop", finish)
}
