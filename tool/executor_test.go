package tool

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeloom-ai/codeloom/core"
)

func echoTool(name string, invocations *int) Tool {
	return Tool{
		Def: core.ToolDef{
			Name:        name,
			Description: "echoes its input",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"text": map[string]any{"type": "string"},
				},
				"required": []string{"text"},
			},
		},
		Fn: func(args map[string]any) (string, error) {
			*invocations++
			return fmt.Sprintf("echo: %v", args["text"]), nil
		},
	}
}

func TestExecutorMemoizesIdenticalCalls(t *testing.T) {
	var invocations int
	e := NewExecutor([]Tool{echoTool("echo", &invocations)})

	// Same name, deep-equal arguments, distinct call ids.
	first, err := e.Execute(core.ToolCall{ID: "call-1", Name: "echo", Arguments: map[string]any{"text": "hi"}})
	require.NoError(t, err)
	second, err := e.Execute(core.ToolCall{ID: "call-2", Name: "echo", Arguments: map[string]any{"text": "hi"}})
	require.NoError(t, err)

	assert.Equal(t, first.Content, second.Content)
	assert.Equal(t, "call-2", second.CallID, "call id must track the request, not the cache entry")
	assert.Equal(t, 1, invocations, "underlying tool must run at most once")

	_, err = e.Execute(core.ToolCall{ID: "call-3", Name: "echo", Arguments: map[string]any{"text": "other"}})
	require.NoError(t, err)
	assert.Equal(t, 2, invocations)
}

func TestExecutorMemoizesErrors(t *testing.T) {
	var invocations int
	failing := Tool{
		Def: core.ToolDef{
			Name:       "fail",
			Parameters: map[string]any{"type": "object", "properties": map[string]any{}},
		},
		Fn: func(args map[string]any) (string, error) {
			invocations++
			return "", errors.New("boom")
		},
	}
	e := NewExecutor([]Tool{failing})

	_, err1 := e.Execute(core.ToolCall{ID: "a", Name: "fail", Arguments: map[string]any{}})
	_, err2 := e.Execute(core.ToolCall{ID: "b", Name: "fail", Arguments: map[string]any{}})
	require.Error(t, err1)
	require.Error(t, err2)
	assert.Equal(t, 1, invocations)
}

func TestExecutorUnknownTool(t *testing.T) {
	e := NewExecutor(nil)
	_, err := e.Execute(core.ToolCall{ID: "a", Name: "nope", Arguments: map[string]any{}})
	require.Error(t, err)

	var toolErr *core.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "UNKNOWN_TOOL", toolErr.Code)
}

func TestExecutorValidatesArguments(t *testing.T) {
	var invocations int
	e := NewExecutor([]Tool{echoTool("echo", &invocations)})

	_, err := e.Execute(core.ToolCall{ID: "a", Name: "echo", Arguments: map[string]any{}})
	require.Error(t, err)

	var toolErr *core.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "VALIDATION_ERROR", toolErr.Code)
	assert.Zero(t, invocations)
}

func TestExecutorDefsSorted(t *testing.T) {
	var n int
	e := NewExecutor([]Tool{echoTool("zeta", &n), echoTool("alpha", &n)})
	defs := e.Defs()
	require.Len(t, defs, 2)
	assert.Equal(t, "alpha", defs[0].Name)
	assert.Equal(t, "zeta", defs[1].Name)
}
