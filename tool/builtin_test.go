package tool

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeloom-ai/codeloom/core"
)

func writeWorkspace(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, content := range files {
		path := filepath.Join(root, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return root
}

func TestSandboxResolve(t *testing.T) {
	sb := &Sandbox{Root: t.TempDir()}

	resolved, err := sb.Resolve("sub/file.go")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(resolved, sb.Root))

	_, err = sb.Resolve("../outside.txt")
	assert.ErrorContains(t, err, "escapes workspace root")

	_, err = sb.Resolve("/etc/passwd")
	assert.ErrorContains(t, err, "absolute path not allowed")

	_, err = sb.Resolve("  ")
	assert.ErrorContains(t, err, "empty path")

	open := &Sandbox{Root: t.TempDir(), AllowAbsolute: true}
	resolved, err = open.Resolve("/etc/hosts")
	require.NoError(t, err)
	assert.Equal(t, "/etc/hosts", resolved)
}

func TestReadFileTool(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"main.go": "package main\n"})
	e := NewDefaultExecutor(root)

	result, err := e.Execute(core.ToolCall{ID: "1", Name: "read_file", Arguments: map[string]any{"path": "main.go"}})
	require.NoError(t, err)
	assert.Equal(t, "package main\n", result.Content)

	_, err = e.Execute(core.ToolCall{ID: "2", Name: "read_file", Arguments: map[string]any{"path": "../escape.txt"}})
	require.Error(t, err)
	var toolErr *core.ToolError
	require.ErrorAs(t, err, &toolErr)
	assert.Equal(t, "EXECUTION_ERROR", toolErr.Code)
}

func TestListFilesTool(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"a.go":       "package a",
		"b.txt":      "text",
		"pkg/c.go":   "package pkg",
		"pkg/d.yaml": "d: 1",
	})
	e := NewDefaultExecutor(root)

	result, err := e.Execute(core.ToolCall{ID: "1", Name: "list_files", Arguments: map[string]any{
		"directory": ".",
		"pattern":   "*.go",
	}})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "a.go")
	assert.Contains(t, result.Content, filepath.Join("pkg", "c.go"))
	assert.NotContains(t, result.Content, "b.txt")
}

func TestSearchCodeTool(t *testing.T) {
	root := writeWorkspace(t, map[string]string{
		"x.go": "package x\nfunc Hello() {}\n",
		"y.go": "package y\nfunc Hello() {}\nfunc Bye() {}\n",
	})
	e := NewDefaultExecutor(root)

	result, err := e.Execute(core.ToolCall{ID: "1", Name: "search_code", Arguments: map[string]any{
		"query": "func Hello",
	}})
	require.NoError(t, err)
	lines := strings.Split(result.Content, "\n")
	assert.Len(t, lines, 2)
	assert.Contains(t, lines[0], ":2:")

	result, err = e.Execute(core.ToolCall{ID: "2", Name: "search_code", Arguments: map[string]any{
		"query":       "func",
		"max_results": 1.0,
	}})
	require.NoError(t, err)
	assert.Len(t, strings.Split(result.Content, "\n"), 1)
}

func TestProposeEditTool(t *testing.T) {
	root := writeWorkspace(t, map[string]string{"f.txt": "one\ntwo\nthree\n"})
	e := NewDefaultExecutor(root)

	result, err := e.Execute(core.ToolCall{ID: "1", Name: "propose_edit", Arguments: map[string]any{
		"path":        "f.txt",
		"start_line":  2.0,
		"end_line":    2.0,
		"new_content": "TWO",
	}})
	require.NoError(t, err)
	assert.Contains(t, result.Content, "--- a/f.txt")
	assert.Contains(t, result.Content, "+++ b/f.txt")
	assert.Contains(t, result.Content, "-two")
	assert.Contains(t, result.Content, "+TWO")

	// The file itself is untouched.
	data, err := os.ReadFile(filepath.Join(root, "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))

	// Out-of-range edits are tool errors.
	_, err = e.Execute(core.ToolCall{ID: "2", Name: "propose_edit", Arguments: map[string]any{
		"path":        "f.txt",
		"start_line":  0.0,
		"end_line":    1.0,
		"new_content": "x",
	}})
	require.Error(t, err)
}
