// Package tool implements the tool execution boundary the agent engine
// depends on: named tools with JSON-Schema argument validation, an Executor
// with per-call memoization, and filesystem sandboxing for the built-in
// coding tools (read_file, list_files, search_code, propose_edit).
package tool

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/codeloom-ai/codeloom/core"
)

// Func is the implementation of one tool: already-validated arguments in,
// text result out. Implementations should be idempotent within a session;
// the Executor memoizes on that assumption.
type Func func(args map[string]any) (string, error)

// Tool pairs a model-facing definition with its implementation.
type Tool struct {
	Def core.ToolDef
	Fn  Func
}

// Sandbox confines tool filesystem access to a workspace root. A resolved
// path escaping the root is a reported tool error, not a crash.
type Sandbox struct {
	// Root is the workspace directory every relative path resolves under.
	Root string
	// AllowAbsolute permits absolute paths that escape Root.
	AllowAbsolute bool
}

// Resolve validates p and returns the absolute path to operate on.
func (s *Sandbox) Resolve(p string) (string, error) {
	p = strings.TrimSpace(p)
	if p == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(p) {
		if s.AllowAbsolute {
			return filepath.Clean(p), nil
		}
		return "", fmt.Errorf("absolute path not allowed: %s", p)
	}
	root, err := filepath.Abs(s.Root)
	if err != nil {
		return "", fmt.Errorf("resolve workspace root: %w", err)
	}
	resolved := filepath.Clean(filepath.Join(root, p))
	rel, err := filepath.Rel(root, resolved)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path escapes workspace root: %s", p)
	}
	return resolved, nil
}
