package tool

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/internal/util"
	"github.com/codeloom-ai/codeloom/logging"
)

// Options configure an Executor.
type Options struct {
	Logger logging.Logger
}

type cachedResult struct {
	content string
	err     error
}

// Executor dispatches tool calls requested by the model. Results are
// memoized per (name, canonicalized arguments) for the executor's lifetime:
// tools are expected to be side-effect-observing but idempotent within a
// session, so re-reading the same file never re-runs the underlying
// operation. Safe for use from a single step at a time; the cache itself is
// guarded for concurrent executors sharing it by accident.
type Executor struct {
	tools  map[string]Tool
	logger logging.Logger

	mu    sync.Mutex
	cache map[string]cachedResult
}

// NewExecutor builds an Executor over the given tools.
func NewExecutor(tools []Tool, optFns ...func(o *Options)) *Executor {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	byName := make(map[string]Tool, len(tools))
	for _, t := range tools {
		byName[t.Def.Name] = t
	}
	return &Executor{tools: byName, logger: opts.Logger, cache: map[string]cachedResult{}}
}

// NewDefaultExecutor builds an Executor over the built-in coding tools,
// sandboxed to workspaceRoot.
func NewDefaultExecutor(workspaceRoot string, optFns ...func(o *Options)) *Executor {
	return NewExecutor(DefaultTools(&Sandbox{Root: workspaceRoot}), optFns...)
}

// Defs returns the model-facing definitions of all registered tools.
func (e *Executor) Defs() []core.ToolDef {
	defs := make([]core.ToolDef, 0, len(e.tools))
	for _, name := range sortedNames(e.tools) {
		defs = append(defs, e.tools[name].Def)
	}
	return defs
}

// Execute runs one tool call. Failures (unknown tool, invalid arguments,
// execution error) come back as errors for the engine to fold into a
// tool-role message; they never panic or abort the round.
func (e *Executor) Execute(call core.ToolCall) (core.ToolResult, error) {
	key := cacheKey(call)

	e.mu.Lock()
	if cached, ok := e.cache[key]; ok {
		e.mu.Unlock()
		e.logger.Debug("tool.call.cached", "tool", call.Name)
		return core.ToolResult{CallID: call.ID, Content: cached.content}, cached.err
	}
	e.mu.Unlock()

	start := time.Now()
	content, err := e.run(call)

	e.mu.Lock()
	e.cache[key] = cachedResult{content: content, err: err}
	e.mu.Unlock()

	if sl, ok := e.logger.(*logging.StepLogger); ok {
		sl.LogToolCall(call.Name, time.Since(start), false, err)
	} else if err != nil {
		e.logger.Error("tool.call.failed", "tool", call.Name, "error", err.Error())
	} else {
		e.logger.Info("tool.call.success", "tool", call.Name, "duration_ms", time.Since(start).Milliseconds())
	}

	return core.ToolResult{CallID: call.ID, Content: content}, err
}

func (e *Executor) run(call core.ToolCall) (string, error) {
	t, ok := e.tools[call.Name]
	if !ok {
		return "", core.NewToolError(call.Name, "tool not registered", "UNKNOWN_TOOL")
	}
	if err := util.ValidateParameters(call.Arguments, t.Def.Parameters); err != nil {
		return "", core.NewToolError(call.Name, fmt.Sprintf("parameter validation failed: %v", err), "VALIDATION_ERROR")
	}
	content, err := t.Fn(call.Arguments)
	if err != nil {
		if toolErr, ok := err.(*core.ToolError); ok {
			return "", toolErr
		}
		return "", core.NewToolError(call.Name, err.Error(), "EXECUTION_ERROR")
	}
	return content, nil
}

// cacheKey canonicalizes arguments; json.Marshal sorts map keys, so two
// deep-equal argument maps always produce the same key.
func cacheKey(call core.ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil {
		args = []byte(fmt.Sprintf("%v", call.Arguments))
	}
	return call.Name + "\x00" + string(args)
}

func sortedNames(tools map[string]Tool) []string {
	names := make([]string, 0, len(tools))
	for name := range tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
