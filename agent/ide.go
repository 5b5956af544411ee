package agent

import (
	"context"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/logging"
	"github.com/codeloom-ai/codeloom/provider"
	"github.com/codeloom-ai/codeloom/tool"
)

const ideHelperSystemPrompt = `You are an IDE coding assistant. Answer questions about the user's codebase precisely and concisely. When tools are available, use them to inspect files before answering instead of guessing. Prefer minimal, focused edits and always explain what a proposed change does.`

// IDEHelperOptions configure an IDEHelper.
type IDEHelperOptions struct {
	// Model overrides the logical model name.
	Model string

	// Temperature overrides the helper's deterministic default.
	Temperature float64

	// EnableTools activates the coding tool loop. When no Executor is given,
	// a sandboxed default over WorkspaceRoot is created.
	EnableTools   bool
	Executor      *tool.Executor
	WorkspaceRoot string

	Logger logging.Logger
}

// IDEHelper is the convenience wrapper for IDE-style assistants: an Engine
// preconfigured with the "ide-helper" agent type, a low temperature, and the
// built-in coding tools.
type IDEHelper struct {
	engine *Engine
}

// NewIDEHelper builds an IDEHelper over a store and a provider client.
func NewIDEHelper(store core.ConversationStore, client provider.Client, optFns ...func(o *IDEHelperOptions)) *IDEHelper {
	opts := IDEHelperOptions{
		Temperature: DefaultTemperature,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	executor := opts.Executor
	if opts.EnableTools && executor == nil {
		executor = tool.NewDefaultExecutor(opts.WorkspaceRoot, func(o *tool.Options) {
			o.Logger = opts.Logger
		})
	}

	cfg := Config{
		AgentType:    "ide-helper",
		Provider:     client.Name(),
		Model:        opts.Model,
		SystemPrompt: ideHelperSystemPrompt,
		EnableTools:  opts.EnableTools,
		Temperature:  opts.Temperature,
	}
	engine := New(store, client, cfg, func(o *Options) {
		o.Executor = executor
		o.Logger = opts.Logger
	})
	return &IDEHelper{engine: engine}
}

// ChatInput is one IDE chat turn.
type ChatInput struct {
	UserInput      string
	ConversationID string
	FocusMessageID string

	// FilePath is the file the user is editing; recorded as message metadata
	// for UI context, never sent to the provider as content.
	FilePath string

	Meta map[string]any
}

func (h *IDEHelper) stepInput(in ChatInput) StepInput {
	meta := core.CloneMeta(in.Meta)
	if in.FilePath != "" {
		meta["file_path"] = in.FilePath
	}
	return StepInput{
		ConversationID: in.ConversationID,
		UserInput:      in.UserInput,
		Meta:           meta,
		FocusMessageID: in.FocusMessageID,
	}
}

// Chat executes one buffered turn.
func (h *IDEHelper) Chat(ctx context.Context, in ChatInput) (*StepResult, error) {
	return h.engine.Step(ctx, h.stepInput(in))
}

// ChatStream executes one turn as an event sequence.
func (h *IDEHelper) ChatStream(ctx context.Context, in ChatInput) (<-chan StreamEvent, <-chan error) {
	return h.engine.StepStream(ctx, h.stepInput(in))
}

// CreateConversation explicitly creates an empty conversation, ahead of the
// implicit creation Chat performs when no id is given.
func (h *IDEHelper) CreateConversation(title string, meta map[string]any) (*core.Conversation, error) {
	convMeta := core.CloneMeta(meta)
	if title != "" {
		convMeta["title"] = title
	}
	return h.engine.store.CreateConversation(h.engine.cfg.AgentType, convMeta)
}

// Engine exposes the underlying engine for callers that need raw steps.
func (h *IDEHelper) Engine() *Engine { return h.engine }
