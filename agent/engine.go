package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/logging"
	"github.com/codeloom-ai/codeloom/provider"
	"github.com/codeloom-ai/codeloom/tool"
)

const (
	// HardMaxToolRounds caps MaxToolRounds regardless of configuration.
	HardMaxToolRounds = 20

	// DefaultMaxToolRounds is used when Config.MaxToolRounds is zero.
	DefaultMaxToolRounds = 5

	// DefaultMaxContextMessages bounds the reconstructed path length.
	DefaultMaxContextMessages = 20

	// DefaultStreamChunkSize is the synthetic delta size, in runes, used
	// when a buffered tool-loop result is replayed as a stream.
	DefaultStreamChunkSize = 64

	// DefaultTemperature favors deterministic answers for coding tasks.
	DefaultTemperature = 0.3
)

// forcedFinalDirective is appended as a system message when the tool loop
// exhausts its round budget; the follow-up call runs with tools disabled.
const forcedFinalDirective = "Based on the tool results above, produce your final answer now. Do not request any more tools."

// Config fixes an Engine's behavior for its lifetime.
type Config struct {
	// AgentType tags conversations created by this engine ("ide-helper", ...).
	AgentType string

	// Provider and Model name the backend; Model is a logical name resolved
	// by the provider registry. Both default from the client when empty.
	Provider string
	Model    string

	// SystemPrompt occupies position 0 of every provider message list and is
	// never truncated away.
	SystemPrompt string

	// EnableTools turns on the tool-round loop when an executor is present.
	EnableTools   bool
	MaxToolRounds int

	Temperature float64
	TopP        float64

	// MaxContextMessages bounds how many path entries are sent upstream;
	// older entries are dropped first.
	MaxContextMessages int

	// StreamChunkSize sizes the synthetic deltas emitted for buffered
	// tool-mode results in StepStream.
	StreamChunkSize int
}

// Options carry the optional collaborators of an Engine.
type Options struct {
	// Executor runs tool calls. Required for tool mode to activate.
	Executor *tool.Executor

	// ToolDefs override the schema advertised to the provider; defaults to
	// Executor.Defs().
	ToolDefs []core.ToolDef

	Logger logging.Logger
}

// Engine drives one conversation step at a time. A single Step or StepStream
// invocation is sequential and single-flight: tool calls within a turn
// execute strictly in the order the model requested them, and no two rounds
// overlap. Engines are safe for concurrent use across conversations; two
// engines stepping the same conversation race on the summary touch only.
type Engine struct {
	store    core.ConversationStore
	client   provider.Client
	executor *tool.Executor
	toolDefs []core.ToolDef
	cfg      Config
	logger   logging.Logger
}

// New builds an Engine over a store and a provider client.
func New(store core.ConversationStore, client provider.Client, cfg Config, optFns ...func(o *Options)) *Engine {
	opts := Options{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}

	if cfg.AgentType == "" {
		cfg.AgentType = "ide-helper"
	}
	if cfg.Provider == "" {
		cfg.Provider = client.Name()
	}
	if cfg.Model == "" {
		cfg.Model = provider.DefaultLogicalModel
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.MaxToolRounds > HardMaxToolRounds {
		cfg.MaxToolRounds = HardMaxToolRounds
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.MaxContextMessages <= 0 {
		cfg.MaxContextMessages = DefaultMaxContextMessages
	}
	if cfg.StreamChunkSize <= 0 {
		cfg.StreamChunkSize = DefaultStreamChunkSize
	}

	toolDefs := opts.ToolDefs
	if toolDefs == nil && opts.Executor != nil {
		toolDefs = opts.Executor.Defs()
	}

	return &Engine{
		store:    store,
		client:   client,
		executor: opts.Executor,
		toolDefs: toolDefs,
		cfg:      cfg,
		logger:   opts.Logger,
	}
}

// Config returns the engine's effective configuration after defaulting.
func (e *Engine) Config() Config { return e.cfg }

// StepInput is one user turn.
type StepInput struct {
	// ConversationID selects an existing conversation; empty creates one.
	ConversationID string

	UserInput string
	Meta      map[string]any

	// FocusMessageID anchors the new turn to an arbitrary prior message,
	// forking away from the chronologically-last leaf.
	FocusMessageID string
}

// StepResult is the durable outcome of one turn.
type StepResult struct {
	Conversation     *core.Conversation
	UserMessage      *core.MessageRecord
	AssistantMessage *core.MessageRecord
}

// Step executes one buffered turn: resolve the conversation and leaf,
// rebuild and truncate the path, persist the user message, call the
// provider (looping through tools when enabled), and persist the assistant
// answer. A step-fatal provider or store error leaves the user message
// persisted with no assistant message.
func (e *Engine) Step(ctx context.Context, in StepInput) (*StepResult, error) {
	start := time.Now()

	prep, err := e.prepare(in)
	if err != nil {
		return nil, err
	}

	var assistant *core.MessageRecord
	if e.toolsEnabled() {
		assistant, err = e.runWithTools(ctx, prep, nil)
	} else {
		assistant, err = e.runSimple(ctx, prep)
	}

	if sl, ok := e.logger.(*logging.StepLogger); ok {
		rounds := 0
		if assistant != nil {
			if n, ok := assistant.Meta["tool_rounds"].(int); ok {
				rounds = n
			}
		}
		sl.LogStep(prep.conv.ID, rounds, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	return &StepResult{Conversation: prep.conv, UserMessage: prep.userRec, AssistantMessage: assistant}, nil
}

func (e *Engine) toolsEnabled() bool {
	return e.cfg.EnableTools && e.executor != nil
}

// stepState is the shared preamble of Step and StepStream: everything up to
// and including the durable user message.
type stepState struct {
	conv    *core.Conversation
	userRec *core.MessageRecord
	// messages is the provider-facing list: [system] + truncated path + user.
	messages []provider.ChatMessage
}

func (e *Engine) prepare(in StepInput) (*stepState, error) {
	var conv *core.Conversation
	var err error
	if in.ConversationID == "" {
		convMeta := core.CloneMeta(in.Meta)
		convMeta["provider"] = e.cfg.Provider
		convMeta["model"] = e.cfg.Model
		conv, err = e.store.CreateConversation(e.cfg.AgentType, convMeta)
		if err != nil {
			return nil, err
		}
		e.logger.Info("engine.conversation.created", "conversation_id", conv.ID)
	} else {
		conv, err = e.store.GetConversation(in.ConversationID)
		if err != nil {
			return nil, err
		}
	}

	leaf, err := e.resolveLeaf(conv.ID, in.FocusMessageID)
	if err != nil {
		return nil, err
	}
	path, err := e.buildPath(leaf)
	if err != nil {
		return nil, err
	}
	if len(path) > e.cfg.MaxContextMessages {
		path = path[len(path)-e.cfg.MaxContextMessages:]
		e.logger.Debug("engine.context.truncated", "kept", e.cfg.MaxContextMessages)
	}

	messages := make([]provider.ChatMessage, 0, len(path)+2)
	messages = append(messages, provider.ChatMessage{Role: core.RoleSystem, Content: e.cfg.SystemPrompt})
	for _, rec := range path {
		messages = append(messages, provider.ChatMessage{Role: rec.Role, Content: rec.Content, Meta: rec.Meta})
	}
	messages = append(messages, provider.ChatMessage{Role: core.RoleUser, Content: in.UserInput, Meta: in.Meta})

	// The user message goes down before the first provider call so a crash
	// mid-call still leaves a durable record of what was asked.
	userRec := &core.MessageRecord{
		ID:             core.NewMessageID(),
		ConversationID: conv.ID,
		Role:           core.RoleUser,
		Content:        in.UserInput,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
		Meta:           core.CloneMeta(in.Meta),
	}
	if leaf != nil {
		userRec.ParentID = leaf.ID
		userRec.Depth = leaf.Depth + 1
	}
	if err := e.store.AddMessage(userRec); err != nil {
		return nil, err
	}

	return &stepState{conv: conv, userRec: userRec, messages: messages}, nil
}

// resolveLeaf picks the message the new turn extends: the focus message when
// given, otherwise the chronologically-last message, otherwise nil for an
// empty conversation.
func (e *Engine) resolveLeaf(conversationID, focusMessageID string) (*core.MessageRecord, error) {
	if focusMessageID != "" {
		return e.store.GetMessage(focusMessageID)
	}
	msgs, err := e.store.ListMessages(conversationID)
	if err != nil {
		return nil, err
	}
	if len(msgs) == 0 {
		return nil, nil
	}
	return msgs[len(msgs)-1], nil
}

// buildPath follows ParentID links backward from leaf and reverses. A
// dangling link surfaces as NotFound; that is a data-integrity failure, not
// a recoverable condition.
func (e *Engine) buildPath(leaf *core.MessageRecord) ([]*core.MessageRecord, error) {
	var path []*core.MessageRecord
	current := leaf
	for current != nil {
		path = append(path, current)
		if current.IsRoot() {
			break
		}
		parent, err := e.store.GetMessage(current.ParentID)
		if err != nil {
			return nil, err
		}
		current = parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path, nil
}

func (e *Engine) runSimple(ctx context.Context, prep *stepState) (*core.MessageRecord, error) {
	req := provider.ChatRequest{
		Provider:    e.cfg.Provider,
		Model:       e.cfg.Model,
		Messages:    prep.messages,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
	}

	result, err := e.chat(ctx, req)
	if err != nil {
		return nil, err
	}
	meta := map[string]any{
		"provider": e.cfg.Provider,
		"model":    e.cfg.Model,
		"usage":    usageMeta(result.Usage),
	}
	return e.persistAssistant(prep, result.Choices[0].Message.Content, meta)
}

// toolLoopOutcome is the terminal content of a tool-round loop before it is
// persisted. Splitting the outcome from persistence lets StepStream replay
// the content as synthetic deltas first.
type toolLoopOutcome struct {
	content string
	meta    map[string]any
}

// runToolLoop drives rounds 1..MaxToolRounds with tool_choice auto. A round
// without tool calls is the terminal response. On exhaustion a directive
// system message forces a conclusive answer with tools disabled, so the loop
// always terminates with content to persist. status, when non-nil, receives
// UI-only progress lines.
func (e *Engine) runToolLoop(ctx context.Context, prep *stepState, status func(text string)) (*toolLoopOutcome, error) {
	emit := func(text string) {
		if status != nil {
			status(text)
		}
	}
	messages := make([]provider.ChatMessage, len(prep.messages))
	copy(messages, prep.messages)
	maxRounds := e.cfg.MaxToolRounds

	for round := 1; round <= maxRounds; round++ {
		e.logger.Debug("engine.tool_round", "round", round, "max", maxRounds)
		emit(fmt.Sprintf("thinking (round %d/%d)", round, maxRounds))

		result, err := e.chat(ctx, provider.ChatRequest{
			Provider:    e.cfg.Provider,
			Model:       e.cfg.Model,
			Messages:    messages,
			Temperature: e.cfg.Temperature,
			TopP:        e.cfg.TopP,
			Tools:       e.toolDefs,
			ToolChoice:  provider.ToolChoiceAuto,
		})
		if err != nil {
			return nil, err
		}

		assistantMsg := result.Choices[0].Message
		if len(assistantMsg.ToolCalls) == 0 {
			return &toolLoopOutcome{
				content: assistantMsg.Content,
				meta: map[string]any{
					"provider":    e.cfg.Provider,
					"model":       e.cfg.Model,
					"usage":       usageMeta(result.Usage),
					"tool_rounds": round,
				},
			}, nil
		}

		// Execute every requested call in order; a failure becomes
		// model-visible tool output and never aborts the round.
		messages = append(messages, assistantMsg)
		for _, call := range assistantMsg.ToolCalls {
			emit(describeToolCall(call))
			toolResult, err := e.executor.Execute(call)
			content := toolResult.Content
			if err != nil {
				e.logger.Warn("engine.tool_call.failed", "tool", call.Name, "error", err.Error())
				content = fmt.Sprintf("Error: %v", err)
			}
			messages = append(messages, provider.ChatMessage{
				Role:       core.RoleTool,
				Content:    content,
				ToolCallID: call.ID,
			})
		}
	}

	e.logger.Warn("engine.tool_rounds.exhausted", "max", maxRounds)
	emit("finalizing answer")
	messages = append(messages, provider.ChatMessage{Role: core.RoleSystem, Content: forcedFinalDirective})
	result, err := e.chat(ctx, provider.ChatRequest{
		Provider:    e.cfg.Provider,
		Model:       e.cfg.Model,
		Messages:    messages,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
		Tools:       e.toolDefs,
		ToolChoice:  provider.ToolChoiceNone,
	})
	if err != nil {
		return nil, err
	}
	return &toolLoopOutcome{
		content: result.Choices[0].Message.Content,
		meta: map[string]any{
			"provider":     e.cfg.Provider,
			"model":        e.cfg.Model,
			"usage":        usageMeta(result.Usage),
			"tool_rounds":  maxRounds,
			"forced_final": true,
		},
	}, nil
}

func (e *Engine) runWithTools(ctx context.Context, prep *stepState, status func(text string)) (*core.MessageRecord, error) {
	outcome, err := e.runToolLoop(ctx, prep, status)
	if err != nil {
		return nil, err
	}
	return e.persistAssistant(prep, outcome.content, outcome.meta)
}

func (e *Engine) persistAssistant(prep *stepState, content string, meta map[string]any) (*core.MessageRecord, error) {
	rec := &core.MessageRecord{
		ID:             core.NewMessageID(),
		ConversationID: prep.conv.ID,
		Role:           core.RoleAssistant,
		Content:        content,
		ParentID:       prep.userRec.ID,
		Depth:          prep.userRec.Depth + 1,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
		Meta:           meta,
	}
	if err := e.store.AddMessage(rec); err != nil {
		return nil, err
	}
	return rec, nil
}

// chat issues one buffered provider call with latency/usage logging.
func (e *Engine) chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResult, error) {
	start := time.Now()
	result, err := e.client.Chat(ctx, req)
	if sl, ok := e.logger.(*logging.StepLogger); ok {
		tokens := 0
		if err == nil && result.Usage != nil {
			tokens = result.Usage.TotalTokens
		}
		sl.LogProviderCall(req.Provider, req.Model, tokens, time.Since(start), err)
	}
	if err != nil {
		return nil, err
	}
	if len(result.Choices) == 0 {
		return nil, &core.APIError{Provider: req.Provider, Body: "provider returned no choices"}
	}
	return result, nil
}

func usageMeta(u *provider.Usage) map[string]any {
	if u == nil {
		return map[string]any{}
	}
	return map[string]any{
		"prompt_tokens":     u.PromptTokens,
		"completion_tokens": u.CompletionTokens,
		"total_tokens":      u.TotalTokens,
	}
}
