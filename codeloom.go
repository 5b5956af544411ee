// Package codeloom provides a high-level façade over the agent engine and
// conversation store for building IDE-style coding assistants. Most
// applications interact with this package by:
//  1. Creating a Codeloom via New() (optionally overriding the default
//     in-memory store, provider client, tools and logger)
//  2. Calling Step for buffered turns or StepStream for event sequences
//  3. Reading or forking the conversation tree through the store accessors
//
// The façade delegates orchestration to agent.Engine while keeping setup
// ergonomics concise. All defaults are safe for local development and
// testing; production deployments typically supply the JSON or SQLite store
// and a structured logger.
package codeloom

import (
	"context"

	"github.com/codeloom-ai/codeloom/agent"
	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/logging"
	"github.com/codeloom-ai/codeloom/provider"
	"github.com/codeloom-ai/codeloom/store"
	"github.com/codeloom-ai/codeloom/tool"
)

// Options configures the Codeloom instance.
type Options struct {
	// EngineConfig tunes the step loop (tool rounds, context window,
	// temperature). Zero values take engine defaults.
	EngineConfig agent.Config

	// Store persists conversations; defaults to an in-memory store.
	Store core.ConversationStore

	// Client is the provider backend; defaults to a mock client so examples
	// and tests run without credentials.
	Client provider.Client

	// Executor runs tool calls when EngineConfig.EnableTools is set.
	Executor *tool.Executor

	// Logger defaults to NoOp.
	Logger logging.Logger
}

// Codeloom is the high-level façade aggregating the engine and its store.
type Codeloom struct {
	opts   Options
	engine *agent.Engine
}

// New creates a Codeloom instance with optional overrides. Any unset
// collaborator is initialized with a local default.
func New(optFns ...func(o *Options)) *Codeloom {
	opts := Options{
		Store:  store.NewInMemoryStore(),
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Client == nil {
		opts.Client = provider.NewMockClient("mock")
	}

	engine := agent.New(opts.Store, opts.Client, opts.EngineConfig, func(o *agent.Options) {
		o.Executor = opts.Executor
		o.Logger = opts.Logger
	})
	return &Codeloom{opts: opts, engine: engine}
}

// Step executes one buffered turn.
func (c *Codeloom) Step(ctx context.Context, in agent.StepInput) (*agent.StepResult, error) {
	return c.engine.Step(ctx, in)
}

// StepStream executes one turn as an ordered status/delta/final sequence.
func (c *Codeloom) StepStream(ctx context.Context, in agent.StepInput) (<-chan agent.StreamEvent, <-chan error) {
	return c.engine.StepStream(ctx, in)
}

// Store exposes the conversation store for listing, forking and deletion.
func (c *Codeloom) Store() core.ConversationStore { return c.opts.Store }

// Engine exposes the underlying engine.
func (c *Codeloom) Engine() *agent.Engine { return c.engine }
