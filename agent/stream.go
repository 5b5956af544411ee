package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/provider"
)

// StreamEventKind discriminates the three event variants of StepStream.
type StreamEventKind string

const (
	// StreamStatus is human-readable progress ("calling tool read_file").
	// UI-only, never persisted.
	StreamStatus StreamEventKind = "status"
	// StreamDelta carries a partial piece of the assistant's answer text.
	StreamDelta StreamEventKind = "delta"
	// StreamFinal terminates the sequence, carrying the persisted records.
	StreamFinal StreamEventKind = "final"
)

// StreamEvent is one element of the ordered event sequence produced by
// StepStream. Text is set for status and delta events; Conversation,
// UserMessage and AssistantMessage are set on the single final event.
type StreamEvent struct {
	Kind             StreamEventKind
	Text             string
	Conversation     *core.Conversation
	UserMessage      *core.MessageRecord
	AssistantMessage *core.MessageRecord
}

// StepStream executes one turn like Step but exposes it as a lazily-driven
// event sequence: zero or more status events, zero or more delta events,
// then exactly one final event carrying the persisted assistant record.
//
// In simple mode the terminal provider call uses the streaming transport and
// deltas arrive live. In tool mode intermediate rounds run buffered (true
// per-round streaming would double provider call volume) and only the last
// round's content is replayed as fixed-size synthetic deltas.
//
// The event channel closes after the final event; a step-fatal error is
// delivered on the error channel instead, leaving the user message persisted
// with no assistant message.
func (e *Engine) StepStream(ctx context.Context, in StepInput) (<-chan StreamEvent, <-chan error) {
	events := make(chan StreamEvent)
	errs := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errs)

		prep, err := e.prepare(in)
		if err != nil {
			errs <- err
			return
		}

		if e.toolsEnabled() {
			err = e.streamWithTools(ctx, prep, events)
		} else {
			err = e.streamSimple(ctx, prep, events)
		}
		if err != nil {
			errs <- err
		}
	}()

	return events, errs
}

// streamSimple drives a live provider stream, forwarding content deltas and
// persisting the accumulated text once the stream ends cleanly.
func (e *Engine) streamSimple(ctx context.Context, prep *stepState, events chan<- StreamEvent) error {
	req := provider.ChatRequest{
		Provider:    e.cfg.Provider,
		Model:       e.cfg.Model,
		Messages:    prep.messages,
		Temperature: e.cfg.Temperature,
		TopP:        e.cfg.TopP,
	}

	chunks, errCh := e.client.ChatStream(ctx, req)

	var content string
	var usage *provider.Usage
	for chunk := range chunks {
		if chunk.Usage != nil {
			usage = chunk.Usage
		}
		for _, choice := range chunk.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			content += choice.Delta.Content
			if err := send(ctx, events, StreamEvent{Kind: StreamDelta, Text: choice.Delta.Content}); err != nil {
				return err
			}
		}
	}
	if err := <-errCh; err != nil {
		return err
	}

	meta := map[string]any{
		"provider": e.cfg.Provider,
		"model":    e.cfg.Model,
		"usage":    usageMeta(usage),
	}
	rec, err := e.persistAssistant(prep, content, meta)
	if err != nil {
		return err
	}
	return sendFinal(ctx, events, prep, rec)
}

// streamWithTools runs the buffered tool loop, surfacing round and tool-call
// progress as status events, then slices the terminal content into synthetic
// deltas before the final event.
func (e *Engine) streamWithTools(ctx context.Context, prep *stepState, events chan<- StreamEvent) error {
	var sendErr error
	status := func(text string) {
		if sendErr != nil {
			return
		}
		sendErr = send(ctx, events, StreamEvent{Kind: StreamStatus, Text: text})
	}

	outcome, err := e.runToolLoop(ctx, prep, status)
	if err != nil {
		return err
	}
	if sendErr != nil {
		return sendErr
	}

	for _, piece := range sliceChunks(outcome.content, e.cfg.StreamChunkSize) {
		if err := send(ctx, events, StreamEvent{Kind: StreamDelta, Text: piece}); err != nil {
			return err
		}
	}

	rec, err := e.persistAssistant(prep, outcome.content, outcome.meta)
	if err != nil {
		return err
	}
	return sendFinal(ctx, events, prep, rec)
}

func sendFinal(ctx context.Context, events chan<- StreamEvent, prep *stepState, assistant *core.MessageRecord) error {
	return send(ctx, events, StreamEvent{
		Kind:             StreamFinal,
		Conversation:     prep.conv,
		UserMessage:      prep.userRec,
		AssistantMessage: assistant,
	})
}

func send(ctx context.Context, events chan<- StreamEvent, ev StreamEvent) error {
	select {
	case events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sliceChunks splits s into rune-safe pieces of at most size runes.
func sliceChunks(s string, size int) []string {
	if s == "" {
		return nil
	}
	runes := []rune(s)
	var out []string
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
	}
	return out
}

// describeToolCall renders a status line for one requested tool call.
func describeToolCall(call core.ToolCall) string {
	args, err := json.Marshal(call.Arguments)
	if err != nil || string(args) == "{}" || string(args) == "null" {
		return fmt.Sprintf("calling tool %s", call.Name)
	}
	return fmt.Sprintf("calling tool %s with %s", call.Name, args)
}
