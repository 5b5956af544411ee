// Package provider defines the vendor-agnostic abstractions for talking to
// LLM chat providers: the normalized ChatRequest/ChatResult shapes, the
// streaming chunk sequence, the Client interface and the logical-model
// registry mapping provider-agnostic model names to vendor model ids.
//
// Core goals:
//   - Unify streaming + non-streaming generation behind a single interface
//   - Normalize tool call representation (core.ToolCall, core.ToolDef)
//   - Keep request/response shapes minimal and transport independent
//   - Facilitate lightweight mocking for tests (MockClient)
//
// Vendor adapters (openaicompat, anthropic) implement Client so the agent
// engine remains decoupled from vendor SDKs.
package provider
