// Package core defines the domain contracts shared by every other package in
// CodeLoom: the conversation tree model (Conversation, MessageRecord), the
// ConversationStore interface, tool call/result records, the error taxonomy
// and identifier generation.
//
// Higher layers (agent, provider adapters, stores, tools) depend on this
// package only; it depends on nothing but the standard library and uuid.
package core
