// Package store houses concrete implementations of core.ConversationStore.
// The interface itself lives in the core package to centralize domain
// contracts; keeping only implementations here prevents higher level
// packages (agent, provider adapters) from depending on concrete storage.
//
// Three backends are provided: JSONStore (the durable reference layout: one
// directory per conversation with an atomically-rewritten meta.json and an
// append-only messages.jsonl), SQLiteStore (single-file embedded DB) and
// InMemoryStore (tests and ephemeral demos). Additional backends can be
// added without changing any calling code.
package store
