// Package agent orchestrates conversation steps. The Engine turns one user
// utterance plus the stored conversation tree into a bounded provider call
// sequence (optionally looping through tool execution) and persists the
// resulting user/assistant message pair.
package agent
