package core

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Role identifies the author of a chat message. Values match the role field
// used by OpenAI-compatible chat APIs.
type Role string

const (
	// RoleSystem marks system prompt messages.
	RoleSystem Role = "system"
	// RoleUser marks end-user messages.
	RoleUser Role = "user"
	// RoleAssistant marks model-generated messages.
	RoleAssistant Role = "assistant"
	// RoleTool marks tool execution results fed back to the model.
	RoleTool Role = "tool"
	// RoleToolResult is an alias role some vendors emit for tool output.
	RoleToolResult Role = "tool_result"
)

// Conversation is the summary record of one conversation tree. UpdatedAt and
// Meta are touched on every message append; everything else is immutable
// after creation.
type Conversation struct {
	ID        string         `json:"id"`
	Title     string         `json:"title"`
	AgentType string         `json:"agent_type"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	Meta      map[string]any `json:"meta"`
}

// MessageRecord is one node in a conversation tree. Records are append-only:
// no field is mutated after AddMessage. Version is reserved for future
// edit-as-new-node semantics and is always 1 today.
//
// Invariants:
//   - ParentID == "" exactly when Depth == 0 (the root of its tree)
//   - Depth == parent.Depth+1 for every non-root record
//   - ID is globally unique, not just unique per conversation
type MessageRecord struct {
	ID             string         `json:"id"`
	ConversationID string         `json:"conversation_id"`
	Role           Role           `json:"role"`
	Content        string         `json:"content"`
	ParentID       string         `json:"parent_id,omitempty"`
	Depth          int            `json:"depth"`
	Version        int            `json:"version"`
	CreatedAt      time.Time      `json:"created_at"`
	Meta           map[string]any `json:"meta,omitempty"`
}

// IsRoot reports whether the record is the root of its conversation tree.
func (m *MessageRecord) IsRoot() bool { return m.ParentID == "" }

// NewConversationID returns a fresh "c-" prefixed identifier.
func NewConversationID() string { return "c-" + newHexID() }

// NewMessageID returns a fresh "m-" prefixed identifier.
func NewMessageID() string { return "m-" + newHexID() }

func newHexID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// CloneMeta returns a shallow copy of a metadata map, mapping nil to an
// empty map so callers can mutate the result safely.
func CloneMeta(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
