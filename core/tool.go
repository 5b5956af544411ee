package core

// ToolCall is a tool invocation requested by a model response. It is
// ephemeral: the call itself is never persisted as a MessageRecord, only the
// final assistant answer is.
type ToolCall struct {
	ID        string         `json:"id"`
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// ToolResult is the text outcome of one ToolCall, paired 1:1 by CallID.
type ToolResult struct {
	CallID  string `json:"call_id"`
	Content string `json:"content"`
}

// ToolDef declaratively exposes a callable tool to the model. Parameters is a
// JSON-Schema-like object ({"type":"object","properties":...,"required":...});
// provider adapters serialize it into each vendor's tool schema.
type ToolDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}
