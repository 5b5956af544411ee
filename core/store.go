package core

// ConversationStore persists conversations and their message trees.
//
// Contract:
//   - CreateConversation allocates a fresh unique id with CreatedAt == UpdatedAt.
//   - AddMessage durably appends the record and touches the owning
//     conversation's UpdatedAt (propagating provider/model metadata when the
//     message carries it); both effects become visible together from the
//     perspective of any subsequent read.
//   - ListMessages returns records in ascending CreatedAt order regardless of
//     physical append order.
//   - GetMessage resolves a message id without conversation affinity; the
//     lookup may cost O(conversations x messages) in file-backed stores.
//   - ListConversations is best-effort: corrupt entries are skipped.
//   - DeleteConversation removes the conversation and all of its messages.
//
// Lookup misses return *NotFoundError.
type ConversationStore interface {
	CreateConversation(agentType string, meta map[string]any) (*Conversation, error)
	GetConversation(id string) (*Conversation, error)
	ListConversations() ([]*Conversation, error)
	AddMessage(msg *MessageRecord) error
	GetMessage(id string) (*MessageRecord, error)
	ListMessages(conversationID string) ([]*MessageRecord, error)
	DeleteConversation(id string) error
}
