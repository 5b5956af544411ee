package store

import (
	"sort"
	"sync"
	"time"

	"github.com/codeloom-ai/codeloom/core"
)

// InMemoryStore is a volatile ConversationStore implementation keeping all
// state in process-local maps. It is safe for concurrent access and best
// suited for tests or ephemeral demos. Returned records are copies to
// prevent external mutation of internal state.
type InMemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*core.Conversation
	messages      map[string][]*core.MessageRecord // conversationID -> records
	byID          map[string]*core.MessageRecord   // message id -> record
}

// NewInMemoryStore constructs an empty in-memory conversation store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		conversations: map[string]*core.Conversation{},
		messages:      map[string][]*core.MessageRecord{},
		byID:          map[string]*core.MessageRecord{},
	}
}

// CreateConversation implements core.ConversationStore.
func (s *InMemoryStore) CreateConversation(agentType string, meta map[string]any) (*core.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	conv := &core.Conversation{
		ID:        core.NewConversationID(),
		AgentType: agentType,
		CreatedAt: now,
		UpdatedAt: now,
		Meta:      core.CloneMeta(meta),
	}
	if title, ok := meta["title"].(string); ok {
		conv.Title = title
	}
	s.conversations[conv.ID] = conv
	return cloneConversation(conv), nil
}

// GetConversation implements core.ConversationStore.
func (s *InMemoryStore) GetConversation(id string) (*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	conv, ok := s.conversations[id]
	if !ok {
		return nil, &core.NotFoundError{Resource: "conversation", ID: id}
	}
	return cloneConversation(conv), nil
}

// ListConversations implements core.ConversationStore.
func (s *InMemoryStore) ListConversations() ([]*core.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*core.Conversation, 0, len(s.conversations))
	for _, conv := range s.conversations {
		out = append(out, cloneConversation(conv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AddMessage implements core.ConversationStore. The message append and the
// conversation touch happen under one lock, so readers observe both or
// neither.
func (s *InMemoryStore) AddMessage(msg *core.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.conversations[msg.ConversationID]
	if !ok {
		return &core.NotFoundError{Resource: "conversation", ID: msg.ConversationID}
	}
	rec := cloneMessage(msg)
	s.messages[msg.ConversationID] = append(s.messages[msg.ConversationID], rec)
	s.byID[rec.ID] = rec
	touchConversation(conv, msg.Meta)
	return nil
}

// GetMessage implements core.ConversationStore.
func (s *InMemoryStore) GetMessage(id string) (*core.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, &core.NotFoundError{Resource: "message", ID: id}
	}
	return cloneMessage(rec), nil
}

// ListMessages implements core.ConversationStore.
func (s *InMemoryStore) ListMessages(conversationID string) ([]*core.MessageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	records := s.messages[conversationID]
	out := make([]*core.MessageRecord, len(records))
	for i, rec := range records {
		out[i] = cloneMessage(rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// DeleteConversation implements core.ConversationStore.
func (s *InMemoryStore) DeleteConversation(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.conversations[id]; !ok {
		return &core.NotFoundError{Resource: "conversation", ID: id}
	}
	for _, rec := range s.messages[id] {
		delete(s.byID, rec.ID)
	}
	delete(s.messages, id)
	delete(s.conversations, id)
	return nil
}

// touchConversation advances UpdatedAt and propagates provider/model
// metadata from a freshly appended message.
func touchConversation(conv *core.Conversation, msgMeta map[string]any) {
	conv.UpdatedAt = time.Now().UTC()
	if conv.Meta == nil {
		conv.Meta = map[string]any{}
	}
	for _, key := range []string{"provider", "model"} {
		if v, ok := msgMeta[key]; ok {
			conv.Meta[key] = v
		}
	}
}

func cloneConversation(c *core.Conversation) *core.Conversation {
	out := *c
	out.Meta = core.CloneMeta(c.Meta)
	return &out
}

func cloneMessage(m *core.MessageRecord) *core.MessageRecord {
	out := *m
	out.Meta = core.CloneMeta(m.Meta)
	return &out
}
