package store

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/logging"
)

// JSONStore is the durable reference ConversationStore: one directory per
// conversation holding a meta.json summary and a messages.jsonl append log.
//
// Durability discipline:
//   - meta.json is rewritten via write-to-temp-then-atomic-rename, never in
//     place, so a reader can only ever observe a fully-old or fully-new
//     summary.
//   - messages.jsonl only ever grows by whole fsync'd lines; append is the
//     sole mutation, so reads need no locking against writers in other
//     processes.
//
// Concurrent stores over the same root can race on the summary rewrite;
// last-write-wins on UpdatedAt/meta is accepted, corruption is not.
type JSONStore struct {
	root   string
	logger logging.Logger
	mu     sync.Mutex // serializes appends within this process
}

// JSONStoreOptions configure a JSONStore.
type JSONStoreOptions struct {
	Logger logging.Logger
}

// NewJSONStore creates (if needed) the conversations directory under root
// and returns a store over it.
func NewJSONStore(root string, optFns ...func(o *JSONStoreOptions)) (*JSONStore, error) {
	opts := JSONStoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	convRoot := filepath.Join(root, "conversations")
	if err := os.MkdirAll(convRoot, 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}
	return &JSONStore{root: convRoot, logger: opts.Logger}, nil
}

func (s *JSONStore) convDir(id string) string  { return filepath.Join(s.root, id) }
func (s *JSONStore) metaPath(id string) string { return filepath.Join(s.convDir(id), "meta.json") }
func (s *JSONStore) logPath(id string) string  { return filepath.Join(s.convDir(id), "messages.jsonl") }

// CreateConversation implements core.ConversationStore.
func (s *JSONStore) CreateConversation(agentType string, meta map[string]any) (*core.Conversation, error) {
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
	if err := os.MkdirAll(s.convDir(conv.ID), 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	if err := s.writeMeta(conv); err != nil {
		return nil, err
	}
	s.logger.Debug("store.conversation.created", "conversation_id", conv.ID)
	return conv, nil
}

// GetConversation implements core.ConversationStore.
func (s *JSONStore) GetConversation(id string) (*core.Conversation, error) {
	data, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		return nil, &core.NotFoundError{Resource: "conversation", ID: id}
	}
	var conv core.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, &core.NotFoundError{Resource: "conversation", ID: id}
	}
	return &conv, nil
}

// ListConversations implements core.ConversationStore. Corrupt or foreign
// entries under the root are skipped, never fatal to the listing.
func (s *JSONStore) ListConversations() ([]*core.Conversation, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}
	var out []*core.Conversation
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		conv, err := s.GetConversation(entry.Name())
		if err != nil {
			s.logger.Warn("store.conversation.skipped", "dir", entry.Name())
			continue
		}
		out = append(out, conv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

// AddMessage implements core.ConversationStore: the record is appended
// durably to the log first, then the summary is atomically replaced with
// the touched UpdatedAt and propagated provider/model metadata.
func (s *JSONStore) AddMessage(msg *core.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, err := s.GetConversation(msg.ConversationID)
	if err != nil {
		return err
	}

	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	f, err := os.OpenFile(s.logPath(msg.ConversationID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open message log: %w", err)
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		f.Close()
		return fmt.Errorf("append message: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("sync message log: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close message log: %w", err)
	}

	touchConversation(conv, msg.Meta)
	return s.writeMeta(conv)
}

// GetMessage implements core.ConversationStore. ParentID carries no
// conversation affinity, so this scans every conversation log in the worst
// case.
func (s *JSONStore) GetMessage(id string) (*core.MessageRecord, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("read storage root: %w", err)
	}
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		records, err := s.readLog(entry.Name())
		if err != nil {
			continue
		}
		for _, rec := range records {
			if rec.ID == id {
				return rec, nil
			}
		}
	}
	return nil, &core.NotFoundError{Resource: "message", ID: id}
}

// ListMessages implements core.ConversationStore, sorting by CreatedAt
// rather than physical append order to tolerate out-of-order writers.
func (s *JSONStore) ListMessages(conversationID string) ([]*core.MessageRecord, error) {
	records, err := s.readLog(conversationID)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(records, func(i, j int) bool {
		return records[i].CreatedAt.Before(records[j].CreatedAt)
	})
	return records, nil
}

// DeleteConversation implements core.ConversationStore.
func (s *JSONStore) DeleteConversation(id string) error {
	dir := s.convDir(id)
	if _, err := os.Stat(dir); err != nil {
		return &core.NotFoundError{Resource: "conversation", ID: id}
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	return nil
}

func (s *JSONStore) readLog(conversationID string) ([]*core.MessageRecord, error) {
	f, err := os.Open(s.logPath(conversationID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil // conversation exists but has no messages yet
		}
		return nil, fmt.Errorf("open message log: %w", err)
	}
	defer f.Close()

	var records []*core.MessageRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var rec core.MessageRecord
		if err := json.Unmarshal(scanner.Bytes(), &rec); err != nil {
			continue // torn or corrupt line, skip
		}
		records = append(records, &rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan message log: %w", err)
	}
	return records, nil
}

// writeMeta rewrites the summary via temp file + atomic rename so readers
// never observe a half-written meta.json.
func (s *JSONStore) writeMeta(conv *core.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("encode conversation: %w", err)
	}
	dir := s.convDir(conv.ID)
	tmp, err := os.CreateTemp(dir, "meta.*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp meta: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write temp meta: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("sync temp meta: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close temp meta: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.metaPath(conv.ID)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace meta: %w", err)
	}
	return nil
}
