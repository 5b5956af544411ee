package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/codeloom-ai/codeloom/core"
	"github.com/codeloom-ai/codeloom/logging"
)

// SQLiteStore is a ConversationStore backed by a single SQLite file. It
// trades the JSONStore's inspect-with-a-text-editor layout for indexed
// lookups; GetMessage is a point query instead of a full scan.
type SQLiteStore struct {
	db     *sql.DB
	logger logging.Logger
}

// SQLiteStoreOptions configure a SQLiteStore.
type SQLiteStoreOptions struct {
	Logger logging.Logger
}

var sqliteMigrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		title      TEXT NOT NULL DEFAULT '',
		agent_type TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		meta       TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
		role            TEXT NOT NULL,
		content         TEXT NOT NULL,
		parent_id       TEXT NOT NULL DEFAULT '',
		depth           INTEGER NOT NULL,
		version         INTEGER NOT NULL DEFAULT 1,
		created_at      TIMESTAMP NOT NULL,
		meta            TEXT NOT NULL DEFAULT '{}'
	)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_parent ON messages(parent_id)`,
}

// NewSQLiteStore opens (creating if absent) the database at path and runs
// schema migrations.
func NewSQLiteStore(path string, optFns ...func(o *SQLiteStoreOptions)) (*SQLiteStore, error) {
	opts := SQLiteStoreOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite handles one writer at a time; a single connection avoids
	// SQLITE_BUSY churn under concurrent appends.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db, logger: opts.Logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	for _, stmt := range sqliteMigrations {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}

// Close releases the underlying database handle.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// CreateConversation implements core.ConversationStore.
func (s *SQLiteStore) CreateConversation(agentType string, meta map[string]any) (*core.Conversation, error) {
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
	metaJSON, err := encodeMeta(conv.Meta)
	if err != nil {
		return nil, err
	}
	_, err = s.db.Exec(
		`INSERT INTO conversations (id, title, agent_type, created_at, updated_at, meta) VALUES (?, ?, ?, ?, ?, ?)`,
		conv.ID, conv.Title, conv.AgentType, conv.CreatedAt, conv.UpdatedAt, metaJSON,
	)
	if err != nil {
		return nil, fmt.Errorf("insert conversation: %w", err)
	}
	s.logger.Debug("store.conversation.created", "conversation_id", conv.ID)
	return conv, nil
}

// GetConversation implements core.ConversationStore.
func (s *SQLiteStore) GetConversation(id string) (*core.Conversation, error) {
	row := s.db.QueryRow(
		`SELECT id, title, agent_type, created_at, updated_at, meta FROM conversations WHERE id = ?`, id,
	)
	conv, err := scanConversation(row)
	if err == sql.ErrNoRows {
		return nil, &core.NotFoundError{Resource: "conversation", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	return conv, nil
}

// ListConversations implements core.ConversationStore.
func (s *SQLiteStore) ListConversations() ([]*core.Conversation, error) {
	rows, err := s.db.Query(
		`SELECT id, title, agent_type, created_at, updated_at, meta FROM conversations ORDER BY created_at`,
	)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer rows.Close()

	var out []*core.Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, conv)
	}
	return out, rows.Err()
}

// AddMessage implements core.ConversationStore. The insert and the
// conversation touch commit together or not at all.
func (s *SQLiteStore) AddMessage(msg *core.MessageRecord) error {
	conv, err := s.GetConversation(msg.ConversationID)
	if err != nil {
		return err
	}

	msgMeta, err := encodeMeta(msg.Meta)
	if err != nil {
		return err
	}
	touchConversation(conv, msg.Meta)
	convMeta, err := encodeMeta(conv.Meta)
	if err != nil {
		return err
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`INSERT INTO messages (id, conversation_id, role, content, parent_id, depth, version, created_at, meta)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.ParentID, msg.Depth, msg.Version, msg.CreatedAt, msgMeta,
	)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	_, err = tx.Exec(
		`UPDATE conversations SET updated_at = ?, meta = ? WHERE id = ?`,
		conv.UpdatedAt, convMeta, conv.ID,
	)
	if err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return tx.Commit()
}

// GetMessage implements core.ConversationStore.
func (s *SQLiteStore) GetMessage(id string) (*core.MessageRecord, error) {
	row := s.db.QueryRow(
		`SELECT id, conversation_id, role, content, parent_id, depth, version, created_at, meta FROM messages WHERE id = ?`, id,
	)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, &core.NotFoundError{Resource: "message", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("query message: %w", err)
	}
	return msg, nil
}

// ListMessages implements core.ConversationStore.
func (s *SQLiteStore) ListMessages(conversationID string) ([]*core.MessageRecord, error) {
	if _, err := s.GetConversation(conversationID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(
		`SELECT id, conversation_id, role, content, parent_id, depth, version, created_at, meta
		 FROM messages WHERE conversation_id = ? ORDER BY created_at`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var out []*core.MessageRecord
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, msg)
	}
	return out, rows.Err()
}

// DeleteConversation implements core.ConversationStore; messages go with
// the conversation via ON DELETE CASCADE.
func (s *SQLiteStore) DeleteConversation(id string) error {
	res, err := s.db.Exec(`DELETE FROM conversations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete conversation: %w", err)
	}
	if n == 0 {
		return &core.NotFoundError{Resource: "conversation", ID: id}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*core.Conversation, error) {
	var conv core.Conversation
	var metaJSON string
	err := row.Scan(&conv.ID, &conv.Title, &conv.AgentType, &conv.CreatedAt, &conv.UpdatedAt, &metaJSON)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(metaJSON), &conv.Meta); err != nil {
		return nil, fmt.Errorf("decode conversation meta: %w", err)
	}
	return &conv, nil
}

func scanMessage(row rowScanner) (*core.MessageRecord, error) {
	var msg core.MessageRecord
	var role, metaJSON string
	err := row.Scan(&msg.ID, &msg.ConversationID, &role, &msg.Content, &msg.ParentID, &msg.Depth, &msg.Version, &msg.CreatedAt, &metaJSON)
	if err != nil {
		return nil, err
	}
	msg.Role = core.Role(role)
	if err := json.Unmarshal([]byte(metaJSON), &msg.Meta); err != nil {
		return nil, fmt.Errorf("decode message meta: %w", err)
	}
	return &msg, nil
}

func encodeMeta(meta map[string]any) (string, error) {
	if meta == nil {
		return "{}", nil
	}
	data, err := json.Marshal(meta)
	if err != nil {
		return "", fmt.Errorf("encode meta: %w", err)
	}
	return string(data), nil
}
