package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeloom-ai/codeloom/core"
)

func newJSONStore(t *testing.T) *JSONStore {
	t.Helper()
	s, err := NewJSONStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestJSONStoreLayout(t *testing.T) {
	root := t.TempDir()
	s, err := NewJSONStore(root)
	require.NoError(t, err)

	conv, err := s.CreateConversation("ide-helper", map[string]any{"title": "layout"})
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(newMessage(conv.ID, "", 0, core.RoleUser, "hello")))

	dir := filepath.Join(root, "conversations", conv.ID)
	metaData, err := os.ReadFile(filepath.Join(dir, "meta.json"))
	require.NoError(t, err)
	var onDisk core.Conversation
	require.NoError(t, json.Unmarshal(metaData, &onDisk))
	assert.Equal(t, "layout", onDisk.Title)

	logData, err := os.ReadFile(filepath.Join(dir, "messages.jsonl"))
	require.NoError(t, err)
	var rec core.MessageRecord
	require.NoError(t, json.Unmarshal(logData[:len(logData)-1], &rec))
	assert.Equal(t, "hello", rec.Content)
}

func TestJSONStoreRoundTrip(t *testing.T) {
	s := newJSONStore(t)

	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	user := newMessage(conv.ID, "", 0, core.RoleUser, "question")
	require.NoError(t, s.AddMessage(user))
	assistant := newMessage(conv.ID, user.ID, 1, core.RoleAssistant, "answer")
	assistant.Meta = map[string]any{"provider": "glm", "model": "ide-chat"}
	require.NoError(t, s.AddMessage(assistant))

	msgs, err := s.ListMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, user.ID, msgs[1].ParentID)

	got, err := s.GetMessage(assistant.ID)
	require.NoError(t, err)
	assert.Equal(t, "answer", got.Content)

	// The touch propagated provider/model into the summary.
	updated, err := s.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "glm", updated.Meta["provider"])
	assert.False(t, updated.UpdatedAt.Before(conv.UpdatedAt))
}

func TestJSONStoreSkipsCorruptLogLines(t *testing.T) {
	s := newJSONStore(t)
	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	good := newMessage(conv.ID, "", 0, core.RoleUser, "kept")
	require.NoError(t, s.AddMessage(good))

	// Simulate a torn write at the tail of the log.
	f, err := os.OpenFile(s.logPath(conv.ID), os.O_WRONLY|os.O_APPEND, 0o644)
	require.NoError(t, err)
	_, err = f.WriteString(`{"id":"m-torn","conversation`)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	msgs, err := s.ListMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, "kept", msgs[0].Content)
}

func TestJSONStoreListConversationsSkipsCorruptMeta(t *testing.T) {
	s := newJSONStore(t)

	_, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	broken, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(s.metaPath(broken.ID), []byte("{not json"), 0o644))

	convs, err := s.ListConversations()
	require.NoError(t, err)
	assert.Len(t, convs, 1)
}

func TestJSONStoreMetaRewriteLeavesNoPartialState(t *testing.T) {
	s := newJSONStore(t)
	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	// Every rewrite goes through a temp file; after each append the summary
	// must parse fully and no temp residue may remain.
	for i := 0; i < 5; i++ {
		msg := newMessage(conv.ID, "", 0, core.RoleUser, "x")
		msg.CreatedAt = time.Now().UTC().Add(time.Duration(i) * time.Millisecond)
		require.NoError(t, s.AddMessage(msg))

		data, err := os.ReadFile(s.metaPath(conv.ID))
		require.NoError(t, err)
		var parsed core.Conversation
		require.NoError(t, json.Unmarshal(data, &parsed))

		entries, err := os.ReadDir(s.convDir(conv.ID))
		require.NoError(t, err)
		for _, entry := range entries {
			assert.NotContains(t, entry.Name(), ".tmp")
		}
	}
}

func TestJSONStoreGetMessageScansAllConversations(t *testing.T) {
	s := newJSONStore(t)

	convA, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	convB, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	require.NoError(t, s.AddMessage(newMessage(convA.ID, "", 0, core.RoleUser, "a")))
	target := newMessage(convB.ID, "", 0, core.RoleUser, "b")
	require.NoError(t, s.AddMessage(target))

	got, err := s.GetMessage(target.ID)
	require.NoError(t, err)
	assert.Equal(t, convB.ID, got.ConversationID)

	_, err = s.GetMessage("m-missing")
	assert.True(t, core.IsNotFound(err))
}

func TestJSONStoreDeleteConversation(t *testing.T) {
	s := newJSONStore(t)
	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	require.NoError(t, s.AddMessage(newMessage(conv.ID, "", 0, core.RoleUser, "x")))

	require.NoError(t, s.DeleteConversation(conv.ID))
	_, err = s.GetConversation(conv.ID)
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(s.DeleteConversation(conv.ID)))
}
