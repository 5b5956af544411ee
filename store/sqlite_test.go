package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeloom-ai/codeloom/core"
)

func newSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	s := newSQLiteStore(t)

	conv, err := s.CreateConversation("ide-helper", map[string]any{"title": "sqlite"})
	require.NoError(t, err)
	assert.Equal(t, "sqlite", conv.Title)

	user := newMessage(conv.ID, "", 0, core.RoleUser, "question")
	require.NoError(t, s.AddMessage(user))
	assistant := newMessage(conv.ID, user.ID, 1, core.RoleAssistant, "answer")
	assistant.Meta = map[string]any{"provider": "openai", "model": "ide-chat"}
	require.NoError(t, s.AddMessage(assistant))

	msgs, err := s.ListMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, user.ID, msgs[0].ID)
	assert.Equal(t, core.RoleAssistant, msgs[1].Role)
	assert.Equal(t, user.ID, msgs[1].ParentID)

	got, err := s.GetMessage(assistant.ID)
	require.NoError(t, err)
	assert.Equal(t, "answer", got.Content)
	assert.Equal(t, "openai", got.Meta["provider"])

	updated, err := s.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "openai", updated.Meta["provider"])
}

func TestSQLiteStoreNotFound(t *testing.T) {
	s := newSQLiteStore(t)

	_, err := s.GetConversation("c-missing")
	assert.True(t, core.IsNotFound(err))
	_, err = s.GetMessage("m-missing")
	assert.True(t, core.IsNotFound(err))
	assert.True(t, core.IsNotFound(s.DeleteConversation("c-missing")))

	err = s.AddMessage(newMessage("c-missing", "", 0, core.RoleUser, "x"))
	assert.True(t, core.IsNotFound(err))
}

func TestSQLiteStoreDeleteCascades(t *testing.T) {
	s := newSQLiteStore(t)

	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	msg := newMessage(conv.ID, "", 0, core.RoleUser, "x")
	require.NoError(t, s.AddMessage(msg))

	require.NoError(t, s.DeleteConversation(conv.ID))
	_, err = s.GetMessage(msg.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestSQLiteStoreListConversationsOrdered(t *testing.T) {
	s := newSQLiteStore(t)

	first, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	second, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	convs, err := s.ListConversations()
	require.NoError(t, err)
	require.Len(t, convs, 2)
	assert.Equal(t, first.ID, convs[0].ID)
	assert.Equal(t, second.ID, convs[1].ID)
}
