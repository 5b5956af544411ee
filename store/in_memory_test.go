package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codeloom-ai/codeloom/core"
)

func newMessage(convID, parentID string, depth int, role core.Role, content string) *core.MessageRecord {
	return &core.MessageRecord{
		ID:             core.NewMessageID(),
		ConversationID: convID,
		Role:           role,
		Content:        content,
		ParentID:       parentID,
		Depth:          depth,
		Version:        1,
		CreatedAt:      time.Now().UTC(),
		Meta:           map[string]any{},
	}
}

func TestInMemoryStoreLifecycle(t *testing.T) {
	s := NewInMemoryStore()

	conv, err := s.CreateConversation("ide-helper", map[string]any{"title": "test chat"})
	require.NoError(t, err)
	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, "test chat", conv.Title)
	assert.Equal(t, conv.CreatedAt, conv.UpdatedAt)

	got, err := s.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.ID, got.ID)

	require.NoError(t, s.DeleteConversation(conv.ID))
	_, err = s.GetConversation(conv.ID)
	assert.True(t, core.IsNotFound(err))
}

func TestInMemoryStoreAddMessageTouchesConversation(t *testing.T) {
	s := NewInMemoryStore()
	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	msg := newMessage(conv.ID, "", 0, core.RoleUser, "hello")
	msg.Meta = map[string]any{"provider": "kimi", "model": "ide-chat"}
	require.NoError(t, s.AddMessage(msg))

	got, err := s.GetConversation(conv.ID)
	require.NoError(t, err)
	assert.False(t, got.UpdatedAt.Before(conv.UpdatedAt))
	assert.Equal(t, "kimi", got.Meta["provider"])
	assert.Equal(t, "ide-chat", got.Meta["model"])
}

func TestInMemoryStoreGetMessageAcrossConversations(t *testing.T) {
	s := NewInMemoryStore()
	convA, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)
	convB, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	msgA := newMessage(convA.ID, "", 0, core.RoleUser, "a")
	msgB := newMessage(convB.ID, "", 0, core.RoleUser, "b")
	require.NoError(t, s.AddMessage(msgA))
	require.NoError(t, s.AddMessage(msgB))

	got, err := s.GetMessage(msgB.ID)
	require.NoError(t, err)
	assert.Equal(t, convB.ID, got.ConversationID)

	_, err = s.GetMessage("m-missing")
	assert.True(t, core.IsNotFound(err))
}

func TestInMemoryStoreListMessagesSortedByCreation(t *testing.T) {
	s := NewInMemoryStore()
	conv, err := s.CreateConversation("ide-helper", nil)
	require.NoError(t, err)

	base := time.Now().UTC()
	late := newMessage(conv.ID, "", 0, core.RoleUser, "late")
	late.CreatedAt = base.Add(2 * time.Second)
	early := newMessage(conv.ID, "", 0, core.RoleUser, "early")
	early.CreatedAt = base

	// Appended out of creation order on purpose.
	require.NoError(t, s.AddMessage(late))
	require.NoError(t, s.AddMessage(early))

	msgs, err := s.ListMessages(conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "early", msgs[0].Content)
	assert.Equal(t, "late", msgs[1].Content)
}

func TestInMemoryStoreAddMessageUnknownConversation(t *testing.T) {
	s := NewInMemoryStore()
	err := s.AddMessage(newMessage("c-missing", "", 0, core.RoleUser, "x"))
	assert.True(t, core.IsNotFound(err))
}
