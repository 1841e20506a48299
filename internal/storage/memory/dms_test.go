package memory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

func TestStartOrGetConversationIsSymmetric(t *testing.T) {
	s := NewDMStore()
	a := s.StartOrGetConversation("u1", "u2")
	b := s.StartOrGetConversation("u2", "u1")

	assert.Equal(t, a.ID, b.ID)
	assert.Len(t, s.GetConversations("u1"), 1)
	assert.Len(t, s.GetConversations("u2"), 1)
	assert.Empty(t, s.GetConversations("u3"))
}

func TestAddMessageAssignsIdentity(t *testing.T) {
	s := NewDMStore()
	_, err := s.AddMessage("missing", models.DMMessage{Text: "x"})
	assert.ErrorIs(t, err, ErrConversationNotFound)

	conv := s.StartOrGetConversation("u1", "u2")
	r := "👍"
	m, err := s.AddMessage(conv.ID, models.DMMessage{SenderID: "u1", Text: "ct", Reaction: &r})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)
	assert.Equal(t, conv.ID, m.ConversationID)
	assert.NotZero(t, m.Timestamp)
	assert.Nil(t, m.Reaction)
}

func TestGetMessagesPaginates(t *testing.T) {
	s := NewDMStore()
	conv := s.StartOrGetConversation("u1", "u2")
	for i := 0; i < 5; i++ {
		_, err := s.AddMessage(conv.ID, models.DMMessage{SenderID: "u1", Text: "ct"})
		require.NoError(t, err)
	}

	page, more := s.GetMessages(conv.ID, 1, 2)
	assert.Len(t, page, 2)
	assert.True(t, more)

	page, more = s.GetMessages(conv.ID, 3, 2)
	assert.Len(t, page, 1)
	assert.False(t, more)

	page, more = s.GetMessages(conv.ID, 9, 2)
	assert.Empty(t, page)
	assert.False(t, more)

	all, more := s.GetMessages(conv.ID, 0, 0)
	assert.Len(t, all, 5)
	assert.False(t, more)
}

func TestDeleteMessageRequiresOwner(t *testing.T) {
	s := NewDMStore()
	conv := s.StartOrGetConversation("u1", "u2")
	m, err := s.AddMessage(conv.ID, models.DMMessage{SenderID: "u1", Text: "ct"})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteMessage(conv.ID, m.ID, "u2"), ErrNotMessageOwner)
	assert.NoError(t, s.DeleteMessage(conv.ID, m.ID, "u1"))
	assert.ErrorIs(t, s.DeleteMessage(conv.ID, m.ID, "u1"), ErrMessageNotFound)

	page, _ := s.GetMessages(conv.ID, 0, 0)
	assert.Empty(t, page)
}

func TestSetReactionOnStoredMessage(t *testing.T) {
	s := NewDMStore()
	conv := s.StartOrGetConversation("u1", "u2")
	m, _ := s.AddMessage(conv.ID, models.DMMessage{SenderID: "u1", Text: "ct"})

	r := "❤️"
	require.NoError(t, s.SetReaction(conv.ID, m.ID, &r))
	page, _ := s.GetMessages(conv.ID, 0, 0)
	require.NotNil(t, page[0].Reaction)
	assert.Equal(t, "❤️", *page[0].Reaction)

	require.NoError(t, s.SetReaction(conv.ID, m.ID, nil))
	page, _ = s.GetMessages(conv.ID, 0, 0)
	assert.Nil(t, page[0].Reaction)

	assert.ErrorIs(t, s.SetReaction(conv.ID, "nope", &r), ErrMessageNotFound)
}

func TestSearchUsersAndKeys(t *testing.T) {
	s := NewDMStore()
	s.RegisterUser("u1", "Alice@Example.com")
	s.RegisterUser("u2", "bob@example.com")

	assert.Equal(t, []string{"u1", "u2"}, s.SearchUsers("example"))
	assert.Equal(t, []string{"u1"}, s.SearchUsers("ALICE"))
	assert.Empty(t, s.SearchUsers("  "))

	_, ok := s.PublicKey("u1")
	assert.False(t, ok)
	s.PutPublicKey("u1", "pem")
	k, ok := s.PublicKey("u1")
	require.True(t, ok)
	assert.Equal(t, "pem", k)
}
