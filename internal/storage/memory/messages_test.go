package memory

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

func text(id, sender, body string) models.Message {
	return models.Message{ID: id, Sender: sender, Text: body}
}

func ids(msgs []models.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func strp(s string) *string { return &s }

func TestAppendPreservesArrivalOrderAndRejectsDuplicates(t *testing.T) {
	s := NewMessageStore()
	s.Reset("chat-a")

	assert.True(t, s.Append(text("1", "u1", "hello")))
	assert.True(t, s.Append(text("2", "u2", "hi")))
	assert.False(t, s.Append(text("1", "u1", "hello again")))
	assert.False(t, s.Append(models.Message{ID: "3", Sender: "u1"}))

	assert.Equal(t, []string{"1", "2"}, ids(s.Messages()))
	m, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, "hello", m.Text)
}

func TestRemoveIsIdempotent(t *testing.T) {
	s := NewMessageStore()
	s.Reset("chat-a")
	s.Append(text("1", "u1", "a"))
	s.Append(text("2", "u1", "b"))

	assert.True(t, s.Remove("1"))
	once := s.Messages()
	assert.False(t, s.Remove("1"))
	assert.Equal(t, once, s.Messages())
	assert.False(t, s.Remove("never-existed"))
	assert.Equal(t, []string{"2"}, ids(s.Messages()))
}

func TestRemoveDropsSideEntries(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")
	ref := sc.PutVoice([]byte{1, 2, 3})
	require.NotEmpty(t, ref)
	sc.Append(models.Message{ID: "v1", Sender: "u2", VoiceRef: ref})
	sc.SetReaction("v1", strp("👍"))
	sc.SetTranscription("v1", strp("hello there"))

	sc.Remove("v1")

	_, ok := s.Reaction("v1")
	assert.False(t, ok)
	_, ok = s.Transcription("v1")
	assert.False(t, ok)
	_, ok = s.Voice(ref)
	assert.False(t, ok)
}

func TestReactionSetAndClear(t *testing.T) {
	s := NewMessageStore()
	s.Reset("chat-a")
	s.Append(text("1", "u1", "a"))

	assert.True(t, s.SetReaction("1", strp("👍")))
	r, ok := s.Reaction("1")
	require.True(t, ok)
	assert.Equal(t, "👍", r)

	assert.True(t, s.SetReaction("1", strp("❤️")))
	r, _ = s.Reaction("1")
	assert.Equal(t, "❤️", r)

	assert.True(t, s.SetReaction("1", nil))
	_, ok = s.Reaction("1")
	assert.False(t, ok)
	assert.False(t, s.SetReaction("1", nil))
	assert.Empty(t, s.Reactions())
}

func TestTranscriptionToggleState(t *testing.T) {
	s := NewMessageStore()
	s.Reset("chat-a")

	assert.True(t, s.SetTranscription("v1", strp("transcript")))
	got, ok := s.Transcription("v1")
	require.True(t, ok)
	assert.Equal(t, "transcript", got)

	assert.True(t, s.SetTranscription("v1", nil))
	_, ok = s.Transcription("v1")
	assert.False(t, ok)
}

func TestResetClearsEverythingImmediately(t *testing.T) {
	s := NewMessageStore()
	a := s.Reset("chat-a")
	for _, id := range []string{"1", "2", "3"} {
		a.Append(text(id, "u1", "x"))
	}
	a.SetReaction("1", strp("👍"))
	a.SetTranscription("2", strp("t"))
	a.SetTyping("u2", true)
	require.Equal(t, 3, s.Len())

	b := s.Reset("chat-b")

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.Reactions())
	_, ok := s.Transcription("2")
	assert.False(t, ok)
	assert.False(t, s.PeerTyping("u2"))
	assert.Equal(t, "chat-b", s.ChatID())
	assert.True(t, b.Active())
	assert.False(t, a.Active())
}

func TestStaleScopeWritesAreDiscarded(t *testing.T) {
	s := NewMessageStore()
	a := s.Reset("chat-a")
	s.Reset("chat-b")

	assert.False(t, a.Append(text("late", "u1", "from A")))
	assert.False(t, a.SetReaction("late", strp("👍")))
	assert.False(t, a.Backfill([]models.Message{text("h1", "u1", "old")}, nil))
	assert.Empty(t, a.PutVoice([]byte{1}))
	assert.Equal(t, 0, s.Len())
}

func TestStaleScopeReadsSeeNothing(t *testing.T) {
	s := NewMessageStore()
	a := s.Reset("chat-a")
	a.Append(text("m1", "u1", "hi"))
	ref := a.PutVoice([]byte{1, 2})
	a.SetTranscription("m1", strp("hello"))

	_, ok := a.Get("m1")
	assert.True(t, ok)
	assert.Len(t, a.Messages(), 1)

	b := s.Reset("chat-b")
	b.Append(text("m1", "u2", "other chat"))
	b.SetTranscription("m1", strp("shown in B"))
	refB := b.PutVoice([]byte{3})

	_, ok = a.Get("m1")
	assert.False(t, ok)
	_, ok = a.Transcription("m1")
	assert.False(t, ok)
	_, ok = a.Voice(ref)
	assert.False(t, ok)
	_, ok = a.Voice(refB)
	assert.False(t, ok)
	assert.Nil(t, a.Messages())

	got, ok := b.Transcription("m1")
	require.True(t, ok)
	assert.Equal(t, "shown in B", got)
}

func TestBackfillMergesAheadOfLiveWithoutDuplicates(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")

	sc.Append(text("5", "u2", "live five"))
	sc.Append(text("6", "u1", "live six"))

	history := []models.Message{
		text("3", "u1", "three"),
		text("4", "u2", "four"),
		text("5", "u2", "five from history"),
		text("4", "u2", "four again"),
	}
	require.True(t, sc.Backfill(history, map[string]string{"3": "👍"}))

	assert.Equal(t, []string{"3", "4", "5", "6"}, ids(s.Messages()))
	m, _ := s.Get("5")
	assert.Equal(t, "live five", m.Text)
	r, ok := s.Reaction("3")
	require.True(t, ok)
	assert.Equal(t, "👍", r)
}

func TestBackfillDoesNotResurrectRemoved(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")

	sc.Remove("2")
	sc.Backfill([]models.Message{text("1", "u1", "a"), text("2", "u1", "b")}, nil)

	assert.Equal(t, []string{"1"}, ids(s.Messages()))
}

func TestBackfillKeepsLiveReactionDecisions(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")

	sc.SetReaction("1", strp("❤️"))
	sc.SetReaction("2", nil)
	sc.Backfill(
		[]models.Message{text("1", "u1", "a"), text("2", "u1", "b")},
		map[string]string{"1": "👍", "2": "😂"},
	)

	r, _ := s.Reaction("1")
	assert.Equal(t, "❤️", r)
	_, ok := s.Reaction("2")
	assert.False(t, ok)
}

func TestTypingKeepsLatestOnly(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")

	assert.True(t, sc.SetTyping("u2", true))
	assert.False(t, sc.SetTyping("u2", true))
	assert.True(t, s.PeerTyping("u2"))
	assert.True(t, sc.SetTyping("u2", false))
	assert.False(t, s.PeerTyping("u2"))
}

func TestVoiceIsCopied(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")
	audio := []byte{9, 8, 7}
	ref := sc.PutVoice(audio)
	audio[0] = 0

	got, ok := s.Voice(ref)
	require.True(t, ok)
	assert.Equal(t, []byte{9, 8, 7}, got)

	sc.DropVoice(ref)
	_, ok = s.Voice(ref)
	assert.False(t, ok)
}

func TestWatchReceivesEvents(t *testing.T) {
	s := NewMessageStore()
	var (
		mu     sync.Mutex
		events []EventKind
	)
	s.Watch(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev.Kind)
	})

	sc := s.Reset("chat-a")
	sc.Append(text("1", "u1", "a"))
	sc.Append(text("1", "u1", "dup"))
	sc.SetReaction("1", strp("👍"))
	sc.Remove("1")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []EventKind{EventReset, EventAppended, EventReaction, EventRemoved}, events)
}

func TestClearDetachesConversation(t *testing.T) {
	s := NewMessageStore()
	sc := s.Reset("chat-a")
	sc.Append(text("1", "u1", "a"))

	s.Clear()

	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ChatID())
	assert.False(t, sc.Active())
}
