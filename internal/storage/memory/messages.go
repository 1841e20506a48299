package memory

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// EventKind identifies a MessageStore change.
type EventKind uint8

const (
	EventAppended EventKind = iota + 1
	EventRemoved
	EventReset
	EventBackfilled
	EventReaction
	EventTranscription
	EventTyping
)

// Event describes one change, delivered to watchers after the store lock is
// released.
type Event struct {
	Kind    EventKind
	ChatID  string
	ID      string
	Message models.Message
	Value   string
	Typing  bool
}

// MessageStore is the canonical state of the selected conversation: the
// ordered message sequence plus reaction, transcription, voice and typing
// side maps. Switching conversations goes through Reset, which empties
// everything atomically and invalidates every Scope handed out before.
type MessageStore struct {
	mu sync.RWMutex

	chatID string
	epoch  uint64

	messages       []models.Message
	ids            map[string]struct{}
	tombstones     map[string]struct{}
	reactions      map[string]string
	reactionsSeen  map[string]struct{}
	transcriptions map[string]string
	voices         map[string][]byte
	typing         map[string]bool

	watchers []func(Event)
}

// NewMessageStore returns an empty store with no conversation selected.
func NewMessageStore() *MessageStore {
	s := &MessageStore{}
	s.resetLocked("")
	return s
}

func (s *MessageStore) resetLocked(chatID string) {
	s.chatID = chatID
	s.epoch++
	s.messages = nil
	s.ids = make(map[string]struct{})
	s.tombstones = make(map[string]struct{})
	s.reactions = make(map[string]string)
	s.reactionsSeen = make(map[string]struct{})
	s.transcriptions = make(map[string]string)
	s.voices = make(map[string][]byte)
	s.typing = make(map[string]bool)
}

// Watch registers fn to be called for every change.
func (s *MessageStore) Watch(fn func(Event)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *MessageStore) notify(ev Event) {
	s.mu.RLock()
	watchers := make([]func(Event), len(s.watchers))
	copy(watchers, s.watchers)
	s.mu.RUnlock()

	for _, fn := range watchers {
		fn(ev)
	}
}

// Reset selects chatID, discarding all state of the previous conversation,
// and returns the scope writes for the new conversation must go through.
func (s *MessageStore) Reset(chatID string) Scope {
	s.mu.Lock()
	s.resetLocked(chatID)
	sc := Scope{store: s, epoch: s.epoch, chatID: chatID}
	s.mu.Unlock()

	s.notify(Event{Kind: EventReset, ChatID: chatID})
	return sc
}

// Clear empties the store and detaches it from any conversation.
func (s *MessageStore) Clear() {
	s.Reset("")
}

// Current returns a scope bound to the conversation selected right now.
func (s *MessageStore) Current() Scope {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Scope{store: s, epoch: s.epoch, chatID: s.chatID}
}

// ChatID returns the selected conversation, or "".
func (s *MessageStore) ChatID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.chatID
}

// Append adds m to the current conversation. See Scope.Append.
func (s *MessageStore) Append(m models.Message) bool { return s.Current().Append(m) }

// Remove deletes id from the current conversation. See Scope.Remove.
func (s *MessageStore) Remove(id string) bool { return s.Current().Remove(id) }

// SetReaction sets or, for nil, clears the reaction on id.
func (s *MessageStore) SetReaction(id string, reaction *string) bool {
	return s.Current().SetReaction(id, reaction)
}

// SetTranscription shows or, for nil, hides the transcript of id.
func (s *MessageStore) SetTranscription(id string, text *string) bool {
	return s.Current().SetTranscription(id, text)
}

// Messages returns a copy of the sequence in order.
func (s *MessageStore) Messages() []models.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messagesLocked()
}

func (s *MessageStore) messagesLocked() []models.Message {
	out := make([]models.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of messages.
func (s *MessageStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// Get returns the message with the given id.
func (s *MessageStore) Get(id string) (models.Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *MessageStore) getLocked(id string) (models.Message, bool) {
	for _, m := range s.messages {
		if m.ID == id {
			return m, true
		}
	}
	return models.Message{}, false
}

// Reaction returns the reaction on id, if any.
func (s *MessageStore) Reaction(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reactions[id]
	return r, ok
}

// Reactions returns a copy of the reaction map.
func (s *MessageStore) Reactions() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.reactions))
	for k, v := range s.reactions {
		out[k] = v
	}
	return out
}

// Transcription returns the transcript currently shown for id.
func (s *MessageStore) Transcription(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transcriptions[id]
	return t, ok
}

// Voice returns a copy of the decrypted audio behind ref.
func (s *MessageStore) Voice(ref string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.voiceLocked(ref)
}

func (s *MessageStore) voiceLocked(ref string) ([]byte, bool) {
	b, ok := s.voices[ref]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), b...), true
}

// PeerTyping reports the latest typing state received for sender.
func (s *MessageStore) PeerTyping(sender string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.typing[sender]
}

// Scope is a writer bound to one conversation selection. Once the store is
// Reset every write through an older scope is a no-op returning false, so
// late frames and late backfill results can never leak into the next
// conversation.
type Scope struct {
	store  *MessageStore
	epoch  uint64
	chatID string
}

// ChatID returns the conversation the scope was issued for.
func (sc Scope) ChatID() string { return sc.chatID }

// Active reports whether the scope's conversation is still selected.
func (sc Scope) Active() bool {
	if sc.store == nil {
		return false
	}
	sc.store.mu.RLock()
	defer sc.store.mu.RUnlock()
	return sc.activeLocked()
}

func (sc Scope) activeLocked() bool {
	return sc.store.epoch == sc.epoch
}

// apply runs fn under the store lock if the scope is active and emits the
// returned event when fn reports a change.
func (sc Scope) apply(fn func(s *MessageStore) (Event, bool)) (changed, active bool) {
	if sc.store == nil {
		return false, false
	}
	s := sc.store
	s.mu.Lock()
	if !sc.activeLocked() {
		s.mu.Unlock()
		return false, false
	}
	ev, changed := fn(s)
	s.mu.Unlock()

	if changed {
		ev.ChatID = sc.chatID
		s.notify(ev)
	}
	return changed, true
}

func (sc Scope) write(fn func(s *MessageStore) (Event, bool)) bool {
	changed, _ := sc.apply(fn)
	return changed
}

// read runs fn under the read lock if the scope is active.
func (sc Scope) read(fn func(s *MessageStore)) bool {
	if sc.store == nil {
		return false
	}
	sc.store.mu.RLock()
	defer sc.store.mu.RUnlock()
	if !sc.activeLocked() {
		return false
	}
	fn(sc.store)
	return true
}

// Reaction reads the reaction on id while the scope is active.
func (sc Scope) Reaction(id string) (r string, ok bool) {
	sc.read(func(s *MessageStore) { r, ok = s.reactions[id] })
	return r, ok
}

// Transcription reads the transcript shown for id while the scope is active.
func (sc Scope) Transcription(id string) (t string, ok bool) {
	sc.read(func(s *MessageStore) { t, ok = s.transcriptions[id] })
	return t, ok
}

// Get returns message id of the scope's conversation.
func (sc Scope) Get(id string) (m models.Message, ok bool) {
	sc.read(func(s *MessageStore) { m, ok = s.getLocked(id) })
	return m, ok
}

// Voice returns a copy of the audio behind ref while the scope is active.
func (sc Scope) Voice(ref string) (b []byte, ok bool) {
	sc.read(func(s *MessageStore) { b, ok = s.voiceLocked(ref) })
	return b, ok
}

// Messages returns the sequence, or nil once the scope is stale.
func (sc Scope) Messages() (out []models.Message) {
	sc.read(func(s *MessageStore) { out = s.messagesLocked() })
	return out
}

// Append adds m at the end of the sequence. Invalid messages, duplicate ids
// and ids removed earlier in this conversation are rejected.
func (sc Scope) Append(m models.Message) bool {
	if !m.Valid() {
		return false
	}
	return sc.write(func(s *MessageStore) (Event, bool) {
		if _, dup := s.ids[m.ID]; dup {
			return Event{}, false
		}
		if _, gone := s.tombstones[m.ID]; gone {
			return Event{}, false
		}
		s.messages = append(s.messages, m)
		s.ids[m.ID] = struct{}{}
		return Event{Kind: EventAppended, ID: m.ID, Message: m}, true
	})
}

// Remove deletes id and its side entries. Removing an absent id only
// records that it must not come back through backfill.
func (sc Scope) Remove(id string) bool {
	return sc.write(func(s *MessageStore) (Event, bool) {
		s.tombstones[id] = struct{}{}
		if _, ok := s.ids[id]; !ok {
			return Event{}, false
		}
		for i, m := range s.messages {
			if m.ID == id {
				if m.VoiceRef != "" {
					delete(s.voices, m.VoiceRef)
				}
				s.messages = append(s.messages[:i:i], s.messages[i+1:]...)
				break
			}
		}
		delete(s.ids, id)
		delete(s.reactions, id)
		delete(s.transcriptions, id)
		return Event{Kind: EventRemoved, ID: id}, true
	})
}

// SetReaction stores reaction for id; nil or "" clears it.
func (sc Scope) SetReaction(id string, reaction *string) bool {
	return sc.write(func(s *MessageStore) (Event, bool) {
		s.reactionsSeen[id] = struct{}{}
		if reaction == nil || *reaction == "" {
			if _, ok := s.reactions[id]; !ok {
				return Event{}, false
			}
			delete(s.reactions, id)
			return Event{Kind: EventReaction, ID: id}, true
		}
		if s.reactions[id] == *reaction {
			return Event{}, false
		}
		s.reactions[id] = *reaction
		return Event{Kind: EventReaction, ID: id, Value: *reaction}, true
	})
}

// SetTranscription shows text for id; nil hides it.
func (sc Scope) SetTranscription(id string, text *string) bool {
	return sc.write(func(s *MessageStore) (Event, bool) {
		if text == nil {
			if _, ok := s.transcriptions[id]; !ok {
				return Event{}, false
			}
			delete(s.transcriptions, id)
			return Event{Kind: EventTranscription, ID: id}, true
		}
		s.transcriptions[id] = *text
		return Event{Kind: EventTranscription, ID: id, Value: *text}, true
	})
}

// SetTyping records the latest typing state of sender.
func (sc Scope) SetTyping(sender string, typing bool) bool {
	return sc.write(func(s *MessageStore) (Event, bool) {
		if s.typing[sender] == typing {
			return Event{}, false
		}
		if typing {
			s.typing[sender] = true
		} else {
			delete(s.typing, sender)
		}
		return Event{Kind: EventTyping, ID: sender, Typing: typing}, true
	})
}

// PutVoice keeps decrypted audio addressable by the returned ref for as long
// as the conversation stays selected. It returns "" for a stale scope.
func (sc Scope) PutVoice(audio []byte) string {
	ref := "voice:" + uuid.NewString()
	_, active := sc.apply(func(s *MessageStore) (Event, bool) {
		s.voices[ref] = append([]byte(nil), audio...)
		return Event{}, false
	})
	if !active {
		return ""
	}
	return ref
}

// DropVoice forgets audio stored by PutVoice that never made it into a message.
func (sc Scope) DropVoice(ref string) {
	sc.write(func(s *MessageStore) (Event, bool) {
		delete(s.voices, ref)
		return Event{}, false
	})
}

// Backfill merges history (oldest first) ahead of the messages that arrived
// live. Ids already present, removed, or repeated in history are skipped.
// History reactions only fill ids whose reaction was not touched live.
func (sc Scope) Backfill(history []models.Message, reactions map[string]string) bool {
	return sc.write(func(s *MessageStore) (Event, bool) {
		live := make(map[string]models.Message, len(s.messages))
		for _, m := range s.messages {
			live[m.ID] = m
		}
		seen := make(map[string]struct{}, len(history)+len(s.messages))
		merged := make([]models.Message, 0, len(history)+len(s.messages))
		for _, m := range history {
			_, gone := s.tombstones[m.ID]
			_, dup := seen[m.ID]
			if !m.Valid() || gone || dup {
				if m.VoiceRef != "" {
					delete(s.voices, m.VoiceRef)
				}
				continue
			}
			if l, ok := live[m.ID]; ok {
				// Keep the live copy so voice refs already handed out stay valid.
				if m.VoiceRef != "" && m.VoiceRef != l.VoiceRef {
					delete(s.voices, m.VoiceRef)
				}
				m = l
			}
			seen[m.ID] = struct{}{}
			merged = append(merged, m)
		}
		for _, m := range s.messages {
			if _, dup := seen[m.ID]; dup {
				continue
			}
			merged = append(merged, m)
			seen[m.ID] = struct{}{}
		}
		s.messages = merged
		s.ids = seen

		for id, r := range reactions {
			if r == "" {
				continue
			}
			if _, touched := s.reactionsSeen[id]; touched {
				continue
			}
			if _, ok := s.ids[id]; !ok {
				continue
			}
			s.reactions[id] = r
		}
		return Event{Kind: EventBackfilled}, true
	})
}
