package models

import (
	"crypto/rsa"
	"time"
)

// MessageKind distinguishes text from voice messages.
type MessageKind string

const (
	KindText  MessageKind = "text"
	KindVoice MessageKind = "voice"
)

// Message is a decrypted message held by the client store.
// Exactly one of Text and VoiceRef is set.
type Message struct {
	ID        string    `json:"id"`
	Sender    string    `json:"sender"`
	Text      string    `json:"text,omitempty"`
	VoiceRef  string    `json:"voice_ref,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Valid reports whether the message has an id and exactly one payload.
func (m Message) Valid() bool {
	if m.ID == "" {
		return false
	}
	return (m.Text == "") != (m.VoiceRef == "")
}

// Kind returns the payload kind.
func (m Message) Kind() MessageKind {
	if m.VoiceRef != "" {
		return KindVoice
	}
	return KindText
}

// KeyRing holds the keys one participant uses in a conversation. Private is
// never transmitted; PeerPublic is the only thing learned about the peer.
type KeyRing struct {
	Private    *rsa.PrivateKey
	SelfPublic *rsa.PublicKey
	PeerPublic *rsa.PublicKey
}

// Shared reports whether both participants use the same key pair, the layout
// legacy backends hand out.
func (k KeyRing) Shared() bool {
	if k.SelfPublic == nil || k.PeerPublic == nil {
		return false
	}
	return k.SelfPublic.Equal(k.PeerPublic)
}

// Complete reports whether every key needed to send and receive is present.
func (k KeyRing) Complete() bool {
	return k.Private != nil && k.SelfPublic != nil && k.PeerPublic != nil
}

// Conversation is the selected one-to-one conversation with resolved keys.
type Conversation struct {
	ChatID string
	Self   string
	Peer   string
	Keys   KeyRing
}
