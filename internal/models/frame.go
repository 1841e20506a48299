package models

import (
	"encoding/json"
	"strings"
)

// PresenceRoom is the reserved chat id of the conversation independent
// presence room.
const PresenceRoom = "presence"

// FrameType is the discriminator carried in every frame's "type" field.
type FrameType string

const (
	FrameMessage         FrameType = "message"
	FrameVoice           FrameType = "voice"
	FrameVoiceMessage    FrameType = "voice_message"
	FrameTyping          FrameType = "typing"
	FrameDelete          FrameType = "delete"
	FrameReaction        FrameType = "reaction"
	FramePresenceInitial FrameType = "presence_initial"
	FramePresenceUpdate  FrameType = "presence_update"
)

// NormalizeFrameType lower-cases t and accepts hyphenated spellings
// ("presence-initial") for the underscore forms.
func NormalizeFrameType(t string) FrameType {
	return FrameType(strings.ReplaceAll(strings.ToLower(strings.TrimSpace(t)), "-", "_"))
}

// Known reports whether t is one of the frame types of the protocol.
func (t FrameType) Known() bool {
	switch t {
	case FrameMessage, FrameVoice, FrameVoiceMessage, FrameTyping, FrameDelete,
		FrameReaction, FramePresenceInitial, FramePresenceUpdate:
		return true
	}
	return false
}

// Frame is one JSON protocol unit. Only the fields relevant to Type are set.
type Frame struct {
	Type FrameType `json:"type"`

	ID        string `json:"id,omitempty"`
	Sender    string `json:"sender,omitempty"`
	Recipient string `json:"recipient,omitempty"`
	Timestamp int64  `json:"timestamp,omitempty"`

	// Message is the outbound ciphertext; the relay echoes it back as Text.
	Message  string `json:"message,omitempty"`
	Text     string `json:"text,omitempty"`
	SelfText string `json:"self_text,omitempty"`

	EncryptedAudio      string `json:"encrypted_audio,omitempty"`
	EncryptedAESKey     string `json:"encrypted_aes_key,omitempty"`
	SelfEncryptedAESKey string `json:"self_encrypted_aes_key,omitempty"`
	IV                  string `json:"iv,omitempty"`
	AudioMode           string `json:"audio_mode,omitempty"`

	MessageID string  `json:"message_id,omitempty"`
	Reaction  *string `json:"reaction,omitempty"`

	IsTyping *bool `json:"is_typing,omitempty"`

	UserIDs []string `json:"user_ids,omitempty"`
	UserID  string   `json:"userId,omitempty"`
	Online  *bool    `json:"online,omitempty"`
}

type frameAlias Frame

// MarshalJSON writes an explicit "reaction": null on reaction frames so a
// clear is visible on the wire.
func (f Frame) MarshalJSON() ([]byte, error) {
	raw, err := json.Marshal(frameAlias(f))
	if err != nil {
		return nil, err
	}
	if f.Type != FrameReaction || f.Reaction != nil {
		return raw, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["reaction"] = json.RawMessage("null")
	return json.Marshal(fields)
}

// TargetID returns the message a delete or reaction frame refers to.
// Delete frames name it in "id" inbound and "message_id" outbound.
func (f *Frame) TargetID() string {
	if f.MessageID != "" {
		return f.MessageID
	}
	return f.ID
}

// Bool returns a pointer to v, for the optional boolean frame fields.
func Bool(v bool) *bool { return &v }

// String returns a pointer to v, or nil for the empty string.
func String(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
