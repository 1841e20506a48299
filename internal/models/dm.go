package models

// DMMessage is a message as the relay stores and serves it: ciphertext only.
// HistoryRecord and live frames are both derived from it.
type DMMessage struct {
	ID                  string  `json:"id"`
	ConversationID      string  `json:"chat_id"`
	SenderID            string  `json:"sender"`
	Text                string  `json:"text,omitempty"`
	SelfText            string  `json:"self_text,omitempty"`
	EncryptedAudio      string  `json:"encrypted_audio,omitempty"`
	EncryptedAESKey     string  `json:"encrypted_aes_key,omitempty"`
	SelfEncryptedAESKey string  `json:"self_encrypted_aes_key,omitempty"`
	IV                  string  `json:"iv,omitempty"`
	AudioMode           string  `json:"audio_mode,omitempty"`
	Reaction            *string `json:"reaction,omitempty"`
	Timestamp           int64   `json:"timestamp"`
}

// HistoryRecord is one entry of the paginated history endpoint.
type HistoryRecord = DMMessage

// IsVoice reports whether the record carries an audio payload.
func (m *DMMessage) IsVoice() bool {
	return m.EncryptedAudio != "" && m.EncryptedAESKey != ""
}

// DMConversation is the relay's view of a one-to-one conversation.
type DMConversation struct {
	ID           string    `json:"id"`
	Participants [2]string `json:"participants"` // Always 2 for DM
	CreatedAt    int64     `json:"created_at"`
	UpdatedAt    int64     `json:"updated_at"`
}

// Peer returns the participant that is not self, or "" if self is not a participant.
func (c *DMConversation) Peer(self string) string {
	switch self {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	}
	return ""
}

// HasParticipant reports whether userID takes part in the conversation.
func (c *DMConversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// ConversationRecord is the conversation shape returned by the list and start
// endpoints. PrivateKey is only populated by legacy backends that hand out a
// shared key pair per conversation.
type ConversationRecord struct {
	ChatID        string    `json:"chat_id"`
	Participants  [2]string `json:"participants"`
	CurrentUserID string    `json:"current_user_id,omitempty"`
	PublicKey     string    `json:"public_key,omitempty"`
	PrivateKey    string    `json:"private_key,omitempty"`
	PeerPublicKey string    `json:"peer_public_key,omitempty"`
}

// Peer returns the participant other than self.
func (r *ConversationRecord) Peer(self string) string {
	if r.Participants[0] == self {
		return r.Participants[1]
	}
	return r.Participants[0]
}
