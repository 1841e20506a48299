package protocol

import (
	"time"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// Sealer binds a conversation's key ring to the local identity. Live
// dispatch and history backfill both open payloads through it.
type Sealer struct {
	self string
	keys models.KeyRing
	mode crypto.AudioMode
}

func NewSealer(self string, keys models.KeyRing, mode crypto.AudioMode) *Sealer {
	if mode == "" {
		mode = crypto.ModeCBC
	}
	return &Sealer{self: self, keys: keys, mode: mode}
}

// Self returns the local identity.
func (s *Sealer) Self() string { return s.self }

// selfCopy reports whether outbound payloads need a second copy for self.
func (s *Sealer) selfCopy() bool {
	return s.keys.SelfPublic != nil && !s.keys.Shared()
}

// SealText encrypts plaintext for the peer and, unless the pair is shared,
// for self.
func (s *Sealer) SealText(plaintext string) (text, selfText string, err error) {
	if text, err = crypto.EncryptText(s.keys.PeerPublic, plaintext); err != nil {
		return "", "", err
	}
	if s.selfCopy() {
		if selfText, err = crypto.EncryptText(s.keys.SelfPublic, plaintext); err != nil {
			return "", "", err
		}
	}
	return text, selfText, nil
}

// SealVoice encrypts raw audio with the configured mode.
func (s *Sealer) SealVoice(raw []byte) (*crypto.AudioEnvelope, error) {
	var self = s.keys.SelfPublic
	if !s.selfCopy() {
		self = nil
	}
	return crypto.EncryptAudioFor(s.mode, raw, s.keys.PeerPublic, self)
}

// OpenText decrypts a text payload sent by sender. Own messages are read
// from the self copy when one is present.
func (s *Sealer) OpenText(sender, text, selfText string) (string, error) {
	first, second := text, selfText
	if sender == s.self && selfText != "" {
		first, second = selfText, text
	}
	pt, err := crypto.DecryptText(s.keys.Private, first)
	if err == nil || second == "" {
		return pt, err
	}
	return crypto.DecryptText(s.keys.Private, second)
}

// OpenVoice decrypts the audio carried by a voice frame or history record.
func (s *Sealer) OpenVoice(sender, audio, key, selfKey, iv, mode string) ([]byte, error) {
	first, second := key, selfKey
	if sender == s.self && selfKey != "" {
		first, second = selfKey, key
	}
	raw, err := crypto.DecryptAudio(s.keys.Private, audio, first, iv, crypto.AudioMode(mode))
	if err == nil || second == "" {
		return raw, err
	}
	return crypto.DecryptAudio(s.keys.Private, audio, second, iv, crypto.AudioMode(mode))
}

// OpenRecord decrypts one history record. For voice records the decrypted
// audio is returned and the message's VoiceRef is left for the caller to
// fill once the audio is stored.
func (s *Sealer) OpenRecord(rec *models.HistoryRecord) (models.Message, []byte, error) {
	const op = "protocol.OpenRecord"
	msg := models.Message{ID: rec.ID, Sender: rec.SenderID}
	if rec.Timestamp > 0 {
		msg.Timestamp = time.Unix(rec.Timestamp, 0)
	}
	if rec.IsVoice() {
		raw, err := s.OpenVoice(rec.SenderID, rec.EncryptedAudio, rec.EncryptedAESKey,
			rec.SelfEncryptedAESKey, rec.IV, rec.AudioMode)
		return msg, raw, err
	}
	text, err := s.OpenText(rec.SenderID, rec.Text, rec.SelfText)
	if err != nil {
		return msg, nil, err
	}
	if text == "" {
		return msg, nil, errs.E(errs.Protocol, op, ErrMalformedFrame)
	}
	msg.Text = text
	return msg, nil, nil
}
