package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

var (
	ErrUnknownFrame   = errors.New("unknown frame type")
	ErrMalformedFrame = errors.New("malformed frame")
)

// DecodeFrame parses one inbound payload and checks that the fields its
// type needs are present. Every failure is an errs.Protocol error.
func DecodeFrame(data []byte) (*models.Frame, error) {
	const op = "protocol.DecodeFrame"
	var f models.Frame
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, errs.E(errs.Protocol, op, fmt.Errorf("%w: %v", ErrMalformedFrame, err))
	}
	f.Type = models.NormalizeFrameType(string(f.Type))
	if !f.Type.Known() {
		return nil, errs.E(errs.Protocol, op, fmt.Errorf("%w %q", ErrUnknownFrame, f.Type))
	}
	if err := validate(&f); err != nil {
		return nil, errs.E(errs.Protocol, op, fmt.Errorf("%w: %s: %v", ErrMalformedFrame, f.Type, err))
	}
	return &f, nil
}

func validate(f *models.Frame) error {
	switch f.Type {
	case models.FrameMessage:
		if f.Text == "" {
			// Some relays echo the outbound field name.
			f.Text = f.Message
		}
		if f.ID == "" || f.Text == "" {
			return errors.New("id and text are required")
		}
	case models.FrameVoice, models.FrameVoiceMessage:
		if f.ID == "" || f.EncryptedAudio == "" || f.EncryptedAESKey == "" {
			return errors.New("id, encrypted_audio and encrypted_aes_key are required")
		}
	case models.FrameTyping:
		if f.IsTyping == nil {
			return errors.New("is_typing is required")
		}
	case models.FrameDelete, models.FrameReaction:
		if f.TargetID() == "" {
			return errors.New("message id is required")
		}
	case models.FramePresenceUpdate:
		if f.UserID == "" || f.Online == nil {
			return errors.New("userId and online are required")
		}
	}
	return nil
}

func encodeFrame(f *models.Frame) ([]byte, error) {
	return json.Marshal(f)
}
