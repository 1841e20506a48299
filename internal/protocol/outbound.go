package protocol

import (
	"errors"
	"strings"

	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

var (
	ErrEmptyMessage = errors.New("empty message")
	ErrNoKeys       = errors.New("conversation keys not available")
)

func (c *Client) sealer(op string) (*Sealer, error) {
	if c.cfg.Sealer == nil {
		return nil, errs.E(errs.Crypto, op, ErrNoKeys)
	}
	return c.cfg.Sealer, nil
}

// SendText encrypts plaintext and emits a message frame. Whitespace-only
// text is rejected. There is no acknowledgement; the relay echo is what
// lands in the store. A pending typing burst still ends on its idle timer.
func (c *Client) SendText(plaintext string) error {
	const op = "protocol.SendText"
	if strings.TrimSpace(plaintext) == "" {
		return errs.E(errs.Protocol, op, ErrEmptyMessage)
	}
	s, err := c.sealer(op)
	if err != nil {
		return err
	}
	text, selfText, err := s.SealText(plaintext)
	if err != nil {
		return err
	}
	return c.send(op, &models.Frame{
		Type:     models.FrameMessage,
		Sender:   c.cfg.Self,
		Message:  text,
		SelfText: selfText,
	})
}

// SendVoice encrypts raw audio and emits a voice frame.
func (c *Client) SendVoice(raw []byte) error {
	const op = "protocol.SendVoice"
	if len(raw) == 0 {
		return errs.E(errs.Protocol, op, ErrEmptyMessage)
	}
	s, err := c.sealer(op)
	if err != nil {
		return err
	}
	env, err := s.SealVoice(raw)
	if err != nil {
		return err
	}
	return c.send(op, &models.Frame{
		Type:                models.FrameVoice,
		Sender:              c.cfg.Self,
		EncryptedAudio:      env.Audio,
		EncryptedAESKey:     env.SessionKey,
		SelfEncryptedAESKey: env.SelfSessionKey,
		IV:                  env.IV,
		AudioMode:           string(env.Mode),
	})
}

// SetTyping emits one typing frame. Callers normally go through Keystroke,
// which debounces.
func (c *Client) SetTyping(typing bool) error {
	return c.send("protocol.SetTyping", &models.Frame{
		Type:     models.FrameTyping,
		Sender:   c.cfg.Self,
		IsTyping: models.Bool(typing),
	})
}

// Keystroke reports local input activity to the typing debouncer.
func (c *Client) Keystroke() {
	c.typist.Keystroke()
}

// DeleteMessage asks every participant to remove id. The local store is
// only updated when the delete frame comes back.
func (c *Client) DeleteMessage(id string) error {
	const op = "protocol.DeleteMessage"
	if id == "" {
		return errs.E(errs.Protocol, op, ErrMalformedFrame)
	}
	return c.send(op, &models.Frame{
		Type:      models.FrameDelete,
		Sender:    c.cfg.Self,
		MessageID: id,
	})
}

// SetReaction emits reaction for id, or a clear when the local reaction
// on id already equals reaction.
func (c *Client) SetReaction(id, reaction string) error {
	const op = "protocol.SetReaction"
	if id == "" {
		return errs.E(errs.Protocol, op, ErrMalformedFrame)
	}
	value := models.String(reaction)
	if r, ok := c.cfg.Scope.Reaction(id); ok && r == reaction {
		value = nil
	}
	return c.send(op, &models.Frame{
		Type:      models.FrameReaction,
		Sender:    c.cfg.Self,
		MessageID: id,
		Reaction:  value,
	})
}
