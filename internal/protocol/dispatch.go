package protocol

import (
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// Drop reasons reported to metrics.
const (
	dropMalformed = "malformed"
	dropUnknown   = "unknown"
	dropDecrypt   = "decrypt"
	dropStale     = "stale"
	dropUnhandled = "unhandled"
)

// handle dispatches one inbound payload. Nothing here returns an error to
// the caller: bad frames are logged, counted and dropped.
func (c *Client) handle(data []byte) {
	f, err := DecodeFrame(data)
	if err != nil {
		reason := dropMalformed
		if errors.Is(err, ErrUnknownFrame) {
			reason = dropUnknown
		}
		c.drop(reason, "", err)
		return
	}
	c.cfg.Metrics.Received(string(f.Type))

	switch f.Type {
	case models.FrameMessage:
		c.onMessage(f)
	case models.FrameVoice, models.FrameVoiceMessage:
		c.onVoice(f)
	case models.FrameTyping:
		c.onTyping(f)
	case models.FrameDelete:
		c.onDelete(f)
	case models.FrameReaction:
		c.onReaction(f)
	case models.FramePresenceInitial:
		c.onPresenceInitial(f)
	case models.FramePresenceUpdate:
		c.onPresenceUpdate(f)
	}
}

func (c *Client) drop(reason string, t models.FrameType, err error) {
	c.cfg.Metrics.Dropped(reason)
	entry := c.log.WithFields(logrus.Fields{"reason": reason, "frame_type": string(t)})
	if err != nil {
		entry = entry.WithError(err)
	}
	entry.Warn("frame dropped")
}

// conversation reports whether conversation frames can be applied, dropping
// f when they cannot.
func (c *Client) conversation(f *models.Frame) bool {
	if c.cfg.Sealer == nil {
		c.drop(dropUnhandled, f.Type, nil)
		return false
	}
	if !c.cfg.Scope.Active() {
		c.drop(dropStale, f.Type, nil)
		return false
	}
	return true
}

func (c *Client) timestamp(f *models.Frame) time.Time {
	if f.Timestamp > 0 {
		return time.Unix(f.Timestamp, 0)
	}
	return c.clock.Now()
}

func (c *Client) onMessage(f *models.Frame) {
	if !c.conversation(f) {
		return
	}
	text, err := c.cfg.Sealer.OpenText(f.Sender, f.Text, f.SelfText)
	if err != nil {
		c.drop(dropDecrypt, f.Type, err)
		return
	}
	if text == "" {
		c.drop(dropMalformed, f.Type, nil)
		return
	}
	c.cfg.Scope.Append(models.Message{
		ID:        f.ID,
		Sender:    f.Sender,
		Text:      text,
		Timestamp: c.timestamp(f),
	})
}

func (c *Client) onVoice(f *models.Frame) {
	if !c.conversation(f) {
		return
	}
	raw, err := c.cfg.Sealer.OpenVoice(f.Sender, f.EncryptedAudio, f.EncryptedAESKey,
		f.SelfEncryptedAESKey, f.IV, f.AudioMode)
	if err != nil {
		c.drop(dropDecrypt, f.Type, err)
		return
	}
	ref := c.cfg.Scope.PutVoice(raw)
	if ref == "" {
		c.drop(dropStale, f.Type, nil)
		return
	}
	if !c.cfg.Scope.Append(models.Message{
		ID:        f.ID,
		Sender:    f.Sender,
		VoiceRef:  ref,
		Timestamp: c.timestamp(f),
	}) {
		c.cfg.Scope.DropVoice(ref)
	}
}

func (c *Client) onTyping(f *models.Frame) {
	if f.Sender == c.cfg.Self {
		return
	}
	if c.cfg.Sealer == nil {
		c.drop(dropUnhandled, f.Type, nil)
		return
	}
	c.cfg.Scope.SetTyping(f.Sender, *f.IsTyping)
}

func (c *Client) onDelete(f *models.Frame) {
	if !c.conversation(f) {
		return
	}
	id := f.TargetID()
	if !c.cfg.Scope.Remove(id) {
		return
	}
	n := models.Notice{Kind: models.NoticeUnsentPeer, Text: "Peer unsent a message", MessageID: id}
	if f.Sender == c.cfg.Self {
		n = models.Notice{Kind: models.NoticeDeletedSelf, Text: "You deleted your message", MessageID: id}
	}
	c.notice(n)
}

func (c *Client) onReaction(f *models.Frame) {
	if !c.conversation(f) {
		return
	}
	c.cfg.Scope.SetReaction(f.TargetID(), f.Reaction)
}

func (c *Client) onPresenceInitial(f *models.Frame) {
	if c.cfg.Presence == nil {
		c.drop(dropUnhandled, f.Type, nil)
		return
	}
	c.cfg.Presence.Replace(f.UserIDs)
}

func (c *Client) onPresenceUpdate(f *models.Frame) {
	if c.cfg.Presence == nil {
		c.drop(dropUnhandled, f.Type, nil)
		return
	}
	c.cfg.Presence.Set(f.UserID, *f.Online)
}
