package session

import (
	"context"
	"errors"
	"strings"

	"github.com/Vasu1712/scenyx-securechat/internal/backend"
	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
)

// autoReplyContext is how many recent messages are sent as context.
const autoReplyContext = 5

var (
	ErrNotVoice        = errors.New("message is not a voice message")
	ErrNoReplyContext  = errors.New("no text or transcribable voice messages to reply to")
	ErrNoCollaborators = errors.New("no backend configured")
	ErrNothingToSpeak  = errors.New("message has no text to speak")
)

// Transcribe toggles the transcript of voice message id: the first call
// fetches and shows it, the second hides it, the third fetches again. It
// reports whether a transcript is shown afterwards. A failed fetch raises
// a collaborator_error notice and leaves the store untouched.
func (s *Session) Transcribe(ctx context.Context, id string) (bool, error) {
	const op = "session.Transcribe"
	scope := s.store.Current()
	if scope.ChatID() == "" {
		return false, errs.E(errs.Protocol, op, ErrNoConversation)
	}
	if _, shown := scope.Transcription(id); shown {
		scope.SetTranscription(id, nil)
		return false, nil
	}
	if s.opts.Backend == nil {
		return false, errs.E(errs.Collaborator, op, ErrNoCollaborators)
	}

	msg, ok := scope.Get(id)
	if !ok || msg.Kind() != models.KindVoice {
		if !scope.Active() {
			return false, errs.E(errs.Collaborator, op, ErrConversationChanged)
		}
		return false, errs.E(errs.Protocol, op, ErrNotVoice)
	}
	audio, ok := scope.Voice(msg.VoiceRef)
	if !ok {
		return false, errs.E(errs.Protocol, op, ErrNotVoice)
	}

	text, err := s.opts.Backend.Transcribe(ctx, audio)
	if err != nil {
		s.log.WithError(err).WithField("message_id", id).Warn("transcription failed")
		if scope.Active() {
			s.notice(models.Notice{Kind: models.NoticeCollaboratorError, Text: "Transcription failed", MessageID: id})
		}
		return false, err
	}
	if !scope.Active() {
		return false, errs.E(errs.Collaborator, op, ErrConversationChanged)
	}
	scope.SetTranscription(id, &text)
	return true, nil
}

// AutoReply asks the collaborator for a reply to the last few messages.
// Voice messages are transcribed first; those that fail are left out. The
// reply is returned for the caller to review or send.
func (s *Session) AutoReply(ctx context.Context) (string, error) {
	const op = "session.AutoReply"
	_, conv, err := s.active(op)
	if err != nil {
		return "", err
	}
	if s.opts.Backend == nil {
		return "", errs.E(errs.Collaborator, op, ErrNoCollaborators)
	}
	scope := s.store.Current()

	msgs := scope.Messages()
	if len(msgs) > autoReplyContext {
		msgs = msgs[len(msgs)-autoReplyContext:]
	}
	req := backend.AutoReplyRequest{ChatID: conv.ChatID, Recipient: conv.Peer}
	for _, m := range msgs {
		cm := backend.ContextMessage{Sender: m.Sender, Type: backend.ContextText, Text: m.Text}
		if !m.Timestamp.IsZero() {
			cm.Timestamp = m.Timestamp.Unix()
		}
		if m.Kind() == models.KindVoice {
			text, ok := s.transcript(ctx, scope, m)
			if !ok {
				continue
			}
			cm.Type, cm.Text = backend.ContextAudioTranscribed, text
		}
		req.Messages = append(req.Messages, cm)
	}
	if len(req.Messages) == 0 {
		return "", errs.E(errs.Collaborator, op, ErrNoReplyContext)
	}

	reply, err := s.opts.Backend.AutoReply(ctx, req)
	if err != nil {
		if scope.Active() {
			s.notice(models.Notice{Kind: models.NoticeCollaboratorError, Text: "Failed to generate auto reply"})
		}
		return "", err
	}
	if !scope.Active() {
		return "", errs.E(errs.Collaborator, op, ErrConversationChanged)
	}
	return reply, nil
}

// Speak synthesizes message id as audio for playback. Voice messages are
// spoken from their transcript, fetching one if none is shown.
func (s *Session) Speak(ctx context.Context, id string) ([]byte, string, error) {
	const op = "session.Speak"
	scope := s.store.Current()
	if scope.ChatID() == "" {
		return nil, "", errs.E(errs.Protocol, op, ErrNoConversation)
	}
	if s.opts.Backend == nil {
		return nil, "", errs.E(errs.Collaborator, op, ErrNoCollaborators)
	}
	msg, ok := scope.Get(id)
	if !ok {
		if !scope.Active() {
			return nil, "", errs.E(errs.Collaborator, op, ErrConversationChanged)
		}
		return nil, "", errs.E(errs.Protocol, op, ErrNothingToSpeak)
	}
	text := msg.Text
	if msg.Kind() == models.KindVoice {
		if text, ok = s.transcript(ctx, scope, msg); !ok {
			text = ""
		}
	}
	if strings.TrimSpace(text) == "" {
		return nil, "", errs.E(errs.Protocol, op, ErrNothingToSpeak)
	}

	audio, mime, err := s.opts.Backend.Synthesize(ctx, text)
	if err != nil {
		s.log.WithError(err).WithField("message_id", id).Warn("speech synthesis failed")
		if scope.Active() {
			s.notice(models.Notice{Kind: models.NoticeCollaboratorError, Text: "Text to speech failed", MessageID: id})
		}
		return nil, "", err
	}
	if !scope.Active() {
		return nil, "", errs.E(errs.Collaborator, op, ErrConversationChanged)
	}
	return audio, mime, nil
}

// transcript returns the shown transcript of m or fetches one.
func (s *Session) transcript(ctx context.Context, scope memory.Scope, m models.Message) (string, bool) {
	if t, ok := scope.Transcription(m.ID); ok {
		return t, true
	}
	audio, ok := scope.Voice(m.VoiceRef)
	if !ok {
		return "", false
	}
	text, err := s.opts.Backend.Transcribe(ctx, audio)
	if err != nil || text == "" {
		s.log.WithError(err).WithField("message_id", m.ID).Debug("voice message left out of auto reply")
		return "", false
	}
	return text, true
}
