// Package session is the application session of the chat client: the
// authenticated identity, the selected conversation with its connection
// and store, presence, and the augmentation features built on them.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/backend"
	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/metrics"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/protocol"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
)

var (
	ErrNoConversation      = errors.New("no conversation selected")
	ErrConversationChanged = errors.New("conversation changed before the result arrived")
)

// Backend is the subset of collaborator endpoints the session calls.
// *backend.Client implements it.
type Backend interface {
	History(ctx context.Context, chatID string) ([]models.HistoryRecord, error)
	Transcribe(ctx context.Context, audio []byte) (string, error)
	AutoReply(ctx context.Context, req backend.AutoReplyRequest) (string, error)
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

type Options struct {
	Host       string
	Identity   Identity
	AudioMode  crypto.AudioMode
	TypingIdle time.Duration

	Dialer     protocol.Dialer
	Backend    Backend
	Permission Permission
	Clock      protocol.Clock
	Metrics    *metrics.Collector

	OnNotice         func(models.Notice)
	OnTransportError func(error)
	OnStateChange    func(chatID string, state protocol.State)
}

// Session replaces the global auth, chat and loader state of a UI client
// with one explicit value. Exactly one conversation is selected at a time.
type Session struct {
	opts     Options
	store    *memory.MessageStore
	presence *memory.Presence
	recorder *Recorder
	log      *logrus.Entry

	ctx    context.Context
	cancel context.CancelFunc
	tasks  sync.WaitGroup

	selectMu sync.Mutex

	mu             sync.Mutex
	conv           *models.Conversation
	client         *protocol.Client
	presenceClient *protocol.Client
}

func New(opts Options) *Session {
	if opts.Dialer == nil {
		opts.Dialer = protocol.WSDialer{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:     opts,
		store:    memory.NewMessageStore(),
		presence: memory.NewPresence(),
		log: logrus.WithFields(logrus.Fields{
			"component": "session",
			"user_id":   opts.Identity.UserID,
		}),
		ctx:    ctx,
		cancel: cancel,
	}
	s.recorder = NewRecorder(opts.Permission, s.notice)
	return s
}

func (s *Session) Store() *memory.MessageStore { return s.store }

func (s *Session) Presence() *memory.Presence { return s.presence }

func (s *Session) Recorder() *Recorder { return s.recorder }

// Conversation returns the selected conversation.
func (s *Session) Conversation() (models.Conversation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conv == nil {
		return models.Conversation{}, false
	}
	return *s.conv, true
}

// State returns the connection state of the selected conversation.
func (s *Session) State() protocol.State {
	s.mu.Lock()
	c := s.client
	s.mu.Unlock()
	if c == nil {
		return protocol.StateClosed
	}
	return c.State()
}

func (s *Session) notice(n models.Notice) {
	if s.opts.OnNotice != nil {
		s.opts.OnNotice(n)
	}
}

func (s *Session) clientConfig(chatID string) protocol.Config {
	return protocol.Config{
		Host:       s.opts.Host,
		ChatID:     chatID,
		Token:      s.opts.Identity.Token,
		Self:       s.opts.Identity.UserID,
		Presence:   s.presence,
		TypingIdle: s.opts.TypingIdle,
		Clock:      s.opts.Clock,
		Metrics:    s.opts.Metrics,
		Logger:     logrus.WithField("component", "protocol"),
		OnNotice:   s.notice,
		OnTransportError: func(err error) {
			if s.opts.OnTransportError != nil {
				s.opts.OnTransportError(err)
			}
		},
		OnStateChange: func(state protocol.State) {
			if s.opts.OnStateChange != nil {
				s.opts.OnStateChange(chatID, state)
			}
		},
	}
}

// Select makes conv the active conversation. The previous connection is
// torn down and the store emptied before anything of conv is loaded;
// history is then fetched in the background while the new connection is
// dialed. A dial failure is returned, but conv stays selected and its
// history still loads; selecting it again retries the connection.
func (s *Session) Select(ctx context.Context, conv models.Conversation) error {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()

	if conv.Self == "" {
		conv.Self = s.opts.Identity.UserID
	}
	s.teardown()

	scope := s.store.Reset(conv.ChatID)
	sealer := protocol.NewSealer(conv.Self, conv.Keys, s.opts.AudioMode)

	cfg := s.clientConfig(conv.ChatID)
	cfg.Self = conv.Self
	cfg.Sealer = sealer
	cfg.Scope = scope
	client := protocol.New(cfg, s.opts.Dialer)

	s.mu.Lock()
	s.conv = &conv
	s.client = client
	s.mu.Unlock()

	s.log.WithField("chat_id", conv.ChatID).Info("conversation selected")

	if s.opts.Backend != nil {
		s.tasks.Add(1)
		go func() {
			defer s.tasks.Done()
			s.backfill(scope, sealer)
		}()
	}
	return client.Connect(ctx)
}

// teardown closes the selected connection and forgets the conversation.
func (s *Session) teardown() {
	s.mu.Lock()
	old := s.client
	s.client = nil
	s.conv = nil
	s.mu.Unlock()
	if old != nil {
		old.Close()
	}
}

// Deselect closes the selected conversation and empties the store.
func (s *Session) Deselect() {
	s.selectMu.Lock()
	defer s.selectMu.Unlock()
	s.teardown()
	s.store.Clear()
}

// Close ends the session: connections are closed and outstanding
// background work is cancelled and waited for.
func (s *Session) Close() {
	s.Deselect()
	s.mu.Lock()
	pc := s.presenceClient
	s.presenceClient = nil
	s.mu.Unlock()
	if pc != nil {
		pc.Close()
	}
	s.cancel()
	s.tasks.Wait()
}

// Wait blocks until background work started so far (history loads) is done.
func (s *Session) Wait() {
	s.tasks.Wait()
}

// backfill loads and decrypts the history of scope's conversation. Each
// record is opened on its own; one that fails is skipped.
func (s *Session) backfill(scope memory.Scope, sealer *protocol.Sealer) {
	log := s.log.WithField("chat_id", scope.ChatID())
	recs, err := s.opts.Backend.History(s.ctx, scope.ChatID())
	if err != nil {
		log.WithError(err).Warn("history unavailable")
		if scope.Active() {
			s.notice(models.Notice{Kind: models.NoticeCollaboratorError, Text: "Could not load message history"})
		}
		return
	}

	msgs := make([]models.Message, 0, len(recs))
	reactions := make(map[string]string)
	for i := range recs {
		rec := &recs[i]
		if rec.Reaction != nil && *rec.Reaction != "" {
			reactions[rec.ID] = *rec.Reaction
		}
		msg, audio, err := sealer.OpenRecord(rec)
		if err != nil {
			log.WithError(err).WithField("message_id", rec.ID).Warn("history record dropped")
			continue
		}
		if rec.IsVoice() {
			if msg.VoiceRef = scope.PutVoice(audio); msg.VoiceRef == "" {
				log.Debug("history discarded, conversation changed")
				return
			}
		}
		msgs = append(msgs, msg)
	}
	if !scope.Backfill(msgs, reactions) {
		log.Debug("history discarded, conversation changed")
		return
	}
	log.WithField("count", len(msgs)).Debug("history loaded")
}

// active returns the selected conversation's client.
func (s *Session) active(op string) (*protocol.Client, models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil || s.conv == nil {
		return nil, models.Conversation{}, errs.E(errs.Protocol, op, ErrNoConversation)
	}
	return s.client, *s.conv, nil
}

func (s *Session) SendText(text string) error {
	c, _, err := s.active("session.SendText")
	if err != nil {
		return err
	}
	return c.SendText(text)
}

func (s *Session) SendVoice(raw []byte) error {
	c, _, err := s.active("session.SendVoice")
	if err != nil {
		return err
	}
	return c.SendVoice(raw)
}

// Keystroke feeds the typing debouncer of the selected conversation.
func (s *Session) Keystroke() {
	if c, _, err := s.active("session.Keystroke"); err == nil {
		c.Keystroke()
	}
}

func (s *Session) Delete(id string) error {
	c, _, err := s.active("session.Delete")
	if err != nil {
		return err
	}
	return c.DeleteMessage(id)
}

// React toggles reaction on id.
func (s *Session) React(id, reaction string) error {
	c, _, err := s.active("session.React")
	if err != nil {
		return err
	}
	return c.SetReaction(id, reaction)
}

// WatchPresence joins the presence room. Calling it again while the room
// connection is up does nothing.
func (s *Session) WatchPresence(ctx context.Context) error {
	s.mu.Lock()
	pc := s.presenceClient
	if pc == nil {
		pc = protocol.New(s.clientConfig(protocol.PresenceRoom), s.opts.Dialer)
		s.presenceClient = pc
	}
	s.mu.Unlock()
	if pc.State() != protocol.StateClosed {
		return nil
	}
	return pc.Connect(ctx)
}
