package protocol

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/metrics"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
)

var (
	ErrNotConnected       = errors.New("not connected")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrClosedWhileDialing = errors.New("closed while connecting")
)

// State is the connection state of a Client.
type State int32

const (
	StateClosed State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	default:
		return "closed"
	}
}

const (
	sendBuffer  = 64
	eventBuffer = 64
)

// Config wires a Client to one conversation (or the presence room).
type Config struct {
	Host   string
	ChatID string
	Token  string
	Self   string

	// Sealer and Scope are required for conversation rooms; the presence
	// room only needs Presence.
	Sealer   *Sealer
	Scope    memory.Scope
	Presence *memory.Presence

	TypingIdle time.Duration
	Clock      Clock
	Metrics    *metrics.Collector
	Logger     *logrus.Entry

	OnNotice         func(models.Notice)
	OnTransportError func(error)
	OnStateChange    func(State)
}

// Client is one duplex connection to a chat room. Inbound frames are
// handled one at a time on a single loop goroutine; writes go through a
// dedicated write pump. There is no automatic reconnection: after a
// transport error the client stays Closed until Connect is called again.
type Client struct {
	cfg    Config
	dialer Dialer
	clock  Clock
	log    *logrus.Entry
	typist *Typist

	mu    sync.Mutex
	state State
	link  *link
}

// link is the per-connection plumbing. A new one is made on every Connect
// so pumps left over from an earlier connection can be told apart.
type link struct {
	conn       Conn
	send       chan []byte
	events     chan event
	done       chan struct{}
	writerDone chan struct{}
	once       sync.Once
}

type event struct {
	data []byte
	err  error
}

func newLink(conn Conn) *link {
	return &link{
		conn:       conn,
		send:       make(chan []byte, sendBuffer),
		events:     make(chan event, eventBuffer),
		done:       make(chan struct{}),
		writerDone: make(chan struct{}),
	}
}

func (l *link) stop() {
	l.once.Do(func() { close(l.done) })
}

// New returns a Closed client for cfg.
func New(cfg Config, dialer Dialer) *Client {
	if dialer == nil {
		dialer = WSDialer{}
	}
	clock := cfg.Clock
	if clock == nil {
		clock = RealClock{}
	}
	log := cfg.Logger
	if log == nil {
		log = logrus.WithField("component", "protocol")
	}
	c := &Client{
		cfg:    cfg,
		dialer: dialer,
		clock:  clock,
		log:    log.WithField("chat_id", cfg.ChatID),
	}
	c.typist = NewTypist(clock, cfg.TypingIdle, func(typing bool) {
		if err := c.SetTyping(typing); err != nil {
			c.log.WithError(err).Debug("typing frame not sent")
		}
	})
	return c
}

// ChatID returns the room the client is bound to.
func (c *Client) ChatID() string { return c.cfg.ChatID }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) stateChanged(s State) {
	c.log.WithField("state", s.String()).Debug("connection state")
	if c.cfg.OnStateChange != nil {
		c.cfg.OnStateChange(s)
	}
}

// Connect dials the room and starts the pumps. It is only valid from
// Closed. A dial failure leaves the client Closed and is reported both as
// the return value and through OnTransportError.
func (c *Client) Connect(ctx context.Context) error {
	const op = "protocol.Connect"

	c.mu.Lock()
	if c.state != StateClosed {
		s := c.state
		c.mu.Unlock()
		return errs.E(errs.Protocol, op, fmt.Errorf("%w: connect from %s", ErrInvalidTransition, s))
	}
	c.state = StateConnecting
	c.mu.Unlock()
	c.stateChanged(StateConnecting)

	conn, err := c.dialer.Dial(ctx, URL(c.cfg.Host, c.cfg.ChatID, c.cfg.Token))

	c.mu.Lock()
	aborted := c.state != StateConnecting
	if err != nil || aborted {
		c.state = StateClosed
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		c.stateChanged(StateClosed)
		if err == nil {
			return errs.E(errs.Transport, op, ErrClosedWhileDialing)
		}
		err = errs.E(errs.Transport, op, err)
		c.log.WithError(err).Error("dial failed")
		if !aborted && c.cfg.OnTransportError != nil {
			c.cfg.OnTransportError(err)
		}
		return err
	}
	l := newLink(conn)
	c.link = l
	c.state = StateOpen
	c.mu.Unlock()

	go c.readPump(l)
	go c.writePump(l)
	go c.loop(l)
	c.log.Info("connected")
	c.stateChanged(StateOpen)
	return nil
}

// Close tears the connection down: Open → Closing → Closed. Closing an
// already closed client is a no-op. A Close during Connecting makes the
// pending Connect fail.
func (c *Client) Close() error {
	c.mu.Lock()
	switch c.state {
	case StateClosed, StateClosing:
		c.mu.Unlock()
		return nil
	case StateConnecting:
		c.state = StateClosing
		c.mu.Unlock()
		c.stateChanged(StateClosing)
		return nil
	}
	l := c.link
	c.link = nil
	c.state = StateClosing
	c.mu.Unlock()
	c.stateChanged(StateClosing)

	l.stop()
	c.typist.Stop()
	<-l.writerDone
	err := l.conn.Close()

	c.mu.Lock()
	c.state = StateClosed
	c.mu.Unlock()
	c.log.Info("disconnected")
	c.stateChanged(StateClosed)
	return err
}

// fail handles a transport error on l. Errors from a link that is no
// longer current are ignored.
func (c *Client) fail(l *link, cause error) {
	c.mu.Lock()
	if c.link != l {
		c.mu.Unlock()
		return
	}
	c.link = nil
	c.state = StateClosed
	c.mu.Unlock()

	l.stop()
	c.typist.Stop()
	l.conn.Close()

	err := errs.E(errs.Transport, "protocol.Client", cause)
	c.log.WithError(cause).Error("connection lost")
	c.stateChanged(StateClosed)
	if c.cfg.OnTransportError != nil {
		c.cfg.OnTransportError(err)
	}
}

func (c *Client) readPump(l *link) {
	for {
		_, data, err := l.conn.ReadMessage()
		ev := event{data: data, err: err}
		select {
		case l.events <- ev:
		case <-l.done:
			return
		}
		if err != nil {
			return
		}
	}
}

func (c *Client) writePump(l *link) {
	defer close(l.writerDone)
	for {
		select {
		case data := <-l.send:
			if err := l.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.fail(l, err)
				return
			}
		case <-l.done:
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = l.conn.WriteMessage(websocket.CloseMessage, msg)
			return
		}
	}
}

// loop serializes inbound handling for one link.
func (c *Client) loop(l *link) {
	for {
		select {
		case ev := <-l.events:
			if ev.err != nil {
				c.fail(l, ev.err)
				return
			}
			c.handle(ev.data)
		case <-l.done:
			return
		}
	}
}

// send queues f on the current link.
func (c *Client) send(op string, f *models.Frame) error {
	data, err := encodeFrame(f)
	if err != nil {
		return errs.E(errs.Protocol, op, err)
	}

	c.mu.Lock()
	l := c.link
	open := c.state == StateOpen && l != nil
	c.mu.Unlock()
	if !open {
		return errs.E(errs.Transport, op, ErrNotConnected)
	}

	select {
	case l.send <- data:
		c.cfg.Metrics.Sent(string(f.Type))
		return nil
	case <-l.done:
		return errs.E(errs.Transport, op, ErrNotConnected)
	}
}

func (c *Client) notice(n models.Notice) {
	if c.cfg.OnNotice != nil {
		c.cfg.OnNotice(n)
	}
}
