package protocol

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

var errConnClosed = errors.New("use of closed connection")

type fakeConn struct {
	in      chan []byte
	readErr chan error
	wrote   chan []byte

	mu       sync.Mutex
	writeErr error

	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:      make(chan []byte, 64),
		readErr: make(chan error, 1),
		wrote:   make(chan []byte, 64),
		closed:  make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case err := <-c.readErr:
		return 0, nil, err
	case <-c.closed:
		return 0, nil, errConnClosed
	}
}

func (c *fakeConn) WriteMessage(messageType int, data []byte) error {
	c.mu.Lock()
	err := c.writeErr
	c.mu.Unlock()
	if err != nil {
		return err
	}
	if messageType != websocket.TextMessage {
		return nil
	}
	c.wrote <- append([]byte(nil), data...)
	return nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) push(t *testing.T, v any) {
	t.Helper()
	if raw, ok := v.(string); ok {
		c.in <- []byte(raw)
		return
	}
	data, err := json.Marshal(v)
	require.NoError(t, err)
	c.in <- data
}

// next returns the next frame the client wrote.
func (c *fakeConn) next(t *testing.T) (*models.Frame, []byte) {
	t.Helper()
	select {
	case data := <-c.wrote:
		var f models.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return &f, data
	case <-time.After(2 * time.Second):
		t.Fatal("no frame written")
		return nil, nil
	}
}

func (c *fakeConn) quiet(t *testing.T) {
	t.Helper()
	select {
	case data := <-c.wrote:
		t.Fatalf("unexpected frame written: %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

type fakeDialer struct {
	conn *fakeConn
	err  error

	mu   sync.Mutex
	urls []string
}

func (d *fakeDialer) Dial(_ context.Context, rawURL string) (Conn, error) {
	d.mu.Lock()
	d.urls = append(d.urls, rawURL)
	d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	return d.conn, nil
}

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	timers []*fakeTimer
}

type fakeTimer struct {
	clock   *fakeClock
	at      time.Time
	fn      func()
	stopped bool
	fired   bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(1700000000, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), fn: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward and runs every timer that came due, in order.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired && !t.at.After(c.now) {
			t.fired = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()
	for _, t := range due {
		t.fn()
	}
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}
