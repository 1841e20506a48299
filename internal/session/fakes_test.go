package session

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-securechat/internal/backend"
	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/protocol"
)

var (
	keysOnce   sync.Once
	alice, bob *rsa.PrivateKey
)

func testKeys(t *testing.T) {
	t.Helper()
	keysOnce.Do(func() {
		var err error
		if alice, err = crypto.GenerateKeyPair(crypto.DefaultKeyBits); err != nil {
			panic(err)
		}
		if bob, err = crypto.GenerateKeyPair(crypto.DefaultKeyBits); err != nil {
			panic(err)
		}
	})
}

func conversation(t *testing.T, chatID string) models.Conversation {
	testKeys(t)
	return models.Conversation{
		ChatID: chatID,
		Self:   "alice",
		Peer:   "bob",
		Keys:   models.KeyRing{Private: alice, SelfPublic: &alice.PublicKey, PeerPublic: &bob.PublicKey},
	}
}

// bobSealer seals payloads the way the peer would.
func bobSealer(t *testing.T) *protocol.Sealer {
	testKeys(t)
	return protocol.NewSealer("bob", models.KeyRing{Private: bob, SelfPublic: &bob.PublicKey, PeerPublic: &alice.PublicKey}, crypto.ModeCBC)
}

type pipeConn struct {
	in        chan []byte
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *pipeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-c.in:
		return websocket.TextMessage, data, nil
	case <-c.closed:
		return 0, nil, errors.New("closed")
	}
}

func (c *pipeConn) WriteMessage(mt int, data []byte) error {
	if mt == websocket.TextMessage {
		select {
		case c.out <- data:
		default:
		}
	}
	return nil
}

func (c *pipeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *pipeConn) push(t *testing.T, f models.Frame) {
	t.Helper()
	data, err := json.Marshal(f)
	require.NoError(t, err)
	c.in <- data
}

type pipeDialer struct {
	mu    sync.Mutex
	conns map[string]*pipeConn
	urls  []string
	err   error
}

func newPipeDialer() *pipeDialer {
	return &pipeDialer{conns: make(map[string]*pipeConn)}
}

func (d *pipeDialer) Dial(_ context.Context, rawURL string) (protocol.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, rawURL)
	if d.err != nil {
		return nil, d.err
	}
	c := &pipeConn{in: make(chan []byte, 16), out: make(chan []byte, 16), closed: make(chan struct{})}
	d.conns[rawURL] = c
	return c, nil
}

func (d *pipeDialer) conn(rawURL string) *pipeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[rawURL]
}

type fakeBackend struct {
	mu           sync.Mutex
	history      map[string][]models.HistoryRecord
	historyErr   error
	release      chan struct{}
	transcript   string
	transcripts  int
	transErr     error
	reply        string
	replyErr     error
	lastReply    backend.AutoReplyRequest
	speechErr    error
	spoken       []string
	onTranscribe func()
}

func (b *fakeBackend) History(ctx context.Context, chatID string) ([]models.HistoryRecord, error) {
	if b.release != nil {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.historyErr != nil {
		return nil, b.historyErr
	}
	return b.history[chatID], nil
}

func (b *fakeBackend) Transcribe(_ context.Context, audio []byte) (string, error) {
	if b.onTranscribe != nil {
		b.onTranscribe()
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transcripts++
	if b.transErr != nil {
		return "", b.transErr
	}
	return b.transcript, nil
}

func (b *fakeBackend) AutoReply(_ context.Context, req backend.AutoReplyRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lastReply = req
	return b.reply, b.replyErr
}

func (b *fakeBackend) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.spoken = append(b.spoken, text)
	if b.speechErr != nil {
		return nil, "", b.speechErr
	}
	return []byte("speech:" + text), "audio/mpeg", nil
}
