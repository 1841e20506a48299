package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-securechat/internal/backend"
	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/protocol"
	"github.com/Vasu1712/scenyx-securechat/internal/session"
)

type lineConn struct {
	out       chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func (c *lineConn) ReadMessage() (int, []byte, error) {
	<-c.closed
	return 0, nil, errors.New("closed")
}

func (c *lineConn) WriteMessage(mt int, data []byte) error {
	if mt == websocket.TextMessage {
		select {
		case c.out <- data:
		default:
		}
	}
	return nil
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

type lineDialer struct{ conn *lineConn }

func (d *lineDialer) Dial(context.Context, string) (protocol.Conn, error) {
	return d.conn, nil
}

type replyBackend struct{}

func (replyBackend) History(context.Context, string) ([]models.HistoryRecord, error) {
	return nil, nil
}

func (replyBackend) Transcribe(context.Context, []byte) (string, error) { return "", nil }

func (replyBackend) AutoReply(context.Context, backend.AutoReplyRequest) (string, error) {
	return "sounds good", nil
}

func (replyBackend) Synthesize(_ context.Context, text string) ([]byte, string, error) {
	return []byte("speech:" + text), "audio/mpeg", nil
}

func nextFrame(t *testing.T, c *lineConn) models.Frame {
	t.Helper()
	select {
	case data := <-c.out:
		var f models.Frame
		require.NoError(t, json.Unmarshal(data, &f))
		return f
	case <-time.After(2 * time.Second):
		t.Fatal("nothing sent")
	}
	return models.Frame{}
}

func noFrame(t *testing.T, c *lineConn) {
	t.Helper()
	select {
	case data := <-c.out:
		t.Fatalf("unexpected frame %s", data)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestCommands(t *testing.T) {
	key, err := crypto.GenerateKeyPair(crypto.DefaultKeyBits)
	require.NoError(t, err)
	conn := &lineConn{out: make(chan []byte, 16), closed: make(chan struct{})}
	s := session.New(session.Options{
		Host:     "relay",
		Identity: session.Identity{UserID: "alice", Token: "tok"},
		Dialer:   &lineDialer{conn: conn},
		Backend:  replyBackend{},
	})
	t.Cleanup(s.Close)
	ctx := context.Background()
	require.NoError(t, s.Select(ctx, models.Conversation{
		ChatID: "chat-a",
		Self:   "alice",
		Peer:   "bob",
		Keys:   models.KeyRing{Private: key, SelfPublic: &key.PublicKey, PeerPublic: &key.PublicKey},
	}))
	s.Wait()
	var out bytes.Buffer

	t.Run("plain line types then sends", func(t *testing.T) {
		require.NoError(t, command(ctx, s, "hello", &out))
		f := nextFrame(t, conn)
		assert.Equal(t, models.FrameTyping, f.Type)
		require.NotNil(t, f.IsTyping)
		assert.True(t, *f.IsTyping)
		f = nextFrame(t, conn)
		assert.Equal(t, models.FrameMessage, f.Type)
	})

	t.Run("suggest only prints", func(t *testing.T) {
		for len(conn.out) > 0 {
			<-conn.out
		}
		out.Reset()
		require.NoError(t, command(ctx, s, "/suggest", &out))
		assert.Equal(t, "* suggestion: sounds good\n", out.String())
		noFrame(t, conn)
	})

	t.Run("reply sends the suggestion", func(t *testing.T) {
		require.NoError(t, command(ctx, s, "/reply", &out))
		for {
			f := nextFrame(t, conn)
			if f.Type == models.FrameMessage {
				assert.NotEmpty(t, f.Message)
				return
			}
		}
	})

	t.Run("speak writes audio", func(t *testing.T) {
		s.Store().Append(models.Message{ID: "t1", Sender: "bob", Text: "words"})
		file := filepath.Join(t.TempDir(), "t1.mp3")
		require.NoError(t, command(ctx, s, "/speak t1 "+file, &out))
		data, err := os.ReadFile(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("speech:words"), data)

		assert.Error(t, command(ctx, s, "/speak", &out))
	})

	t.Run("unknown command", func(t *testing.T) {
		assert.EqualError(t, command(ctx, s, "/nope", &out), "unknown command /nope")
	})
}
