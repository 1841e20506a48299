// Package protocol implements the chat client side of the websocket wire
// protocol: one duplex connection per selected conversation, JSON frames,
// typing debounce and presence.
package protocol

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// PresenceRoom is the reserved chat id of the presence room.
const PresenceRoom = models.PresenceRoom

// Conn is one established duplex connection. *websocket.Conn satisfies it.
// ReadMessage is only called from one goroutine and WriteMessage from
// another.
type Conn interface {
	ReadMessage() (messageType int, data []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Dialer opens connections to a chat endpoint.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// WSDialer dials over gorilla websocket.
type WSDialer struct {
	Dialer *websocket.Dialer
	Header http.Header
}

func (d WSDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	dialer := d.Dialer
	if dialer == nil {
		dialer = &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		}
	}
	conn, resp, err := dialer.DialContext(ctx, rawURL, d.Header)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// URL builds the endpoint of chatID on host. host may carry an http(s) or
// ws(s) scheme; a bare host:port means plain ws.
func URL(host, chatID, token string) string {
	scheme := "ws"
	switch {
	case strings.HasPrefix(host, "https://"), strings.HasPrefix(host, "wss://"):
		scheme = "wss"
	}
	for _, p := range []string{"https://", "http://", "wss://", "ws://"} {
		host = strings.TrimPrefix(host, p)
	}
	host = strings.TrimSuffix(host, "/")

	u := url.URL{Scheme: scheme, Host: host, Path: "/ws/chat/" + chatID + "/"}
	if token != "" {
		u.RawQuery = url.Values{"token": {token}}.Encode()
	}
	return u.String()
}
