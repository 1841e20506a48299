package chat

import (
	"bytes"
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/metrics"
	"github.com/Vasu1712/scenyx-securechat/internal/middleware"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-securechat/internal/ws"
)

type relayFixture struct {
	h      *Handler
	auth   *middleware.Auth
	router http.Handler
	reg    *prometheus.Registry
}

func newRelay(t *testing.T) *relayFixture {
	t.Helper()
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	hub := ws.NewHub(m)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	h := &Handler{Store: memory.NewDMStore(), Hub: hub, Metrics: m}
	auth := &middleware.Auth{Secret: []byte("test-secret")}
	return &relayFixture{h: h, auth: auth, router: NewRouter(h, auth, reg), reg: reg}
}

func (f *relayFixture) token(t *testing.T, userID, email string) string {
	t.Helper()
	tok, err := f.auth.Issue(userID, email, time.Hour)
	require.NoError(t, err)
	return tok
}

func (f *relayFixture) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	return rec
}

func publicPEM(t *testing.T) string {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 1024)
	require.NoError(t, err)
	p, err := crypto.ExportPublicKeyPEM(&key.PublicKey)
	require.NoError(t, err)
	return string(p)
}

func TestEndpointsRequireAuth(t *testing.T) {
	f := newRelay(t)
	for _, path := range []string{"/api/chat/chats/", "/api/chat/search_users/?email=x", "/ws/chat/presence/"} {
		rec := f.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
}

func TestStartConversationAndList(t *testing.T) {
	f := newRelay(t)
	alice := f.token(t, "alice", "alice@example.com")
	bob := f.token(t, "bob", "bob@example.com")

	bobKey := publicPEM(t)
	rec := f.do(t, http.MethodPost, "/api/keys/", bob, models.PublicKeyRecord{PublicKey: bobKey})
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/chat/start_chat/", alice, map[string]string{"user_id": "alice"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/chat/start_chat/", alice, map[string]string{"user_id": "bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	var started models.ConversationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &started))
	assert.NotEmpty(t, started.ChatID)
	assert.Equal(t, "alice", started.CurrentUserID)
	assert.Equal(t, bobKey, started.PeerPublicKey)
	assert.Empty(t, started.PrivateKey)

	rec = f.do(t, http.MethodGet, "/api/chat/chats/", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var listed []models.ConversationRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, started.ChatID, listed[0].ChatID)
	assert.Equal(t, "bob", listed[0].CurrentUserID)
	assert.Equal(t, bobKey, listed[0].PublicKey)
	assert.Equal(t, "alice", listed[0].Peer("bob"))
}

func TestGetMessagesPaginatesAndChecksMembership(t *testing.T) {
	f := newRelay(t)
	conv := f.h.Store.StartOrGetConversation("alice", "bob")
	for i := 0; i < PageSize+3; i++ {
		_, err := f.h.Store.AddMessage(conv.ID, models.DMMessage{SenderID: "alice", Text: "ct"})
		require.NoError(t, err)
	}
	alice := f.token(t, "alice", "")

	rec := f.do(t, http.MethodGet, "/api/chat/"+conv.ID+"/messages/", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var page models.HistoryPage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Results, PageSize)
	assert.Equal(t, "?page=2", page.Next)

	rec = f.do(t, http.MethodGet, "/api/chat/"+conv.ID+"/messages/?page=2", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	page = models.HistoryPage{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &page))
	assert.Len(t, page.Results, 3)
	assert.Empty(t, page.Next)

	rec = f.do(t, http.MethodGet, "/api/chat/"+conv.ID+"/messages/?page=zero", alice, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chat/"+conv.ID+"/messages/", f.token(t, "mallory", ""), nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/chat/nope/messages/", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSearchUsersExcludesCaller(t *testing.T) {
	f := newRelay(t)
	bob := f.token(t, "bob", "bob@example.com")
	f.do(t, http.MethodGet, "/api/chat/chats/", bob, nil)
	alice := f.token(t, "alice", "alice@example.com")

	rec := f.do(t, http.MethodGet, "/api/chat/search_users/?email=example", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var users []models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &users))
	assert.Equal(t, []models.User{{ID: "bob", Email: "bob@example.com"}}, users)
}

type publisherFunc func(ctx context.Context, userID string, pemData []byte) error

func (f publisherFunc) Publish(ctx context.Context, userID string, pemData []byte) error {
	return f(ctx, userID, pemData)
}

func TestKeyRegistration(t *testing.T) {
	f := newRelay(t)
	var mirrored []string
	f.h.Keys = publisherFunc(func(_ context.Context, userID string, _ []byte) error {
		mirrored = append(mirrored, userID)
		return nil
	})
	alice := f.token(t, "alice", "")

	rec := f.do(t, http.MethodPost, "/api/keys/", alice, models.PublicKeyRecord{PublicKey: "not a key"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/keys/alice/", alice, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	key := publicPEM(t)
	rec = f.do(t, http.MethodPost, "/api/keys/", alice, models.PublicKeyRecord{UserID: "someone-else", PublicKey: key})
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"alice"}, mirrored)

	rec = f.do(t, http.MethodGet, "/api/keys/alice/", f.token(t, "bob", ""), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var got models.PublicKeyRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "alice", got.UserID)
	assert.Equal(t, key, got.PublicKey)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRelay(t)
	f.h.Metrics.Dropped("rate_limited")

	rec := f.do(t, http.MethodGet, "/metrics", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "securechat_frames_dropped_total")
}

func TestRelayFrameTranslation(t *testing.T) {
	f := newRelay(t)
	conv := f.h.Store.StartOrGetConversation("alice", "bob")
	alice := &ws.Client{UserID: "alice", ChatID: conv.ID}
	bob := &ws.Client{UserID: "bob", ChatID: conv.ID}

	out, reason := f.h.relay(alice, []byte(`{"type":"message","message":"ct","self_text":"own","sender":"mallory"}`))
	require.NotNil(t, out, reason)
	assert.Equal(t, models.FrameMessage, out.Type)
	assert.Equal(t, "alice", out.Sender)
	assert.Equal(t, "ct", out.Text)
	assert.Equal(t, "own", out.SelfText)
	assert.NotEmpty(t, out.ID)
	assert.NotZero(t, out.Timestamp)
	id := out.ID

	out, _ = f.h.relay(bob, []byte(`{"type":"voice","encrypted_audio":"a","encrypted_aes_key":"k","iv":"i","audio_mode":"cbc"}`))
	require.NotNil(t, out)
	assert.Equal(t, models.FrameVoiceMessage, out.Type)
	assert.Equal(t, "bob", out.Sender)
	assert.Equal(t, "i", out.IV)

	out, _ = f.h.relay(bob, []byte(`{"type":"reaction","message_id":"`+id+`","reaction":"👍"}`))
	require.NotNil(t, out)
	require.NotNil(t, out.Reaction)
	assert.Equal(t, "👍", *out.Reaction)

	out, _ = f.h.relay(bob, []byte(`{"type":"reaction","message_id":"`+id+`","reaction":null}`))
	require.NotNil(t, out)
	assert.Nil(t, out.Reaction)

	out, reason = f.h.relay(bob, []byte(`{"type":"delete","message_id":"`+id+`"}`))
	assert.Nil(t, out)
	assert.Equal(t, "rejected", reason)

	out, _ = f.h.relay(alice, []byte(`{"type":"delete","message_id":"`+id+`"}`))
	require.NotNil(t, out)
	assert.Equal(t, id, out.ID)
	assert.Equal(t, "alice", out.Sender)

	out, _ = f.h.relay(alice, []byte(`{"type":"Typing"}`))
	require.NotNil(t, out)
	require.NotNil(t, out.IsTyping)
	assert.False(t, *out.IsTyping)

	for raw, want := range map[string]string{
		`not json`:                    "malformed",
		`{"type":"message"}`:          "malformed",
		`{"type":"voice"}`:            "malformed",
		`{"type":"delete"}`:           "malformed",
		`{"type":"presence_initial"}`: "unknown",
		`{"type":"shout"}`:            "unknown",
	} {
		out, reason := f.h.relay(alice, []byte(raw))
		assert.Nil(t, out, raw)
		assert.Equal(t, want, reason, raw)
	}

	msgs, _ := f.h.Store.GetMessages(conv.ID, 0, 0)
	require.Len(t, msgs, 1)
	assert.Equal(t, "bob", msgs[0].SenderID)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.h.Metrics.FramesReceived.WithLabelValues("message")))
}
