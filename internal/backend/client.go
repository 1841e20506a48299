// Package backend is the HTTP client of the chat collaborator endpoints:
// conversation listing, ciphertext history, user search, key directory,
// transcription, auto-reply and speech synthesis.
package backend

import (
	"bytes"
	"context"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/errs"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// maxHistoryPages bounds pagination against a server that never ends it.
const maxHistoryPages = 1000

var ErrUnsuccessful = errors.New("collaborator reported failure")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

type Client struct {
	base  *url.URL
	token string
	http  *http.Client
	log   *logrus.Entry
}

// New returns a client for baseURL (e.g. "http://127.0.0.1:8000/api/").
// A nil httpClient gets a 30 second timeout.
func New(baseURL, token string, httpClient *http.Client) (*Client, error) {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{
		base:  base,
		token: token,
		http:  httpClient,
		log:   logrus.WithField("component", "backend"),
	}, nil
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, in, out any) error {
	ref := &url.URL{Path: path}
	if query != nil {
		ref.RawQuery = query.Encode()
	}
	target := c.base.ResolveReference(ref)

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	c.log.WithFields(logrus.Fields{
		"method":   method,
		"path":     target.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	}).Debug("request")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// Conversations lists the conversations of the authenticated user.
func (c *Client) Conversations(ctx context.Context) ([]models.ConversationRecord, error) {
	var out []models.ConversationRecord
	if err := c.do(ctx, http.MethodGet, "chat/chats/", nil, nil, &out); err != nil {
		return nil, errs.E(errs.Collaborator, "backend.Conversations", err)
	}
	return out, nil
}

// History fetches the whole ciphertext history of chatID, oldest first,
// following pagination. Servers that return a bare array are treated as a
// single page.
func (c *Client) History(ctx context.Context, chatID string) ([]models.HistoryRecord, error) {
	const op = "backend.History"
	var all []models.HistoryRecord
	path := "chat/" + chatID + "/messages/"
	for page := 1; page <= maxHistoryPages; page++ {
		var raw json.RawMessage
		q := url.Values{"page": {strconv.Itoa(page)}}
		if err := c.do(ctx, http.MethodGet, path, q, nil, &raw); err != nil {
			return nil, errs.E(errs.Collaborator, op, err)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			var recs []models.HistoryRecord
			if err := json.Unmarshal(raw, &recs); err != nil {
				return nil, errs.E(errs.Collaborator, op, err)
			}
			return append(all, recs...), nil
		}
		var p models.HistoryPage
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, errs.E(errs.Collaborator, op, err)
		}
		all = append(all, p.Results...)
		if p.Next == "" {
			return all, nil
		}
	}
	return nil, errs.E(errs.Collaborator, op, fmt.Errorf("history of %s exceeds %d pages", chatID, maxHistoryPages))
}

// StartConversation opens (or returns the existing) conversation with userID.
func (c *Client) StartConversation(ctx context.Context, userID string) (*models.ConversationRecord, error) {
	var out models.ConversationRecord
	in := map[string]string{"user_id": userID}
	if err := c.do(ctx, http.MethodPost, "chat/start_chat/", nil, in, &out); err != nil {
		return nil, errs.E(errs.Collaborator, "backend.StartConversation", err)
	}
	return &out, nil
}

// SearchUsers finds users by email.
func (c *Client) SearchUsers(ctx context.Context, email string) ([]models.User, error) {
	var out []models.User
	q := url.Values{"email": {email}}
	if err := c.do(ctx, http.MethodGet, "chat/search_users/", q, nil, &out); err != nil {
		return nil, errs.E(errs.Collaborator, "backend.SearchUsers", err)
	}
	return out, nil
}

// Transcribe converts decrypted audio to text.
func (c *Client) Transcribe(ctx context.Context, audio []byte) (string, error) {
	var out struct {
		Transcription string `json:"transcription"`
	}
	in := map[string]string{"audio": base64.StdEncoding.EncodeToString(audio)}
	if err := c.do(ctx, http.MethodPost, "chat/transcribe/", nil, in, &out); err != nil {
		return "", errs.E(errs.Collaborator, "backend.Transcribe", err)
	}
	return out.Transcription, nil
}

// ContextMessage is one entry of the auto-reply context.
type ContextMessage struct {
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Type      string `json:"type"`
}

const (
	ContextText             = "text"
	ContextAudioTranscribed = "audio_transcribed"
)

type AutoReplyRequest struct {
	Messages  []ContextMessage `json:"messages"`
	ChatID    string           `json:"chat_id"`
	Recipient string           `json:"recipient"`
}

// AutoReply asks the collaborator for a suggested reply.
func (c *Client) AutoReply(ctx context.Context, req AutoReplyRequest) (string, error) {
	const op = "backend.AutoReply"
	var out struct {
		Success   bool   `json:"success"`
		ReplyText string `json:"reply_text"`
	}
	if err := c.do(ctx, http.MethodPost, "chat/auto-reply/", nil, req, &out); err != nil {
		return "", errs.E(errs.Collaborator, op, err)
	}
	if !out.Success || out.ReplyText == "" {
		return "", errs.E(errs.Collaborator, op, ErrUnsuccessful)
	}
	return out.ReplyText, nil
}

// Synthesize converts text to speech, returning the audio and its MIME type.
func (c *Client) Synthesize(ctx context.Context, text string) ([]byte, string, error) {
	const op = "backend.Synthesize"
	var out struct {
		Audio string `json:"audio"`
		Mime  string `json:"mime"`
	}
	if err := c.do(ctx, http.MethodPost, "chat/tts/", nil, map[string]string{"text": text}, &out); err != nil {
		return nil, "", errs.E(errs.Collaborator, op, err)
	}
	audio, err := base64.StdEncoding.DecodeString(out.Audio)
	if err != nil {
		return nil, "", errs.E(errs.Collaborator, op, err)
	}
	if out.Mime == "" {
		out.Mime = "audio/mpeg"
	}
	return audio, out.Mime, nil
}

// PublicKey fetches the registered public key of userID.
func (c *Client) PublicKey(ctx context.Context, userID string) (*rsa.PublicKey, error) {
	const op = "backend.PublicKey"
	var out models.PublicKeyRecord
	if err := c.do(ctx, http.MethodGet, "keys/"+userID+"/", nil, nil, &out); err != nil {
		return nil, errs.E(errs.Collaborator, op, err)
	}
	pub, err := crypto.ImportPublicKeyPEM([]byte(out.PublicKey))
	if err != nil {
		return nil, errs.E(errs.Collaborator, op, err)
	}
	return pub, nil
}

// RegisterPublicKey publishes the caller's public key.
func (c *Client) RegisterPublicKey(ctx context.Context, pemData []byte) error {
	in := models.PublicKeyRecord{PublicKey: string(pemData)}
	if err := c.do(ctx, http.MethodPost, "keys/", nil, in, nil); err != nil {
		return errs.E(errs.Collaborator, "backend.RegisterPublicKey", err)
	}
	return nil
}
