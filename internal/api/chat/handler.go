// Package chat is the reference relay: the REST endpoints the chat client
// talks to and the websocket rooms that carry its frames. It stores and
// forwards ciphertext only.
package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-securechat/internal/crypto"
	"github.com/Vasu1712/scenyx-securechat/internal/metrics"
	"github.com/Vasu1712/scenyx-securechat/internal/middleware"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/storage/memory"
	"github.com/Vasu1712/scenyx-securechat/internal/ws"
)

// PageSize is the number of history records per page.
const PageSize = 50

// KeyPublisher mirrors registered public keys to an external directory.
type KeyPublisher interface {
	Publish(ctx context.Context, userID string, pemData []byte) error
}

type Handler struct {
	Store   *memory.DMStore
	Hub     *ws.Hub
	Keys    KeyPublisher // optional
	Metrics *metrics.Collector

	// FrameRate limits inbound frames per connection; zero disables it.
	FrameRate rate.Limit
	Burst     int
	// Origin is the browser origin allowed to open websockets.
	Origin string
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Warn("encode response")
	}
}

func (h *Handler) record(conv *models.DMConversation, self string) models.ConversationRecord {
	rec := models.ConversationRecord{
		ChatID:        conv.ID,
		Participants:  conv.Participants,
		CurrentUserID: self,
	}
	rec.PublicKey, _ = h.Store.PublicKey(self)
	rec.PeerPublicKey, _ = h.Store.PublicKey(conv.Peer(self))
	return rec
}

// ListConversations handles GET chat/chats/.
func (h *Handler) ListConversations(w http.ResponseWriter, r *http.Request) {
	self := middleware.UserID(r.Context())
	convs := h.Store.GetConversations(self)
	out := make([]models.ConversationRecord, 0, len(convs))
	for _, conv := range convs {
		out = append(out, h.record(conv, self))
	}
	writeJSON(w, http.StatusOK, out)
}

// GetMessages handles GET chat/{chat_id}/messages/?page=N.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	self := middleware.UserID(r.Context())
	chatID := mux.Vars(r)["chat_id"]
	conv, ok := h.Store.GetConversation(chatID)
	if !ok {
		http.Error(w, "conversation not found", http.StatusNotFound)
		return
	}
	if !conv.HasParticipant(self) {
		http.Error(w, "not a participant", http.StatusForbidden)
		return
	}
	page := 1
	if p := r.URL.Query().Get("page"); p != "" {
		n, err := strconv.Atoi(p)
		if err != nil || n < 1 {
			http.Error(w, "invalid page", http.StatusBadRequest)
			return
		}
		page = n
	}
	msgs, more := h.Store.GetMessages(chatID, page, PageSize)
	res := models.HistoryPage{Results: msgs}
	if more {
		res.Next = "?page=" + strconv.Itoa(page+1)
	}
	writeJSON(w, http.StatusOK, res)
}

// StartConversation handles POST chat/start_chat/ with {"user_id": peer}.
func (h *Handler) StartConversation(w http.ResponseWriter, r *http.Request) {
	self := middleware.UserID(r.Context())
	var req struct {
		UserID string `json:"user_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" || req.UserID == self {
		http.Error(w, "user_id must name another user", http.StatusBadRequest)
		return
	}
	conv := h.Store.StartOrGetConversation(self, req.UserID)
	logrus.WithFields(logrus.Fields{"chat_id": conv.ID, "user_id": self}).Info("conversation started")
	writeJSON(w, http.StatusOK, h.record(conv, self))
}

// SearchUsers handles GET chat/search_users/?email=.
func (h *Handler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	self := middleware.UserID(r.Context())
	out := []models.User{}
	for _, id := range h.Store.SearchUsers(r.URL.Query().Get("email")) {
		if id == self {
			continue
		}
		email, _ := h.Store.Email(id)
		out = append(out, models.User{ID: id, Email: email})
	}
	writeJSON(w, http.StatusOK, out)
}

// RegisterKey handles POST keys/ with the caller's public key PEM.
func (h *Handler) RegisterKey(w http.ResponseWriter, r *http.Request) {
	self := middleware.UserID(r.Context())
	var req models.PublicKeyRecord
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if _, err := crypto.ImportPublicKeyPEM([]byte(req.PublicKey)); err != nil {
		http.Error(w, "invalid public key", http.StatusBadRequest)
		return
	}
	h.Store.PutPublicKey(self, req.PublicKey)
	if h.Keys != nil {
		if err := h.Keys.Publish(r.Context(), self, []byte(req.PublicKey)); err != nil {
			logrus.WithError(err).WithField("user_id", self).Warn("mirror public key")
		}
	}
	w.WriteHeader(http.StatusNoContent)
}

// PublicKey handles GET keys/{user_id}/.
func (h *Handler) PublicKey(w http.ResponseWriter, r *http.Request) {
	userID := mux.Vars(r)["user_id"]
	pemData, ok := h.Store.PublicKey(userID)
	if !ok {
		http.Error(w, "no key registered", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, models.PublicKeyRecord{UserID: userID, PublicKey: pemData})
}

// identify records the caller's email for search.
func (h *Handler) identify(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c, ok := middleware.ClaimsFrom(r.Context()); ok && c.Email != "" {
			h.Store.RegisterUser(c.UserID, c.Email)
		}
		next.ServeHTTP(w, r)
	})
}
