package chat

import (
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/Vasu1712/scenyx-securechat/internal/middleware"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
	"github.com/Vasu1712/scenyx-securechat/internal/ws"
)

const (
	sendBuffer   = 256
	maxFrameSize = 8 << 20
)

func (h *Handler) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" || origin == h.Origin {
				return true
			}
			u, err := url.Parse(origin)
			return err == nil && u.Host == r.Host
		},
	}
}

// ServeWS handles /ws/chat/{chat_id}/. The caller must take part in the
// conversation; the presence room is open to every authenticated user.
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	self := middleware.UserID(r.Context())
	chatID := mux.Vars(r)["chat_id"]
	log := logrus.WithFields(logrus.Fields{"chat_id": chatID, "user_id": self})

	if chatID != models.PresenceRoom {
		conv, ok := h.Store.GetConversation(chatID)
		if !ok {
			http.Error(w, "conversation not found", http.StatusNotFound)
			return
		}
		if !conv.HasParticipant(self) {
			http.Error(w, "not a participant", http.StatusForbidden)
			return
		}
	}

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("websocket upgrade")
		return
	}
	conn.SetReadLimit(maxFrameSize)

	client := &ws.Client{
		UserID: self,
		ChatID: chatID,
		Send:   make(chan []byte, sendBuffer),
	}
	if !h.Hub.Join(client) {
		conn.Close()
		return
	}
	go h.writePump(conn, client)
	go h.readPump(conn, client, log)
}

func (h *Handler) writePump(conn *websocket.Conn, client *ws.Client) {
	defer conn.Close()
	for data := range client.Send {
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	_ = conn.WriteMessage(websocket.CloseMessage, msg)
}

func (h *Handler) readPump(conn *websocket.Conn, client *ws.Client, log *logrus.Entry) {
	defer func() {
		h.Hub.Leave(client)
		conn.Close()
	}()

	var limiter *rate.Limiter
	if h.FrameRate > 0 {
		burst := h.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(h.FrameRate, burst)
	}

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Info("connection lost")
			}
			return
		}
		if limiter != nil && !limiter.Allow() {
			h.Metrics.Dropped("rate_limited")
			continue
		}
		if client.ChatID == models.PresenceRoom {
			h.Metrics.Dropped("presence_inbound")
			continue
		}
		out, reason := h.relay(client, data)
		if out == nil {
			h.Metrics.Dropped(reason)
			log.WithField("reason", reason).Debug("frame dropped")
			continue
		}
		encoded, err := json.Marshal(out)
		if err != nil {
			log.WithError(err).Error("encode frame")
			continue
		}
		h.Metrics.Sent(string(out.Type))
		h.Hub.Publish(client.ChatID, encoded)
	}
}

// relay turns one client frame into the frame broadcast to the room,
// persisting it first where it is durable. The sender is always the
// authenticated user. A nil frame comes with the reason it was dropped.
func (h *Handler) relay(client *ws.Client, data []byte) (*models.Frame, string) {
	var in models.Frame
	if err := json.Unmarshal(data, &in); err != nil {
		return nil, "malformed"
	}
	in.Type = models.NormalizeFrameType(string(in.Type))
	if !in.Type.Known() {
		return nil, "unknown"
	}
	h.Metrics.Received(string(in.Type))

	switch in.Type {
	case models.FrameMessage:
		text := in.Message
		if text == "" {
			text = in.Text
		}
		if text == "" {
			return nil, "malformed"
		}
		msg, err := h.Store.AddMessage(client.ChatID, models.DMMessage{
			SenderID: client.UserID,
			Text:     text,
			SelfText: in.SelfText,
		})
		if err != nil {
			return nil, "store"
		}
		return &models.Frame{
			Type:      models.FrameMessage,
			ID:        msg.ID,
			Sender:    msg.SenderID,
			Timestamp: msg.Timestamp,
			Text:      msg.Text,
			SelfText:  msg.SelfText,
		}, ""

	case models.FrameVoice, models.FrameVoiceMessage:
		if in.EncryptedAudio == "" || in.EncryptedAESKey == "" {
			return nil, "malformed"
		}
		msg, err := h.Store.AddMessage(client.ChatID, models.DMMessage{
			SenderID:            client.UserID,
			EncryptedAudio:      in.EncryptedAudio,
			EncryptedAESKey:     in.EncryptedAESKey,
			SelfEncryptedAESKey: in.SelfEncryptedAESKey,
			IV:                  in.IV,
			AudioMode:           in.AudioMode,
		})
		if err != nil {
			return nil, "store"
		}
		return &models.Frame{
			Type:                models.FrameVoiceMessage,
			ID:                  msg.ID,
			Sender:              msg.SenderID,
			Timestamp:           msg.Timestamp,
			EncryptedAudio:      msg.EncryptedAudio,
			EncryptedAESKey:     msg.EncryptedAESKey,
			SelfEncryptedAESKey: msg.SelfEncryptedAESKey,
			IV:                  msg.IV,
			AudioMode:           msg.AudioMode,
		}, ""

	case models.FrameTyping:
		typing := in.IsTyping != nil && *in.IsTyping
		return &models.Frame{Type: models.FrameTyping, Sender: client.UserID, IsTyping: models.Bool(typing)}, ""

	case models.FrameDelete:
		target := in.TargetID()
		if target == "" {
			return nil, "malformed"
		}
		if err := h.Store.DeleteMessage(client.ChatID, target, client.UserID); err != nil {
			return nil, "rejected"
		}
		return &models.Frame{Type: models.FrameDelete, ID: target, MessageID: target, Sender: client.UserID}, ""

	case models.FrameReaction:
		target := in.TargetID()
		if target == "" {
			return nil, "malformed"
		}
		if in.Reaction != nil && *in.Reaction == "" {
			in.Reaction = nil
		}
		if err := h.Store.SetReaction(client.ChatID, target, in.Reaction); err != nil {
			return nil, "rejected"
		}
		return &models.Frame{Type: models.FrameReaction, MessageID: target, Sender: client.UserID, Reaction: in.Reaction}, ""
	}
	return nil, "unknown"
}
