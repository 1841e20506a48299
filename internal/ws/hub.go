package ws

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Vasu1712/scenyx-securechat/internal/metrics"
	"github.com/Vasu1712/scenyx-securechat/internal/models"
)

// Client is one websocket connection joined to a chat room. The hub owns
// Send and closes it when the client leaves or falls behind.
type Client struct {
	UserID string
	ChatID string
	Send   chan []byte
}

// Hub fans frames out to the connections of each chat room and tracks who
// is online in the presence room.
type Hub struct {
	Clients    map[string]map[*Client]bool // chatID -> clients
	Register   chan *Client
	Unregister chan *Client
	Broadcast  chan BroadcastMessage

	done    chan struct{}
	mu      sync.RWMutex
	online  map[string]int // userID -> presence connections
	metrics *metrics.Collector
	log     *logrus.Entry
}

type BroadcastMessage struct {
	ChatID string
	Data   []byte
}

func NewHub(m *metrics.Collector) *Hub {
	return &Hub{
		Clients:    make(map[string]map[*Client]bool),
		Register:   make(chan *Client),
		Unregister: make(chan *Client),
		Broadcast:  make(chan BroadcastMessage),
		done:       make(chan struct{}),
		online:     make(map[string]int),
		metrics:    m,
		log:        logrus.WithField("component", "relay"),
	}
}

// Run serves the hub until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case client := <-h.Register:
			h.register(client)
		case client := <-h.Unregister:
			h.unregister(client)
		case msg := <-h.Broadcast:
			h.mu.Lock()
			h.fanout(msg.ChatID, msg.Data, nil)
			h.mu.Unlock()
		case <-ctx.Done():
			h.shutdown()
			return
		}
	}
}

// Join registers client. It reports false once the hub has stopped.
func (h *Hub) Join(client *Client) bool {
	select {
	case h.Register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Leave unregisters client. Leaving twice is harmless.
func (h *Hub) Leave(client *Client) {
	select {
	case h.Unregister <- client:
	case <-h.done:
	}
}

// Publish queues data for every connection of chatID.
func (h *Hub) Publish(chatID string, data []byte) {
	select {
	case h.Broadcast <- BroadcastMessage{ChatID: chatID, Data: data}:
	case <-h.done:
	}
}

func (h *Hub) register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.Clients[client.ChatID] == nil {
		h.Clients[client.ChatID] = make(map[*Client]bool)
	}
	h.Clients[client.ChatID][client] = true
	h.metrics.ConnOpened()
	h.log.WithFields(logrus.Fields{"chat_id": client.ChatID, "user_id": client.UserID}).Debug("joined")

	if client.ChatID != models.PresenceRoom {
		return
	}
	others := make([]string, 0, len(h.online))
	for id := range h.online {
		if id != client.UserID {
			others = append(others, id)
		}
	}
	sort.Strings(others)
	h.deliver(client, &models.Frame{Type: models.FramePresenceInitial, UserIDs: others})

	h.online[client.UserID]++
	if h.online[client.UserID] == 1 {
		h.announce(client.UserID, true, client)
	}
}

func (h *Hub) unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.Clients[client.ChatID]
	if !ok || !clients[client] {
		return
	}
	h.drop(client)
	h.log.WithFields(logrus.Fields{"chat_id": client.ChatID, "user_id": client.UserID}).Debug("left")
}

// drop removes client and, for the presence room, announces the user going
// offline when this was their last connection. Callers hold mu.
func (h *Hub) drop(client *Client) {
	clients := h.Clients[client.ChatID]
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.Clients, client.ChatID)
	}
	close(client.Send)
	h.metrics.ConnClosed()

	if client.ChatID != models.PresenceRoom {
		return
	}
	h.online[client.UserID]--
	if h.online[client.UserID] <= 0 {
		delete(h.online, client.UserID)
		h.announce(client.UserID, false, nil)
	}
}

func (h *Hub) announce(userID string, online bool, except *Client) {
	data, err := json.Marshal(&models.Frame{
		Type:   models.FramePresenceUpdate,
		UserID: userID,
		Online: models.Bool(online),
	})
	if err != nil {
		h.log.WithError(err).Error("encode presence update")
		return
	}
	h.fanout(models.PresenceRoom, data, except)
}

// fanout queues data to every client of chatID but except. Clients whose
// buffer is full are dropped. Callers hold mu.
func (h *Hub) fanout(chatID string, data []byte, except *Client) {
	var slow []*Client
	for client := range h.Clients[chatID] {
		if client == except {
			continue
		}
		select {
		case client.Send <- data:
		default:
			slow = append(slow, client)
		}
	}
	for _, client := range slow {
		h.log.WithField("user_id", client.UserID).Warn("dropping slow client")
		h.drop(client)
	}
}

func (h *Hub) deliver(client *Client, f *models.Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		h.log.WithError(err).Error("encode frame")
		return
	}
	select {
	case client.Send <- data:
	default:
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for chatID, clients := range h.Clients {
		for client := range clients {
			close(client.Send)
			h.metrics.ConnClosed()
		}
		delete(h.Clients, chatID)
	}
	h.online = make(map[string]int)
}

// Online returns the users currently in the presence room, sorted.
func (h *Hub) Online() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	ids := make([]string, 0, len(h.online))
	for id := range h.online {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Count returns the number of connections joined to chatID.
func (h *Hub) Count(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.Clients[chatID])
}
