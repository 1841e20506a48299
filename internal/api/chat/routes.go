package chat

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Vasu1712/scenyx-securechat/internal/middleware"
)

// NewRouter wires the REST and websocket endpoints. gatherer, when set, is
// served on /metrics without authentication.
func NewRouter(h *Handler, auth *middleware.Auth, gatherer prometheus.Gatherer) http.Handler {
	r := mux.NewRouter()

	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.Middleware, h.identify)
	api.HandleFunc("/chat/chats/", h.ListConversations).Methods(http.MethodGet)
	api.HandleFunc("/chat/{chat_id}/messages/", h.GetMessages).Methods(http.MethodGet)
	api.HandleFunc("/chat/start_chat/", h.StartConversation).Methods(http.MethodPost)
	api.HandleFunc("/chat/search_users/", h.SearchUsers).Methods(http.MethodGet)
	api.HandleFunc("/keys/", h.RegisterKey).Methods(http.MethodPost)
	api.HandleFunc("/keys/{user_id}/", h.PublicKey).Methods(http.MethodGet)

	sock := r.PathPrefix("/ws").Subrouter()
	sock.Use(auth.Middleware)
	sock.HandleFunc("/chat/{chat_id}/", h.ServeWS)

	return middleware.CORS(h.Origin)(r)
}
