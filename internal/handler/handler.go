package handler

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"gigchat/internal/config"
	"gigchat/internal/logger"
	"gigchat/internal/model"
	"gigchat/internal/store"
)

// Handler holds application dependencies
type Handler struct {
	Store     store.MessageStore
	Directory *store.Directory
	Config    config.Config
	Log       *zap.Logger
	Clients   map[*websocket.Conn]*Client
	ClientMu  sync.RWMutex
	Broadcast chan model.SocketEvent

	metrics *metrics
}

// New creates a new Handler with the given dependencies
func New(st store.MessageStore, dir *store.Directory, cfg config.Config, log *zap.Logger) *Handler {
	if dir == nil {
		dir = store.NewDirectory(store.Seed{})
	}
	h := &Handler{
		Store:     st,
		Directory: dir,
		Config:    cfg,
		Log:       logger.OrNop(log),
		Clients:   make(map[*websocket.Conn]*Client),
		Broadcast: make(chan model.SocketEvent, 100),
	}
	h.metrics = newMetrics(h.clientCount)
	return h
}

// SetupRouter configures and returns the HTTP router
func (h *Handler) SetupRouter() *mux.Router {
	r := mux.NewRouter()

	// REST API
	r.HandleFunc("/messages", h.CreateMessage).Methods("POST")
	r.HandleFunc("/messages/mark-as-read", h.MarkAsRead).Methods("PUT")
	r.HandleFunc("/messages/{sender}/{receiver}", h.GetMessages).Methods("GET")
	r.HandleFunc("/buyers/username/{username}", h.GetBuyer).Methods("GET")
	r.HandleFunc("/gigs/{id}", h.GetGig).Methods("GET")

	// WebSocket
	r.HandleFunc("/ws", h.HandleWebSocket).Methods("GET")

	// Prometheus
	r.Handle("/metrics", promhttp.HandlerFor(h.metrics.registry, promhttp.HandlerOpts{})).Methods("GET")

	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
