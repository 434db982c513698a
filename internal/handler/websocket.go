package handler

import (
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"gigchat/internal/model"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 64 << 10
)

// Client is one connected websocket and the user it belongs to
type Client struct {
	Conn     *websocket.Conn
	Username string

	writeMu sync.Mutex
}

// Send writes ev to the client. Writes are serialized per connection.
func (c *Client) Send(ev model.SocketEvent) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.Conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Conn.WriteJSON(ev)
}

// createUpgrader creates a WebSocket upgrader with the given allowed origins.
// Requests without an Origin header come from non-browser clients and pass.
func createUpgrader(allowedOrigins []string) websocket.Upgrader {
	allowedMap := make(map[string]bool)
	for _, origin := range allowedOrigins {
		allowedMap[origin] = true
	}

	return websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowedMap[origin]
		},
	}
}

// HandleWebSocket handles GET /ws?username=
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		h.Log.Warn("[WebSocket] ❌ Missing username")
		writeError(w, http.StatusBadRequest, "username is required")
		return
	}

	upgrader := createUpgrader(h.Config.AllowedOrigins)
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Warn("[WebSocket] upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()
	conn.SetReadLimit(maxMessageSize)

	client := &Client{Conn: conn, Username: username}
	log := h.Log.With(zap.String("username", username))

	h.ClientMu.Lock()
	h.Clients[conn] = client
	totalClients := len(h.Clients)
	h.ClientMu.Unlock()

	log.Info("[WebSocket] New connection", zap.Int("clients", totalClients))
	h.broadcastOnline()

	for {
		var ev model.SocketEvent
		if err := conn.ReadJSON(&ev); err != nil {
			h.ClientMu.Lock()
			delete(h.Clients, conn)
			remainingClients := len(h.Clients)
			h.ClientMu.Unlock()
			log.Info("[WebSocket] Client disconnected", zap.Int("clients", remainingClients))
			h.broadcastOnline()
			return
		}

		switch ev.Event {
		case model.EventGetLoggedInUsers:
			// 要求したクライアントにのみ返す
			if err := client.Send(h.onlineEvent()); err != nil {
				log.Warn("[WebSocket] reply failed", zap.Error(err))
			}
		default:
			log.Debug("[WebSocket] ignoring event", zap.String("event", ev.Event))
		}
	}
}

// HandleBroadcast fans events out to all connected WebSocket clients
func (h *Handler) HandleBroadcast() {
	for event := range h.Broadcast {
		// clients マップをスナップショットしてからロックを外すことで、
		// range 中に delete して "concurrent map iteration and map write"
		// が発生するのを防ぐ
		h.ClientMu.RLock()
		clientsSnapshot := make([]*Client, 0, len(h.Clients))
		for _, client := range h.Clients {
			clientsSnapshot = append(clientsSnapshot, client)
		}
		h.ClientMu.RUnlock()

		for _, client := range clientsSnapshot {
			if err := client.Send(event); err != nil {
				client.Conn.Close()
				h.ClientMu.Lock()
				delete(h.Clients, client.Conn)
				h.ClientMu.Unlock()
			}
		}
	}
}

// OnlineUsers returns the distinct connected usernames, sorted
func (h *Handler) OnlineUsers() []string {
	h.ClientMu.RLock()
	seen := make(map[string]bool, len(h.Clients))
	names := make([]string, 0, len(h.Clients))
	for _, c := range h.Clients {
		if !seen[c.Username] {
			seen[c.Username] = true
			names = append(names, c.Username)
		}
	}
	h.ClientMu.RUnlock()

	sort.Strings(names)
	return names
}

func (h *Handler) clientCount() int {
	h.ClientMu.RLock()
	defer h.ClientMu.RUnlock()
	return len(h.Clients)
}

func (h *Handler) onlineEvent() model.SocketEvent {
	ev, _ := newEvent(model.EventOnline, h.OnlineUsers())
	return ev
}

func (h *Handler) broadcastOnline() {
	h.Broadcast <- h.onlineEvent()
}

func newEvent(name string, payload any) (model.SocketEvent, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return model.SocketEvent{}, err
	}
	return model.SocketEvent{Event: name, Data: data}, nil
}
