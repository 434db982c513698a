package model

import "encoding/json"

// Socket event names shared by the chat client and the dev backend
const (
	EventGetLoggedInUsers = "getLoggedInUsers"
	EventOnline           = "online"
	EventMessageReceived  = "message received"
)

// SocketEvent is the JSON frame exchanged over the websocket
type SocketEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}
