package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"gigchat/internal/model"
	"gigchat/internal/store"
)

// maxMessagesPerRequest は1回のGETで返す最大レコード数
const maxMessagesPerRequest = 100

// saveResponse mirrors api.SaveResponse
type saveResponse struct {
	Message        string        `json:"message"`
	ConversationID string        `json:"conversationId"`
	MessageData    model.Message `json:"messageData"`
}

type markReadRequest struct {
	SenderUsername   string `json:"senderUsername"`
	ReceiverUsername string `json:"receiverUsername"`
}

// maxBodyBytes allows a base64 attachment of MaxFileSize plus the message itself
func (h *Handler) maxBodyBytes() int64 {
	return h.Config.MaxFileSize*4/3 + 1<<20
}

// CreateMessage handles POST /messages
func (h *Handler) CreateMessage(w http.ResponseWriter, r *http.Request) {
	log := h.Log.With(zap.String("remote", r.RemoteAddr))
	log.Debug("[POST /messages] Request received")

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodyBytes())

	var msg model.Message
	if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
		log.Warn("[POST /messages] ❌ Bad Request", zap.Error(err))
		h.metrics.failures.WithLabelValues("create_message").Inc()
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	if msg.SenderUsername == "" || msg.ReceiverUsername == "" {
		log.Warn("[POST /messages] ❌ Bad Request: missing sender or receiver")
		h.metrics.failures.WithLabelValues("create_message").Inc()
		writeError(w, http.StatusBadRequest, "senderUsername and receiverUsername are required")
		return
	}

	saved, err := h.Store.Save(r.Context(), msg)
	if errors.Is(err, model.ErrEmptyMessage) {
		log.Warn("[POST /messages] ❌ Bad Request: empty message")
		h.metrics.failures.WithLabelValues("create_message").Inc()
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		log.Error("[POST /messages] ❌ Database error", zap.Error(err))
		h.metrics.failures.WithLabelValues("create_message").Inc()
		writeError(w, http.StatusInternalServerError, "Failed to create message")
		return
	}
	h.metrics.saved.Inc()

	log.Info("[POST /messages] ✅ Created message",
		zap.String("id", saved.ID),
		zap.String("conversation_id", saved.ConversationID),
		zap.Bool("has_file", saved.HasFile()),
		zap.Bool("has_offer", saved.HasOffer))

	// WebSocket経由で受信を通知
	if ev, err := newEvent(model.EventMessageReceived, saved); err == nil {
		h.Broadcast <- ev
	}

	writeJSON(w, http.StatusOK, saveResponse{
		Message:        "Message added successfully.",
		ConversationID: saved.ConversationID,
		MessageData:    saved,
	})
}

// GetMessages handles GET /messages/{sender}/{receiver}
// page=1 が最新のページ、各ページは古い順
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	sender, receiver := vars["sender"], vars["receiver"]
	log := h.Log.With(zap.String("sender", sender), zap.String("receiver", receiver))

	page, err := queryInt(r, "page", 1)
	if err != nil || page < 1 {
		log.Warn("[GET /messages] ❌ Bad Request: invalid page", zap.String("page", r.URL.Query().Get("page")))
		writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	limit, err := queryInt(r, "limit", store.DefaultPageSize)
	if err != nil || limit < 1 {
		log.Warn("[GET /messages] ❌ Bad Request: invalid limit", zap.String("limit", r.URL.Query().Get("limit")))
		writeError(w, http.StatusBadRequest, "limit must be a positive integer")
		return
	}
	if limit > maxMessagesPerRequest {
		limit = maxMessagesPerRequest
	}

	msgs, err := h.Store.List(r.Context(), sender, receiver, page, limit)
	if err != nil {
		log.Error("[GET /messages] ❌ Database error", zap.Error(err))
		h.metrics.failures.WithLabelValues("get_messages").Inc()
		writeError(w, http.StatusInternalServerError, "Database error")
		return
	}

	log.Debug("[GET /messages] ✅ Returned messages", zap.Int("count", len(msgs)), zap.Int("page", page))
	writeJSON(w, http.StatusOK, map[string][]model.Message{"messages": msgs})
}

// MarkAsRead handles PUT /messages/mark-as-read
func (h *Handler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)

	var req markReadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SenderUsername == "" || req.ReceiverUsername == "" {
		h.Log.Warn("[PUT /messages/mark-as-read] ❌ Bad Request", zap.Error(err))
		writeError(w, http.StatusBadRequest, "senderUsername and receiverUsername are required")
		return
	}

	n, err := h.Store.MarkRead(r.Context(), req.SenderUsername, req.ReceiverUsername)
	if err != nil {
		h.Log.Error("[PUT /messages/mark-as-read] ❌ Database error", zap.Error(err))
		h.metrics.failures.WithLabelValues("mark_as_read").Inc()
		writeError(w, http.StatusInternalServerError, "Failed to mark messages as read")
		return
	}
	h.metrics.markRead.Add(float64(n))

	h.Log.Info("[PUT /messages/mark-as-read] ✅ Marked as read",
		zap.String("sender", req.SenderUsername),
		zap.String("receiver", req.ReceiverUsername),
		zap.Int("count", n))
	writeJSON(w, http.StatusOK, map[string]string{"message": "Message marked as read."})
}

func queryInt(r *http.Request, key string, fallback int) (int, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
