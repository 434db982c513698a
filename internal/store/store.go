package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"gigchat/internal/model"
)

// DefaultPageSize is used when a list request carries no limit
const DefaultPageSize = 20

var (
	// ErrNotFound is returned when a buyer or gig does not exist
	ErrNotFound = errors.New("not found")
	// ErrPersistence wraps every storage backend failure
	ErrPersistence = errors.New("persistence error")
)

// MessageStore persists chat messages
type MessageStore interface {
	// Save stores msg, assigning its id, timestamp and, for a first
	// message, a new conversation id
	Save(ctx context.Context, msg model.Message) (model.Message, error)
	// List returns one page of the conversation between a and b, oldest
	// first. Page 1 is the newest window.
	List(ctx context.Context, a, b string, page, limit int) ([]model.Message, error)
	// MarkRead marks every unread message from sender to receiver as read
	// and returns how many changed
	MarkRead(ctx context.Context, sender, receiver string) (int, error)
	Close() error
}

// prepare fills the server controlled fields of a new message
func prepare(msg model.Message, now time.Time) (model.Message, error) {
	if err := msg.Validate(); err != nil {
		return model.Message{}, err
	}
	msg.ID = uuid.NewString()
	if strings.TrimSpace(msg.ConversationID) == "" {
		msg.ConversationID = uuid.NewString()
	}
	msg.HasConversationID = true
	msg.IsRead = false
	created := now.UTC()
	msg.CreatedAt = &created
	return msg, nil
}

func normalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return page, limit
}
