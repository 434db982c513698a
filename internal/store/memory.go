package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"gigchat/internal/model"
)

// Memory is a MessageStore held in process memory
type Memory struct {
	mu       sync.RWMutex
	messages []model.Message
	now      func() time.Time
}

// NewMemory creates an empty in-memory store
func NewMemory() *Memory {
	return &Memory{now: time.Now}
}

// Save implements MessageStore
func (s *Memory) Save(_ context.Context, msg model.Message) (model.Message, error) {
	saved, err := prepare(msg, s.now())
	if err != nil {
		return model.Message{}, err
	}

	s.mu.Lock()
	s.messages = append(s.messages, saved)
	s.mu.Unlock()
	return saved, nil
}

// List implements MessageStore
func (s *Memory) List(_ context.Context, a, b string, page, limit int) ([]model.Message, error) {
	page, limit = normalizePage(page, limit)

	s.mu.RLock()
	var thread []model.Message
	for _, m := range s.messages {
		if m.Involves(a, b) {
			thread = append(thread, m)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(thread, func(i, j int) bool {
		return thread[i].CreatedAt.Before(*thread[j].CreatedAt)
	})

	end := len(thread) - (page-1)*limit
	if end <= 0 {
		return []model.Message{}, nil
	}
	start := end - limit
	if start < 0 {
		start = 0
	}
	return append([]model.Message{}, thread[start:end]...), nil
}

// MarkRead implements MessageStore
func (s *Memory) MarkRead(_ context.Context, sender, receiver string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for i := range s.messages {
		m := &s.messages[i]
		if !m.IsRead && strings.EqualFold(m.SenderUsername, sender) && strings.EqualFold(m.ReceiverUsername, receiver) {
			m.IsRead = true
			n++
		}
	}
	return n, nil
}

// Close implements MessageStore
func (s *Memory) Close() error { return nil }
