package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gigchat/internal/logger"
	"gigchat/internal/model"
)

// Subscription is a live registration for one event name. Close releases it.
type Subscription interface {
	Events() <-chan json.RawMessage
	Close() error
}

// Channel is the live event stream shared with the server
type Channel interface {
	Emit(event string, payload any) error
	Subscribe(event string) (Subscription, error)
}

// Tracker keeps the set of online usernames from the latest broadcast
type Tracker struct {
	ch  Channel
	log *zap.Logger

	mu     sync.RWMutex
	online map[string]struct{}

	changed chan struct{}
}

// New creates a Tracker reading broadcasts from ch
func New(ch Channel, log *zap.Logger) *Tracker {
	return &Tracker{
		ch:      ch,
		log:     logger.OrNop(log),
		online:  make(map[string]struct{}),
		changed: make(chan struct{}, 1),
	}
}

// Run asks the server who is online and applies every broadcast until ctx
// is done or the subscription ends. The subscription is released on return.
func (t *Tracker) Run(ctx context.Context) error {
	sub, err := t.ch.Subscribe(model.EventOnline)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", model.EventOnline, err)
	}
	defer func() {
		if err := sub.Close(); err != nil {
			t.log.Debug("presence subscription close", zap.Error(err))
		}
	}()

	if err := t.ch.Emit(model.EventGetLoggedInUsers, ""); err != nil {
		return fmt.Errorf("emit %q: %w", model.EventGetLoggedInUsers, err)
	}

	for {
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case raw, ok := <-sub.Events():
			if !ok {
				return nil
			}
			var names []string
			if err := json.Unmarshal(raw, &names); err != nil {
				t.log.Warn("malformed online broadcast", zap.Error(err))
				continue
			}
			t.Apply(names)
		}
	}
}

// Apply replaces the online set with names
func (t *Tracker) Apply(names []string) {
	next := make(map[string]struct{}, len(names))
	for _, n := range names {
		next[n] = struct{}{}
	}

	t.mu.Lock()
	t.online = next
	t.mu.Unlock()

	select {
	case t.changed <- struct{}{}:
	default:
	}
}

// Online reports whether username was in the latest broadcast. An empty
// username, as for an unresolved counterpart, is never online.
func (t *Tracker) Online(username string) bool {
	if username == "" {
		return false
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.online[username]
	return ok
}

// Changed signals, coalesced, that a broadcast was applied
func (t *Tracker) Changed() <-chan struct{} {
	return t.changed
}
