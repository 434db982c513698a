package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"gigchat/internal/logger"
	"gigchat/internal/model"
	"gigchat/internal/presence"
)

// DefaultPageSize is the number of messages fetched per page
const DefaultPageSize = 20

// Fetcher reads one page of persisted history, oldest to newest.
// Page 1 is the newest window.
type Fetcher interface {
	Messages(ctx context.Context, sender, receiver string, page, limit int) ([]model.Message, error)
}

// Sink receives every history change
type Sink func(messages []model.Message, loading bool)

// Feed is the paginated history of one conversation. It is the source of
// truth for delivered messages: pages fetched from the server, plus live
// "message received" events appended in arrival order.
type Feed struct {
	fetch    Fetcher
	me, peer string
	limit    int
	log      *zap.Logger

	emitMu sync.Mutex
	sink   Sink

	mu        sync.Mutex
	messages  []model.Message
	ids       map[string]struct{}
	live      map[string]struct{}
	pages     int
	skip      bool
	exhausted bool
	loading   bool
}

// New creates a feed of the conversation between me and peer
func New(fetch Fetcher, me, peer string, limit int, log *zap.Logger) *Feed {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	return &Feed{
		fetch: fetch,
		me:    me,
		peer:  peer,
		limit: limit,
		log:   logger.OrNop(log),
		ids:   make(map[string]struct{}),
		live:  make(map[string]struct{}),
	}
}

// SetSink registers the receiver of history changes
func (f *Feed) SetSink(s Sink) {
	f.emitMu.Lock()
	f.sink = s
	f.emitMu.Unlock()
}

// SetSkip freezes (true) or releases (false) the page window
func (f *Feed) SetSkip(skip bool) {
	f.mu.Lock()
	f.skip = skip
	f.mu.Unlock()
}

// Messages returns a copy of the current history
func (f *Feed) Messages() []model.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Message(nil), f.messages...)
}

// Load fetches the newest page, replacing any history
func (f *Feed) Load(ctx context.Context) error {
	f.setLoading(true)

	page, err := f.fetch.Messages(ctx, f.me, f.peer, 1, f.limit)

	f.mu.Lock()
	f.loading = false
	if err == nil {
		f.reset()
		f.appendLocked(page)
		f.pages = 1
		f.exhausted = len(page) < f.limit
	}
	f.mu.Unlock()
	f.emit()

	if err != nil {
		return fmt.Errorf("load history: %w", err)
	}
	return nil
}

// LoadOlder prepends the next older page. It does nothing while the window
// is frozen or when the oldest page has been reached.
func (f *Feed) LoadOlder(ctx context.Context) (bool, error) {
	f.mu.Lock()
	if f.skip || f.exhausted {
		f.mu.Unlock()
		return false, nil
	}
	next := f.pages + 1
	f.mu.Unlock()

	page, err := f.fetch.Messages(ctx, f.me, f.peer, next, f.limit)
	if err != nil {
		return false, fmt.Errorf("load page %d: %w", next, err)
	}

	f.mu.Lock()
	f.pages = next
	if len(page) < f.limit {
		f.exhausted = true
	}
	older := make([]model.Message, 0, len(page))
	for _, m := range page {
		if m.ID != "" {
			if _, dup := f.ids[m.ID]; dup {
				continue
			}
			f.ids[m.ID] = struct{}{}
		}
		older = append(older, m)
	}
	f.messages = append(older, f.messages...)
	f.mu.Unlock()

	f.emit()
	return len(older) > 0, nil
}

// Invalidate refetches every loaded page. Live messages the server has not
// returned yet are kept at the end.
func (f *Feed) Invalidate(ctx context.Context) {
	f.mu.Lock()
	pages := f.pages
	f.mu.Unlock()
	if pages == 0 {
		pages = 1
	}

	var fresh []model.Message
	for p := pages; p >= 1; p-- {
		page, err := f.fetch.Messages(ctx, f.me, f.peer, p, f.limit)
		if err != nil {
			f.log.Warn("history refresh failed", zap.Int("page", p), zap.Error(err))
			return
		}
		fresh = append(fresh, page...)
	}

	f.mu.Lock()
	pending := make([]model.Message, 0)
	for _, m := range f.messages {
		if _, ok := f.live[m.ID]; ok {
			pending = append(pending, m)
		}
	}
	f.reset()
	f.appendLocked(fresh)
	f.appendLiveLocked(pending)
	f.pages = pages
	f.mu.Unlock()

	f.emit()
}

// Follow appends "message received" events of this conversation until ctx
// is done or the channel subscription ends
func (f *Feed) Follow(ctx context.Context, ch presence.Channel) error {
	sub, err := ch.Subscribe(model.EventMessageReceived)
	if err != nil {
		return fmt.Errorf("subscribe %q: %w", model.EventMessageReceived, err)
	}
	defer sub.Close()

	for {
		select {
		case <-ctx.Done():
			return nil
		case raw, ok := <-sub.Events():
			if !ok {
				return nil
			}
			var msg model.Message
			if err := json.Unmarshal(raw, &msg); err != nil {
				f.log.Warn("malformed message event", zap.Error(err))
				continue
			}
			f.Receive(msg)
		}
	}
}

// Receive appends a live message if it belongs to this conversation
func (f *Feed) Receive(msg model.Message) {
	if !msg.Involves(f.me, f.peer) {
		return
	}
	f.mu.Lock()
	added := f.appendLiveLocked([]model.Message{msg})
	f.mu.Unlock()
	if added {
		f.emit()
	}
}

func (f *Feed) setLoading(loading bool) {
	f.mu.Lock()
	f.loading = loading
	f.mu.Unlock()
	f.emit()
}

func (f *Feed) reset() {
	f.messages = nil
	f.ids = make(map[string]struct{})
	f.live = make(map[string]struct{})
}

func (f *Feed) appendLocked(msgs []model.Message) {
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := f.ids[m.ID]; dup {
				continue
			}
			f.ids[m.ID] = struct{}{}
		}
		f.messages = append(f.messages, m)
	}
}

func (f *Feed) appendLiveLocked(msgs []model.Message) bool {
	added := false
	for _, m := range msgs {
		if m.ID != "" {
			if _, dup := f.ids[m.ID]; dup {
				continue
			}
			f.ids[m.ID] = struct{}{}
			f.live[m.ID] = struct{}{}
		}
		f.messages = append(f.messages, m)
		added = true
	}
	return added
}

// emit pushes a snapshot to the sink. emitMu keeps snapshots and deliveries
// in the same order.
func (f *Feed) emit() {
	f.emitMu.Lock()
	defer f.emitMu.Unlock()
	if f.sink == nil {
		return
	}
	f.mu.Lock()
	snapshot := append([]model.Message(nil), f.messages...)
	loading := f.loading
	f.mu.Unlock()
	f.sink(snapshot, loading)
}
