package presence

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"gigchat/internal/model"
)

type fakeSub struct {
	events chan json.RawMessage
	closed chan struct{}
	once   sync.Once
}

func (s *fakeSub) Events() <-chan json.RawMessage { return s.events }

func (s *fakeSub) Close() error {
	s.once.Do(func() { close(s.closed) })
	return nil
}

type fakeChannel struct {
	mu      sync.Mutex
	emitted []string
	sub     *fakeSub
	emitErr error
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{sub: &fakeSub{events: make(chan json.RawMessage, 4), closed: make(chan struct{})}}
}

func (c *fakeChannel) Emit(event string, payload any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.emitted = append(c.emitted, event)
	return c.emitErr
}

func (c *fakeChannel) Subscribe(event string) (Subscription, error) {
	if event != model.EventOnline {
		return nil, errors.New("unexpected event " + event)
	}
	return c.sub, nil
}

func (c *fakeChannel) broadcast(t *testing.T, names ...string) {
	t.Helper()
	if names == nil {
		names = []string{}
	}
	raw, _ := json.Marshal(names)
	c.sub.events <- raw
}

func waitChanged(t *testing.T, tr *Tracker) {
	t.Helper()
	select {
	case <-tr.Changed():
	case <-time.After(time.Second):
		t.Fatal("Timed out waiting for broadcast")
	}
}

// TestApply_ReplacesSet 最新のブロードキャストのみで判定
func TestApply_ReplacesSet(t *testing.T) {
	tr := New(newFakeChannel(), nil)

	tr.Apply([]string{"alice", "bob"})
	if !tr.Online("bob") {
		t.Error("bob should be online")
	}

	tr.Apply([]string{})
	if tr.Online("bob") || tr.Online("alice") {
		t.Error("Empty broadcast should mark everyone offline")
	}

	tr.Apply([]string{"carol"})
	if tr.Online("alice") {
		t.Error("Stale entries must be discarded")
	}
	if tr.Online("") {
		t.Error("Unresolved counterpart is never online")
	}
}

// TestRun_EmitsAndApplies 接続時に getLoggedInUsers を送信し online を反映
func TestRun_EmitsAndApplies(t *testing.T) {
	ch := newFakeChannel()
	tr := New(ch, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx) }()

	ch.broadcast(t, "alice", "bob")
	waitChanged(t, tr)
	if !tr.Online("bob") {
		t.Error("bob should be online after broadcast")
	}

	ch.sub.events <- json.RawMessage(`{"not":"a list"}`)
	ch.broadcast(t)
	waitChanged(t, tr)
	if tr.Online("bob") {
		t.Error("bob should be offline after empty broadcast")
	}

	cancel()
	if err := <-done; err != nil {
		t.Errorf("Run should return nil on cancel, got %v", err)
	}

	select {
	case <-ch.sub.closed:
	default:
		t.Error("Subscription must be released when Run returns")
	}

	ch.mu.Lock()
	defer ch.mu.Unlock()
	if len(ch.emitted) != 1 || ch.emitted[0] != model.EventGetLoggedInUsers {
		t.Errorf("Expected one getLoggedInUsers emit, got %v", ch.emitted)
	}
}

// TestRun_ReleasesOnError 送信エラー時もサブスクリプションを解放
func TestRun_ReleasesOnError(t *testing.T) {
	ch := newFakeChannel()
	ch.emitErr = errors.New("socket closed")
	tr := New(ch, nil)

	if err := tr.Run(context.Background()); err == nil {
		t.Error("Expected emit error")
	}

	select {
	case <-ch.sub.closed:
	default:
		t.Error("Subscription must be released on error exit")
	}
}

// TestRun_EndsWithSubscription 購読終了で Run も終了
func TestRun_EndsWithSubscription(t *testing.T) {
	ch := newFakeChannel()
	tr := New(ch, nil)
	close(ch.sub.events)

	if err := tr.Run(context.Background()); err != nil {
		t.Errorf("Closed subscription should end Run cleanly, got %v", err)
	}
}
