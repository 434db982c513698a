package notification

import "testing"

// TestUpdate_NotifiesOnChange 値が変化した時のみ通知される
func TestUpdate_NotifiesOnChange(t *testing.T) {
	s := NewStore()
	ch, release := s.Subscribe()
	defer release()

	s.Update(false)
	select {
	case v := <-ch:
		t.Errorf("No notification expected for unchanged value, got %v", v)
	default:
	}

	s.Update(true)
	s.Update(true)
	if v := <-ch; !v {
		t.Error("Expected true notification")
	}
	select {
	case v := <-ch:
		t.Errorf("Repeated value should not notify again, got %v", v)
	default:
	}

	if !s.HasUnreadMessage() {
		t.Error("Store should report unread")
	}
}

// TestUpdate_LatestValueWins 読み取りが遅い購読者には最新値のみ
func TestUpdate_LatestValueWins(t *testing.T) {
	s := NewStore()
	ch, release := s.Subscribe()
	defer release()

	s.Update(true)
	s.Update(false)

	if v := <-ch; v {
		t.Error("Expected the latest value false")
	}
}

// TestSubscribe_Release 解除後は通知されない
func TestSubscribe_Release(t *testing.T) {
	s := NewStore()
	ch, release := s.Subscribe()
	release()
	release()

	s.Update(true)
	select {
	case <-ch:
		t.Error("Released subscriber should not be notified")
	default:
	}
}
