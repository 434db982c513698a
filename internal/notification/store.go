package notification

import "sync"

// Store holds the cross-view unread message flag shown by the header badge.
// It is created by the application and injected into every chat view.
type Store struct {
	mu          sync.Mutex
	hasUnread   bool
	subscribers map[int]chan bool
	nextID      int
}

// NewStore creates an empty Store
func NewStore() *Store {
	return &Store{subscribers: make(map[int]chan bool)}
}

// HasUnreadMessage returns the current flag
func (s *Store) HasUnreadMessage() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasUnread
}

// Update sets the flag and notifies subscribers when it changes
func (s *Store) Update(hasUnread bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.hasUnread == hasUnread {
		return
	}
	s.hasUnread = hasUnread
	for _, ch := range s.subscribers {
		// keep only the latest value for slow readers
		select {
		case <-ch:
		default:
		}
		ch <- hasUnread
	}
}

// Subscribe returns a channel receiving every change of the flag and a
// function releasing the subscription
func (s *Store) Subscribe() (<-chan bool, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	ch := make(chan bool, 1)
	s.subscribers[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, id)
			s.mu.Unlock()
		})
	}
}
