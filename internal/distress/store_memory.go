package distress

import (
	"context"
	"sync"
	"time"

	"sharepairs/pkg/platform/sentinel"
)

// InMemoryStore keeps distress events in a map. Used by unit tests and local
// development.
type InMemoryStore struct {
	mu     sync.RWMutex
	events map[string]*Event
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{events: make(map[string]*Event)}
}

func (s *InMemoryStore) Insert(_ context.Context, ev *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := copyEvent(ev)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = cp.CreatedAt
	s.events[ev.ID] = cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ev, ok := s.events[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyEvent(ev), nil
}

func (s *InMemoryStore) HasHighScoreSince(_ context.Context, userID string, threshold int, since time.Time) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.UserID == userID && ev.Score >= threshold && ev.CreatedAt.After(since) {
			return true, nil
		}
	}
	return false, nil
}

func (s *InMemoryStore) SetQueueFailed(_ context.Context, id, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ev.Status != StatusQueued {
		return sentinel.ErrInvalidState
	}
	ev.Status = StatusQueueFailed
	ev.QueueError = reason
	ev.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) MarkSent(_ context.Context, id, deliveryID string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ev, ok := s.events[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if ev.Status == StatusSent {
		return sentinel.ErrInvalidState
	}
	ev.Status = StatusSent
	ev.DeliveryID = deliveryID
	emailedAt := at
	ev.EmailedAt = &emailedAt
	ev.UpdatedAt = time.Now()
	return nil
}

func copyEvent(ev *Event) *Event {
	cp := *ev
	if ev.Context != nil {
		cp.Context = make(map[string]string, len(ev.Context))
		for k, v := range ev.Context {
			cp.Context[k] = v
		}
	}
	if ev.EmailedAt != nil {
		at := *ev.EmailedAt
		cp.EmailedAt = &at
	}
	return &cp
}
