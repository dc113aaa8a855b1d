package message

import (
	"context"
	"sort"
	"sync"

	"sharepairs/pkg/platform/sentinel"
)

// InMemoryStore keeps messages per conversation, sorted the way the keyset
// pagination expects. Used by unit tests and local development.
type InMemoryStore struct {
	mu     sync.RWMutex
	byID   map[string]*Message
	byConv map[string][]*Message
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		byID:   make(map[string]*Message),
		byConv: make(map[string][]*Message),
	}
}

func (s *InMemoryStore) Append(_ context.Context, msg *Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if msg.ClientToken != "" {
		for _, m := range s.byConv[msg.ConversationID] {
			if m.ClientToken == msg.ClientToken {
				return sentinel.ErrDuplicate
			}
		}
	}
	cp := *msg
	s.byID[msg.ID] = &cp
	list := append(s.byConv[msg.ConversationID], &cp)
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID < list[j].ID
	})
	s.byConv[msg.ConversationID] = list
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.byID[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *InMemoryStore) FindByToken(_ context.Context, conversationID, token string) (*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.byConv[conversationID] {
		if m.ClientToken != "" && m.ClientToken == token {
			cp := *m
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (s *InMemoryStore) ListBefore(_ context.Context, conversationID string, cursor *Cursor, limit int) ([]*Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byConv[conversationID]

	var out []*Message
	for i := len(list) - 1; i >= 0 && len(out) < limit; i-- {
		m := list[i]
		if cursor != nil && !olderThan(m, cursor) {
			continue
		}
		cp := *m
		out = append(out, &cp)
	}
	return out, nil
}

func olderThan(m *Message, c *Cursor) bool {
	if m.CreatedAt.Before(c.CreatedAt) {
		return true
	}
	return m.CreatedAt.Equal(c.CreatedAt) && m.ID < c.ID
}

func (s *InMemoryStore) SetHidden(_ context.Context, id string, hidden bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.byID[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	m.Hidden = hidden
	return nil
}
