package conversation

import (
	"context"
	"sync"
	"time"

	"sharepairs/pkg/platform/sentinel"
)

// InMemoryStore keeps conversations in a map guarded by a single lock, which
// trivially gives the commutative merge semantics the interface asks for.
type InMemoryStore struct {
	mu    sync.RWMutex
	convs map[string]*Conversation
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{convs: make(map[string]*Conversation)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return copyConv(c), nil
}

func (s *InMemoryStore) CreateIfAbsent(_ context.Context, conv *Conversation) (*Conversation, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.convs[conv.ID]; ok {
		return copyConv(existing), false, nil
	}
	cp := copyConv(conv)
	now := time.Now()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	s.convs[conv.ID] = cp
	return copyConv(cp), true, nil
}

func (s *InMemoryStore) AddConsent(_ context.Context, id, uid string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if !c.HasConsented(uid) {
		c.ConsentSet = normalizeSet(append(c.ConsentSet, uid))
	}
	c.MutualConsent = c.ComputeMutual()
	c.UpdatedAt = time.Now()
	return copyConv(c), nil
}

func (s *InMemoryStore) MarkSeen(_ context.Context, id, uid string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.UnreadBy = removeID(c.UnreadBy, uid)
	if c.SeenAt == nil {
		c.SeenAt = make(map[string]time.Time)
	}
	c.SeenAt[uid] = at
	c.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) SetClosed(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	c.Closed = true
	c.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) UpdateSummary(_ context.Context, id string, summary Summary, unreadAdd []string, unreadRemove string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.convs[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	at := summary.LastMessageAt
	c.LastMessageAt = &at
	c.LastMessagePreview = summary.LastMessagePreview
	c.LastSenderID = summary.LastSenderID
	for _, uid := range unreadAdd {
		if !c.HasUnread(uid) {
			c.UnreadBy = append(c.UnreadBy, uid)
		}
	}
	if unreadRemove != "" {
		c.UnreadBy = removeID(c.UnreadBy, unreadRemove)
	}
	c.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) ListByUser(_ context.Context, uid string) ([]*Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Conversation
	for _, c := range s.convs {
		if c.IsParticipant(uid) {
			out = append(out, copyConv(c))
		}
	}
	return out, nil
}

func removeID(ids []string, uid string) []string {
	out := ids[:0]
	for _, id := range ids {
		if id != uid {
			out = append(out, id)
		}
	}
	return out
}

func copyConv(c *Conversation) *Conversation {
	cp := *c
	cp.Participants = append([]string(nil), c.Participants...)
	cp.ConsentSet = append([]string(nil), c.ConsentSet...)
	cp.UnreadBy = append([]string(nil), c.UnreadBy...)
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		cp.LastMessageAt = &at
	}
	if c.SeenAt != nil {
		cp.SeenAt = make(map[string]time.Time, len(c.SeenAt))
		for k, v := range c.SeenAt {
			cp.SeenAt[k] = v
		}
	}
	return &cp
}
