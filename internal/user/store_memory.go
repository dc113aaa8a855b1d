package user

import (
	"context"
	"sync"
	"time"

	"sharepairs/pkg/platform/sentinel"
)

// InMemoryStore keeps user records in a map. It backs unit tests and local
// development; the coarse lock doubles as its transaction boundary.
type InMemoryStore struct {
	mu    sync.RWMutex
	txMu  sync.Mutex
	users map[string]*User
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{users: make(map[string]*User)}
}

func (s *InMemoryStore) Get(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getLocked(id)
}

func (s *InMemoryStore) getLocked(id string) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *u
	if u.Match != nil {
		ref := *u.Match
		cp.Match = &ref
	}
	cp.Contacts = append([]Contact(nil), u.Contacts...)
	return &cp, nil
}

func (s *InMemoryStore) Put(_ context.Context, u *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	if u.Match != nil {
		ref := *u.Match
		cp.Match = &ref
	}
	cp.Contacts = append([]Contact(nil), u.Contacts...)
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	cp.UpdatedAt = time.Now()
	s.users[u.ID] = &cp
	return nil
}

func (s *InMemoryStore) SetMatch(_ context.Context, id string, ref MatchRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	ref.Seen = false
	u.Match = &ref
	u.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) ClearMatch(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.Match = nil
	u.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) SetMatchSeen(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	if u.Match != nil {
		u.Match.Seen = true
		u.UpdatedAt = time.Now()
	}
	return nil
}

func (s *InMemoryStore) SetChatDisabled(_ context.Context, id string, disabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	u.ChatDisabled = disabled
	u.UpdatedAt = time.Now()
	return nil
}

func (s *InMemoryStore) AddContact(_ context.Context, id string, contact Contact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return sentinel.ErrNotFound
	}
	for _, c := range u.Contacts {
		if c.ID == contact.ID && c.Type == contact.Type {
			return nil
		}
	}
	u.Contacts = append(u.Contacts, contact)
	u.UpdatedAt = time.Now()
	return nil
}

// RunInTx serializes transactions with a process-wide lock. Callers get the
// same store back; the memory store has no partial-write failure modes, so
// rollback is not simulated.
func (s *InMemoryStore) RunInTx(ctx context.Context, fn func(store Store) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()
	return fn(s)
}
