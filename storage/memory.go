package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"sessiond/core"
)

// MemoryStore is the in-memory SessionStore. Used in tests and when
// the daemon is configured without a database; nothing survives a
// restart.
type MemoryStore struct {
	mu       sync.Mutex
	session  *core.StoredSession
	profiles map[uuid.UUID]*core.UserProfile
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		profiles: make(map[uuid.UUID]*core.UserProfile),
	}
}

func (s *MemoryStore) SaveSession(ctx context.Context, session *core.StoredSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *session
	s.session = &copied
	return nil
}

func (s *MemoryStore) LoadSession(ctx context.Context) (*core.StoredSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		return nil, core.ErrNotFound
	}
	copied := *s.session
	return &copied, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.session = nil
	return nil
}

func (s *MemoryStore) SaveProfile(ctx context.Context, profile *core.UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *profile
	s.profiles[profile.ID] = &copied
	return nil
}

func (s *MemoryStore) LoadProfile(ctx context.Context, id uuid.UUID) (*core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	profile, ok := s.profiles[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *profile
	return &copied, nil
}
