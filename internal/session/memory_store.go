package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps refresh sessions in process. Used when no Redis URL is
// configured; sessions do not survive a restart.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memorySession
	now      func() time.Time
}

type memorySession struct {
	userID    string
	expiresAt time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]memorySession), now: time.Now}
}

func (s *MemoryStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, expiresAt time.Time) error {
	if !expiresAt.After(s.now()) {
		expiresAt = s.now().Add(defaultTTL)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[tokenHash] = memorySession{userID: userID, expiresAt: expiresAt}
	return nil
}

func (s *MemoryStore) LookupRefreshSession(_ context.Context, tokenHash string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.sessions[tokenHash]
	if !ok {
		return "", ErrSessionNotFound
	}
	if !s.now().Before(item.expiresAt) {
		delete(s.sessions, tokenHash)
		return "", ErrSessionNotFound
	}
	return item.userID, nil
}

func (s *MemoryStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, tokenHash)
	return nil
}

func (s *MemoryStore) Ping(context.Context) error { return nil }
