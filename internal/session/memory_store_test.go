package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStoreLifecycle(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	if err := s.SaveRefreshSession(ctx, "hash-1", "usr_1", now.Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	userID, err := s.LookupRefreshSession(ctx, "hash-1")
	if err != nil || userID != "usr_1" {
		t.Fatalf("lookup = %q, %v", userID, err)
	}

	now = now.Add(2 * time.Hour)
	if _, err := s.LookupRefreshSession(ctx, "hash-1"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}

	if err := s.SaveRefreshSession(ctx, "hash-2", "usr_2", now.Add(time.Hour)); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.RevokeRefreshSession(ctx, "hash-2"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, err := s.LookupRefreshSession(ctx, "hash-2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected revoked session, got %v", err)
	}
	if err := s.RevokeRefreshSession(ctx, "missing"); err != nil {
		t.Fatalf("revoking missing session should not fail: %v", err)
	}
}
