// ABOUTME: In-process lock store for single-instance deployments and tests
// ABOUTME: Mirrors the Redis backend's compare-and-set semantics under a mutex

package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	owner     string
	expiresAt time.Time
}

// MemoryStore implements Store with a process-local map. It provides the
// same atomicity guarantees as the Redis backend for a single process,
// which is all a one-instance deployment needs.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]*memoryEntry
}

// NewMemoryStore creates an empty in-process lock store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]*memoryEntry),
	}
}

// Acquire takes the lock if it is free, expired, or held by the same operator.
func (s *MemoryStore) Acquire(ctx context.Context, conversationID, operatorID string, ttl time.Duration) (*Acquisition, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	entry, ok := s.entries[conversationID]
	if ok && now.Before(entry.expiresAt) && entry.owner != operatorID {
		return &Acquisition{Granted: false, Owner: entry.owner}, nil
	}

	s.entries[conversationID] = &memoryEntry{
		owner:     operatorID,
		expiresAt: now.Add(ttl),
	}
	return &Acquisition{Granted: true}, nil
}

// Renew extends a held lock or reports it lost.
func (s *MemoryStore) Renew(ctx context.Context, conversationID, operatorID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[conversationID]
	if !ok || time.Now().After(entry.expiresAt) || entry.owner != operatorID {
		return ErrLost
	}

	entry.expiresAt = time.Now().Add(ttl)
	return nil
}

// Release frees a held lock or reports the caller is not the owner.
func (s *MemoryStore) Release(ctx context.Context, conversationID, operatorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[conversationID]
	if !ok || time.Now().After(entry.expiresAt) || entry.owner != operatorID {
		return ErrNotOwner
	}

	delete(s.entries, conversationID)
	return nil
}

// Owner reports the current live holder, or "" if the lock is free or expired.
func (s *MemoryStore) Owner(ctx context.Context, conversationID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[conversationID]
	if !ok || time.Now().After(entry.expiresAt) {
		return "", nil
	}
	return entry.owner, nil
}

// Close is a no-op for the in-process store.
func (s *MemoryStore) Close() error {
	return nil
}
