package idempotency

import (
	"context"
	"sync"
	"time"
)

// sweepInterval как часто MarkProcessed чистит протухшие записи целиком
const sweepInterval = time.Minute

// MemoryStore in-memory ProcessedEventsStore для local окружения и тестов
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	nextSweep time.Time
	events    map[string]time.Time // eventID -> expiresAt
}

// NewMemoryStore создаёт пустой store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:    time.Now,
		events: make(map[string]time.Time),
	}
}

func (s *MemoryStore) MarkProcessed(_ context.Context, eventID string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cleanupExpiredLocked()
	s.events[eventID] = s.now().Add(ttl)
	return nil
}

func (s *MemoryStore) IsProcessed(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.events[eventID]
	if !ok {
		return false, nil
	}
	if s.now().After(expiresAt) {
		delete(s.events, eventID)
		return false, nil
	}
	return true, nil
}

// cleanupExpiredLocked ленивая очистка не чаще sweepInterval, вызывается под mu
func (s *MemoryStore) cleanupExpiredLocked() {
	now := s.now()
	if now.Before(s.nextSweep) {
		return
	}
	s.nextSweep = now.Add(sweepInterval)
	for id, expiresAt := range s.events {
		if now.After(expiresAt) {
			delete(s.events, id)
		}
	}
}
