package outbox

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore in-memory outbox для локального запуска без PostgreSQL и для тестов.
// Репозитории добавляют события через Append в момент commit своей транзакции.
// Отправленные события удаляются сразу, в памяти живут только pending и failed.
type MemoryStore struct {
	mu     sync.Mutex
	seq    int64
	events map[string]*memoryEvent
}

type memoryEvent struct {
	seq int64
	Event
}

// NewMemoryStore создаёт пустой in-memory outbox
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{events: make(map[string]*memoryEvent)}
}

// Append добавляет события в статусе pending
func (s *MemoryStore) Append(events ...Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range events {
		s.seq++
		e.Status = StatusPending
		if e.CreatedAt.IsZero() {
			e.CreatedAt = time.Now().UTC()
		}
		s.events[e.EventID] = &memoryEvent{seq: s.seq, Event: e}
	}
}

// GetPendingOutboxEvents возвращает pending события в порядке записи
func (s *MemoryStore) GetPendingOutboxEvents(_ context.Context, limit int) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pending := make([]*memoryEvent, 0)
	for _, e := range s.events {
		if e.Status == StatusPending {
			pending = append(pending, e)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	if limit > 0 && len(pending) > limit {
		pending = pending[:limit]
	}

	out := make([]Event, 0, len(pending))
	for _, e := range pending {
		out = append(out, e.Event)
	}
	return out, nil
}

func (s *MemoryStore) update(eventID string, fn func(e *memoryEvent)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.events[eventID]
	if !ok {
		return ErrEventNotFound
	}
	fn(e)
	return nil
}

func (s *MemoryStore) MarkOutboxEventSent(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.events[eventID]; !ok {
		return ErrEventNotFound
	}
	delete(s.events, eventID)
	return nil
}

func (s *MemoryStore) MarkOutboxEventFailed(_ context.Context, eventID, errMsg string) error {
	return s.update(eventID, func(e *memoryEvent) {
		e.Status = StatusFailed
		e.Attempts++
		e.LastError = errMsg
	})
}

func (s *MemoryStore) ResetOutboxEventPending(_ context.Context, eventID string) error {
	return s.update(eventID, func(e *memoryEvent) {
		e.Status = StatusPending
	})
}

// All возвращает ещё не отправленные события в порядке записи
func (s *MemoryStore) All() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	all := make([]*memoryEvent, 0, len(s.events))
	for _, e := range s.events {
		all = append(all, e)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].seq < all[j].seq })

	out := make([]Event, 0, len(all))
	for _, e := range all {
		out = append(out, e.Event)
	}
	return out
}
