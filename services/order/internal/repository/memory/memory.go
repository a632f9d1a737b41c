package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/ordersaga/platform/keylock"
	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
)

// MemoryRepository реализует OrderRepository используя in-memory хранилище.
// Заказ блокируется при первом чтении в транзакции и до её конца,
// изменения применяются только при успешном завершении fn.
type MemoryRepository struct {
	mu     sync.RWMutex
	orders map[int64]repository.Order
	nextID int64

	locks  *keylock.Locker[int64]
	outbox *outbox.MemoryStore
}

// NewMemoryRepository создаёт новый in-memory репозиторий с собственным outbox
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		orders: make(map[int64]repository.Order),
		locks:  keylock.New[int64](),
		outbox: outbox.NewMemoryStore(),
	}
}

// Outbox возвращает outbox store для dispatcher-а
func (r *MemoryRepository) Outbox() *outbox.MemoryStore {
	return r.outbox
}

func (r *MemoryRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx := &memoryTx{
		repo:    r,
		unlocks: make(map[int64]func()),
		orders:  make(map[int64]repository.Order),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

// GetByID получает заказ по ID из памяти
func (r *MemoryRepository) GetByID(_ context.Context, id int64) (repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	order, exists := r.orders[id]
	if !exists {
		return repository.Order{}, repository.ErrNotFound
	}
	return order, nil
}

func (r *MemoryRepository) List(_ context.Context) ([]repository.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Order, 0, len(r.orders))
	for _, o := range r.orders {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// allocateID выдаёт следующий ID. Как и BIGSERIAL, не переиспользуется после отката.
func (r *MemoryRepository) allocateID() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

type memoryTx struct {
	repo    *MemoryRepository
	unlocks map[int64]func()

	orders map[int64]repository.Order
	events []outbox.Event
}

func (t *memoryTx) lock(id int64) {
	if _, ok := t.unlocks[id]; ok {
		return
	}
	t.unlocks[id] = t.repo.locks.Lock(id)
}

func (t *memoryTx) release() {
	for _, unlock := range t.unlocks {
		unlock()
	}
}

func (t *memoryTx) CreateOrder(_ context.Context, o repository.Order) (repository.Order, error) {
	o.ID = t.repo.allocateID()
	t.lock(o.ID)

	now := time.Now().UTC()
	if o.CreatedAt.IsZero() {
		o.CreatedAt = now
	}
	o.UpdatedAt = now
	t.orders[o.ID] = o
	return o, nil
}

func (t *memoryTx) GetOrder(_ context.Context, id int64) (repository.Order, error) {
	t.lock(id)

	if o, ok := t.orders[id]; ok {
		return o, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	o, ok := t.repo.orders[id]
	if !ok {
		return repository.Order{}, repository.ErrNotFound
	}
	return o, nil
}

func (t *memoryTx) UpdateOrder(ctx context.Context, o repository.Order) error {
	if _, err := t.GetOrder(ctx, o.ID); err != nil {
		return err
	}
	o.UpdatedAt = time.Now().UTC()
	t.orders[o.ID] = o
	return nil
}

func (t *memoryTx) StageEvent(_ context.Context, e outbox.Event) error {
	t.events = append(t.events, e)
	return nil
}

// commit применяет изменения, затем публикует staged события в outbox
func (t *memoryTx) commit() {
	t.repo.mu.Lock()
	for id, o := range t.orders {
		t.repo.orders[id] = o
	}
	t.repo.mu.Unlock()

	t.repo.outbox.Append(t.events...)
}
