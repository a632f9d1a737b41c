package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shestoi/ordersaga/platform/keylock"
	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

// MemoryRepository реализует PaymentRepository в памяти.
// Атомарность по ключу: мьютекс заказа на всю транзакцию, мьютекс пользователя
// берётся при первом обращении к его балансу. Порядок всегда заказ, затем пользователь.
// Изменения копятся в транзакции и применяются только при успешном завершении fn.
type MemoryRepository struct {
	mu           sync.RWMutex
	balances     map[int64]int64
	transactions map[int64]repository.Transaction

	orderLocks *keylock.Locker[int64]
	userLocks  *keylock.Locker[int64]

	outbox *outbox.MemoryStore
}

// NewMemoryRepository создаёт репозиторий с собственным in-memory outbox
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		balances:     make(map[int64]int64),
		transactions: make(map[int64]repository.Transaction),
		orderLocks:   keylock.New[int64](),
		userLocks:    keylock.New[int64](),
		outbox:       outbox.NewMemoryStore(),
	}
}

// Outbox возвращает outbox store для dispatcher-а
func (r *MemoryRepository) Outbox() *outbox.MemoryStore {
	return r.outbox
}

func (r *MemoryRepository) WithinTx(ctx context.Context, orderID int64, fn func(ctx context.Context, tx repository.Tx) error) error {
	unlockOrder := r.orderLocks.Lock(orderID)
	defer unlockOrder()

	tx := &memoryTx{
		repo:     r,
		unlocks:  make(map[int64]func()),
		balances: make(map[int64]int64),
		created:  make(map[int64]repository.Transaction),
		deleted:  make(map[int64]struct{}),
	}
	defer tx.release()

	if err := fn(ctx, tx); err != nil {
		return err
	}

	tx.commit()
	return nil
}

func (r *MemoryRepository) GetBalance(_ context.Context, userID int64) (repository.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	amount, ok := r.balances[userID]
	if !ok {
		return repository.Balance{}, repository.ErrNotFound
	}
	return repository.Balance{UserID: userID, Amount: amount}, nil
}

func (r *MemoryRepository) ListBalances(_ context.Context) ([]repository.Balance, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]repository.Balance, 0, len(r.balances))
	for userID, amount := range r.balances {
		out = append(out, repository.Balance{UserID: userID, Amount: amount})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (r *MemoryRepository) EnsureBalance(_ context.Context, b repository.Balance) (bool, error) {
	unlock := r.userLocks.Lock(b.UserID)
	defer unlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.balances[b.UserID]; ok {
		return false, nil
	}
	r.balances[b.UserID] = b.Amount
	return true, nil
}

// GetTransaction чтение ledger вне транзакции, для тестов и отладки
func (r *MemoryRepository) GetTransaction(_ context.Context, orderID int64) (repository.Transaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.transactions[orderID]
	if !ok {
		return repository.Transaction{}, repository.ErrNotFound
	}
	return t, nil
}

type memoryTx struct {
	repo    *MemoryRepository
	unlocks map[int64]func()

	balances map[int64]int64
	created  map[int64]repository.Transaction
	deleted  map[int64]struct{}
	events   []outbox.Event
}

func (t *memoryTx) lockUser(userID int64) {
	if _, ok := t.unlocks[userID]; ok {
		return
	}
	t.unlocks[userID] = t.repo.userLocks.Lock(userID)
}

func (t *memoryTx) release() {
	for _, unlock := range t.unlocks {
		unlock()
	}
}

func (t *memoryTx) GetBalance(_ context.Context, userID int64) (repository.Balance, error) {
	t.lockUser(userID)

	if amount, ok := t.balances[userID]; ok {
		return repository.Balance{UserID: userID, Amount: amount}, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	amount, ok := t.repo.balances[userID]
	if !ok {
		return repository.Balance{}, repository.ErrNotFound
	}
	return repository.Balance{UserID: userID, Amount: amount}, nil
}

func (t *memoryTx) GetTransaction(_ context.Context, orderID int64) (repository.Transaction, error) {
	if _, ok := t.deleted[orderID]; ok {
		return repository.Transaction{}, repository.ErrNotFound
	}
	if tr, ok := t.created[orderID]; ok {
		return tr, nil
	}

	t.repo.mu.RLock()
	defer t.repo.mu.RUnlock()
	tr, ok := t.repo.transactions[orderID]
	if !ok {
		return repository.Transaction{}, repository.ErrNotFound
	}
	return tr, nil
}

func (t *memoryTx) SaveBalance(_ context.Context, b repository.Balance) error {
	t.lockUser(b.UserID)
	t.balances[b.UserID] = b.Amount
	return nil
}

func (t *memoryTx) CreateTransaction(_ context.Context, tr repository.Transaction) error {
	if tr.CreatedAt.IsZero() {
		tr.CreatedAt = time.Now().UTC()
	}
	delete(t.deleted, tr.OrderID)
	t.created[tr.OrderID] = tr
	return nil
}

func (t *memoryTx) DeleteTransaction(_ context.Context, orderID int64) error {
	delete(t.created, orderID)
	t.deleted[orderID] = struct{}{}
	return nil
}

func (t *memoryTx) StageEvent(_ context.Context, e outbox.Event) error {
	t.events = append(t.events, e)
	return nil
}

// commit применяет накопленные изменения. Вызывается под блокировками транзакции.
func (t *memoryTx) commit() {
	t.repo.mu.Lock()
	for userID, amount := range t.balances {
		t.repo.balances[userID] = amount
	}
	for orderID := range t.deleted {
		delete(t.repo.transactions, orderID)
	}
	for orderID, tr := range t.created {
		t.repo.transactions[orderID] = tr
	}
	t.repo.mu.Unlock()

	// outbox после состояния: dispatcher не увидит событие раньше изменений
	t.repo.outbox.Append(t.events...)
}
