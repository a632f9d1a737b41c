package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shestoi/ordersaga/platform/outbox"
)

// Balance доступные средства пользователя. Меняется только списанием и компенсацией.
type Balance struct {
	UserID int64
	Amount int64
}

// Transaction запись ledger о списании за заказ. Не больше одной на заказ:
// создаётся при успешном списании, удаляется при компенсации.
type Transaction struct {
	OrderID   int64
	UserID    int64
	Amount    int64
	CreatedAt time.Time
}

// Tx операции внутри одной локальной транзакции.
// Чтения в postgres берут блокировку строки до конца транзакции.
type Tx interface {
	// GetBalance возвращает ErrNotFound, если баланса нет
	GetBalance(ctx context.Context, userID int64) (Balance, error)
	// GetTransaction возвращает ErrNotFound, если списания по заказу не было
	GetTransaction(ctx context.Context, orderID int64) (Transaction, error)
	SaveBalance(ctx context.Context, b Balance) error
	CreateTransaction(ctx context.Context, t Transaction) error
	DeleteTransaction(ctx context.Context, orderID int64) error
	// StageEvent кладёт событие в outbox этой же транзакции
	StageEvent(ctx context.Context, e outbox.Event) error
}

// PaymentRepository хранилище балансов, ledger и outbox платёжного координатора
type PaymentRepository interface {
	// WithinTx выполняет fn в одной транзакции под блокировкой заказа orderID.
	// Ошибка fn откатывает все изменения, включая staged события.
	WithinTx(ctx context.Context, orderID int64, fn func(ctx context.Context, tx Tx) error) error

	GetBalance(ctx context.Context, userID int64) (Balance, error)
	ListBalances(ctx context.Context) ([]Balance, error)
	// EnsureBalance создаёт баланс, если его нет. Существующий баланс не меняется.
	// Возвращает true, если баланс был создан.
	EnsureBalance(ctx context.Context, b Balance) (bool, error)
}

// ErrNotFound баланс или запись ledger не найдены
var ErrNotFound = errors.New("not found")
