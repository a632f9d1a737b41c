package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/platform/outbox"
)

// Order представляет доменную модель заказа
// Это бизнес-сущность, не привязанная к HTTP или БД
type Order struct {
	ID        int64
	UserID    int64
	ProductID int64
	Price     int64
	Status    events.OrderStatus
	// PaymentStatus пусто, пока результат оплаты не получен
	PaymentStatus events.PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Tx операции внутри одной локальной транзакции
type Tx interface {
	// CreateOrder сохраняет новый заказ и возвращает его с присвоенным ID
	CreateOrder(ctx context.Context, o Order) (Order, error)
	// GetOrder читает заказ с блокировкой до конца транзакции.
	// Возвращает ErrNotFound, если заказ не найден
	GetOrder(ctx context.Context, id int64) (Order, error)
	UpdateOrder(ctx context.Context, o Order) error
	// StageEvent кладёт событие в outbox этой же транзакции
	StageEvent(ctx context.Context, e outbox.Event) error
}

// OrderRepository определяет интерфейс для работы с хранилищем заказов
// Service слой зависит от этого интерфейса, а не от конкретной реализации
type OrderRepository interface {
	// WithinTx выполняет fn в одной транзакции. Ошибка fn откатывает все изменения,
	// включая staged события.
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// GetByID получает заказ по ID
	// Возвращает ErrNotFound, если заказ не найден
	GetByID(ctx context.Context, id int64) (Order, error)

	// List возвращает все заказы по возрастанию ID
	List(ctx context.Context) ([]Order, error)
}

// ErrNotFound возвращается, когда заказ не найден в хранилище
var ErrNotFound = errors.New("order not found")
