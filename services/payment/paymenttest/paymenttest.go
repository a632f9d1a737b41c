// Package paymenttest поднимает платёжный координатор в памяти для сквозных тестов саги.
// Координатор собирается из тех же repository, service и kafka handler, что и в app,
// меняется только хранилище.
package paymenttest

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/platform/idempotency"
	"github.com/shestoi/ordersaga/platform/outbox"
	paymentkafka "github.com/shestoi/ordersaga/services/payment/internal/event/kafka"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
	"github.com/shestoi/ordersaga/services/payment/internal/repository/memory"
	"github.com/shestoi/ordersaga/services/payment/internal/service"
)

// Coordinator платёжный координатор с балансами по умолчанию (101..105)
type Coordinator struct {
	repo    *memory.MemoryRepository
	handler *paymentkafka.OrderEventsHandler
}

// New создаёт координатор и засевает балансы
func New(t testing.TB, logger *zap.Logger) *Coordinator {
	t.Helper()

	repo := memory.NewMemoryRepository()
	svc := service.NewService(logger, repo, idempotency.NewMemoryStore(), 0, "")
	require.NoError(t, svc.SeedBalances(context.Background(), service.DefaultSeed))

	return &Coordinator{
		repo:    repo,
		handler: paymentkafka.NewOrderEventsHandler(logger, svc),
	}
}

// HandleMessage обрабатывает сообщение из order-events
func (c *Coordinator) HandleMessage(ctx context.Context, m kafka.Message) error {
	return c.handler.HandleMessage(ctx, m)
}

// Outbox outbox с PaymentResult для outbox.Dispatcher
func (c *Coordinator) Outbox() *outbox.MemoryStore {
	return c.repo.Outbox()
}

// Balance текущий баланс пользователя
func (c *Coordinator) Balance(ctx context.Context, userID int64) (int64, error) {
	b, err := c.repo.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	return b.Amount, nil
}

// HasDebit есть ли в ledger списание за заказ
func (c *Coordinator) HasDebit(ctx context.Context, orderID int64) (bool, error) {
	_, err := c.repo.GetTransaction(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
