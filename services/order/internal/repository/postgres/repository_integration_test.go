//go:build integration

package postgres

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/platform/postgres/pgtest"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
	"github.com/shestoi/ordersaga/services/order/migrations"
)

func TestRepository_Integration(t *testing.T) {
	ctx := context.Background()

	// Поднимаем PostgreSQL контейнер и накатываем миграции
	pool := pgtest.Start(t, migrations.FS)

	repo := NewRepository(pool)
	outboxStore := outbox.NewPostgresStore(pool)

	var created repository.Order

	t.Run("CreateOrder and GetByID", func(t *testing.T) {
		err := repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			var err error
			created, err = tx.CreateOrder(ctx, repository.Order{
				UserID:    101,
				ProductID: 7,
				Price:     3000,
				Status:    events.OrderStatusCreated,
			})
			if err != nil {
				return err
			}
			ev := events.NewOrderCreated(events.OrderPayload{OrderID: created.ID, UserID: 101, Amount: 3000})
			payload, err := events.EncodeOrderEvent(ev)
			if err != nil {
				return err
			}
			return tx.StageEvent(ctx, outbox.NewEvent(ctx, events.DefaultOrderTopic, strconv.FormatInt(created.ID, 10), ev.EventID, ev.EventType, payload))
		})
		require.NoError(t, err)
		require.Positive(t, created.ID)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, int64(101), got.UserID)
		require.Equal(t, events.OrderStatusCreated, got.Status)
		require.Empty(t, got.PaymentStatus)

		pending, err := outboxStore.GetPendingOutboxEvents(ctx, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, events.EventTypeOrderCreated, pending[0].EventType)
	})

	t.Run("UpdateOrder sets terminal status", func(t *testing.T) {
		err := repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			o, err := tx.GetOrder(ctx, created.ID)
			if err != nil {
				return err
			}
			o.PaymentStatus = events.PaymentStatusFailed
			o.Status = events.OrderStatusCancelled
			return tx.UpdateOrder(ctx, o)
		})
		require.NoError(t, err)

		got, err := repo.GetByID(ctx, created.ID)
		require.NoError(t, err)
		require.Equal(t, events.OrderStatusCancelled, got.Status)
		require.Equal(t, events.PaymentStatusFailed, got.PaymentStatus)
	})

	t.Run("rolled back create leaves nothing", func(t *testing.T) {
		boom := errors.New("boom")
		err := repo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
			if _, err := tx.CreateOrder(ctx, repository.Order{UserID: 102, ProductID: 1, Price: 10, Status: events.OrderStatusCreated}); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		list, err := repo.List(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("GetByID_NotFound", func(t *testing.T) {
		_, err := repo.GetByID(ctx, 999999)
		require.Error(t, err)
		require.True(t, errors.Is(err, repository.ErrNotFound), "Expected ErrNotFound, got: %v", err)
	})
}
