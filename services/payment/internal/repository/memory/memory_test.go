package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

func TestMemoryRepository_EnsureBalanceDoesNotReset(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()

	created, err := repo.EnsureBalance(ctx, repository.Balance{UserID: 101, Amount: 5000})
	require.NoError(t, err)
	assert.True(t, created)

	require.NoError(t, repo.WithinTx(ctx, 1, func(ctx context.Context, tx repository.Tx) error {
		return tx.SaveBalance(ctx, repository.Balance{UserID: 101, Amount: 2000})
	}))

	created, err = repo.EnsureBalance(ctx, repository.Balance{UserID: 101, Amount: 5000})
	require.NoError(t, err)
	assert.False(t, created)

	b, err := repo.GetBalance(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, int64(2000), b.Amount)
}

func TestMemoryRepository_RollbackOnError(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.EnsureBalance(ctx, repository.Balance{UserID: 101, Amount: 5000})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = repo.WithinTx(ctx, 7, func(ctx context.Context, tx repository.Tx) error {
		require.NoError(t, tx.SaveBalance(ctx, repository.Balance{UserID: 101, Amount: 1}))
		require.NoError(t, tx.CreateTransaction(ctx, repository.Transaction{OrderID: 7, UserID: 101, Amount: 4999}))
		require.NoError(t, tx.StageEvent(ctx, outbox.Event{EventID: "e1", AggregateID: "7"}))

		// внутри транзакции видны собственные записи
		b, err := tx.GetBalance(ctx, 101)
		require.NoError(t, err)
		assert.Equal(t, int64(1), b.Amount)
		_, err = tx.GetTransaction(ctx, 7)
		require.NoError(t, err)

		return boom
	})
	require.ErrorIs(t, err, boom)

	b, err := repo.GetBalance(ctx, 101)
	require.NoError(t, err)
	assert.Equal(t, int64(5000), b.Amount)

	_, err = repo.GetTransaction(ctx, 7)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	assert.Empty(t, repo.Outbox().All())
}

func TestMemoryRepository_CommitAppliesAll(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.EnsureBalance(ctx, repository.Balance{UserID: 102, Amount: 3000})
	require.NoError(t, err)

	require.NoError(t, repo.WithinTx(ctx, 8, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.SaveBalance(ctx, repository.Balance{UserID: 102, Amount: 2000}); err != nil {
			return err
		}
		if err := tx.CreateTransaction(ctx, repository.Transaction{OrderID: 8, UserID: 102, Amount: 1000}); err != nil {
			return err
		}
		return tx.StageEvent(ctx, outbox.Event{EventID: "e8", AggregateID: "8"})
	}))

	tr, err := repo.GetTransaction(ctx, 8)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), tr.Amount)
	assert.False(t, tr.CreatedAt.IsZero())

	require.NoError(t, repo.WithinTx(ctx, 8, func(ctx context.Context, tx repository.Tx) error {
		if err := tx.DeleteTransaction(ctx, 8); err != nil {
			return err
		}
		_, err := tx.GetTransaction(ctx, 8)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return nil
	}))

	_, err = repo.GetTransaction(ctx, 8)
	assert.ErrorIs(t, err, repository.ErrNotFound)
	require.Len(t, repo.Outbox().All(), 1)
}

func TestMemoryRepository_ConcurrentDebitsOfOneUser(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	_, err := repo.EnsureBalance(ctx, repository.Balance{UserID: 104, Amount: 20000})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for orderID := int64(1); orderID <= 100; orderID++ {
		wg.Add(1)
		go func(orderID int64) {
			defer wg.Done()
			err := repo.WithinTx(ctx, orderID, func(ctx context.Context, tx repository.Tx) error {
				b, err := tx.GetBalance(ctx, 104)
				if err != nil {
					return err
				}
				b.Amount -= 100
				return tx.SaveBalance(ctx, b)
			})
			assert.NoError(t, err)
		}(orderID)
	}
	wg.Wait()

	b, err := repo.GetBalance(ctx, 104)
	require.NoError(t, err)
	assert.Equal(t, int64(10000), b.Amount)
}

func TestMemoryRepository_ListBalancesSorted(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryRepository()
	for _, b := range []repository.Balance{{UserID: 105, Amount: 999}, {UserID: 101, Amount: 5000}} {
		_, err := repo.EnsureBalance(ctx, b)
		require.NoError(t, err)
	}

	list, err := repo.ListBalances(ctx)
	require.NoError(t, err)
	assert.Equal(t, []repository.Balance{{UserID: 101, Amount: 5000}, {UserID: 105, Amount: 999}}, list)
}
