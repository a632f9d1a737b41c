package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

// Repository реализует PaymentRepository поверх PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithinTx открывает транзакцию и берёт transaction-level advisory lock заказа:
// строки ledger для нового заказа ещё нет, FOR UPDATE её не заблокирует.
func (r *Repository) WithinTx(ctx context.Context, orderID int64, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, orderID); err != nil {
		return fmt.Errorf("lock order %d: %w", orderID, err)
	}

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (r *Repository) GetBalance(ctx context.Context, userID int64) (repository.Balance, error) {
	b := repository.Balance{UserID: userID}
	err := r.pool.QueryRow(ctx, `SELECT amount FROM balances WHERE user_id = $1`, userID).Scan(&b.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Balance{}, repository.ErrNotFound
		}
		return repository.Balance{}, err
	}
	return b, nil
}

func (r *Repository) ListBalances(ctx context.Context) ([]repository.Balance, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, amount FROM balances ORDER BY user_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]repository.Balance, 0)
	for rows.Next() {
		var b repository.Balance
		if err := rows.Scan(&b.UserID, &b.Amount); err != nil {
			return nil, err
		}
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

func (r *Repository) EnsureBalance(ctx context.Context, b repository.Balance) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO balances (user_id, amount) VALUES ($1, $2) ON CONFLICT (user_id) DO NOTHING`,
		b.UserID, b.Amount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// pgTx реализует repository.Tx поверх pgx.Tx
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) GetBalance(ctx context.Context, userID int64) (repository.Balance, error) {
	b := repository.Balance{UserID: userID}
	err := t.tx.QueryRow(ctx, `SELECT amount FROM balances WHERE user_id = $1 FOR UPDATE`, userID).Scan(&b.Amount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Balance{}, repository.ErrNotFound
		}
		return repository.Balance{}, err
	}
	return b, nil
}

func (t *pgTx) GetTransaction(ctx context.Context, orderID int64) (repository.Transaction, error) {
	tr := repository.Transaction{OrderID: orderID}
	err := t.tx.QueryRow(ctx,
		`SELECT user_id, amount, created_at FROM transactions WHERE order_id = $1 FOR UPDATE`,
		orderID).Scan(&tr.UserID, &tr.Amount, &tr.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Transaction{}, repository.ErrNotFound
		}
		return repository.Transaction{}, err
	}
	return tr, nil
}

func (t *pgTx) SaveBalance(ctx context.Context, b repository.Balance) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO balances (user_id, amount, updated_at) VALUES ($1, $2, now())
		 ON CONFLICT (user_id) DO UPDATE SET amount = EXCLUDED.amount, updated_at = now()`,
		b.UserID, b.Amount)
	if err != nil {
		return fmt.Errorf("save balance: %w", err)
	}
	return nil
}

func (t *pgTx) CreateTransaction(ctx context.Context, tr repository.Transaction) error {
	_, err := t.tx.Exec(ctx,
		`INSERT INTO transactions (order_id, user_id, amount) VALUES ($1, $2, $3)`,
		tr.OrderID, tr.UserID, tr.Amount)
	if err != nil {
		return fmt.Errorf("create transaction: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteTransaction(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM transactions WHERE order_id = $1`, orderID)
	if err != nil {
		return fmt.Errorf("delete transaction: %w", err)
	}
	return nil
}

func (t *pgTx) StageEvent(ctx context.Context, e outbox.Event) error {
	return outbox.InsertTx(ctx, t.tx, e)
}
