package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
)

const orderColumns = `id, user_id, product_id, price, status, COALESCE(payment_status, ''), created_at, updated_at`

// Repository реализует OrderRepository используя PostgreSQL
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository создаёт новый PostgreSQL репозиторий
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{
		pool: pool,
	}
}

// WithinTx выполняет fn в транзакции. Заказ и его outbox события коммитятся вместе.
func (r *Repository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	// Гарантируем откат транзакции в случае ошибки
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByID получает заказ по ID из PostgreSQL
func (r *Repository) GetByID(ctx context.Context, id int64) (repository.Order, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1`, id)
	return scanOrder(row)
}

func (r *Repository) List(ctx context.Context) ([]repository.Order, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+orderColumns+` FROM orders ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]repository.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func scanOrder(row pgx.Row) (repository.Order, error) {
	var (
		o             repository.Order
		status        string
		paymentStatus string
	)
	err := row.Scan(&o.ID, &o.UserID, &o.ProductID, &o.Price, &status, &paymentStatus, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return repository.Order{}, repository.ErrNotFound
		}
		return repository.Order{}, err
	}
	o.Status = events.OrderStatus(status)
	o.PaymentStatus = events.PaymentStatus(paymentStatus)
	return o, nil
}

// nullable пустой payment_status хранится как NULL
func nullable(ps events.PaymentStatus) *string {
	if ps == "" {
		return nil
	}
	s := string(ps)
	return &s
}

// pgTx реализует repository.Tx поверх pgx.Tx
type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) CreateOrder(ctx context.Context, o repository.Order) (repository.Order, error) {
	err := t.tx.QueryRow(ctx,
		`INSERT INTO orders (user_id, product_id, price, status, payment_status)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		o.UserID, o.ProductID, o.Price, string(o.Status), nullable(o.PaymentStatus),
	).Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return repository.Order{}, fmt.Errorf("insert order: %w", err)
	}
	return o, nil
}

func (t *pgTx) GetOrder(ctx context.Context, id int64) (repository.Order, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = $1 FOR UPDATE`, id)
	return scanOrder(row)
}

func (t *pgTx) UpdateOrder(ctx context.Context, o repository.Order) error {
	tag, err := t.tx.Exec(ctx,
		`UPDATE orders SET status = $2, payment_status = $3, updated_at = now() WHERE id = $1`,
		o.ID, string(o.Status), nullable(o.PaymentStatus))
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

func (t *pgTx) StageEvent(ctx context.Context, e outbox.Event) error {
	return outbox.InsertTx(ctx, t.tx, e)
}
