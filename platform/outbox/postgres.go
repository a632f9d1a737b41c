package outbox

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// InsertTx записывает событие в outbox_events внутри транзакции вызывающего
func InsertTx(ctx context.Context, tx pgx.Tx, e Event) error {
	_, err := tx.Exec(ctx,
		`INSERT INTO outbox_events (event_id, aggregate_id, topic, event_type, payload, headers, status)
		 VALUES ($1, $2, $3, $4, $5, $6, 'pending')`,
		e.EventID, e.AggregateID, e.Topic, e.EventType, e.Payload, e.Headers)
	if err != nil {
		return fmt.Errorf("insert outbox event: %w", err)
	}
	return nil
}

// PostgresStore outbox поверх таблицы outbox_events
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore создаёт outbox store
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// GetPendingOutboxEvents возвращает pending события в порядке записи
func (s *PostgresStore) GetPendingOutboxEvents(ctx context.Context, limit int) ([]Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT event_id, aggregate_id, topic, event_type, payload, headers, status, attempts,
		        COALESCE(last_error, ''), created_at
		 FROM outbox_events
		 WHERE status = 'pending'
		 ORDER BY seq
		 LIMIT $1`,
		limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]Event, 0)
	for rows.Next() {
		var e Event
		var headers map[string]string
		if err := rows.Scan(&e.EventID, &e.AggregateID, &e.Topic, &e.EventType, &e.Payload,
			&headers, &e.Status, &e.Attempts, &e.LastError, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Headers = headers
		events = append(events, e)
	}

	return events, rows.Err()
}

func (s *PostgresStore) exec(ctx context.Context, sql string, args ...any) error {
	tag, err := s.pool.Exec(ctx, sql, args...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (s *PostgresStore) MarkOutboxEventSent(ctx context.Context, eventID string) error {
	return s.exec(ctx,
		`UPDATE outbox_events SET status = 'sent', attempts = attempts + 1, sent_at = now() WHERE event_id = $1`,
		eventID)
}

func (s *PostgresStore) MarkOutboxEventFailed(ctx context.Context, eventID, errMsg string) error {
	return s.exec(ctx,
		`UPDATE outbox_events SET status = 'failed', attempts = attempts + 1, last_error = $2 WHERE event_id = $1`,
		eventID, errMsg)
}

func (s *PostgresStore) ResetOutboxEventPending(ctx context.Context, eventID string) error {
	return s.exec(ctx,
		`UPDATE outbox_events SET status = 'pending' WHERE event_id = $1`,
		eventID)
}
