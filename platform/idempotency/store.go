// Package idempotency хранит event_id уже обработанных сообщений.
// Это быстрый путь для повторных доставок: корректность саги обеспечивают
// сами обработчики (проверка ledger, терминальный статус заказа), а store
// лишь избавляет от лишней транзакции.
package idempotency

import (
	"context"
	"time"
)

// ProcessedEventsStore хранит обработанные event_id с ограниченным сроком жизни
type ProcessedEventsStore interface {
	// MarkProcessed сохраняет eventID как обработанный. Повторный вызов безопасен.
	MarkProcessed(ctx context.Context, eventID string, ttl time.Duration) error
	// IsProcessed возвращает true, если eventID обработан и ttl не истёк
	IsProcessed(ctx context.Context, eventID string) (bool, error)
}
