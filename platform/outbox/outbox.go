// Package outbox реализует transactional outbox: событие сохраняется в той же
// локальной транзакции, что и изменение состояния, а Dispatcher публикует его в Kafka.
package outbox

import (
	"context"
	"errors"
	"time"

	"github.com/shestoi/ordersaga/platform/observability"
)

// Status статус события в outbox
type Status string

const (
	StatusPending Status = "pending"
	StatusSent    Status = "sent"
	StatusFailed  Status = "failed"
)

// Event событие, ожидающее публикации
type Event struct {
	EventID     string
	AggregateID string // order_id, он же ключ kafka-сообщения
	Topic       string
	EventType   string
	Payload     []byte
	Headers     map[string]string // trace context на момент записи
	Status      Status
	Attempts    int
	LastError   string
	CreatedAt   time.Time
}

// Store хранилище outbox, которое читает Dispatcher
type Store interface {
	GetPendingOutboxEvents(ctx context.Context, limit int) ([]Event, error)
	MarkOutboxEventSent(ctx context.Context, eventID string) error
	MarkOutboxEventFailed(ctx context.Context, eventID, errMsg string) error
	ResetOutboxEventPending(ctx context.Context, eventID string) error
}

// ErrEventNotFound событие с таким event_id отсутствует в outbox
var ErrEventNotFound = errors.New("outbox event not found")

// NewEvent собирает событие outbox и сохраняет trace context ctx в Headers,
// чтобы трасса продолжилась при публикации.
func NewEvent(ctx context.Context, topic, aggregateID, eventID, eventType string, payload []byte) Event {
	return Event{
		EventID:     eventID,
		AggregateID: aggregateID,
		Topic:       topic,
		EventType:   eventType,
		Payload:     payload,
		Headers:     observability.TraceCarrier(ctx),
		Status:      StatusPending,
		CreatedAt:   time.Now().UTC(),
	}
}
