package observability

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/shestoi/ordersaga"

var (
	instrumentsOnce sync.Once
	messagesCounter metric.Int64Counter
	outcomeCounter  metric.Int64Counter
	outboxCounter   metric.Int64Counter
)

// instruments создаются через глобальный MeterProvider. Если Init ещё не вызван,
// otel отдаёт делегирующий meter, который подхватит провайдер позже.
func instruments() {
	instrumentsOnce.Do(func() {
		meter := otel.Meter(meterName)
		messagesCounter, _ = meter.Int64Counter("saga.messages",
			metric.WithDescription("Kafka messages handled by outcome (ok, poison, retry_exhausted)"))
		outcomeCounter, _ = meter.Int64Counter("saga.outcomes",
			metric.WithDescription("Saga decisions by kind (payment_completed, payment_failed, reversed, order_completed, order_cancelled, duplicate)"))
		outboxCounter, _ = meter.Int64Counter("saga.outbox.events",
			metric.WithDescription("Outbox events by result (sent, failed)"))
	})
}

// RecordMessage учитывает результат обработки kafka-сообщения
func RecordMessage(ctx context.Context, topic, outcome string) {
	instruments()
	messagesCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("outcome", outcome),
	))
}

// RecordOutcome учитывает решение саги
func RecordOutcome(ctx context.Context, service, outcome string) {
	instruments()
	outcomeCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("service", service),
		attribute.String("outcome", outcome),
	))
}

// RecordOutbox учитывает результат публикации события из outbox
func RecordOutbox(ctx context.Context, topic, result string) {
	instruments()
	outboxCounter.Add(ctx, 1, metric.WithAttributes(
		attribute.String("topic", topic),
		attribute.String("result", result),
	))
}
