package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
	"github.com/shestoi/ordersaga/platform/observability"
)

// Dispatcher периодически читает pending события из outbox и публикует их в Kafka.
// Доставка at-least-once: сбой между публикацией и MarkSent приведёт к повторной
// публикации, поэтому обработчики на стороне consumer-ов идемпотентны.
type Dispatcher struct {
	logger     *zap.Logger
	store      Store
	writer     platformkafka.MessageWriter
	batchSize  int
	interval   time.Duration
	maxRetries int
	backoff    time.Duration
}

// NewDispatcher создаёт dispatcher
func NewDispatcher(
	logger *zap.Logger,
	store Store,
	writer platformkafka.MessageWriter,
	batchSize int,
	interval time.Duration,
	maxRetries int,
	backoff time.Duration,
) *Dispatcher {
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}

	return &Dispatcher{
		logger:     logger,
		store:      store,
		writer:     writer,
		batchSize:  batchSize,
		interval:   interval,
		maxRetries: maxRetries,
		backoff:    backoff,
	}
}

// Start блокирует до отмены ctx
func (d *Dispatcher) Start(ctx context.Context) error {
	d.logger.Info("starting outbox dispatcher",
		zap.Int("batch_size", d.batchSize),
		zap.Duration("interval", d.interval),
		zap.Int("max_retries", d.maxRetries),
	)

	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if err := d.ProcessBatch(ctx); err != nil && ctx.Err() == nil {
			d.logger.Error("failed to process outbox batch", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("outbox dispatcher context cancelled, stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessBatch публикует один батч pending событий.
// Если событие агрегата не опубликовано, следующие события того же агрегата
// в этом батче пропускаются, чтобы не нарушить порядок внутри партиции.
func (d *Dispatcher) ProcessBatch(ctx context.Context) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}

	events, err := d.store.GetPendingOutboxEvents(ctx, d.batchSize)
	if err != nil {
		return fmt.Errorf("failed to get pending events: %w", err)
	}
	if len(events) == 0 {
		return nil
	}

	d.logger.Debug("processing outbox batch", zap.Int("count", len(events)))

	blocked := make(map[string]struct{})
	for _, event := range events {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if _, ok := blocked[event.AggregateID]; ok {
			continue
		}

		if err := d.processEvent(ctx, event); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			blocked[event.AggregateID] = struct{}{}
			d.logger.Error("failed to process outbox event",
				zap.Error(err),
				zap.String("event_id", event.EventID),
				zap.String("topic", event.Topic),
				zap.String("aggregate_id", event.AggregateID),
			)
		}
	}

	return nil
}

func (d *Dispatcher) message(ctx context.Context, event Event) kafka.Message {
	headers := []kafka.Header{{Key: "event_type", Value: []byte(event.EventType)}}
	for k, v := range event.Headers {
		headers = append(headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	// если trace не сохранён вместе с событием, продолжаем трассу dispatcher-а
	if len(event.Headers) == 0 {
		headers = observability.InjectKafkaHeaders(ctx, headers)
	}

	return kafka.Message{
		Topic:   event.Topic,
		Key:     []byte(event.AggregateID),
		Value:   event.Payload,
		Headers: headers,
	}
}

// processEvent публикует одно событие с retry
func (d *Dispatcher) processEvent(ctx context.Context, event Event) error {
	var lastErr error
	msg := d.message(ctx, event)

	for attempt := 1; attempt <= d.maxRetries; attempt++ {
		err := d.writer.WriteMessages(ctx, msg)
		if err == nil {
			if markErr := d.store.MarkOutboxEventSent(ctx, event.EventID); markErr != nil {
				return fmt.Errorf("mark event as sent: %w", markErr)
			}

			observability.RecordOutbox(ctx, event.Topic, "sent")
			d.logger.Info("outbox event published",
				zap.String("event_id", event.EventID),
				zap.String("event_type", event.EventType),
				zap.String("topic", event.Topic),
				zap.String("aggregate_id", event.AggregateID),
				zap.Int("attempt", attempt),
			)
			return nil
		}

		lastErr = err
		d.logger.Warn("failed to publish outbox event",
			zap.Error(err),
			zap.String("event_id", event.EventID),
			zap.String("topic", event.Topic),
			zap.Int("attempt", attempt),
			zap.Int("max_retries", d.maxRetries),
		)

		if attempt < d.maxRetries {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(d.backoff * time.Duration(attempt)):
			}
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}

	observability.RecordOutbox(ctx, event.Topic, "failed")

	errMsg := fmt.Sprintf("failed after %d attempts: %v", d.maxRetries, lastErr)
	if markErr := d.store.MarkOutboxEventFailed(ctx, event.EventID, errMsg); markErr != nil {
		return fmt.Errorf("mark event as failed: %w", markErr)
	}

	// возвращаем в pending: следующий тик попробует снова
	if resetErr := d.store.ResetOutboxEventPending(ctx, event.EventID); resetErr != nil {
		d.logger.Error("failed to reset event to pending",
			zap.Error(resetErr),
			zap.String("event_id", event.EventID),
		)
	}

	return fmt.Errorf("failed to publish event after %d attempts: %w", d.maxRetries, lastErr)
}

// Close закрывает Kafka writer
func (d *Dispatcher) Close() error {
	d.logger.Info("closing outbox dispatcher")
	return d.writer.Close()
}
