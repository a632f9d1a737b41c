package kafka

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/platform/observability"
)

// Reader то, что consumer-у нужно от kafka.Reader
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Handler обрабатывает одно сообщение. nil означает, что offset можно коммитить.
// PoisonError означает, что сообщение уходит в DLQ. Любая другая ошибка считается
// временной: сообщение обрабатывается повторно и offset не двигается.
type Handler interface {
	HandleMessage(ctx context.Context, m kafka.Message) error
}

// HandlerFunc адаптер функции к Handler
type HandlerFunc func(ctx context.Context, m kafka.Message) error

func (f HandlerFunc) HandleMessage(ctx context.Context, m kafka.Message) error {
	return f(ctx, m)
}

// PoisonError сообщение не соответствует контракту, повторы бесполезны
type PoisonError struct {
	Err  error
	Meta DLQMeta
}

func (e *PoisonError) Error() string {
	return "poison message: " + e.Err.Error()
}

func (e *PoisonError) Unwrap() error {
	return e.Err
}

// Poison оборачивает ошибку в PoisonError
func Poison(err error, meta DLQMeta) error {
	return &PoisonError{Err: err, Meta: meta}
}

// Consumer читает топик с at-least-once семантикой: FetchMessage, обработка,
// CommitMessages только после успеха или отправки в DLQ.
//
// При временной ошибке consumer не переходит к следующему сообщению. Commit
// более позднего offset неявно подтвердил бы и текущее, а события саги терять нельзя.
// Раунды повторов продолжаются до успеха или отмены ctx, каждый исчерпанный раунд
// пишется в лог с уровнем error.
type Consumer struct {
	logger      *zap.Logger
	reader      Reader
	handler     Handler
	dlq         DeadLetterPublisher
	topic       string
	maxAttempts int
	backoffBase time.Duration
}

// NewConsumer создаёт consumer. topic используется для логов и метрик.
func NewConsumer(
	logger *zap.Logger,
	reader Reader,
	topic string,
	handler Handler,
	dlq DeadLetterPublisher,
	maxAttempts int,
	backoffBase time.Duration,
) *Consumer {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if backoffBase <= 0 {
		backoffBase = time.Second
	}

	return &Consumer{
		logger:      logger.With(zap.String("topic", topic)),
		reader:      reader,
		handler:     handler,
		dlq:         dlq,
		topic:       topic,
		maxAttempts: maxAttempts,
		backoffBase: backoffBase,
	}
}

// Start блокирует до отмены ctx
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("starting kafka consumer", zap.Int("max_retry_attempts", c.maxAttempts))

	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				c.logger.Info("consumer context cancelled, stopping")
				return nil
			}
			c.logger.Error("failed to fetch message from kafka", zap.Error(err))
			if !sleep(ctx, c.backoffBase) {
				return nil
			}
			continue
		}

		if !c.processMessage(ctx, m) {
			// ctx отменён посреди обработки, offset не коммитим
			return nil
		}

		if err := c.reader.CommitMessages(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			// обработчики идемпотентны, повторная доставка после rebalance безопасна
			c.logger.Error("failed to commit message offset",
				zap.Error(err),
				zap.Int("partition", m.Partition),
				zap.Int64("offset", m.Offset),
			)
			continue
		}

		c.logger.Debug("message offset committed",
			zap.Int("partition", m.Partition),
			zap.Int64("offset", m.Offset),
		)
	}
}

// processMessage возвращает true, когда offset можно коммитить
func (c *Consumer) processMessage(ctx context.Context, m kafka.Message) bool {
	ctx = observability.ExtractKafkaHeaders(ctx, m.Headers)
	ctx, span := otel.Tracer("platform/kafka").Start(ctx, "consume "+c.topic,
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("messaging.system", "kafka"),
			attribute.String("messaging.destination", c.topic),
			attribute.Int("messaging.kafka.partition", m.Partition),
			attribute.Int64("messaging.kafka.offset", m.Offset),
		),
	)
	defer span.End()

	log := observability.L(ctx, c.logger).With(
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
		zap.ByteString("key", m.Key),
	)

	for round := 1; ; round++ {
		err := c.handleWithRetry(ctx, log, m)
		if err == nil {
			observability.RecordMessage(ctx, c.topic, "ok")
			return true
		}
		if ctx.Err() != nil {
			return false
		}

		var poison *PoisonError
		if errors.As(err, &poison) {
			log.Error("poison message - sending to DLQ", zap.Error(err))
			if dlqErr := c.dlq.Publish(ctx, m, poison.Err, poison.Meta); dlqErr == nil {
				observability.RecordMessage(ctx, c.topic, "poison")
				span.SetStatus(codes.Error, "sent to dlq")
				return true
			}
			// DLQ недоступна: не коммитим, пробуем снова
		}

		observability.RecordMessage(ctx, c.topic, "retry_exhausted")
		span.RecordError(err)
		log.Error("ALERT: message processing failed after all retries, redelivering",
			zap.Error(err),
			zap.Int("round", round),
			zap.Int("max_attempts", c.maxAttempts),
		)

		if !sleep(ctx, c.backoff(c.maxAttempts+1)) {
			return false
		}
	}
}

// handleWithRetry делает до maxAttempts попыток. PoisonError возвращается сразу.
func (c *Consumer) handleWithRetry(ctx context.Context, log *zap.Logger, m kafka.Message) error {
	var lastErr error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		if attempt > 1 {
			backoff := c.backoff(attempt)
			log.Info("retrying message",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", c.maxAttempts),
				zap.Duration("backoff", backoff),
			)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
		}

		err := c.handler.HandleMessage(ctx, m)
		if err == nil {
			if attempt > 1 {
				log.Info("message processed successfully after retry", zap.Int("attempt", attempt))
			}
			return nil
		}

		var poison *PoisonError
		if errors.As(err, &poison) {
			return err
		}

		lastErr = err
		log.Warn("failed to handle message",
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.maxAttempts),
		)
	}

	return lastErr
}

// backoff для попытки attempt (>=2): base, 2*base, 4*base...
func (c *Consumer) backoff(attempt int) time.Duration {
	return c.backoffBase * time.Duration(1<<uint(attempt-2))
}

// Close закрывает reader
func (c *Consumer) Close() error {
	c.logger.Info("closing kafka consumer")
	return c.reader.Close()
}

// sleep ждёт d или отмены ctx. false означает, что ctx отменён.
func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
