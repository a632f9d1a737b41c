// Package main kafka playground для ручной проверки саги.
//
// Режимы (PLAYGROUND_MODE):
//   - tail: читает order-events и payment-events с начала и печатает разобранные события
//   - order-created / order-cancelled: публикует событие в order-events напрямую,
//     чтобы прогнать платёжный координатор без order сервиса
//   - raw: публикует PLAYGROUND_RAW как есть (проверка DLQ на ядовитом сообщении)
//
// Подключение берётся из тех же KAFKA_* переменных, что и у координаторов.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/contracts/events"
	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
	platformlogging "github.com/shestoi/ordersaga/platform/logging"
)

type playgroundConfig struct {
	Mode    string `env:"PLAYGROUND_MODE" envDefault:"tail"`
	OrderID int64  `env:"PLAYGROUND_ORDER_ID" envDefault:"1"`
	UserID  int64  `env:"PLAYGROUND_USER_ID" envDefault:"101"`
	Amount  int64  `env:"PLAYGROUND_AMOUNT" envDefault:"3000"`
	Raw     string `env:"PLAYGROUND_RAW" envDefault:"{\"order_id\":1,\"status\":\"ORDER_SHIPPED\"}"`
}

func main() {
	// Инициализируем платформенный логгер
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: "kafka-playground",
		Env:         "local",
		Level:       "info",
		Format:      "console",
		AddCaller:   true,
	})
	if err != nil {
		os.Stderr.WriteString("Failed to initialize logger: " + err.Error() + "\n")
		os.Exit(1)
	}
	defer platformlogging.Sync(logger)

	cfg := platformkafka.DefaultConfig()
	if err := platformkafka.LoadEnv(&cfg); err != nil {
		logger.Fatal("failed to load kafka config", zap.Error(err))
	}
	var pg playgroundConfig
	if err := env.Parse(&pg); err != nil {
		logger.Fatal("failed to load playground config", zap.Error(err))
	}

	logger.Info("kafka config loaded",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("order_topic", cfg.OrderTopic),
		zap.String("payment_topic", cfg.PaymentTopic),
		zap.String("mode", pg.Mode),
	)

	payload := events.OrderPayload{OrderID: pg.OrderID, UserID: pg.UserID, Amount: pg.Amount}

	switch pg.Mode {
	case "tail":
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		tail(ctx, logger, cfg)
	case "order-created":
		publishOrderEvent(logger, cfg, events.NewOrderCreated(payload))
	case "order-cancelled":
		publishOrderEvent(logger, cfg, events.NewOrderCancelled(payload))
	case "raw":
		publish(logger, cfg.Brokers, cfg.OrderTopic, kafka.Message{Key: events.Key(pg.OrderID), Value: []byte(pg.Raw)})
	default:
		logger.Fatal("unknown PLAYGROUND_MODE (tail|order-created|order-cancelled|raw)", zap.String("mode", pg.Mode))
	}
}

func publishOrderEvent(logger *zap.Logger, cfg platformkafka.Config, ev events.OrderEvent) {
	value, err := events.EncodeOrderEvent(ev)
	if err != nil {
		logger.Fatal("failed to encode event", zap.Error(err))
	}
	publish(logger, cfg.Brokers, cfg.OrderTopic, kafka.Message{Key: events.Key(ev.Payload().OrderID), Value: value})
}

func publish(logger *zap.Logger, brokers []string, topic string, msg kafka.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	writer := platformkafka.NewWriter(brokers, topic)
	defer func() {
		if err := writer.Close(); err != nil {
			logger.Error("failed to close kafka writer", zap.Error(err))
		}
	}()

	if err := writer.WriteMessages(ctx, msg); err != nil {
		logger.Fatal("failed to send message", zap.Error(err), zap.String("topic", topic))
	}
	logger.Info("message sent successfully",
		zap.String("topic", topic),
		zap.String("key", string(msg.Key)),
		zap.String("value", string(msg.Value)),
	)
}

// tail читает оба топика саги без consumer group, offset-ы не коммитятся
func tail(ctx context.Context, logger *zap.Logger, cfg platformkafka.Config) {
	var wg sync.WaitGroup
	for _, topic := range []string{cfg.OrderTopic, cfg.PaymentTopic} {
		wg.Add(1)
		go func(topic string) {
			defer wg.Done()
			reader := kafka.NewReader(kafka.ReaderConfig{
				Brokers:     cfg.Brokers,
				Topic:       topic,
				StartOffset: kafka.FirstOffset,
				MaxWait:     time.Second,
			})
			defer reader.Close()

			log := logger.With(zap.String("topic", topic))
			for {
				m, err := reader.ReadMessage(ctx)
				if err != nil {
					if !errors.Is(err, context.Canceled) {
						log.Error("read failed", zap.Error(err))
					}
					return
				}
				describe(log, topic, cfg, m)
			}
		}(topic)
	}
	wg.Wait()
}

func describe(log *zap.Logger, topic string, cfg platformkafka.Config, m kafka.Message) {
	fields := []zap.Field{zap.Int("partition", m.Partition), zap.Int64("offset", m.Offset), zap.String("key", string(m.Key))}

	if topic == cfg.PaymentTopic {
		res, err := events.DecodePaymentResult(m.Value)
		if err != nil {
			log.Warn("undecodable payment result", append(fields, zap.Error(err), zap.ByteString("value", m.Value))...)
			return
		}
		log.Info("payment result", append(fields,
			zap.String("event_id", res.EventID),
			zap.String("status", string(res.Status)),
			zap.Int64("order_id", res.OrderID),
			zap.Int64("amount", res.Amount),
		)...)
		return
	}

	ev, err := events.DecodeOrderEvent(m.Value)
	if err != nil {
		log.Warn("undecodable order event", append(fields, zap.Error(err), zap.ByteString("value", m.Value))...)
		return
	}
	log.Info("order event", append(fields,
		zap.String("event_id", ev.Meta().EventID),
		zap.String("status", string(ev.Status())),
		zap.Int64("order_id", ev.Payload().OrderID),
		zap.Int64("user_id", ev.Payload().UserID),
		zap.Int64("amount", ev.Payload().Amount),
	)...)
}
