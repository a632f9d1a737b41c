package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/platform/envconfig"
	platformhealth "github.com/shestoi/ordersaga/platform/health/http"
	"github.com/shestoi/ordersaga/platform/idempotency"
	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
	platformlogging "github.com/shestoi/ordersaga/platform/logging"
	platformobservability "github.com/shestoi/ordersaga/platform/observability"
	"github.com/shestoi/ordersaga/platform/outbox"
	platformpostgres "github.com/shestoi/ordersaga/platform/postgres"
	platformshutdown "github.com/shestoi/ordersaga/platform/shutdown"
	httpapi "github.com/shestoi/ordersaga/services/order/internal/api/http"
	"github.com/shestoi/ordersaga/services/order/internal/config"
	kafkahandler "github.com/shestoi/ordersaga/services/order/internal/event/kafka"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
	"github.com/shestoi/ordersaga/services/order/internal/repository/memory"
	"github.com/shestoi/ordersaga/services/order/internal/repository/postgres"
	"github.com/shestoi/ordersaga/services/order/internal/service"
	"github.com/shestoi/ordersaga/services/order/migrations"
)

const serviceName = "order"

// App содержит все зависимости для запуска и корректного shutdown Order Coordinator
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	consumer    *platformkafka.Consumer
	dispatcher  *outbox.Dispatcher
	shutdownMgr *platformshutdown.Manager
	bgCtx       context.Context
	wg          sync.WaitGroup
}

// Build создаёт и настраивает все зависимости Order Coordinator
func Build(ctx context.Context, cfg config.Config) (*App, error) {
	const op = "app.Build"

	// Создаём logger
	logger, err := platformlogging.New(platformlogging.Config{
		ServiceName: serviceName,
		Env:         string(cfg.AppEnv),
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		File:        cfg.LogFile,
	})
	if err != nil {
		return nil, err
	}
	cfg.Log(logger)
	logger.Info("Building Order coordinator", zap.String("op", op), zap.String("http_addr", cfg.HTTPAddr))

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	// если сборка упала на середине, закрываем уже открытое
	built := false
	defer func() {
		if !built {
			shutdownMgr.Shutdown()
		}
	}()

	// OpenTelemetry
	otelShutdown, err := platformobservability.Init(ctx, platformobservability.Config{
		Enabled:               cfg.OTelEnabled,
		OTLPEndpoint:          cfg.OTelEndpoint,
		SamplingRatio:         cfg.OTelSamplingRatio,
		ServiceName:           serviceName,
		DeploymentEnvironment: string(cfg.AppEnv),
	})
	if err != nil {
		return nil, err
	}
	shutdownMgr.Add("otel", otelShutdown)

	var checks []platformhealth.Check

	// Хранилище заказов и outbox
	var (
		orderRepo   repository.OrderRepository
		outboxStore outbox.Store
	)
	if cfg.StorageDriver == config.StoragePostgres {
		logger.Info("Connecting to PostgreSQL", zap.String("dsn", envconfig.MaskDSN(cfg.PostgresDSN)))
		pool, err := platformpostgres.Connect(ctx, logger, cfg.PostgresDSN, 10)
		if err != nil {
			return nil, err
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))

		if err := platformpostgres.Migrate(ctx, cfg.PostgresDSN, migrations.FS); err != nil {
			return nil, err
		}
		checks = append(checks, platformhealth.Check{Name: "postgres", Fn: pool.Ping})

		orderRepo = postgres.NewRepository(pool)
		outboxStore = outbox.NewPostgresStore(pool)
	} else {
		memRepo := memory.NewMemoryRepository()
		orderRepo = memRepo
		outboxStore = memRepo.Outbox()
		logger.Warn("using in-memory storage, orders are lost on restart")
	}

	// Дедупликация payment-events по event_id
	var processed idempotency.ProcessedEventsStore = idempotency.NewMemoryStore()
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shutdownMgr.Add("redis", platformshutdown.CloseCloser(rdb))
		checks = append(checks, platformhealth.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		processed = idempotency.NewRedisStore(rdb, serviceName)
	}

	orderService := service.NewOrderService(logger, orderRepo, processed, cfg.ProcessedTTL, cfg.Kafka.OrderTopic)

	// Kafka consumer payment-events с DLQ
	dlqTopic := cfg.Kafka.DLQTopicFor(cfg.Kafka.PaymentTopic)
	dlq := platformkafka.NewDLQPublisher(logger, platformkafka.NewWriter(cfg.Kafka.Brokers, dlqTopic), dlqTopic)
	shutdownMgr.Add("kafka_dlq_writer", platformshutdown.CloseCloser(dlq))

	consumer := platformkafka.NewConsumer(
		logger,
		platformkafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.PaymentTopic),
		cfg.Kafka.PaymentTopic,
		kafkahandler.NewPaymentEventsHandler(logger, orderService),
		dlq,
		cfg.Kafka.MaxAttempts,
		cfg.Kafka.BackoffBase,
	)
	shutdownMgr.Add("kafka_consumer", platformshutdown.CloseCloser(consumer))

	// Outbox dispatcher: OrderCreated/OrderCancelled в order-events
	dispatcher := outbox.NewDispatcher(
		logger,
		outboxStore,
		platformkafka.NewMultiTopicWriter(cfg.Kafka.Brokers),
		cfg.OutboxBatchSize,
		cfg.OutboxInterval,
		cfg.OutboxMaxRetries,
		cfg.Kafka.BackoffBase,
	)
	shutdownMgr.Add("outbox_dispatcher", platformshutdown.CloseCloser(dispatcher))

	bgCtx, bgCancel := context.WithCancel(context.Background())
	a := &App{
		logger:      logger,
		consumer:    consumer,
		dispatcher:  dispatcher,
		shutdownMgr: shutdownMgr,
		bgCtx:       bgCtx,
	}
	// consumer и dispatcher останавливаются раньше, чем закрываются reader и writer
	shutdownMgr.Add("background_workers", platformshutdown.CancelFunc(bgCancel, a.wg.Wait))

	// HTTP
	router := httpapi.NewRouter(httpapi.NewHandler(logger, orderService), logger, checks...)
	a.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))

	built = true
	return a, nil
}

func (a *App) goBackground(name string, fn func(ctx context.Context) error) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := fn(a.bgCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.logger.Error("background worker stopped with error", zap.String("worker", name), zap.Error(err))
		}
	}()
}

// Run запускает сервис и блокируется до graceful shutdown
func (a *App) Run(ctx context.Context) error {
	defer platformlogging.Sync(a.logger)

	a.goBackground("payment_events_consumer", a.consumer.Start)
	a.goBackground("outbox_dispatcher", a.dispatcher.Start)

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(chan error, 1)
	go func() {
		a.logger.Info("Starting Order HTTP server", zap.String("addr", a.httpServer.Addr))
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("HTTP server error", zap.Error(err))
			failed <- fmt.Errorf("http server: %w", err)
			cancel()
		}
	}()

	// Ожидаем сигнал и выполняем shutdown
	a.shutdownMgr.Wait(waitCtx)

	a.logger.Info("Order coordinator stopped")
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}
