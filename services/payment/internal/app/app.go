package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	platformgrpchealth "github.com/shestoi/ordersaga/platform/health/grpc"
	platformhealth "github.com/shestoi/ordersaga/platform/health/http"
	"github.com/shestoi/ordersaga/platform/idempotency"
	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
	platformlogging "github.com/shestoi/ordersaga/platform/logging"
	platformobservability "github.com/shestoi/ordersaga/platform/observability"
	"github.com/shestoi/ordersaga/platform/outbox"
	platformpostgres "github.com/shestoi/ordersaga/platform/postgres"
	platformshutdown "github.com/shestoi/ordersaga/platform/shutdown"
	httpapi "github.com/shestoi/ordersaga/services/payment/internal/api/http"
	"github.com/shestoi/ordersaga/services/payment/internal/config"
	kafkahandler "github.com/shestoi/ordersaga/services/payment/internal/event/kafka"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
	"github.com/shestoi/ordersaga/services/payment/internal/repository/memory"
	pgrepo "github.com/shestoi/ordersaga/services/payment/internal/repository/postgres"
	"github.com/shestoi/ordersaga/services/payment/internal/service"
	"github.com/shestoi/ordersaga/services/payment/migrations"
)

const serviceName = "payment"

// App содержит все зависимости для запуска и корректного shutdown Payment Coordinator
type App struct {
	logger      *zap.Logger
	httpServer  *http.Server
	grpcServer  *grpc.Server
	listener    net.Listener
	health      *platformgrpchealth.Health
	readiness   []platformhealth.Check
	consumer    *platformkafka.Consumer
	dispatcher  *outbox.Dispatcher
	shutdownMgr *platformshutdown.Manager
	wg          sync.WaitGroup
	bgCtx       context.Context
}

// Build создаёт и настраивает все зависимости Payment Coordinator
func Build(ctx context.Context, cfg config.Config) (*App, error) {
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

	shutdownMgr := platformshutdown.New(cfg.ShutdownTimeout, logger)
	// при ошибке сборки закрываем то, что уже успели открыть
	ok := false
	defer func() {
		if !ok {
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

	var readiness []platformhealth.Check

	// Хранилище
	var (
		repo        repository.PaymentRepository
		outboxStore outbox.Store
	)
	switch cfg.StorageDriver {
	case config.StoragePostgres:
		pool, err := platformpostgres.Connect(ctx, logger, cfg.PostgresDSN, 10)
		if err != nil {
			return nil, err
		}
		shutdownMgr.Add("postgres_pool", platformshutdown.ClosePool(pool))
		if err := platformpostgres.Migrate(ctx, cfg.PostgresDSN, migrations.FS); err != nil {
			return nil, err
		}
		readiness = append(readiness, platformhealth.Check{Name: "postgres", Fn: pool.Ping})

		repo = pgrepo.NewRepository(pool)
		outboxStore = outbox.NewPostgresStore(pool)
		logger.Info("using postgres storage")
	default:
		memRepo := memory.NewMemoryRepository()
		repo = memRepo
		outboxStore = memRepo.Outbox()
		logger.Warn("using in-memory storage, state is lost on restart")
	}

	// Дедупликация по event_id
	var processed idempotency.ProcessedEventsStore
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		shutdownMgr.Add("redis", platformshutdown.CloseCloser(rdb))
		readiness = append(readiness, platformhealth.Check{Name: "redis", Fn: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		processed = idempotency.NewRedisStore(rdb, serviceName)
		logger.Info("using redis processed events store", zap.String("addr", cfg.RedisAddr))
	} else {
		processed = idempotency.NewMemoryStore()
	}

	svc := service.NewService(logger, repo, processed, cfg.ProcessedTTL, cfg.Kafka.PaymentTopic)

	seed := service.DefaultSeed
	if cfg.SeedFile != "" {
		if seed, err = service.LoadSeedFile(cfg.SeedFile); err != nil {
			return nil, err
		}
	}
	if err := svc.SeedBalances(ctx, seed); err != nil {
		return nil, err
	}

	// Kafka: consumer order-events с DLQ и outbox dispatcher для payment-events
	dlqTopic := cfg.Kafka.DLQTopicFor(cfg.Kafka.OrderTopic)
	dlq := platformkafka.NewDLQPublisher(logger, platformkafka.NewWriter(cfg.Kafka.Brokers, dlqTopic), dlqTopic)
	shutdownMgr.Add("kafka_dlq_writer", platformshutdown.CloseCloser(dlq))

	reader := platformkafka.NewReader(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, cfg.Kafka.OrderTopic)
	consumer := platformkafka.NewConsumer(
		logger,
		reader,
		cfg.Kafka.OrderTopic,
		kafkahandler.NewOrderEventsHandler(logger, svc),
		dlq,
		cfg.Kafka.MaxAttempts,
		cfg.Kafka.BackoffBase,
	)
	shutdownMgr.Add("kafka_consumer", platformshutdown.CloseCloser(consumer))

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

	// Фоновые циклы останавливаются до закрытия reader/writer
	bgCtx, bgCancel := context.WithCancel(context.Background())
	a := &App{
		logger:      logger,
		readiness:   readiness,
		consumer:    consumer,
		dispatcher:  dispatcher,
		shutdownMgr: shutdownMgr,
		bgCtx:       bgCtx,
	}
	shutdownMgr.Add("background_workers", platformshutdown.CancelFunc(bgCancel, a.wg.Wait))

	// HTTP API
	router := httpapi.NewRouter(httpapi.NewHandler(logger, svc), logger, readiness...)
	a.httpServer = &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	shutdownMgr.Add("http_server", platformshutdown.ShutdownHTTPServer(a.httpServer))

	// gRPC: только health и reflection
	a.listener, err = net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.GRPCAddr, err)
	}
	a.grpcServer = grpc.NewServer(
		grpc.UnaryInterceptor(platformobservability.GRPCUnaryServerInterceptor(serviceName)),
	)
	if cfg.EnableGRPCReflection {
		reflection.Register(a.grpcServer)
		logger.Info("gRPC reflection enabled")
	}

	// NOT_SERVING до первой успешной проверки зависимостей
	a.health = platformgrpchealth.New(grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	a.health.Register(a.grpcServer)
	shutdownMgr.Add("grpc_server", platformshutdown.ShutdownGRPCServer(a.grpcServer))
	shutdownMgr.Add("health_readiness", platformshutdown.SetHealthNotServing(a.health))

	logger.Info("payment coordinator configured",
		zap.String("http_addr", cfg.HTTPAddr),
		zap.String("grpc_addr", cfg.GRPCAddr),
		zap.String("consume_topic", cfg.Kafka.OrderTopic),
		zap.String("produce_topic", cfg.Kafka.PaymentTopic),
	)

	ok = true
	return a, nil
}

// checkReady выполняет все проверки зависимостей
func (a *App) checkReady(ctx context.Context) error {
	var errs []error
	for _, c := range a.readiness {
		if err := c.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", c.Name, err))
		}
	}
	return errors.Join(errs...)
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

// Run запускает координатор и блокируется до получения сигнала shutdown
func (a *App) Run(ctx context.Context) error {
	defer platformlogging.Sync(a.logger)

	a.logger.Info("starting payment coordinator")

	a.goBackground("order_events_consumer", a.consumer.Start)
	a.goBackground("outbox_dispatcher", a.dispatcher.Start)
	a.goBackground("grpc_health_watch", func(ctx context.Context) error {
		a.health.Watch(ctx, 5*time.Second, a.checkReady)
		return nil
	})

	serveErr := make(chan error, 2)
	go func() {
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		if err := a.grpcServer.Serve(a.listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			serveErr <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	// Ожидаем сигнал (или падение сервера) и выполняем shutdown
	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	failed := make(chan error, 1)
	go func() {
		select {
		case err := <-serveErr:
			a.logger.Error("server failed", zap.Error(err))
			failed <- err
			cancel()
		case <-waitCtx.Done():
		}
	}()
	a.shutdownMgr.Wait(waitCtx)

	a.logger.Info("payment coordinator stopped")
	select {
	case err := <-failed:
		return err
	default:
		return nil
	}
}
