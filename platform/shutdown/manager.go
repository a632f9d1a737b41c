package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// Manager управляет graceful shutdown координатора.
// Ждёт SIGINT/SIGTERM (или отмены ctx) и выполняет зарегистрированные функции
// в обратном порядке регистрации: сначала закрывается то, что открывалось последним.
type Manager struct {
	timeout time.Duration
	logger  *zap.Logger
	funcs   []shutdownFunc
	mu      sync.Mutex
}

type shutdownFunc struct {
	name string
	fn   func(context.Context) error
}

// New создаёт Manager. timeout ограничивает каждую функцию отдельно.
func New(timeout time.Duration, logger *zap.Logger) *Manager {
	return &Manager{
		timeout: timeout,
		logger:  logger,
	}
}

// Add регистрирует shutdown функцию
func (m *Manager) Add(name string, fn func(context.Context) error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.funcs = append(m.funcs, shutdownFunc{name: name, fn: fn})
}

// Wait блокирует до сигнала или отмены ctx, затем вызывает Shutdown
func (m *Manager) Wait(ctx context.Context) {
	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-sigCtx.Done()
	m.logger.Info("received shutdown signal, starting graceful shutdown")
	m.Shutdown()
}

// Shutdown выполняет все функции в обратном порядке, ошибки только логируются
func (m *Manager) Shutdown() {
	m.mu.Lock()
	funcs := make([]shutdownFunc, len(m.funcs))
	copy(funcs, m.funcs)
	m.funcs = nil
	m.mu.Unlock()

	for i := len(funcs) - 1; i >= 0; i-- {
		fn := funcs[i]

		ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
		start := time.Now()
		err := fn.fn(ctx)
		cancel()

		if err != nil {
			m.logger.Error("shutdown function failed",
				zap.String("name", fn.name),
				zap.Error(err),
				zap.Duration("duration", time.Since(start)))
			continue
		}
		m.logger.Info("shutdown function completed",
			zap.String("name", fn.name),
			zap.Duration("duration", time.Since(start)))
	}

	m.logger.Info("graceful shutdown completed")
}

// ShutdownHTTPServer shutdown функция для http.Server
func ShutdownHTTPServer(srv interface {
	Shutdown(context.Context) error
}) func(context.Context) error {
	return func(ctx context.Context) error {
		return srv.Shutdown(ctx)
	}
}

// ShutdownGRPCServer GracefulStop с таймаутом, по таймауту Stop()
func ShutdownGRPCServer(srv interface {
	GracefulStop()
	Stop()
}) func(context.Context) error {
	return func(ctx context.Context) error {
		done := make(chan struct{})
		go func() {
			srv.GracefulStop()
			close(done)
		}()

		select {
		case <-done:
			return nil
		case <-ctx.Done():
			srv.Stop()
			return fmt.Errorf("graceful stop timeout exceeded, forced stop")
		}
	}
}

// ClosePool shutdown функция для pgxpool.Pool
func ClosePool(pool interface {
	Close()
}) func(context.Context) error {
	return func(context.Context) error {
		pool.Close()
		return nil
	}
}

// CloseCloser shutdown функция для io.Closer (kafka reader/writer, redis client)
func CloseCloser(c interface {
	Close() error
}) func(context.Context) error {
	return func(context.Context) error {
		return c.Close()
	}
}

// SetHealthNotServing переводит gRPC health в NOT_SERVING первым шагом остановки
func SetHealthNotServing(health interface {
	SetNotServing(string)
}) func(context.Context) error {
	return func(context.Context) error {
		health.SetNotServing("")
		return nil
	}
}

// CancelFunc shutdown функция, отменяющая фоновые циклы (consumers, dispatcher)
// и ожидающая их завершения через wait
func CancelFunc(cancel context.CancelFunc, wait func()) func(context.Context) error {
	return func(ctx context.Context) error {
		cancel()
		done := make(chan struct{})
		go func() {
			wait()
			close(done)
		}()
		select {
		case <-done:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("background workers did not stop in time: %w", ctx.Err())
		}
	}
}
