package grpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
)

// Health обёртка над стандартным gRPC health service
type Health struct {
	srv *health.Server
}

// New создаёт Health с начальным статусом. Для readiness стартуем с NOT_SERVING,
// пока не проверены зависимости.
func New(initialStatus grpc_health_v1.HealthCheckResponse_ServingStatus) *Health {
	healthServer := health.NewServer()
	healthServer.SetServingStatus("", initialStatus)
	return &Health{srv: healthServer}
}

// Register регистрирует health service, вызывать до grpcSrv.Serve
func (h *Health) Register(grpcSrv *grpc.Server) {
	grpc_health_v1.RegisterHealthServer(grpcSrv, h.srv)
}

// SetServing переводит serviceName ("" = весь сервер) в SERVING
func (h *Health) SetServing(serviceName string) {
	h.srv.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_SERVING)
}

// SetNotServing переводит serviceName ("" = весь сервер) в NOT_SERVING
func (h *Health) SetNotServing(serviceName string) {
	h.srv.SetServingStatus(serviceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
}

// Watch периодически выполняет check и переключает общий статус.
// Возвращается при отмене ctx.
func (h *Health) Watch(ctx context.Context, interval time.Duration, check func(context.Context) error) {
	apply := func() {
		checkCtx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		if err := check(checkCtx); err != nil {
			h.SetNotServing("")
			return
		}
		h.SetServing("")
	}

	apply()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			apply()
		}
	}
}
