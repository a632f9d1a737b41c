package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/ordersaga/platform/health/http"
	platformobservability "github.com/shestoi/ordersaga/platform/observability"
)

// NewRouter создаёт и настраивает HTTP роутер для Order Coordinator.
// checks - проверки зависимостей (postgres, redis). Если хоть одна падает,
// /health и /health/ready вернут 503 Service Unavailable.
// logger используется для observability HTTP middleware (trace_id в логах).
func NewRouter(handler *Handler, logger *zap.Logger, checks ...platformhealth.Check) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)

	// Observability: trace context + span на каждый запрос, logger с trace_id в контексте
	if logger != nil {
		router.Use(platformobservability.HTTPMiddleware("order", logger))
	}

	router.Route("/orders", func(r chi.Router) {
		r.Post("/", handler.PostOrders)
		r.Get("/", handler.GetOrders)
		r.Get("/{id}", handler.GetOrdersId)
	})

	router.Get("/health", platformhealth.Handler(checks...))
	router.Get("/health/live", platformhealth.Handler())
	router.Get("/health/ready", platformhealth.Handler(checks...))

	return router
}
