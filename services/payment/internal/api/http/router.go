package httpapi

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	platformhealth "github.com/shestoi/ordersaga/platform/health/http"
	platformobservability "github.com/shestoi/ordersaga/platform/observability"
)

// NewRouter собирает роутер платёжного координатора.
// checks проверки зависимостей для /health/ready.
func NewRouter(handler *Handler, logger *zap.Logger, checks ...platformhealth.Check) chi.Router {
	router := chi.NewRouter()
	router.Use(chimiddleware.Recoverer)
	router.Use(platformobservability.HTTPMiddleware("payment", logger))

	router.Route("/balances", func(r chi.Router) {
		r.Get("/", handler.ListBalances)
		r.Get("/{userID}", handler.GetBalance)
	})

	router.Get("/health", platformhealth.Handler(checks...))
	router.Get("/health/live", platformhealth.Handler())
	router.Get("/health/ready", platformhealth.Handler(checks...))

	return router
}
