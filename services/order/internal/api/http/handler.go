package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/platform/observability"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
	"github.com/shestoi/ordersaga/services/order/internal/service"
)

// OrderService то, что нужно HTTP слою от координатора заказов
type OrderService interface {
	CreateOrder(ctx context.Context, input service.CreateOrderInput) (repository.Order, error)
	ListOrders(ctx context.Context) ([]repository.Order, error)
	GetOrder(ctx context.Context, id int64) (repository.Order, error)
}

// Handler содержит HTTP-обработчики для Order Coordinator
// Зависит от service слоя, но не знает о деталях хранения и Kafka
type Handler struct {
	logger       *zap.Logger
	orderService OrderService
}

// NewHandler создаёт новый HTTP handler
func NewHandler(logger *zap.Logger, orderService OrderService) *Handler {
	return &Handler{
		logger:       logger,
		orderService: orderService,
	}
}

// OrderRequest представляет HTTP запрос на создание заказа
type OrderRequest struct {
	UserID    *int64 `json:"user_id"`
	ProductID *int64 `json:"product_id"`
	Price     *int64 `json:"price"`
}

// OrderResponse представляет HTTP ответ с информацией о заказе
type OrderResponse struct {
	ID            int64  `json:"id"`
	UserID        int64  `json:"user_id"`
	ProductID     int64  `json:"product_id"`
	Price         int64  `json:"price"`
	OrderStatus   string `json:"order_status"`
	PaymentStatus string `json:"payment_status,omitempty"`
	CreatedAt     string `json:"created_at"`
}

func toResponse(o repository.Order) OrderResponse {
	return OrderResponse{
		ID:            o.ID,
		UserID:        o.UserID,
		ProductID:     o.ProductID,
		Price:         o.Price,
		OrderStatus:   string(o.Status),
		PaymentStatus: string(o.PaymentStatus),
		CreatedAt:     o.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func writeJSON(w http.ResponseWriter, log *zap.Logger, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response", zap.Error(err))
	}
}

// PostOrders обрабатывает POST /orders - создание нового заказа
func (h *Handler) PostOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.LoggerFromContext(ctx, h.logger)

	// Декодируем JSON тело запроса
	var reqBody OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		log.Info("invalid order request body", zap.Error(err))
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Валидация входных данных
	if reqBody.UserID == nil || reqBody.ProductID == nil || reqBody.Price == nil {
		http.Error(w, "Invalid payload: user_id, product_id and price are required", http.StatusBadRequest)
		return
	}

	order, err := h.orderService.CreateOrder(ctx, service.CreateOrderInput{
		UserID:    *reqBody.UserID,
		ProductID: *reqBody.ProductID,
		Price:     *reqBody.Price,
	})
	if err != nil {
		if errors.Is(err, service.ErrInvalidOrder) {
			http.Error(w, fmt.Sprintf("Invalid payload: %v", err), http.StatusBadRequest)
			return
		}
		log.Error("order creation failed", zap.Error(err))
		http.Error(w, "Failed to create order", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, log, http.StatusCreated, toResponse(order))
}

// GetOrders обрабатывает GET /orders - список всех заказов
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.LoggerFromContext(ctx, h.logger)

	orders, err := h.orderService.ListOrders(ctx)
	if err != nil {
		log.Error("list orders failed", zap.Error(err))
		http.Error(w, "Failed to list orders", http.StatusServiceUnavailable)
		return
	}

	resp := make([]OrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toResponse(o))
	}
	writeJSON(w, log, http.StatusOK, resp)
}

// GetOrdersId обрабатывает GET /orders/{id} - получение заказа по ID
func (h *Handler) GetOrdersId(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := observability.LoggerFromContext(ctx, h.logger)

	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, "Invalid order id", http.StatusBadRequest)
		return
	}

	order, err := h.orderService.GetOrder(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			http.Error(w, "Order not found", http.StatusNotFound)
			return
		}
		log.Error("get order failed", zap.Error(err), zap.Int64("order_id", id))
		http.Error(w, "Failed to get order", http.StatusServiceUnavailable)
		return
	}

	writeJSON(w, log, http.StatusOK, toResponse(order))
}
