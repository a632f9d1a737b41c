package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/platform/observability"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

// BalanceReader чтение балансов для HTTP API
type BalanceReader interface {
	GetBalance(ctx context.Context, userID int64) (repository.Balance, error)
	ListBalances(ctx context.Context) ([]repository.Balance, error)
}

// Handler HTTP-обработчики платёжного координатора (только чтение)
type Handler struct {
	logger   *zap.Logger
	balances BalanceReader
}

// NewHandler создаёт handler
func NewHandler(logger *zap.Logger, balances BalanceReader) *Handler {
	return &Handler{logger: logger, balances: balances}
}

// BalanceResponse баланс в HTTP ответе
type BalanceResponse struct {
	UserID int64 `json:"user_id"`
	Amount int64 `json:"amount"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ListBalances GET /balances
func (h *Handler) ListBalances(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	list, err := h.balances.ListBalances(r.Context())
	if err != nil {
		log.Error("failed to list balances", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "failed to list balances"})
		return
	}

	resp := make([]BalanceResponse, 0, len(list))
	for _, b := range list {
		resp = append(resp, BalanceResponse{UserID: b.UserID, Amount: b.Amount})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetBalance GET /balances/{userID}
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	log := observability.LoggerFromContext(r.Context(), h.logger)

	userID, err := strconv.ParseInt(chi.URLParam(r, "userID"), 10, 64)
	if err != nil || userID <= 0 {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "userID must be a positive integer"})
		return
	}

	b, err := h.balances.GetBalance(r.Context(), userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, errorResponse{Error: "balance not found"})
			return
		}
		log.Error("failed to get balance", zap.Error(err), zap.Int64("user_id", userID))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "failed to get balance"})
		return
	}

	writeJSON(w, http.StatusOK, BalanceResponse{UserID: b.UserID, Amount: b.Amount})
}
