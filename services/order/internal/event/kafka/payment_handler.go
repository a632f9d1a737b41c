package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/contracts/events"
	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
	"github.com/shestoi/ordersaga/platform/observability"
)

// PaymentResultService то, что нужно от координатора заказов
type PaymentResultService interface {
	HandlePaymentResult(ctx context.Context, res events.PaymentResult) error
}

// PaymentEventsHandler переводит сообщения payment-events в вызовы координатора
type PaymentEventsHandler struct {
	logger  *zap.Logger
	service PaymentResultService
}

// NewPaymentEventsHandler создаёт handler для platform/kafka.Consumer
func NewPaymentEventsHandler(logger *zap.Logger, svc PaymentResultService) *PaymentEventsHandler {
	return &PaymentEventsHandler{logger: logger, service: svc}
}

// HandleMessage разбирает PaymentResult. Нераспознанное сообщение уходит в DLQ,
// ошибка координатора (в том числе неизвестный заказ) приводит к повторной доставке.
func (h *PaymentEventsHandler) HandleMessage(ctx context.Context, m kafka.Message) error {
	res, err := events.DecodePaymentResult(m.Value)
	if err != nil {
		eventID, eventType, orderID := events.PeekMeta(m.Value)
		return platformkafka.Poison(err, platformkafka.DLQMeta{EventType: eventType, EventID: eventID, OrderID: orderID})
	}

	observability.L(ctx, h.logger).Info("received payment result",
		zap.String("event_id", res.EventID),
		zap.String("status", string(res.Status)),
		zap.Int64("order_id", res.OrderID),
		zap.Int64("user_id", res.UserID),
		zap.Int64("amount", res.Amount),
	)

	return h.service.HandlePaymentResult(ctx, res)
}
