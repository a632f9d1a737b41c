package kafka

import (
	"context"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/contracts/events"
	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
	"github.com/shestoi/ordersaga/platform/observability"
)

// OrderEventService то, что нужно от платёжного координатора
type OrderEventService interface {
	HandleOrderEvent(ctx context.Context, ev events.OrderEvent) error
}

// OrderEventsHandler переводит сообщения order-events в вызовы координатора
type OrderEventsHandler struct {
	logger  *zap.Logger
	service OrderEventService
}

// NewOrderEventsHandler создаёт handler для platform/kafka.Consumer
func NewOrderEventsHandler(logger *zap.Logger, svc OrderEventService) *OrderEventsHandler {
	return &OrderEventsHandler{logger: logger, service: svc}
}

// HandleMessage разбирает сообщение. Ошибка разбора делает сообщение ядовитым,
// ошибка координатора остаётся временной и приводит к повторной доставке.
func (h *OrderEventsHandler) HandleMessage(ctx context.Context, m kafka.Message) error {
	ev, err := events.DecodeOrderEvent(m.Value)
	if err != nil {
		eventID, eventType, orderID := events.PeekMeta(m.Value)
		return platformkafka.Poison(err, platformkafka.DLQMeta{EventType: eventType, EventID: eventID, OrderID: orderID})
	}

	p := ev.Payload()
	observability.L(ctx, h.logger).Info("received order event",
		zap.String("event_id", ev.Meta().EventID),
		zap.String("status", string(ev.Status())),
		zap.Int64("order_id", p.OrderID),
		zap.Int64("user_id", p.UserID),
		zap.Int64("amount", p.Amount),
	)

	return h.service.HandleOrderEvent(ctx, ev)
}
