package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/platform/idempotency"
	"github.com/shestoi/ordersaga/platform/observability"
	"github.com/shestoi/ordersaga/platform/outbox"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
)

const serviceName = "order"

// ErrInvalidOrder входные данные заказа не прошли валидацию
var ErrInvalidOrder = errors.New("invalid order")

// OrderService координатор заказов: создаёт заказ вместе с OrderCreated
// и доводит его до терминального статуса по результату оплаты.
type OrderService struct {
	logger       *zap.Logger
	orderRepo    repository.OrderRepository
	processed    idempotency.ProcessedEventsStore
	processedTTL time.Duration
	orderTopic   string
}

// NewOrderService создаёт новый экземпляр OrderService.
// orderTopic топик для OrderCreated/OrderCancelled.
func NewOrderService(
	logger *zap.Logger,
	orderRepo repository.OrderRepository,
	processed idempotency.ProcessedEventsStore,
	processedTTL time.Duration,
	orderTopic string,
) *OrderService {
	if orderTopic == "" {
		orderTopic = events.DefaultOrderTopic
	}
	if processedTTL <= 0 {
		processedTTL = 24 * time.Hour
	}

	return &OrderService{
		logger:       logger,
		orderRepo:    orderRepo,
		processed:    processed,
		processedTTL: processedTTL,
		orderTopic:   orderTopic,
	}
}

// CreateOrderInput содержит входные данные для создания заказа
type CreateOrderInput struct {
	UserID    int64
	ProductID int64
	Price     int64
}

func (in CreateOrderInput) validate() error {
	switch {
	case in.UserID <= 0:
		return fmt.Errorf("%w: user_id must be positive", ErrInvalidOrder)
	case in.ProductID <= 0:
		return fmt.Errorf("%w: product_id must be positive", ErrInvalidOrder)
	case in.Price <= 0:
		return fmt.Errorf("%w: price must be positive", ErrInvalidOrder)
	}
	return nil
}

// CreateOrder сохраняет заказ в статусе ORDER_CREATED и в той же транзакции
// кладёт в outbox ровно одно OrderCreated. Без сохранения заказа события нет.
func (s *OrderService) CreateOrder(ctx context.Context, input CreateOrderInput) (repository.Order, error) {
	log := observability.L(ctx, s.logger)

	if err := input.validate(); err != nil {
		return repository.Order{}, err
	}

	var order repository.Order
	err := s.orderRepo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		order, err = tx.CreateOrder(ctx, repository.Order{
			UserID:    input.UserID,
			ProductID: input.ProductID,
			Price:     input.Price,
			Status:    events.OrderStatusCreated,
		})
		if err != nil {
			return err
		}

		return s.stageOrderEvent(ctx, tx, events.NewOrderCreated(payloadOf(order)))
	})
	if err != nil {
		log.Error("failed to create order", zap.Error(err), zap.Int64("user_id", input.UserID))
		return repository.Order{}, fmt.Errorf("failed to create order: %w", err)
	}

	observability.RecordOutcome(ctx, serviceName, "order_created")
	log.Info("order created",
		zap.Int64("order_id", order.ID),
		zap.Int64("user_id", order.UserID),
		zap.Int64("price", order.Price),
	)
	return order, nil
}

// HandlePaymentResult применяет результат оплаты к заказу.
// Заказ не найден: ошибка, сообщение не подтверждается и будет доставлено снова.
// Заказ уже в терминальном статусе: повтор, ничего не делаем.
// При PAYMENT_FAILED заказ отменяется и в outbox кладётся OrderCancelled.
func (s *OrderService) HandlePaymentResult(ctx context.Context, res events.PaymentResult) error {
	log := observability.L(ctx, s.logger).With(
		zap.String("event_id", res.EventID),
		zap.Int64("order_id", res.OrderID),
		zap.String("payment_status", string(res.Status)),
	)

	if s.alreadyProcessed(ctx, res.EventID) {
		observability.RecordOutcome(ctx, serviceName, "duplicate")
		log.Info("payment result already processed, skipping")
		return nil
	}

	var decision paymentDecision
	err := s.orderRepo.WithinTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		order, err := tx.GetOrder(ctx, res.OrderID)
		if err != nil {
			return err
		}

		decision = decidePaymentResult(order, res.Status)
		if decision.Duplicate {
			return nil
		}

		if err := tx.UpdateOrder(ctx, decision.Updated); err != nil {
			return err
		}
		if decision.Cancel {
			return s.stageOrderEvent(ctx, tx, events.NewOrderCancelled(payloadOf(decision.Updated)))
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			observability.RecordOutcome(ctx, serviceName, "order_not_found")
			log.Error("payment result for unknown order, will be redelivered", zap.Error(err))
		} else {
			log.Error("failed to apply payment result", zap.Error(err))
		}
		return fmt.Errorf("handle payment result for order %d: %w", res.OrderID, err)
	}

	switch {
	case decision.Duplicate:
		observability.RecordOutcome(ctx, serviceName, "duplicate")
		log.Info("order already finalized, ignoring payment result",
			zap.String("order_status", string(decision.Updated.Status)))
	case decision.Cancel:
		observability.RecordOutcome(ctx, serviceName, "order_cancelled")
		log.Info("order cancelled, compensation requested")
	default:
		observability.RecordOutcome(ctx, serviceName, "order_completed")
		log.Info("order completed")
	}

	s.markProcessed(ctx, res.EventID)
	return nil
}

// ListOrders все заказы по возрастанию ID
func (s *OrderService) ListOrders(ctx context.Context) ([]repository.Order, error) {
	orders, err := s.orderRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, nil
}

// GetOrder получает заказ по ID
func (s *OrderService) GetOrder(ctx context.Context, id int64) (repository.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, id)
	if err != nil {
		return repository.Order{}, fmt.Errorf("failed to get order: %w", err)
	}
	return order, nil
}

func payloadOf(o repository.Order) events.OrderPayload {
	return events.OrderPayload{OrderID: o.ID, UserID: o.UserID, Amount: o.Price}
}

func (s *OrderService) stageOrderEvent(ctx context.Context, tx repository.Tx, ev events.OrderEvent) error {
	payload, err := events.EncodeOrderEvent(ev)
	if err != nil {
		return fmt.Errorf("encode order event: %w", err)
	}
	meta := ev.Meta()
	return tx.StageEvent(ctx, outbox.NewEvent(ctx, s.orderTopic,
		strconv.FormatInt(ev.Payload().OrderID, 10), meta.EventID, meta.EventType, payload))
}

// alreadyProcessed быстрый путь по event_id. Ошибка store не блокирует обработку:
// повтор всё равно отсекается терминальным статусом.
func (s *OrderService) alreadyProcessed(ctx context.Context, eventID string) bool {
	if s.processed == nil || eventID == "" {
		return false
	}
	ok, err := s.processed.IsProcessed(ctx, eventID)
	if err != nil {
		observability.L(ctx, s.logger).Warn("failed to check processed event", zap.Error(err), zap.String("event_id", eventID))
		return false
	}
	return ok
}

func (s *OrderService) markProcessed(ctx context.Context, eventID string) {
	if s.processed == nil || eventID == "" {
		return
	}
	if err := s.processed.MarkProcessed(ctx, eventID, s.processedTTL); err != nil {
		observability.L(ctx, s.logger).Warn("failed to mark event as processed", zap.Error(err), zap.String("event_id", eventID))
	}
}
