// Package events описывает контракты событий саги заказ/оплата.
//
// Канал order-events несёт два логически разных события (создание и отмена заказа)
// с одинаковым payload. Чтобы роль события была видна на уровне типов, а не только
// по строковому полю status, канал моделируется закрытым вариантом OrderEvent
// с двумя реализациями: OrderCreated и OrderCancelled.
package events

import (
	"strconv"
	"time"

	"github.com/google/uuid"
)

// Топики по умолчанию
const (
	DefaultOrderTopic   = "order-events"
	DefaultPaymentTopic = "payment-events"
)

// Типы событий (поле event_type в envelope)
const (
	EventTypeOrderCreated     = "order.created"
	EventTypeOrderCancelled   = "order.cancelled"
	EventTypePaymentCompleted = "payment.completed"
	EventTypePaymentFailed    = "payment.failed"
)

// eventVersion текущая версия схемы событий
const eventVersion = 1

// OrderStatus статус заказа. Он же тег события в канале order-events.
type OrderStatus string

const (
	OrderStatusCreated   OrderStatus = "ORDER_CREATED"
	OrderStatusCompleted OrderStatus = "ORDER_COMPLETED"
	OrderStatusCancelled OrderStatus = "ORDER_CANCELLED"
)

// IsTerminal возвращает true для статусов, из которых нет переходов
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// PaymentStatus результат попытки списания
type PaymentStatus string

const (
	PaymentStatusCompleted PaymentStatus = "PAYMENT_COMPLETED"
	PaymentStatusFailed    PaymentStatus = "PAYMENT_FAILED"
)

// OrderStatusFor вычисляет терминальный статус заказа по статусу оплаты.
// Всё, кроме PAYMENT_COMPLETED, означает отмену.
func OrderStatusFor(ps PaymentStatus) OrderStatus {
	if ps == PaymentStatusCompleted {
		return OrderStatusCompleted
	}
	return OrderStatusCancelled
}

// Envelope общие метаданные события
type Envelope struct {
	EventID      string
	EventType    string
	EventVersion int
	OccurredAt   time.Time
}

func newEnvelope(eventType string) Envelope {
	return Envelope{
		EventID:      uuid.New().String(),
		EventType:    eventType,
		EventVersion: eventVersion,
		OccurredAt:   time.Now().UTC(),
	}
}

// Meta возвращает метаданные события
func (e Envelope) Meta() Envelope {
	return e
}

// OrderPayload общий payload обоих событий канала order-events
type OrderPayload struct {
	OrderID int64
	UserID  int64
	Amount  int64
}

// Payload возвращает payload события
func (p OrderPayload) Payload() OrderPayload {
	return p
}

// OrderEvent закрытый вариант события канала order-events.
// Реализуют только OrderCreated и OrderCancelled.
type OrderEvent interface {
	Meta() Envelope
	Payload() OrderPayload
	Status() OrderStatus
	isOrderEvent()
}

// OrderCreated заказ создан, нужно попытаться списать средства
type OrderCreated struct {
	Envelope
	OrderPayload
}

// Status возвращает тег события в канале
func (OrderCreated) Status() OrderStatus { return OrderStatusCreated }
func (OrderCreated) isOrderEvent()       {}

// OrderCancelled заказ отменён, списание (если было) нужно компенсировать
type OrderCancelled struct {
	Envelope
	OrderPayload
}

// Status возвращает тег события в канале
func (OrderCancelled) Status() OrderStatus { return OrderStatusCancelled }
func (OrderCancelled) isOrderEvent()       {}

// NewOrderCreated создаёт событие создания заказа с новым event_id
func NewOrderCreated(p OrderPayload) OrderCreated {
	return OrderCreated{Envelope: newEnvelope(EventTypeOrderCreated), OrderPayload: p}
}

// NewOrderCancelled создаёт событие отмены заказа с новым event_id
func NewOrderCancelled(p OrderPayload) OrderCancelled {
	return OrderCancelled{Envelope: newEnvelope(EventTypeOrderCancelled), OrderPayload: p}
}

// PaymentResult результат обработки OrderCreated платёжным сервисом
type PaymentResult struct {
	Envelope
	OrderPayload
	Status PaymentStatus
}

// NewPaymentResult создаёт событие результата оплаты с новым event_id
func NewPaymentResult(p OrderPayload, status PaymentStatus) PaymentResult {
	eventType := EventTypePaymentFailed
	if status == PaymentStatusCompleted {
		eventType = EventTypePaymentCompleted
	}
	return PaymentResult{Envelope: newEnvelope(eventType), OrderPayload: p, Status: status}
}

// Key возвращает ключ kafka-сообщения: order_id, чтобы события одного заказа
// попадали в одну партицию и сохраняли порядок.
func Key(orderID int64) []byte {
	return []byte(strconv.FormatInt(orderID, 10))
}
