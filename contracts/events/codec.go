package events

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// ParseError ошибка разбора события: сообщение не соответствует контракту
// и повторная обработка его не исправит.
type ParseError struct {
	Field   string
	Message string
}

func (e *ParseError) Error() string {
	return e.Message
}

// wireMessage формат сообщения в обоих топиках саги
type wireMessage struct {
	EventID      string `json:"event_id"`
	EventType    string `json:"event_type"`
	EventVersion int    `json:"event_version"`
	OccurredAt   string `json:"occurred_at"`
	OrderID      *int64 `json:"order_id"`
	UserID       *int64 `json:"user_id"`
	Amount       int64  `json:"amount"`
	Status       string `json:"status"`
}

func toWire(env Envelope, p OrderPayload, status string) wireMessage {
	orderID, userID := p.OrderID, p.UserID
	return wireMessage{
		EventID:      env.EventID,
		EventType:    env.EventType,
		EventVersion: env.EventVersion,
		OccurredAt:   env.OccurredAt.UTC().Format(time.RFC3339Nano),
		OrderID:      &orderID,
		UserID:       &userID,
		Amount:       p.Amount,
		Status:       status,
	}
}

// fromWire разбирает общие поля и проверяет обязательные
func fromWire(data []byte) (wireMessage, Envelope, OrderPayload, error) {
	var w wireMessage
	if err := json.Unmarshal(data, &w); err != nil {
		return w, Envelope{}, OrderPayload{}, &ParseError{Field: "", Message: fmt.Sprintf("invalid json: %v", err)}
	}
	if w.OrderID == nil || *w.OrderID <= 0 {
		return w, Envelope{}, OrderPayload{}, &ParseError{Field: "order_id", Message: "order_id is required"}
	}
	if w.UserID == nil || *w.UserID <= 0 {
		return w, Envelope{}, OrderPayload{}, &ParseError{Field: "user_id", Message: "user_id is required"}
	}

	env := Envelope{
		EventID:      w.EventID,
		EventType:    w.EventType,
		EventVersion: w.EventVersion,
	}
	// occurred_at информативное поле, кривое значение не делает событие ядовитым
	if w.OccurredAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, w.OccurredAt); err == nil {
			env.OccurredAt = t
		}
	}

	return w, env, OrderPayload{OrderID: *w.OrderID, UserID: *w.UserID, Amount: w.Amount}, nil
}

// EncodeOrderEvent сериализует событие канала order-events
func EncodeOrderEvent(e OrderEvent) ([]byte, error) {
	return json.Marshal(toWire(e.Meta(), e.Payload(), string(e.Status())))
}

// DecodeOrderEvent разбирает сообщение канала order-events в один из вариантов.
// Неизвестный status считается ошибкой контракта, а не отменой.
func DecodeOrderEvent(data []byte) (OrderEvent, error) {
	w, env, p, err := fromWire(data)
	if err != nil {
		return nil, err
	}

	switch OrderStatus(w.Status) {
	case OrderStatusCreated:
		return OrderCreated{Envelope: env, OrderPayload: p}, nil
	case OrderStatusCancelled:
		return OrderCancelled{Envelope: env, OrderPayload: p}, nil
	default:
		return nil, &ParseError{Field: "status", Message: fmt.Sprintf("unknown order event status %q", w.Status)}
	}
}

// EncodePaymentResult сериализует событие канала payment-events
func EncodePaymentResult(e PaymentResult) ([]byte, error) {
	return json.Marshal(toWire(e.Envelope, e.OrderPayload, string(e.Status)))
}

// DecodePaymentResult разбирает сообщение канала payment-events
func DecodePaymentResult(data []byte) (PaymentResult, error) {
	w, env, p, err := fromWire(data)
	if err != nil {
		return PaymentResult{}, err
	}

	status := PaymentStatus(w.Status)
	if status != PaymentStatusCompleted && status != PaymentStatusFailed {
		return PaymentResult{}, &ParseError{Field: "status", Message: fmt.Sprintf("unknown payment status %q", w.Status)}
	}

	return PaymentResult{Envelope: env, OrderPayload: p, Status: status}, nil
}

// PeekMeta достаёт event_id, event_type и order_id из сообщения, которое не прошло
// разбор. Нужен для DLQ, поэтому ошибки игнорируются.
func PeekMeta(data []byte) (eventID, eventType, orderID string) {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return "", "", ""
	}
	eventID, _ = raw["event_id"].(string)
	eventType, _ = raw["event_type"].(string)
	if v, ok := raw["order_id"].(float64); ok {
		orderID = strconv.FormatInt(int64(v), 10)
	}
	return eventID, eventType, orderID
}
