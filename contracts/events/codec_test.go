package events

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeOrderEvent_WireFormat(t *testing.T) {
	ev := NewOrderCreated(OrderPayload{OrderID: 7, UserID: 101, Amount: 1200})

	data, err := EncodeOrderEvent(ev)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "ORDER_CREATED", raw["status"])
	assert.Equal(t, float64(7), raw["order_id"])
	assert.Equal(t, float64(101), raw["user_id"])
	assert.Equal(t, float64(1200), raw["amount"])
	assert.Equal(t, EventTypeOrderCreated, raw["event_type"])
	assert.NotEmpty(t, raw["event_id"])
	assert.NotEmpty(t, raw["occurred_at"])
}

func TestDecodeOrderEvent_Variants(t *testing.T) {
	created := NewOrderCreated(OrderPayload{OrderID: 1, UserID: 102, Amount: 50})
	cancelled := NewOrderCancelled(OrderPayload{OrderID: 1, UserID: 102, Amount: 50})

	data, err := EncodeOrderEvent(created)
	require.NoError(t, err)
	got, err := DecodeOrderEvent(data)
	require.NoError(t, err)
	c, ok := got.(OrderCreated)
	require.True(t, ok, "expected OrderCreated, got %T", got)
	assert.Equal(t, created.OrderPayload, c.OrderPayload)
	assert.Equal(t, created.EventID, c.EventID)

	data, err = EncodeOrderEvent(cancelled)
	require.NoError(t, err)
	got, err = DecodeOrderEvent(data)
	require.NoError(t, err)
	_, ok = got.(OrderCancelled)
	require.True(t, ok, "expected OrderCancelled, got %T", got)
	assert.Equal(t, OrderStatusCancelled, got.Status())
}

func TestDecodeOrderEvent_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
		field string
	}{
		{name: "broken json", input: `{"order_id":`, field: ""},
		{name: "missing order_id", input: `{"user_id":101,"amount":5,"status":"ORDER_CREATED"}`, field: "order_id"},
		{name: "missing user_id", input: `{"order_id":1,"amount":5,"status":"ORDER_CREATED"}`, field: "user_id"},
		{name: "unknown status", input: `{"order_id":1,"user_id":101,"amount":5,"status":"ORDER_SHIPPED"}`, field: "status"},
		{name: "terminal status is not an event", input: `{"order_id":1,"user_id":101,"amount":5,"status":"ORDER_COMPLETED"}`, field: "status"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeOrderEvent([]byte(tt.input))
			require.Error(t, err)

			var perr *ParseError
			require.True(t, errors.As(err, &perr))
			assert.Equal(t, tt.field, perr.Field)
		})
	}
}

func TestDecodePaymentResult(t *testing.T) {
	res := NewPaymentResult(OrderPayload{OrderID: 3, UserID: 105, Amount: 999}, PaymentStatusFailed)
	assert.Equal(t, EventTypePaymentFailed, res.EventType)

	data, err := EncodePaymentResult(res)
	require.NoError(t, err)

	got, err := DecodePaymentResult(data)
	require.NoError(t, err)
	assert.Equal(t, PaymentStatusFailed, got.Status)
	assert.Equal(t, res.OrderPayload, got.OrderPayload)
	assert.True(t, res.OccurredAt.Equal(got.OccurredAt))

	_, err = DecodePaymentResult([]byte(`{"order_id":3,"user_id":105,"status":"REFUNDED"}`))
	var perr *ParseError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, "status", perr.Field)
}

func TestOrderStatusFor(t *testing.T) {
	assert.Equal(t, OrderStatusCompleted, OrderStatusFor(PaymentStatusCompleted))
	assert.Equal(t, OrderStatusCancelled, OrderStatusFor(PaymentStatusFailed))
	assert.Equal(t, OrderStatusCancelled, OrderStatusFor(PaymentStatus("")))
	assert.True(t, OrderStatusCompleted.IsTerminal())
	assert.False(t, OrderStatusCreated.IsTerminal())
}

func TestPeekMeta(t *testing.T) {
	id, typ, orderID := PeekMeta([]byte(`{"event_id":"e-1","event_type":"order.created","order_id":12,"status":"???"}`))
	assert.Equal(t, "e-1", id)
	assert.Equal(t, "order.created", typ)
	assert.Equal(t, "12", orderID)

	id, typ, orderID = PeekMeta([]byte(`not json`))
	assert.Empty(t, id)
	assert.Empty(t, typ)
	assert.Empty(t, orderID)
}
