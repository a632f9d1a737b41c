package kafka

import (
	"context"
	"errors"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/contracts/events"
	platformkafka "github.com/shestoi/ordersaga/platform/kafka"
)

type MockPaymentResultService struct {
	mock.Mock
}

func (m *MockPaymentResultService) HandlePaymentResult(ctx context.Context, res events.PaymentResult) error {
	args := m.Called(ctx, res)
	return args.Error(0)
}

func TestPaymentEventsHandler_HandleMessage(t *testing.T) {
	svc := &MockPaymentResultService{}
	h := NewPaymentEventsHandler(zap.NewNop(), svc)

	res := events.NewPaymentResult(events.OrderPayload{OrderID: 5, UserID: 102, Amount: 700}, events.PaymentStatusFailed)
	value, err := events.EncodePaymentResult(res)
	require.NoError(t, err)

	svc.On("HandlePaymentResult", mock.Anything, mock.MatchedBy(func(got events.PaymentResult) bool {
		return got.EventID == res.EventID && got.OrderID == 5 && got.Status == events.PaymentStatusFailed
	})).Return(nil).Once()

	require.NoError(t, h.HandleMessage(context.Background(), kafka.Message{Key: events.Key(5), Value: value}))
	svc.AssertExpectations(t)
}

func TestPaymentEventsHandler_InvalidMessageIsPoison(t *testing.T) {
	tests := []struct {
		name  string
		value string
	}{
		{name: "broken json", value: `{"order_id":`},
		{name: "unknown status", value: `{"event_id":"e-1","order_id":1,"user_id":101,"amount":1,"status":"PAYMENT_PENDING"}`},
		{name: "missing order id", value: `{"event_id":"e-2","user_id":101,"amount":1,"status":"PAYMENT_COMPLETED"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &MockPaymentResultService{}
			h := NewPaymentEventsHandler(zap.NewNop(), svc)

			err := h.HandleMessage(context.Background(), kafka.Message{Value: []byte(tt.value)})

			var poison *platformkafka.PoisonError
			require.True(t, errors.As(err, &poison), "expected poison error, got %v", err)
			svc.AssertNotCalled(t, "HandlePaymentResult", mock.Anything, mock.Anything)
		})
	}
}

func TestPaymentEventsHandler_ServiceErrorIsTransient(t *testing.T) {
	svc := &MockPaymentResultService{}
	h := NewPaymentEventsHandler(zap.NewNop(), svc)

	value, err := events.EncodePaymentResult(events.NewPaymentResult(events.OrderPayload{OrderID: 77, UserID: 101, Amount: 10}, events.PaymentStatusCompleted))
	require.NoError(t, err)

	notFound := errors.New("order not found")
	svc.On("HandlePaymentResult", mock.Anything, mock.Anything).Return(notFound).Once()

	err = h.HandleMessage(context.Background(), kafka.Message{Value: value})
	require.ErrorIs(t, err, notFound)

	var poison *platformkafka.PoisonError
	assert.False(t, errors.As(err, &poison))
}
