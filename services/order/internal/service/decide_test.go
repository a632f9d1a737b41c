package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
)

func TestDecidePaymentResult(t *testing.T) {
	pending := repository.Order{ID: 1, UserID: 101, Price: 500, Status: events.OrderStatusCreated}

	tests := []struct {
		name   string
		order  repository.Order
		status events.PaymentStatus
		want   paymentDecision
	}{
		{
			name:   "completed",
			order:  pending,
			status: events.PaymentStatusCompleted,
			want: paymentDecision{Updated: repository.Order{
				ID: 1, UserID: 101, Price: 500,
				Status: events.OrderStatusCompleted, PaymentStatus: events.PaymentStatusCompleted,
			}},
		},
		{
			name:   "failed",
			order:  pending,
			status: events.PaymentStatusFailed,
			want: paymentDecision{Cancel: true, Updated: repository.Order{
				ID: 1, UserID: 101, Price: 500,
				Status: events.OrderStatusCancelled, PaymentStatus: events.PaymentStatusFailed,
			}},
		},
		{
			name:   "completed order stays completed",
			order:  repository.Order{ID: 1, Status: events.OrderStatusCompleted, PaymentStatus: events.PaymentStatusCompleted},
			status: events.PaymentStatusFailed,
			want: paymentDecision{Duplicate: true, Updated: repository.Order{
				ID: 1, Status: events.OrderStatusCompleted, PaymentStatus: events.PaymentStatusCompleted,
			}},
		},
		{
			name:   "cancelled order stays cancelled",
			order:  repository.Order{ID: 1, Status: events.OrderStatusCancelled, PaymentStatus: events.PaymentStatusFailed},
			status: events.PaymentStatusCompleted,
			want: paymentDecision{Duplicate: true, Updated: repository.Order{
				ID: 1, Status: events.OrderStatusCancelled, PaymentStatus: events.PaymentStatusFailed,
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, decidePaymentResult(tt.order, tt.status))
		})
	}
}
