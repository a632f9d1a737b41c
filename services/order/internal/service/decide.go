package service

import (
	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/services/order/internal/repository"
)

// paymentDecision что сделать с заказом по результату оплаты
type paymentDecision struct {
	// Duplicate заказ уже в терминальном статусе, результат повторный
	Duplicate bool
	Updated   repository.Order
	// Cancel нужно отправить OrderCancelled для компенсации списания
	Cancel bool
}

// decidePaymentResult чистая функция перехода заказа. Терминальный статус не меняется никогда,
// статус заказа вычисляется только из статуса оплаты.
func decidePaymentResult(o repository.Order, ps events.PaymentStatus) paymentDecision {
	if o.Status.IsTerminal() {
		return paymentDecision{Duplicate: true, Updated: o}
	}

	o.PaymentStatus = ps
	o.Status = events.OrderStatusFor(ps)
	return paymentDecision{
		Updated: o,
		Cancel:  o.Status == events.OrderStatusCancelled,
	}
}
