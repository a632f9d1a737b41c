package service

import (
	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

// debitDecision результат решения по OrderCreated. nil поля означают "не менять".
type debitDecision struct {
	Status     events.PaymentStatus
	NewBalance *repository.Balance
	Ledger     *repository.Transaction
	// Replayed списание по заказу уже было, результат отправляется повторно
	Replayed bool
}

// decideDebit чистая функция: событие и снимок состояния на входе, новое состояние на выходе.
// existing запись ledger по заказу (nil если нет), balance баланс пользователя (nil если нет).
// Средств достаточно только при balance > amount.
func decideDebit(p events.OrderPayload, existing *repository.Transaction, balance *repository.Balance) debitDecision {
	if existing != nil {
		return debitDecision{Status: events.PaymentStatusCompleted, Replayed: true}
	}
	if p.Amount <= 0 || balance == nil || balance.Amount <= p.Amount {
		return debitDecision{Status: events.PaymentStatusFailed}
	}

	return debitDecision{
		Status:     events.PaymentStatusCompleted,
		NewBalance: &repository.Balance{UserID: balance.UserID, Amount: balance.Amount - p.Amount},
		Ledger:     &repository.Transaction{OrderID: p.OrderID, UserID: p.UserID, Amount: p.Amount},
	}
}

// reversalDecision результат решения по OrderCancelled
type reversalDecision struct {
	Reverse    bool
	OrderID    int64
	NewBalance repository.Balance
}

// decideReversal возвращает деньги владельцу записи ledger, а не пользователю из события.
// Без записи ledger компенсировать нечего.
func decideReversal(existing *repository.Transaction, balance *repository.Balance) reversalDecision {
	if existing == nil {
		return reversalDecision{}
	}

	current := int64(0)
	if balance != nil {
		current = balance.Amount
	}

	return reversalDecision{
		Reverse:    true,
		OrderID:    existing.OrderID,
		NewBalance: repository.Balance{UserID: existing.UserID, Amount: current + existing.Amount},
	}
}
