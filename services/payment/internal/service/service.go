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
	"github.com/shestoi/ordersaga/services/payment/internal/repository"
)

const serviceName = "payment"

// Service платёжный координатор: списывает средства по OrderCreated
// и компенсирует списание по OrderCancelled.
type Service struct {
	logger       *zap.Logger
	repo         repository.PaymentRepository
	processed    idempotency.ProcessedEventsStore
	processedTTL time.Duration
	resultTopic  string
}

// NewService создаёт координатор. resultTopic топик для PaymentResult.
func NewService(
	logger *zap.Logger,
	repo repository.PaymentRepository,
	processed idempotency.ProcessedEventsStore,
	processedTTL time.Duration,
	resultTopic string,
) *Service {
	if resultTopic == "" {
		resultTopic = events.DefaultPaymentTopic
	}
	if processedTTL <= 0 {
		processedTTL = 24 * time.Hour
	}

	return &Service{
		logger:       logger,
		repo:         repo,
		processed:    processed,
		processedTTL: processedTTL,
		resultTopic:  resultTopic,
	}
}

// HandleOrderEvent единая точка входа для канала order-events
func (s *Service) HandleOrderEvent(ctx context.Context, ev events.OrderEvent) error {
	log := observability.L(ctx, s.logger)
	meta := ev.Meta()

	if s.alreadyProcessed(ctx, meta.EventID) {
		observability.RecordOutcome(ctx, serviceName, "duplicate")
		log.Info("order event already processed, skipping",
			zap.String("event_id", meta.EventID),
			zap.Int64("order_id", ev.Payload().OrderID),
		)
		return nil
	}

	var err error
	switch e := ev.(type) {
	case events.OrderCreated:
		_, err = s.AttemptDebit(ctx, e.OrderID, e.UserID, e.Amount)
	case events.OrderCancelled:
		err = s.ReverseDebit(ctx, e.OrderID)
	default:
		return fmt.Errorf("unsupported order event %T", ev)
	}
	if err != nil {
		return err
	}

	s.markProcessed(ctx, meta.EventID)
	return nil
}

// AttemptDebit списывает amount с баланса userID за заказ orderID и кладёт в outbox
// ровно один PaymentResult. Повтор по уже оплаченному заказу не списывает второй раз
// и снова отправляет PAYMENT_COMPLETED.
func (s *Service) AttemptDebit(ctx context.Context, orderID, userID, amount int64) (events.PaymentStatus, error) {
	log := observability.L(ctx, s.logger).With(
		zap.Int64("order_id", orderID),
		zap.Int64("user_id", userID),
		zap.Int64("amount", amount),
	)
	payload := events.OrderPayload{OrderID: orderID, UserID: userID, Amount: amount}

	var decision debitDecision
	err := s.repo.WithinTx(ctx, orderID, func(ctx context.Context, tx repository.Tx) error {
		existing, err := lookupTransaction(ctx, tx, orderID)
		if err != nil {
			return err
		}

		var balance *repository.Balance
		if existing == nil {
			b, err := tx.GetBalance(ctx, userID)
			switch {
			case err == nil:
				balance = &b
			case !errors.Is(err, repository.ErrNotFound):
				return fmt.Errorf("get balance: %w", err)
			}
		}

		decision = decideDebit(payload, existing, balance)

		if decision.NewBalance != nil {
			if err := tx.SaveBalance(ctx, *decision.NewBalance); err != nil {
				return err
			}
		}
		if decision.Ledger != nil {
			if err := tx.CreateTransaction(ctx, *decision.Ledger); err != nil {
				return err
			}
		}

		return s.stageResult(ctx, tx, events.NewPaymentResult(payload, decision.Status))
	})
	if err != nil {
		log.Error("failed to process debit", zap.Error(err))
		return "", fmt.Errorf("attempt debit for order %d: %w", orderID, err)
	}

	switch {
	case decision.Replayed:
		observability.RecordOutcome(ctx, serviceName, "debit_replayed")
		log.Info("order already debited, re-emitting payment result")
	case decision.Status == events.PaymentStatusCompleted:
		observability.RecordOutcome(ctx, serviceName, "payment_completed")
		log.Info("payment completed", zap.Int64("balance_left", decision.NewBalance.Amount))
	default:
		observability.RecordOutcome(ctx, serviceName, "payment_failed")
		log.Info("payment failed: insufficient funds or unknown user")
	}

	return decision.Status, nil
}

// ReverseDebit компенсирует списание по заказу. Без записи ledger ничего не делает,
// поэтому повторная отмена безопасна. Событий не отправляет.
func (s *Service) ReverseDebit(ctx context.Context, orderID int64) error {
	log := observability.L(ctx, s.logger).With(zap.Int64("order_id", orderID))

	var decision reversalDecision
	err := s.repo.WithinTx(ctx, orderID, func(ctx context.Context, tx repository.Tx) error {
		existing, err := lookupTransaction(ctx, tx, orderID)
		if err != nil || existing == nil {
			return err
		}

		var balance *repository.Balance
		b, err := tx.GetBalance(ctx, existing.UserID)
		switch {
		case err == nil:
			balance = &b
		case !errors.Is(err, repository.ErrNotFound):
			return fmt.Errorf("get balance: %w", err)
		}

		decision = decideReversal(existing, balance)

		if err := tx.DeleteTransaction(ctx, decision.OrderID); err != nil {
			return err
		}
		return tx.SaveBalance(ctx, decision.NewBalance)
	})
	if err != nil {
		log.Error("failed to reverse debit", zap.Error(err))
		return fmt.Errorf("reverse debit for order %d: %w", orderID, err)
	}

	if !decision.Reverse {
		observability.RecordOutcome(ctx, serviceName, "reversal_noop")
		log.Info("nothing to reverse: no debit recorded for order")
		return nil
	}

	observability.RecordOutcome(ctx, serviceName, "reversed")
	log.Info("debit reversed",
		zap.Int64("user_id", decision.NewBalance.UserID),
		zap.Int64("balance", decision.NewBalance.Amount),
	)
	return nil
}

// GetBalance баланс пользователя
func (s *Service) GetBalance(ctx context.Context, userID int64) (repository.Balance, error) {
	return s.repo.GetBalance(ctx, userID)
}

// ListBalances все балансы по возрастанию user_id
func (s *Service) ListBalances(ctx context.Context) ([]repository.Balance, error) {
	return s.repo.ListBalances(ctx)
}

func lookupTransaction(ctx context.Context, tx repository.Tx, orderID int64) (*repository.Transaction, error) {
	t, err := tx.GetTransaction(ctx, orderID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get transaction: %w", err)
	}
	return &t, nil
}

func (s *Service) stageResult(ctx context.Context, tx repository.Tx, res events.PaymentResult) error {
	payload, err := events.EncodePaymentResult(res)
	if err != nil {
		return fmt.Errorf("encode payment result: %w", err)
	}
	return tx.StageEvent(ctx, outbox.NewEvent(ctx, s.resultTopic,
		strconv.FormatInt(res.OrderID, 10), res.EventID, res.EventType, payload))
}

// alreadyProcessed быстрый путь по event_id. Ошибка store не блокирует обработку:
// обработчики идемпотентны и без него.
func (s *Service) alreadyProcessed(ctx context.Context, eventID string) bool {
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

func (s *Service) markProcessed(ctx context.Context, eventID string) {
	if s.processed == nil || eventID == "" {
		return
	}
	if err := s.processed.MarkProcessed(ctx, eventID, s.processedTTL); err != nil {
		observability.L(ctx, s.logger).Warn("failed to mark event as processed", zap.Error(err), zap.String("event_id", eventID))
	}
}
