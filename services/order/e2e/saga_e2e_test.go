package e2e

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shestoi/ordersaga/contracts/events"
	"github.com/shestoi/ordersaga/platform/idempotency"
	"github.com/shestoi/ordersaga/platform/outbox"
	orderkafka "github.com/shestoi/ordersaga/services/order/internal/event/kafka"
	"github.com/shestoi/ordersaga/services/order/internal/repository/memory"
	"github.com/shestoi/ordersaga/services/order/internal/service"
	"github.com/shestoi/ordersaga/services/payment/paymenttest"
)

// bus вместо Kafka: dispatcher-ы пишут сюда, тест раздаёт сообщения координаторам по топику
type bus struct {
	mu    sync.Mutex
	queue []kafka.Message
}

func (b *bus) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, msgs...)
	return nil
}

func (b *bus) Close() error { return nil }

func (b *bus) drain() []kafka.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := b.queue
	b.queue = nil
	return out
}

type saga struct {
	t *testing.T

	orders       *service.OrderService
	orderHandler *orderkafka.PaymentEventsHandler
	payment      *paymenttest.Coordinator

	orderDispatcher   *outbox.Dispatcher
	paymentDispatcher *outbox.Dispatcher
	bus               *bus

	// history все доставленные сообщения в порядке доставки
	history []kafka.Message
}

func newSaga(t *testing.T) *saga {
	t.Helper()
	logger := zap.NewNop()

	orderRepo := memory.NewMemoryRepository()
	orders := service.NewOrderService(logger, orderRepo, idempotency.NewMemoryStore(), 0, "")
	payment := paymenttest.New(t, logger)

	b := &bus{}
	return &saga{
		t:                 t,
		orders:            orders,
		orderHandler:      orderkafka.NewPaymentEventsHandler(logger, orders),
		payment:           payment,
		orderDispatcher:   outbox.NewDispatcher(logger, orderRepo.Outbox(), b, 100, time.Second, 1, time.Millisecond),
		paymentDispatcher: outbox.NewDispatcher(logger, payment.Outbox(), b, 100, time.Second, 1, time.Millisecond),
		bus:               b,
	}
}

// run публикует outbox-ы обоих координаторов и доставляет сообщения, пока сага не затихнет
func (s *saga) run(ctx context.Context) {
	s.t.Helper()
	for i := 0; i < 10; i++ {
		require.NoError(s.t, s.orderDispatcher.ProcessBatch(ctx))
		require.NoError(s.t, s.paymentDispatcher.ProcessBatch(ctx))

		msgs := s.bus.drain()
		if len(msgs) == 0 {
			return
		}
		for _, m := range msgs {
			s.handle(ctx, m)
			s.history = append(s.history, m)
		}
	}
	s.t.Fatal("saga did not settle")
}

func (s *saga) handle(ctx context.Context, m kafka.Message) {
	s.t.Helper()
	var err error
	switch m.Topic {
	case events.DefaultOrderTopic:
		err = s.payment.HandleMessage(ctx, m)
	case events.DefaultPaymentTopic:
		err = s.orderHandler.HandleMessage(ctx, m)
	default:
		s.t.Fatalf("unexpected topic %q", m.Topic)
	}
	require.NoError(s.t, err)
}

// redeliverAll повторяет всю историю, как после ребаланса consumer group
func (s *saga) redeliverAll(ctx context.Context) {
	s.t.Helper()
	for _, m := range append([]kafka.Message(nil), s.history...) {
		s.handle(ctx, m)
	}
	require.NoError(s.t, s.orderDispatcher.ProcessBatch(ctx))
	require.NoError(s.t, s.paymentDispatcher.ProcessBatch(ctx))
	require.Empty(s.t, s.bus.drain(), "redelivery must not emit new events")
}

func (s *saga) createOrder(ctx context.Context, userID, price int64) int64 {
	s.t.Helper()
	o, err := s.orders.CreateOrder(ctx, service.CreateOrderInput{UserID: userID, ProductID: 1, Price: price})
	require.NoError(s.t, err)
	return o.ID
}

func (s *saga) requireOrder(ctx context.Context, id int64, status events.OrderStatus, payment events.PaymentStatus) {
	s.t.Helper()
	o, err := s.orders.GetOrder(ctx, id)
	require.NoError(s.t, err)
	assert.Equal(s.t, status, o.Status)
	assert.Equal(s.t, payment, o.PaymentStatus)
}

func (s *saga) requireBalance(ctx context.Context, userID, want int64) {
	s.t.Helper()
	got, err := s.payment.Balance(ctx, userID)
	require.NoError(s.t, err)
	assert.Equal(s.t, want, got)
}

func (s *saga) requireDebit(ctx context.Context, orderID int64, want bool) {
	s.t.Helper()
	got, err := s.payment.HasDebit(ctx, orderID)
	require.NoError(s.t, err)
	assert.Equal(s.t, want, got)
}

func topics(msgs []kafka.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.Topic)
	}
	return out
}

func TestSaga_PaymentCompleted(t *testing.T) {
	ctx := context.Background()
	s := newSaga(t)

	id := s.createOrder(ctx, 101, 3000)
	s.run(ctx)

	s.requireOrder(ctx, id, events.OrderStatusCompleted, events.PaymentStatusCompleted)
	s.requireBalance(ctx, 101, 2000)
	s.requireDebit(ctx, id, true)
	// сага закончилась на результате оплаты, отмены нет
	assert.Equal(t, []string{events.DefaultOrderTopic, events.DefaultPaymentTopic}, topics(s.history))

	s.redeliverAll(ctx)
	s.requireOrder(ctx, id, events.OrderStatusCompleted, events.PaymentStatusCompleted)
	s.requireBalance(ctx, 101, 2000)
}

func TestSaga_InsufficientFundsCancelsOrder(t *testing.T) {
	ctx := context.Background()
	s := newSaga(t)

	// 999 против 999: строгое неравенство, списания нет
	id := s.createOrder(ctx, 105, 999)
	s.run(ctx)

	s.requireOrder(ctx, id, events.OrderStatusCancelled, events.PaymentStatusFailed)
	s.requireBalance(ctx, 105, 999)
	s.requireDebit(ctx, id, false)

	require.Len(t, s.history, 3)
	res, err := events.DecodePaymentResult(s.history[1].Value)
	require.NoError(t, err)
	assert.Equal(t, events.PaymentStatusFailed, res.Status)

	cancel, err := events.DecodeOrderEvent(s.history[2].Value)
	require.NoError(t, err)
	require.IsType(t, events.OrderCancelled{}, cancel)
	assert.Equal(t, events.OrderPayload{OrderID: id, UserID: 105, Amount: 999}, cancel.Payload())

	s.redeliverAll(ctx)
	s.requireOrder(ctx, id, events.OrderStatusCancelled, events.PaymentStatusFailed)
	s.requireBalance(ctx, 105, 999)
}

func TestSaga_CancellationAfterDebitRestoresBalance(t *testing.T) {
	ctx := context.Background()
	s := newSaga(t)

	id := s.createOrder(ctx, 101, 3000)
	s.run(ctx)
	s.requireBalance(ctx, 101, 2000)

	payload := events.OrderPayload{OrderID: id, UserID: 101, Amount: 3000}
	value, err := events.EncodeOrderEvent(events.NewOrderCancelled(payload))
	require.NoError(t, err)
	key := []byte(strconv.FormatInt(id, 10))
	cancel := kafka.Message{Topic: events.DefaultOrderTopic, Key: key, Value: value}

	s.handle(ctx, cancel)
	s.requireBalance(ctx, 101, 5000)
	s.requireDebit(ctx, id, false)

	// повтор той же отмены и новая отмена того же заказа ничего не меняют
	s.handle(ctx, cancel)
	again, err := events.EncodeOrderEvent(events.NewOrderCancelled(payload))
	require.NoError(t, err)
	s.handle(ctx, kafka.Message{Topic: events.DefaultOrderTopic, Key: key, Value: again})

	s.requireBalance(ctx, 101, 5000)
	require.NoError(t, s.paymentDispatcher.ProcessBatch(ctx))
	assert.Empty(t, s.bus.drain(), "reversal emits nothing")
}

func TestSaga_SameUserOrdersNeverOverdraw(t *testing.T) {
	ctx := context.Background()
	s := newSaga(t)

	// у 102 3000: хватает только на один заказ
	first := s.createOrder(ctx, 102, 2000)
	second := s.createOrder(ctx, 102, 2000)
	s.run(ctx)

	s.requireOrder(ctx, first, events.OrderStatusCompleted, events.PaymentStatusCompleted)
	s.requireOrder(ctx, second, events.OrderStatusCancelled, events.PaymentStatusFailed)
	s.requireBalance(ctx, 102, 1000)
	s.requireDebit(ctx, first, true)
	s.requireDebit(ctx, second, false)

	s.redeliverAll(ctx)
	s.requireBalance(ctx, 102, 1000)
}
