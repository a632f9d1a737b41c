package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestManager_RunsInReverseOrder(t *testing.T) {
	m := New(time.Second, zap.NewNop())

	var calls []string
	m.Add("http", func(context.Context) error { calls = append(calls, "http"); return nil })
	m.Add("consumer", func(context.Context) error { calls = append(calls, "consumer"); return errors.New("boom") })
	m.Add("health", func(context.Context) error { calls = append(calls, "health"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m.Wait(ctx)

	assert.Equal(t, []string{"health", "consumer", "http"}, calls)

	// повторный вызов ничего не выполняет
	m.Shutdown()
	assert.Len(t, calls, 3)
}

func TestCancelFunc(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		<-ctx.Done()
	}()

	err := CancelFunc(cancel, wg.Wait)(context.Background())
	assert.NoError(t, err)

	stuck := make(chan struct{})
	timeoutCtx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancelTimeout()
	err = CancelFunc(func() {}, func() { <-stuck })(timeoutCtx)
	assert.Error(t, err)
	close(stuck)
}
