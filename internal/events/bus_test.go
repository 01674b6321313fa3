// internal/events/bus_test.go
package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestPublishDeliversToSubscriber(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var mu sync.Mutex
	var got []Event
	bus.SubscribeFunc(PositionOpened, func(_ context.Context, ev Event) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
		return nil
	})

	require.NoError(t, bus.Publish(PositionOpenedEvent{
		BaseEvent:  Base(PositionOpened),
		PositionID: "pos-1",
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))
}

func TestSubscriberOnlySeesItsType(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var count int
	var mu sync.Mutex
	bus.SubscribeFunc(PositionClosed, func(context.Context, Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	_ = bus.Publish(PositionOpenedEvent{BaseEvent: Base(PositionOpened)})
	_ = bus.Publish(PositionClosedEvent{BaseEvent: Base(PositionClosed)})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	var count int
	var mu sync.Mutex
	sub := bus.SubscribeFunc(PositionStuck, func(context.Context, Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	_ = bus.Publish(PositionStuckEvent{BaseEvent: Base(PositionStuck)})
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return count == 1
	}, 2*time.Second, 5*time.Millisecond)

	sub.Unsubscribe()
	_ = bus.Publish(PositionStuckEvent{BaseEvent: Base(PositionStuck)})
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	assert.Equal(t, 1, count)
	mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))
}

func TestShutdownDrainsQueuedEvents(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 64)

	var mu sync.Mutex
	var count int
	bus.SubscribeFunc(PositionClosed, func(context.Context, Event) error {
		mu.Lock()
		defer mu.Unlock()
		count++
		return nil
	})

	for i := 0; i < 10; i++ {
		require.NoError(t, bus.Publish(PositionClosedEvent{BaseEvent: Base(PositionClosed)}))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	mu.Lock()
	assert.Equal(t, 10, count)
	mu.Unlock()
}

func TestPublishAfterShutdownFails(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t), 16)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, bus.Shutdown(ctx))

	assert.Error(t, bus.Publish(PositionOpenedEvent{BaseEvent: Base(PositionOpened)}))
}
