package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	received := make(chan int, 10)
	bus.Subscribe(SlowQuery, func(ev Event) {
		received <- ev.Payload.(int)
	})

	for i := 0; i < 5; i++ {
		bus.Publish(SlowQuery, i)
	}

	for i := 0; i < 5; i++ {
		select {
		case got := <-received:
			assert.Equal(t, i, got)
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}
}

func TestBusKindIsolation(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	received := make(chan Kind, 10)
	bus.Subscribe(PoolError, func(ev Event) {
		received <- ev.Kind
	})

	bus.Publish(SlowQuery, "ignored")
	bus.Publish(PoolError, "seen")

	select {
	case kind := <-received:
		assert.Equal(t, PoolError, kind)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for pool error event")
	}

	select {
	case kind := <-received:
		t.Fatalf("unexpected extra event: %s", kind)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))
	defer bus.Close()

	received := make(chan struct{}, 10)
	id := bus.Subscribe(HealthCheck, func(Event) {
		received <- struct{}{}
	})

	bus.Publish(HealthCheck, nil)
	select {
	case <-received:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for first event")
	}

	bus.Unsubscribe(id)
	bus.Publish(HealthCheck, nil)

	select {
	case <-received:
		t.Fatal("received event after unsubscribe")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBusCloseIsIdempotent(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	require.NotPanics(t, func() {
		bus.Close()
		bus.Close()
	})

	// Publishing after close must not panic; the event is dropped.
	require.NotPanics(t, func() {
		bus.Publish(SlowQuery, "dropped")
	})
}

func TestBusDrainsOnClose(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	received := make(chan int, 10)
	bus.Subscribe(MetricsUpdated, func(ev Event) {
		received <- ev.Payload.(int)
	})

	for i := 0; i < 3; i++ {
		bus.Publish(MetricsUpdated, i)
	}
	bus.Close()

	assert.Eventually(t, func() bool {
		return len(received) == 3
	}, time.Second, 10*time.Millisecond)
}
