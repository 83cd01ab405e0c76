package pool

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dbpulse/internal/config"
	"dbpulse/internal/events"
	"dbpulse/internal/types"
)

// unreachableConfig points at a TEST-NET address that never answers, so a
// connection attempt blocks until a deadline fires. The connect timeout is
// kept well above the acquire timeout so the acquire deadline fires first.
func unreachableConfig(t *testing.T) *config.DatabaseConfig {
	t.Helper()
	cfg := &config.DatabaseConfig{
		Host:           "203.0.113.1",
		Database:       "app",
		User:           "app",
		AcquireTimeout: 100 * time.Millisecond,
		ConnectTimeout: 30 * time.Second,
	}
	require.NoError(t, cfg.Validate())
	return cfg
}

func newTestPool(t *testing.T) (*Pool, *events.Bus) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	t.Cleanup(bus.Close)

	p, err := New(context.Background(), unreachableConfig(t), bus, logger)
	require.NoError(t, err)
	t.Cleanup(p.Close)
	return p, bus
}

func TestAcquireTimesOut(t *testing.T) {
	p, _ := newTestPool(t)

	start := time.Now()
	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, types.ErrAcquireTimeout)

	// The acquire deadline, not the connect timeout, bounds the wait.
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestAcquireCallerCancelIsNotTimeout(t *testing.T) {
	p, bus := newTestPool(t)

	poolErrors := make(chan struct{}, 1)
	bus.Subscribe(events.PoolError, func(events.Event) {
		select {
		case poolErrors <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := p.Acquire(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, types.ErrAcquireTimeout)

	select {
	case <-poolErrors:
	case <-time.After(time.Second):
		t.Fatal("expected a pool error event for a non-timeout failure")
	}
}

func TestAcquireAfterClose(t *testing.T) {
	p, _ := newTestPool(t)
	p.Close()

	_, err := p.Acquire(context.Background())
	require.ErrorIs(t, err, types.ErrPoolClosed)
}

func TestConnDoubleReleaseIsNoOp(t *testing.T) {
	releases := 0
	conn := &Conn{release: func() { releases++ }}

	conn.Release()
	conn.Release()
	conn.Release()

	// A handle returns its connection to the pool exactly once; further
	// releases are no-ops and can never inflate the idle count.
	assert.Equal(t, 1, releases)
}

func TestConnReleaseWithoutBackingIsSafe(t *testing.T) {
	conn := &Conn{}
	assert.NotPanics(t, func() {
		conn.Release()
	})
}
