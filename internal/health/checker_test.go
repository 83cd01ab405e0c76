package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"dbpulse/internal/events"
	"dbpulse/internal/pool"
)

type fakeDB struct {
	pingErr error
	connErr error
}

func (f *fakeDB) Ping(context.Context) error {
	return f.pingErr
}

func (f *fakeDB) WithConn(context.Context, func(pool.Querier) error) error {
	return f.connErr
}

func newTestChecker(t *testing.T, db Pinger) *Checker {
	t.Helper()
	logger := zaptest.NewLogger(t)
	bus := events.NewBus(logger)
	t.Cleanup(bus.Close)
	return New(db, bus, time.Minute, time.Second, logger)
}

func TestCheckUnhealthyOnConnectivityFailure(t *testing.T) {
	c := newTestChecker(t, &fakeDB{pingErr: errors.New("connection refused")})

	status := c.Check(context.Background())
	assert.False(t, status.Healthy)
	require.Len(t, status.Details, 1)
	assert.Equal(t, "database", status.Details[0].Name)
	assert.Equal(t, "unhealthy", status.Details[0].Status)
	assert.NotEmpty(t, status.Details[0].Error)
}

func TestCheckHealthy(t *testing.T) {
	c := newTestChecker(t, &fakeDB{})

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	require.Len(t, status.Details, 1)
	assert.Equal(t, "healthy", status.Details[0].Status)
	assert.Positive(t, status.Uptime)
}

func TestCheckSessionDiagnosticsFailureStaysHealthy(t *testing.T) {
	// Losing the advisory session lists degrades the report but a reachable
	// database is still healthy.
	c := newTestChecker(t, &fakeDB{connErr: errors.New("acquire timeout")})

	status := c.Check(context.Background())
	assert.True(t, status.Healthy)
	assert.Empty(t, status.LongRunningQueries)
	assert.Empty(t, status.BlockingQueries)
}

func TestTruncateSessionQuery(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Len(t, truncate(string(make([]byte, 400)), maxSessionQueryLen), maxSessionQueryLen+3)
}
