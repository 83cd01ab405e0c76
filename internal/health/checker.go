package health

import (
	"context"
	"time"

	"dbpulse/internal/events"
	"dbpulse/internal/pool"
	"dbpulse/internal/types"

	"go.uber.org/zap"
)

const (
	longRunningQuery = `
		SELECT pid, state, EXTRACT(EPOCH FROM now() - query_start)::float8, query
		FROM pg_stat_activity
		WHERE state = 'active'
		  AND pid <> pg_backend_pid()
		  AND now() - query_start > make_interval(secs => $1)
		ORDER BY query_start`

	blockingQuery = `
		SELECT a.pid, a.state, EXTRACT(EPOCH FROM now() - a.query_start)::float8,
		       a.query, (pg_blocking_pids(a.pid))[1]
		FROM pg_stat_activity a
		WHERE cardinality(pg_blocking_pids(a.pid)) > 0
		ORDER BY a.query_start`

	maxSessionQueryLen = 200
)

// Pinger is the connectivity surface the checker needs. *pool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
	WithConn(ctx context.Context, fn func(pool.Querier) error) error
}

// Checker performs periodic connectivity and session diagnostics.
// Connectivity failures surface as unhealthy status, never as errors thrown
// into unrelated callers.
type Checker struct {
	db        Pinger
	bus       *events.Bus
	logger    *zap.Logger
	interval  time.Duration
	threshold time.Duration // queries running longer than this are reported
	startTime time.Time
}

// New creates a health checker
func New(db Pinger, bus *events.Bus, interval, longQueryThreshold time.Duration, logger *zap.Logger) *Checker {
	return &Checker{
		db:        db,
		bus:       bus,
		logger:    logger,
		interval:  interval,
		threshold: longQueryThreshold,
		startTime: time.Now(),
	}
}

// Run ticks until ctx is cancelled. Intended to run as a goroutine.
func (c *Checker) Run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			status := c.Check(ctx)
			c.bus.Publish(events.HealthCheck, status)

			if len(status.LongRunningQueries) > 0 {
				c.bus.Publish(events.LongRunningQueries, status.LongRunningQueries)
			}
			if len(status.BlockingQueries) > 0 {
				c.bus.Publish(events.BlockingQueries, status.BlockingQueries)
			}
			if !status.Healthy {
				c.logger.Warn("Unhealthy status detected",
					zap.Any("details", status.Details))
			}
		}
	}
}

// Check performs one health check pass
func (c *Checker) Check(ctx context.Context) *types.HealthStatus {
	now := time.Now()
	status := &types.HealthStatus{
		Healthy:   true,
		Timestamp: now,
		StartTime: c.startTime,
		Uptime:    now.Sub(c.startTime),
	}

	if err := c.db.Ping(ctx); err != nil {
		status.Healthy = false
		status.Details = append(status.Details, types.ComponentStatus{
			Name:      "database",
			Status:    "unhealthy",
			Error:     err.Error(),
			LastCheck: now,
		})
		return status
	}

	status.Details = append(status.Details, types.ComponentStatus{
		Name:      "database",
		Status:    "healthy",
		LastCheck: now,
	})

	// Session diagnostics are advisory; their failure degrades the report
	// but does not flip overall health.
	longRunning, blocking, err := c.collectSessions(ctx)
	if err != nil {
		c.logger.Warn("Failed to collect session diagnostics", zap.Error(err))
		return status
	}

	status.LongRunningQueries = longRunning
	status.BlockingQueries = blocking
	return status
}

func (c *Checker) collectSessions(ctx context.Context) (longRunning, blocking []types.SessionInfo, err error) {
	err = c.db.WithConn(ctx, func(q pool.Querier) error {
		rows, qerr := q.Query(ctx, longRunningQuery, c.threshold.Seconds())
		if qerr != nil {
			return qerr
		}
		for rows.Next() {
			var s types.SessionInfo
			var seconds float64
			if serr := rows.Scan(&s.PID, &s.State, &seconds, &s.Query); serr != nil {
				rows.Close()
				return serr
			}
			s.Duration = time.Duration(seconds * float64(time.Second))
			s.Query = truncate(s.Query, maxSessionQueryLen)
			longRunning = append(longRunning, s)
		}
		rows.Close()
		if rerr := rows.Err(); rerr != nil {
			return rerr
		}

		rows, qerr = q.Query(ctx, blockingQuery)
		if qerr != nil {
			return qerr
		}
		for rows.Next() {
			var s types.SessionInfo
			var seconds float64
			if serr := rows.Scan(&s.PID, &s.State, &seconds, &s.Query, &s.Blocking); serr != nil {
				rows.Close()
				return serr
			}
			s.Duration = time.Duration(seconds * float64(time.Second))
			s.Query = truncate(s.Query, maxSessionQueryLen)
			blocking = append(blocking, s)
		}
		rows.Close()
		return rows.Err()
	})
	return longRunning, blocking, err
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
