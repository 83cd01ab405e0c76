package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"dbpulse/internal/config"
	"dbpulse/internal/events"
	"dbpulse/internal/types"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Querier is the read/write surface a leased connection exposes
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Pool represents the bounded connection pool. It wraps pgxpool and adds
// acquire-timeout semantics, pool-level event emission and waiter accounting.
type Pool struct {
	pool    *pgxpool.Pool
	cfg     *config.DatabaseConfig
	bus     *events.Bus
	logger  *zap.Logger
	waiting atomic.Int32
	closed  atomic.Bool
}

// Conn represents a leased connection. It is owned exclusively by the caller
// between Acquire and Release. Release is idempotent; a second Release on the
// same handle is a no-op.
type Conn struct {
	conn     *pgxpool.Conn
	release  func()
	released atomic.Bool
}

// Exec executes a statement on the leased connection
func (c *Conn) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return c.conn.Exec(ctx, sql, args...)
}

// Query executes a query on the leased connection
func (c *Conn) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return c.conn.Query(ctx, sql, args...)
}

// QueryRow executes a single-row query on the leased connection
func (c *Conn) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return c.conn.QueryRow(ctx, sql, args...)
}

// Release returns the connection to the idle set. Safe against double release.
func (c *Conn) Release() {
	if c.released.CompareAndSwap(false, true) && c.release != nil {
		c.release()
	}
}

// New creates a new connection pool from configuration. Connections are
// established lazily up to MaxConnections; MinConnections are kept warm.
func New(ctx context.Context, cfg *config.DatabaseConfig, bus *events.Bus, logger *zap.Logger) (*Pool, error) {
	pc, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	pc.MaxConns = cfg.MaxConnections
	pc.MinConns = cfg.MinConnections
	pc.MaxConnIdleTime = cfg.IdleTimeout
	pc.ConnConfig.ConnectTimeout = cfg.ConnectTimeout

	pc.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Session configuration failure is logged, not fatal; the
		// connection stays usable with database defaults.
		if err := applySessionConfig(ctx, conn, cfg); err != nil {
			logger.Warn("Failed to apply session config",
				zap.Uint32("pid", conn.PgConn().PID()),
				zap.Error(err))
		}
		bus.Publish(events.ConnectionCreated, conn.PgConn().PID())
		return nil
	}
	pc.BeforeClose = func(conn *pgx.Conn) {
		bus.Publish(events.ConnectionRemoved, conn.PgConn().PID())
	}

	p, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Pool{
		pool:   p,
		cfg:    cfg,
		bus:    bus,
		logger: logger,
	}, nil
}

// applySessionConfig sets per-session timeouts. Values are numeric and come
// from typed configuration, never from query parameters.
func applySessionConfig(ctx context.Context, conn *pgx.Conn, cfg *config.DatabaseConfig) error {
	settings := []struct {
		name  string
		value int64
	}{
		{"statement_timeout", cfg.StatementTimeout.Milliseconds()},
		{"lock_timeout", cfg.LockTimeout.Milliseconds()},
	}

	for _, s := range settings {
		query := fmt.Sprintf("SET %s = %d", s.name, s.value)
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to set %s: %w", s.name, err)
		}
	}
	return nil
}

// Acquire leases a connection, waiting up to the configured acquire timeout.
// Exhausting the deadline returns ErrAcquireTimeout.
func (p *Pool) Acquire(ctx context.Context) (*Conn, error) {
	if p.closed.Load() {
		return nil, types.ErrPoolClosed
	}

	acquireCtx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()

	p.waiting.Add(1)
	conn, err := p.pool.Acquire(acquireCtx)
	p.waiting.Add(-1)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%w after %s", types.ErrAcquireTimeout, p.cfg.AcquireTimeout)
		}
		p.bus.Publish(events.PoolError, err)
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	return &Conn{conn: conn, release: conn.Release}, nil
}

// WithConn runs fn with a leased connection, releasing it on every exit path
func (p *Pool) WithConn(ctx context.Context, fn func(Querier) error) error {
	conn, err := p.Acquire(ctx)
	if err != nil {
		return err
	}
	defer conn.Release()

	return fn(conn)
}

// Ping verifies database connectivity with one round trip
func (p *Pool) Ping(ctx context.Context) error {
	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", types.ErrConnectivity, err)
	}
	return nil
}

// Stat reports live pool counts
func (p *Pool) Stat() types.ConnectionStats {
	s := p.pool.Stat()
	return types.ConnectionStats{
		Total:   s.TotalConns(),
		Active:  s.AcquiredConns(),
		Idle:    s.IdleConns(),
		Waiting: p.waiting.Load(),
	}
}

// Close closes the pool, waiting for leased connections to be released.
// Safe to call multiple times.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		p.pool.Close()
	}
}
