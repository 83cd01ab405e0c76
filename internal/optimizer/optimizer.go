package optimizer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"dbpulse/internal/advisor"
	"dbpulse/internal/config"
	"dbpulse/internal/events"
	"dbpulse/internal/executor"
	"dbpulse/internal/health"
	"dbpulse/internal/metrics"
	"dbpulse/internal/pool"
	"dbpulse/internal/querylog"
	"dbpulse/internal/sampler"
	"dbpulse/internal/types"

	"go.uber.org/zap"
)

// State represents the lifecycle state
type State int32

const (
	Uninitialized State = iota
	Initializing
	Running
	Closing
	Closed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Initializing:
		return "initializing"
	case Running:
		return "running"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	default:
		return "unknown"
	}
}

// DB is the pool surface the optimizer depends on. *pool.Pool satisfies it.
type DB interface {
	WithConn(ctx context.Context, fn func(pool.Querier) error) error
	Ping(ctx context.Context) error
	Stat() types.ConnectionStats
	Close()
}

// Optimizer orchestrates the pool, executor, sampler, advisor and health
// checker behind a narrow programmatic surface.
type Optimizer struct {
	cfg    *config.Config
	logger *zap.Logger

	state atomic.Int32
	mu    sync.Mutex

	bus *events.Bus
	agg *metrics.Aggregator

	db      DB
	exec    *executor.Executor
	sampler *sampler.Sampler
	advisor *advisor.Advisor
	checker *health.Checker

	cancel context.CancelFunc
	wg     sync.WaitGroup

	// newPool is replaceable in tests.
	newPool func(ctx context.Context, cfg *config.DatabaseConfig, bus *events.Bus, logger *zap.Logger) (DB, error)
}

// New creates an optimizer. Event subscriptions can be registered before
// Initialize; no database work happens until then.
func New(cfg *config.Config, logger *zap.Logger) *Optimizer {
	return &Optimizer{
		cfg:    cfg,
		logger: logger,
		bus:    events.NewBus(logger),
		agg:    metrics.NewAggregator(cfg.Optimizer.SlowQueryLogSize),
		newPool: func(ctx context.Context, dbCfg *config.DatabaseConfig, bus *events.Bus, logger *zap.Logger) (DB, error) {
			return pool.New(ctx, dbCfg, bus, logger)
		},
	}
}

// State returns the current lifecycle state
func (o *Optimizer) State() State {
	return State(o.state.Load())
}

// Subscribe registers an event handler
func (o *Optimizer) Subscribe(kind events.Kind, handler events.Handler) events.SubscriptionID {
	return o.bus.Subscribe(kind, handler)
}

// Unsubscribe removes an event registration
func (o *Optimizer) Unsubscribe(id events.SubscriptionID) {
	o.bus.Unsubscribe(id)
}

// Initialize builds the pool, verifies connectivity with one round trip and
// starts the background timers. Any failure fails the whole sequence and
// leaves the instance unusable; the caller must construct a new one.
func (o *Optimizer) Initialize(ctx context.Context) error {
	if !o.state.CompareAndSwap(int32(Uninitialized), int32(Initializing)) {
		return types.ErrAlreadyRunning
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	db, err := o.newPool(ctx, &o.cfg.Database, o.bus, o.logger)
	if err != nil {
		o.failInit()
		return fmt.Errorf("%w: %v", types.ErrInitialization, err)
	}

	// One round trip proves the pool can reach the database.
	if err := db.WithConn(ctx, func(q pool.Querier) error {
		var one int
		return q.QueryRow(ctx, "SELECT 1").Scan(&one)
	}); err != nil {
		db.Close()
		o.failInit()
		return fmt.Errorf("%w: connectivity check: %v", types.ErrInitialization, err)
	}

	o.db = db
	o.exec = executor.New(db, o.agg, o.bus, o.cfg, o.logger)

	if o.cfg.Optimizer.EnableQueryLog {
		qlog := querylog.New(db, o.logger)
		if err := qlog.EnsureSchema(ctx); err != nil {
			db.Close()
			o.failInit()
			return fmt.Errorf("%w: %v", types.ErrInitialization, err)
		}
		o.exec.SetRecorder(qlog)
	}

	o.sampler = sampler.New(db, o.agg, o.bus, o.cfg.Optimizer.MetricsInterval, o.logger)
	o.checker = health.New(db, o.bus, o.cfg.Optimizer.HealthCheckInterval,
		o.cfg.Optimizer.SlowQueryThreshold, o.logger)

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel

	o.wg.Add(2)
	go func() {
		defer o.wg.Done()
		o.sampler.Run(runCtx)
	}()
	go func() {
		defer o.wg.Done()
		o.checker.Run(runCtx)
	}()

	if o.cfg.Optimizer.EnableIndexAnalysis {
		o.advisor = advisor.New(db, o.agg, o.bus, &o.cfg.Optimizer, o.logger)
		o.wg.Add(1)
		go func() {
			defer o.wg.Done()
			o.advisor.Run(runCtx)
		}()
	}

	o.state.Store(int32(Running))
	o.logger.Info("Optimizer initialized",
		zap.Int32("max_connections", o.cfg.Database.MaxConnections),
		zap.Duration("metrics_interval", o.cfg.Optimizer.MetricsInterval))
	return nil
}

// failInit marks the instance permanently unusable after a failed startup
func (o *Optimizer) failInit() {
	o.state.Store(int32(Closed))
	o.bus.Close()
}

// Execute runs a query through the instrumented executor
func (o *Optimizer) Execute(ctx context.Context, query string, params []any, opts executor.Options) (executor.QueryOutcome, error) {
	if o.State() != Running {
		return executor.QueryOutcome{}, types.ErrNotRunning
	}
	return o.exec.Execute(ctx, query, params, opts)
}

// Snapshot returns a point-in-time copy of all collected metrics
func (o *Optimizer) Snapshot() (types.Snapshot, error) {
	if o.State() != Running {
		return types.Snapshot{}, types.ErrNotRunning
	}
	snap := o.agg.Snapshot()
	snap.Connections = o.db.Stat()
	return snap, nil
}

// Health performs an on-demand health check
func (o *Optimizer) Health(ctx context.Context) *types.HealthStatus {
	if o.State() != Running {
		return &types.HealthStatus{
			Healthy:   false,
			Timestamp: time.Now(),
			Details: []types.ComponentStatus{{
				Name:      "optimizer",
				Status:    "unhealthy",
				Message:   fmt.Sprintf("state: %s", o.State()),
				LastCheck: time.Now(),
			}},
		}
	}
	return o.checker.Check(ctx)
}

// Close stops the timers, drains the pool and releases all resources.
// Idempotent; repeated calls return nil.
func (o *Optimizer) Close(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.State() {
	case Closed, Closing:
		return nil
	case Uninitialized:
		o.state.Store(int32(Closed))
		o.bus.Close()
		return nil
	}

	o.state.Store(int32(Closing))

	// Stop timers first so no new ticks start, then wait for in-flight
	// loops, then drain the pool.
	if o.cancel != nil {
		o.cancel()
	}

	done := make(chan struct{})
	go func() {
		o.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		o.logger.Warn("Timed out waiting for background loops")
	}

	if o.db != nil {
		o.db.Close()
	}
	o.bus.Close()

	o.state.Store(int32(Closed))
	o.logger.Info("Optimizer closed")
	return nil
}
