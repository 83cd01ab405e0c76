package executor

import (
	"context"
	"fmt"
	"time"

	"dbpulse/internal/config"
	"dbpulse/internal/events"
	"dbpulse/internal/metrics"
	"dbpulse/internal/pool"
	"dbpulse/internal/types"

	"go.uber.org/zap"
)

const (
	maxQueryTextLen = 500
	maxParamsLen    = 200
)

// Acquirer provides scoped access to a leased connection. *pool.Pool
// satisfies it.
type Acquirer interface {
	WithConn(ctx context.Context, fn func(pool.Querier) error) error
}

// Recorder persists query outcomes to the diagnostic log table.
// Implementations must be best-effort; failures never surface to callers.
type Recorder interface {
	Record(ctx context.Context, query string, duration time.Duration, rows int64, plan string)
}

// Options controls a single execution
type Options struct {
	// ExplainAnalyze wraps the query in an EXPLAIN (ANALYZE) form and
	// attaches the resulting plan instead of executing the raw query twice.
	ExplainAnalyze bool
}

// QueryOutcome represents the result of one instrumented execution.
// Duration covers the execution round trip only; pool wait time is
// accounted in pool metrics.
type QueryOutcome struct {
	Duration     time.Duration
	RowsAffected int64
	Err          error
	Plan         string
}

// Executor wraps query execution with timing, error capture and
// slow-query detection
type Executor struct {
	db       Acquirer
	agg      *metrics.Aggregator
	bus      *events.Bus
	logger   *zap.Logger
	recorder Recorder

	slowThreshold time.Duration
	queryTimeout  time.Duration
	slowLogging   bool
	planAnalysis  bool
}

// New creates an instrumented executor
func New(db Acquirer, agg *metrics.Aggregator, bus *events.Bus, cfg *config.Config, logger *zap.Logger) *Executor {
	return &Executor{
		db:            db,
		agg:           agg,
		bus:           bus,
		logger:        logger,
		slowThreshold: cfg.Optimizer.SlowQueryThreshold,
		queryTimeout:  cfg.Database.QueryTimeout,
		slowLogging:   cfg.Optimizer.EnableSlowQueryLogging,
		planAnalysis:  cfg.Optimizer.EnableQueryPlanAnalysis,
	}
}

// SetRecorder attaches a diagnostic log writer
func (e *Executor) SetRecorder(r Recorder) {
	e.recorder = r
}

// Execute runs a query through a pooled connection, recording its outcome.
// Execution errors are counted and returned to the caller unchanged.
func (e *Executor) Execute(ctx context.Context, query string, params []any, opts Options) (QueryOutcome, error) {
	var out QueryOutcome
	executed := false

	err := e.db.WithConn(ctx, func(q pool.Querier) error {
		executed = true

		// The deadline covers the execution round trip only; pool wait is
		// already bounded by the acquire timeout.
		execCtx := ctx
		if e.queryTimeout > 0 {
			var cancel context.CancelFunc
			execCtx, cancel = context.WithTimeout(ctx, e.queryTimeout)
			defer cancel()
		}

		if opts.ExplainAnalyze && e.planAnalysis {
			return e.explain(execCtx, q, query, params, &out)
		}

		start := time.Now()
		tag, execErr := q.Exec(execCtx, query, params...)
		out.Duration = time.Since(start)
		if execErr != nil {
			out.Err = execErr
			return execErr
		}
		out.RowsAffected = tag.RowsAffected()
		return nil
	})

	if !executed {
		// Acquire failed; nothing ran, so there is no query outcome to fold
		// into the query counters. Pool starvation shows up in pool metrics.
		return out, err
	}

	slow := out.Duration > e.slowThreshold
	e.agg.RecordQuery(out.Duration, out.Err != nil, slow)

	if slow {
		e.recordSlowQuery(query, params, out)
	}

	if e.recorder != nil {
		e.recorder.Record(ctx, query, out.Duration, out.RowsAffected, out.Plan)
	}

	return out, err
}

// explain runs the query once under EXPLAIN ANALYZE and attaches the plan
func (e *Executor) explain(ctx context.Context, q pool.Querier, query string, params []any, out *QueryOutcome) error {
	start := time.Now()
	row := q.QueryRow(ctx, "EXPLAIN (ANALYZE, FORMAT JSON) "+query, params...)

	var plan []byte
	err := row.Scan(&plan)
	out.Duration = time.Since(start)
	if err != nil {
		out.Err = err
		return err
	}
	out.Plan = string(plan)
	return nil
}

// recordSlowQuery buffers evidence and emits a slow-query event
func (e *Executor) recordSlowQuery(query string, params []any, out QueryOutcome) {
	if !e.slowLogging {
		return
	}

	rec := types.SlowQueryRecord{
		Timestamp: time.Now(),
		Query:     truncate(query, maxQueryTextLen),
		Params:    truncate(formatParams(params), maxParamsLen),
		Duration:  out.Duration,
		Plan:      out.Plan,
	}

	e.agg.AddSlowQuery(rec)
	e.bus.Publish(events.SlowQuery, rec)

	e.logger.Warn("Slow query detected",
		zap.Duration("duration", out.Duration),
		zap.String("query", rec.Query))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func formatParams(params []any) string {
	if len(params) == 0 {
		return ""
	}
	return fmt.Sprintf("%v", params)
}
