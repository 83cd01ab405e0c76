package sampler

import (
	"context"
	"fmt"
	"time"

	"dbpulse/internal/events"
	"dbpulse/internal/metrics"
	"dbpulse/internal/pool"
	"dbpulse/internal/types"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"
)

// Acquirer provides scoped access to a leased connection
type Acquirer interface {
	WithConn(ctx context.Context, fn func(pool.Querier) error) error
}

// Sampler periodically collects database-internal statistics and folds them
// into the aggregator. A failed tick is logged and skipped; the next tick is
// the recovery mechanism.
type Sampler struct {
	db       Acquirer
	agg      *metrics.Aggregator
	bus      *events.Bus
	logger   *zap.Logger
	interval time.Duration

	// Previous tick state for the transaction-rate estimate.
	lastSample  time.Time
	lastTxCount int64
}

// New creates a sampler ticking at the given interval
func New(db Acquirer, agg *metrics.Aggregator, bus *events.Bus, interval time.Duration, logger *zap.Logger) *Sampler {
	return &Sampler{
		db:       db,
		agg:      agg,
		bus:      bus,
		logger:   logger,
		interval: interval,
	}
}

// Run ticks until ctx is cancelled. Intended to run as a goroutine.
func (s *Sampler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick performs one sampling pass. Failures are contained here and never
// stop the timer loop.
func (s *Sampler) Tick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			s.logger.Error("Sampling tick panicked", zap.Any("panic", p))
		}
	}()

	if err := s.sample(ctx); err != nil {
		s.logger.Warn("Sampling tick failed, skipping", zap.Error(err))
	}
}

func (s *Sampler) sample(ctx context.Context) error {
	var sample metrics.Sample

	err := s.db.WithConn(ctx, func(q pool.Querier) error {
		now := time.Now()

		var hits, reads, commits, rollbacks int64
		row := q.QueryRow(ctx, databaseStatsQuery)
		if err := row.Scan(&hits, &reads, &commits, &rollbacks); err != nil {
			return fmt.Errorf("database stats: %w", err)
		}

		indexStats, err := s.collectIndexStats(ctx, q)
		if err != nil {
			return fmt.Errorf("index stats: %w", err)
		}

		tableStats, err := s.collectTableStats(ctx, q)
		if err != nil {
			return fmt.Errorf("table stats: %w", err)
		}

		txCount := commits + rollbacks
		sample = metrics.Sample{
			Timestamp:             now,
			CacheHitRatio:         CacheHitRatio(hits, reads),
			TransactionsPerSecond: TransactionRate(txCount, s.lastTxCount, s.lastSample, now),
			IndexStats:            indexStats,
			TableStats:            tableStats,
		}

		s.lastSample = now
		s.lastTxCount = txCount
		return nil
	})
	if err != nil {
		return err
	}

	s.agg.ApplySample(sample)

	// Subscribers see the same aggregated view Snapshot() returns, with the
	// fresh sample already folded in.
	s.bus.Publish(events.MetricsUpdated, s.agg.Snapshot())
	return nil
}

func (s *Sampler) collectIndexStats(ctx context.Context, q pool.Querier) ([]types.IndexStat, error) {
	rows, err := q.Query(ctx, indexStatsQuery)
	if err != nil {
		return nil, err
	}
	return scanIndexStats(rows)
}

func (s *Sampler) collectTableStats(ctx context.Context, q pool.Querier) ([]types.TableStat, error) {
	rows, err := q.Query(ctx, tableStatsQuery)
	if err != nil {
		return nil, err
	}
	return scanTableStats(rows)
}

func scanIndexStats(rows pgx.Rows) ([]types.IndexStat, error) {
	defer rows.Close()

	var stats []types.IndexStat
	for rows.Next() {
		var st types.IndexStat
		if err := rows.Scan(&st.Table, &st.Index, &st.Scans,
			&st.TuplesRead, &st.TuplesFetched, &st.Unique, &st.Primary); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func scanTableStats(rows pgx.Rows) ([]types.TableStat, error) {
	defer rows.Close()

	var stats []types.TableStat
	for rows.Next() {
		var st types.TableStat
		if err := rows.Scan(&st.Table, &st.SeqScans, &st.IdxScans,
			&st.LiveTuples, &st.DeadTuples); err != nil {
			return nil, err
		}
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

// CacheHitRatio returns the buffer cache hit percentage, 0 when no blocks
// have been read yet
func CacheHitRatio(hits, reads int64) float64 {
	total := hits + reads
	if total == 0 {
		return 0
	}
	return float64(hits) / float64(total) * 100
}

// TransactionRate estimates transactions per second from the commit+rollback
// delta over the actual elapsed time since the previous sample. The first
// sample has no baseline and reports 0.
func TransactionRate(current, previous int64, lastSample, now time.Time) float64 {
	if lastSample.IsZero() {
		return 0
	}
	elapsed := now.Sub(lastSample).Seconds()
	if elapsed <= 0 {
		return 0
	}
	delta := current - previous
	if delta < 0 {
		// Counter reset (e.g. pg_stat_reset); skip this interval.
		return 0
	}
	return float64(delta) / elapsed
}
