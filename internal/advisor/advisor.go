package advisor

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

// Analysis battery. Raw usage statistics are fetched with static templates;
// threshold filtering happens in Go over typed values.
const (
	unusedIndexQuery = `
		SELECT s.relname,
		       s.indexrelname,
		       s.idx_scan,
		       s.idx_tup_read,
		       s.idx_tup_fetch,
		       i.indisunique,
		       i.indisprimary
		FROM pg_stat_user_indexes s
		JOIN pg_index i ON s.indexrelid = i.indexrelid
		WHERE s.idx_scan = 0
		ORDER BY s.relname, s.indexrelname`

	tableScanQuery = `
		SELECT relname,
		       seq_scan,
		       COALESCE(idx_scan, 0),
		       n_live_tup,
		       n_dead_tup
		FROM pg_stat_user_tables
		ORDER BY relname`
)

// Acquirer provides scoped access to a leased connection
type Acquirer interface {
	WithConn(ctx context.Context, fn func(pool.Querier) error) error
}

// Advisor periodically analyzes index and table usage statistics and emits
// structured recommendations. It never executes DDL; applying a
// recommendation is an explicit operator action.
type Advisor struct {
	db       Acquirer
	agg      *metrics.Aggregator
	bus      *events.Bus
	logger   *zap.Logger
	interval time.Duration

	seqScanThreshold int64
	seqToIdxRatio    int64
}

// New creates an index advisor
func New(db Acquirer, agg *metrics.Aggregator, bus *events.Bus, cfg *config.OptimizerConfig, logger *zap.Logger) *Advisor {
	return &Advisor{
		db:               db,
		agg:              agg,
		bus:              bus,
		logger:           logger,
		interval:         cfg.IndexAnalysisInterval,
		seqScanThreshold: cfg.SeqScanThreshold,
		seqToIdxRatio:    cfg.SeqToIdxRatio,
	}
}

// Run ticks until ctx is cancelled. Intended to run as a goroutine.
func (a *Advisor) Run(ctx context.Context) {
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.Tick(ctx)
		}
	}
}

// Tick performs one analysis pass. Failures are contained and never stop
// the timer loop.
func (a *Advisor) Tick(ctx context.Context) {
	defer func() {
		if p := recover(); p != nil {
			a.logger.Error("Index analysis tick panicked", zap.Any("panic", p))
		}
	}()

	if err := a.analyze(ctx); err != nil {
		a.logger.Warn("Index analysis tick failed, skipping", zap.Error(err))
	}
}

func (a *Advisor) analyze(ctx context.Context) error {
	var indexStats []types.IndexStat
	var tableStats []types.TableStat

	err := a.db.WithConn(ctx, func(q pool.Querier) error {
		rows, err := q.Query(ctx, unusedIndexQuery)
		if err != nil {
			return fmt.Errorf("unused index query: %w", err)
		}
		for rows.Next() {
			var st types.IndexStat
			if err := rows.Scan(&st.Table, &st.Index, &st.Scans,
				&st.TuplesRead, &st.TuplesFetched, &st.Unique, &st.Primary); err != nil {
				rows.Close()
				return err
			}
			indexStats = append(indexStats, st)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		rows, err = q.Query(ctx, tableScanQuery)
		if err != nil {
			return fmt.Errorf("table scan query: %w", err)
		}
		for rows.Next() {
			var st types.TableStat
			if err := rows.Scan(&st.Table, &st.SeqScans, &st.IdxScans,
				&st.LiveTuples, &st.DeadTuples); err != nil {
				rows.Close()
				return err
			}
			tableStats = append(tableStats, st)
		}
		rows.Close()
		return rows.Err()
	})
	if err != nil {
		return err
	}

	recs := UnusedIndexes(indexStats)
	recs = append(recs, MissingIndexes(tableStats, a.seqScanThreshold, a.seqToIdxRatio)...)

	a.agg.SetRecommendations(recs)
	a.bus.Publish(events.IndexAnalysis, recs)

	a.logger.Info("Index analysis completed",
		zap.Int("recommendations", len(recs)))
	return nil
}

// UnusedIndexes recommends dropping indexes that have never been scanned.
// Unique and primary indexes enforce semantics, not just performance, and
// are never drop candidates.
func UnusedIndexes(stats []types.IndexStat) []types.IndexRecommendation {
	var recs []types.IndexRecommendation
	for _, st := range stats {
		if st.Scans != 0 || st.Unique || st.Primary {
			continue
		}
		recs = append(recs, types.IndexRecommendation{
			Kind:            types.DropUnused,
			Table:           st.Table,
			Index:           st.Index,
			Rationale:       fmt.Sprintf("index %q on table %q has never been scanned", st.Index, st.Table),
			SuggestedAction: fmt.Sprintf("review and consider: DROP INDEX CONCURRENTLY %s", st.Index),
		})
	}
	return recs
}

// MissingIndexes flags tables whose sequential scan count exceeds both the
// absolute threshold and the configured ratio to index scans.
func MissingIndexes(stats []types.TableStat, seqScanThreshold, seqToIdxRatio int64) []types.IndexRecommendation {
	var recs []types.IndexRecommendation
	for _, st := range stats {
		if st.SeqScans <= seqScanThreshold {
			continue
		}
		if st.SeqScans < st.IdxScans*seqToIdxRatio {
			continue
		}
		recs = append(recs, types.IndexRecommendation{
			Kind:  types.AddMissing,
			Table: st.Table,
			Rationale: fmt.Sprintf("table %q has %d sequential scans against %d index scans",
				st.Table, st.SeqScans, st.IdxScans),
			SuggestedAction: fmt.Sprintf("inspect frequent WHERE clauses on %q and add a covering index", st.Table),
		})
	}
	return recs
}
