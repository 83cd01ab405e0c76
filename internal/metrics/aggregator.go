package metrics

import (
	"sync"
	"time"

	"dbpulse/internal/types"
)

// Sample represents one sampler tick's worth of database statistics
type Sample struct {
	Timestamp             time.Time
	CacheHitRatio         float64
	TransactionsPerSecond float64
	IndexStats            []types.IndexStat
	TableStats            []types.TableStat
}

// Aggregator accumulates query and sampling statistics in memory. It performs
// no I/O. All methods are safe for concurrent use; sampled sections are
// overwritten wholesale on each tick (last sample wins, no smoothing).
type Aggregator struct {
	mu sync.Mutex

	total         int64
	slow          int64
	errors        int64
	totalResponse time.Duration

	cache       types.CacheStats
	performance types.PerformanceStats

	recommendations []types.IndexRecommendation
	slowQueries     *ring
}

// NewAggregator creates an aggregator whose slow-query buffer holds up to
// slowQueryLogSize records, evicting the oldest first.
func NewAggregator(slowQueryLogSize int) *Aggregator {
	return &Aggregator{
		slowQueries: newRing(slowQueryLogSize),
	}
}

// RecordQuery folds a single query outcome into the running counters
func (a *Aggregator) RecordQuery(duration time.Duration, failed, slow bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++
	a.totalResponse += duration
	if failed {
		a.errors++
	}
	if slow {
		a.slow++
	}
}

// AddSlowQuery appends a record to the bounded slow-query buffer
func (a *Aggregator) AddSlowQuery(rec types.SlowQueryRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.slowQueries.add(rec)
}

// SlowQueries returns the buffered slow-query records in insertion order
func (a *Aggregator) SlowQueries() []types.SlowQueryRecord {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.slowQueries.items()
}

// ApplySample overwrites the cache and performance sections with the latest
// sampled values
func (a *Aggregator) ApplySample(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.cache = types.CacheStats{HitRatio: s.CacheHitRatio}
	a.performance = types.PerformanceStats{
		TransactionsPerSecond: s.TransactionsPerSecond,
		IndexStats:            append([]types.IndexStat(nil), s.IndexStats...),
		TableStats:            append([]types.TableStat(nil), s.TableStats...),
	}
}

// SetRecommendations replaces the recommendation set wholesale
func (a *Aggregator) SetRecommendations(recs []types.IndexRecommendation) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.recommendations = append([]types.IndexRecommendation(nil), recs...)
}

// Recommendations returns a copy of the current recommendation set
func (a *Aggregator) Recommendations() []types.IndexRecommendation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]types.IndexRecommendation(nil), a.recommendations...)
}

// Snapshot returns a deep copy of the aggregated state. Connection counts are
// owned by the pool and filled in by the caller.
func (a *Aggregator) Snapshot() types.Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	var avg time.Duration
	if a.total > 0 {
		avg = a.totalResponse / time.Duration(a.total)
	}

	return types.Snapshot{
		Timestamp: time.Now(),
		Queries: types.QueryStats{
			Total:           a.total,
			Slow:            a.slow,
			Errors:          a.errors,
			AvgResponseTime: avg,
		},
		Cache: a.cache,
		Performance: types.PerformanceStats{
			TransactionsPerSecond: a.performance.TransactionsPerSecond,
			IndexStats:            append([]types.IndexStat(nil), a.performance.IndexStats...),
			TableStats:            append([]types.TableStat(nil), a.performance.TableStats...),
		},
		Recommendations: append([]types.IndexRecommendation(nil), a.recommendations...),
	}
}

// ring is a fixed-capacity FIFO buffer of slow-query records
type ring struct {
	buf   []types.SlowQueryRecord
	head  int // index of oldest entry
	count int
}

func newRing(capacity int) *ring {
	if capacity <= 0 {
		capacity = 100
	}
	return &ring{buf: make([]types.SlowQueryRecord, capacity)}
}

func (r *ring) add(rec types.SlowQueryRecord) {
	if r.count < len(r.buf) {
		r.buf[(r.head+r.count)%len(r.buf)] = rec
		r.count++
		return
	}
	// Full: overwrite the oldest entry.
	r.buf[r.head] = rec
	r.head = (r.head + 1) % len(r.buf)
}

func (r *ring) items() []types.SlowQueryRecord {
	out := make([]types.SlowQueryRecord, 0, r.count)
	for i := 0; i < r.count; i++ {
		out = append(out, r.buf[(r.head+i)%len(r.buf)])
	}
	return out
}
