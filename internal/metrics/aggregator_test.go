package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbpulse/internal/types"
)

func TestAggregatorAverageResponseTime(t *testing.T) {
	agg := NewAggregator(100)

	// No queries recorded yet: average must be 0, not a division by zero.
	snap := agg.Snapshot()
	assert.Equal(t, int64(0), snap.Queries.Total)
	assert.Equal(t, time.Duration(0), snap.Queries.AvgResponseTime)

	agg.RecordQuery(100*time.Millisecond, false, false)
	agg.RecordQuery(300*time.Millisecond, false, false)

	snap = agg.Snapshot()
	assert.Equal(t, int64(2), snap.Queries.Total)
	assert.Equal(t, 200*time.Millisecond, snap.Queries.AvgResponseTime)
}

func TestAggregatorCounters(t *testing.T) {
	agg := NewAggregator(100)

	agg.RecordQuery(10*time.Millisecond, false, false)
	agg.RecordQuery(20*time.Millisecond, true, false)
	agg.RecordQuery(2*time.Second, false, true)

	snap := agg.Snapshot()
	assert.Equal(t, int64(3), snap.Queries.Total)
	assert.Equal(t, int64(1), snap.Queries.Errors)
	assert.Equal(t, int64(1), snap.Queries.Slow)
}

func TestSlowQueryBufferEvictsOldest(t *testing.T) {
	agg := NewAggregator(100)

	for i := 0; i < 150; i++ {
		agg.AddSlowQuery(types.SlowQueryRecord{
			Query:    fmt.Sprintf("SELECT %d", i),
			Duration: time.Duration(i) * time.Millisecond,
		})
	}

	records := agg.SlowQueries()
	require.Len(t, records, 100)

	// The buffer must hold exactly the last 100 records in insertion order.
	for i, rec := range records {
		assert.Equal(t, fmt.Sprintf("SELECT %d", i+50), rec.Query)
	}
}

func TestSlowQueryBufferBelowCapacity(t *testing.T) {
	agg := NewAggregator(100)

	for i := 0; i < 5; i++ {
		agg.AddSlowQuery(types.SlowQueryRecord{Query: fmt.Sprintf("q%d", i)})
	}

	records := agg.SlowQueries()
	require.Len(t, records, 5)
	assert.Equal(t, "q0", records[0].Query)
	assert.Equal(t, "q4", records[4].Query)
}

func TestApplySampleLastWins(t *testing.T) {
	agg := NewAggregator(100)

	agg.ApplySample(Sample{
		CacheHitRatio:         90,
		TransactionsPerSecond: 100,
		TableStats:            []types.TableStat{{Table: "orders"}},
	})
	agg.ApplySample(Sample{
		CacheHitRatio:         99.5,
		TransactionsPerSecond: 42,
	})

	snap := agg.Snapshot()
	assert.Equal(t, 99.5, snap.Cache.HitRatio)
	assert.Equal(t, float64(42), snap.Performance.TransactionsPerSecond)
	assert.Empty(t, snap.Performance.TableStats)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	agg := NewAggregator(100)
	agg.ApplySample(Sample{
		IndexStats: []types.IndexStat{{Table: "orders", Index: "orders_pkey"}},
	})
	agg.SetRecommendations([]types.IndexRecommendation{
		{Kind: types.DropUnused, Table: "orders", Index: "idx_old"},
	})

	snap := agg.Snapshot()
	snap.Performance.IndexStats[0].Table = "mutated"
	snap.Recommendations[0].Table = "mutated"

	fresh := agg.Snapshot()
	assert.Equal(t, "orders", fresh.Performance.IndexStats[0].Table)
	assert.Equal(t, "orders", fresh.Recommendations[0].Table)
}
