package advisor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"dbpulse/internal/types"
)

func TestUnusedIndexesSkipsUniqueAndPrimary(t *testing.T) {
	stats := []types.IndexStat{
		{Table: "orders", Index: "orders_pkey", Scans: 0, Primary: true},
		{Table: "orders", Index: "orders_email_key", Scans: 0, Unique: true},
		{Table: "orders", Index: "idx_orders_status", Scans: 0},
		{Table: "orders", Index: "idx_orders_created", Scans: 42},
	}

	recs := UnusedIndexes(stats)
	require.Len(t, recs, 1)
	assert.Equal(t, types.DropUnused, recs[0].Kind)
	assert.Equal(t, "idx_orders_status", recs[0].Index)
	assert.NotEmpty(t, recs[0].Rationale)
	assert.Contains(t, recs[0].SuggestedAction, "DROP INDEX")
}

func TestUnusedIndexesNeverDropsConstraintIndexes(t *testing.T) {
	// Uniqueness-enforcing indexes change semantics, not just performance.
	var stats []types.IndexStat
	for i := 0; i < 20; i++ {
		stats = append(stats,
			types.IndexStat{Table: "t", Index: "u", Scans: 0, Unique: true},
			types.IndexStat{Table: "t", Index: "p", Scans: 0, Primary: true},
		)
	}

	assert.Empty(t, UnusedIndexes(stats))
}

func TestMissingIndexesThresholds(t *testing.T) {
	tests := []struct {
		name string
		stat types.TableStat
		want bool
	}{
		{
			name: "heavy seq scans, no index usage",
			stat: types.TableStat{Table: "logs", SeqScans: 5000, IdxScans: 0},
			want: true,
		},
		{
			name: "below absolute threshold",
			stat: types.TableStat{Table: "small", SeqScans: 500, IdxScans: 0},
			want: false,
		},
		{
			name: "seq scans dominated by index scans",
			stat: types.TableStat{Table: "orders", SeqScans: 2000, IdxScans: 1000},
			want: false,
		},
		{
			name: "exactly at ratio boundary",
			stat: types.TableStat{Table: "events", SeqScans: 10000, IdxScans: 1000},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs := MissingIndexes([]types.TableStat{tt.stat}, 1000, 10)
			if tt.want {
				require.Len(t, recs, 1)
				assert.Equal(t, types.AddMissing, recs[0].Kind)
				assert.Equal(t, tt.stat.Table, recs[0].Table)
			} else {
				assert.Empty(t, recs)
			}
		})
	}
}
