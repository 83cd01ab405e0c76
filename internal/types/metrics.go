package types

import "time"

// ConnectionStats represents connection pool statistics
type ConnectionStats struct {
	Total   int32 `json:"total"`
	Active  int32 `json:"active"`
	Idle    int32 `json:"idle"`
	Waiting int32 `json:"waiting"`
}

// QueryStats represents cumulative query statistics
type QueryStats struct {
	Total           int64         `json:"total"`
	Slow            int64         `json:"slow"`
	Errors          int64         `json:"errors"`
	AvgResponseTime time.Duration `json:"avg_response_time"`
}

// CacheStats represents database buffer cache statistics
type CacheStats struct {
	HitRatio float64 `json:"hit_ratio"` // percent, 0 when no reads observed
}

// IndexStat represents per-index usage statistics sampled from the database
type IndexStat struct {
	Table         string `json:"table"`
	Index         string `json:"index"`
	Scans         int64  `json:"scans"`
	TuplesRead    int64  `json:"tuples_read"`
	TuplesFetched int64  `json:"tuples_fetched"`
	Unique        bool   `json:"unique"`
	Primary       bool   `json:"primary"`
}

// TableStat represents per-table access statistics sampled from the database
type TableStat struct {
	Table      string `json:"table"`
	SeqScans   int64  `json:"seq_scans"`
	IdxScans   int64  `json:"idx_scans"`
	LiveTuples int64  `json:"live_tuples"`
	DeadTuples int64  `json:"dead_tuples"`
}

// PerformanceStats represents sampled database-wide performance statistics
type PerformanceStats struct {
	TransactionsPerSecond float64     `json:"transactions_per_second"`
	IndexStats            []IndexStat `json:"index_stats"`
	TableStats            []TableStat `json:"table_stats"`
}

// Snapshot represents a point-in-time view of all collected metrics.
// It is a deep copy; callers may mutate it freely.
type Snapshot struct {
	Timestamp       time.Time             `json:"timestamp"`
	Connections     ConnectionStats       `json:"connections"`
	Queries         QueryStats            `json:"queries"`
	Cache           CacheStats            `json:"cache"`
	Performance     PerformanceStats      `json:"performance"`
	Recommendations []IndexRecommendation `json:"recommendations,omitempty"`
}

// SlowQueryRecord represents evidence of a single slow query
type SlowQueryRecord struct {
	Timestamp time.Time     `json:"timestamp"`
	Query     string        `json:"query"` // truncated
	Params    string        `json:"params,omitempty"`
	Duration  time.Duration `json:"duration"`
	Plan      string        `json:"plan,omitempty"`
}

// RecommendationKind classifies an index recommendation
type RecommendationKind string

const (
	DropUnused RecommendationKind = "drop_unused"
	AddMissing RecommendationKind = "add_missing"
)

// IndexRecommendation represents a single advisory finding. Recommendations
// are descriptive only; applying one is an explicit operator action.
type IndexRecommendation struct {
	Kind            RecommendationKind `json:"kind"`
	Table           string             `json:"table"`
	Index           string             `json:"index,omitempty"`
	Rationale       string             `json:"rationale"`
	SuggestedAction string             `json:"suggested_action"`
}

// SessionInfo represents an active database session of interest
type SessionInfo struct {
	PID      int           `json:"pid"`
	State    string        `json:"state,omitempty"`
	Duration time.Duration `json:"duration"`
	Query    string        `json:"query"` // truncated
	// Blocking is set on sessions returned by the lock-wait analysis and
	// names the PID holding the lock.
	Blocking int `json:"blocking,omitempty"`
}
