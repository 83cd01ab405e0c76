package sampler

// Read-only statistics battery issued on every sampling tick. Static,
// reviewed templates only; thresholds never get interpolated into SQL.
const (
	databaseStatsQuery = `
		SELECT COALESCE(SUM(blks_hit), 0),
		       COALESCE(SUM(blks_read), 0),
		       COALESCE(SUM(xact_commit), 0),
		       COALESCE(SUM(xact_rollback), 0)
		FROM pg_stat_database
		WHERE datname = current_database()`

	indexStatsQuery = `
		SELECT s.relname,
		       s.indexrelname,
		       s.idx_scan,
		       s.idx_tup_read,
		       s.idx_tup_fetch,
		       i.indisunique,
		       i.indisprimary
		FROM pg_stat_user_indexes s
		JOIN pg_index i ON s.indexrelid = i.indexrelid
		ORDER BY s.relname, s.indexrelname`

	tableStatsQuery = `
		SELECT relname,
		       seq_scan,
		       COALESCE(idx_scan, 0),
		       n_live_tup,
		       n_dead_tup
		FROM pg_stat_user_tables
		ORDER BY relname`
)
