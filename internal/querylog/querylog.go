package querylog

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"dbpulse/internal/pool"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	createTableQuery = `
		CREATE TABLE IF NOT EXISTS query_performance_log (
			id            UUID PRIMARY KEY,
			fingerprint   TEXT NOT NULL,
			query_text    TEXT NOT NULL,
			duration_ms   BIGINT NOT NULL,
			rows_affected BIGINT NOT NULL,
			plan          TEXT,
			captured_at   TIMESTAMPTZ NOT NULL
		)`

	insertQuery = `
		INSERT INTO query_performance_log
			(id, fingerprint, query_text, duration_ms, rows_affected, plan, captured_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	maxLoggedQueryLen = 500
)

// Acquirer provides scoped access to a leased connection
type Acquirer interface {
	WithConn(ctx context.Context, fn func(pool.Querier) error) error
}

// Writer appends query outcomes to the diagnostic log table. The table is
// write-only from this subsystem's perspective; it exists for offline
// analysis and is never read back.
type Writer struct {
	db     Acquirer
	logger *zap.Logger
}

// New creates a diagnostic log writer
func New(db Acquirer, logger *zap.Logger) *Writer {
	return &Writer{db: db, logger: logger}
}

// EnsureSchema creates the log table if it does not exist
func (w *Writer) EnsureSchema(ctx context.Context) error {
	return w.db.WithConn(ctx, func(q pool.Querier) error {
		if _, err := q.Exec(ctx, createTableQuery); err != nil {
			return fmt.Errorf("failed to create query log table: %w", err)
		}
		return nil
	})
}

// Record appends one entry. Best-effort: failures are logged, never returned.
func (w *Writer) Record(ctx context.Context, query string, duration time.Duration, rows int64, plan string) {
	err := w.db.WithConn(ctx, func(q pool.Querier) error {
		_, err := q.Exec(ctx, insertQuery,
			uuid.NewString(),
			Fingerprint(query),
			truncate(query, maxLoggedQueryLen),
			duration.Milliseconds(),
			rows,
			plan,
			time.Now(),
		)
		return err
	})
	if err != nil {
		w.logger.Warn("Failed to append query log entry", zap.Error(err))
	}
}

// Fingerprint returns a stable hash of the normalized query text, so the
// same statement hashes identically regardless of whitespace and casing.
func Fingerprint(query string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(query)), " ")
	return strconv.FormatUint(xxhash.Sum64String(normalized), 16)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
