package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseConfigDefaults(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Database: "app",
		User:     "app",
	}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5432, cfg.Port)
	assert.Equal(t, int32(20), cfg.MaxConnections)
	assert.Equal(t, int32(2), cfg.MinConnections)
	assert.Equal(t, 10*time.Second, cfg.AcquireTimeout)
	assert.Equal(t, 30*time.Second, cfg.StatementTimeout)
}

func TestDatabaseConfigMinExceedsMax(t *testing.T) {
	cfg := DatabaseConfig{
		Host:           "localhost",
		Database:       "app",
		User:           "app",
		MinConnections: 10,
		MaxConnections: 5,
	}

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "min_connections")
}

func TestDatabaseConfigMissingFields(t *testing.T) {
	cfg := DatabaseConfig{Port: 5432}
	require.Error(t, cfg.Validate())
}

func TestOptimizerConfigDefaults(t *testing.T) {
	cfg := OptimizerConfig{}
	require.NoError(t, cfg.Validate())

	assert.Equal(t, time.Second, cfg.SlowQueryThreshold)
	assert.Equal(t, 60*time.Second, cfg.MetricsInterval)
	assert.Equal(t, 5*cfg.MetricsInterval, cfg.IndexAnalysisInterval)
	assert.Equal(t, int64(1000), cfg.SeqScanThreshold)
	assert.Equal(t, int64(10), cfg.SeqToIdxRatio)
	assert.Equal(t, 100, cfg.SlowQueryLogSize)
}

func TestOptimizerConfigAnalysisIntervalTracksMetricsInterval(t *testing.T) {
	cfg := OptimizerConfig{MetricsInterval: 10 * time.Second}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 50*time.Second, cfg.IndexAnalysisInterval)
}

func TestLogConfigInvalidLevel(t *testing.T) {
	cfg := LogConfig{Level: "verbose"}
	require.Error(t, cfg.Validate())
}

func TestLoadConfig(t *testing.T) {
	content := `
database:
  host: db.internal
  port: 5433
  database: app
  user: monitor
  password: secret
  max_connections: 15
optimizer:
  slow_query_threshold: 500ms
  metrics_interval: 30s
  enable_slow_query_logging: true
log:
  level: debug
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 5433, cfg.Database.Port)
	assert.Equal(t, int32(15), cfg.Database.MaxConnections)
	assert.Equal(t, 500*time.Millisecond, cfg.Optimizer.SlowQueryThreshold)
	assert.Equal(t, 30*time.Second, cfg.Optimizer.MetricsInterval)
	assert.True(t, cfg.Optimizer.EnableSlowQueryLogging)
	assert.Equal(t, "debug", cfg.Log.Level)

	// Defaults fill in everything the file omits.
	assert.Equal(t, int32(2), cfg.Database.MinConnections)
	assert.Equal(t, 150*time.Second, cfg.Optimizer.IndexAnalysisInterval)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig("/nonexistent/config.yaml")
	require.Error(t, err)
}

func TestDSN(t *testing.T) {
	cfg := DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		Database: "app",
		User:     "monitor",
		Password: "secret",
		SSLMode:  "disable",
	}
	assert.Equal(t,
		"host=localhost port=5432 dbname=app user=monitor password=secret sslmode=disable",
		cfg.DSN())
}
