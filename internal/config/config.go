package config

import (
	"fmt"
	"time"

	"dbpulse/internal/validator"

	"github.com/spf13/viper"
)

// Config represents the complete dbpulse configuration
type Config struct {
	Database  DatabaseConfig  `mapstructure:"database"`
	Optimizer OptimizerConfig `mapstructure:"optimizer"`
	Log       LogConfig       `mapstructure:"log"`
}

// DatabaseConfig represents connection and pool configuration
type DatabaseConfig struct {
	Host     string `mapstructure:"host" validate:"required"`
	Port     int    `mapstructure:"port" validate:"min=1,max=65535"`
	Database string `mapstructure:"database" validate:"required"`
	User     string `mapstructure:"user" validate:"required"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"ssl_mode"`

	// Pool sizing
	MaxConnections int32 `mapstructure:"max_connections"`
	MinConnections int32 `mapstructure:"min_connections"`

	// Timeouts
	IdleTimeout      time.Duration `mapstructure:"idle_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
	AcquireTimeout   time.Duration `mapstructure:"acquire_timeout"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	QueryTimeout     time.Duration `mapstructure:"query_timeout"`
}

// OptimizerConfig represents monitoring and analysis configuration
type OptimizerConfig struct {
	SlowQueryThreshold    time.Duration `mapstructure:"slow_query_threshold"`
	MetricsInterval       time.Duration `mapstructure:"metrics_interval"`
	HealthCheckInterval   time.Duration `mapstructure:"health_check_interval"`
	IndexAnalysisInterval time.Duration `mapstructure:"index_analysis_interval"`

	// Advisor thresholds
	SeqScanThreshold int64 `mapstructure:"seq_scan_threshold"`
	SeqToIdxRatio    int64 `mapstructure:"seq_to_idx_ratio"`

	// Bounded evidence collections
	SlowQueryLogSize int `mapstructure:"slow_query_log_size"`

	// Feature flags
	EnableSlowQueryLogging  bool `mapstructure:"enable_slow_query_logging"`
	EnableIndexAnalysis     bool `mapstructure:"enable_index_analysis"`
	EnableQueryPlanAnalysis bool `mapstructure:"enable_query_plan_analysis"`
	EnableQueryLog          bool `mapstructure:"enable_query_log"`
}

// DSN returns the PostgreSQL connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.Host, c.Port, c.Database, c.User, c.Password, c.SSLMode)
}

// Validate validates database configuration and applies defaults
func (c *DatabaseConfig) Validate() error {
	// Set default values
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	if c.MaxConnections == 0 {
		c.MaxConnections = 20
	}
	if c.MinConnections == 0 {
		c.MinConnections = 2
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 30 * time.Second
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 2 * time.Second
	}
	if c.AcquireTimeout == 0 {
		c.AcquireTimeout = 10 * time.Second
	}
	if c.StatementTimeout == 0 {
		c.StatementTimeout = 30 * time.Second
	}
	if c.LockTimeout == 0 {
		c.LockTimeout = 10 * time.Second
	}
	if c.QueryTimeout == 0 {
		c.QueryTimeout = 30 * time.Second
	}

	if err := validator.New().Struct(c); err != nil {
		return err
	}

	if c.MinConnections > c.MaxConnections {
		return fmt.Errorf("min_connections (%d) cannot exceed max_connections (%d)",
			c.MinConnections, c.MaxConnections)
	}
	if c.IdleTimeout < 0 || c.ConnectTimeout < 0 || c.AcquireTimeout < 0 ||
		c.StatementTimeout < 0 || c.LockTimeout < 0 || c.QueryTimeout < 0 {
		return fmt.Errorf("timeouts must be positive")
	}

	return nil
}

// Validate validates optimizer configuration and applies defaults
func (c *OptimizerConfig) Validate() error {
	if c.SlowQueryThreshold == 0 {
		c.SlowQueryThreshold = time.Second
	}
	if c.MetricsInterval == 0 {
		c.MetricsInterval = 60 * time.Second
	}
	if c.HealthCheckInterval == 0 {
		c.HealthCheckInterval = 30 * time.Second
	}
	if c.IndexAnalysisInterval == 0 {
		c.IndexAnalysisInterval = 5 * c.MetricsInterval
	}
	if c.SeqScanThreshold == 0 {
		c.SeqScanThreshold = 1000
	}
	if c.SeqToIdxRatio == 0 {
		c.SeqToIdxRatio = 10
	}
	if c.SlowQueryLogSize == 0 {
		c.SlowQueryLogSize = 100
	}

	if c.SlowQueryThreshold < 0 || c.MetricsInterval < 0 ||
		c.HealthCheckInterval < 0 || c.IndexAnalysisInterval < 0 {
		return fmt.Errorf("intervals must be positive")
	}
	if c.SlowQueryLogSize < 0 {
		return fmt.Errorf("slow_query_log_size must be positive")
	}

	return nil
}

// LoadConfig loads configuration from file
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Validate configuration
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate validates the complete configuration
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("invalid database config: %w", err)
	}
	if err := c.Optimizer.Validate(); err != nil {
		return fmt.Errorf("invalid optimizer config: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("invalid log config: %w", err)
	}
	return nil
}
