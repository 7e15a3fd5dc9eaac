// Package config provides configuration management for the feature tracking
// service.
//
// Configuration is loaded from:
// 1. config.yaml file (optional)
// 2. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
// 3. Default values
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Dedup        DedupConfig        `mapstructure:"dedup"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Notification NotificationConfig `mapstructure:"notification"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig contains PostgreSQL connection settings.
// A single pgxpool is shared by the stores and River.
type DatabaseConfig struct {
	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// Dedup backend identifiers.
const (
	DedupBackendPostgres = "postgres"
	DedupBackendRedis    = "redis"
)

// DedupConfig contains deduplication store settings.
type DedupConfig struct {
	// Backend selects the store implementation: postgres or redis.
	Backend string `mapstructure:"backend"`

	// TTL is how long a processed operation id is remembered.
	TTL time.Duration `mapstructure:"ttl"`

	// ResultGrace bounds how long a second caller waits for the first
	// claimant's result before re-executing the guarded work.
	ResultGrace time.Duration `mapstructure:"result_grace"`

	// PollInterval is the wait-and-poll cadence during ResultGrace.
	PollInterval time.Duration `mapstructure:"poll_interval"`

	// SweepInterval is the cadence of the expired-record sweep job.
	SweepInterval time.Duration `mapstructure:"sweep_interval"`

	// RedisAddr is the redis host:port, used when Backend is redis.
	RedisAddr string `mapstructure:"redis_addr"`

	// RedisDB is the redis logical database number.
	RedisDB int `mapstructure:"redis_db"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize int `mapstructure:"general_pool_size"`
	ReplayPoolSize  int `mapstructure:"replay_pool_size"`
}

// NotificationConfig contains notification retention settings.
type NotificationConfig struct {
	Retention time.Duration `mapstructure:"retention"`
}

// Load reads configuration from file and environment variables.
// Environment variables use standard names without a prefix; nested keys map
// dots to underscores (dedup.result_grace → DEDUP_RESULT_GRACE).
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/featuretrack")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
		// Config file is optional, use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	switch c.Dedup.Backend {
	case DedupBackendPostgres, DedupBackendRedis:
	default:
		return fmt.Errorf("dedup.backend must be %q or %q, got %q",
			DedupBackendPostgres, DedupBackendRedis, c.Dedup.Backend)
	}
	if c.Dedup.Backend == DedupBackendRedis && c.Dedup.RedisAddr == "" {
		return fmt.Errorf("dedup.redis_addr is required when dedup.backend is redis")
	}
	if c.Dedup.TTL <= 0 {
		return fmt.Errorf("dedup.ttl must be positive")
	}
	if c.Dedup.ResultGrace <= 0 {
		return fmt.Errorf("dedup.result_grace must be positive")
	}
	if c.Dedup.PollInterval <= 0 || c.Dedup.PollInterval > c.Dedup.ResultGrace {
		return fmt.Errorf("dedup.poll_interval must be positive and not exceed dedup.result_grace")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database (shared pool)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "featuretrack")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "featuretrack")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Dedup
	v.SetDefault("dedup.backend", DedupBackendPostgres)
	v.SetDefault("dedup.ttl", "24h")
	v.SetDefault("dedup.result_grace", "30s")
	v.SetDefault("dedup.poll_interval", "250ms")
	v.SetDefault("dedup.sweep_interval", "1h")
	v.SetDefault("dedup.redis_db", 0)

	// Worker pools
	v.SetDefault("worker.general_pool_size", 100)
	v.SetDefault("worker.replay_pool_size", 20)

	// Notification retention
	v.SetDefault("notification.retention", "2160h") // 90 days
}
