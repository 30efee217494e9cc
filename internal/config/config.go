// Package config defines the service configuration tree and its loading from
// YAML files and TRICYCLE_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/toda-franchise/internal/infrastructure/monitoring/logging"
)

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	// AllowedOrigins are the browser origins admitted by CORS.
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type PostgresConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	LockTimeout      time.Duration `mapstructure:"lock_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	GroupID      string        `mapstructure:"group_id"`
	ClientID     string        `mapstructure:"client_id"`
	BatchTimeout time.Duration `mapstructure:"batch_timeout"`
	MaxAttempts  int           `mapstructure:"max_attempts"`
}

type MessagingConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type PrometheusConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Namespace string `mapstructure:"namespace"`
	Path      string `mapstructure:"path"`
}

type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// FranchiseConfig holds the lifecycle constants. All day counts are calendar
// days evaluated in Timezone.
type FranchiseConfig struct {
	EnableRenewBeforeExpiryDays int    `mapstructure:"enable_renew_before_expiry_days"`
	EnableRenewAfterExpiryDays  int    `mapstructure:"enable_renew_after_expiry_days"`
	ExpiryAfterApprovalDays     int    `mapstructure:"expiry_after_approval_days"`
	Timezone                    string `mapstructure:"timezone"`
}

// LockConfig controls the distributed per-record transition mutex.
type LockConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	TTL        time.Duration `mapstructure:"ttl"`
	RetryDelay time.Duration `mapstructure:"retry_delay"`
	RetryCount int           `mapstructure:"retry_count"`
}

type Config struct {
	Server     ServerConfig      `mapstructure:"server"`
	Database   DatabaseConfig    `mapstructure:"database"`
	Redis      RedisConfig       `mapstructure:"redis"`
	Messaging  MessagingConfig   `mapstructure:"messaging"`
	Monitoring MonitoringConfig  `mapstructure:"monitoring"`
	Logging    logging.LogConfig `mapstructure:"logging"`
	Franchise  FranchiseConfig   `mapstructure:"franchise"`
	Lock       LockConfig        `mapstructure:"lock"`
}

// Validate checks the configuration after defaults have been applied.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d out of range", c.Server.Port)
	}
	if strings.TrimSpace(c.Database.Postgres.Host) == "" {
		return fmt.Errorf("config: database.postgres.host is required")
	}
	if strings.TrimSpace(c.Database.Postgres.DBName) == "" {
		return fmt.Errorf("config: database.postgres.db_name is required")
	}
	if c.Redis.Enabled && strings.TrimSpace(c.Redis.Addr) == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Lock.Enabled && !c.Redis.Enabled {
		return fmt.Errorf("config: lock.enabled requires redis.enabled")
	}
	if c.Messaging.Kafka.Enabled && len(c.Messaging.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: messaging.kafka.brokers is required when kafka is enabled")
	}
	return c.Franchise.Validate()
}

// Validate checks that every lifecycle constant is positive and the zone loads.
func (f FranchiseConfig) Validate() error {
	if f.EnableRenewBeforeExpiryDays <= 0 {
		return fmt.Errorf("config: franchise.enable_renew_before_expiry_days must be positive")
	}
	if f.EnableRenewAfterExpiryDays <= 0 {
		return fmt.Errorf("config: franchise.enable_renew_after_expiry_days must be positive")
	}
	if f.ExpiryAfterApprovalDays <= 0 {
		return fmt.Errorf("config: franchise.expiry_after_approval_days must be positive")
	}
	if _, err := time.LoadLocation(f.Timezone); err != nil {
		return fmt.Errorf("config: franchise.timezone %q: %w", f.Timezone, err)
	}
	return nil
}

// Addr returns the host:port the HTTP server listens on.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}
