package config

import "time"

// Default value constants
const (
	DefaultServerPort            = 8080
	DefaultServerReadTimeout     = 15 * time.Second
	DefaultServerWriteTimeout    = 30 * time.Second
	DefaultServerShutdownTimeout = 20 * time.Second
	DefaultServerMaxBodySize     = 1 << 20

	DefaultPostgresPort            = 5432
	DefaultPostgresSSLMode         = "disable"
	DefaultPostgresMaxOpenConns    = 25
	DefaultPostgresMaxIdleConns    = 10
	DefaultPostgresConnMaxLifetime = 30 * time.Minute
	DefaultPostgresConnMaxIdleTime = 5 * time.Minute

	DefaultRedisPoolSize     = 10
	DefaultRedisDialTimeout  = 5 * time.Second
	DefaultRedisReadTimeout  = 3 * time.Second
	DefaultRedisWriteTimeout = 3 * time.Second
	DefaultRedisKeyPrefix    = "tricycle"

	DefaultKafkaGroupID      = "franchise-notifier"
	DefaultKafkaClientID     = "toda-franchise"
	DefaultKafkaBatchTimeout = 10 * time.Millisecond
	DefaultKafkaMaxAttempts  = 3

	DefaultPrometheusNamespace = "tricycle"
	DefaultPrometheusPath      = "/metrics"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultEnableRenewBeforeExpiryDays = 30
	DefaultEnableRenewAfterExpiryDays  = 15
	DefaultExpiryAfterApprovalDays     = 365
	DefaultTimezone                    = "Asia/Manila"

	DefaultLockTTL        = 10 * time.Second
	DefaultLockRetryDelay = 100 * time.Millisecond
	DefaultLockRetryCount = 30
)

// ApplyDefaults fills every zero-valued field with its default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultServerReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultServerWriteTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultServerShutdownTimeout
	}
	if cfg.Server.MaxBodySize == 0 {
		cfg.Server.MaxBodySize = DefaultServerMaxBodySize
	}

	pg := &cfg.Database.Postgres
	if pg.Port == 0 {
		pg.Port = DefaultPostgresPort
	}
	if pg.SSLMode == "" {
		pg.SSLMode = DefaultPostgresSSLMode
	}
	if pg.MaxOpenConns == 0 {
		pg.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if pg.MaxIdleConns == 0 {
		pg.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if pg.ConnMaxLifetime == 0 {
		pg.ConnMaxLifetime = DefaultPostgresConnMaxLifetime
	}
	if pg.ConnMaxIdleTime == 0 {
		pg.ConnMaxIdleTime = DefaultPostgresConnMaxIdleTime
	}

	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = DefaultRedisPoolSize
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = DefaultRedisDialTimeout
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = DefaultRedisReadTimeout
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = DefaultRedisWriteTimeout
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}

	k := &cfg.Messaging.Kafka
	if k.GroupID == "" {
		k.GroupID = DefaultKafkaGroupID
	}
	if k.ClientID == "" {
		k.ClientID = DefaultKafkaClientID
	}
	if k.BatchTimeout == 0 {
		k.BatchTimeout = DefaultKafkaBatchTimeout
	}
	if k.MaxAttempts == 0 {
		k.MaxAttempts = DefaultKafkaMaxAttempts
	}

	if cfg.Monitoring.Prometheus.Namespace == "" {
		cfg.Monitoring.Prometheus.Namespace = DefaultPrometheusNamespace
	}
	if cfg.Monitoring.Prometheus.Path == "" {
		cfg.Monitoring.Prometheus.Path = DefaultPrometheusPath
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLogLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLogFormat
	}

	f := &cfg.Franchise
	if f.EnableRenewBeforeExpiryDays == 0 {
		f.EnableRenewBeforeExpiryDays = DefaultEnableRenewBeforeExpiryDays
	}
	if f.EnableRenewAfterExpiryDays == 0 {
		f.EnableRenewAfterExpiryDays = DefaultEnableRenewAfterExpiryDays
	}
	if f.ExpiryAfterApprovalDays == 0 {
		f.ExpiryAfterApprovalDays = DefaultExpiryAfterApprovalDays
	}
	if f.Timezone == "" {
		f.Timezone = DefaultTimezone
	}

	if cfg.Lock.TTL == 0 {
		cfg.Lock.TTL = DefaultLockTTL
	}
	if cfg.Lock.RetryDelay == 0 {
		cfg.Lock.RetryDelay = DefaultLockRetryDelay
	}
	if cfg.Lock.RetryCount == 0 {
		cfg.Lock.RetryCount = DefaultLockRetryCount
	}
}
