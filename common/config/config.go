// Package config provides centralized configuration management for all admetry services.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config is the master configuration struct containing all service configs
// and shared infrastructure. Every service loads the same config.yaml and
// reads its own section.
type Config struct {
	// Service-specific configurations
	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Collector CollectorConfig `mapstructure:"collector"`
	Reporter  ReporterConfig  `mapstructure:"reporter"`

	// Shared infrastructure configurations
	NATS     NATSConfig     `mapstructure:"nats"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// GatewayConfig holds gateway service configuration.
type GatewayConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	Ingestion IngestionConfig `mapstructure:"ingestion"`
}

// IngestionConfig holds ingestion pipeline configuration.
type IngestionConfig struct {
	MaxEventSize      int           `mapstructure:"max_event_size"`
	PublishTimeout    time.Duration `mapstructure:"publish_timeout"`
	RateLimitEnabled  bool          `mapstructure:"rate_limit_enabled"`
	RateLimitRequests int           `mapstructure:"rate_limit_requests"`
	RateLimitWindow   time.Duration `mapstructure:"rate_limit_window"`
}

// CollectorConfig holds collector service configuration.
type CollectorConfig struct {
	Server ServerConfig `mapstructure:"server"`

	// Sources lists the event sources this collector instance consumes.
	Sources []string `mapstructure:"sources"`

	// AckWait is the redelivery window for unacknowledged messages.
	AckWait time.Duration `mapstructure:"ack_wait"`

	// MaxDeliver caps delivery attempts before a message is quarantined.
	MaxDeliver int `mapstructure:"max_deliver"`

	// MaxAckPending bounds in-flight unacknowledged messages per consumer.
	MaxAckPending int `mapstructure:"max_ack_pending"`

	// NakDelay is the backoff applied before a failed message is redelivered.
	NakDelay time.Duration `mapstructure:"nak_delay"`
}

// ReporterConfig holds reporter service configuration.
type ReporterConfig struct {
	Server ServerConfig `mapstructure:"server"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

// DatabaseConfig holds database configuration.
type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// PostgresConfig holds PostgreSQL connection settings.
type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int    `mapstructure:"max_conns"`
}

// DSN returns a connection string suitable for pgx and migrate.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.Database, p.SSLMode)
}

// NATSConfig holds NATS message broker configuration.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// RedisConfig holds Redis configuration.
type RedisConfig struct {
	URL        string `mapstructure:"url"`
	Enabled    bool   `mapstructure:"enabled"`
	MaxRetries int    `mapstructure:"max_retries"`
	PoolSize   int    `mapstructure:"pool_size"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from $ADMETRY_CONFIG_DIR/config.yaml and
// environment variables. Environment variables override file values using
// underscore-separated keys, e.g. NATS_URL or GATEWAY_SERVER_PORT.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	configDir := os.Getenv("ADMETRY_CONFIG_DIR")
	if configDir == "" {
		configDir = "/etc/admetry"
	}

	v.SetConfigFile(fmt.Sprintf("%s/config.yaml", configDir))
	v.SetConfigType("yaml")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("reading config: %w", err)
			}
		}
		// Config file not found - continue with defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Gateway defaults
	v.SetDefault("gateway.server.port", 3000)
	v.SetDefault("gateway.server.read_timeout", "15s")
	v.SetDefault("gateway.server.write_timeout", "15s")
	v.SetDefault("gateway.server.idle_timeout", "60s")
	v.SetDefault("gateway.ingestion.max_event_size", 1048576)
	v.SetDefault("gateway.ingestion.publish_timeout", "5s")
	v.SetDefault("gateway.ingestion.rate_limit_enabled", false)
	v.SetDefault("gateway.ingestion.rate_limit_requests", 10000)
	v.SetDefault("gateway.ingestion.rate_limit_window", "1m")

	// Collector defaults
	v.SetDefault("collector.server.port", 3010)
	v.SetDefault("collector.server.read_timeout", "15s")
	v.SetDefault("collector.server.write_timeout", "15s")
	v.SetDefault("collector.server.idle_timeout", "60s")
	v.SetDefault("collector.sources", []string{"facebook", "tiktok"})
	v.SetDefault("collector.ack_wait", "30s")
	v.SetDefault("collector.max_deliver", 5)
	v.SetDefault("collector.max_ack_pending", 256)
	v.SetDefault("collector.nak_delay", "5s")

	// Reporter defaults
	v.SetDefault("reporter.server.port", 3020)
	v.SetDefault("reporter.server.read_timeout", "15s")
	v.SetDefault("reporter.server.write_timeout", "30s")
	v.SetDefault("reporter.server.idle_timeout", "60s")

	// NATS defaults
	v.SetDefault("nats.url", "nats://nats:4222")
	v.SetDefault("nats.max_reconnects", -1)
	v.SetDefault("nats.reconnect_wait", "2s")
	v.SetDefault("nats.timeout", "5s")

	// Database defaults
	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "admetry")
	v.SetDefault("database.postgres.user", "admetry")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_conns", 10)

	// Redis defaults
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.pool_size", 10)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
