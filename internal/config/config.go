package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Gateway  GatewayConfig
	Parser   ParserConfig
	Receipt  ReceiptConfig
	Dispatch DispatchConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Host string
	Port int
}

// DatabaseConfig holds database-related configuration.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	MaxConnections  int
	MinConnections  int
	MaxConnLifetime int // seconds
}

// RedisConfig holds configuration for the volatile presence cache and the
// draft session store.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// LoggerConfig holds logger-related configuration.
type LoggerConfig struct {
	Level  string
	Format string // "json" or "console"
}

// AuthConfig holds webhook authentication configuration.
type AuthConfig struct {
	APIKey string
}

// GatewayConfig holds the outbound messaging gateway configuration.
type GatewayConfig struct {
	BaseURL string
	Token   string
	Timeout time.Duration
}

// ParserConfig holds the order-intent parser configuration.
type ParserConfig struct {
	BaseURL string
	Timeout time.Duration
}

// ReceiptConfig holds the receipt reader configuration.
type ReceiptConfig struct {
	BaseURL string
	Timeout time.Duration
}

// DispatchConfig holds the dispatch, retry and auto-cancel tuning knobs.
type DispatchConfig struct {
	// OfferTimeout is how long a courier holds first refusal on an order.
	OfferTimeout time.Duration
	// RetryInterval is the tick of the offer retry scheduler.
	RetryInterval time.Duration
	// RetryBatch bounds how many stale-offer orders one retry tick
	// re-dispatches.
	RetryBatch int
	// AutoCancelInterval is the tick of the stale-order sweeper.
	AutoCancelInterval time.Duration
	// AutoCancelAge is how old an unconfirmed/undispatched order may get
	// before it is cancelled.
	AutoCancelAge time.Duration
	// AutoCancelBatch bounds how many stale orders one sweep processes.
	AutoCancelBatch int
	// SessionTTL is the draft session expiry.
	SessionTTL time.Duration
	// NotifyDedupTTL is the expiry of one-shot customer notification flags.
	NotifyDedupTTL time.Duration
	// Shift windows as hours of local wall-clock time: shift 1 runs
	// [Shift1Start, Shift1End), shift 2 runs [Shift1End, Shift2End).
	Shift1Start int
	Shift1End   int
	Shift2End   int
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
			Port: getEnvAsInt("SERVER_PORT", 8080),
		},
		Database: DatabaseConfig{
			Host:            getEnv("DB_HOST", "localhost"),
			Port:            getEnvAsInt("DB_PORT", 5432),
			User:            getEnv("DB_USER", "postgres"),
			Password:        getEnv("DB_PASSWORD", ""),
			Database:        getEnv("DB_NAME", "antarin"),
			MaxConnections:  getEnvAsInt("DB_MAX_CONNECTIONS", 25),
			MinConnections:  getEnvAsInt("DB_MIN_CONNECTIONS", 5),
			MaxConnLifetime: getEnvAsInt("DB_MAX_CONN_LIFETIME", 300),
		},
		Redis: RedisConfig{
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Logger: LoggerConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Auth: AuthConfig{
			APIKey: getEnv("API_KEY", ""),
		},
		Gateway: GatewayConfig{
			BaseURL: getEnv("GATEWAY_BASE_URL", ""),
			Token:   getEnv("GATEWAY_TOKEN", ""),
			Timeout: getEnvAsDuration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Parser: ParserConfig{
			BaseURL: getEnv("PARSER_BASE_URL", ""),
			Timeout: getEnvAsDuration("PARSER_TIMEOUT", 15*time.Second),
		},
		Receipt: ReceiptConfig{
			BaseURL: getEnv("RECEIPT_BASE_URL", ""),
			Timeout: getEnvAsDuration("RECEIPT_TIMEOUT", 20*time.Second),
		},
		Dispatch: DispatchConfig{
			OfferTimeout:       getEnvAsDuration("OFFER_TIMEOUT", 3*time.Minute),
			RetryInterval:      getEnvAsDuration("RETRY_INTERVAL", 1*time.Minute),
			RetryBatch:         getEnvAsInt("RETRY_BATCH", 100),
			AutoCancelInterval: getEnvAsDuration("AUTOCANCEL_INTERVAL", 30*time.Minute),
			AutoCancelAge:      getEnvAsDuration("AUTOCANCEL_AGE", 20*time.Hour),
			AutoCancelBatch:    getEnvAsInt("AUTOCANCEL_BATCH", 100),
			SessionTTL:         getEnvAsDuration("SESSION_TTL", 1*time.Hour),
			NotifyDedupTTL:     getEnvAsDuration("NOTIFY_DEDUP_TTL", 48*time.Hour),
			Shift1Start:        getEnvAsInt("SHIFT1_START_HOUR", 6),
			Shift1End:          getEnvAsInt("SHIFT1_END_HOUR", 14),
			Shift2End:          getEnvAsInt("SHIFT2_END_HOUR", 22),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("database host is required")
	}

	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("invalid database port: %d", c.Database.Port)
	}

	if c.Database.User == "" {
		return fmt.Errorf("database user is required")
	}

	if c.Database.Database == "" {
		return fmt.Errorf("database name is required")
	}

	if c.Database.MaxConnections < 1 {
		return fmt.Errorf("database max connections must be at least 1")
	}

	if c.Database.MinConnections < 1 {
		return fmt.Errorf("database min connections must be at least 1")
	}

	if c.Database.MinConnections > c.Database.MaxConnections {
		return fmt.Errorf("database min connections cannot exceed max connections")
	}

	if c.Redis.Address == "" {
		return fmt.Errorf("redis address is required")
	}

	if c.Auth.APIKey == "" {
		return fmt.Errorf("API key is required")
	}

	if c.Dispatch.OfferTimeout <= 0 {
		return fmt.Errorf("offer timeout must be positive")
	}

	if c.Dispatch.RetryInterval <= 0 {
		return fmt.Errorf("retry interval must be positive")
	}

	if c.Dispatch.RetryBatch < 1 {
		return fmt.Errorf("retry batch must be at least 1")
	}

	if c.Dispatch.AutoCancelBatch < 1 {
		return fmt.Errorf("auto-cancel batch must be at least 1")
	}

	if !(0 <= c.Dispatch.Shift1Start &&
		c.Dispatch.Shift1Start < c.Dispatch.Shift1End &&
		c.Dispatch.Shift1End < c.Dispatch.Shift2End &&
		c.Dispatch.Shift2End <= 24) {
		return fmt.Errorf("shift windows must satisfy 0 <= start < shift1 end < shift2 end <= 24")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLogLevels[c.Logger.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logger.Level)
	}

	if c.Logger.Format != "json" && c.Logger.Format != "console" {
		return fmt.Errorf("invalid log format: %s (must be json or console)", c.Logger.Format)
	}

	return nil
}

// ConnectionString returns the PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// Address returns the server address.
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value.
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsDuration retrieves an environment variable as a duration or returns a default value.
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
