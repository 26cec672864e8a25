package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	// HTTP Server
	Port string

	// Backend selection
	DataBackend  string
	DatabaseURL  string
	SQLiteDBPath string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Session
	SessionSecret string
	SessionTTL    time.Duration

	// Origin guard
	AllowedOrigins []string
	AllowSameSite  bool

	// Rate limiting
	RateLimitWrite       int
	RateLimitWriteWindow time.Duration
	RateLimitRead        int
	RateLimitReadWindow  time.Duration
	RateLimitFailClosed  bool

	// Logging
	LogLevel  string
	LogFormat string

	// Caching
	CacheTTL  time.Duration
	CacheSize int

	// Worker
	ReportRefreshInterval time.Duration
}

func Load() *Config {
	cfg := &Config{
		Port: getEnv("PORT", "8081"),

		DataBackend:  getEnv("DATA_BACKEND", BackendMemory),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/butce.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "butce"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "monthly_reports"),

		SessionSecret: getEnv("SESSION_SECRET", ""),
		SessionTTL:    getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		AllowedOrigins: getEnvList("ALLOWED_ORIGINS"),
		AllowSameSite:  getEnvBool("ALLOW_SAME_SITE", false),

		RateLimitWrite:       getEnvInt("RATE_LIMIT_WRITE", 30),
		RateLimitWriteWindow: getEnvDuration("RATE_LIMIT_WRITE_WINDOW", time.Minute),
		RateLimitRead:        getEnvInt("RATE_LIMIT_READ", 120),
		RateLimitReadWindow:  getEnvDuration("RATE_LIMIT_READ_WINDOW", time.Minute),
		RateLimitFailClosed:  getEnvBool("RATE_LIMIT_FAIL_CLOSED", false),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		CacheTTL:  getEnvDuration("CACHE_TTL", 2*time.Minute),
		CacheSize: getEnvInt("CACHE_SIZE", 500),

		ReportRefreshInterval: getEnvDuration("REPORT_REFRESH_INTERVAL", 15*time.Minute),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	validBackends := []string{BackendMemory, BackendSQLite, BackendPostgres}
	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	if c.DataBackend == BackendSQLite {
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		} else {
			dir := filepath.Dir(c.SQLiteDBPath)
			if dir != "." && dir != "" {
				if _, err := os.Stat(dir); os.IsNotExist(err) {
					if err := os.MkdirAll(dir, 0755); err != nil {
						errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
					}
				}
			}
		}
	}

	if c.DataBackend == BackendPostgres {
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using postgres backend")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid DATABASE_URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if len(c.SessionSecret) < 32 {
		errors = append(errors, "SESSION_SECRET must be at least 32 characters")
	}

	for _, origin := range c.AllowedOrigins {
		u, err := url.Parse(origin)
		if err != nil || u.Scheme == "" || u.Host == "" || (u.Path != "" && u.Path != "/") {
			errors = append(errors, fmt.Sprintf("invalid allowed origin '%s': must be scheme://host[:port]", origin))
		}
	}

	if c.RateLimitWrite < 1 || c.RateLimitRead < 1 {
		errors = append(errors, "rate limits must be at least 1")
	}
	if c.RateLimitWriteWindow < time.Second || c.RateLimitReadWindow < time.Second {
		errors = append(errors, "rate limit windows must be at least 1 second")
	}

	if c.LogFormat != "text" && c.LogFormat != "json" {
		errors = append(errors, fmt.Sprintf("invalid log format '%s': must be 'text' or 'json'", c.LogFormat))
	}

	if c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}

	if c.ReportRefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report refresh interval %v: must be at least 1 second", c.ReportRefreshInterval))
	} else if c.ReportRefreshInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report refresh interval %v: must be at most 24 hours", c.ReportRefreshInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// getEnvList splits a comma separated value, dropping blanks and trailing slashes.
func getEnvList(key string) []string {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimRight(strings.TrimSpace(part), "/")
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
