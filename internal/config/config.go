package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// Database
	SQLiteDBPath string

	// Ledger backend selection
	LedgerBackend string

	// AMQP
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Metrics
	MetricsPort string

	// Recurring worker
	SweepInterval     time.Duration
	WorkerConcurrency int

	// Budget worker
	RefreshInterval   time.Duration
	BaseCurrency      string
	WarningThreshold  float64
	ExceededThreshold float64
	RateCacheSize     int
	RateCacheTTL      time.Duration
}

func Load() *Config {
	cfg := &Config{
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/bilancio.db"),

		LedgerBackend: getEnv("LEDGER_BACKEND", "memory"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "bilancio"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "execution_events"),

		MetricsPort: getEnv("METRICS_PORT", "9091"),

		SweepInterval:     getEnvDuration("SWEEP_INTERVAL", 1*time.Hour),
		WorkerConcurrency: getEnvInt("WORKER_CONCURRENCY", 4),

		RefreshInterval:   getEnvDuration("REFRESH_INTERVAL", 15*time.Minute),
		BaseCurrency:      getEnv("BASE_CURRENCY", "EUR"),
		WarningThreshold:  getEnvFloat("WARNING_THRESHOLD", 0.8),
		ExceededThreshold: getEnvFloat("EXCEEDED_THRESHOLD", 1.0),
		RateCacheSize:     getEnvInt("RATE_CACHE_SIZE", 1024),
		RateCacheTTL:      getEnvDuration("RATE_CACHE_TTL", 1*time.Hour),
	}

	return cfg
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if c.SQLiteDBPath == "" {
		errors = append(errors, "SQLite database path cannot be empty")
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

	validBackends := []string{"memory"}
	isValidBackend := false
	for _, backend := range validBackends {
		if c.LedgerBackend == backend {
			isValidBackend = true
			break
		}
	}
	if !isValidBackend {
		errors = append(errors, fmt.Sprintf("invalid ledger backend '%s': must be one of %v", c.LedgerBackend, validBackends))
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

	if port, err := strconv.Atoi(c.MetricsPort); err != nil {
		errors = append(errors, fmt.Sprintf("invalid metrics port '%s': must be a number", c.MetricsPort))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid metrics port %d: must be between 1 and 65535", port))
	}

	if c.SweepInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at least 1 second", c.SweepInterval))
	} else if c.SweepInterval > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid sweep interval %v: must be at most 24 hours", c.SweepInterval))
	}

	if c.RefreshInterval < time.Second {
		errors = append(errors, fmt.Sprintf("invalid refresh interval %v: must be at least 1 second", c.RefreshInterval))
	}

	if c.WorkerConcurrency < 1 {
		errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be at least 1", c.WorkerConcurrency))
	} else if c.WorkerConcurrency > 64 {
		errors = append(errors, fmt.Sprintf("invalid worker concurrency %d: must be at most 64", c.WorkerConcurrency))
	}

	if c.BaseCurrency == "" {
		errors = append(errors, "base currency cannot be empty")
	}

	if c.WarningThreshold <= 0 || c.WarningThreshold > 1 {
		errors = append(errors, fmt.Sprintf("invalid warning threshold %v: must be in (0, 1]", c.WarningThreshold))
	}
	if c.ExceededThreshold < c.WarningThreshold {
		errors = append(errors, fmt.Sprintf("invalid exceeded threshold %v: must be at least the warning threshold", c.ExceededThreshold))
	}

	if c.RateCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate cache size %d: must be at least 1", c.RateCacheSize))
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

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
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
