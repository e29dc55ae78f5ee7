package scheduler

import (
	"os"
	"strconv"
	"time"
)

// Config holds scheduler configuration
type Config struct {
	// Enabled controls whether the scheduler runs
	Enabled bool

	// OutboxCleanupInterval is the interval for pruning applied outbox entries
	OutboxCleanupInterval time.Duration

	// OutboxRetention is how long applied outbox entries are kept for auditing
	OutboxRetention time.Duration
}

// NewConfig creates a new Config from environment variables
func NewConfig() *Config {
	return &Config{
		Enabled:               getEnvBool("SCHEDULER_ENABLED", true),
		OutboxCleanupInterval: getEnvDuration("OUTBOX_CLEANUP_INTERVAL", 15*time.Minute),
		OutboxRetention:       getEnvDuration("OUTBOX_RETENTION", 24*time.Hour),
	}
}

// getEnvBool returns a boolean from an environment variable
func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

// getEnvDuration returns a duration from an environment variable
func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
