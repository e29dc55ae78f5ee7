// Package config loads application configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"go.uber.org/fx"
)

var Module = fx.Module("config",
	fx.Provide(NewConfig),
)

// Config holds all application configuration.
type Config struct {
	// Server settings
	ServerPort    int    `env:"SERVER_PORT" envDefault:"3004"`
	ServerAddress string `env:"SERVER_ADDRESS" envDefault:"0.0.0.0"`
	Environment   string `env:"ENVIRONMENT" envDefault:"local"`
	Debug         bool   `env:"DEBUG" envDefault:"false"`

	// Run embedded migrations on startup
	AutoMigrate bool `env:"AUTO_MIGRATE" envDefault:"false"`

	Database DatabaseConfig
	Neo4j    Neo4jConfig
	Outbox   OutboxConfig

	// Server timeouts
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host         string        `env:"POSTGRES_HOST" envDefault:"localhost"`
	Port         int           `env:"POSTGRES_PORT" envDefault:"5432"`
	User         string        `env:"POSTGRES_USER" envDefault:"noetic"`
	Password     string        `env:"POSTGRES_PASSWORD" envDefault:""`
	Database     string        `env:"POSTGRES_DB" envDefault:"noetic"`
	SSLMode      string        `env:"POSTGRES_SSL_MODE" envDefault:"disable"`
	MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	MaxIdleTime  time.Duration `env:"DB_MAX_IDLE_TIME" envDefault:"5m"`
	QueryDebug   bool          `env:"DB_QUERY_DEBUG" envDefault:"false"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Database, d.SSLMode,
	)
}

// Neo4jConfig holds graph store connection settings.
type Neo4jConfig struct {
	URI      string `env:"NEO4J_URI" envDefault:"bolt://localhost:7687"`
	Username string `env:"NEO4J_USERNAME" envDefault:"neo4j"`
	Password string `env:"NEO4J_PASSWORD" envDefault:""`
	Database string `env:"NEO4J_DATABASE" envDefault:"neo4j"`
}

// OutboxConfig controls the graph mirror outbox and its reconciliation sweep.
type OutboxConfig struct {
	// Cron schedule (with seconds) for retrying pending mirror writes.
	SweepSchedule string `env:"OUTBOX_SWEEP_SCHEDULE" envDefault:"*/30 * * * * *"`
	BatchSize     int    `env:"OUTBOX_BATCH_SIZE" envDefault:"100"`
	MaxAttempts   int    `env:"OUTBOX_MAX_ATTEMPTS" envDefault:"10"`
}

// NewConfig loads configuration from environment variables.
func NewConfig() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return cfg, nil
}
