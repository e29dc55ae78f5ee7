package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 3004, cfg.ServerPort)
	assert.False(t, cfg.AutoMigrate)

	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "disable", cfg.Database.SSLMode)

	assert.Equal(t, "bolt://localhost:7687", cfg.Neo4j.URI)
	assert.Equal(t, "neo4j", cfg.Neo4j.Database)

	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 10, cfg.Outbox.MaxAttempts)
	assert.NotEmpty(t, cfg.Outbox.SweepSchedule)
}

func TestNewConfig_FromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "8080")
	t.Setenv("POSTGRES_HOST", "db.internal")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("NEO4J_URI", "bolt://graph.internal:7687")
	t.Setenv("OUTBOX_BATCH_SIZE", "25")

	cfg, err := NewConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, "bolt://graph.internal:7687", cfg.Neo4j.URI)
	assert.Equal(t, 25, cfg.Outbox.BatchSize)
}

func TestDatabaseConfig_DSN(t *testing.T) {
	d := &DatabaseConfig{
		Host:     "localhost",
		Port:     5432,
		User:     "noetic",
		Password: "pw",
		Database: "noetic",
		SSLMode:  "disable",
	}

	assert.Equal(t, "postgres://noetic:pw@localhost:5432/noetic?sslmode=disable", d.DSN())
}
