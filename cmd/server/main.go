// Package main provides the entry point for the Noetic graph server, the
// knowledge node and semantic relation service backed by PostgreSQL (system
// of record) and Neo4j (traversal mirror).
package main

import (
	"context"
	"log/slog"

	"github.com/joho/godotenv"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/noeticlabs/noetic-server/domain/graph"
	"github.com/noeticlabs/noetic-server/domain/health"
	"github.com/noeticlabs/noetic-server/domain/scheduler"
	"github.com/noeticlabs/noetic-server/internal/config"
	"github.com/noeticlabs/noetic-server/internal/database"
	"github.com/noeticlabs/noetic-server/internal/migrate"
	"github.com/noeticlabs/noetic-server/internal/neo4j"
	"github.com/noeticlabs/noetic-server/internal/server"
	"github.com/noeticlabs/noetic-server/pkg/logger"
)

func main() {
	// Load .env files if present (for local development)
	// Load() won't overwrite existing vars, Overload() will
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		// Logging
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		neo4j.Module,
		server.Module,
		migrate.Module,

		// Run embedded migrations before the server accepts traffic
		fx.Invoke(autoMigrate),

		// Domain modules
		health.Module,
		graph.Module,

		// Scheduler module (outbox sweep and cleanup)
		scheduler.Module,
	).Run()
}

// autoMigrate applies pending migrations on startup when AUTO_MIGRATE is set.
func autoMigrate(lc fx.Lifecycle, cfg *config.Config, m *migrate.Migrator) {
	if !cfg.AutoMigrate {
		return
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return m.Up(ctx)
		},
	})
}
