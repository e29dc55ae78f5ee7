// Package neo4j provides the graph store driver and startup schema setup.
package neo4j

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.uber.org/fx"

	"github.com/noeticlabs/noetic-server/internal/config"
	"github.com/noeticlabs/noetic-server/pkg/logger"
)

var Module = fx.Module("neo4j",
	fx.Provide(NewDriver),
)

// NewDriver creates the Neo4j driver, verifies connectivity and ensures the
// graph schema (constraints and indexes) exists. Schema statements use
// IF NOT EXISTS so startup is idempotent.
func NewDriver(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (neo4j.DriverWithContext, error) {
	log = log.With(logger.Scope("neo4j"))

	driver, err := neo4j.NewDriverWithContext(
		cfg.Neo4j.URI,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := driver.VerifyConnectivity(ctx); err != nil {
				return fmt.Errorf("connect to neo4j: %w", err)
			}
			log.Info("neo4j connection established", slog.String("uri", cfg.Neo4j.URI))

			return ensureSchema(ctx, driver, cfg.Neo4j.Database, log)
		},
		OnStop: func(ctx context.Context) error {
			log.Info("closing neo4j driver")
			return driver.Close(ctx)
		},
	})

	return driver, nil
}

// ensureSchema creates the uniqueness constraint and lookup indexes the
// mirror relies on. Failures are logged but do not abort startup, matching
// deployments where the schema was provisioned out of band without the
// privileges to re-run DDL.
func ensureSchema(ctx context.Context, driver neo4j.DriverWithContext, database string, log *slog.Logger) error {
	statements := []string{
		"CREATE CONSTRAINT node_id_unique IF NOT EXISTS FOR (n:Node) REQUIRE n.id IS UNIQUE",
		"CREATE INDEX node_title_index IF NOT EXISTS FOR (n:Node) ON (n.title)",
		"CREATE INDEX node_owner_index IF NOT EXISTS FOR (n:Node) ON (n.ownerId)",
		"CREATE INDEX node_created_at_index IF NOT EXISTS FOR (n:Node) ON (n.createdAt)",
		"CREATE FULLTEXT INDEX node_search_index IF NOT EXISTS FOR (n:Node) ON EACH [n.title, n.content]",
	}

	session := driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: database})
	defer session.Close(ctx)

	for _, stmt := range statements {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			_, err := tx.Run(ctx, stmt, nil)
			return nil, err
		})
		if err != nil {
			log.Warn("failed to create constraint/index",
				slog.String("statement", stmt),
				logger.Error(err),
			)
			continue
		}
		log.Debug("ensured constraint/index", slog.String("statement", stmt))
	}

	return nil
}
