package graph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/noeticlabs/noetic-server/pkg/logger"
)

// PathFinder answers weighted path queries over the graph store, normalizing
// caller input before it reaches the traversal.
type PathFinder struct {
	graph GraphStore
	log   *slog.Logger
}

// NewPathFinder creates the path query engine.
func NewPathFinder(graph GraphStore, log *slog.Logger) *PathFinder {
	return &PathFinder{
		graph: graph,
		log:   log.With(logger.Scope("graph.paths")),
	}
}

// FindPath returns up to MaxPathResults candidate paths between two nodes,
// cheapest first. A non-positive maxDepth falls back to DefaultMaxDepth and
// anything above MaxPathDepth is clamped down. Identical endpoints yield an
// empty result rather than a zero-length path.
func (f *PathFinder) FindPath(ctx context.Context, fromID, toID uuid.UUID, maxDepth int) ([]PathResult, error) {
	if fromID == toID {
		return []PathResult{}, nil
	}

	if maxDepth <= 0 {
		maxDepth = DefaultMaxDepth
	}
	if maxDepth > MaxPathDepth {
		f.log.Debug("clamping path depth",
			slog.Int("requested", maxDepth),
			slog.Int("max", MaxPathDepth),
		)
		maxDepth = MaxPathDepth
	}

	paths, err := f.graph.ShortestPaths(ctx, fromID.String(), toID.String(), maxDepth)
	if err != nil {
		return nil, err
	}
	if paths == nil {
		paths = []PathResult{}
	}
	return paths, nil
}
