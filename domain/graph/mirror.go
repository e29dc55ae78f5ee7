package graph

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/noeticlabs/noetic-server/internal/config"
	"github.com/noeticlabs/noetic-server/pkg/apperror"
	"github.com/noeticlabs/noetic-server/pkg/logger"
)

// Mirror is the graph store adapter. It maintains the traversal-optimized
// copy of nodes and relations in Neo4j and answers path and connectivity
// queries. It is a derived index: the relational store stays authoritative.
type Mirror struct {
	driver   neo4j.DriverWithContext
	database string
	log      *slog.Logger
}

// NewMirror creates the graph store adapter.
func NewMirror(driver neo4j.DriverWithContext, cfg *config.Config, log *slog.Logger) *Mirror {
	return &Mirror{
		driver:   driver,
		database: cfg.Neo4j.Database,
		log:      log.With(logger.Scope("graph.mirror")),
	}
}

func (m *Mirror) session(ctx context.Context) neo4j.SessionWithContext {
	return m.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: m.database})
}

// UpsertNode merges the vertex by ID, replaces its scalar properties and
// stamps both the generic Node label and the specific node type label.
// props must contain "id" and a valid "nodeType".
func (m *Mirror) UpsertNode(ctx context.Context, props map[string]any) error {
	id, _ := props["id"].(string)
	if id == "" {
		return fmt.Errorf("upsert node: missing id")
	}
	nodeType, _ := props["nodeType"].(string)
	if !NodeType(nodeType).Valid() {
		return fmt.Errorf("upsert node %s: invalid node type %q", id, nodeType)
	}

	// The type label cannot be parameterized; nodeType is validated against
	// the closed enum above before interpolation.
	query := fmt.Sprintf(`
		MERGE (n:Node {id: $id})
		SET n += $props
		SET n:%s
	`, nodeType)

	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"id": id, "props": props})
		return nil, err
	})
	if err != nil {
		return apperror.ErrDependencyUnavailable.WithInternal(err)
	}
	return nil
}

// DeleteNode removes the vertex and all incident edges. The mirror does not
// retain soft-deleted nodes; history lives in the relational store.
func (m *Mirror) DeleteNode(ctx context.Context, id string) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, `MATCH (n:Node {id: $id}) DETACH DELETE n`, map[string]any{"id": id})
		return nil, err
	})
	if err != nil {
		return apperror.ErrDependencyUnavailable.WithInternal(err)
	}
	return nil
}

// UpsertEdge merges a typed edge between two mirrored vertices and replaces
// its properties. It fails when either endpoint vertex is not mirrored yet,
// so the outbox retries after the node upsert lands.
func (m *Mirror) UpsertEdge(ctx context.Context, fromID, toID string, edgeType RelationType, props map[string]any) error {
	if !edgeType.Valid() {
		return fmt.Errorf("upsert edge %s->%s: invalid edge type %q", fromID, toID, edgeType)
	}

	query := fmt.Sprintf(`
		MATCH (from:Node {id: $fromId}), (to:Node {id: $toId})
		MERGE (from)-[r:%s]->(to)
		SET r += $props
		RETURN count(r) AS merged
	`, edgeType)

	return m.writeExpectingMatch(ctx, query, map[string]any{
		"fromId": fromID,
		"toId":   toID,
		"props":  props,
	}, fmt.Sprintf("edge %s-[%s]->%s: endpoint vertices not mirrored", fromID, edgeType, toID))
}

// UpdateEdgeProperties overwrites scalar properties of an existing edge.
// Fails when the edge is not mirrored yet so the write can be retried.
func (m *Mirror) UpdateEdgeProperties(ctx context.Context, fromID, toID string, edgeType RelationType, props map[string]any) error {
	if !edgeType.Valid() {
		return fmt.Errorf("update edge %s->%s: invalid edge type %q", fromID, toID, edgeType)
	}

	query := fmt.Sprintf(`
		MATCH (from:Node {id: $fromId})-[r:%s]->(to:Node {id: $toId})
		SET r += $props
		RETURN count(r) AS merged
	`, edgeType)

	return m.writeExpectingMatch(ctx, query, map[string]any{
		"fromId": fromID,
		"toId":   toID,
		"props":  props,
	}, fmt.Sprintf("edge %s-[%s]->%s not mirrored", fromID, edgeType, toID))
}

// DeleteEdge removes a typed edge. Deleting an edge that is already gone is
// a no-op, which keeps the operation idempotent under retries.
func (m *Mirror) DeleteEdge(ctx context.Context, fromID, toID string, edgeType RelationType) error {
	if !edgeType.Valid() {
		return fmt.Errorf("delete edge %s->%s: invalid edge type %q", fromID, toID, edgeType)
	}

	query := fmt.Sprintf(`
		MATCH (from:Node {id: $fromId})-[r:%s]->(to:Node {id: $toId})
		DELETE r
	`, edgeType)

	session := m.session(ctx)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		_, err := tx.Run(ctx, query, map[string]any{"fromId": fromID, "toId": toID})
		return nil, err
	})
	if err != nil {
		return apperror.ErrDependencyUnavailable.WithInternal(err)
	}
	return nil
}

// writeExpectingMatch runs a write that returns a "merged" count and treats
// zero matches as a retryable failure.
func (m *Mirror) writeExpectingMatch(ctx context.Context, query string, params map[string]any, missingMsg string) error {
	session := m.session(ctx)
	defer session.Close(ctx)

	merged, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, params)
		if err != nil {
			return int64(0), err
		}
		record, err := result.Single(ctx)
		if err != nil {
			return int64(0), err
		}
		count, _ := record.Get("merged")
		n, _ := count.(int64)
		return n, nil
	})
	if err != nil {
		return apperror.ErrDependencyUnavailable.WithInternal(err)
	}
	if n, _ := merged.(int64); n == 0 {
		return fmt.Errorf("%s", missingMsg)
	}
	return nil
}

// ShortestPaths returns up to MaxPathResults paths between two mirrored
// nodes, cheapest first. Edge cost is 1 - strength, so stronger relations
// are cheaper to traverse; the pattern is undirected because relations are
// conceptually bidirectional even when stored as directed rows. Unmirrored
// or disconnected endpoints yield an empty slice, not an error.
func (m *Mirror) ShortestPaths(ctx context.Context, fromID, toID string, maxDepth int) ([]PathResult, error) {
	// Variable-length bounds cannot be parameterized; maxDepth is clamped
	// to MaxPathDepth by the query engine before it reaches here.
	query := fmt.Sprintf(`
		MATCH (from:Node {id: $fromId}), (to:Node {id: $toId})
		MATCH path = (from)-[*1..%d]-(to)
		WITH relationships(path) AS rels, nodes(path) AS pathNodes
		WITH pathNodes, rels,
		     reduce(totalDistance = 0.0, r IN rels | totalDistance + (1 - coalesce(r.strength, 0.5))) AS totalDistance,
		     reduce(pathStrength = 1.0, r IN rels | pathStrength * coalesce(r.strength, 0.5)) AS pathStrength
		RETURN [n IN pathNodes | {id: n.id, title: n.title}] AS nodes,
		       [r IN rels | {id: r.id, type: type(r), strength: coalesce(r.strength, 0.5)}] AS rels,
		       totalDistance, pathStrength
		ORDER BY totalDistance ASC
		LIMIT %d
	`, maxDepth, MaxPathResults)

	session := m.session(ctx)
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]any{"fromId": fromID, "toId": toID})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, apperror.ErrDependencyUnavailable.WithInternal(err)
	}

	var paths []PathResult
	for _, record := range records.([]*neo4j.Record) {
		paths = append(paths, recordToPath(record))
	}
	return paths, nil
}

func recordToPath(record *neo4j.Record) PathResult {
	nodesVal, _ := record.Get("nodes")
	relsVal, _ := record.Get("rels")
	distVal, _ := record.Get("totalDistance")
	strengthVal, _ := record.Get("pathStrength")

	nodes, _ := nodesVal.([]any)
	rels, _ := relsVal.([]any)

	steps := make([]PathStep, 0, len(nodes))
	for i, nv := range nodes {
		nodeMap, _ := nv.(map[string]any)
		step := PathStep{
			NodeID: asString(nodeMap["id"]),
			Title:  asString(nodeMap["title"]),
		}
		// The relation leading into this node; the first step has none.
		if i > 0 && i-1 < len(rels) {
			relMap, _ := rels[i-1].(map[string]any)
			step.RelationID = asString(relMap["id"])
			step.RelationType = asString(relMap["type"])
			step.Strength = asFloat(relMap["strength"])
		}
		steps = append(steps, step)
	}

	return PathResult{
		Path:          steps,
		TotalDistance: asFloat(distVal),
		PathStrength:  asFloat(strengthVal),
	}
}

// Connectivity computes the average node degree and the top-N most connected
// nodes for an owner. Degree counts edges in both directions.
func (m *Mirror) Connectivity(ctx context.Context, ownerID string, topN int) (*ConnectivityStats, error) {
	query := `
		MATCH (n:Node {ownerId: $ownerId})
		OPTIONAL MATCH (n)-[r]-()
		WITH n, count(r) AS degree
		ORDER BY degree DESC
		WITH avg(degree) AS avgDegree,
		     collect({nodeId: n.id, title: n.title, degree: degree}) AS nodeStats
		RETURN avgDegree, nodeStats[0..$topN] AS top
	`

	session := m.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, map[string]any{"ownerId": ownerID, "topN": topN})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}

		stats := &ConnectivityStats{TopConnected: []ConnectedNode{}}

		if avg, ok := record.Get("avgDegree"); ok {
			stats.AvgDegree = asFloat(avg)
		}
		if top, ok := record.Get("top"); ok {
			entries, _ := top.([]any)
			for _, entry := range entries {
				entryMap, _ := entry.(map[string]any)
				stats.TopConnected = append(stats.TopConnected, ConnectedNode{
					NodeID: asString(entryMap["nodeId"]),
					Title:  asString(entryMap["title"]),
					Degree: int(asFloat(entryMap["degree"])),
				})
			}
		}
		return stats, nil
	})
	if err != nil {
		return nil, apperror.ErrDependencyUnavailable.WithInternal(err)
	}
	return result.(*ConnectivityStats), nil
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	}
	return 0
}
