package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/noeticlabs/noetic-server/internal/database"
	"github.com/noeticlabs/noetic-server/pkg/apperror"
	"github.com/noeticlabs/noetic-server/pkg/logger"
	"github.com/noeticlabs/noetic-server/pkg/pgutils"
)

// Repository is the relational store adapter. It owns the authoritative
// node/relation state and writes a graph_outbox row in the same transaction
// as every mutation, so the mirror write is never lost even when the graph
// store is down.
type Repository struct {
	db  bun.IDB
	log *slog.Logger
}

// NewRepository creates a new graph repository.
func NewRepository(db bun.IDB, log *slog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With(logger.Scope("graph.repo")),
	}
}

// ActiveTitleExists reports whether the owner already has an active node
// with the given title. excludeID skips the node being updated.
func (r *Repository) ActiveTitleExists(ctx context.Context, ownerID, title string, excludeID uuid.UUID) (bool, error) {
	q := r.db.NewSelect().
		Model((*KnowledgeNode)(nil)).
		Where("owner_id = ?", ownerID).
		Where("title = ?", title).
		Where("is_active")
	if excludeID != uuid.Nil {
		q = q.Where("id != ?", excludeID)
	}

	exists, err := q.Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

// CreateNode inserts a new active node with version 1 and queues the mirror
// upsert. The partial unique index on (owner_id, title) backs the uniqueness
// pre-check against concurrent creators.
func (r *Repository) CreateNode(ctx context.Context, node *KnowledgeNode) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	node.Version = 1
	node.IsActive = true
	if node.Tags == nil {
		node.Tags = []string{}
	}
	if node.Metadata == nil {
		node.Metadata = map[string]any{}
	}

	if _, err := tx.NewInsert().
		Model(node).
		Returning("id, created_at, updated_at").
		Exec(ctx); err != nil {
		if pgutils.IsUniqueViolation(err) {
			return apperror.NewConflict("a node with this title already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}

	if err := insertOutbox(ctx, tx, OpUpsertNode, node.ID, nodeMirrorPayload(node)); err != nil {
		return err
	}

	return commitTx(tx)
}

// GetNode returns an active node by ID.
func (r *Repository) GetNode(ctx context.Context, id uuid.UUID) (*KnowledgeNode, error) {
	node := new(KnowledgeNode)
	err := r.db.NewSelect().
		Model(node).
		Where("kn.id = ?", id).
		Where("kn.is_active").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("node", id.String())
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return node, nil
}

// UpdateNode applies a partial update to an active node. The caller's
// expected version must match the stored one; on match the version is
// incremented by exactly 1 and a mirror upsert is queued.
func (r *Repository) UpdateNode(ctx context.Context, id uuid.UUID, in *UpdateNodeInput) (*KnowledgeNode, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	node := new(KnowledgeNode)
	err = tx.NewSelect().
		Model(node).
		Where("kn.id = ?", id).
		Where("kn.is_active").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("node", id.String())
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if node.Version != in.Version {
		return nil, apperror.NewConflict("stale version: node was modified concurrently").
			WithDetails(map[string]any{"expected": in.Version, "current": node.Version})
	}

	if in.Title != nil && *in.Title != node.Title {
		taken, err := r.titleTakenInTx(ctx, tx, node.OwnerID, *in.Title, node.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, apperror.NewConflict("a node with this title already exists")
		}
		node.Title = *in.Title
	}
	if in.Content != nil {
		node.Content = *in.Content
	}
	if in.NodeType != nil {
		node.NodeType = *in.NodeType
	}
	if in.ContentType != nil {
		node.ContentType = *in.ContentType
	}
	if in.Tags != nil {
		node.Tags = *in.Tags
	}
	if in.Metadata != nil {
		node.Metadata = *in.Metadata
	}

	node.Version++
	node.UpdatedAt = time.Now().UTC()

	if _, err := tx.NewUpdate().
		Model(node).
		WherePK().
		Exec(ctx); err != nil {
		if pgutils.IsUniqueViolation(err) {
			return nil, apperror.NewConflict("a node with this title already exists")
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := insertOutbox(ctx, tx, OpUpsertNode, node.ID, nodeMirrorPayload(node)); err != nil {
		return nil, err
	}

	if err := commitTx(tx); err != nil {
		return nil, err
	}
	return node, nil
}

func (r *Repository) titleTakenInTx(ctx context.Context, tx *database.SafeTx, ownerID, title string, excludeID uuid.UUID) (bool, error) {
	exists, err := tx.NewSelect().
		Model((*KnowledgeNode)(nil)).
		Where("owner_id = ?", ownerID).
		Where("title = ?", title).
		Where("is_active").
		Where("id != ?", excludeID).
		Exists(ctx)
	if err != nil {
		return false, apperror.ErrDatabase.WithInternal(err)
	}
	return exists, nil
}

// SoftDeleteNode marks an active node inactive and cascades to every
// relation touching it, all in one transaction. The single delete_node
// outbox entry covers incident edges too, since the mirror detaches them
// with the vertex. Deleting an already-deleted node reports NotFound.
func (r *Repository) SoftDeleteNode(ctx context.Context, id uuid.UUID) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	node := new(KnowledgeNode)
	err = tx.NewSelect().
		Model(node).
		Where("kn.id = ?", id).
		Where("kn.is_active").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("node", id.String())
		}
		return apperror.ErrDatabase.WithInternal(err)
	}

	now := time.Now().UTC()

	if _, err := tx.NewUpdate().
		Model((*KnowledgeNode)(nil)).
		Set("is_active = false").
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	// Cascade: relations that exist at delete time go inactive with the node.
	if _, err := tx.NewUpdate().
		Model((*SemanticRelation)(nil)).
		Set("is_active = false").
		Set("version = version + 1").
		Set("updated_at = ?", now).
		Where("(from_node_id = ? OR to_node_id = ?)", id, id).
		Where("is_active").
		Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	if err := insertOutbox(ctx, tx, OpDeleteNode, id, map[string]any{"id": id.String()}); err != nil {
		return err
	}

	return commitTx(tx)
}

// CreateRelation verifies both endpoints are active, rejects duplicate
// active (owner, from, to, type) triples, inserts the row and queues the
// mirror edge upsert. All checks run in the insert transaction; the partial
// unique index is the backstop for concurrent creators.
func (r *Repository) CreateRelation(ctx context.Context, rel *SemanticRelation) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	activeEndpoints, err := tx.NewSelect().
		Model((*KnowledgeNode)(nil)).
		Where("id IN (?)", bun.In([]uuid.UUID{rel.FromNodeID, rel.ToNodeID})).
		Where("is_active").
		Count(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	want := 2
	if rel.FromNodeID == rel.ToNodeID {
		want = 1
	}
	if activeEndpoints < want {
		return apperror.NewBadRequest("one or both nodes do not exist")
	}

	duplicate, err := tx.NewSelect().
		Model((*SemanticRelation)(nil)).
		Where("owner_id = ?", rel.OwnerID).
		Where("from_node_id = ?", rel.FromNodeID).
		Where("to_node_id = ?", rel.ToNodeID).
		Where("relation_type = ?", rel.RelationType).
		Where("is_active").
		Exists(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	if duplicate {
		return apperror.NewConflict("relation already exists")
	}

	rel.Version = 1
	rel.IsActive = true
	if rel.Metadata == nil {
		rel.Metadata = map[string]any{}
	}

	if _, err := tx.NewInsert().
		Model(rel).
		Returning("id, created_at, updated_at").
		Exec(ctx); err != nil {
		if pgutils.IsUniqueViolation(err) {
			return apperror.NewConflict("relation already exists")
		}
		return apperror.ErrDatabase.WithInternal(err)
	}

	if err := insertOutbox(ctx, tx, OpUpsertEdge, rel.ID, edgeMirrorPayload(rel)); err != nil {
		return err
	}

	return commitTx(tx)
}

// GetRelation returns an active relation by ID.
func (r *Repository) GetRelation(ctx context.Context, id uuid.UUID) (*SemanticRelation, error) {
	rel := new(SemanticRelation)
	err := r.db.NewSelect().
		Model(rel).
		Where("sr.id = ?", id).
		Where("sr.is_active").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("relation", id.String())
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return rel, nil
}

// UpdateRelation applies a partial update with the expected-version contract
// and queues a mirror edge-property update.
func (r *Repository) UpdateRelation(ctx context.Context, id uuid.UUID, in *UpdateRelationInput) (*SemanticRelation, error) {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	rel := new(SemanticRelation)
	err = tx.NewSelect().
		Model(rel).
		Where("sr.id = ?", id).
		Where("sr.is_active").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NewNotFound("relation", id.String())
		}
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if rel.Version != in.Version {
		return nil, apperror.NewConflict("stale version: relation was modified concurrently").
			WithDetails(map[string]any{"expected": in.Version, "current": rel.Version})
	}

	if in.Strength != nil {
		rel.Strength = *in.Strength
	}
	if in.Confidence != nil {
		rel.Confidence = *in.Confidence
	}
	if in.Metadata != nil {
		rel.Metadata = *in.Metadata
	}
	if in.IsBidirectional != nil {
		rel.IsBidirectional = *in.IsBidirectional
	}

	rel.Version++
	rel.UpdatedAt = time.Now().UTC()

	if _, err := tx.NewUpdate().
		Model(rel).
		WherePK().
		Exec(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := insertOutbox(ctx, tx, OpUpdateEdge, rel.ID, edgeUpdatePayload(rel)); err != nil {
		return nil, err
	}

	if err := commitTx(tx); err != nil {
		return nil, err
	}
	return rel, nil
}

// SoftDeleteRelation marks an active relation inactive and queues the
// mirror edge deletion. Relations are leaf entities, so there is no cascade.
func (r *Repository) SoftDeleteRelation(ctx context.Context, id uuid.UUID) error {
	tx, err := database.BeginSafeTx(ctx, r.db)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	rel := new(SemanticRelation)
	err = tx.NewSelect().
		Model(rel).
		Where("sr.id = ?", id).
		Where("sr.is_active").
		For("UPDATE").
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.NewNotFound("relation", id.String())
		}
		return apperror.ErrDatabase.WithInternal(err)
	}

	if _, err := tx.NewUpdate().
		Model((*SemanticRelation)(nil)).
		Set("is_active = false").
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	payload := map[string]any{
		"fromId":   rel.FromNodeID.String(),
		"toId":     rel.ToNodeID.String(),
		"edgeType": string(rel.RelationType),
	}
	if err := insertOutbox(ctx, tx, OpDeleteEdge, rel.ID, payload); err != nil {
		return err
	}

	return commitTx(tx)
}

// ListNodesByOwner returns the owner's active nodes newest-first with the
// total active count for pagination.
func (r *Repository) ListNodesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*KnowledgeNode, int, error) {
	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	var nodes []*KnowledgeNode
	total, err := r.db.NewSelect().
		Model(&nodes).
		Where("owner_id = ?", ownerID).
		Where("is_active").
		Order("created_at DESC").
		Limit(limit).
		Offset(offset).
		ScanAndCount(ctx)
	if err != nil {
		return nil, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return nodes, total, nil
}

// ListRelationsTouching returns active relations where either endpoint is in
// nodeIDs. One query for the whole node set, not one per node.
func (r *Repository) ListRelationsTouching(ctx context.Context, nodeIDs []uuid.UUID) ([]*SemanticRelation, error) {
	if len(nodeIDs) == 0 {
		return []*SemanticRelation{}, nil
	}

	var rels []*SemanticRelation
	err := r.db.NewSelect().
		Model(&rels).
		Where("(from_node_id IN (?) OR to_node_id IN (?))", bun.In(nodeIDs), bun.In(nodeIDs)).
		Where("is_active").
		Order("created_at DESC").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return rels, nil
}

// CountActive returns the owner's active node and relation counts. These are
// the relational half of GraphStats; degree questions go to the graph store.
func (r *Repository) CountActive(ctx context.Context, ownerID string) (nodes int, relations int, err error) {
	nodes, err = r.db.NewSelect().
		Model((*KnowledgeNode)(nil)).
		Where("owner_id = ?", ownerID).
		Where("is_active").
		Count(ctx)
	if err != nil {
		return 0, 0, apperror.ErrDatabase.WithInternal(err)
	}

	relations, err = r.db.NewSelect().
		Model((*SemanticRelation)(nil)).
		Where("owner_id = ?", ownerID).
		Where("is_active").
		Count(ctx)
	if err != nil {
		return 0, 0, apperror.ErrDatabase.WithInternal(err)
	}
	return nodes, relations, nil
}

// CountNodesByType groups the owner's active nodes by node type.
func (r *Repository) CountNodesByType(ctx context.Context, ownerID string) (map[NodeType]int, error) {
	var rows []struct {
		NodeType NodeType `bun:"node_type"`
		Count    int      `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*KnowledgeNode)(nil)).
		ColumnExpr("node_type, count(*) AS count").
		Where("owner_id = ?", ownerID).
		Where("is_active").
		GroupExpr("node_type").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	counts := make(map[NodeType]int, len(rows))
	for _, row := range rows {
		counts[row.NodeType] = row.Count
	}
	return counts, nil
}

// CountRelationsByType groups the owner's active relations by relation type.
func (r *Repository) CountRelationsByType(ctx context.Context, ownerID string) (map[RelationType]int, error) {
	var rows []struct {
		RelationType RelationType `bun:"relation_type"`
		Count        int          `bun:"count"`
	}
	err := r.db.NewSelect().
		Model((*SemanticRelation)(nil)).
		ColumnExpr("relation_type, count(*) AS count").
		Where("owner_id = ?", ownerID).
		Where("is_active").
		GroupExpr("relation_type").
		Scan(ctx, &rows)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	counts := make(map[RelationType]int, len(rows))
	for _, row := range rows {
		counts[row.RelationType] = row.Count
	}
	return counts, nil
}

// insertOutbox queues a mirror operation in the caller's transaction.
func insertOutbox(ctx context.Context, tx *database.SafeTx, op OutboxOp, entityID uuid.UUID, payload map[string]any) error {
	entry := &OutboxEntry{
		Op:       op,
		EntityID: entityID,
		Payload:  payload,
	}
	if _, err := tx.NewInsert().Model(entry).Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

func commitTx(tx *database.SafeTx) error {
	if err := tx.Commit(); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// nodeMirrorPayload serializes a node's current state for the mirror upsert.
// Metadata is carried as a JSON string since the graph store rejects nested
// maps; timestamps use RFC 3339 as the stable textual form.
func nodeMirrorPayload(node *KnowledgeNode) map[string]any {
	return map[string]any{
		"id":          node.ID.String(),
		"title":       node.Title,
		"content":     node.Content,
		"nodeType":    string(node.NodeType),
		"contentType": string(node.ContentType),
		"ownerId":     node.OwnerID,
		"tags":        node.Tags,
		"metadata":    marshalMetadata(node.Metadata),
		"createdAt":   node.CreatedAt.UTC().Format(time.RFC3339),
		"updatedAt":   node.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func edgeMirrorPayload(rel *SemanticRelation) map[string]any {
	return map[string]any{
		"fromId":   rel.FromNodeID.String(),
		"toId":     rel.ToNodeID.String(),
		"edgeType": string(rel.RelationType),
		"props": map[string]any{
			"id":              rel.ID.String(),
			"strength":        rel.Strength,
			"confidence":      rel.Confidence,
			"metadata":        marshalMetadata(rel.Metadata),
			"ownerId":         rel.OwnerID,
			"isBidirectional": rel.IsBidirectional,
			"createdAt":       rel.CreatedAt.UTC().Format(time.RFC3339),
			"updatedAt":       rel.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func edgeUpdatePayload(rel *SemanticRelation) map[string]any {
	return map[string]any{
		"fromId":   rel.FromNodeID.String(),
		"toId":     rel.ToNodeID.String(),
		"edgeType": string(rel.RelationType),
		"props": map[string]any{
			"strength":        rel.Strength,
			"confidence":      rel.Confidence,
			"metadata":        marshalMetadata(rel.Metadata),
			"isBidirectional": rel.IsBidirectional,
			"updatedAt":       rel.UpdatedAt.UTC().Format(time.RFC3339),
		},
	}
}

func marshalMetadata(metadata map[string]any) string {
	if len(metadata) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(metadata)
	if err != nil {
		return "{}"
	}
	return string(raw)
}
