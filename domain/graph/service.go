package graph

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/noeticlabs/noetic-server/pkg/apperror"
	"github.com/noeticlabs/noetic-server/pkg/logger"
)

// Store is the service's view of the relational adapter. *Repository
// satisfies it; tests substitute fakes.
type Store interface {
	ActiveTitleExists(ctx context.Context, ownerID, title string, excludeID uuid.UUID) (bool, error)
	CreateNode(ctx context.Context, node *KnowledgeNode) error
	GetNode(ctx context.Context, id uuid.UUID) (*KnowledgeNode, error)
	UpdateNode(ctx context.Context, id uuid.UUID, in *UpdateNodeInput) (*KnowledgeNode, error)
	SoftDeleteNode(ctx context.Context, id uuid.UUID) error
	CreateRelation(ctx context.Context, rel *SemanticRelation) error
	GetRelation(ctx context.Context, id uuid.UUID) (*SemanticRelation, error)
	UpdateRelation(ctx context.Context, id uuid.UUID, in *UpdateRelationInput) (*SemanticRelation, error)
	SoftDeleteRelation(ctx context.Context, id uuid.UUID) error
	ListNodesByOwner(ctx context.Context, ownerID string, limit, offset int) ([]*KnowledgeNode, int, error)
	ListRelationsTouching(ctx context.Context, nodeIDs []uuid.UUID) ([]*SemanticRelation, error)
	CountActive(ctx context.Context, ownerID string) (nodes int, relations int, err error)
	CountNodesByType(ctx context.Context, ownerID string) (map[NodeType]int, error)
	CountRelationsByType(ctx context.Context, ownerID string) (map[RelationType]int, error)
}

// Flusher drains queued mirror writes. *Synchronizer satisfies it.
type Flusher interface {
	Flush(ctx context.Context) error
}

// Service is the façade over the dual store. Mutations go through the
// relational store, which is authoritative; after each committed mutation the
// service nudges the outbox so the mirror usually catches up within the same
// request. A failed nudge is logged and swallowed, the sweep picks it up.
type Service struct {
	store  Store
	graph  GraphStore
	paths  *PathFinder
	outbox Flusher
	log    *slog.Logger
}

// NewService creates the graph service.
func NewService(store Store, graph GraphStore, paths *PathFinder, outbox Flusher, log *slog.Logger) *Service {
	return &Service{
		store:  store,
		graph:  graph,
		paths:  paths,
		outbox: outbox,
		log:    log.With(logger.Scope("graph.service")),
	}
}

// CreateNode validates the input, creates the node and queues its mirror
// upsert. Duplicate active titles per owner are rejected with a conflict.
func (s *Service) CreateNode(ctx context.Context, in *CreateNodeInput) (*KnowledgeNode, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	taken, err := s.store.ActiveTitleExists(ctx, in.OwnerID, in.Title, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperror.NewConflict("a node with this title already exists")
	}

	node := &KnowledgeNode{
		Title:       in.Title,
		Content:     in.Content,
		NodeType:    in.NodeType,
		ContentType: in.ContentType,
		OwnerID:     in.OwnerID,
		Tags:        in.Tags,
		Metadata:    in.Metadata,
	}
	if err := s.store.CreateNode(ctx, node); err != nil {
		return nil, err
	}

	s.nudgeMirror(ctx, "create node", node.ID)
	return node, nil
}

// GetNode returns an active node by ID.
func (s *Service) GetNode(ctx context.Context, id uuid.UUID) (*KnowledgeNode, error) {
	return s.store.GetNode(ctx, id)
}

// UpdateNode applies a partial update under the expected-version contract.
func (s *Service) UpdateNode(ctx context.Context, id uuid.UUID, in *UpdateNodeInput) (*KnowledgeNode, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	node, err := s.store.UpdateNode(ctx, id, in)
	if err != nil {
		return nil, err
	}

	s.nudgeMirror(ctx, "update node", node.ID)
	return node, nil
}

// DeleteNode soft-deletes a node and cascades to its relations.
func (s *Service) DeleteNode(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDeleteNode(ctx, id); err != nil {
		return err
	}

	s.nudgeMirror(ctx, "delete node", id)
	return nil
}

// CreateRelation validates the input and creates a typed relation between
// two active nodes.
func (s *Service) CreateRelation(ctx context.Context, in *CreateRelationInput) (*SemanticRelation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	rel := &SemanticRelation{
		FromNodeID:        in.FromNodeID,
		ToNodeID:          in.ToNodeID,
		RelationType:      in.RelationType,
		Strength:          *in.Strength,
		Confidence:        *in.Confidence,
		Metadata:          in.Metadata,
		OwnerID:           in.OwnerID,
		IsSystemGenerated: in.IsSystemGenerated,
		IsBidirectional:   in.IsBidirectional,
	}
	if err := s.store.CreateRelation(ctx, rel); err != nil {
		return nil, err
	}

	s.nudgeMirror(ctx, "create relation", rel.ID)
	return rel, nil
}

// GetRelation returns an active relation by ID.
func (s *Service) GetRelation(ctx context.Context, id uuid.UUID) (*SemanticRelation, error) {
	return s.store.GetRelation(ctx, id)
}

// UpdateRelation applies a partial update under the expected-version contract.
func (s *Service) UpdateRelation(ctx context.Context, id uuid.UUID, in *UpdateRelationInput) (*SemanticRelation, error) {
	if err := in.Validate(); err != nil {
		return nil, err
	}

	rel, err := s.store.UpdateRelation(ctx, id, in)
	if err != nil {
		return nil, err
	}

	s.nudgeMirror(ctx, "update relation", rel.ID)
	return rel, nil
}

// DeleteRelation soft-deletes a relation.
func (s *Service) DeleteRelation(ctx context.Context, id uuid.UUID) error {
	if err := s.store.SoftDeleteRelation(ctx, id); err != nil {
		return err
	}

	s.nudgeMirror(ctx, "delete relation", id)
	return nil
}

// SearchNodes pages through an owner's active nodes newest-first and bundles
// the relations touching the returned page.
func (s *Service) SearchNodes(ctx context.Context, ownerID string, limit, offset int) (*SearchResult, error) {
	if ownerID == "" {
		return nil, apperror.NewBadRequest("owner is required")
	}

	nodes, total, err := s.store.ListNodesByOwner(ctx, ownerID, limit, offset)
	if err != nil {
		return nil, err
	}

	nodeIDs := make([]uuid.UUID, 0, len(nodes))
	for _, node := range nodes {
		nodeIDs = append(nodeIDs, node.ID)
	}

	relations, err := s.store.ListRelationsTouching(ctx, nodeIDs)
	if err != nil {
		return nil, err
	}

	if nodes == nil {
		nodes = []*KnowledgeNode{}
	}
	return &SearchResult{Nodes: nodes, Relations: relations, Total: total}, nil
}

// FindPath returns candidate paths between two nodes, cheapest first.
func (s *Service) FindPath(ctx context.Context, fromID, toID uuid.UUID, maxDepth int) ([]PathResult, error) {
	if fromID == uuid.Nil || toID == uuid.Nil {
		return nil, apperror.NewBadRequest("both endpoint node IDs are required")
	}
	return s.paths.FindPath(ctx, fromID, toID, maxDepth)
}

// GetStats merges relational counts with graph-store connectivity. Counts are
// authoritative and always present; connectivity is best-effort, so a graph
// store outage degrades stats instead of failing them.
func (s *Service) GetStats(ctx context.Context, ownerID string) (*GraphStats, error) {
	if ownerID == "" {
		return nil, apperror.NewBadRequest("owner is required")
	}

	totalNodes, totalRelations, err := s.store.CountActive(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	nodesByType, err := s.store.CountNodesByType(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	relationsByType, err := s.store.CountRelationsByType(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	stats := &GraphStats{
		TotalNodes:      totalNodes,
		TotalRelations:  totalRelations,
		NodesByType:     nodesByType,
		RelationsByType: relationsByType,
		TopConnected:    []ConnectedNode{},
	}

	connectivity, err := s.graph.Connectivity(ctx, ownerID, TopConnectedCount)
	if err != nil {
		s.log.Warn("connectivity stats unavailable", logger.Error(err))
		return stats, nil
	}
	stats.AvgDegree = connectivity.AvgDegree
	if connectivity.TopConnected != nil {
		stats.TopConnected = connectivity.TopConnected
	}
	return stats, nil
}

// nudgeMirror flushes the outbox right after a committed mutation so the
// mirror converges quickly. Failures only delay convergence; the relational
// commit already succeeded, so the caller never sees them.
func (s *Service) nudgeMirror(ctx context.Context, op string, id uuid.UUID) {
	if err := s.outbox.Flush(ctx); err != nil {
		s.log.Warn("mirror flush after mutation failed",
			slog.String("op", op),
			slog.String("id", id.String()),
			logger.Error(err),
		)
	}
}
