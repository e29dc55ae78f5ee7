package graph

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noeticlabs/noetic-server/pkg/apperror"
)

// fakeStore is an in-memory Store that mimics the relational adapter's
// contract: soft deletes, version checks, per-owner title uniqueness.
type fakeStore struct {
	nodes map[uuid.UUID]*KnowledgeNode
	rels  map[uuid.UUID]*SemanticRelation
	err   error // forced error for every call when set
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		nodes: map[uuid.UUID]*KnowledgeNode{},
		rels:  map[uuid.UUID]*SemanticRelation{},
	}
}

func (f *fakeStore) ActiveTitleExists(_ context.Context, ownerID, title string, excludeID uuid.UUID) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	for _, n := range f.nodes {
		if n.IsActive && n.OwnerID == ownerID && n.Title == title && n.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeStore) CreateNode(_ context.Context, node *KnowledgeNode) error {
	if f.err != nil {
		return f.err
	}
	node.ID = uuid.New()
	node.Version = 1
	node.IsActive = true
	f.nodes[node.ID] = node
	return nil
}

func (f *fakeStore) GetNode(_ context.Context, id uuid.UUID) (*KnowledgeNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	node, ok := f.nodes[id]
	if !ok || !node.IsActive {
		return nil, apperror.NewNotFound("node", id.String())
	}
	return node, nil
}

func (f *fakeStore) UpdateNode(_ context.Context, id uuid.UUID, in *UpdateNodeInput) (*KnowledgeNode, error) {
	if f.err != nil {
		return nil, f.err
	}
	node, ok := f.nodes[id]
	if !ok || !node.IsActive {
		return nil, apperror.NewNotFound("node", id.String())
	}
	if node.Version != in.Version {
		return nil, apperror.NewConflict("stale version: node was modified concurrently")
	}
	if in.Title != nil {
		node.Title = *in.Title
	}
	if in.Content != nil {
		node.Content = *in.Content
	}
	node.Version++
	return node, nil
}

func (f *fakeStore) SoftDeleteNode(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	node, ok := f.nodes[id]
	if !ok || !node.IsActive {
		return apperror.NewNotFound("node", id.String())
	}
	node.IsActive = false
	node.Version++
	for _, rel := range f.rels {
		if rel.IsActive && (rel.FromNodeID == id || rel.ToNodeID == id) {
			rel.IsActive = false
			rel.Version++
		}
	}
	return nil
}

func (f *fakeStore) CreateRelation(_ context.Context, rel *SemanticRelation) error {
	if f.err != nil {
		return f.err
	}
	activeEndpoints := 0
	for _, n := range f.nodes {
		if n.IsActive && (n.ID == rel.FromNodeID || n.ID == rel.ToNodeID) {
			activeEndpoints++
		}
	}
	want := 2
	if rel.FromNodeID == rel.ToNodeID {
		want = 1
	}
	if activeEndpoints < want {
		return apperror.NewBadRequest("one or both nodes do not exist")
	}
	for _, r := range f.rels {
		if r.IsActive && r.OwnerID == rel.OwnerID && r.FromNodeID == rel.FromNodeID &&
			r.ToNodeID == rel.ToNodeID && r.RelationType == rel.RelationType {
			return apperror.NewConflict("relation already exists")
		}
	}
	rel.ID = uuid.New()
	rel.Version = 1
	rel.IsActive = true
	f.rels[rel.ID] = rel
	return nil
}

func (f *fakeStore) GetRelation(_ context.Context, id uuid.UUID) (*SemanticRelation, error) {
	if f.err != nil {
		return nil, f.err
	}
	rel, ok := f.rels[id]
	if !ok || !rel.IsActive {
		return nil, apperror.NewNotFound("relation", id.String())
	}
	return rel, nil
}

func (f *fakeStore) UpdateRelation(_ context.Context, id uuid.UUID, in *UpdateRelationInput) (*SemanticRelation, error) {
	if f.err != nil {
		return nil, f.err
	}
	rel, ok := f.rels[id]
	if !ok || !rel.IsActive {
		return nil, apperror.NewNotFound("relation", id.String())
	}
	if rel.Version != in.Version {
		return nil, apperror.NewConflict("stale version: relation was modified concurrently")
	}
	if in.Strength != nil {
		rel.Strength = *in.Strength
	}
	rel.Version++
	return rel, nil
}

func (f *fakeStore) SoftDeleteRelation(_ context.Context, id uuid.UUID) error {
	if f.err != nil {
		return f.err
	}
	rel, ok := f.rels[id]
	if !ok || !rel.IsActive {
		return apperror.NewNotFound("relation", id.String())
	}
	rel.IsActive = false
	rel.Version++
	return nil
}

func (f *fakeStore) ListNodesByOwner(_ context.Context, ownerID string, limit, offset int) ([]*KnowledgeNode, int, error) {
	if f.err != nil {
		return nil, 0, f.err
	}
	var all []*KnowledgeNode
	for _, n := range f.nodes {
		if n.IsActive && n.OwnerID == ownerID {
			all = append(all, n)
		}
	}
	total := len(all)
	if offset > len(all) {
		offset = len(all)
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	return all, total, nil
}

func (f *fakeStore) ListRelationsTouching(_ context.Context, nodeIDs []uuid.UUID) ([]*SemanticRelation, error) {
	if f.err != nil {
		return nil, f.err
	}
	ids := map[uuid.UUID]bool{}
	for _, id := range nodeIDs {
		ids[id] = true
	}
	rels := []*SemanticRelation{}
	for _, rel := range f.rels {
		if rel.IsActive && (ids[rel.FromNodeID] || ids[rel.ToNodeID]) {
			rels = append(rels, rel)
		}
	}
	return rels, nil
}

func (f *fakeStore) CountActive(_ context.Context, ownerID string) (int, int, error) {
	if f.err != nil {
		return 0, 0, f.err
	}
	nodes, rels := 0, 0
	for _, n := range f.nodes {
		if n.IsActive && n.OwnerID == ownerID {
			nodes++
		}
	}
	for _, r := range f.rels {
		if r.IsActive && r.OwnerID == ownerID {
			rels++
		}
	}
	return nodes, rels, nil
}

func (f *fakeStore) CountNodesByType(_ context.Context, ownerID string) (map[NodeType]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	counts := map[NodeType]int{}
	for _, n := range f.nodes {
		if n.IsActive && n.OwnerID == ownerID {
			counts[n.NodeType]++
		}
	}
	return counts, nil
}

func (f *fakeStore) CountRelationsByType(_ context.Context, ownerID string) (map[RelationType]int, error) {
	if f.err != nil {
		return nil, f.err
	}
	counts := map[RelationType]int{}
	for _, r := range f.rels {
		if r.IsActive && r.OwnerID == ownerID {
			counts[r.RelationType]++
		}
	}
	return counts, nil
}

// fakeGraph records graph store calls and serves canned query results.
type fakeGraph struct {
	paths        []PathResult
	connectivity *ConnectivityStats
	err          error

	lastMaxDepth int
	pathCalls    int
}

func (f *fakeGraph) UpsertNode(context.Context, map[string]any) error { return f.err }
func (f *fakeGraph) DeleteNode(context.Context, string) error         { return f.err }
func (f *fakeGraph) UpsertEdge(context.Context, string, string, RelationType, map[string]any) error {
	return f.err
}
func (f *fakeGraph) UpdateEdgeProperties(context.Context, string, string, RelationType, map[string]any) error {
	return f.err
}
func (f *fakeGraph) DeleteEdge(context.Context, string, string, RelationType) error { return f.err }

func (f *fakeGraph) ShortestPaths(_ context.Context, _, _ string, maxDepth int) ([]PathResult, error) {
	f.pathCalls++
	f.lastMaxDepth = maxDepth
	if f.err != nil {
		return nil, f.err
	}
	return f.paths, nil
}

func (f *fakeGraph) Connectivity(_ context.Context, _ string, _ int) (*ConnectivityStats, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.connectivity == nil {
		return &ConnectivityStats{TopConnected: []ConnectedNode{}}, nil
	}
	return f.connectivity, nil
}

// fakeFlusher counts flushes and can simulate a graph store outage.
type fakeFlusher struct {
	calls int
	err   error
}

func (f *fakeFlusher) Flush(context.Context) error {
	f.calls++
	return f.err
}

func newTestService(store *fakeStore, g *fakeGraph, flusher *fakeFlusher) *Service {
	if store == nil {
		store = newFakeStore()
	}
	if g == nil {
		g = &fakeGraph{}
	}
	if flusher == nil {
		flusher = &fakeFlusher{}
	}
	log := slog.Default()
	return NewService(store, g, NewPathFinder(g, log), flusher, log)
}

func TestService_CreateNode(t *testing.T) {
	store := newFakeStore()
	flusher := &fakeFlusher{}
	svc := newTestService(store, nil, flusher)

	node, err := svc.CreateNode(context.Background(), &CreateNodeInput{
		OwnerID: "user-1",
		Title:   "Go concurrency",
		Content: "Goroutines are cheap.",
	})
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, node.ID)
	assert.Equal(t, 1, node.Version)
	assert.True(t, node.IsActive)
	assert.Equal(t, NodeTypeKnowledge, node.NodeType, "node type defaults when omitted")
	assert.Equal(t, ContentTypeText, node.ContentType)
	assert.Equal(t, 1, flusher.calls, "mirror flush runs after the commit")
}

func TestService_CreateNode_DuplicateTitle(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	_, err := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "Same", Content: "a"})
	require.NoError(t, err)

	_, err = svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "Same", Content: "b"})
	assert.ErrorIs(t, err, apperror.ErrConflict)

	// A different owner can reuse the title
	_, err = svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-2", Title: "Same", Content: "c"})
	assert.NoError(t, err)
}

func TestService_CreateNode_TitleReusableAfterDelete(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	node, err := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "Same", Content: "a"})
	require.NoError(t, err)
	require.NoError(t, svc.DeleteNode(ctx, node.ID))

	_, err = svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "Same", Content: "b"})
	assert.NoError(t, err, "soft-deleted titles are free for reuse")
}

func TestService_CreateNode_ValidationError(t *testing.T) {
	flusher := &fakeFlusher{}
	svc := newTestService(nil, nil, flusher)

	_, err := svc.CreateNode(context.Background(), &CreateNodeInput{})
	assert.ErrorIs(t, err, apperror.ErrValidation)
	assert.Zero(t, flusher.calls, "nothing to flush when validation fails")
}

func TestService_CreateNode_FlushFailureSwallowed(t *testing.T) {
	store := newFakeStore()
	flusher := &fakeFlusher{err: errors.New("graph store down")}
	svc := newTestService(store, nil, flusher)

	node, err := svc.CreateNode(context.Background(), &CreateNodeInput{
		OwnerID: "user-1",
		Title:   "t",
		Content: "c",
	})
	require.NoError(t, err, "relational commit succeeded, mirror failure stays internal")
	assert.NotNil(t, store.nodes[node.ID])
}

func TestService_UpdateNode_VersionConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	node, err := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "t", Content: "c"})
	require.NoError(t, err)

	title := "t2"
	updated, err := svc.UpdateNode(ctx, node.ID, &UpdateNodeInput{Version: 1, Title: &title})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version, "version increments by exactly one")

	// Replaying the first write with the stale version must conflict
	_, err = svc.UpdateNode(ctx, node.ID, &UpdateNodeInput{Version: 1, Title: &title})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestService_UpdateNode_NotFound(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	title := "t"
	_, err := svc.UpdateNode(context.Background(), uuid.New(), &UpdateNodeInput{Version: 1, Title: &title})
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestService_DeleteNode_CascadesToRelations(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, err := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	require.NoError(t, err)
	b, err := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})
	require.NoError(t, err)

	rel, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID:      "user-1",
		FromNodeID:   a.ID,
		ToNodeID:     b.ID,
		RelationType: RelationSupports,
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteNode(ctx, a.ID))

	_, err = svc.GetNode(ctx, a.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
	_, err = svc.GetRelation(ctx, rel.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound, "incident relations go inactive with the node")

	// Deleting again reports not found, soft delete is not idempotent
	err = svc.DeleteNode(ctx, a.ID)
	assert.ErrorIs(t, err, apperror.ErrNotFound)
}

func TestService_CreateRelation_Defaults(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	b, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})

	rel, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID:      "user-1",
		FromNodeID:   a.ID,
		ToNodeID:     b.ID,
		RelationType: RelationCauses,
	})
	require.NoError(t, err)

	assert.Equal(t, 0.5, rel.Strength)
	assert.Equal(t, 0.8, rel.Confidence)
	assert.Equal(t, 1, rel.Version)
}

func TestService_CreateRelation_DuplicateTriple(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	b, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})

	in := &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: b.ID, RelationType: RelationReferences,
	}
	rel, err := svc.CreateRelation(ctx, in)
	require.NoError(t, err)

	_, err = svc.CreateRelation(ctx, in)
	assert.ErrorIs(t, err, apperror.ErrConflict, "same (owner, from, to, type) while active")

	// A different type between the same endpoints is a different edge
	_, err = svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: b.ID, RelationType: RelationSupports,
	})
	assert.NoError(t, err)

	// Deleting the first relation frees the triple
	require.NoError(t, svc.DeleteRelation(ctx, rel.ID))
	_, err = svc.CreateRelation(ctx, in)
	assert.NoError(t, err)
}

func TestService_CreateRelation_MissingEndpoint(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})

	_, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: uuid.New(), RelationType: RelationSupports,
	})
	assert.ErrorIs(t, err, apperror.ErrBadRequest)
}

func TestService_CreateRelation_InactiveEndpoint(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	b, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})
	require.NoError(t, svc.DeleteNode(ctx, b.ID))

	_, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: b.ID, RelationType: RelationSupports,
	})
	assert.ErrorIs(t, err, apperror.ErrBadRequest, "soft-deleted endpoints cannot anchor new relations")
}

func TestService_UpdateRelation_VersionConflict(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	b, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})
	rel, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: b.ID, RelationType: RelationSupports,
	})
	require.NoError(t, err)

	strength := 0.9
	updated, err := svc.UpdateRelation(ctx, rel.ID, &UpdateRelationInput{Version: 1, Strength: &strength})
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Version)

	_, err = svc.UpdateRelation(ctx, rel.ID, &UpdateRelationInput{Version: 1, Strength: &strength})
	assert.ErrorIs(t, err, apperror.ErrConflict)
}

func TestService_SearchNodes(t *testing.T) {
	store := newFakeStore()
	svc := newTestService(store, nil, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	b, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})
	_, _ = svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-2", Title: "c", Content: "z"})
	_, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: b.ID, RelationType: RelationSupports,
	})
	require.NoError(t, err)

	result, err := svc.SearchNodes(ctx, "user-1", 10, 0)
	require.NoError(t, err)
	assert.Len(t, result.Nodes, 2, "only the owner's nodes come back")
	assert.Equal(t, 2, result.Total)
	assert.Len(t, result.Relations, 1)

	_, err = svc.SearchNodes(ctx, "", 10, 0)
	assert.ErrorIs(t, err, apperror.ErrBadRequest)
}

func TestService_FindPath_IdenticalEndpoints(t *testing.T) {
	g := &fakeGraph{}
	svc := newTestService(nil, g, nil)

	id := uuid.New()
	paths, err := svc.FindPath(context.Background(), id, id, 5)
	require.NoError(t, err)
	assert.Empty(t, paths)
	assert.Zero(t, g.pathCalls, "identical endpoints never reach the graph store")
}

func TestService_FindPath_DepthClamping(t *testing.T) {
	g := &fakeGraph{}
	svc := newTestService(nil, g, nil)
	ctx := context.Background()
	from, to := uuid.New(), uuid.New()

	_, err := svc.FindPath(ctx, from, to, 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDepth, g.lastMaxDepth, "non-positive depth falls back to the default")

	_, err = svc.FindPath(ctx, from, to, -3)
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxDepth, g.lastMaxDepth)

	_, err = svc.FindPath(ctx, from, to, 50)
	require.NoError(t, err)
	assert.Equal(t, MaxPathDepth, g.lastMaxDepth, "excessive depth is clamped")

	_, err = svc.FindPath(ctx, from, to, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, g.lastMaxDepth, "in-range depth passes through")
}

func TestService_FindPath_GraphStoreDown(t *testing.T) {
	g := &fakeGraph{err: apperror.ErrDependencyUnavailable}
	svc := newTestService(nil, g, nil)

	_, err := svc.FindPath(context.Background(), uuid.New(), uuid.New(), 5)
	assert.ErrorIs(t, err, apperror.ErrDependencyUnavailable)
}

func TestService_FindPath_MissingEndpoint(t *testing.T) {
	svc := newTestService(nil, nil, nil)

	_, err := svc.FindPath(context.Background(), uuid.Nil, uuid.New(), 5)
	assert.ErrorIs(t, err, apperror.ErrBadRequest)
}

func TestService_GetStats_Merges(t *testing.T) {
	store := newFakeStore()
	g := &fakeGraph{
		connectivity: &ConnectivityStats{
			AvgDegree: 1.5,
			TopConnected: []ConnectedNode{
				{NodeID: "n1", Title: "hub", Degree: 3},
			},
		},
	}
	svc := newTestService(store, g, nil)
	ctx := context.Background()

	a, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x", NodeType: NodeTypeConcept})
	b, _ := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "b", Content: "y"})
	_, err := svc.CreateRelation(ctx, &CreateRelationInput{
		OwnerID: "user-1", FromNodeID: a.ID, ToNodeID: b.ID, RelationType: RelationSupports,
	})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, "user-1")
	require.NoError(t, err)

	assert.Equal(t, 2, stats.TotalNodes)
	assert.Equal(t, 1, stats.TotalRelations)
	assert.Equal(t, 1, stats.NodesByType[NodeTypeConcept])
	assert.Equal(t, 1, stats.NodesByType[NodeTypeKnowledge])
	assert.Equal(t, 1, stats.RelationsByType[RelationSupports])
	assert.Equal(t, 1.5, stats.AvgDegree)
	require.Len(t, stats.TopConnected, 1)
	assert.Equal(t, "hub", stats.TopConnected[0].Title)
}

func TestService_GetStats_GraphStoreDownDegrades(t *testing.T) {
	store := newFakeStore()
	g := &fakeGraph{err: apperror.ErrDependencyUnavailable}
	svc := newTestService(store, g, nil)
	ctx := context.Background()

	_, err := svc.CreateNode(ctx, &CreateNodeInput{OwnerID: "user-1", Title: "a", Content: "x"})
	require.NoError(t, err)

	stats, err := svc.GetStats(ctx, "user-1")
	require.NoError(t, err, "counts survive a graph store outage")
	assert.Equal(t, 1, stats.TotalNodes)
	assert.Zero(t, stats.AvgDegree)
	assert.Empty(t, stats.TopConnected)
}
