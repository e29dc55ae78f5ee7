package graph

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/uptrace/bun"

	"github.com/noeticlabs/noetic-server/internal/config"
	"github.com/noeticlabs/noetic-server/internal/database"
	"github.com/noeticlabs/noetic-server/pkg/apperror"
	"github.com/noeticlabs/noetic-server/pkg/logger"
)

// GraphStore is the synchronizer's and query engine's view of the graph
// store adapter. *Mirror satisfies it; tests substitute fakes.
type GraphStore interface {
	UpsertNode(ctx context.Context, props map[string]any) error
	DeleteNode(ctx context.Context, id string) error
	UpsertEdge(ctx context.Context, fromID, toID string, edgeType RelationType, props map[string]any) error
	UpdateEdgeProperties(ctx context.Context, fromID, toID string, edgeType RelationType, props map[string]any) error
	DeleteEdge(ctx context.Context, fromID, toID string, edgeType RelationType) error
	ShortestPaths(ctx context.Context, fromID, toID string, maxDepth int) ([]PathResult, error)
	Connectivity(ctx context.Context, ownerID string, topN int) (*ConnectivityStats, error)
}

var (
	outboxApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noetic_graph_outbox_applied_total",
		Help: "Mirror operations successfully applied to the graph store.",
	})
	outboxFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "noetic_graph_outbox_failed_total",
		Help: "Mirror operations that failed and stay queued for retry.",
	}, []string{"op"})
	outboxGaveUp = promauto.NewCounter(prometheus.CounterOpts{
		Name: "noetic_graph_outbox_gave_up_total",
		Help: "Mirror operations abandoned after exhausting retry attempts.",
	})
)

// Synchronizer drains the graph_outbox into the graph store. The relational
// write is the authoritative commit; mirror writes happen strictly after it,
// and a failing mirror write never surfaces to the caller — the entry stays
// queued and the reconciliation sweep retries it.
type Synchronizer struct {
	db     bun.IDB
	mirror GraphStore
	log    *slog.Logger

	batchSize   int
	maxAttempts int
}

// NewSynchronizer creates the synchronizer.
func NewSynchronizer(db bun.IDB, mirror GraphStore, cfg *config.Config, log *slog.Logger) *Synchronizer {
	return &Synchronizer{
		db:          db,
		mirror:      mirror,
		log:         log.With(logger.Scope("graph.sync")),
		batchSize:   cfg.Outbox.BatchSize,
		maxAttempts: cfg.Outbox.MaxAttempts,
	}
}

// Flush applies one batch of pending outbox entries, oldest first so node
// upserts land before the edges that depend on them. Entries are claimed in
// a short transaction that commits before any mirror write, so a hanging
// graph store never pins row locks or a pool connection. Per-entry mirror
// failures are recorded on the row, not returned.
func (s *Synchronizer) Flush(ctx context.Context) error {
	entries, err := s.claim(ctx)
	if err != nil {
		return err
	}

	for _, entry := range entries {
		s.deliver(ctx, entry)
		if err := s.record(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// claim selects one batch of pending entries with SKIP LOCKED, so concurrent
// flushes (request-path and sweep) don't collide, and charges an attempt up
// front before committing. A crash between claim and record burns the
// attempt; a re-claim by another flusher at worst re-applies an entry, which
// the MERGE and DETACH DELETE mirror writes tolerate.
func (s *Synchronizer) claim(ctx context.Context) ([]*OutboxEntry, error) {
	tx, err := database.BeginSafeTx(ctx, s.db)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	defer tx.Rollback()

	var entries []*OutboxEntry
	err = tx.NewSelect().
		Model(&entries).
		Where("applied_at IS NULL").
		Where("attempts < ?", s.maxAttempts).
		Order("created_at ASC", "id ASC").
		Limit(s.batchSize).
		For("UPDATE SKIP LOCKED").
		Scan(ctx)
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	ids := make([]int64, len(entries))
	for i, entry := range entries {
		ids[i] = entry.ID
	}
	if _, err := tx.NewUpdate().
		Model((*OutboxEntry)(nil)).
		Set("attempts = attempts + 1").
		Where("id IN (?)", bun.In(ids)).
		Exec(ctx); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	for _, entry := range entries {
		entry.Attempts++
	}
	return entries, nil
}

// deliver applies one claimed entry to the graph store and notes the outcome
// on the entry. The attempt was already charged at claim time.
func (s *Synchronizer) deliver(ctx context.Context, entry *OutboxEntry) {
	if applyErr := s.apply(ctx, entry); applyErr != nil {
		msg := applyErr.Error()
		entry.LastError = &msg

		outboxFailed.WithLabelValues(string(entry.Op)).Inc()
		if entry.Attempts >= s.maxAttempts {
			outboxGaveUp.Inc()
			s.log.Error("giving up on mirror write",
				slog.Int64("outbox_id", entry.ID),
				slog.String("op", string(entry.Op)),
				slog.String("entity_id", entry.EntityID.String()),
				logger.Error(applyErr),
			)
		} else {
			s.log.Warn("mirror write failed, will retry",
				slog.Int64("outbox_id", entry.ID),
				slog.String("op", string(entry.Op)),
				slog.Int("attempts", entry.Attempts),
				logger.Error(applyErr),
			)
		}
		return
	}

	now := time.Now().UTC()
	entry.AppliedAt = &now
	entry.LastError = nil
	outboxApplied.Inc()
}

// record persists the delivery outcome. Attempts were bumped at claim time,
// so only the terminal columns change here.
func (s *Synchronizer) record(ctx context.Context, entry *OutboxEntry) error {
	if _, err := s.db.NewUpdate().
		Model(entry).
		Column("last_error", "applied_at").
		WherePK().
		Exec(ctx); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}
	return nil
}

// apply dispatches one outbox entry to the graph store.
func (s *Synchronizer) apply(ctx context.Context, entry *OutboxEntry) error {
	payload := entry.Payload

	switch entry.Op {
	case OpUpsertNode:
		return s.mirror.UpsertNode(ctx, payload)

	case OpDeleteNode:
		return s.mirror.DeleteNode(ctx, entry.EntityID.String())

	case OpUpsertEdge:
		fromID, toID, edgeType, props := edgeFields(payload)
		return s.mirror.UpsertEdge(ctx, fromID, toID, edgeType, props)

	case OpUpdateEdge:
		fromID, toID, edgeType, props := edgeFields(payload)
		return s.mirror.UpdateEdgeProperties(ctx, fromID, toID, edgeType, props)

	case OpDeleteEdge:
		fromID, toID, edgeType, _ := edgeFields(payload)
		return s.mirror.DeleteEdge(ctx, fromID, toID, edgeType)

	default:
		return fmt.Errorf("unknown outbox op %q", entry.Op)
	}
}

func edgeFields(payload map[string]any) (fromID, toID string, edgeType RelationType, props map[string]any) {
	fromID, _ = payload["fromId"].(string)
	toID, _ = payload["toId"].(string)
	rawType, _ := payload["edgeType"].(string)
	edgeType = RelationType(rawType)
	props, _ = payload["props"].(map[string]any)
	return fromID, toID, edgeType, props
}
