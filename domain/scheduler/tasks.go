package scheduler

import (
	"context"
	"log/slog"
	"time"

	"github.com/uptrace/bun"

	"github.com/noeticlabs/noetic-server/domain/graph"
	"github.com/noeticlabs/noetic-server/pkg/logger"
)

// OutboxSweepTask retries pending graph mirror writes. It is the safety net
// behind the request-path flush: anything left behind by a graph store outage
// converges once the store comes back.
type OutboxSweepTask struct {
	outbox graph.Flusher
	log    *slog.Logger
}

// NewOutboxSweepTask creates a new outbox sweep task
func NewOutboxSweepTask(outbox graph.Flusher, log *slog.Logger) *OutboxSweepTask {
	return &OutboxSweepTask{
		outbox: outbox,
		log:    log.With(logger.Scope("scheduler.outbox_sweep")),
	}
}

// Run executes one sweep over the pending outbox entries
func (t *OutboxSweepTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("sweeping graph outbox")

	if err := t.outbox.Flush(ctx); err != nil {
		t.log.Error("outbox sweep failed", logger.Error(err))
		return err
	}

	t.log.Debug("outbox sweep completed",
		slog.Duration("duration", time.Since(start)))
	return nil
}

// OutboxCleanupTask prunes applied outbox entries past the retention window
// so the table does not grow without bound.
type OutboxCleanupTask struct {
	db        bun.IDB
	log       *slog.Logger
	retention time.Duration
}

// NewOutboxCleanupTask creates a new outbox cleanup task
func NewOutboxCleanupTask(db bun.IDB, log *slog.Logger, retention time.Duration) *OutboxCleanupTask {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &OutboxCleanupTask{
		db:        db,
		log:       log.With(logger.Scope("scheduler.outbox_cleanup")),
		retention: retention,
	}
}

// Run executes the outbox cleanup
func (t *OutboxCleanupTask) Run(ctx context.Context) error {
	start := time.Now()
	t.log.Debug("pruning applied outbox entries")

	cutoff := time.Now().Add(-t.retention)
	result, err := t.db.NewDelete().
		Model((*graph.OutboxEntry)(nil)).
		Where("applied_at IS NOT NULL").
		Where("applied_at < ?", cutoff).
		Exec(ctx)
	if err != nil {
		t.log.Error("failed to prune outbox", logger.Error(err))
		return err
	}

	rowsAffected, _ := result.RowsAffected()
	if rowsAffected > 0 {
		t.log.Info("pruned applied outbox entries",
			slog.Int64("count", rowsAffected),
			slog.Duration("duration", time.Since(start)))
	} else {
		t.log.Debug("no applied outbox entries to prune",
			slog.Duration("duration", time.Since(start)))
	}

	return nil
}
