package scheduler

import (
	"context"
	"log/slog"

	"github.com/uptrace/bun"
	"go.uber.org/fx"

	"github.com/noeticlabs/noetic-server/domain/graph"
	"github.com/noeticlabs/noetic-server/internal/config"
)

// Module provides scheduled task functionality
var Module = fx.Module("scheduler",
	fx.Provide(
		NewConfig,
		NewScheduler,
	),
	fx.Invoke(
		RegisterTasks,
		RegisterSchedulerLifecycle,
	),
)

// TaskParams contains dependencies for creating scheduled tasks
type TaskParams struct {
	fx.In
	Scheduler *Scheduler
	DB        bun.IDB
	Outbox    graph.Flusher
	Log       *slog.Logger
	Cfg       *Config
	AppCfg    *config.Config
}

// RegisterTasks registers all scheduled tasks
func RegisterTasks(p TaskParams) error {
	if !p.Cfg.Enabled {
		p.Log.Info("scheduler disabled, skipping task registration")
		return nil
	}

	// Retry pending graph mirror writes
	sweepTask := NewOutboxSweepTask(p.Outbox, p.Log)
	if err := p.Scheduler.AddCronTask("graph_outbox_sweep",
		p.AppCfg.Outbox.SweepSchedule, sweepTask.Run); err != nil {
		return err
	}

	// Prune applied outbox entries past retention
	cleanupTask := NewOutboxCleanupTask(p.DB, p.Log, p.Cfg.OutboxRetention)
	if err := p.Scheduler.AddIntervalTask("graph_outbox_cleanup",
		p.Cfg.OutboxCleanupInterval, cleanupTask.Run); err != nil {
		return err
	}

	p.Log.Info("registered scheduled tasks",
		slog.Any("tasks", p.Scheduler.ListTasks()))

	return nil
}

// RegisterSchedulerLifecycle registers the scheduler with fx lifecycle
func RegisterSchedulerLifecycle(lc fx.Lifecycle, scheduler *Scheduler, cfg *Config) {
	if !cfg.Enabled {
		return
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return scheduler.Start(ctx)
		},
		OnStop: func(ctx context.Context) error {
			return scheduler.Stop(ctx)
		},
	})
}
