package cron

import (
	"context"
	"fmt"
	"log/slog"
)

// EventPruner is the subset of *memoryactor.Actor the prune job depends
// on, declared locally to avoid a dependency on internal/memoryactor.
type EventPruner interface {
	LogPrune() int
}

// PruneEventsJob removes event-log entries older than the retention
// window, independent of whether any project ever calls Flush — covering
// the case where a project's branch is abandoned rather than merged.
type PruneEventsJob struct {
	Actor        EventPruner
	Logger       *slog.Logger
	ScheduleExpr string // empty = default "0 3 * * *" (daily at 03:00)
}

var _ Job = (*PruneEventsJob)(nil)

func (j *PruneEventsJob) Name() string { return "prune_events" }

func (j *PruneEventsJob) Schedule() string {
	if j.ScheduleExpr != "" {
		return j.ScheduleExpr
	}
	return "0 3 * * *"
}

func (j *PruneEventsJob) Run(ctx context.Context) error {
	if ctx.Err() != nil {
		return fmt.Errorf("cron: prune events cancelled: %w", ctx.Err())
	}
	if j.Actor == nil {
		j.Logger.Debug("cron: prune events skipped (actor not wired)")
		return nil
	}
	pruned := j.Actor.LogPrune()
	if pruned > 0 {
		j.Logger.Info("cron: pruned expired events", "count", pruned)
	}
	return nil
}
