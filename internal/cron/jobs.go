package cron

import (
	"context"
	"time"

	"github.com/baxromumarov/jobradar/internal/core"
	"github.com/baxromumarov/jobradar/internal/quota"
)

type AlertRunner interface {
	RunDue(ctx context.Context) (core.RunSummary, error)
}

type Sweeper interface {
	Sweep() int
}

func AlertJob(runner AlertRunner) Job {
	return Func("alerts", func(ctx context.Context) error {
		_, err := runner.RunDue(ctx)
		return err
	})
}

func RetentionJob(pruner core.JobPruner, retention time.Duration) Job {
	return Func("retention", func(ctx context.Context) error {
		core.PruneJobs(ctx, pruner, retention)
		return nil
	})
}

func QuotaRefreshJob(tracker *quota.MemoryTracker, counter quota.UsageCounter) Job {
	return Func("quota_refresh", func(ctx context.Context) error {
		return tracker.Refresh(ctx, counter)
	})
}

func CacheSweepJob(c Sweeper) Job {
	return Func("cache_sweep", func(context.Context) error {
		c.Sweep()
		return nil
	})
}
