package tasks

import (
	"context"

	"github.com/slipstream/homecloud/internal/scheduler"
)

const RateLimitCleanupTaskID = "rate-limit-cleanup"

// Cleaner drops expired state.
type Cleaner interface {
	Cleanup()
}

// RegisterRateLimitCleanupTask prunes expired API rate limit buckets every ten minutes.
func RegisterRateLimitCleanupTask(sched *scheduler.Scheduler, limiter Cleaner) error {
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          RateLimitCleanupTaskID,
		Name:        "Rate Limit Cleanup",
		Description: "Drops expired per-client rate limit and lockout entries",
		Cron:        "*/10 * * * *",
		Func: func(ctx context.Context) error {
			limiter.Cleanup()
			return nil
		},
	})
}
