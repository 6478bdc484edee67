package tasks

import (
	"context"

	"github.com/slipstream/homecloud/internal/health"
	"github.com/slipstream/homecloud/internal/scheduler"
)

const HealthCheckTaskID = "health-check"

// RegisterHealthCheckTask lists the account's peers every five minutes to
// refresh the remote and peer health items. The first check runs on start
// and is not retried; a failure waits for the next tick.
func RegisterHealthCheckTask(sched *scheduler.Scheduler, healthService *health.Service, lister health.PeerLister) error {
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          HealthCheckTaskID,
		Name:        "Remote Health Check",
		Description: "Checks the remote API is reachable and which peers are online",
		Cron:        "*/5 * * * *",
		RunOnStart:  true,
		Func: func(ctx context.Context) error {
			return healthService.Check(ctx, lister)
		},
	})
}
