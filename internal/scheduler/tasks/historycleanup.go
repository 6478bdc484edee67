package tasks

import (
	"context"

	"github.com/slipstream/homecloud/internal/history"
	"github.com/slipstream/homecloud/internal/scheduler"
)

const HistoryCleanupTaskID = "history-cleanup"

// RegisterHistoryCleanupTask registers the history cleanup task with the scheduler.
// The task runs daily at 2 AM to delete submissions older than retentionDays.
func RegisterHistoryCleanupTask(sched *scheduler.Scheduler, historyService *history.Service, retentionDays int) error {
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          HistoryCleanupTaskID,
		Name:        "History Cleanup",
		Description: "Deletes submission history older than the configured retention period",
		Cron:        "0 2 * * *",
		RunOnStart:  false,
		Func: func(ctx context.Context) error {
			_, err := historyService.Cleanup(ctx, retentionDays)
			return err
		},
	})
}
