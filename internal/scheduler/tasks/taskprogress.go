package tasks

import (
	"github.com/slipstream/homecloud/internal/scheduler"
	"github.com/slipstream/homecloud/internal/watcher"
)

const TaskProgressTaskID = "task-progress"

// RegisterTaskProgressTask registers the task progress poll with the scheduler.
// It runs once on start so clients get a snapshot without waiting for the first tick.
func RegisterTaskProgressTask(sched *scheduler.Scheduler, watcherService *watcher.Service, cron string) error {
	return sched.RegisterTask(&scheduler.TaskConfig{
		ID:          TaskProgressTaskID,
		Name:        "Task Progress",
		Description: "Polls the peer's task lists and broadcasts progress changes",
		Cron:        cron,
		RunOnStart:  true,
		Func:        watcherService.Poll,
	})
}
