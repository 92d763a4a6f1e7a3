package tasks

import (
	"context"

	"github.com/edgard/wabot/internal/config"
)

// ScheduledTaskFunc defines the standard signature for all scheduled tasks.
// The context provided by the scheduler should be respected for cancellation.
type ScheduledTaskFunc func(ctx context.Context) error

// RegisterAllTasks returns every task keyed by the name used in the scheduler
// configuration. Tasks whose dependency is missing are left out.
func RegisterAllTasks(deps TaskDeps) map[string]ScheduledTaskFunc {
	tasks := make(map[string]ScheduledTaskFunc)

	if deps.Store != nil {
		tasks[config.TaskSQLMaintenance] = newSQLMaintenanceTask(deps)
		tasks[config.TaskChatHistoryPrune] = newChatHistoryPruneTask(deps)
	}
	if deps.Cooldowns != nil {
		tasks[config.TaskCooldownSweep] = newCooldownSweepTask(deps)
	}
	if deps.Sessions != nil {
		tasks[config.TaskSessionBackup] = newSessionBackupTask(deps)
	}

	deps.Logger.Info("Initialized scheduled tasks", "count", len(tasks))
	return tasks
}
