package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edgard/wabot/internal/connection"
)

func newCooldownSweepTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "cooldown_sweep")

	return func(ctx context.Context) error {
		removed := deps.Cooldowns.Sweep()
		log.DebugContext(ctx, "Swept cooldown records", "removed", removed)
		return nil
	}
}

// newSQLMaintenanceTask reclaims space and refreshes planner statistics.
func newSQLMaintenanceTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "sql_maintenance")

	return func(ctx context.Context) error {
		start := time.Now()
		if err := deps.Store.RunSQLMaintenance(ctx); err != nil {
			return fmt.Errorf("sql maintenance failed: %w", err)
		}
		log.InfoContext(ctx, "Database maintenance completed", "duration", time.Since(start))
		return nil
	}
}

func newChatHistoryPruneTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "chat_history_prune")

	return func(ctx context.Context) error {
		removed, err := deps.Store.PruneChatHistory(ctx)
		if err != nil {
			return fmt.Errorf("chat history prune failed: %w", err)
		}
		log.InfoContext(ctx, "Pruned chat history", "removed", removed)
		return nil
	}
}

// newSessionBackupTask snapshots credentials periodically, covering key
// changes that raise no credentials event.
func newSessionBackupTask(deps TaskDeps) ScheduledTaskFunc {
	log := deps.Logger.With("task", "session_backup")

	return func(ctx context.Context) error {
		// An unpaired store must never replace a good remote snapshot.
		if state := deps.Sessions.State(); state != connection.StateOpen {
			log.DebugContext(ctx, "Skipping session backup", "state", state.String())
			return nil
		}
		err := deps.Sessions.HandleCredentialsUpdate(ctx)
		if errors.Is(err, connection.ErrTerminal) {
			log.DebugContext(ctx, "Skipping backup of logged out session")
			return nil
		}
		if err != nil {
			return fmt.Errorf("session backup failed: %w", err)
		}
		return nil
	}
}
