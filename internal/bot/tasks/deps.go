// Package tasks implements the bot's scheduled maintenance tasks.
package tasks

import (
	"context"
	"log/slog"

	"github.com/edgard/wabot/internal/config"
	"github.com/edgard/wabot/internal/connection"
	"github.com/edgard/wabot/internal/database"
)

// CooldownSweeper evicts expired cooldown records.
type CooldownSweeper interface {
	Sweep() int
}

// SessionSaver snapshots the live credentials to the session store.
type SessionSaver interface {
	State() connection.State
	HandleCredentialsUpdate(ctx context.Context) error
}

// TaskDeps contains all dependencies required by scheduled tasks.
type TaskDeps struct {
	Logger    *slog.Logger
	Store     database.Store
	Cooldowns CooldownSweeper
	Sessions  SessionSaver
	Config    *config.Config
}
