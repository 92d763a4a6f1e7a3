package tasks_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/wabot/internal/bot/tasks"
	"github.com/edgard/wabot/internal/config"
	"github.com/edgard/wabot/internal/connection"
	"github.com/edgard/wabot/internal/database"
)

type fakeSweeper struct{ calls int }

func (f *fakeSweeper) Sweep() int {
	f.calls++
	return 2
}

type fakeSessions struct {
	state connection.State
	err   error
	saves int
}

func (f *fakeSessions) State() connection.State { return f.state }

func (f *fakeSessions) HandleCredentialsUpdate(context.Context) error {
	f.saves++
	return f.err
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newStore(t *testing.T) database.Store {
	t.Helper()
	db, dialect, err := database.NewDB(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	return database.NewStore(db, dialect, nil)
}

func TestRegisterAllTasks(t *testing.T) {
	t.Parallel()

	all := tasks.RegisterAllTasks(tasks.TaskDeps{
		Logger:    discard(),
		Store:     newStore(t),
		Cooldowns: &fakeSweeper{},
		Sessions:  &fakeSessions{},
	})
	assert.Len(t, all, 4)
	for _, name := range []string{config.TaskCooldownSweep, config.TaskSQLMaintenance, config.TaskChatHistoryPrune, config.TaskSessionBackup} {
		assert.Contains(t, all, name)
	}

	partial := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: discard(), Cooldowns: &fakeSweeper{}})
	assert.Len(t, partial, 1)
}

func TestStoreTasksRun(t *testing.T) {
	t.Parallel()

	store := newStore(t)
	ctx := context.Background()
	for i := 0; i < database.ChatHistoryLimit+3; i++ {
		require.NoError(t, store.AppendChatHistory(ctx, "chat", database.ChatMessage{Role: database.RoleUser, Content: "hi"}))
	}

	all := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: discard(), Store: store})
	require.NoError(t, all[config.TaskSQLMaintenance](ctx))
	require.NoError(t, all[config.TaskChatHistoryPrune](ctx))

	history, err := store.GetChatHistory(ctx, "chat")
	require.NoError(t, err)
	assert.Len(t, history, database.ChatHistoryLimit)
}

func TestCooldownSweepTask(t *testing.T) {
	t.Parallel()

	sweeper := &fakeSweeper{}
	all := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: discard(), Cooldowns: sweeper})
	require.NoError(t, all[config.TaskCooldownSweep](context.Background()))
	assert.Equal(t, 1, sweeper.calls)
}

func TestSessionBackupTask(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		sessions  *fakeSessions
		wantSaves int
		wantErr   bool
	}{
		{name: "open session is saved", sessions: &fakeSessions{state: connection.StateOpen}, wantSaves: 1},
		{name: "unpaired session is skipped", sessions: &fakeSessions{state: connection.StateConnecting}},
		{name: "logged out is not an error", sessions: &fakeSessions{state: connection.StateOpen, err: connection.ErrTerminal}, wantSaves: 1},
		{name: "store failure is reported", sessions: &fakeSessions{state: connection.StateOpen, err: errors.New("disk full")}, wantSaves: 1, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			all := tasks.RegisterAllTasks(tasks.TaskDeps{Logger: discard(), Sessions: tt.sessions})
			err := all[config.TaskSessionBackup](context.Background())
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantSaves, tt.sessions.saves)
		})
	}
}
