package database_test

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/wabot/internal/database"
)

func newStore(t *testing.T) database.Store {
	t.Helper()

	path := filepath.Join(t.TempDir(), "bot.db")
	db, dialect, err := database.NewDB(path)
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })

	require.Equal(t, database.DialectSQLite, dialect)
	return database.NewStore(db, dialect, nil)
}

func TestParseURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		url     string
		driver  string
		dialect database.Dialect
	}{
		{name: "postgres", url: "postgres://u:p@localhost/bot", driver: "pgx", dialect: database.DialectPostgres},
		{name: "postgresql", url: "postgresql://localhost/bot", driver: "pgx", dialect: database.DialectPostgres},
		{name: "file path", url: "./data/bot.db", driver: "sqlite", dialect: database.DialectSQLite},
		{name: "file uri", url: "file:bot.db?_pragma=foreign_keys(1)", driver: "sqlite", dialect: database.DialectSQLite},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			driver, dsn, dialect := database.ParseURL(tt.url)
			assert.Equal(t, tt.driver, driver)
			assert.Equal(t, tt.url, dsn)
			assert.Equal(t, tt.dialect, dialect)
		})
	}
}

func TestGroupPolicy(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	missing, err := store.GetGroupPolicy(ctx, "1@g.us")
	require.NoError(t, err)
	assert.Nil(t, missing)

	updated, err := store.UpdateGroupPolicy(ctx, "1@g.us", func(p *database.GroupPolicy) {
		p.ChatEnabled = true
	})
	require.NoError(t, err)
	assert.True(t, updated.ChatEnabled)
	assert.Equal(t, database.DefaultWelcomeMessage, updated.WelcomeMessage)
	assert.Equal(t, database.DefaultMaxWarns, updated.MaxWarns)

	_, err = store.UpdateGroupPolicy(ctx, "1@g.us", func(p *database.GroupPolicy) {
		p.WelcomeMessage = "Hi @user"
	})
	require.NoError(t, err)

	got, err := store.GetGroupPolicy(ctx, "1@g.us")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.ChatEnabled, "earlier update survives")
	assert.Equal(t, "Hi @user", got.WelcomeMessage)
	assert.Equal(t, database.DefaultGoodbyeMessage, got.GoodbyeMessage)

	p := database.NewGroupPolicy("2@g.us")
	p.AntiLink = true
	require.NoError(t, store.SaveGroupPolicy(ctx, p))
	got, err = store.GetGroupPolicy(ctx, "2@g.us")
	require.NoError(t, err)
	assert.True(t, got.AntiLink)
	assert.False(t, got.ChatEnabled)
}

func TestWarnings(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	user, err := store.AddWarning(ctx, "100@s.whatsapp.net", "spam")
	require.NoError(t, err)
	assert.Equal(t, 1, user.Warns)

	user, err = store.AddWarning(ctx, "100@s.whatsapp.net", "links")
	require.NoError(t, err)
	assert.Equal(t, 2, user.Warns)

	got, err := store.GetUser(ctx, "100@s.whatsapp.net")
	require.NoError(t, err)
	require.Len(t, got.WarnReasons, 2)
	assert.Equal(t, "spam", got.WarnReasons[0].Reason)
	assert.Equal(t, "links", got.WarnReasons[1].Reason)

	require.NoError(t, store.ResetWarnings(ctx, "100@s.whatsapp.net"))
	got, err = store.GetUser(ctx, "100@s.whatsapp.net")
	require.NoError(t, err)
	assert.Zero(t, got.Warns)
	assert.Empty(t, got.WarnReasons)
}

func TestRecordActivity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	require.NoError(t, store.RecordActivity(ctx, "100@s.whatsapp.net", "Ana", false))
	require.NoError(t, store.RecordActivity(ctx, "100@s.whatsapp.net", "", true))
	require.NoError(t, store.RecordActivity(ctx, "100@s.whatsapp.net", "Ana B", true))

	got, err := store.GetUser(ctx, "100@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, 2, got.CommandCount)
	assert.Equal(t, "Ana B", got.Name)
	assert.False(t, got.LastSeen.IsZero())
}

func TestSessions(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	got, err := store.GetSession(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, got)

	require.NoError(t, store.SaveSession(ctx, &database.SessionRecord{ID: "main", Data: []byte("v1")}))
	require.NoError(t, store.SaveSession(ctx, &database.SessionRecord{ID: "main", Data: []byte("v2")}))

	got, err = store.GetSession(ctx, "main")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got.Data)

	require.NoError(t, store.DeleteSession(ctx, "main"))
	require.NoError(t, store.DeleteSession(ctx, "main"))
	got, err = store.GetSession(ctx, "main")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestChatHistoryTrimsToLimit(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := newStore(t)

	for i := 0; i < 8; i++ {
		require.NoError(t, store.AppendChatHistory(ctx, "1@g.us",
			database.ChatMessage{Role: database.RoleUser, Content: fmt.Sprintf("q%d", i)},
			database.ChatMessage{Role: database.RoleModel, Content: fmt.Sprintf("a%d", i)},
		))
	}
	require.NoError(t, store.AppendChatHistory(ctx, "2@g.us", database.ChatMessage{Role: database.RoleUser, Content: "other"}))

	history, err := store.GetChatHistory(ctx, "1@g.us")
	require.NoError(t, err)
	require.Len(t, history, database.ChatHistoryLimit)
	assert.Equal(t, "q3", history[0].Content)
	assert.Equal(t, "a7", history[len(history)-1].Content)

	other, err := store.GetChatHistory(ctx, "2@g.us")
	require.NoError(t, err)
	assert.Len(t, other, 1)

	pruned, err := store.PruneChatHistory(ctx)
	require.NoError(t, err)
	assert.Zero(t, pruned)
}

func TestMaintenance(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	require.NoError(t, store.Ping(context.Background()))
	require.NoError(t, store.RunSQLMaintenance(context.Background()))
}
