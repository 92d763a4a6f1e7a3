// Package handlers implements the bot's commands, passive chat handlers and
// group membership events.
package handlers

import (
	"context"
	"log/slog"
	"time"

	"github.com/edgard/wabot/internal/config"
	"github.com/edgard/wabot/internal/connection"
	"github.com/edgard/wabot/internal/content"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/media"
	"github.com/edgard/wabot/internal/transport"
)

// GroupAuthority answers admin questions about groups.
type GroupAuthority interface {
	IsAdmin(ctx context.Context, conversation, actor string) (bool, error)
	BotIsAdmin(ctx context.Context, conversation string) (bool, error)
	Metadata(ctx context.Context, conversation string) (*transport.GroupMetadata, error)
}

// Assistant answers AI prompts with per-chat memory.
type Assistant interface {
	Ask(ctx context.Context, chatID, prompt string) (string, error)
}

// Downloader fetches YouTube media.
type Downloader interface {
	Video(ctx context.Context, url string) (*media.Download, error)
	Audio(ctx context.Context, url string) (*media.Download, error)
	MaxBytes() int64
}

// ContentSource fetches fun content from public APIs.
type ContentSource interface {
	Joke(ctx context.Context) (string, error)
	Meme(ctx context.Context) (*content.Meme, error)
	Quote(ctx context.Context) (*content.Quote, error)
	Lyrics(ctx context.Context, artist, song string) (string, error)
	Speech(ctx context.Context, text string) ([]byte, error)
}

// Lifecycle lets owner commands stop the process.
type Lifecycle interface {
	RequestExit(code int)
}

// ConnectionStatus reports the session state.
type ConnectionStatus interface {
	State() connection.State
}

// Counter reports a size, used for diagnostics.
type Counter interface {
	Len() int
}

// HandlerDeps provides dependencies for command handlers.
type HandlerDeps struct {
	Logger     *slog.Logger
	Config     *config.Config
	Store      database.Store
	Transport  transport.Transport
	Groups     GroupAuthority
	AI         Assistant
	Media      Downloader
	Content    ContentSource
	Lifecycle  Lifecycle
	Connection ConnectionStatus
	Cooldowns  Counter
	Started    time.Time
}
