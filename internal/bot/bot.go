// Package bot implements lifecycle management and component orchestration
// for the WhatsApp bot.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/edgard/wabot/internal/config"
)

// Session is the connection supervisor.
type Session interface {
	Start(ctx context.Context) error
	Stop()
}

// Dispatcher accepts inbound messages until closed.
type Dispatcher interface {
	Close(ctx context.Context) error
}

// StatusServer serves the status pages until ctx is cancelled.
type StatusServer interface {
	Run(ctx context.Context, timeout time.Duration) error
}

// Closer releases a connection.
type Closer interface {
	Close() error
}

// CloseFunc adapts a cleanup function to Closer.
type CloseFunc func()

// Close calls f.
func (f CloseFunc) Close() error {
	f()
	return nil
}

// Components are the long-running parts the bot orchestrates. Everything
// except Session is optional.
type Components struct {
	Session     Session
	Dispatcher  Dispatcher
	Persistence Closer
	Transport   Closer
	Server      StatusServer
	Scheduler   *Scheduler
}

// Bot represents the main bot application and manages its components' lifecycle.
type Bot struct {
	logger     *slog.Logger
	cfg        *config.Config
	components Components

	mu       sync.Mutex
	cancel   context.CancelFunc
	exitCode int
	exiting  bool
}

// NewBot creates a bot. It exists before its components so that command
// handlers can hold it as their exit hook.
func NewBot(logger *slog.Logger, cfg *config.Config) *Bot {
	return &Bot{
		logger: logger.With("component", "bot_orchestrator"),
		cfg:    cfg,
	}
}

// RequestExit stops the bot with the given process exit code. Only the first
// request sets the code.
func (b *Bot) RequestExit(code int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.exiting {
		return
	}
	b.exiting = true
	b.exitCode = code
	if b.cancel != nil {
		b.cancel()
	}
}

// ExitCode returns the code passed to the first RequestExit, or 0.
func (b *Bot) ExitCode() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.exitCode
}

// Run starts every component and blocks until ctx is cancelled, an exit is
// requested or a component fails. In-flight handlers get the configured
// shutdown timeout to finish, then persistence and the transport are closed
// in that order.
func (b *Bot) Run(ctx context.Context, components Components) error {
	b.logger.Info("Starting bot orchestrator...")
	b.components = components

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	b.mu.Lock()
	b.cancel = cancel
	if b.exiting {
		cancel()
	}
	b.mu.Unlock()

	g, gCtx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		if err := b.components.Session.Start(gCtx); err != nil {
			return fmt.Errorf("failed to start session: %w", err)
		}
		<-gCtx.Done()
		b.components.Session.Stop()
		return nil
	})

	if b.components.Server != nil {
		g.Go(func() error {
			return b.components.Server.Run(gCtx, b.cfg.Bot.ShutdownTimeout)
		})
	}

	if b.components.Scheduler != nil {
		g.Go(func() error {
			if err := b.components.Scheduler.Start(gCtx); err != nil {
				return fmt.Errorf("failed to start scheduler: %w", err)
			}
			<-gCtx.Done()
			if err := b.components.Scheduler.Stop(); err != nil {
				b.logger.Error("Error stopping scheduler", "error", err)
			}
			return nil
		})
	}

	b.logger.Info("Bot orchestrator running. Waiting for shutdown signal or error...")
	err := g.Wait()
	b.shutdown()

	if err != nil && !errors.Is(err, context.Canceled) {
		b.logger.Error("Bot orchestrator stopped due to error", "error", err)
		return err
	}

	b.logger.Info("Bot orchestrator stopped gracefully", "exit_code", b.ExitCode())
	return nil
}

func (b *Bot) shutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), b.cfg.Bot.ShutdownTimeout)
	defer cancel()

	if b.components.Dispatcher != nil {
		if err := b.components.Dispatcher.Close(ctx); err != nil {
			b.logger.Warn("Handlers did not finish before shutdown", "error", err)
		}
	}
	if b.components.Persistence != nil {
		if err := b.components.Persistence.Close(); err != nil {
			b.logger.Error("Failed to close database", "error", err)
		}
	}
	if b.components.Transport != nil {
		if err := b.components.Transport.Close(); err != nil {
			b.logger.Error("Failed to close transport", "error", err)
		}
	}
}
