// Package ai answers free-form prompts with per-chat history. Providers are
// tried in order; each sits behind its own circuit breaker so a failing
// primary quickly falls through to the next one.
package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/resilience"
)

var (
	// ErrUnavailable is returned when no provider is configured or all failed.
	ErrUnavailable = errors.New("AI services are currently unavailable")
	// ErrEmptyPrompt is returned for blank prompts.
	ErrEmptyPrompt = errors.New("prompt is empty")
	// ErrEmptyResponse is returned by providers that produced no text.
	ErrEmptyResponse = errors.New("provider returned an empty response")
)

// Provider generates a reply from prior turns and a new prompt.
type Provider interface {
	Name() string
	Generate(ctx context.Context, history []database.ChatMessage, prompt string) (string, error)
}

// HistoryStore persists conversation turns per chat.
type HistoryStore interface {
	GetChatHistory(ctx context.Context, chatID string) ([]database.ChatMessage, error)
	AppendChatHistory(ctx context.Context, chatID string, turns ...database.ChatMessage) error
}

type guardedProvider struct {
	Provider
	breaker *resilience.Breaker
}

// Client fans a prompt out over providers until one answers.
type Client struct {
	providers []guardedProvider
	history   HistoryStore
	logger    *slog.Logger
	now       func() time.Time
}

// NewClient builds a client over providers in priority order. history may be
// nil, in which case every prompt is answered without context.
func NewClient(providers []Provider, history HistoryStore, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	log := logger.With("component", "ai")

	guarded := make([]guardedProvider, 0, len(providers))
	for _, p := range providers {
		guarded = append(guarded, guardedProvider{
			Provider: p,
			breaker: resilience.NewBreaker(resilience.BreakerConfig{
				Name:        p.Name(),
				MaxFailures: 3,
				Timeout:     60 * time.Second,
				OpenFor:     2 * time.Minute,
				Logger:      log,
			}),
		})
	}
	return &Client{
		providers: guarded,
		history:   history,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Available reports whether at least one provider is configured.
func (c *Client) Available() bool {
	return c != nil && len(c.providers) > 0
}

// Providers returns the configured provider names in priority order.
func (c *Client) Providers() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.providers))
	for _, p := range c.providers {
		names = append(names, p.Name())
	}
	return names
}

// Ask answers prompt in the context of chatID's history and records the
// exchange on success.
func (c *Client) Ask(ctx context.Context, chatID, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", ErrEmptyPrompt
	}
	if !c.Available() {
		return "", ErrUnavailable
	}

	var history []database.ChatMessage
	if c.history != nil && chatID != "" {
		var err error
		history, err = c.history.GetChatHistory(ctx, chatID)
		if err != nil {
			c.logger.WarnContext(ctx, "Failed to load chat history, continuing without it", "chat_id", chatID, "error", err)
			history = nil
		}
	}

	errs := make([]error, 0, len(c.providers)+1)
	errs = append(errs, ErrUnavailable)
	for _, p := range c.providers {
		var reply string
		err := p.breaker.Execute(ctx, func(ctx context.Context) error {
			var genErr error
			reply, genErr = p.Generate(ctx, history, prompt)
			if genErr == nil && strings.TrimSpace(reply) == "" {
				genErr = ErrEmptyResponse
			}
			return genErr
		})
		if err != nil {
			c.logger.WarnContext(ctx, "AI provider failed", "provider", p.Name(), "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
			if ctx.Err() != nil {
				break
			}
			continue
		}

		reply = strings.TrimSpace(reply)
		c.remember(ctx, chatID, prompt, reply)
		c.logger.DebugContext(ctx, "AI reply generated", "provider", p.Name(), "chat_id", chatID, "history", len(history))
		return reply, nil
	}
	return "", errors.Join(errs...)
}

func (c *Client) remember(ctx context.Context, chatID, prompt, reply string) {
	if c.history == nil || chatID == "" {
		return
	}
	now := c.now()
	err := c.history.AppendChatHistory(ctx, chatID,
		database.ChatMessage{Role: database.RoleUser, Content: prompt, Timestamp: now},
		database.ChatMessage{Role: database.RoleModel, Content: reply, Timestamp: now},
	)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to save chat history", "chat_id", chatID, "error", err)
	}
}
