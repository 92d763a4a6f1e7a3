// Package notify delivers operator alerts to a Telegram chat.
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/go-telegram/bot"
)

// Telegram sends alerts through a Telegram bot. A Telegram built without a
// token only logs.
type Telegram struct {
	bot    *bot.Bot
	chatID int64
	logger *slog.Logger
}

// NewTelegram creates an alerter. An empty token yields a log-only alerter.
func NewTelegram(token string, chatID int64, logger *slog.Logger, opts ...bot.Option) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "alerts")

	if token == "" {
		log.Info("Telegram alerts disabled")
		return &Telegram{logger: log}, nil
	}

	// getMe would make startup depend on Telegram being reachable.
	opts = append([]bot.Option{bot.WithSkipGetMe()}, opts...)
	b, err := bot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create telegram bot: %w", err)
	}

	log.Info("Telegram alerts enabled", "chat_id", chatID)
	return &Telegram{bot: b, chatID: chatID, logger: log}, nil
}

// Enabled reports whether alerts leave the process.
func (t *Telegram) Enabled() bool { return t.bot != nil }

// Alert sends text to the configured chat.
func (t *Telegram) Alert(ctx context.Context, text string) error {
	if t.bot == nil {
		t.logger.WarnContext(ctx, "Alert", "text", text)
		return nil
	}
	if _, err := t.bot.SendMessage(ctx, &bot.SendMessageParams{
		ChatID: t.chatID,
		Text:   text,
	}); err != nil {
		return fmt.Errorf("failed to send telegram alert: %w", err)
	}
	t.logger.DebugContext(ctx, "Alert sent", "chat_id", t.chatID)
	return nil
}
