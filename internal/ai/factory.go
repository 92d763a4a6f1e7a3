package ai

import (
	"context"
	"log/slog"

	"github.com/edgard/wabot/internal/config"
)

// NewFromConfig builds a client with Gemini first and OpenAI as fallback,
// skipping any provider without an API key. A provider that fails to
// initialize is logged and skipped.
func NewFromConfig(ctx context.Context, cfg *config.Config, history HistoryStore, log *slog.Logger) *Client {
	var providers []Provider

	if cfg.Gemini.APIKey != "" {
		gem, err := NewGeminiProvider(ctx, cfg.Gemini, log)
		if err != nil {
			log.Error("Failed to initialize Gemini provider", "error", err)
		} else {
			providers = append(providers, gem)
		}
	}
	if cfg.OpenAI.APIKey != "" {
		oa, err := NewOpenAIProvider(cfg.OpenAI, cfg.Gemini.SystemInstruction)
		if err != nil {
			log.Error("Failed to initialize OpenAI provider", "error", err)
		} else {
			providers = append(providers, oa)
		}
	}
	if len(providers) == 0 {
		log.Warn("No AI provider configured; AI commands will report unavailability")
	}
	return NewClient(providers, history, log)
}
