package handlers

import (
	"context"
	"errors"
	"strings"

	"github.com/edgard/wabot/internal/ai"
	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/transport"
)

func newAIHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "ai", inv)

		prompt := inv.ArgString()
		if prompt == "" {
			reply(ctx, deps, log, inv, "❓ ERROR: What do you want to ask?")
			return nil
		}

		react(ctx, deps, log, inv, "🧠")
		answer, err := deps.AI.Ask(ctx, inv.Conversation, prompt)
		if err != nil {
			log.ErrorContext(ctx, "AI request failed", "error", err)
			reply(ctx, deps, log, inv, deps.Config.Messages.AIUnavailable)
			return nil
		}
		reply(ctx, deps, log, inv, answer)
		return nil
	}
}

// ChatHandler answers unprefixed group messages with the AI when the group
// has chat mode on.
type ChatHandler struct {
	deps HandlerDeps
}

// NewChatHandler returns the passive chat handler.
func NewChatHandler(deps HandlerDeps) *ChatHandler {
	return &ChatHandler{deps: deps}
}

// HandlePassive implements classifier.PassiveHandler.
func (h *ChatHandler) HandlePassive(ctx context.Context, msg *transport.Message, text string, policy *database.GroupPolicy) (bool, error) {
	if !policy.ChatEnabled || h.deps.AI == nil {
		return false, nil
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return false, nil
	}

	answer, err := h.deps.AI.Ask(ctx, msg.Conversation, text)
	if err != nil {
		// Passive replies stay quiet when the providers are down.
		if errors.Is(err, ai.ErrUnavailable) {
			h.deps.Logger.WarnContext(ctx, "AI chat skipped", "conversation", msg.Conversation, "error", err)
			return true, nil
		}
		return true, err
	}
	if err := h.deps.Transport.Send(ctx, msg.Conversation, transport.Content{Text: answer}, transport.SendOptions{Quoted: msg}); err != nil {
		return true, err
	}
	return true, nil
}
