package handlers

import (
	"context"
	"fmt"

	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/transport"
)

// AntiLinkHandler deletes links posted by non-admins in groups that enabled
// anti-link. It consumes every link message in such groups, even when it
// cannot act.
type AntiLinkHandler struct {
	deps HandlerDeps
}

// NewAntiLinkHandler returns the passive anti-link handler.
func NewAntiLinkHandler(deps HandlerDeps) *AntiLinkHandler {
	return &AntiLinkHandler{deps: deps}
}

// HandlePassive implements classifier.PassiveHandler.
func (h *AntiLinkHandler) HandlePassive(ctx context.Context, msg *transport.Message, text string, policy *database.GroupPolicy) (bool, error) {
	if !policy.AntiLink || !ContainsURL(text) {
		return false, nil
	}
	log := h.deps.Logger.With("handler", "antilink", "conversation", msg.Conversation, "actor", msg.Sender)

	senderAdmin, err := h.deps.Groups.IsAdmin(ctx, msg.Conversation, msg.Sender)
	if err != nil {
		return true, fmt.Errorf("sender admin check: %w", err)
	}
	if senderAdmin {
		return true, nil
	}

	botAdmin, err := h.deps.Groups.BotIsAdmin(ctx, msg.Conversation)
	if err != nil {
		return true, fmt.Errorf("bot admin check: %w", err)
	}
	if !botAdmin {
		log.DebugContext(ctx, "Link left in place, bot is not an admin")
		return true, nil
	}

	if err := h.deps.Transport.Revoke(ctx, msg); err != nil {
		return true, fmt.Errorf("revoke link message: %w", err)
	}
	log.InfoContext(ctx, "Link message deleted", "message_id", msg.ID)

	notice := fmt.Sprintf("🚫 %s, links are not allowed in this group.", transport.MentionTag(msg.Address()))
	if err := h.deps.Transport.Send(ctx, msg.Conversation, transport.Content{Text: notice, Mentions: []string{msg.Address()}}, transport.SendOptions{}); err != nil {
		log.WarnContext(ctx, "Failed to send anti-link notice", "error", err)
	}
	return true, nil
}
