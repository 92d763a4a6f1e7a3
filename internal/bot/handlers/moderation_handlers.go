package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/transport"
)

func newBanHandler(deps HandlerDeps) command.HandlerFunc {
	return banHandler{deps}.Handle
}

type banHandler struct {
	deps HandlerDeps
}

func (h banHandler) Handle(ctx context.Context, inv *command.Invocation) error {
	log := handlerLog(h.deps, "ban", inv)

	botAdmin, err := h.deps.Groups.BotIsAdmin(ctx, inv.Conversation)
	if err != nil {
		return fmt.Errorf("bot admin check: %w", err)
	}
	if !botAdmin {
		reply(ctx, h.deps, log, inv, h.deps.Config.Messages.BotNotAdmin)
		return nil
	}

	victim := target(inv)
	if victim == "" {
		reply(ctx, h.deps, log, inv, h.deps.Config.Messages.NeedTarget)
		return nil
	}

	if err := h.deps.Transport.UpdateParticipants(ctx, inv.Conversation, []string{victim}, transport.ActionRemove); err != nil {
		log.ErrorContext(ctx, "Failed to remove participant", "target", victim, "error", err)
		reply(ctx, h.deps, log, inv, "❌ Failed to remove user.")
		return nil
	}
	log.InfoContext(ctx, "Participant removed", "target", victim)
	reply(ctx, h.deps, log, inv, "✅ User removed.")
	return nil
}

func newWarnHandler(deps HandlerDeps) command.HandlerFunc {
	return warnHandler{deps}.Handle
}

type warnHandler struct {
	deps HandlerDeps
}

func (h warnHandler) Handle(ctx context.Context, inv *command.Invocation) error {
	log := handlerLog(h.deps, "warn", inv)

	victim := target(inv)
	if victim == "" {
		reply(ctx, h.deps, log, inv, h.deps.Config.Messages.NeedTarget)
		return nil
	}

	reason := "No reason provided"
	if len(inv.Args) > 1 {
		reason = strings.Join(inv.Args[1:], " ")
	}

	maxWarns := database.DefaultMaxWarns
	policy, err := h.deps.Store.GetGroupPolicy(ctx, inv.Conversation)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load group policy", "error", err)
		reply(ctx, h.deps, log, inv, h.deps.Config.Messages.DatabaseError)
		return nil
	}
	if policy != nil && policy.MaxWarns > 0 {
		maxWarns = policy.MaxWarns
	}

	user, err := h.deps.Store.AddWarning(ctx, victim, reason)
	if err != nil {
		log.ErrorContext(ctx, "Failed to record warning", "target", victim, "error", err)
		reply(ctx, h.deps, log, inv, "❌ Failed to warn user.")
		return nil
	}

	tag := transport.MentionTag(victim)
	reply(ctx, h.deps, log, inv, fmt.Sprintf("⚠️ %s has been warned (%d/%d).\nReason: %s", tag, user.Warns, maxWarns, reason), victim)

	if user.Warns < maxWarns {
		return nil
	}

	botAdmin, err := h.deps.Groups.BotIsAdmin(ctx, inv.Conversation)
	if err != nil {
		return fmt.Errorf("bot admin check: %w", err)
	}
	if !botAdmin {
		h.announce(ctx, log, inv, "⚠️ User reached max warnings but I cannot kick (not admin).")
		return nil
	}

	h.announce(ctx, log, inv, fmt.Sprintf("🔴 Max warnings reached. Removing %s...", tag), victim)
	if err := h.deps.Transport.UpdateParticipants(ctx, inv.Conversation, []string{victim}, transport.ActionRemove); err != nil {
		log.ErrorContext(ctx, "Failed to remove warned participant", "target", victim, "error", err)
		reply(ctx, h.deps, log, inv, "❌ Failed to remove user.")
		return nil
	}
	if err := h.deps.Store.ResetWarnings(ctx, victim); err != nil {
		log.ErrorContext(ctx, "Failed to reset warnings", "target", victim, "error", err)
	}
	log.InfoContext(ctx, "Participant removed after max warnings", "target", victim, "warns", user.Warns)
	return nil
}

// announce sends to the group without quoting.
func (h warnHandler) announce(ctx context.Context, log *slog.Logger, inv *command.Invocation, text string, mentions ...string) {
	err := h.deps.Transport.Send(ctx, inv.Conversation, transport.Content{Text: text, Mentions: mentions}, transport.SendOptions{})
	if err != nil {
		log.WarnContext(ctx, "Failed to send announcement", "error", err)
	}
}

func newTagAllHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "tagall", inv)

		meta, err := deps.Groups.Metadata(ctx, inv.Conversation)
		if err != nil {
			log.ErrorContext(ctx, "Failed to fetch participants", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to fetch participants.")
			return nil
		}

		ids := make([]string, 0, len(meta.Participants))
		var b strings.Builder
		b.WriteString("📢 *Everyone*\n\n")
		for _, p := range meta.Participants {
			ids = append(ids, p.ID)
			b.WriteString(transport.MentionTag(p.ID))
			b.WriteByte('\n')
		}
		reply(ctx, deps, log, inv, b.String(), ids...)
		return nil
	}
}
