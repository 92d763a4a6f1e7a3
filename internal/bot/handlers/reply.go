package handlers

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/transport"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// ContainsURL reports whether text has an http or https link.
func ContainsURL(text string) bool {
	return urlPattern.MatchString(text)
}

// reply sends text quoting the invoking message. Send failures are logged and
// otherwise ignored.
func reply(ctx context.Context, deps HandlerDeps, log *slog.Logger, inv *command.Invocation, text string, mentions ...string) {
	send(ctx, deps, log, inv, transport.Content{Text: text, Mentions: mentions})
}

func send(ctx context.Context, deps HandlerDeps, log *slog.Logger, inv *command.Invocation, c transport.Content) {
	if err := deps.Transport.Send(ctx, inv.Conversation, c, transport.SendOptions{Quoted: inv.Message}); err != nil {
		log.WarnContext(ctx, "Failed to send reply", "error", err)
	}
}

func react(ctx context.Context, deps HandlerDeps, log *slog.Logger, inv *command.Invocation, emoji string) {
	if err := deps.Transport.React(ctx, inv.Message, emoji); err != nil {
		log.DebugContext(ctx, "Failed to react", "emoji", emoji, "error", err)
	}
}

// target returns the first mentioned user, or the author of the quoted
// message when nobody is mentioned.
func target(inv *command.Invocation) string {
	msg := inv.Message
	if msg == nil {
		return ""
	}
	if len(msg.Mentions) > 0 {
		return msg.Mentions[0]
	}
	if msg.QuotedID != "" {
		return msg.QuotedParticipant
	}
	return ""
}

// fillTemplate replaces the first "@user" with a mention tag for id.
func fillTemplate(template, id string) string {
	return strings.Replace(template, "@user", transport.MentionTag(id), 1)
}

func handlerLog(deps HandlerDeps, name string, inv *command.Invocation) *slog.Logger {
	return deps.Logger.With(
		"handler", name,
		"actor", inv.Sender,
		"conversation", inv.Conversation,
		"invocation_id", inv.ID,
	)
}
