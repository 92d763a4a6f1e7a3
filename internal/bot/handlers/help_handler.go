package handlers

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/edgard/wabot/internal/command"
)

// Catalog lists the registered commands.
type Catalog interface {
	ListCanonical() []*command.Descriptor
	Len() int
}

func newHelpHandler(deps HandlerDeps, catalog Catalog) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "help", inv)
		reply(ctx, deps, log, inv, FormatHelp(catalog.ListCanonical(), inv.Prefix))
		return nil
	}
}

// FormatHelp renders the command list grouped by tier.
func FormatHelp(descs []*command.Descriptor, prefix string) string {
	sections := []struct {
		tier  command.Tier
		title string
	}{
		{command.TierPublic, "*📢 Public Commands*"},
		{command.TierGroupAdmin, "*🛡️ Group Admin*"},
		{command.TierOwner, "*👑 Owner*"},
	}

	var b strings.Builder
	b.WriteString("*🤖 WhatsApp Bot Commands*")
	for _, s := range sections {
		b.WriteString("\n\n")
		b.WriteString(s.title)
		for _, d := range descs {
			if d.Tier != s.tier {
				continue
			}
			fmt.Fprintf(&b, "\n  • *%s%s*: %s", prefix, d.Name, d.Description)
		}
	}
	return b.String()
}

func newPingHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "ping", inv)
		text := "🏓 Pong!"
		if ts := inv.Message.Timestamp; !ts.IsZero() {
			text = fmt.Sprintf("🏓 Pong! (%dms)", time.Since(ts).Milliseconds())
		}
		reply(ctx, deps, log, inv, text)
		return nil
	}
}
