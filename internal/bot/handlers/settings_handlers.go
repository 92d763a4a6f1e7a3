package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/database"
)

// newTemplateHandler stores a welcome or goodbye template.
func newTemplateHandler(deps HandlerDeps, kind string, set func(*database.GroupPolicy, string)) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, kind, inv)

		text := inv.ArgString()
		if text == "" {
			reply(ctx, deps, log, inv, fmt.Sprintf("❌ Please provide a %s message. Use @user for mention.", kind))
			return nil
		}

		if _, err := deps.Store.UpdateGroupPolicy(ctx, inv.Conversation, func(p *database.GroupPolicy) {
			set(p, text)
		}); err != nil {
			log.ErrorContext(ctx, "Failed to update group policy", "error", err)
			reply(ctx, deps, log, inv, deps.Config.Messages.DatabaseError)
			return nil
		}
		reply(ctx, deps, log, inv, fmt.Sprintf("✅ %s message updated.", strings.ToUpper(kind[:1])+kind[1:]))
		return nil
	}
}

// newToggleHandler flips a boolean group setting with "on" or "off".
func newToggleHandler(deps HandlerDeps, name, label string, set func(*database.GroupPolicy, bool)) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, name, inv)

		enable, ok := parseSwitch(inv.Args)
		if !ok {
			reply(ctx, deps, log, inv, fmt.Sprintf("usage: %s%s on/off", inv.Prefix, inv.Name))
			return nil
		}

		if _, err := deps.Store.UpdateGroupPolicy(ctx, inv.Conversation, func(p *database.GroupPolicy) {
			set(p, enable)
		}); err != nil {
			log.ErrorContext(ctx, "Failed to update group policy", "error", err)
			reply(ctx, deps, log, inv, deps.Config.Messages.DatabaseError)
			return nil
		}
		state := "DISABLED"
		if enable {
			state = "ENABLED"
		}
		reply(ctx, deps, log, inv, fmt.Sprintf("✅ %s %s", label, state))
		return nil
	}
}

func newRenameHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "rename", inv)

		name := inv.ArgString()
		if name == "" {
			reply(ctx, deps, log, inv, "❌ Please provide a new name.")
			return nil
		}
		if err := deps.Transport.UpdateSubject(ctx, inv.Conversation, name); err != nil {
			log.ErrorContext(ctx, "Failed to rename group", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to rename group. I might not be an admin.")
			return nil
		}
		reply(ctx, deps, log, inv, fmt.Sprintf("✅ Group renamed to \"%s\"", name))
		return nil
	}
}

func parseSwitch(args []string) (bool, bool) {
	if len(args) == 0 {
		return false, false
	}
	switch strings.ToLower(args[0]) {
	case "on":
		return true, true
	case "off":
		return false, true
	default:
		return false, false
	}
}
