package handlers

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/transport"
)

// Exit codes requested by owner commands.
const (
	ExitRestart  = 0
	ExitShutdown = 1
)

const inviteHost = "chat.whatsapp.com/"

func newBroadcastHandler(deps HandlerDeps) command.HandlerFunc {
	return broadcastHandler{deps}.Handle
}

type broadcastHandler struct {
	deps HandlerDeps
}

func (h broadcastHandler) Handle(ctx context.Context, inv *command.Invocation) error {
	log := handlerLog(h.deps, "broadcast", inv)

	text := inv.ArgString()
	if text == "" {
		reply(ctx, h.deps, log, inv, "❌ Please provide a message to broadcast.")
		return nil
	}
	reply(ctx, h.deps, log, inv, "⏳ Broadcasting...")

	groups, err := h.deps.Transport.FetchAllGroups(ctx)
	if err != nil {
		log.ErrorContext(ctx, "Failed to list groups", "error", err)
		reply(ctx, h.deps, log, inv, "❌ Broadcast failed.")
		return nil
	}

	limit := rate.Inf
	if d := h.deps.Config.Bot.BroadcastDelay; d > 0 {
		limit = rate.Every(d)
	}
	limiter := rate.NewLimiter(limit, 1)

	body := "📢 *BROADCAST*\n\n" + text
	sent := 0
	for _, g := range groups {
		if err := limiter.Wait(ctx); err != nil {
			log.WarnContext(ctx, "Broadcast interrupted", "sent", sent, "error", err)
			break
		}
		if err := h.deps.Transport.Send(ctx, g.ID, transport.Content{Text: body}, transport.SendOptions{}); err != nil {
			log.WarnContext(ctx, "Failed to broadcast to group", "group", g.ID, "error", err)
			continue
		}
		sent++
	}

	log.InfoContext(ctx, "Broadcast finished", "sent", sent, "groups", len(groups))
	reply(ctx, h.deps, log, inv, fmt.Sprintf("✅ Broadcast sent to %d groups.", sent))
	return nil
}

func newExitHandler(deps HandlerDeps, name, notice string, code int) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, name, inv)
		reply(ctx, deps, log, inv, notice)
		log.WarnContext(ctx, "Owner requested exit", "exit_code", code)
		deps.Lifecycle.RequestExit(code)
		return nil
	}
}

func newJoinHandler(deps HandlerDeps) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "join", inv)

		code, ok := inviteCode(inv.Args)
		if !ok {
			reply(ctx, deps, log, inv, "❌ Invalid link.")
			return nil
		}
		group, err := deps.Transport.AcceptInvite(ctx, code)
		if err != nil {
			log.ErrorContext(ctx, "Failed to join group", "error", err)
			reply(ctx, deps, log, inv, "❌ Failed to join. Maybe I am banned or link is revoked.")
			return nil
		}
		log.InfoContext(ctx, "Joined group", "group", group)
		reply(ctx, deps, log, inv, "✅ Joined group.")
		return nil
	}
}

// inviteCode extracts the code from a chat.whatsapp.com invite link.
func inviteCode(args []string) (string, bool) {
	if len(args) == 0 {
		return "", false
	}
	_, code, ok := strings.Cut(args[0], inviteHost)
	if !ok {
		return "", false
	}
	if i := strings.IndexAny(code, "?#/"); i >= 0 {
		code = code[:i]
	}
	return code, code != ""
}

func newDiagHandler(deps HandlerDeps, catalog Catalog) command.HandlerFunc {
	return func(ctx context.Context, inv *command.Invocation) error {
		log := handlerLog(deps, "diag", inv)

		var m runtime.MemStats
		runtime.ReadMemStats(&m)

		state := "unknown"
		if deps.Connection != nil {
			state = deps.Connection.State().String()
		}
		cooldowns := 0
		if deps.Cooldowns != nil {
			cooldowns = deps.Cooldowns.Len()
		}

		var b strings.Builder
		b.WriteString("🩺 *Diagnostics*\n\n")
		fmt.Fprintf(&b, "Uptime: %s\n", time.Since(deps.Started).Truncate(time.Second))
		fmt.Fprintf(&b, "Connection: %s\n", state)
		fmt.Fprintf(&b, "Goroutines: %d\n", runtime.NumGoroutine())
		fmt.Fprintf(&b, "Memory: %d MB heap / %d MB sys\n", m.HeapAlloc/1024/1024, m.Sys/1024/1024)
		fmt.Fprintf(&b, "Commands: %d\n", catalog.Len())
		fmt.Fprintf(&b, "Cooldown records: %d\n", cooldowns)
		fmt.Fprintf(&b, "Go: %s", runtime.Version())

		reply(ctx, deps, log, inv, b.String())
		return nil
	}
}
