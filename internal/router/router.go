// Package router resolves, authorizes, throttles and invokes commands. It is
// the single point where handler failures are contained.
package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime/debug"
	"time"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/cooldown"
	"github.com/edgard/wabot/internal/permission"
	"github.com/edgard/wabot/internal/transport"
)

// ErrHandlerPanic wraps a value recovered from a panicking handler.
var ErrHandlerPanic = errors.New("command handler panicked")

// Outcome is what happened to a dispatched invocation.
type Outcome int

const (
	OutcomeUnknown Outcome = iota
	OutcomeDenied
	OutcomeThrottled
	OutcomeFailed
	OutcomeCompleted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeUnknown:
		return "unknown"
	case OutcomeDenied:
		return "denied"
	case OutcomeThrottled:
		return "throttled"
	case OutcomeFailed:
		return "failed"
	case OutcomeCompleted:
		return "completed"
	default:
		return "invalid"
	}
}

// Messages are the user-visible notices. Cooldown is a format string taking
// the remaining seconds and the prefixed command name.
type Messages struct {
	OwnerOnly  string
	GroupsOnly string
	AdminOnly  string
	Cooldown   string
	Failure    string
}

// DefaultMessages are used for any empty field.
var DefaultMessages = Messages{
	OwnerOnly:  "⛔ This command is for the bot owner only.",
	GroupsOnly: "⛔ This command is for groups only.",
	AdminOnly:  "⛔ This command is for group admins only.",
	Cooldown:   "⏳ Please wait %ds before using %s again.",
	Failure:    "❌ An error occurred while executing this command.",
}

// Authorizer decides tier access.
type Authorizer interface {
	Allows(ctx context.Context, tier command.Tier, actor, conversation string) (permission.Decision, error)
}

// Throttler enforces per-actor cooldowns.
type Throttler interface {
	CheckAndRecord(actor, command string, cooldown time.Duration) cooldown.Result
}

// Router dispatches invocations to registered handlers.
type Router struct {
	registry *command.Registry
	auth     Authorizer
	throttle Throttler
	sender   transport.Sender
	messages Messages
	logger   *slog.Logger
}

// New returns a router. Empty message fields fall back to DefaultMessages.
func New(registry *command.Registry, auth Authorizer, throttle Throttler, sender transport.Sender, messages Messages, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Router{
		registry: registry,
		auth:     auth,
		throttle: throttle,
		sender:   sender,
		messages: withDefaults(messages),
		logger:   logger.With("component", "router"),
	}
}

// Dispatch runs the full pipeline for one invocation. It never returns an
// error; failures are logged and reported to the user with one notice.
func (r *Router) Dispatch(ctx context.Context, inv *command.Invocation) Outcome {
	desc, ok := r.registry.Resolve(inv.Name)
	if !ok {
		r.logger.DebugContext(ctx, "Ignoring unknown command", "command", inv.Name, "actor", inv.Sender)
		return OutcomeUnknown
	}
	inv.Descriptor = desc

	log := r.logger.With(
		"command", desc.Name,
		"actor", inv.Sender,
		"conversation", inv.Conversation,
		"invocation_id", inv.ID,
	)

	decision, err := r.auth.Allows(ctx, desc.Tier, inv.Sender, inv.Conversation)
	if err != nil {
		log.ErrorContext(ctx, "Permission check failed", "tier", desc.Tier.String(), "error", err)
		r.reply(ctx, log, inv, r.messages.Failure)
		return OutcomeFailed
	}
	if !decision.Allowed {
		log.InfoContext(ctx, "Command denied", "tier", desc.Tier.String(), "reason", decision.Reason.String())
		r.reply(ctx, log, inv, r.denialText(decision.Reason))
		return OutcomeDenied
	}

	res := r.throttle.CheckAndRecord(transport.NormalizeID(inv.Sender), desc.Name, desc.Cooldown)
	if !res.Allowed {
		log.DebugContext(ctx, "Command throttled", "remaining_seconds", res.Remaining)
		r.reply(ctx, log, inv, fmt.Sprintf(r.messages.Cooldown, res.Remaining, inv.Prefix+desc.Name))
		return OutcomeThrottled
	}

	start := time.Now()
	if err := invoke(ctx, desc, inv); err != nil {
		log.ErrorContext(ctx, "Command failed", "error", err, "duration", time.Since(start))
		r.reply(ctx, log, inv, r.messages.Failure)
		return OutcomeFailed
	}
	log.InfoContext(ctx, "Command completed", "duration", time.Since(start))
	return OutcomeCompleted
}

func invoke(ctx context.Context, desc *command.Descriptor, inv *command.Invocation) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrHandlerPanic, rec, debug.Stack())
		}
	}()
	return desc.Handler(ctx, inv)
}

func (r *Router) denialText(reason permission.Reason) string {
	switch reason {
	case permission.ReasonOwnerOnly:
		return r.messages.OwnerOnly
	case permission.ReasonGroupsOnly:
		return r.messages.GroupsOnly
	default:
		return r.messages.AdminOnly
	}
}

func (r *Router) reply(ctx context.Context, log *slog.Logger, inv *command.Invocation, text string) {
	err := r.sender.Send(ctx, inv.Conversation, transport.Content{Text: text}, transport.SendOptions{Quoted: inv.Message})
	if err != nil {
		log.WarnContext(ctx, "Failed to send notice", "error", err)
	}
}

func withDefaults(m Messages) Messages {
	if m.OwnerOnly == "" {
		m.OwnerOnly = DefaultMessages.OwnerOnly
	}
	if m.GroupsOnly == "" {
		m.GroupsOnly = DefaultMessages.GroupsOnly
	}
	if m.AdminOnly == "" {
		m.AdminOnly = DefaultMessages.AdminOnly
	}
	if m.Cooldown == "" {
		m.Cooldown = DefaultMessages.Cooldown
	}
	if m.Failure == "" {
		m.Failure = DefaultMessages.Failure
	}
	return m
}
