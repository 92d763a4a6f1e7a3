package handlers

import (
	"context"

	"github.com/edgard/wabot/internal/transport"
)

// GroupEvents greets joining members and bids farewell to leaving ones in
// groups that have stored settings.
type GroupEvents struct {
	deps HandlerDeps
}

// NewGroupEvents returns the membership event handler.
func NewGroupEvents(deps HandlerDeps) *GroupEvents {
	return &GroupEvents{deps: deps}
}

// Handle sends one message per affected participant. Promotions and
// demotions are ignored.
func (g *GroupEvents) Handle(ctx context.Context, ev transport.ParticipantsChanged) {
	log := g.deps.Logger.With("handler", "group_events", "conversation", ev.Conversation, "action", string(ev.Action))

	if ev.Action != transport.ActionAdd && ev.Action != transport.ActionRemove {
		return
	}

	policy, err := g.deps.Store.GetGroupPolicy(ctx, ev.Conversation)
	if err != nil {
		log.ErrorContext(ctx, "Failed to load group policy", "error", err)
		return
	}
	if policy == nil {
		return
	}

	template := policy.WelcomeMessage
	if ev.Action == transport.ActionRemove {
		template = policy.GoodbyeMessage
	}
	if template == "" {
		return
	}

	for _, p := range ev.Participants {
		text := fillTemplate(template, p)
		if err := g.deps.Transport.Send(ctx, ev.Conversation, transport.Content{Text: text, Mentions: []string{p}}, transport.SendOptions{}); err != nil {
			log.WarnContext(ctx, "Failed to send membership message", "participant", p, "error", err)
		}
	}
}
