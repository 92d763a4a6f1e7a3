// Package command defines command descriptors, the per-invocation context and
// the registry that resolves typed names and aliases to descriptors.
package command

import (
	"context"
	"strings"
	"time"

	"github.com/edgard/wabot/internal/transport"
)

// Tier is the permission level required to run a command.
type Tier int

const (
	TierPublic Tier = iota
	TierGroupAdmin
	TierOwner
)

func (t Tier) String() string {
	switch t {
	case TierPublic:
		return "public"
	case TierGroupAdmin:
		return "group-admin"
	case TierOwner:
		return "owner"
	default:
		return "unknown"
	}
}

// HandlerFunc runs a command. A returned error is reported to the user as a
// generic failure by the router.
type HandlerFunc func(ctx context.Context, inv *Invocation) error

// Descriptor is a registered command. It is treated as immutable once it has
// been added to a Registry.
type Descriptor struct {
	Name        string
	Aliases     []string
	Tier        Tier
	Cooldown    time.Duration // whole seconds; zero disables throttling
	Category    string
	Description string
	Usage       string
	Handler     HandlerFunc
}

// Invocation is the context handed to a command handler. A fresh value is
// built for every dispatched command.
type Invocation struct {
	ID           string
	Message      *transport.Message
	Sender       string
	Conversation string
	IsGroup      bool
	Prefix       string
	Name         string // as typed, lowercased
	Args         []string
	Descriptor   *Descriptor
}

// ArgString joins the arguments with single spaces.
func (inv *Invocation) ArgString() string {
	return strings.Join(inv.Args, " ")
}
