// Package permission decides whether an actor may run a command of a given
// tier in a given conversation.
package permission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/transport"
)

// ErrMetadataUnavailable wraps failures to read live group metadata. It is
// never reported as "not an admin".
var ErrMetadataUnavailable = errors.New("group metadata unavailable")

// fetchTimeout bounds a shared metadata request, which outlives any single
// caller's context.
const fetchTimeout = 15 * time.Second

// Reason explains a denial.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonOwnerOnly
	ReasonGroupsOnly
	ReasonAdminOnly
)

func (r Reason) String() string {
	switch r {
	case ReasonOwnerOnly:
		return "owner_only"
	case ReasonGroupsOnly:
		return "groups_only"
	case ReasonAdminOnly:
		return "admin_only"
	default:
		return "none"
	}
}

// Decision is the result of a permission check.
type Decision struct {
	Allowed bool
	Reason  Reason
}

var allow = Decision{Allowed: true}

// Directory is the slice of the transport the evaluator needs.
type Directory interface {
	FetchMetadata(ctx context.Context, conversation string) (*transport.GroupMetadata, error)
	SelfID() string
	SelfLID() string
}

// Evaluator checks command tiers against the configured owner and live group
// admin lists.
type Evaluator struct {
	owner     string
	directory Directory
	fetches   singleflight.Group
}

// NewEvaluator returns an evaluator for the given owner identifier.
func NewEvaluator(owner string, directory Directory) *Evaluator {
	return &Evaluator{
		owner:     transport.NormalizeID(owner),
		directory: directory,
	}
}

// Allows decides whether actor may run a command of tier in conversation.
func (e *Evaluator) Allows(ctx context.Context, tier command.Tier, actor, conversation string) (Decision, error) {
	switch tier {
	case command.TierPublic:
		return allow, nil
	case command.TierOwner:
		if e.IsOwner(actor) {
			return allow, nil
		}
		return Decision{Reason: ReasonOwnerOnly}, nil
	case command.TierGroupAdmin:
		if !transport.IsGroupID(conversation) {
			return Decision{Reason: ReasonGroupsOnly}, nil
		}
		ok, err := e.IsAdmin(ctx, conversation, actor)
		if err != nil {
			return Decision{}, err
		}
		if !ok {
			return Decision{Reason: ReasonAdminOnly}, nil
		}
		return allow, nil
	default:
		return Decision{}, fmt.Errorf("unknown tier %d", tier)
	}
}

// IsOwner compares normalized identifiers so device suffixes and formatting do
// not matter.
func (e *Evaluator) IsOwner(actor string) bool {
	return e.owner != "" && transport.NormalizeID(actor) == e.owner
}

// IsAdmin reads the live admin list of a group.
func (e *Evaluator) IsAdmin(ctx context.Context, conversation, actor string) (bool, error) {
	meta, err := e.metadata(ctx, conversation)
	if err != nil {
		return false, err
	}
	return meta.HasAdmin(actor), nil
}

// BotIsAdmin reports whether the bot's own account is an admin of the group,
// under either its phone or its LID identity. Handlers performing mutating
// group actions check it before acting.
func (e *Evaluator) BotIsAdmin(ctx context.Context, conversation string) (bool, error) {
	self, selfLID := e.directory.SelfID(), e.directory.SelfLID()
	if self == "" && selfLID == "" {
		return false, fmt.Errorf("%w: %w", ErrMetadataUnavailable, transport.ErrNotConnected)
	}
	meta, err := e.metadata(ctx, conversation)
	if err != nil {
		return false, err
	}
	return meta.HasAdmin(self) || meta.HasAdmin(selfLID), nil
}

// Metadata returns live group metadata, collapsing concurrent reads of the
// same group into one request.
func (e *Evaluator) Metadata(ctx context.Context, conversation string) (*transport.GroupMetadata, error) {
	return e.metadata(ctx, conversation)
}

func (e *Evaluator) metadata(ctx context.Context, conversation string) (*transport.GroupMetadata, error) {
	// The shared fetch must not inherit the first caller's cancellation; each
	// caller stops waiting on its own context instead.
	ch := e.fetches.DoChan(conversation, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fetchTimeout)
		defer cancel()
		return e.directory.FetchMetadata(fetchCtx, conversation)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, conversation, ctx.Err())
	}
	if res.Err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrMetadataUnavailable, conversation, res.Err)
	}
	meta, _ := res.Val.(*transport.GroupMetadata)
	if meta == nil {
		return nil, fmt.Errorf("%w: %s: empty response", ErrMetadataUnavailable, conversation)
	}
	return meta, nil
}
