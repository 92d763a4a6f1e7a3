package router_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/cooldown"
	"github.com/edgard/wabot/internal/permission"
	"github.com/edgard/wabot/internal/router"
	"github.com/edgard/wabot/internal/transport"
)

const (
	group  = "120363000000000000@g.us"
	dm     = "300@s.whatsapp.net"
	owner  = "5511999999999@s.whatsapp.net"
	admin  = "100@s.whatsapp.net"
	member = "300@s.whatsapp.net"
)

type sent struct {
	conversation string
	text         string
	quoted       *transport.Message
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
}

func (s *recordingSender) Send(_ context.Context, conv string, c transport.Content, opts transport.SendOptions) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{conversation: conv, text: c.Text, quoted: opts.Quoted})
	return nil
}

func (s *recordingSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sent))
	for _, m := range s.sent {
		out = append(out, m.text)
	}
	return out
}

type directory struct {
	err error
}

func (d directory) FetchMetadata(context.Context, string) (*transport.GroupMetadata, error) {
	if d.err != nil {
		return nil, d.err
	}
	return &transport.GroupMetadata{
		ID: group,
		Participants: []transport.Participant{
			{ID: admin, IsAdmin: true},
			{ID: member},
		},
	}, nil
}

func (d directory) SelfID() string  { return "999@s.whatsapp.net" }
func (d directory) SelfLID() string { return "" }

type fixture struct {
	router *router.Router
	sender *recordingSender
	clock  *clockwork.FakeClock
	logs   *bytes.Buffer
	calls  map[string]int
	mu     sync.Mutex
}

func newFixture(t *testing.T, dir directory) *fixture {
	t.Helper()

	f := &fixture{
		sender: &recordingSender{},
		clock:  clockwork.NewFakeClock(),
		logs:   &bytes.Buffer{},
		calls:  make(map[string]int),
	}
	record := func(name string, err error) command.HandlerFunc {
		return func(context.Context, *command.Invocation) error {
			f.mu.Lock()
			f.calls[name]++
			f.mu.Unlock()
			return err
		}
	}

	reg, err := command.Build([]command.Descriptor{
		{Name: "ban", Aliases: []string{"kick", "remove"}, Tier: command.TierGroupAdmin, Cooldown: 3 * time.Second, Handler: record("ban", nil)},
		{Name: "yt", Aliases: []string{"video"}, Tier: command.TierPublic, Cooldown: 10 * time.Second, Handler: record("yt", nil)},
		{Name: "restart", Aliases: []string{"reboot"}, Tier: command.TierOwner, Handler: record("restart", nil)},
		{Name: "broken", Tier: command.TierPublic, Handler: record("broken", errors.New("boom"))},
		{Name: "panics", Tier: command.TierPublic, Handler: func(context.Context, *command.Invocation) error {
			panic("handler exploded")
		}},
	})
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(f.logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
	f.router = router.New(
		reg,
		permission.NewEvaluator(owner, dir),
		cooldown.NewTracker(f.clock),
		f.sender,
		router.Messages{},
		logger,
	)
	return f
}

func (f *fixture) called(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func invocation(name, sender, conv string) *command.Invocation {
	return &command.Invocation{
		ID:           "inv",
		Message:      &transport.Message{ID: "m1", Conversation: conv, Sender: sender},
		Sender:       sender,
		Conversation: conv,
		IsGroup:      transport.IsGroupID(conv),
		Prefix:       "-",
		Name:         name,
	}
}

func TestDispatchUnknownIsSilent(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory{})
	out := f.router.Dispatch(context.Background(), invocation("frobnicate", member, group))

	assert.Equal(t, router.OutcomeUnknown, out)
	assert.Empty(t, f.sender.texts())
	assert.NotContains(t, f.logs.String(), "level=ERROR")
}

func TestDispatchGroupAdmin(t *testing.T) {
	t.Parallel()

	t.Run("member is denied", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, directory{})
		out := f.router.Dispatch(context.Background(), invocation("ban", member, group))

		assert.Equal(t, router.OutcomeDenied, out)
		assert.Equal(t, []string{router.DefaultMessages.AdminOnly}, f.sender.texts())
		assert.Zero(t, f.called("ban"))
	})

	t.Run("admin proceeds through alias", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, directory{})
		out := f.router.Dispatch(context.Background(), invocation("kick", admin, group))

		assert.Equal(t, router.OutcomeCompleted, out)
		assert.Empty(t, f.sender.texts())
		assert.Equal(t, 1, f.called("ban"))
	})

	t.Run("direct message is groups only", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, directory{})
		out := f.router.Dispatch(context.Background(), invocation("ban", admin, dm))

		assert.Equal(t, router.OutcomeDenied, out)
		assert.Equal(t, []string{router.DefaultMessages.GroupsOnly}, f.sender.texts())
	})

	t.Run("metadata failure sends generic notice", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, directory{err: errors.New("network down")})
		out := f.router.Dispatch(context.Background(), invocation("ban", admin, group))

		assert.Equal(t, router.OutcomeFailed, out)
		assert.Equal(t, []string{router.DefaultMessages.Failure}, f.sender.texts())
		assert.Contains(t, f.logs.String(), "level=ERROR")
		assert.Zero(t, f.called("ban"))
	})
}

func TestDispatchOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory{})
	out := f.router.Dispatch(context.Background(), invocation("restart", member, dm))
	assert.Equal(t, router.OutcomeDenied, out)
	assert.Equal(t, []string{router.DefaultMessages.OwnerOnly}, f.sender.texts())

	ownerDevice := "5511999999999:4@s.whatsapp.net"
	assert.Equal(t, router.OutcomeCompleted, f.router.Dispatch(context.Background(), invocation("restart", ownerDevice, dm)))
	assert.Equal(t, router.OutcomeCompleted, f.router.Dispatch(context.Background(), invocation("reboot", ownerDevice, dm)))
	assert.Equal(t, 2, f.called("restart"))
}

func TestDispatchCooldown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory{})
	ctx := context.Background()

	require.Equal(t, router.OutcomeCompleted, f.router.Dispatch(ctx, invocation("yt", member, dm)))

	f.clock.Advance(3 * time.Second)
	out := f.router.Dispatch(ctx, invocation("video", member, dm))
	assert.Equal(t, router.OutcomeThrottled, out)
	assert.Equal(t, []string{"⏳ Please wait 7s before using -yt again."}, f.sender.texts())

	assert.Equal(t, router.OutcomeCompleted, f.router.Dispatch(ctx, invocation("yt", admin, dm)), "other actors are unaffected")

	f.clock.Advance(7 * time.Second)
	assert.Equal(t, router.OutcomeCompleted, f.router.Dispatch(ctx, invocation("yt", member, dm)))
	assert.Equal(t, 3, f.called("yt"))
}

func TestDeniedDoesNotConsumeCooldown(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory{})
	ctx := context.Background()

	require.Equal(t, router.OutcomeDenied, f.router.Dispatch(ctx, invocation("ban", member, group)))
	assert.Equal(t, router.OutcomeCompleted, f.router.Dispatch(ctx, invocation("ban", admin, group)))
	assert.Equal(t, router.OutcomeThrottled, f.router.Dispatch(ctx, invocation("ban", admin, group)))
}

func TestDispatchContainsFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cmd  string
	}{
		{name: "returned error", cmd: "broken"},
		{name: "panic", cmd: "panics"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t, directory{})
			ctx := context.Background()

			out := f.router.Dispatch(ctx, invocation(tt.cmd, member, dm))
			assert.Equal(t, router.OutcomeFailed, out)

			msgs := f.sender.texts()
			require.Len(t, msgs, 1)
			assert.Equal(t, router.DefaultMessages.Failure, msgs[0])
			assert.Contains(t, f.logs.String(), "command="+tt.cmd)
			assert.Contains(t, f.logs.String(), "actor="+member)

			assert.Equal(t, router.OutcomeCompleted, f.router.Dispatch(ctx, invocation("restart", owner, dm)), "router keeps serving")
		})
	}
}

func TestNoticesQuoteOriginal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, directory{})
	inv := invocation("restart", member, dm)
	f.router.Dispatch(context.Background(), inv)

	require.Len(t, f.sender.sent, 1)
	assert.Same(t, inv.Message, f.sender.sent[0].quoted)
	assert.Equal(t, dm, f.sender.sent[0].conversation)
}
