package handlers_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/wabot/internal/ai"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/router"
	"github.com/edgard/wabot/internal/transport"
)

func TestDispatchBanRequiresAdmin(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	e.text(member, group, "-ban @333", victim)
	assert.Equal(t, router.DefaultMessages.AdminOnly, e.tr.lastText())
	assert.Empty(t, e.tr.updates)

	e.text(admin, group, "-BAN @333", victim)
	require.Len(t, e.tr.updates, 1)
	assert.Equal(t, participantUpdate{Conversation: group, IDs: []string{victim}, Action: transport.ActionRemove}, e.tr.updates[0])
	assert.Equal(t, "✅ User removed.", e.tr.lastText())

	e.text(admin, group, "-kick @333", victim)
	assert.Equal(t, "⏳ Please wait 3s before using -ban again.", e.tr.lastText())
	assert.Len(t, e.tr.updates, 1)
}

func TestDispatchTierNotices(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	e.text(member, member, "-ban @333", victim)
	assert.Equal(t, router.DefaultMessages.GroupsOnly, e.tr.lastText())

	e.text(admin, group, "-restart")
	assert.Equal(t, router.DefaultMessages.OwnerOnly, e.tr.lastText())
	assert.Empty(t, e.lifecycle.codes)

	e.text(owner, owner, "-restart")
	assert.Equal(t, []int{0}, e.lifecycle.codes)
}

func TestDispatchIgnoresUnknownAndBarePrefix(t *testing.T) {
	t.Parallel()
	e := newEnv(t)

	e.text(member, group, "-frobnicate now")
	e.text(member, group, "-")
	e.text(member, group, "just chatting")
	assert.Empty(t, e.tr.sends)

	user, err := e.store.GetUser(context.Background(), member)
	require.NoError(t, err)
	require.NotNil(t, user)
	assert.Equal(t, 1, user.CommandCount)
}

func TestDispatchAntiLink(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	e.text(member, group, "see https://example.com")
	assert.Empty(t, e.tr.revoked, "groups without settings are not moderated")

	_, err := e.store.UpdateGroupPolicy(ctx, group, func(p *database.GroupPolicy) { p.AntiLink = true })
	require.NoError(t, err)

	e.text(admin, group, "admins may post https://example.com")
	assert.Empty(t, e.tr.revoked)

	e.text(member, group, "see https://example.com")
	assert.Equal(t, []string{"in-see https://example.com"}, e.tr.revoked)
	assert.Equal(t, "🚫 @222, links are not allowed in this group.", e.tr.lastText())

	e.tr.botAdmin = false
	e.text(member, group, "again http://example.org")
	assert.Len(t, e.tr.revoked, 1)
}

func TestDispatchChatMode(t *testing.T) {
	t.Parallel()
	e := newEnv(t)
	ctx := context.Background()

	_, err := e.store.UpdateGroupPolicy(ctx, group, func(p *database.GroupPolicy) { p.ChatEnabled = true })
	require.NoError(t, err)

	e.text(member, group, "what is the answer?")
	require.Len(t, e.tr.sends, 1)
	assert.Equal(t, "42", e.tr.sends[0].Content.Text)
	assert.True(t, e.tr.sends[0].Quoted)

	e.ai.err = fmt.Errorf("%w: all providers failed", ai.ErrUnavailable)
	e.text(member, group, "still there?")
	assert.Len(t, e.tr.sends, 1, "chat mode stays quiet while the AI is down")
}
