package handlers_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	"github.com/edgard/wabot/internal/bot/handlers"
	"github.com/edgard/wabot/internal/classifier"
	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/config"
	"github.com/edgard/wabot/internal/content"
	"github.com/edgard/wabot/internal/cooldown"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/media"
	"github.com/edgard/wabot/internal/permission"
	"github.com/edgard/wabot/internal/router"
	"github.com/edgard/wabot/internal/transport"
)

const (
	group   = "120363000000000001@g.us"
	owner   = "100@s.whatsapp.net"
	admin   = "111@s.whatsapp.net"
	member  = "222@s.whatsapp.net"
	victim  = "333@s.whatsapp.net"
	botSelf = "999@s.whatsapp.net"
)

type sent struct {
	Conversation string
	Content      transport.Content
	Quoted       bool
}

type participantUpdate struct {
	Conversation string
	IDs          []string
	Action       transport.ParticipantAction
}

type fakeTransport struct {
	mu       sync.Mutex
	botAdmin bool
	groups   []transport.GroupMetadata
	sends    []sent
	updates  []participantUpdate
	revoked  []string
	invites  []string
	subjects []string
	reacts   []string
}

func (f *fakeTransport) Send(_ context.Context, conversation string, c transport.Content, opts transport.SendOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, sent{Conversation: conversation, Content: c, Quoted: opts.Quoted != nil})
	return nil
}

func (f *fakeTransport) React(_ context.Context, _ *transport.Message, emoji string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reacts = append(f.reacts, emoji)
	return nil
}

func (f *fakeTransport) FetchMetadata(_ context.Context, conversation string) (*transport.GroupMetadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if conversation != group {
		return nil, errors.New("unknown group")
	}
	return &transport.GroupMetadata{
		ID:      group,
		Subject: "Test Group",
		Participants: []transport.Participant{
			{ID: admin, IsAdmin: true},
			{ID: member},
			{ID: victim},
			{ID: botSelf, IsAdmin: f.botAdmin},
		},
	}, nil
}

func (f *fakeTransport) FetchAllGroups(context.Context) ([]transport.GroupMetadata, error) {
	return f.groups, nil
}

func (f *fakeTransport) AcceptInvite(_ context.Context, code string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, code)
	return group, nil
}

func (f *fakeTransport) UpdateParticipants(_ context.Context, conversation string, ids []string, action transport.ParticipantAction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, participantUpdate{Conversation: conversation, IDs: ids, Action: action})
	return nil
}

func (f *fakeTransport) UpdateSubject(_ context.Context, _ string, subject string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subjects = append(f.subjects, subject)
	return nil
}

func (f *fakeTransport) Revoke(_ context.Context, msg *transport.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revoked = append(f.revoked, msg.ID)
	return nil
}

func (f *fakeTransport) SelfID() string  { return botSelf }
func (f *fakeTransport) SelfLID() string { return "" }

func (f *fakeTransport) texts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sends))
	for _, s := range f.sends {
		out = append(out, s.Content.Text)
	}
	return out
}

func (f *fakeTransport) lastText() string {
	texts := f.texts()
	if len(texts) == 0 {
		return ""
	}
	return texts[len(texts)-1]
}

type fakeAI struct {
	answer string
	err    error
}

func (a *fakeAI) Ask(context.Context, string, string) (string, error) { return a.answer, a.err }

type fakeContent struct {
	lyrics string
	err    error
}

func (c *fakeContent) Joke(context.Context) (string, error) { return "A joke.", nil }

func (c *fakeContent) Meme(context.Context) (*content.Meme, error) {
	return &content.Meme{Title: "Funny", Data: []byte("img"), MimeType: "image/png"}, nil
}

func (c *fakeContent) Quote(context.Context) (*content.Quote, error) {
	return &content.Quote{Content: "Believe it!", Character: "Naruto", Anime: "Naruto"}, nil
}

func (c *fakeContent) Lyrics(context.Context, string, string) (string, error) { return c.lyrics, c.err }

func (c *fakeContent) Speech(_ context.Context, text string) ([]byte, error) {
	if len(text) > 200 {
		return nil, content.ErrBadInput
	}
	return []byte("mp3"), nil
}

type fakeMedia struct{ err error }

func (m *fakeMedia) Video(context.Context, string) (*media.Download, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &media.Download{Title: "clip", Data: []byte("mp4"), MimeType: "video/mp4"}, nil
}

func (m *fakeMedia) Audio(context.Context, string) (*media.Download, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &media.Download{Title: "track", Data: []byte("m4a"), MimeType: "audio/mp4"}, nil
}

func (m *fakeMedia) MaxBytes() int64 { return 50 * 1024 * 1024 }

type fakeLifecycle struct {
	mu    sync.Mutex
	codes []int
}

func (l *fakeLifecycle) RequestExit(code int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.codes = append(l.codes, code)
}

type env struct {
	tr         *fakeTransport
	store      database.Store
	ai         *fakeAI
	content    *fakeContent
	media      *fakeMedia
	lifecycle  *fakeLifecycle
	deps       handlers.HandlerDeps
	registry   *command.Registry
	classifier *classifier.Classifier
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func newEnv(t *testing.T) *env {
	t.Helper()

	db, dialect, err := database.NewDB(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { database.CloseDB(db) })
	store := database.NewStore(db, dialect, nil)

	e := &env{
		tr:        &fakeTransport{botAdmin: true},
		store:     store,
		ai:        &fakeAI{answer: "42"},
		content:   &fakeContent{lyrics: "Is this the real life?"},
		media:     &fakeMedia{},
		lifecycle: &fakeLifecycle{},
	}

	cfg := &config.Config{
		Bot: config.BotConfig{Prefix: "-", OwnerNumber: owner},
		Messages: config.MessagesConfig{
			DatabaseError: "db error",
			BotNotAdmin:   "bot not admin",
			NeedTarget:    "need target",
			AIUnavailable: "ai unavailable",
		},
	}
	evaluator := permission.NewEvaluator(cfg.Bot.OwnerNumber, e.tr)
	tracker := cooldown.NewTracker(clockwork.NewFakeClock())

	e.deps = handlers.HandlerDeps{
		Logger:    discard(),
		Config:    cfg,
		Store:     store,
		Transport: e.tr,
		Groups:    evaluator,
		AI:        e.ai,
		Media:     e.media,
		Content:   e.content,
		Lifecycle: e.lifecycle,
		Cooldowns: tracker,
		Started:   time.Now(),
	}

	e.registry, err = handlers.NewRegistry(e.deps)
	require.NoError(t, err)

	r := router.New(e.registry, evaluator, tracker, e.tr, router.Messages{}, discard())
	e.classifier = classifier.New(classifier.Options{
		Prefix:   "-",
		Router:   r,
		Policies: store,
		Activity: store,
		Passive:  []classifier.PassiveHandler{handlers.NewAntiLinkHandler(e.deps), handlers.NewChatHandler(e.deps)},
		Logger:   discard(),
	})
	return e
}

// run invokes a command handler directly, skipping permission checks.
func (e *env) run(t *testing.T, sender, conversation, name string, args []string, mentions ...string) {
	t.Helper()
	desc, ok := e.registry.Resolve(name)
	require.True(t, ok, "command %q not registered", name)
	msg := &transport.Message{
		ID:           "msg-1",
		Conversation: conversation,
		Sender:       sender,
		Kind:         transport.KindText,
		Mentions:     mentions,
	}
	inv := &command.Invocation{
		ID:           "inv-1",
		Message:      msg,
		Sender:       sender,
		Conversation: conversation,
		IsGroup:      transport.IsGroupID(conversation),
		Prefix:       "-",
		Name:         name,
		Args:         args,
		Descriptor:   desc,
	}
	require.NoError(t, desc.Handler(context.Background(), inv))
}

// text delivers an inbound text message through the classifier.
func (e *env) text(sender, conversation, body string, mentions ...string) {
	e.classifier.Handle(context.Background(), &transport.Message{
		ID:           "in-" + body,
		Conversation: conversation,
		Sender:       sender,
		PushName:     "Tester",
		Kind:         transport.KindText,
		Text:         body,
		Mentions:     mentions,
	})
}
