package connection_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgard/wabot/internal/connection"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/transport"
)

type fakeDialer struct {
	calls atomic.Int32
	err   error
}

func (d *fakeDialer) Connect(context.Context) error {
	d.calls.Add(1)
	return d.err
}

type fakeCreds struct {
	mu      sync.Mutex
	data    []byte
	removed bool
}

func (c *fakeCreds) Exists() (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.data) > 0, nil
}

func (c *fakeCreds) Snapshot(context.Context) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]byte(nil), c.data...), nil
}

func (c *fakeCreds) Restore(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append([]byte(nil), data...)
	return nil
}

func (c *fakeCreds) Remove(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = nil
	c.removed = true
	return nil
}

type fakeSessions struct {
	mu       sync.Mutex
	records  map[string][]byte
	deleted  []string
	saveErrs int
}

func newSessions() *fakeSessions {
	return &fakeSessions{records: make(map[string][]byte)}
}

func (s *fakeSessions) GetSession(_ context.Context, id string) (*database.SessionRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.records[id]
	if !ok {
		return nil, nil
	}
	return &database.SessionRecord{ID: id, Data: data}, nil
}

func (s *fakeSessions) SaveSession(_ context.Context, rec *database.SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec.Data
	return nil
}

func (s *fakeSessions) DeleteSession(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	s.deleted = append(s.deleted, id)
	return nil
}

type fakeAlerter struct {
	mu    sync.Mutex
	texts []string
}

func (a *fakeAlerter) Alert(_ context.Context, text string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.texts = append(a.texts, text)
	return nil
}

type fixture struct {
	mgr      *connection.Manager
	clock    *clockwork.FakeClock
	dialer   *fakeDialer
	creds    *fakeCreds
	sessions *fakeSessions
	alerter  *fakeAlerter
	pairing  *connection.Pairing
}

func newFixture(t *testing.T, logger *slog.Logger) *fixture {
	t.Helper()
	f := &fixture{
		clock:    clockwork.NewFakeClock(),
		dialer:   &fakeDialer{},
		creds:    &fakeCreds{},
		sessions: newSessions(),
		alerter:  &fakeAlerter{},
		pairing:  &connection.Pairing{},
	}
	f.mgr = connection.NewManager(connection.Options{
		SessionID:   "main",
		Dialer:      f.dialer,
		Credentials: f.creds,
		Sessions:    f.sessions,
		Pairing:     f.pairing,
		Alerter:     f.alerter,
		Clock:       f.clock,
		Logger:      logger,
	})
	return f
}

func closed(cause transport.CloseCause) transport.ConnectionUpdate {
	return transport.ConnectionUpdate{State: transport.StateClosed, Cause: cause}
}

func TestBackoffSequence(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.mgr.Start(ctx))
	require.Equal(t, int32(1), f.dialer.calls.Load())

	want := []time.Duration{1, 2, 4, 8, 16, 30, 60, 60, 60}
	for i, secs := range want {
		delay := secs * time.Second
		f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
		require.Equal(t, i+1, f.mgr.Retry())
		require.NoError(t, f.clock.BlockUntilContext(ctx, 1))

		calls := f.dialer.calls.Load()
		f.clock.Advance(delay - time.Millisecond)
		assert.Equal(t, calls, f.dialer.calls.Load(), "attempt %d fired early", i)

		f.clock.Advance(time.Millisecond)
		require.Eventually(t, func() bool { return f.dialer.calls.Load() == calls+1 }, time.Second, time.Millisecond, "attempt %d", i)
	}
}

func TestOpenResetsRetryAndClearsPairing(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.mgr.Start(ctx))

	f.mgr.HandleUpdate(ctx, transport.ConnectionUpdate{State: transport.StateConnecting, Pairing: "2@abc"})
	code, _, ok := f.pairing.Get()
	require.True(t, ok)
	assert.Equal(t, "2@abc", code)

	f.mgr.HandleUpdate(ctx, closed(transport.CauseTimedOut))
	require.Equal(t, 1, f.mgr.Retry())

	f.mgr.HandleUpdate(ctx, transport.ConnectionUpdate{State: transport.StateOpen})
	assert.Equal(t, 0, f.mgr.Retry())
	assert.Equal(t, connection.StateOpen, f.mgr.State())
	_, _, ok = f.pairing.Get()
	assert.False(t, ok)

	f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	calls := f.dialer.calls.Load()
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.dialer.calls.Load() == calls+1 }, time.Second, time.Millisecond)
}

func TestSingleOutstandingTimer(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.mgr.Start(ctx))

	f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	f.mgr.HandleUpdate(ctx, closed(transport.CauseReplaced))
	f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	assert.Equal(t, 1, f.mgr.Retry())

	calls := f.dialer.calls.Load()
	f.clock.Advance(time.Minute)
	require.Eventually(t, func() bool { return f.dialer.calls.Load() == calls+1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls+1, f.dialer.calls.Load())
}

func TestLoggedOutIsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	f.creds.data = []byte("creds")
	f.sessions.records["main"] = []byte("creds")
	require.NoError(t, f.mgr.Start(ctx))

	f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	f.mgr.HandleUpdate(ctx, closed(transport.CauseLoggedOut))

	assert.Equal(t, connection.StateLoggedOut, f.mgr.State())
	assert.Equal(t, []string{"main"}, f.sessions.deleted)
	assert.True(t, f.creds.removed)
	require.Len(t, f.alerter.texts, 1)

	calls := f.dialer.calls.Load()
	f.clock.Advance(10 * time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.dialer.calls.Load(), "no reconnect after logout")

	f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	assert.Equal(t, connection.StateLoggedOut, f.mgr.State())
	assert.ErrorIs(t, f.mgr.Start(ctx), connection.ErrTerminal)
	assert.ErrorIs(t, f.mgr.HandleCredentialsUpdate(ctx), connection.ErrTerminal)
}

func TestCredentialsPersistAndRestore(t *testing.T) {
	t.Parallel()

	t.Run("update writes snapshot", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.creds.data = []byte("v1")
		require.NoError(t, f.mgr.HandleCredentialsUpdate(context.Background()))
		assert.Equal(t, []byte("v1"), f.sessions.records["main"])

		f.creds.data = []byte("v2")
		require.NoError(t, f.mgr.HandleCredentialsUpdate(context.Background()))
		assert.Equal(t, []byte("v2"), f.sessions.records["main"])
	})

	t.Run("start restores when local is missing", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.sessions.records["main"] = []byte("remote")
		require.NoError(t, f.mgr.Start(context.Background()))
		assert.Equal(t, []byte("remote"), f.creds.data)
	})

	t.Run("start keeps existing local state", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, nil)
		f.creds.data = []byte("local")
		f.sessions.records["main"] = []byte("remote")
		require.NoError(t, f.mgr.Start(context.Background()))
		assert.Equal(t, []byte("local"), f.creds.data)
	})
}

func TestConnectErrorSchedulesReconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	f.dialer.err = errors.New("dial tcp: refused")
	ctx := context.Background()
	require.NoError(t, f.mgr.Start(ctx))

	assert.Equal(t, 1, f.mgr.Retry())
	require.NoError(t, f.clock.BlockUntilContext(ctx, 1))
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.mgr.Retry() == 2 }, time.Second, time.Millisecond)
}

type panicHandler struct{ slog.Handler }

func (h panicHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h panicHandler) Handle(_ context.Context, r slog.Record) error {
	if r.Level == slog.LevelWarn {
		panic("log sink failed")
	}
	return nil
}

func (h panicHandler) WithAttrs([]slog.Attr) slog.Handler { return h }
func (h panicHandler) WithGroup(string) slog.Handler      { return h }

func TestPanicDuringCloseStillReconnects(t *testing.T) {
	t.Parallel()

	f := newFixture(t, slog.New(panicHandler{}))
	ctx := context.Background()
	require.NoError(t, f.mgr.Start(ctx))

	assert.NotPanics(t, func() {
		f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	})

	calls := f.dialer.calls.Load()
	f.clock.Advance(time.Second)
	require.Eventually(t, func() bool { return f.dialer.calls.Load() == calls+1 }, time.Second, time.Millisecond)
}

func TestStopCancelsPendingReconnect(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.mgr.Start(ctx))

	f.mgr.HandleUpdate(ctx, closed(transport.CauseConnectionLost))
	f.mgr.Stop()

	calls := f.dialer.calls.Load()
	f.clock.Advance(time.Minute)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, calls, f.dialer.calls.Load())
}
