// Package connection owns the lifecycle of the messaging session: reconnect
// backoff, credential durability, pairing state and terminal logout.
package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/transport"
)

// ErrTerminal is returned by Start once the session has been logged out.
var ErrTerminal = errors.New("session logged out")

// DefaultBackoff is the reconnect delay sequence; the last entry repeats.
var DefaultBackoff = []time.Duration{
	1 * time.Second,
	2 * time.Second,
	4 * time.Second,
	8 * time.Second,
	16 * time.Second,
	30 * time.Second,
	60 * time.Second,
}

// State is the manager's view of the connection.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosed
	StateLoggedOut
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	case StateLoggedOut:
		return "logged_out"
	default:
		return "unknown"
	}
}

// Dialer opens the underlying network connection. A returned error means the
// attempt failed before any connection update could be emitted.
type Dialer interface {
	Connect(ctx context.Context) error
}

// LocalCredentials is the on-disk credential state used by the transport.
type LocalCredentials interface {
	Exists() (bool, error)
	Snapshot(ctx context.Context) ([]byte, error)
	Restore(ctx context.Context, data []byte) error
	Remove(ctx context.Context) error
}

// SessionStore persists credential snapshots remotely.
type SessionStore interface {
	GetSession(ctx context.Context, id string) (*database.SessionRecord, error)
	SaveSession(ctx context.Context, session *database.SessionRecord) error
	DeleteSession(ctx context.Context, id string) error
}

// Alerter notifies the operator about events that need attention.
type Alerter interface {
	Alert(ctx context.Context, text string) error
}

// Options configures a Manager.
type Options struct {
	SessionID   string
	Dialer      Dialer
	Credentials LocalCredentials
	Sessions    SessionStore
	Pairing     *Pairing
	Alerter     Alerter
	Backoff     []time.Duration
	Clock       clockwork.Clock
	Logger      *slog.Logger
}

// Manager drives reconnects and keeps credentials durable.
type Manager struct {
	sessionID string
	dialer    Dialer
	creds     LocalCredentials
	sessions  SessionStore
	pairing   *Pairing
	alerter   Alerter
	backoff   []time.Duration
	clock     clockwork.Clock
	logger    *slog.Logger

	mu      sync.Mutex
	ctx     context.Context
	state   State
	retry   int
	timer   clockwork.Timer
	stopped bool
}

// NewManager returns a manager in the idle state.
func NewManager(opts Options) *Manager {
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if len(opts.Backoff) == 0 {
		opts.Backoff = DefaultBackoff
	}
	if opts.Pairing == nil {
		opts.Pairing = &Pairing{}
	}
	return &Manager{
		sessionID: opts.SessionID,
		dialer:    opts.Dialer,
		creds:     opts.Credentials,
		sessions:  opts.Sessions,
		pairing:   opts.Pairing,
		alerter:   opts.Alerter,
		backoff:   opts.Backoff,
		clock:     opts.Clock,
		logger:    opts.Logger.With("component", "connection"),
		ctx:       context.Background(),
	}
}

// Start restores credentials from the session store when none exist locally,
// then makes the first connection attempt. Later attempts use ctx as well.
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return ErrTerminal
	}
	m.ctx = ctx
	m.stopped = false
	m.mu.Unlock()

	if err := m.Restore(ctx); err != nil {
		return err
	}
	m.attempt()
	return nil
}

// Restore copies the remote snapshot into local storage when local
// credentials are absent. It is a no-op when they exist or no snapshot is
// stored.
func (m *Manager) Restore(ctx context.Context) error {
	if m.creds == nil || m.sessions == nil {
		return nil
	}
	exists, err := m.creds.Exists()
	if err != nil {
		return fmt.Errorf("failed to inspect local credentials: %w", err)
	}
	if exists {
		return nil
	}
	rec, err := m.sessions.GetSession(ctx, m.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load session %s: %w", m.sessionID, err)
	}
	if rec == nil || len(rec.Data) == 0 {
		m.logger.InfoContext(ctx, "No stored session, a new pairing will be required", "session_id", m.sessionID)
		return nil
	}
	if err := m.creds.Restore(ctx, rec.Data); err != nil {
		return fmt.Errorf("failed to restore session %s: %w", m.sessionID, err)
	}
	m.logger.InfoContext(ctx, "Restored session from store", "session_id", m.sessionID, "bytes", len(rec.Data))
	return nil
}

// Stop cancels any pending reconnect. No further attempts are made.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.stopTimerLocked()
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Retry returns the number of consecutive failed attempts.
func (m *Manager) Retry() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.retry
}

// Pairing returns the pairing challenge holder.
func (m *Manager) Pairing() *Pairing {
	return m.pairing
}

// HandleUpdate applies a connection update. A panic while handling a close is
// recovered and the reconnect is still scheduled.
func (m *Manager) HandleUpdate(ctx context.Context, u transport.ConnectionUpdate) {
	defer func() {
		if rec := recover(); rec != nil {
			m.logger.ErrorContext(ctx, "Recovered panic while handling connection update", "panic", rec, "state", u.State.String())
			if u.State == transport.StateClosed && !u.Cause.Terminal() {
				m.mu.Lock()
				if m.timer == nil {
					m.scheduleLocked()
				}
				m.mu.Unlock()
			}
		}
	}()

	switch u.State {
	case transport.StateConnecting:
		m.onConnecting(ctx, u)
	case transport.StateOpen:
		m.onOpen(ctx)
	case transport.StateClosed:
		if u.Cause.Terminal() {
			m.onLoggedOut(ctx, u)
			return
		}
		m.onClosed(ctx, u)
	}
}

// HandleCredentialsUpdate snapshots local credentials and writes them to the
// session store before returning.
func (m *Manager) HandleCredentialsUpdate(ctx context.Context) error {
	if m.creds == nil || m.sessions == nil {
		return nil
	}
	m.mu.Lock()
	loggedOut := m.state == StateLoggedOut
	m.mu.Unlock()
	if loggedOut {
		return ErrTerminal
	}

	data, err := m.creds.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to snapshot credentials: %w", err)
	}
	if err := m.sessions.SaveSession(ctx, &database.SessionRecord{ID: m.sessionID, Data: data}); err != nil {
		return fmt.Errorf("failed to persist credentials: %w", err)
	}
	m.logger.DebugContext(ctx, "Credentials persisted", "session_id", m.sessionID, "bytes", len(data))
	return nil
}

func (m *Manager) onConnecting(ctx context.Context, u transport.ConnectionUpdate) {
	m.mu.Lock()
	if m.state != StateLoggedOut {
		m.state = StateConnecting
	}
	m.mu.Unlock()

	if u.Pairing != "" {
		m.pairing.Set(u.Pairing)
		m.logger.InfoContext(ctx, "Pairing challenge received, waiting for scan")
		m.alert(ctx, "Pairing required. Open the /qr page of the bot to link the device.")
	}
}

func (m *Manager) onOpen(ctx context.Context) {
	m.mu.Lock()
	previous := m.retry
	m.state = StateOpen
	m.retry = 0
	m.stopTimerLocked()
	m.mu.Unlock()

	m.pairing.Clear()
	m.logger.InfoContext(ctx, "Connection open", "previous_retries", previous)
}

func (m *Manager) onClosed(ctx context.Context, u transport.ConnectionUpdate) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateLoggedOut {
		return
	}
	m.state = StateClosed
	if m.stopped {
		m.logger.InfoContext(ctx, "Connection closed during shutdown", "cause", u.Cause.String())
		return
	}
	if m.timer != nil {
		m.logger.DebugContext(ctx, "Reconnect already pending", "cause", u.Cause.String())
		return
	}
	delay := m.scheduleLocked()
	m.logger.WarnContext(ctx, "Connection closed, reconnecting",
		"cause", u.Cause.String(), "error", u.Err, "delay", delay, "attempt", m.retry)
}

func (m *Manager) onLoggedOut(ctx context.Context, u transport.ConnectionUpdate) {
	m.mu.Lock()
	if m.state == StateLoggedOut {
		m.mu.Unlock()
		return
	}
	m.state = StateLoggedOut
	m.stopTimerLocked()
	m.mu.Unlock()

	m.pairing.Clear()
	m.logger.ErrorContext(ctx, "Session logged out, purging credentials; re-pairing required", "session_id", m.sessionID, "error", u.Err)

	if m.sessions != nil {
		if err := m.sessions.DeleteSession(ctx, m.sessionID); err != nil {
			m.logger.ErrorContext(ctx, "Failed to delete stored session", "session_id", m.sessionID, "error", err)
		}
	}
	if m.creds != nil {
		if err := m.creds.Remove(ctx); err != nil {
			m.logger.ErrorContext(ctx, "Failed to remove local credentials", "error", err)
		}
	}
	m.alert(ctx, "Session logged out. Stored credentials were removed; restart the bot and pair again.")
}

// scheduleLocked arms the single reconnect timer and returns its delay.
func (m *Manager) scheduleLocked() time.Duration {
	idx := m.retry
	if idx >= len(m.backoff) {
		idx = len(m.backoff) - 1
	}
	delay := m.backoff[idx]
	m.retry++
	m.timer = m.clock.AfterFunc(delay, m.fire)
	return delay
}

func (m *Manager) fire() {
	m.mu.Lock()
	m.timer = nil
	skip := m.stopped || m.state == StateLoggedOut
	m.mu.Unlock()
	if skip {
		return
	}
	m.attempt()
}

func (m *Manager) attempt() {
	m.mu.Lock()
	ctx := m.ctx
	m.state = StateConnecting
	m.mu.Unlock()

	if ctx.Err() != nil {
		return
	}
	if err := m.dialer.Connect(ctx); err != nil {
		m.HandleUpdate(ctx, transport.ConnectionUpdate{
			State: transport.StateClosed,
			Cause: transport.CauseConnectFailed,
			Err:   err,
		})
	}
}

func (m *Manager) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

func (m *Manager) alert(ctx context.Context, text string) {
	if m.alerter == nil {
		return
	}
	if err := m.alerter.Alert(ctx, text); err != nil {
		m.logger.WarnContext(ctx, "Failed to send operator alert", "error", err)
	}
}
