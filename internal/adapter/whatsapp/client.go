// Package whatsapp implements the transport on top of whatsmeow. The device
// store is a local SQLite file; its bytes are what the connection manager
// snapshots into the session store.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/edgard/wabot/internal/logger"
	"github.com/edgard/wabot/internal/transport"

	_ "modernc.org/sqlite"
)

// Options configures a Client.
type Options struct {
	StorePath  string
	DeviceName string
	Logger     *slog.Logger
}

// Client is a whatsmeow-backed transport. The device store is opened on the
// first Connect so credentials can be restored before it exists.
type Client struct {
	storePath string
	logger    *slog.Logger

	mu        sync.RWMutex
	container *sqlstore.Container
	cli       *whatsmeow.Client
	handlers  transport.Handlers
	qrCancel  context.CancelFunc
}

// New returns an unconnected client.
func New(opts Options) *Client {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	if opts.DeviceName != "" {
		store.SetOSInfo(opts.DeviceName, [3]uint32{1, 0, 0})
	}
	return &Client{
		storePath: opts.StorePath,
		logger:    log.With("component", "whatsapp"),
	}
}

// SetHandlers replaces the event handlers. It is safe to call at any time.
func (c *Client) SetHandlers(h transport.Handlers) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = h
}

func (c *Client) currentHandlers() transport.Handlers {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.handlers
}

func (c *Client) dsn() string {
	return "file:" + c.storePath + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// ensureClient opens the device store and builds the whatsmeow client once.
func (c *Client) ensureClient(ctx context.Context) (*whatsmeow.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cli != nil {
		return c.cli, nil
	}

	if dir := filepath.Dir(c.storePath); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}

	container, err := sqlstore.New(ctx, "sqlite", c.dsn(), logger.WhatsApp(c.logger, "store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open device store: %w", err)
	}
	device, err := container.GetFirstDevice(ctx)
	if err != nil {
		_ = container.Close()
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	cli := whatsmeow.NewClient(device, logger.WhatsApp(c.logger, "client"))
	cli.EnableAutoReconnect = false
	cli.AddEventHandler(c.handleEvent)

	c.container = container
	c.cli = cli
	return cli, nil
}

// client returns the connected whatsmeow client. Group calls in whatsmeow take
// no context, so a cancelled ctx is rejected here before any request is made.
func (c *Client) client(ctx context.Context) (*whatsmeow.Client, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cli == nil || !c.cli.IsConnected() {
		return nil, transport.ErrNotConnected
	}
	return c.cli, nil
}

// Connect opens the socket. An unpaired device starts a pairing flow whose
// challenges are reported as connecting updates.
func (c *Client) Connect(ctx context.Context) error {
	cli, err := c.ensureClient(ctx)
	if err != nil {
		return err
	}
	if cli.IsConnected() {
		return nil
	}

	if cli.Store.ID == nil {
		qrCtx, cancel := context.WithCancel(ctx)
		qrChan, err := cli.GetQRChannel(qrCtx)
		if err != nil {
			cancel()
			if !errors.Is(err, whatsmeow.ErrQRStoreContainsID) {
				return fmt.Errorf("failed to start pairing: %w", err)
			}
		} else {
			c.mu.Lock()
			if c.qrCancel != nil {
				c.qrCancel()
			}
			c.qrCancel = cancel
			c.mu.Unlock()
			go c.watchPairing(qrChan)
		}
	}

	c.emitConnection(transport.ConnectionUpdate{State: transport.StateConnecting})
	if err := cli.Connect(); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

func (c *Client) watchPairing(ch <-chan whatsmeow.QRChannelItem) {
	for item := range ch {
		switch item.Event {
		case whatsmeow.QRChannelEventCode:
			c.emitConnection(transport.ConnectionUpdate{State: transport.StateConnecting, Pairing: item.Code})
		case whatsmeow.QRChannelSuccess.Event:
			c.logger.Info("Pairing completed")
		case whatsmeow.QRChannelTimeout.Event:
			c.emitConnection(transport.ConnectionUpdate{State: transport.StateClosed, Cause: transport.CauseTimedOut})
		case whatsmeow.QRChannelEventError:
			c.emitConnection(transport.ConnectionUpdate{State: transport.StateClosed, Cause: transport.CauseConnectFailed, Err: item.Error})
		default:
			c.emitConnection(transport.ConnectionUpdate{
				State: transport.StateClosed,
				Cause: transport.CauseConnectFailed,
				Err:   fmt.Errorf("pairing failed: %s", item.Event),
			})
		}
	}
}

// Disconnect closes the socket without emitting a close update.
func (c *Client) Disconnect() {
	c.mu.Lock()
	cli := c.cli
	if c.qrCancel != nil {
		c.qrCancel()
		c.qrCancel = nil
	}
	c.mu.Unlock()
	if cli != nil {
		cli.Disconnect()
	}
}

// Close disconnects and releases the device store.
func (c *Client) Close() error {
	c.Disconnect()
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.container != nil {
		err = c.container.Close()
	}
	c.container = nil
	c.cli = nil
	return err
}

// IsConnected reports whether the socket is up.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cli != nil && c.cli.IsConnected()
}

// SelfID returns the bot's own user identifier, or "" before pairing.
func (c *Client) SelfID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cli == nil || c.cli.Store.ID == nil {
		return ""
	}
	return c.cli.Store.ID.ToNonAD().String()
}

// SelfLID returns the bot's hidden-user identifier, or "" when unknown.
func (c *Client) SelfLID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.cli == nil || c.cli.Store.LID.IsEmpty() {
		return ""
	}
	return c.cli.Store.LID.ToNonAD().String()
}

func (c *Client) handleEvent(raw any) {
	h := c.currentHandlers()

	switch evt := raw.(type) {
	case *events.Connected:
		c.emitConnection(transport.ConnectionUpdate{State: transport.StateOpen})
		if h.CredentialsUpdate != nil {
			h.CredentialsUpdate()
		}
	case *events.PairSuccess:
		c.logger.Info("Device paired", "jid", evt.ID.String(), "platform", evt.Platform)
		if h.CredentialsUpdate != nil {
			h.CredentialsUpdate()
		}
	case *events.Disconnected:
		c.emitConnection(transport.ConnectionUpdate{State: transport.StateClosed, Cause: transport.CauseConnectionLost})
	case *events.StreamReplaced:
		c.emitConnection(transport.ConnectionUpdate{State: transport.StateClosed, Cause: transport.CauseReplaced})
	case *events.LoggedOut:
		c.emitConnection(transport.ConnectionUpdate{
			State: transport.StateClosed,
			Cause: transport.CauseLoggedOut,
			Err:   fmt.Errorf("logged out: %s", evt.Reason.String()),
		})
	case *events.ConnectFailure:
		cause := transport.CauseConnectFailed
		if evt.Reason.IsLoggedOut() {
			cause = transport.CauseLoggedOut
		}
		c.emitConnection(transport.ConnectionUpdate{
			State: transport.StateClosed,
			Cause: cause,
			Err:   fmt.Errorf("connect failure: %s %s", evt.Reason.String(), evt.Message),
		})
	case *events.TemporaryBan:
		c.emitConnection(transport.ConnectionUpdate{
			State: transport.StateClosed,
			Cause: transport.CauseConnectFailed,
			Err:   fmt.Errorf("temporary ban: %s", evt.String()),
		})
	case *events.Message:
		if h.Message != nil {
			msg := convertMessage(evt)
			c.resolveSender(msg)
			h.Message(msg)
		}
	case *events.GroupInfo:
		if h.ParticipantsChanged == nil {
			return
		}
		for _, change := range convertGroupInfo(evt) {
			h.ParticipantsChanged(change)
		}
	}
}

// resolveSender fills in the phone identity of a LID-addressed sender from the
// device's LID map when the message itself did not carry it.
func (c *Client) resolveSender(msg *transport.Message) {
	if msg.SenderLID == "" || msg.Sender != msg.SenderLID {
		return
	}
	c.mu.RLock()
	cli := c.cli
	c.mu.RUnlock()
	if cli == nil || cli.Store.LIDs == nil {
		return
	}
	lid, err := types.ParseJID(msg.SenderLID)
	if err != nil {
		return
	}
	pn, err := cli.Store.LIDs.GetPNForLID(context.Background(), lid)
	if err != nil {
		c.logger.Debug("Failed to resolve LID sender", "lid", msg.SenderLID, "error", err)
		return
	}
	if !pn.IsEmpty() {
		msg.Sender = pn.ToNonAD().String()
	}
}

func (c *Client) emitConnection(u transport.ConnectionUpdate) {
	if h := c.currentHandlers(); h.ConnectionUpdate != nil {
		h.ConnectionUpdate(u)
	}
}
