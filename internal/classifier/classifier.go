// Package classifier turns inbound messages into command invocations or
// passive-chat events and runs each one in its own bounded goroutine.
package classifier

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/edgard/wabot/internal/command"
	"github.com/edgard/wabot/internal/database"
	"github.com/edgard/wabot/internal/router"
	"github.com/edgard/wabot/internal/transport"
)

// ErrClosed is returned by Dispatch after Close has been called.
var ErrClosed = errors.New("classifier is closed")

// Dispatcher runs command invocations.
type Dispatcher interface {
	Dispatch(ctx context.Context, inv *command.Invocation) router.Outcome
}

// PolicyStore reads group settings.
type PolicyStore interface {
	GetGroupPolicy(ctx context.Context, id string) (*database.GroupPolicy, error)
}

// ActivityRecorder tracks per-user activity. Failures are logged only.
type ActivityRecorder interface {
	RecordActivity(ctx context.Context, jid, name string, command bool) error
}

// PassiveHandler reacts to unprefixed group text. Handlers are tried in order
// until one reports it handled the message.
type PassiveHandler interface {
	HandlePassive(ctx context.Context, msg *transport.Message, text string, policy *database.GroupPolicy) (bool, error)
}

// Options configures a Classifier.
type Options struct {
	Prefix         string
	MaxConcurrent  int64
	HandlerTimeout time.Duration
	Router         Dispatcher
	Policies       PolicyStore
	Activity       ActivityRecorder
	Passive        []PassiveHandler
	Logger         *slog.Logger
}

// Classifier routes inbound messages.
type Classifier struct {
	prefix   string
	timeout  time.Duration
	router   Dispatcher
	policies PolicyStore
	activity ActivityRecorder
	passive  []PassiveHandler
	logger   *slog.Logger

	sem    *semaphore.Weighted
	wg     sync.WaitGroup
	closed atomic.Bool
}

// New returns a classifier. Prefix defaults to "-", MaxConcurrent to 50.
func New(opts Options) *Classifier {
	if opts.Prefix == "" {
		opts.Prefix = "-"
	}
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 50
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Classifier{
		prefix:   opts.Prefix,
		timeout:  opts.HandlerTimeout,
		router:   opts.Router,
		policies: opts.Policies,
		activity: opts.Activity,
		passive:  opts.Passive,
		logger:   opts.Logger.With("component", "classifier"),
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// Dispatch handles msg on its own goroutine. It blocks only while the
// concurrency limit is saturated. Handlers run detached from ctx cancellation
// so they can finish during shutdown; Close waits for them.
func (c *Classifier) Dispatch(ctx context.Context, msg *transport.Message) error {
	return c.Go(ctx, func(hctx context.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				c.logger.ErrorContext(hctx, "Recovered panic while handling message", "panic", rec, "message_id", msg.ID)
			}
		}()
		c.Handle(hctx, msg)
	})
}

// Go runs task on the same bounded pool as message handlers, with the same
// timeout and shutdown draining. Other inbound events use it so they never
// run on the transport's event goroutine.
func (c *Classifier) Go(ctx context.Context, task func(context.Context)) error {
	if c.closed.Load() {
		return ErrClosed
	}
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	c.wg.Add(1)

	base := context.WithoutCancel(ctx)
	go func() {
		defer c.wg.Done()
		defer c.sem.Release(1)

		hctx, cancel := base, context.CancelFunc(func() {})
		if c.timeout > 0 {
			hctx, cancel = context.WithTimeout(base, c.timeout)
		}
		defer cancel()

		defer func() {
			if rec := recover(); rec != nil {
				c.logger.ErrorContext(hctx, "Recovered panic in event task", "panic", rec)
			}
		}()
		task(hctx)
	}()
	return nil
}

// Close stops accepting messages and waits for in-flight handlers until ctx
// is done.
func (c *Classifier) Close(ctx context.Context) error {
	c.closed.Store(true)
	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		c.logger.Warn("Abandoning in-flight handlers", "error", ctx.Err())
		return ctx.Err()
	}
}

// Handle classifies and processes a single message synchronously.
func (c *Classifier) Handle(ctx context.Context, msg *transport.Message) {
	if msg == nil || msg.FromMe {
		return
	}
	body := ExtractText(msg)
	if body == "" {
		return
	}

	if name, args, ok := ParseCommand(body, c.prefix); ok {
		if name == "" {
			return
		}
		c.recordActivity(ctx, msg, true)
		inv := &command.Invocation{
			ID:           uuid.NewString(),
			Message:      msg,
			Sender:       msg.Sender,
			Conversation: msg.Conversation,
			IsGroup:      msg.IsGroup(),
			Prefix:       c.prefix,
			Name:         name,
			Args:         args,
		}
		c.router.Dispatch(ctx, inv)
		return
	}

	c.recordActivity(ctx, msg, false)
	if !msg.IsGroup() || c.policies == nil {
		return
	}

	policy, err := c.policies.GetGroupPolicy(ctx, msg.Conversation)
	if err != nil {
		c.logger.WarnContext(ctx, "Failed to load group policy", "conversation", msg.Conversation, "error", err)
		return
	}
	if policy == nil {
		return
	}

	for _, h := range c.passive {
		handled, err := h.HandlePassive(ctx, msg, body, policy)
		if err != nil {
			c.logger.ErrorContext(ctx, "Passive handler failed", "conversation", msg.Conversation, "actor", msg.Sender, "error", err)
		}
		if handled {
			return
		}
	}
}

func (c *Classifier) recordActivity(ctx context.Context, msg *transport.Message, isCommand bool) {
	if c.activity == nil || msg.Sender == "" {
		return
	}
	if err := c.activity.RecordActivity(ctx, msg.Sender, msg.PushName, isCommand); err != nil {
		c.logger.WarnContext(ctx, "Failed to record user activity", "actor", msg.Sender, "error", err)
	}
}

// ExtractText returns the text body of a message: plain text, extended text,
// or an image or video caption. Other shapes have no text.
func ExtractText(msg *transport.Message) string {
	switch msg.Kind {
	case transport.KindText, transport.KindExtendedText:
		return msg.Text
	case transport.KindImage, transport.KindVideo:
		return msg.Caption
	default:
		return ""
	}
}

// ParseCommand splits prefixed text into a lowercased command name and its
// whitespace-separated arguments. A bare prefix yields an empty name.
func ParseCommand(body, prefix string) (string, []string, bool) {
	if prefix == "" || !strings.HasPrefix(body, prefix) {
		return "", nil, false
	}
	fields := strings.Fields(body[len(prefix):])
	if len(fields) == 0 {
		return "", nil, true
	}
	return strings.ToLower(fields[0]), fields[1:], true
}
