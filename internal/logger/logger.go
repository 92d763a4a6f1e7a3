// Package logger provides structured logging for the bot. It builds the slog
// logger used everywhere and adapts it to the logging interfaces of the
// WhatsApp client library.
package logger

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	waLog "go.mau.fi/whatsmeow/util/log"

	"github.com/edgard/wabot/internal/transport"
)

// NewLogger creates a slog logger with the given level. JSON output is used
// when jsonOutput is true, text otherwise. Unknown levels fall back to info.
func NewLogger(levelStr string, jsonOutput bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(levelStr)}

	var handler slog.Handler
	if jsonOutput {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}

// ParseLevel maps a level name to a slog level.
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// MessageFunc handles one inbound message.
type MessageFunc func(ctx context.Context, msg *transport.Message)

// Middleware logs every inbound message before and after next runs.
func Middleware(log *slog.Logger) func(next MessageFunc) MessageFunc {
	return func(next MessageFunc) MessageFunc {
		return func(ctx context.Context, msg *transport.Message) {
			startTime := time.Now()
			entry := log.With(
				"message_id", msg.ID,
				"conversation", msg.Conversation,
				"sender", msg.Sender,
				"kind", msg.Kind.String(),
			)
			if text := msg.Text + msg.Caption; text != "" {
				entry = entry.With("text_preview", truncateString(text, 50))
			}

			entry.DebugContext(ctx, "Processing message")
			next(ctx, msg)
			entry.DebugContext(ctx, "Finished processing message", "duration", time.Since(startTime))
		}
	}
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return "..."
	}
	return string(r[:maxLen-3]) + "..."
}

// waLogger adapts slog to the whatsmeow logging interface.
type waLogger struct {
	log *slog.Logger
}

// WhatsApp returns a whatsmeow logger writing to log under the given module.
//
//nolint:ireturn // whatsmeow requires its own interface
func WhatsApp(log *slog.Logger, module string) waLog.Logger {
	return &waLogger{log: log.With("component", "whatsmeow", "module", module)}
}

func (l *waLogger) Errorf(msg string, args ...interface{}) {
	l.log.Error(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Warnf(msg string, args ...interface{}) {
	l.log.Warn(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Infof(msg string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Debugf(msg string, args ...interface{}) {
	if !l.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	l.log.Debug(fmt.Sprintf(msg, args...))
}

func (l *waLogger) Sub(module string) waLog.Logger {
	return &waLogger{log: l.log.With("submodule", module)}
}
