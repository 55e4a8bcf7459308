// Package notify is the fire-and-forget feedback surface used to tell a
// tenant how a payment went.
package notify

import (
	"context"
	"log/slog"
)

// Severity grades a Notice.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityError   Severity = "error"
)

// Notice is one user-facing message.
type Notice struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Severity    Severity `json:"severity"`
}

// Sink accepts notices. Implementations must not block for long and have no
// way to report failure.
type Sink interface {
	Notify(ctx context.Context, n Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, n Notice)

// Notify implements Sink.
func (f SinkFunc) Notify(ctx context.Context, n Notice) { f(ctx, n) }

// Discard drops every notice.
var Discard Sink = SinkFunc(func(context.Context, Notice) {})

// LogSink writes notices to logger. Error notices log at Warn.
func LogSink(logger *slog.Logger) Sink {
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(ctx context.Context, n Notice) {
		level := slog.LevelInfo
		if n.Severity == SeverityError {
			level = slog.LevelWarn
		}
		logger.Log(ctx, level, n.Title,
			"description", n.Description,
			"severity", string(n.Severity),
		)
	})
}
