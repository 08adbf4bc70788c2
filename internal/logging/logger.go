// Package logging is the structured logging used by every transcoder
// component: a small context-aware interface, its slog implementation and
// the handler selection driven by configuration.
package logging

import "context"

// Logger is a context-aware, structured logger. args are key-value pairs:
//
//	log.Info(ctx, "upload stored", "owner", owner, "key", key)
//
// Pairs attached to ctx with ContextWith are added to every record.
type Logger interface {
	// Debug logs verbose diagnostics, such as encoder command lines.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key-value pairs.
	With(args ...any) Logger
}
