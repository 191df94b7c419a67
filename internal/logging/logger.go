// Package logging defines a minimal structured-logging interface used across
// the project. Implementations wrap slog and zerolog.
package logging

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// Logger is a context-aware, structured logger.
//
// The variadic args are interpreted as key–value pairs, e.g.:
//
//	log.Info(ctx, "account registered", "account_id", id)
type Logger interface {
	// Debug logs diagnostic detail that is off in production.
	Debug(ctx context.Context, msg string, args ...any)

	// Info logs an informational message.
	Info(ctx context.Context, msg string, args ...any)

	// Warn logs a warning message for unusual but non-fatal conditions.
	Warn(ctx context.Context, msg string, args ...any)

	// Error logs an error message for failures.
	Error(ctx context.Context, msg string, args ...any)

	// With returns a child logger that always includes the given key–value pairs.
	With(args ...any) Logger
}

// Supported output formats.
const (
	FormatJSON    = "json"
	FormatText    = "text"
	FormatZerolog = "zerolog"
)

// New builds a Logger writing to w in the requested format. Unknown formats
// fall back to slog JSON.
func New(format string, w io.Writer) Logger {
	if w == nil {
		w = os.Stdout
	}
	if format == FormatZerolog {
		return NewZerologLogger(zerolog.New(w).With().Timestamp().Logger())
	}
	return newSlog(format, w)
}

// Nop returns a Logger that discards everything.
func Nop() Logger {
	return newSlog(FormatText, io.Discard)
}

const redactedValue = "[REDACTED]"

// isSensitive reports whether values logged under key must be masked.
func isSensitive(key string) bool {
	switch strings.ToLower(key) {
	case "password", "password_hash", "token", "secret", "secret_key", "authorization":
		return true
	}
	return false
}
