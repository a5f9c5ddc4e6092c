// Package observability provides structured logging for the bill assistant.
package observability

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/pkgerrors"
)

const defaultService = "bill-assistant"

// Logger is a zerolog.Logger with helpers for the fields every
// bill-assistant log line can carry.
type Logger struct {
	zerolog.Logger
}

// LogConfig holds logger configuration.
type LogConfig struct {
	Level       string
	Format      string // json or console
	Output      io.Writer
	ServiceName string
	NoColor     bool
}

// NewLogger builds a Logger. Console format is meant for the interactive CLI,
// JSON for the server.
func NewLogger(cfg LogConfig) *Logger {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen, NoColor: cfg.NoColor}
	}

	service := cfg.ServiceName
	if service == "" {
		service = defaultService
	}

	zl := zerolog.New(out).
		Level(parseLevel(cfg.Level)).
		With().Timestamp().Str("service", service).
		Logger()
	return &Logger{Logger: zl}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return &Logger{Logger: zerolog.Nop()}
}

// ForRequest tags the logger with the request ID carried by ctx, if any.
func (l *Logger) ForRequest(ctx context.Context) *Logger {
	reqID := RequestIDFromContext(ctx)
	if reqID == "" {
		return l
	}
	return l.with("request_id", reqID)
}

// WithSession tags the logger with a conversation session.
func (l *Logger) WithSession(sessionID string) *Logger {
	return l.with("session_id", sessionID)
}

// WithOperation tags the logger with a pipeline step such as upload or ask.
func (l *Logger) WithOperation(op string) *Logger {
	return l.with("operation", op)
}

func (l *Logger) with(key, val string) *Logger {
	return &Logger{Logger: l.Logger.With().Str(key, val).Logger()}
}

// parseLevel falls back to info for unknown names.
func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "warning":
		return zerolog.WarnLevel
	case "off":
		return zerolog.Disabled
	case "":
		return zerolog.InfoLevel
	}
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

type requestIDKey struct{}

// ContextWithRequestID stores the HTTP request ID for ForRequest.
func ContextWithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, requestID)
}

// RequestIDFromContext returns the stored request ID or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
