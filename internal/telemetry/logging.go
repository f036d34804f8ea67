// Package telemetry builds the session's structured logger: JSON lines to
// <home>/logs/system.jsonl, mirrored to stderr unless quieted, with secret
// scrubbing on every attribute.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"go.opentelemetry.io/otel/trace"
)

// NewLogger builds the process-wide logger. Log lines go to
// <homeDir>/logs/system.jsonl and, unless quiet, to stderr. Stdout is never
// written: the stdio transport owns it.
func NewLogger(homeDir, level string, quiet bool) (*slog.Logger, io.Closer, error) {
	logDir := filepath.Join(homeDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, err
	}
	file, err := os.OpenFile(filepath.Join(logDir, "system.jsonl"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, nil, err
	}

	sink := io.Writer(file)
	if !quiet {
		sink = io.MultiWriter(os.Stderr, file)
	}
	inner := slog.NewJSONHandler(sink, &slog.HandlerOptions{
		Level:       parseLevel(level),
		ReplaceAttr: scrubAttr,
	})
	logger := slog.New(spanHandler{inner}).With("component", "hitl")
	return logger, file, nil
}

// scrubAttr renames the time key and strips secrets from attribute keys and
// string values before they reach any sink.
func scrubAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Key == slog.TimeKey {
		a.Key = "timestamp"
	}
	if sensitiveKey(a.Key) {
		return slog.String(a.Key, redactedMark)
	}
	if a.Value.Kind() == slog.KindString {
		if scrubbed := scrubValue(a.Value.String()); scrubbed != a.Value.String() {
			return slog.String(a.Key, scrubbed)
		}
	}
	return a
}

// spanHandler stamps every record with the trace id of the span on its
// context, or "-" outside any span, so log lines join against exported
// spans.
type spanHandler struct{ slog.Handler }

func (h spanHandler) Handle(ctx context.Context, rec slog.Record) error {
	id := "-"
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		id = sc.TraceID().String()
	}
	rec.AddAttrs(slog.String("trace_id", id))
	return h.Handler.Handle(ctx, rec)
}

func (h spanHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return spanHandler{h.Handler.WithAttrs(attrs)}
}

func (h spanHandler) WithGroup(name string) slog.Handler {
	return spanHandler{h.Handler.WithGroup(name)}
}

func sensitiveKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	if k == "" {
		return false
	}
	for _, marker := range []string{"token", "secret", "password", "authorization", "api_key", "apikey", "bearer"} {
		if strings.Contains(k, marker) {
			return true
		}
	}
	return false
}

// scrubValue catches secrets embedded in free-form strings: whole-string
// redaction for auth header material, then the pattern table in redact.go.
func scrubValue(v string) string {
	lower := strings.ToLower(v)
	if strings.Contains(lower, "bearer ") || strings.Contains(lower, "authorization:") || strings.Contains(lower, "api_key") {
		return redactedMark
	}
	return redactSecrets(v)
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
