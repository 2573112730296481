package observability

import (
	"io"
	"log/slog"
	"strings"
)

// slogLogger adapts a slog.Logger to the Logger interface.
type slogLogger struct {
	inner *slog.Logger
}

// NewSlogLogger builds a Logger writing to w. Level accepts debug, info,
// warn, and error; format accepts text and json. Unknown values fall back
// to info-level text output.
func NewSlogLogger(w io.Writer, level, format string) Logger {
	lvl := slog.LevelInfo
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	}
	var handler slog.Handler
	if strings.ToLower(strings.TrimSpace(format)) == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl})
	}
	return &slogLogger{inner: slog.New(handler)}
}

func (l *slogLogger) Debug(msg string, fields ...Field) {
	l.inner.Debug(msg, attrs(fields)...)
}

func (l *slogLogger) Info(msg string, fields ...Field) {
	l.inner.Info(msg, attrs(fields)...)
}

func (l *slogLogger) Error(msg string, fields ...Field) {
	l.inner.Error(msg, attrs(fields)...)
}

func attrs(fields []Field) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		out = append(out, slog.Any(f.Key, f.Value))
	}
	return out
}
