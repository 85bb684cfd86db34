package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is what convtune packages log through. Tuning code binds the
// device, shape key and search run once with With and logs from there.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	With(args ...any) Logger
	WithGroup(name string) Logger
}

// SlogLogger adapts a *slog.Logger to Logger.
type SlogLogger struct {
	*slog.Logger
}

var _ Logger = (*SlogLogger)(nil)

// New wraps handler.
func New(handler slog.Handler) Logger {
	return &SlogLogger{Logger: slog.New(handler)}
}

func (l *SlogLogger) With(args ...any) Logger {
	return &SlogLogger{Logger: l.Logger.With(args...)}
}

func (l *SlogLogger) WithGroup(name string) Logger {
	return &SlogLogger{Logger: l.Logger.WithGroup(name)}
}

func options(level slog.Level, source bool) *slog.HandlerOptions {
	return &slog.HandlerOptions{AddSource: source, Level: level}
}

// Default logs text at info level to stderr.
func Default() Logger {
	return New(slog.NewTextHandler(os.Stderr, options(slog.LevelInfo, false)))
}

// JSON logs one object per record, with source positions. convtune serve
// uses it when logs are shipped.
func JSON(w io.Writer, level slog.Level) Logger {
	return New(slog.NewJSONHandler(w, options(level, true)))
}

// Pretty logs colored single lines for an interactive terminal.
func Pretty(w io.Writer, level slog.Level) Logger {
	return New(NewPrettyHandler(w, options(level, true)))
}

// Discard drops every record. Library types fall back to it when the
// caller supplies no Logger.
func Discard() Logger {
	return New(slog.NewTextHandler(io.Discard, options(slog.LevelError+1, false)))
}

// Setup builds the Logger for a --log-format value: "json", "text" or
// anything else for pretty.
func Setup(format, level string, w io.Writer) Logger {
	lvl := ParseLevel(level)
	switch strings.ToLower(format) {
	case "json":
		return JSON(w, lvl)
	case "text":
		return New(slog.NewTextHandler(w, options(lvl, false)))
	default:
		return Pretty(w, lvl)
	}
}

type ctxKey struct{}

// WithContext stores l in ctx for code that only receives a context, such
// as the measurement loop.
func WithContext(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored by WithContext, or Default.
func FromContext(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return Default()
}

var levels = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// ParseLevel maps a lower-case level name to its slog.Level. Unknown names
// mean info.
func ParseLevel(level string) slog.Level {
	if l, ok := levels[level]; ok {
		return l
	}
	return slog.LevelInfo
}
