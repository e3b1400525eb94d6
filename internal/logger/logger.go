package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

var (
	defaultLogger *slog.Logger
	once          sync.Once
)

// Init installs the global logger writing to stderr at INFO level.
// Stdout is left free for command output.
func Init() {
	once.Do(func() {
		defaultLogger = slog.New(NewHandler(os.Stderr, slog.LevelInfo))
		slog.SetDefault(defaultLogger)
	})
}

// Setup replaces the global logger with one writing to out at the given level.
func Setup(out io.Writer, level slog.Level) *slog.Logger {
	l := slog.New(NewHandler(out, level))
	slog.SetDefault(l)
	return l
}

// ParseLevel maps "debug", "info", "warn" and "error" to slog levels.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug", "dbg":
		return slog.LevelDebug, nil
	case "info", "inf", "":
		return slog.LevelInfo, nil
	case "warn", "wrn", "warning":
		return slog.LevelWarn, nil
	case "error", "err":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// Handler is a slog handler with millisecond timestamps and short level tags.
type Handler struct {
	out   io.Writer
	mu    *sync.Mutex
	level slog.Level
	attrs []slog.Attr
	group string
}

// NewHandler creates a handler writing records at or above level to out.
func NewHandler(out io.Writer, level slog.Level) *Handler {
	return &Handler{out: out, mu: &sync.Mutex{}, level: level}
}

// Enabled reports whether records at l are written.
func (h *Handler) Enabled(_ context.Context, l slog.Level) bool {
	return l >= h.level
}

// Handle formats and writes a log record.
func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	// Format: 2024-01-15 14:30:45.123 [INF] message key=value
	ts := r.Time.Format("2006-01-02 15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "%s [%s] %s", ts, levelString(r.Level), r.Message)

	for _, a := range h.attrs {
		writeAttr(&b, "", a)
	}

	r.Attrs(func(a slog.Attr) bool {
		writeAttr(&b, h.group, a)
		return true
	})

	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()

	_, err := io.WriteString(h.out, b.String())
	return err
}

// WithAttrs returns a handler that always writes the given attributes.
func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)

	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}

	return &next
}

// WithGroup returns a handler that prefixes attribute keys with name.
func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}

	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}

	return &next
}

// writeAttr appends " key=value" for a, prefixing group when set.
func writeAttr(b *strings.Builder, group string, a slog.Attr) {
	if a.Equal(slog.Attr{}) {
		return
	}

	key := a.Key
	if group != "" {
		key = group + "." + key
	}

	fmt.Fprintf(b, " %s=%v", key, a.Value.Resolve())
}

// levelString returns a short string for the log level.
func levelString(l slog.Level) string {
	switch {
	case l < slog.LevelInfo:
		return "DBG"
	case l < slog.LevelWarn:
		return "INF"
	case l < slog.LevelError:
		return "WRN"
	default:
		return "ERR"
	}
}

// Info logs at INFO level.
func Info(msg string, args ...any) {
	slog.Info(msg, args...)
}

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) {
	slog.Debug(msg, args...)
}

// Warn logs at WARN level.
func Warn(msg string, args ...any) {
	slog.Warn(msg, args...)
}

// Error logs at ERROR level.
func Error(msg string, args ...any) {
	slog.Error(msg, args...)
}

// With returns a logger with the given attributes.
func With(args ...any) *slog.Logger {
	return slog.Default().With(args...)
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(NewHandler(io.Discard, slog.LevelError+1))
}

// Timed returns elapsed time since start for logging duration.
func Timed(start time.Time) slog.Attr {
	return slog.Duration("elapsed", time.Since(start))
}
