// Package stmlog provides structured logging for the STM, layered the
// way the rest of this codebase's tooling is: stderr by default, an
// optional log file, and an extensible Exporter for centralized or
// cloud log sinks.
//
// # Basic Usage
//
//	logger := stmlog.Default()
//	logger.Info("sentence added", "state_id", 3)
//
// # File logging
//
//	logger := stmlog.New(stmlog.Config{
//	    Level:   stmlog.LevelInfo,
//	    LogDir:  "~/.vscoq/logs",
//	    Service: "stm",
//	})
//	defer logger.Close()
//
// # Exporters
//
// An Exporter's Export is called synchronously for every LogEntry and
// is expected to buffer and batch internally; export failures are
// never propagated. GCSExporter and InfluxExporter are provided for cloud
// and time-series deployments respectively.
package stmlog

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Level mirrors slog's severity ordering.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String renders the level for logging and export.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func (l Level) toSlog() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config configures a Logger. A zero-value Config logs Debug+ to
// stderr as text.
type Config struct {
	Level   Level
	JSON    bool
	LogDir  string
	Service string
	Quiet   bool

	// Exporter, if set, also receives every log entry, from the
	// logging call itself.
	Exporter Exporter
}

// LogEntry is what gets handed to an Exporter.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// Exporter is the enterprise extension point: implementations forward
// log entries to an external system (object storage, a time-series
// database, a log aggregator). Export must not block the logging
// call path; implementations should queue internally.
type Exporter interface {
	Export(entry LogEntry)
	Close() error
}

// Logger wraps slog.Logger with file output and exporter fan-out.
//
// # Thread Safety
//
// Safe for concurrent use.
type Logger struct {
	slog *slog.Logger

	service  string
	level    Level
	exporter Exporter

	mu   sync.Mutex
	file *os.File
}

// New builds a Logger per config.
func New(config Config) *Logger {
	var handlers []slog.Handler
	opts := &slog.HandlerOptions{Level: config.Level.toSlog()}

	if !config.Quiet {
		if config.JSON {
			handlers = append(handlers, slog.NewJSONHandler(os.Stderr, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(os.Stderr, opts))
		}
	}

	l := &Logger{service: config.Service, level: config.Level, exporter: config.Exporter}

	if config.LogDir != "" {
		dir := expandPath(config.LogDir)
		if err := os.MkdirAll(dir, 0o750); err == nil {
			name := config.Service
			if name == "" {
				name = "stm"
			}
			path := filepath.Join(dir, fmt.Sprintf("%s_%s.log", name, time.Now().Format("2006-01-02")))
			if f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640); err == nil {
				l.file = f
				handlers = append(handlers, slog.NewJSONHandler(f, opts))
			}
		}
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(os.Stderr, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = fanoutHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	l.slog = slog.New(handler)
	return l
}

// Default returns an Info-level, stderr-only logger.
func Default() *Logger {
	return New(Config{Level: LevelInfo})
}

func (l *Logger) Debug(msg string, args ...any) { l.log(LevelDebug, msg, args...) }
func (l *Logger) Info(msg string, args ...any)  { l.log(LevelInfo, msg, args...) }
func (l *Logger) Warn(msg string, args ...any)  { l.log(LevelWarn, msg, args...) }
func (l *Logger) Error(msg string, args ...any) { l.log(LevelError, msg, args...) }

// With returns a child logger carrying the given attributes on every
// subsequent call.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{
		slog:     l.slog.With(args...),
		service:  l.service,
		level:    l.level,
		exporter: l.exporter,
		file:     l.file,
	}
}

// Slog exposes the underlying *slog.Logger for callers that want
// direct slog handler composition (e.g. tracing-correlated logging).
func (l *Logger) Slog() *slog.Logger { return l.slog }

func (l *Logger) log(level Level, msg string, args ...any) {
	if level < l.level {
		return
	}
	l.slog.Log(context.Background(), level.toSlog(), msg, args...)

	if l.exporter == nil {
		return
	}
	attrs := make(map[string]any, len(args)/2)
	for i := 0; i+1 < len(args); i += 2 {
		if key, ok := args[i].(string); ok {
			attrs[key] = args[i+1]
		}
	}
	l.exporter.Export(LogEntry{
		Timestamp: time.Now(),
		Level:     level,
		Message:   msg,
		Service:   l.service,
		Attrs:     attrs,
	})
}

// Close flushes and closes the log file, if any, and closes the
// exporter, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []string
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		l.file = nil
	}
	if l.exporter != nil {
		if err := l.exporter.Close(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("stmlog: close: %s", strings.Join(errs, "; "))
	}
	return nil
}

func expandPath(p string) string {
	if strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, p[2:])
		}
	}
	return p
}

// fanoutHandler writes every record to each wrapped handler, used when
// both stderr and file logging are active.
type fanoutHandler struct {
	handlers []slog.Handler
}

func (h fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, hd := range h.handlers {
		if hd.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h fanoutHandler) Handle(ctx context.Context, record slog.Record) error {
	for _, hd := range h.handlers {
		if !hd.Enabled(ctx, record.Level) {
			continue
		}
		if err := hd.Handle(ctx, record.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (h fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		out[i] = hd.WithAttrs(attrs)
	}
	return fanoutHandler{handlers: out}
}

func (h fanoutHandler) WithGroup(name string) slog.Handler {
	out := make([]slog.Handler, len(h.handlers))
	for i, hd := range h.handlers {
		out[i] = hd.WithGroup(name)
	}
	return fanoutHandler{handlers: out}
}
