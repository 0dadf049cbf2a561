// Package logger owns the process-wide slog instance. Components normally
// take a *slog.Logger from AppContext; the package-level functions are the
// fallback for code that runs before wiring is done.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/emberapp/ember-core/internal/config"
)

// Options control handler construction. Format is "text" or "json"; any
// other value falls back to text.
type Options struct {
	Level     string
	Format    string
	Component string
	AddSource bool
}

var (
	mu    sync.RWMutex
	base  *slog.Logger
	level = new(slog.LevelVar)
)

// InitFromConfig wires the global logger from app config.
func InitFromConfig(cfg *config.Config) {
	Init(Options{
		Level:     cfg.Log.Level,
		Format:    cfg.Log.Format,
		Component: cfg.Log.Component,
		AddSource: cfg.Log.Source,
	})
}

// Init replaces the global logger, writing to stdout. Safe to call more
// than once.
func Init(opts Options) {
	InitWriter(os.Stdout, opts)
}

// InitWriter replaces the global logger with one writing to w. Split out
// from Init so tests can log into a buffer.
func InitWriter(w io.Writer, opts Options) {
	level.Set(parseLevel(opts.Level))

	ho := &slog.HandlerOptions{Level: level, AddSource: opts.AddSource}
	var h slog.Handler
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		h = slog.NewJSONHandler(w, ho)
	} else {
		h = slog.NewTextHandler(w, ho)
	}

	l := slog.New(h)
	if opts.Component != "" {
		l = l.With("component", opts.Component)
	}

	mu.Lock()
	base = l
	mu.Unlock()
}

// SetLevel adjusts the minimum level of the current handler in place,
// without rebuilding it or disturbing child loggers already handed out.
func SetLevel(s string) {
	level.Set(parseLevel(s))
}

// L returns the global logger, initializing a default one on first use.
func L() *slog.Logger {
	mu.RLock()
	l := base
	mu.RUnlock()
	if l != nil {
		return l
	}

	Init(Options{Level: "info", Format: "text"})

	mu.RLock()
	defer mu.RUnlock()
	return base
}

// With creates a child logger with additional attributes.
func With(args ...any) *slog.Logger { return L().With(args...) }

func Debug(msg string, args ...any) { L().Debug(msg, args...) }
func Info(msg string, args ...any)  { L().Info(msg, args...) }
func Warn(msg string, args ...any)  { L().Warn(msg, args...) }
func Error(msg string, args ...any) { L().Error(msg, args...) }

func parseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
