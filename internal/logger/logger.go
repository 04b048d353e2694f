package logger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config selects the console format and the optional rotating file.
type Config struct {
	Level          string
	ConsoleFormat  string // "tint" (default), "text" or "json"
	FileEnabled    bool
	FilePath       string
	FileMaxSizeMB  int
	FileMaxBackups int
	FileMaxAgeDays int
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger writing to console and, when enabled, to a rotated file.
// The returned closer releases the file.
func New(cfg Config) (*slog.Logger, io.Closer, error) {
	return build(cfg, os.Stderr)
}

func build(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level := ParseLevel(cfg.Level)
	var handlers []slog.Handler

	switch strings.ToLower(cfg.ConsoleFormat) {
	case "json":
		handlers = append(handlers, slog.NewJSONHandler(console, &slog.HandlerOptions{Level: level}))
	case "text":
		handlers = append(handlers, slog.NewTextHandler(console, &slog.HandlerOptions{Level: level}))
	case "", "tint":
		handlers = append(handlers, tint.NewHandler(console, &tint.Options{
			Level:      level,
			TimeFormat: time.TimeOnly,
		}))
	default:
		return nil, nil, errors.New("logger: unknown console format " + cfg.ConsoleFormat)
	}

	var closer io.Closer = nopCloser{}
	if cfg.FileEnabled {
		if cfg.FilePath == "" {
			return nil, nil, errors.New("logger: file enabled without a path")
		}
		lj := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.FileMaxSizeMB,
			MaxBackups: cfg.FileMaxBackups,
			MaxAge:     cfg.FileMaxAgeDays,
		}
		handlers = append(handlers, slog.NewJSONHandler(lj, &slog.HandlerOptions{Level: level}))
		closer = lj
	}

	if len(handlers) == 1 {
		return slog.New(handlers[0]), closer, nil
	}
	return slog.New(&multiHandler{handlers: handlers}), closer, nil
}

// ParseLevel maps a level name to slog.Level; unknown names become INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARNING", "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// multiHandler fans a record out to every handler that accepts its level.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, r.Level) {
			if err := handler.Handle(ctx, r.Clone()); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}
