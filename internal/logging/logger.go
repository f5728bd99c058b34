// Package logging builds the process logger: a console handler and an
// optional JSON file handler fanned out behind one *slog.Logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	slogmulti "github.com/samber/slog-multi"
)

// Options configures New.
type Options struct {
	Level  string    // debug, info, warn, error
	Format string    // Console format: text or json
	File   string    // JSON log file; empty disables the file sink
	Quiet  bool      // Drop the console sink, e.g. while the TUI owns the terminal
	Writer io.Writer // Console writer, os.Stderr when nil
}

// Logger wraps the configured *slog.Logger and the file it may hold open.
type Logger struct {
	*slog.Logger
	file *os.File
}

// New creates a Logger. With Quiet set and no file, logs are discarded.
func New(opts Options) (*Logger, error) {
	level := ParseLevel(opts.Level)
	hopts := &slog.HandlerOptions{Level: level}

	var handlers []slog.Handler

	if !opts.Quiet {
		w := opts.Writer
		if w == nil {
			w = os.Stderr
		}
		if strings.EqualFold(opts.Format, "json") {
			handlers = append(handlers, slog.NewJSONHandler(w, hopts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(w, hopts))
		}
	}

	var file *os.File
	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		file = f
		handlers = append(handlers, slog.NewJSONHandler(f, hopts))
	}

	if len(handlers) == 0 {
		handlers = append(handlers, slog.NewTextHandler(io.Discard, hopts))
	}

	return &Logger{
		Logger: slog.New(slogmulti.Fanout(handlers...)),
		file:   file,
	}, nil
}

// Close closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

// ParseLevel maps a level name to a slog.Level. Unknown names mean info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
