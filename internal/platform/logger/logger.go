package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/natefinch/lumberjack"
)

// Options selects the level, format and destination of the logger.
type Options struct {
	// Level: "debug", "info", "warn", "error" (default "info").
	Level string
	// Format: "json" or "text" (default "json").
	Format string
	// Output: "stdout" (default), "stderr", or a file path rotated by size.
	Output string

	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// New returns a structured logger configured by opts. The returned closer
// releases the log file, if any.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	out, closer, err := output(opts)
	if err != nil {
		return nil, nil, err
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(opts.Level)}

	var h slog.Handler
	if strings.ToLower(opts.Format) == "text" {
		h = slog.NewTextHandler(out, hopts)
	} else {
		h = slog.NewJSONHandler(out, hopts)
	}

	return slog.New(h), closer, nil
}

// ParseLevel maps a level name to a slog level, defaulting to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func output(opts Options) (io.Writer, io.Closer, error) {
	switch opts.Output {
	case "", "stdout":
		return os.Stdout, nopCloser{}, nil
	case "stderr":
		return os.Stderr, nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Output), 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	lj := &lumberjack.Logger{
		Filename:   opts.Output,
		MaxSize:    opts.MaxSize,
		MaxBackups: opts.MaxBackups,
		MaxAge:     opts.MaxAge,
		Compress:   true,
	}
	return lj, lj, nil
}
