package build

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogConfig selects the log level and an optional rotating file stream
// next to the console stream.
type LogConfig struct {
	// Level is one of debug, info, warn, error.
	Level string

	// Dir enables the rotating JSON file stream when non-empty.
	Dir string

	// MaxLogFiles and MaxLogFileSize override the rotation defaults
	// when non-zero.
	MaxLogFiles    int
	MaxLogFileSize int
}

// ParseLevel maps a level name to its slog level.
func ParseLevel(name string) (slog.Level, error) {
	switch strings.ToLower(name) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("unknown log level %q", name)
	}
}

// NewLogger builds the process logger: a text handler on stderr, plus a
// JSON handler into a gzip-rotated file when a log directory is
// configured. The returned closer flushes the file stream.
func NewLogger(cfg LogConfig) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	console := slog.NewTextHandler(os.Stderr, opts)

	if cfg.Dir == "" {
		return slog.New(console), nopCloser{}, nil
	}

	rotCfg := DefaultLogRotatorConfig()
	rotCfg.LogDir = cfg.Dir
	if cfg.MaxLogFiles > 0 {
		rotCfg.MaxLogFiles = cfg.MaxLogFiles
	}
	if cfg.MaxLogFileSize > 0 {
		rotCfg.MaxLogFileSize = cfg.MaxLogFileSize
	}

	writer := NewRotatingLogWriter()
	if err := writer.InitLogRotator(rotCfg); err != nil {
		return nil, nil, err
	}

	file := slog.NewJSONHandler(writer, opts)
	return slog.New(NewHandlerSet(console, file)), writer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
