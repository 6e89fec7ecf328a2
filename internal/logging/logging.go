// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/eachlabs/chorus/internal/config"
)

// DefaultMaxBytes is the size at which the log file rolls over.
const DefaultMaxBytes = 64 << 20

// ParseLevel parses DEBUG, INFO, WARN/WARNING or ERROR, case-insensitively.
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "", "INFO":
		return slog.LevelInfo, nil
	case "DEBUG":
		return slog.LevelDebug, nil
	case "WARN", "WARNING":
		return slog.LevelWarn, nil
	case "ERROR":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", level)
	}
}

// New builds a logger writing to stderr and, when cfg.File is set, to a
// size-capped file as well. The returned closer releases the file.
func New(cfg config.LoggingConfig, stderr io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	if stderr == nil {
		stderr = os.Stderr
	}

	out := stderr
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		fw, err := OpenFile(cfg.File, DefaultMaxBytes, DefaultBackups)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(stderr, fw)
		closer = fw
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	switch strings.ToLower(cfg.Format) {
	case "", "text":
		handler = slog.NewTextHandler(out, opts)
	case "json":
		handler = slog.NewJSONHandler(out, opts)
	default:
		_ = closer.Close()
		return nil, nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}

	return slog.New(handler), closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
