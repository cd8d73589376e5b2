package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/itohio/growbox/pkg/config"
)

func parseLevel(s string) slog.Level {
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

// newLogger logs text to stdout and, when a file is configured, to that
// file as well. The returned writer carries the HTTP access log.
func newLogger(cfg config.LogConfig) (*slog.Logger, io.Writer, func() error, error) {
	var out io.Writer = os.Stdout
	closer := func() error { return nil }

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("cannot open log file %s: %w", cfg.File, err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f.Close
	}

	h := slog.NewTextHandler(out, &slog.HandlerOptions{Level: parseLevel(cfg.Level)})
	return slog.New(h), out, closer, nil
}
