package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/mattn/go-isatty"

	"github.com/tonimelisma/onedrive-uploader/internal/config"
)

const (
	logFilePermissions = 0o600
	logDirPermissions  = 0o700
)

// buildLogger creates the process logger from the resolved config. Output goes
// to logging.log_file when set, else to stderr. The "auto" format picks text
// for a terminal and JSON otherwise. The returned func closes the log file.
func buildLogger(cfg *config.Resolved, stderr io.Writer) (*slog.Logger, func() error, error) {
	out := stderr
	closeFn := func() error { return nil }

	if cfg.LogFile != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.LogFile), logDirPermissions); err != nil {
			return nil, nil, fmt.Errorf("creating log directory: %w", err)
		}

		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}

		out = f
		closeFn = f.Close
	}

	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	var handler slog.Handler
	if useJSON(cfg.LogFormat, out) {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeFn, nil
}

func parseLogLevel(s string) slog.Level {
	switch s {
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

func useJSON(format string, out io.Writer) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	default:
		return !isTerminal(out)
	}
}

// isTerminal reports whether w is an interactive terminal.
func isTerminal(w any) bool {
	f, ok := w.(interface{ Fd() uintptr })
	if !ok {
		return false
	}

	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
