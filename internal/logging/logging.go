// Package logging sets up the application's diagnostic log. Session
// transcripts are written separately by logsink.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// New returns a logger writing JSON lines at the given level to w.
// An unknown level falls back to info.
func New(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// Open appends to the log file at path, creating its directory. Extra
// writers, such as stderr in headless mode, receive the same lines. The
// returned file must be closed by the caller.
func Open(path, level string, extra ...io.Writer) (zerolog.Logger, *os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("cannot create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("cannot open log file %s: %w", path, err)
	}

	var w io.Writer = f
	if len(extra) > 0 {
		w = zerolog.MultiLevelWriter(append([]io.Writer{f}, extra...)...)
	}
	return New(w, level), f, nil
}

// ConsoleWriter renders log lines for a human, for passing to Open as an
// extra writer.
func ConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly, NoColor: true}
}
