// Package logsink writes session transcripts to append-only files.
package logsink

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
	"unicode"
)

// TimestampLayout is the open-timestamp part of a transcript file name.
const TimestampLayout = "20060102_150405"

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("log sink closed")

// FileSink appends raw sanitized text to a transcript file and flushes after
// every write, so a crash loses at most the chunk being written.
type FileSink struct {
	mu     sync.Mutex
	file   *os.File
	w      *bufio.Writer
	path   string
	closed bool
}

// Open creates logsDir if needed and opens <logsDir>/<host>_<YYYYMMDD_HHMMSS>.log
// in append mode. If that name is already taken a -2, -3, ... suffix is added.
func Open(logsDir, host string, openedAt time.Time) (*FileSink, error) {
	if err := os.MkdirAll(logsDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create logs directory: %w", err)
	}

	base := fmt.Sprintf("%s_%s", safeFileName(host), openedAt.Format(TimestampLayout))
	path := filepath.Join(logsDir, base+".log")
	for n := 2; ; n++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			return &FileSink{file: f, w: bufio.NewWriter(f), path: path}, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		path = filepath.Join(logsDir, fmt.Sprintf("%s-%d.log", base, n))
	}
}

// Path returns the transcript file path.
func (s *FileSink) Path() string {
	return s.path
}

// Write appends text verbatim and flushes it to the file.
func (s *FileSink) Write(text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	if _, err := s.w.WriteString(text); err != nil {
		return err
	}
	return s.w.Flush()
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	flushErr := s.w.Flush()
	closeErr := s.file.Close()
	return errors.Join(flushErr, closeErr)
}

// safeFileName keeps letters, digits, dots, dashes and underscores.
func safeFileName(name string) string {
	safe := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsNumber(r) || r == '.' || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, name)
	if safe == "" {
		return "session"
	}
	return safe
}
