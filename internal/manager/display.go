package manager

import (
	"fmt"
	"io"
	"sync"
	"time"
)

// TimestampLayout frames chunks shown to the user.
const TimestampLayout = "2006-01-02 15:04:05"

type ChunkKind int

const (
	// ChunkOutput is sanitized text produced by the remote shell, including
	// the session's own notices about connection loss and reconnects.
	ChunkOutput ChunkKind = iota
	// ChunkSent echoes a command the user submitted.
	ChunkSent
	// ChunkNotice is a front-end message such as "Connected.".
	ChunkNotice
)

// Chunk is one timestamped unit handed to a display sink.
type Chunk struct {
	Time time.Time
	Kind ChunkKind
	Text string
}

// Format renders the chunk the way it is shown in a transcript view.
func (c Chunk) Format() string {
	ts := c.Time.Format(TimestampLayout)
	switch c.Kind {
	case ChunkSent:
		return fmt.Sprintf("[%s] Sent: %s\n", ts, c.Text)
	case ChunkOutput:
		return fmt.Sprintf("[%s] Received:\n%s", ts, c.Text)
	}
	return c.Text
}

// DisplaySink receives a session's chunks. Append may be called from the
// dispatcher goroutine and from the goroutine issuing commands, so
// implementations must be safe for concurrent use.
type DisplaySink interface {
	Append(Chunk)
	// ScrollToEnd is called after each drained batch.
	ScrollToEnd()
}

// WriterSink renders chunks as plain text onto an io.Writer.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

func (s *WriterSink) Append(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	io.WriteString(s.w, c.Format())
}

func (s *WriterSink) ScrollToEnd() {}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Append(Chunk) {}
func (NopSink) ScrollToEnd() {}
