package manager

import (
	"context"
	"errors"
	"sync"
	"time"

	"commandForge/internal/models"
	"commandForge/internal/ssh"
)

type fakeChannel struct {
	mu      sync.Mutex
	pending [][]byte
	eof     bool
	writes  []string
	notify  chan struct{}
}

func newFakeChannel() *fakeChannel {
	return &fakeChannel{notify: make(chan struct{}, 1)}
}

func (c *fakeChannel) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *fakeChannel) feed(data string) {
	c.mu.Lock()
	c.pending = append(c.pending, []byte(data))
	c.mu.Unlock()
	c.signal()
}

func (c *fakeChannel) Poll(timeout time.Duration) ssh.PollResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		c.mu.Lock()
		readable := len(c.pending) > 0 || c.eof
		c.mu.Unlock()
		if readable {
			return ssh.PollResult{Readable: true}
		}
		select {
		case <-c.notify:
		case <-timer.C:
			return ssh.PollResult{}
		}
	}
}

func (c *fakeChannel) Recv(max int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.pending) == 0 {
		return nil, nil
	}
	chunk := c.pending[0]
	c.pending = c.pending[1:]
	return chunk, nil
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.eof {
		return 0, errors.New("channel closed")
	}
	c.writes = append(c.writes, string(p))
	return len(p), nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.eof = true
	c.mu.Unlock()
	c.signal()
	return nil
}

func (c *fakeChannel) written() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.writes...)
}

type fakeTransport struct {
	ch *fakeChannel
}

func (t *fakeTransport) OpenShell(string, int, int) (ssh.Channel, error) {
	return t.ch, nil
}

func (t *fakeTransport) KeepAlive() error {
	return nil
}

func (t *fakeTransport) Close() error {
	return t.ch.Close()
}

// fakeDialer fails hosts listed in refuse and records every channel it opens.
type fakeDialer struct {
	refuse map[string]error

	mu       sync.Mutex
	channels map[string]*fakeChannel
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{refuse: map[string]error{}, channels: map[string]*fakeChannel{}}
}

func (d *fakeDialer) Dial(ctx context.Context, profile models.ConnectionProfile) (ssh.Transport, error) {
	if err, ok := d.refuse[profile.Host]; ok {
		return nil, err
	}
	ch := newFakeChannel()
	d.mu.Lock()
	d.channels[profile.Host] = ch
	d.mu.Unlock()
	return &fakeTransport{ch: ch}, nil
}

func (d *fakeDialer) channel(host string) *fakeChannel {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.channels[host]
}

// recordingSink keeps every chunk it receives; panics when explode is set.
type recordingSink struct {
	mu      sync.Mutex
	chunks  []Chunk
	scrolls int
	explode bool
}

func (s *recordingSink) Append(c Chunk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.explode && c.Kind == ChunkOutput {
		panic("display gone")
	}
	s.chunks = append(s.chunks, c)
}

func (s *recordingSink) ScrollToEnd() {
	s.mu.Lock()
	s.scrolls++
	s.mu.Unlock()
}

func (s *recordingSink) texts(kind ChunkKind) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, c := range s.chunks {
		if c.Kind == kind {
			out = append(out, c.Text)
		}
	}
	return out
}
