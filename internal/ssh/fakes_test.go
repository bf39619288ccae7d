package ssh

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"commandForge/internal/models"

	"github.com/stretchr/testify/require"
)

// fakeChannel is a scripted Channel. Output fed with feed is returned by Recv;
// closeRemote makes the next read zero-length and fail makes Poll report an error.
type fakeChannel struct {
	mu       sync.Mutex
	pending  [][]byte
	eof      bool
	errored  bool
	closed   bool
	writes   []string
	writeErr error
	notify   chan struct{}
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

func (c *fakeChannel) closeRemote() {
	c.mu.Lock()
	c.eof = true
	c.mu.Unlock()
	c.signal()
}

func (c *fakeChannel) fail() {
	c.mu.Lock()
	c.errored = true
	c.mu.Unlock()
	c.signal()
}

func (c *fakeChannel) Poll(timeout time.Duration) PollResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		c.mu.Lock()
		res := PollResult{Readable: len(c.pending) > 0 || c.eof, Errored: c.errored}
		c.mu.Unlock()
		if res.Readable || res.Errored {
			return res
		}
		select {
		case <-c.notify:
		case <-timer.C:
			return PollResult{}
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
	if len(chunk) > max {
		c.pending[0] = chunk[max:]
		return chunk[:max], nil
	}
	c.pending = c.pending[1:]
	return chunk, nil
}

func (c *fakeChannel) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, errors.New("channel closed")
	}
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	c.writes = append(c.writes, string(p))
	return len(p), nil
}

func (c *fakeChannel) Close() error {
	c.mu.Lock()
	c.closed = true
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

func (c *fakeChannel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

type fakeTransport struct {
	ch           *fakeChannel
	keepAliveErr error

	mu     sync.Mutex
	closed bool
}

func (t *fakeTransport) OpenShell(termType string, width, height int) (Channel, error) {
	return t.ch, nil
}

func (t *fakeTransport) KeepAlive() error {
	return t.keepAliveErr
}

// Close drops the connection, which ends the shell stream as well.
func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
	t.ch.closeRemote()
	return nil
}

func (t *fakeTransport) isClosed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.closed
}

// fakeDialer hands out a fresh fakeTransport per successful Dial. errs[i],
// when set, fails the i-th attempt.
type fakeDialer struct {
	mu           sync.Mutex
	errs         []error
	keepAliveErr error
	attempts     int
	transports   []*fakeTransport
	profiles     []models.ConnectionProfile
	// hangFrom makes every dial from that attempt on block until ctx ends.
	hangFrom int
}

func (d *fakeDialer) Dial(ctx context.Context, profile models.ConnectionProfile) (Transport, error) {
	d.mu.Lock()
	i := d.attempts
	d.attempts++
	d.profiles = append(d.profiles, profile)
	if d.hangFrom > 0 && i >= d.hangFrom {
		d.mu.Unlock()
		<-ctx.Done()
		return nil, ctx.Err()
	}
	defer d.mu.Unlock()

	if i < len(d.errs) && d.errs[i] != nil {
		return nil, d.errs[i]
	}
	t := &fakeTransport{ch: newFakeChannel(), keepAliveErr: d.keepAliveErr}
	d.transports = append(d.transports, t)
	return t, nil
}

func (d *fakeDialer) transport(i int) *fakeTransport {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.transports[i]
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.attempts
}

const testPollInterval = 10 * time.Millisecond

func testOptions(t *testing.T) Options {
	t.Helper()
	return Options{
		PollInterval: testPollInterval,
		DialTimeout:  time.Second,
		LogsDir:      t.TempDir(),
	}
}

func testProfile() models.ConnectionProfile {
	return models.ConnectionProfile{Host: "example.com", User: "admin", Password: "secret"}
}

// readUntil drains q until the accumulated text contains want.
func readUntil(t *testing.T, q *OutputQueue, want string) string {
	t.Helper()
	var b strings.Builder
	require.Eventually(t, func() bool {
		for _, item := range q.Drain() {
			b.WriteString(item)
		}
		return strings.Contains(b.String(), want)
	}, 5*time.Second, 5*time.Millisecond, "output never contained %q", want)
	return b.String()
}
