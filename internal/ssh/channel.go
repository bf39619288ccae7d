// internal/ssh/channel.go
package ssh

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/ssh"
)

type sshTransport struct {
	client *ssh.Client
}

func (t *sshTransport) OpenShell(termType string, width, height int) (Channel, error) {
	session, err := t.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	modes := ssh.TerminalModes{
		ssh.ECHO:          1,
		ssh.TTY_OP_ISPEED: 14400,
		ssh.TTY_OP_OSPEED: 14400,
		ssh.VINTR:         3,  // Ctrl+C
		ssh.VQUIT:         28, // Ctrl+\
		ssh.VERASE:        127,
		ssh.VKILL:         21, // Ctrl+U
		ssh.VEOF:          4,  // Ctrl+D
		ssh.VSUSP:         26, // Ctrl+Z
	}
	if err := session.RequestPty(termType, height, width, modes); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to request PTY: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := session.Shell(); err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to start shell: %w", err)
	}

	ch := &sshChannel{
		session: session,
		stdin:   stdin,
		notify:  make(chan struct{}, 1),
	}
	go ch.pump(stdout)
	return ch, nil
}

func (t *sshTransport) KeepAlive() error {
	_, _, err := t.client.SendRequest("keepalive@openssh.com", true, nil)
	return err
}

func (t *sshTransport) Close() error {
	return t.client.Close()
}

// Client exposes the underlying connection for side channels such as SFTP.
func (t *sshTransport) Client() *ssh.Client {
	return t.client
}

// sshChannel turns the blocking stdout stream of an ssh.Session into the
// poll/recv contract: a pump goroutine buffers output and signals notify.
type sshChannel struct {
	session *ssh.Session
	stdin   io.WriteCloser

	mu      sync.Mutex
	pending []byte
	err     error // io.EOF once the remote side closed
	notify  chan struct{}
}

func (c *sshChannel) pump(stdout io.Reader) {
	buf := make([]byte, 32*1024)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.pending = append(c.pending, buf[:n]...)
			c.mu.Unlock()
			c.signal()
		}
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			c.signal()
			return
		}
	}
}

func (c *sshChannel) signal() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *sshChannel) Poll(timeout time.Duration) PollResult {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		c.mu.Lock()
		res := c.readyLocked()
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

func (c *sshChannel) readyLocked() PollResult {
	switch {
	case len(c.pending) > 0:
		return PollResult{Readable: true}
	case errors.Is(c.err, io.EOF):
		// Readable so the next Recv reports the zero-length read.
		return PollResult{Readable: true}
	case c.err != nil:
		return PollResult{Errored: true}
	}
	return PollResult{}
}

func (c *sshChannel) Recv(max int) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		if c.err != nil && !errors.Is(c.err, io.EOF) {
			return nil, c.err
		}
		return nil, nil
	}

	n := min(max, len(c.pending))
	out := make([]byte, n)
	copy(out, c.pending[:n])
	c.pending = c.pending[n:]
	return out, nil
}

func (c *sshChannel) Write(p []byte) (int, error) {
	return c.stdin.Write(p)
}

func (c *sshChannel) Close() error {
	err := c.session.Close()
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
