// internal/ssh/transport.go

package ssh

import (
	"context"
	"time"

	"commandForge/internal/models"
)

// Dialer establishes a transport to the host described by a profile.
type Dialer interface {
	Dial(ctx context.Context, profile models.ConnectionProfile) (Transport, error)
}

// Transport is one authenticated connection to a remote host.
type Transport interface {
	// OpenShell requests a PTY of the given type and geometry and starts
	// an interactive shell on it.
	OpenShell(termType string, width, height int) (Channel, error)
	// KeepAlive sends a liveness request and waits for the reply.
	KeepAlive() error
	Close() error
}

// PollResult reports channel readiness after a bounded wait.
type PollResult struct {
	Readable bool
	Errored  bool
}

// Channel is the interactive shell stream multiplexed over a Transport.
type Channel interface {
	Write(p []byte) (int, error)
	// Recv returns up to max pending bytes. A zero-length result with a nil
	// error means the remote side closed the stream.
	Recv(max int) ([]byte, error)
	// Poll waits up to timeout for the channel to become readable or errored.
	Poll(timeout time.Duration) PollResult
	Close() error
}
