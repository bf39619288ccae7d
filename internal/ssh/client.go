// internal/ssh/client.go
package ssh

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"commandForge/internal/apperr"
	"commandForge/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
)

const DefaultDialTimeout = 10 * time.Second

// SSHDialer dials profiles with golang.org/x/crypto/ssh.
type SSHDialer struct {
	Timeout time.Duration
	// KnownHostsPath is the application's own known_hosts file.
	KnownHostsPath string
	// StrictHostKeys rejects hosts missing from KnownHostsPath instead of
	// recording their key on first use.
	StrictHostKeys bool
	// HostKeyCallback, when set, replaces known_hosts handling entirely.
	HostKeyCallback ssh.HostKeyCallback
	Logger          zerolog.Logger
}

// Dial connects and authenticates. Failures are returned as ConnectionError.
func (d *SSHDialer) Dial(ctx context.Context, profile models.ConnectionProfile) (Transport, error) {
	profile = profile.WithDefaults()
	if err := profile.Validate(); err != nil {
		return nil, apperr.New(apperr.ValidationError, "invalid profile", err)
	}

	auth, err := authMethods(profile)
	if err != nil {
		return nil, apperr.New(apperr.ConnectionError, "failed to prepare authentication", err)
	}

	hostKeyCallback, err := d.hostKeyCallback()
	if err != nil {
		return nil, apperr.New(apperr.ConnectionError, "failed to prepare host key verification", err)
	}

	timeout := d.Timeout
	if timeout <= 0 {
		timeout = DefaultDialTimeout
	}
	config := &ssh.ClientConfig{
		User:            profile.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := profile.Address()
	var netDialer net.Dialer
	conn, err := netDialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("failed to connect to %s", addr), err)
	}

	// The handshake has no context of its own; bound it with the deadline.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, apperr.New(apperr.ConnectionError, fmt.Sprintf("failed to connect to %s", addr), err)
	}
	_ = conn.SetDeadline(time.Time{})

	d.Logger.Info().Str("host", addr).Str("user", profile.User).Msg("ssh connection established")
	return &sshTransport{client: ssh.NewClient(sshConn, chans, reqs)}, nil
}

func (d *SSHDialer) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if d.HostKeyCallback != nil {
		return d.HostKeyCallback, nil
	}
	if d.KnownHostsPath == "" {
		return nil, errors.New("known_hosts path is not configured")
	}
	return knownHostsCallback(d.KnownHostsPath, d.StrictHostKeys, d.Logger)
}

// authMethods builds key auth when a key path is set (the password doubles as
// its passphrase), otherwise password auth with a keyboard-interactive
// fallback for servers that only offer the latter.
func authMethods(profile models.ConnectionProfile) ([]ssh.AuthMethod, error) {
	if profile.KeyPath != "" {
		key, err := os.ReadFile(profile.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		var missing *ssh.PassphraseMissingError
		if errors.As(err, &missing) && profile.Password != "" {
			signer, err = ssh.ParsePrivateKeyWithPassphrase(key, []byte(profile.Password))
		}
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}

	password := profile.Password
	return []ssh.AuthMethod{
		ssh.Password(password),
		ssh.KeyboardInteractive(func(user, instruction string, questions []string, echos []bool) ([]string, error) {
			answers := make([]string, len(questions))
			for i := range answers {
				answers[i] = password
			}
			return answers, nil
		}),
	}, nil
}
