// internal/ssh/hostkeys.go
package ssh

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// HostKeyVerificationRequired is returned in strict mode for hosts that are
// not yet in the known_hosts file.
type HostKeyVerificationRequired struct {
	Host        string
	Fingerprint string

	path   string
	remote net.Addr
	key    ssh.PublicKey
}

func (e *HostKeyVerificationRequired) Error() string {
	return fmt.Sprintf("host key verification required for %s (%s)", e.Host, e.Fingerprint)
}

var knownHostsMu sync.Mutex

// knownHostsCallback verifies against path. Unknown hosts are appended on
// first use unless strict is set; a changed key is always rejected.
func knownHostsCallback(path string, strict bool, logger zerolog.Logger) (ssh.HostKeyCallback, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("failed to create directory for known_hosts: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to create known_hosts file: %w", err)
	}
	f.Close()

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		knownHostsMu.Lock()
		defer knownHostsMu.Unlock()

		// Reloaded on every handshake so keys recorded by other sessions count.
		check, err := knownhosts.New(path)
		if err != nil {
			return fmt.Errorf("failed to load known_hosts: %w", err)
		}
		err = check(hostname, remote, key)
		if err == nil {
			return nil
		}

		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) || len(keyErr.Want) > 0 {
			return err
		}

		fingerprint := ssh.FingerprintSHA256(key)
		if strict {
			return &HostKeyVerificationRequired{
				Host:        hostname,
				Fingerprint: fingerprint,
				path:        path,
				remote:      remote,
				key:         key,
			}
		}
		if err := appendKnownHost(path, hostname, remote, key); err != nil {
			return err
		}
		logger.Info().Str("host", hostname).Str("fingerprint", fingerprint).Msg("recorded new host key")
		return nil
	}, nil
}

// Trust records the rejected key so the next dial to the host succeeds.
func (e *HostKeyVerificationRequired) Trust() error {
	if e.key == nil {
		return fmt.Errorf("no host key to trust for %s", e.Host)
	}
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()
	return appendKnownHost(e.path, e.Host, e.remote, e.key)
}

func appendKnownHost(path, hostname string, remote net.Addr, key ssh.PublicKey) error {
	addresses := []string{knownhosts.Normalize(hostname)}
	if remote != nil {
		if addr := knownhosts.Normalize(remote.String()); addr != addresses[0] {
			addresses = append(addresses, addr)
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("failed to open known_hosts file %s: %w", path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintln(f, knownhosts.Line(addresses, key)); err != nil {
		return fmt.Errorf("failed to write known_hosts file %s: %w", path, err)
	}
	return nil
}
