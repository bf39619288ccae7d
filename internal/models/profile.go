// internal/models/profile.go

package models

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

const DefaultPort = 22

// ConnectionProfile is a saved or ad-hoc target for an interactive session.
type ConnectionProfile struct {
	Name     string `json:"name,omitempty"`
	Host     string `json:"host"`
	Port     int    `json:"port"`
	User     string `json:"user"`
	Password string `json:"password"`
	KeyPath  string `json:"key_path,omitempty"`
}

// Identity is the structural key used to de-duplicate profiles.
type Identity struct {
	Host string
	Port int
	User string
}

// WithDefaults returns a copy with empty fields filled in.
func (p ConnectionProfile) WithDefaults() ConnectionProfile {
	if p.Port == 0 {
		p.Port = DefaultPort
	}
	p.Host = strings.TrimSpace(p.Host)
	p.User = strings.TrimSpace(p.User)
	return p
}

// Validate checks the fields needed to dial.
func (p ConnectionProfile) Validate() error {
	if strings.TrimSpace(p.Host) == "" {
		return errors.New("host cannot be empty")
	}
	if strings.TrimSpace(p.User) == "" {
		return errors.New("user cannot be empty")
	}
	if p.Port < 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	return nil
}

func (p ConnectionProfile) Identity() Identity {
	p = p.WithDefaults()
	return Identity{Host: p.Host, Port: p.Port, User: p.User}
}

// Address returns host:port, bracketing IPv6 literals.
func (p ConnectionProfile) Address() string {
	p = p.WithDefaults()
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// Title is the label shown for a session: the name, or user@host:port.
func (p ConnectionProfile) Title() string {
	if p.Name != "" {
		return p.Name
	}
	p = p.WithDefaults()
	return fmt.Sprintf("%s@%s:%d", p.User, p.Host, p.Port)
}

// ParseTarget reads "user@host", "user@host:port" or "user@[v6addr]:port".
func ParseTarget(target string) (ConnectionProfile, error) {
	user, hostPort, ok := strings.Cut(strings.TrimSpace(target), "@")
	if !ok || user == "" || hostPort == "" {
		return ConnectionProfile{}, fmt.Errorf("expected user@host[:port], got %q", target)
	}

	p := ConnectionProfile{User: user, Host: hostPort, Port: DefaultPort}
	if host, port, err := net.SplitHostPort(hostPort); err == nil {
		n, err := strconv.Atoi(port)
		if err != nil || n <= 0 || n > 65535 {
			return ConnectionProfile{}, fmt.Errorf("invalid port %q", port)
		}
		p.Host, p.Port = host, n
	}
	return p, p.Validate()
}
