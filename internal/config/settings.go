package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"commandForge/internal/apperr"
	"commandForge/internal/crypto"
	"commandForge/internal/ssh"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog"
)

const (
	EnvPrefix          = "FORGE"
	DefaultBaseDirName = ".commandforge"
	KnownHostsFileName = "known_hosts"
	AppLogFileName     = "forge.log"

	// MaxPollInterval bounds how long Close may wait for a reader to notice.
	MaxPollInterval = 200 * time.Millisecond
)

// Settings are runtime options read from FORGE_* environment variables.
type Settings struct {
	BaseDir          string        `envconfig:"BASE_DIR"`
	LogsDir          string        `envconfig:"LOGS_DIR"`
	PollInterval     time.Duration `envconfig:"POLL_INTERVAL" default:"100ms"`
	DispatchInterval time.Duration `envconfig:"DISPATCH_INTERVAL" default:"100ms"`
	DialTimeout      time.Duration `envconfig:"DIAL_TIMEOUT" default:"10s"`
	KeepAlive        time.Duration `envconfig:"KEEPALIVE" default:"30s"`
	TermType         string        `envconfig:"TERM_TYPE" default:"vt100"`
	TermWidth        int           `envconfig:"TERM_WIDTH" default:"80"`
	TermHeight       int           `envconfig:"TERM_HEIGHT" default:"24"`
	StrictHostKeys   bool          `envconfig:"STRICT_HOST_KEYS" default:"false"`
	MasterKey        string        `envconfig:"MASTER_KEY"`
	LogLevel         string        `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadSettings reads the environment and fills in directory defaults under
// the user's home.
func LoadSettings() (*Settings, error) {
	var s Settings
	if err := envconfig.Process(EnvPrefix, &s); err != nil {
		return nil, apperr.New(apperr.ConfigError, "failed to read settings", err)
	}

	if s.BaseDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, apperr.New(apperr.ConfigError, "could not get home directory", err)
		}
		s.BaseDir = filepath.Join(home, DefaultBaseDirName)
	}
	if s.LogsDir == "" {
		s.LogsDir = filepath.Join(s.BaseDir, "logs")
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

func (s *Settings) Validate() error {
	if s.PollInterval <= 0 || s.PollInterval > MaxPollInterval {
		return apperr.New(apperr.ConfigError,
			fmt.Sprintf("poll interval must be in (0, %s], got %s", MaxPollInterval, s.PollInterval), nil)
	}
	if s.DispatchInterval <= 0 {
		return apperr.New(apperr.ConfigError, "dispatch interval must be positive", nil)
	}
	if s.TermWidth <= 0 || s.TermHeight <= 0 {
		return apperr.New(apperr.ConfigError,
			fmt.Sprintf("invalid terminal geometry %dx%d", s.TermWidth, s.TermHeight), nil)
	}
	if _, err := zerolog.ParseLevel(s.LogLevel); err != nil {
		return apperr.New(apperr.ConfigError, "invalid log level", err)
	}
	return nil
}

func (s *Settings) StorePath() string {
	return filepath.Join(s.BaseDir, DefaultStoreFileName)
}

func (s *Settings) KnownHostsPath() string {
	return filepath.Join(s.BaseDir, KnownHostsFileName)
}

func (s *Settings) AppLogPath() string {
	return filepath.Join(s.BaseDir, AppLogFileName)
}

// Cipher returns nil when no master key is configured.
func (s *Settings) Cipher() (*crypto.Cipher, error) {
	if s.MasterKey == "" {
		return nil, nil
	}
	c, err := crypto.NewCipher(s.MasterKey)
	if err != nil {
		return nil, apperr.New(apperr.CryptoError, "invalid master key", err)
	}
	return c, nil
}

// SessionOptions maps the settings onto per-session options.
func (s *Settings) SessionOptions(logger zerolog.Logger) ssh.Options {
	return ssh.Options{
		TermType:     s.TermType,
		Width:        s.TermWidth,
		Height:       s.TermHeight,
		PollInterval: s.PollInterval,
		DialTimeout:  s.DialTimeout,
		KeepAlive:    s.KeepAlive,
		LogsDir:      s.LogsDir,
		Logger:       logger,
	}
}

// Dialer builds the SSH dialer for these settings.
func (s *Settings) Dialer(logger zerolog.Logger) *ssh.SSHDialer {
	return &ssh.SSHDialer{
		Timeout:        s.DialTimeout,
		KnownHostsPath: s.KnownHostsPath(),
		StrictHostKeys: s.StrictHostKeys,
		Logger:         logger,
	}
}
