// internal/config/config.go

package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"commandForge/internal/apperr"
	"commandForge/internal/crypto"
	"commandForge/internal/models"
)

const (
	DefaultStoreFileName = "connections.json"
	DefaultFilePerms     = 0600
)

// Manager is the saved-connection store: a JSON array of profiles kept in
// memory and rewritten wholesale after every change.
type Manager struct {
	mu       sync.RWMutex
	path     string
	cipher   *crypto.Cipher
	profiles []models.ConnectionProfile
}

// NewManager returns a store backed by path. Nothing is read until Load.
func NewManager(path string) *Manager {
	return &Manager{path: path}
}

func (m *Manager) Path() string {
	return m.path
}

// SetCipher enables sealing of stored passwords. It must be set before Load
// when the store already holds sealed values.
func (m *Manager) SetCipher(cipher *crypto.Cipher) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cipher = cipher
}

// Load reads the store from disk. A missing file yields an empty store
// and is created.
func (m *Manager) Load() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return apperr.New(apperr.ConfigError, "failed to create config directory", err)
	}

	data, err := os.ReadFile(m.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			m.mu.Lock()
			defer m.mu.Unlock()
			m.profiles = []models.ConnectionProfile{}
			return m.saveLocked()
		}
		return apperr.New(apperr.ConfigError, "failed to read connection store", err)
	}

	var stored []models.ConnectionProfile
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &stored); err != nil {
			return apperr.New(apperr.ConfigError, "failed to parse connection store", err)
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	profiles := make([]models.ConnectionProfile, 0, len(stored))
	for _, p := range stored {
		opened, err := p.Opened(m.cipher)
		if err != nil {
			return apperr.New(apperr.CryptoError, fmt.Sprintf("failed to open password for %s", p.Title()), err)
		}
		profiles = append(profiles, opened.WithDefaults())
	}
	m.profiles = profiles
	return nil
}

// Save writes every profile back to disk.
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveLocked()
}

func (m *Manager) saveLocked() error {
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return apperr.New(apperr.ConfigError, "failed to create config directory", err)
	}

	stored := make([]models.ConnectionProfile, 0, len(m.profiles))
	for _, p := range m.profiles {
		sealed, err := p.Sealed(m.cipher)
		if err != nil {
			return apperr.New(apperr.CryptoError, fmt.Sprintf("failed to seal password for %s", p.Title()), err)
		}
		stored = append(stored, sealed)
	}

	data, err := json.MarshalIndent(stored, "", "    ")
	if err != nil {
		return apperr.New(apperr.ConfigError, "failed to marshal connection store", err)
	}
	if err := os.WriteFile(m.path, data, DefaultFilePerms); err != nil {
		return apperr.New(apperr.ConfigError, "failed to write connection store", err)
	}
	return nil
}

// Profiles returns a copy of the saved profiles in display order.
func (m *Manager) Profiles() []models.ConnectionProfile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.ConnectionProfile(nil), m.profiles...)
}

func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.profiles)
}

// Add saves profile unless one with the same host, port and user exists.
// It reports whether the profile was added.
func (m *Manager) Add(profile models.ConnectionProfile) (bool, error) {
	profile = profile.WithDefaults()
	if err := profile.Validate(); err != nil {
		return false, apperr.New(apperr.ValidationError, "invalid connection", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	id := profile.Identity()
	for _, p := range m.profiles {
		if p.Identity() == id {
			return false, nil
		}
	}
	m.profiles = append(m.profiles, profile)
	if err := m.saveLocked(); err != nil {
		m.profiles = m.profiles[:len(m.profiles)-1]
		return false, err
	}
	return true, nil
}

// Update replaces the profile at index.
func (m *Manager) Update(index int, profile models.ConnectionProfile) error {
	profile = profile.WithDefaults()
	if err := profile.Validate(); err != nil {
		return apperr.New(apperr.ValidationError, "invalid connection", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIndexLocked(index); err != nil {
		return err
	}
	previous := m.profiles[index]
	m.profiles[index] = profile
	if err := m.saveLocked(); err != nil {
		m.profiles[index] = previous
		return err
	}
	return nil
}

// Delete removes the profile at index.
func (m *Manager) Delete(index int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIndexLocked(index); err != nil {
		return err
	}
	previous := append([]models.ConnectionProfile(nil), m.profiles...)
	m.profiles = append(m.profiles[:index], m.profiles[index+1:]...)
	if err := m.saveLocked(); err != nil {
		m.profiles = previous
		return err
	}
	return nil
}

// Move shifts the profile at index by delta positions (-1 up, +1 down).
// Moves past either end are clamped.
func (m *Manager) Move(index, delta int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIndexLocked(index); err != nil {
		return index, err
	}
	target := min(max(index+delta, 0), len(m.profiles)-1)
	if target == index {
		return index, nil
	}

	previous := append([]models.ConnectionProfile(nil), m.profiles...)
	p := m.profiles[index]
	m.profiles = append(m.profiles[:index], m.profiles[index+1:]...)
	m.profiles = append(m.profiles[:target], append([]models.ConnectionProfile{p}, m.profiles[target:]...)...)
	if err := m.saveLocked(); err != nil {
		m.profiles = previous
		return index, err
	}
	return target, nil
}

// Duplicate appends a copy of the profile at index named "<name> (copy)"
// and returns the new index. Copies are kept even though they share an
// identity with the original, so they can be edited afterwards.
func (m *Manager) Duplicate(index int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkIndexLocked(index); err != nil {
		return -1, err
	}
	p := m.profiles[index]
	p.Name = p.Name + " (copy)"
	m.profiles = append(m.profiles, p)
	if err := m.saveLocked(); err != nil {
		m.profiles = m.profiles[:len(m.profiles)-1]
		return -1, err
	}
	return len(m.profiles) - 1, nil
}

// Find looks a profile up by exact name, then by 1-based position.
func (m *Manager) Find(ref string) (models.ConnectionProfile, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i, p := range m.profiles {
		if p.Name != "" && p.Name == ref {
			return p, i, nil
		}
	}
	if n, err := strconv.Atoi(ref); err == nil && n >= 1 && n <= len(m.profiles) {
		return m.profiles[n-1], n - 1, nil
	}
	return models.ConnectionProfile{}, -1, apperr.New(apperr.NotFound, fmt.Sprintf("no saved connection %q", ref), nil)
}

func (m *Manager) checkIndexLocked(index int) error {
	if index < 0 || index >= len(m.profiles) {
		return apperr.New(apperr.ValidationError, fmt.Sprintf("invalid connection index %d", index), nil)
	}
	return nil
}
