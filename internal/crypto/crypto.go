// internal/crypto/crypto.go
//
// Package crypto seals saved connection passwords with AES-256-GCM when a
// master key is configured. The AES key is derived from the master key with
// scrypt using a random per-value salt, so two profiles sharing a password
// never produce the same stored text.

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

const (
	// SealedPrefix marks a stored value as sealed. Values without it are
	// treated as plaintext so existing stores keep loading.
	SealedPrefix = "enc:v1:"

	keySize  = 32 // AES-256
	saltSize = 16

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

// Cipher seals and opens secrets with a key derived from a master passphrase.
type Cipher struct {
	passphrase []byte
}

// NewCipher returns a Cipher for the given master passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("master key cannot be empty")
	}
	return &Cipher{passphrase: []byte(passphrase)}, nil
}

// IsSealed reports whether value was produced by Seal.
func IsSealed(value string) bool {
	return strings.HasPrefix(value, SealedPrefix)
}

// Seal encrypts plaintext and returns SealedPrefix + hex(salt|nonce|ciphertext).
func (c *Cipher) Seal(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	aead, err := c.aead(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	combined := make([]byte, 0, saltSize+len(nonce)+len(plaintext)+aead.Overhead())
	combined = append(combined, salt...)
	combined = append(combined, nonce...)
	combined = aead.Seal(combined, nonce, []byte(plaintext), nil)

	return SealedPrefix + hex.EncodeToString(combined), nil
}

// Open reverses Seal. Plaintext values (no SealedPrefix) are returned as is.
func (c *Cipher) Open(value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}

	combined, err := hex.DecodeString(strings.TrimPrefix(value, SealedPrefix))
	if err != nil {
		return "", fmt.Errorf("failed to decode hex: %w", err)
	}
	if len(combined) < saltSize {
		return "", errors.New("sealed value too short")
	}

	aead, err := c.aead(combined[:saltSize])
	if err != nil {
		return "", err
	}

	rest := combined[saltSize:]
	if len(rest) < aead.NonceSize() {
		return "", errors.New("sealed value too short")
	}
	nonce, ciphertext := rest[:aead.NonceSize()], rest[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (c *Cipher) aead(salt []byte) (cipher.AEAD, error) {
	key, err := scrypt.Key(c.passphrase, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return aead, nil
}
