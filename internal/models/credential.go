// internal/models/credential.go

package models

import (
	"errors"

	"commandForge/internal/crypto"
)

// Sealed returns a copy whose password is encrypted with cipher.
// Already sealed and empty passwords are left untouched.
func (p ConnectionProfile) Sealed(cipher *crypto.Cipher) (ConnectionProfile, error) {
	if cipher == nil || p.Password == "" || crypto.IsSealed(p.Password) {
		return p, nil
	}
	sealed, err := cipher.Seal(p.Password)
	if err != nil {
		return p, err
	}
	p.Password = sealed
	return p, nil
}

// Opened returns a copy whose password is decrypted with cipher.
func (p ConnectionProfile) Opened(cipher *crypto.Cipher) (ConnectionProfile, error) {
	if !crypto.IsSealed(p.Password) {
		return p, nil
	}
	if cipher == nil {
		return p, ErrMasterKeyRequired
	}
	plain, err := cipher.Open(p.Password)
	if err != nil {
		return p, err
	}
	p.Password = plain
	return p, nil
}

// ErrMasterKeyRequired is returned when a sealed password is found but no
// master key was configured.
var ErrMasterKeyRequired = errors.New("sealed password found but no master key is configured")
