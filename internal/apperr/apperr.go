// internal/apperr/apperr.go

package apperr

import (
	"errors"
	"fmt"
)

type AppError struct {
	Type    ErrorType
	Message string
	Err     error
}

type ErrorType int

const (
	ConfigError ErrorType = iota
	ConnectionError
	CryptoError
	ValidationError
	// ReadError means the channel reported an error while the reader waited on it.
	ReadError
	// RemoteClosed means the channel returned a zero-length read.
	RemoteClosed
	// SinkError means a transcript or display sink could not be written.
	// It never affects the live session.
	SinkError
	NotFound
)

func (t ErrorType) String() string {
	switch t {
	case ConfigError:
		return "config error"
	case ConnectionError:
		return "connection error"
	case CryptoError:
		return "crypto error"
	case ValidationError:
		return "validation error"
	case ReadError:
		return "read error"
	case RemoteClosed:
		return "remote closed"
	case SinkError:
		return "sink error"
	case NotFound:
		return "not found"
	}
	return fmt.Sprintf("error type %d", int(t))
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(errType ErrorType, message string, err error) *AppError {
	return &AppError{
		Type:    errType,
		Message: message,
		Err:     err,
	}
}

// IsType reports whether any AppError in err's chain has the given type.
func IsType(err error, errType ErrorType) bool {
	for err != nil {
		var appErr *AppError
		if !errors.As(err, &appErr) {
			return false
		}
		if appErr.Type == errType {
			return true
		}
		err = appErr.Err
	}
	return false
}
