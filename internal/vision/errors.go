package vision

import (
	"errors"
	"fmt"
)

// Kind classifies a vision backend failure.
type Kind int

const (
	// KindTimeout means no response arrived within the request timeout.
	KindTimeout Kind = iota
	// KindServerError covers unreachable servers and non-2xx responses.
	KindServerError
	// KindMalformedResponse means the body could not be used.
	KindMalformedResponse
)

func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindServerError:
		return "server_error"
	case KindMalformedResponse:
		return "malformed_response"
	default:
		return "unknown"
	}
}

// Error is returned by Client for every backend failure.
type Error struct {
	Kind       Kind
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("vision %s (status %d): %v", e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("vision %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transient reports whether the same request may succeed later.
func (e *Error) Transient() bool {
	return e.Kind == KindTimeout || e.Kind == KindServerError
}

// IsTransient reports whether err is a transient vision error.
func IsTransient(err error) bool {
	var verr *Error
	return errors.As(err, &verr) && verr.Transient()
}
