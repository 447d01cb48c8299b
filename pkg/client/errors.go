package client

import (
	"errors"
	"fmt"

	"github.com/kailas-cloud/cvgen/internal/domain"
)

// Sentinel errors. Use errors.Is() to check.
var (
	ErrNotFound       = domain.ErrNotFound
	ErrInvalidSession = domain.ErrInvalidSession
	ErrUnauthorized   = errors.New("unauthorized")
)

// APIError is a non-2xx answer from the server.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("cvgen: %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// Unwrap maps the server's error code to a sentinel.
func (e *APIError) Unwrap() error {
	switch e.Code {
	case "not_found":
		return ErrNotFound
	case "invalid_session":
		return ErrInvalidSession
	case "unauthorized":
		return ErrUnauthorized
	default:
		return nil
	}
}
