package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals a missing resource.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists signals a duplicate resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrInvalidSession signals a malformed session identifier.
	ErrInvalidSession = errors.New("invalid session id")
	// ErrInvalidResult signals a result that violates the pass/fail contract.
	ErrInvalidResult = errors.New("invalid result")
	// ErrUnregisteredProbe signals an active definition with no registered probe.
	ErrUnregisteredProbe = errors.New("unregistered probe")
	// ErrDiagnosisUnavailable signals that the AI diagnostic collaborator is not configured or down.
	ErrDiagnosisUnavailable = errors.New("diagnosis unavailable")
)

// DuplicateResultError reports a second result for the same (session, probe) pair.
type DuplicateResultError struct {
	SessionID string
	ProbeID   string
}

func (e *DuplicateResultError) Error() string {
	return fmt.Sprintf("%s: result for probe %s in session %s", ErrAlreadyExists.Error(), e.ProbeID, e.SessionID)
}

func (e *DuplicateResultError) Unwrap() error { return ErrAlreadyExists }

// NewDuplicateResult creates a duplicate result error.
func NewDuplicateResult(sessionID, probeID string) error {
	return &DuplicateResultError{SessionID: sessionID, ProbeID: probeID}
}
