package apiclient

import (
	"errors"
	"fmt"
)

// Boundary error taxonomy. Auth failures force a logout upstream; conflicts
// are retryable (duplicate thread creation races surface as ErrConflict once
// the store enforces participant-set uniqueness); validation errors never
// leave the process.
var (
	ErrAuth       = errors.New("authentication rejected")
	ErrNotFound   = errors.New("resource not found")
	ErrConflict   = errors.New("resource conflict")
	ErrValidation = errors.New("invalid request")
)

// StatusError carries the HTTP detail behind one of the sentinel errors.
type StatusError struct {
	Status  int
	Message string
	kind    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: %s (status %d)", e.Message, e.Status)
}

func (e *StatusError) Unwrap() error { return e.kind }

func statusError(status int, message string) error {
	kindFor := func() error {
		switch status {
		case 400:
			return ErrValidation
		case 401, 403:
			return ErrAuth
		case 404:
			return ErrNotFound
		case 409:
			return ErrConflict
		}
		return nil
	}
	if message == "" {
		message = "request failed"
	}
	return &StatusError{Status: status, Message: message, kind: kindFor()}
}
