package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrConflict            = errors.New("concurrent modification conflict")
	ErrOperationFailed     = errors.New("storage operation failed")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrRequestNotRetryable = errors.New("request is not retryable")
	ErrRequestTerminal     = errors.New("request is in a terminal state")
)

// TransportError wraps a network-level failure (connect, timeout, broken
// pipe) talking to the remote ticketing system. It is retryable only via an
// explicit Retry on the owning request, never automatically.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RemoteRejection means the remote system received the call and refused it
// (validation, unknown record, permission). Recorded per ticket; it does not
// abort a batch.
type RemoteRejection struct {
	Code   int
	Reason string
}

func (e *RemoteRejection) Error() string {
	return fmt.Sprintf("remote rejected request (code %d): %s", e.Code, e.Reason)
}
