package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNotRecording is returned by Ingest when no session is open
	ErrNotRecording = errors.New("not recording")

	// ErrAlreadyRecording is informational: StartSession was called while a
	// session is open and returned the open session's ID
	ErrAlreadyRecording = errors.New("already recording")

	// ErrSessionNotFound is returned when a session ID is unknown
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionOpen is returned when an operation requires a closed session
	ErrSessionOpen = errors.New("session is open")

	// ErrWriteFailed indicates that the session store could not be persisted
	ErrWriteFailed = errors.New("write failed")

	// ErrReadFailed indicates that the session store could not be loaded
	ErrReadFailed = errors.New("read failed")
)

// PersistenceError wraps a storage failure. In-memory state is not rolled
// back when it is returned.
type PersistenceError struct {
	Op  error // ErrWriteFailed or ErrReadFailed
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Err)
}

func (e *PersistenceError) Is(target error) bool {
	return target == e.Op
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}
