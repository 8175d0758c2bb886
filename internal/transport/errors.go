package transport

import (
	"errors"
	"fmt"
)

// ConnectionError indicates the server could not be reached or the
// TLS/greeting exchange failed.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("mail server %s unreachable: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthError indicates that the server rejected the credential.
type AuthError struct {
	Username string
	Err      error
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("authentication failed for %s: %v", e.Username, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// FolderNotFoundError indicates that a SELECT named a folder the server
// does not have.
type FolderNotFoundError struct {
	Folder string
	Err    error
}

func (e *FolderNotFoundError) Error() string {
	return fmt.Sprintf("folder %q not found: %v", e.Folder, e.Err)
}

func (e *FolderNotFoundError) Unwrap() error { return e.Err }

// MoveFailedError indicates the server did not confirm relocating a message.
type MoveFailedError struct {
	UID         uint32
	Destination string
	Err         error
}

func (e *MoveFailedError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("moving UID %d to %q failed: %v", e.UID, e.Destination, e.Err)
	}
	return fmt.Sprintf(
		"moving UID %d to %q failed: server confirmed no relocation",
		e.UID, e.Destination,
	)
}

func (e *MoveFailedError) Unwrap() error { return e.Err }

// StateError is returned when a command is issued in a session state that
// does not allow it.
type StateError struct {
	Op    string
	State State
}

func (e *StateError) Error() string {
	return fmt.Sprintf("cannot %s in state %s", e.Op, e.State)
}

// IsConnectionError reports whether err (or any error in its chain) is a
// ConnectionError.
func IsConnectionError(err error) bool {
	var target *ConnectionError
	return errors.As(err, &target)
}

// IsAuthError reports whether err (or any error in its chain) is an AuthError.
func IsAuthError(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsFolderNotFound reports whether err (or any error in its chain) is a
// FolderNotFoundError.
func IsFolderNotFound(err error) bool {
	var target *FolderNotFoundError
	return errors.As(err, &target)
}

// IsMoveFailed reports whether err (or any error in its chain) is a
// MoveFailedError.
func IsMoveFailed(err error) bool {
	var target *MoveFailedError
	return errors.As(err, &target)
}
