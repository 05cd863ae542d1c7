package session

import (
	"errors"
	"fmt"
)

var (
	// ErrSessionCapacity is returned when the session limit is reached.
	ErrSessionCapacity = errors.New("session: capacity reached")

	// ErrSessionNotFound is returned for an unknown user id.
	ErrSessionNotFound = errors.New("session: not found")

	// ErrSessionExists is returned when opening a session twice for one user.
	ErrSessionExists = errors.New("session: already open")

	// ErrSessionClosed is returned when calling into a disconnected session.
	ErrSessionClosed = errors.New("session: closed")

	// ErrNotActive is returned for operations that need a calibrated session.
	ErrNotActive = errors.New("session: not calibrated")

	// ErrEmptyUserID is returned when opening a session without a user id.
	ErrEmptyUserID = errors.New("session: user id is required")
)

// CapacityError reports the limit that rejected a new session.
type CapacityError struct {
	Limit int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("session: capacity reached (limit %d)", e.Limit)
}

func (e *CapacityError) Unwrap() error {
	return ErrSessionCapacity
}

// IsCapacity reports whether err is a capacity rejection.
func IsCapacity(err error) bool {
	return errors.Is(err, ErrSessionCapacity)
}
