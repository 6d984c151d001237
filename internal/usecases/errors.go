// Package usecases contains the application's business logic
package usecases

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialMissing means the owner never linked a calendar or unlinked it
	ErrCredentialMissing = errors.New("calendar credential missing")
	// ErrCredentialExpired means the stored refresh token no longer works
	ErrCredentialExpired = errors.New("calendar credential expired")
	// ErrNoLocation means the owner has no location for weather lookups
	ErrNoLocation = errors.New("no location configured")
	// ErrInvalidState means an OAuth callback carried an unknown or expired state
	ErrInvalidState = errors.New("invalid or expired link state")
)

// CalendarAPIError wraps a failed call to the external calendar
type CalendarAPIError struct {
	Op      string
	PlantID int64
	Err     error
}

func (e *CalendarAPIError) Error() string {
	return fmt.Sprintf("calendar %s for plant %d: %v", e.Op, e.PlantID, e.Err)
}

func (e *CalendarAPIError) Unwrap() error {
	return e.Err
}

// isCredentialError reports whether err means calendar sync cannot run for the owner
func isCredentialError(err error) bool {
	return errors.Is(err, ErrCredentialMissing) || errors.Is(err, ErrCredentialExpired)
}
