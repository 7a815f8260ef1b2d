// Package server exposes agent sessions over HTTP: bootstrap, run start,
// expansion toggles, hand-off and a Server-Sent Events timeline feed.
package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/jonathan/job-agent/internal/backend"
	"github.com/jonathan/job-agent/internal/session"
)

// ErrSessionNotFound indicates an unknown or foreign session ID
type ErrSessionNotFound struct {
	SessionID string
}

func (e *ErrSessionNotFound) Error() string {
	return fmt.Sprintf("session not found: %s", e.SessionID)
}

// ErrEntryNotFound indicates a toggle for an entry the session does not hold
type ErrEntryNotFound struct {
	EntryID string
}

func (e *ErrEntryNotFound) Error() string {
	return fmt.Sprintf("entry not found: %s", e.EntryID)
}

// ErrValidation indicates request validation failure
type ErrValidation struct {
	Field   string
	Message string
}

func (e *ErrValidation) Error() string {
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for an error
func HTTPStatus(err error) int {
	var (
		sessionErr *ErrSessionNotFound
		entryErr   *ErrEntryNotFound
		validErr   *ErrValidation
		serverErr  *backend.ServerError
	)
	switch {
	case err == nil:
		return http.StatusInternalServerError
	case errors.As(err, &sessionErr), errors.As(err, &entryErr), backend.IsNotFound(err):
		return http.StatusNotFound
	case errors.As(err, &validErr), backend.IsValidation(err):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrRunInProgress):
		return http.StatusConflict
	case backend.IsAuth(err):
		return http.StatusUnauthorized
	case backend.IsTransport(err), errors.As(err, &serverErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
