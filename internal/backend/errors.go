package backend

import (
	"errors"
	"fmt"

	"github.com/jonathan/job-agent/internal/classify"
)

// AuthError indicates a missing, expired or rejected credential
type AuthError struct {
	Message string
	Cause   error
}

func (e *AuthError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("authentication required: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("authentication required: %s", e.Message)
}

func (e *AuthError) Unwrap() error {
	return e.Cause
}

// ValidationError indicates run parameters the backend (or local validation) rejected
type ValidationError struct {
	Field   string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
	}
	return fmt.Sprintf("validation error: %s", e.Message)
}

func (e *ValidationError) Unwrap() error {
	return e.Cause
}

// NotFoundError indicates an unknown application identifier
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// ServerError indicates any other non-success response
type ServerError struct {
	StatusCode int
	Message    string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("backend error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("backend error (status %d)", e.StatusCode)
}

// TransportError indicates the request or stream failed below HTTP
type TransportError struct {
	Op    string
	Cause error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: transport failure: %v", e.Op, e.Cause)
}

func (e *TransportError) Unwrap() error {
	return e.Cause
}

// IsAuth reports whether err is or wraps an AuthError
func IsAuth(err error) bool {
	var target *AuthError
	return errors.As(err, &target)
}

// IsValidation reports whether err is or wraps a ValidationError
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsTransport reports whether err is or wraps a TransportError
func IsTransport(err error) bool {
	var target *TransportError
	return errors.As(err, &target)
}

// UserMessage returns the text shown in the timeline error entry for err
func UserMessage(err error) string {
	switch {
	case IsAuth(err):
		return classify.PhraseAuthRequired
	case IsValidation(err):
		return classify.PhraseInvalidInput
	case IsTransport(err):
		return classify.PhraseConnectionLost
	default:
		return classify.PhraseStartFailed
	}
}
