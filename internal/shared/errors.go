package shared

import (
	"errors"
	"fmt"
)

// ErrNotFound indicates resource not found.
var ErrNotFound = errors.New("not found")

// Kind classifies failures into the closed set understood by the HTTP layer.
type Kind string

const (
	KindValidation     Kind = "ValidationError"
	KindAuthentication Kind = "AuthenticationError"
	KindAuthorization  Kind = "AuthorizationError"
	KindNotFound       Kind = "NotFoundError"
	KindConflict       Kind = "ConflictError"
	KindInternal       Kind = "InternalError"
)

// AppError carries a user-facing message together with its Kind.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports malformed input (400).
func NewValidationError(message string) *AppError {
	return &AppError{Kind: KindValidation, Message: message}
}

// NewAuthenticationError reports missing or bad credentials (401).
func NewAuthenticationError(message string) *AppError {
	if message == "" {
		message = "Authentication required"
	}
	return &AppError{Kind: KindAuthentication, Message: message}
}

// NewAuthorizationError reports an authenticated caller lacking access (403).
func NewAuthorizationError(message string) *AppError {
	if message == "" {
		message = "Access denied"
	}
	return &AppError{Kind: KindAuthorization, Message: message}
}

// NewNotFoundError reports a missing resource (404).
func NewNotFoundError(message string) *AppError {
	if message == "" {
		message = "Resource not found"
	}
	return &AppError{Kind: KindNotFound, Message: message, Err: ErrNotFound}
}

// NewConflictError reports a uniqueness collision (409).
func NewConflictError(message string) *AppError {
	if message == "" {
		message = "Resource conflict"
	}
	return &AppError{Kind: KindConflict, Message: message}
}

// KindOf returns the Kind of err, or KindInternal when err is unclassified.
func KindOf(err error) Kind {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// UserSafeMessage returns a message suitable for API clients.
func UserSafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "Internal server error"
}
