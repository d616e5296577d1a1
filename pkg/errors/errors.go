package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Custom error types for better error handling
var (
	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid username or password")
	ErrMissingToken       = errors.New("authentication required")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")

	// Authorization errors
	ErrForbidden = errors.New("forbidden")

	// Validation errors
	ErrInvalidInput      = errors.New("invalid input")
	ErrUserAlreadyExists = errors.New("username already exists")

	// Lookup errors
	ErrUserNotFound   = errors.New("user not found")
	ErrRecordNotFound = errors.New("record not found")

	// Rate limiting errors
	ErrRateLimitExceeded = errors.New("too many requests, please try again later")

	// Encryption errors
	ErrEncryptionFailed = errors.New("encryption failed")
	ErrDecryptionFailed = errors.New("decryption failed")

	// Backup errors
	ErrBackupFailed = errors.New("backup operation failed")
)

// AppError wraps errors with additional context
type AppError struct {
	Err     error
	Message string
	Code    int
}

func (e *AppError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Err.Error()
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new application error
func NewAppError(err error, message string, code int) *AppError {
	return &AppError{
		Err:     err,
		Message: message,
		Code:    code,
	}
}

// NewValidationError reports user-correctable input with a readable reason.
func NewValidationError(message string) *AppError {
	return NewAppError(ErrInvalidInput, message, http.StatusBadRequest)
}

// NotFound reports a missing resource of the given kind, e.g. "post".
func NotFound(resource string) *AppError {
	return NewAppError(ErrRecordNotFound, resource+" not found", http.StatusNotFound)
}

// Forbidden reports an authenticated caller acting on something it does not own.
func Forbidden(message string) *AppError {
	return NewAppError(ErrForbidden, message, http.StatusForbidden)
}

// StatusCode maps an error to its HTTP status. Unknown errors are internal.
func StatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Code != 0 {
		return appErr.Code
	}

	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrUserAlreadyExists):
		return http.StatusBadRequest
	case errors.Is(err, ErrMissingToken), errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired), errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrRecordNotFound), errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimitExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// PublicMessage returns the text that is safe to show a client.
// Internal failures never leak their cause.
func PublicMessage(err error) string {
	if StatusCode(err) == http.StatusInternalServerError {
		return "internal server error"
	}

	var appErr *AppError
	if errors.As(err, &appErr) && appErr.Message != "" {
		return appErr.Message
	}

	switch {
	case errors.Is(err, ErrInvalidToken), errors.Is(err, ErrTokenExpired):
		return "invalid or expired token"
	case errors.Is(err, ErrUserNotFound), errors.Is(err, ErrRecordNotFound):
		return "not found"
	}

	// Sentinels carry their own client-facing text.
	for e := err; e != nil; e = errors.Unwrap(e) {
		if errors.Unwrap(e) == nil {
			return e.Error()
		}
	}
	return err.Error()
}

// Is and As re-export the standard helpers so callers need a single import.
func Is(err, target error) bool { return errors.Is(err, target) }

func As(err error, target any) bool { return errors.As(err, target) }
