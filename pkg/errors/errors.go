package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents application-specific error codes
type ErrorCode string

const (
	// Ignorable vendor conditions
	ErrCodeRecipientNotRegistered ErrorCode = "RECIPIENT_NOT_REGISTERED"

	// Retryable delivery errors
	ErrCodeSendFailed        ErrorCode = "SEND_FAILED"
	ErrCodeConnectionDropped ErrorCode = "CONNECTION_DROPPED"

	// Fatal session errors
	ErrCodeMicrophoneDenied  ErrorCode = "MICROPHONE_DENIED"
	ErrCodeJoinFailed        ErrorCode = "JOIN_FAILED"
	ErrCodeTokenExpired      ErrorCode = "TOKEN_EXPIRED"
	ErrCodeIdentityCollision ErrorCode = "IDENTITY_COLLISION"

	// Fatal non-blocking errors
	ErrCodeUploadFailed  ErrorCode = "UPLOAD_FAILED"
	ErrCodePersistFailed ErrorCode = "PERSIST_FAILED"

	// Degraded capture
	ErrCodeCameraUnavailable ErrorCode = "CAMERA_UNAVAILABLE"

	// Generic
	ErrCodeInvalidState ErrorCode = "INVALID_STATE"
	ErrCodeBackend      ErrorCode = "BACKEND_ERROR"
	ErrCodeInternal     ErrorCode = "INTERNAL_ERROR"
)

// Severity classifies how an error must be handled at the boundary where it
// occurs: silently ignored, silently retried, surfaced and session-fatal, or
// surfaced without rolling back optimistic state.
type Severity int

const (
	SeverityIgnorable Severity = iota
	SeverityRetryable
	SeverityFatalSession
	SeverityFatalNonBlocking
)

// AppError represents a structured application error with code, severity, and
// an optional wrapped cause
type AppError struct {
	Code     ErrorCode `json:"code"`
	Message  string    `json:"message"`
	Severity Severity  `json:"-"`
	Err      error     `json:"-"`
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// New creates a new AppError
func New(code ErrorCode, severity Severity, message string) *AppError {
	return &AppError{Code: code, Message: message, Severity: severity}
}

// Wrap wraps an existing error, preserving the original as the cause
func Wrap(code ErrorCode, severity Severity, message string, err error) *AppError {
	return &AppError{Code: code, Message: message, Severity: severity, Err: err}
}

// Ignorable vendor conditions

func RecipientNotRegisteredError() *AppError {
	return New(ErrCodeRecipientNotRegistered, SeverityIgnorable, "recipient is not registered with the chat vendor")
}

// Retryable errors

func SendFailedError(err error) *AppError {
	return Wrap(ErrCodeSendFailed, SeverityRetryable, "real-time send failed", err)
}

func ConnectionDroppedError(err error) *AppError {
	return Wrap(ErrCodeConnectionDropped, SeverityRetryable, "chat connection dropped", err)
}

// Fatal session errors

func MicrophoneDeniedError(err error) *AppError {
	return Wrap(ErrCodeMicrophoneDenied, SeverityFatalSession, "microphone access denied", err)
}

func JoinFailedError(err error) *AppError {
	return Wrap(ErrCodeJoinFailed, SeverityFatalSession, "failed to join media session", err)
}

func TokenExpiredError() *AppError {
	return New(ErrCodeTokenExpired, SeverityFatalSession, "vendor token expired, manual reload required")
}

func IdentityCollisionError(uid uint32) *AppError {
	return New(ErrCodeIdentityCollision, SeverityFatalSession, fmt.Sprintf("numeric identity %d already in use", uid))
}

// Fatal non-blocking errors

func UploadFailedError(err error) *AppError {
	return Wrap(ErrCodeUploadFailed, SeverityFatalNonBlocking, "media upload failed", err)
}

func PersistFailedError(err error) *AppError {
	return Wrap(ErrCodePersistFailed, SeverityFatalNonBlocking, "backend persistence failed", err)
}

// Degraded capture

func CameraUnavailableError(err error) *AppError {
	return Wrap(ErrCodeCameraUnavailable, SeverityFatalNonBlocking, "camera unavailable, continuing audio-only", err)
}

func InvalidStateError(message string) *AppError {
	return New(ErrCodeInvalidState, SeverityFatalSession, message)
}

func BackendError(err error) *AppError {
	return Wrap(ErrCodeBackend, SeverityRetryable, "backend request failed", err)
}

// HasCode reports whether err carries the given application error code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code == code
	}
	return false
}

// SeverityOf returns the severity of err, defaulting unknown errors to
// fatal-session so nothing propagates unhandled
func SeverityOf(err error) Severity {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Severity
	}
	return SeverityFatalSession
}

// GetAppError extracts an AppError from err, wrapping unknown errors as internal
func GetAppError(err error) *AppError {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return Wrap(ErrCodeInternal, SeverityFatalSession, "internal error", err)
}
