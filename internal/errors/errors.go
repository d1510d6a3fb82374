// Package errors defines the coded errors that cross package boundaries
// and decide the HTTP status and JSON error envelope of a failed request.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode is the machine-readable kind of an AppError. It is also the
// "error" field of the JSON envelope.
type ErrorCode string

// Caller-side codes.
const (
	ErrCodeBadRequest ErrorCode = "bad_request"
	// ErrCodeValidation is a well-formed request the predictor refused, e.g. a negative balance.
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeNotFound   ErrorCode = "not_found"
	// ErrCodeNotReady is a result asked for while the job is still pending.
	ErrCodeNotReady ErrorCode = "not_ready"
	// ErrCodeJobFailed is a result asked for on a failed job; the message is the stored reason.
	ErrCodeJobFailed ErrorCode = "job_failed"
	ErrCodeConflict  ErrorCode = "conflict"
	ErrCodeCanceled  ErrorCode = "canceled"
)

// Server-side codes.
const (
	ErrCodeUnavailable ErrorCode = "unavailable"
	ErrCodeTimeout     ErrorCode = "timeout"
	ErrCodeInternal    ErrorCode = "internal"
)

// AppError carries a code, a client-safe message and optionally the
// offending request field and the underlying cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Field   string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause == nil {
		return e.Message
	}
	return e.Message + ": " + e.Cause.Error()
}

func (e *AppError) Unwrap() error { return e.Cause }

// New returns an AppError with no cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Newf is New with a formatted message.
func Newf(code ErrorCode, format string, args ...any) *AppError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap attaches code and message to err. A nil err stays nil.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

func BadRequest(message string) *AppError { return New(ErrCodeBadRequest, message) }

func BadRequestField(field, message string) *AppError {
	return &AppError{Code: ErrCodeBadRequest, Message: message, Field: field}
}

func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }
func NotReady(message string) *AppError { return New(ErrCodeNotReady, message) }

// JobFailed reports a failed job; reason is the message stored on the job.
func JobFailed(reason string) *AppError { return New(ErrCodeJobFailed, reason) }

func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

// As returns the outermost AppError in err's chain.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HasCode reports whether err's outermost AppError carries code.
func HasCode(err error, code ErrorCode) bool {
	appErr, ok := As(err)
	return ok && appErr.Code == code
}

func IsBadRequest(err error) bool { return HasCode(err, ErrCodeBadRequest) }
func IsValidation(err error) bool { return HasCode(err, ErrCodeValidation) }
func IsNotFound(err error) bool   { return HasCode(err, ErrCodeNotFound) }
func IsNotReady(err error) bool   { return HasCode(err, ErrCodeNotReady) }
func IsJobFailed(err error) bool  { return HasCode(err, ErrCodeJobFailed) }
func IsConflict(err error) bool   { return HasCode(err, ErrCodeConflict) }
func IsInternal(err error) bool   { return HasCode(err, ErrCodeInternal) }
func IsTimeout(err error) bool    { return HasCode(err, ErrCodeTimeout) }

// GetCode returns the code of err's AppError, or "" when there is none.
func GetCode(err error) ErrorCode {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return ""
}

// GetField returns the request field named by err's AppError, if any.
func GetField(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Field
	}
	return ""
}

// GetMessage returns the client-safe message: the AppError message without
// its cause, or err.Error() for other errors.
func GetMessage(err error) string {
	if err == nil {
		return ""
	}
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return err.Error()
}
