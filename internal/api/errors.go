package api

import (
	"errors"
	"fmt"
)

// Error classes. Every error returned by Client matches exactly one of
// ErrAuthRejected or ErrRequestFailed under errors.Is. Workflow packages
// wrap ErrValidationRejected for input they refuse before calling Client.
var (
	ErrAuthRejected       = errors.New("authentication rejected")
	ErrRequestFailed      = errors.New("request failed")
	ErrValidationRejected = errors.New("validation rejected")
)

// RequestError describes a failed backend call.
//
// Error returns only the fixed, user-facing Message. The backend's own
// detail is kept in Detail for logging and never shown to the user.
type RequestError struct {
	Op      string
	Status  int // 0 when no response was received
	Message string
	Detail  string

	class error
	cause error
}

func (e *RequestError) Error() string {
	return e.Message
}

// Unwrap exposes both the error class and the underlying cause.
func (e *RequestError) Unwrap() []error {
	errs := []error{e.class}
	if e.cause != nil {
		errs = append(errs, e.cause)
	}
	return errs
}

// IsAuthRejected reports whether err came from a 401 response.
func IsAuthRejected(err error) bool {
	return errors.Is(err, ErrAuthRejected)
}

// ValidationError is returned by workflows for input rejected before any
// request is made. Message is shown inline to the user.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidationRejected
}

// NewValidationError returns a ValidationError with the given message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// UserMessage returns the text to show for err: the fixed message of a
// RequestError or ValidationError, otherwise fallback.
func UserMessage(err error, fallback string) string {
	var re *RequestError
	if errors.As(err, &re) && re.Message != "" {
		return re.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return fallback
}
