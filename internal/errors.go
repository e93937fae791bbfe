package internal

import (
	"errors"
	"fmt"
)

type ErrorKind string

const (
	KindInvalidState        ErrorKind = "invalid_state"
	KindInvalidInput        ErrorKind = "invalid_input"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindInsufficientPlayers ErrorKind = "insufficient_players"
	KindUpstreamFailure     ErrorKind = "upstream_failure"

	// KindRateLimited is a transport rejection; orchestrator operations never
	// return it.
	KindRateLimited ErrorKind = "rate_limited"
)

// Error is the structured failure every orchestrator operation returns.
type Error struct {
	Kind    ErrorKind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is matches any *Error of the same kind, so sentinels like ErrConflict work
// with errors.Is.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok && e != nil {
		return e.Kind == t.Kind
	}
	return false
}

var (
	ErrInvalidState        = &Error{Kind: KindInvalidState, Message: "invalid state"}
	ErrInvalidInput        = &Error{Kind: KindInvalidInput, Message: "invalid input"}
	ErrNotFound            = &Error{Kind: KindNotFound, Message: "not found"}
	ErrConflict            = &Error{Kind: KindConflict, Message: "conflict"}
	ErrInsufficientPlayers = &Error{Kind: KindInsufficientPlayers, Message: "insufficient players"}
	ErrUpstreamFailure     = &Error{Kind: KindUpstreamFailure, Message: "upstream failure"}
)

func NewError(kind ErrorKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func WrapError(kind ErrorKind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

func InvalidState(format string, args ...any) *Error {
	return NewError(KindInvalidState, format, args...)
}

func InvalidInput(format string, args ...any) *Error {
	return NewError(KindInvalidInput, format, args...)
}

func NotFound(format string, args ...any) *Error {
	return NewError(KindNotFound, format, args...)
}

func Conflict(format string, args ...any) *Error {
	return NewError(KindConflict, format, args...)
}

// Upstream wraps a collaborator failure. Errors that already carry a kind
// keep it.
func Upstream(cause error, format string, args ...any) error {
	var e *Error
	if errors.As(cause, &e) {
		return cause
	}
	return WrapError(KindUpstreamFailure, cause, format, args...)
}

// KindOf reports the kind of err, defaulting to upstream_failure for errors
// that never passed through this package.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUpstreamFailure
}
