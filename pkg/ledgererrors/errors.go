// Package ledgererrors carries coded domain errors across layer boundaries.
// Stores return sentinel errors (pkg/sentinel); services wrap or translate
// them into coded errors here so callers can drive retry decisions off the
// code alone.
package ledgererrors

import (
	"errors"
	"fmt"
)

// Code identifies the kind of failure. Every rejected operation surfaces
// exactly one code, never a generic failure, so downstream retry logic can
// distinguish "re-observe and retry" from "this will never succeed" from
// "try a different register".
type Code string

const (
	// CodeRegisterUnavailable: an input register was not found or is not Active.
	CodeRegisterUnavailable Code = "register_unavailable"
	// CodeRegisterAlreadyConsumed: a concurrent operation consumed the register first.
	CodeRegisterAlreadyConsumed Code = "register_already_consumed"
	// CodeRegisterLocked: the register is reserved by an in-flight operation.
	CodeRegisterLocked Code = "register_locked"
	// CodeAuthorizationFailed: the authorization collaborator rejected the caller.
	CodeAuthorizationFailed Code = "authorization_failed"
	// CodePreconditionInvalidated: the ledger time map advanced past the observed
	// one and re-checked preconditions no longer hold (reorg/staleness defense).
	CodePreconditionInvalidated Code = "precondition_invalidated"
	// CodeConservationViolation: per-class signed input/output sum is nonzero.
	CodeConservationViolation Code = "conservation_violation"
	// CodeEpochTooRecent: garbage collection requested inside the prune window.
	CodeEpochTooRecent Code = "epoch_too_recent"
	// CodeArchiveFailure: archive write or integrity verification failed during GC.
	CodeArchiveFailure Code = "archive_failure"
	// CodeInvalidTransition: register state-machine violation; engine bug, fatal.
	CodeInvalidTransition Code = "invalid_transition"

	CodeBadRequest Code = "bad_request"
	CodeNotFound   Code = "not_found"
	CodeTimeout    Code = "timeout"
	CodeInternal   Code = "internal"
)

// Error is a coded error with an optional wrapped cause.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// New creates a coded error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a coded error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a code and message to an underlying cause.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err (or anything it wraps) carries the given code.
func HasCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// CodeOf extracts the code from err, defaulting to CodeInternal for uncoded
// errors so transport layers never leak raw causes.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeInternal
}

// ConservationError reports a nonzero per-class delta. It carries the deltas
// so callers (and proofs) can see exactly which class leaked.
type ConservationError struct {
	Deltas map[string]int64
}

func (e *ConservationError) Error() string {
	return fmt.Sprintf("%s: nonzero resource delta %v", CodeConservationViolation, e.Deltas)
}

// NewConservation wraps nonzero per-class deltas in a coded error.
func NewConservation(deltas map[string]int64) *Error {
	return &Error{
		Code:    CodeConservationViolation,
		Message: "resource delta must be zero for conserving operations",
		cause:   &ConservationError{Deltas: deltas},
	}
}

// DeltasOf extracts the per-class deltas from a conservation error, if present.
func DeltasOf(err error) (map[string]int64, bool) {
	var c *ConservationError
	if errors.As(err, &c) {
		return c.Deltas, true
	}
	return nil, false
}

// Retryable reports whether the caller can reasonably retry after
// re-observing state. Terminal codes (authorization, conservation,
// invalid transition) always return false.
func Retryable(err error) bool {
	switch CodeOf(err) {
	case CodeRegisterLocked, CodePreconditionInvalidated, CodeTimeout, CodeEpochTooRecent, CodeArchiveFailure:
		return true
	default:
		return false
	}
}
