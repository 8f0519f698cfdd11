// Package domainerrors provides coded errors shared across service boundaries.
// Services wrap infrastructure failures and raise domain violations through
// these codes; transports translate codes to their own status vocabulary.
package domainerrors

import (
	"errors"
	"net/http"
)

// Code identifies a class of failure. Codes are stable API: they appear in
// HTTP error envelopes and in audit trails, so renaming one is a breaking
// change.
type Code string

// Ambient codes shared by every module.
const (
	CodeBadRequest         Code = "bad_request"
	CodeValidation         Code = "validation_error"
	CodeInvalidInput       Code = "invalid_input"
	CodeUnauthorized       Code = "unauthorized"
	CodeForbidden          Code = "forbidden"
	CodeNotFound           Code = "not_found"
	CodeConflict           Code = "conflict"
	CodeTimeout            Code = "timeout"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal_error"
)

// Credential ledger codes.
const (
	CodeInvalidFrom     Code = "invalid_from"
	CodeZeroAccount     Code = "zero_account"
	CodeNotMinted       Code = "not_minted"
	CodeUnsafeRecipient Code = "unsafe_recipient"
	CodeNotEligible     Code = "not_eligible"
)

// Stake lock codes.
const (
	CodeLockActive       Code = "lock_active"
	CodeLockExpired      Code = "lock_expired"
	CodeLockNotExpired   Code = "lock_not_expired"
	CodeNoActiveLock     Code = "no_active_lock"
	CodeLockNotIncreased Code = "lock_not_increased"
	CodeHorizonExceeded  Code = "lock_horizon_exceeded"
)

// Error is a coded domain error. The message is safe to show to API clients
// unless the code maps to an internal failure.
type Error struct {
	Code    Code
	Message string
	cause   error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.cause.Error()
	}
	return string(e.Code) + ": " + e.Message
}

// Unwrap exposes the wrapped cause to errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.cause
}

// New creates a coded error with no underlying cause.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap attaches a code and message to an underlying error. A nil err yields
// nil so call sites can wrap unconditionally.
func Wrap(err error, code Code, message string) error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, cause: err}
}

// HasCode reports whether err or anything it wraps carries the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	for errors.As(err, &de) {
		if de.Code == code {
			return true
		}
		err = de.cause
		if err == nil {
			return false
		}
	}
	return false
}

// Is is a readability alias for HasCode, matching assertion call sites.
func Is(err error, code Code) bool {
	return HasCode(err, code)
}

// CodeOf extracts the outermost code, or CodeInternal for uncoded errors.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// MessageOf extracts the outermost coded message, or "" for uncoded errors.
func MessageOf(err error) string {
	var de *Error
	if errors.As(err, &de) {
		return de.Message
	}
	return ""
}

// ToHTTPStatus maps a code to its HTTP response status. Unknown and uncoded
// errors map to 500.
func ToHTTPStatus(err error) int {
	switch CodeOf(err) {
	case CodeBadRequest, CodeValidation, CodeInvalidInput,
		CodeZeroAccount, CodeLockNotIncreased, CodeHorizonExceeded:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden, CodeNotEligible:
		return http.StatusForbidden
	case CodeNotFound, CodeNotMinted, CodeNoActiveLock:
		return http.StatusNotFound
	case CodeConflict, CodeInvalidFrom, CodeLockActive,
		CodeLockExpired, CodeLockNotExpired:
		return http.StatusConflict
	case CodeUnsafeRecipient:
		return http.StatusUnprocessableEntity
	case CodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
