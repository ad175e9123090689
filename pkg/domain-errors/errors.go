// Package domainerrors provides coded errors for business-rule violations.
//
// Stores report infrastructure facts through pkg/platform/sentinel; services
// translate those into coded errors here so transport layers can map a code
// to an HTTP status without inspecting error strings. A coded error can carry
// the entity it refers to and the state that entity was observed in, which is
// part of the API contract for lifecycle operations.
package domainerrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code identifies a class of domain error.
type Code string

const (
	CodeNotFound           Code = "not_found"
	CodeInvalidState       Code = "invalid_state"
	CodeDraftConflict      Code = "draft_conflict"
	CodeForbidden          Code = "forbidden"
	CodeAlreadyOnboarded   Code = "already_onboarded"
	CodeExpired            Code = "expired"
	CodeConflict           Code = "conflict"
	CodeValidation         Code = "validation"
	CodeBadRequest         Code = "bad_request"
	CodeUnauthorized       Code = "unauthorized"
	CodeInvariantViolation Code = "invariant_violation"
	CodeInternal           Code = "internal"
)

// Error is a coded domain error. EntityID and State are optional context
// identifying what the operation was rejected against.
type Error struct {
	Code     Code
	Message  string
	EntityID string
	State    string
	cause    error
}

func (e *Error) Error() string {
	if e.EntityID != "" && e.State != "" {
		return fmt.Sprintf("%s: %s (entity %s, state %s)", e.Code, e.Message, e.EntityID, e.State)
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

// Wrap attaches a code and message to an underlying error.
func Wrap(err error, code Code, message string) *Error {
	return &Error{Code: code, Message: message, cause: err}
}

// WithEntity returns a copy of the error annotated with the entity it
// concerns and the state that entity was in when the operation was rejected.
func (e *Error) WithEntity(entityID, state string) *Error {
	c := *e
	c.EntityID = entityID
	c.State = state
	return &c
}

// HasCode reports whether err is a coded error with the given code.
func HasCode(err error, code Code) bool {
	var de *Error
	if errors.As(err, &de) {
		return de.Code == code
	}
	return false
}

// Is is an alias of HasCode kept for call-site readability.
func Is(err error, code Code) bool { return HasCode(err, code) }

// CodeOf extracts the code from err, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var de *Error
	if errors.As(err, &de) {
		return de.Code
	}
	return CodeInternal
}

// ToHTTPStatus maps a domain error code to an HTTP status.
func ToHTTPStatus(code Code) int {
	switch code {
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInvalidState, CodeDraftConflict, CodeAlreadyOnboarded, CodeConflict:
		return http.StatusConflict
	case CodeForbidden:
		return http.StatusForbidden
	case CodeExpired:
		return http.StatusGone
	case CodeValidation, CodeBadRequest, CodeInvariantViolation:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
