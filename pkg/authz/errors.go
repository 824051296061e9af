package authz

import (
	"errors"
	"fmt"
	"net/http"
)

// Authorization error codes.
const (
	ErrCodeForbidden     = "authz.forbidden"      // Policy denied access or tenant mismatch
	ErrCodeUnknownAction = "authz.unknown_action" // Action not in registry
	ErrCodePolicyError   = "authz.policy_error"   // Policy evaluation error
)

// httpStatusMap maps error codes to HTTP status codes.
var httpStatusMap = map[string]int{
	ErrCodeForbidden:     http.StatusForbidden,
	ErrCodeUnknownAction: http.StatusBadRequest,
	ErrCodePolicyError:   http.StatusInternalServerError,
}

// Error represents an authorization failure with a structured code.
// The code is for internal logging and audit; transport layers must collapse
// all authorization failures to a uniform unauthorized response.
type Error struct {
	Code    string // One of the ErrCode* constants
	Message string // Human-readable error description
	Status  int    // HTTP status code
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// HTTPStatus returns the appropriate HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	return e.Status
}

func newError(code, message string) *Error {
	return &Error{
		Code:    code,
		Message: message,
		Status:  httpStatusMap[code],
	}
}

// ErrForbidden creates an error for denied access.
func ErrForbidden(reason string) *Error {
	return newError(ErrCodeForbidden, reason)
}

// ErrUnknownAction creates an error for unknown actions (fail-closed).
func ErrUnknownAction(action string) *Error {
	return newError(ErrCodeUnknownAction, fmt.Sprintf("unknown action %q", action))
}

// ErrPolicyError creates an error for policy evaluation failures.
func ErrPolicyError(detail string) *Error {
	return newError(ErrCodePolicyError, fmt.Sprintf("policy evaluation error: %s", detail))
}

// ErrorCode extracts the authz error code from an error.
// Returns empty string if the error is not an authz Error.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var authzErr *Error
	if errors.As(err, &authzErr) {
		return authzErr.Code
	}
	return ""
}

// IsForbidden reports whether the error is an authorization denial.
func IsForbidden(err error) bool {
	return ErrorCode(err) == ErrCodeForbidden
}
