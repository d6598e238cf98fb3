package backend

import (
	"errors"
	"net/http"
)

// Error codes shared by every backend implementation.
const (
	CodeInvalidCredentials = "invalid_credentials"
	CodeUserExists         = "user_already_exists"
	CodeWeakPassword       = "weak_password"
	CodeValidation         = "validation_failed"
	CodeSessionMissing     = "session_not_found"
	CodeResetInvalid       = "reset_token_invalid"
	CodeOAuthProvider      = "oauth_provider_not_supported"
	CodeRowLevelSecurity   = "42501"
	CodeCheckViolation     = "23514"
	CodeInternal           = "internal_error"
)

// Error is a failure reported by the BaaS. Error() returns Message
// verbatim so that it can be shown to the user as is.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// Is matches another *Error with the same non-empty code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code != "" && t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrInvalidCredentials = &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeInvalidCredentials,
		Message: "Invalid login credentials",
	}
	ErrUserExists = &Error{
		Status:  http.StatusUnprocessableEntity,
		Code:    CodeUserExists,
		Message: "User already registered",
	}
	ErrSessionMissing = &Error{
		Status:  http.StatusUnauthorized,
		Code:    CodeSessionMissing,
		Message: "Auth session missing!",
	}
	ErrResetInvalid = &Error{
		Status:  http.StatusBadRequest,
		Code:    CodeResetInvalid,
		Message: "Password reset token is invalid or has expired",
	}
	ErrRowLevelSecurity = &Error{
		Status:  http.StatusForbidden,
		Code:    CodeRowLevelSecurity,
		Message: `new row violates row-level security policy for table "todos"`,
	}
)

// Errorf builds an *Error with the given status, code and message.
func Errorf(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

// AsError returns err as an *Error, wrapping anything else as an internal
// failure that keeps err's message.
func AsError(err error) *Error {
	var be *Error
	if errors.As(err, &be) {
		return be
	}
	return &Error{
		Status:  http.StatusInternalServerError,
		Code:    CodeInternal,
		Message: err.Error(),
	}
}
