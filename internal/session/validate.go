package session

import (
	"errors"
	"strings"
)

// MinPasswordLength is the shortest password the forms accept.
const MinPasswordLength = 6

// Form validation errors. Their messages are shown to the user as is.
var (
	ErrEmailRequired    = errors.New("Email is required")
	ErrPasswordRequired = errors.New("Password is required")
	ErrPasswordMismatch = errors.New("Passwords do not match")
	ErrPasswordTooShort = errors.New("Password must be at least 6 characters")
)

// ValidateSignUp checks a sign-up form: the email is present, both
// passwords match and the password is long enough, in that order.
func ValidateSignUp(email, password, confirm string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	return ValidateNewPassword(password, confirm)
}

// ValidateNewPassword checks a chosen password and its confirmation.
func ValidateNewPassword(password, confirm string) error {
	if password != confirm {
		return ErrPasswordMismatch
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}
	return nil
}

// ValidateSignIn checks that both fields of a sign-in form are filled.
func ValidateSignIn(email, password string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	if password == "" {
		return ErrPasswordRequired
	}
	return nil
}

// ValidateReset checks a password reset request form.
func ValidateReset(email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrEmailRequired
	}
	return nil
}
