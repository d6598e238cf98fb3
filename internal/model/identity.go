package model

import "time"

// Identity is the authenticated user as seen by the client: an opaque
// identifier plus the email address used to sign in.
type Identity struct {
	ID    string `json:"id" db:"id"`
	Email string `json:"email" db:"email"`
}

// SameUser reports whether a and b refer to the same user. Two nil
// identities are considered the same.
func SameUser(a, b *Identity) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.ID == b.ID
}

// Session is an authenticated session issued by the backend.
type Session struct {
	AccessToken string    `json:"access_token"`
	User        Identity  `json:"user"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Expired reports whether the session is past its expiry at now.
func (s Session) Expired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && !now.Before(s.ExpiresAt)
}

// AuthEvent names a change in the authentication state.
type AuthEvent string

const (
	AuthEventInitialSession   AuthEvent = "INITIAL_SESSION"
	AuthEventSignedIn         AuthEvent = "SIGNED_IN"
	AuthEventSignedOut        AuthEvent = "SIGNED_OUT"
	AuthEventPasswordRecovery AuthEvent = "PASSWORD_RECOVERY"
)
