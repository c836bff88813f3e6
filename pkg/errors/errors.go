package errors

import (
	"errors"
)

var (
	ErrNilUser               = errors.New("user is nil")
	ErrUserNotFound          = errors.New("user not found")
	ErrUserInactive          = errors.New("user account is deactivated")
	ErrInvalidPassword       = errors.New("invalid password")
	ErrDuplicateUsername     = errors.New("username already exists")
	ErrDuplicateEmail        = errors.New("email already exists")
	ErrInvalidCredentials    = errors.New("invalid credentials")
	ErrUserInactiveOrMissing = errors.New("user not found or inactive")
	ErrTokenExpired          = errors.New("token has expired")
	ErrTokenMalformed        = errors.New("token is malformed")
	ErrTokenWrongType        = errors.New("invalid token type")
	ErrTokenRevoked          = errors.New("token has been revoked")
	ErrSigningKeyMissing     = errors.New("jwt signing key is not configured")
	ErrRateLimited           = errors.New("rate limit exceeded")
	ErrInternal              = errors.New("internal error")
	ErrInvalidInput          = errors.New("invalid input")
)

// Reason returns the short machine-readable reason for a token or credential
// failure, or "" when err is not one of them.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid-credentials"
	case errors.Is(err, ErrTokenExpired):
		return "expired"
	case errors.Is(err, ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, ErrTokenWrongType):
		return "wrong-type"
	case errors.Is(err, ErrTokenRevoked):
		return "revoked"
	case errors.Is(err, ErrInvalidPassword):
		return "invalid-password"
	case errors.Is(err, ErrUserInactive):
		return "user-inactive"
	case errors.Is(err, ErrUserNotFound):
		return "user-not-found"
	case errors.Is(err, ErrUserInactiveOrMissing):
		return "user-inactive"
	default:
		return ""
	}
}

// ClientReason is Reason narrowed to what a client may see. Account state
// behind a rejected token collapses into "revoked".
func ClientReason(err error) string {
	switch r := Reason(err); r {
	case "user-inactive", "user-not-found":
		return "revoked"
	default:
		return r
	}
}
