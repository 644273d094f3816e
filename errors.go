package finauth

import (
	"errors"

	"github.com/rfol/finauth/password"
)

var (
	// ErrInvalidCredentials is returned by Login for an unknown identifier
	// and for a wrong password alike.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrInvalidToken is returned for a bearer token that is malformed,
	// forged, expired or names a user that no longer exists.
	ErrInvalidToken = errors.New("invalid token")
	// ErrSessionMissingOrExpired is returned when no live session matches.
	ErrSessionMissingOrExpired = errors.New("session missing or expired")
	// ErrInvalidOrExpiredResetToken is returned for unknown, expired or
	// already-used reset tokens.
	ErrInvalidOrExpiredResetToken = errors.New("invalid or expired reset token")
	// ErrRateLimited is returned when a login or reset budget is spent.
	ErrRateLimited = errors.New("rate limited")

	// ErrDuplicateUser is returned when a unique field is already taken.
	ErrDuplicateUser = errors.New("user with given credentials already exists")
	// ErrDuplicateEmail wraps ErrDuplicateUser.
	ErrDuplicateEmail error = &duplicateError{field: "email", msg: "email already in use"}
	// ErrDuplicateUsername wraps ErrDuplicateUser.
	ErrDuplicateUsername error = &duplicateError{field: "username", msg: "username already taken"}

	ErrNotFound         = errors.New("not found")
	ErrConfiguration    = errors.New("configuration error")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrEngineNotReady   = errors.New("engine not initialized")

	// ErrWeakPassword is the vault policy sentinel; CheckStrength errors wrap it.
	ErrWeakPassword     = password.ErrWeakPassword
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrPasswordReuse    = errors.New("new password must be different from current password")
	ErrAccountInactive  = errors.New("inactive user")
	ErrInvalidInput     = errors.New("invalid input")
)

type duplicateError struct {
	field string
	msg   string
}

func (e *duplicateError) Error() string { return e.msg }

func (e *duplicateError) Unwrap() error { return ErrDuplicateUser }

// Field names the colliding column: "email" or "username".
func (e *duplicateError) Field() string { return e.field }
