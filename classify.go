package finauth

import (
	"errors"

	"github.com/rfol/finauth/password"
)

// ErrorClass is a transport-neutral outcome category.
type ErrorClass int

const (
	ClassNone ErrorClass = iota
	ClassUnauthorized
	ClassConflict
	ClassRateLimited
	ClassNotFound
	ClassBadRequest
	ClassUnavailable
	ClassInternal
)

func (c ErrorClass) String() string {
	switch c {
	case ClassNone:
		return "none"
	case ClassUnauthorized:
		return "unauthorized"
	case ClassConflict:
		return "conflict"
	case ClassRateLimited:
		return "rate_limited"
	case ClassNotFound:
		return "not_found"
	case ClassBadRequest:
		return "bad_request"
	case ClassUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Classify maps an Engine error to its class. Unknown errors are
// ClassInternal.
func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, ErrInvalidToken),
		errors.Is(err, ErrSessionMissingOrExpired):
		return ClassUnauthorized
	case errors.Is(err, ErrDuplicateUser):
		return ClassConflict
	case errors.Is(err, ErrRateLimited):
		return ClassRateLimited
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	case errors.Is(err, ErrInvalidOrExpiredResetToken),
		errors.Is(err, ErrWeakPassword),
		errors.Is(err, ErrPasswordMismatch),
		errors.Is(err, ErrPasswordReuse),
		errors.Is(err, ErrAccountInactive),
		errors.Is(err, ErrInvalidInput),
		errors.Is(err, password.ErrPasswordTooLong):
		return ClassBadRequest
	case errors.Is(err, ErrStoreUnavailable):
		return ClassUnavailable
	default:
		return ClassInternal
	}
}

// PublicMessage returns text that is safe to show a client for err. It
// never reveals which half of a credential pair was wrong.
func PublicMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Incorrect username or password"
	case errors.Is(err, ErrInvalidToken):
		return "Could not validate credentials"
	case errors.Is(err, ErrSessionMissingOrExpired):
		return "Session expired/invalid"
	case errors.Is(err, ErrInvalidOrExpiredResetToken):
		return "Invalid or expired reset token"
	case errors.Is(err, ErrRateLimited):
		return "Too many attempts. Please try again later."
	case errors.Is(err, ErrDuplicateEmail):
		return "Email already in use"
	case errors.Is(err, ErrDuplicateUsername):
		return "Username already taken"
	case errors.Is(err, ErrDuplicateUser):
		return "User with given credentials already exists"
	case errors.Is(err, ErrNotFound):
		return "User not found"
	case errors.Is(err, ErrWeakPassword):
		return "Password must be at least 8 characters and include upper and lower case letters, a digit and one of @$!%*?&"
	case errors.Is(err, password.ErrPasswordTooLong):
		return "Password is too long"
	case errors.Is(err, ErrPasswordMismatch):
		return "Passwords do not match"
	case errors.Is(err, ErrPasswordReuse):
		return "New password must be different from current password"
	case errors.Is(err, ErrAccountInactive):
		return "Inactive User"
	case errors.Is(err, ErrInvalidInput):
		return "Invalid request"
	case errors.Is(err, ErrStoreUnavailable):
		return "Service temporarily unavailable"
	default:
		return "An error occurred processing your request"
	}
}
