package password

import (
	"errors"
	"strings"
)

// MinLength is the shortest password the policy accepts.
const MinLength = 8

// AllowedSymbols is the symbol class a password must draw at least one
// character from. No other symbols are accepted.
const AllowedSymbols = "@$!%*?&"

// ErrWeakPassword is returned by CheckStrength. The wrapped message names
// the first unmet rule.
var ErrWeakPassword = errors.New("password does not meet strength requirements")

type policyError struct {
	reason string
}

func (e *policyError) Error() string { return ErrWeakPassword.Error() + ": " + e.reason }
func (e *policyError) Unwrap() error { return ErrWeakPassword }

// CheckStrength accepts passwords of at least MinLength characters drawn
// from letters, digits and AllowedSymbols, with at least one of each of
// lowercase, uppercase, digit and symbol.
func CheckStrength(plaintext string) error {
	if len(plaintext) < MinLength {
		return &policyError{reason: "must be at least 8 characters"}
	}

	var lower, upper, digit, symbol bool
	for _, r := range plaintext {
		switch {
		case r >= 'a' && r <= 'z':
			lower = true
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= '0' && r <= '9':
			digit = true
		case strings.ContainsRune(AllowedSymbols, r):
			symbol = true
		default:
			return &policyError{reason: "contains a character outside letters, digits and " + AllowedSymbols}
		}
	}

	switch {
	case !lower:
		return &policyError{reason: "needs a lowercase letter"}
	case !upper:
		return &policyError{reason: "needs an uppercase letter"}
	case !digit:
		return &policyError{reason: "needs a digit"}
	case !symbol:
		return &policyError{reason: "needs one of " + AllowedSymbols}
	}
	return nil
}
