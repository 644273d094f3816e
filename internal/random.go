package internal

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
)

// Both identifiers are 256 bits of entropy, well above the 128-bit floor for
// unguessable bearer secrets.
const (
	sessionIDSize  = 32
	resetTokenSize = 32
)

var errInvalidTokenSize = errors.New("invalid token size")

type SessionID [sessionIDSize]byte

func NewSessionID() (SessionID, error) {
	var sid SessionID
	_, err := rand.Read(sid[:])
	return sid, err
}

func (s SessionID) String() string {
	// base64url, no padding, compact
	return base64.RawURLEncoding.EncodeToString(s[:])
}

// ParseSessionID rejects anything that is not a canonical encoded id, so
// caller input never reaches a Redis key or SCAN pattern unchecked.
func ParseSessionID(sessionID string) (SessionID, error) {
	var sid SessionID
	if err := decodeFixed(sessionID, sid[:]); err != nil {
		return sid, err
	}
	return sid, nil
}

func NewResetToken() (string, error) {
	var raw [resetTokenSize]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw[:]), nil
}

func ValidResetToken(token string) bool {
	var raw [resetTokenSize]byte
	return decodeFixed(token, raw[:]) == nil
}

func decodeFixed(s string, dst []byte) error {
	if len(s) != base64.RawURLEncoding.EncodedLen(len(dst)) {
		return errInvalidTokenSize
	}
	raw, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return err
	}
	if len(raw) != len(dst) {
		return errInvalidTokenSize
	}
	copy(dst, raw)
	return nil
}
