// Package pii protects personal identifiers at rest. Emails are stored as a
// keyed lookup hash (for unique indexing and lookups) alongside an
// AES-256-GCM ciphertext (for display), never in the clear.
package pii

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"io"
	"strings"
)

// KeySize is the required length of both the hash key and the encryption key.
const KeySize = 32

// emailAD binds email ciphertexts to their purpose so they cannot be
// replayed into another encrypted column under the same key.
var emailAD = []byte("finauth/email/v1")

var (
	// ErrMissingKey is returned when a key is not configured.
	ErrMissingKey = errors.New("pii: key not configured")
	// ErrKeyLengthInvalid is returned for keys that are not KeySize bytes.
	ErrKeyLengthInvalid = errors.New("pii: key must be exactly 32 bytes")
	// ErrCiphertextCorrupted is returned when ciphertext fails decoding or is truncated.
	ErrCiphertextCorrupted = errors.New("pii: ciphertext is corrupted")
	// ErrDecryptionFailed is returned when authentication fails (tampering or wrong key).
	ErrDecryptionFailed = errors.New("pii: decryption failed")
)

// NormalizeEmail trims surrounding whitespace and lowercases. It is
// idempotent and applied before every hash and encryption.
func NormalizeEmail(raw string) string {
	return strings.ToLower(strings.TrimSpace(raw))
}

// Protector hashes and encrypts emails with server-held keys. It is safe for
// concurrent use.
type Protector struct {
	hashKey []byte
	aead    cipher.AEAD
}

// New builds a Protector. Both keys must be present and KeySize bytes long.
func New(hashKey, encryptionKey []byte) (*Protector, error) {
	if len(hashKey) == 0 || len(encryptionKey) == 0 {
		return nil, ErrMissingKey
	}
	if len(hashKey) != KeySize || len(encryptionKey) != KeySize {
		return nil, ErrKeyLengthInvalid
	}

	block, err := aes.NewCipher(encryptionKey)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}

	hk := make([]byte, KeySize)
	copy(hk, hashKey)

	return &Protector{hashKey: hk, aead: aead}, nil
}

// LookupHash returns the hex HMAC-SHA256 of the normalized email.
func (p *Protector) LookupHash(email string) string {
	mac := hmac.New(sha256.New, p.hashKey)
	mac.Write([]byte(NormalizeEmail(email)))
	return hex.EncodeToString(mac.Sum(nil))
}

// EncryptEmail seals the normalized email. The output is the nonce followed
// by the GCM ciphertext, base64url encoded.
func (p *Protector) EncryptEmail(email string) (string, error) {
	nonce := make([]byte, p.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}

	sealed := p.aead.Seal(nonce, nonce, []byte(NormalizeEmail(email)), emailAD)
	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// DecryptEmail opens a value produced by EncryptEmail. It never returns
// partial or unauthenticated plaintext.
func (p *Protector) DecryptEmail(ciphertext string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", ErrCiphertextCorrupted
	}

	n := p.aead.NonceSize()
	if len(raw) < n+p.aead.Overhead() {
		return "", ErrCiphertextCorrupted
	}

	plain, err := p.aead.Open(nil, raw[:n], raw[n:], emailAD)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}
