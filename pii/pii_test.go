package pii

import (
	"bytes"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProtector(t *testing.T) *Protector {
	t.Helper()

	p, err := New(bytes.Repeat([]byte{0x11}, KeySize), bytes.Repeat([]byte{0x22}, KeySize))
	require.NoError(t, err)
	return p
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "alice@example.com", NormalizeEmail("  Alice@Example.COM \t"))
	assert.Equal(t, "alice@example.com", NormalizeEmail(NormalizeEmail(" ALICE@example.com")))
	assert.Equal(t, "", NormalizeEmail("   "))
}

func TestLookupHashDeterministicAndNormalized(t *testing.T) {
	p := newTestProtector(t)

	h1 := p.LookupHash("alice@example.com")
	h2 := p.LookupHash("  ALICE@example.com ")
	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64)
	_, err := hex.DecodeString(h1)
	assert.NoError(t, err)

	assert.NotEqual(t, h1, p.LookupHash("bob@example.com"))
}

func TestLookupHashDependsOnKey(t *testing.T) {
	p1 := newTestProtector(t)
	p2, err := New(bytes.Repeat([]byte{0x33}, KeySize), bytes.Repeat([]byte{0x22}, KeySize))
	require.NoError(t, err)

	assert.NotEqual(t, p1.LookupHash("alice@example.com"), p2.LookupHash("alice@example.com"))
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	p := newTestProtector(t)

	for _, raw := range []string{"alice@example.com", " Bob.Smith+tag@Example.org ", "x@y"} {
		ct, err := p.EncryptEmail(raw)
		require.NoError(t, err)
		assert.NotContains(t, strings.ToLower(ct), NormalizeEmail(raw))

		got, err := p.DecryptEmail(ct)
		require.NoError(t, err)
		assert.Equal(t, NormalizeEmail(raw), got)
	}
}

func TestEncryptIsRandomized(t *testing.T) {
	p := newTestProtector(t)

	a, err := p.EncryptEmail("alice@example.com")
	require.NoError(t, err)
	b, err := p.EncryptEmail("alice@example.com")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
}

func TestDecryptTamperedFailsClosed(t *testing.T) {
	p := newTestProtector(t)

	ct, err := p.EncryptEmail("alice@example.com")
	require.NoError(t, err)

	raw, err := base64.RawURLEncoding.DecodeString(ct)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0x01

	got, err := p.DecryptEmail(base64.RawURLEncoding.EncodeToString(raw))
	assert.ErrorIs(t, err, ErrDecryptionFailed)
	assert.Empty(t, got)
}

func TestDecryptWrongKeyFailsClosed(t *testing.T) {
	p := newTestProtector(t)
	other, err := New(bytes.Repeat([]byte{0x11}, KeySize), bytes.Repeat([]byte{0x44}, KeySize))
	require.NoError(t, err)

	ct, err := p.EncryptEmail("alice@example.com")
	require.NoError(t, err)

	_, err = other.DecryptEmail(ct)
	assert.ErrorIs(t, err, ErrDecryptionFailed)
}

func TestDecryptCorruptedInput(t *testing.T) {
	p := newTestProtector(t)

	_, err := p.DecryptEmail("not base64 !!")
	assert.ErrorIs(t, err, ErrCiphertextCorrupted)

	_, err = p.DecryptEmail(base64.RawURLEncoding.EncodeToString([]byte("short")))
	assert.ErrorIs(t, err, ErrCiphertextCorrupted)
}

func TestNewRejectsMissingOrShortKeys(t *testing.T) {
	_, err := New(nil, bytes.Repeat([]byte{1}, KeySize))
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = New(bytes.Repeat([]byte{1}, KeySize), nil)
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = New(bytes.Repeat([]byte{1}, 16), bytes.Repeat([]byte{1}, KeySize))
	assert.ErrorIs(t, err, ErrKeyLengthInvalid)
}

func TestParseKey(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)

	for _, encoded := range []string{
		hex.EncodeToString(key),
		base64.StdEncoding.EncodeToString(key),
		base64.RawURLEncoding.EncodeToString(key),
	} {
		got, err := ParseKey(encoded)
		require.NoError(t, err, encoded)
		assert.Equal(t, key, got)
	}

	_, err = ParseKey("")
	assert.ErrorIs(t, err, ErrMissingKey)

	_, err = ParseKey(base64.StdEncoding.EncodeToString([]byte("too-short")))
	assert.ErrorIs(t, err, ErrKeyLengthInvalid)

	_, err = ParseKey("%%%not-a-key%%%")
	assert.ErrorIs(t, err, ErrKeyLengthInvalid)
}
