package password

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/sync/semaphore"
)

var (
	// ErrEmptyPassword is returned when hashing an empty plaintext.
	ErrEmptyPassword = errors.New("password is empty")
	// ErrPasswordTooLong is returned by bcrypt for inputs over 72 bytes.
	ErrPasswordTooLong = errors.New("password exceeds 72 bytes")
	// ErrMalformedHash is returned when a stored hash cannot be parsed.
	ErrMalformedHash = errors.New("malformed password hash")
	// ErrUnsupportedHash is returned when no configured algorithm recognises a hash.
	ErrUnsupportedHash = errors.New("unsupported password hash")
	// ErrInvalidConfig is returned for out-of-range hasher parameters.
	ErrInvalidConfig = errors.New("invalid password hasher config")
)

// Algorithm names a hashing algorithm.
type Algorithm string

const (
	AlgorithmBcrypt   Algorithm = "bcrypt"
	AlgorithmArgon2id Algorithm = "argon2id"
)

// Hasher is implemented by [Bcrypt] and [Argon2].
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(plaintext, encoded string) (bool, error)
	NeedsUpgrade(encoded string) (bool, error)
}

// Config selects the algorithm new hashes are written with and bounds how
// many hashes may be computed at once.
type Config struct {
	Algorithm  Algorithm
	BcryptCost int
	Argon2     Argon2Config

	// MaxConcurrent caps simultaneous Hash/Verify calls. Zero means GOMAXPROCS.
	MaxConcurrent int
}

// Vault is the credential hashing front end used by the engine. It is safe
// for concurrent use.
type Vault struct {
	algorithm Algorithm
	bcrypt    *Bcrypt
	argon2    *Argon2
	slots     *semaphore.Weighted
}

// NewVault builds both hashers so that hashes written under a previous
// default still verify.
func NewVault(cfg Config) (*Vault, error) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmBcrypt
	}
	if cfg.Argon2 == (Argon2Config{}) {
		cfg.Argon2 = DefaultArgon2Config()
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = runtime.GOMAXPROCS(0)
	}

	if cfg.Algorithm != AlgorithmBcrypt && cfg.Algorithm != AlgorithmArgon2id {
		return nil, fmt.Errorf("%w: unknown algorithm %q", ErrInvalidConfig, cfg.Algorithm)
	}

	b, err := NewBcrypt(cfg.BcryptCost)
	if err != nil {
		return nil, err
	}
	a, err := NewArgon2(cfg.Argon2)
	if err != nil {
		return nil, err
	}

	return &Vault{
		algorithm: cfg.Algorithm,
		bcrypt:    b,
		argon2:    a,
		slots:     semaphore.NewWeighted(int64(cfg.MaxConcurrent)),
	}, nil
}

// Algorithm reports the algorithm new hashes are written with.
func (v *Vault) Algorithm() Algorithm {
	return v.algorithm
}

// Hash waits for a hashing slot and hashes plaintext with the configured
// algorithm. It returns ctx.Err() if ctx ends while waiting.
func (v *Vault) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := v.slots.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer v.slots.Release(1)

	return v.primary().Hash(plaintext)
}

// Verify checks plaintext against encoded using whichever algorithm
// produced encoded.
func (v *Vault) Verify(ctx context.Context, plaintext, encoded string) (bool, error) {
	h, err := v.hasherFor(encoded)
	if err != nil {
		return false, err
	}

	if err := v.slots.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer v.slots.Release(1)

	return h.Verify(plaintext, encoded)
}

// NeedsUpgrade reports whether encoded should be rewritten: it was produced
// by a different algorithm or with weaker parameters.
func (v *Vault) NeedsUpgrade(encoded string) bool {
	h, err := v.hasherFor(encoded)
	if err != nil {
		return false
	}
	if h != v.primary() {
		return true
	}
	upgrade, err := h.NeedsUpgrade(encoded)
	return err == nil && upgrade
}

func (v *Vault) primary() Hasher {
	if v.algorithm == AlgorithmArgon2id {
		return v.argon2
	}
	return v.bcrypt
}

func (v *Vault) hasherFor(encoded string) (Hasher, error) {
	switch {
	case isBcryptHash(encoded):
		return v.bcrypt, nil
	case len(encoded) > len(argon2Prefix) && encoded[:len(argon2Prefix)] == argon2Prefix:
		return v.argon2, nil
	default:
		return nil, ErrUnsupportedHash
	}
}
