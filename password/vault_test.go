package password

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func fastArgon2() Argon2Config {
	return Argon2Config{
		Memory:      8 * 1024,
		Time:        1,
		Parallelism: 1,
		SaltLength:  16,
		KeyLength:   32,
	}
}

func newTestVault(t *testing.T, alg Algorithm) *Vault {
	t.Helper()

	v, err := NewVault(Config{
		Algorithm:  alg,
		BcryptCost: 4,
		Argon2:     fastArgon2(),
	})
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}
	return v
}

func TestVaultHashVerifyRoundTrip(t *testing.T) {
	for _, alg := range []Algorithm{AlgorithmBcrypt, AlgorithmArgon2id} {
		t.Run(string(alg), func(t *testing.T) {
			v := newTestVault(t, alg)
			ctx := context.Background()

			hash, err := v.Hash(ctx, "Str0ng!Pw")
			if err != nil {
				t.Fatalf("Hash failed: %v", err)
			}
			if strings.Contains(hash, "Str0ng!Pw") {
				t.Fatal("hash must not contain plaintext")
			}

			ok, err := v.Verify(ctx, "Str0ng!Pw", hash)
			if err != nil || !ok {
				t.Fatalf("expected verify success, got ok=%v err=%v", ok, err)
			}

			ok, err = v.Verify(ctx, "Str0ng!Px", hash)
			if err != nil {
				t.Fatalf("Verify wrong password returned error: %v", err)
			}
			if ok {
				t.Fatal("expected wrong password to fail")
			}
		})
	}
}

func TestVaultHashIsSalted(t *testing.T) {
	v := newTestVault(t, AlgorithmBcrypt)
	ctx := context.Background()

	h1, err := v.Hash(ctx, "Same!Pass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	h2, err := v.Hash(ctx, "Same!Pass1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if h1 == h2 {
		t.Fatal("expected distinct hashes for identical input")
	}
}

func TestVaultVerifiesOtherAlgorithm(t *testing.T) {
	ctx := context.Background()
	argonVault := newTestVault(t, AlgorithmArgon2id)
	bcryptVault := newTestVault(t, AlgorithmBcrypt)

	legacy, err := argonVault.Hash(ctx, "Legacy!Pw9")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}

	ok, err := bcryptVault.Verify(ctx, "Legacy!Pw9", legacy)
	if err != nil || !ok {
		t.Fatalf("expected bcrypt vault to verify argon2 hash, ok=%v err=%v", ok, err)
	}
	if !bcryptVault.NeedsUpgrade(legacy) {
		t.Fatal("expected argon2 hash to need upgrade under bcrypt default")
	}
}

func TestVaultNeedsUpgradeOnLowerCost(t *testing.T) {
	ctx := context.Background()
	low := newTestVault(t, AlgorithmBcrypt)

	high, err := NewVault(Config{Algorithm: AlgorithmBcrypt, BcryptCost: 5, Argon2: fastArgon2()})
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}

	hash, err := low.Hash(ctx, "Upgr4de!me")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if low.NeedsUpgrade(hash) {
		t.Fatal("hash at configured cost should not need upgrade")
	}
	if !high.NeedsUpgrade(hash) {
		t.Fatal("hash below configured cost should need upgrade")
	}
}

func TestVaultVerifyMalformedHash(t *testing.T) {
	v := newTestVault(t, AlgorithmBcrypt)

	if _, err := v.Verify(context.Background(), "x", "plaintext-in-db"); !errors.Is(err, ErrUnsupportedHash) {
		t.Fatalf("expected ErrUnsupportedHash, got %v", err)
	}
	if _, err := v.Verify(context.Background(), "x", "$argon2id$v=19$broken"); !errors.Is(err, ErrMalformedHash) {
		t.Fatalf("expected ErrMalformedHash, got %v", err)
	}
}

func TestVaultHashHonoursContextWhileWaiting(t *testing.T) {
	v, err := NewVault(Config{BcryptCost: 4, Argon2: fastArgon2(), MaxConcurrent: 1})
	if err != nil {
		t.Fatalf("NewVault failed: %v", err)
	}

	// Hold the only slot.
	if err := v.slots.Acquire(context.Background(), 1); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	defer v.slots.Release(1)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if _, err := v.Hash(ctx, "Blocked!1a"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestBcryptRejectsLongPassword(t *testing.T) {
	b, err := NewBcrypt(4)
	if err != nil {
		t.Fatalf("NewBcrypt failed: %v", err)
	}
	if _, err := b.Hash(strings.Repeat("a", 73)); !errors.Is(err, ErrPasswordTooLong) {
		t.Fatalf("expected ErrPasswordTooLong, got %v", err)
	}
}

func TestNewVaultRejectsUnknownAlgorithm(t *testing.T) {
	if _, err := NewVault(Config{Algorithm: "md5"}); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestArgon2NeedsUpgrade(t *testing.T) {
	weak, err := NewArgon2(fastArgon2())
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}
	strongCfg := fastArgon2()
	strongCfg.Time = 2
	strong, err := NewArgon2(strongCfg)
	if err != nil {
		t.Fatalf("NewArgon2 failed: %v", err)
	}

	hash, err := weak.Hash("Argon!Pw1")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=8192,t=1,p=1$") {
		t.Fatalf("unexpected PHC prefix: %s", hash)
	}

	upgrade, err := strong.NeedsUpgrade(hash)
	if err != nil || !upgrade {
		t.Fatalf("expected upgrade for weaker params, got %v err=%v", upgrade, err)
	}
	upgrade, err = weak.NeedsUpgrade(hash)
	if err != nil || upgrade {
		t.Fatalf("expected no upgrade for same params, got %v err=%v", upgrade, err)
	}
}

func TestNewArgon2RejectsWeakConfig(t *testing.T) {
	cfg := fastArgon2()
	cfg.Memory = 1024
	if _, err := NewArgon2(cfg); !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("expected ErrInvalidConfig, got %v", err)
	}
}
