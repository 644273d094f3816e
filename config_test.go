package finauth

import (
	"bytes"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestDefaultConfigNeedsSecrets(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without secrets, got %v", err)
	}

	cfg = testConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("expected test config to validate, got %v", err)
	}
}

func TestConfigValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"short jwt secret", func(c *Config) { c.JWT.Secret = []byte("short") }},
		{"zero session ttl", func(c *Config) { c.Session.TTL = 0 }},
		{"empty cookie name", func(c *Config) { c.Session.CookieName = "" }},
		{"unknown algorithm", func(c *Config) { c.Password.Algorithm = "md5" }},
		{"missing pii key", func(c *Config) { c.PII.EncryptionKey = nil }},
		{"zero reset ttl", func(c *Config) { c.PasswordReset.TokenTTL = 0 }},
		{"zero reset max", func(c *Config) { c.PasswordReset.MaxRequests = 0 }},
		{"missing cooldown", func(c *Config) { c.RateLimit.Cooldown = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); !errors.Is(err, ErrConfiguration) {
				t.Fatalf("expected ErrConfiguration, got %v", err)
			}
		})
	}
}

func TestBuilderRequirements(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	if _, err := New().WithConfig(testConfig()).WithUserProvider(newMemUsers()).Build(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without redis, got %v", err)
	}
	if _, err := New().WithConfig(testConfig()).WithRedis(rdb).Build(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration without provider, got %v", err)
	}

	badKey := testConfig()
	badKey.PII.HashKey = bytes.Repeat([]byte{1}, 16)
	if _, err := New().WithConfig(badKey).WithRedis(rdb).WithUserProvider(newMemUsers()).Build(); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration for short PII key, got %v", err)
	}

	b := New().WithConfig(testConfig()).WithRedis(rdb).WithUserProvider(newMemUsers())
	e, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer e.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected reused builder to fail")
	}
}

func TestWithConfigCopiesSecrets(t *testing.T) {
	cfg := testConfig()
	b := New().WithConfig(cfg)
	cfg.JWT.Secret[0] = 'x'
	if b.config.JWT.Secret[0] == 'x' {
		t.Fatal("builder must not alias caller secrets")
	}
}

func TestSessionCookie(t *testing.T) {
	cfg := DefaultConfig().Session

	c := SessionCookie("abc", cfg)
	if c.Name != "session_id" || c.Value != "abc" {
		t.Fatalf("unexpected cookie %+v", c)
	}
	if !c.HttpOnly || !c.Secure || c.SameSite != http.SameSiteStrictMode {
		t.Fatalf("cookie flags not set: %+v", c)
	}
	if c.MaxAge != int(time.Hour/time.Second) || c.Path != "/" {
		t.Fatalf("unexpected max-age/path: %+v", c)
	}

	cleared := ClearSessionCookie(cfg)
	if cleared.MaxAge >= 0 || cleared.Value != "" || cleared.Name != "session_id" {
		t.Fatalf("unexpected clear cookie %+v", cleared)
	}
}

func TestClassifyAndPublicMessage(t *testing.T) {
	cases := []struct {
		err   error
		class ErrorClass
	}{
		{nil, ClassNone},
		{ErrInvalidCredentials, ClassUnauthorized},
		{ErrSessionMissingOrExpired, ClassUnauthorized},
		{ErrDuplicateEmail, ClassConflict},
		{ErrRateLimited, ClassRateLimited},
		{ErrNotFound, ClassNotFound},
		{ErrInvalidOrExpiredResetToken, ClassBadRequest},
		{ErrAccountInactive, ClassBadRequest},
		{ErrStoreUnavailable, ClassUnavailable},
		{errors.New("boom"), ClassInternal},
	}
	for _, tc := range cases {
		if got := Classify(tc.err); got != tc.class {
			t.Fatalf("Classify(%v) = %v, want %v", tc.err, got, tc.class)
		}
	}

	if PublicMessage(ErrDuplicateEmail) != "Email already in use" {
		t.Fatalf("unexpected message %q", PublicMessage(ErrDuplicateEmail))
	}
	if msg := PublicMessage(errors.New("pq: password authentication failed")); msg == "" || msg == "pq: password authentication failed" {
		t.Fatalf("internal errors must not leak, got %q", msg)
	}
}

func TestUserQuery(t *testing.T) {
	if v, ok := ByUsername("alice").Username(); !ok || v != "alice" {
		t.Fatal("ByUsername mismatch")
	}
	if _, ok := ByUsername("alice").HashedEmail(); ok {
		t.Fatal("ByUsername must not match HashedEmail")
	}
	if id, ok := ByID(7).ID(); !ok || id != 7 {
		t.Fatal("ByID mismatch")
	}
	var zero UserQuery
	if _, ok := zero.Username(); ok {
		t.Fatal("zero query must match nothing")
	}
}

func TestSecurityReportReflectsConfig(t *testing.T) {
	env := newTestEnv(t, func(c *Config) {
		c.RateLimit.EnableIPThrottle = true
	})

	r := env.engine.SecurityReport()
	if r.SigningAlgorithm != "HS256" || r.AccessTTL != 5*time.Minute {
		t.Fatalf("unexpected token settings %+v", r)
	}
	if r.Hash.Algorithm != "bcrypt" || r.Hash.BcryptCost != 4 || r.Hash.Memory != 0 {
		t.Fatalf("unexpected hash report %+v", r.Hash)
	}
	if !r.LoginThrottleActive || !r.IPThrottleActive {
		t.Fatal("expected throttles active")
	}
	if r.ResetMaxRequests != 2 || r.ResetTokenTTL != time.Hour {
		t.Fatalf("unexpected reset settings %+v", r)
	}

	var nilEngine *Engine
	if nilEngine.SecurityReport() != (SecurityReport{}) {
		t.Fatal("nil engine must report zero value")
	}
}
