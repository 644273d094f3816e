package finauth

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/rfol/finauth/password"
)

// Config is the complete engine configuration. Start from DefaultConfig and
// override fields; Build rejects an invalid Config with ErrConfiguration.
type Config struct {
	JWT           JWTConfig
	Session       SessionConfig
	Password      PasswordConfig
	PII           PIIConfig
	PasswordReset PasswordResetConfig
	RateLimit     RateLimitConfig
	Store         StoreConfig
	Audit         AuditConfig
	Metrics       MetricsConfig
}

/*
====================================
JWT CONFIG
====================================
*/

// JWTConfig configures bearer tokens. Only HS256 is supported.
type JWTConfig struct {
	Secret    []byte
	AccessTTL time.Duration
	Issuer    string
}

/*
====================================
SESSION CONFIG
====================================
*/

// SessionConfig configures the session store and its cookie.
type SessionConfig struct {
	RedisPrefix string
	// TTL is fixed from creation; reads never extend it.
	TTL       time.Duration
	ScanBatch int64

	CookieName   string
	CookiePath   string
	CookieDomain string
	// CookieSecure should only be false for plain-HTTP local development.
	CookieSecure bool
}

/*
====================================
PASSWORD CONFIG
====================================
*/

type PasswordConfig struct {
	// Algorithm is "bcrypt" (default) or "argon2id". Hashes of the other
	// algorithm still verify and are upgraded on login when UpgradeOnLogin
	// is set.
	Algorithm  string
	BcryptCost int

	Argon2Memory      uint32 // KiB
	Argon2Time        uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32

	MaxConcurrentHashes int
	UpgradeOnLogin      bool
}

// PIIConfig holds the two independent 32-byte keys for email protection.
type PIIConfig struct {
	HashKey       []byte
	EncryptionKey []byte
}

type PasswordResetConfig struct {
	TokenTTL       time.Duration
	MaxRequests    int
	RateWindow     time.Duration
	GenericMessage string
}

// RateLimitConfig throttles failed logins per identifier and, optionally,
// per client IP.
type RateLimitConfig struct {
	MaxLoginAttempts int
	Cooldown         time.Duration
	EnableIPThrottle bool
}

// StoreConfig bounds every Redis and UserProvider call the engine makes.
// Calls whose context already carries a deadline keep it. ScanTimeout
// covers walks of the session keyspace, which grow with it.
type StoreConfig struct {
	OperationTimeout time.Duration
	ScanTimeout      time.Duration
}

type AuditConfig struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

type MetricsConfig struct {
	Enabled                 bool
	EnableLatencyHistograms bool
}

const (
	DefaultSessionCookieName = "session_id"
	DefaultResetMessage      = "If an account exists with this email, you will receive a password reset link"
)

// DefaultConfig returns production defaults. Secrets are left empty and
// must be supplied.
func DefaultConfig() Config {
	return Config{
		JWT: JWTConfig{
			AccessTTL: 5 * time.Minute,
		},
		Session: SessionConfig{
			RedisPrefix:  "session",
			TTL:          time.Hour,
			ScanBatch:    500,
			CookieName:   DefaultSessionCookieName,
			CookiePath:   "/",
			CookieSecure: true,
		},
		Password: PasswordConfig{
			Algorithm:           string(password.AlgorithmBcrypt),
			BcryptCost:          password.DefaultBcryptCost,
			Argon2Memory:        64 * 1024,
			Argon2Time:          3,
			Argon2Parallelism:   2,
			Argon2SaltLength:    16,
			Argon2KeyLength:     32,
			MaxConcurrentHashes: runtime.GOMAXPROCS(0),
			UpgradeOnLogin:      true,
		},
		PasswordReset: PasswordResetConfig{
			TokenTTL:       time.Hour,
			MaxRequests:    2,
			RateWindow:     time.Hour,
			GenericMessage: DefaultResetMessage,
		},
		RateLimit: RateLimitConfig{
			MaxLoginAttempts: 5,
			Cooldown:         15 * time.Minute,
		},
		Store: StoreConfig{
			OperationTimeout: 2 * time.Second,
			ScanTimeout:      15 * time.Second,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 1024,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 false,
			EnableLatencyHistograms: false,
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	out.JWT.Secret = cloneBytes(cfg.JWT.Secret)
	out.PII.HashKey = cloneBytes(cfg.PII.HashKey)
	out.PII.EncryptionKey = cloneBytes(cfg.PII.EncryptionKey)
	return out
}

func cloneBytes(b []byte) []byte {
	if len(b) == 0 {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (c Config) vaultConfig() password.Config {
	return password.Config{
		Algorithm:  password.Algorithm(c.Password.Algorithm),
		BcryptCost: c.Password.BcryptCost,
		Argon2: password.Argon2Config{
			Memory:      c.Password.Argon2Memory,
			Time:        c.Password.Argon2Time,
			Parallelism: c.Password.Argon2Parallelism,
			SaltLength:  c.Password.Argon2SaltLength,
			KeyLength:   c.Password.Argon2KeyLength,
		},
		MaxConcurrent: c.Password.MaxConcurrentHashes,
	}
}

/*
====================================
VALIDATION
====================================
*/

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrConfiguration}, args...)...)
}

// Validate reports the first invalid setting, wrapped in ErrConfiguration.
func (c *Config) Validate() error {
	// JWT
	if len(c.JWT.Secret) < 32 {
		return configErr("JWT Secret must be at least 32 bytes")
	}
	if c.JWT.AccessTTL <= 0 {
		return configErr("JWT AccessTTL must be > 0")
	}

	// Session
	if c.Session.TTL <= 0 {
		return configErr("Session TTL must be > 0")
	}
	if c.Session.ScanBatch <= 0 {
		return configErr("Session ScanBatch must be > 0")
	}
	if c.Session.CookieName == "" {
		return configErr("Session CookieName must not be empty")
	}

	// Password
	switch password.Algorithm(c.Password.Algorithm) {
	case password.AlgorithmBcrypt, password.AlgorithmArgon2id:
	default:
		return configErr("Password Algorithm %q is not supported", c.Password.Algorithm)
	}
	if c.Password.MaxConcurrentHashes < 0 {
		return configErr("Password MaxConcurrentHashes must be >= 0")
	}

	// PII
	if len(c.PII.HashKey) == 0 || len(c.PII.EncryptionKey) == 0 {
		return configErr("PII HashKey and EncryptionKey are required")
	}

	// Password reset
	if c.PasswordReset.TokenTTL <= 0 {
		return configErr("PasswordReset TokenTTL must be > 0")
	}
	if c.PasswordReset.MaxRequests <= 0 {
		return configErr("PasswordReset MaxRequests must be > 0")
	}
	if c.PasswordReset.RateWindow <= 0 {
		return configErr("PasswordReset RateWindow must be > 0")
	}

	// Rate limit
	if c.RateLimit.MaxLoginAttempts < 0 {
		return configErr("RateLimit MaxLoginAttempts must be >= 0")
	}
	if c.RateLimit.MaxLoginAttempts > 0 && c.RateLimit.Cooldown <= 0 {
		return configErr("RateLimit Cooldown must be > 0 when MaxLoginAttempts is set")
	}

	if c.Store.OperationTimeout < 0 {
		return configErr("Store OperationTimeout must be >= 0")
	}
	if c.Store.ScanTimeout < 0 {
		return configErr("Store ScanTimeout must be >= 0")
	}

	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return configErr("Audit BufferSize must be > 0")
	}

	return nil
}

// SessionCookie builds the cookie that delivers sessionID:
// HttpOnly, SameSite=Strict, Max-Age equal to the session TTL.
func SessionCookie(sessionID string, cfg SessionConfig) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName(cfg),
		Value:    sessionID,
		Path:     cookiePath(cfg),
		Domain:   cfg.CookieDomain,
		MaxAge:   int(cfg.TTL / time.Second),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

// ClearSessionCookie builds a cookie that deletes the session cookie.
func ClearSessionCookie(cfg SessionConfig) *http.Cookie {
	return &http.Cookie{
		Name:     cookieName(cfg),
		Value:    "",
		Path:     cookiePath(cfg),
		Domain:   cfg.CookieDomain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   cfg.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	}
}

func cookieName(cfg SessionConfig) string {
	if cfg.CookieName == "" {
		return DefaultSessionCookieName
	}
	return cfg.CookieName
}

func cookiePath(cfg SessionConfig) string {
	if cfg.CookiePath == "" {
		return "/"
	}
	return cfg.CookiePath
}
