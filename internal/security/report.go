package security

import "time"

type HashReport struct {
	Algorithm   string
	BcryptCost  int
	Memory      uint32
	Time        uint32
	Parallelism uint8
}

// Report is a read-only summary of the engine's security posture.
type Report struct {
	SigningAlgorithm    string
	AccessTTL           time.Duration
	SessionTTL          time.Duration
	CookieSecure        bool
	Hash                HashReport
	HashUpgradeOnLogin  bool
	LoginThrottleActive bool
	IPThrottleActive    bool
	ResetTokenTTL       time.Duration
	ResetMaxRequests    int
	ResetWindow         time.Duration
	AuditEnabled        bool
	MetricsEnabled      bool
}

type ReportInput struct {
	AccessTTL        time.Duration
	SessionTTL       time.Duration
	CookieSecure     bool
	Hash             HashReport
	UpgradeOnLogin   bool
	MaxLoginAttempts int
	LoginCooldown    time.Duration
	EnableIPThrottle bool
	ResetTokenTTL    time.Duration
	ResetMaxRequests int
	ResetWindow      time.Duration
	AuditEnabled     bool
	MetricsEnabled   bool
}

func BuildReport(input ReportInput) Report {
	throttle := input.MaxLoginAttempts > 0 && input.LoginCooldown > 0

	hash := input.Hash
	if hash.Algorithm != "argon2id" {
		hash.Memory, hash.Time, hash.Parallelism = 0, 0, 0
	}
	if hash.Algorithm != "bcrypt" {
		hash.BcryptCost = 0
	}

	return Report{
		SigningAlgorithm:    "HS256",
		AccessTTL:           input.AccessTTL,
		SessionTTL:          input.SessionTTL,
		CookieSecure:        input.CookieSecure,
		Hash:                hash,
		HashUpgradeOnLogin:  input.UpgradeOnLogin,
		LoginThrottleActive: throttle,
		IPThrottleActive:    throttle && input.EnableIPThrottle,
		ResetTokenTTL:       input.ResetTokenTTL,
		ResetMaxRequests:    input.ResetMaxRequests,
		ResetWindow:         input.ResetWindow,
		AuditEnabled:        input.AuditEnabled,
		MetricsEnabled:      input.MetricsEnabled,
	}
}
