package finauth

import "github.com/rfol/finauth/internal/security"

// SecurityReport summarizes the engine's effective security settings. It
// carries no key material.
type SecurityReport = security.Report

// HashReport is the password hashing part of a SecurityReport.
type HashReport = security.HashReport

func (e *Engine) SecurityReport() SecurityReport {
	if e == nil {
		return SecurityReport{}
	}
	c := e.config
	return security.BuildReport(security.ReportInput{
		AccessTTL:    c.JWT.AccessTTL,
		SessionTTL:   c.Session.TTL,
		CookieSecure: c.Session.CookieSecure,
		Hash: security.HashReport{
			Algorithm:   c.Password.Algorithm,
			BcryptCost:  c.Password.BcryptCost,
			Memory:      c.Password.Argon2Memory,
			Time:        c.Password.Argon2Time,
			Parallelism: c.Password.Argon2Parallelism,
		},
		UpgradeOnLogin:   c.Password.UpgradeOnLogin,
		MaxLoginAttempts: c.RateLimit.MaxLoginAttempts,
		LoginCooldown:    c.RateLimit.Cooldown,
		EnableIPThrottle: c.RateLimit.EnableIPThrottle,
		ResetTokenTTL:    c.PasswordReset.TokenTTL,
		ResetMaxRequests: c.PasswordReset.MaxRequests,
		ResetWindow:      c.PasswordReset.RateWindow,
		AuditEnabled:     c.Audit.Enabled,
		MetricsEnabled:   c.Metrics.Enabled,
	})
}
