package flows

import (
	"context"
	"errors"
	"strings"
)

// LoginUser is the flow-local view of a stored credential.
type LoginUser struct {
	Username     string
	PasswordHash string
	Active       bool
}

// LoginMetrics carries metric IDs needed by the login flow.
type LoginMetrics struct {
	LoginSuccess         int
	LoginFailure         int
	LoginRateLimited     int
	PasswordHashUpgraded int
}

// LoginEvents carries audit event names used by the login flow.
type LoginEvents struct {
	LoginSuccess     string
	LoginFailure     string
	LoginRateLimited string
}

// LoginErrors carries host-level sentinel errors used by the login flow.
type LoginErrors struct {
	EngineNotReady     error
	InvalidCredentials error
	RateLimited        error
	UserNotFound       error
}

// LoginDeps captures login dependencies.
type LoginDeps struct {
	UpgradeHashOnLogin bool

	ClientIPFromContext func(context.Context) string

	// ThrottleSubject maps an identifier to the key-safe throttle subject.
	ThrottleSubject    func(identifier string) string
	CheckLoginRate     func(ctx context.Context, subject, ip string) error
	RecordLoginFailure func(ctx context.Context, subject, ip string) error
	ResetLoginRate     func(ctx context.Context, subject string) error

	FindUser           func(ctx context.Context, identifier string) (LoginUser, error)
	VerifyPassword     func(ctx context.Context, plaintext, hash string) (bool, error)
	NeedsUpgrade       func(hash string) bool
	HashPassword       func(ctx context.Context, plaintext string) (string, error)
	UpdatePasswordHash func(ctx context.Context, username, hash string) error
	// EqualizeTiming burns one hash verification for unknown identifiers.
	EqualizeTiming func(ctx context.Context, plaintext string)

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics LoginMetrics
	Events  LoginEvents
	Errors  LoginErrors
}

func normalizeLoginDeps(deps *LoginDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopLog
	}
	if deps.ClientIPFromContext == nil {
		deps.ClientIPFromContext = func(context.Context) string { return "" }
	}
	if deps.ThrottleSubject == nil {
		deps.ThrottleSubject = func(identifier string) string { return identifier }
	}
	if deps.EqualizeTiming == nil {
		deps.EqualizeTiming = func(context.Context, string) {}
	}
}

// RunLogin verifies identifier and password and returns the authenticated
// user. Unknown identifiers and wrong passwords both yield
// Errors.InvalidCredentials. Store failures surface unchanged so callers
// can tell an outage from a rejection.
func RunLogin(ctx context.Context, identifier, password string, deps LoginDeps) (LoginUser, error) {
	normalizeLoginDeps(&deps)

	if deps.FindUser == nil || deps.VerifyPassword == nil {
		return LoginUser{}, deps.Errors.EngineNotReady
	}

	identifier = strings.TrimSpace(identifier)
	if identifier == "" || password == "" {
		deps.MetricInc(deps.Metrics.LoginFailure)
		deps.EmitAudit(ctx, deps.Events.LoginFailure, false, "", deps.Errors.InvalidCredentials, func() map[string]string {
			return map[string]string{"reason": "empty_credentials"}
		})
		return LoginUser{}, deps.Errors.InvalidCredentials
	}

	ip := deps.ClientIPFromContext(ctx)
	subject := deps.ThrottleSubject(identifier)

	if deps.CheckLoginRate != nil {
		if err := deps.CheckLoginRate(ctx, subject, ip); err != nil {
			if errors.Is(err, deps.Errors.RateLimited) {
				deps.MetricInc(deps.Metrics.LoginRateLimited)
				deps.EmitAudit(ctx, deps.Events.LoginRateLimited, false, "", err, nil)
			}
			return LoginUser{}, err
		}
	}

	user, err := deps.FindUser(ctx, identifier)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			return LoginUser{}, err
		}
		deps.EqualizeTiming(ctx, password)
		return LoginUser{}, loginFailed(ctx, subject, ip, "", "unknown_identifier", deps)
	}

	ok, err := deps.VerifyPassword(ctx, password, user.PasswordHash)
	if err != nil {
		if isContextErr(err) {
			return LoginUser{}, err
		}
		deps.Warn("stored password hash unusable", "username", user.Username, "error", err)
		return LoginUser{}, loginFailed(ctx, subject, ip, user.Username, "unusable_hash", deps)
	}
	if !ok {
		return LoginUser{}, loginFailed(ctx, subject, ip, user.Username, "wrong_password", deps)
	}

	if deps.ResetLoginRate != nil {
		if err := deps.ResetLoginRate(ctx, subject); err != nil {
			deps.Warn("login throttle reset failed", "username", user.Username, "error", err)
		}
	}

	if deps.UpgradeHashOnLogin && deps.NeedsUpgrade != nil && deps.NeedsUpgrade(user.PasswordHash) {
		upgradeHash(ctx, user.Username, password, deps)
	}

	deps.MetricInc(deps.Metrics.LoginSuccess)
	deps.EmitAudit(ctx, deps.Events.LoginSuccess, true, user.Username, nil, nil)

	return user, nil
}

func loginFailed(ctx context.Context, subject, ip, username, reason string, deps LoginDeps) error {
	if deps.RecordLoginFailure != nil {
		if err := deps.RecordLoginFailure(ctx, subject, ip); err != nil {
			deps.Warn("login throttle increment failed", "error", err)
		}
	}
	deps.MetricInc(deps.Metrics.LoginFailure)
	deps.EmitAudit(ctx, deps.Events.LoginFailure, false, username, deps.Errors.InvalidCredentials, func() map[string]string {
		return map[string]string{"reason": reason}
	})
	return deps.Errors.InvalidCredentials
}

// upgradeHash rehashes under the current vault parameters. Failure never
// fails the login.
func upgradeHash(ctx context.Context, username, password string, deps LoginDeps) {
	if deps.HashPassword == nil || deps.UpdatePasswordHash == nil {
		return
	}
	hash, err := deps.HashPassword(ctx, password)
	if err != nil {
		deps.Warn("password rehash failed", "username", username, "error", err)
		return
	}
	if err := deps.UpdatePasswordHash(ctx, username, hash); err != nil {
		deps.Warn("password rehash persist failed", "username", username, "error", err)
		return
	}
	deps.MetricInc(deps.Metrics.PasswordHashUpgraded)
}
