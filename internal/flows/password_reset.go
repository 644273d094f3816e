package flows

import (
	"context"
	"errors"
	"strconv"
	"time"
)

// ResetUser is the flow-local user view for password reset.
type ResetUser struct {
	Username       string
	EncryptedEmail string
}

// ResetRecord is the stored state behind a reset token.
type ResetRecord struct {
	Username       string
	EncryptedEmail string
	CreatedAt      time.Time
}

// ResetTokenInfo is what a valid token reveals to its holder.
type ResetTokenInfo struct {
	Email     string
	CreatedAt time.Time
}

// ResetNotice is handed to the delivery hook after a token is issued.
type ResetNotice struct {
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

type PasswordResetMetrics struct {
	PasswordResetRequest        int
	PasswordResetRateLimited    int
	PasswordResetConfirmSuccess int
	PasswordResetConfirmFailure int
}

type PasswordResetEvents struct {
	PasswordResetRequest     string
	PasswordResetRateLimited string
	PasswordResetConfirm     string
}

type PasswordResetErrors struct {
	EngineNotReady   error
	InvalidInput     error
	InvalidOrExpired error
	RateLimited      error
	PasswordMismatch error
	UserNotFound     error
}

// PasswordResetDeps captures reset dependencies. Store functions return
// Errors.InvalidOrExpired for unknown tokens and Errors.UserNotFound for
// unknown users; anything else is treated as an infrastructure failure.
type PasswordResetDeps struct {
	GenericMessage string
	TTL            time.Duration
	Now            func() time.Time

	NormalizeEmail func(string) string
	LookupHash     func(string) string
	DecryptEmail   func(string) (string, error)

	NewToken   func() (string, error)
	ValidToken func(string) bool

	// ConsumeRate counts one request against subject's window, or returns
	// Errors.RateLimited when the window is full. It must check and count
	// atomically.
	ConsumeRate func(ctx context.Context, subject string) error

	FindUserByHashedEmail func(ctx context.Context, hashedEmail string) (ResetUser, error)
	GetUser               func(ctx context.Context, username string) (ResetUser, error)

	// IssueToken stores record under token and deletes the user's prior
	// token in one transaction.
	IssueToken func(ctx context.Context, token string, record ResetRecord) error
	GetRecord  func(ctx context.Context, token string) (ResetRecord, error)
	// RedeemToken deletes the token, the user's index, any other live token
	// and every session of username in one transaction.
	RedeemToken func(ctx context.Context, token, username string) (int, error)

	CheckStrength      func(string) error
	HashPassword       func(ctx context.Context, plaintext string) (string, error)
	UpdatePasswordHash func(ctx context.Context, username, hash string) error

	Notify func(ctx context.Context, notice ResetNotice) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics PasswordResetMetrics
	Events  PasswordResetEvents
	Errors  PasswordResetErrors
}

func normalizePasswordResetDeps(deps *PasswordResetDeps) {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopLog
	}
	if deps.ValidToken == nil {
		deps.ValidToken = func(s string) bool { return s != "" }
	}
}

// RunRequestPasswordReset issues a reset token when email belongs to an
// account. The returned message is identical whether or not it does.
func RunRequestPasswordReset(ctx context.Context, email string, deps PasswordResetDeps) (string, error) {
	normalizePasswordResetDeps(&deps)

	if deps.NormalizeEmail == nil || deps.LookupHash == nil || deps.NewToken == nil ||
		deps.ConsumeRate == nil || deps.FindUserByHashedEmail == nil ||
		deps.IssueToken == nil {
		return "", deps.Errors.EngineNotReady
	}

	email = deps.NormalizeEmail(email)
	if email == "" {
		return "", deps.Errors.InvalidInput
	}
	subject := deps.LookupHash(email)

	if err := deps.ConsumeRate(ctx, subject); err != nil {
		if errors.Is(err, deps.Errors.RateLimited) {
			deps.MetricInc(deps.Metrics.PasswordResetRateLimited)
			deps.EmitAudit(ctx, deps.Events.PasswordResetRateLimited, false, "", err, nil)
		}
		return "", err
	}

	user, err := deps.FindUserByHashedEmail(ctx, subject)
	if err != nil {
		if !errors.Is(err, deps.Errors.UserNotFound) {
			return "", err
		}
		deps.MetricInc(deps.Metrics.PasswordResetRequest)
		deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, "", nil, func() map[string]string {
			return map[string]string{"enumeration_safe": "true"}
		})
		return deps.GenericMessage, nil
	}

	token, err := deps.NewToken()
	if err != nil {
		return "", err
	}

	now := deps.Now().UTC()
	record := ResetRecord{
		Username:       user.Username,
		EncryptedEmail: user.EncryptedEmail,
		CreatedAt:      now,
	}
	if err := deps.IssueToken(ctx, token, record); err != nil {
		return "", err
	}

	deps.MetricInc(deps.Metrics.PasswordResetRequest)
	deps.EmitAudit(ctx, deps.Events.PasswordResetRequest, true, user.Username, nil, nil)

	if deps.Notify != nil {
		notice := ResetNotice{
			Username:  user.Username,
			Email:     email,
			Token:     token,
			ExpiresAt: now.Add(deps.TTL),
		}
		if err := deps.Notify(ctx, notice); err != nil {
			deps.Warn("password reset notification failed", "username", user.Username, "error", err)
		}
	}

	return deps.GenericMessage, nil
}

// RunValidatePasswordResetToken reports the email and creation time behind
// a live token without consuming it.
func RunValidatePasswordResetToken(ctx context.Context, token string, deps PasswordResetDeps) (ResetTokenInfo, error) {
	normalizePasswordResetDeps(&deps)

	if deps.GetRecord == nil || deps.DecryptEmail == nil {
		return ResetTokenInfo{}, deps.Errors.EngineNotReady
	}
	if !deps.ValidToken(token) {
		return ResetTokenInfo{}, deps.Errors.InvalidOrExpired
	}

	rec, err := deps.GetRecord(ctx, token)
	if err != nil {
		return ResetTokenInfo{}, err
	}

	email, err := deps.DecryptEmail(rec.EncryptedEmail)
	if err != nil {
		// A record we cannot read is as good as no record.
		deps.Warn("reset record email undecryptable", "username", rec.Username, "error", err)
		return ResetTokenInfo{}, deps.Errors.InvalidOrExpired
	}

	return ResetTokenInfo{Email: email, CreatedAt: rec.CreatedAt}, nil
}

// RunResetPassword sets a new password using token, then revokes the token
// and every session of the user. When revocation fails on an infrastructure
// error the password has already changed but the token stays live, so the
// caller can repeat the same reset to finish it.
func RunResetPassword(ctx context.Context, token, newPassword, confirm string, deps PasswordResetDeps) error {
	normalizePasswordResetDeps(&deps)

	if deps.GetRecord == nil || deps.GetUser == nil || deps.CheckStrength == nil ||
		deps.HashPassword == nil || deps.UpdatePasswordHash == nil || deps.RedeemToken == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(username string, err error, reason string) error {
		deps.MetricInc(deps.Metrics.PasswordResetConfirmFailure)
		deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, false, username, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if !deps.ValidToken(token) {
		return fail("", deps.Errors.InvalidOrExpired, "malformed_token")
	}
	if newPassword != confirm {
		return fail("", deps.Errors.PasswordMismatch, "confirm_mismatch")
	}
	if err := deps.CheckStrength(newPassword); err != nil {
		return fail("", err, "weak_password")
	}

	rec, err := deps.GetRecord(ctx, token)
	if err != nil {
		if errors.Is(err, deps.Errors.InvalidOrExpired) {
			return fail("", err, "unknown_token")
		}
		return err
	}

	user, err := deps.GetUser(ctx, rec.Username)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			return fail(rec.Username, err, "user_missing")
		}
		return err
	}

	hash, err := deps.HashPassword(ctx, newPassword)
	if err != nil {
		return err
	}
	if err := deps.UpdatePasswordHash(ctx, user.Username, hash); err != nil {
		return err
	}

	n, err := deps.RedeemToken(ctx, token, user.Username)
	if err != nil {
		// The password already changed; an already-consumed token only means
		// a concurrent reset got there first.
		if errors.Is(err, deps.Errors.InvalidOrExpired) {
			return fail(user.Username, err, "token_consumed")
		}
		return err
	}

	deps.MetricInc(deps.Metrics.PasswordResetConfirmSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordResetConfirm, true, user.Username, nil, func() map[string]string {
		return map[string]string{"sessions_revoked": strconv.Itoa(n)}
	})
	return nil
}
