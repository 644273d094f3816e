package flows

import (
	"context"
	"errors"
	"strings"
	"time"
)

// RegisterInput is the raw registration request.
type RegisterInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// NewAccount is what the flow hands to persistence. It never holds the
// plaintext password or email.
type NewAccount struct {
	Username       string
	FirstName      string
	LastName       string
	PasswordHash   string
	HashedEmail    string
	EncryptedEmail string
}

// AccountRecord is the persisted account as the flow sees it.
type AccountRecord struct {
	ID             int64
	UUID           string
	Username       string
	FirstName      string
	LastName       string
	EncryptedEmail string
	Active         bool
	CreatedAt      time.Time
}

type AccountMetrics struct {
	AccountCreationSuccess   int
	AccountCreationDuplicate int
	PasswordChangeSuccess    int
	PasswordChangeInvalidOld int
}

type AccountEvents struct {
	AccountCreationSuccess string
	AccountCreationFailure string
	PasswordChangeSuccess  string
	PasswordChangeFailure  string
}

type AccountErrors struct {
	EngineNotReady     error
	InvalidInput       error
	PasswordMismatch   error
	PasswordReuse      error
	InvalidCredentials error
	DuplicateUser      error
	UserNotFound       error
}

type AccountDeps struct {
	CheckStrength  func(string) error
	ValidateEmail  func(string) error
	NormalizeEmail func(string) string
	LookupHash     func(string) string
	EncryptEmail   func(string) (string, error)

	HashPassword       func(ctx context.Context, plaintext string) (string, error)
	VerifyPassword     func(ctx context.Context, plaintext, hash string) (bool, error)
	CreateUser         func(ctx context.Context, account NewAccount) (AccountRecord, error)
	GetPasswordHash    func(ctx context.Context, username string) (string, error)
	UpdatePasswordHash func(ctx context.Context, username, hash string) error

	MetricInc func(int)
	EmitAudit AuditFunc
	Warn      func(string, ...any)

	Metrics AccountMetrics
	Events  AccountEvents
	Errors  AccountErrors
}

func normalizeAccountDeps(deps *AccountDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Warn == nil {
		deps.Warn = noopLog
	}
	if deps.NormalizeEmail == nil {
		deps.NormalizeEmail = func(s string) string { return strings.ToLower(strings.TrimSpace(s)) }
	}
}

// NormalizeName trims and lowercases a username or personal name and
// rejects empty values and embedded whitespace.
func NormalizeName(raw string) (string, bool) {
	v := strings.ToLower(strings.TrimSpace(raw))
	if v == "" || strings.ContainsAny(v, " \t\r\n") {
		return "", false
	}
	return v, true
}

// RunRegister validates the request, protects the email, hashes the
// password and persists the account.
func RunRegister(ctx context.Context, in RegisterInput, deps AccountDeps) (AccountRecord, error) {
	normalizeAccountDeps(&deps)

	if deps.CheckStrength == nil || deps.LookupHash == nil || deps.EncryptEmail == nil ||
		deps.HashPassword == nil || deps.CreateUser == nil {
		return AccountRecord{}, deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) (AccountRecord, error) {
		deps.EmitAudit(ctx, deps.Events.AccountCreationFailure, false, "", err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return AccountRecord{}, err
	}

	username, ok := NormalizeName(in.Username)
	if !ok {
		return fail(deps.Errors.InvalidInput, "invalid_username")
	}
	first, ok := NormalizeName(in.FirstName)
	if !ok {
		return fail(deps.Errors.InvalidInput, "invalid_first_name")
	}
	last, ok := NormalizeName(in.LastName)
	if !ok {
		return fail(deps.Errors.InvalidInput, "invalid_last_name")
	}

	email := deps.NormalizeEmail(in.Email)
	if deps.ValidateEmail != nil {
		if err := deps.ValidateEmail(email); err != nil {
			return fail(deps.Errors.InvalidInput, "invalid_email")
		}
	}

	if err := deps.CheckStrength(in.Password); err != nil {
		return fail(err, "weak_password")
	}

	encrypted, err := deps.EncryptEmail(email)
	if err != nil {
		return AccountRecord{}, err
	}
	hash, err := deps.HashPassword(ctx, in.Password)
	if err != nil {
		return AccountRecord{}, err
	}

	rec, err := deps.CreateUser(ctx, NewAccount{
		Username:       username,
		FirstName:      first,
		LastName:       last,
		PasswordHash:   hash,
		HashedEmail:    deps.LookupHash(email),
		EncryptedEmail: encrypted,
	})
	if err != nil {
		if errors.Is(err, deps.Errors.DuplicateUser) {
			deps.MetricInc(deps.Metrics.AccountCreationDuplicate)
			return fail(err, "duplicate")
		}
		return AccountRecord{}, err
	}

	deps.MetricInc(deps.Metrics.AccountCreationSuccess)
	deps.EmitAudit(ctx, deps.Events.AccountCreationSuccess, true, rec.Username, nil, nil)
	return rec, nil
}

// RunChangePassword replaces username's password after verifying current.
func RunChangePassword(ctx context.Context, username, current, next, confirm string, deps AccountDeps) error {
	normalizeAccountDeps(&deps)

	if deps.CheckStrength == nil || deps.HashPassword == nil || deps.VerifyPassword == nil ||
		deps.GetPasswordHash == nil || deps.UpdatePasswordHash == nil {
		return deps.Errors.EngineNotReady
	}

	fail := func(err error, reason string) error {
		deps.EmitAudit(ctx, deps.Events.PasswordChangeFailure, false, username, err, func() map[string]string {
			return map[string]string{"reason": reason}
		})
		return err
	}

	if next != confirm {
		return fail(deps.Errors.PasswordMismatch, "confirm_mismatch")
	}
	if next == current {
		return fail(deps.Errors.PasswordReuse, "reuse")
	}
	if err := deps.CheckStrength(next); err != nil {
		return fail(err, "weak_password")
	}

	stored, err := deps.GetPasswordHash(ctx, username)
	if err != nil {
		return err
	}

	ok, err := deps.VerifyPassword(ctx, current, stored)
	if err != nil && isContextErr(err) {
		return err
	}
	if err != nil || !ok {
		if err != nil {
			deps.Warn("stored password hash unusable", "username", username, "error", err)
		}
		deps.MetricInc(deps.Metrics.PasswordChangeInvalidOld)
		return fail(deps.Errors.InvalidCredentials, "wrong_current_password")
	}

	hash, err := deps.HashPassword(ctx, next)
	if err != nil {
		return err
	}
	if err := deps.UpdatePasswordHash(ctx, username, hash); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.PasswordChangeSuccess)
	deps.EmitAudit(ctx, deps.Events.PasswordChangeSuccess, true, username, nil, nil)
	return nil
}
