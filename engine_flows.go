package finauth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/rfol/finauth/internal"
	"github.com/rfol/finauth/internal/flows"
	"github.com/rfol/finauth/internal/stores"
	"github.com/rfol/finauth/password"
	"github.com/rfol/finauth/pii"
	"github.com/redis/go-redis/v9"
)

// buildFlowDeps binds the flows to this engine's stores. Every store call
// goes through opContext and storeErr, so flows only ever see root
// sentinels.
func (e *Engine) buildFlowDeps() flows.Deps {
	metricInc := func(id int) { e.metricInc(MetricID(id)) }

	return flows.Deps{
		Login: flows.LoginDeps{
			UpgradeHashOnLogin:  e.config.Password.UpgradeOnLogin,
			ClientIPFromContext: clientIPFromContext,
			ThrottleSubject:     e.pii.LookupHash,
			CheckLoginRate: func(ctx context.Context, subject, ip string) error {
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				return e.storeErr(e.rateLimiter.CheckLogin(ctx, subject, ip))
			},
			RecordLoginFailure: func(ctx context.Context, subject, ip string) error {
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				return e.storeErr(e.rateLimiter.RecordFailure(ctx, subject, ip))
			},
			ResetLoginRate: func(ctx context.Context, subject string) error {
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				return e.storeErr(e.rateLimiter.Reset(ctx, subject))
			},
			FindUser: func(ctx context.Context, identifier string) (flows.LoginUser, error) {
				rec, err := e.findByIdentifier(ctx, identifier)
				if err != nil {
					return flows.LoginUser{}, err
				}
				return flows.LoginUser{Username: rec.Username, PasswordHash: rec.PasswordHash, Active: rec.IsActive}, nil
			},
			VerifyPassword:     e.verifyPassword,
			NeedsUpgrade:       e.vault.NeedsUpgrade,
			HashPassword:       e.hashPassword,
			UpdatePasswordHash: e.updatePasswordHash,
			EqualizeTiming:     e.equalizeTiming,
			MetricInc:          metricInc,
			EmitAudit:          e.emitAudit,
			Warn:               e.logger.Warn,
			Metrics: flows.LoginMetrics{
				LoginSuccess:         int(MetricLoginSuccess),
				LoginFailure:         int(MetricLoginFailure),
				LoginRateLimited:     int(MetricLoginRateLimited),
				PasswordHashUpgraded: int(MetricPasswordHashUpgraded),
			},
			Events: flows.LoginEvents{
				LoginSuccess:     auditEventLoginSuccess,
				LoginFailure:     auditEventLoginFailure,
				LoginRateLimited: auditEventLoginRateLimited,
			},
			Errors: flows.LoginErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidCredentials: ErrInvalidCredentials,
				RateLimited:        ErrRateLimited,
				UserNotFound:       ErrNotFound,
			},
		},
		Session: flows.SessionDeps{
			ValidateBearer: e.jwtManager.Validate,
			CreateSession: func(ctx context.Context, username string) (string, error) {
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				id, err := e.sessionStore.Create(ctx, username)
				return id, e.storeErr(err)
			},
			ResolveSession: func(ctx context.Context, sessionID string) (string, error) {
				defer e.observeLatency(MetricSessionResolveLatency, time.Now())
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				username, err := e.sessionStore.Resolve(ctx, sessionID)
				return username, e.storeErr(err)
			},
			InvalidateSession: func(ctx context.Context, sessionID string) error {
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				return e.storeErr(e.sessionStore.Invalidate(ctx, sessionID))
			},
			InvalidateAllForUser: func(ctx context.Context, username string) (int, error) {
				ctx, cancel := e.scanContext(ctx)
				defer cancel()
				n, err := e.sessionStore.InvalidateAllForUser(ctx, username)
				return n, e.storeErr(err)
			},
			GetUser: func(ctx context.Context, username string) (flows.SessionUser, error) {
				rec, err := e.getUser(ctx, ByUsername(username))
				if err != nil {
					return flows.SessionUser{}, err
				}
				return flows.SessionUser{Username: rec.Username, Active: rec.IsActive}, nil
			},
			MetricInc: metricInc,
			EmitAudit: e.emitAudit,
			Debug:     e.logger.Debug,
			Metrics: flows.SessionMetrics{
				SessionCreated:     int(MetricSessionCreated),
				SessionRejected:    int(MetricSessionRejected),
				SessionInvalidated: int(MetricSessionInvalidated),
				LogoutAll:          int(MetricLogoutAll),
				BearerRejected:     int(MetricBearerRejected),
			},
			Events: flows.SessionEvents{
				SessionCreated:  auditEventSessionCreated,
				SessionRejected: auditEventSessionRejected,
				Logout:          auditEventLogoutSession,
				LogoutAll:       auditEventLogoutAll,
				BearerRejected:  auditEventBearerRejected,
			},
			Errors: flows.SessionErrors{
				EngineNotReady:          ErrEngineNotReady,
				InvalidToken:            ErrInvalidToken,
				SessionMissingOrExpired: ErrSessionMissingOrExpired,
				UserNotFound:            ErrNotFound,
				AccountInactive:         ErrAccountInactive,
			},
		},
		Account: flows.AccountDeps{
			CheckStrength:  password.CheckStrength,
			ValidateEmail:  validateEmail,
			NormalizeEmail: pii.NormalizeEmail,
			LookupHash:     e.pii.LookupHash,
			EncryptEmail:   e.pii.EncryptEmail,
			HashPassword:   e.hashPassword,
			VerifyPassword: e.verifyPassword,
			CreateUser: func(ctx context.Context, account flows.NewAccount) (flows.AccountRecord, error) {
				ctx, cancel := e.opContext(ctx)
				defer cancel()
				rec, err := e.users.CreateUser(ctx, NewUser{
					Username:       account.Username,
					FirstName:      account.FirstName,
					LastName:       account.LastName,
					PasswordHash:   account.PasswordHash,
					HashedEmail:    account.HashedEmail,
					EncryptedEmail: account.EncryptedEmail,
				})
				if err != nil {
					return flows.AccountRecord{}, e.storeErr(err)
				}
				return flows.AccountRecord{
					ID:             rec.ID,
					UUID:           rec.UUID,
					Username:       rec.Username,
					FirstName:      rec.FirstName,
					LastName:       rec.LastName,
					EncryptedEmail: rec.EncryptedEmail,
					Active:         rec.IsActive,
					CreatedAt:      rec.CreatedAt,
				}, nil
			},
			GetPasswordHash: func(ctx context.Context, username string) (string, error) {
				rec, err := e.getUser(ctx, ByUsername(username))
				if err != nil {
					return "", err
				}
				return rec.PasswordHash, nil
			},
			UpdatePasswordHash: e.updatePasswordHash,
			MetricInc:          metricInc,
			EmitAudit:          e.emitAudit,
			Warn:               e.logger.Warn,
			Metrics: flows.AccountMetrics{
				AccountCreationSuccess:   int(MetricAccountCreationSuccess),
				AccountCreationDuplicate: int(MetricAccountCreationDuplicate),
				PasswordChangeSuccess:    int(MetricPasswordChangeSuccess),
				PasswordChangeInvalidOld: int(MetricPasswordChangeInvalidOld),
			},
			Events: flows.AccountEvents{
				AccountCreationSuccess: auditEventAccountCreationSuccess,
				AccountCreationFailure: auditEventAccountCreationFailure,
				PasswordChangeSuccess:  auditEventPasswordChangeSuccess,
				PasswordChangeFailure:  auditEventPasswordChangeFailure,
			},
			Errors: flows.AccountErrors{
				EngineNotReady:     ErrEngineNotReady,
				InvalidInput:       ErrInvalidInput,
				PasswordMismatch:   ErrPasswordMismatch,
				PasswordReuse:      ErrPasswordReuse,
				InvalidCredentials: ErrInvalidCredentials,
				DuplicateUser:      ErrDuplicateUser,
				UserNotFound:       ErrNotFound,
			},
		},
		PasswordReset: e.buildPasswordResetDeps(metricInc),
	}
}

func (e *Engine) buildPasswordResetDeps(metricInc func(int)) flows.PasswordResetDeps {
	return flows.PasswordResetDeps{
		GenericMessage: e.config.PasswordReset.GenericMessage,
		TTL:            e.resetStore.TTL(),
		Now:            time.Now,
		NormalizeEmail: pii.NormalizeEmail,
		LookupHash:     e.pii.LookupHash,
		DecryptEmail:   e.pii.DecryptEmail,
		NewToken:       internal.NewResetToken,
		ValidToken:     internal.ValidResetToken,
		ConsumeRate: func(ctx context.Context, subject string) error {
			ctx, cancel := e.opContext(ctx)
			defer cancel()
			return e.storeErr(e.resetLimiter.Consume(ctx, subject))
		},
		FindUserByHashedEmail: func(ctx context.Context, hashedEmail string) (flows.ResetUser, error) {
			rec, err := e.getUser(ctx, ByHashedEmail(hashedEmail))
			if err != nil {
				return flows.ResetUser{}, err
			}
			return flows.ResetUser{Username: rec.Username, EncryptedEmail: rec.EncryptedEmail}, nil
		},
		GetUser: func(ctx context.Context, username string) (flows.ResetUser, error) {
			rec, err := e.getUser(ctx, ByUsername(username))
			if err != nil {
				return flows.ResetUser{}, err
			}
			return flows.ResetUser{Username: rec.Username, EncryptedEmail: rec.EncryptedEmail}, nil
		},
		IssueToken: func(ctx context.Context, token string, record flows.ResetRecord) error {
			ctx, cancel := e.opContext(ctx)
			defer cancel()
			err := e.resetStore.Issue(ctx, token, stores.PasswordResetRecord{
				Username:  record.Username,
				Email:     record.EncryptedEmail,
				CreatedAt: record.CreatedAt,
			}, nil)
			return e.storeErr(err)
		},
		GetRecord: func(ctx context.Context, token string) (flows.ResetRecord, error) {
			ctx, cancel := e.opContext(ctx)
			defer cancel()
			rec, err := e.resetStore.Get(ctx, token)
			if err != nil {
				return flows.ResetRecord{}, e.storeErr(err)
			}
			return flows.ResetRecord{Username: rec.Username, EncryptedEmail: rec.Email, CreatedAt: rec.CreatedAt}, nil
		},
		RedeemToken: func(ctx context.Context, token, username string) (int, error) {
			keys, err := e.sessionKeysForUser(ctx, username)
			if err != nil {
				return 0, err
			}

			ctx, cancel := e.opContext(ctx)
			defer cancel()
			_, err = e.resetStore.Redeem(ctx, token, func(pipe redis.Pipeliner) error {
				if len(keys) > 0 {
					pipe.Del(ctx, keys...)
				}
				return nil
			})
			if err != nil {
				return 0, e.storeErr(err)
			}
			return len(keys), nil
		},
		CheckStrength:      password.CheckStrength,
		HashPassword:       e.hashPassword,
		UpdatePasswordHash: e.updatePasswordHash,
		Notify:             e.notifyReset,
		MetricInc:          metricInc,
		EmitAudit:          e.emitAudit,
		Warn:               e.logger.Warn,
		Metrics: flows.PasswordResetMetrics{
			PasswordResetRequest:        int(MetricPasswordResetRequest),
			PasswordResetRateLimited:    int(MetricPasswordResetRateLimited),
			PasswordResetConfirmSuccess: int(MetricPasswordResetConfirmSuccess),
			PasswordResetConfirmFailure: int(MetricPasswordResetConfirmFailure),
		},
		Events: flows.PasswordResetEvents{
			PasswordResetRequest:     auditEventPasswordResetRequest,
			PasswordResetRateLimited: auditEventPasswordResetRateLimited,
			PasswordResetConfirm:     auditEventPasswordResetConfirm,
		},
		Errors: flows.PasswordResetErrors{
			EngineNotReady:   ErrEngineNotReady,
			InvalidInput:     ErrInvalidInput,
			InvalidOrExpired: ErrInvalidOrExpiredResetToken,
			RateLimited:      ErrRateLimited,
			PasswordMismatch: ErrPasswordMismatch,
			UserNotFound:     ErrNotFound,
		},
	}
}

/*
====================================
SHARED HELPERS
====================================
*/

func (e *Engine) getUser(ctx context.Context, q UserQuery) (UserRecord, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	rec, err := e.users.GetUser(ctx, q)
	if err != nil {
		return UserRecord{}, e.storeErr(err)
	}
	return rec, nil
}

// findByIdentifier tries the identifier as a username first and, when it
// looks like an email, as an email.
func (e *Engine) findByIdentifier(ctx context.Context, identifier string) (UserRecord, error) {
	rec, err := e.getUser(ctx, ByUsername(strings.ToLower(identifier)))
	if err == nil || !errors.Is(err, ErrNotFound) {
		return rec, err
	}
	if !strings.Contains(identifier, "@") {
		return UserRecord{}, err
	}
	return e.getUser(ctx, ByHashedEmail(e.pii.LookupHash(identifier)))
}

// sessionKeysForUser walks the session keyspace under its own budget, so a
// large keyspace does not eat into the transaction that follows.
func (e *Engine) sessionKeysForUser(ctx context.Context, username string) ([]string, error) {
	ctx, cancel := e.scanContext(ctx)
	defer cancel()
	keys, err := e.sessionStore.KeysForUser(ctx, username)
	if err != nil {
		return nil, e.storeErr(err)
	}
	return keys, nil
}

func (e *Engine) updatePasswordHash(ctx context.Context, username, hash string) error {
	ctx, cancel := e.opContext(ctx)
	defer cancel()
	return e.storeErr(e.users.UpdatePasswordHash(ctx, username, hash))
}

func (e *Engine) hashPassword(ctx context.Context, plaintext string) (string, error) {
	defer e.observeLatency(MetricHashLatency, time.Now())
	hash, err := e.vault.Hash(ctx, plaintext)
	if err != nil {
		if errors.Is(err, password.ErrPasswordTooLong) || errors.Is(err, password.ErrEmptyPassword) {
			return "", err
		}
		return "", fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

func (e *Engine) verifyPassword(ctx context.Context, plaintext, hash string) (bool, error) {
	defer e.observeLatency(MetricHashLatency, time.Now())
	return e.vault.Verify(ctx, plaintext, hash)
}

// equalizeTiming runs one verification against a throwaway hash so that an
// unknown identifier costs about as much as a wrong password.
func (e *Engine) equalizeTiming(ctx context.Context, plaintext string) {
	e.decoyOnce.Do(func() {
		token, err := internal.NewResetToken()
		if err != nil {
			return
		}
		hash, err := e.vault.Hash(context.Background(), token)
		if err != nil {
			return
		}
		e.decoyHash = hash
	})
	if e.decoyHash == "" {
		return
	}
	_, _ = e.vault.Verify(ctx, plaintext, e.decoyHash)
}

func (e *Engine) notifyReset(ctx context.Context, notice flows.ResetNotice) error {
	if e.notifier == nil {
		e.logger.Info("password reset token issued; no notifier configured", "username", notice.Username)
		return nil
	}
	return e.notifier.NotifyPasswordReset(ctx, ResetNotice{
		Username:  notice.Username,
		Email:     notice.Email,
		Token:     notice.Token,
		ExpiresAt: notice.ExpiresAt,
	})
}

// validateEmail accepts a bare address with no display name.
func validateEmail(email string) error {
	if len(email) > 254 {
		return ErrInvalidInput
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return ErrInvalidInput
	}
	return nil
}
