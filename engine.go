package finauth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	internalaudit "github.com/rfol/finauth/internal/audit"
	"github.com/rfol/finauth/internal/flows"
	"github.com/rfol/finauth/internal/limiters"
	"github.com/rfol/finauth/internal/rate"
	"github.com/rfol/finauth/internal/stores"
	"github.com/rfol/finauth/jwt"
	"github.com/rfol/finauth/password"
	"github.com/rfol/finauth/pii"
	"github.com/rfol/finauth/session"
)

// Engine is the authentication core. Build it with New().Build(); it is
// safe for concurrent use.
type Engine struct {
	config   Config
	logger   *slog.Logger
	users    UserProvider
	notifier ResetNotifier

	vault        *password.Vault
	pii          *pii.Protector
	jwtManager   *jwt.Manager
	sessionStore *session.Store
	rateLimiter  *rate.Limiter
	resetStore   *stores.PasswordResetStore
	resetLimiter *limiters.PasswordResetLimiter
	audit        *internalaudit.Dispatcher
	metrics      *Metrics

	flowDeps flows.Deps

	decoyOnce sync.Once
	decoyHash string
}

// Close flushes pending audit events. The Redis client and UserProvider
// belong to the caller and are left open.
func (e *Engine) Close() {
	if e == nil {
		return
	}
	if e.audit != nil {
		e.audit.Close()
	}
}

// AuditDropped reports how many audit events were dropped on a full buffer.
func (e *Engine) AuditDropped() uint64 {
	if e == nil || e.audit == nil {
		return 0
	}
	return e.audit.Dropped()
}

func (e *Engine) MetricsSnapshot() MetricsSnapshot {
	if e == nil || e.metrics == nil {
		return MetricsSnapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}
	return e.metrics.Snapshot()
}

// SessionConfig returns the session settings, for building cookies.
func (e *Engine) SessionConfig() SessionConfig {
	return e.config.Session
}

func (e *Engine) metricInc(id MetricID) {
	if e == nil || e.metrics == nil {
		return
	}
	e.metrics.Inc(id)
}

func (e *Engine) observeLatency(id MetricID, start time.Time) {
	if e == nil || !e.metrics.LatencyEnabled() {
		return
	}
	e.metrics.Observe(id, time.Since(start))
}

// opContext bounds one store call by Store.OperationTimeout unless ctx
// already carries a deadline.
func (e *Engine) opContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || e.config.Store.OperationTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.OperationTimeout)
}

// scanContext is opContext for session keyspace walks, bounded by
// Store.ScanTimeout instead.
func (e *Engine) scanContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if ctx == nil {
		ctx = context.Background()
	}
	if _, ok := ctx.Deadline(); ok || e.config.Store.ScanTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, e.config.Store.ScanTimeout)
}

// storeErr maps a store or provider error onto the engine taxonomy. Misses
// keep their meaning; everything else, timeouts included, becomes
// ErrStoreUnavailable.
func (e *Engine) storeErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, session.ErrSessionNotFound):
		return ErrSessionMissingOrExpired
	case errors.Is(err, rate.ErrRateLimited),
		errors.Is(err, limiters.ErrResetRateLimited):
		return ErrRateLimited
	case errors.Is(err, stores.ErrResetNotFound),
		errors.Is(err, stores.ErrResetRecordCorrupt):
		return ErrInvalidOrExpiredResetToken
	case errors.Is(err, session.ErrEmptyUsername):
		return ErrInvalidInput
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicateUser),
		errors.Is(err, ErrStoreUnavailable):
		return err
	}

	e.metricInc(MetricStoreUnavailable)
	e.logger.Warn("store unavailable", "error", err)
	return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
}

/*
====================================
LOGIN
====================================
*/

// Login authenticates req.Identifier, a username or an email, and returns
// a bearer token or a new session according to req.Mode. An unknown
// identifier and a wrong password both fail with ErrInvalidCredentials.
// Repeated failures for one identifier fail with ErrRateLimited until the
// cooldown passes.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (LoginResult, error) {
	if req.Mode != AuthModeBearer && req.Mode != AuthModeSession {
		return LoginResult{}, ErrInvalidInput
	}

	user, err := flows.RunLogin(ctx, req.Identifier, req.Password, e.flowDeps.Login)
	if err != nil {
		return LoginResult{}, err
	}

	result := LoginResult{
		Username: user.Username,
		Mode:     req.Mode,
	}

	if req.Mode == AuthModeSession {
		id, err := flows.RunCreateSession(ctx, user.Username, e.flowDeps.Session)
		if err != nil {
			return LoginResult{}, err
		}
		result.SessionID = id
		result.ExpiresAt = time.Now().Add(e.sessionStore.TTL())
		return result, nil
	}

	token, expiresAt, err := e.jwtManager.Issue(user.Username)
	if err != nil {
		return LoginResult{}, fmt.Errorf("issue token: %w", err)
	}
	result.AccessToken = token
	result.ExpiresAt = expiresAt
	return result, nil
}

/*
====================================
REQUEST AUTHENTICATION
====================================
*/

// RequireBearer validates a bearer token and loads its user. Any token
// problem, including a subject that no longer exists, is ErrInvalidToken.
func (e *Engine) RequireBearer(ctx context.Context, token string) (Identity, error) {
	user, err := flows.RunRequireBearer(ctx, token, e.flowDeps.Session)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Username: user.Username, Active: user.Active, Mode: AuthModeBearer}, nil
}

// RequireSession resolves a session id to its user. A missing or expired
// session is ErrSessionMissingOrExpired; a live session whose user was
// deleted is ErrNotFound.
func (e *Engine) RequireSession(ctx context.Context, sessionID string) (Identity, error) {
	user, err := flows.RunRequireSession(ctx, sessionID, e.flowDeps.Session)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Username: user.Username, Active: user.Active, Mode: AuthModeSession}, nil
}

// EstablishSession exchanges a valid bearer token for a session id. The
// user must be active.
func (e *Engine) EstablishSession(ctx context.Context, bearer string) (string, error) {
	id, _, err := flows.RunEstablishSession(ctx, bearer, e.flowDeps.Session)
	return id, err
}

// Logout deletes one session. Logging out an unknown session succeeds.
func (e *Engine) Logout(ctx context.Context, sessionID string) error {
	return flows.RunLogout(ctx, sessionID, e.flowDeps.Session)
}

// LogoutAll deletes every session of username and returns how many.
func (e *Engine) LogoutAll(ctx context.Context, username string) (int, error) {
	if username == "" {
		return 0, ErrInvalidInput
	}
	return flows.RunLogoutAll(ctx, username, e.flowDeps.Session)
}

// Ping checks Redis reachability for health probes.
func (e *Engine) Ping(ctx context.Context) (time.Duration, error) {
	ctx, cancel := e.opContext(ctx)
	defer cancel()

	d, err := e.sessionStore.Ping(ctx)
	if err != nil {
		return d, e.storeErr(err)
	}
	return d, nil
}
