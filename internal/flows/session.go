package flows

import (
	"context"
	"errors"
	"strconv"
)

// SessionUser is the flow-local view of an authenticated principal.
type SessionUser struct {
	Username string
	Active   bool
}

type SessionMetrics struct {
	SessionCreated     int
	SessionRejected    int
	SessionInvalidated int
	LogoutAll          int
	BearerRejected     int
}

type SessionEvents struct {
	SessionCreated  string
	SessionRejected string
	Logout          string
	LogoutAll       string
	BearerRejected  string
}

type SessionErrors struct {
	EngineNotReady          error
	InvalidToken            error
	SessionMissingOrExpired error
	UserNotFound            error
	AccountInactive         error
}

// SessionDeps captures bearer and session dependencies. Store functions are
// expected to return Errors.SessionMissingOrExpired on a miss and an
// unavailability error on infrastructure failure.
type SessionDeps struct {
	ValidateBearer       func(token string) (string, error)
	CreateSession        func(ctx context.Context, username string) (string, error)
	ResolveSession       func(ctx context.Context, sessionID string) (string, error)
	InvalidateSession    func(ctx context.Context, sessionID string) error
	InvalidateAllForUser func(ctx context.Context, username string) (int, error)
	GetUser              func(ctx context.Context, username string) (SessionUser, error)

	MetricInc func(int)
	EmitAudit AuditFunc
	Debug     func(string, ...any)

	Metrics SessionMetrics
	Events  SessionEvents
	Errors  SessionErrors
}

func normalizeSessionDeps(deps *SessionDeps) {
	if deps.MetricInc == nil {
		deps.MetricInc = noopMetric
	}
	if deps.EmitAudit == nil {
		deps.EmitAudit = noopAudit
	}
	if deps.Debug == nil {
		deps.Debug = noopLog
	}
}

// RunRequireBearer validates token and loads its subject. A valid token for
// a user that no longer exists is rejected as Errors.InvalidToken.
func RunRequireBearer(ctx context.Context, token string, deps SessionDeps) (SessionUser, error) {
	normalizeSessionDeps(&deps)

	if deps.ValidateBearer == nil || deps.GetUser == nil {
		return SessionUser{}, deps.Errors.EngineNotReady
	}

	username, err := deps.ValidateBearer(token)
	if err != nil {
		deps.MetricInc(deps.Metrics.BearerRejected)
		deps.Debug("bearer token rejected", "error", err)
		return SessionUser{}, deps.Errors.InvalidToken
	}

	user, err := deps.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.MetricInc(deps.Metrics.BearerRejected)
			deps.EmitAudit(ctx, deps.Events.BearerRejected, false, username, deps.Errors.InvalidToken, func() map[string]string {
				return map[string]string{"reason": "unknown_subject"}
			})
			return SessionUser{}, deps.Errors.InvalidToken
		}
		return SessionUser{}, err
	}

	return user, nil
}

// RunRequireSession resolves sessionID to its user. A live session whose
// user was deleted yields Errors.UserNotFound.
func RunRequireSession(ctx context.Context, sessionID string, deps SessionDeps) (SessionUser, error) {
	normalizeSessionDeps(&deps)

	if deps.ResolveSession == nil || deps.GetUser == nil {
		return SessionUser{}, deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		deps.MetricInc(deps.Metrics.SessionRejected)
		return SessionUser{}, deps.Errors.SessionMissingOrExpired
	}

	username, err := deps.ResolveSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, deps.Errors.SessionMissingOrExpired) {
			deps.MetricInc(deps.Metrics.SessionRejected)
			deps.Debug("session rejected")
		}
		return SessionUser{}, err
	}

	user, err := deps.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, deps.Errors.UserNotFound) {
			deps.EmitAudit(ctx, deps.Events.SessionRejected, false, username, err, func() map[string]string {
				return map[string]string{"reason": "user_missing"}
			})
		}
		return SessionUser{}, err
	}

	return user, nil
}

// RunCreateSession opens a session for an already authenticated username.
func RunCreateSession(ctx context.Context, username string, deps SessionDeps) (string, error) {
	normalizeSessionDeps(&deps)

	if deps.CreateSession == nil {
		return "", deps.Errors.EngineNotReady
	}

	id, err := deps.CreateSession(ctx, username)
	if err != nil {
		return "", err
	}

	deps.MetricInc(deps.Metrics.SessionCreated)
	deps.EmitAudit(ctx, deps.Events.SessionCreated, true, username, nil, nil)
	return id, nil
}

// RunEstablishSession exchanges a bearer token for a session. The user must
// be active.
func RunEstablishSession(ctx context.Context, token string, deps SessionDeps) (string, SessionUser, error) {
	user, err := RunRequireBearer(ctx, token, deps)
	if err != nil {
		return "", SessionUser{}, err
	}

	if !user.Active {
		normalizeSessionDeps(&deps)
		deps.EmitAudit(ctx, deps.Events.SessionRejected, false, user.Username, deps.Errors.AccountInactive, func() map[string]string {
			return map[string]string{"reason": "inactive"}
		})
		return "", SessionUser{}, deps.Errors.AccountInactive
	}

	id, err := RunCreateSession(ctx, user.Username, deps)
	if err != nil {
		return "", SessionUser{}, err
	}
	return id, user, nil
}

// RunLogout deletes one session. Unknown ids are not an error.
func RunLogout(ctx context.Context, sessionID string, deps SessionDeps) error {
	normalizeSessionDeps(&deps)

	if deps.InvalidateSession == nil {
		return deps.Errors.EngineNotReady
	}
	if sessionID == "" {
		return nil
	}

	if err := deps.InvalidateSession(ctx, sessionID); err != nil {
		return err
	}

	deps.MetricInc(deps.Metrics.SessionInvalidated)
	deps.EmitAudit(ctx, deps.Events.Logout, true, "", nil, nil)
	return nil
}

// RunLogoutAll deletes every session of username and reports how many.
func RunLogoutAll(ctx context.Context, username string, deps SessionDeps) (int, error) {
	normalizeSessionDeps(&deps)

	if deps.InvalidateAllForUser == nil {
		return 0, deps.Errors.EngineNotReady
	}

	n, err := deps.InvalidateAllForUser(ctx, username)
	if err != nil {
		return 0, err
	}

	deps.MetricInc(deps.Metrics.LogoutAll)
	deps.EmitAudit(ctx, deps.Events.LogoutAll, true, username, nil, func() map[string]string {
		return map[string]string{"sessions": strconv.Itoa(n)}
	})
	return n, nil
}
