// Package httpapi serves the finauth engine over HTTP with gin.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rfol/finauth"
)

// Auth is the engine surface the handlers call.
type Auth interface {
	Register(ctx context.Context, req finauth.RegisterRequest) (finauth.Profile, error)
	Profile(ctx context.Context, username string) (finauth.Profile, error)
	ChangePassword(ctx context.Context, username, current, next, confirm string) error

	Login(ctx context.Context, req finauth.LoginRequest) (finauth.LoginResult, error)
	RequireBearer(ctx context.Context, token string) (finauth.Identity, error)
	RequireSession(ctx context.Context, sessionID string) (finauth.Identity, error)
	EstablishSession(ctx context.Context, bearer string) (string, error)
	Logout(ctx context.Context, sessionID string) error
	LogoutAll(ctx context.Context, username string) (int, error)
	SessionConfig() finauth.SessionConfig

	RequestPasswordReset(ctx context.Context, email string) (string, error)
	ValidatePasswordResetToken(ctx context.Context, token string) (finauth.ResetTokenInfo, error)
	ResetPassword(ctx context.Context, token, newPassword, confirm string) error

	Ping(ctx context.Context) (time.Duration, error)
}

var _ Auth = (*finauth.Engine)(nil)

type Options struct {
	Logger *slog.Logger
	// Limiter throttles credential endpoints per client IP. Nil disables it.
	Limiter        IPLimiter
	PerIPPerMinute int
	// Metrics is mounted at GET /metrics when set.
	Metrics http.Handler
}

type handlers struct {
	auth   Auth
	logger *slog.Logger
}

// NewRouter builds the route table.
func NewRouter(auth Auth, opts Options) *gin.Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	h := &handlers{auth: auth, logger: logger}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestContext())
	r.Use(accessLog(logger))

	throttle := func(c *gin.Context) { c.Next() }
	if opts.Limiter != nil && opts.PerIPPerMinute > 0 {
		throttle = throttleIP(opts.Limiter, opts.PerIPPerMinute, logger)
	}

	r.GET("/healthz", h.health)
	if opts.Metrics != nil {
		r.GET("/metrics", gin.WrapH(opts.Metrics))
	}

	r.POST("/users", throttle, h.createUser)
	r.GET("/users/me", requireBearer(auth), h.me)
	r.PUT("/users/me/password", requireSession(auth), h.changePassword)

	r.POST("/auth/token", throttle, h.token)
	r.POST("/auth/forgot-password", throttle, h.forgotPassword)
	r.GET("/auth/validate-reset-token", throttle, h.validateResetToken)
	r.POST("/auth/reset-password", throttle, h.resetPassword)

	r.POST("/session/create", throttle, requireBearer(auth), h.createSession)
	r.GET("/session", requireSession(auth), h.me)
	r.POST("/session/logout", h.logout)
	r.POST("/session/logout-all", requireSession(auth), h.logoutAll)

	return r
}
