package httpapi

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/google/uuid"
	"github.com/rfol/finauth"
	"github.com/rfol/finauth/middleware"
)

const RequestIDHeader = "X-Request-ID"

// IPLimiter is satisfied by *redis_rate.Limiter.
type IPLimiter interface {
	Allow(ctx context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error)
}

// requestContext tags the request with an id and the client IP so engine
// audit events carry both.
func requestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		ctx := finauth.WithRequestID(c.Request.Context(), id)
		ctx = finauth.WithClientIP(ctx, c.ClientIP())
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// accessLog never records the query string; reset tokens travel there.
func accessLog(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		logger.LogAttrs(c.Request.Context(), slog.LevelInfo, "http request",
			slog.String("method", c.Request.Method),
			slog.String("path", c.FullPath()),
			slog.Int("status", c.Writer.Status()),
			slog.Duration("latency", time.Since(start)),
			slog.String("request_id", finauth.RequestIDFromContext(c.Request.Context())),
		)
	}
}

// throttleIP applies a per-minute budget per client IP and route. Limiter
// errors fail open.
func throttleIP(limiter IPLimiter, perMinute int, logger *slog.Logger) gin.HandlerFunc {
	limit := redis_rate.PerMinute(perMinute)
	return func(c *gin.Context) {
		key := "finauth_ip:" + c.FullPath() + ":" + c.ClientIP()
		res, err := limiter.Allow(c.Request.Context(), key, limit)
		if err != nil {
			logger.Warn("ip throttle unavailable", "error", err)
			c.Next()
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(perMinute))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
		if res.Allowed == 0 {
			retry := int(res.RetryAfter / time.Second)
			if retry < 1 {
				retry = 1
			}
			c.Header("Retry-After", strconv.Itoa(retry))
			abortWithError(c, finauth.ErrRateLimited)
			return
		}
		c.Next()
	}
}

func requireBearer(auth Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := middleware.BearerToken(c.GetHeader("Authorization"))
		if !ok {
			abortWithError(c, finauth.ErrInvalidToken)
			return
		}
		id, err := auth.RequireBearer(c.Request.Context(), token)
		if err != nil {
			abortWithError(c, err)
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

func requireSession(auth Auth) gin.HandlerFunc {
	return func(c *gin.Context) {
		sid, err := c.Cookie(auth.SessionConfig().CookieName)
		if err != nil || sid == "" {
			abortWithError(c, finauth.ErrSessionMissingOrExpired)
			return
		}
		id, err := auth.RequireSession(c.Request.Context(), sid)
		if err != nil {
			abortWithError(c, err)
			return
		}
		setIdentity(c, id)
		c.Next()
	}
}

func setIdentity(c *gin.Context, id finauth.Identity) {
	c.Request = c.Request.WithContext(middleware.WithIdentity(c.Request.Context(), id))
}

func identity(c *gin.Context) finauth.Identity {
	id, _ := middleware.IdentityFromContext(c.Request.Context())
	return id
}

func abortWithError(c *gin.Context, err error) {
	middleware.WriteError(c.Writer, err)
	c.Abort()
}

func detail(c *gin.Context, status int, msg string) {
	c.JSON(status, gin.H{"detail": msg})
}
