package limiters

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	ErrResetRateLimited      = errors.New("reset rate limited")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
)

const (
	DefaultResetRatePrefix = "pw_reset_rate"
	DefaultResetWindow     = time.Hour
	DefaultResetMax        = 2
)

// PasswordResetConfig bounds reset requests per email.
type PasswordResetConfig struct {
	Prefix      string
	Window      time.Duration
	MaxRequests int
}

// PasswordResetLimiter counts reset requests under pw_reset_rate:{subject},
// where subject is the keyed lookup hash of the normalized email. Every
// accepted request rewrites the TTL, so the window restarts with it.
type PasswordResetLimiter struct {
	redis  redis.UniversalClient
	config PasswordResetConfig
}

func NewPasswordResetLimiter(redisClient redis.UniversalClient, cfg PasswordResetConfig) *PasswordResetLimiter {
	if cfg.Prefix == "" {
		cfg.Prefix = DefaultResetRatePrefix
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultResetWindow
	}
	if cfg.MaxRequests <= 0 {
		cfg.MaxRequests = DefaultResetMax
	}
	return &PasswordResetLimiter{
		redis:  redisClient,
		config: cfg,
	}
}

func (l *PasswordResetLimiter) key(subject string) string {
	return l.config.Prefix + ":" + subject
}

// consumeResetLua counts one request unless the window is already full.
// A full window is left untouched, so rejected requests do not extend it.
var consumeResetLua = redis.NewScript(`
local count = tonumber(redis.call("GET", KEYS[1]) or "0")
if count >= tonumber(ARGV[1]) then
	return -1
end
count = redis.call("INCR", KEYS[1])
redis.call("PEXPIRE", KEYS[1], ARGV[2])
return count
`)

// Consume counts one request for subject, or returns ErrResetRateLimited
// when MaxRequests are already recorded. The read and the increment run in
// one script, so parallel callers cannot all slip under the limit.
func (l *PasswordResetLimiter) Consume(ctx context.Context, subject string) error {
	if l == nil {
		return nil
	}
	n, err := consumeResetLua.Run(ctx, l.redis, []string{l.key(subject)},
		l.config.MaxRequests, l.config.Window.Milliseconds()).Int64()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	if n < 0 {
		return ErrResetRateLimited
	}
	return nil
}

// Count reports the requests recorded for subject in the current window.
func (l *PasswordResetLimiter) Count(ctx context.Context, subject string) (int, error) {
	count, err := l.redis.Get(ctx, l.key(subject)).Int()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return count, nil
}

func (l *PasswordResetLimiter) Window() time.Duration {
	return l.config.Window
}
