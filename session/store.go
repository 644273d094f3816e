package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rfol/finauth/internal"
)

const (
	// DefaultPrefix namespaces session keys.
	DefaultPrefix = "session"
	// DefaultTTL is the fixed session lifetime.
	DefaultTTL = time.Hour
	// DefaultScanBatch is the COUNT hint for each SCAN call during bulk invalidation.
	DefaultScanBatch int64 = 500

	createAttempts = 3
)

var (
	// ErrRedisUnavailable wraps every Redis failure other than a missing key.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrSessionNotFound is returned when the session is absent or expired.
	ErrSessionNotFound = errors.New("session not found")
	// ErrEmptyUsername is returned when a session would be bound to no one.
	ErrEmptyUsername = errors.New("session username is empty")
)

// Store persists sessions in Redis. It is safe for concurrent use.
type Store struct {
	redis     redis.UniversalClient
	prefix    string
	ttl       time.Duration
	scanBatch int64
}

// NewStore creates a session [Store]. Zero values select DefaultPrefix,
// DefaultTTL and DefaultScanBatch.
func NewStore(rdb redis.UniversalClient, prefix string, ttl time.Duration, scanBatch int64) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if scanBatch <= 0 {
		scanBatch = DefaultScanBatch
	}
	return &Store{
		redis:     rdb,
		prefix:    prefix,
		ttl:       ttl,
		scanBatch: scanBatch,
	}
}

func (s *Store) key(sessionID string) string {
	return s.prefix + ":" + sessionID
}

// TTL reports the lifetime given to new sessions.
func (s *Store) TTL() time.Duration {
	return s.ttl
}

// Create writes a fresh session for username and returns its id.
//
//	Performance: 1 Redis SET NX EX.
func (s *Store) Create(ctx context.Context, username string) (string, error) {
	if username == "" {
		return "", ErrEmptyUsername
	}

	for i := 0; i < createAttempts; i++ {
		sid, err := internal.NewSessionID()
		if err != nil {
			return "", err
		}
		id := sid.String()

		ok, err := s.redis.SetNX(ctx, s.key(id), username, s.ttl).Result()
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if ok {
			return id, nil
		}
	}

	return "", errors.New("session id collision")
}

// Resolve returns the username bound to sessionID. It does not refresh the
// TTL.
//
//	Performance: 1 Redis GET.
func (s *Store) Resolve(ctx context.Context, sessionID string) (string, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return "", ErrSessionNotFound
	}

	username, err := s.redis.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return username, nil
}

// Remaining reports how long sessionID has left.
func (s *Store) Remaining(ctx context.Context, sessionID string) (time.Duration, error) {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return 0, ErrSessionNotFound
	}

	d, err := s.redis.TTL(ctx, s.key(sessionID)).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	// -2: key missing, -1: no expiry (never written by this store).
	if d < 0 {
		return 0, ErrSessionNotFound
	}
	return d, nil
}

// Invalidate deletes sessionID. Deleting an absent session is not an error.
func (s *Store) Invalidate(ctx context.Context, sessionID string) error {
	if _, err := internal.ParseSessionID(sessionID); err != nil {
		return nil
	}

	if err := s.redis.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// KeysForUser scans the session keyspace and returns the keys currently
// bound to username. The scan is cursor based and not a snapshot: a session
// created while it runs may or may not be returned.
//
//	Performance: O(active sessions); one SCAN plus one pipelined GET batch per round.
func (s *Store) KeysForUser(ctx context.Context, username string) ([]string, error) {
	if username == "" {
		return nil, ErrEmptyUsername
	}

	pattern := s.prefix + ":*"
	var (
		cursor  uint64
		matched []string
	)

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, pattern, s.scanBatch).Result()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		if len(keys) > 0 {
			owned, err := s.filterOwned(ctx, keys, username)
			if err != nil {
				return nil, err
			}
			matched = append(matched, owned...)
		}

		cursor = next
		if cursor == 0 {
			break
		}
		// Give cancellation a chance between rounds on large keyspaces.
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return matched, nil
}

func (s *Store) filterOwned(ctx context.Context, keys []string, username string) ([]string, error) {
	pipe := s.redis.Pipeline()
	cmds := make([]*redis.StringCmd, len(keys))
	for i, k := range keys {
		cmds[i] = pipe.Get(ctx, k)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	owned := make([]string, 0, 1)
	for i, cmd := range cmds {
		v, err := cmd.Result()
		if err != nil {
			// Expired between SCAN and GET.
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
		if v == username {
			owned = append(owned, keys[i])
		}
	}
	return owned, nil
}

// QueueInvalidateAllForUser scans for username's sessions and queues their
// deletion on pipe, so the caller can commit them together with other writes.
// It returns the number of sessions queued.
func (s *Store) QueueInvalidateAllForUser(ctx context.Context, pipe redis.Pipeliner, username string) (int, error) {
	keys, err := s.KeysForUser(ctx, username)
	if err != nil {
		return 0, err
	}
	if len(keys) > 0 {
		pipe.Del(ctx, keys...)
	}
	return len(keys), nil
}

// InvalidateAllForUser deletes every session bound to username and returns
// how many were removed.
func (s *Store) InvalidateAllForUser(ctx context.Context, username string) (int, error) {
	var n int
	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		var err error
		n, err = s.QueueInvalidateAllForUser(ctx, pipe, username)
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRedisUnavailable) || errors.Is(err, ErrEmptyUsername) {
			return 0, err
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return n, nil
}

// Ping returns a point-in-time Redis availability check and latency.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return time.Since(start), fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return time.Since(start), nil
}
