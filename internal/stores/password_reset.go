package stores

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	DefaultResetTokenPrefix = "pw_reset"
	DefaultResetUserPrefix  = "pw_reset_user"
	DefaultResetTTL         = time.Hour

	redeemRetries = 4
	issueRetries  = 8
)

var (
	ErrResetNotFound         = errors.New("reset record not found")
	ErrResetRecordCorrupt    = errors.New("reset record corrupt")
	ErrResetRedisUnavailable = errors.New("reset redis unavailable")
	ErrResetIssueConflict    = errors.New("reset issue kept losing to concurrent issues")
)

// PasswordResetRecord is the JSON value stored under pw_reset:{token}.
// Email holds the encrypted email, never plaintext.
type PasswordResetRecord struct {
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

// QueueFunc adds extra writes to a reset store MULTI.
type QueueFunc func(pipe redis.Pipeliner) error

// PasswordResetStore keeps at most one live reset token per user:
// pw_reset:{token} holds the record and pw_reset_user:{username} points at
// the current token. Both keys share the same TTL.
type PasswordResetStore struct {
	redis       redis.UniversalClient
	tokenPrefix string
	userPrefix  string
	ttl         time.Duration
}

func NewPasswordResetStore(redisClient redis.UniversalClient, ttl time.Duration) *PasswordResetStore {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	return &PasswordResetStore{
		redis:       redisClient,
		tokenPrefix: DefaultResetTokenPrefix,
		userPrefix:  DefaultResetUserPrefix,
		ttl:         ttl,
	}
}

func (s *PasswordResetStore) tokenKey(token string) string {
	return s.tokenPrefix + ":" + token
}

func (s *PasswordResetStore) userKey(username string) string {
	return s.userPrefix + ":" + username
}

func (s *PasswordResetStore) TTL() time.Duration {
	return s.ttl
}

// Issue replaces username's live token with token. The index key is
// watched while the previous token is read, so every committed issue
// deletes exactly the token it displaced and at most one token stays live.
// The new record, the index and whatever queue adds commit in one MULTI.
func (s *PasswordResetStore) Issue(ctx context.Context, token string, record PasswordResetRecord, queue QueueFunc) error {
	encoded, err := json.Marshal(record)
	if err != nil {
		return err
	}
	userKey := s.userKey(record.Username)

	for i := 0; i < issueRetries; i++ {
		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			prior, err := tx.Get(ctx, userKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				if prior != "" && prior != token {
					pipe.Del(ctx, s.tokenKey(prior))
				}
				pipe.Set(ctx, s.tokenKey(token), encoded, s.ttl)
				pipe.Set(ctx, userKey, token, s.ttl)
				if queue != nil {
					return queue(pipe)
				}
				return nil
			})
			return err
		}, userKey)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
		}
		return nil
	}

	return ErrResetIssueConflict
}

// Get returns the record for token.
func (s *PasswordResetStore) Get(ctx context.Context, token string) (*PasswordResetRecord, error) {
	data, err := s.redis.Get(ctx, s.tokenKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrResetNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return decodeResetRecord(data)
}

// TokenForUser returns the token the index currently points at.
func (s *PasswordResetStore) TokenForUser(ctx context.Context, username string) (string, error) {
	token, err := s.redis.Get(ctx, s.userKey(username)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrResetNotFound
		}
		return "", fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
	}
	return token, nil
}

// Redeem consumes token. In one MULTI it deletes the token, the user index,
// any other token the index points at, and whatever queue adds. The token
// key is watched, so of two concurrent redemptions only one commits; the
// other sees ErrResetNotFound.
func (s *PasswordResetStore) Redeem(ctx context.Context, token string, queue QueueFunc) (*PasswordResetRecord, error) {
	key := s.tokenKey(token)

	for i := 0; i < redeemRetries; i++ {
		var record *PasswordResetRecord

		err := s.redis.Watch(ctx, func(tx *redis.Tx) error {
			data, err := tx.Get(ctx, key).Bytes()
			if err != nil {
				return err
			}
			rec, err := decodeResetRecord(data)
			if err != nil {
				return err
			}

			userKey := s.userKey(rec.Username)
			current, err := tx.Get(ctx, userKey).Result()
			if err != nil && !errors.Is(err, redis.Nil) {
				return err
			}

			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				pipe.Del(ctx, key, userKey)
				if current != "" && current != token {
					pipe.Del(ctx, s.tokenKey(current))
				}
				if queue != nil {
					return queue(pipe)
				}
				return nil
			})
			if err != nil {
				return err
			}

			record = rec
			return nil
		}, key)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			switch {
			case errors.Is(err, redis.Nil):
				return nil, ErrResetNotFound
			case errors.Is(err, ErrResetRecordCorrupt):
				return nil, err
			case errors.Is(err, ErrResetRedisUnavailable):
				return nil, err
			default:
				return nil, fmt.Errorf("%w: %v", ErrResetRedisUnavailable, err)
			}
		}

		return record, nil
	}

	return nil, ErrResetNotFound
}

func decodeResetRecord(data []byte) (*PasswordResetRecord, error) {
	var rec PasswordResetRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResetRecordCorrupt, err)
	}
	if rec.Username == "" {
		return nil, ErrResetRecordCorrupt
	}
	return &rec, nil
}
