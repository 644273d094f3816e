package finauth

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type memUsers struct {
	mu      sync.Mutex
	nextID  int64
	byName  map[string]*UserRecord
	byEmail map[string]string
	fail    error
}

func newMemUsers() *memUsers {
	return &memUsers{
		byName:  make(map[string]*UserRecord),
		byEmail: make(map[string]string),
	}
}

func (m *memUsers) GetUser(_ context.Context, q UserQuery) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.fail != nil {
		return UserRecord{}, m.fail
	}

	if name, ok := q.Username(); ok {
		if rec, ok := m.byName[name]; ok {
			return *rec, nil
		}
	}
	if h, ok := q.HashedEmail(); ok {
		if name, ok := m.byEmail[h]; ok {
			return *m.byName[name], nil
		}
	}
	if id, ok := q.ID(); ok {
		for _, rec := range m.byName {
			if rec.ID == id {
				return *rec, nil
			}
		}
	}
	return UserRecord{}, fmt.Errorf("user %s: %w", q, ErrNotFound)
}

func (m *memUsers) CreateUser(_ context.Context, u NewUser) (UserRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[u.HashedEmail]; ok {
		return UserRecord{}, ErrDuplicateEmail
	}
	if _, ok := m.byName[u.Username]; ok {
		return UserRecord{}, ErrDuplicateUsername
	}

	m.nextID++
	rec := &UserRecord{
		ID:             m.nextID,
		UUID:           uuid.NewString(),
		Username:       u.Username,
		FirstName:      u.FirstName,
		LastName:       u.LastName,
		PasswordHash:   u.PasswordHash,
		HashedEmail:    u.HashedEmail,
		EncryptedEmail: u.EncryptedEmail,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	m.byName[u.Username] = rec
	m.byEmail[u.HashedEmail] = u.Username
	return *rec, nil
}

func (m *memUsers) UpdatePasswordHash(_ context.Context, username, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.byName[username]
	if !ok {
		return ErrNotFound
	}
	rec.PasswordHash = hash
	return nil
}

func (m *memUsers) setActive(username string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byName[username].IsActive = active
}

func (m *memUsers) delete(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.byName[username]
	delete(m.byEmail, rec.HashedEmail)
	delete(m.byName, username)
}

func (m *memUsers) hash(username string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byName[username].PasswordHash
}

type captureNotifier struct {
	mu      sync.Mutex
	notices []ResetNotice
}

func (c *captureNotifier) NotifyPasswordReset(_ context.Context, n ResetNotice) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notices = append(c.notices, n)
	return nil
}

func (c *captureNotifier) last(t *testing.T) ResetNotice {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.notices) == 0 {
		t.Fatal("expected a reset notice")
	}
	return c.notices[len(c.notices)-1]
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.notices)
}

type testEnv struct {
	engine   *Engine
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	users    *memUsers
	notifier *captureNotifier
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.JWT.Secret = bytes.Repeat([]byte("s"), 32)
	cfg.PII.HashKey = bytes.Repeat([]byte{0x11}, 32)
	cfg.PII.EncryptionKey = bytes.Repeat([]byte{0x22}, 32)
	cfg.Password.BcryptCost = 4
	cfg.Password.Argon2Memory = 8 * 1024
	cfg.Password.Argon2Time = 1
	cfg.Password.Argon2Parallelism = 1
	cfg.Metrics.Enabled = true
	return cfg
}

func newTestEnv(t *testing.T, mutate ...func(*Config)) *testEnv {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	cfg := testConfig()
	for _, fn := range mutate {
		fn(&cfg)
	}

	users := newMemUsers()
	notifier := &captureNotifier{}

	engine, err := New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(users).
		WithResetNotifier(notifier).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	t.Cleanup(func() {
		engine.Close()
		_ = rdb.Close()
		mr.Close()
	})

	return &testEnv{engine: engine, mr: mr, rdb: rdb, users: users, notifier: notifier}
}

func (env *testEnv) register(t *testing.T, username, email, pw string) Profile {
	t.Helper()

	p, err := env.engine.Register(context.Background(), RegisterRequest{
		Username:  username,
		Email:     email,
		FirstName: "First",
		LastName:  "Last",
		Password:  pw,
	})
	if err != nil {
		t.Fatalf("Register(%s) failed: %v", username, err)
	}
	return p
}
