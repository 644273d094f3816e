package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/rfol/finauth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type users struct {
	mu     sync.Mutex
	nextID int64
	recs   map[string]finauth.UserRecord
}

func (u *users) GetUser(_ context.Context, q finauth.UserQuery) (finauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, rec := range u.recs {
		if name, ok := q.Username(); ok && rec.Username == name {
			return rec, nil
		}
		if h, ok := q.HashedEmail(); ok && rec.HashedEmail == h {
			return rec, nil
		}
		if id, ok := q.ID(); ok && rec.ID == id {
			return rec, nil
		}
	}
	return finauth.UserRecord{}, fmt.Errorf("user %s: %w", q, finauth.ErrNotFound)
}

func (u *users) CreateUser(_ context.Context, n finauth.NewUser) (finauth.UserRecord, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, rec := range u.recs {
		if rec.HashedEmail == n.HashedEmail {
			return finauth.UserRecord{}, finauth.ErrDuplicateEmail
		}
		if rec.Username == n.Username {
			return finauth.UserRecord{}, finauth.ErrDuplicateUsername
		}
	}
	u.nextID++
	rec := finauth.UserRecord{
		ID:             u.nextID,
		UUID:           fmt.Sprintf("uuid-%d", u.nextID),
		Username:       n.Username,
		FirstName:      n.FirstName,
		LastName:       n.LastName,
		PasswordHash:   n.PasswordHash,
		HashedEmail:    n.HashedEmail,
		EncryptedEmail: n.EncryptedEmail,
		IsActive:       true,
		CreatedAt:      time.Now().UTC(),
	}
	u.recs[n.Username] = rec
	return rec, nil
}

func (u *users) UpdatePasswordHash(_ context.Context, username, hash string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	rec, ok := u.recs[username]
	if !ok {
		return finauth.ErrNotFound
	}
	rec.PasswordHash = hash
	u.recs[username] = rec
	return nil
}

type inbox struct {
	mu      sync.Mutex
	notices []finauth.ResetNotice
}

func (i *inbox) NotifyPasswordReset(_ context.Context, n finauth.ResetNotice) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.notices = append(i.notices, n)
	return nil
}

func (i *inbox) lastToken(t *testing.T) string {
	t.Helper()
	i.mu.Lock()
	defer i.mu.Unlock()
	require.NotEmpty(t, i.notices)
	return i.notices[len(i.notices)-1].Token
}

type fakeLimiter struct {
	allowed int
	err     error
	keys    []string
}

func (f *fakeLimiter) Allow(_ context.Context, key string, limit redis_rate.Limit) (*redis_rate.Result, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return nil, f.err
	}
	return &redis_rate.Result{Limit: limit, Allowed: f.allowed, RetryAfter: 30 * time.Second}, nil
}

type server struct {
	router *gin.Engine
	mr     *miniredis.Miniredis
	inbox  *inbox
}

func newServer(t *testing.T, opts Options) *server {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := finauth.DefaultConfig()
	cfg.JWT.Secret = bytes.Repeat([]byte("s"), 32)
	cfg.PII.HashKey = bytes.Repeat([]byte{0x11}, 32)
	cfg.PII.EncryptionKey = bytes.Repeat([]byte{0x22}, 32)
	cfg.Password.BcryptCost = 4
	cfg.Store.OperationTimeout = 200 * time.Millisecond

	box := &inbox{}
	engine, err := finauth.New().
		WithConfig(cfg).
		WithRedis(rdb).
		WithUserProvider(&users{recs: map[string]finauth.UserRecord{}}).
		WithResetNotifier(box).
		Build()
	require.NoError(t, err)
	t.Cleanup(engine.Close)

	return &server{router: NewRouter(engine, opts), mr: mr, inbox: box}
}

func (s *server) do(t *testing.T, method, path string, body any, mutate ...func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, fn := range mutate {
		fn(req)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func withBearer(token string) func(*http.Request) {
	return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
}

func withCookie(c *http.Cookie) func(*http.Request) {
	return func(r *http.Request) { r.AddCookie(c) }
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sessionCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == finauth.DefaultSessionCookieName {
			return c
		}
	}
	t.Fatal("no session cookie set")
	return nil
}

var alice = map[string]string{
	"username":   "alice",
	"email":      "alice@example.com",
	"first_name": "Alice",
	"last_name":  "Smith",
	"password":   "Str0ng!Pw",
}

func (s *server) token(t *testing.T, username, password string) string {
	t.Helper()
	form := url.Values{"username": {username}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/auth/token", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	tok, _ := decode(t, w)["access_token"].(string)
	require.NotEmpty(t, tok)
	return tok
}

func TestAccountAndSessionFlow(t *testing.T) {
	s := newServer(t, Options{})

	w := s.do(t, http.MethodPost, "/users", alice)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "alice@example.com", decode(t, w)["email"])

	tok := s.token(t, "alice", "Str0ng!Pw")

	w = s.do(t, http.MethodGet, "/users/me", nil, withBearer(tok))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode(t, w)["username"])

	w = s.do(t, http.MethodPost, "/session/create", nil, withBearer(tok))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	cookie := sessionCookie(t, w)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, 3600, cookie.MaxAge)

	w = s.do(t, http.MethodGet, "/session", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", decode(t, w)["username"])

	w = s.do(t, http.MethodPut, "/users/me/password", map[string]string{
		"current_password": "Str0ng!Pw",
		"new_password":     "N3w!Passw",
		"confirm_password": "N3w!Passw",
	}, withCookie(cookie))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(t, http.MethodPost, "/session/logout", nil, withCookie(cookie))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Less(t, sessionCookie(t, w).MaxAge, 0)

	w = s.do(t, http.MethodGet, "/session", nil, withCookie(cookie))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Session expired/invalid", decode(t, w)["detail"])
}

func TestTokenRejectionsAreUniform(t *testing.T) {
	s := newServer(t, Options{})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/users", alice).Code)

	for _, creds := range []map[string]string{
		{"username": "alice", "password": "Wr0ng!Pw"},
		{"username": "nobody", "password": "Str0ng!Pw"},
	} {
		w := s.do(t, http.MethodPost, "/auth/token", creds)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, "Bearer", w.Header().Get("WWW-Authenticate"))
		assert.Equal(t, "Incorrect username or password", decode(t, w)["detail"])
	}

	w := s.do(t, http.MethodGet, "/users/me", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	w = s.do(t, http.MethodGet, "/users/me", nil, withBearer("garbage"))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateUserRejections(t *testing.T) {
	s := newServer(t, Options{})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/users", alice).Code)

	dup := map[string]string{}
	for k, v := range alice {
		dup[k] = v
	}
	dup["username"] = "alice2"
	w := s.do(t, http.MethodPost, "/users", dup)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "Email already in use", decode(t, w)["detail"])

	w = s.do(t, http.MethodPost, "/users", map[string]string{"username": "bob"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPasswordResetEndpoints(t *testing.T) {
	s := newServer(t, Options{})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/users", alice).Code)

	w := s.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, finauth.DefaultResetMessage, decode(t, w)["detail"])
	token := s.inbox.lastToken(t)

	w = s.do(t, http.MethodGet, "/auth/validate-reset-token?token="+url.QueryEscape(token), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice@example.com", decode(t, w)["email"])

	w = s.do(t, http.MethodPost, "/auth/reset-password", map[string]string{
		"token": token, "new_password": "N3w!Passw", "confirm_password": "N3w!Passw",
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	s.token(t, "alice", "N3w!Passw")

	w = s.do(t, http.MethodGet, "/auth/validate-reset-token?token="+url.QueryEscape(token), nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	// The two-per-hour budget was spent above only once; spend the rest.
	s.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	w = s.do(t, http.MethodPost, "/auth/forgot-password", map[string]string{"email": "alice@example.com"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
}

func TestIPThrottle(t *testing.T) {
	blocked := &fakeLimiter{allowed: 0}
	s := newServer(t, Options{Limiter: blocked, PerIPPerMinute: 10})

	w := s.do(t, http.MethodPost, "/auth/token", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "30", w.Header().Get("Retry-After"))
	require.Len(t, blocked.keys, 1)
	assert.True(t, strings.HasPrefix(blocked.keys[0], "finauth_ip:/auth/token:"))

	// Health checks are never throttled.
	assert.Equal(t, http.StatusOK, s.do(t, http.MethodGet, "/healthz", nil).Code)

	broken := &fakeLimiter{err: errors.New("redis down")}
	s = newServer(t, Options{Limiter: broken, PerIPPerMinute: 10})
	w = s.do(t, http.MethodPost, "/auth/token", map[string]string{"username": "a", "password": "b"})
	assert.Equal(t, http.StatusUnauthorized, w.Code, "limiter errors fail open")
}

func TestHealthAndRequestID(t *testing.T) {
	s := newServer(t, Options{})

	w := s.do(t, http.MethodGet, "/healthz", nil, func(r *http.Request) {
		r.Header.Set(RequestIDHeader, "req-123")
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get(RequestIDHeader))

	w = s.do(t, http.MethodGet, "/healthz", nil)
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))

	s.mr.Close()
	w = s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestMetricsRoute(t *testing.T) {
	s := newServer(t, Options{Metrics: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("finauth_login_success_total 0\n"))
	})})

	w := s.do(t, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "finauth_login_success_total")
}
