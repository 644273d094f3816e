package flows

import (
	"context"
	"errors"
	"testing"
)

var (
	errNotReady    = errors.New("not ready")
	errInvalidCred = errors.New("invalid credentials")
	errRateLimited = errors.New("rate limited")
	errNotFound    = errors.New("not found")
	errUnavailable = errors.New("unavailable")
)

type loginFixture struct {
	users    map[string]LoginUser
	failures map[string]int
	resets   int
	upgraded map[string]string
	metrics  map[int]int
	events   []string
	timing   int
}

func newLoginFixture() *loginFixture {
	return &loginFixture{
		users: map[string]LoginUser{
			"alice": {Username: "alice", PasswordHash: "hash:Str0ng!Pw", Active: true},
		},
		failures: map[string]int{},
		upgraded: map[string]string{},
		metrics:  map[int]int{},
	}
}

func (f *loginFixture) deps() LoginDeps {
	return LoginDeps{
		UpgradeHashOnLogin: true,
		ThrottleSubject:    func(id string) string { return "t:" + id },
		CheckLoginRate: func(_ context.Context, subject, _ string) error {
			if f.failures[subject] >= 3 {
				return errRateLimited
			}
			return nil
		},
		RecordLoginFailure: func(_ context.Context, subject, _ string) error {
			f.failures[subject]++
			return nil
		},
		ResetLoginRate: func(_ context.Context, subject string) error {
			f.resets++
			delete(f.failures, subject)
			return nil
		},
		FindUser: func(_ context.Context, id string) (LoginUser, error) {
			u, ok := f.users[id]
			if !ok {
				return LoginUser{}, errNotFound
			}
			return u, nil
		},
		VerifyPassword: func(_ context.Context, plaintext, hash string) (bool, error) {
			return hash == "hash:"+plaintext || hash == "old:"+plaintext, nil
		},
		NeedsUpgrade: func(hash string) bool { return hash[:4] == "old:" },
		HashPassword: func(_ context.Context, plaintext string) (string, error) { return "hash:" + plaintext, nil },
		UpdatePasswordHash: func(_ context.Context, username, hash string) error {
			f.upgraded[username] = hash
			return nil
		},
		EqualizeTiming: func(context.Context, string) { f.timing++ },
		MetricInc:      func(id int) { f.metrics[id]++ },
		EmitAudit: func(_ context.Context, event string, _ bool, _ string, _ error, _ func() map[string]string) {
			f.events = append(f.events, event)
		},
		Metrics: LoginMetrics{LoginSuccess: 1, LoginFailure: 2, LoginRateLimited: 3, PasswordHashUpgraded: 4},
		Events:  LoginEvents{LoginSuccess: "login_success", LoginFailure: "login_failure", LoginRateLimited: "login_rate_limited"},
		Errors: LoginErrors{
			EngineNotReady:     errNotReady,
			InvalidCredentials: errInvalidCred,
			RateLimited:        errRateLimited,
			UserNotFound:       errNotFound,
		},
	}
}

func TestRunLoginSuccess(t *testing.T) {
	f := newLoginFixture()
	user, err := RunLogin(context.Background(), " alice ", "Str0ng!Pw", f.deps())
	if err != nil {
		t.Fatalf("RunLogin failed: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected alice, got %q", user.Username)
	}
	if f.metrics[1] != 1 || f.resets != 1 {
		t.Fatalf("expected success metric and throttle reset, got %v resets=%d", f.metrics, f.resets)
	}
	if len(f.upgraded) != 0 {
		t.Fatal("current hash must not be upgraded")
	}
}

func TestRunLoginUniformFailure(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	_, errWrongPw := RunLogin(ctx, "alice", "nope", f.deps())
	_, errUnknown := RunLogin(ctx, "mallory", "Str0ng!Pw", f.deps())

	if !errors.Is(errWrongPw, errInvalidCred) || !errors.Is(errUnknown, errInvalidCred) {
		t.Fatalf("expected uniform invalid credentials, got %v / %v", errWrongPw, errUnknown)
	}
	if errWrongPw != errUnknown {
		t.Fatal("wrong password and unknown user must be indistinguishable")
	}
	if f.timing != 1 {
		t.Fatalf("expected timing equalization for unknown user, got %d", f.timing)
	}
	if f.metrics[2] != 2 {
		t.Fatalf("expected two failure metrics, got %d", f.metrics[2])
	}
}

func TestRunLoginThrottle(t *testing.T) {
	f := newLoginFixture()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := RunLogin(ctx, "alice", "bad", f.deps()); !errors.Is(err, errInvalidCred) {
			t.Fatalf("attempt %d: expected invalid credentials, got %v", i+1, err)
		}
	}
	if _, err := RunLogin(ctx, "alice", "Str0ng!Pw", f.deps()); !errors.Is(err, errRateLimited) {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if f.metrics[3] != 1 {
		t.Fatalf("expected rate-limited metric, got %d", f.metrics[3])
	}
}

func TestRunLoginStoreFailureIsNotInvalidCredentials(t *testing.T) {
	f := newLoginFixture()
	deps := f.deps()
	deps.FindUser = func(context.Context, string) (LoginUser, error) { return LoginUser{}, errUnavailable }

	if _, err := RunLogin(context.Background(), "alice", "Str0ng!Pw", deps); !errors.Is(err, errUnavailable) {
		t.Fatalf("expected unavailable, got %v", err)
	}
}

func TestRunLoginUpgradesHash(t *testing.T) {
	f := newLoginFixture()
	f.users["bob"] = LoginUser{Username: "bob", PasswordHash: "old:Legacy!1a"}

	if _, err := RunLogin(context.Background(), "bob", "Legacy!1a", f.deps()); err != nil {
		t.Fatalf("RunLogin failed: %v", err)
	}
	if f.upgraded["bob"] != "hash:Legacy!1a" {
		t.Fatalf("expected upgraded hash, got %q", f.upgraded["bob"])
	}
	if f.metrics[4] != 1 {
		t.Fatal("expected hash upgrade metric")
	}
}

func TestRunLoginEmptyAndNotReady(t *testing.T) {
	f := newLoginFixture()
	if _, err := RunLogin(context.Background(), "", "x", f.deps()); !errors.Is(err, errInvalidCred) {
		t.Fatalf("expected invalid credentials for empty identifier, got %v", err)
	}
	if _, err := RunLogin(context.Background(), "alice", "x", LoginDeps{Errors: LoginErrors{EngineNotReady: errNotReady}}); !errors.Is(err, errNotReady) {
		t.Fatalf("expected not ready, got %v", err)
	}
}
