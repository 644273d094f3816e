package finauth

import (
	"context"
	"time"
)

/*
====================================
USER PERSISTENCE
====================================
*/

type userQueryKind uint8

const (
	queryByID userQueryKind = iota + 1
	queryByUsername
	queryByHashedEmail
)

// UserQuery selects one user by exactly one key. Build it with ByID,
// ByUsername or ByHashedEmail; the zero value matches nothing.
type UserQuery struct {
	kind  userQueryKind
	id    int64
	value string
}

func ByID(id int64) UserQuery {
	return UserQuery{kind: queryByID, id: id}
}

func ByUsername(username string) UserQuery {
	return UserQuery{kind: queryByUsername, value: username}
}

// ByHashedEmail looks a user up by the keyed lookup hash of their
// normalized email, never by the email itself.
func ByHashedEmail(hashedEmail string) UserQuery {
	return UserQuery{kind: queryByHashedEmail, value: hashedEmail}
}

func (q UserQuery) ID() (int64, bool) {
	return q.id, q.kind == queryByID
}

func (q UserQuery) Username() (string, bool) {
	return q.value, q.kind == queryByUsername
}

func (q UserQuery) HashedEmail() (string, bool) {
	return q.value, q.kind == queryByHashedEmail
}

func (q UserQuery) String() string {
	switch q.kind {
	case queryByID:
		return "id"
	case queryByUsername:
		return "username:" + q.value
	case queryByHashedEmail:
		return "hashed_email"
	default:
		return "invalid"
	}
}

// UserRecord is the persisted account. Email is only ever present as its
// lookup hash and its ciphertext.
type UserRecord struct {
	ID             int64
	UUID           string
	Username       string
	FirstName      string
	LastName       string
	PasswordHash   string
	HashedEmail    string
	EncryptedEmail string
	IsActive       bool
	CreatedAt      time.Time
}

// NewUser is what the engine asks the provider to insert.
type NewUser struct {
	Username       string
	FirstName      string
	LastName       string
	PasswordHash   string
	HashedEmail    string
	EncryptedEmail string
}

// UserProvider is the relational persistence the engine depends on.
//
// GetUser returns an error wrapping ErrNotFound on a miss. CreateUser
// returns ErrDuplicateEmail, ErrDuplicateUsername or ErrDuplicateUser on a
// uniqueness violation. Any other error is treated as the store being
// unavailable.
type UserProvider interface {
	GetUser(ctx context.Context, query UserQuery) (UserRecord, error)
	CreateUser(ctx context.Context, user NewUser) (UserRecord, error)
	UpdatePasswordHash(ctx context.Context, username, hash string) error
}

/*
====================================
REQUESTS AND RESULTS
====================================
*/

// AuthMode selects what a successful login hands back.
type AuthMode uint8

const (
	// AuthModeBearer returns a short-lived signed token.
	AuthModeBearer AuthMode = iota
	// AuthModeSession opens a server-side session.
	AuthModeSession
)

func (m AuthMode) String() string {
	switch m {
	case AuthModeBearer:
		return "bearer"
	case AuthModeSession:
		return "session"
	default:
		return "unknown"
	}
}

// LoginRequest identifies a user by username or email.
type LoginRequest struct {
	Identifier string
	Password   string
	Mode       AuthMode
}

// LoginResult carries either AccessToken or SessionID, according to Mode.
type LoginResult struct {
	Username string
	Mode     AuthMode

	AccessToken string
	ExpiresAt   time.Time

	SessionID string
}

// Identity is the authenticated principal of a request.
type Identity struct {
	Username string
	Active   bool
	Mode     AuthMode
}

type RegisterRequest struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
}

// Profile is the account view returned to its owner, with the email
// decrypted.
type Profile struct {
	ID        int64
	UUID      string
	Username  string
	FirstName string
	LastName  string
	Email     string
	IsActive  bool
	CreatedAt time.Time
}

// ResetTokenInfo is what a live reset token reveals to its holder.
type ResetTokenInfo struct {
	Email     string
	CreatedAt time.Time
}

// ResetNotice is handed to the ResetNotifier after a token is issued. It
// holds the plaintext email and token and must not be logged.
type ResetNotice struct {
	Username  string
	Email     string
	Token     string
	ExpiresAt time.Time
}

// ResetNotifier delivers reset tokens, usually by email. A delivery
// failure is logged and never changes the response.
type ResetNotifier interface {
	NotifyPasswordReset(ctx context.Context, notice ResetNotice) error
}

// ResetNotifierFunc adapts a function to ResetNotifier.
type ResetNotifierFunc func(ctx context.Context, notice ResetNotice) error

func (f ResetNotifierFunc) NotifyPasswordReset(ctx context.Context, notice ResetNotice) error {
	return f(ctx, notice)
}
