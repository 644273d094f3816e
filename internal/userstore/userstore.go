// Package userstore is the Postgres implementation of finauth.UserProvider.
package userstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/rfol/finauth"
)

const (
	uniqueViolation = "23505"

	constraintUsername    = "users_username_key"
	constraintHashedEmail = "users_hashed_email_key"
)

const userColumns = `id, uuid, username, first_name, last_name, hashed_password,
	hashed_email, encrypted_email, is_active, created_at`

type userRow struct {
	ID             int64     `db:"id"`
	UUID           string    `db:"uuid"`
	Username       string    `db:"username"`
	FirstName      string    `db:"first_name"`
	LastName       string    `db:"last_name"`
	HashedPassword string    `db:"hashed_password"`
	HashedEmail    string    `db:"hashed_email"`
	EncryptedEmail string    `db:"encrypted_email"`
	IsActive       bool      `db:"is_active"`
	CreatedAt      time.Time `db:"created_at"`
}

func (r userRow) record() finauth.UserRecord {
	return finauth.UserRecord{
		ID:             r.ID,
		UUID:           r.UUID,
		Username:       r.Username,
		FirstName:      r.FirstName,
		LastName:       r.LastName,
		PasswordHash:   r.HashedPassword,
		HashedEmail:    r.HashedEmail,
		EncryptedEmail: r.EncryptedEmail,
		IsActive:       r.IsActive,
		CreatedAt:      r.CreatedAt,
	}
}

type Store struct {
	db *sqlx.DB
}

var _ finauth.UserProvider = (*Store)(nil)

func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

// Open connects through the pgx database/sql driver and pings.
func Open(ctx context.Context, dsn string, maxConns int) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: %v", finauth.ErrStoreUnavailable, err)
	}
	if maxConns > 0 {
		db.SetMaxOpenConns(maxConns)
		db.SetMaxIdleConns(maxConns / 2)
	}
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func (s *Store) GetUser(ctx context.Context, q finauth.UserQuery) (finauth.UserRecord, error) {
	var (
		where string
		arg   any
	)
	if id, ok := q.ID(); ok {
		where, arg = "id = $1", id
	} else if name, ok := q.Username(); ok {
		where, arg = "username = $1", name
	} else if h, ok := q.HashedEmail(); ok {
		where, arg = "hashed_email = $1", h
	} else {
		return finauth.UserRecord{}, fmt.Errorf("user %s: %w", q, finauth.ErrNotFound)
	}

	var row userRow
	err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return finauth.UserRecord{}, fmt.Errorf("user %s: %w", q, finauth.ErrNotFound)
	}
	if err != nil {
		return finauth.UserRecord{}, fmt.Errorf("get user: %w", err)
	}
	return row.record(), nil
}

func (s *Store) CreateUser(ctx context.Context, u finauth.NewUser) (finauth.UserRecord, error) {
	query := `INSERT INTO users (uuid, username, first_name, last_name, hashed_password, hashed_email, encrypted_email)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + userColumns

	var row userRow
	err := s.db.GetContext(ctx, &row, query,
		uuid.NewString(), u.Username, u.FirstName, u.LastName,
		u.PasswordHash, u.HashedEmail, u.EncryptedEmail)
	if err != nil {
		if dup := duplicateError(err); dup != nil {
			return finauth.UserRecord{}, dup
		}
		return finauth.UserRecord{}, fmt.Errorf("create user: %w", err)
	}
	return row.record(), nil
}

func (s *Store) UpdatePasswordHash(ctx context.Context, username, hash string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET hashed_password = $1 WHERE username = $2`, hash, username)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %q: %w", username, finauth.ErrNotFound)
	}
	return nil
}

// duplicateError maps a unique violation to the field-specific sentinel,
// or returns nil for any other error.
func duplicateError(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != uniqueViolation {
		return nil
	}
	switch pgErr.ConstraintName {
	case constraintHashedEmail:
		return finauth.ErrDuplicateEmail
	case constraintUsername:
		return finauth.ErrDuplicateUsername
	default:
		return finauth.ErrDuplicateUser
	}
}
