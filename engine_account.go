package finauth

import (
	"context"
	"fmt"

	"github.com/rfol/finauth/internal/flows"
	"github.com/rfol/finauth/pii"
)

// Register creates an account. Username and names are trimmed and
// lowercased and must not contain whitespace; the email is stored only as
// its lookup hash and its ciphertext. A taken email or username fails with
// ErrDuplicateEmail or ErrDuplicateUsername.
func (e *Engine) Register(ctx context.Context, req RegisterRequest) (Profile, error) {
	rec, err := flows.RunRegister(ctx, flows.RegisterInput{
		Username:  req.Username,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Password:  req.Password,
	}, e.flowDeps.Account)
	if err != nil {
		return Profile{}, err
	}

	return Profile{
		ID:        rec.ID,
		UUID:      rec.UUID,
		Username:  rec.Username,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Email:     pii.NormalizeEmail(req.Email),
		IsActive:  rec.Active,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// Profile returns username's account with the email decrypted.
func (e *Engine) Profile(ctx context.Context, username string) (Profile, error) {
	rec, err := e.getUser(ctx, ByUsername(username))
	if err != nil {
		return Profile{}, err
	}

	email, err := e.pii.DecryptEmail(rec.EncryptedEmail)
	if err != nil {
		e.logger.Error("stored email undecryptable", "username", rec.Username, "error", err)
		return Profile{}, fmt.Errorf("decrypt email: %w", err)
	}

	return Profile{
		ID:        rec.ID,
		UUID:      rec.UUID,
		Username:  rec.Username,
		FirstName: rec.FirstName,
		LastName:  rec.LastName,
		Email:     email,
		IsActive:  rec.IsActive,
		CreatedAt: rec.CreatedAt,
	}, nil
}

// ChangePassword replaces username's password. next must equal confirm,
// differ from current and pass the strength policy; current must verify.
// Existing sessions are left alone.
func (e *Engine) ChangePassword(ctx context.Context, username, current, next, confirm string) error {
	return flows.RunChangePassword(ctx, username, current, next, confirm, e.flowDeps.Account)
}
