package finauth

import (
	"context"

	"github.com/rfol/finauth/internal/flows"
)

// RequestPasswordReset issues a reset token for the account registered
// under email and hands it to the ResetNotifier. The returned message is
// the same whether or not such an account exists. More than
// PasswordReset.MaxRequests requests for one email within the window fail
// with ErrRateLimited.
func (e *Engine) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	return flows.RunRequestPasswordReset(ctx, email, e.flowDeps.PasswordReset)
}

// ValidatePasswordResetToken reports the email and issue time behind a
// live token without consuming it.
func (e *Engine) ValidatePasswordResetToken(ctx context.Context, token string) (ResetTokenInfo, error) {
	info, err := flows.RunValidatePasswordResetToken(ctx, token, e.flowDeps.PasswordReset)
	if err != nil {
		return ResetTokenInfo{}, err
	}
	return ResetTokenInfo{Email: info.Email, CreatedAt: info.CreatedAt}, nil
}

// ResetPassword sets a new password with a reset token. On success the
// token, any other live token of the user and all of the user's sessions
// are gone.
func (e *Engine) ResetPassword(ctx context.Context, token, newPassword, confirm string) error {
	return flows.RunResetPassword(ctx, token, newPassword, confirm, e.flowDeps.PasswordReset)
}
