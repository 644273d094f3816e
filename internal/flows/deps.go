package flows

import (
	"context"
	"errors"
)

// Deps groups flow dependency sets. The root engine builds this once and
// delegates request methods to the matching flow implementation.
type Deps struct {
	Login         LoginDeps
	Session       SessionDeps
	Account       AccountDeps
	PasswordReset PasswordResetDeps
}

// AuditFunc emits one audit event. metadata is evaluated lazily so flows can
// skip building maps when auditing is off.
type AuditFunc func(ctx context.Context, event string, success bool, username string, err error, metadata func() map[string]string)

func noopAudit(context.Context, string, bool, string, error, func() map[string]string) {}

func noopMetric(int) {}

func noopLog(string, ...any) {}

func isContextErr(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
