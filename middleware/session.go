package middleware

import (
	"net/http"

	"github.com/rfol/finauth"
)

// RequireSession rejects requests without a live session cookie named
// cookieName. An empty cookieName selects finauth.DefaultSessionCookieName.
func RequireSession(auth Authenticator, cookieName string) func(http.Handler) http.Handler {
	if cookieName == "" {
		cookieName = finauth.DefaultSessionCookieName
	}
	return guard(func(r *http.Request) (finauth.Identity, error) {
		if auth == nil {
			return finauth.Identity{}, finauth.ErrEngineNotReady
		}
		c, err := r.Cookie(cookieName)
		if err != nil || c.Value == "" {
			return finauth.Identity{}, finauth.ErrSessionMissingOrExpired
		}
		return auth.RequireSession(r.Context(), c.Value)
	})
}
