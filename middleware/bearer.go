package middleware

import (
	"net/http"

	"github.com/rfol/finauth"
)

// RequireBearer rejects requests without a valid bearer token.
func RequireBearer(auth Authenticator) func(http.Handler) http.Handler {
	return guard(func(r *http.Request) (finauth.Identity, error) {
		if auth == nil {
			return finauth.Identity{}, finauth.ErrEngineNotReady
		}
		token, ok := BearerToken(r.Header.Get("Authorization"))
		if !ok {
			return finauth.Identity{}, finauth.ErrInvalidToken
		}
		return auth.RequireBearer(r.Context(), token)
	})
}
