package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rfol/finauth"
)

// Authenticator is the part of *finauth.Engine the guards need.
type Authenticator interface {
	RequireBearer(ctx context.Context, token string) (finauth.Identity, error)
	RequireSession(ctx context.Context, sessionID string) (finauth.Identity, error)
}

type identityContextKey struct{}

// IdentityFromContext returns the identity a guard stored on ctx.
func IdentityFromContext(ctx context.Context) (finauth.Identity, bool) {
	id, ok := ctx.Value(identityContextKey{}).(finauth.Identity)
	return id, ok
}

// WithIdentity stores id on ctx.
func WithIdentity(ctx context.Context, id finauth.Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

func guard(resolve func(*http.Request) (finauth.Identity, error)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := resolve(r)
			if err != nil {
				WriteError(w, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// StatusCode maps an engine error to its HTTP status.
func StatusCode(err error) int {
	switch finauth.Classify(err) {
	case finauth.ClassNone:
		return http.StatusOK
	case finauth.ClassUnauthorized:
		return http.StatusUnauthorized
	case finauth.ClassConflict:
		return http.StatusConflict
	case finauth.ClassRateLimited:
		return http.StatusTooManyRequests
	case finauth.ClassNotFound:
		return http.StatusNotFound
	case finauth.ClassBadRequest:
		return http.StatusBadRequest
	case finauth.ClassUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as {"detail": message}. 401 responses carry a
// WWW-Authenticate challenge.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusCode(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": finauth.PublicMessage(err)})
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if len(value) < len(bearer) || !strings.EqualFold(value[:len(bearer)], bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}
