package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/iklevente/crewdo-backend-sub001/internal/core/domain"
)

type claimsKeyType struct{}

// ClaimsKey carries the verified identity of the request.
var ClaimsKey = claimsKeyType{}

// TokenVerifier verifies a bearer token and extracts its claims.
type TokenVerifier interface {
	Verify(token string) (domain.Claims, error)
}

// ClaimsFromContext returns the verified claims set by AuthMiddleware.
func ClaimsFromContext(ctx context.Context) (domain.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(domain.Claims)
	return claims, ok
}

// AuthMiddleware verifies the bearer token before the WebSocket
// upgrade. A missing or invalid token rejects the request outright;
// the connection is never admitted.
func AuthMiddleware(verifier TokenVerifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				http.Error(w, "Authorization required", http.StatusUnauthorized)
				return
			}
			claims, err := verifier.Verify(token)
			if err != nil {
				http.Error(w, "Unauthorized: "+err.Error(), http.StatusUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken reads the Authorization header, falling back to the
// access_token query parameter for browser WebSocket clients that
// cannot set headers.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header != "" {
		parts := strings.Split(header, " ")
		if len(parts) == 2 && parts[0] == "Bearer" {
			return parts[1]
		}
		return ""
	}
	return r.URL.Query().Get("access_token")
}
