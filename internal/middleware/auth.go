package middleware

import (
	"net/http"
	"strings"

	"github.com/dukerupert/nonna/internal/auth"
	"github.com/dukerupert/nonna/internal/respond"
)

// Verifier resolves a bearer access token.
type Verifier interface {
	Verify(token string) (auth.AuthContext, error)
}

// RequireAuth validates the bearer access token and populates AuthContext.
func RequireAuth(v Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respond.WriteError(w, http.StatusUnauthorized, "authentication required")
				return
			}

			ac, err := v.Verify(token)
			if err != nil {
				respond.WriteError(w, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			ctx := auth.WithAuth(r.Context(), ac)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
