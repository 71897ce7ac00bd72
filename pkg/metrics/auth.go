package metrics

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// RequireBearer rejects requests that do not carry "Authorization: Bearer
// <token>". An empty token disables the check.
func RequireBearer(token string) func(http.Handler) http.Handler {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		if len(want) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			}
			got, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || got == "" {
				http.Error(w, "invalid authorization format, expected 'Bearer <token>'", http.StatusUnauthorized)
				return
			}
			if subtle.ConstantTimeCompare([]byte(got), want) != 1 {
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
