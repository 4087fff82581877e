package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// basicAuth enforces HTTP basic auth against a single configured
// username/password pair. Constant-time comparison avoids a timing
// side channel on the credential check.
func basicAuth(username, password string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, pass, ok := r.BasicAuth()
			if !ok || !constantTimeEqual(user, username) || !constantTimeEqual(pass, password) {
				w.Header().Set("WWW-Authenticate", `Basic realm="vmpserverd"`)
				writeError(w, r, http.StatusUnauthorized, "unauthorized", "invalid credentials")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
