package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"

	"github.com/pvboard/pvboard/internal/api/response"
)

// APIKey is middleware that requires an X-API-Key header whose bcrypt hash
// matches hash. An empty hash disables the check.
func APIKey(hash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if hash == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := GetRequestID(r.Context())

			rawKey := r.Header.Get("X-API-Key")
			if rawKey == "" {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "API key is required", requestID)
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(rawKey)); err != nil {
				response.Err(w, http.StatusUnauthorized, "UNAUTHORIZED", "Invalid API key", requestID)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
