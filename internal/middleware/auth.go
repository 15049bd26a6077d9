package middleware

import (
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

const headerAPIKey = "X-API-Key"

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/healthz": true,
}

// APIKeyAuth returns middleware that checks the X-API-Key header against a
// bcrypt hash of the accepted key. An empty hash disables authentication
// entirely (local development). WebSocket clients cannot set headers, so /ws
// accepts the key via the api_key query parameter instead.
func APIKeyAuth(keyHash string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if keyHash == "" || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := r.Header.Get(headerAPIKey)
			if key == "" && r.URL.Path == "/ws" {
				key = r.URL.Query().Get("api_key")
			}
			if key == "" {
				unauthorized(w, "api key required")
				return
			}

			if err := bcrypt.CompareHashAndPassword([]byte(keyHash), []byte(key)); err != nil {
				unauthorized(w, "invalid api key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func unauthorized(w http.ResponseWriter, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"` + msg + `"}`))
}
