// Package middleware provides HTTP middleware for Switchboard.
package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/switchboardhq/switchboard/internal/logger"
)

const headerRequestID = "X-Request-ID"

// RequestID tags every request with an id: the caller's X-Request-ID when
// present, a fresh UUID otherwise. The id rides the context for log
// correlation and is echoed on the response.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(headerRequestID)
		if id == "" {
			id = uuid.NewString()
		}

		ctx := logger.WithRequestID(r.Context(), id)
		w.Header().Set(headerRequestID, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
