package middleware

import (
	"net/http"

	"github.com/storyforge/storyforge-api/internal/api/shared"
)

// Trace attaches a trace ID to every request's context so error responses
// and log lines can be correlated.
func Trace(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := shared.SetTraceID(r.Context())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
